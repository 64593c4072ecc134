package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/block/dumpimport/pkg/buildinfo"
	"github.com/block/dumpimport/pkg/importer"
)

// Set with -ldflags by the release build.
var (
	version string
	commit  string
	date    string
)

var cli struct {
	importer.ImportCmd

	Version kong.VersionFlag `help:"Print the version and exit."`
}

func main() {
	buildinfo.Set(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parser := kong.Must(&cli,
		kong.Name("dumpimport"),
		kong.Description("Import products, orders and payments from a legacy MySQL dump."),
		kong.UsageOnError(),
		kong.Vars{"version": buildinfo.Get().String()},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	kctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		// usage goes to stderr with the error
		parser.Stdout = os.Stderr
		parser.FatalIfErrorf(err)
	}
	err = kctx.Run()
	stop()
	kctx.FatalIfErrorf(err)
}
