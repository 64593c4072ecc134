package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/block/dumpimport/pkg/metrics"
	"github.com/block/dumpimport/pkg/store"
	"github.com/block/dumpimport/pkg/store/sqlstore"
	"github.com/block/dumpimport/pkg/utils"
)

// ImportCmd is the command line of an import. Flags left unset fall back
// to the --config file, then to the defaults of NewConfig.
type ImportCmd struct {
	Dump          string `arg:"" name:"dump" help:"Path to the SQL dump file" type:"path"`
	Mode          string `name:"mode" help:"Import mode: dedup-by-key (default) or exact-id" optional:""`
	Driver        string `name:"driver" help:"Target database driver: mysql (default), postgres or sqlite" optional:""`
	DSN           string `name:"dsn" help:"Target database DSN" optional:"" env:"DUMPIMPORT_DSN"`
	DefaultsFile  string `name:"defaults-file" help:"my.cnf file with the target credentials in its [client] section" optional:"" type:"existingfile"`
	ConfigFile    string `name:"config" help:"Path to YAML configuration file" optional:"" type:"existingfile"`
	Threads       int    `name:"threads" help:"Number of concurrent threads for parsing the dump" optional:""`
	ProgressEvery int    `name:"progress-every" help:"Report progress every N records" optional:""`
	DryRun        bool   `name:"dry-run" help:"Import into an in-memory store instead of the target" optional:"" default:"false"`
	MetricsFile   string `name:"metrics-file" help:"Write metrics in the Prometheus text format to this file" optional:""`
	// TLS Configuration
	TLSMode            string `name:"tls-mode" help:"TLS connection mode (case insensitive): DISABLED, PREFERRED (default), REQUIRED, VERIFY_CA, VERIFY_IDENTITY" optional:""`
	TLSCertificatePath string `name:"tls-ca" help:"Path to custom TLS CA certificate file" optional:""`

	LogFormat string `name:"log-format" help:"Log format" enum:"text,json" default:"text"`
	LogLevel  string `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"info"`

	Stdout io.Writer `kong:"-"`
	Stderr io.Writer `kong:"-"`
}

func (c *ImportCmd) Run(ctx context.Context) error {
	stdout, stderr := c.Stdout, c.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	logger, err := NewLogger(stderr, c.LogFormat, c.LogLevel)
	if err != nil {
		return err
	}

	config, err := c.config()
	if err != nil {
		return err
	}
	config.Logger = logger
	sink := metrics.Sink(metrics.NewLogSink(logger))
	if config.MetricsFile != "" {
		sink = metrics.NewMultiSink(sink, metrics.NewTextfileSink(config.MetricsFile))
	}
	config.Metrics = sink

	var target store.Store
	if c.DryRun {
		logger.InfoContext(ctx, "dry run: importing into memory")
		target = store.NewMemory()
	} else {
		dbConfig := config.DBConfig()
		dsn, err := config.Target.ResolveDSN(dbConfig)
		if err != nil {
			return err
		}
		s, err := sqlstore.Open(config.Target.Driver, dsn, dbConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to target: %w", err)
		}
		defer utils.CloseAndLogContext(ctx, s, "target", config.Target.Driver)
		target = s
	}

	imp, err := New(target, config)
	if err != nil {
		return err
	}
	report, err := imp.Run(ctx, c.Dump)
	if report != nil {
		if perr := report.Print(stdout); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	return report.Err()
}

// config merges the configuration file and the flags.
func (c *ImportCmd) config() (*Config, error) {
	config := NewConfig()
	if c.ConfigFile != "" {
		var err error
		if config, err = LoadConfig(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	if c.Mode != "" {
		config.Mode = Mode(c.Mode)
	}
	if c.Driver != "" {
		config.Target.Driver = c.Driver
	}
	if c.DSN != "" {
		config.Target.DSN = c.DSN
	}
	if c.DefaultsFile != "" {
		config.Target.DefaultsFile = c.DefaultsFile
	}
	if c.Threads != 0 {
		config.Threads = c.Threads
	}
	if c.ProgressEvery != 0 {
		config.ProgressEvery = c.ProgressEvery
	}
	if c.MetricsFile != "" {
		config.MetricsFile = c.MetricsFile
	}
	if c.TLSMode != "" {
		config.Target.TLS.Mode = c.TLSMode
	}
	if c.TLSCertificatePath != "" {
		config.Target.TLS.CACert = c.TLSCertificatePath
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// NewLogger returns a text or JSON logger writing to w.
func NewLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}
