package utils

import (
	"context"
	"log/slog"
)

// Closer is an interface for types that have a Close() method.
// This is compatible with io.Closer, *sql.DB and *os.File.
type Closer interface {
	Close() error
}

// CloseAndLogContext closes a resource in a defer, where the error can
// only be logged. kind and name identify the resource in the log line.
// Example: defer utils.CloseAndLogContext(ctx, f, "dump", path)
func CloseAndLogContext(ctx context.Context, closer Closer, kind, name string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.ErrorContext(ctx, "deferred close failed", kind, name, "error", err)
	}
}
