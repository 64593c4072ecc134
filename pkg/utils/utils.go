// Package utils contains some common utilities used by all other packages.
package utils

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	PrimaryKeySeparator = "-#-" // used to hash a composite key
)

// HashKey renders a composite key as one string, for logs and maps.
func HashKey(key []any) string {
	var pk []string
	for _, v := range key {
		if v == nil {
			pk = append(pk, "NULL")
			continue
		}
		pk = append(pk, fmt.Sprintf("%v", v))
	}
	return strings.Join(pk, PrimaryKeySeparator)
}

// ErrInErr is for errors raised while already handling an error, such as a
// failed Close on a connection that failed to ping. There is nothing left
// to do with them but log.
func ErrInErr(err error) {
	if err != nil {
		slog.Error("error while handling another error", "error", err)
	}
}
