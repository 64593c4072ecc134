// Package dbconn contains a series of database-related utility functions.
package dbconn

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errCannotConnect   = 2003
	errConnLost        = 2013
	errReadOnly        = 1290
	errQueryKilled     = 1836
)

type DBConfig struct {
	LockWaitTimeout       int
	InnodbLockWaitTimeout int
	MaxRetries            int
	MaxOpenConnections    int
	InterpolateParams     bool
	// TLS Configuration
	TLSMode            string // TLS connection mode (DISABLED, PREFERRED, REQUIRED, VERIFY_CA, VERIFY_IDENTITY)
	TLSCertificatePath string // Path to custom TLS certificate file
}

func NewDBConfig() *DBConfig {
	return &DBConfig{
		LockWaitTimeout:       30,
		InnodbLockWaitTimeout: 3,
		MaxRetries:            3,
		MaxOpenConnections:    4, // the importer has a single writer
		InterpolateParams:     false,
		TLSMode:               "PREFERRED", // default to PREFERRED mode like MySQL
		TLSCertificatePath:    "",
	}
}

// CanRetryError looks at the MySQL error and decides if it is considered
// a permanent failure or not. A "retryable" error means the statement can
// be run again as-is: it was a deadlock, a lock wait timeout or a lost
// connection, never a constraint violation.
func CanRetryError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return errors.Is(err, mysql.ErrInvalidConn)
	}
	switch myErr.Number {
	case errLockWaitTimeout, errDeadlock, errCannotConnect,
		errConnLost, errReadOnly, errQueryKilled:
		return true
	default:
		return false
	}
}

// Retry runs fn until it succeeds, fails with an error canRetry rejects,
// or config.MaxRetries attempts have been made. It returns the last error.
func Retry(ctx context.Context, config *DBConfig, canRetry func(error) bool, fn func(ctx context.Context) error) error {
	var err error
	attempts := max(config.MaxRetries, 1)
	for i := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !canRetry(err) || ctx.Err() != nil {
			return err
		}
		if i < attempts-1 {
			backoff(i)
		}
	}
	return err
}

// backoff sleeps a few milliseconds before retrying.
func backoff(i int) {
	randFactor := i * rand.Intn(10) * int(time.Millisecond)
	time.Sleep(time.Duration(randFactor))
}
