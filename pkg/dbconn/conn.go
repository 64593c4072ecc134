package dbconn

import (
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/block/dumpimport/pkg/utils"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	customTLSConfigName = "custom"
	maxConnLifetime     = time.Minute * 3
)

// Drivers lists the supported database/sql driver names.
var Drivers = []string{DriverMySQL, DriverPostgres, DriverSQLite}

// NewCustomTLSConfig creates a TLS config from a CA bundle for the modes
// that verify the server certificate.
func NewCustomTLSConfig(certData []byte, tlsMode string) (*tls.Config, error) {
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(certData) {
		return nil, errors.New("no certificates found in TLS certificate file")
	}
	switch tlsMode {
	case "VERIFY_CA":
		// Verify the chain against the CA but allow hostname mismatches.
		return &tls.Config{
			RootCAs:            caCertPool,
			InsecureSkipVerify: true,
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return errors.New("no certificates provided")
				}
				certs := make([]*x509.Certificate, 0, len(rawCerts))
				for _, raw := range rawCerts {
					cert, err := x509.ParseCertificate(raw)
					if err != nil {
						return fmt.Errorf("failed to parse certificate: %w", err)
					}
					certs = append(certs, cert)
				}
				intermediates := x509.NewCertPool()
				for _, cert := range certs[1:] {
					intermediates.AddCert(cert)
				}
				if _, err := certs[0].Verify(x509.VerifyOptions{Roots: caCertPool, Intermediates: intermediates}); err != nil {
					return fmt.Errorf("certificate verification failed: %w", err)
				}
				return nil
			},
		}, nil
	default:
		return &tls.Config{RootCAs: caCertPool}, nil
	}
}

// tlsParam returns the value of the go-sql-driver tls parameter for the
// configured mode, registering a custom TLS config when a CA file is given.
func tlsParam(config *DBConfig) (string, error) {
	mode := strings.ToUpper(config.TLSMode)
	switch mode {
	case "DISABLED":
		return "false", nil
	case "", "PREFERRED":
		return "preferred", nil
	case "REQUIRED":
		return "skip-verify", nil
	case "VERIFY_CA", "VERIFY_IDENTITY":
		if config.TLSCertificatePath == "" {
			if mode == "VERIFY_CA" {
				return "", errors.New("TLS mode VERIFY_CA requires a TLS certificate file")
			}
			return "true", nil
		}
		certData, err := os.ReadFile(config.TLSCertificatePath)
		if err != nil {
			return "", err
		}
		tlsConfig, err := NewCustomTLSConfig(certData, mode)
		if err != nil {
			return "", err
		}
		if err := mysql.RegisterTLSConfig(customTLSConfigName, tlsConfig); err != nil {
			return "", err
		}
		return customTLSConfigName, nil
	}
	return "", fmt.Errorf("unknown TLS mode %q", config.TLSMode)
}

// newDSN returns a new DSN to be used to connect to MySQL.
// It accepts a DSN as input and appends the session settings the importer
// relies on: UTC timestamps, read-committed isolation and utf8mb4.
func newDSN(dsn string, config *DBConfig) (string, error) {
	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", err
	}
	tlsValue, err := tlsParam(config)
	if err != nil {
		return "", err
	}
	ops := []string{
		"tls=" + url.QueryEscape(tlsValue),
		"time_zone=" + url.QueryEscape(`"+00:00"`),
		"innodb_lock_wait_timeout=" + url.QueryEscape(strconv.Itoa(config.InnodbLockWaitTimeout)),
		"lock_wait_timeout=" + url.QueryEscape(strconv.Itoa(config.LockWaitTimeout)),
		"transaction_isolation=" + url.QueryEscape(`"read-committed"`),
		"charset=utf8mb4",
		"collation=utf8mb4_unicode_ci",
		"parseTime=true",
		"loc=UTC",
		// recycle the connection if a failover leaves us on a read-only replica
		"rejectReadOnly=true",
		"interpolateParams=" + strconv.FormatBool(config.InterpolateParams),
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join(ops, "&"), nil
}

// newSQLiteDSN enables foreign keys and a busy timeout unless the DSN
// already sets pragmas.
func newSQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// New is similar to sql.Open except we standardize the DSN for the driver
// and ping the connection to ensure it is valid.
func New(driver, inputDSN string, config *DBConfig) (*sql.DB, error) {
	dsn := inputDSN
	switch driver {
	case DriverMySQL:
		var err error
		if dsn, err = newDSN(inputDSN, config); err != nil {
			return nil, err
		}
	case DriverSQLite:
		dsn = newSQLiteDSN(inputDSN)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q, expected one of %s", driver, strings.Join(Drivers, ", "))
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		utils.ErrInErr(db.Close())
		return nil, err
	}
	db.SetMaxOpenConns(config.MaxOpenConnections)
	if driver == DriverSQLite {
		// one writer at a time; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxLifetime(maxConnLifetime)
	return db, nil
}
