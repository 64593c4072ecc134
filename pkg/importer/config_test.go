package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/block/dumpimport/pkg/dbconn"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "import.yaml", `
mode: exact-id
threads: 8
target:
  driver: Postgres
  dsn: postgres://importer@localhost/shop
metrics_file: /tmp/dumpimport.prom
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ModeExactID, config.Mode)
	assert.Equal(t, 8, config.Threads)
	assert.Equal(t, defaultProgressEvery, config.ProgressEvery)
	assert.Equal(t, dbconn.DriverPostgres, config.Target.Driver)
	assert.Equal(t, "postgres://importer@localhost/shop", config.Target.DSN)
	assert.Equal(t, "/tmp/dumpimport.prom", config.MetricsFile)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfig(writeFile(t, "bad.yaml", "threads: [1"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig(writeFile(t, "invalid.yaml", "mode: fuzzy\n"))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "empty values are defaulted", modify: func(c *Config) {
			*c = Config{}
		}},
		{name: "sqlite", modify: func(c *Config) { c.Target.Driver = "SQLite" }},
		{name: "bad mode", modify: func(c *Config) { c.Mode = "upsert" }, errMsg: "mode must be"},
		{name: "negative threads", modify: func(c *Config) { c.Threads = -1 }, errMsg: "threads must be positive"},
		{name: "negative progress", modify: func(c *Config) { c.ProgressEvery = -5 }, errMsg: "progress_every must be positive"},
		{name: "unknown driver", modify: func(c *Config) { c.Target.Driver = "oracle" }, errMsg: "target driver must be one of mysql, postgres, sqlite"},
		{name: "defaults file with postgres", modify: func(c *Config) {
			c.Target.Driver = dbconn.DriverPostgres
			c.Target.DefaultsFile = "my.cnf"
		}, errMsg: "defaults_file is only supported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, config.Mode.Valid())
			assert.Positive(t, config.Threads)
			assert.Positive(t, config.ProgressEvery)
			assert.Contains(t, dbconn.Drivers, config.Target.Driver)
		})
	}
}

func TestConfigDBConfig(t *testing.T) {
	config := NewConfig()
	assert.Equal(t, dbconn.NewDBConfig().TLSMode, config.DBConfig().TLSMode)

	config.Target.TLS = TLSConfig{Mode: "verify_ca", CACert: "/etc/ssl/rds.pem"}
	dbConfig := config.DBConfig()
	assert.Equal(t, "VERIFY_CA", dbConfig.TLSMode)
	assert.Equal(t, "/etc/ssl/rds.pem", dbConfig.TLSCertificatePath)
}

func TestResolveDSN(t *testing.T) {
	cnf := writeFile(t, "my.cnf", `[client]
host = db.internal
port = 3307
user = importer
password = s3cr3t
database = shop
tls-mode = REQUIRED
`)

	dsn, err := TargetConfig{DSN: "root@tcp(127.0.0.1:3306)/test", DefaultsFile: cnf}.ResolveDSN(dbconn.NewDBConfig())
	require.NoError(t, err)
	assert.Equal(t, "root@tcp(127.0.0.1:3306)/test", dsn)

	dbConfig := dbconn.NewDBConfig()
	dsn, err = TargetConfig{DefaultsFile: cnf}.ResolveDSN(dbConfig)
	require.NoError(t, err)
	assert.Equal(t, "importer:s3cr3t@tcp(db.internal:3307)/shop", dsn)
	assert.Equal(t, "REQUIRED", dbConfig.TLSMode)

	// TLS settings of the configuration win over the defaults file
	dbConfig = dbconn.NewDBConfig()
	dbConfig.TLSMode = "DISABLED"
	_, err = TargetConfig{DefaultsFile: cnf, TLS: TLSConfig{Mode: "disabled"}}.ResolveDSN(dbConfig)
	require.NoError(t, err)
	assert.Equal(t, "DISABLED", dbConfig.TLSMode)

	noDB := writeFile(t, "nodb.cnf", "[client]\nuser = importer\n")
	_, err = TargetConfig{DefaultsFile: noDB}.ResolveDSN(dbconn.NewDBConfig())
	assert.ErrorContains(t, err, "no database in the [client] section")

	_, err = TargetConfig{}.ResolveDSN(dbconn.NewDBConfig())
	assert.ErrorContains(t, err, "use --dry-run")
}
