package importer

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/block/dumpimport/pkg/dbconn"
	"github.com/block/dumpimport/pkg/metrics"
	"github.com/block/dumpimport/pkg/record"
)

// Mode selects how records are matched against the target.
type Mode string

const (
	// ModeDedupByKey lets the target assign ids and matches records by
	// natural key: product name, order number and transaction id.
	ModeDedupByKey Mode = "dedup-by-key"
	// ModeExactID keeps the primary keys of the dump.
	ModeExactID Mode = "exact-id"
)

const (
	defaultThreads       = 4
	defaultProgressEvery = 100
)

func (m Mode) Valid() bool {
	return m == ModeDedupByKey || m == ModeExactID
}

// Config is the configuration of an import. The YAML fields can be loaded
// from a file with LoadConfig; command line flags override them.
type Config struct {
	Mode          Mode         `yaml:"mode"`
	Threads       int          `yaml:"threads"`        // parse workers
	ProgressEvery int          `yaml:"progress_every"` // records between progress reports
	Target        TargetConfig `yaml:"target"`
	MetricsFile   string       `yaml:"metrics_file,omitempty"`

	Logger  *slog.Logger `yaml:"-"`
	Metrics metrics.Sink `yaml:"-"`
	// Clock supplies the creation time of rows without one. It defaults
	// to the start of the run, truncated to the second.
	Clock record.Clock `yaml:"-"`
}

// TargetConfig defines the database the records are written to
type TargetConfig struct {
	Driver       string    `yaml:"driver"` // mysql, postgres, sqlite
	DSN          string    `yaml:"dsn,omitempty"`
	DefaultsFile string    `yaml:"defaults_file,omitempty"` // my.cnf with a [client] section
	TLS          TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig defines TLS settings for a MySQL target
type TLSConfig struct {
	Mode   string `yaml:"mode,omitempty"` // disabled, preferred, required, verify_ca, verify_identity
	CACert string `yaml:"ca_cert,omitempty"`
}

func NewConfig() *Config {
	return &Config{
		Mode:          ModeDedupByKey,
		Threads:       defaultThreads,
		ProgressEvery: defaultProgressEvery,
		Target:        TargetConfig{Driver: dbconn.DriverMySQL},
	}
}

// LoadConfig loads configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Validate checks if the configuration is valid, filling in defaults for
// unset values.
func (c *Config) Validate() error {
	if c.Mode == "" {
		c.Mode = ModeDedupByKey
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDedupByKey, ModeExactID, c.Mode)
	}
	if c.Threads == 0 {
		c.Threads = defaultThreads
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}
	if c.ProgressEvery == 0 {
		c.ProgressEvery = defaultProgressEvery
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress_every must be positive, got %d", c.ProgressEvery)
	}
	if c.Target.Driver == "" {
		c.Target.Driver = dbconn.DriverMySQL
	}
	c.Target.Driver = strings.ToLower(c.Target.Driver)
	if !slices.Contains(dbconn.Drivers, c.Target.Driver) {
		return fmt.Errorf("target driver must be one of %s, got %q", strings.Join(dbconn.Drivers, ", "), c.Target.Driver)
	}
	if c.Target.DefaultsFile != "" && c.Target.Driver != dbconn.DriverMySQL {
		return fmt.Errorf("defaults_file is only supported for the %s driver", dbconn.DriverMySQL)
	}
	return nil
}

// DBConfig returns the connection settings of the target.
func (c *Config) DBConfig() *dbconn.DBConfig {
	config := dbconn.NewDBConfig()
	if c.Target.TLS.Mode != "" {
		config.TLSMode = strings.ToUpper(c.Target.TLS.Mode)
	}
	if c.Target.TLS.CACert != "" {
		config.TLSCertificatePath = c.Target.TLS.CACert
	}
	return config
}

// ResolveDSN returns the DSN of the target. An explicit DSN wins over the
// credentials of a defaults file; the file's TLS settings are applied to
// config when it is used.
func (t TargetConfig) ResolveDSN(config *dbconn.DBConfig) (string, error) {
	if t.DSN != "" {
		return t.DSN, nil
	}
	if t.DefaultsFile == "" {
		return "", fmt.Errorf("no target database: set a DSN or a defaults file, or use --dry-run")
	}
	conf, err := dbconn.LoadClientConf(t.DefaultsFile)
	if err != nil {
		return "", err
	}
	if conf.GetDatabase() == "" {
		return "", fmt.Errorf("%s: no database in the [client] section", t.DefaultsFile)
	}
	if t.TLS.Mode == "" {
		conf.Apply(config)
	}
	return conf.DSN(), nil
}
