package dbconn

import (
	"net"
	"strconv"

	"github.com/go-ini/ini"
	"github.com/go-sql-driver/mysql"
)

const (
	defaultHost     = "127.0.0.1"
	defaultPort     = 3306
	defaultUsername = "root"
	defaultPassword = ""
	defaultTLSMode  = "PREFERRED"
)

// ClientConf holds the [client] section of a my.cnf style defaults file.
// Getters provide defaults when the receiver is nil or a key is unset.
type ClientConf struct {
	host, database, user, tlsMode, tlsCA string
	password                             *string
	port                                 int
}

func (c *ClientConf) GetHost() string {
	if c == nil || c.host == "" {
		return defaultHost
	}
	return c.host
}

// GetDatabase has no default: the DSN names no database when it is empty.
func (c *ClientConf) GetDatabase() string {
	if c == nil {
		return ""
	}
	return c.database
}

func (c *ClientConf) GetUser() string {
	if c == nil || c.user == "" {
		return defaultUsername
	}
	return c.user
}

func (c *ClientConf) GetPassword() string {
	if c == nil || c.password == nil {
		return defaultPassword
	}
	return *c.password
}

func (c *ClientConf) GetTLSMode() string {
	if c == nil || c.tlsMode == "" {
		return defaultTLSMode
	}
	return c.tlsMode
}

// N.B. There is no default for tls-ca
func (c *ClientConf) GetTLSCA() string {
	if c == nil {
		return ""
	}
	return c.tlsCA
}

func (c *ClientConf) GetPort() int {
	if c == nil || c.port == 0 {
		return defaultPort
	}
	return c.port
}

// DSN renders the credentials as a go-sql-driver DSN.
func (c *ClientConf) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.GetUser()
	cfg.Passwd = c.GetPassword()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.GetHost(), strconv.Itoa(c.GetPort()))
	cfg.DBName = c.GetDatabase()
	return cfg.FormatDSN()
}

// Apply copies the TLS settings into config unless they were set already.
func (c *ClientConf) Apply(config *DBConfig) {
	if c == nil {
		return
	}
	if c.tlsMode != "" {
		config.TLSMode = c.tlsMode
	}
	if config.TLSCertificatePath == "" {
		config.TLSCertificatePath = c.tlsCA
	}
}

// LoadClientConf loads the [client] section of a defaults file. An empty
// path returns an empty ClientConf.
func LoadClientConf(path string) (*ClientConf, error) {
	conf := &ClientConf{}
	if path == "" {
		return conf, nil
	}
	creds, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	if creds.HasSection("client") {
		client := creds.Section("client")
		conf.host = client.Key("host").String()
		conf.database = client.Key("database").String()
		conf.user = client.Key("user").String()
		conf.tlsMode = client.Key("tls-mode").String()
		conf.tlsCA = client.Key("tls-ca").String()
		conf.port = client.Key("port").MustInt()

		if client.HasKey("password") {
			pw := client.Key("password").String()
			conf.password = &pw
		}
	}
	return conf, nil
}
