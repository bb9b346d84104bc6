package database

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// DSN renders the driver-specific data source name for c.
func (c Config) DSN() string {
	c = c.withDefaults()
	switch c.Driver {
	case DriverPostgres, DriverPgx:
		return postgresDSN(c)
	case DriverSQLite:
		return sqliteDSN(c)
	default:
		return mysqlDSN(c)
	}
}

func mysqlDSN(c Config) string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": c.Charset}
	for k, v := range c.Extras {
		mc.Params[k] = v
	}
	return mc.FormatDSN()
}

func postgresDSN(c Config) string {
	q := url.Values{}
	q.Set("client_encoding", postgresEncoding(c.Charset))
	for k, v := range c.Extras {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u.String()
}

func postgresEncoding(charset string) string {
	switch strings.ToLower(charset) {
	case "utf8mb4", "utf8", "utf-8":
		return "UTF8"
	default:
		return charset
	}
}

func sqliteDSN(c Config) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	// BEGIN IMMEDIATE so concurrent writers queue on busy_timeout instead of
	// failing on lock upgrade.
	q.Set("_txlock", "immediate")
	for k, v := range c.Extras {
		q.Set(k, v)
	}
	return c.Database + "?" + q.Encode()
}
