package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/sqlscope/pkg/database"
)

type Config struct {
	DBDriver   string `env:"DB_DRIVER" envDefault:"mysql"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBCharset  string `env:"DB_CHARSET" envDefault:"utf8mb4"`

	DBMinPoolSize     int           `env:"DB_MIN_POOL_SIZE" envDefault:"1"`
	DBMaxPoolSize     int           `env:"DB_MAX_POOL_SIZE" envDefault:"10"`
	DBAutocommit      bool          `env:"DB_AUTOCOMMIT" envDefault:"true"`
	DBAcquireTimeout  time.Duration `env:"DB_ACQUIRE_TIMEOUT" envDefault:"0s"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"300s"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"60s"`
	DBIDColumn        string        `env:"DB_ID_COLUMN" envDefault:"id"`

	DBExtras map[string]string `env:"DB_EXTRAS" envSeparator:"," envKeyValSeparator:"="`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	LogFile  string `env:"LOG_FILE"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Driver:          c.DBDriver,
		Host:            c.DBHost,
		Port:            c.DBPort,
		User:            c.DBUser,
		Password:        c.DBPassword,
		Database:        c.DBName,
		Charset:         c.DBCharset,
		MinPoolSize:     database.Int(c.DBMinPoolSize),
		MaxPoolSize:     c.DBMaxPoolSize,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		ConnMaxIdleTime: c.DBConnMaxIdleTime,
		AcquireTimeout:  c.DBAcquireTimeout,
		Autocommit:      database.Bool(c.DBAutocommit),
		IDColumn:        c.DBIDColumn,
		Extras:          c.DBExtras,
	}
}
