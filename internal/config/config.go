package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"DEBUG"`
	AdminToken    string `env:"ADMIN_TOKEN"`
	CacheConfig
	RegionConfig
	PostgresConfig
}

func NewConfig() (*Config, error) {
	config := &Config{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewConfig: %w", err)
	}
	return config, err
}

// CacheConfig bounds the read response cache.
type CacheConfig struct {
	TTL      time.Duration `env:"CACHE_TTL" envDefault:"2h"`
	Capacity uint64        `env:"CACHE_CAPACITY" envDefault:"10000"`
}

// RegionConfig is the home region organization scopes are computed against.
type RegionConfig struct {
	HomeProvince string `env:"HOME_PROVINCE" envDefault:"湖北省"`
	HomeCity     string `env:"HOME_CITY" envDefault:"武汉市"`
}

type PostgresConfig struct {
	Conn            string        `env:"POSTGRES_CONN" envDefault:"postgres://test:test@db:5432/test?sslmode=disable"`
	ConnectTimeout  time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" envDefault:"30s"`
	AutoMigrateUp   bool          `env:"AUTO_MIGRATE_UP" envDefault:"true"`
	AutoMigrateDown bool          `env:"AUTO_MIGRATE_DOWN" envDefault:"false"`
	// empty means the migrations embedded into the binary
	MigrationsURL string `env:"MIGRATIONS_URL"`
}

func NewPostgresConfig() (*PostgresConfig, error) {
	config := &PostgresConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewPostgresConfig: %w", err)
	}
	return config, err
}
