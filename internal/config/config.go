package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		GinMode        string   `yaml:"ginMode"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Storage struct {
		Driver     string `yaml:"driver"`
		SessionTTL string `yaml:"sessionTTL"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Documents struct {
		TTL      string `yaml:"ttl"`
		Fixtures string `yaml:"fixtures"`
	} `yaml:"documents"`
	Timer struct {
		TickInterval string `yaml:"tickInterval"`
	} `yaml:"timer"`
	Sweeper struct {
		Interval string `yaml:"interval"`
		Enabled  bool   `yaml:"enabled"`
	} `yaml:"sweeper"`
}

// Load reads YAML config from path and fills defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.GinMode == "" {
		c.Server.GinMode = "release"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "superexam"
	}
}

// Validate checks that the selected storage driver has its connection settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("storage driver redis requires redis.addr")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("storage driver mongo requires mongo.uri")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("storage driver postgres requires postgres.url")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
