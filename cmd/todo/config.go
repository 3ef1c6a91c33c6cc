package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Adapters the CLI can run the store on.
const (
	adapterLocal  = "local"
	adapterRedis  = "redis"
	adapterRemote = "remote"
)

// cliConfig is todo.toml. Flags override it.
type cliConfig struct {
	Adapter  string   `toml:"adapter"`
	DBPath   string   `toml:"db_path"`
	RedisURL string   `toml:"redis_url"`
	APIURL   string   `toml:"api_url"`
	Timeout  duration `toml:"timeout"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func defaultConfig() cliConfig {
	return cliConfig{
		Adapter:  adapterLocal,
		DBPath:   "todos.db",
		RedisURL: "redis://localhost:6379/0",
		APIURL:   "http://localhost:8080",
		Timeout:  duration{5 * time.Second},
	}
}

// loadConfig reads path over the defaults. A missing file means defaults.
func loadConfig(path string) (cliConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c cliConfig) validate() error {
	switch c.Adapter {
	case adapterLocal, adapterRedis, adapterRemote:
		return nil
	default:
		return fmt.Errorf("unknown adapter %q (want local, redis or remote)", c.Adapter)
	}
}
