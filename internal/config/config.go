// Copyright 2025 The A2A Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package config loads the relay server configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/a2aproject/a2a-relay/a2a"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys.
// Nested keys are joined with an underscore, e.g. A2A_RELAY_CACHE_API_KEY.
const EnvPrefix = "A2A_RELAY"

// Store backends.
const (
	StoreMemory = "memory"
	StoreRemote = "remote"
	StoreMySQL  = "mysql"
)

// Bus backends.
const (
	BusLocal  = "local"
	BusRemote = "remote"
)

// Config is the complete server configuration.
type Config struct {
	ListenAddr        string        `mapstructure:"listen_addr"`
	PublicURL         string        `mapstructure:"public_url"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	SettlePeriod      time.Duration `mapstructure:"settle_period"`
	RejectTerminal    bool          `mapstructure:"reject_terminal_tasks"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`

	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Bus       BusConfig       `mapstructure:"bus"`
	Cache     CacheConfig     `mapstructure:"cache"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	Agent a2a.AgentCard `mapstructure:"agent"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects and tunes the task store.
type StoreConfig struct {
	Kind       string        `mapstructure:"kind"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// BusConfig selects and tunes the execution event bus.
type BusConfig struct {
	Kind         string        `mapstructure:"kind"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

// CacheConfig holds the hosted cache credentials used by remote backends.
// BaseURL is derived from APIKey when empty.
type CacheConfig struct {
	Name    string `mapstructure:"name"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// MySQLConfig holds the database connection settings of the mysql store.
type MySQLConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	ConnMaxIdle  time.Duration `mapstructure:"conn_max_idle"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// SetDefaults registers default values of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("keep_alive_interval", 15*time.Second)
	v.SetDefault("settle_period", 250*time.Millisecond)
	v.SetDefault("reject_terminal_tasks", false)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.kind", StoreMemory)
	v.SetDefault("store.ttl", 0)
	v.SetDefault("store.max_entries", 0)

	v.SetDefault("bus.kind", BusLocal)
	v.SetDefault("bus.poll_interval", 100*time.Millisecond)
	v.SetDefault("bus.max_backoff", 5*time.Second)

	v.SetDefault("cache.name", "a2a")
	v.SetDefault("cache.api_key", "")
	v.SetDefault("cache.base_url", "")

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_open_conns", 10)
	v.SetDefault("mysql.conn_max_idle", 5*time.Minute)

	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "a2a-relay")
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("agent.name", "Echo Agent")
	v.SetDefault("agent.description", "Replies with the text it receives.")
	v.SetDefault("agent.version", "1.0.0")
	v.SetDefault("agent.capabilities.streaming", true)
	v.SetDefault("agent.defaultInputModes", []string{"text"})
	v.SetDefault("agent.defaultOutputModes", []string{"text"})
}

// Load reads the configuration file at path, if not empty, and applies environment
// overrides on top of the defaults.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backends have the settings they need.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Kind {
	case StoreMemory:
	case StoreRemote:
		if c.Cache.APIKey == "" {
			errs = append(errs, errors.New("cache.api_key is required for the remote store"))
		}
	case StoreMySQL:
		if c.MySQL.DSN == "" {
			errs = append(errs, errors.New("mysql.dsn is required for the mysql store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}

	switch c.Bus.Kind {
	case BusLocal:
	case BusRemote:
		if c.Cache.APIKey == "" {
			errs = append(errs, errors.New("cache.api_key is required for the remote bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus kind %q", c.Bus.Kind))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
