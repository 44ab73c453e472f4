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
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":8080" || cfg.Store.Kind != StoreMemory || cfg.Bus.Kind != BusLocal {
		t.Fatalf("Load() = %+v, want in-process defaults on :8080", cfg)
	}
	if cfg.SettlePeriod != 250*time.Millisecond || cfg.Bus.PollInterval != 100*time.Millisecond {
		t.Fatalf("Load() settle = %v, poll = %v, want 250ms and 100ms", cfg.SettlePeriod, cfg.Bus.PollInterval)
	}
	if diff := cmp.Diff([]string{"text"}, cfg.Agent.DefaultInputModes); diff != "" {
		t.Fatalf("Load() wrong agent input modes (-want +got) diff = %s", diff)
	}
	if !cfg.Agent.Capabilities.Streaming {
		t.Fatal("Load() agent card does not advertise streaming")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := `
listen_addr: ":9090"
store:
  kind: remote
  ttl: 10m
bus:
  kind: remote
cache:
  name: tasks
log:
  format: text
agent:
  name: Planner
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}
	t.Setenv("A2A_RELAY_CACHE_API_KEY", "secret")
	t.Setenv("A2A_RELAY_BUS_POLL_INTERVAL", "20ms")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	type summary struct {
		ListenAddr, Store, Bus, Cache, APIKey, Format, Agent string
		TTL, Poll                                            time.Duration
	}
	want := summary{":9090", StoreRemote, BusRemote, "tasks", "secret", "text", "Planner", 10 * time.Minute, 20 * time.Millisecond}
	got := summary{
		cfg.ListenAddr, cfg.Store.Kind, cfg.Bus.Kind, cfg.Cache.Name, cfg.Cache.APIKey, cfg.Log.Format, cfg.Agent.Name,
		cfg.Store.TTL, cfg.Bus.PollInterval,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Load() wrong result (-want +got) diff = %s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() succeeded for a missing file, want error")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store: StoreConfig{Kind: StoreMemory},
			Bus:   BusConfig{Kind: BusLocal},
			Log:   LogConfig{Format: "json"},
		}
	}
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "remote store without key", mutate: func(c *Config) { c.Store.Kind = StoreRemote }, wantErr: "cache.api_key"},
		{name: "remote bus without key", mutate: func(c *Config) { c.Bus.Kind = BusRemote }, wantErr: "cache.api_key"},
		{name: "mysql without dsn", mutate: func(c *Config) { c.Store.Kind = StoreMySQL }, wantErr: "mysql.dsn"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Kind = "redis" }, wantErr: "unknown store kind"},
		{name: "unknown bus", mutate: func(c *Config) { c.Bus.Kind = "kafka" }, wantErr: "unknown bus kind"},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "unknown log format"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}
