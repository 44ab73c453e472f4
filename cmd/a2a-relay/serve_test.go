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
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2aclient"
	"github.com/a2aproject/a2a-relay/a2asrv"
	"github.com/a2aproject/a2a-relay/internal/config"
	"github.com/a2aproject/a2a-relay/internal/testutil"
)

func newTestConfig() *config.Config {
	return &config.Config{
		ListenAddr:        "127.0.0.1:0",
		KeepAliveInterval: time.Second,
		SettlePeriod:      50 * time.Millisecond,
		ShutdownTimeout:   time.Second,
		Log:               config.LogConfig{Level: "info", Format: "json"},
		Store:             config.StoreConfig{Kind: config.StoreMemory},
		Bus:               config.BusConfig{Kind: config.BusLocal},
		Cache:             config.CacheConfig{Name: "relay"},
		Telemetry:         config.TelemetryConfig{Exporter: "none"},
		Agent: a2a.AgentCard{
			Name:         "Echo Agent",
			Version:      "1.0.0",
			Capabilities: a2a.AgentCapabilities{Streaming: true},
		},
	}
}

func startApp(t *testing.T, cfg *config.Config) (*httptest.Server, *a2aclient.Client) {
	t.Helper()
	app, err := newApp(t.Context(), cfg, prometheus.NewRegistry(), nooptrace.NewTracerProvider())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { app.close(context.Background()) })

	server := httptest.NewServer(app.handler)
	t.Cleanup(server.Close)
	return server, a2aclient.NewClient(server.URL+"/", a2aclient.WithHTTPClient(server.Client()))
}

func fetch(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("http.Get(%s) error = %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("http.Get(%s) status = %d, want 200", url, resp.StatusCode)
	}
	return string(body)
}

func echoParams(taskID a2a.TaskID, texts ...string) *a2a.TaskSendParams {
	var parts a2a.ContentParts
	for _, text := range texts {
		parts = append(parts, a2a.NewTextPart(text))
	}
	return &a2a.TaskSendParams{ID: taskID, Message: a2a.NewMessage(a2a.MessageRoleUser, parts...)}
}

func TestApp_InMemory(t *testing.T) {
	ctx := t.Context()
	server, client := startApp(t, newTestConfig())

	task, err := client.SendTask(ctx, echoParams("t1", "hello", "world"))
	if err != nil {
		t.Fatalf("client.SendTask() error = %v", err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("client.SendTask() state = %q, want %q", task.Status.State, a2a.TaskStateCompleted)
	}
	if got := task.Status.Message.Parts[0].Text(); got != "hello\nworld" {
		t.Fatalf("client.SendTask() reply = %q, want %q", got, "hello\nworld")
	}
	if len(task.Artifacts) != 1 || task.Artifacts[0].Name != "echo" {
		t.Fatalf("client.SendTask() artifacts = %+v, want one echo artifact", task.Artifacts)
	}

	metrics := fetch(t, server.URL+"/metrics")
	for _, want := range []string{
		"a2a_relay_tasks_started_total 1",
		`a2a_relay_tasks_finished_total{state="completed"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("/metrics does not contain %q", want)
		}
	}

	var card a2a.AgentCard
	if err := json.Unmarshal([]byte(fetch(t, server.URL+a2asrv.WellKnownAgentCardPath)), &card); err != nil {
		t.Fatalf("json.Unmarshal(card) error = %v", err)
	}
	if card.Name != "Echo Agent" || card.URL != "http://127.0.0.1:0/" {
		t.Fatalf("agent card = %+v, want Echo Agent at the listen address", card)
	}
}

func TestApp_RemoteBackends(t *testing.T) {
	ctx := t.Context()
	cache := testutil.NewFakeCacheServer(t)
	cfg := newTestConfig()
	cfg.Store.Kind = config.StoreRemote
	cfg.Bus = config.BusConfig{Kind: config.BusRemote, PollInterval: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	cfg.Cache = config.CacheConfig{Name: "relay", APIKey: testutil.TestAPIKey, BaseURL: cache.URL}
	cfg.PublicURL = "https://agents.example.com/echo"
	_, client := startApp(t, cfg)

	params := echoParams("t1", "ping")
	params.ContextID = "ctx-1"
	var kinds []string
	for event, err := range client.SendTaskSubscribe(ctx, params) {
		if err != nil {
			t.Fatalf("client.SendTaskSubscribe() error = %v", err)
		}
		kinds = append(kinds, event.Kind())
	}

	want := []string{a2a.KindStatusUpdate, a2a.KindArtifactUpdate, a2a.KindStatusUpdate}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("client.SendTaskSubscribe() wrong events (-want +got) diff = %s", diff)
	}
	if got := len(cache.Published("ctx-1")); got != 3 {
		t.Fatalf("published events = %d, want 3", got)
	}
	if _, ok := cache.Item("t1"); !ok {
		t.Fatal("task snapshot was not written to the cache")
	}

	task, err := client.GetTask(ctx, &a2a.TaskQueryParams{ID: "t1"})
	if err != nil {
		t.Fatalf("client.GetTask() error = %v", err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("client.GetTask() state = %q, want %q", task.Status.State, a2a.TaskStateCompleted)
	}
}

func TestApp_InvalidMySQLDSN(t *testing.T) {
	cfg := newTestConfig()
	cfg.Store.Kind = config.StoreMySQL
	cfg.MySQL.DSN = "not a dsn"

	if _, err := newApp(t.Context(), cfg, prometheus.NewRegistry(), nooptrace.NewTracerProvider()); err == nil {
		t.Fatal("newApp() succeeded for an invalid dsn, want error")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	var logs bytes.Buffer
	go func() { errc <- serve(ctx, newTestConfig(), &logs) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not stop after cancelation")
	}
}

func TestServe_BindError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer listener.Close()

	cfg := newTestConfig()
	cfg.ListenAddr = listener.Addr().String()
	if err := serve(t.Context(), cfg, io.Discard); err == nil {
		t.Fatal("serve() succeeded on a busy address, want error")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Debug("polling", "context_id", "ctx-1")
	if !strings.Contains(buf.String(), "level=DEBUG") || !strings.Contains(buf.String(), "context_id=ctx-1") {
		t.Fatalf("logger output = %q, want debug text record", buf.String())
	}

	buf.Reset()
	logger, err = newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("logger output = %q, want info record dropped at warn level", buf.String())
	}

	if _, err := newLogger(config.LogConfig{Level: "verbose"}, &buf); err == nil {
		t.Fatal("newLogger() succeeded for an unknown level, want error")
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("cmd.Execute() error = %v", err)
	}
	if got, want := out.String(), "a2a-relay dev\n"; got != want {
		t.Fatalf("version output = %q, want %q", got, want)
	}
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	t.Setenv("A2A_RELAY_STORE_KIND", "redis")
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"serve"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown store kind") {
		t.Fatalf("cmd.Execute() error = %v, want unknown store kind", err)
	}
}
