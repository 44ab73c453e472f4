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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/a2aproject/a2a-relay/a2asrv"
	"github.com/a2aproject/a2a-relay/a2asrv/eventbus"
	"github.com/a2aproject/a2a-relay/a2asrv/taskstore"
	"github.com/a2aproject/a2a-relay/internal/cacheapi"
	"github.com/a2aproject/a2a-relay/internal/config"
	"github.com/a2aproject/a2a-relay/internal/telemetry"
	"github.com/a2aproject/a2a-relay/log"
)

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON-RPC server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen")); err != nil {
				return err
			}
			if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
				return err
			}
			cfg, err := config.Load(v, *configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().String("listen", ":8080", "address to listen on")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}
	ctx = log.AttachLogger(ctx, logger)

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "telemetry shutdown failed", err)
		}
	}()

	app, err := newApp(ctx, cfg, prometheus.NewRegistry(), tp.TracerProvider)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", cfg.ListenAddr, err)
	}
	server := &http.Server{
		Handler:     app.handler,
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info(ctx, "server started", "addr", listener.Addr().String(), "store", cfg.Store.Kind, "bus", cfg.Bus.Kind)
		if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		log.Info(ctx, "server stopping")
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// app is the wired HTTP surface together with the resources it owns.
type app struct {
	handler http.Handler
	closers []func() error
}

func (a *app) close(ctx context.Context) {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Error(ctx, "failed to release resource", err)
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, tp trace.TracerProvider) (*app, error) {
	result := &app{}
	logger := log.LoggerFrom(ctx)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := a2asrv.NewMetrics(reg)

	var cacheClient *cacheapi.Client
	if cfg.Store.Kind == config.StoreRemote || cfg.Bus.Kind == config.BusRemote {
		var opts []cacheapi.Option
		if cfg.Cache.BaseURL != "" {
			opts = append(opts, cacheapi.WithBaseURL(cfg.Cache.BaseURL))
		}
		client, err := cacheapi.NewClient(cfg.Cache.Name, cfg.Cache.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache client: %w", err)
		}
		cacheClient = client
	}

	store, err := newTaskStore(ctx, cfg, cacheClient, result)
	if err != nil {
		result.close(ctx)
		return nil, err
	}

	var busFactory eventbus.Factory
	if cfg.Bus.Kind == config.BusRemote {
		busConfig := &eventbus.RemoteConfig{
			PollInterval: cfg.Bus.PollInterval,
			RetryPolicy:  &eventbus.ExponentialBackoff{BaseDelay: cfg.Bus.PollInterval, MaxDelay: cfg.Bus.MaxBackoff},
			PollErrors:   metrics.RemotePollErrors,
			Logger:       logger,
		}
		busFactory = func() eventbus.ContextBus { return eventbus.NewRemote(cacheClient, busConfig) }
	}

	options := []a2asrv.RequestHandlerOption{
		a2asrv.WithLogger(logger),
		a2asrv.WithTaskStore(store),
		a2asrv.WithBusManager(eventbus.NewManager(busFactory)),
		a2asrv.WithSettlePeriod(cfg.SettlePeriod),
		a2asrv.WithMetrics(metrics),
		a2asrv.WithTracerProvider(tp),
	}
	if cfg.RejectTerminal {
		options = append(options, a2asrv.WithTerminalTaskPolicy(a2asrv.RejectTerminalTasks))
	}
	handler := a2asrv.NewHandler(newEchoExecutor(), options...)

	card := cfg.Agent
	card.URL = agentURL(cfg.PublicURL, cfg.ListenAddr)

	mux := http.NewServeMux()
	mux.Handle("/", a2asrv.NewJSONRPCHandler(handler, a2asrv.WithKeepAlive(cfg.KeepAliveInterval)))
	mux.Handle(a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(&card))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	result.handler = mux
	return result, nil
}

func newTaskStore(ctx context.Context, cfg *config.Config, cacheClient *cacheapi.Client, owner *app) (taskstore.Store, error) {
	switch cfg.Store.Kind {
	case config.StoreRemote:
		return taskstore.NewRemote(cacheClient, &taskstore.RemoteStoreConfig{TTL: cfg.Store.TTL}), nil
	case config.StoreMySQL:
		db, err := openMySQL(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		owner.closers = append(owner.closers, db.Close)
		store := taskstore.NewSQL(db, &taskstore.SQLStoreConfig{TTL: cfg.Store.TTL})
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return taskstore.NewInMemory(&taskstore.InMemoryStoreConfig{MaxEntries: cfg.Store.MaxEntries, TTL: cfg.Store.TTL}), nil
	}
}

func openMySQL(cfg config.MySQLConfig) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	return db, nil
}

// agentURL returns the public URL or one derived from the listen address.
func agentURL(publicURL, listenAddr string) string {
	if publicURL != "" {
		return publicURL
	}
	if strings.HasPrefix(listenAddr, ":") {
		return "http://localhost" + listenAddr + "/"
	}
	return "http://" + listenAddr + "/"
}

func newLogger(cfg config.LogConfig, out io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(out, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(out, opts)).With("service", "a2a-relay"), nil
}
