// Package main is the entry point for the worldlink gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"worldlink/application"
	"worldlink/core/event"
	"worldlink/core/eventbus"
	"worldlink/infrastructure/config"
	"worldlink/infrastructure/logging"
	"worldlink/infrastructure/metrics"
	"worldlink/infrastructure/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "worldlink:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("worldlink", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "path to a YAML config file")
		addr        = fs.String("addr", "", "websocket listen address, overrides server.addr")
		metricsAddr = fs.String("metrics-addr", "", "separate listen address for /metrics, overrides server.metrics_addr")
		logLevel    = fs.String("log-level", "", "debug, info, warn or error, overrides log.level")
		printConfig = fs.Bool("print-config", false, "print the effective config as YAML and exit")
	)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(config.EnvPrefix)); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *printConfig {
		return cfg.Write(os.Stdout)
	}

	// Initialize logging (dev: console only, prod: rotating file)
	logger, closeLog, err := logging.Setup(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closeLog()

	logger.Info("Starting worldlink", "addr", cfg.Server.Addr, "path", cfg.Server.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.With(ctx, logger)

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	// Initialize event bus
	eventBus := eventbus.New(&eventbus.Config{Logger: logger, Observer: m})
	defer eventBus.Close()

	// Initialize gateway
	gateway := application.NewGateway(&application.GatewayConfig{
		EventBus: eventBus,
		Metrics:  m,
		Logger:   logger,
		Session:  cfg.SessionConfig(),
	})
	registerHandlers(ctx, gateway, cfg)

	server := transport.NewServer(&transport.ServerConfig{
		Hooks:        gateway.Hooks(),
		Logger:       logger,
		ReadLimit:    cfg.Server.ReadLimit,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, server)
	servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: mux}}
	if cfg.Server.MetricsAddr == "" {
		if cfg.Server.Path != "/metrics" {
			mux.Handle("/metrics", metricsHandler)
		}
	} else {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		servers = append(servers, &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(logging.With(context.Background(), logger), servers, server, gateway)
	})

	err = g.Wait()
	logger.Info("Worldlink stopped")
	return err
}

// shutdown closes the listeners, the live websocket connections and every session.
func shutdown(ctx context.Context, servers []*http.Server, ws *transport.Server, gateway *application.Gateway) error {
	logger := logging.From(ctx)
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ws.Close()
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	gateway.Stop()
	return errors.Join(errs...)
}

// registerHandlers wires the sample behaviour: lifecycle logging and chat echo.
func registerHandlers(ctx context.Context, gateway *application.Gateway, cfg *config.Config) {
	logger := logging.From(ctx)

	gateway.Subscribe(event.NameOpen, func(e event.Event) {
		if ev, ok := e.(*event.Opened); ok {
			logger.Info("Connection opened", "session_id", ev.SessionID())
		}
	})
	gateway.Subscribe(event.NameClose, func(e event.Event) {
		if ev, ok := e.(*event.Closed); ok {
			logger.Info("Connection closed", "session_id", ev.SessionID())
		}
	})
	gateway.Subscribe(event.NamePlayerJoin, func(e event.Event) {
		if ev, ok := e.(*event.PlayerJoin); ok {
			logger.Info("Joined", "session_id", ev.SessionID(), "players", strings.Join(ev.Joined, ", "))
		}
	})
	gateway.Subscribe(event.NamePlayerLeave, func(e event.Event) {
		if ev, ok := e.(*event.PlayerLeave); ok {
			logger.Info("Left", "session_id", ev.SessionID(), "players", strings.Join(ev.Left, ", "))
		}
	})
	gateway.Subscribe(event.NamePlayerMessage, func(e event.Event) {
		ev, ok := e.(*event.PlayerMessage)
		if !ok || ev.Sender == cfg.Chat.GatewayName {
			return
		}
		logger.Info("Message received", "session_id", ev.SessionID(), "sender", ev.Sender, "message", ev.Message)
		if !cfg.Chat.Echo {
			return
		}
		if err := ev.Source().SendMessage(ctx, "", ev.Message); err != nil {
			logger.Warn("Echo failed", "session_id", ev.SessionID(), "error", err)
		}
	})
}
