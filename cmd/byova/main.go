// Command byova is the virtual-agent voice gateway server. It bridges a
// contact-center audio stream to turn-based conversational backends such
// as AWS Lex.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voicebridge/byova/internal/auth"
	"github.com/voicebridge/byova/internal/config"
	"github.com/voicebridge/byova/internal/gateway"
	"github.com/voicebridge/byova/internal/health"
	"github.com/voicebridge/byova/internal/observe"
	"github.com/voicebridge/byova/internal/segment"
	"github.com/voicebridge/byova/internal/transport"
	"github.com/voicebridge/byova/pkg/connector"
	"github.com/voicebridge/byova/pkg/connector/lex"
	"github.com/voicebridge/byova/pkg/connector/localaudio"
)

// version is stamped by the build.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "byova: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "byova: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("byova starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "byova",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Session router + connectors ───────────────────────────────────────────
	router := gateway.NewRouter(gateway.RouterConfig{
		IdleTimeout:    cfg.Session.IdleTimeout.Std(),
		ReapInterval:   cfg.Session.ReapInterval.Std(),
		BackendTimeout: cfg.Session.BackendTimeout.Std(),
		CleanupGrace:   cfg.Session.CleanupGrace.Std(),
		Segment: segment.Config{
			SilenceThreshold:   cfg.Audio.SilenceThreshold,
			SilenceDuration:    cfg.Audio.SilenceDuration.Std(),
			QuietBandHalfWidth: cfg.Audio.QuietThreshold,
			MaxBufferBytes:     cfg.Audio.MaxBufferBytes,
			Logger:             logger,
		},
		Metrics: metrics,
		Logger:  logger,
	})

	reg := config.NewRegistry()
	registerBuiltinConnectors(reg)
	if err := buildConnectors(ctx, cfg, reg, router); err != nil {
		slog.Error("failed to build connectors", "err", err)
		return 1
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	var validator *auth.Validator
	if cfg.Server.Auth.Enabled {
		validator, err = auth.New(auth.Config{
			HMACSecret:       cfg.Server.Auth.HMACSecret,
			RSAPublicKeyFile: cfg.Server.Auth.RSAPublicKeyFile,
			Issuers:          cfg.Server.Auth.Issuers,
			Audience:         cfg.Server.Auth.Audience,
			Logger:           logger,
		})
		if err != nil {
			slog.Error("failed to initialise auth", "err", err)
			return 1
		}
	} else {
		slog.Warn("stream authentication is disabled")
	}

	// ── HTTP servers ──────────────────────────────────────────────────────────
	streamSrv := transport.New(transport.Config{
		Router:    router,
		Validator: validator,
		Logger:    logger,
	})
	streamHTTP := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: streamSrv.Handler(),
	}

	healthHandler := health.New(router, health.Checker{
		Name: "agents",
		Check: func(ctx context.Context) error {
			if len(router.Agents()) == 0 {
				return errors.New("no agents registered")
			}
			return nil
		},
	})
	monitoringMux := http.NewServeMux()
	healthHandler.Register(monitoringMux)
	monitoringMux.Handle("GET /metrics", promhttp.Handler())
	monitoringHTTP := &http.Server{
		Addr:    cfg.Monitoring.ListenAddr,
		Handler: monitoringMux,
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("stream endpoint listening", "addr", cfg.Server.ListenAddr)
		if err := streamHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stream server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("monitoring endpoint listening", "addr", cfg.Monitoring.ListenAddr)
		if err := monitoringHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("monitoring server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := router.RunReaper(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("session reaper: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		var errs []error
		errs = append(errs, streamHTTP.Shutdown(shutdownCtx))
		errs = append(errs, monitoringHTTP.Shutdown(shutdownCtx))
		return errors.Join(errs...)
	})

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinConnectors wires the connector factories that ship with
// the gateway into reg. The config file selects among them by name.
func registerBuiltinConnectors(reg *config.Registry) {
	reg.Register("aws_lex", func(ctx context.Context, entry config.ConnectorEntry) (connector.Connector, error) {
		return lex.New(ctx, lex.Config{
			Region:          entry.Region,
			AccessKeyID:     entry.AccessKeyID,
			SecretAccessKey: entry.SecretAccessKey,
			BotAliasID:      entry.BotAliasID,
			LocaleID:        entry.LocaleID,
		})
	})
	reg.Register("local_audio", func(ctx context.Context, entry config.ConnectorEntry) (connector.Connector, error) {
		return localaudio.New(localaudio.Config{
			AudioDir: entry.AudioDir,
			AgentID:  entry.AgentID,
		}), nil
	})
}

// buildConnectors instantiates every enabled connector and registers its
// agents with the router.
func buildConnectors(ctx context.Context, cfg *config.Config, reg *config.Registry, router *gateway.Router) error {
	for name, entry := range cfg.Connectors {
		if !entry.Enabled {
			continue
		}
		conn, err := reg.Create(ctx, name, entry)
		if err != nil {
			return fmt.Errorf("create connector %s: %w", name, err)
		}
		if err := router.RegisterConnector(ctx, name, conn); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
