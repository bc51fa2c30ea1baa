package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/workcal/internal/api"
	"github.com/nhle/workcal/internal/gateway"
	"github.com/nhle/workcal/internal/hub"
	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/store"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	fs := pflag.NewFlagSet("workcal-server", pflag.ContinueOnError)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	fs.String("server-addr", ":3000", "address to listen on")
	fs.String("store-backend", "sqlite", "record store backend: sqlite or memory")
	fs.String("store-path", "", "SQLite database file")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := model.LoadConfig(*configPath, changedOnly(fs))
	if err != nil {
		return err
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	logger.Info("opening store", "backend", cfg.Store.Backend, "path", cfg.Store.Path)
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initial, err := st.Snapshot(ctx, model.OrderOldestFirst)
	if err != nil {
		return fmt.Errorf("reading initial snapshot: %w", err)
	}

	// The hub is created exactly once here and shared by every handler.
	h := hub.New(initial,
		hub.WithQueueDepth(cfg.Hub.QueueDepth),
		hub.WithWriteTimeout(cfg.Hub.WriteTimeout),
		hub.WithLogger(logger.With("component", "hub")),
	)

	opts := []gateway.Option{gateway.WithLogger(logger.With("component", "gateway"))}
	if cfg.Gateway.IdempotencyTTL > 0 {
		opts = append(opts, gateway.WithIdempotency(gateway.NewIdempotencyCache(ctx, cfg.Gateway.IdempotencyTTL)))
	}
	gw := gateway.New(st, h, opts...)

	srv := api.NewServer(gw, h, api.Config{
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		FallbackInterval: cfg.Fallback.Interval,
		PingInterval:     cfg.Hub.PingInterval,
		AuthToken:        cfg.Auth.Token,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		// Fallback streams end with their request context on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr, "records", len(initial.Records), "version", initial.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Push connections are hijacked and ignored by Shutdown; closing the
		// hub ends their handlers.
		h.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown incomplete", "err", err)
			_ = httpServer.Close()
		}
		// Retried hand-offs still read the store, which closes on return.
		gw.Wait()
		return nil
	})

	return g.Wait()
}

// changedOnly returns a flag set holding only the flags given on the command
// line, so that flag defaults never override the config file.
func changedOnly(fs *pflag.FlagSet) *pflag.FlagSet {
	out := pflag.NewFlagSet(fs.Name(), pflag.ContinueOnError)
	fs.Visit(func(f *pflag.Flag) {
		out.AddFlag(f)
	})
	return out
}
