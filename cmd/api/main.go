package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/cryptobook/cmd/api/graph"
	"github.com/alim08/cryptobook/pkg/auth"
	"github.com/alim08/cryptobook/pkg/catalog"
	"github.com/alim08/cryptobook/pkg/config"
	"github.com/alim08/cryptobook/pkg/database"
	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/pubsub"
	"github.com/alim08/cryptobook/pkg/redisclient"
	"github.com/alim08/cryptobook/pkg/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Initialize logger
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Log.Sync()

	if err := run(); err != nil {
		logger.Log.Fatal("api server failed", zap.Error(err))
	}
}

func run() error {
	log := logger.Log
	log.Info("starting cryptobook API server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Info("configuration loaded",
		zap.Int("port", cfg.HTTPPort),
		zap.String("store", cfg.StoreBackend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recordStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	// trades reference the seed users by id, so the store must hold them
	// under the same identifiers before the first request
	cat := catalog.Default()
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	seeded, err := store.Seed(sctx, recordStore, cat.SeedUsers())
	cancel()
	if err != nil {
		recordStore.Close()
		return fmt.Errorf("failed to seed record store: %w", err)
	}
	log.Info("record store seeded", zap.Int("created", seeded))

	gate, err := newGate(cfg)
	if err != nil {
		recordStore.Close()
		return err
	}

	registry := pubsub.NewRegistry(cfg.SubscriberBuffer)
	resolver := graph.NewResolver(recordStore, cat, registry)
	dispatcher, err := graph.NewDispatcher(resolver)
	if err != nil {
		recordStore.Close()
		return err
	}

	srv := newServer(cfg, dispatcher, recordStore, gate)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// stop accepting and drain in-flight requests, then end the streams,
		// then the sockets carrying them, and finally the store
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		registry.Close()
		if err := srv.closeSockets(shutdownCtx); err != nil {
			log.Warn("websocket sessions did not finish in time", zap.Error(err))
		}
		if err := recordStore.Close(); err != nil {
			log.Error("failed to close record store", zap.Error(err))
		}
		log.Info("server exited")
		return nil
	})
	return g.Wait()
}

// openStore connects the configured record store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.RecordStore, error) {
	log := logger.Log

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.New(ctx, database.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := db.RunMigrations(mctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		log.Info("database migrations completed")
		return database.NewUserStore(db), nil

	case config.BackendRedis:
		client, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure Redis: %w", err)
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("connected to Redis")
		return redisclient.NewUserStore(client), nil

	default:
		log.Warn("using in-memory record store; users are lost on restart")
		return store.NewMemory(), nil
	}
}

// newGate builds the addUser authorization gate from ADMIN_HOST and the JWT
// settings.
func newGate(cfg *config.Config) (*auth.Gate, error) {
	var tokens *auth.TokenService
	authCfg := auth.NewConfig()
	if authCfg.Enabled() {
		var err error
		tokens, err = auth.NewTokenService(authCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token service: %w", err)
		}
	}

	gate := auth.NewGate(tokens, cfg.AdminHost)
	if gate.Open() {
		logger.Log.Warn("no ADMIN_HOST or JWT key configured; addUser is open to every caller")
	}
	return gate, nil
}
