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

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/manpreetbhatti/menuroom/internal/api"
	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/config"
	"github.com/manpreetbhatti/menuroom/internal/db"
	"github.com/manpreetbhatti/menuroom/internal/history"
	"github.com/manpreetbhatti/menuroom/internal/presence"
	"github.com/manpreetbhatti/menuroom/internal/ratelimit"
	"github.com/manpreetbhatti/menuroom/internal/room"
	"github.com/manpreetbhatti/menuroom/internal/serializer"
	"github.com/manpreetbhatti/menuroom/internal/store"
	"github.com/manpreetbhatti/menuroom/internal/ws"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2

	shutdownTimeout = 10 * time.Second
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "menuroom: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	flags := pflag.NewFlagSet("menuroom", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "optional .env file read before the environment")
	addr := flags.String("addr", "", "listen address, overrides PORT")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK, nil
		}
		return exitConfig, err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return exitConfig, err
	}
	if *addr == "" {
		*addr = cfg.Addr()
	}

	logger := logs.GetLoggerFromString(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database...")
		_ = database.Close()
	}()

	if cfg.CatalogSeed != "" {
		items, err := catalog.LoadSeed(cfg.CatalogSeed)
		if err != nil {
			return exitConfig, err
		}
		if err := database.UpsertCatalogItems(ctx, items); err != nil {
			return exitRuntime, fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("Catalog seeded", "path", cfg.CatalogSeed, "items", len(items))
	}

	rooms, closeStore, err := openStore(ctx, cfg, database)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	limiters := ratelimit.NewClientLimiters(cfg.MessagesPerSecond, cfg.MessageBurst)
	defer limiters.Stop()

	hub := ws.NewHub(limiters, cfg.Origins(), logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	queue := serializer.New(logger)
	versions := history.New(database, rooms, history.Config{
		Interval: cfg.AutosaveInterval,
		KeepAuto: cfg.AutosaveKeep,
	}, logger)
	service := room.NewService(rooms, database, queue, presence.NewRegistry(), hub, logger,
		room.WithCommitHook(versions.Touch))

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              *addr,
		Handler:           api.New(hub, service, database, versions, logger).Router(cfg.Origins()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	versions.Start()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Menu room server starting", "addr", *addr, "store", cfg.Store, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			versions.Stop(context.Background())
			return exitRuntime, fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	// Closing the hub ends every websocket. Read pumps may still be
	// submitting, so the queue stops admitting work before it drains and the
	// last autosave runs.
	stopHub()
	queue.Close()
	versions.Stop(shutdownCtx)
	return exitOK, nil
}

// openStore returns the room document store selected by MENUROOM_STORE and
// a function releasing it.
func openStore(ctx context.Context, cfg config.Config, database *db.Database) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		mongoStore, err := store.OpenMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		return mongoStore, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoStore.Close(closeCtx)
		}, nil
	case config.StoreMemory:
		return store.NewMemory(), func() {}, nil
	default:
		return database, func() {}, nil
	}
}
