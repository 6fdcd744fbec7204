package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkeogan/memosync/internal/config"
	"github.com/pkeogan/memosync/internal/remote"
	"github.com/pkeogan/memosync/internal/review"
	"github.com/pkeogan/memosync/internal/storage"
	syncengine "github.com/pkeogan/memosync/internal/sync"
	"github.com/pkeogan/memosync/internal/web"
)

func main() {
	// 1. Parse flags and load the configuration
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	cfg, err := config.Load(fs)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 2. Open the database
	db, err := storage.Open(config.ExpandPath(cfg.DatabasePath))
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database opened", "path", cfg.DatabasePath)

	// 3. Provision the standard decks
	reviewSvc := review.NewService(db, nil, nil)
	created, err := reviewSvc.ProvisionDecks()
	if err != nil {
		return err
	}
	if created > 0 {
		logger.Info("Provisioned decks", "created", created)
	}

	// 4. Connect the remote backend when configured
	var engine *syncengine.Engine
	if cfg.Sync.Enabled() {
		client := remote.New(cfg.Sync.URL, cfg.Sync.APIKey)
		session, err := client.SignIn(ctx, cfg.Sync.Email, cfg.Sync.Password)
		if err != nil {
			return err
		}
		logger.Info("Signed in", "user", session.User.Email)
		if session.ExpiresBefore(time.Now().Add(time.Hour)) {
			logger.Warn("Session token expires within the hour; pushes may start failing")
		}
		defer func() {
			if err := client.SignOut(context.Background()); err != nil {
				logger.Warn("Sign-out failed", "error", err)
			}
		}()

		engine = syncengine.New(db, client, session.User.ID, syncengine.Config{
			Debounce: cfg.Sync.Debounce,
			Logger:   logger,
		})
		defer engine.Close()

		// Re-create the review service so grades schedule pushes.
		reviewSvc = review.NewService(db, engine, nil)

		engine.FullSync(ctx)
		logger.Info("Initial sync finished", "status", engine.Status())

		sub, err := client.Subscribe(ctx, logger)
		if err != nil {
			logger.Warn("Realtime subscription unavailable", "error", err)
		} else {
			defer sub.Close()
			go engine.Run(ctx, sub.Changes())
		}
	}

	// 5. Serve the API
	server := web.NewServer(db, reviewSvc, engine, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// 6. Drain in-flight requests, then let the deferred cleanup run
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
