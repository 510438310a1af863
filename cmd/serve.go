package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/db"
	"github.com/parley-chat/parley/internal/agent"
	"github.com/parley-chat/parley/internal/api"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/credential"
	"github.com/parley-chat/parley/internal/database"
	"github.com/parley-chat/parley/internal/log"
	"github.com/parley-chat/parley/internal/user"
	"github.com/parley-chat/parley/internal/vault"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 10 * time.Minute // SSE turns can stream for a while
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// turnLockAdapter narrows conversation.TurnLocker to the release-func shape
// the orchestrator consumes.
type turnLockAdapter struct {
	locker *conversation.TurnLocker
}

func (a turnLockAdapter) TryLock(ctx context.Context, conversationID int64) (func(), bool, error) {
	lock, ok, err := a.locker.TryLock(ctx, conversationID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return lock.Release, true, nil
}

// runServe initializes every layer and runs the HTTP server until a signal
// arrives.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	isDev := cfg.Environment != "production"
	logger := log.New(log.Config{
		Level: slog.LevelInfo,
		JSON:  !isDev,
	})
	logger.Info("starting parley", "version", AppVersion, "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	lockPool, err := database.ConnectLockPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting lock pool: %w", err)
	}
	defer lockPool.Close()

	encryptionKey, err := cfg.DecodeEncryptionKey()
	if err != nil {
		return fmt.Errorf("decoding encryption key: %w", err)
	}
	keyVault, err := vault.New(encryptionKey)
	if err != nil {
		return fmt.Errorf("creating vault: %w", err)
	}

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), time.Duration(cfg.TokenExpiryMinutes)*time.Minute)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	users, err := user.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating user store: %w", err)
	}
	credentials, err := credential.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating credential store: %w", err)
	}
	conversations, err := conversation.NewStore(pool, logger)
	if err != nil {
		return fmt.Errorf("creating conversation store: %w", err)
	}
	locker, err := conversation.NewTurnLocker(lockPool)
	if err != nil {
		return fmt.Errorf("creating turn locker: %w", err)
	}

	orchestrator, err := chat.NewOrchestrator(
		conversations, credentials, keyVault, agent.Resolve,
		turnLockAdapter{locker: locker}, logger,
		chat.Options{
			HistoryWindow: int(cfg.HistoryWindow),
			ChunkTimeout:  time.Duration(cfg.StreamChunkTimeoutS) * time.Second,
			TurnTimeout:   time.Duration(cfg.StreamTurnTimeoutS) * time.Second,
		},
	)
	if err != nil {
		return fmt.Errorf("creating chat orchestrator: %w", err)
	}

	handler := api.NewHandler(api.Config{
		Logger:        logger,
		Issuer:        issuer,
		Users:         users,
		Credentials:   credentials,
		Conversations: conversations,
		Turns:         orchestrator,
		Sealer:        keyVault,
		DB:            pool,
		CORSOrigins:   cfg.CORSOrigins,
		TrustProxy:    cfg.TrustProxy,
		IsDev:         isDev,
		RatePerMinute: cfg.RatePerMinute,
		RateBurst:     cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
