package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/domain/adherence"
	"github.com/medtrack/medtrack/internal/domain/caretaker"
	"github.com/medtrack/medtrack/internal/domain/identity"
	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/domain/medlog"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/blobstore"
	"github.com/medtrack/medtrack/internal/platform/changefeed"
	"github.com/medtrack/medtrack/internal/platform/db"
	"github.com/medtrack/medtrack/internal/platform/logging"
	"github.com/medtrack/medtrack/internal/platform/middleware"
	"github.com/medtrack/medtrack/internal/platform/websocket"
)

const version = "0.1.0"

// Request bodies other than proof photo uploads are small JSON documents.
const jsonBodyLimit = 1 << 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "medtrack",
		Short:        "Medication adherence tracker",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(mcpCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the medtrack API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

// loadConfig reads and validates configuration and builds the logger. The
// returned cleanup flushes the log file.
func loadConfig(out io.Writer) (*config.Config, zerolog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	logger, closer, err := logging.New(logging.Options{
		Development: cfg.IsDev(),
		File:        cfg.LogFile,
		Level:       zerolog.InfoLevel,
		Stdout:      out,
	})
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, logger, func() { _ = closer.Close() }, nil
}

func runServer(parent context.Context) error {
	cfg, logger, closeLog, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := context.WithCancel(parent)
	defer stop()

	store, err := openObjectStore(cfg)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	a, err := newApp(ctx, cfg, logger, store, cacheTTL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()
	logger.Info().Str("blob_backend", cfg.BlobBackend).Msg("connected to database")

	listener := changefeed.NewListener(cfg.DatabaseURL, a.broker, logger)
	go func() {
		if err := listener.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("change feed listener stopped")
		}
	}()
	// Other server instances write too; their changes arrive through the feed.
	go a.cache.Follow(ctx, a.broker)

	hub := websocket.NewHub()
	e := newServer(a, hub)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer mounts every route on a fresh echo instance.
func newServer(a *app, hub *websocket.Hub) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(jsonBodyLimit, blobstore.MaxFileSize+jsonBodyLimit))
	e.Use(auth.JWTMiddleware(auth.JWTConfig{
		Tokens:      a.tokens,
		Revocations: a.revocations,
		Skipper:     auth.AuthSkipper,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))

	blobstore.NewHandler(a.store).RegisterRoutes(e)
	identity.NewHandler(a.identity).RegisterRoutes(e.Group("/auth"))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Live routes hold a socket open for minutes and take a database
	// connection only while loading, so they stay outside the session scope.
	live := e.Group("/api/v1")
	live.Use(middleware.RateLimit(rateLimitCfg))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(db.SessionMiddleware(a.pool, auth.EchoUserID))

	medication.NewHandler(a.medications).RegisterRoutes(apiV1)
	medlog.NewHandler(a.logs).RegisterRoutes(apiV1)
	adherence.NewHandler(a.adherence).RegisterRoutes(apiV1)

	careHandler := caretaker.NewHandler(a.caretaker, hub, websocket.NewUpgrader(cfg.CORSOrigins), logger)
	careHandler.RegisterRoutes(apiV1)
	careHandler.RegisterLiveRoutes(live)

	return e
}
