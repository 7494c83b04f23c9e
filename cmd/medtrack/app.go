package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

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
	"github.com/medtrack/medtrack/internal/platform/querycache"
)

const (
	cacheTTL           = 5 * time.Minute
	revocationInterval = 10 * time.Minute
)

// CLI and MCP processes run no change feed listener, so nothing would tell
// their cache about writes made by the server. They read through instead.
const cliCacheTTL = 0

// app holds the services shared by serve, report and mcp.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	cache       *querycache.Cache
	tokens      *auth.Tokens
	revocations *auth.TokenRevocationStore
	store       blobstore.ObjectStore
	broker      *changefeed.Broker

	identity    *identity.Service
	medications *medication.Service
	logs        *medlog.Service
	adherence   *adherence.Service
	caretaker   *caretaker.Service
}

func openObjectStore(cfg *config.Config) (blobstore.ObjectStore, error) {
	switch cfg.BlobBackend {
	case "badger":
		b, err := blobstore.OpenBadger(cfg.BlobDir)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory", "":
		return blobstore.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// userScope runs fn on a connection whose row level security identity is
// userID. Long lived consumers use it instead of the per-request middleware.
func userScope(pool *pgxpool.Pool) func(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	return func(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
		return db.WithUserConn(ctx, pool, userID, fn)
	}
}

// newApp connects to the database and builds every service on top of store.
// The app owns store from here on. Query results are cached for ttl.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, store blobstore.ObjectStore, ttl time.Duration) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		cache:       querycache.New(ttl),
		tokens:      auth.NewTokens([]byte(cfg.AuthSigningKey), cfg.AuthTokenTTL),
		revocations: auth.NewTokenRevocationStore(revocationInterval),
		store:       store,
		broker:      changefeed.NewBroker(logger),
	}

	a.identity = identity.NewService(identity.NewRepoPG(pool), a.tokens, a.revocations, logger)
	a.medications = medication.NewService(medication.NewRepoPG(pool), a.cache)

	logRepo := medlog.NewRepoPG(pool)
	a.logs = medlog.NewService(logRepo, a.medications, store, a.cache, medlog.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		Location:      loc,
	})
	a.adherence = adherence.NewService(a.medications, a.logs)
	a.caretaker = caretaker.NewService(caretaker.NewRepoPG(pool), logRepo, a.cache, a.broker, caretaker.Options{
		Scope:  userScope(pool),
		Today:  a.logs.Today,
		Logger: logger,
	})
	return a, nil
}

func (a *app) Close() {
	a.revocations.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close object store")
	}
	a.pool.Close()
}
