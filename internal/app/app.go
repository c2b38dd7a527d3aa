// Package app wires the promotion core onto the configured storage backend.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/config"
	"github.com/kkkkikiki/promotion/internal/database"
	"github.com/kkkkikiki/promotion/internal/payment"
	"github.com/kkkkikiki/promotion/internal/repository"
	"github.com/kkkkikiki/promotion/internal/repository/memory"
	"github.com/kkkkikiki/promotion/internal/service"
	"github.com/kkkkikiki/promotion/internal/store"
)

// App holds the promotion components shared by the server and the worker
type App struct {
	Store      store.Store
	Allocator  *service.Allocator
	Redemption *service.Redemption
	Queries    *service.Queries

	// nil in memory mode
	DB *database.DB
}

// New opens the configured storage and builds the promotion services on it
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}

	switch cfg.App.Storage {
	case config.StorageMemory:
		a.Store = memory.New(cfg.Database.LockTimeout())
		logger.Warn("using in-memory storage, state is lost on restart")
	default:
		db, err := database.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		a.Store = repository.NewStore(db.Postgres, cfg.Database.LockTimeout())
	}

	gateway := payment.NewSimulated(
		cfg.Payment.SuccessRate,
		time.Duration(cfg.Payment.LatencyMS)*time.Millisecond,
		logger.Named("payment"),
	)
	issuer := service.NewIssuer(cfg.Promotion.CodePrefix, cfg.Promotion.CodeAttempts, time.Now, logger.Named("issuer"))

	a.Allocator = service.NewAllocator(a.Store, issuer, cfg.Promotion.VoucherThreshold, time.Now, logger.Named("allocator"))
	a.Redemption = service.NewRedemption(a.Store, gateway, time.Now, logger.Named("redemption"))
	a.Queries = service.NewQueries(a.Store, cfg.Promotion.VoucherThreshold, time.Now)

	return a, nil
}

// Redis returns the shared redis client, nil in memory mode
func (a *App) Redis() *redis.Client {
	if a.DB == nil {
		return nil
	}
	return a.DB.Redis
}

// Ping checks the storage backend
func (a *App) Ping(ctx context.Context) error {
	if a.DB != nil {
		return a.DB.Ping(ctx)
	}
	return a.Store.Ping(ctx)
}

// Close releases database connections
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
