// Package jobstore persists job records. Updates are keyed field writes, so
// repeating one is harmless.
package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/model"
)

var ErrJobNotFound = errors.New("job not found")

// Store is the job table.
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Update(ctx context.Context, jobID string, u model.JobUpdate) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
}

// Purger is implemented by stores without native expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.JobStoreConfig, redisClient *redis.Client) (Store, error) {
	switch cfg.Driver {
	case "", "redis":
		return NewRedisStore(redisClient), nil
	case "postgres":
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown job store driver %q", cfg.Driver)
	}
}
