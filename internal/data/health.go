package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Names of the backing stores reported by HealthRepo.
const (
	StoreRedis    = "redis"
	StoreDatabase = "database"
)

// HealthRepo pings the backing stores.
type HealthRepo struct {
	rdb *redis.Client
	db  *gorm.DB
	log *log.Helper
}

// NewHealthRepo creates a new HealthRepo.
func NewHealthRepo(d *Data, db *gorm.DB, logger log.Logger) *HealthRepo {
	return &HealthRepo{
		rdb: d.GetRedisClient(),
		db:  db,
		log: log.NewHelper(logger),
	}
}

// Ping checks every store and returns a nil error for each healthy one.
func (r *HealthRepo) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		StoreRedis:    r.pingRedis(ctx),
		StoreDatabase: r.pingDatabase(ctx),
	}
}

func (r *HealthRepo) pingRedis(ctx context.Context) error {
	if r.rdb == nil {
		return errors.New("redis client not configured")
	}
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *HealthRepo) pingDatabase(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
