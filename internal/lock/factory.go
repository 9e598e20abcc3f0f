package lock

import (
	"fmt"
	"time"

	"starbase-go/internal/config"
	"starbase-go/internal/database"
	"starbase-go/internal/vcs"
)

// NewLockerFromConfig creates the project sync locker. The sqlite type
// keeps leases in db; it is required only for that type.
func NewLockerFromConfig(cfg config.LockConfig, db *database.SQLiteDatabase) (vcs.Locker, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	wait := time.Duration(cfg.WaitSeconds) * time.Second

	switch cfg.Type {
	case "sqlite", "":
		if db == nil {
			return nil, fmt.Errorf("sqlite lock requires a database")
		}
		return database.NewLeaseLocker(db, ttl, wait), nil
	case "redis":
		return NewRedisLocker(Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
			TTL:      ttl,
			Wait:     wait,
		})
	case "local":
		return NewLocalLocker(wait), nil
	default:
		return nil, fmt.Errorf("unknown lock type: %s", cfg.Type)
	}
}
