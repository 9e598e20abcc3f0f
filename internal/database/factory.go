package database

import (
	"fmt"
	"path/filepath"

	"starbase-go/internal/config"
)

// NewDatabaseFromConfig opens the database described by cfg.
// Both supported types are SQLite, so the concrete type is returned for
// callers that also need migrations, backups and operation tracking.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, instanceID string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		dbPath := filepath.Join(cfg.DataDir, instanceID+".db")
		return NewSQLiteDatabase(dbPath)
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
