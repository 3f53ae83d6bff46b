package database

import (
	"fmt"

	"xsync-go/internal/config"
)

// NewRegistryFromConfig opens the registry selected by cfg.Type. Memory
// databases are migrated immediately since nothing else could do it.
func NewRegistryFromConfig(cfg config.DatabaseConfig) (*SQLiteRegistry, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		return NewSQLiteRegistry(cfg.Path, nil, nil)
	case "memory":
		r, err := NewSQLiteRegistry(":memory:", nil, nil)
		if err != nil {
			return nil, err
		}
		if err := r.Migrate(); err != nil {
			r.Close()
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
