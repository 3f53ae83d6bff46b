package cache

import (
	"fmt"

	"xsync-go/internal/config"
	"xsync-go/internal/xsync"
)

// NewCacheFromConfig creates a MetadataCache based on the cache config type.
func NewCacheFromConfig(cfg config.CacheConfig, clock xsync.Clock) (xsync.MetadataCache, error) {
	switch cfg.Type {
	case "", "none":
		return NoopCache{}, nil
	case "memory":
		return NewMemoryCache(clock), nil
	case "bolt":
		if cfg.Path == "" {
			return nil, fmt.Errorf("bolt cache requires path to be set")
		}
		c, err := NewBoltCache(cfg.Path, clock)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
