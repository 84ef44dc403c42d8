package store

import (
	"context"
	"fmt"

	"github.com/statewatch-hq/statewatch-harvester/internal/config"
)

// Open builds the configured store backend.
func Open(ctx context.Context, cfg *config.Config) (FeedStore, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.StoreBolt:
		return NewBoltStore(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("store backend %q not supported", cfg.StoreBackend)
	}
}
