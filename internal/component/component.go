package component

import (
	"context"

	"github.com/dunelab/dune/internal/cache"
	"github.com/dunelab/dune/internal/cache/freecache"
	"github.com/dunelab/dune/internal/cache/redis"
	"github.com/dunelab/dune/internal/config"
	"github.com/dunelab/dune/internal/queue"
	"github.com/dunelab/dune/internal/queue/jetstream"
	"github.com/dunelab/dune/internal/storage"
	"github.com/dunelab/dune/internal/storage/minio"
)

func GetCache(ctx context.Context, cacheType string) (cache.Cache, error) {
	switch cacheType {
	case "redis":
		cfg, err := config.GetRedisConfig()
		if err != nil {
			return nil, err
		}
		return redis.NewRedisClient(ctx, cfg)
	default:
		cfg, err := config.GetFreeCacheConfig()
		if err != nil {
			return nil, err
		}
		return freecache.NewFreeCache(cfg), nil
	}
}

func GetQueue() (queue.Queue, error) {
	cfg, err := config.GetNatsConfig()
	if err != nil {
		return nil, err
	}
	return jetstream.NewJetStreamClient(cfg)
}

// GetStorage returns the code archive, or nil when archiving is off.
func GetStorage(archiveCode bool) (storage.Storage, error) {
	if !archiveCode {
		return nil, nil
	}
	cfg, err := config.GetMinioConfig()
	if err != nil {
		return nil, err
	}
	return minio.NewMinioClient(cfg)
}
