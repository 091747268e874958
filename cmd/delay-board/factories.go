package main

import (
	"hash/fnv"
	"time"

	"github.com/BearBump/DelayBoard/config"
	"github.com/BearBump/DelayBoard/internal/broker/kafka"
	"github.com/BearBump/DelayBoard/internal/cache"
	"github.com/BearBump/DelayBoard/internal/cache/rediscache"
	"github.com/BearBump/DelayBoard/internal/integrations/marketplace"
	mpfake "github.com/BearBump/DelayBoard/internal/integrations/marketplace/fake"
	"github.com/BearBump/DelayBoard/internal/integrations/marketplace/trendyol"
	"github.com/BearBump/DelayBoard/internal/integrations/warehouse"
	whfake "github.com/BearBump/DelayBoard/internal/integrations/warehouse/fake"
	"github.com/BearBump/DelayBoard/internal/integrations/warehouse/hamurlabs"
	"github.com/BearBump/DelayBoard/internal/services/lookup"
	"github.com/BearBump/DelayBoard/internal/services/pipeline"
	"github.com/BearBump/DelayBoard/internal/stores"
	"github.com/pkg/errors"
)

type boardFactories struct {
	newLister        func(cfg *config.Config, acc config.AccountConfig) marketplace.Lister
	newWarehouse     func(cfg *config.Config, dir *stores.Directory) (warehouse.Client, error)
	newSnapshotCache func(cfg *config.Config, session string) (c cache.BytesCache, closeFn func())
	newRateLimiter   func(cfg *config.Config) (rl lookup.RateLimiter, closeFn func())
	newNotifier      func(cfg *config.Config) (n pipeline.Notifier, closeFn func())
}

func defaultBoardFactories() boardFactories {
	return boardFactories{
		newLister: func(cfg *config.Config, acc config.AccountConfig) marketplace.Lister {
			if cfg.Marketplace.Mode == "fake" {
				return mpfake.New(seedFor(acc.ID))
			}
			return trendyol.New(cfg.Marketplace.BaseURL, acc.SellerID, acc.Username, acc.Password)
		},
		newWarehouse: func(cfg *config.Config, dir *stores.Directory) (warehouse.Client, error) {
			if cfg.Warehouse.Mode == "fake" {
				return whfake.New(dir.Codes()), nil
			}
			if cfg.Warehouse.BaseURL == "" {
				return nil, errors.New("warehouse.base_url is required unless warehouse.mode is fake")
			}
			c := hamurlabs.New(cfg.Warehouse.BaseURL, cfg.Warehouse.Username, cfg.Warehouse.Password, cfg.Warehouse.CompanyID)
			c.WithWindow(time.Duration(cfg.Warehouse.WindowDays) * 24 * time.Hour)
			c.WithTimeout(time.Duration(cfg.Warehouse.TimeoutSeconds) * time.Second)
			return c, nil
		},
		newSnapshotCache: func(cfg *config.Config, session string) (cache.BytesCache, func()) {
			if cfg.DelayBoard.SnapshotCache == "redis" && cfg.Redis.Enabled() {
				rc := rediscache.New(cfg.Redis.Addr()).WithPrefix("delayboard:" + session + ":")
				return rc, func() { _ = rc.Close() }
			}
			return cache.NewMemory(), nil
		},
		newRateLimiter: func(cfg *config.Config) (lookup.RateLimiter, func()) {
			if cfg.Warehouse.RateLimitPerMinute <= 0 || !cfg.Redis.Enabled() {
				return nil, nil
			}
			rl := rediscache.NewRateLimiter(cfg.Redis.Addr())
			return rl, func() { _ = rl.Close() }
		},
		newNotifier: func(cfg *config.Config) (pipeline.Notifier, func()) {
			if !cfg.Kafka.Enabled() {
				return nil, nil
			}
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return p, func() { _ = p.Close() }
		},
	}
}

// seedFor keeps generated fake orders stable per account across restarts.
func seedFor(accountID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(accountID))
	return int64(h.Sum64() >> 1)
}
