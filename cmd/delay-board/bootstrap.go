package main

import (
	"time"

	"github.com/BearBump/DelayBoard/config"
	boardapi "github.com/BearBump/DelayBoard/internal/api/board_api"
	"github.com/BearBump/DelayBoard/internal/cache"
	"github.com/BearBump/DelayBoard/internal/integrations/marketplace"
	"github.com/BearBump/DelayBoard/internal/metrics"
	"github.com/BearBump/DelayBoard/internal/models"
	"github.com/BearBump/DelayBoard/internal/services/deadline"
	"github.com/BearBump/DelayBoard/internal/services/lookup"
	"github.com/BearBump/DelayBoard/internal/services/pipeline"
	"github.com/BearBump/DelayBoard/internal/services/snapshots"
	"github.com/BearBump/DelayBoard/internal/stores"
	"github.com/google/uuid"
)

const defaultOverdueTopic = "orders.overdue"

// board is the wired delay-board service.
type board struct {
	cfg     *config.Config
	session string

	directory   *stores.Directory
	coordinator *lookup.Coordinator
	snapCache   cache.BytesCache
	snapshots   *snapshots.Service
	orch        *pipeline.Orchestrator
	api         *boardapi.BoardAPI
	metrics     *metrics.Registry

	closers []func()
}

func buildBoard(cfg *config.Config, f boardFactories) (*board, error) {
	b := &board{
		cfg:     cfg,
		session: uuid.NewString(),
		metrics: metrics.NewRegistry(),
	}

	offset := deadline.DefaultOffsetHours
	if cfg.DelayBoard.TimezoneOffsetHours != nil {
		offset = *cfg.DelayBoard.TimezoneOffsetHours
	}
	clock := deadline.NewClock(deadline.OperatingZone(offset), nil)

	b.directory = stores.New(stores.DefaultBranches, cfg.Stores)

	keys, err := pipeline.ParseKeySelector(cfg.Warehouse.LookupKey)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Warehouse.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = lookup.DefaultTimeout
	}
	concurrency := cfg.Warehouse.Concurrency
	if concurrency <= 0 {
		concurrency = lookup.DefaultConcurrency
	}
	wh, err := f.newWarehouse(cfg, b.directory)
	if err != nil {
		return nil, err
	}
	resolver := lookup.NewResolver(wh, timeout).WithMetrics(b.metrics)
	b.coordinator = lookup.NewCoordinator(resolver).WithSettings(concurrency).WithMetrics(b.metrics)
	if rl, closeFn := f.newRateLimiter(cfg); rl != nil {
		b.coordinator.WithRateLimit(rl, int64(cfg.Warehouse.RateLimitPerMinute))
		b.addCloser(closeFn)
	}

	ttl := time.Duration(cfg.DelayBoard.SnapshotTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	snapCache, closeCache := f.newSnapshotCache(cfg, b.session)
	b.addCloser(closeCache)
	b.snapCache = snapCache
	b.snapshots = snapshots.New(snapCache, ttl)

	accounts := make([]pipeline.Account, 0, len(cfg.Marketplace.Accounts))
	for _, acc := range cfg.Marketplace.Accounts {
		accounts = append(accounts, pipeline.Account{ID: acc.ID, Lister: f.newLister(cfg, acc)})
	}

	statuses := models.TrackedStatuses
	if len(cfg.Marketplace.Statuses) > 0 {
		statuses = make([]models.OrderStatus, 0, len(cfg.Marketplace.Statuses))
		for _, s := range cfg.Marketplace.Statuses {
			statuses = append(statuses, models.OrderStatus(s))
		}
	}

	b.orch = pipeline.New(accounts, clock, b.coordinator, b.directory, b.snapshots).
		WithKeySelector(keys).
		WithFetchOptions(marketplace.FetchOptions{
			Statuses: statuses,
			PageSize: cfg.Marketplace.PageSize,
			Window:   time.Duration(cfg.Marketplace.WindowDays) * 24 * time.Hour,
		}).
		WithMetrics(b.metrics)

	if n, closeFn := f.newNotifier(cfg); n != nil {
		topic := cfg.Kafka.OrderOverdueTopicName
		if topic == "" {
			topic = defaultOverdueTopic
		}
		b.orch.WithNotifier(n, topic)
		b.addCloser(closeFn)
	}

	b.api = boardapi.New(b.orch, b.snapshots, b.directory).
		WithRefreshTimeout(time.Duration(cfg.DelayBoard.RefreshTimeoutSeconds) * time.Second)
	return b, nil
}

func (b *board) addCloser(fn func()) {
	if fn != nil {
		b.closers = append(b.closers, fn)
	}
}

func (b *board) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
