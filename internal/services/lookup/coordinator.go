package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/DelayBoard/internal/metrics"
)

const DefaultConcurrency = 10

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Coordinator fans warehouse lookups out over a bounded pool of workers.
// Workers only write into the coordinator-owned result map.
type Coordinator struct {
	resolver *Resolver
	metrics  *metrics.Registry

	concurrency        int
	rl                 RateLimiter
	rateLimitPerMinute int64

	startedAtUnixNano int64
	lastBatchUnixNano atomic.Int64
	totalBatches      atomic.Int64
	totalLookups      atomic.Int64
	totalEmpty        atomic.Int64
	inFlight          atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func NewCoordinator(resolver *Resolver) *Coordinator {
	return &Coordinator{
		resolver:          resolver,
		concurrency:       DefaultConcurrency,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// WithSettings sets the pool ceiling. Non-positive values keep the default.
func (c *Coordinator) WithSettings(concurrency int) *Coordinator {
	if concurrency > 0 {
		c.concurrency = concurrency
	}
	return c
}

// WithRateLimit delays lookups beyond perMinute in a rolling minute window.
// The limiter is shared, so several instances respect one upstream budget.
func (c *Coordinator) WithRateLimit(rl RateLimiter, perMinute int64) *Coordinator {
	c.rl = rl
	c.rateLimitPerMinute = perMinute
	return c
}

func (c *Coordinator) WithMetrics(m *metrics.Registry) *Coordinator {
	c.metrics = m
	return c
}

type Stats struct {
	StartedAt    time.Time  `json:"startedAt"`
	LastBatchAt  *time.Time `json:"lastBatchAt,omitempty"`
	Concurrency  int        `json:"concurrency"`
	TotalBatches int64      `json:"totalBatches"`
	TotalLookups int64      `json:"totalLookups"`
	TotalEmpty   int64      `json:"totalEmpty"`
	InFlight     int64      `json:"inFlight"`
	LastError    string     `json:"lastError,omitempty"`
}

func (c *Coordinator) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, c.startedAtUnixNano).UTC(),
		Concurrency:  c.concurrency,
		TotalBatches: c.totalBatches.Load(),
		TotalLookups: c.totalLookups.Load(),
		TotalEmpty:   c.totalEmpty.Load(),
		InFlight:     c.inFlight.Load(),
	}
	if n := c.lastBatchUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastBatchAt = &t
	}
	c.lastErrorMu.Lock()
	st.LastError = c.lastError
	c.lastErrorMu.Unlock()
	return st
}

// ResolveAll looks up every distinct identifier and returns once all of them
// finished. The result has exactly one entry per distinct identifier; failed
// lookups map to "".
func (c *Coordinator) ResolveAll(ctx context.Context, ids []string) map[string]string {
	c.lastBatchUnixNano.Store(time.Now().UTC().UnixNano())
	c.totalBatches.Add(1)

	out := make(map[string]string, len(ids))
	seen := make(map[string]struct{}, len(ids))
	var mu sync.Mutex

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		// Reserve the entry so a panicking worker still leaves one behind.
		mu.Lock()
		out[id] = ""
		mu.Unlock()

		sem <- struct{}{}
		wg.Add(1)
		idCopy := id
		c.inFlight.Add(1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					c.recordError(fmt.Errorf("lookup %s: %v", idCopy, p))
				}
				c.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			c.throttle(ctx)
			_, code := c.resolver.Resolve(ctx, idCopy)
			c.totalLookups.Add(1)
			if code == "" {
				c.totalEmpty.Add(1)
			}
			mu.Lock()
			out[idCopy] = code
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (c *Coordinator) throttle(ctx context.Context) {
	if c.rl == nil || c.rateLimitPerMinute <= 0 {
		return
	}
	minuteKey := fmt.Sprintf("rl:warehouse:%s", time.Now().UTC().Format("200601021504"))
	allowed, n, err := c.rl.Allow(ctx, minuteKey, c.rateLimitPerMinute, 70*time.Second)
	if err != nil {
		// The limiter is advisory; a broken limiter must not block lookups.
		c.recordError(err)
		slog.Warn("warehouse rate limiter", "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("warehouse rate limit exceeded", "count", n)
		c.metrics.ObserveRateLimited()
		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (c *Coordinator) recordError(err error) {
	c.lastErrorMu.Lock()
	c.lastError = err.Error()
	c.lastErrorMu.Unlock()
}
