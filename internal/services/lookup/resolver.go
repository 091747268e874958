package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/DelayBoard/internal/integrations/warehouse"
	"github.com/BearBump/DelayBoard/internal/metrics"
)

const DefaultTimeout = 10 * time.Second

// Resolver turns a warehouse client into a total function: every failure
// (transport, status, payload, timeout, panic) comes back as an empty code.
type Resolver struct {
	client  warehouse.Client
	timeout time.Duration
	metrics *metrics.Registry
}

func NewResolver(client warehouse.Client, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{client: client, timeout: timeout}
}

func (r *Resolver) WithMetrics(m *metrics.Registry) *Resolver {
	r.metrics = m
	return r
}

// Resolve returns the identifier it was given and the warehouse code found
// for it, or "" when none could be found.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, string) {
	if id == "" {
		return id, ""
	}
	return id, r.lookup(ctx, id)
}

func (r *Resolver) lookup(ctx context.Context, id string) (code string) {
	var err error
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			code, err = "", fmt.Errorf("warehouse client panic: %v", p)
		}
		switch {
		case err != nil:
			slog.Warn("warehouse lookup failed", "tracker_code", id, "error", err.Error())
			r.metrics.ObserveLookup(metrics.LookupFailed, time.Since(started))
			code = ""
		case code == "":
			r.metrics.ObserveLookup(metrics.LookupNotFound, time.Since(started))
		default:
			r.metrics.ObserveLookup(metrics.LookupFound, time.Since(started))
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	code, err = r.client.WarehouseCode(callCtx, id)
	return code
}
