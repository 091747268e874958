package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcomes.
const (
	LookupFound    = "found"
	LookupNotFound = "not_found"
	LookupFailed   = "failed"
)

// Registry holds the service metrics. A nil *Registry is valid and records
// nothing, so components can run without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	Refreshes       *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	Lookups         *prometheus.CounterVec
	LookupDuration  prometheus.Histogram
	RateLimited     prometheus.Counter
	OrdersByBucket  *prometheus.GaugeVec
	DroppedRecords  *prometheus.CounterVec
	FetchFailures   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayboard_refresh_total",
		Help: "Refresh cycles by account and result.",
	}, []string{"account", "result"})
	refreshDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "delayboard_refresh_duration_seconds",
		Help:    "Wall time of a refresh cycle.",
		Buckets: prometheus.DefBuckets,
	}, []string{"account"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayboard_warehouse_lookup_total",
		Help: "Warehouse lookups by outcome.",
	}, []string{"result"})
	lookupDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "delayboard_warehouse_lookup_duration_seconds",
		Help:    "Latency of a single warehouse lookup.",
		Buckets: prometheus.DefBuckets,
	})
	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delayboard_warehouse_lookup_rate_limited_total",
		Help: "Lookups delayed by the outbound rate limit.",
	})
	ordersByBucket := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "delayboard_orders",
		Help: "Orders in the latest snapshot by account and delay bucket.",
	}, []string{"account", "bucket"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayboard_dropped_records_total",
		Help: "Raw records dropped during normalization.",
	}, []string{"account"})
	fetchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delayboard_fetch_failures_total",
		Help: "Order listing statuses aborted by a page error.",
	}, []string{"account", "status"})

	r.MustRegister(refreshes, refreshDuration, lookups, lookupDuration, rateLimited, ordersByBucket, dropped, fetchFailures)
	return &Registry{
		reg:             r,
		Refreshes:       refreshes,
		RefreshDuration: refreshDuration,
		Lookups:         lookups,
		LookupDuration:  lookupDuration,
		RateLimited:     rateLimited,
		OrdersByBucket:  ordersByBucket,
		DroppedRecords:  dropped,
		FetchFailures:   fetchFailures,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) ObserveLookup(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.Lookups.WithLabelValues(result).Inc()
	r.LookupDuration.Observe(d.Seconds())
}

func (r *Registry) ObserveRateLimited() {
	if r == nil {
		return
	}
	r.RateLimited.Inc()
}

func (r *Registry) ObserveRefresh(account, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.Refreshes.WithLabelValues(account, result).Inc()
	r.RefreshDuration.WithLabelValues(account).Observe(d.Seconds())
}

func (r *Registry) SetBucketCounts(account string, counts map[string]int) {
	if r == nil {
		return
	}
	for bucket, n := range counts {
		r.OrdersByBucket.WithLabelValues(account, bucket).Set(float64(n))
	}
}

func (r *Registry) AddDropped(account string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.DroppedRecords.WithLabelValues(account).Add(float64(n))
}

func (r *Registry) ObserveFetchFailure(account, status string) {
	if r == nil {
		return
	}
	r.FetchFailures.WithLabelValues(account, status).Inc()
}
