package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/DelayBoard/internal/broker/kafka"
	"github.com/BearBump/DelayBoard/internal/broker/messages"
	"github.com/BearBump/DelayBoard/internal/integrations/marketplace"
	"github.com/BearBump/DelayBoard/internal/metrics"
	"github.com/BearBump/DelayBoard/internal/models"
	"github.com/BearBump/DelayBoard/internal/normalizer"
	"github.com/BearBump/DelayBoard/internal/services/deadline"
	"github.com/BearBump/DelayBoard/internal/services/lookup"
	"github.com/BearBump/DelayBoard/internal/stores"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BearBump/DelayBoard/internal/services/pipeline"

var ErrUnknownAccount = errors.New("unknown account")

// Account is one seller account and the lister serving its orders.
type Account struct {
	ID     string
	Lister marketplace.Lister
}

type SnapshotStore interface {
	Put(ctx context.Context, snap *models.Snapshot) error
}

type Notifier interface {
	PublishBatch(ctx context.Context, topic string, msgs []kafka.Message) error
}

type Orchestrator struct {
	accounts   map[string]marketplace.Lister
	accountIDs []string

	clock       *deadline.Clock
	normalizer  *normalizer.Normalizer
	coordinator *lookup.Coordinator
	directory   *stores.Directory
	snapshots   SnapshotStore

	keys  KeySelector
	fetch marketplace.FetchOptions

	notifier Notifier
	topic    string

	metrics *metrics.Registry
	tracer  trace.Tracer
	newID   func() string

	stagesMu sync.RWMutex
	stages   map[string]Stage
}

func New(accounts []Account, clock *deadline.Clock, coordinator *lookup.Coordinator, directory *stores.Directory, snapshots SnapshotStore) *Orchestrator {
	o := &Orchestrator{
		accounts:    make(map[string]marketplace.Lister, len(accounts)),
		clock:       clock,
		normalizer:  normalizer.New(clock.Zone()),
		coordinator: coordinator,
		directory:   directory,
		snapshots:   snapshots,
		keys:        KeyTrackingCode,
		tracer:      otel.Tracer(tracerName),
		newID:       uuid.NewString,
		stages:      make(map[string]Stage, len(accounts)),
	}
	for _, a := range accounts {
		if _, dup := o.accounts[a.ID]; dup {
			continue
		}
		o.accounts[a.ID] = a.Lister
		o.accountIDs = append(o.accountIDs, a.ID)
	}
	return o
}

func (o *Orchestrator) WithKeySelector(k KeySelector) *Orchestrator {
	if k != "" {
		o.keys = k
	}
	return o
}

// WithFetchOptions sets the listing parameters. Now is ignored; every refresh
// uses its own reference time.
func (o *Orchestrator) WithFetchOptions(opts marketplace.FetchOptions) *Orchestrator {
	o.fetch = opts
	return o
}

func (o *Orchestrator) WithNotifier(n Notifier, topic string) *Orchestrator {
	o.notifier = n
	o.topic = topic
	return o
}

func (o *Orchestrator) WithTracerProvider(tp trace.TracerProvider) *Orchestrator {
	o.tracer = tp.Tracer(tracerName)
	return o
}

func (o *Orchestrator) WithMetrics(m *metrics.Registry) *Orchestrator {
	o.metrics = m
	return o
}

// Accounts returns the configured account ids in configuration order.
func (o *Orchestrator) Accounts() []string {
	return append([]string(nil), o.accountIDs...)
}

func (o *Orchestrator) HasAccount(id string) bool {
	_, ok := o.accounts[id]
	return ok
}

func (o *Orchestrator) Stage(accountID string) Stage {
	o.stagesMu.RLock()
	defer o.stagesMu.RUnlock()
	return o.stages[accountID]
}

func (o *Orchestrator) setStage(ctx context.Context, accountID string, st Stage) {
	o.stagesMu.Lock()
	o.stages[accountID] = st
	o.stagesMu.Unlock()
	trace.SpanFromContext(ctx).AddEvent(st.String())
}

// Refresh runs one full cycle for an account and publishes the resulting
// snapshot. It fails only for an unknown account, when every status of the
// listing failed, or when the snapshot cannot be stored.
func (o *Orchestrator) Refresh(ctx context.Context, accountID string) (*models.Snapshot, error) {
	lister, ok := o.accounts[accountID]
	if !ok {
		return nil, errors.Wrap(ErrUnknownAccount, accountID)
	}

	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "pipeline.Refresh", trace.WithAttributes(attribute.String("account", accountID)))
	defer span.End()

	snap, err := o.refresh(ctx, accountID, lister)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.setStage(ctx, accountID, StageIdle)
		slog.Error("refresh", "account", accountID, "error", err.Error())
	}
	o.metrics.ObserveRefresh(accountID, result, time.Since(started))
	return snap, err
}

func (o *Orchestrator) refresh(ctx context.Context, accountID string, lister marketplace.Lister) (*models.Snapshot, error) {
	// One reference time for the whole batch.
	now := o.clock.Now()

	o.setStage(ctx, accountID, StageFetching)
	opts := o.fetch
	opts.Now = now
	res := marketplace.FetchAll(ctx, lister, opts)
	for _, f := range res.Failures {
		o.metrics.ObserveFetchFailure(accountID, string(f.Status))
	}
	if res.AllFailed() {
		return nil, errors.Wrapf(res.Failures[0], "fetch orders for %s: all %d statuses failed", accountID, res.Statuses)
	}

	o.setStage(ctx, accountID, StageNormalizing)
	orders, dropped := o.normalizer.NormalizeBatch(res.Records)

	o.setStage(ctx, accountID, StageClassifying)
	deadline.ClassifyAll(orders, now)

	snap := models.NewSnapshot(o.newID(), accountID, now)
	snap.Dropped = dropped
	for _, f := range res.Failures {
		snap.FetchErrors = append(snap.FetchErrors, f.Error())
	}

	overdue := make([]*models.Order, 0)
	for _, ord := range orders {
		if ord.IsOverdue() {
			overdue = append(overdue, ord)
		}
	}
	if len(overdue) > 0 {
		snap.Lookups = o.attribute(ctx, accountID, overdue)
	}

	sort.SliceStable(orders, func(i, j int) bool { return orders[i].OrderedAt.Before(orders[j].OrderedAt) })
	snap.Orders = orders
	rows := make(map[models.Bucket]int, len(models.Buckets))
	for _, ord := range orders {
		rows[ord.Delay.Bucket]++
		ord.Row = rows[ord.Delay.Bucket]
		snap.Counts[ord.Delay.Bucket.String()]++
		if ord.IsOverdue() && ord.ResolvedStore == "" {
			snap.Unresolved = append(snap.Unresolved, models.UnresolvedOrder{
				InternalID:   ord.InternalID,
				OrderNumber:  ord.OrderNumber,
				TrackingCode: ord.TrackingCode,
				Candidates:   o.directory.Names(),
			})
		}
	}

	if o.snapshots != nil {
		if err := o.snapshots.Put(ctx, snap); err != nil {
			return nil, errors.Wrap(err, "publish snapshot")
		}
	}
	o.setStage(ctx, accountID, StageReady)

	o.notify(ctx, snap)
	o.metrics.SetBucketCounts(accountID, snap.Counts)
	o.metrics.AddDropped(accountID, dropped)

	slog.Info("refresh done",
		"account", accountID,
		"snapshot_id", snap.ID,
		"orders", len(snap.Orders),
		"overdue", snap.Counts[models.BucketOverdue.String()],
		"unresolved", len(snap.Unresolved),
		"dropped", dropped,
		"fetch_errors", len(snap.FetchErrors),
	)
	return snap, nil
}

// attribute resolves the warehouse of every overdue order and maps it to a
// store. Only the calling goroutine writes to the orders. It returns the
// number of distinct identifiers looked up.
func (o *Orchestrator) attribute(ctx context.Context, accountID string, overdue []*models.Order) int {
	o.setStage(ctx, accountID, StageResolving)
	ids := make([]string, 0, len(overdue))
	for _, ord := range overdue {
		if k := o.keys.Key(ord); k != "" {
			ids = append(ids, k)
		}
	}
	var found map[string]string
	if len(ids) > 0 {
		found = o.coordinator.ResolveAll(ctx, ids)
	}

	o.setStage(ctx, accountID, StageMapping)
	for _, ord := range overdue {
		code := found[o.keys.Key(ord)]
		if code == "" {
			continue
		}
		ord.WarehouseCode = code
		ord.ResolvedStore = o.directory.Name(code)
	}
	return len(found)
}

// notify publishes one message per overdue order followed by a SnapshotReady
// marker, so consumers also learn about refreshes without overdue orders.
func (o *Orchestrator) notify(ctx context.Context, snap *models.Snapshot) {
	if o.notifier == nil || o.topic == "" {
		return
	}
	overdue := snap.Overdue()
	msgs := make([]kafka.Message, 0, len(overdue)+1)
	for _, ord := range overdue {
		m := messages.OrderOverdue{
			Kind:          messages.KindOrderOverdue,
			SnapshotID:    snap.ID,
			AccountID:     snap.AccountID,
			InternalID:    ord.InternalID,
			OrderNumber:   ord.OrderNumber,
			PackageID:     ord.PackageID,
			Status:        string(ord.Status),
			DeadlineAt:    ord.DeadlineAt,
			Overdue:       ord.Delay.Detail,
			TrackingCode:  ord.TrackingCode,
			WarehouseCode: ord.WarehouseCode,
			Store:         ord.ResolvedStore,
			FastDelivery:  ord.FastDelivery,
			DetectedAt:    snap.TakenAt,
		}
		b, err := json.Marshal(m)
		if err != nil {
			slog.Warn("marshal overdue message", "internal_id", ord.InternalID, "error", err.Error())
			continue
		}
		msgs = append(msgs, kafka.Message{Key: m.Key(), Value: b})
	}

	ready := messages.SnapshotReady{
		Kind:       messages.KindSnapshotReady,
		SnapshotID: snap.ID,
		AccountID:  snap.AccountID,
		TakenAt:    snap.TakenAt,
		Overdue:    len(msgs),
		Unresolved: len(snap.Unresolved),
	}
	b, err := json.Marshal(ready)
	if err != nil {
		slog.Warn("marshal snapshot marker", "snapshot_id", snap.ID, "error", err.Error())
	} else {
		msgs = append(msgs, kafka.Message{Key: ready.Key(), Value: b})
	}

	if err := o.notifier.PublishBatch(ctx, o.topic, msgs); err != nil {
		slog.Warn("publish overdue notifications", "account", snap.AccountID, "count", len(msgs), "error", err.Error())
	}
}
