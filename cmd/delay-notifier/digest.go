package main

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/DelayBoard/internal/broker/messages"
)

const unresolvedStore = "unresolved"

// AccountDigest tallies the overdue orders of the latest snapshot seen for one
// account, grouped by store. Complete is set once the snapshot's ready marker
// arrived; Expected is the order count the marker announced.
type AccountDigest struct {
	SnapshotID string         `json:"snapshotId"`
	DetectedAt time.Time      `json:"detectedAt"`
	Total      int            `json:"total"`
	ByStore    map[string]int `json:"byStore"`
	Expected   int            `json:"expected"`
	Unresolved int            `json:"unresolved"`
	Complete   bool           `json:"complete"`

	seen map[string]struct{}
}

// digest folds overdue notifications into per-account summaries. A message
// of a newer snapshot replaces the account's tally, whichever kind it is;
// redelivered orders are counted once.
type digest struct {
	mu       sync.Mutex
	accounts map[string]*AccountDigest

	received atomic.Int64
}

func newDigest() *digest {
	return &digest{
		accounts: make(map[string]*AccountDigest),
	}
}

// current returns the tally of snapshotID, starting a fresh one when the
// snapshot is newer than the account's. It returns nil for older snapshots.
// d.mu must be held.
func (d *digest) current(accountID, snapshotID string, at time.Time) *AccountDigest {
	acc := d.accounts[accountID]
	switch {
	case acc == nil || at.After(acc.DetectedAt):
		acc = &AccountDigest{SnapshotID: snapshotID, DetectedAt: at, ByStore: map[string]int{}, seen: map[string]struct{}{}}
		d.accounts[accountID] = acc
	case acc.SnapshotID != snapshotID:
		return nil
	}
	return acc
}

func (d *digest) OrderOverdue(_ context.Context, m messages.OrderOverdue) error {
	d.received.Add(1)

	store := m.Store
	if store == "" {
		store = unresolvedStore
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	acc := d.current(m.AccountID, m.SnapshotID, m.DetectedAt)
	if acc == nil {
		return nil
	}
	if _, dup := acc.seen[m.InternalID]; dup {
		return nil
	}
	acc.seen[m.InternalID] = struct{}{}

	acc.Total++
	acc.ByStore[store]++

	slog.Warn("order overdue",
		"account", m.AccountID,
		"store", store,
		"order_number", m.OrderNumber,
		"tracking_code", m.TrackingCode,
		"overdue", m.Overdue,
		"fast_delivery", m.FastDelivery,
	)
	return nil
}

// SnapshotReady seals the account's tally. A refresh without overdue orders
// publishes only this marker, which clears the previous snapshot's counts.
func (d *digest) SnapshotReady(_ context.Context, m messages.SnapshotReady) error {
	d.received.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()

	acc := d.current(m.AccountID, m.SnapshotID, m.TakenAt)
	if acc == nil {
		return nil
	}
	acc.Expected = m.Overdue
	acc.Unresolved = m.Unresolved
	acc.Complete = true

	slog.Info("snapshot ready",
		"account", m.AccountID,
		"snapshot_id", m.SnapshotID,
		"overdue", m.Overdue,
		"counted", acc.Total,
	)
	return nil
}

// Summary returns a copy of every account digest.
func (d *digest) Summary() map[string]AccountDigest {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]AccountDigest, len(d.accounts))
	for id, acc := range d.accounts {
		cp := *acc
		cp.seen = nil
		cp.ByStore = make(map[string]int, len(acc.ByStore))
		for k, v := range acc.ByStore {
			cp.ByStore[k] = v
		}
		out[id] = cp
	}
	return out
}

// Stores lists the stores of one account from most to fewest overdue orders.
func (d *digest) Stores(account string) []string {
	acc, ok := d.Summary()[account]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(acc.ByStore))
	for s := range acc.ByStore {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if acc.ByStore[out[i]] != acc.ByStore[out[j]] {
			return acc.ByStore[out[i]] > acc.ByStore[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
