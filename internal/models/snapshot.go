package models

import "time"

// Snapshot is the published result of one refresh cycle for one account.
type Snapshot struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	TakenAt   time.Time `json:"takenAt"`

	// Orders are sorted by OrderedAt ascending.
	Orders []*Order `json:"orders"`

	Counts map[string]int `json:"counts"`

	Unresolved []UnresolvedOrder `json:"unresolved"`

	Dropped     int      `json:"dropped"`
	Lookups     int      `json:"lookups"`
	FetchErrors []string `json:"fetchErrors"`
}

// UnresolvedOrder is an overdue order that no single store could be attributed
// to. Candidates lists every known store so the operator can pick one.
type UnresolvedOrder struct {
	InternalID   string   `json:"internalId"`
	OrderNumber  string   `json:"orderNumber"`
	TrackingCode string   `json:"trackingCode"`
	Candidates   []string `json:"candidates"`
}

// NewSnapshot returns an empty but fully shaped snapshot.
func NewSnapshot(id, accountID string, takenAt time.Time) *Snapshot {
	counts := make(map[string]int, len(Buckets))
	for _, b := range Buckets {
		counts[b.String()] = 0
	}
	return &Snapshot{
		ID:          id,
		AccountID:   accountID,
		TakenAt:     takenAt,
		Orders:      []*Order{},
		Counts:      counts,
		Unresolved:  []UnresolvedOrder{},
		FetchErrors: []string{},
	}
}

// ByBucket returns the orders of one bucket, keeping the snapshot order.
func (s *Snapshot) ByBucket(b Bucket) []*Order {
	out := []*Order{}
	for _, o := range s.Orders {
		if o.Delay.Bucket == b {
			out = append(out, o)
		}
	}
	return out
}

func (s *Snapshot) UninvoicedMicro() []*Order {
	out := []*Order{}
	for _, o := range s.Orders {
		if o.IsUninvoicedMicro() {
			out = append(out, o)
		}
	}
	return out
}

func (s *Snapshot) Overdue() []*Order {
	return s.ByBucket(BucketOverdue)
}
