package messages

import (
	"encoding/json"
	"time"
)

// Message kinds on the overdue topic.
const (
	KindOrderOverdue  = "order_overdue"
	KindSnapshotReady = "snapshot_ready"
)

// OrderOverdue is published once per overdue order of a refreshed snapshot.
// The message key is "<account>:<internal id>".
type OrderOverdue struct {
	Kind        string    `json:"kind"`
	SnapshotID  string    `json:"snapshot_id"`
	AccountID   string    `json:"account_id"`
	InternalID  string    `json:"internal_id"`
	OrderNumber string    `json:"order_number"`
	PackageID   string    `json:"package_id,omitempty"`
	Status      string    `json:"status"`
	DeadlineAt  time.Time `json:"deadline_at"`
	Overdue     string    `json:"overdue"`

	TrackingCode  string `json:"tracking_code,omitempty"`
	WarehouseCode string `json:"warehouse_code,omitempty"`
	Store         string `json:"store,omitempty"`

	FastDelivery bool      `json:"fast_delivery"`
	DetectedAt   time.Time `json:"detected_at"`
}

func (m OrderOverdue) Key() []byte {
	return []byte(m.AccountID + ":" + m.InternalID)
}

// SnapshotReady follows the order notifications of every refresh, including
// refreshes without overdue orders. Overdue is the number of OrderOverdue
// messages published for the snapshot.
type SnapshotReady struct {
	Kind       string    `json:"kind"`
	SnapshotID string    `json:"snapshot_id"`
	AccountID  string    `json:"account_id"`
	TakenAt    time.Time `json:"taken_at"`
	Overdue    int       `json:"overdue"`
	Unresolved int       `json:"unresolved"`
}

func (m SnapshotReady) Key() []byte {
	return []byte(m.AccountID)
}

// KindOf returns the kind of an encoded message. Messages without a kind are
// order notifications.
func KindOf(value []byte) (string, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return "", err
	}
	if head.Kind == "" {
		return KindOrderOverdue, nil
	}
	return head.Kind, nil
}
