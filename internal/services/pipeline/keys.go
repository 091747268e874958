package pipeline

import (
	"github.com/BearBump/DelayBoard/internal/models"
	"github.com/pkg/errors"
)

// KeySelector names the order field sent to the warehouse service.
type KeySelector string

const (
	KeyTrackingCode KeySelector = "tracking_code"
	KeyInternalID   KeySelector = "internal_id"
)

func ParseKeySelector(s string) (KeySelector, error) {
	switch KeySelector(s) {
	case "", KeyTrackingCode:
		return KeyTrackingCode, nil
	case KeyInternalID:
		return KeyInternalID, nil
	}
	return "", errors.Errorf("unknown lookup key %q", s)
}

// Key returns the identifier of o to look up. It may be empty.
func (k KeySelector) Key(o *models.Order) string {
	if k == KeyInternalID {
		return o.InternalID
	}
	return o.TrackingCode
}
