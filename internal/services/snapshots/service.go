package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/DelayBoard/internal/cache"
	"github.com/BearBump/DelayBoard/internal/models"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("snapshot not found")

// Service keeps the latest snapshot of each account for the current session.
type Service struct {
	cache cache.BytesCache
	ttl   time.Duration
}

// New returns a service over c. A ttl <= 0 keeps snapshots until replaced.
func New(c cache.BytesCache, ttl time.Duration) *Service {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Service{cache: c, ttl: ttl}
}

func (s *Service) Get(ctx context.Context, accountID string) (*models.Snapshot, error) {
	if accountID == "" {
		return nil, errors.New("account is required")
	}
	b, ok, err := s.cache.Get(ctx, snapshotKey(accountID))
	if err != nil {
		return nil, errors.Wrap(err, "snapshot cache get")
	}
	if !ok {
		return nil, ErrNotFound
	}
	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return &snap, nil
}

// Put replaces the account's snapshot. The previous one is invalidated first,
// so a failed write never leaves a stale snapshot behind.
func (s *Service) Put(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil || snap.AccountID == "" {
		return errors.New("snapshot account is required")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := s.Invalidate(ctx, snap.AccountID); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, snapshotKey(snap.AccountID), b, s.ttl); err != nil {
		return errors.Wrap(err, "snapshot cache set")
	}
	return nil
}

func (s *Service) Invalidate(ctx context.Context, accountID string) error {
	if err := s.cache.Delete(ctx, snapshotKey(accountID)); err != nil {
		return errors.Wrap(err, "snapshot cache delete")
	}
	return nil
}

func snapshotKey(accountID string) string {
	return fmt.Sprintf("snapshot:%s:latest", accountID)
}
