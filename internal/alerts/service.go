package alerts

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Service fronts the detector with the snapshot cache. Concurrent snapshot
// requests collapse onto one detector pass.
type Service struct {
	detector *Detector
	cache    *Cache
	group    singleflight.Group
}

// NewService builds the alert service. cache may be nil.
func NewService(detector *Detector, cache *Cache) *Service {
	return &Service{detector: detector, cache: cache}
}

// Snapshot returns the cached snapshot when fresh, else rebuilds it. Callers
// racing on a cold cache share a single rebuild.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok, err := s.cache.Get(ctx); err == nil && ok {
		return snap, nil
	}
	return s.Refresh(ctx)
}

// Refresh rebuilds the snapshot and stores it in the cache.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	result := s.group.DoChan(snapshotKey, func() (any, error) {
		snap, err := s.detector.Build(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		if err := s.cache.Put(ctx, snap); err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

// LowStock bypasses the cache for a direct threshold query.
func (s *Service) LowStock(ctx context.Context) ([]LowStockAlert, error) {
	return s.detector.LowStock(ctx)
}

// Expiring bypasses the cache for a direct expiry-window query.
func (s *Service) Expiring(ctx context.Context, withinDays int) ([]ExpiryAlert, error) {
	return s.detector.Expiring(ctx, withinDays)
}

// Expired bypasses the cache for a direct expired query.
func (s *Service) Expired(ctx context.Context) ([]ExpiryAlert, error) {
	return s.detector.Expired(ctx)
}
