// Package chain composes several cache.Store backends with ordered delegation.
package chain

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/any-hub/filecache/internal/cache"
)

// Store checks its tiers in order. Get returns the first hit and backfills the
// earlier tiers; Set and Delete go to every tier.
type Store struct {
	tiers       []cache.Store
	backfillTTL int64
}

// New creates a chained store. backfillTTL controls how long a value found in
// a later tier lives in the earlier ones.
func New(backfillTTL int64, tiers ...cache.Store) *Store {
	return &Store{tiers: tiers, backfillTTL: backfillTTL}
}

// Tiers returns the number of composed backends.
func (s *Store) Tiers() int {
	return len(s.tiers)
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, bool, error) {
	for i, tier := range s.tiers {
		val, found, err := tier.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		for _, earlier := range s.tiers[:i] {
			_ = earlier.Set(ctx, id, val, s.backfillTTL)
		}
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes to every tier in order and stops at the first failure.
func (s *Store) Set(ctx context.Context, id string, value []byte, ttl int64) error {
	for _, tier := range s.tiers {
		if err := tier.Set(ctx, id, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	for _, tier := range s.tiers {
		if err := tier.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	for _, tier := range s.tiers {
		ok, err := tier.Exists(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Clear empties all tiers concurrently and returns the first failure.
func (s *Store) Clear(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, tier := range s.tiers {
		g.Go(func() error {
			return tier.Clear(ctx)
		})
	}
	return g.Wait()
}
