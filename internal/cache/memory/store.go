// Package memory implements cache.Store on top of dgraph-io/ristretto, intended
// as the in-process first tier in front of a FileStore.
package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/any-hub/filecache/internal/cache"
)

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = errors.New("memory store closed")

// Store wraps a ristretto cache. Values are bounded by total byte cost, so an
// entry may be rejected or evicted at any time; callers treat it as a hint.
type Store struct {
	c      *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// New creates a ristretto-backed store. maxCostBytes is the maximum total
// size of cached values in bytes.
func New(maxCostBytes int64) (*Store, error) {
	if maxCostBytes <= 0 {
		return nil, errors.New("memory store size must be positive")
	}
	counters := maxCostBytes / 100 * 10 // ~10x expected items
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}
	val, found := s.c.Get(id)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set mirrors the file store TTL policy: Permanent keeps the value without a
// TTL, positive ttl is seconds, anything else removes the entry.
func (s *Store) Set(ctx context.Context, id string, value []byte, ttl int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	var expire time.Duration
	switch {
	case ttl == cache.Permanent:
		expire = 0
	case ttl > 0:
		expire = cache.TTLDuration(ttl)
	default:
		s.c.Del(id)
		s.c.Wait()
		return nil
	}

	stored := append([]byte(nil), value...)
	s.c.SetWithTTL(id, stored, int64(len(stored))+1, expire)
	s.c.Wait()
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.c.Del(id)
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, ok, err := s.Get(ctx, id)
	return ok, err
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.c.Clear()
	return nil
}

// Close shuts down the cache and releases resources.
func (s *Store) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.c.Close()
	}
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return ctx.Err()
}
