// Package cachetest holds the behaviour suite every cache.Store must pass.
package cachetest

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/any-hub/filecache/internal/cache"
)

// RunCompliance runs the standard compliance suite against any Store
// implementation. The store must start empty.
func RunCompliance(t *testing.T, s cache.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := s.Set(ctx, "compliance-key", []byte("compliance-val"), 60); err != nil {
			t.Fatal(err)
		}
		val, found, err := s.Get(ctx, "compliance-key")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != "compliance-val" {
			t.Fatalf("expected compliance-val, got %s", val)
		}
	})

	t.Run("BinaryRoundTrip", func(t *testing.T) {
		payload := []byte{0x00, 0xff, '\n', 0x10, 0x00}
		if err := s.Set(ctx, "binary-key", payload, 60); err != nil {
			t.Fatal(err)
		}
		val, found, err := s.Get(ctx, "binary-key")
		if err != nil || !found {
			t.Fatalf("expected hit, found=%v err=%v", found, err)
		}
		if !bytes.Equal(val, payload) {
			t.Fatalf("payload mismatch: %v", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := s.Get(ctx, "nonexistent-key")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for nonexistent key")
		}
	})

	t.Run("Exists", func(t *testing.T) {
		_ = s.Set(ctx, "exists-key", []byte("v"), 60)
		ok, err := s.Exists(ctx, "exists-key")
		if err != nil || !ok {
			t.Fatalf("expected exists, ok=%v err=%v", ok, err)
		}
		ok, err = s.Exists(ctx, "never-set")
		if err != nil || ok {
			t.Fatalf("expected not exists, ok=%v err=%v", ok, err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = s.Set(ctx, "del-key", []byte("del-val"), 60)
		if err := s.Delete(ctx, "del-key"); err != nil {
			t.Fatal(err)
		}
		_, found, err := s.Get(ctx, "del-key")
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
		if err := s.Delete(ctx, "del-key"); err != nil {
			t.Fatalf("second Delete should not error: %v", err)
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		if err := s.Delete(ctx, "never-existed"); err != nil {
			t.Fatal("Delete of nonexistent key should not error")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = s.Set(ctx, "ow-key", []byte("v1"), 60)
		_ = s.Set(ctx, "ow-key", []byte("v2"), 60)
		val, found, err := s.Get(ctx, "ow-key")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after overwrite")
		}
		if string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %s", val)
		}
	})

	t.Run("Permanent", func(t *testing.T) {
		if err := s.Set(ctx, "perm-key", []byte("forever"), cache.Permanent); err != nil {
			t.Fatal(err)
		}
		val, found, err := s.Get(ctx, "perm-key")
		if err != nil || !found || string(val) != "forever" {
			t.Fatalf("expected permanent hit, val=%s found=%v err=%v", val, found, err)
		}
	})

	t.Run("HugeTTLStaysLive", func(t *testing.T) {
		for _, ttl := range []int64{cache.MaxTTL + 1, 10_000_000_000, math.MaxInt64} {
			if err := s.Set(ctx, "huge-ttl-key", []byte("long"), ttl); err != nil {
				t.Fatalf("ttl %d: %v", ttl, err)
			}
			val, found, err := s.Get(ctx, "huge-ttl-key")
			if err != nil || !found || string(val) != "long" {
				t.Fatalf("ttl %d: expected hit, val=%s found=%v err=%v", ttl, val, found, err)
			}
		}
	})

	t.Run("NonPositiveTTLExpiresImmediately", func(t *testing.T) {
		for _, ttl := range []int64{0, -5} {
			if err := s.Set(ctx, "expired-key", []byte("x"), ttl); err != nil {
				t.Fatalf("ttl %d: %v", ttl, err)
			}
			if _, found, _ := s.Get(ctx, "expired-key"); found {
				t.Fatalf("ttl %d: expected miss", ttl)
			}
		}
	})

	t.Run("Clear", func(t *testing.T) {
		_ = s.Set(ctx, "clear-a", []byte("a"), 60)
		_ = s.Set(ctx, "clear-b", []byte("b"), cache.Permanent)
		if err := s.Clear(ctx); err != nil {
			t.Fatal(err)
		}
		for _, id := range []string{"clear-a", "clear-b"} {
			if _, found, _ := s.Get(ctx, id); found {
				t.Fatalf("expected %s cleared", id)
			}
		}
		if err := s.Set(ctx, "after-clear", []byte("ok"), 60); err != nil {
			t.Fatalf("store should stay usable after Clear: %v", err)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		if err := s.Set(canceled, "ctx-key", []byte("v"), 60); err == nil {
			t.Fatal("expected error for canceled context")
		}
	})
}
