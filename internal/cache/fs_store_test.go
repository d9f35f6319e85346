package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// fakeClock 让测试可以任意推进时间。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// failingDirs 包装 OSDirs，并按需让指定操作失败。
type failingDirs struct {
	OSDirs
	rmdirErr  error
	unlinkErr error
	mkdirErr  error
}

func (d failingDirs) Mkdir(path string) error {
	if d.mkdirErr != nil {
		return d.mkdirErr
	}
	return d.OSDirs.Mkdir(path)
}

func (d failingDirs) Rmdir(path string, recursive bool) error {
	if d.rmdirErr != nil {
		return d.rmdirErr
	}
	return d.OSDirs.Rmdir(path, recursive)
}

func (d failingDirs) Unlink(path string) error {
	if d.unlinkErr != nil {
		return d.unlinkErr
	}
	return d.OSDirs.Unlink(path)
}

func newTestStore(t *testing.T, opts FileStoreOptions) *FileStore {
	t.Helper()
	if opts.BasePath == "" && opts.Path == "" {
		opts.BasePath = t.TempDir()
	}
	store, err := NewFileStore(opts)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func mustID(t *testing.T, s *FileStore, key any) string {
	t.Helper()
	id, err := s.BuildID(key)
	if err != nil {
		t.Fatalf("build id error: %v", err)
	}
	return id
}

func TestNewFileStoreDefaults(t *testing.T) {
	base := t.TempDir()
	store := newTestStore(t, FileStoreOptions{BasePath: base})

	if store.Namespace() != DefaultNamespace {
		t.Fatalf("unexpected namespace %s", store.Namespace())
	}
	if store.Path() != filepath.Join(base, DefaultNamespace) {
		t.Fatalf("unexpected path %s", store.Path())
	}
	if info, err := os.Stat(store.Path()); err != nil || !info.IsDir() {
		t.Fatalf("namespace dir should be created: %v", err)
	}
	if store.Hasher().Prefix() != DefaultPrefix {
		t.Fatalf("unexpected prefix %s", store.Hasher().Prefix())
	}
	if !strings.HasSuffix(store.FilePath("abc"), "abc.bat") {
		t.Fatalf("unexpected file path %s", store.FilePath("abc"))
	}
}

func TestNewFileStoreIsIdempotent(t *testing.T) {
	base := t.TempDir()
	first := newTestStore(t, FileStoreOptions{BasePath: base, Namespace: "ns"})
	second := newTestStore(t, FileStoreOptions{BasePath: base, Namespace: "ns"})
	if first.Path() != second.Path() {
		t.Fatalf("paths differ: %s vs %s", first.Path(), second.Path())
	}
}

func TestNewFileStoreErrors(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write error: %v", err)
	}

	testCases := []struct {
		name string
		opts FileStoreOptions
	}{
		{"no path", FileStoreOptions{}},
		{"bad namespace", FileStoreOptions{BasePath: base, Namespace: "../escape"}},
		{"path is file", FileStoreOptions{Path: blocker}},
		{"mkdir fails", FileStoreOptions{BasePath: base, Namespace: "new", Dirs: failingDirs{mkdirErr: errors.New("boom")}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFileStore(tc.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestStoreWritesRawBytesWithConfiguredMode(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	ctx := context.Background()
	id := mustID(t, store, "user:1")

	if err := store.Set(ctx, id, []byte(`{"id":1}`), 60); err != nil {
		t.Fatalf("set error: %v", err)
	}

	raw, err := os.ReadFile(store.FilePath(id))
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(raw) != `{"id":1}` {
		t.Fatalf("file content should be unframed, got %q", raw)
	}
	info, err := os.Stat(store.FilePath(id))
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if info.Mode().Perm() != DefaultFileMode {
		t.Fatalf("expected mode %o, got %o", DefaultFileMode, info.Mode().Perm())
	}

	shared := newTestStore(t, FileStoreOptions{FileMode: 0o644})
	if err := shared.Set(ctx, id, []byte("v"), 60); err != nil {
		t.Fatalf("set error: %v", err)
	}
	info, _ = os.Stat(shared.FilePath(id))
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("expected mode 644, got %o", info.Mode().Perm())
	}
}

func TestStoreSetEncodesExpiryInModTime(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, FileStoreOptions{Now: clock.Now})
	ctx := context.Background()

	if err := store.Set(ctx, "ttl", []byte("v"), 60); err != nil {
		t.Fatalf("set error: %v", err)
	}
	info, err := os.Stat(store.FilePath("ttl"))
	if err != nil {
		t.Fatalf("stat error: %v", err)
	}
	if want := clock.Now().Add(time.Minute); !info.ModTime().Equal(want) {
		t.Fatalf("expected mtime %v, got %v", want, info.ModTime())
	}

	if err := store.Set(ctx, "perm", []byte("v"), Permanent); err != nil {
		t.Fatalf("set error: %v", err)
	}
	info, _ = os.Stat(store.FilePath("perm"))
	if !IsPermanent(info.ModTime()) {
		t.Fatalf("expected permanent sentinel, got %v", info.ModTime())
	}
}

func TestStoreExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, FileStoreOptions{Now: clock.Now})
	ctx := context.Background()
	id := mustID(t, store, "temp2")

	if err := store.Set(ctx, id, []byte("payload"), 5); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if value, ok, _ := store.Get(ctx, id); !ok || string(value) != "payload" {
		t.Fatalf("expected hit before expiry")
	}

	clock.Advance(6 * time.Second)
	if _, ok, err := store.Get(ctx, id); ok || err != nil {
		t.Fatalf("expected miss after expiry, ok=%v err=%v", ok, err)
	}
	if ok, _ := store.Exists(ctx, id); ok {
		t.Fatalf("expected exists=false after expiry")
	}
	if _, err := os.Stat(store.FilePath(id)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expired file should be removed lazily, stat err=%v", err)
	}
}

func TestStoreExistsEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, FileStoreOptions{Now: clock.Now})
	ctx := context.Background()

	if err := store.Set(ctx, "e", []byte("v"), 1); err != nil {
		t.Fatalf("set error: %v", err)
	}
	clock.Advance(time.Second)
	if ok, err := store.Exists(ctx, "e"); ok || err != nil {
		t.Fatalf("expected expired at exact expiry, ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(store.FilePath("e")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Exists should evict expired entry")
	}
}

func TestStorePermanentSurvivesAdvancedClock(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, FileStoreOptions{Now: clock.Now})
	ctx := context.Background()
	id := mustID(t, store, "user:1")

	if err := store.Set(ctx, id, []byte(`{"id":1}`), Permanent); err != nil {
		t.Fatalf("set error: %v", err)
	}
	clock.Advance(200 * 365 * 24 * time.Hour)

	value, ok, err := store.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("permanent entry should survive, ok=%v err=%v", ok, err)
	}
	if string(value) != `{"id":1}` {
		t.Fatalf("unexpected value %s", value)
	}
}

func TestStoreZeroTTLIsImmediateMiss(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	ctx := context.Background()
	id := mustID(t, store, "temp")

	if err := store.Set(ctx, id, []byte("x"), 0); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if _, ok, _ := store.Get(ctx, id); ok {
		t.Fatalf("ttl=0 should be an immediate miss")
	}
	if _, err := os.Stat(store.FilePath(id)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ttl=0 should remove the written file")
	}
}

func TestStoreZeroTTLReportsUnlinkFailure(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{Dirs: failingDirs{unlinkErr: errors.New("denied")}})
	if err := store.Set(context.Background(), "x", []byte("x"), 0); err == nil {
		t.Fatalf("expected failure when the expired entry cannot be removed")
	}
}

func TestStoreEvictionFailureIsSwallowed(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, FileStoreOptions{Now: clock.Now, Dirs: failingDirs{unlinkErr: errors.New("denied")}})
	ctx := context.Background()

	if err := store.Set(ctx, "stale", []byte("v"), 1); err != nil {
		t.Fatalf("set error: %v", err)
	}
	clock.Advance(time.Hour)

	for i := 0; i < 2; i++ {
		if _, ok, err := store.Get(ctx, "stale"); ok || err != nil {
			t.Fatalf("stale entry should be a silent miss, ok=%v err=%v", ok, err)
		}
	}
	if _, err := os.Stat(store.FilePath("stale")); err != nil {
		t.Fatalf("file should remain when unlink fails: %v", err)
	}
}

func TestStoreWriteFailureKeepsExistingEntry(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}
	store := newTestStore(t, FileStoreOptions{})
	ctx := context.Background()

	if err := store.Set(ctx, "keep", []byte("old"), Permanent); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := os.Chmod(store.Path(), 0o500); err != nil {
		t.Fatalf("chmod error: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(store.Path(), 0o755) })

	if err := store.Set(ctx, "keep", []byte("new"), 60); err == nil {
		t.Fatalf("expected write failure")
	}
	value, ok, err := store.Get(ctx, "keep")
	if err != nil || !ok || string(value) != "old" {
		t.Fatalf("existing entry should be untouched, value=%s ok=%v err=%v", value, ok, err)
	}
	info, _ := os.Stat(store.FilePath("keep"))
	if !IsPermanent(info.ModTime()) {
		t.Fatalf("expiry should be untouched after a failed write")
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	ctx := context.Background()

	_ = store.Set(ctx, "d", []byte("v"), 60)
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "d"); err != nil {
			t.Fatalf("delete #%d error: %v", i+1, err)
		}
		if ok, _ := store.Exists(ctx, "d"); ok {
			t.Fatalf("entry should be absent after delete #%d", i+1)
		}
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	if err := os.MkdirAll(store.FilePath("dir"), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if _, ok, err := store.Get(context.Background(), "dir"); ok || err != nil {
		t.Fatalf("directory should be a miss, ok=%v err=%v", ok, err)
	}
	if ok, err := store.Exists(context.Background(), "dir"); ok || err != nil {
		t.Fatalf("directory should not exist as entry, ok=%v err=%v", ok, err)
	}
}

func TestStoreClearRemovesEntries(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	ctx := context.Background()

	ids := []string{mustID(t, store, "a"), mustID(t, store, "b")}
	for _, id := range ids {
		if err := store.Set(ctx, id, []byte("v"), Permanent); err != nil {
			t.Fatalf("set error: %v", err)
		}
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	for _, id := range ids {
		if _, ok, _ := store.Get(ctx, id); ok {
			t.Fatalf("entry %s should be cleared", id)
		}
	}
	entries, err := os.ReadDir(store.Path())
	if err != nil {
		t.Fatalf("namespace dir should be recreated: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("namespace dir should be empty, got %d entries", len(entries))
	}
}

func TestStoreClearPropagatesFailure(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{Dirs: failingDirs{rmdirErr: errors.New("busy")}})
	if err := store.Clear(context.Background()); err == nil {
		t.Fatalf("expected clear failure to propagate")
	}
}

func TestStoreClearIsolatesNamespaces(t *testing.T) {
	base := t.TempDir()
	a := newTestStore(t, FileStoreOptions{BasePath: base, Namespace: "a"})
	b := newTestStore(t, FileStoreOptions{BasePath: base, Namespace: "b"})
	ctx := context.Background()

	if err := a.Set(ctx, "shared", []byte("from-a"), 60); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := b.Set(ctx, "shared", []byte("from-b"), 60); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	value, ok, err := a.Get(ctx, "shared")
	if err != nil || !ok || string(value) != "from-a" {
		t.Fatalf("namespace a must be unaffected, value=%s ok=%v err=%v", value, ok, err)
	}
}

func TestStoreConcurrentSetSameID(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	ctx := context.Background()
	const writers = 16
	const size = 64 * 1024

	values := make([][]byte, writers)
	for i := range values {
		values[i] = bytes.Repeat([]byte{byte('a' + i)}, size)
	}

	stop := make(chan struct{})
	var readers errgroup.Group
	for range 4 {
		readers.Go(func() error {
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				value, ok, err := store.Get(ctx, "race")
				if err != nil {
					return err
				}
				if ok && !uniform(value, size) {
					return fmt.Errorf("torn read: len=%d", len(value))
				}
			}
		})
	}

	var writersGroup errgroup.Group
	for i := range writers {
		writersGroup.Go(func() error {
			return store.Set(ctx, "race", values[i], 60)
		})
	}
	if err := writersGroup.Wait(); err != nil {
		t.Fatalf("concurrent set error: %v", err)
	}
	close(stop)
	if err := readers.Wait(); err != nil {
		t.Fatalf("reader error: %v", err)
	}

	value, ok, err := store.Get(ctx, "race")
	if err != nil || !ok {
		t.Fatalf("expected final hit, ok=%v err=%v", ok, err)
	}
	if !uniform(value, size) {
		t.Fatalf("final value is not one of the written values")
	}
	if store.locks.held() != 0 {
		t.Fatalf("entry locks should be released, %d held", store.locks.held())
	}
	leftovers, _ := filepath.Glob(filepath.Join(store.Path(), ".tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func uniform(value []byte, size int) bool {
	if len(value) != size {
		return false
	}
	return bytes.Count(value, value[:1]) == size
}

func TestStoreHonoursCanceledContext(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := store.Get(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Get, got %v", err)
	}
	if err := store.Clear(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from Clear, got %v", err)
	}
}

func TestStoreClearExcludesConcurrentWriters(t *testing.T) {
	store := newTestStore(t, FileStoreOptions{})
	ctx := context.Background()
	const writers = 8
	const rounds = 20

	var g errgroup.Group
	for w := range writers {
		g.Go(func() error {
			for r := range rounds {
				key := fmt.Sprintf("w%d-%d", w, r)
				if err := store.Set(ctx, key, []byte(key), 60); err != nil {
					return fmt.Errorf("set %s: %w", key, err)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for range rounds {
			if err := store.Clear(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent set/clear error: %v", err)
	}

	if info, err := os.Stat(store.Path()); err != nil || !info.IsDir() {
		t.Fatalf("namespace directory should survive concurrent clears: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(store.Path(), ".tmp-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
	for w := range writers {
		key := fmt.Sprintf("w%d-%d", w, rounds-1)
		value, ok, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if ok && string(value) != key {
			t.Fatalf("get %s: unexpected value %q", key, value)
		}
	}
	if store.locks.held() != 0 {
		t.Fatalf("entry locks should be released, %d held", store.locks.held())
	}
}
