package localstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...FileStoreOption) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFileStorePutThenGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rev, err := store.Put(ctx, "cart/sess-1", []byte(`{"items":[]}`), AnyRevision)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if rev == NoRevision {
		t.Fatal("expected a revision after Put")
	}

	data, gotRev, err := store.Get(ctx, "cart/sess-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(data) != `{"items":[]}` {
		t.Fatalf("unexpected data %s", data)
	}
	if gotRev != rev {
		t.Fatalf("expected revision %s, got %s", rev, gotRev)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Get(context.Background(), "cart/none")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStoreCompareAndSwap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rev1, err := store.Put(ctx, "cart/sess-1", []byte(`{"v":1}`), NoRevision)
	if err != nil {
		t.Fatalf("initial Put returned error: %v", err)
	}

	if _, err := store.Put(ctx, "cart/sess-1", []byte(`{"v":2}`), NoRevision); !errors.Is(err, ErrRevisionMismatch) {
		t.Fatalf("expected ErrRevisionMismatch for stale NoRevision write, got %v", err)
	}

	rev2, err := store.Put(ctx, "cart/sess-1", []byte(`{"v":2}`), rev1)
	if err != nil {
		t.Fatalf("CAS Put returned error: %v", err)
	}
	if rev2 == rev1 {
		t.Fatal("expected revision to change after write")
	}

	if _, err := store.Put(ctx, "cart/sess-1", []byte(`{"v":3}`), rev1); !errors.Is(err, ErrRevisionMismatch) {
		t.Fatalf("expected ErrRevisionMismatch for stale revision, got %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rev, err := store.Put(ctx, "checkout/sess-1", []byte(`{}`), AnyRevision)
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if err := store.Delete(ctx, "checkout/sess-1", "bogus"); !errors.Is(err, ErrRevisionMismatch) {
		t.Fatalf("expected ErrRevisionMismatch, got %v", err)
	}
	if err := store.Delete(ctx, "checkout/sess-1", rev); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := store.Delete(ctx, "checkout/sess-1", AnyRevision); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileStoreRejectsInvalidKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "cart/../../etc", "/abs", "cart//x", "cart/a b"} {
		if _, err := store.Put(ctx, key, []byte("{}"), AnyRevision); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestFileStoreSubscribeReceivesWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events, cancel, err := store.Subscribe(ctx, "cart/")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer cancel()

	if _, err := store.Put(ctx, "cart/sess-1", []byte(`{"v":1}`), AnyRevision); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if _, err := store.Put(ctx, "orders/sess-1", []byte(`[]`), AnyRevision); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	select {
	case event := <-events:
		if event.Key != "cart/sess-1" || event.Deleted {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cart event")
	}

	// The orders write is outside the subscribed prefix.
	select {
	case event := <-events:
		t.Fatalf("unexpected extra event %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFileStoreWatcherSeesExternalWrites(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cart"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	store, err := NewFileStore(dir, WithWatcher())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	defer store.Close()

	events, cancel, err := store.Subscribe(context.Background(), "cart/")
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer cancel()

	// Simulate another process writing the file directly.
	if err := os.WriteFile(filepath.Join(dir, "cart", "sess-9.json"), []byte(`{"v":9}`), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}

	select {
	case event := <-events:
		if event.Key != "cart/sess-9" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for external write event")
	}
}
