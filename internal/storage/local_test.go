package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
)

func newTestAdapter(t *testing.T) *LocalAdapter {
	t.Helper()
	adapter, err := NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("create local adapter: %v", err)
	}
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestLocalAdapterRoundTrip(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	if err := adapter.Put(ctx, "runs/r1/metadata.json", bytes.NewReader([]byte(`{"id":"r1"}`))); err != nil {
		t.Fatalf("put: %v", err)
	}

	exists, err := adapter.Exists(ctx, "runs/r1/metadata.json")
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got %v %v", exists, err)
	}

	reader, err := adapter.Get(ctx, "runs/r1/metadata.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"id":"r1"}` {
		t.Fatalf("unexpected content: %s", data)
	}
}

func TestLocalAdapterPutReplacesExistingObject(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	if err := adapter.Put(ctx, "out.mp3", bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := adapter.Put(ctx, "out.mp3", bytes.NewReader([]byte("second"))); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	reader, err := adapter.Get(ctx, "out.mp3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "second" {
		t.Fatalf("expected overwrite to win, got %s", data)
	}
}

func TestLocalAdapterGetMissingReturnsErrNotFound(t *testing.T) {
	adapter := newTestAdapter(t)
	_, err := adapter.Get(context.Background(), "nope.bin")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalAdapterListReturnsSortedPrefixMatches(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	for _, path := range []string{"runs/b/metadata.json", "runs/a/metadata.json", "other/x.bin"} {
		if err := adapter.Put(ctx, path, bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("put %s: %v", path, err)
		}
	}

	paths, err := adapter.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(paths) != 2 || paths[0] != "runs/a/metadata.json" || paths[1] != "runs/b/metadata.json" {
		t.Fatalf("unexpected listing: %v", paths)
	}
}

func TestLocalAdapterDeleteIsIdempotent(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	if err := adapter.Put(ctx, "gone.bin", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := adapter.Delete(ctx, "gone.bin"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := adapter.Delete(ctx, "gone.bin"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	exists, err := adapter.Exists(ctx, "gone.bin")
	if err != nil || exists {
		t.Fatalf("expected object gone, got %v %v", exists, err)
	}
}

func TestLocalAdapterRejectsEscapingPaths(t *testing.T) {
	adapter := newTestAdapter(t)
	if err := adapter.Put(context.Background(), "../outside.bin", bytes.NewReader([]byte("x"))); err == nil {
		t.Fatal("expected error for path escaping the storage root")
	}
}

func TestLocalAdapterConcurrentWriters(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("frag/%02d.bin", i)
			if err := adapter.Put(ctx, path, bytes.NewReader([]byte("data"))); err != nil {
				t.Errorf("put %s: %v", path, err)
			}
		}(i)
	}
	wg.Wait()

	paths, err := adapter.List(ctx, "frag/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(paths) != 10 {
		t.Fatalf("expected 10 objects, got %d", len(paths))
	}
}
