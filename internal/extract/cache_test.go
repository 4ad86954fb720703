package extract

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"), 16)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheSchemaCreation(t *testing.T) {
	c := testCache(t)
	n, err := c.Len(context.Background())
	if err != nil {
		t.Fatalf("extractions table missing: %v", err)
	}
	if n != 0 {
		t.Errorf("len = %d, want 0", n)
	}
}

func TestCacheStoreAndLookup(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if err := c.Store(ctx, "/p/A.cs", "v", "sum1", []string{"X", "Y"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	ids, ok, err := c.Lookup(ctx, "/p/A.cs", "v", "sum1")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(ids, []string{"X", "Y"}) {
		t.Errorf("ids = %v", ids)
	}

	if _, ok, _ := c.Lookup(ctx, "/p/A.cs", "v", "sum2"); ok {
		t.Error("stale checksum should miss")
	}
	if _, ok, _ := c.Lookup(ctx, "/p/A.cs", "other", "sum1"); ok {
		t.Error("other variant should miss")
	}
}

func TestCacheUpsertReplaces(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	_ = c.Store(ctx, "/p/A.cs", "v", "sum1", []string{"X"})
	_ = c.Store(ctx, "/p/A.cs", "v", "sum2", nil)

	n, err := c.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
	ids, ok, err := c.Lookup(ctx, "/p/A.cs", "v", "sum2")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}

func TestCachePersistsAcrossOpen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := OpenCache(dsn, 4)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if err := c.Store(ctx, "/p/A.cs", "v", "sum1", []string{"X"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	c.Close()

	c, err = OpenCache(dsn, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	ids, ok, err := c.Lookup(ctx, "/p/A.cs", "v", "sum1")
	if err != nil || !ok || !reflect.DeepEqual(ids, []string{"X"}) {
		t.Fatalf("Lookup after reopen: ids=%v ok=%v err=%v", ids, ok, err)
	}
}

func TestCachedSkipsUnchangedFiles(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "A.cs")
	if err := os.WriteFile(file, []byte("using X;"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	inner := Func(func(_ context.Context, path string) ([]string, error) {
		calls.Add(1)
		return []string{"X"}, nil
	})
	ex := Cached(inner, c, "test", nil)

	for i := 0; i < 3; i++ {
		ids, err := ex.Extract(ctx, file)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if !reflect.DeepEqual(ids, []string{"X"}) {
			t.Fatalf("ids = %v", ids)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("inner calls = %d, want 1", got)
	}

	if err := os.WriteFile(file, []byte("using X; using Y;"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Extract(ctx, file); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("inner calls after edit = %d, want 2", got)
	}
}

func TestCachedMissingFileDelegates(t *testing.T) {
	c := testCache(t)
	ex := Cached(Static(nil), c, "test", nil)
	ids, err := ex.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.cs"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}
