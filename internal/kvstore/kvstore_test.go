package kvstore

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBucket_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	b := testDB(t).Bucket(BucketGlobal)

	if _, ok, err := b.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}
	if err := b.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("key should be gone")
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestBucket_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	g, s := db.Bucket(BucketGlobal), db.Bucket(BucketSession)

	_ = g.Set(ctx, "k", "global")
	_ = s.Set(ctx, "k", "session")

	v, _, _ := g.Get(ctx, "k")
	if v != "global" {
		t.Errorf("global = %q", v)
	}
	if err := db.ClearScope(BucketSession); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("session scope should be cleared")
	}
	if _, ok, _ := g.Get(ctx, "k"); !ok {
		t.Error("global scope must survive clearing session")
	}
}

func TestBucket_PrefixOperations(t *testing.T) {
	ctx := context.Background()
	b := testDB(t).Bucket(BucketGlobal)
	for _, k := range []string{"notebook-storage-a", "notebook-storage-b", "notebook-transfered", "other%_"} {
		_ = b.Set(ctx, k, "x")
	}

	keys, err := b.Keys(ctx, "notebook-storage-")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if !slices.Equal(keys, []string{"notebook-storage-a", "notebook-storage-b"}) {
		t.Errorf("keys = %v", keys)
	}

	// Wildcard characters in the prefix are literal.
	keys, _ = b.Keys(ctx, "other%")
	if len(keys) != 1 {
		t.Errorf("literal prefix keys = %v", keys)
	}

	n, err := b.DeletePrefix(ctx, "notebook-storage-")
	if err != nil || n != 2 {
		t.Fatalf("DeletePrefix = %d, %v", n, err)
	}
	if _, ok, _ := b.Get(ctx, "notebook-transfered"); !ok {
		t.Error("unrelated key removed")
	}
	n, _ = b.DeletePrefix(ctx, "notebook-storage-")
	if n != 0 {
		t.Errorf("second DeletePrefix removed %d", n)
	}
}
