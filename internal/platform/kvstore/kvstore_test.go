package kvstore

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	v, ok, err := s.Get(context.Background(), "u1", "history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || v != nil {
		t.Errorf("expected missing key, got %q", v)
	}
}

func TestStore_SetReplacesValue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Set(ctx, "u1", "history", []byte(`[1]`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "u1", "history", []byte(`[2,1]`)); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "u1", "history")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != `[2,1]` {
		t.Errorf("expected replaced value, got %s", v)
	}
}

func TestStore_UserIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.Set(ctx, "u1", "history", []byte(`["a"]`))
	if _, ok, _ := s.Get(ctx, "u2", "history"); ok {
		t.Error("expected u2 to see no value")
	}
	keys, err := s.Keys(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "history" {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestBucket_Remove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b := s.For("u1")
	if err := b.Set(ctx, "aiFeedback", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := b.Remove(ctx, "aiFeedback"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := b.Get(ctx, "aiFeedback"); ok {
		t.Error("expected key to be removed")
	}
}

func TestStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()
	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	s.Set(ctx, "u1", "history", []byte(`["x"]`))
	s.Close()

	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, ok, _ := s2.Get(ctx, "u1", "history")
	if !ok || string(v) != `["x"]` {
		t.Errorf("expected value to survive reopen, got %s", v)
	}
}
