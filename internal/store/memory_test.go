package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryTTL(t *testing.T) {
	m := NewMemory(0, 10*time.Millisecond)
	defer m.Close()

	ctx := context.Background()
	key := "prefix|sess|123"
	val := []byte("envelope")

	if err := m.Set(ctx, key, val, 20*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, hit, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !hit {
		t.Fatalf("expected hit immediately after Set")
	}
	if string(got) != "envelope" {
		t.Fatalf("expected 'envelope', got %q", got)
	}

	// Wait for TTL to expire
	time.Sleep(30 * time.Millisecond)

	_, hit, err = m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after TTL failed: %v", err)
	}
	if hit {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestMemoryNoTTLPersists(t *testing.T) {
	m := NewMemory(0, time.Minute)
	defer m.Close()

	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, hit, err := m.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("expected durable entry, hit=%v err=%v", hit, err)
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory(0, time.Minute)
	defer m.Close()

	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, hit, _ := m.Get(ctx, "k"); hit {
		t.Fatal("expected miss after Delete")
	}
	// Deleting an absent key is fine.
	if err := m.Delete(ctx, "absent"); err != nil {
		t.Fatalf("Delete absent key failed: %v", err)
	}
}

func TestMemorySetCopiesValue(t *testing.T) {
	m := NewMemory(0, time.Minute)
	defer m.Close()

	ctx := context.Background()
	val := []byte("abc")
	if err := m.Set(ctx, "k", val, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val[0] = 'z'

	got, hit, err := m.Get(ctx, "k")
	if err != nil || !hit {
		t.Fatalf("Get failed: hit=%v err=%v", hit, err)
	}
	if string(got) != "abc" {
		t.Fatalf("stored value aliased the caller's buffer: %q", got)
	}
}
