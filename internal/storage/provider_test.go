package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	if err := provider.Set(ctx, KeyPrefixEvent+"ev-1", []byte(`{"id":"ev-1"}`), 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	value, err := provider.Get(ctx, KeyPrefixEvent+"ev-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(value) != `{"id":"ev-1"}` {
		t.Fatalf("unexpected value %q", value)
	}

	if err := provider.Del(ctx, KeyPrefixEvent+"ev-1"); err != nil {
		t.Fatalf("Del returned error: %v", err)
	}
	if _, err := provider.Get(ctx, KeyPrefixEvent+"ev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryProviderMissingKey(t *testing.T) {
	provider := NewMemoryProvider()
	if _, err := provider.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryProviderTTLExpiry(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	if err := provider.Set(ctx, "short-lived", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, err := provider.Get(ctx, "short-lived"); err != nil {
		t.Fatalf("value should be readable before expiry: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := provider.Get(ctx, "short-lived"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryProviderSetNX(t *testing.T) {
	provider := NewMemoryProvider()
	ctx := context.Background()

	ok, err := provider.SetNX(ctx, "lock", []byte("a"), 0)
	if err != nil || !ok {
		t.Fatalf("first SetNX should win, got ok=%v err=%v", ok, err)
	}

	ok, err = provider.SetNX(ctx, "lock", []byte("b"), 0)
	if err != nil {
		t.Fatalf("second SetNX returned error: %v", err)
	}
	if ok {
		t.Fatal("second SetNX should not overwrite a live key")
	}

	value, err := provider.Get(ctx, "lock")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(value) != "a" {
		t.Fatalf("expected original value, got %q", value)
	}
}

func TestNoopProviderNeverStores(t *testing.T) {
	var provider Provider = NoopProvider{}
	ctx := context.Background()

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
