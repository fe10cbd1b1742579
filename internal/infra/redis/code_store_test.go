package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestCodeStoreReservesAndReleases(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewCodeStore(newClient(mr), time.Hour, "node-a")
	other := NewCodeStore(newClient(mr), time.Hour, "node-b")

	ok, err := store.Reserve(ctx, "123456")
	if err != nil || !ok {
		t.Fatalf("expected reservation, got ok=%v err=%v", ok, err)
	}
	if !mr.Exists("quiz:session:123456") {
		t.Fatalf("expected redis key to be set")
	}
	if ok, _ := other.Reserve(ctx, "123456"); ok {
		t.Fatalf("expected other instance to be refused")
	}
	if owner, _ := other.Owner(ctx, "123456"); owner != "node-a" {
		t.Fatalf("expected node-a to own the code, got %q", owner)
	}

	if err := store.Release(ctx, "123456"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("quiz:session:123456") {
		t.Fatalf("expected redis key to be removed")
	}
	if owner, err := other.Owner(ctx, "123456"); err != nil || owner != "" {
		t.Fatalf("expected free code, got %q err=%v", owner, err)
	}
}

func TestCodeStoreReservationExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewCodeStore(newClient(mr), time.Minute, "")
	_, _ = store.Reserve(ctx, "654321")
	mr.FastForward(2 * time.Minute)
	if ok, _ := store.Reserve(ctx, "654321"); !ok {
		t.Fatalf("expected expired reservation to be reusable")
	}
}

func TestCodeStoreRefreshKeepsOwnership(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewCodeStore(newClient(mr), 10*time.Minute, "node-a")
	other := NewCodeStore(newClient(mr), 10*time.Minute, "node-b")

	if ok, _ := store.Reserve(ctx, "111111"); !ok {
		t.Fatalf("expected reservation")
	}
	mr.FastForward(6 * time.Minute)
	if held, err := store.Refresh(ctx, "111111"); err != nil || !held {
		t.Fatalf("expected refresh to keep the code, got held=%v err=%v", held, err)
	}
	mr.FastForward(6 * time.Minute)
	if ok, _ := other.Reserve(ctx, "111111"); ok {
		t.Fatalf("expected refreshed code to stay reserved past the original ttl")
	}
	if held, _ := other.Refresh(ctx, "111111"); held {
		t.Fatalf("expected refresh by another instance to be refused")
	}

	if err := other.Release(ctx, "111111"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if owner, _ := store.Owner(ctx, "111111"); owner != "node-a" {
		t.Fatalf("expected release by a non-owner to keep node-a's reservation, got %q", owner)
	}

	mr.Del("quiz:session:111111")
	if held, _ := store.Refresh(ctx, "111111"); !held {
		t.Fatalf("expected refresh to retake a lapsed code")
	}
	if ttl := mr.TTL("quiz:session:111111"); ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
