package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelgate-gateway/internal/blob"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*blob.Artifact, bool, error) {
	return nil, false, errors.New("store down")
}

func (failingStore) Put(context.Context, string, *blob.Artifact) error {
	return errors.New("store down")
}

func TestExactCacheRoundTrip(t *testing.T) {
	store := blob.NewMemoryStore(time.Minute, time.Minute)
	t.Cleanup(func() { store.Close() })

	exact := NewLoggingExactCache(NewExactCache(store))
	ctx := context.Background()

	if _, ok, err := exact.Lookup(ctx, "k"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	artifact := &blob.Artifact{Bytes: []byte("img"), ContentType: "image/jpeg"}
	if err := exact.Populate(ctx, "k", artifact); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	got, ok, err := exact.Lookup(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got.Bytes) != "img" || got.ContentType != "image/jpeg" {
		t.Fatalf("unexpected artifact: %#v", got)
	}
}

func TestExactCacheSurfacesStoreErrors(t *testing.T) {
	exact := NewLoggingExactCache(NewExactCache(failingStore{}))

	// Errors are returned so the handler can log and treat them as a miss.
	_, ok, err := exact.Lookup(context.Background(), "k")
	if ok {
		t.Fatalf("store error must never look like a hit")
	}
	if err == nil {
		t.Fatalf("store error must be surfaced for logging")
	}
}
