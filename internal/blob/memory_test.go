package blob

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	defer s.Close()

	ctx := context.Background()
	in := &Artifact{
		Bytes:       []byte("png-bytes"),
		ContentType: "image/png",
		Metadata:    map[string]string{"bucket": "flux_512x512"},
	}

	if err := s.Put(ctx, "k1", in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected hit after Put")
	}
	if string(got.Bytes) != "png-bytes" || got.ContentType != "image/png" {
		t.Fatalf("unexpected artifact: %#v", got)
	}
	if got.Metadata["bucket"] != "flux_512x512" {
		t.Fatalf("metadata not preserved: %#v", got.Metadata)
	}

	// Stored copy must be decoupled from the caller's buffer.
	in.Bytes[0] = 'X'
	got2, _, _ := s.Get(ctx, "k1")
	if string(got2.Bytes) != "png-bytes" {
		t.Fatalf("stored artifact shares caller's buffer")
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore(20*time.Millisecond, 10*time.Millisecond)
	defer s.Close()

	ctx := context.Background()
	if err := s.Put(ctx, "k", &Artifact{Bytes: []byte("v")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after TTL expiry")
	}
}

func TestMemoryStoreMiss(t *testing.T) {
	s := NewMemoryStore(time.Minute, time.Minute)
	defer s.Close()

	if _, ok, err := s.Get(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}
