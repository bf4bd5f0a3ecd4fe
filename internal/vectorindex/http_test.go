package vectorindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewHTTPIndexValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPIndex(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestHTTPIndexQuery(t *testing.T) {
	t.Parallel()

	var gotReq queryRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}

		resp := queryResponse{Matches: []Match{
			{ID: "v1", Score: 0.93, Metadata: Metadata{CacheKey: "key-1", Bucket: "flux_512x512"}},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(Config{BaseURL: srv.URL, APIToken: "tok"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewHTTPIndex: %v", err)
	}

	matches, err := idx.Query(context.Background(), []float32{0.5, 0.5}, "flux_512x512", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected Authorization header: %s", gotAuth)
	}
	if gotReq.TopK != 1 || gotReq.Filter["bucket"] != "flux_512x512" || !gotReq.ReturnMetadata {
		t.Fatalf("unexpected query payload: %#v", gotReq)
	}
	if len(matches) != 1 || matches[0].Score != 0.93 || matches[0].Metadata.CacheKey != "key-1" {
		t.Fatalf("unexpected matches: %#v", matches)
	}
}

func TestHTTPIndexUpsert(t *testing.T) {
	t.Parallel()

	var gotReq upsertRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upsert" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(Config{BaseURL: srv.URL, APIToken: "tok"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewHTTPIndex: %v", err)
	}

	entry := Entry{ID: "id-1", Values: []float32{1, 2}, Metadata: Metadata{CacheKey: "k", Bucket: "b"}}
	if err := idx.Upsert(context.Background(), entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(gotReq.Vectors) != 1 || gotReq.Vectors[0].ID != "id-1" || gotReq.Vectors[0].Metadata.Bucket != "b" {
		t.Fatalf("unexpected upsert payload: %#v", gotReq)
	}
}

func TestHTTPIndexUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	idx, err := NewHTTPIndex(Config{BaseURL: srv.URL, APIToken: "tok"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewHTTPIndex: %v", err)
	}

	if _, err := idx.Query(context.Background(), []float32{1}, "b", 1); err == nil {
		t.Fatalf("expected error on 500")
	}
}
