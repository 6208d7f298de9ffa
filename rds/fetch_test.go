package rds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/latticeproxy/rds-router/routing"
)

func TestHTTPFetchClientBuildsExpectedURLAndDecodes(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(routing.RouteConfiguration{Name: "rc1"})
	}))
	defer server.Close()

	c := NewHTTPFetchClient(server.URL, time.Second)
	cfg, hash, err := c.Fetch(context.Background(), "rc1", "cluster-a", "node-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if cfg.Name != "rc1" {
		t.Fatalf("cfg.Name = %q, want rc1", cfg.Name)
	}
	if hash == 0 {
		t.Fatalf("expected a non-zero content hash over the raw response body")
	}
	if want := "/v1/routes/rc1/cluster-a/node-1"; gotPath != want {
		t.Fatalf("request path = %q, want %q", gotPath, want)
	}
}

func TestHTTPFetchClientHashIsOverRawBodyNotDecodedStruct(t *testing.T) {
	// Two bodies that decode to the same struct (differing only in
	// formatting/field order) must hash differently, since the contract
	// hashes the raw wire bytes rather than the re-serialized struct.
	bodies := []string{
		`{"name":"rc1","virtual_hosts":null}`,
		`{"virtual_hosts":null,   "name":"rc1"}`,
	}

	var hashes []uint64
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := NewHTTPFetchClient(server.URL, time.Second)
		_, hash, err := c.Fetch(context.Background(), "rc1", "cluster-a", "node-1")
		server.Close()
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		hashes = append(hashes, hash)
	}

	if hashes[0] == hashes[1] {
		t.Fatalf("expected byte-different bodies to hash differently, got identical hash %x for both", hashes[0])
	}
}

func TestHTTPFetchClientNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewHTTPFetchClient(server.URL, time.Second)
	if _, _, err := c.Fetch(context.Background(), "rc1", "cluster-a", "node-1"); err == nil {
		t.Fatalf("expected an error for a non-200 response")
	}
}

func TestHTTPFetchClientMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewHTTPFetchClient(server.URL, time.Second)
	if _, _, err := c.Fetch(context.Background(), "rc1", "cluster-a", "node-1"); err == nil {
		t.Fatalf("expected a decode error for a malformed body")
	}
}
