package rds

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latticeproxy/rds-router/collab"
	"github.com/latticeproxy/rds-router/logging/loggingtest"
	"github.com/latticeproxy/rds-router/routing"
)

type fakeFetchClient struct {
	mu    sync.Mutex
	seq   []fetchResult
	calls int
}

type fetchResult struct {
	cfg  *routing.RouteConfiguration
	hash uint64
	err  error
}

func (f *fakeFetchClient) Fetch(ctx context.Context, routeConfigName, clusterName, nodeID string) (*routing.RouteConfiguration, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.seq) {
		i = len(f.seq) - 1
	}
	f.calls++
	r := f.seq[i]
	return r.cfg, r.hash, r.err
}

func oneHostConfig(clusterName string) *routing.RouteConfiguration {
	return &routing.RouteConfiguration{
		Name: "rc1",
		VirtualHosts: []*routing.VirtualHost{
			{
				Name:    "default",
				Domains: []string{"*"},
				Routes: []*routing.RouteEntry{
					{Match: routing.MatchPrefix, Path: "/", Action: routing.ActionCluster, ClusterName: clusterName},
				},
			},
		},
	}
}

func TestProviderPublishesFirstSnapshot(t *testing.T) {
	fc := &fakeFetchClient{seq: []fetchResult{{cfg: oneHostConfig("svc-a"), hash: 1}}}
	lt := loggingtest.New()
	defer lt.Close()

	p := NewProvider(Options{
		Key:            Key{RouteConfigName: "rc1"},
		RefreshDelay:   10 * time.Millisecond,
		Fetch:          fc,
		ClusterManager: collab.AllowAllClusterManager{},
		Logger:         lt,
	})
	p.Start()
	defer p.Stop()

	if err := lt.WaitFor(LogFetchApplied, time.Second); err != nil {
		t.Fatalf("expected an applied log line: %v", err)
	}

	snap := p.Snapshot()
	if snap == nil {
		t.Fatalf("expected a published snapshot")
	}
	rt := snap.Route(headerSet(":path", "/"), "anything", 0, collab.NewStaticRuntime(nil))
	if rt == nil || rt.ClusterName != "svc-a" {
		t.Fatalf("expected route to svc-a, got %#v", rt)
	}
}

func headerSet(pairs ...string) map[string][]string {
	h := make(map[string][]string)
	for i := 0; i+1 < len(pairs); i += 2 {
		h[pairs[i]] = []string{pairs[i+1]}
	}
	return h
}

// TestProviderSkipsRepublishOnUnchangedContent asserts the provider treats
// the fetch client's hash as authoritative dedup input: it neither
// recomputes nor second-guesses it by re-serializing the decoded struct, so
// equal hashes (even across two distinct cfg pointers) dedup and a changed
// hash always republishes.
func TestProviderSkipsRepublishOnUnchangedContent(t *testing.T) {
	fc := &fakeFetchClient{seq: []fetchResult{
		{cfg: oneHostConfig("svc-a"), hash: 1},
		{cfg: oneHostConfig("svc-a"), hash: 1},
		{cfg: oneHostConfig("svc-b"), hash: 2},
	}}
	lt := loggingtest.New()
	defer lt.Close()

	p := NewProvider(Options{
		Key:            Key{RouteConfigName: "rc1"},
		RefreshDelay:   5 * time.Millisecond,
		Fetch:          fc,
		ClusterManager: collab.AllowAllClusterManager{},
		Logger:         lt,
	})
	p.Start()
	defer p.Stop()

	if err := lt.WaitForN(LogFetchApplied, 2, 2*time.Second); err != nil {
		t.Fatalf("expected exactly two distinct applied snapshots (svc-a once, svc-b once): %v", err)
	}

	// Later polls keep returning hash 2, which must not be applied again.
	time.Sleep(50 * time.Millisecond)
	if n := lt.Count(LogFetchApplied); n != 2 {
		t.Fatalf("expected exactly two applied snapshots, got %d", n)
	}
}

func TestProviderMarksReadyEvenOnFetchFailure(t *testing.T) {
	fc := &fakeFetchClient{seq: []fetchResult{{err: errors.New("boom")}}}
	lt := loggingtest.New()
	defer lt.Close()

	barrier := collab.NewBarrier()
	p := NewProvider(Options{
		Key:            Key{RouteConfigName: "rc1"},
		RefreshDelay:   5 * time.Millisecond,
		Fetch:          fc,
		ClusterManager: collab.AllowAllClusterManager{},
		Init:           barrier,
		Logger:         lt,
	})
	p.Start()
	defer p.Stop()

	select {
	case <-barrier.Ready():
	case <-time.After(time.Second):
		t.Fatalf("expected the init barrier to become ready even after a failed fetch")
	}
}

func TestProviderIgnoresEmptyConfiguration(t *testing.T) {
	fc := &fakeFetchClient{seq: []fetchResult{{cfg: &routing.RouteConfiguration{Name: "rc1"}}}}
	lt := loggingtest.New()
	defer lt.Close()

	p := NewProvider(Options{
		Key:            Key{RouteConfigName: "rc1"},
		RefreshDelay:   5 * time.Millisecond,
		Fetch:          fc,
		ClusterManager: collab.AllowAllClusterManager{},
		Logger:         lt,
	})
	p.Start()
	defer p.Stop()

	if err := lt.WaitFor(LogFetchEmpty, time.Second); err != nil {
		t.Fatalf("expected an empty-configuration log line: %v", err)
	}
	if snap := p.Snapshot(); snap != nil {
		t.Fatalf("expected no snapshot to be published for an empty configuration")
	}
}

func TestVersionInfoFormat(t *testing.T) {
	var h uint64 = 0xdeadbeef
	got := versionInfo(h)
	if got != "hash_00000000deadbeef" {
		t.Fatalf("versionInfo(%x) = %q, want hash_00000000deadbeef", h, got)
	}
}

func TestProviderManagerRefcounting(t *testing.T) {
	fc := &fakeFetchClient{seq: []fetchResult{{cfg: oneHostConfig("svc-a")}}}
	m := NewProviderManager()
	var started int32
	m.newFunc = func(opts Options) *Provider {
		atomic.AddInt32(&started, 1)
		return NewProvider(opts)
	}

	key := Key{RouteConfigName: "rc1"}
	opts := Options{Key: key, RefreshDelay: time.Hour, Fetch: fc, ClusterManager: collab.AllowAllClusterManager{}}

	p1 := m.Acquire(opts)
	p2 := m.Acquire(opts)
	if p1 != p2 {
		t.Fatalf("expected Acquire to return the same provider for the same key")
	}
	if atomic.LoadInt32(&started) != 1 {
		t.Fatalf("expected exactly one provider to be constructed, got %d", started)
	}

	m.Release(key)
	if _, ok := m.All()[key]; !ok {
		t.Fatalf("expected the provider to still be registered after one of two releases")
	}

	m.Release(key)
	if _, ok := m.All()[key]; ok {
		t.Fatalf("expected the provider to be torn down after the final release")
	}
}

func TestProviderManagerReleaseUnknownKeyIsNoop(t *testing.T) {
	m := NewProviderManager()
	m.Release(Key{RouteConfigName: "never-acquired"})
}
