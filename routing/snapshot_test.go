package routing

import (
	"testing"

	"github.com/latticeproxy/rds-router/collab"
)

func basicConfig() *RouteConfiguration {
	return &RouteConfiguration{
		Name: "test",
		VirtualHosts: []*VirtualHost{
			{
				Name:    "default",
				Domains: []string{"example.com"},
				Routes: []*RouteEntry{
					{Name: "r1", Match: MatchPrefix, Path: "/", Action: ActionCluster, ClusterName: "svc-a"},
				},
			},
		},
	}
}

func TestBuildSnapshotVersionInfo(t *testing.T) {
	snap, err := BuildSnapshot(basicConfig(), collab.AllowAllClusterManager{}, false, "hash_deadbeef")
	if err != nil {
		t.Fatalf("BuildSnapshot: %v", err)
	}
	if got := snap.VersionInfo(); got != "hash_deadbeef" {
		t.Fatalf("VersionInfo() = %q, want hash_deadbeef", got)
	}
	if snap.Source() == nil {
		t.Fatalf("Source() = nil")
	}
}

func TestBuildSnapshotDuplicateCatchAll(t *testing.T) {
	cfg := &RouteConfiguration{
		VirtualHosts: []*VirtualHost{
			{Name: "a", Domains: []string{"*"}},
			{Name: "b", Domains: []string{"*"}},
		},
	}
	_, err := BuildSnapshot(cfg, collab.AllowAllClusterManager{}, false, "")
	if !isRejected(err, ReasonDuplicateCatchAll) {
		t.Fatalf("expected ReasonDuplicateCatchAll, got %v", err)
	}
}

func TestBuildSnapshotDuplicateDomain(t *testing.T) {
	cfg := &RouteConfiguration{
		VirtualHosts: []*VirtualHost{
			{Name: "a", Domains: []string{"example.com"}},
			{Name: "b", Domains: []string{"example.com"}},
		},
	}
	_, err := BuildSnapshot(cfg, collab.AllowAllClusterManager{}, false, "")
	if !isRejected(err, ReasonDuplicateDomain) {
		t.Fatalf("expected ReasonDuplicateDomain, got %v", err)
	}
}

func TestBuildSnapshotDuplicateWildcard(t *testing.T) {
	cfg := &RouteConfiguration{
		VirtualHosts: []*VirtualHost{
			{Name: "a", Domains: []string{"*.example.com"}},
			{Name: "b", Domains: []string{"*.example.com"}},
		},
	}
	_, err := BuildSnapshot(cfg, collab.AllowAllClusterManager{}, false, "")
	if !isRejected(err, ReasonDuplicateWildcard) {
		t.Fatalf("expected ReasonDuplicateWildcard, got %v", err)
	}
}

func TestBuildSnapshotUnknownCluster(t *testing.T) {
	cfg := basicConfig()
	_, err := BuildSnapshot(cfg, collab.NewStaticClusterManager("svc-b"), true, "")
	if !isRejected(err, ReasonUnknownCluster) {
		t.Fatalf("expected ReasonUnknownCluster, got %v", err)
	}

	// validateClusters=false must skip the check entirely.
	if _, err := BuildSnapshot(cfg, collab.NewStaticClusterManager("svc-b"), false, ""); err != nil {
		t.Fatalf("BuildSnapshot with validateClusters=false: %v", err)
	}
}

func TestBuildSnapshotMultipleActionsRejected(t *testing.T) {
	cfg := &RouteConfiguration{
		VirtualHosts: []*VirtualHost{
			{
				Name:    "a",
				Domains: []string{"example.com"},
				Routes: []*RouteEntry{
					{Name: "r", Match: MatchPath, Path: "/x", ClusterName: "svc-a", ClusterHeaderName: "x-cluster"},
				},
			},
		},
	}
	_, err := BuildSnapshot(cfg, collab.AllowAllClusterManager{}, false, "")
	if !isRejected(err, ReasonBadAction) {
		t.Fatalf("expected ReasonBadAction, got %v", err)
	}
}

func TestBuildSnapshotClusterHeaderWithHostRewriteRejected(t *testing.T) {
	cfg := &RouteConfiguration{
		VirtualHosts: []*VirtualHost{
			{
				Name:    "a",
				Domains: []string{"example.com"},
				Routes: []*RouteEntry{
					{Name: "r", Match: MatchPath, Path: "/x", ClusterHeaderName: "x-cluster", HostRewrite: "upstream.internal"},
				},
			},
		},
	}
	_, err := BuildSnapshot(cfg, collab.AllowAllClusterManager{}, false, "")
	if !isRejected(err, ReasonClusterHeaderRewrite) {
		t.Fatalf("expected ReasonClusterHeaderRewrite, got %v", err)
	}
}

func TestBuildSnapshotBadRegexRejected(t *testing.T) {
	cfg := &RouteConfiguration{
		VirtualHosts: []*VirtualHost{
			{
				Name:    "a",
				Domains: []string{"example.com"},
				Routes: []*RouteEntry{
					{Name: "r", Match: MatchRegex, Path: "(unterminated", Action: ActionCluster, ClusterName: "svc-a"},
				},
			},
		},
	}
	_, err := BuildSnapshot(cfg, collab.AllowAllClusterManager{}, false, "")
	if !isRejected(err, ReasonBadRegex) {
		t.Fatalf("expected ReasonBadRegex, got %v", err)
	}
}

func isRejected(err error, reason rejectReason) bool {
	rej, ok := err.(*ConfigRejected)
	return ok && rej.Reason == reason
}
