// Package collab declares the interfaces the routing core consumes from its
// external collaborators (runtime overrides, cluster membership, randomness,
// tracing spans, and startup gating), plus lightweight reference
// implementations. The real collaborators — TLS, connection pooling, DNS
// membership, a stats backend, span transport — live outside this module;
// only the interfaces the core needs from them are declared here.
package collab

import "net/http"

// Runtime is a process-wide keyed integer/boolean store, sampled on each
// read. A snapshot of it is what the matcher and shadow/weighted-cluster
// policies consult.
type Runtime interface {
	// GetInteger returns the value keyed by key, or def if absent.
	GetInteger(key string, def int) int

	// FeatureEnabled reports whether the runtime admits the request for a
	// boolean feature gated at defaultPct percent.
	FeatureEnabled(key string, defaultPct int) bool
}

// ClusterInfo is the minimal cluster membership fact the matcher needs at
// snapshot-build time: whether a name is known at all.
type ClusterInfo struct {
	Name string
}

// ClusterManager answers whether a statically-referenced cluster name is
// known. cluster_header routes skip this check; dynamic (RDS) snapshots
// suppress it entirely.
type ClusterManager interface {
	Get(name string) (ClusterInfo, bool)
}

// RandomGenerator is consulted both by the matcher's runtime gating and by
// weighted-cluster selection.
type RandomGenerator interface {
	Random() uint64
}

// TracingSpan is the subset of span behavior the router needs to decorate
// the outgoing request: tagging, context injection, and creating a child
// for an egress hop. The concrete tracing.Span type in this repository
// implements it.
type TracingSpan interface {
	SetTag(key string, value any)
	InjectContext(req *http.Request)
	SpawnChild(operation string) TracingSpan
}

// InitTarget is a one-shot readiness gate: exactly one caller sets it ready.
type InitTarget interface {
	SetReady()
}

// InitManager registers one-shot targets that must all become ready before
// listener serving begins.
type InitManager interface {
	RegisterTarget(name string) InitTarget
}
