// Package rds implements the dynamic, RDS-style route configuration
// provider: periodic polling of a discovery cluster, content-hash
// deduplication, and atomic publish of an immutable routing.ConfigSnapshot
// for lock-free reads on the hot path.
package rds

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	ot "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/latticeproxy/rds-router/collab"
	"github.com/latticeproxy/rds-router/logging"
	"github.com/latticeproxy/rds-router/routing"
	"github.com/latticeproxy/rds-router/tracing"
)

const (
	LogFetchStarted  = "starting route configuration polling"
	LogFetchStopped  = "route configuration polling stopped"
	LogFetchFailed   = "failed to fetch route configuration"
	LogFetchEmpty    = "received empty route configuration; ignoring"
	LogFetchRejected = "fetched route configuration rejected"
	LogFetchApplied  = "route configuration applied"
)

var (
	updateAttempt = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rds_router",
		Name:      "update_attempt_total",
		Help:      "total route configuration fetch attempts",
	}, []string{"route_config_name"})
	updateSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rds_router",
		Name:      "update_success_total",
		Help:      "total route configuration fetches that produced a new snapshot",
	}, []string{"route_config_name"})
	updateFailure = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rds_router",
		Name:      "update_failure_total",
		Help:      "total route configuration fetches that errored or were rejected",
	}, []string{"route_config_name"})
	updateEmpty = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rds_router",
		Name:      "update_empty_total",
		Help:      "total route configuration fetches that returned an empty configuration",
	}, []string{"route_config_name"})
	configReload = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rds_router",
		Name:      "config_reload_total",
		Help:      "total times a newly fetched configuration differed from the published snapshot",
	}, []string{"route_config_name"})
)

// Key identifies a provider by the discovery cluster it polls and the route
// configuration name it asks for.
type Key struct {
	DiscoveryAddress string
	RouteConfigName  string
}

func (k Key) String() string { return k.DiscoveryAddress + "/" + k.RouteConfigName }

// Options configures a single Provider.
type Options struct {
	Key              Key
	LocalClusterName string
	LocalNodeID      string
	RefreshDelay     time.Duration
	Fetch            FetchClient
	ClusterManager   collab.ClusterManager
	ValidateClusters bool
	Tracer           ot.Tracer
	Init             collab.InitManager

	// Logger receives the provider's lifecycle/error logs. Defaults to
	// logging.New() when nil, so tests can substitute loggingtest.New() to
	// assert on specific log lines.
	Logger logging.Logger
}

// Provider owns one atomic ConfigSnapshot, published by a single polling
// goroutine and read lock-free by any number of concurrent callers via
// Snapshot.
type Provider struct {
	key      Key
	opts     Options
	log      logging.Logger
	init     collab.InitTarget
	current  atomic.Pointer[routing.ConfigSnapshot]
	lastHash uint64
	hasHash  bool

	refs int
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewProvider constructs a Provider; it does not start polling until Start
// is called.
func NewProvider(opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New()
	}

	p := &Provider{
		key:  opts.Key,
		opts: opts,
		log:  logger.WithFields(map[string]interface{}{"route_config_name": opts.Key.RouteConfigName}),
		quit: make(chan struct{}),
		refs: 1,
	}
	if opts.Init != nil {
		p.init = opts.Init.RegisterTarget(opts.Key.String())
	}
	return p
}

// Snapshot returns the most recently published configuration, or nil before
// the first successful fetch.
func (p *Provider) Snapshot() *routing.ConfigSnapshot {
	return p.current.Load()
}

// LocalClusterName returns the cluster name this provider reports itself as
// when fetching, for callers (e.g. the admin endpoint) that need to label a
// provider without reaching into its Options.
func (p *Provider) LocalClusterName() string {
	return p.opts.LocalClusterName
}

// Start begins the polling loop in a new goroutine.
func (p *Provider) Start() {
	p.wg.Add(1)
	go p.poll()
}

// Stop signals the polling loop to exit and waits for it.
func (p *Provider) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Provider) poll() {
	defer p.wg.Done()

	p.log.WithFields(map[string]interface{}{"refresh_delay": p.opts.RefreshDelay}).Info(LogFetchStarted)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.RefreshDelay
	b.MaxInterval = 10 * p.opts.RefreshDelay

	for {
		delay := p.fetchOnce(b)

		select {
		case <-p.quit:
			p.log.Info(LogFetchStopped)
			return
		case <-time.After(delay):
		}
	}
}

// fetchOnce performs a single fetch-validate-publish cycle and returns how
// long to wait before the next attempt: the configured refresh delay on
// success, a jittered backoff interval on failure.
func (p *Provider) fetchOnce(b *backoff.ExponentialBackOff) time.Duration {
	name := p.opts.Key.RouteConfigName
	updateAttempt.WithLabelValues(name).Inc()

	span := tracing.CreateSpan("fetch_route_configuration", context.Background(), p.opts.Tracer)
	defer span.Finish()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, hash, err := p.opts.Fetch.Fetch(ctx, name, p.opts.LocalClusterName, p.opts.LocalNodeID)
	if err != nil {
		p.log.Errorf("%s: %v", LogFetchFailed, err)
		span.SetTag("error", true)
		updateFailure.WithLabelValues(name).Inc()
		p.markReady()
		return b.NextBackOff()
	}

	if cfg == nil || len(cfg.VirtualHosts) == 0 {
		p.log.Warn(LogFetchEmpty)
		updateEmpty.WithLabelValues(name).Inc()
		p.markReady()
		return p.opts.RefreshDelay
	}

	if p.hasHash && hash == p.lastHash {
		b.Reset()
		p.markReady()
		return p.opts.RefreshDelay
	}

	snap, err := routing.BuildSnapshot(cfg, p.opts.ClusterManager, p.opts.ValidateClusters, versionInfo(hash))
	if err != nil {
		p.log.Errorf("%s: %v", LogFetchRejected, err)
		span.SetTag("error", true)
		updateFailure.WithLabelValues(name).Inc()
		p.markReady()
		return b.NextBackOff()
	}

	p.current.Store(snap)
	p.lastHash = hash
	p.hasHash = true
	configReload.WithLabelValues(name).Inc()
	updateSuccess.WithLabelValues(name).Inc()
	p.log.Infof("%s: version_info=%s", LogFetchApplied, snap.VersionInfo())

	b.Reset()
	p.markReady()
	return p.opts.RefreshDelay
}

func (p *Provider) markReady() {
	if p.init != nil {
		p.init.SetReady()
		p.init = nil
	}
}

func versionInfo(hash uint64) string {
	return fmt.Sprintf("hash_%016x", hash)
}
