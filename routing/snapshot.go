package routing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/latticeproxy/rds-router/collab"
)

// compiledRoute is a RouteEntry with its regexes compiled once at snapshot
// build time, never recompiled on the hot path.
type compiledRoute struct {
	source *RouteEntry

	pathRegex    *regexp.Regexp         // set when source.Match == MatchRegex
	headerRegexp map[int]*regexp.Regexp // index into source.Headers -> compiled regex
}

type compiledVirtualCluster struct {
	source *VirtualClusterEntry
	regex  *regexp.Regexp
}

// compiledVHost is a VirtualHost with its routes precompiled and ready to
// iterate in declaration order.
type compiledVHost struct {
	source          *VirtualHost
	routes          []*compiledRoute
	virtualClusters []*compiledVirtualCluster
}

// wildcardBucket groups virtual hosts whose "*.suffix" domain pattern has
// the same suffix length, so the matcher can walk buckets longest-first.
type wildcardBucket struct {
	suffixLen int
	bySuffix  map[string]*compiledVHost
}

// ConfigSnapshot is the immutable, compiled form of a RouteConfiguration.
// It is built once per configuration version and is safe for concurrent
// read access from any number of goroutines; nothing on it is ever mutated
// after BuildSnapshot returns.
type ConfigSnapshot struct {
	source *RouteConfiguration

	versionInfo string

	exactHosts      map[string]*compiledVHost
	wildcardBuckets []wildcardBucket // sorted by suffixLen descending
	catchAll        *compiledVHost
}

// VersionInfo returns the content hash this snapshot was built from,
// formatted as "hash_<hex16>", or "" if none was supplied (static builds
// that were never content-hashed).
func (s *ConfigSnapshot) VersionInfo() string { return s.versionInfo }

// Source returns the RouteConfiguration this snapshot was compiled from,
// used by the admin endpoint to dump an equivalent configuration.
func (s *ConfigSnapshot) Source() *RouteConfiguration { return s.source }

// BuildSnapshot compiles a RouteConfiguration into an immutable
// ConfigSnapshot. When validateClusters is false (dynamic/RDS configs),
// static cluster-name validation is skipped entirely.
func BuildSnapshot(cfg *RouteConfiguration, cm collab.ClusterManager, validateClusters bool, versionInfo string) (*ConfigSnapshot, error) {
	snap := &ConfigSnapshot{
		source:      cfg,
		versionInfo: versionInfo,
		exactHosts:  make(map[string]*compiledVHost),
	}

	wildcardByLen := make(map[int]map[string]*compiledVHost)
	seenWildcard := make(map[string]bool)

	for _, vh := range cfg.VirtualHosts {
		cv, err := compileVirtualHost(vh, cm, validateClusters)
		if err != nil {
			return nil, err
		}

		for _, domain := range vh.Domains {
			switch {
			case domain == "*":
				if snap.catchAll != nil {
					return nil, rejectf(ReasonDuplicateCatchAll, "virtual hosts %q and %q", snap.catchAll.source.Name, vh.Name)
				}
				snap.catchAll = cv

			case strings.HasPrefix(domain, "*."):
				suffix := domain[1:] // keep the leading '.', e.g. ".example.com"
				if seenWildcard[suffix] {
					return nil, rejectf(ReasonDuplicateWildcard, "suffix %q", suffix)
				}
				seenWildcard[suffix] = true

				byLen := wildcardByLen[len(suffix)]
				if byLen == nil {
					byLen = make(map[string]*compiledVHost)
					wildcardByLen[len(suffix)] = byLen
				}
				byLen[suffix] = cv

			default:
				key := strings.ToLower(domain)
				if _, dup := snap.exactHosts[key]; dup {
					return nil, rejectf(ReasonDuplicateDomain, "domain %q", domain)
				}
				snap.exactHosts[key] = cv
			}
		}
	}

	lens := make([]int, 0, len(wildcardByLen))
	for l := range wildcardByLen {
		lens = append(lens, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(lens)))
	for _, l := range lens {
		snap.wildcardBuckets = append(snap.wildcardBuckets, wildcardBucket{suffixLen: l, bySuffix: wildcardByLen[l]})
	}

	return snap, nil
}

func compileVirtualHost(vh *VirtualHost, cm collab.ClusterManager, validateClusters bool) (*compiledVHost, error) {
	cv := &compiledVHost{source: vh}

	for _, r := range vh.Routes {
		cr, err := compileRoute(r, cm, validateClusters)
		if err != nil {
			return nil, err
		}
		cv.routes = append(cv.routes, cr)
	}

	for _, vc := range vh.VirtualClusters {
		rx, err := regexp.Compile(anchored(vc.Regex))
		if err != nil {
			return nil, rejectf(ReasonBadRegex, "virtual cluster %q: %v", vc.Name, err)
		}
		cv.virtualClusters = append(cv.virtualClusters, &compiledVirtualCluster{source: vc, regex: rx})
	}

	return cv, nil
}

func anchored(pattern string) string {
	if strings.HasPrefix(pattern, "^") {
		return pattern
	}
	return "^(?:" + pattern + ")$"
}

func compileRoute(r *RouteEntry, cm collab.ClusterManager, validateClusters bool) (*compiledRoute, error) {
	if err := validateAction(r); err != nil {
		return nil, err
	}

	cr := &compiledRoute{source: r}

	if r.Match == MatchRegex {
		rx, err := regexp.Compile(anchored(r.Path))
		if err != nil {
			return nil, rejectf(ReasonBadRegex, "route %q path regex: %v", r.Name, err)
		}
		cr.pathRegex = rx
	}

	if len(r.Headers) > 0 {
		cr.headerRegexp = make(map[int]*regexp.Regexp)
		for i, hm := range r.Headers {
			if hm.Regex == "" {
				continue
			}
			rx, err := regexp.Compile(hm.Regex)
			if err != nil {
				return nil, rejectf(ReasonBadRegex, "route %q header %q regex: %v", r.Name, hm.Name, err)
			}
			cr.headerRegexp[i] = rx
		}
	}

	if validateClusters {
		if err := validateStaticClusters(r, cm); err != nil {
			return nil, err
		}
	}

	return cr, nil
}

func validateAction(r *RouteEntry) error {
	set := 0
	if r.ClusterName != "" {
		set++
	}
	if r.ClusterHeaderName != "" {
		set++
	}
	if len(r.WeightedClusters) > 0 {
		set++
	}
	if r.Redirect != nil {
		set++
	}
	if set != 1 {
		return rejectf(ReasonBadAction, "route %q must set exactly one action, found %d", r.Name, set)
	}

	if r.ClusterHeaderName != "" && (r.HostRewrite != "" || r.AutoHostRewrite) {
		return rejectf(ReasonClusterHeaderRewrite, "route %q", r.Name)
	}

	for _, wc := range r.WeightedClusters {
		if wc.Weight < 0 {
			return rejectf(ReasonBadWeightedCluster, "route %q: negative weight for %q", r.Name, wc.Name)
		}
	}

	return nil
}

func validateStaticClusters(r *RouteEntry, cm collab.ClusterManager) error {
	check := func(name string) error {
		if name == "" {
			return nil
		}
		if _, ok := cm.Get(name); !ok {
			return rejectf(ReasonUnknownCluster, "route %q references cluster %q", r.Name, name)
		}
		return nil
	}

	if err := check(r.ClusterName); err != nil {
		return err
	}
	for _, wc := range r.WeightedClusters {
		if err := check(wc.Name); err != nil {
			return err
		}
	}
	return nil
}
