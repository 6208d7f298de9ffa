package routing

import (
	"net/http"

	"github.com/latticeproxy/rds-router/collab"
)

// resolveAction turns a matched RouteEntry's action into a Route
// (validateAction guarantees exactly one action is set at build time). It
// returns nil when a weighted_clusters action has a total effective weight
// of zero.
func resolveAction(r *RouteEntry, h http.Header, randomValue uint64, rt collab.Runtime) *Route {
	switch {
	case r.ClusterName != "":
		return &Route{ClusterName: r.ClusterName}

	case r.ClusterHeaderName != "":
		// An empty/missing header means the cluster lookup will fail
		// downstream; the router does not reject the match for it.
		return &Route{ClusterName: h.Get(r.ClusterHeaderName)}

	case len(r.WeightedClusters) > 0:
		name, ok := selectWeightedCluster(r.WeightedClusters, randomValue, rt)
		if !ok {
			return nil
		}
		return &Route{ClusterName: name}

	case r.Redirect != nil:
		return resolveRedirect(r.Redirect, h)

	default:
		return nil
	}
}

// selectWeightedCluster computes the effective weight of every candidate by
// reading its runtime override once, to avoid inconsistent total/pick
// pairings, sums them, and
// selects deterministically via pick = randomValue % total, walking the
// list in declaration order and subtracting weights. Ties are broken by
// declaration order, since the first entry whose cumulative weight exceeds
// pick wins.
func selectWeightedCluster(clusters []*WeightedCluster, randomValue uint64, rt collab.Runtime) (string, bool) {
	effective := make([]uint64, len(clusters))
	var total uint64
	for i, wc := range clusters {
		w := wc.Weight
		if wc.RuntimeKey != "" {
			w = rt.GetInteger(wc.RuntimeKey, wc.Weight)
		}
		if w < 0 {
			w = 0
		}
		if w > MaxClusterWeight {
			w = MaxClusterWeight
		}
		effective[i] = uint64(w)
		total += uint64(w)
	}

	if total == 0 {
		return "", false
	}

	pick := randomValue % total
	for i, wc := range clusters {
		if pick < effective[i] {
			return wc.Name, true
		}
		pick -= effective[i]
	}

	// Unreachable for a well-formed total, but keep selection deterministic
	// and total rather than panicking on float/overflow edge cases.
	return clusters[len(clusters)-1].Name, true
}

func resolveRedirect(ra *RedirectAction, h http.Header) *Route {
	route := &Route{IsRedirect: true}

	route.RedirectScheme = ra.SchemeRedirect
	if route.RedirectScheme == "" {
		route.RedirectScheme = h.Get(ForwardedProtoHeader)
	}

	route.RedirectHost = ra.HostRedirect
	if route.RedirectHost == "" {
		route.RedirectHost = h.Get(":authority")
	}

	route.RedirectPath = ra.PathRedirect
	if route.RedirectPath == "" {
		route.RedirectPath = h.Get(":path")
	}

	return route
}
