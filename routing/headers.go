package routing

import "net/http"

// FinalizeRequestHeaders applies, in order: the config-level request header
// removals, the prefix rewrite (prefix-matched routes only, recording the
// original in OriginalPathHeader), the host rewrite, then the config-level,
// virtual-host-level and route-level request header additions, route
// additions taking precedence over virtual-host additions when a name
// repeats, and virtual-host over config-level. Equal-precedence additions
// preserve their declaration order. route must be non-nil and non-redirect.
func (s *ConfigSnapshot) FinalizeRequestHeaders(route *Route, h http.Header) {
	if route == nil || route.Entry == nil {
		return
	}

	for _, name := range s.source.RequestHeadersToRemove {
		h.Del(name)
	}

	applyRewrite(route.Entry, h)
	applyHostRewrite(route.Entry, h)

	seen := make(map[string]bool)
	addAll := func(adds []HeaderValue) {
		for _, kv := range adds {
			if seen[httpCanonical(kv.Key)] {
				continue
			}
			seen[httpCanonical(kv.Key)] = true
			h.Set(kv.Key, kv.Value)
		}
	}

	addAll(route.Entry.RequestHeadersToAdd)
	if route.vh != nil {
		addAll(route.vh.RequestHeadersToAdd)
	}
	addAll(s.source.RequestHeadersToAdd)
}

// FinalizeResponseHeaders strips the configured response header names and
// applies the config-level response header additions. Route/virtual-host
// level response header policy has no declared field; only request-header-add
// exists at that layer.
func (s *ConfigSnapshot) FinalizeResponseHeaders(h http.Header) {
	for _, name := range s.source.ResponseHeadersToRemove {
		h.Del(name)
	}
	for _, kv := range s.source.ResponseHeadersToAdd {
		h.Set(kv.Key, kv.Value)
	}
}

func httpCanonical(name string) string {
	return http.CanonicalHeaderKey(name)
}

// applyRewrite rewrites :path in place when the matched route carries a
// prefix_rewrite, preserving the untouched original in OriginalPathHeader.
// Only prefix-matched routes are rewritten; a prefix_rewrite on a path- or
// regex-matched route leaves :path unchanged.
func applyRewrite(r *RouteEntry, h http.Header) {
	if r.PrefixRewrite == "" {
		return
	}

	original := h.Get(":path")
	exact, _ := splitPath(original)

	if r.Match != MatchPrefix {
		return
	}

	prefixLen := len(r.Path)
	if prefixLen > len(exact) {
		return
	}

	rewritten := r.PrefixRewrite + exact[prefixLen:]
	h.Set(":path", rewritten)
	h.Set(OriginalPathHeader, original)
}

// applyHostRewrite sets :authority. The data model lets either an explicit
// host_rewrite or auto_host_rewrite apply; this repository's precedence is:
// an explicit host_rewrite always wins, because it is a per-route operator
// decision that should not be silently overridden by a boolean flag meant
// for the common case. auto_host_rewrite's upstream-address substitution happens
// after cluster/load-balancer selection, outside the matcher; here we only
// record that it was requested by leaving :authority untouched when no
// explicit rewrite is present, so the forwarding collaborator knows to
// perform the substitution once it picks an endpoint.
func applyHostRewrite(r *RouteEntry, h http.Header) {
	if r.HostRewrite != "" {
		h.Set(":authority", r.HostRewrite)
	}
}
