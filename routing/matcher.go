package routing

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/latticeproxy/rds-router/collab"
)

// ForwardedProtoHeader and InternalTrustHeader gate the SSL requirement
// check: a request is considered to arrive over TLS when it carries
// ForwardedProtoHeader: https, or when its virtual host only requires TLS
// for external traffic and the request carries InternalTrustHeader.
const (
	ForwardedProtoHeader = "x-forwarded-proto"
	InternalTrustHeader  = "x-internal-trust"
	AuthorityHeader      = "x-envoy-authority" // falls back to Host
)

// Route is the pure function from headers and a random draw to a decision:
// for a given snapshot, (headers, randomValue) always produces the same
// output. It never blocks and never mutates the snapshot. randomValue is
// drawn once per request by the caller (typically via a RandomGenerator
// collaborator) and threaded through both runtime-fraction gating and
// weighted-cluster selection, so that a single request's decision is
// reproducible from its inputs alone.
func (s *ConfigSnapshot) Route(h http.Header, authority string, randomValue uint64, rt collab.Runtime) *Route {
	vh := s.selectVirtualHost(hostOnly(authority))
	if vh == nil {
		return nil
	}

	if redirect := sslGate(vh.source, h); redirect != nil {
		return redirect
	}

	path := h.Get(":path")
	exactPath, matchPath := splitPath(path)

	for _, cr := range vh.routes {
		if !pathMatches(cr, exactPath, matchPath) {
			continue
		}
		if !headersMatch(cr.source.Headers, cr.headerRegexp, h) {
			continue
		}
		if !runtimeAdmits(cr.source.Runtime, randomValue, rt) {
			continue
		}

		route := resolveAction(cr.source, h, randomValue, rt)
		if route == nil {
			continue
		}
		route.Entry = cr.source
		route.vh = vh.source
		route.VirtualClusterName, _ = classifyVirtualCluster(vh, exactPath, h.Get(":method"))
		return route
	}

	return nil
}

// hostOnly strips an optional ":port" suffix from the authority, treating
// Host/​:authority as "host[:port]".
func hostOnly(authority string) string {
	if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		// guard against bare IPv6 literals without a port, e.g. "::1": more
		// than one colon outside brackets means there is no port to strip
		if !strings.HasPrefix(authority, "[") && strings.IndexByte(authority, ':') != i {
			return strings.ToLower(authority)
		}
		if strings.LastIndexByte(authority[i+1:], ']') < 0 {
			return authority[:i]
		}
	}
	return strings.ToLower(authority)
}

func (s *ConfigSnapshot) selectVirtualHost(host string) *compiledVHost {
	host = strings.ToLower(host)

	if vh, ok := s.exactHosts[host]; ok {
		return vh
	}

	for _, bucket := range s.wildcardBuckets {
		if len(host) <= bucket.suffixLen {
			continue
		}
		suffix := host[len(host)-bucket.suffixLen:]
		if vh, ok := bucket.bySuffix[suffix]; ok {
			return vh
		}
	}

	return s.catchAll
}

func sslGate(vh *VirtualHost, h http.Header) *Route {
	if vh.RequireTLS == "" || vh.RequireTLS == SSLNone {
		return nil
	}

	isTLS := strings.EqualFold(h.Get(ForwardedProtoHeader), "https")
	if isTLS {
		return nil
	}

	if vh.RequireTLS == SSLExternalOnly && h.Get(InternalTrustHeader) != "" {
		return nil
	}

	authority := h.Get(":authority")
	if authority == "" {
		authority = h.Get("host")
	}

	return &Route{
		IsRedirect:     true,
		RedirectScheme: "https",
		RedirectHost:   authority,
		RedirectPath:   h.Get(":path"),
	}
}

// splitPath returns the full path (with query/fragment, used for prefix
// matching against the raw request target) and the path portion before the
// first '?' or '#', used for "path" exact matching and regex matching.
func splitPath(path string) (exact string, matchOnly string) {
	cut := len(path)
	for i, c := range path {
		if c == '?' || c == '#' {
			cut = i
			break
		}
	}
	return path, path[:cut]
}

func pathMatches(cr *compiledRoute, exactPath, matchPath string) bool {
	r := cr.source
	caseSensitive := r.caseSensitive()

	cmp := func(a, b string) bool {
		if caseSensitive {
			return a == b
		}
		return strings.EqualFold(a, b)
	}

	hasPrefix := func(s, prefix string) bool {
		if caseSensitive {
			return strings.HasPrefix(s, prefix)
		}
		return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
	}

	switch r.Match {
	case MatchPrefix:
		return hasPrefix(exactPath, r.Path)
	case MatchPath:
		return cmp(matchPath, r.Path)
	case MatchRegex:
		return cr.pathRegex.MatchString(matchPath)
	default:
		return false
	}
}

func headersMatch(matchers []HeaderMatcher, regexes map[int]*regexp.Regexp, h http.Header) bool {
	for i, hm := range matchers {
		v := h.Get(hm.Name)
		switch {
		case hm.Present:
			if v == "" {
				return false
			}
		case hm.Regex != "":
			rx := regexes[i]
			if rx == nil || !rx.MatchString(v) {
				return false
			}
		default:
			if v != hm.Exact {
				return false
			}
		}
	}
	return true
}

func runtimeAdmits(rf *RuntimeFraction, randomValue uint64, rt collab.Runtime) bool {
	if rf == nil {
		return true
	}
	pct := rt.GetInteger(rf.Key, rf.Default)
	return randomValue%100 < uint64(pct)
}

func classifyVirtualCluster(vh *compiledVHost, path, method string) (string, bool) {
	for _, vc := range vh.virtualClusters {
		if vc.source.Method != "" && !strings.EqualFold(vc.source.Method, method) {
			continue
		}
		if vc.regex.MatchString(path) {
			return vc.source.Name, true
		}
	}
	return "", false
}
