package routing

import (
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/latticeproxy/rds-router/collab"
)

// RetryOn is a bitmask decoding the comma-separated retry_on set from the
// source config. The router never performs retries itself; it only exposes
// the policy to the request-forwarding collaborator.
type RetryOn uint8

const (
	RetryOn5xx RetryOn = 1 << iota
	RetryOnGatewayError
	RetryOnConnectFailure
	RetryOnRetriable4xx
	RetryOnRefusedStream
)

var retryOnNames = map[string]RetryOn{
	"5xx":             RetryOn5xx,
	"gateway-error":   RetryOnGatewayError,
	"connect-failure": RetryOnConnectFailure,
	"retriable-4xx":   RetryOnRetriable4xx,
	"refused-stream":  RetryOnRefusedStream,
}

// ParseRetryOn decodes a comma-separated retry_on value from a source config.
func ParseRetryOn(s string) RetryOn {
	var mask RetryOn
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if bit, ok := retryOnNames[tok]; ok {
			mask |= bit
		}
	}
	return mask
}

// RetryPolicy is exposed to the forwarding collaborator; the matcher never
// acts on it.
type RetryPolicy struct {
	PerTryTimeoutMs int64  `json:"per_try_timeout_ms,omitempty"`
	NumRetries      *int   `json:"num_retries,omitempty"`
	RetryOn         string `json:"retry_on,omitempty"`
}

// NumRetriesOrDefault returns the configured retry count, defaulting to 1
// when RetryOn names at least one condition, else 0.
func (p *RetryPolicy) NumRetriesOrDefault() int {
	if p == nil {
		return 0
	}
	if p.NumRetries != nil {
		return *p.NumRetries
	}
	if ParseRetryOn(p.RetryOn) != 0 {
		return 1
	}
	return 0
}

func (p *RetryPolicy) Mask() RetryOn {
	if p == nil {
		return 0
	}
	return ParseRetryOn(p.RetryOn)
}

// ShadowPolicy mirrors a percentage of matched requests to a second cluster.
// An empty RuntimeKey mirrors 100% of the time.
type ShadowPolicy struct {
	Cluster    string `json:"cluster"`
	RuntimeKey string `json:"runtime_key,omitempty"`
}

// ShouldMirror decides whether this request is mirrored, sourcing the
// percentage from runtime when RuntimeKey is set.
func (p *ShadowPolicy) ShouldMirror(rt collab.Runtime, randomValue uint64) bool {
	if p == nil {
		return false
	}
	if p.RuntimeKey == "" {
		return true
	}
	pct := rt.GetInteger(p.RuntimeKey, 100)
	if pct >= 100 {
		return true
	}
	return randomValue%100 < uint64(pct)
}

// HashPolicy hashes a single named header's value for consistent-hash load
// balancing. The algorithm is pinned to xxhash so it is identical across the
// whole snapshot, as required by the contract.
type HashPolicy struct {
	Header string `json:"header,omitempty"`
}

// GenerateHash returns the stable 64-bit hash of the header's value, or
// (0, false) when the header is absent.
func (p *HashPolicy) GenerateHash(h http.Header) (uint64, bool) {
	if p == nil || p.Header == "" {
		return 0, false
	}
	v := h.Get(p.Header)
	if v == "" {
		return 0, false
	}
	return xxhash.Sum64String(v), true
}

// TriState models allow_credentials, which is absent/true/false, and must
// fall through from route to virtual host separately from the other fields.
type TriState int

const (
	TriUnset TriState = iota
	TriTrue
	TriFalse
)

func (t TriState) Bool() bool { return t == TriTrue }

// MarshalJSON encodes TriTrue/TriFalse as the JSON booleans true/false.
// TriUnset is handled by the omitempty on AllowCredentials's struct tag,
// which drops the field before MarshalJSON is ever called for it.
func (t TriState) MarshalJSON() ([]byte, error) {
	if t == TriTrue {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

// UnmarshalJSON accepts the JSON booleans true/false; any other input
// (including a missing field, which leaves the zero value untouched) is
// TriUnset.
func (t *TriState) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*t = TriTrue
	case "false":
		*t = TriFalse
	default:
		*t = TriUnset
	}
	return nil
}

// CorsPolicy is layered: a route's policy overrides its virtual host's,
// field by field; unset fields fall through.
type CorsPolicy struct {
	Enabled          *bool    `json:"enabled,omitempty"`
	AllowOrigins     []string `json:"allow_origins,omitempty"`
	AllowMethods     string   `json:"allow_methods,omitempty"`
	AllowHeaders     string   `json:"allow_headers,omitempty"`
	ExposeHeaders    string   `json:"expose_headers,omitempty"`
	MaxAge           int      `json:"max_age,omitempty"`
	AllowCredentials TriState `json:"allow_credentials,omitempty"`
}

// MergeCors layers route-level fields (r, higher precedence) over virtual-host
// level fields (vh), returning the effective policy. Either may be nil.
func MergeCors(r, vh *CorsPolicy) *CorsPolicy {
	if r == nil {
		return vh
	}
	if vh == nil {
		return r
	}
	merged := *vh
	if r.Enabled != nil {
		merged.Enabled = r.Enabled
	}
	if len(r.AllowOrigins) > 0 {
		merged.AllowOrigins = r.AllowOrigins
	}
	if r.AllowMethods != "" {
		merged.AllowMethods = r.AllowMethods
	}
	if r.AllowHeaders != "" {
		merged.AllowHeaders = r.AllowHeaders
	}
	if r.ExposeHeaders != "" {
		merged.ExposeHeaders = r.ExposeHeaders
	}
	if r.MaxAge != 0 {
		merged.MaxAge = r.MaxAge
	}
	if r.AllowCredentials != TriUnset {
		merged.AllowCredentials = r.AllowCredentials
	}
	return &merged
}

func (p *CorsPolicy) enabled() bool {
	return p != nil && (p.Enabled == nil || *p.Enabled)
}

// EffectiveCors returns the CORS policy that applies to a matched route: its
// own, layered over its virtual host's via MergeCors. nil if neither sets
// one, and always nil for the synthetic SSL redirect, which carries no vh.
// Route.vh is unexported, so this is the only way a caller holding a *Route
// can reach its virtual host's CORS policy to merge it with the route's own.
func (rt *Route) EffectiveCors() *CorsPolicy {
	if rt == nil || rt.Entry == nil {
		return nil
	}
	var vhCors *CorsPolicy
	if rt.vh != nil {
		vhCors = rt.vh.Cors
	}
	return MergeCors(rt.Entry.Cors, vhCors)
}

// EffectiveRateLimits returns the rate limit policies enforced for a matched
// route: its own, followed by its virtual host's when the route's
// include_vh_rate_limits flag is set.
func (rt *Route) EffectiveRateLimits() []*RateLimitPolicy {
	if rt == nil || rt.Entry == nil {
		return nil
	}
	var limits []*RateLimitPolicy
	if rt.Entry.RateLimit != nil {
		limits = append(limits, rt.Entry.RateLimit)
	}
	if rt.Entry.IncludeVHRateLimits && rt.vh != nil && rt.vh.RateLimit != nil {
		limits = append(limits, rt.vh.RateLimit)
	}
	return limits
}

// RateLimitPolicy is data-carried by the matcher and enforced by an
// out-of-band collaborator; see collab.RateLimiter for the reference
// in-process enforcement point wired in this repository.
type RateLimitPolicy struct {
	RequestsPerUnit int    `json:"requests_per_unit"`
	Unit            string `json:"unit,omitempty"` // "second" | "minute" | "hour"
	Key             string `json:"descriptor_key,omitempty"`
}

// Decorator carries a fixed operation name applied to the tracing span for
// requests matching the owning route.
type Decorator struct {
	Operation string `json:"operation,omitempty"`
}
