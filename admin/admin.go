// Package admin exposes the /routes inspection endpoint: a read-only JSON
// dump of one or all live route configuration providers, for operators
// debugging what a running instance actually resolved.
package admin

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/latticeproxy/rds-router/collab"
	"github.com/latticeproxy/rds-router/rds"
	"github.com/latticeproxy/rds-router/routing"
)

// dumpEntry is the stable, field-ordered JSON shape returned per provider.
// EffectiveCors/EffectiveRateLimits are only populated when the request
// carries ?host=&path=, previewing what a request to that host/path would
// resolve to.
type dumpEntry struct {
	VersionInfo         string                      `json:"version_info"`
	RouteConfigName     string                      `json:"route_config_name"`
	ClusterName         string                      `json:"cluster_name"`
	RouteTableDump      *routing.RouteConfiguration `json:"route_table_dump"`
	EffectiveCors       *routing.CorsPolicy         `json:"effective_cors,omitempty"`
	EffectiveRateLimits []*routing.RateLimitPolicy  `json:"effective_rate_limits,omitempty"`
}

type usageError struct {
	Error string `json:"error"`
	Usage string `json:"usage"`
}

// Handler serves GET /routes, either for every registered provider or,
// given ?route_config_name=, for just the one matching it. A provider that
// has not yet published a snapshot is listed with an empty version_info and
// a null route_table_dump. An unrecognized
// query parameter produces a 404 with a usage-hint JSON body; a
// route_config_name with no match still returns 200 with an empty JSON
// array, since the parameter itself is valid. Given ?host=&path= together,
// each dumped entry is also previewed against that host/path and annotated
// with the CORS and rate-limit policy that request would actually resolve
// to, merged across route and virtual host.
type Handler struct {
	Manager *rds.ProviderManager
}

func NewHandler(m *rds.ProviderManager) *Handler {
	return &Handler{Manager: m}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/routes" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	for key := range query {
		switch key {
		case "route_config_name", "host", "path":
		default:
			h.writeUsage(w, http.StatusNotFound, "unknown query parameter: "+key)
			return
		}
	}

	name := query.Get("route_config_name")
	previewHost := query.Get("host")
	previewPath := query.Get("path")

	providers := h.Manager.All()
	keys := make([]rds.Key, 0, len(providers))
	for k := range providers {
		if name != "" && k.RouteConfigName != name {
			continue
		}
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].RouteConfigName != keys[j].RouteConfigName {
			return keys[i].RouteConfigName < keys[j].RouteConfigName
		}
		return keys[i].DiscoveryAddress < keys[j].DiscoveryAddress
	})

	dump := make([]dumpEntry, 0, len(keys))
	for _, k := range keys {
		entry := dumpEntry{
			RouteConfigName: k.RouteConfigName,
			ClusterName:     providers[k].LocalClusterName(),
		}

		snap := providers[k].Snapshot()
		if snap != nil {
			entry.VersionInfo = snap.VersionInfo()
			entry.RouteTableDump = snap.Source()
		}

		if snap != nil && previewHost != "" && previewPath != "" {
			preview := http.Header{}
			preview.Set(":path", previewPath)
			preview.Set(":method", http.MethodGet)
			if route := snap.Route(preview, previewHost, 0, &collab.StaticRuntime{}); route != nil {
				entry.EffectiveCors = route.EffectiveCors()
				entry.EffectiveRateLimits = route.EffectiveRateLimits()
			}
		}

		dump = append(dump, entry)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(dump)
}

func (h *Handler) writeUsage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(usageError{
		Error: msg,
		Usage: "GET /routes, GET /routes?route_config_name=<name>, or add &host=<host>&path=<path> to preview a match",
	})
}
