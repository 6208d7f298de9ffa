package rds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/latticeproxy/rds-router/routing"
)

// FetchClient retrieves a RouteConfiguration for (routeConfigName,
// clusterName, nodeID) from a discovery cluster. It returns a single parsed
// configuration rather than a flat route list, since RDS-style discovery is
// keyed by name rather than served as one global table. The returned
// contentHash is computed over the raw, undecoded response body, so that two
// byte-different bodies are never mistaken for a duplicate just because they
// happen to decode to the same struct.
type FetchClient interface {
	Fetch(ctx context.Context, routeConfigName, clusterName, nodeID string) (cfg *routing.RouteConfiguration, contentHash uint64, err error)
}

// HTTPFetchClient fetches a RouteConfiguration as JSON from
// GET <base>/v1/routes/<routeConfigName>/<clusterName>/<nodeID>.
type HTTPFetchClient struct {
	Base   string
	Client *http.Client
}

func NewHTTPFetchClient(base string, timeout time.Duration) *HTTPFetchClient {
	return &HTTPFetchClient{
		Base:   base,
		Client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPFetchClient) Fetch(ctx context.Context, routeConfigName, clusterName, nodeID string) (*routing.RouteConfiguration, uint64, error) {
	url := fmt.Sprintf("%s/v1/routes/%s/%s/%s", c.Base, routeConfigName, clusterName, nodeID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("rds: fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("rds: fetch %s: read body: %w", url, err)
	}
	hash := xxhash.Sum64(body)

	var cfg routing.RouteConfiguration
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, 0, fmt.Errorf("rds: fetch %s: decode: %w", url, err)
	}

	return &cfg, hash, nil
}
