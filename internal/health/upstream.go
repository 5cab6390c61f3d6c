package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const upstreamProbeTimeout = 3 * time.Second

// Upstream returns a checker that probes an intelligence service's health
// endpoint. Any HTTP response counts as reachable; only transport failures
// mark the upstream unhealthy, since the cascade degrades gracefully on
// bad status codes anyway.
func Upstream(name, baseURL string, client *http.Client) Checker {
	if client == nil {
		client = &http.Client{Timeout: upstreamProbeTimeout}
	}
	return func(ctx context.Context) Status {
		ctx, cancel := context.WithTimeout(ctx, upstreamProbeTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
		if err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		resp, err := client.Do(req)
		if err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		defer resp.Body.Close()

		return Status{Name: name, Healthy: true, Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
}
