package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseSize = 5 * 1024 * 1024 // 5MB

// Envelope is the response wrapper every upstream capability speaks:
// {status, data, meta?}. meta.source == "demo" marks a degraded payload
// synthesized by an upstream proxy.
type Envelope struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	Meta   *EnvelopeMeta  `json:"meta,omitempty"`
}

// EnvelopeMeta carries response provenance metadata.
type EnvelopeMeta struct {
	Source string `json:"source,omitempty"`
}

// demoSource is the synthetic-data marker value upstream proxies use.
const demoSource = "demo"

// legacyDemoHeader is the header some upstream proxies still set instead of
// meta.source. It is folded into the same signal here at the HTTP boundary;
// meta.source is authoritative when both are present.
const legacyDemoHeader = "X-Data-Source"

// fetchResult is one candidate's parsed response.
type fetchResult struct {
	Data      map[string]any
	Demo      bool // upstream marked the payload as demo/synthetic
	LatencyMs int64
}

var errUpstreamStatus = errors.New("upstream non-2xx status")

// Client issues single bounded-timeout requests to candidate endpoints.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a cascade HTTP client. Pass timeout=0 for the 4s default.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 4 * time.Second
	}
	return &Client{
		// Timeout is enforced per attempt via context so a caller deadline
		// still wins when shorter.
		http:    &http.Client{},
		timeout: timeout,
	}
}

// get issues one GET to url and parses the response envelope. Any network
// error, timeout, non-2xx status, or malformed body is returned as an error;
// the cascade treats them all identically and moves to the next candidate.
func (c *Client) get(ctx context.Context, url string) (*fetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", errUpstreamStatus, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed response body: %w", err)
	}
	if env.Status == "error" {
		return nil, fmt.Errorf("upstream reported status=error")
	}

	data := env.Data
	if data == nil {
		// Some older routes return the payload without the envelope.
		var bare map[string]any
		if err := json.Unmarshal(body, &bare); err != nil || len(bare) == 0 {
			return nil, fmt.Errorf("response has no data payload")
		}
		data = bare
	}

	demo := resp.Header.Get(legacyDemoHeader) == demoSource
	if env.Meta != nil && env.Meta.Source != "" {
		demo = env.Meta.Source == demoSource
	}

	return &fetchResult{Data: data, Demo: demo, LatencyMs: latency}, nil
}
