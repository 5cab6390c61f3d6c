package chainsight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to a Chainsight dashboard instance. The zero value is not
// usable; construct with NewClient.
type Client struct {
	// HTTPClient is the underlying transport. Replaceable for tests or
	// custom middleware.
	HTTPClient *http.Client

	// BaseURL is the dashboard root, e.g. "http://localhost:8080".
	BaseURL string

	// UserAgent is sent on every request when non-empty.
	UserAgent string

	// OnResponse, when set, observes every HTTP response before the body
	// is consumed.
	OnResponse func(*http.Response)
}

// NewClient builds a client for the dashboard at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		BaseURL:    baseURL,
	}
}

// Investigate starts a new investigation session for address and returns
// the session handle with its initial (usually synthetic placeholder)
// document. Capability results stream in afterwards; poll Session or
// subscribe on /ws to observe them.
func (c *Client) Investigate(ctx context.Context, address string) (*Investigation, error) {
	var inv Investigation
	if _, err := c.get(ctx, "/api/v1/investigate/"+url.PathEscape(address), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Requery re-targets an existing session at a new address. The previous
// query is cancelled server-side and its late results are discarded.
func (c *Client) Requery(ctx context.Context, sessionID, address string) (*Investigation, error) {
	var inv Investigation
	q := url.Values{"session": {sessionID}}
	if _, err := c.get(ctx, "/api/v1/investigate/"+url.PathEscape(address), q, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// WalletRisk fetches the wallet risk assessment for address. The returned
// Meta reports whether the payload is live or synthesized.
func (c *Client) WalletRisk(ctx context.Context, address string, out any) (*Meta, error) {
	return c.get(ctx, "/api/v1/wallet/"+url.PathEscape(address), nil, out)
}

// Classification fetches the behavioral classification for address.
func (c *Client) Classification(ctx context.Context, address string, out any) (*Meta, error) {
	return c.get(ctx, "/api/v1/gnn/"+url.PathEscape(address), nil, out)
}

// Multichain fetches cross-chain presence for address.
func (c *Client) Multichain(ctx context.Context, address string, out any) (*Meta, error) {
	return c.get(ctx, "/api/v1/multichain/"+url.PathEscape(address), nil, out)
}

// Social fetches social intelligence for address.
func (c *Client) Social(ctx context.Context, address string, out any) (*Meta, error) {
	return c.get(ctx, "/api/v1/social/"+url.PathEscape(address), nil, out)
}

// Subgraph fetches a rendered transaction neighborhood for address.
// depth <= 0 uses the server default.
func (c *Client) Subgraph(ctx context.Context, address string, depth int) (*Document, *Meta, error) {
	var q url.Values
	if depth > 0 {
		q = url.Values{"depth": {strconv.Itoa(depth)}}
	}
	var doc Document
	meta, err := c.get(ctx, "/api/v1/graph/subgraph/"+url.PathEscape(address), q, &doc)
	if err != nil {
		return nil, nil, err
	}
	return &doc, meta, nil
}

// Expand grows the session's graph around node address by one hop.
func (c *Client) Expand(ctx context.Context, sessionID, address string) (*Document, error) {
	body := map[string]string{"session_id": sessionID}
	var doc Document
	if _, err := c.post(ctx, "/api/v1/graph/expand/"+url.PathEscape(address), body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Session fetches the current render document for a session.
func (c *Client) Session(ctx context.Context, sessionID string) (*Document, error) {
	var doc Document
	if _, err := c.get(ctx, "/api/v1/session/"+url.PathEscape(sessionID), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Select highlights nodeID in the session's view. An empty nodeID clears
// the selection.
func (c *Client) Select(ctx context.Context, sessionID, nodeID string) (*Document, error) {
	body := map[string]string{"node_id": nodeID}
	var doc Document
	if _, err := c.post(ctx, "/api/v1/session/"+url.PathEscape(sessionID)+"/select", body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Filter applies a node filter to the session's rendered view. The
// canonical graph is untouched; ClearOverlays restores the full set.
func (c *Client) Filter(ctx context.Context, sessionID string, f Filter) (*Document, error) {
	var doc Document
	if _, err := c.post(ctx, "/api/v1/session/"+url.PathEscape(sessionID)+"/filter", f, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ClearOverlays removes the session's selection and filter.
func (c *Client) ClearOverlays(ctx context.Context, sessionID string) (*Document, error) {
	var doc Document
	if _, err := c.post(ctx, "/api/v1/session/"+url.PathEscape(sessionID)+"/clear", nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Retry re-dispatches a single capability for the session. The refreshed
// result arrives asynchronously.
func (c *Client) Retry(ctx context.Context, sessionID, capability string) error {
	_, err := c.post(ctx, "/api/v1/session/"+url.PathEscape(sessionID)+"/retry/"+url.PathEscape(capability), nil, nil)
	return err
}

// CloseSession ends a session and releases its resources.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/session/"+url.PathEscape(sessionID), nil, nil, nil)
}

// Health reports whether the dashboard process is up. Degraded upstreams
// still return healthy here; the service serves synthesized data instead
// of failing.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if c.OnResponse != nil {
		c.OnResponse(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Code: "unhealthy", Message: "health check failed"}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (*Meta, error) {
	meta := new(Meta)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &result{data: out, meta: meta}); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) (*Meta, error) {
	meta := new(Meta)
	if err := c.do(ctx, http.MethodPost, path, nil, body, &result{data: out, meta: meta}); err != nil {
		return nil, err
	}
	return meta, nil
}

type result struct {
	data any
	meta *Meta
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, res *result) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if c.OnResponse != nil {
		c.OnResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || env.Status == "error" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Message,
		}
	}

	if res != nil {
		if res.meta != nil && env.Meta != nil {
			*res.meta = *env.Meta
		}
		if res.data != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, res.data); err != nil {
				return fmt.Errorf("decoding payload: %w", err)
			}
		}
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
