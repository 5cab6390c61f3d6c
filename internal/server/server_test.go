package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainsight/core/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testAddress     = "0x1111111111111111111111111111111111111111"
	neighborAddress = "0x2222222222222222222222222222222222222222"
)

// intelUpstream serves canned payloads for every capability route.
func intelUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	envelope := func(data any) []byte {
		b, _ := json.Marshal(map[string]any{"status": "success", "data": data})
		return b
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/wallet/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"risk_score": 83.0, "risk_level": "CRITICAL"}))
	})
	mux.HandleFunc("/api/gnn/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"predicted_class": "Phishing_Scam", "class_confidence": 0.87}))
	})
	mux.HandleFunc("/api/multichain/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"chains": []any{map[string]any{"name": "ethereum", "supported": true}}}))
	})
	mux.HandleFunc("/api/social/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"total_mentions": 12.0}))
	})
	mux.HandleFunc("/api/graph/subgraph/", func(w http.ResponseWriter, r *http.Request) {
		center := r.URL.Path[len("/api/graph/subgraph/"):]
		w.Write(envelope(map[string]any{
			"nodes": []any{
				map[string]any{"id": center, "risk_score": 83.0, "tx_count": 40.0},
				map[string]any{"id": neighborAddress, "risk_score": 20.0, "tx_count": 5.0},
			},
			"edges": []any{map[string]any{"from": center, "to": neighborAddress, "value": 2.0}},
		}))
	})
	return httptest.NewServer(mux)
}

func testConfig(upstream string) *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		PrimaryUpstream: upstream,
		FetchTimeout:    2 * time.Second,
		MaxGraphDepth:   4,
		BreakerWindow:   30 * time.Second,
		BreakerTrips:    3,
		CanvasWidth:     800,
		CanvasHeight:    600,
		ForceLayout:     true,
	}
}

func newTestServer(t *testing.T, upstream string) *Server {
	t.Helper()
	s, err := New(testConfig(upstream))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, resp
}

// waitForResults polls the session document until every capability landed.
func waitForResults(t *testing.T, s *Server, sessionID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		code, resp := doJSON(t, s, "GET", "/api/v1/session/"+sessionID, "")
		if code != http.StatusOK {
			t.Fatalf("session document returned %d", code)
		}
		data := resp["data"].(map[string]any)
		prov := data["provenance"].(map[string]any)
		live, _ := prov["live"].([]any)
		synth, _ := prov["synthetic"].([]any)
		if len(live)+len(synth) == 5 {
			return data
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("capabilities did not all arrive in time")
	return nil
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	upstream := intelUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	code, resp := doJSON(t, s, "GET", "/health", "")
	if code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
	checks := resp["checks"].(map[string]any)
	if checks["primary"] != "healthy" {
		t.Errorf("Expected primary upstream healthy, got %v", checks["primary"])
	}
}

func TestHealthEndpoint_UpstreamDownStaysUp(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, resp := doJSON(t, s, "GET", "/health", "")
	if code != http.StatusOK {
		t.Errorf("Degraded upstreams must not 503 the dashboard, got %d", code)
	}
	if resp["status"] != "degraded" {
		t.Errorf("Expected status 'degraded', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, _ := doJSON(t, s, "GET", "/health/live", "")
	if code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, _ := doJSON(t, s, "GET", "/health/ready", "")
	// Server hasn't called Run() so ready is false
	if code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", code)
	}
}

// ---------------------------------------------------------------------------
// Capability endpoints
// ---------------------------------------------------------------------------

func TestWalletEndpoint_Live(t *testing.T) {
	upstream := intelUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	code, resp := doJSON(t, s, "GET", "/api/v1/wallet/"+testAddress, "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	data := resp["data"].(map[string]any)
	if data["risk_score"] != 83.0 {
		t.Errorf("Expected risk_score 83, got %v", data["risk_score"])
	}
	meta := resp["meta"].(map[string]any)
	if meta["source"] != "live" {
		t.Errorf("Expected source 'live', got %v", meta["source"])
	}
}

func TestWalletEndpoint_SynthesizedOnOutage(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, resp := doJSON(t, s, "GET", "/api/v1/wallet/"+testAddress, "")
	if code != http.StatusOK {
		t.Fatalf("Upstream loss must not surface as an error, got %d", code)
	}
	meta := resp["meta"].(map[string]any)
	if meta["source"] != "demo" {
		t.Errorf("Expected source 'demo', got %v", meta["source"])
	}
	data := resp["data"].(map[string]any)
	if _, ok := data["risk_score"]; !ok {
		t.Error("Synthesized wallet payload must carry risk_score")
	}
}

func TestInvalidAddressRejected(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, resp := doJSON(t, s, "GET", "/api/v1/wallet/nonsense", "")
	if code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", code)
	}
	if resp["status"] != "error" {
		t.Errorf("Expected error envelope, got %v", resp["status"])
	}
}

// ---------------------------------------------------------------------------
// Graph endpoints
// ---------------------------------------------------------------------------

func TestSubgraphEndpoint(t *testing.T) {
	upstream := intelUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	code, resp := doJSON(t, s, "GET", "/api/v1/graph/subgraph/"+testAddress+"?depth=2", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	data := resp["data"].(map[string]any)
	g := data["graph"].(map[string]any)
	nodes := g["nodes"].([]any)
	if len(nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(nodes))
	}
	for _, raw := range nodes {
		n := raw.(map[string]any)
		if n["color"] == "" || n["radius"] == nil {
			t.Errorf("Node %v missing visual encoding", n["id"])
		}
	}
	if data["layout"] == "" {
		t.Error("Expected layout strategy name")
	}
	legend := data["legend"].([]any)
	if len(legend) != 5 {
		t.Errorf("Expected 5 legend entries, got %d", len(legend))
	}
}

func TestSubgraphEndpoint_DepthClamped(t *testing.T) {
	upstream := intelUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	code, resp := doJSON(t, s, "GET", "/api/v1/graph/subgraph/"+testAddress+"?depth=99", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	meta := resp["meta"].(map[string]any)
	if meta["depth"] != 4.0 {
		t.Errorf("Expected depth clamped to 4, got %v", meta["depth"])
	}
}

// ---------------------------------------------------------------------------
// Investigation flow
// ---------------------------------------------------------------------------

func TestInvestigateFlow(t *testing.T) {
	upstream := intelUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	code, resp := doJSON(t, s, "GET", "/api/v1/investigate/"+testAddress, "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, resp)
	}
	data := resp["data"].(map[string]any)
	sessionID, _ := data["session_id"].(string)
	if sessionID == "" {
		t.Fatal("Expected session_id")
	}

	doc := waitForResults(t, s, sessionID)
	g := doc["graph"].(map[string]any)
	if len(g["nodes"].([]any)) != 2 {
		t.Errorf("Expected 2 graph nodes, got %v", g["nodes"])
	}

	// Select the neighbor
	code, resp = doJSON(t, s, "POST", "/api/v1/session/"+sessionID+"/select", `{"node_id":"`+neighborAddress+`"}`)
	if code != http.StatusOK {
		t.Fatalf("Select failed: %d %v", code, resp)
	}
	detail := resp["data"].(map[string]any)["detail"].(map[string]any)
	if detail["id"] != neighborAddress {
		t.Errorf("Expected detail for the neighbor, got %v", detail["id"])
	}

	// Filter to high-risk nodes only
	code, resp = doJSON(t, s, "POST", "/api/v1/session/"+sessionID+"/filter", `{"kind":"risk","threshold":50}`)
	if code != http.StatusOK {
		t.Fatalf("Filter failed: %d %v", code, resp)
	}
	filtered := resp["data"].(map[string]any)["graph"].(map[string]any)["nodes"].([]any)
	if len(filtered) != 1 {
		t.Errorf("Expected 1 node after filter, got %d", len(filtered))
	}

	// Clear restores everything
	code, resp = doJSON(t, s, "POST", "/api/v1/session/"+sessionID+"/clear", "")
	if code != http.StatusOK {
		t.Fatalf("Clear failed: %d", code)
	}
	restored := resp["data"].(map[string]any)["graph"].(map[string]any)["nodes"].([]any)
	if len(restored) != 2 {
		t.Errorf("Expected full node set after clear, got %d", len(restored))
	}

	// Expand the neighbor: its neighborhood replaces the frame
	code, resp = doJSON(t, s, "POST", "/api/v1/graph/expand/"+neighborAddress, `{"session_id":"`+sessionID+`"}`)
	if code != http.StatusOK {
		t.Fatalf("Expand failed: %d %v", code, resp)
	}
	expanded := resp["data"].(map[string]any)["graph"].(map[string]any)
	if expanded["center"] != neighborAddress {
		t.Errorf("Expected graph re-centered on %s, got %v", neighborAddress, expanded["center"])
	}

	// Retry one capability
	code, _ = doJSON(t, s, "POST", "/api/v1/session/"+sessionID+"/retry/wallet-risk", "")
	if code != http.StatusAccepted {
		t.Errorf("Expected 202 for retry, got %d", code)
	}

	// Close
	code, _ = doJSON(t, s, "DELETE", "/api/v1/session/"+sessionID, "")
	if code != http.StatusOK {
		t.Errorf("Expected 200 for close, got %d", code)
	}
	code, _ = doJSON(t, s, "GET", "/api/v1/session/"+sessionID, "")
	if code != http.StatusNotFound {
		t.Errorf("Expected 404 after close, got %d", code)
	}
}

func TestInvestigateRequery(t *testing.T) {
	upstream := intelUpstream(t)
	defer upstream.Close()
	s := newTestServer(t, upstream.URL)

	code, resp := doJSON(t, s, "GET", "/api/v1/investigate/"+testAddress, "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, resp)
	}
	sessionID := resp["data"].(map[string]any)["session_id"].(string)
	waitForResults(t, s, sessionID)

	code, resp = doJSON(t, s, "GET", "/api/v1/investigate/"+neighborAddress+"?session="+sessionID, "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 on requery, got %d: %v", code, resp)
	}
	data := resp["data"].(map[string]any)
	if got := data["session_id"].(string); got != sessionID {
		t.Errorf("Requery should keep session id, got %q", got)
	}
	if got := data["address"].(string); got != neighborAddress {
		t.Errorf("Requery address = %q, want %q", got, neighborAddress)
	}

	doc := waitForResults(t, s, sessionID)
	if got := doc["address"].(string); got != neighborAddress {
		t.Errorf("Document address = %q, want %q", got, neighborAddress)
	}
}

func TestInvestigateRequery_UnknownSession(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, _ := doJSON(t, s, "GET", "/api/v1/investigate/"+testAddress+"?session=missing", "")
	if code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}
}

func TestRetryUnknownCapability(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, _ := doJSON(t, s, "POST", "/api/v1/session/whatever/retry/bogus", "")
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

func TestExpandRequiresSessionID(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	code, _ := doJSON(t, s, "POST", "/api/v1/graph/expand/"+testAddress, `{}`)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"GET:/api/v1/investigate/:address",
		"GET:/api/v1/wallet/:address",
		"GET:/api/v1/gnn/:address",
		"GET:/api/v1/multichain/:address",
		"GET:/api/v1/social/:address",
		"GET:/api/v1/graph/subgraph/:address",
		"POST:/api/v1/graph/expand/:address",
		"POST:/api/v1/session/:id/select",
		"POST:/api/v1/session/:id/filter",
		"POST:/api/v1/session/:id/clear",
		"POST:/api/v1/session/:id/retry/:capability",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
