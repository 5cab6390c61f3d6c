package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/core/internal/cascade"
	"github.com/chainsight/core/internal/intel"
	"github.com/chainsight/core/internal/layout"
	"github.com/chainsight/core/internal/resolver"
	"github.com/chainsight/core/internal/synth"
	"github.com/chainsight/core/internal/view"
)

const testAddr = "0x1111111111111111111111111111111111111111"

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(sessionID, event string, payload any) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

func envelope(data any) []byte {
	b, _ := json.Marshal(map[string]any{"status": "success", "data": data})
	return b
}

// upstream serves canned payloads for every capability path.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/wallet/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"risk_score": 72.0, "risk_level": "HIGH"}))
	})
	mux.HandleFunc("/api/gnn/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"predicted_class": "Exchange", "class_confidence": 0.9}))
	})
	mux.HandleFunc("/api/multichain/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"chains": []any{}}))
	})
	mux.HandleFunc("/api/social/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{"total_mentions": 4.0}))
	})
	mux.HandleFunc("/api/graph/subgraph/", func(w http.ResponseWriter, r *http.Request) {
		center := r.URL.Path[len("/api/graph/subgraph/"):]
		neighbor := "0xaa"
		if center == neighbor {
			neighbor = "0xbb"
		}
		w.Write(envelope(map[string]any{
			"nodes": []any{
				map[string]any{"id": center, "risk_score": 72.0, "tx_count": 30.0},
				map[string]any{"id": neighbor, "risk_score": 15.0, "tx_count": 2.0},
			},
			"edges": []any{
				map[string]any{"from": center, "to": neighbor, "value": 1.5},
			},
		}))
	})
	return httptest.NewServer(mux)
}

func newManager(t *testing.T, primary string, pub Publisher) *Manager {
	t.Helper()
	res := resolver.New(primary, "")
	casc := cascade.New(res, cascade.NewClient(2*time.Second), nil, synth.New(), nil)
	eng := layout.NewEngine(layout.Canvas{Width: 800, Height: 600}, true)
	return NewManager(casc, eng, pub, 2, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestInvestigate_AllCapabilitiesArrive(t *testing.T) {
	srv := upstream(t)
	defer srv.Close()
	pub := &recordingPublisher{}
	m := newManager(t, srv.URL, pub)

	s := m.Investigate(context.Background(), testAddr, 0)
	require.NotEmpty(t, s.ID)

	waitFor(t, func() bool { return len(s.Results()) == 5 })

	for _, r := range s.Results() {
		assert.Equal(t, intel.ProvenanceLive, r.Provenance, string(r.Capability))
	}
	assert.Equal(t, 4, pub.count(EventCapability))
	assert.Equal(t, 1, pub.count(EventGraph))

	doc, err := m.Document(s.ID)
	require.NoError(t, err)
	assert.False(t, doc.Empty)
	assert.Equal(t, testAddr, doc.Address)
	assert.Len(t, doc.Graph.Nodes, 2)
	assert.NotEmpty(t, doc.Layout)
	assert.False(t, doc.Provenance.AnyDemo)
}

func TestInvestigate_UpstreamDownSynthesizesEverything(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	m := newManager(t, srv.URL, nil)

	s := m.Investigate(context.Background(), testAddr, 0)
	waitFor(t, func() bool { return len(s.Results()) == 5 })

	for _, r := range s.Results() {
		assert.Equal(t, intel.ProvenanceSynthetic, r.Provenance, string(r.Capability))
	}

	doc, err := m.Document(s.ID)
	require.NoError(t, err)
	assert.True(t, doc.Provenance.AnyDemo)
	assert.False(t, doc.Empty, "synthesized neighborhood still renders")
}

func TestSelectFilterClear(t *testing.T) {
	srv := upstream(t)
	defer srv.Close()
	m := newManager(t, srv.URL, nil)

	s := m.Investigate(context.Background(), testAddr, 0)
	waitFor(t, func() bool { return s.Result(intel.CapabilitySubgraph) != nil })

	doc, err := m.Select(s.ID, testAddr)
	require.NoError(t, err)
	require.NotNil(t, doc.Detail)
	assert.Equal(t, testAddr, doc.Detail.ID)
	assert.True(t, doc.Detail.IsCenter)

	_, err = m.Select(s.ID, "0xghost")
	assert.Error(t, err)

	doc, err = m.Filter(s.ID, view.Filter{Kind: view.FilterRisk, Threshold: 50})
	require.NoError(t, err)
	assert.Len(t, doc.Graph.Nodes, 1)

	doc, err = m.ClearOverlays(s.ID)
	require.NoError(t, err)
	assert.Len(t, doc.Graph.Nodes, 2)
	assert.Nil(t, doc.Detail)
}

func TestRequery_SupersedesInFlight(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	slow := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		wait := slow
		mu.Unlock()
		if wait {
			<-release
		}
		w.Write(envelope(map[string]any{
			"risk_score": 10.0, "predicted_class": "Benign",
			"chains": []any{}, "total_mentions": 1.0,
			"nodes": []any{map[string]any{"id": testAddr, "risk_score": 10.0}},
		}))
	}))
	defer srv.Close()
	m := newManager(t, srv.URL, nil)

	s := m.Investigate(context.Background(), testAddr, 0)
	firstToken := s.View().Token()

	mu.Lock()
	slow = false
	mu.Unlock()
	other := "0x2222222222222222222222222222222222222222"
	_, err := m.Requery(context.Background(), s.ID, other, 0)
	require.NoError(t, err)
	assert.NotEqual(t, firstToken, s.View().Token())
	close(release)

	waitFor(t, func() bool { return len(s.Results()) == 5 })
	assert.Equal(t, other, s.Address())

	// The stalled first generation must not have leaked into the view.
	doc, err := m.Document(s.ID)
	require.NoError(t, err)
	assert.Equal(t, other, doc.Address)
}

func TestApply_StaleResultCannotEnterNewGeneration(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	slow := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		wait := slow
		mu.Unlock()
		if wait {
			<-release
		}
		w.Write(envelope(map[string]any{
			"risk_score": 10.0, "predicted_class": "Benign",
			"chains": []any{}, "total_mentions": 1.0,
			"nodes": []any{map[string]any{"id": testAddr, "risk_score": 10.0}},
		}))
	}))
	defer srv.Close()
	pub := &recordingPublisher{}
	m := newManager(t, srv.URL, pub)

	s := m.Investigate(context.Background(), testAddr, 0)
	waitFor(t, func() bool { return len(s.Results()) == 5 })
	staleToken := s.View().Token()

	// Stall the requery's own fetches so the new generation stays empty.
	mu.Lock()
	slow = true
	mu.Unlock()
	other := "0x2222222222222222222222222222222222222222"
	_, err := m.Requery(context.Background(), s.ID, other, 0)
	require.NoError(t, err)
	published := pub.count(EventCapability)

	// A first-generation panel landing after the requery reset the
	// results map must be dropped, not recorded or republished.
	m.apply(context.Background(), s, staleToken, &cascade.Result{
		Capability: intel.CapabilityWalletRisk,
		Data:       map[string]any{"risk_score": 99.0},
	})
	assert.Nil(t, s.Result(intel.CapabilityWalletRisk))
	assert.Equal(t, published, pub.count(EventCapability))

	close(release)
	waitFor(t, func() bool { return len(s.Results()) == 5 })
}

func TestRetry_RefreshesOneCapability(t *testing.T) {
	var mu sync.Mutex
	failWallet := true
	mux := http.NewServeMux()
	mux.HandleFunc("/api/wallet/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := failWallet
		mu.Unlock()
		if fail {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.Write(envelope(map[string]any{"risk_score": 66.0}))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(map[string]any{
			"predicted_class": "Benign", "chains": []any{},
			"total_mentions": 0.0, "nodes": []any{},
		}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	m := newManager(t, srv.URL, nil)

	s := m.Investigate(context.Background(), testAddr, 0)
	waitFor(t, func() bool { return len(s.Results()) == 5 })
	require.Equal(t, intel.ProvenanceSynthetic, s.Result(intel.CapabilityWalletRisk).Provenance)

	mu.Lock()
	failWallet = false
	mu.Unlock()
	_, err := m.Retry(context.Background(), s.ID, intel.CapabilityWalletRisk)
	require.NoError(t, err)

	waitFor(t, func() bool {
		r := s.Result(intel.CapabilityWalletRisk)
		return r != nil && r.Provenance == intel.ProvenanceLive
	})
	assert.Equal(t, 66.0, s.Result(intel.CapabilityWalletRisk).Data["risk_score"])
}

func TestRetry_UnknownCapability(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:0", nil)
	_, err := m.Retry(context.Background(), "whatever", intel.Capability("bogus"))
	assert.Error(t, err)
}

func TestExpand_ReplacesGraphWithNewCenter(t *testing.T) {
	srv := upstream(t)
	defer srv.Close()
	m := newManager(t, srv.URL, nil)

	s := m.Investigate(context.Background(), testAddr, 0)
	waitFor(t, func() bool { return s.Result(intel.CapabilitySubgraph) != nil })
	require.NoError(t, s.View().Select(testAddr))

	doc, err := m.Expand(context.Background(), s.ID, "0xaa")
	require.NoError(t, err)
	assert.Equal(t, "0xaa", doc.Graph.Center, "clicked node becomes the center")
	require.Len(t, doc.Graph.Nodes, 2, "the fetched neighborhood replaces the frame wholesale")
	ids := []string{doc.Graph.Nodes[0].ID, doc.Graph.Nodes[1].ID}
	assert.ElementsMatch(t, []string{"0xaa", "0xbb"}, ids)
	assert.NotContains(t, ids, testAddr, "the previous center is not carried over")
	assert.Nil(t, doc.Detail, "expansion resets the selection")
	assert.Empty(t, s.View().Selected())

	_, err = m.Expand(context.Background(), s.ID, "0xghost")
	assert.Error(t, err)
}

func TestCloseAndSweep(t *testing.T) {
	srv := upstream(t)
	defer srv.Close()
	m := newManager(t, srv.URL, nil)

	s := m.Investigate(context.Background(), testAddr, 0)
	require.Equal(t, 1, m.Count())

	m.Close(s.ID)
	assert.Equal(t, 0, m.Count())
	_, err := m.Get(s.ID)
	assert.Error(t, err)

	s2 := m.Investigate(context.Background(), testAddr, 0)
	waitFor(t, func() bool { return len(s2.Results()) == 5 })
	assert.Equal(t, 0, m.Sweep(time.Minute))
	assert.Equal(t, 1, m.Sweep(0))
	assert.Equal(t, 0, m.Count())
}

func TestDocument_UnknownSession(t *testing.T) {
	m := newManager(t, "http://127.0.0.1:0", nil)
	_, err := m.Document(fmt.Sprintf("no-%d", time.Now().Unix()))
	assert.Error(t, err)
}
