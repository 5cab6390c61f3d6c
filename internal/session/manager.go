package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainsight/core/internal/cascade"
	"github.com/chainsight/core/internal/encode"
	"github.com/chainsight/core/internal/graph"
	"github.com/chainsight/core/internal/intel"
	"github.com/chainsight/core/internal/layout"
	"github.com/chainsight/core/internal/logging"
	"github.com/chainsight/core/internal/metrics"
	"github.com/chainsight/core/internal/render"
	"github.com/chainsight/core/internal/traces"
	"github.com/chainsight/core/internal/view"
)

// ErrNotFound is returned for operations on unknown or closed sessions.
var ErrNotFound = errors.New("session not found")

// Publisher pushes session events to connected clients. The realtime hub
// implements it; a nil publisher drops events.
type Publisher interface {
	Publish(sessionID string, event string, payload any)
}

// Event names published to clients.
const (
	EventCapability = "capability_result"
	EventGraph      = "graph_update"
)

type noopPublisher struct{}

func (noopPublisher) Publish(string, string, any) {}

// Manager owns the live sessions and the shared pipeline components.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cascade *cascade.Cascade
	layout  *layout.Engine
	pub     Publisher
	logger  *slog.Logger
	depth   int // default subgraph traversal depth
}

// fetchCapabilities are dispatched per query alongside the subgraph.
var fetchCapabilities = []intel.Capability{
	intel.CapabilityWalletRisk,
	intel.CapabilityClassification,
	intel.CapabilityMultichain,
	intel.CapabilitySocial,
}

// NewManager creates a session manager. pub may be nil.
func NewManager(c *cascade.Cascade, eng *layout.Engine, pub Publisher, depth int, logger *slog.Logger) *Manager {
	if pub == nil {
		pub = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if depth < 1 {
		depth = 1
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cascade:  c,
		layout:   eng,
		pub:      pub,
		logger:   logger,
		depth:    depth,
	}
}

// Investigate starts a new session for an address and dispatches every
// capability. It returns immediately; results stream in via the publisher
// and accumulate on the session.
func (m *Manager) Investigate(ctx context.Context, address string, depth int) *Session {
	if depth < 1 {
		depth = m.depth
	}
	s := &Session{
		ID:         uuid.NewString(),
		results:    make(map[intel.Capability]*cascade.Result),
		view:       view.NewState(),
		createdAt:  time.Now(),
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	metrics.ActiveSessions.Inc()

	m.dispatch(ctx, s, address, depth)
	return s
}

// Requery re-points an existing session at a new address. In-flight work
// for the previous query is cancelled and its late results are discarded
// by token comparison.
func (m *Manager) Requery(ctx context.Context, sessionID, address string, depth int) (*Session, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if depth < 1 {
		depth = m.depth
	}
	m.dispatch(ctx, s, address, depth)
	return s, nil
}

// dispatch starts a fresh query generation on s: new token, cancelled
// predecessor, one goroutine per capability plus the subgraph.
func (m *Manager) dispatch(ctx context.Context, s *Session, address string, depth int) {
	s.stop()
	token := s.view.NextToken()

	// Work outlives the triggering HTTP request but keeps its log context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logging.WithSessionID(runCtx, s.ID)
	runCtx, span := traces.StartSpan(runCtx, "session.dispatch",
		traces.SessionID(s.ID),
		traces.Address(address),
	)
	defer span.End()

	s.mu.Lock()
	s.address = address
	s.depth = depth
	s.token = token
	s.results = make(map[intel.Capability]*cascade.Result)
	s.layoutName = ""
	s.cancel = cancel
	s.lastActive = time.Now()
	s.mu.Unlock()

	for _, c := range fetchCapabilities {
		go func(c intel.Capability) {
			m.apply(runCtx, s, token, m.cascade.Fetch(runCtx, c, address))
		}(c)
	}
	go func() {
		m.apply(runCtx, s, token, m.cascade.FetchSubgraph(runCtx, address, depth))
	}()
}

// Retry refetches a single capability within the current query generation.
func (m *Manager) Retry(ctx context.Context, sessionID string, c intel.Capability) (*Session, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown capability %q", c)
	}
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	address, depth, token := s.address, s.depth, s.token
	s.mu.Unlock()

	runCtx := logging.WithSessionID(context.WithoutCancel(ctx), s.ID)
	go func() {
		var res *cascade.Result
		if c == intel.CapabilitySubgraph {
			res = m.cascade.FetchSubgraph(runCtx, address, depth)
		} else {
			res = m.cascade.Fetch(runCtx, c, address)
		}
		m.apply(runCtx, s, token, res)
	}()
	return s, nil
}

// apply records a cascade result if its query generation is still current.
// Stale results are counted and dropped. The generation check and the
// results write happen in one critical section so a requery landing
// between them cannot inherit a superseded panel.
func (m *Manager) apply(ctx context.Context, s *Session, token uint64, res *cascade.Result) {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		metrics.SupersededResultsTotal.Inc()
		logging.L(ctx).Debug("discarding result for superseded query",
			"capability", res.Capability,
		)
		return
	}
	s.results[res.Capability] = res
	address := s.address
	s.mu.Unlock()

	if res.Capability == intel.CapabilitySubgraph {
		g := graph.Normalize(res.Data, address)
		encode.Apply(g)
		name := m.layout.Arrange(ctx, g)
		if !s.view.ReplaceGraph(g, token) {
			metrics.SupersededResultsTotal.Inc()
			return
		}
		s.mu.Lock()
		s.layoutName = name
		s.mu.Unlock()
		metrics.GraphNodesRendered.Observe(float64(len(g.Nodes)))
		m.pub.Publish(s.ID, EventGraph, m.document(s))
		return
	}

	m.pub.Publish(s.ID, EventCapability, res)
}

// Expand re-centers the session's graph on nodeID: the clicked node's
// neighborhood is fetched through the pipeline and replaces the current
// frame wholesale, which also resets every overlay.
func (m *Manager) Expand(ctx context.Context, sessionID, nodeID string) (render.Document, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return render.Document{}, err
	}

	if s.view.Canonical().NodeIndex(nodeID) == -1 {
		return render.Document{}, fmt.Errorf("node %q not in current graph", nodeID)
	}

	s.mu.Lock()
	depth := s.depth
	s.mu.Unlock()

	ctx = logging.WithSessionID(ctx, s.ID)
	res := m.cascade.FetchSubgraph(ctx, nodeID, depth)
	g := graph.Normalize(res.Data, nodeID)
	encode.Apply(g)
	name := m.layout.Arrange(ctx, g)

	token := s.view.Token()
	if !s.view.ReplaceGraph(g, token) {
		metrics.SupersededResultsTotal.Inc()
		return render.Document{}, fmt.Errorf("session superseded during expansion")
	}
	s.mu.Lock()
	s.layoutName = name
	s.mu.Unlock()

	doc := m.document(s)
	m.pub.Publish(s.ID, EventGraph, doc)
	return doc, nil
}

// Select highlights a node and returns the updated document.
func (m *Manager) Select(sessionID, nodeID string) (render.Document, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return render.Document{}, err
	}
	if nodeID == "" {
		s.view.Deselect()
	} else if err := s.view.Select(nodeID); err != nil {
		return render.Document{}, err
	}
	doc := m.document(s)
	m.pub.Publish(s.ID, EventGraph, doc)
	return doc, nil
}

// Filter installs a node filter and returns the updated document.
func (m *Manager) Filter(sessionID string, f view.Filter) (render.Document, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return render.Document{}, err
	}
	parsed, err := view.ParseFilter(f)
	if err != nil {
		return render.Document{}, err
	}
	s.view.SetFilter(parsed)
	doc := m.document(s)
	m.pub.Publish(s.ID, EventGraph, doc)
	return doc, nil
}

// ClearOverlays drops both the selection and the filter.
func (m *Manager) ClearOverlays(sessionID string) (render.Document, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return render.Document{}, err
	}
	s.view.Deselect()
	s.view.ClearFilter()
	doc := m.document(s)
	m.pub.Publish(s.ID, EventGraph, doc)
	return doc, nil
}

// Document renders the session's current frame.
func (m *Manager) Document(sessionID string) (render.Document, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return render.Document{}, err
	}
	return m.document(s), nil
}

func (m *Manager) document(s *Session) render.Document {
	s.touch()
	s.mu.Lock()
	address, name := s.address, s.layoutName
	s.mu.Unlock()
	return render.Build(address, s.view.Rendered(), name, s.view.Selected(), s.Results())
}

// Get looks up a live session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, sessionID)
	}
	s.touch()
	return s, nil
}

// Close cancels a session's in-flight work and forgets it.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if ok {
		s.stop()
		metrics.ActiveSessions.Dec()
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle longer than maxIdle and returns how many.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range stale {
		m.Close(id)
	}
	return len(stale)
}

// StartSweeper evicts idle sessions until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Sweep(maxIdle); n > 0 {
					m.logger.Debug("evicted idle sessions", "count", n)
				}
			}
		}
	}()
}
