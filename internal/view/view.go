// Package view owns the presentation state for one investigation: the
// canonical graph plus the selection and filter overlays layered on it.
// Overlays never mutate topology: topology only changes when a fresh
// normalized payload replaces the graph wholesale, which also resets
// every overlay and bumps the query token used to discard stale results.
package view

import (
	"fmt"
	"sync"

	"github.com/chainsight/core/internal/encode"
	"github.com/chainsight/core/internal/graph"
)

// State is the explicit view-state object: one per investigation session.
// All methods are safe for concurrent use; the HTTP surface and the
// websocket push path share one State.
type State struct {
	mu sync.Mutex

	canonical *graph.Graph // owned; overlays copy, never mutate
	selected  string       // node ID, empty when nothing is selected
	filter    *Filter      // nil when unfiltered

	token uint64 // monotonically increasing query token
}

// NewState creates an empty view state.
func NewState() *State {
	return &State{canonical: &graph.Graph{}}
}

// Token returns the current query token. A capability result may only be
// applied while its token is still current.
func (s *State) Token() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// NextToken starts a new query generation: the previous token is
// superseded and every overlay is reset.
func (s *State) NextToken() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token++
	s.selected = ""
	s.filter = nil
	return s.token
}

// ReplaceGraph installs a freshly normalized graph if token is still
// current. Late results for superseded queries are rejected so the UI
// never flickers back to stale data. A new graph fully supersedes prior
// overlays.
func (s *State) ReplaceGraph(g *graph.Graph, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		return false
	}
	s.canonical = g
	s.selected = ""
	s.filter = nil
	return true
}

// Canonical returns a deep copy of the canonical graph, without overlays.
func (s *State) Canonical() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canonical.Clone()
}

// Select marks a node as selected. Rendering dims everything outside the
// node's one-hop connected subgraph.
func (s *State) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canonical.NodeIndex(id) == -1 {
		return fmt.Errorf("unknown node %q", id)
	}
	s.selected = id
	return nil
}

// Deselect clears the selection, restoring full opacity on render.
func (s *State) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
}

// Selected returns the selected node ID, or "".
func (s *State) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// SetFilter installs a node predicate. Non-matching nodes (and their
// edges) disappear from the rendered set; the canonical graph is
// untouched, so clearing the filter restores the exact prior set.
func (s *State) SetFilter(f *Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

// ClearFilter removes the active filter.
func (s *State) ClearFilter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = nil
}

// ActiveFilter returns the current filter, or nil.
func (s *State) ActiveFilter() *Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Rendered produces the graph a client should draw: a copy of the
// canonical graph with the filter applied (nodes removed) and the
// selection highlight applied (non-neighbors dimmed).
func (s *State) Rendered() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.canonical.Clone()

	if s.filter != nil {
		applyFilter(out, s.filter)
	}

	if s.selected != "" && out.NodeIndex(s.selected) != -1 {
		applyHighlight(out, s.selected)
	}

	return out
}

// applyFilter removes non-matching nodes and edges touching them.
func applyFilter(g *graph.Graph, f *Filter) {
	keep := map[string]bool{}
	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if f.Match(n) {
			keep[n.ID] = true
			nodes = append(nodes, n)
		}
	}
	g.Nodes = nodes

	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if keep[e.From] && keep[e.To] {
			edges = append(edges, e)
		}
	}
	g.Edges = edges
}

// applyHighlight dims everything outside the selected node's one-hop
// connected subgraph. Dimmed elements stay in the set: opacity reduced,
// not removed.
func applyHighlight(g *graph.Graph, selected string) {
	connected := map[string]bool{selected: true}
	for _, id := range g.Neighbors(selected) {
		connected[id] = true
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		n.Selected = n.ID == selected
		if connected[n.ID] {
			n.Opacity = encode.FullOpacity
		} else {
			n.Opacity = encode.DimmedOpacity
		}
	}

	for i := range g.Edges {
		e := &g.Edges[i]
		if e.From == selected || e.To == selected {
			e.Opacity = encode.FullOpacity
		} else {
			e.Opacity = encode.DimmedOpacity
		}
	}
}
