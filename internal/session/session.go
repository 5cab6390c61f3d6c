// Package session orchestrates one investigation: it dispatches the
// intelligence capabilities for an address, runs the graph pipeline when
// the transaction neighborhood arrives, and owns the per-session view
// state. Capabilities are dispatched concurrently but each one resolves
// through its own sequential cascade; results arrive and render
// independently, so a slow social feed never blocks the wallet panel.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/chainsight/core/internal/cascade"
	"github.com/chainsight/core/internal/intel"
	"github.com/chainsight/core/internal/view"
)

// Session is one client's investigation of one address. All fields behind
// mu; the view state has its own locking.
type Session struct {
	ID string

	mu         sync.Mutex
	address    string
	depth      int
	token      uint64 // query generation the results map belongs to
	results    map[intel.Capability]*cascade.Result
	layoutName string
	cancel     context.CancelFunc

	view *view.State

	createdAt  time.Time
	lastActive time.Time
}

// Address returns the address currently under investigation.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// View exposes the session's view state for selection and filter calls.
func (s *Session) View() *view.State {
	return s.view
}

// Results returns the capability results that have arrived so far, in
// dispatch order.
func (s *Session) Results() []cascade.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cascade.Result, 0, len(s.results))
	for _, c := range intel.Capabilities {
		if r, ok := s.results[c]; ok {
			out = append(out, *r)
		}
	}
	return out
}

// Result returns one capability's result, or nil if it has not arrived.
func (s *Session) Result(c intel.Capability) *cascade.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[c]
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// stop cancels any in-flight dispatch.
func (s *Session) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
