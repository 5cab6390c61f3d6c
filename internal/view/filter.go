package view

import (
	"fmt"
	"strings"

	"github.com/chainsight/core/internal/graph"
)

// FilterKind selects which node attribute a filter tests.
type FilterKind string

const (
	FilterRisk     FilterKind = "risk"     // RiskScore >= Threshold
	FilterActivity FilterKind = "activity" // TxCount >= MinTxCount
	FilterGroup    FilterKind = "group"    // Group == Group (case-insensitive)
)

// Filter is a predicate over graph nodes. The zero Threshold/MinTxCount
// values make risk and activity filters match everything, which is the
// intended "show all" behavior for a cleared slider.
type Filter struct {
	Kind       FilterKind `json:"kind"`
	Threshold  float64    `json:"threshold,omitempty"`
	MinTxCount int        `json:"min_tx_count,omitempty"`
	Group      string     `json:"group,omitempty"`
}

// ParseFilter validates a client-supplied filter.
func ParseFilter(f Filter) (*Filter, error) {
	switch f.Kind {
	case FilterRisk:
		if f.Threshold < 0 || f.Threshold > 100 {
			return nil, fmt.Errorf("risk threshold %.1f out of range [0,100]", f.Threshold)
		}
	case FilterActivity:
		if f.MinTxCount < 0 {
			return nil, fmt.Errorf("min_tx_count must be non-negative")
		}
	case FilterGroup:
		if strings.TrimSpace(f.Group) == "" {
			return nil, fmt.Errorf("group filter requires a group value")
		}
	default:
		return nil, fmt.Errorf("unknown filter kind %q", f.Kind)
	}
	return &f, nil
}

// Match reports whether a node passes the filter.
func (f *Filter) Match(n graph.Node) bool {
	switch f.Kind {
	case FilterRisk:
		return n.RiskScore >= f.Threshold
	case FilterActivity:
		return n.TxCount >= f.MinTxCount
	case FilterGroup:
		return strings.EqualFold(n.Group, f.Group)
	default:
		return true
	}
}
