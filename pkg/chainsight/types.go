// Package chainsight is the public Go client for the investigation API.
// It mirrors the wire types the dashboard serves so external tooling can
// consume investigations without depending on server internals.
package chainsight

import (
	"encoding/json"
	"fmt"
)

// Source values carried in response metadata.
const (
	SourceLive = "live"
	SourceDemo = "demo" // synthesized after upstream loss
)

// Capability names accepted by the retry endpoint.
const (
	CapabilityWalletRisk     = "wallet-risk"
	CapabilityClassification = "classification"
	CapabilityMultichain     = "multichain"
	CapabilitySocial         = "social"
	CapabilitySubgraph       = "subgraph"
)

// Envelope is the uniform API response wrapper.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
	Code    string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Meta describes where a payload came from.
type Meta struct {
	Source string `json:"source,omitempty"`
	Depth  int    `json:"depth,omitempty"`
}

// Synthetic reports whether the payload was fabricated because every
// upstream failed. Synthetic data is structurally valid but must not be
// presented as real intelligence.
func (m *Meta) Synthetic() bool {
	return m != nil && m.Source == SourceDemo
}

// APIError is a non-2xx response from the dashboard.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
}

// Node is a rendered graph node: identity, risk, position, and encoding.
type Node struct {
	ID        string  `json:"id"`
	RiskScore float64 `json:"riskScore"`
	TxCount   int     `json:"txCount"`
	Balance   float64 `json:"balance,omitempty"`
	Group     string  `json:"group"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius,omitempty"`
	Color     string  `json:"color,omitempty"`
	Opacity   float64 `json:"opacity,omitempty"`
	Selected  bool    `json:"selected,omitempty"`
}

// Edge is a rendered relationship between two nodes.
type Edge struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Color     string  `json:"color,omitempty"`
	Opacity   float64 `json:"opacity,omitempty"`
}

// Graph is the positioned node/edge set for one frame.
type Graph struct {
	Center string `json:"center"`
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
}

// LegendEntry maps a risk band to its display color.
type LegendEntry struct {
	Label string  `json:"label"`
	Color string  `json:"color"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Stats summarizes the rendered neighborhood.
type Stats struct {
	NodeCount     int     `json:"node_count"`
	EdgeCount     int     `json:"edge_count"`
	AvgRisk       float64 `json:"avg_risk"`
	MaxRisk       float64 `json:"max_risk"`
	HighRiskCount int     `json:"high_risk_count"`
}

// Detail describes the selected node.
type Detail struct {
	ID        string  `json:"id"`
	RiskScore float64 `json:"risk_score"`
	RiskLevel string  `json:"risk_level"`
	TxCount   int     `json:"tx_count"`
	Balance   float64 `json:"balance"`
	Group     string  `json:"group"`
	Degree    int     `json:"degree"`
	IsCenter  bool    `json:"is_center"`
}

// Provenance lists which capabilities were live versus synthesized.
type Provenance struct {
	Synthetic []string `json:"synthetic,omitempty"`
	Live      []string `json:"live,omitempty"`
	AnyDemo   bool     `json:"any_demo"`
}

// Document is one complete render frame.
type Document struct {
	Address    string        `json:"address"`
	Graph      *Graph        `json:"graph"`
	Layout     string        `json:"layout"`
	Legend     []LegendEntry `json:"legend"`
	Stats      *Stats        `json:"stats,omitempty"`
	Detail     *Detail       `json:"detail,omitempty"`
	Provenance Provenance    `json:"provenance"`
	Empty      bool          `json:"empty"`
	Message    string        `json:"message,omitempty"`
}

// Investigation is the response to starting an investigation.
type Investigation struct {
	SessionID string   `json:"session_id"`
	Address   string   `json:"address"`
	Depth     int      `json:"depth"`
	Document  Document `json:"document"`
}

// Filter restricts the rendered node set server-side.
type Filter struct {
	Kind       string  `json:"kind"` // "risk", "activity", or "group"
	Threshold  float64 `json:"threshold,omitempty"`
	MinTxCount int     `json:"min_tx_count,omitempty"`
	Group      string  `json:"group,omitempty"`
}
