// Package graph defines the canonical node/edge model used uniformly by
// layout, encoding, and rendering, and the normalizer that converts
// heterogeneous upstream payloads into it.
package graph

// Node represents an address or contract encountered in the network view.
// Identity and chain attributes come from normalization; position, visual
// attributes, and the selected flag are assigned later by the layout
// engine, visual encoder, and interaction controller.
type Node struct {
	ID        string  `json:"id"`
	RiskScore float64 `json:"riskScore"`
	TxCount   int     `json:"txCount"`
	Balance   float64 `json:"balance,omitempty"`
	Group     string  `json:"group"` // "address" or "contract"

	// Presentation attributes, zero until assigned.
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Radius   float64 `json:"radius,omitempty"`
	Color    string  `json:"color,omitempty"`
	Opacity  float64 `json:"opacity,omitempty"`
	Selected bool    `json:"selected,omitempty"`
}

// Edge represents a directed relationship between two nodes. Both
// endpoints are guaranteed to exist in the owning graph's node set;
// edges referencing unknown nodes are dropped during normalization.
type Edge struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp,omitempty"`

	Width   float64 `json:"width,omitempty"`
	Color   string  `json:"color,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
}

// Graph is the canonical node/edge set for one query, plus the designated
// center address the layout orbits around.
type Graph struct {
	Center string `json:"center"`
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
}

// Empty reports whether the graph has no nodes: the defined "no data"
// state, distinct from an error.
func (g *Graph) Empty() bool {
	return len(g.Nodes) == 0
}

// NodeIndex returns the position of a node ID in Nodes, or -1.
func (g *Graph) NodeIndex(id string) int {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Neighbors returns the IDs of every node directly linked to id by one
// edge, in either direction.
func (g *Graph) Neighbors(id string) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range g.Edges {
		var other string
		switch id {
		case e.From:
			other = e.To
		case e.To:
			other = e.From
		default:
			continue
		}
		if !seen[other] && other != id {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

// Clone returns a deep copy. Overlay operations work on copies so the
// canonical graph is never mutated by presentation state.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Center: g.Center,
		Nodes:  make([]Node, len(g.Nodes)),
		Edges:  make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	return out
}

// Stats summarizes a graph for the dashboard's stats panel.
type Stats struct {
	TotalNodes    int     `json:"totalNodes"`
	TotalEdges    int     `json:"totalEdges"`
	AvgRiskScore  float64 `json:"avgRiskScore"`
	MaxRiskScore  float64 `json:"maxRiskScore"`
	HighRiskCount int     `json:"highRiskCount"` // score >= 80
}

// ComputeStats derives the stats panel values from the current node set.
func (g *Graph) ComputeStats() Stats {
	s := Stats{TotalNodes: len(g.Nodes), TotalEdges: len(g.Edges)}
	if len(g.Nodes) == 0 {
		return s
	}
	var sum float64
	for i := range g.Nodes {
		score := g.Nodes[i].RiskScore
		sum += score
		if score > s.MaxRiskScore {
			s.MaxRiskScore = score
		}
		if score >= 80 {
			s.HighRiskCount++
		}
	}
	s.AvgRiskScore = sum / float64(len(g.Nodes))
	return s
}
