// Package render assembles the complete document a client needs to draw
// one investigation frame: the positioned and encoded graph, the legend,
// the stats and detail panels, and the provenance banner. It is a pure
// projection: nothing here mutates session state.
package render

import (
	"github.com/chainsight/core/internal/cascade"
	"github.com/chainsight/core/internal/encode"
	"github.com/chainsight/core/internal/graph"
	"github.com/chainsight/core/internal/intel"
)

// Document is the render-ready payload for one frame.
type Document struct {
	Address    string               `json:"address"`
	Graph      *graph.Graph         `json:"graph"`
	Layout     string               `json:"layout"`
	Legend     []encode.LegendEntry `json:"legend"`
	Stats      *StatsPanel          `json:"stats,omitempty"`
	Detail     *DetailPanel         `json:"detail,omitempty"`
	Provenance Provenance           `json:"provenance"`
	Empty      bool                 `json:"empty"`
	Message    string               `json:"message,omitempty"`
}

// StatsPanel summarizes the rendered neighborhood.
type StatsPanel struct {
	NodeCount     int     `json:"node_count"`
	EdgeCount     int     `json:"edge_count"`
	AvgRisk       float64 `json:"avg_risk"`
	MaxRisk       float64 `json:"max_risk"`
	HighRiskCount int     `json:"high_risk_count"`
}

// DetailPanel describes the currently selected node.
type DetailPanel struct {
	ID        string  `json:"id"`
	RiskScore float64 `json:"risk_score"`
	RiskLevel string  `json:"risk_level"`
	TxCount   int     `json:"tx_count"`
	Balance   float64 `json:"balance"`
	Group     string  `json:"group"`
	Degree    int     `json:"degree"`
	IsCenter  bool    `json:"is_center"`
}

// Provenance tells the client which capabilities came from live upstreams
// and which were synthesized, so it can show a banner instead of passing
// fabricated numbers off as real.
type Provenance struct {
	Synthetic []string `json:"synthetic,omitempty"`
	Live      []string `json:"live,omitempty"`
	AnyDemo   bool     `json:"any_demo"`
}

const emptyMessage = "no transaction neighborhood available for this address"

// Build assembles the document for a rendered graph. layoutName is the
// strategy that positioned it; selected is the selected node ID or "".
func Build(address string, g *graph.Graph, layoutName, selected string, results []cascade.Result) Document {
	doc := Document{
		Address:    address,
		Graph:      g,
		Layout:     layoutName,
		Legend:     encode.Legend(),
		Provenance: provenance(results),
	}

	if g == nil || len(g.Nodes) == 0 {
		doc.Graph = &graph.Graph{}
		doc.Empty = true
		doc.Message = emptyMessage
		return doc
	}

	st := g.ComputeStats()
	doc.Stats = &StatsPanel{
		NodeCount:     st.TotalNodes,
		EdgeCount:     st.TotalEdges,
		AvgRisk:       st.AvgRiskScore,
		MaxRisk:       st.MaxRiskScore,
		HighRiskCount: st.HighRiskCount,
	}

	if selected != "" {
		doc.Detail = detail(g, selected)
	}

	return doc
}

func detail(g *graph.Graph, id string) *DetailPanel {
	idx := g.NodeIndex(id)
	if idx == -1 {
		return nil
	}
	n := g.Nodes[idx]
	return &DetailPanel{
		ID:        n.ID,
		RiskScore: n.RiskScore,
		RiskLevel: string(intel.BucketFor(n.RiskScore)),
		TxCount:   n.TxCount,
		Balance:   n.Balance,
		Group:     n.Group,
		Degree:    len(g.Neighbors(n.ID)),
		IsCenter:  n.ID == g.Center,
	}
}

func provenance(results []cascade.Result) Provenance {
	var p Provenance
	for _, r := range results {
		if r.Provenance == intel.ProvenanceSynthetic {
			p.Synthetic = append(p.Synthetic, string(r.Capability))
			p.AnyDemo = true
		} else {
			p.Live = append(p.Live, string(r.Capability))
		}
	}
	return p
}
