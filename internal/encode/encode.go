// Package encode maps node and edge attributes to visual attributes.
// Every function here is pure: the same inputs always produce the same
// radius, color, and width, which is what makes the palette testable.
package encode

import (
	"math"

	"github.com/chainsight/core/internal/graph"
	"github.com/chainsight/core/internal/intel"
)

// Node sizing. Radius grows with risk and (logarithmically) with activity,
// and is clamped so no single node can dominate the canvas.
const (
	BaseRadius = 8.0
	MaxRadius  = 30.0

	riskRadiusWeight     = 0.12 // per risk point, up to +12
	activityRadiusWeight = 1.6  // per log-step of tx count
)

// Edge sizing.
const (
	MinEdgeWidth = 1.0
	MaxEdgeWidth = 8.0

	edgeWidthWeight = 0.75 // per log-step of transferred value
)

// Risk palette, one color per bucket.
const (
	ColorCritical = "#d32f2f"
	ColorHigh     = "#f57c00"
	ColorMedium   = "#fbc02d"
	ColorLow      = "#7cb342"
	ColorMinimal  = "#4caf50"

	// ColorCenter marks the designated focal node regardless of its bucket.
	ColorCenter = "#1976d2"

	ColorEdge = "#90a4ae"
)

// Opacity levels used by the highlight overlay.
const (
	FullOpacity   = 1.0
	DimmedOpacity = 0.15
)

// NodeRadius computes the display radius for a node.
// Monotonic in both risk score and activity count.
func NodeRadius(riskScore float64, txCount int) float64 {
	if riskScore < 0 {
		riskScore = 0
	}
	if txCount < 0 {
		txCount = 0
	}
	r := BaseRadius +
		riskScore*riskRadiusWeight +
		math.Log(float64(txCount)+1)*activityRadiusWeight
	return math.Min(r, MaxRadius)
}

// NodeColor returns the palette color for a risk score. The center node
// gets its own color regardless of bucket.
func NodeColor(riskScore float64, isCenter bool) string {
	if isCenter {
		return ColorCenter
	}
	return LevelColor(intel.BucketFor(riskScore))
}

// LevelColor maps a risk bucket to its palette entry.
func LevelColor(level intel.Level) string {
	switch level {
	case intel.LevelCritical:
		return ColorCritical
	case intel.LevelHigh:
		return ColorHigh
	case intel.LevelMedium:
		return ColorMedium
	case intel.LevelLow:
		return ColorLow
	default:
		return ColorMinimal
	}
}

// EdgeWidth computes display width from transferred value: monotonic,
// clamped, and never below the minimum visible width.
func EdgeWidth(value float64) float64 {
	if value < 0 {
		value = 0
	}
	w := MinEdgeWidth + math.Log(value+1)*edgeWidthWeight
	return math.Min(w, MaxEdgeWidth)
}

// Apply assigns visual attributes to every node and edge in place.
// The graph's Center decides which node gets the focal color.
func Apply(g *graph.Graph) {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		n.Radius = NodeRadius(n.RiskScore, n.TxCount)
		n.Color = NodeColor(n.RiskScore, n.ID == g.Center)
		n.Opacity = FullOpacity
	}
	for i := range g.Edges {
		e := &g.Edges[i]
		e.Width = EdgeWidth(e.Value)
		e.Color = ColorEdge
		e.Opacity = FullOpacity
	}
}

// LegendEntry is one row of the dashboard legend.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// Legend returns the palette legend in descending severity order.
func Legend() []LegendEntry {
	return []LegendEntry{
		{Label: string(intel.LevelCritical), Color: ColorCritical, Min: 80, Max: 100},
		{Label: string(intel.LevelHigh), Color: ColorHigh, Min: 60, Max: 79},
		{Label: string(intel.LevelMedium), Color: ColorMedium, Min: 40, Max: 59},
		{Label: string(intel.LevelLow), Color: ColorLow, Min: 20, Max: 39},
		{Label: string(intel.LevelMinimal), Color: ColorMinimal, Min: 0, Max: 19},
	}
}
