package layout

import (
	"context"
	"math"

	"github.com/chainsight/core/internal/graph"
)

// ringFraction sizes the orbit relative to the smaller canvas dimension.
const ringFraction = 0.35

// Circular places the center node at the canvas center and spaces every
// other node evenly on a circle around it. Deterministic given node
// order, which keeps layout tests reproducible.
type Circular struct{}

// NewCircular creates the circular fallback strategy.
func NewCircular() *Circular {
	return &Circular{}
}

// Name implements Strategy.
func (c *Circular) Name() string { return "circular" }

// Arrange implements Strategy. The ctx parameter is accepted for
// interface symmetry; a single pass over the nodes never blocks.
func (c *Circular) Arrange(_ context.Context, g *graph.Graph, canvas Canvas) {
	if len(g.Nodes) == 0 {
		return
	}

	cx, cy := canvas.Center()
	ring := math.Min(canvas.Width, canvas.Height) * ringFraction

	centerIdx := g.NodeIndex(g.Center)
	if centerIdx == -1 {
		centerIdx = 0 // first node is the focal point when none is designated
	}
	g.Nodes[centerIdx].X = cx
	g.Nodes[centerIdx].Y = cy

	orbitCount := len(g.Nodes) - 1
	if orbitCount == 0 {
		return
	}

	step := 2 * math.Pi / float64(orbitCount)
	slot := 0
	for i := range g.Nodes {
		if i == centerIdx {
			continue
		}
		angle := step * float64(slot)
		g.Nodes[i].X = cx + ring*math.Cos(angle)
		g.Nodes[i].Y = cy + ring*math.Sin(angle)
		slot++
	}
}
