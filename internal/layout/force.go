package layout

import (
	"context"
	"math"

	"github.com/chainsight/core/internal/graph"
	"github.com/chainsight/core/internal/metrics"
)

// Force solver tuning. The solver is bounded in two ways: a hard
// iteration cap and a stabilization deadline carried on ctx; whichever
// hits first, the current positions are kept.
const (
	maxIterations    = 300
	batchSize        = 10 // ctx checked between batches
	repulsion        = 2400.0
	springStrength   = 0.015
	springRestLength = 110.0
	centerAnchor     = 0.012 // weak pull of the focal node toward canvas center
	damping          = 0.85
	convergenceDelta = 0.5 // total movement below this ends the run early
	maxDisplacement  = 40.0
)

// Force is an iterative spring-embedder: all node pairs repel, edges act
// as springs, velocities are damped until the system settles. Run-to-run
// positions vary with the seeded start but always converge within the
// iteration budget.
type Force struct{}

// NewForce creates the force-directed strategy.
func NewForce() *Force {
	return &Force{}
}

// Name implements Strategy.
func (f *Force) Name() string { return "force" }

// Arrange implements Strategy.
func (f *Force) Arrange(ctx context.Context, g *graph.Graph, canvas Canvas) {
	n := len(g.Nodes)
	if n == 0 {
		return
	}

	// Seed from the deterministic circle so the solver starts from a
	// non-degenerate configuration.
	NewCircular().Arrange(ctx, g, canvas)
	if n == 1 {
		return
	}

	cx, cy := canvas.Center()
	centerIdx := g.NodeIndex(g.Center)

	// Adjacency by node index for the spring pass.
	index := make(map[string]int, n)
	for i := range g.Nodes {
		index[g.Nodes[i].ID] = i
	}

	vx := make([]float64, n)
	vy := make([]float64, n)

	iterations := 0
	defer func() {
		metrics.LayoutIterations.Observe(float64(iterations))
	}()

	for iterations < maxIterations {
		for b := 0; b < batchSize && iterations < maxIterations; b++ {
			moved := f.step(g, index, vx, vy, cx, cy, centerIdx)
			iterations++
			if moved < convergenceDelta {
				return
			}
		}
		// Stabilization deadline: keep whatever positions exist rather
		// than spinning past the caller's budget.
		if ctx.Err() != nil {
			return
		}
	}
}

// step advances the simulation one tick and returns total movement.
func (f *Force) step(g *graph.Graph, index map[string]int, vx, vy []float64, cx, cy float64, centerIdx int) float64 {
	n := len(g.Nodes)
	fx := make([]float64, n)
	fy := make([]float64, n)

	// Pairwise repulsion, scaled by node radius so risky/busy nodes
	// claim more space.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := g.Nodes[i].X - g.Nodes[j].X
			dy := g.Nodes[i].Y - g.Nodes[j].Y
			distSq := dx*dx + dy*dy
			if distSq < 1 {
				distSq = 1
				dx, dy = 1, 0 // coincident nodes push apart along x
			}
			dist := math.Sqrt(distSq)

			sizeBoost := 1 + (g.Nodes[i].Radius+g.Nodes[j].Radius)/40
			force := repulsion * sizeBoost / distSq
			ux, uy := dx/dist, dy/dist
			fx[i] += ux * force
			fy[i] += uy * force
			fx[j] -= ux * force
			fy[j] -= uy * force
		}
	}

	// Springs along edges.
	for _, e := range g.Edges {
		i, iok := index[e.From]
		j, jok := index[e.To]
		if !iok || !jok || i == j {
			continue
		}
		dx := g.Nodes[j].X - g.Nodes[i].X
		dy := g.Nodes[j].Y - g.Nodes[i].Y
		dist := math.Hypot(dx, dy)
		if dist < 1 {
			continue
		}
		stretch := dist - springRestLength
		force := springStrength * stretch
		ux, uy := dx/dist, dy/dist
		fx[i] += ux * force
		fy[i] += uy * force
		fx[j] -= ux * force
		fy[j] -= uy * force
	}

	// Weak anchor keeping the focal node near the canvas center.
	if centerIdx >= 0 {
		fx[centerIdx] += (cx - g.Nodes[centerIdx].X) * centerAnchor
		fy[centerIdx] += (cy - g.Nodes[centerIdx].Y) * centerAnchor
	}

	var moved float64
	for i := 0; i < n; i++ {
		vx[i] = (vx[i] + fx[i]) * damping
		vy[i] = (vy[i] + fy[i]) * damping

		dx := clamp(vx[i], -maxDisplacement, maxDisplacement)
		dy := clamp(vy[i], -maxDisplacement, maxDisplacement)
		g.Nodes[i].X += dx
		g.Nodes[i].Y += dy
		moved += math.Abs(dx) + math.Abs(dy)
	}
	return moved
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
