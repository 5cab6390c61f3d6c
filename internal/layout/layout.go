// Package layout assigns 2-D coordinates to graph nodes. Two strategies
// are available: a deterministic circular arrangement that always works,
// and an iterative force-directed solver used for larger graphs when
// enabled. Both read node radii assigned by the visual encoder so bigger
// nodes get proportionally more room.
package layout

import (
	"context"

	"github.com/chainsight/core/internal/graph"
)

// Canvas describes the drawing area the layout targets.
type Canvas struct {
	Width  float64
	Height float64
}

// Center returns the canvas midpoint.
func (c Canvas) Center() (float64, float64) {
	return c.Width / 2, c.Height / 2
}

// Strategy positions every node of a graph on a canvas.
type Strategy interface {
	// Arrange assigns X and Y to every node in place. Implementations
	// observe ctx and stop early with whatever positions exist.
	Arrange(ctx context.Context, g *graph.Graph, canvas Canvas)
	// Name identifies the strategy for logging.
	Name() string
}

// forceThreshold is the node count above which the force solver is
// preferred; small graphs read better on a plain circle.
const forceThreshold = 5

// Engine picks a strategy per graph.
type Engine struct {
	canvas   Canvas
	circular *Circular
	force    *Force // nil when the solver is disabled
}

// NewEngine creates a layout engine. When forceEnabled is false every
// graph uses the circular fallback.
func NewEngine(canvas Canvas, forceEnabled bool) *Engine {
	e := &Engine{
		canvas:   canvas,
		circular: NewCircular(),
	}
	if forceEnabled {
		e.force = NewForce()
	}
	return e
}

// Arrange lays out the graph with the best available strategy and
// returns the name of the strategy used.
func (e *Engine) Arrange(ctx context.Context, g *graph.Graph) string {
	s := e.pick(g)
	s.Arrange(ctx, g, e.canvas)
	return s.Name()
}

func (e *Engine) pick(g *graph.Graph) Strategy {
	if e.force != nil && len(g.Nodes) > forceThreshold {
		return e.force
	}
	return e.circular
}
