// Package cascade implements the resilient fetch strategy for upstream
// intelligence services: candidates are tried strictly in resolver order,
// the first structurally valid success wins, and total failure resolves to
// a locally synthesized payload instead of an error. Nothing past this
// package ever sees an upstream failure.
package cascade

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chainsight/core/internal/circuitbreaker"
	"github.com/chainsight/core/internal/intel"
	"github.com/chainsight/core/internal/logging"
	"github.com/chainsight/core/internal/metrics"
	"github.com/chainsight/core/internal/resolver"
	"github.com/chainsight/core/internal/traces"
)

// Outcome classifies one cascade attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
	OutcomeSkipped Outcome = "skipped" // circuit open, candidate not tried
)

// AttemptResult is the ephemeral record of one cascade step. It feeds
// fallback decisions and user-facing status messages and is not retained
// after the cascade completes.
type AttemptResult struct {
	Endpoint  string  `json:"endpoint"`
	Outcome   Outcome `json:"outcome"`
	Synthetic bool    `json:"synthetic"`
	LatencyMs int64   `json:"latencyMs,omitempty"`
}

// Result is what a cascade always resolves to: a payload and where it
// came from. Provenance is synthetic when either every candidate failed
// or the winning upstream flagged its own payload as demo data.
type Result struct {
	Capability intel.Capability `json:"capability"`
	Data       map[string]any   `json:"data"`
	Provenance intel.Provenance `json:"source"`
	Attempts   []AttemptResult  `json:"attempts,omitempty"`
}

// Synthesizer fabricates a structurally valid payload for a capability
// when every real endpoint has failed.
type Synthesizer interface {
	Synthesize(cap intel.Capability, address string) map[string]any
}

// Cascade resolves capabilities through ordered endpoint candidates.
type Cascade struct {
	resolver *resolver.Resolver
	client   *Client
	breaker  *circuitbreaker.Breaker
	synth    Synthesizer
	logger   *slog.Logger
}

// New creates a cascade. breaker may be nil to disable endpoint guarding.
func New(res *resolver.Resolver, client *Client, breaker *circuitbreaker.Breaker, synth Synthesizer, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cascade{
		resolver: res,
		client:   client,
		breaker:  breaker,
		synth:    synth,
		logger:   logger,
	}
}

// Fetch resolves one capability for one address. It never returns an error:
// all failure paths end in a synthesized payload tagged as such.
// Candidates are tried strictly sequentially; there is no racing and no
// per-candidate retry.
func (c *Cascade) Fetch(ctx context.Context, cap intel.Capability, address string) *Result {
	candidates := c.resolver.Resolve(cap, address)
	return c.run(ctx, cap, address, candidates)
}

// FetchSubgraph is Fetch for the subgraph capability with a traversal depth.
func (c *Cascade) FetchSubgraph(ctx context.Context, address string, depth int) *Result {
	candidates := c.resolver.ResolveSubgraph(address, depth)
	return c.run(ctx, intel.CapabilitySubgraph, address, candidates)
}

func (c *Cascade) run(ctx context.Context, cap intel.Capability, address string, candidates []resolver.Endpoint) *Result {
	ctx, span := traces.StartSpan(ctx, "cascade.fetch",
		traces.CapabilityName(string(cap)),
		traces.Address(address),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(string(cap)).Observe(time.Since(start).Seconds())
	}()

	log := logging.L(ctx)
	attempts := make([]AttemptResult, 0, len(candidates))

	for _, ep := range candidates {
		if ctx.Err() != nil {
			// Caller cancelled (superseded query). Skip straight to synthesis
			// so the contract of never erroring still holds; the stale result
			// is discarded upstream anyway.
			break
		}

		if c.breaker != nil && !c.breaker.Allow(ep.Name) {
			attempts = append(attempts, AttemptResult{Endpoint: ep.Name, Outcome: OutcomeSkipped})
			metrics.FetchAttemptsTotal.WithLabelValues(string(cap), string(OutcomeSkipped)).Inc()
			log.Debug("candidate skipped, circuit open", "capability", cap, "endpoint", ep.Name)
			continue
		}

		res, err := c.client.get(ctx, ep.URL)
		if err != nil {
			outcome := OutcomeFailure
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = OutcomeTimeout
			}
			attempts = append(attempts, AttemptResult{Endpoint: ep.Name, Outcome: outcome})
			metrics.FetchAttemptsTotal.WithLabelValues(string(cap), string(outcome)).Inc()
			if c.breaker != nil {
				c.breaker.RecordFailure(ep.Name)
			}
			log.Warn("candidate failed",
				"capability", cap,
				"endpoint", ep.Name,
				"outcome", outcome,
				"error", err,
			)
			continue
		}

		if !structurallyValid(cap, res.Data) {
			// Schema mismatch in an otherwise-successful response; same
			// handling as a transient failure.
			attempts = append(attempts, AttemptResult{Endpoint: ep.Name, Outcome: OutcomeFailure})
			metrics.FetchAttemptsTotal.WithLabelValues(string(cap), string(OutcomeFailure)).Inc()
			if c.breaker != nil {
				c.breaker.RecordFailure(ep.Name)
			}
			log.Warn("candidate returned structurally invalid payload",
				"capability", cap,
				"endpoint", ep.Name,
			)
			continue
		}

		if c.breaker != nil {
			c.breaker.RecordSuccess(ep.Name)
		}
		attempts = append(attempts, AttemptResult{
			Endpoint:  ep.Name,
			Outcome:   OutcomeSuccess,
			Synthetic: res.Demo,
			LatencyMs: res.LatencyMs,
		})
		metrics.FetchAttemptsTotal.WithLabelValues(string(cap), string(OutcomeSuccess)).Inc()

		provenance := intel.ProvenanceLive
		if res.Demo {
			// Upstream proxy already degraded to demo data; the payload is
			// live-shaped but must be surfaced as synthetic.
			provenance = intel.ProvenanceSynthetic
		}
		span.SetAttributes(traces.EndpointName(ep.Name), traces.Outcome(string(OutcomeSuccess)))

		return &Result{
			Capability: cap,
			Data:       res.Data,
			Provenance: provenance,
			Attempts:   attempts,
		}
	}

	// Every candidate failed (or none existed): exactly one synthesized result.
	metrics.SyntheticFallbacksTotal.WithLabelValues(string(cap)).Inc()
	span.SetAttributes(traces.Outcome("synthetic_fallback"))
	log.Info("all candidates exhausted, synthesizing payload",
		"capability", cap,
		"address", address,
		"attempts", len(attempts),
	)

	return &Result{
		Capability: cap,
		Data:       c.synth.Synthesize(cap, address),
		Provenance: intel.ProvenanceSynthetic,
		Attempts:   attempts,
	}
}

// structurallyValid checks that a 2xx payload actually carries the fields
// the capability's schema requires. Anything less is treated as a failed
// candidate so ad-hoc optional-field probing never leaks downstream.
func structurallyValid(cap intel.Capability, data map[string]any) bool {
	if len(data) == 0 {
		return false
	}
	switch cap {
	case intel.CapabilityWalletRisk:
		return hasNumber(data, "risk_score")
	case intel.CapabilityClassification:
		_, ok := data["predicted_class"].(string)
		return ok
	case intel.CapabilityMultichain:
		_, ok := data["chains"].([]any)
		return ok
	case intel.CapabilitySocial:
		return hasNumber(data, "total_mentions")
	case intel.CapabilitySubgraph:
		// Zero nodes is a defined empty state, but the key must exist.
		_, ok := data["nodes"]
		return ok
	default:
		return false
	}
}

func hasNumber(data map[string]any, key string) bool {
	_, ok := data[key].(float64)
	return ok
}
