// Package intel defines the shared intelligence vocabulary: capabilities,
// risk buckets, classifier labels, and the aggregate report produced for
// one investigated address.
package intel

import "time"

// Capability names a kind of intelligence the dashboard needs, independent
// of which physical endpoint serves it.
type Capability string

const (
	CapabilityWalletRisk     Capability = "wallet-risk"
	CapabilityClassification Capability = "classification"
	CapabilityMultichain     Capability = "multichain"
	CapabilitySocial         Capability = "social"
	CapabilitySubgraph       Capability = "subgraph"
)

// Capabilities lists every capability in dispatch order.
var Capabilities = []Capability{
	CapabilityWalletRisk,
	CapabilityClassification,
	CapabilityMultichain,
	CapabilitySocial,
	CapabilitySubgraph,
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

// Provenance tags a result as coming from a live upstream or synthesized
// locally after every upstream failed.
type Provenance string

const (
	ProvenanceLive      Provenance = "live"
	ProvenanceSynthetic Provenance = "synthetic"
)

// Level is a categorical risk bucket derived from a 0-100 score.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
	LevelMinimal  Level = "MINIMAL"
)

// Bucket thresholds. These match the classifier service's documented
// boundaries; the synthesizer and the visual palette both key off them.
const (
	ThresholdCritical = 80.0
	ThresholdHigh     = 60.0
	ThresholdMedium   = 40.0
	ThresholdLow      = 20.0
)

// BucketFor maps a risk score to its categorical level.
func BucketFor(score float64) Level {
	switch {
	case score >= ThresholdCritical:
		return LevelCritical
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdMedium:
		return LevelMedium
	case score >= ThresholdLow:
		return LevelLow
	default:
		return LevelMinimal
	}
}

// Severity returns a rank for ordering levels (higher = more severe).
func (l Level) Severity() int {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// ClassLabels is the closed set of behavioral classifications the GNN
// service emits. Synthesized classifications draw from the same set.
var ClassLabels = []string{
	"Benign",
	"Exchange",
	"DeFi",
	"MEV_Bot",
	"Phishing_Scam",
	"General_Scam",
	"Sanctions_Related",
}

// KnownLabel reports whether label is in the classifier's label set.
func KnownLabel(label string) bool {
	for _, l := range ClassLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Report is the aggregate risk picture for one address. Immutable once
// produced; a re-query builds a new report rather than mutating the old one.
type Report struct {
	Address     string     `json:"address"`
	RiskScore   float64    `json:"riskScore"`
	RiskLevel   Level      `json:"riskLevel"`
	Label       string     `json:"label"`
	Confidence  float64    `json:"confidence"`
	RiskFactors []string   `json:"riskFactors,omitempty"`
	Sources     []string   `json:"sources"`
	Provenance  Provenance `json:"source"`
	GeneratedAt time.Time  `json:"generatedAt"`
}
