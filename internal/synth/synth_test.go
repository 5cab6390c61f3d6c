package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/core/internal/intel"
)

const testAddr = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

func TestWalletRisk_LevelMatchesScore(t *testing.T) {
	g := NewWithSeed(1, 2)

	// Consistency law: for every generated sample the derived level must be
	// computed from the score, never chosen independently.
	for i := 0; i < 200; i++ {
		data := g.Synthesize(intel.CapabilityWalletRisk, testAddr)

		score, ok := data["risk_score"].(float64)
		require.True(t, ok, "risk_score must be a number")
		level, ok := data["risk_level"].(string)
		require.True(t, ok, "risk_level must be a string")

		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
		assert.Equal(t, string(intel.BucketFor(score)), level)
	}
}

func TestClassification_LabelInClosedSet(t *testing.T) {
	g := NewWithSeed(3, 4)

	for i := 0; i < 100; i++ {
		data := g.Synthesize(intel.CapabilityClassification, testAddr)

		label := data["predicted_class"].(string)
		assert.True(t, intel.KnownLabel(label), "label %q not in closed set", label)

		confidence := data["class_confidence"].(float64)
		assert.GreaterOrEqual(t, confidence, 0.0)
		assert.LessOrEqual(t, confidence, 1.0)

		score := data["risk_score"].(float64)
		assert.Equal(t, string(intel.BucketFor(score)), data["risk_level"].(string))
	}
}

func TestSynthesize_NotACache(t *testing.T) {
	g := New()

	// Two calls for the same address in the same session may differ; over
	// many calls the scores must not all be identical.
	scores := map[float64]bool{}
	for i := 0; i < 20; i++ {
		data := g.Synthesize(intel.CapabilityWalletRisk, testAddr)
		scores[data["risk_score"].(float64)] = true
	}
	assert.Greater(t, len(scores), 1, "synthesizer must not return constant values")
}

func TestMultichain_Shape(t *testing.T) {
	g := NewWithSeed(5, 6)
	data := g.Synthesize(intel.CapabilityMultichain, testAddr)

	chains, ok := data["chains"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, chains)

	for _, c := range chains {
		entry := c.(map[string]any)
		assert.NotEmpty(t, entry["chain"])
		_, ok := entry["supported"].(bool)
		assert.True(t, ok)
		_, ok = entry["rpc_available"].(bool)
		assert.True(t, ok)
	}
}

func TestSocial_SentimentSumsToTotal(t *testing.T) {
	g := NewWithSeed(7, 8)

	for i := 0; i < 50; i++ {
		data := g.Synthesize(intel.CapabilitySocial, testAddr)

		total := data["total_mentions"].(float64)
		sentiment := data["sentiment"].(map[string]any)
		sum := sentiment["positive"].(float64) + sentiment["negative"].(float64) + sentiment["neutral"].(float64)
		assert.Equal(t, total, sum)
	}
}

func TestSubgraph_EdgesReferenceExistingNodes(t *testing.T) {
	g := NewWithSeed(9, 10)

	for i := 0; i < 25; i++ {
		data := g.Synthesize(intel.CapabilitySubgraph, testAddr)

		nodes := data["nodes"].([]any)
		edges := data["edges"].([]any)
		require.NotEmpty(t, nodes)

		ids := map[string]bool{}
		for _, n := range nodes {
			ids[n.(map[string]any)["id"].(string)] = true
		}
		assert.True(t, ids[testAddr], "center address must be present")

		for _, e := range edges {
			edge := e.(map[string]any)
			assert.True(t, ids[edge["from"].(string)], "edge from unknown node")
			assert.True(t, ids[edge["to"].(string)], "edge to unknown node")
		}
	}
}

func TestSynthesize_UnknownCapability(t *testing.T) {
	g := NewWithSeed(11, 12)
	data := g.Synthesize(intel.Capability("bogus"), testAddr)
	assert.Equal(t, testAddr, data["address"])
}
