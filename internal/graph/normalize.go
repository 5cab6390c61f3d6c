package graph

// Upstream subgraph payloads are not consistent about field names: nodes may
// be keyed by id, address, or hash; edges by from/to, source/target, or
// start_node/end_node. Normalize unifies the aliases into the canonical
// model so nothing past this boundary probes optional fields.

// nodeIDKeys, in priority order.
var nodeIDKeys = []string{"id", "address", "hash"}

// edgeEndpointKeys maps each accepted naming scheme to its (from, to) pair,
// in priority order.
var edgeEndpointKeys = [][2]string{
	{"from", "to"},
	{"source", "target"},
	{"start_node", "end_node"},
}

var edgeValueKeys = []string{"value", "amount", "weight"}

// edgeListKeys are the payload keys an edge array may hide under.
var edgeListKeys = []string{"edges", "relationships", "links"}

// Normalize converts a raw subgraph payload into the canonical graph.
// Rules: unify field aliases; deduplicate nodes by ID (last write wins,
// first-seen order kept); drop edges whose endpoints are missing from the
// node set; synthesize a minimal node for the center address when absent.
// A payload with zero nodes produces the explicit empty-graph state.
// Normalization is deterministic: the same payload always yields the same
// canonical output.
func Normalize(raw map[string]any, center string) *Graph {
	g := &Graph{Center: center, Nodes: []Node{}, Edges: []Edge{}}
	if raw == nil {
		return g
	}

	rawNodes, _ := raw["nodes"].([]any)
	if len(rawNodes) == 0 {
		// Explicit empty state; no center synthesis for a no-data result.
		return g
	}

	index := map[string]int{} // id -> position in g.Nodes
	for _, rn := range rawNodes {
		m, ok := rn.(map[string]any)
		if !ok {
			continue
		}
		node, ok := normalizeNode(m)
		if !ok {
			continue
		}
		if i, seen := index[node.ID]; seen {
			g.Nodes[i] = node // last write wins
			continue
		}
		index[node.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, node)
	}

	if len(g.Nodes) == 0 {
		return g
	}

	// The layout always needs a defined focal point.
	if _, ok := index[center]; !ok && center != "" {
		index[center] = len(g.Nodes)
		g.Nodes = append(g.Nodes, Node{ID: center, Group: "address"})
	}

	for _, re := range rawEdges(raw) {
		m, ok := re.(map[string]any)
		if !ok {
			continue
		}
		edge, ok := normalizeEdge(m)
		if !ok {
			continue
		}
		// Dangling edges are dropped, never rendered.
		if _, ok := index[edge.From]; !ok {
			continue
		}
		if _, ok := index[edge.To]; !ok {
			continue
		}
		g.Edges = append(g.Edges, edge)
	}

	return g
}

func rawEdges(raw map[string]any) []any {
	for _, key := range edgeListKeys {
		if list, ok := raw[key].([]any); ok {
			return list
		}
	}
	return nil
}

func normalizeNode(m map[string]any) (Node, bool) {
	var id string
	for _, key := range nodeIDKeys {
		if s, ok := m[key].(string); ok && s != "" {
			id = s
			break
		}
	}
	if id == "" {
		return Node{}, false
	}

	node := Node{
		ID:        id,
		RiskScore: clampScore(number(m, "risk_score", "riskScore", "risk")),
		TxCount:   int(number(m, "tx_count", "txCount", "transaction_count")),
		Balance:   number(m, "balance"),
		Group:     stringOr(m, "address", "group", "type"),
	}
	if node.Group != "address" && node.Group != "contract" {
		node.Group = "address"
	}
	return node, true
}

func normalizeEdge(m map[string]any) (Edge, bool) {
	var from, to string
	for _, keys := range edgeEndpointKeys {
		f, fok := m[keys[0]].(string)
		t, tok := m[keys[1]].(string)
		if fok && tok && f != "" && t != "" {
			from, to = f, t
			break
		}
	}
	if from == "" || to == "" {
		return Edge{}, false
	}

	return Edge{
		From:      from,
		To:        to,
		Value:     number(m, edgeValueKeys...),
		Timestamp: int64(number(m, "timestamp", "time")),
	}, true
}

func number(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if f, ok := m[key].(float64); ok {
			return f
		}
	}
	return 0
}

func stringOr(m map[string]any, fallback string, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
