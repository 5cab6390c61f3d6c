// Package resolver maps logical capabilities to ordered lists of candidate
// physical endpoints. The cascade tries candidates strictly in the returned
// order: primary host first, then the secondary host, then any legacy path
// alias still served by older deployments.
package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/chainsight/core/internal/intel"
)

// Endpoint is one physical route expressing a capability.
type Endpoint struct {
	// Name identifies the route for logging and breaker keys,
	// e.g. "primary/wallet-risk".
	Name string
	// URL is the fully resolved request URL for one address.
	URL string
}

// Resolver builds candidate endpoint lists from the configured upstream hosts.
type Resolver struct {
	primary   string
	secondary string // empty when no fallback host is configured
}

// New creates a resolver. primary is required; secondary may be empty.
func New(primary, secondary string) *Resolver {
	return &Resolver{
		primary:   strings.TrimRight(primary, "/"),
		secondary: strings.TrimRight(secondary, "/"),
	}
}

// pathTemplates maps each capability to its route templates in
// most-specific to least-specific order. The second entry, when present,
// is a legacy alias kept for older upstream deployments.
var pathTemplates = map[intel.Capability][]string{
	intel.CapabilityWalletRisk:     {"/api/wallet/%s"},
	intel.CapabilityClassification: {"/api/gnn/%s", "/api/phase3/gnn/%s"},
	intel.CapabilityMultichain:     {"/api/multichain/%s"},
	intel.CapabilitySocial:         {"/api/social/%s"},
	intel.CapabilitySubgraph:       {"/api/graph/subgraph/%s"},
}

// Resolve returns the ordered candidate endpoints for one capability and
// address. Ordering: primary host (all templates), then secondary host
// (all templates). Unknown capabilities resolve to an empty list.
func (r *Resolver) Resolve(cap intel.Capability, address string) []Endpoint {
	templates, ok := pathTemplates[cap]
	if !ok {
		return nil
	}

	escaped := url.PathEscape(address)

	var out []Endpoint
	appendHost := func(label, host string) {
		if host == "" {
			return
		}
		for i, tmpl := range templates {
			name := label + "/" + string(cap)
			if i > 0 {
				name += "-legacy"
			}
			out = append(out, Endpoint{
				Name: name,
				URL:  host + fmt.Sprintf(tmpl, escaped),
			})
		}
	}

	appendHost("primary", r.primary)
	appendHost("secondary", r.secondary)
	return out
}

// ResolveSubgraph is Resolve for the subgraph capability with the traversal
// depth appended as a query parameter.
func (r *Resolver) ResolveSubgraph(address string, depth int) []Endpoint {
	candidates := r.Resolve(intel.CapabilitySubgraph, address)
	for i := range candidates {
		candidates[i].URL = fmt.Sprintf("%s?depth=%d", candidates[i].URL, depth)
	}
	return candidates
}

// Hosts returns the configured upstream base URLs, primary first.
// Used by health checks to probe reachability.
func (r *Resolver) Hosts() []string {
	hosts := []string{r.primary}
	if r.secondary != "" {
		hosts = append(hosts, r.secondary)
	}
	return hosts
}
