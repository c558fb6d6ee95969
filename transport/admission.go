package transport

import (
	"github.com/fastbus/fastbus/cmn"
	"github.com/fastbus/fastbus/mesh"
)

// Predicate decides whether a peer belongs in a scope (§4.4). It is set
// once, at socket-manager construction, and never mutated afterward.
type Predicate func(p *mesh.PeerContext) bool

// LocalPredicate admits only the local process itself.
func LocalPredicate() Predicate {
	return func(p *mesh.PeerContext) bool { return p.IsSelf }
}

// MachinePredicate admits every peer sharing the local workstation name.
func MachinePredicate(localWorkstation string) Predicate {
	return func(p *mesh.PeerContext) bool { return p.WorkstationName == localWorkstation }
}

// ClusterPredicate admits self, same cluster_name, a whitelisted
// application_name, or a whitelisted node address (§4.4's rule as written;
// see DESIGN.md's open-question decisions).
func ClusterPredicate(cfg cmn.ClusterConfig) Predicate {
	apps := make(map[string]struct{}, len(cfg.Applications))
	for _, a := range cfg.Applications {
		apps[a] = struct{}{}
	}
	nodes := make(map[string]struct{}, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		nodes[n] = struct{}{}
	}
	return func(p *mesh.PeerContext) bool {
		if p.IsSelf {
			return true
		}
		if cfg.ClusterName != "" && cfg.ClusterName == p.ClusterName {
			return true
		}
		if _, ok := apps[p.ApplicationName]; ok {
			return true
		}
		if _, ok := nodes[p.Address]; ok {
			return true
		}
		return false
	}
}

// NetworkPredicate admits every peer.
func NetworkPredicate() Predicate {
	return func(*mesh.PeerContext) bool { return true }
}
