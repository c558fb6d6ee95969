package scope

import (
	"github.com/fastbus/fastbus/cmn"
	"github.com/fastbus/fastbus/codec"
	"github.com/fastbus/fastbus/mesh"
	"github.com/fastbus/fastbus/reply"
	"github.com/fastbus/fastbus/transport"
)

// Dispatcher is the façade (C11): four preconfigured scopes, each its own
// socket manager/admission predicate/transport, sharing one reply router
// and one pending-reply pool process-wide.
type Dispatcher struct {
	Local   *Scope
	Machine *Scope
	Cluster *Scope
	Network *Scope

	managers []*transport.Manager
}

// NewDispatcher wires the four scopes per §4.4's transport-selection table:
// Local -> in-process, Machine -> IPC, Cluster/Network -> TCP.
func NewDispatcher(
	cfg *cmn.Config,
	localWorkstation string,
	router *reply.Router,
	pool *reply.Pool,
	c codec.Codec,
	bus *mesh.EventBus,
) *Dispatcher {
	local := transport.NewManager("local", transport.LocalPredicate(), transport.KindInproc, router, bus)
	machine := transport.NewManager("machine", transport.MachinePredicate(localWorkstation), transport.KindIPC, router, bus)
	cluster := transport.NewManager("cluster", transport.ClusterPredicate(cfg.Cluster), transport.KindTCP, router, bus)
	network := transport.NewManager("network", transport.NetworkPredicate(), transport.KindTCP, router, bus)

	return &Dispatcher{
		Local:    New(local, pool, router, c),
		Machine:  New(machine, pool, router, c),
		Cluster:  New(cluster, pool, router, c),
		Network:  New(network, pool, router, c),
		managers: []*transport.Manager{local, machine, cluster, network},
	}
}

// Run starts every scope's socket-manager worker; call once at startup.
func (d *Dispatcher) Run() {
	for _, m := range d.managers {
		go m.Run()
	}
}

// Stop tears down every socket manager, disposing all connections.
func (d *Dispatcher) Stop() {
	for _, m := range d.managers {
		m.Stop(nil)
	}
}

// NamedManagers exposes the four scopes' socket managers keyed by scope
// name, for callers (metrics registration) that need to label per-scope
// counters without reaching into Dispatcher's internals.
func (d *Dispatcher) NamedManagers() map[string]*transport.Manager {
	return map[string]*transport.Manager{
		"local":   d.managers[0],
		"machine": d.managers[1],
		"cluster": d.managers[2],
		"network": d.managers[3],
	}
}
