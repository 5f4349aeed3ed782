package network

import (
	"net/netip"

	"github.com/hakeris1010/ODMRP-Sim/packet"
)

// Fabric is the interior interface a Node uses to reach the rest of the
// network: resolving a neighbor address to a deliverable target and
// waking the Scheduler's worker about newly-active nodes. A Node never
// holds an owning reference to the Scheduler or to another Node — only
// addresses — so this is the only way a Node's protocol step can have
// any effect outside itself (see Design Note: interior address index,
// spec §9).
type Fabric interface {
	// Deliver hands pkt to the node at to, as if from the node at from.
	// It reports whether the node accepted it (false if to names no
	// node, or that node is down). The caller retains no reference to
	// pkt after calling Deliver; implementations must not deliver the
	// same *value* to two different nodes without cloning.
	Deliver(from, to netip.Addr, pkt packet.Packet) bool
	// Activate schedules the node at addr for a future Process call.
	// Activating an address that names no node is a silent no-op;
	// activating an already-active one queues it again.
	Activate(addr netip.Addr)
}
