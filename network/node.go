package network

import (
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hakeris1010/ODMRP-Sim/odmrp"
	"github.com/hakeris1010/ODMRP-Sim/packet"
	"github.com/hakeris1010/ODMRP-Sim/queue"
	"github.com/hakeris1010/ODMRP-Sim/routing"
)

// Metrics are the monotonic per-node counters read through
// MetricsSnapshot and Scheduler.Stats. Forwarded counts IP data packets
// passed on toward another node; forwarded Join Queries and Join Replies
// are not counted. They are purely observational: nothing in the
// protocol step reads them back.
type Metrics struct {
	Sent                   atomic.Int64
	Received               atomic.Int64
	Forwarded              atomic.Int64
	JoinQueriesOriginated  atomic.Int64
	JoinRepliesOriginated  atomic.Int64
	Delivered              atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to print or
// compare without racing the counters it was taken from.
type MetricsSnapshot struct {
	Sent, Received, Forwarded                      int64
	JoinQueriesOriginated, JoinRepliesOriginated    int64
	Delivered                                      int64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Sent:                  m.Sent.Load(),
		Received:              m.Received.Load(),
		Forwarded:             m.Forwarded.Load(),
		JoinQueriesOriginated: m.JoinQueriesOriginated.Load(),
		JoinRepliesOriginated: m.JoinRepliesOriginated.Load(),
		Delivered:             m.Delivered.Load(),
	}
}

// inbound pairs a received packet with the neighbor it arrived from.
// JoinQuery and JoinReply already self-describe their previous hop for
// split-horizon purposes, but IPData carries no such field, so the
// queue must remember it out of band.
type inbound struct {
	pkt  packet.Packet
	from netip.Addr
}

// Node is one simulated participant: an address, a neighbor set, a
// multicast membership set, bounded packet queues, and the ODMRP
// protocol state machine. Node holds no owning references to other
// Nodes or to the Scheduler — only addresses — and reaches the rest of
// the network exclusively through the Fabric passed into Process.
type Node struct {
	ip              netip.Addr
	multicastSource netip.Addr

	mu                 sync.Mutex
	neighbors          []netip.Addr
	multicastGroups    map[netip.Addr]struct{}
	multicastReceivers map[netip.Addr]struct{}

	state *odmrp.State

	pendingSend    *queue.Queue[*packet.IPData]
	pendingReceive *queue.Queue[inbound]

	// routeRequestCache, joinQueryNext and sendReceiveModeToggle are
	// touched only from inside Process, which the Scheduler guarantees
	// is never called concurrently for the same node — no lock needed.
	routeRequestCache     map[netip.Addr]struct{}
	joinQueryNext         *packet.JoinQuery
	sendReceiveModeToggle bool

	down  atomic.Bool
	ready atomic.Bool

	Metrics Metrics

	log *slog.Logger
}

// NewNode returns a Node identified by ip, not yet ready, with an empty
// neighbor set and a membership set holding only ip itself. Callers must call SetReady once the node
// is fully configured (see Scheduler.AddNode).
func NewNode(ip netip.Addr, cfg Config, now time.Time, routeOpts ...routing.Option) *Node {
	n := &Node{
		ip:                 ip,
		multicastGroups:    map[netip.Addr]struct{}{ip: {}},
		multicastReceivers: make(map[netip.Addr]struct{}),
		state:              odmrp.New(cfg.Protocol, now, routeOpts...),
		pendingSend:        queue.New[*packet.IPData](cfg.QueueCapacity),
		pendingReceive:     queue.New[inbound](cfg.QueueCapacity),
		routeRequestCache:  make(map[netip.Addr]struct{}),
		log:                slog.Default(),
	}
	return n
}

// SetLogger replaces this node's event-trace sink. A nil logger is
// ignored, leaving the previous one (default: slog.Default()) in place.
func (n *Node) SetLogger(l *slog.Logger) {
	if l != nil {
		n.log = l
	}
}

// IP reports this node's address.
func (n *Node) IP() netip.Addr { return n.ip }

// Down reports whether the node is currently marked down.
func (n *Node) Down() bool { return n.down.Load() }

// SetDown marks the node down (rejecting incoming packets) or back up.
func (n *Node) SetDown(down bool) { n.down.Store(down) }

// Ready reports whether the node has been fully configured and
// admitted to the network.
func (n *Node) Ready() bool { return n.ready.Load() }

// SetReady marks the node ready to participate.
func (n *Node) SetReady(ready bool) { n.ready.Store(ready) }

// SetMulticastSource sets the multicast group this node originates
// traffic for. An invalid addr clears it.
func (n *Node) SetMulticastSource(addr netip.Addr) { n.multicastSource = addr }

// MulticastSource reports this node's multicast source group, if any.
func (n *Node) MulticastSource() netip.Addr { return n.multicastSource }

// JoinMulticastGroup adds addr to this node's multicast memberships.
func (n *Node) JoinMulticastGroup(addr netip.Addr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.multicastGroups[addr] = struct{}{}
}

// MulticastGroups returns a snapshot of this node's multicast
// memberships, including its own address.
func (n *Node) MulticastGroups() []netip.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	groups := make([]netip.Addr, 0, len(n.multicastGroups))
	for g := range n.multicastGroups {
		groups = append(groups, g)
	}
	return groups
}

// MulticastReceivers returns a snapshot of the sources this node has
// observed subscribing to, via Join Reply sender-list pruning.
func (n *Node) MulticastReceivers() []netip.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	receivers := make([]netip.Addr, 0, len(n.multicastReceivers))
	for r := range n.multicastReceivers {
		receivers = append(receivers, r)
	}
	return receivers
}

func (n *Node) addMulticastReceiver(addr netip.Addr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.multicastReceivers[addr] = struct{}{}
}

func (n *Node) isMulticastMember(addr netip.Addr) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.multicastGroups[addr]
	return ok
}

// Neighbors returns a snapshot of this node's current neighbor
// addresses, in connect order.
func (n *Node) Neighbors() []netip.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]netip.Addr(nil), n.neighbors...)
}

func (n *Node) hasNeighbor(addr netip.Addr) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, nb := range n.neighbors {
		if nb == addr {
			return true
		}
	}
	return false
}

func (n *Node) addNeighbor(addr netip.Addr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, nb := range n.neighbors {
		if nb == addr {
			return
		}
	}
	n.neighbors = append(n.neighbors, addr)
}

func (n *Node) removeNeighbor(addr netip.Addr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, nb := range n.neighbors {
		if nb == addr {
			n.neighbors = append(n.neighbors[:i], n.neighbors[i+1:]...)
			return
		}
	}
}

func (n *Node) neighborsSnapshot() []netip.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]netip.Addr(nil), n.neighbors...)
}

// Routes returns a snapshot of this node's routing table entries.
func (n *Node) Routes() []routing.Entry { return n.state.Routes.Entries() }

// ForwardingGroups returns a snapshot of the multicast groups this node
// currently believes it is forwarding for, without applying expiry.
func (n *Node) ForwardingGroups() []netip.Addr { return n.state.Forwarding.Groups() }

// MetricsSnapshot returns a point-in-time copy of this node's counters.
func (n *Node) MetricsSnapshot() MetricsSnapshot { return n.Metrics.snapshot() }

// DueAt reports when this node's route-refresh timer next elapses.
func (n *Node) DueAt() time.Time { return n.state.DueAt() }

// HasPendingWork reports whether this node has a packet queued to send
// or receive, or a prepared Join Query. A queued unicast send still
// waiting on its repair query counts, though Process performs no
// operation for it.
func (n *Node) HasPendingWork() bool {
	return n.pendingSend.Len() > 0 || n.pendingReceive.Len() > 0 || n.joinQueryNext != nil
}

// EnqueueSend places pkt on this node's outgoing queue, dropping the
// oldest queued packet if the queue is already full.
func (n *Node) EnqueueSend(pkt *packet.IPData) {
	n.pendingSend.Put(pkt)
}

// Accept delivers pkt to this node as having arrived from the neighbor
// at from, queuing it for processing. It returns false without
// queuing anything if the node is down.
func (n *Node) Accept(from netip.Addr, pkt packet.Packet) bool {
	if n.down.Load() {
		return false
	}
	n.pendingReceive.Put(inbound{pkt: pkt, from: from})
	n.log.Debug("packet accepted", "op", "accept", "ip", n.ip, "from", from)
	return true
}

// Process performs at most one of {Join Query origination, one send,
// one receive}, in that priority order, and reports whether it
// performed an operation. The Scheduler never calls Process for the
// same node from two goroutines at once.
func (n *Node) Process(now time.Time, fab Fabric) bool {
	if n.down.Load() {
		return false
	}

	performed := false
	switch {
	case n.joinQueryDue(now):
		n.doJoinQueryStep(now, fab)
		performed = true
	case n.canSend() && n.doSendStep(fab):
		performed = true
	case n.pendingReceive.Len() > 0:
		if in, ok := n.pendingReceive.TryGet(); ok {
			n.Metrics.Received.Add(1)
			n.dispatchReceived(now, fab, in)
			performed = true
		}
	}

	if performed {
		n.sendReceiveModeToggle = !n.sendReceiveModeToggle
		if n.HasPendingWork() {
			fab.Activate(n.ip)
		}
	}

	return performed
}

func (n *Node) dispatchReceived(now time.Time, fab Fabric, in inbound) {
	switch p := in.pkt.(type) {
	case *packet.JoinQuery:
		n.handleJoinQuery(now, fab, p)
	case *packet.JoinReply:
		n.handleJoinReply(now, fab, p)
	case *packet.IPData:
		n.handleIPData(now, fab, p, in.from)
	}
}

// joinQueryDue implements P1's trigger: either a query is already
// prepared from a previous tick (periodic refresh for a node with no
// multicast source never prepares one, so this is the only way such a
// node ever originates a query), or this node is a multicast source
// whose route-refresh timer has elapsed.
func (n *Node) joinQueryDue(now time.Time) bool {
	return n.joinQueryNext != nil || (n.multicastSource.IsValid() && n.state.IsRouteRefreshNeeded(now))
}

func (n *Node) doJoinQueryStep(now time.Time, fab Fabric) {
	q := n.joinQueryNext
	if q == nil {
		q = packet.NewJoinQuery(n.ip, n.ip, n.multicastSource, n.state.NextSequence())
	}

	n.state.Cache.Add(odmrp.MessageCacheEntry{Source: q.Source, SequenceNumber: q.SequenceNumber})
	n.broadcast(fab, q, netip.Addr{})
	n.Metrics.JoinQueriesOriginated.Add(1)
	n.log.Info("join query originated", "op", "originate_jq", "ip", n.ip, "dst", q.MulticastGroup, "seq", q.SequenceNumber, "ttl", q.TTL)

	n.state.ResetRouteRefresh(now)
	n.joinQueryNext = nil
}

// canSend implements P2's gate: there must be something to send, and
// either there's nothing waiting to be received or the alternation
// toggle currently favors sending.
func (n *Node) canSend() bool {
	return n.pendingSend.Len() > 0 && (n.pendingReceive.Len() == 0 || n.sendReceiveModeToggle)
}

// doSendStep reports whether it performed an operation; a packet still
// waiting on an outstanding repair query is put back without one.
func (n *Node) doSendStep(fab Fabric) bool {
	pkt, ok := n.pendingSend.TryGet()
	if !ok {
		return false
	}

	switch pkt.CastMode {
	case packet.Broadcast, packet.Multicast:
		n.broadcast(fab, pkt, netip.Addr{})
		n.Metrics.Sent.Add(1)

	case packet.Unicast:
		if _, requesting := n.routeRequestCache[pkt.Destination]; requesting {
			if _, routed := n.state.Routes.GetRouteForDestination(pkt.Destination); !routed {
				// A query is already outstanding for this destination;
				// skip the send half of this tick and wait.
				n.pendingSend.Put(pkt)
				return false
			}
			delete(n.routeRequestCache, pkt.Destination)
		}

		if n.routePacket(fab, pkt) {
			n.Metrics.Sent.Add(1)
			n.log.Debug("packet sent", "op", "send", "ip", n.ip, "dst", pkt.Destination, "ttl", pkt.TTL)
			return true
		}

		// Re-queue normatively (Design Note #3) and schedule a repair
		// query for the next tick.
		n.routeRequestCache[pkt.Destination] = struct{}{}
		n.joinQueryNext = packet.NewJoinQuery(n.ip, n.ip, pkt.Destination, n.state.NextSequence())
		n.pendingSend.Put(pkt)
		n.log.Info("unicast delivery failed, scheduling repair query", "op", "repair_jq", "ip", n.ip, "dst", pkt.Destination)

	default:
		// No sensible destination type; drop.
	}
	return true
}

func (n *Node) handleJoinQuery(now time.Time, fab Fabric, q *packet.JoinQuery) {
	entry := odmrp.MessageCacheEntry{Source: q.Source, SequenceNumber: q.SequenceNumber}
	if n.state.Cache.Contains(entry) {
		return
	}
	n.state.Cache.Add(entry)
	n.state.Routes.Add(routing.Entry{Destination: q.Source, NextHop: q.PreviousHop, Cost: 0})
	n.log.Debug("join query route learned", "op", "route_add", "ip", n.ip, "dst", q.Source, "via", q.PreviousHop)

	if n.isMulticastMember(q.MulticastGroup) {
		reply := n.prepareJoinReply(q.MulticastGroup, []netip.Addr{q.Source})
		n.broadcast(fab, reply, netip.Addr{})
		n.Metrics.JoinRepliesOriginated.Add(1)
		n.log.Info("join reply originated", "op", "originate_jr", "ip", n.ip, "src", q.Source, "group", q.MulticastGroup, "seq", reply.SequenceNumber)
	}

	oldPreviousHop := q.PreviousHop
	q.HopCount++
	if q.TTL > 1 {
		q.TTL--
		q.PreviousHop = n.ip
		n.broadcast(fab, q, oldPreviousHop)
		n.log.Debug("join query forwarded", "op", "forward_jq", "ip", n.ip, "src", q.Source, "seq", q.SequenceNumber, "ttl", q.TTL)
	}
}

func (n *Node) handleJoinReply(now time.Time, fab Fabric, r *packet.JoinReply) {
	n.state.Routes.Add(routing.Entry{Destination: r.Source, NextHop: r.PreviousHop, Cost: 0})
	n.log.Debug("join reply route learned", "op", "route_add", "ip", n.ip, "dst", r.Source, "via", r.PreviousHop)

	kept := make([]packet.Sender, 0, len(r.Senders))
	for _, s := range r.Senders {
		if s.NextHopAddr != n.ip || s.SenderAddr == n.ip {
			if s.SenderAddr == n.ip {
				n.addMulticastReceiver(r.Source)
			}
			continue
		}

		route, ok := n.state.Routes.GetRouteForDestination(s.SenderAddr)
		if !ok {
			continue
		}
		s.NextHopAddr = route.NextHop
		kept = append(kept, s)
	}
	r.Senders = kept

	if len(r.Senders) == 0 {
		return
	}

	n.state.Forwarding.Add(r.MulticastGroup, now)
	oldPreviousHop := r.PreviousHop
	r.PreviousHop = n.ip
	n.broadcast(fab, r, oldPreviousHop)
	n.log.Debug("join reply forwarded", "op", "forward_jr", "ip", n.ip, "src", r.Source, "group", r.MulticastGroup, "seq", r.SequenceNumber)
}

func (n *Node) handleIPData(now time.Time, fab Fabric, d *packet.IPData, from netip.Addr) {
	d.HopsTraveled++

	if d.Destination == n.ip || n.isMulticastMember(d.Destination) {
		n.Metrics.Delivered.Add(1)
		n.log.Debug("packet delivered", "op", "deliver", "ip", n.ip, "src", d.Source, "dst", d.Destination, "hops", int64(d.HopsTraveled))
		return
	}

	if d.TTL <= 1 {
		n.log.Debug("packet dropped, ttl expired", "op", "drop_ttl", "ip", n.ip, "src", d.Source, "dst", d.Destination)
		return
	}
	d.TTL--

	switch d.CastMode {
	case packet.Unicast:
		if n.routePacket(fab, d) {
			n.Metrics.Forwarded.Add(1)
			n.log.Debug("packet routed", "op", "route", "ip", n.ip, "dst", d.Destination, "ttl", d.TTL)
		} else {
			n.log.Debug("packet dropped, no route", "op", "drop_noroute", "ip", n.ip, "src", d.Source, "dst", d.Destination)
		}

	case packet.Broadcast:
		if n.broadcast(fab, d, from) {
			n.Metrics.Forwarded.Add(1)
		}

	case packet.Multicast:
		if _, live := n.state.Forwarding.GetEntry(d.Destination, now, true); live {
			if n.broadcast(fab, d, from) {
				n.Metrics.Forwarded.Add(1)
			}
		}
	}
}

func (n *Node) prepareJoinReply(group netip.Addr, sources []netip.Addr) *packet.JoinReply {
	r := &packet.JoinReply{
		Source:         n.ip,
		MulticastGroup: group,
		PreviousHop:    n.ip,
		SequenceNumber: n.state.NextSequence(),
		AckReq:         false,
		ForwardGroup:   false,
	}

	for _, addr := range sources {
		if route, ok := n.state.Routes.GetRouteForDestination(addr); ok {
			r.Senders = append(r.Senders, packet.Sender{
				SenderAddr:  addr,
				NextHopAddr: route.NextHop,
			})
		}
	}

	return r
}

// broadcast clones pkt once per neighbor (other than except, if valid)
// and hands each clone to the Fabric, reporting whether at least one
// neighbor accepted.
func (n *Node) broadcast(fab Fabric, pkt packet.Packet, except netip.Addr) bool {
	accepted := false
	for _, neighbor := range n.neighborsSnapshot() {
		if except.IsValid() && neighbor == except {
			continue
		}
		if fab.Deliver(n.ip, neighbor, pkt.Clone()) {
			accepted = true
		}
	}
	return accepted
}

// routePacket repeatedly consults the routing table for pkt's
// destination, pruning any next hop that is no longer a neighbor or
// that otherwise fails delivery, until either a hand-off succeeds or no
// route remains.
func (n *Node) routePacket(fab Fabric, pkt *packet.IPData) bool {
	for {
		entry, ok := n.state.Routes.GetRouteForDestination(pkt.Destination)
		if !ok {
			return false
		}
		if n.hasNeighbor(entry.NextHop) && fab.Deliver(n.ip, entry.NextHop, pkt.Clone()) {
			return true
		}
		n.state.Routes.RemoveEntry(entry)
		n.log.Debug("stale route pruned", "op", "route_prune", "ip", n.ip, "dst", entry.Destination, "via", entry.NextHop)
	}
}
