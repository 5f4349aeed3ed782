// Package network implements the two pieces that own everything else:
// Node, the per-participant protocol state machine, and Scheduler, the
// single cooperative worker that drives every node in FIFO activation
// order. Nothing in this package blocks except the Scheduler's own
// timed wait between drains.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/hakeris1010/ODMRP-Sim/address"
	"github.com/hakeris1010/ODMRP-Sim/packet"
	"github.com/hakeris1010/ODMRP-Sim/queue"
	"github.com/hakeris1010/ODMRP-Sim/routing"
)

// NodeSpec describes a node to be created by AddNode.
type NodeSpec struct {
	IP              netip.Addr
	MulticastSource netip.Addr
	MulticastGroups []netip.Addr
	// Neighbors names existing nodes this one should be connected to
	// immediately upon creation.
	Neighbors []netip.Addr
	// LegacySingleNextHop reproduces Design Note #1's routing-table bug
	// for this node only; tests use it to exercise both policies.
	LegacySingleNextHop bool
}

// Stats is an aggregate snapshot across every node currently owned by
// the Scheduler, for operational visibility (not part of the protocol).
type Stats struct {
	Nodes                                        int
	Sent, Received, Forwarded                    int64
	JoinQueriesOriginated, JoinRepliesOriginated  int64
	Delivered                                    int64
}

// Scheduler owns every Node and drives them, one process() call at a
// time, from a single worker loop. Its admin methods (AddNode,
// RemoveNode, Connect, Disconnect, SendPacket) are safe to call
// concurrently with Run and with each other.
type Scheduler struct {
	cfg Config
	now func() time.Time

	mu    sync.RWMutex
	nodes map[netip.Addr]*Node
	order []netip.Addr

	activation *queue.Queue[netip.Addr]
	wake       chan struct{}

	log *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewScheduler returns a Scheduler with no nodes. A nil now defaults to
// time.Now; tests pass a fake clock to make route-refresh and
// forwarding-timeout behavior deterministic.
func NewScheduler(cfg Config, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cfg:        cfg,
		now:        now,
		nodes:      make(map[netip.Addr]*Node),
		activation: queue.New[netip.Addr](0), // unbounded: internal scheduling queue
		wake:       make(chan struct{}, 1),
		log:        slog.Default(),
		stop:       make(chan struct{}),
	}
}

// SetLogger replaces the event-trace sink used by the Scheduler and
// every node it creates from this point on. A nil logger is ignored.
func (s *Scheduler) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// AddNode creates a node per spec, connects it to any listed neighbors,
// and admits it to the network. It fails with ErrNodeConnect if spec.IP
// is invalid or already in use, or with ErrNotFound if a listed
// neighbor doesn't exist.
func (s *Scheduler) AddNode(spec NodeSpec) (*Node, error) {
	if !spec.IP.IsValid() {
		return nil, fmt.Errorf("%w: missing ip", ErrNodeConnect)
	}

	s.mu.Lock()
	if _, exists := s.nodes[spec.IP]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: node %s already exists", ErrNodeConnect, spec.IP)
	}

	var routeOpts []routing.Option
	if spec.LegacySingleNextHop {
		routeOpts = append(routeOpts, routing.WithLegacySingleNextHop())
	}

	node := NewNode(spec.IP, s.cfg, s.now(), routeOpts...)
	node.SetLogger(s.log)
	if spec.MulticastSource.IsValid() {
		node.SetMulticastSource(spec.MulticastSource)
	}
	for _, g := range spec.MulticastGroups {
		node.JoinMulticastGroup(g)
	}

	s.nodes[spec.IP] = node
	s.order = append(s.order, spec.IP)
	s.mu.Unlock()

	node.SetReady(true)

	for _, peer := range spec.Neighbors {
		if err := s.Connect(spec.IP, peer); err != nil {
			return node, err
		}
	}

	s.Activate(spec.IP)
	return node, nil
}

// RemoveNode disconnects ip from every neighbor and removes it from the
// network. It fails with ErrNotFound if ip names no node.
func (s *Scheduler) RemoveNode(ip netip.Addr) error {
	s.mu.Lock()
	node, ok := s.nodes[ip]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, ip)
	}
	delete(s.nodes, ip)
	s.order = removeAddr(s.order, ip)
	s.mu.Unlock()

	for _, peer := range node.Neighbors() {
		if peerNode, ok := s.lookupNode(peer); ok {
			peerNode.removeNeighbor(ip)
		}
	}
	return nil
}

// Connect makes a and b symmetric neighbors. It fails with
// ErrNodeConnect if a == b, or ErrNotFound if either doesn't exist.
func (s *Scheduler) Connect(a, b netip.Addr) error {
	if a == b {
		return fmt.Errorf("%w: cannot connect %s to itself", ErrNodeConnect, a)
	}

	na, ok := s.lookupNode(a)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, a)
	}
	nb, ok := s.lookupNode(b)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, b)
	}

	na.addNeighbor(b)
	nb.addNeighbor(a)
	s.logger().Info("nodes connected", "op", "connect", "a", a, "b", b)
	return nil
}

// Disconnect removes the symmetric neighbor link between a and b. It
// fails with ErrNotFound if either doesn't exist; disconnecting nodes
// that aren't currently neighbors is a no-op.
func (s *Scheduler) Disconnect(a, b netip.Addr) error {
	na, ok := s.lookupNode(a)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, a)
	}
	nb, ok := s.lookupNode(b)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, b)
	}

	na.removeNeighbor(b)
	nb.removeNeighbor(a)
	s.logger().Info("nodes disconnected", "op", "disconnect", "a", a, "b", b)
	return nil
}

// SendPacket originates an IP packet from src to dst, with cast mode
// inferred from dst's address class. It fails with ErrNotFound if src
// names no node, or ErrInputMismatch if dst doesn't classify as a
// deliverable address.
func (s *Scheduler) SendPacket(src, dst netip.Addr, payload []byte, verbose bool) error {
	node, ok := s.lookupNode(src)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, src)
	}

	mode := address.ClassifyAddr(dst)
	if mode == address.NoAddr {
		return fmt.Errorf("%w: %s is not a usable destination", ErrInputMismatch, dst)
	}

	node.EnqueueSend(&packet.IPData{
		Source:      src,
		Destination: dst,
		TTL:         packet.DefaultTTL,
		CastMode:    castModeOf(mode),
		Payload:     payload,
		Verbose:     verbose,
	})
	s.Activate(src)
	return nil
}

func castModeOf(t address.Type) packet.CastMode {
	switch t {
	case address.Unicast:
		return packet.Unicast
	case address.Multicast:
		return packet.Multicast
	case address.Broadcast:
		return packet.Broadcast
	default:
		return packet.NoAddr
	}
}

// Node returns the node at addr, if any.
func (s *Scheduler) Node(addr netip.Addr) (*Node, bool) {
	return s.lookupNode(addr)
}

// Nodes returns a snapshot of every node, in the order they were added.
func (s *Scheduler) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*Node, 0, len(s.order))
	for _, addr := range s.order {
		if n, ok := s.nodes[addr]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Stats aggregates every node's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Nodes: len(s.nodes)}
	for _, n := range s.nodes {
		m := n.MetricsSnapshot()
		stats.Sent += m.Sent
		stats.Received += m.Received
		stats.Forwarded += m.Forwarded
		stats.JoinQueriesOriginated += m.JoinQueriesOriginated
		stats.JoinRepliesOriginated += m.JoinRepliesOriginated
		stats.Delivered += m.Delivered
	}
	return stats
}

func (s *Scheduler) logger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log
}

func (s *Scheduler) lookupNode(addr netip.Addr) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[addr]
	return n, ok
}

func removeAddr(addrs []netip.Addr, addr netip.Addr) []netip.Addr {
	for i, a := range addrs {
		if a == addr {
			return append(addrs[:i], addrs[i+1:]...)
		}
	}
	return addrs
}

// Deliver implements Fabric: it hands pkt to the node at to and, if
// accepted, activates it. It satisfies Node's Process calls, not the
// admin surface.
func (s *Scheduler) Deliver(from, to netip.Addr, pkt packet.Packet) bool {
	node, ok := s.lookupNode(to)
	if !ok {
		return false
	}
	if !node.Accept(from, pkt) {
		return false
	}
	s.Activate(to)
	return true
}

// Activate enqueues addr on the activation queue and wakes the worker
// if it's sleeping. Activating an address with no node is harmless:
// the worker's drain step silently skips it.
func (s *Scheduler) Activate(addr netip.Addr) {
	s.activation.Put(addr)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Shutdown cooperatively stops Run at its next drain boundary. It is
// safe to call more than once or concurrently with Run.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run drives the Scheduler's worker loop until ctx is done or Shutdown
// is called: scan every node for due work, drain the activation queue
// in FIFO order, then sleep until the earliest due node, a new
// activation, or cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		default:
		}

		now := s.now()
		nextWake := now.Add(s.cfg.ScanInterval)
		s.scan(now, &nextWake)
		if err := s.drain(); err != nil {
			s.logger().Error("stopping worker loop on fatal error", "err", err)
			return err
		}

		if s.activation.Len() > 0 {
			continue
		}

		wait := nextWake.Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.stop:
			timer.Stop()
			return nil
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// scan self-enqueues every node whose route-refresh timer has elapsed
// or which has queued work, and narrows nextWake to the earliest
// not-yet-due refresh deadline.
func (s *Scheduler) scan(now time.Time, nextWake *time.Time) {
	s.mu.RLock()
	addrs := append([]netip.Addr(nil), s.order...)
	s.mu.RUnlock()

	for _, addr := range addrs {
		node, ok := s.lookupNode(addr)
		if !ok {
			continue
		}

		due := node.DueAt()
		if !due.After(now) || node.HasPendingWork() {
			s.Activate(addr)
		}
		if due.After(now) && due.Before(*nextWake) {
			*nextWake = due
		}
	}
}

// drain empties the activation queue in FIFO order, calling Process on
// each entry. Process may re-activate its own node (more work pending)
// or another node (a delivery); such re-entries are served in this same
// drain if they land before the queue empties.
//
// It returns ErrFatal if the node found under an activated address
// doesn't recognize that address as its own — an invariant that should
// be unreachable in correct code, since every path that inserts into
// s.nodes keys a node under its own IP, but one worth checking rather
// than silently processing a node under the wrong identity.
func (s *Scheduler) drain() error {
	for {
		addr, ok := s.activation.TryGet()
		if !ok {
			return nil
		}

		node, ok := s.lookupNode(addr)
		if !ok {
			continue
		}
		if node.IP() != addr {
			return fmt.Errorf("%w: node activated under %s reports its own address as %s", ErrFatal, addr, node.IP())
		}

		node.Process(s.now(), s)
	}
}
