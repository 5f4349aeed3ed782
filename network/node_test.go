package network

import (
	"net/netip"
	"testing"
	"time"

	"github.com/hakeris1010/ODMRP-Sim/packet"
	"github.com/hakeris1010/ODMRP-Sim/routing"
)

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

// fakeFabric is a minimal Fabric for exercising a single Node's Process
// in isolation: it records every delivery attempt and every activation
// instead of routing them to real neighbor nodes.
type fakeFabric struct {
	accept      bool
	delivered   []packet.Packet
	activated   []netip.Addr
}

func (f *fakeFabric) Deliver(from, to netip.Addr, pkt packet.Packet) bool {
	f.delivered = append(f.delivered, pkt)
	return f.accept
}

func (f *fakeFabric) Activate(a netip.Addr) {
	f.activated = append(f.activated, a)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Protocol.RouteRefresh = time.Hour // disable periodic JQ unless the test wants it
	return cfg
}

func TestNodeOriginatesPeriodicJoinQueryWhenDue(t *testing.T) {
	start := time.Now()
	cfg := testConfig()
	cfg.Protocol.RouteRefresh = 10 * time.Millisecond

	n := NewNode(addr("192.168.0.1"), cfg, start)
	n.SetMulticastSource(addr("224.0.0.1"))
	n.addNeighbor(addr("192.168.0.2"))

	fab := &fakeFabric{accept: true}
	later := start.Add(20 * time.Millisecond)

	performed := n.Process(later, fab)
	if !performed {
		t.Fatal("expected a due route refresh to perform an operation")
	}
	if len(fab.delivered) != 1 {
		t.Fatalf("expected exactly one Join Query delivered to the one neighbor, got %d", len(fab.delivered))
	}
	if _, ok := fab.delivered[0].(*packet.JoinQuery); !ok {
		t.Fatalf("expected a *packet.JoinQuery, got %T", fab.delivered[0])
	}
	if n.MetricsSnapshot().JoinQueriesOriginated != 1 {
		t.Fatal("expected JoinQueriesOriginated to be incremented")
	}
}

func TestNodeWithoutMulticastSourceDoesNotOriginateUnprompted(t *testing.T) {
	start := time.Now()
	cfg := testConfig()
	cfg.Protocol.RouteRefresh = 10 * time.Millisecond

	n := NewNode(addr("192.168.0.1"), cfg, start) // no multicast source set
	fab := &fakeFabric{accept: true}

	later := start.Add(20 * time.Millisecond)
	if n.Process(later, fab) {
		t.Fatal("a node with no multicast source and nothing queued should have nothing to do")
	}
}

func TestProcessPerformsExactlyOneOperation(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.1"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.2"))

	n.EnqueueSend(&packet.IPData{Source: n.ip, Destination: addr("192.168.0.2"), TTL: 16, CastMode: packet.Broadcast})
	n.EnqueueSend(&packet.IPData{Source: n.ip, Destination: addr("192.168.0.2"), TTL: 16, CastMode: packet.Broadcast})

	fab := &fakeFabric{accept: true}
	n.Process(start, fab)

	if n.pendingSend.Len() != 1 {
		t.Fatalf("expected exactly one send to be consumed per Process call, %d left", n.pendingSend.Len())
	}
}

func TestJoinQueryDuplicateSuppressionViaMessageCache(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.3"))

	q := packet.NewJoinQuery(addr("192.168.0.1"), addr("192.168.0.9"), addr("224.0.0.1"), 1)
	fab := &fakeFabric{accept: true}

	n.Accept(addr("192.168.0.9"), q.Clone())
	n.Process(start, fab)
	if len(fab.delivered) == 0 {
		t.Fatal("expected the first observation of a query to be forwarded")
	}

	fab.delivered = nil
	n.Accept(addr("192.168.0.9"), q.Clone())
	n.Process(start, fab)
	if len(fab.delivered) != 0 {
		t.Fatal("expected a duplicate (source, seq) to be dropped silently, not forwarded")
	}
}

func TestJoinQueryTTLMonotonicityAndForwardingStop(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.3"))

	q := packet.NewJoinQuery(addr("192.168.0.1"), addr("192.168.0.9"), addr("224.0.0.1"), 1)
	q.TTL = 1 // about to expire
	fab := &fakeFabric{accept: true}

	n.Accept(addr("192.168.0.9"), q)
	n.Process(start, fab)

	if len(fab.delivered) != 0 {
		t.Fatal("a query with ttl<=1 after the hop must not be forwarded")
	}
}

func TestJoinQueryTTLDecreasesOnForward(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.3"))

	q := packet.NewJoinQuery(addr("192.168.0.1"), addr("192.168.0.9"), addr("224.0.0.1"), 1)
	q.TTL = 10
	fab := &fakeFabric{accept: true}

	n.Accept(addr("192.168.0.9"), q)
	n.Process(start, fab)

	if len(fab.delivered) != 1 {
		t.Fatalf("expected the query to be forwarded to the one other neighbor, got %d deliveries", len(fab.delivered))
	}
	fwd := fab.delivered[0].(*packet.JoinQuery)
	if fwd.TTL != 9 {
		t.Fatalf("expected ttl to decrease by one hop, got %d", fwd.TTL)
	}
	if fwd.HopCount != 1 {
		t.Fatalf("expected hop count to increase by one, got %d", fwd.HopCount)
	}
}

func TestJoinQuerySplitHorizonExcludesArrivalHop(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	arrivedFrom := addr("192.168.0.9")
	n.addNeighbor(arrivedFrom)
	n.addNeighbor(addr("192.168.0.3"))

	q := packet.NewJoinQuery(addr("192.168.0.1"), arrivedFrom, addr("224.0.0.1"), 1)
	fab := &fakeFabric{accept: true}

	n.Accept(arrivedFrom, q)
	n.Process(start, fab)

	if len(fab.delivered) != 1 {
		t.Fatalf("expected rebroadcast to exclude the arrival hop, got %d deliveries", len(fab.delivered))
	}
}

func TestJoinQueryInstallsReversePathRoute(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)

	q := packet.NewJoinQuery(addr("192.168.0.1"), addr("192.168.0.9"), addr("224.0.0.1"), 1)
	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), q)
	n.Process(start, fab)

	route, ok := n.state.Routes.GetRouteForDestination(addr("192.168.0.1"))
	if !ok || route.NextHop != addr("192.168.0.9") {
		t.Fatalf("expected reverse-path route to 192.168.0.1 via 192.168.0.9, got %+v ok=%v", route, ok)
	}
}

func TestJoinQueryMemberRepliesAndForwards(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.JoinMulticastGroup(addr("224.0.0.1"))
	n.addNeighbor(addr("192.168.0.9"))
	n.addNeighbor(addr("192.168.0.3"))

	q := packet.NewJoinQuery(addr("192.168.0.1"), addr("192.168.0.9"), addr("224.0.0.1"), 1)
	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), q)
	n.Process(start, fab)

	var sawReply, sawQuery bool
	for _, p := range fab.delivered {
		if _, ok := p.(*packet.JoinReply); ok {
			sawReply = true
		}
		if _, ok := p.(*packet.JoinQuery); ok {
			sawQuery = true
		}
	}
	if !sawReply {
		t.Fatal("expected a multicast-group member to originate a Join Reply")
	}
	if !sawQuery {
		t.Fatal("expected a multicast-group member to also forward the Join Query")
	}
	if n.MetricsSnapshot().JoinRepliesOriginated != 1 {
		t.Fatal("expected JoinRepliesOriginated to be incremented")
	}
}

func TestJoinReplyPruningRemovesEntriesNotForUs(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.9"))

	r := &packet.JoinReply{
		Source:      addr("192.168.0.4"),
		PreviousHop: addr("192.168.0.9"),
		Senders: []packet.Sender{
			{SenderAddr: addr("192.168.0.1"), NextHopAddr: addr("10.0.0.9")}, // not for us
		},
	}

	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), r)
	n.Process(start, fab)

	if len(fab.delivered) != 0 {
		t.Fatal("a reply with no sender entries left for this node must not be rebroadcast")
	}
}

func TestJoinReplyRecordsMulticastReceiverAtOrigin(t *testing.T) {
	start := time.Now()
	origin := addr("192.168.0.1")
	n := NewNode(origin, testConfig(), start)

	r := &packet.JoinReply{
		Source:      addr("192.168.0.4"),
		PreviousHop: addr("192.168.0.9"),
		Senders: []packet.Sender{
			{SenderAddr: origin, NextHopAddr: origin}, // arrived home
		},
	}

	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), r)
	n.Process(start, fab)

	receivers := n.MulticastReceivers()
	if len(receivers) != 1 || receivers[0] != r.Source {
		t.Fatalf("expected %s recorded as a multicast receiver, got %v", r.Source, receivers)
	}
}

func TestJoinReplyWithLiveSenderRefreshesForwardingAndRebroadcasts(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.9"))
	n.addNeighbor(addr("192.168.0.3"))
	n.state.Routes.Add(routing.Entry{Destination: addr("192.168.0.1"), NextHop: addr("192.168.0.3")})

	r := &packet.JoinReply{
		Source:         addr("192.168.0.4"),
		MulticastGroup: addr("224.0.0.1"),
		PreviousHop:    addr("192.168.0.9"),
		Senders: []packet.Sender{
			{SenderAddr: addr("192.168.0.1"), NextHopAddr: addr("192.168.0.2")}, // for us
		},
	}

	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), r)
	n.Process(start, fab)

	if len(fab.delivered) != 1 {
		t.Fatalf("expected the rewritten reply to be rebroadcast to the one other neighbor, got %d", len(fab.delivered))
	}
	if !n.state.Forwarding.IsMember(addr("224.0.0.1"), start) {
		t.Fatal("expected forwarding-group membership to be refreshed")
	}
}

func TestIPDataDeliveredToDestinationNotForwarded(t *testing.T) {
	start := time.Now()
	dest := addr("192.168.0.2")
	n := NewNode(dest, testConfig(), start)
	n.addNeighbor(addr("192.168.0.3"))

	d := &packet.IPData{Source: addr("192.168.0.1"), Destination: dest, TTL: 16, CastMode: packet.Unicast}
	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), d)
	n.Process(start, fab)

	if len(fab.delivered) != 0 {
		t.Fatal("a packet addressed to this node must not be forwarded")
	}
	if n.MetricsSnapshot().Delivered != 1 {
		t.Fatal("expected Delivered to be incremented")
	}
}

func TestIPDataUnicastForwardedViaRoutingTable(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.3"))
	n.state.Routes.Add(routing.Entry{Destination: addr("192.168.0.5"), NextHop: addr("192.168.0.3")})

	d := &packet.IPData{Source: addr("192.168.0.1"), Destination: addr("192.168.0.5"), TTL: 16, CastMode: packet.Unicast}
	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), d)
	n.Process(start, fab)

	if len(fab.delivered) != 1 {
		t.Fatalf("expected exactly one delivery via the routing table, got %d", len(fab.delivered))
	}
}

func TestIPDataMulticastDroppedWithoutLiveForwardingEntry(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.3"))

	d := &packet.IPData{Source: addr("192.168.0.1"), Destination: addr("224.0.0.1"), TTL: 16, CastMode: packet.Multicast}
	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), d)
	n.Process(start, fab)

	if len(fab.delivered) != 0 {
		t.Fatal("multicast data with no live forwarding-group entry must be dropped")
	}
}

func TestIPDataMulticastForwardedWithLiveForwardingEntry(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.2"), testConfig(), start)
	n.addNeighbor(addr("192.168.0.3"))
	n.state.Forwarding.Add(addr("224.0.0.1"), start)

	d := &packet.IPData{Source: addr("192.168.0.1"), Destination: addr("224.0.0.1"), TTL: 16, CastMode: packet.Multicast}
	fab := &fakeFabric{accept: true}
	n.Accept(addr("192.168.0.9"), d)
	n.Process(start, fab)

	if len(fab.delivered) != 1 {
		t.Fatalf("expected one forwarded copy, got %d", len(fab.delivered))
	}
}

func TestUnicastSendFailureRequeuesAndSchedulesRepairQuery(t *testing.T) {
	start := time.Now()
	n := NewNode(addr("192.168.0.1"), testConfig(), start)
	// no routes, no neighbors: routePacket must fail
	dst := addr("192.168.0.9")
	n.EnqueueSend(&packet.IPData{Source: n.ip, Destination: dst, TTL: 16, CastMode: packet.Unicast})

	fab := &fakeFabric{accept: true}
	performed := n.Process(start, fab)

	if !performed {
		t.Fatal("expected the send attempt itself to count as the tick's operation")
	}
	if n.pendingSend.Len() != 1 {
		t.Fatal("expected the unrouteable packet to be re-queued, not dropped")
	}
	if n.joinQueryNext == nil {
		t.Fatal("expected a repair Join Query to be scheduled for the next tick")
	}
	if n.joinQueryNext.MulticastGroup != dst {
		t.Fatalf("expected repair query's target to be the unreachable destination, got %s", n.joinQueryNext.MulticastGroup)
	}
}

func TestDownNodeRejectsIncomingPackets(t *testing.T) {
	n := NewNode(addr("192.168.0.1"), testConfig(), time.Now())
	n.SetDown(true)

	d := &packet.IPData{Destination: addr("10.0.0.1")}
	if n.Accept(addr("192.168.0.2"), d) {
		t.Fatal("a down node must reject incoming packets")
	}
}
