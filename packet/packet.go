// Package packet defines the ODMRP wire model: a small closed set of
// tagged packet variants that every layer above the neighbor graph
// passes around by value. Every hand-off between nodes clones its
// argument (see Clone on each variant) so that a mutation made by one
// receiver — advancing a TTL, rewriting a previous-hop address, pruning
// a Join Reply's sender list — is never visible to any other receiver's
// copy of the "same" packet.
package packet

import "net/netip"

// CastMode is the dispatch policy implied by a packet's destination.
type CastMode int

const (
	NoAddr CastMode = iota
	Unicast
	Multicast
	Broadcast
)

func (m CastMode) String() string {
	switch m {
	case Unicast:
		return "unicast"
	case Multicast:
		return "multicast"
	case Broadcast:
		return "broadcast"
	default:
		return "no-addr"
	}
}

// Type identifies which of the three variants a Packet carries.
type Type uint8

const (
	TypeJoinQuery Type = 0x01
	TypeJoinReply Type = 0x02
	TypeIPData    Type = 0x03
)

func (t Type) String() string {
	switch t {
	case TypeJoinQuery:
		return "JoinQuery"
	case TypeJoinReply:
		return "JoinReply"
	case TypeIPData:
		return "IPData"
	default:
		return "Unknown"
	}
}

const DefaultTTL = 32

// Packet is the common envelope every variant implements. Dispatch on
// the concrete variant is an exhaustive type switch in the network
// package's process step, not an interface method — see the variant
// types below.
type Packet interface {
	// Type reports which concrete variant this is.
	Type() Type
	// Mode reports the cast mode carried by the envelope.
	Mode() CastMode
	// Clone returns an independent copy. Every hand-off between nodes
	// must call Clone; nothing downstream of accept() may alias the
	// sender's copy.
	Clone() Packet
}

// JoinQuery is ODMRP's flooded route/receiver discovery packet. Its
// MulticastGroup field does double duty: for a source-originated query
// it carries the multicast group being advertised, and for a
// unicast-route-repair query it carries the desired unicast destination.
type JoinQuery struct {
	Source         netip.Addr
	MulticastGroup netip.Addr
	PreviousHop    netip.Addr
	SequenceNumber uint32
	TTL            uint8
	HopCount       uint8
}

func (q *JoinQuery) Type() Type    { return TypeJoinQuery }
func (q *JoinQuery) Mode() CastMode { return Broadcast }

func (q *JoinQuery) Clone() Packet {
	c := *q
	return &c
}

// Sender is one entry of a JoinReply's sender list: the multicast
// source (or unicast destination) this reply is routing toward, and the
// next hop a given node should use to reach it.
type Sender struct {
	SenderAddr          netip.Addr
	NextHopAddr         netip.Addr
	RouteExpirationTime int64
}

// JoinReply propagates back along the reverse path a JoinQuery
// traveled, rewriting NextHopAddr hop by hop as it goes. Count mirrors
// len(Senders); it exists because the wire format the original protocol
// models carries an explicit count field ahead of a variable-length
// sender list.
type JoinReply struct {
	Source         netip.Addr
	MulticastGroup netip.Addr
	PreviousHop    netip.Addr
	SequenceNumber uint32
	AckReq         bool
	ForwardGroup   bool
	Senders        []Sender
}

func (r *JoinReply) Type() Type     { return TypeJoinReply }
func (r *JoinReply) Mode() CastMode { return Broadcast }
func (r *JoinReply) Count() int     { return len(r.Senders) }

func (r *JoinReply) Clone() Packet {
	c := *r
	c.Senders = append([]Sender(nil), r.Senders...)
	return &c
}

// IPData is an opaque data packet routed (unicast), flooded
// (broadcast), or forwarded along a multicast mesh (multicast).
type IPData struct {
	Source       netip.Addr
	Destination  netip.Addr
	TTL          uint8
	HopsTraveled uint8
	CastMode     CastMode
	Payload      []byte
	Verbose      bool
}

func (d *IPData) Type() Type     { return TypeIPData }
func (d *IPData) Mode() CastMode { return d.CastMode }

func (d *IPData) Clone() Packet {
	c := *d
	c.Payload = append([]byte(nil), d.Payload...)
	return &c
}

// NewJoinQuery builds a freshly-originated query with TTL and HopCount
// set per spec. It does not choose a sequence number: it stamps seq,
// which callers draw from their own monotonic counter (see Design Note
// #5: per-node counters, not randomness, keep one source from repeating
// a (source, seq) fingerprint in the message cache).
func NewJoinQuery(source, previousHop, target netip.Addr, seq uint32) *JoinQuery {
	return &JoinQuery{
		Source:         source,
		MulticastGroup: target,
		PreviousHop:    previousHop,
		SequenceNumber: seq,
		TTL:            DefaultTTL,
		HopCount:       0,
	}
}
