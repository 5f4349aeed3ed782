package packet

import (
	"net/netip"
	"testing"
)

func addr(s string) netip.Addr {
	return netip.MustParseAddr(s)
}

func TestJoinQueryCloneIsIndependent(t *testing.T) {
	q := NewJoinQuery(addr("192.168.0.1"), addr("192.168.0.1"), addr("224.0.0.1"), 1)

	clone := q.Clone().(*JoinQuery)
	clone.TTL = 1
	clone.HopCount = 9

	if q.TTL == 1 || q.HopCount == 9 {
		t.Fatal("mutating a clone mutated the original JoinQuery")
	}
}

func TestJoinReplyCloneDoesNotShareSenderSlice(t *testing.T) {
	r := &JoinReply{
		Source: addr("192.168.0.1"),
		Senders: []Sender{
			{SenderAddr: addr("192.168.0.2"), NextHopAddr: addr("192.168.0.3")},
		},
	}

	clone := r.Clone().(*JoinReply)
	clone.Senders[0].NextHopAddr = addr("10.0.0.1")
	clone.Senders = append(clone.Senders, Sender{SenderAddr: addr("192.168.0.9")})

	if len(r.Senders) != 1 {
		t.Fatalf("appending to a clone's Senders grew the original: %d", len(r.Senders))
	}

	if r.Senders[0].NextHopAddr != addr("192.168.0.3") {
		t.Fatal("mutating a clone's Senders entry mutated the original")
	}
}

func TestIPDataClonePayloadIndependent(t *testing.T) {
	d := &IPData{Payload: []byte("hello")}

	clone := d.Clone().(*IPData)
	clone.Payload[0] = 'H'

	if d.Payload[0] != 'h' {
		t.Fatal("mutating a clone's payload mutated the original")
	}
}

func TestCastModeString(t *testing.T) {
	if Unicast.String() != "unicast" {
		t.Fatalf("unexpected CastMode.String(): %s", Unicast.String())
	}
}
