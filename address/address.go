// Package address classifies IPv4 addresses the way the ODMRP control
// surface and packet layer need them classified: unicast, multicast,
// broadcast, or unrecognized.
package address

import (
	"net/netip"
	"regexp"

	"go4.org/netipx"
)

// Type is the cast mode implied by an address's syntax.
type Type int

const (
	NoAddr Type = iota
	Unicast
	Multicast
	Broadcast
)

func (t Type) String() string {
	switch t {
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

// ipv4Pattern is the exact regex mandated by the specification: four
// dot-separated octets, each 0-255.
var ipv4Pattern = regexp.MustCompile(`^(?:(?:[01]?\d\d?|2[0-4]\d|25[0-5])\.){3}(?:[01]?\d\d?|2[0-4]\d|25[0-5])$`)

// multicastRange is 224.0.0.0-239.255.255.255: first octet 224-239, per
// Design Note #4. The source's buggy 224-249 range is intentionally not
// reproduced.
var multicastRange = netipx.IPRangeFrom(
	netip.MustParseAddr("224.0.0.0"),
	netip.MustParseAddr("239.255.255.255"),
)

var broadcastAddr = netip.MustParseAddr("255.255.255.255")

// Valid reports whether s is a syntactically valid dotted-quad IPv4
// address per the mandated regex.
func Valid(s string) bool {
	return ipv4Pattern.MatchString(s)
}

// Classify returns the cast mode implied by s's syntax. Anything that
// isn't a valid IPv4 dotted quad (including IPv6 literals) classifies as
// NoAddr.
func Classify(s string) Type {
	if !Valid(s) {
		return NoAddr
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return NoAddr
	}

	return ClassifyAddr(addr)
}

// ClassifyAddr is Classify for an already-parsed address.
func ClassifyAddr(addr netip.Addr) Type {
	if !addr.Is4() {
		return NoAddr
	}

	if addr == broadcastAddr {
		return Broadcast
	}

	if multicastRange.Contains(addr) {
		return Multicast
	}

	return Unicast
}
