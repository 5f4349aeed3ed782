// Package odmrp holds the per-node protocol state machine the network
// package drives: the message cache that suppresses duplicate flood
// processing, the forwarding-group table that tracks multicast mesh
// membership, the route-refresh timer that governs unsolicited Join
// Query origination, and the routing table itself.
package odmrp

import (
	"net/netip"
	"time"

	"github.com/hakeris1010/ODMRP-Sim/routing"
)

// Config bundles the timing and sizing constants a State is built with.
// Exposing them as a struct, rather than as package constants, keeps
// them overridable per test without a build tag.
type Config struct {
	// RouteRefresh is the interval between the unsolicited Join Queries
	// a multicast source originates for its group. A repair query for an
	// unroutable unicast destination is not timed by it.
	RouteRefresh time.Duration
	// ForwardingTimeout is the soft-state lifetime of a forwarding group
	// membership absent a refreshing Join Reply.
	ForwardingTimeout time.Duration
	// MessageCacheSize bounds the message cache's FIFO eviction.
	MessageCacheSize int
}

// DefaultConfig returns the specification's default timing constants.
func DefaultConfig() Config {
	return Config{
		RouteRefresh:      500 * time.Millisecond,
		ForwardingTimeout: 1500 * time.Millisecond,
		MessageCacheSize:  2048,
	}
}

// State is one node's ODMRP protocol state: its routing table, message
// cache, forwarding-group table, route-refresh deadline, and the
// monotonic sequence counter it stamps onto every Join Query it
// originates.
type State struct {
	cfg Config

	Routes     *routing.Table
	Cache      *MessageCache
	Forwarding *ForwardingGroupTable

	lastRouteRefresh time.Time
	sequence         uint32
}

// New returns a fresh protocol state seeded at now, using routeOpts to
// construct the embedded routing table (e.g. routing.WithLegacySingleNextHop).
func New(cfg Config, now time.Time, routeOpts ...routing.Option) *State {
	return &State{
		cfg:              cfg,
		Routes:           routing.New(routeOpts...),
		Cache:            NewMessageCache(cfg.MessageCacheSize),
		Forwarding:       NewForwardingGroupTable(cfg.ForwardingTimeout),
		lastRouteRefresh: now,
	}
}

// NextSequence returns the next value of this node's monotonic Join
// Query sequence counter (Design Note #5: per-node counters, not
// randomness, so the message cache can never collide across a single
// source's own floods).
func (s *State) NextSequence() uint32 {
	s.sequence++
	return s.sequence
}

// IsRouteRefreshNeeded reports whether now is at least RouteRefresh past
// the last reset, i.e. whether a multicast source's next unsolicited Join
// Query is due.
func (s *State) IsRouteRefreshNeeded(now time.Time) bool {
	return now.Sub(s.lastRouteRefresh) >= s.cfg.RouteRefresh
}

// ResetRouteRefresh marks now as the last time a route refresh was
// performed, rearming the RouteRefresh interval.
func (s *State) ResetRouteRefresh(now time.Time) {
	s.lastRouteRefresh = now
}

// DueAt reports the wall-clock time at which the next unsolicited route
// refresh becomes due. The Scheduler's scan uses this to compute how
// long it may sleep before it must wake a node on its own.
func (s *State) DueAt() time.Time {
	return s.lastRouteRefresh.Add(s.cfg.RouteRefresh)
}

// Seen reports whether (source, seq) has already been recorded in the
// message cache, recording it if not. A true result means the caller
// must drop the packet as a duplicate.
func (s *State) Seen(source netip.Addr, seq uint32) bool {
	entry := MessageCacheEntry{Source: source, SequenceNumber: seq}
	if s.Cache.Contains(entry) {
		return true
	}
	s.Cache.Add(entry)
	return false
}
