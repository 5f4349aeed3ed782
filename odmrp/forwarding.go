package odmrp

import (
	"net/netip"
	"time"
)

// ForwardingGroupEntry marks this node as a member of a multicast
// group's forwarding mesh: it rebroadcasts data for Group until
// RefreshedAt ages past the forwarding timeout without a renewing Join
// Reply.
type ForwardingGroupEntry struct {
	Group      netip.Addr
	RefreshedAt time.Time
}

func (e ForwardingGroupEntry) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(e.RefreshedAt) > timeout
}

// ForwardingGroupTable is the set of multicast groups this node
// currently forwards data for. Membership is soft-state: every group
// must be refreshed by a Join Reply more often than timeout, or
// GetGroupEntry's lazy expiry check evicts it.
type ForwardingGroupTable struct {
	timeout time.Duration
	groups  map[netip.Addr]ForwardingGroupEntry
}

// NewForwardingGroupTable returns an empty table that expires entries
// not refreshed within timeout.
func NewForwardingGroupTable(timeout time.Duration) *ForwardingGroupTable {
	return &ForwardingGroupTable{
		timeout: timeout,
		groups:  make(map[netip.Addr]ForwardingGroupEntry),
	}
}

// Add marks this node as forwarding for group as of now, refreshing an
// existing entry if one is present.
func (f *ForwardingGroupTable) Add(group netip.Addr, now time.Time) {
	f.groups[group] = ForwardingGroupEntry{Group: group, RefreshedAt: now}
}

// GetEntry returns the entry for group, if any. When deleteIfExpired is
// true and the entry has aged past the forwarding timeout relative to
// now, it is removed and reported as absent; this is the lazy-expiry
// policy the specification calls for in place of a background sweep.
// When deleteIfExpired is false the entry is returned whether or not it
// has expired.
func (f *ForwardingGroupTable) GetEntry(group netip.Addr, now time.Time, deleteIfExpired bool) (ForwardingGroupEntry, bool) {
	e, ok := f.groups[group]
	if !ok {
		return ForwardingGroupEntry{}, false
	}

	if deleteIfExpired && e.expired(now, f.timeout) {
		delete(f.groups, group)
		return ForwardingGroupEntry{}, false
	}

	return e, true
}

// IsMember reports whether this node currently forwards group, applying
// lazy expiry.
func (f *ForwardingGroupTable) IsMember(group netip.Addr, now time.Time) bool {
	_, ok := f.GetEntry(group, now, true)
	return ok
}

// Remove drops group's forwarding entry unconditionally.
func (f *ForwardingGroupTable) Remove(group netip.Addr) {
	delete(f.groups, group)
}

// Groups returns a snapshot of every group currently believed to be
// forwarded, without applying expiry — callers that care about staleness
// should use IsMember per group.
func (f *ForwardingGroupTable) Groups() []netip.Addr {
	groups := make([]netip.Addr, 0, len(f.groups))
	for g := range f.groups {
		groups = append(groups, g)
	}
	return groups
}
