// Package routing implements ODMRP's per-node unicast routing table: a
// multi-entry table keyed by (destination, next hop) with a cost field,
// queried for the minimum-cost next hop toward a destination.
package routing

import (
	"net/netip"

	"golang.org/x/exp/constraints"
)

// lesser reports whether a sorts before b, generic over any ordered
// cost type. Mirrors the teacher's util.go min helper.
func lesser[T constraints.Ordered](a, b T) bool {
	return a < b
}

// Entry is one (destination, next hop) route with its cost.
type Entry struct {
	Destination netip.Addr
	NextHop     netip.Addr
	Cost        int64
}

type key struct {
	destination netip.Addr
	nextHop     netip.Addr
}

// Table is a routing table. The zero value is not usable; construct one
// with New.
type Table struct {
	entries map[key]*Entry

	// legacySingleNextHop reproduces the source's likely-bug policy
	// (Design Note #1): Add is suppressed whenever any entry for the
	// destination already exists, regardless of next hop. It exists so
	// both policies remain testable; New leaves it false.
	legacySingleNextHop bool
}

// Option configures a Table at construction time.
type Option func(*Table)

// WithLegacySingleNextHop reproduces the source revision's suppression
// behavior: once any route to a destination exists, Add silently drops
// attempts to add a different next hop for that destination. The
// specification's mandated behavior (multiple next hops per
// destination, tie-broken by cost) is the default; use this option only
// to exercise the legacy policy in tests.
func WithLegacySingleNextHop() Option {
	return func(t *Table) { t.legacySingleNextHop = true }
}

// New returns an empty routing table.
func New(opts ...Option) *Table {
	t := &Table{entries: make(map[key]*Entry)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add inserts entry, or updates its cost in place if an entry with the
// same (Destination, NextHop) already exists.
func (t *Table) Add(entry Entry) {
	k := key{entry.Destination, entry.NextHop}

	if existing, ok := t.entries[k]; ok {
		existing.Cost = entry.Cost
		return
	}

	if t.legacySingleNextHop && t.hasRouteTo(entry.Destination) {
		return
	}

	e := entry
	t.entries[k] = &e
}

func (t *Table) hasRouteTo(dst netip.Addr) bool {
	for k := range t.entries {
		if k.destination == dst {
			return true
		}
	}
	return false
}

// GetRouteForDestination returns the minimum-cost entry whose
// destination is dst, if any.
func (t *Table) GetRouteForDestination(dst netip.Addr) (Entry, bool) {
	var best *Entry

	for k, e := range t.entries {
		if k.destination != dst {
			continue
		}
		if best == nil || lesser(e.Cost, best.Cost) {
			best = e
		}
	}

	if best == nil {
		return Entry{}, false
	}

	return *best, true
}

// RemoveEntry removes the entry with the exact (Destination, NextHop)
// of entry, reporting whether anything was removed.
func (t *Table) RemoveEntry(entry Entry) bool {
	k := key{entry.Destination, entry.NextHop}
	if _, ok := t.entries[k]; !ok {
		return false
	}

	delete(t.entries, k)
	return true
}

// RemoveAllRoutesTo deletes every entry for dst and reports how many
// were removed.
func (t *Table) RemoveAllRoutesTo(dst netip.Addr) int {
	n := 0
	for k := range t.entries {
		if k.destination == dst {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Entries returns a snapshot of every entry in the table, for
// query/list output. The order is unspecified.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, *e)
	}
	return entries
}

// Len reports the number of entries in the table.
func (t *Table) Len() int {
	return len(t.entries)
}
