package odmrp

import (
	"container/list"
	"net/netip"
)

// MessageCacheEntry fingerprints one originated flood: the flood's
// source and the sequence number it was sent with.
type MessageCacheEntry struct {
	Source         netip.Addr
	SequenceNumber uint32
}

// MessageCache is a bounded, insertion-ordered set of
// MessageCacheEntry used to suppress re-processing of Join Queries
// already seen. It evicts the oldest-inserted entry, in FIFO order,
// once it reaches capacity.
//
// A map keyed by MessageCacheEntry gives O(1) Contains, which trivially
// satisfies the specification's O(log n) bound; container/list gives
// the strict insertion-order eviction the spec requires (see
// DESIGN.md: no cache library in the example pack preserves strict
// FIFO-by-insertion eviction under repeated lookups, since they're all
// LRU- or TTL-based).
type MessageCache struct {
	capacity int
	order    *list.List // front = oldest
	index    map[MessageCacheEntry]*list.Element
}

// NewMessageCache returns an empty cache bounded at capacity entries.
func NewMessageCache(capacity int) *MessageCache {
	return &MessageCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[MessageCacheEntry]*list.Element),
	}
}

// Contains reports whether entry has already been inserted.
func (c *MessageCache) Contains(entry MessageCacheEntry) bool {
	_, ok := c.index[entry]
	return ok
}

// Add inserts entry if it isn't already present, evicting the oldest
// entry if the cache is now over capacity. It reports whether entry was
// newly inserted.
func (c *MessageCache) Add(entry MessageCacheEntry) bool {
	if _, ok := c.index[entry]; ok {
		return false
	}

	elem := c.order.PushBack(entry)
	c.index[entry] = elem

	if len(c.index) > c.capacity {
		c.evictOldest()
	}

	return true
}

func (c *MessageCache) evictOldest() {
	oldest := c.order.Front()
	if oldest == nil {
		return
	}

	c.order.Remove(oldest)
	delete(c.index, oldest.Value.(MessageCacheEntry))
}

// Len reports the number of entries currently cached.
func (c *MessageCache) Len() int {
	return len(c.index)
}
