// Package cache holds the two small memoization caches in front of the
// decision path: a set-associative cache coherent with the snapshot's
// frame-stamp, and a linear cache coherent with the user configuration
// version. Both are fixed-capacity and allocation-free after construction.
package cache

import (
	"time"

	"github.com/h1arc/weaveline/rules/contract"
)

const (
	frameSets = 32
	frameWays = 2
)

// FrameCapacity is the total slot count of the frame-stamped cache.
const FrameCapacity = frameSets * frameWays

type frameEntry struct {
	key   contract.ActionID
	value contract.ActionID
	stamp uint64
	at    int64
	used  bool
}

// FrameCache memoizes "input action -> resolved action" within a single
// frame. Entries from any other frame are treated as garbage: within one
// frame the same input must always resolve identically, but across frames
// state may have changed, so data from a different frame is never trusted.
type FrameCache struct {
	sets  [frameSets][frameWays]frameEntry
	clock func() time.Time
}

func NewFrameCache(clock func() time.Time) *FrameCache {
	if clock == nil {
		clock = time.Now
	}
	return &FrameCache{clock: clock}
}

// avalanche is the 32-bit murmur3 finalizer. Sequential ability ids cluster
// badly on the low bits, so the set index needs a full mix first.
func avalanche(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

// Lookup reports the resolved action memoized for key in the given frame.
// A way-1 hit swaps the entry into way 0 so the most recent key stays in
// front. An entry stamped with any other frame is evicted in place and
// reported as a miss.
func (c *FrameCache) Lookup(key contract.ActionID, frame uint64) (contract.ActionID, bool) {
	set := &c.sets[avalanche(uint32(key))&(frameSets-1)]
	for way := 0; way < frameWays; way++ {
		e := &set[way]
		if !e.used || e.key != key {
			continue
		}
		if e.stamp != frame {
			e.used = false
			return 0, false
		}
		if way != 0 {
			set[0], set[way] = set[way], set[0]
		}
		return set[0].value, true
	}
	return 0, false
}

// Insert memoizes key -> value under the given frame. Matching keys are
// overwritten in place, empty ways are preferred, and otherwise the way
// with the older timestamp is evicted. The fresh entry always ends in
// way 0.
func (c *FrameCache) Insert(key, value contract.ActionID, frame uint64) {
	set := &c.sets[avalanche(uint32(key))&(frameSets-1)]
	now := c.clock().UnixNano()

	for way := 0; way < frameWays; way++ {
		if set[way].used && set[way].key == key {
			set[way] = frameEntry{key: key, value: value, stamp: frame, at: now, used: true}
			if way != 0 {
				set[0], set[way] = set[way], set[0]
			}
			return
		}
	}
	for way := 0; way < frameWays; way++ {
		if !set[way].used {
			set[way] = frameEntry{key: key, value: value, stamp: frame, at: now, used: true}
			if way != 0 {
				set[0], set[way] = set[way], set[0]
			}
			return
		}
	}
	victim := 0
	if set[1].at < set[0].at {
		victim = 1
	}
	set[victim] = frameEntry{key: key, value: value, stamp: frame, at: now, used: true}
	if victim != 0 {
		set[0], set[victim] = set[victim], set[0]
	}
}

// Reset drops every entry. Used by tests and world resets.
func (c *FrameCache) Reset() {
	for i := range c.sets {
		for way := range c.sets[i] {
			c.sets[i][way] = frameEntry{}
		}
	}
}
