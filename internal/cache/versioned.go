package cache

import (
	"time"
)

// VersionedCapacity bounds the configuration-versioned cache.
const VersionedCapacity = 128

type versionedEntry struct {
	key     uint32
	value   uint32
	at      time.Time
	version uint32
}

// VersionedCache memoizes decisions that depend on user-toggleable
// configuration rather than per-frame state. An entry is valid only while
// it is younger than the timeout AND was written under the current
// configuration version. Bumping the version invalidates every entry
// lazily at read time, which is cheaper than an eager sweep and just as
// correct.
type VersionedCache struct {
	entries [VersionedCapacity]versionedEntry
	n       int
	timeout time.Duration
	clock   func() time.Time
}

// DefaultVersionedTimeout ages out entries even when configuration never
// changes, so a long-idle session cannot serve arbitrarily old decisions.
const DefaultVersionedTimeout = 30 * time.Second

func NewVersionedCache(timeout time.Duration, clock func() time.Time) *VersionedCache {
	if timeout <= 0 {
		timeout = DefaultVersionedTimeout
	}
	if clock == nil {
		clock = time.Now
	}
	return &VersionedCache{timeout: timeout, clock: clock}
}

// Lookup scans for key and reports its value when the entry is still
// within the timeout and tagged with the current version. Invalid matches
// are evicted in place.
func (c *VersionedCache) Lookup(key uint32, version uint32) (uint32, bool) {
	now := c.clock()
	for i := 0; i < c.n; i++ {
		e := &c.entries[i]
		if e.key != key {
			continue
		}
		if e.version != version || now.Sub(e.at) >= c.timeout {
			c.removeAt(i)
			return 0, false
		}
		return e.value, true
	}
	return 0, false
}

// Insert records key -> value under the given version, overwriting a
// matching key in place. At capacity the globally oldest entry by
// timestamp is evicted first.
func (c *VersionedCache) Insert(key, value uint32, version uint32) {
	now := c.clock()
	for i := 0; i < c.n; i++ {
		if c.entries[i].key == key {
			c.entries[i] = versionedEntry{key: key, value: value, at: now, version: version}
			return
		}
	}
	if c.n == VersionedCapacity {
		oldest := 0
		for i := 1; i < c.n; i++ {
			if c.entries[i].at.Before(c.entries[oldest].at) {
				oldest = i
			}
		}
		c.removeAt(oldest)
	}
	c.entries[c.n] = versionedEntry{key: key, value: value, at: now, version: version}
	c.n++
}

// Len reports the live entry count.
func (c *VersionedCache) Len() int { return c.n }

// Reset drops every entry.
func (c *VersionedCache) Reset() { c.n = 0 }

func (c *VersionedCache) removeAt(i int) {
	c.n--
	if i != c.n {
		c.entries[i] = c.entries[c.n]
	}
	c.entries[c.n] = versionedEntry{}
}
