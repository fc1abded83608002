// Package snapshot owns the periodically refreshed picture of actor and
// world state the decision engine reads on every input event. A single
// producer (the host's per-tick callback) overwrites the state wholesale;
// readers always observe a complete frame because each update is published
// as one atomically swapped immutable value.
package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/h1arc/weaveline/rules/contract"
)

// Flags is the packed boolean state refreshed every tick.
type Flags uint8

const (
	FlagInCombat Flags = 1 << iota
	FlagHasTarget
	FlagInRestrictedArea
	FlagCanAct
	FlagMoving
)

// DurationUpdate refreshes one tracked key in one table.
type DurationUpdate struct {
	Tracker   contract.Tracker
	ID        contract.ActionID
	Remaining time.Duration
}

// Update carries one full inbound state push. Durations lists every tracked
// effect currently present; registered keys missing from the list decay to
// zero (observed and absent), never back to the sentinel.
type Update struct {
	Role      contract.RoleID
	Level     uint8
	TargetID  contract.ActorID
	Zone      contract.ZoneID
	Flags     Flags
	Lock      time.Duration
	Resource  int
	ResourceM int
	Durations []DurationUpdate
}

// frame is one immutable published state generation.
type frame struct {
	seq       uint64
	updatedAt time.Time

	role     contract.RoleID
	level    uint8
	target   contract.ActorID
	zone     contract.ZoneID
	flags    Flags
	lock     time.Duration
	resource int
	maxRes   int

	tracked [contract.TrackerCount][]time.Duration
}

// Snapshot holds the registered key layout and the current frame. Tracked
// keys are fixed at construction so "never observed" stays distinguishable
// from "absent" for the whole session.
type Snapshot struct {
	keys [contract.TrackerCount]map[contract.ActionID]int
	cur  atomic.Pointer[frame]

	clock func() time.Time

	perAbilityLock time.Duration
}

// Config fixes the tracked key sets and the per-ability weave lock used by
// CanWeave. A nil Clock falls back to time.Now.
type Config struct {
	Buffs          []contract.ActionID
	Debuffs        []contract.ActionID
	Cooldowns      []contract.ActionID
	PerAbilityLock time.Duration
	Clock          func() time.Time
}

// DefaultPerAbilityLock is the animation lock one secondary ability consumes.
const DefaultPerAbilityLock = 700 * time.Millisecond

func New(cfg Config) *Snapshot {
	s := &Snapshot{clock: cfg.Clock, perAbilityLock: cfg.PerAbilityLock}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.perAbilityLock <= 0 {
		s.perAbilityLock = DefaultPerAbilityLock
	}
	register := func(t contract.Tracker, ids []contract.ActionID) {
		s.keys[t] = make(map[contract.ActionID]int, len(ids))
		for _, id := range ids {
			if id == 0 {
				continue
			}
			if _, dup := s.keys[t][id]; dup {
				continue
			}
			s.keys[t][id] = len(s.keys[t])
		}
	}
	register(contract.TrackerBuffs, cfg.Buffs)
	register(contract.TrackerDebuffs, cfg.Debuffs)
	register(contract.TrackerCooldowns, cfg.Cooldowns)

	initial := &frame{updatedAt: s.clock()}
	for t := 0; t < contract.TrackerCount; t++ {
		table := make([]time.Duration, len(s.keys[t]))
		for i := range table {
			table[i] = contract.DurationSentinel
		}
		initial.tracked[t] = table
	}
	s.cur.Store(initial)
	return s
}

// Apply publishes a new frame built from the previous one and the inbound
// push, and bumps the frame-stamp. Only the producer thread may call it.
func (s *Snapshot) Apply(u Update) {
	prev := s.cur.Load()
	next := &frame{
		seq:       prev.seq + 1,
		updatedAt: s.clock(),
		role:      u.Role,
		level:     u.Level,
		target:    u.TargetID,
		zone:      u.Zone,
		flags:     u.Flags,
		lock:      u.Lock,
		resource:  u.Resource,
		maxRes:    u.ResourceM,
	}
	for t := 0; t < contract.TrackerCount; t++ {
		table := make([]time.Duration, len(prev.tracked[t]))
		for i, v := range prev.tracked[t] {
			if v == contract.DurationSentinel {
				table[i] = contract.DurationSentinel
			}
			// Everything previously observed decays to zero unless the
			// push below refreshes it.
		}
		next.tracked[t] = table
	}
	for _, d := range u.Durations {
		if d.Tracker < 0 || d.Tracker >= contract.TrackerCount {
			continue
		}
		slot, ok := s.keys[d.Tracker][d.ID]
		if !ok {
			continue
		}
		remaining := d.Remaining
		if remaining < 0 {
			remaining = 0
		}
		next.tracked[d.Tracker][slot] = remaining
	}
	s.cur.Store(next)
}

// Frame returns the current frame-stamp.
func (s *Snapshot) Frame() uint64 { return s.cur.Load().seq }

func (s *Snapshot) Role() contract.RoleID      { return s.cur.Load().role }
func (s *Snapshot) Level() uint8               { return s.cur.Load().level }
func (s *Snapshot) TargetID() contract.ActorID { return s.cur.Load().target }
func (s *Snapshot) Zone() contract.ZoneID      { return s.cur.Load().zone }

func (s *Snapshot) InCombat() bool         { return s.cur.Load().flags&FlagInCombat != 0 }
func (s *Snapshot) HasTarget() bool        { return s.cur.Load().flags&FlagHasTarget != 0 }
func (s *Snapshot) InRestrictedArea() bool { return s.cur.Load().flags&FlagInRestrictedArea != 0 }
func (s *Snapshot) CanAct() bool           { return s.cur.Load().flags&FlagCanAct != 0 }
func (s *Snapshot) Moving() bool           { return s.cur.Load().flags&FlagMoving != 0 }

// Resource reports the current and maximum resource pool.
func (s *Snapshot) Resource() (int, int) {
	f := s.cur.Load()
	return f.resource, f.maxRes
}

// LockRemaining extrapolates the primary lock from the last update.
func (s *Snapshot) LockRemaining() time.Duration {
	f := s.cur.Load()
	remaining := f.lock - s.clock().Sub(f.updatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Remaining reports the tracked remaining time for id, extrapolated from
// the last update. Unknown keys and never-observed keys return the
// sentinel; expired keys return 0.
func (s *Snapshot) Remaining(t contract.Tracker, id contract.ActionID) time.Duration {
	if t < 0 || t >= contract.TrackerCount {
		return contract.DurationSentinel
	}
	slot, ok := s.keys[t][id]
	if !ok {
		return contract.DurationSentinel
	}
	f := s.cur.Load()
	recorded := f.tracked[t][slot]
	if recorded == contract.DurationSentinel {
		return contract.DurationSentinel
	}
	remaining := recorded - s.clock().Sub(f.updatedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CanWeave reports whether n secondary abilities fit in the remaining
// primary lock window: true when the lock has elapsed, or when the window
// still covers n per-ability locks.
func (s *Snapshot) CanWeave(n int) bool {
	if n <= 0 {
		return true
	}
	remaining := s.LockRemaining()
	if remaining <= 0 {
		return true
	}
	return remaining >= time.Duration(n)*s.perAbilityLock
}

// UpdatedAt reports when the current frame was published.
func (s *Snapshot) UpdatedAt() time.Time { return s.cur.Load().updatedAt }

var _ contract.State = (*Snapshot)(nil)
