// Package targeting resolves the best recipient for a support ability from
// a small party roster. The roster is rewritten wholesale by a ~30 ms
// polling feed and stored as parallel arrays; the selection cascade and the
// need sort never allocate.
package targeting

import (
	"sync"
	"time"

	"github.com/h1arc/weaveline/rules/contract"
)

// MaxRoster bounds the party roster. Counts are clamped at the write
// boundary so indexing below never goes out of range.
const MaxRoster = 8

// StatusFlags packs the per-member facts the cascade checks.
type StatusFlags uint16

const (
	StatusAlive StatusFlags = 1 << iota
	StatusInRange
	StatusInLineOfSight
	StatusTargetable
	StatusSelf
	StatusHardTarget
	StatusTank
	StatusAlly
)

// selectable is everything a scan candidate must satisfy besides HP.
const selectable = StatusAlive | StatusInRange | StatusInLineOfSight | StatusTargetable | StatusAlly

// MemberUpdate is one roster slot as pushed by the polling feed.
type MemberUpdate struct {
	ID    contract.ActorID
	HP    float32
	Flags StatusFlags
}

// companionState is the independently throttled fallback feed. It has its
// own mutex because the companion scan runs on a different cadence than
// the roster feed and can race with consumption.
type companionState struct {
	mu        sync.Mutex
	id        contract.ActorID
	hp        float32
	valid     bool
	updatedAt time.Time
}

// Engine is the target-priority cascade over the current roster.
type Engine struct {
	ids   [MaxRoster]contract.ActorID
	hp    [MaxRoster]float32
	flags [MaxRoster]StatusFlags
	count int

	order    [MaxRoster]uint8
	sortedAt time.Time

	hardTarget      contract.ActorID
	hardTargetValid bool

	companion       companionState
	companionWindow time.Duration

	// CompanionOverrideDelta, when positive, lets the companion win over a
	// needier party member if its HP fraction is at least this much lower.
	// Off by default; the cascade otherwise always favors the party.
	companionOverrideDelta float32

	refreshInterval time.Duration
	clock           func() time.Time
}

// Config tunes refresh throttles. Zero values pick the defaults below.
type Config struct {
	RefreshInterval        time.Duration
	CompanionWindow        time.Duration
	CompanionOverrideDelta float32
	Clock                  func() time.Time
}

const (
	// DefaultRefreshInterval matches the roster polling cadence; the need
	// sort is skipped when it already ran within this window.
	DefaultRefreshInterval = 30 * time.Millisecond

	// DefaultCompanionWindow is how long a companion push stays fresh.
	DefaultCompanionWindow = 250 * time.Millisecond
)

func New(cfg Config) *Engine {
	e := &Engine{
		refreshInterval:        cfg.RefreshInterval,
		companionWindow:        cfg.CompanionWindow,
		companionOverrideDelta: cfg.CompanionOverrideDelta,
		clock:                  cfg.Clock,
	}
	if e.refreshInterval <= 0 {
		e.refreshInterval = DefaultRefreshInterval
	}
	if e.companionWindow <= 0 {
		e.companionWindow = DefaultCompanionWindow
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

// UpdateRoster overwrites the roster wholesale. Members beyond MaxRoster
// are dropped. The first member flagged as hard target becomes the valid
// manual override for subsequent selections.
func (e *Engine) UpdateRoster(members []MemberUpdate) {
	n := len(members)
	if n > MaxRoster {
		n = MaxRoster
	}
	e.hardTarget = 0
	e.hardTargetValid = false
	for i := 0; i < n; i++ {
		m := members[i]
		hp := m.HP
		if hp < 0 {
			hp = 0
		}
		if hp > 1 {
			hp = 1
		}
		e.ids[i] = m.ID
		e.hp[i] = hp
		e.flags[i] = m.Flags
		if !e.hardTargetValid && m.Flags&StatusHardTarget != 0 && m.ID != 0 {
			e.hardTarget = m.ID
			e.hardTargetValid = true
		}
	}
	e.count = n
	e.sortedAt = time.Time{}
}

// UpdateCompanion refreshes the throttled companion feed.
func (e *Engine) UpdateCompanion(id contract.ActorID, hp float32, valid bool) {
	e.companion.mu.Lock()
	e.companion.id = id
	e.companion.hp = hp
	e.companion.valid = valid && id != 0
	e.companion.updatedAt = e.clock()
	e.companion.mu.Unlock()
}

// SelectHealTarget runs the cascade for a support ability using threshold
// as the HP fraction below which a member needs help:
//
//  1. a valid hard target wins unconditionally, with no further checks;
//     manual targeting is never second-guessed
//  2. self below threshold skips the sort, but only when no other
//     selectable member is on lower HP, so the fast path cannot change
//     the selection
//  3. sorted scan: alive first, ascending HP, stable ties
//  4. fresh companion below threshold
//  5. self, unconditionally
//
// Zero is returned only when self is entirely absent from the roster.
func (e *Engine) SelectHealTarget(threshold float32) contract.ActorID {
	if e.hardTargetValid && e.hardTarget != 0 {
		return e.hardTarget
	}

	self := e.selfIndex()
	if self >= 0 {
		f := e.flags[self]
		if f&StatusTargetable != 0 && f&StatusAlive != 0 && e.hp[self] > 0 && e.hp[self] < threshold &&
			e.selfNeediest(self) {
			return e.ids[self]
		}
	}

	e.ensureSorted()
	for i := 0; i < e.count; i++ {
		idx := e.order[i]
		f := e.flags[idx]
		if f&selectable != selectable {
			continue
		}
		hp := e.hp[idx]
		if hp <= 0 || hp >= threshold {
			continue
		}
		if id := e.companionOverride(hp, threshold); id != 0 {
			return id
		}
		return e.ids[idx]
	}

	if id := e.companionBelow(threshold); id != 0 {
		return id
	}

	if self >= 0 {
		return e.ids[self]
	}
	return 0
}

// HardTarget reports the current manual override, if any.
func (e *Engine) HardTarget() (contract.ActorID, bool) {
	return e.hardTarget, e.hardTargetValid
}

// SelfID reports the roster member flagged as self, or zero.
func (e *Engine) SelfID() contract.ActorID {
	if i := e.selfIndex(); i >= 0 {
		return e.ids[i]
	}
	return 0
}

// selfNeediest reports whether no other selectable member sits on lower HP
// than self. Only then may the self fast path skip the sorted scan without
// changing which member wins.
func (e *Engine) selfNeediest(self int) bool {
	for i := 0; i < e.count; i++ {
		if i == self {
			continue
		}
		if e.flags[i]&selectable != selectable {
			continue
		}
		if e.hp[i] > 0 && e.hp[i] < e.hp[self] {
			return false
		}
	}
	return true
}

func (e *Engine) selfIndex() int {
	for i := 0; i < e.count; i++ {
		if e.flags[i]&StatusSelf != 0 {
			return i
		}
	}
	return -1
}

// companionOverride implements the optional "companion when much lower HP"
// hook against the party winner's HP. Disabled unless a positive delta was
// configured.
func (e *Engine) companionOverride(partyHP, threshold float32) contract.ActorID {
	if e.companionOverrideDelta <= 0 {
		return 0
	}
	e.companion.mu.Lock()
	defer e.companion.mu.Unlock()
	if !e.companionFreshLocked() {
		return 0
	}
	if e.companion.hp < threshold && partyHP-e.companion.hp >= e.companionOverrideDelta {
		return e.companion.id
	}
	return 0
}

func (e *Engine) companionBelow(threshold float32) contract.ActorID {
	e.companion.mu.Lock()
	defer e.companion.mu.Unlock()
	if !e.companionFreshLocked() {
		return 0
	}
	if e.companion.hp > 0 && e.companion.hp < threshold {
		return e.companion.id
	}
	return 0
}

func (e *Engine) companionFreshLocked() bool {
	if !e.companion.valid {
		return false
	}
	return e.clock().Sub(e.companion.updatedAt) < e.companionWindow
}

// ensureSorted refreshes the need order at most once per refresh interval.
// Insertion sort is O(n) here because n never exceeds MaxRoster.
func (e *Engine) ensureSorted() {
	now := e.clock()
	if !e.sortedAt.IsZero() && now.Sub(e.sortedAt) < e.refreshInterval {
		return
	}
	for i := 0; i < e.count; i++ {
		e.order[i] = uint8(i)
	}
	for i := 1; i < e.count; i++ {
		j := i
		for j > 0 && e.needLess(e.order[j], e.order[j-1]) {
			e.order[j], e.order[j-1] = e.order[j-1], e.order[j]
			j--
		}
	}
	e.sortedAt = now
}

// needLess orders dead members last and alive members by ascending HP.
// Strict comparison keeps the insertion sort stable, so ties hold their
// original roster order and selections stay deterministic.
func (e *Engine) needLess(a, b uint8) bool {
	aliveA := e.flags[a]&StatusAlive != 0
	aliveB := e.flags[b]&StatusAlive != 0
	if aliveA != aliveB {
		return aliveA
	}
	return e.hp[a] < e.hp[b]
}
