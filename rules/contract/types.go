package contract

import "time"

// ActionID identifies an ability in the host's action tables. The zero value
// means "no action" and is never a valid resolution result for a known input.
type ActionID uint32

// ActorID identifies a combatant. Zero means "nobody".
type ActorID uint64

// RoleID identifies the active combat role (job). Zero means "no role".
type RoleID uint8

// ZoneID identifies the current map territory.
type ZoneID uint16

// Tracker selects one of the three duration tables carried by the state
// snapshot.
type Tracker int

const (
	TrackerBuffs Tracker = iota
	TrackerDebuffs
	TrackerCooldowns

	TrackerCount = 3
)

// DurationSentinel marks a tracked key that was registered at session start
// but has never been observed by a live update. It is distinct from 0, which
// means "observed and currently absent". Only snapshot initialization writes
// the sentinel.
const DurationSentinel = time.Duration(-999) * time.Second

// State is the read surface rule providers evaluate against. It is
// implemented by the engine's frame-coherent snapshot; every method is a
// cheap field read against the current published frame.
type State interface {
	// Frame returns the frame-stamp of the published snapshot. It advances
	// once per inbound state update.
	Frame() uint64

	Role() RoleID
	Level() uint8
	TargetID() ActorID
	Zone() ZoneID

	InCombat() bool
	HasTarget() bool
	InRestrictedArea() bool
	CanAct() bool
	Moving() bool

	// LockRemaining reports the primary ability lock still counting down,
	// extrapolated from the last update.
	LockRemaining() time.Duration

	// Resource reports the current and maximum resource pool (mana).
	Resource() (current, max int)

	// Remaining reports the tracked remaining time for id in the given
	// table: max(0, recorded-elapsed), or DurationSentinel if the key was
	// never observed.
	Remaining(tracker Tracker, id ActionID) time.Duration

	// CanWeave reports whether n secondary abilities fit the remaining
	// primary lock window.
	CanWeave(n int) bool
}
