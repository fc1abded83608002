// Package weaveline decides, for every attempted ability activation in a
// real-time combat loop, which concrete ability should actually execute and
// which off-cooldown secondaries fit in the remaining lock window. All
// state is in-memory, per-session, and owned by an Engine value; the
// per-event decision path performs no heap allocation.
package weaveline

import (
	"context"
	"fmt"
	"time"

	"github.com/h1arc/weaveline/internal/cache"
	"github.com/h1arc/weaveline/internal/chain"
	"github.com/h1arc/weaveline/internal/config"
	"github.com/h1arc/weaveline/internal/dispatch"
	"github.com/h1arc/weaveline/internal/snapshot"
	"github.com/h1arc/weaveline/internal/targeting"
	"github.com/h1arc/weaveline/logging"
	loggingresolution "github.com/h1arc/weaveline/logging/resolution"
	loggingtargeting "github.com/h1arc/weaveline/logging/targeting"
	"github.com/h1arc/weaveline/rules/contract"
)

// Re-exported push and result types so hosts only import the root package
// and rules/contract.
type (
	StateUpdate    = snapshot.Update
	DurationUpdate = snapshot.DurationUpdate
	StateFlags     = snapshot.Flags
	MemberUpdate   = targeting.MemberUpdate
	MemberFlags    = targeting.StatusFlags
	Decision       = dispatch.Decision
)

const (
	FlagInCombat         = snapshot.FlagInCombat
	FlagHasTarget        = snapshot.FlagHasTarget
	FlagInRestrictedArea = snapshot.FlagInRestrictedArea
	FlagCanAct           = snapshot.FlagCanAct
	FlagMoving           = snapshot.FlagMoving
)

const (
	MemberAlive         = targeting.StatusAlive
	MemberInRange       = targeting.StatusInRange
	MemberInLineOfSight = targeting.StatusInLineOfSight
	MemberTargetable    = targeting.StatusTargetable
	MemberSelf          = targeting.StatusSelf
	MemberHardTarget    = targeting.StatusHardTarget
	MemberTank          = targeting.StatusTank
	MemberAlly          = targeting.StatusAlly
)

// Config assembles one engine. Providers must validate; tracked ids fix the
// sentinel-distinguishable key sets for the whole session.
type Config struct {
	Providers contract.Registry
	Publisher logging.Publisher

	TrackedBuffs     []contract.ActionID
	TrackedDebuffs   []contract.ActionID
	TrackedCooldowns []contract.ActionID

	PerAbilityLock    time.Duration
	WeaveSafetyMargin time.Duration

	RosterRefreshInterval  time.Duration
	CompanionWindow        time.Duration
	CompanionOverrideDelta float32

	Clock func() time.Time
}

// Engine is the explicit context object every entry point goes through.
// One producer thread feeds Apply* and Resolve; the telemetry and toggle
// surfaces are safe to touch from other goroutines.
type Engine struct {
	snap       *snapshot.Snapshot
	frameCache *cache.FrameCache
	chains     *chain.Resolver
	targets    *targeting.Engine
	store      *config.Store
	dispatcher *dispatch.Specializer
	counters   *telemetryCounters
	publisher  logging.Publisher
	clock      func() time.Time
}

func NewEngine(cfg Config) (*Engine, error) {
	index, err := cfg.Providers.Index()
	if err != nil {
		return nil, fmt.Errorf("weaveline: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}

	chains, err := chain.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("weaveline: %w", err)
	}
	for _, p := range cfg.Providers {
		for base, steps := range p.Chains {
			if err := chains.Register(base, steps); err != nil {
				return nil, fmt.Errorf("weaveline: provider %q: %w", p.Name, err)
			}
		}
	}

	store, err := config.NewStore()
	if err != nil {
		return nil, fmt.Errorf("weaveline: %w", err)
	}

	snap := snapshot.New(snapshot.Config{
		Buffs:          cfg.TrackedBuffs,
		Debuffs:        cfg.TrackedDebuffs,
		Cooldowns:      cfg.TrackedCooldowns,
		PerAbilityLock: cfg.PerAbilityLock,
		Clock:          clock,
	})
	targets := targeting.New(targeting.Config{
		RefreshInterval:        cfg.RosterRefreshInterval,
		CompanionWindow:        cfg.CompanionWindow,
		CompanionOverrideDelta: cfg.CompanionOverrideDelta,
		Clock:                  clock,
	})
	counters := newTelemetryCounters()
	frameCache := cache.NewFrameCache(clock)

	e := &Engine{
		snap:       snap,
		frameCache: frameCache,
		chains:     chains,
		targets:    targets,
		store:      store,
		counters:   counters,
		publisher:  publisher,
		clock:      clock,
	}
	e.dispatcher = dispatch.New(dispatch.Deps{
		State:          snap,
		Chains:         chains,
		Targets:        targets,
		Providers:      index,
		Config:         store,
		Cache:          frameCache,
		Publisher:      publisher,
		Metrics:        counters,
		PerAbilityLock: cfg.PerAbilityLock,
		SafetyMargin:   cfg.WeaveSafetyMargin,
	})
	return e, nil
}

// Resolve answers one ability press against the current frame. Calling it
// twice with the same frame and input yields identical results.
func (e *Engine) Resolve(action contract.ActionID) Decision {
	d := e.dispatcher.Resolve(action)
	e.counters.RecordResolution()
	if e.counters.DebugEnabled() {
		weaves := make([]uint32, 0, d.WeaveCount)
		for i := 0; i < d.WeaveCount; i++ {
			weaves = append(weaves, uint32(d.Weaves[i]))
		}
		loggingresolution.Resolved(context.Background(), e.publisher, e.snap.Frame(),
			loggingresolution.ResolvedPayload{
				Input:    uint32(action),
				Resolved: uint32(d.Action),
				Target:   uint64(d.Target),
				Weaves:   weaves,
			})
		if d.Target != 0 {
			loggingtargeting.Selected(context.Background(), e.publisher, e.snap.Frame(),
				loggingtargeting.SelectedPayload{
					Ability: uint32(action),
					Target:  uint64(d.Target),
				})
		}
	}
	return d
}

// ApplyStateUpdate publishes one inbound per-tick state push and advances
// the frame-stamp. Producer thread only.
func (e *Engine) ApplyStateUpdate(u StateUpdate) {
	start := e.clock()
	e.snap.Apply(u)
	e.counters.RecordStateUpdate(e.clock().Sub(start))
}

// ApplyRosterUpdate overwrites the party roster from the ~30 ms polling
// feed. Producer thread only.
func (e *Engine) ApplyRosterUpdate(members []MemberUpdate) {
	e.targets.UpdateRoster(members)
	e.counters.RecordRosterUpdate()
}

// ApplyCompanionUpdate refreshes the independently throttled companion
// fallback feed. Safe from its own polling goroutine.
func (e *Engine) ApplyCompanionUpdate(id contract.ActorID, hp float32, valid bool) {
	e.targets.UpdateCompanion(id, hp, valid)
}

// SetToggle flips a user rule toggle and bumps the configuration version.
func (e *Engine) SetToggle(name string, enabled bool) {
	e.store.SetToggle(name, enabled)
}

// SetToggleGate attaches a CEL condition over (role, level) to a toggle.
func (e *Engine) SetToggleGate(name, expr string) error {
	return e.store.SetGate(name, expr)
}

// ConfigVersion reports the current configuration version.
func (e *Engine) ConfigVersion() uint32 { return e.store.Version() }

// Toggles reports the current toggle states for the debug surface.
func (e *Engine) Toggles() map[string]bool { return e.store.Toggles() }

// State exposes the read-only snapshot view rule providers see.
func (e *Engine) State() contract.State { return e.snap }

// Frame reports the current frame-stamp.
func (e *Engine) Frame() uint64 { return e.snap.Frame() }

// TelemetrySnapshot reports the monitoring counters.
func (e *Engine) TelemetrySnapshot() TelemetrySnapshot { return e.counters.Snapshot() }
