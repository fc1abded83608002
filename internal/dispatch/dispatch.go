// Package dispatch compiles the decision path for the current (role,
// configuration version) pair into one specialized function and rebuilds it
// only when that pair changes. The specialized function is owned by the
// Specializer; it is never shared between engines.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/h1arc/weaveline/internal/cache"
	"github.com/h1arc/weaveline/internal/chain"
	"github.com/h1arc/weaveline/internal/config"
	"github.com/h1arc/weaveline/internal/targeting"
	"github.com/h1arc/weaveline/internal/weave"
	"github.com/h1arc/weaveline/logging"
	loggingproviders "github.com/h1arc/weaveline/logging/providers"
	loggingresolution "github.com/h1arc/weaveline/logging/resolution"
	"github.com/h1arc/weaveline/rules/contract"
)

// Decision is the outbound result for one ability press: the action to
// execute, an optional recipient, and zero to two secondary suggestions.
type Decision struct {
	Action     contract.ActionID
	Target     contract.ActorID
	Weaves     [2]contract.ActionID
	WeaveCount int
}

// Metrics is the telemetry surface the dispatcher feeds. Implemented by the
// engine's counters; never consulted for decisions.
type Metrics interface {
	RecordFrameCache(hit bool)
	RecordRebuild()
	RecordProviderFault()
	RecordWeaves(n int)
}

type nopMetrics struct{}

func (nopMetrics) RecordFrameCache(bool)  {}
func (nopMetrics) RecordRebuild()         {}
func (nopMetrics) RecordProviderFault()   {}
func (nopMetrics) RecordWeaves(int)       {}

// Deps wires the dispatcher to the rest of the engine. Everything is an
// explicit value so multiple independent engines can coexist in one
// process.
type Deps struct {
	State     contract.State
	Chains    *chain.Resolver
	Targets   *targeting.Engine
	Providers map[contract.RoleID][]contract.Provider
	Config    *config.Store
	Cache     *cache.FrameCache
	Publisher logging.Publisher
	Metrics   Metrics

	PerAbilityLock time.Duration
	SafetyMargin   time.Duration
}

// DefaultSafetyMargin pads the weave window so a queued secondary never
// clips the next primary press.
const DefaultSafetyMargin = 50 * time.Millisecond

type resolveFunc func(contract.ActionID) Decision

// Specializer is a two-state machine: stale (no function, or one built for
// a different key) and specialized. The transition happens lazily on the
// first resolution request with a mismatched key.
type Specializer struct {
	deps Deps

	role    contract.RoleID
	version uint32
	fn      resolveFunc

	// rules keeps the bound weave table alive between calls so the hot
	// path never rebuilds closures.
	rules []weave.Rule
}

func New(deps Deps) *Specializer {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.PerAbilityLock <= 0 {
		deps.PerAbilityLock = 700 * time.Millisecond
	}
	if deps.SafetyMargin <= 0 {
		deps.SafetyMargin = DefaultSafetyMargin
	}
	return &Specializer{deps: deps}
}

// Resolve answers one ability press. A provider panic during evaluation is
// recovered here, published, and downgrades the current key to a
// pass-through so one malformed provider cannot break resolution for the
// rest of the session.
func (s *Specializer) Resolve(action contract.ActionID) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			s.degrade(loggingproviders.StageEvaluate, r)
			d = Decision{Action: action}
		}
	}()

	role := s.deps.State.Role()
	version := s.deps.Config.Version()
	if s.fn == nil || role != s.role || version != s.version {
		s.specialize(role, version)
	}
	return s.fn(action)
}

// Key reports the (role, version) pair the current specialization was built
// for.
func (s *Specializer) Key() (contract.RoleID, uint32) { return s.role, s.version }

// Invalidate forces the next Resolve to re-specialize.
func (s *Specializer) Invalidate() { s.fn = nil }

func (s *Specializer) specialize(role contract.RoleID, version uint32) {
	s.role = role
	s.version = version
	s.deps.Metrics.RecordRebuild()

	defer func() {
		if r := recover(); r != nil {
			s.degrade(loggingproviders.StageSpecialize, r)
		}
	}()

	providers := s.deps.Providers[role]
	if len(providers) == 0 {
		s.fn = s.identity()
		s.rules = nil
		return
	}

	rewrites := make(map[contract.ActionID][]func(contract.State) (contract.ActionID, bool))
	heals := make(map[contract.ActionID]float32)
	level := s.deps.State.Level()

	s.rules = s.rules[:0]
	for _, p := range providers {
		for _, rw := range p.Rewrites {
			rewrites[rw.Base] = append(rewrites[rw.Base], rw.Replace)
		}
		for _, h := range p.Heals {
			if _, taken := heals[h.Action]; !taken {
				heals[h.Action] = h.Threshold
			}
		}
		for _, wr := range p.Weaves {
			if len(s.rules) == contract.MaxWeaveRules {
				break
			}
			if !s.deps.Config.Enabled(wr.Toggle, role, level) {
				continue
			}
			ready, produce := wr.Ready, wr.Action
			s.rules = append(s.rules, weave.Rule{
				Priority: wr.Priority,
				Gate:     func() bool { return ready(s.deps.State) },
				Produce:  func() contract.ActionID { return produce(s.deps.State) },
			})
		}
	}

	s.fn = s.specialized(rewrites, heals, len(s.rules) > 0)

	loggingresolution.Specialized(context.Background(), s.deps.Publisher, s.deps.State.Frame(),
		loggingresolution.SpecializedPayload{
			Role:    uint8(role),
			Version: version,
			Rules:   len(s.rules),
		})
}

// specialized builds the flat hot path: target override, primary rewrite or
// chain upgrade (memoized per frame), then the weave window when the press
// was not redirected away from its own chain.
func (s *Specializer) specialized(
	rewrites map[contract.ActionID][]func(contract.State) (contract.ActionID, bool),
	heals map[contract.ActionID]float32,
	weaving bool,
) resolveFunc {
	deps := s.deps
	return func(action contract.ActionID) Decision {
		d := Decision{Action: action}
		st := deps.State

		if threshold, ok := heals[action]; ok {
			d.Target = deps.Targets.SelectHealTarget(threshold)
		}

		frame := st.Frame()
		if resolved, ok := deps.Cache.Lookup(action, frame); ok {
			deps.Metrics.RecordFrameCache(true)
			d.Action = resolved
		} else {
			deps.Metrics.RecordFrameCache(false)
			resolved := action
			for _, replace := range rewrites[action] {
				if id, applies := replace(st); applies && id != 0 {
					resolved = id
					break
				}
			}
			if resolved == action {
				resolved = deps.Chains.Resolve(action, st.Level())
			}
			deps.Cache.Insert(action, resolved, frame)
			d.Action = resolved
		}

		if weaving && (d.Action == action || deps.Chains.ChainContains(d.Action, action)) {
			slots := weave.ComputeSlots(st.LockRemaining(), deps.PerAbilityLock, deps.SafetyMargin)
			if slots > 0 {
				d.WeaveCount = weave.SelectTop2(s.rules, slots, &d.Weaves)
				deps.Metrics.RecordWeaves(d.WeaveCount)
			}
		}
		return d
	}
}

func (s *Specializer) identity() resolveFunc {
	return func(action contract.ActionID) Decision {
		return Decision{Action: action}
	}
}

// degrade downgrades the current key to a pass-through and publishes the
// fault. The degradation holds until the key changes and a fresh
// specialization is attempted.
func (s *Specializer) degrade(stage string, cause any) {
	s.fn = s.identity()
	s.rules = nil
	s.deps.Metrics.RecordProviderFault()
	loggingproviders.Fault(context.Background(), s.deps.Publisher, s.deps.State.Frame(),
		loggingproviders.FaultPayload{
			Role:    uint8(s.role),
			Version: s.version,
			Stage:   stage,
			Panic:   fmt.Sprint(cause),
		})
}
