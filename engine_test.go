package weaveline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h1arc/weaveline/rules/catalog"
	"github.com/h1arc/weaveline/rules/contract"
)

const (
	roleMender contract.RoleID = 40

	actionCure    contract.ActionID = 100
	actionCureII  contract.ActionID = 101
	actionCureIII contract.ActionID = 102
	actionBuff    contract.ActionID = 155
	actionLucid   contract.ActionID = 200
	actionSwift   contract.ActionID = 201
)

func menderProvider() contract.Provider {
	return contract.Provider{
		Name: "mender",
		Role: roleMender,
		Chains: map[contract.ActionID][]contract.ChainStep{
			actionCure: {
				{MinLevel: 1, ID: actionCure},
				{MinLevel: 30, ID: actionCureII},
			},
		},
		Rewrites: []contract.RewriteRule{
			{Base: actionCure, Replace: func(s contract.State) (contract.ActionID, bool) {
				return actionCureIII, s.Remaining(contract.TrackerBuffs, actionBuff) > 0
			}},
		},
		Weaves: []contract.WeaveRule{
			{
				Name:     "lucid",
				Toggle:   "mender.lucid",
				Priority: 20,
				Ready:    func(contract.State) bool { return true },
				Action:   func(contract.State) contract.ActionID { return actionLucid },
			},
			{
				Name:     "swift",
				Toggle:   "mender.swift",
				Priority: 10,
				Ready:    func(contract.State) bool { return true },
				Action:   func(contract.State) contract.ActionID { return actionSwift },
			},
		},
		Heals: []contract.HealSpec{
			{Action: actionCure, Threshold: 0.95},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *time.Time) {
	t.Helper()
	now := time.Unix(1000, 0)
	e, err := NewEngine(Config{
		Providers:    contract.Registry{menderProvider()},
		TrackedBuffs: []contract.ActionID{actionBuff},
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return e, &now
}

func TestEngineResolvesThroughChainAndRewrite(t *testing.T) {
	e, _ := newTestEngine(t)

	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})
	d := e.Resolve(actionCure)
	assert.Equal(t, actionCureII, d.Action)

	e.ApplyStateUpdate(StateUpdate{
		Role:  roleMender,
		Level: 50,
		Durations: []DurationUpdate{
			{Tracker: contract.TrackerBuffs, ID: actionBuff, Remaining: 5 * time.Second},
		},
	})
	d = e.Resolve(actionCure)
	assert.Equal(t, actionCureIII, d.Action, "rewrite wins while the buff is up")
}

func TestEngineResolveIdempotentWithinFrame(t *testing.T) {
	e, _ := newTestEngine(t)
	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})

	first := e.Resolve(actionCure)
	second := e.Resolve(actionCure)
	assert.Equal(t, first, second)

	snap := e.TelemetrySnapshot()
	assert.EqualValues(t, 2, snap.Resolutions)
	assert.EqualValues(t, 1, snap.FrameCacheHits)
	assert.EqualValues(t, 1, snap.FrameCacheMisses)
}

func TestEngineHealTargeting(t *testing.T) {
	e, _ := newTestEngine(t)
	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})

	member := MemberAlive | MemberInRange | MemberInLineOfSight | MemberTargetable | MemberAlly
	e.ApplyRosterUpdate([]MemberUpdate{
		{ID: 1, HP: 1, Flags: member | MemberSelf},
		{ID: 2, HP: 0.4, Flags: member},
	})

	d := e.Resolve(actionCure)
	assert.EqualValues(t, 2, d.Target)
}

func TestEngineCompanionFallback(t *testing.T) {
	e, now := newTestEngine(t)
	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})

	member := MemberAlive | MemberInRange | MemberInLineOfSight | MemberTargetable | MemberAlly
	e.ApplyRosterUpdate([]MemberUpdate{
		{ID: 1, HP: 1, Flags: member | MemberSelf},
	})
	e.ApplyCompanionUpdate(50, 0.3, true)

	d := e.Resolve(actionCure)
	assert.EqualValues(t, 50, d.Target)

	// Same press a frame later with stale companion data falls back to self.
	*now = now.Add(time.Second)
	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})
	d = e.Resolve(actionCure)
	assert.EqualValues(t, 1, d.Target)
}

func TestEngineToggleInvalidatesSpecialization(t *testing.T) {
	e, _ := newTestEngine(t)
	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})

	d := e.Resolve(actionCure)
	require.Equal(t, 2, d.WeaveCount)
	assert.Equal(t, actionLucid, d.Weaves[0])

	version := e.ConfigVersion()
	e.SetToggle("mender.lucid", false)
	assert.Greater(t, e.ConfigVersion(), version)

	d = e.Resolve(actionCure)
	require.Equal(t, 1, d.WeaveCount)
	assert.Equal(t, actionSwift, d.Weaves[0])
}

func TestEngineToggleGate(t *testing.T) {
	e, _ := newTestEngine(t)
	require.NoError(t, e.SetToggleGate("mender.lucid", "level >= 70"))

	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})
	d := e.Resolve(actionCure)
	require.Equal(t, 1, d.WeaveCount, "gated rule must be excluded below level 70")
	assert.Equal(t, actionSwift, d.Weaves[0])

	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 80})
	// The gate was evaluated at specialization; a level change alone does
	// not bump the version, so force a rebuild the way a host would.
	e.SetToggle("mender.swift", true)
	d = e.Resolve(actionCure)
	assert.Equal(t, 2, d.WeaveCount)
}

func TestEngineLoadCatalog(t *testing.T) {
	e, _ := newTestEngine(t)

	doc := []byte(`[
		{"id": "mender.lucid", "provider": "mender", "rule": "lucid", "toggle": "mender.lucid", "enabled": false},
		{"id": "mender.swift", "provider": "mender", "rule": "swift", "toggle": "mender.swift", "when": "level >= 18"}
	]`)
	resolver, err := catalog.NewResolver(contract.Registry{menderProvider()}, catalog.MemorySource("test", doc))
	require.NoError(t, err)
	require.NoError(t, e.LoadCatalog(resolver.Entries()))

	toggles := e.Toggles()
	assert.False(t, toggles["mender.lucid"])
	assert.True(t, toggles["mender.swift"])

	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50})
	d := e.Resolve(actionCure)
	require.Equal(t, 1, d.WeaveCount)
	assert.Equal(t, actionSwift, d.Weaves[0])
}

func TestEngineWeaveWindow(t *testing.T) {
	e, _ := newTestEngine(t)

	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50, Lock: 800 * time.Millisecond})
	d := e.Resolve(actionCure)
	assert.Equal(t, 1, d.WeaveCount)

	e.ApplyStateUpdate(StateUpdate{Role: roleMender, Level: 50, Lock: 500 * time.Millisecond})
	d = e.Resolve(actionCure)
	assert.Equal(t, 0, d.WeaveCount)
}

func TestEngineFrameAdvances(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.EqualValues(t, 0, e.Frame())
	e.ApplyStateUpdate(StateUpdate{Role: roleMender})
	e.ApplyStateUpdate(StateUpdate{Role: roleMender})
	assert.EqualValues(t, 2, e.Frame())
}

func TestEngineRejectsInvalidProviders(t *testing.T) {
	_, err := NewEngine(Config{
		Providers: contract.Registry{{Name: "broken"}},
	})
	require.Error(t, err)
}

func TestEngineTelemetryCountsUpdates(t *testing.T) {
	e, _ := newTestEngine(t)
	e.ApplyStateUpdate(StateUpdate{Role: roleMender})
	e.ApplyRosterUpdate(nil)
	e.ApplyRosterUpdate(nil)

	snap := e.TelemetrySnapshot()
	assert.EqualValues(t, 1, snap.StateUpdates)
	assert.EqualValues(t, 2, snap.RosterUpdates)
}
