package app

import (
	"context"
	"math"
	"time"

	weaveline "github.com/h1arc/weaveline"
	"github.com/h1arc/weaveline/rules/contract"
)

// Demo content: a small mender role exercising every decision path without
// a live game client attached. Real deployments register their own
// providers and drive the feeds from the host's pollers.
const (
	demoRoleMender contract.RoleID = 40

	demoActionCure      contract.ActionID = 120
	demoActionCureII    contract.ActionID = 135
	demoActionCureIII   contract.ActionID = 131
	demoActionStone     contract.ActionID = 119
	demoActionStoneII   contract.ActionID = 127
	demoActionLucid     contract.ActionID = 7562
	demoActionSwiftcast contract.ActionID = 7561
	demoBuffFreecure    contract.ActionID = 155
)

const (
	demoToggleLucid = "mender.lucid"
	demoToggleSwift = "mender.swiftcast"
)

func demoRegistry() contract.Registry {
	return contract.Registry{
		{
			Name: "mender",
			Role: demoRoleMender,
			Chains: map[contract.ActionID][]contract.ChainStep{
				demoActionCure: {
					{MinLevel: 2, ID: demoActionCure},
					{MinLevel: 30, ID: demoActionCureII},
				},
				demoActionStone: {
					{MinLevel: 1, ID: demoActionStone},
					{MinLevel: 18, ID: demoActionStoneII},
				},
			},
			Rewrites: []contract.RewriteRule{
				{
					Base: demoActionCureII,
					Replace: func(st contract.State) (contract.ActionID, bool) {
						// A fresh proc makes the big heal free.
						if st.Remaining(contract.TrackerBuffs, demoBuffFreecure) > 0 {
							return demoActionCureIII, true
						}
						return 0, false
					},
				},
			},
			Weaves: []contract.WeaveRule{
				{
					Name:     "lucid",
					Toggle:   demoToggleLucid,
					Priority: 200,
					Ready: func(st contract.State) bool {
						if st.Remaining(contract.TrackerCooldowns, demoActionLucid) != 0 {
							return false
						}
						current, max := st.Resource()
						return max > 0 && current*100 < max*80
					},
					Action: func(contract.State) contract.ActionID { return demoActionLucid },
				},
				{
					Name:     "swiftcast",
					Toggle:   demoToggleSwift,
					Priority: 100,
					Ready: func(st contract.State) bool {
						return st.InCombat() && st.Remaining(contract.TrackerCooldowns, demoActionSwiftcast) == 0
					},
					Action: func(contract.State) contract.ActionID { return demoActionSwiftcast },
				},
			},
			Heals: []contract.HealSpec{
				{Action: demoActionCure, Threshold: 0.95},
				{Action: demoActionCureII, Threshold: 0.95},
			},
		},
	}
}

func demoTrackedBuffs() []contract.ActionID {
	return []contract.ActionID{demoBuffFreecure}
}

func demoTrackedDebuffs() []contract.ActionID {
	return nil
}

func demoTrackedCooldowns() []contract.ActionID {
	return []contract.ActionID{demoActionLucid, demoActionSwiftcast}
}

// runSimulatedFeed stands in for the host's pollers: a state push per tick,
// a roster push every 30 ms, a companion push on a slower cadence, and a
// resolution per tick so the telemetry feed has something to show.
func runSimulatedFeed(ctx context.Context, engine *weaveline.Engine, tickRate int) {
	tickInterval := time.Second / time.Duration(tickRate)
	stateTicker := time.NewTicker(tickInterval)
	rosterTicker := time.NewTicker(30 * time.Millisecond)
	companionTicker := time.NewTicker(200 * time.Millisecond)
	defer stateTicker.Stop()
	defer rosterTicker.Stop()
	defer companionTicker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-stateTicker.C:
			elapsed := now.Sub(start).Seconds()
			lock := time.Duration(0)
			if phase := math.Mod(elapsed, 2.5); phase < 1.6 {
				lock = time.Duration((1.6 - phase) * float64(time.Second))
			}
			engine.ApplyStateUpdate(weaveline.StateUpdate{
				Role:      demoRoleMender,
				Level:     80,
				TargetID:  2001,
				Zone:      128,
				Flags:     weaveline.FlagInCombat | weaveline.FlagHasTarget | weaveline.FlagCanAct,
				Lock:      lock,
				Resource:  int(6000 + 4000*math.Sin(elapsed/7)),
				ResourceM: 10000,
				Durations: []weaveline.DurationUpdate{
					{Tracker: contract.TrackerBuffs, ID: demoBuffFreecure, Remaining: procWindow(elapsed)},
				},
			})
			engine.Resolve(demoActionCure)
		case now := <-rosterTicker.C:
			engine.ApplyRosterUpdate(demoRoster(now.Sub(start).Seconds()))
		case <-companionTicker.C:
			engine.ApplyCompanionUpdate(3001, 0.72, true)
		}
	}
}

func procWindow(elapsed float64) time.Duration {
	// The proc is up for three seconds out of every ten.
	if math.Mod(elapsed, 10) < 3 {
		return 3 * time.Second
	}
	return 0
}

func demoRoster(elapsed float64) []weaveline.MemberUpdate {
	base := weaveline.MemberAlive | weaveline.MemberInRange | weaveline.MemberInLineOfSight |
		weaveline.MemberTargetable | weaveline.MemberAlly
	wave := float32(0.5 + 0.5*math.Sin(elapsed/3))
	return []weaveline.MemberUpdate{
		{ID: 1001, HP: 0.9, Flags: base | weaveline.MemberSelf},
		{ID: 1002, HP: 0.6 + 0.4*wave, Flags: base | weaveline.MemberTank},
		{ID: 1003, HP: 0.8, Flags: base},
		{ID: 1004, HP: 1.0, Flags: base},
	}
}
