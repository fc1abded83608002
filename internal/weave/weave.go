// Package weave decides how many secondary abilities fit in the remaining
// primary lock window and which candidates win the available slots.
package weave

import (
	"time"

	"github.com/h1arc/weaveline/rules/contract"
)

// Rule is one bound secondary-ability candidate. Gate and Produce are
// no-argument funcs prepared at specialization time so the per-event scan
// does not allocate. Higher Priority values win; ties keep table order.
type Rule struct {
	Priority uint8
	Gate     func() bool
	Produce  func() contract.ActionID
}

// ComputeSlots models the lock window: each secondary ability consumes one
// per-ability lock, and queuing must leave enough of the primary recharge
// window to avoid clipping the next primary press.
//
//	lockRemaining <= 0                      -> 2 (between primaries, always safe)
//	lockRemaining <  perLock + margin       -> 0
//	lockRemaining >= 2*perLock + margin     -> 2
//	otherwise                               -> 1
func ComputeSlots(lockRemaining, perAbilityLock, safetyMargin time.Duration) int {
	if lockRemaining <= 0 {
		return 2
	}
	if lockRemaining < perAbilityLock+safetyMargin {
		return 0
	}
	if lockRemaining >= 2*perAbilityLock+safetyMargin {
		return 2
	}
	return 1
}

// SelectTop2 finds up to maxSlots winners in a single linear pass, tracking
// the best and second-best passing rule by priority instead of sorting.
// Producers run only for winners, top first, so losing rules never pay
// their production cost. The winner count is returned; out holds the
// produced ability ids in priority order.
func SelectTop2(rules []Rule, maxSlots int, out *[2]contract.ActionID) int {
	if maxSlots <= 0 || len(rules) == 0 {
		return 0
	}
	if maxSlots > 2 {
		maxSlots = 2
	}

	top, second := -1, -1
	var topPriority, secondPriority uint8
	for i := range rules {
		r := &rules[i]
		if r.Gate == nil || r.Produce == nil || !r.Gate() {
			continue
		}
		switch {
		case top < 0:
			top, topPriority = i, r.Priority
		case r.Priority > topPriority:
			second, secondPriority = top, topPriority
			top, topPriority = i, r.Priority
		case second < 0 || r.Priority > secondPriority:
			second, secondPriority = i, r.Priority
		}
	}

	n := 0
	if top >= 0 {
		if id := rules[top].Produce(); id != 0 {
			out[n] = id
			n++
		}
	}
	if maxSlots >= 2 && second >= 0 {
		if id := rules[second].Produce(); id != 0 {
			out[n] = id
			n++
		}
	}
	return n
}
