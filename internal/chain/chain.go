// Package chain resolves a base ability to its highest tier unlocked at the
// current level. Chains are immutable after construction and resolution is
// a pure, allocation-free scan.
package chain

import (
	"fmt"

	"github.com/h1arc/weaveline/rules/contract"
)

// Resolver maps base abilities to their ascending (minLevel, id) chains.
type Resolver struct {
	chains map[contract.ActionID][]contract.ChainStep
}

// NewResolver copies and validates the provided chains: steps must be
// sorted ascending by minimum level and no ability id may appear twice in
// one chain.
func NewResolver(chains map[contract.ActionID][]contract.ChainStep) (*Resolver, error) {
	r := &Resolver{chains: make(map[contract.ActionID][]contract.ChainStep, len(chains))}
	for base, steps := range chains {
		if err := r.Register(base, steps); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds one chain. Later registrations for the same base replace
// earlier ones; providers are validated upstream so collisions only happen
// deliberately (tests, overlays).
func (r *Resolver) Register(base contract.ActionID, steps []contract.ChainStep) error {
	if base == 0 {
		return fmt.Errorf("chain: base action must not be zero")
	}
	seen := make(map[contract.ActionID]struct{}, len(steps))
	for i, step := range steps {
		if step.ID == 0 {
			return fmt.Errorf("chain %d: step %d has zero ability id", base, i)
		}
		if i > 0 && steps[i-1].MinLevel > step.MinLevel {
			return fmt.Errorf("chain %d: steps not sorted ascending by level", base)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("chain %d: duplicate ability id %d", base, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	r.chains[base] = append([]contract.ChainStep(nil), steps...)
	return nil
}

// Resolve returns the highest chain entry whose minimum level is at or
// below level. Abilities without a chain pass through unchanged, so
// unknown input ids are never an error and the result is never zero for a
// nonzero input.
func (r *Resolver) Resolve(base contract.ActionID, level uint8) contract.ActionID {
	steps, ok := r.chains[base]
	if !ok || len(steps) == 0 {
		return base
	}
	resolved := base
	for _, step := range steps {
		if step.MinLevel > level {
			break
		}
		resolved = step.ID
	}
	return resolved
}

// ChainContains reports whether id appears in the chain registered for
// base. The base action itself always counts as a member.
func (r *Resolver) ChainContains(id, base contract.ActionID) bool {
	if id == base {
		return true
	}
	for _, step := range r.chains[base] {
		if step.ID == id {
			return true
		}
	}
	return false
}

// Len reports the number of registered chains.
func (r *Resolver) Len() int { return len(r.chains) }
