package contract

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxWeaveRules bounds the weave rule table a provider may declare.
	// Counts are clamped here, at registration, so the evaluator never has
	// to bounds-check on the hot path.
	MaxWeaveRules = 8

	// MaxRewriteRules bounds the primary rewrite table per provider.
	MaxRewriteRules = 16
)

var (
	errEmptyProviderName = errors.New("provider name must not be empty")
	errZeroRole          = errors.New("provider role id must not be zero")
	errNilPredicate      = errors.New("weave rule predicate must not be nil")
	errNilProducer       = errors.New("weave rule producer must not be nil")
	errNilRewrite        = errors.New("rewrite func must not be nil")
	errZeroBase          = errors.New("rewrite base action must not be zero")
	errUnsortedChain     = errors.New("chain steps must be sorted ascending by level")
)

// ChainStep pairs a minimum level with the ability unlocked at that level.
type ChainStep struct {
	MinLevel uint8
	ID       ActionID
}

// RewriteRule replaces a pressed base action with a situational alternative.
// Replace inspects the current state and reports the replacement together
// with whether it applies; a false return leaves the base action (or its
// upgrade-chain resolution) in effect. Replace must be pure: it can run
// more than once per tick.
type RewriteRule struct {
	Base    ActionID
	Replace func(State) (ActionID, bool)
}

// WeaveRule describes one secondary ability candidate. Ready and Action must
// be pure for the same reason as RewriteRule. Higher Priority values win;
// ties keep declaration order. Toggle, when non-empty, names the user
// setting that enables the rule.
type WeaveRule struct {
	Name     string
	Toggle   string
	Priority uint8
	Ready    func(State) bool
	Action   func(State) ActionID
}

// HealSpec marks an action as target-sensitive: resolving it also resolves a
// recipient from the party roster, using Threshold as the HP fraction below
// which a member counts as needing the heal.
type HealSpec struct {
	Action    ActionID
	Threshold float32
}

// Provider is one statically registered rule set for a role. Providers are
// registered once at session start; there is no runtime discovery.
type Provider struct {
	Name     string
	Role     RoleID
	Chains   map[ActionID][]ChainStep
	Rewrites []RewriteRule
	Weaves   []WeaveRule
	Heals    []HealSpec
}

// Registry is a collection of providers. Callers should Validate before use.
type Registry []Provider

// Validate ensures every provider is structurally sound: named, bound to a
// role, chains pre-sorted without duplicate ability ids, and rule tables
// within their fixed maxima.
func (r Registry) Validate() error {
	seen := make(map[string]struct{}, len(r))
	for _, p := range r {
		if err := p.validate(); err != nil {
			return fmt.Errorf("contract: provider %q: %w", p.Name, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("contract: duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func (p Provider) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errEmptyProviderName
	}
	if p.Role == 0 {
		return errZeroRole
	}
	if len(p.Rewrites) > MaxRewriteRules {
		return fmt.Errorf("%d rewrite rules exceeds maximum %d", len(p.Rewrites), MaxRewriteRules)
	}
	if len(p.Weaves) > MaxWeaveRules {
		return fmt.Errorf("%d weave rules exceeds maximum %d", len(p.Weaves), MaxWeaveRules)
	}
	for base, steps := range p.Chains {
		if base == 0 {
			return errZeroBase
		}
		if err := validateChain(steps); err != nil {
			return fmt.Errorf("chain for action %d: %w", base, err)
		}
	}
	for i, rw := range p.Rewrites {
		if rw.Base == 0 {
			return fmt.Errorf("rewrite %d: %w", i, errZeroBase)
		}
		if rw.Replace == nil {
			return fmt.Errorf("rewrite %d: %w", i, errNilRewrite)
		}
	}
	for i, wr := range p.Weaves {
		if wr.Ready == nil {
			return fmt.Errorf("weave %d (%s): %w", i, wr.Name, errNilPredicate)
		}
		if wr.Action == nil {
			return fmt.Errorf("weave %d (%s): %w", i, wr.Name, errNilProducer)
		}
	}
	for i, h := range p.Heals {
		if h.Action == 0 {
			return fmt.Errorf("heal %d: action must not be zero", i)
		}
		if h.Threshold <= 0 || h.Threshold > 1 {
			return fmt.Errorf("heal %d: threshold %.2f outside (0,1]", i, h.Threshold)
		}
	}
	return nil
}

func validateChain(steps []ChainStep) error {
	seen := make(map[ActionID]struct{}, len(steps))
	for i, step := range steps {
		if step.ID == 0 {
			return fmt.Errorf("step %d: ability id must not be zero", i)
		}
		if i > 0 && steps[i-1].MinLevel > step.MinLevel {
			return errUnsortedChain
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("step %d: duplicate ability id %d", i, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// Index groups validated providers by role, preserving registration order
// within a role.
func (r Registry) Index() (map[RoleID][]Provider, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	out := make(map[RoleID][]Provider, len(r))
	for _, p := range r {
		out[p.Role] = append(out[p.Role], p)
	}
	return out, nil
}

// MustIndex materialises the registry and panics on validation failure.
// Useful for tests and static registration blocks.
func (r Registry) MustIndex() map[RoleID][]Provider {
	index, err := r.Index()
	if err != nil {
		panic(err)
	}
	return index
}
