// Package config owns the user-facing toggles and the monotonically
// increasing configuration version the caches key their coherence on.
// Toggle gates may carry a CEL expression over static facts (role, level);
// gates are compiled once at registration and evaluated only when the
// dispatcher re-specializes, never on the per-event path.
package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/cel-go/cel"

	"github.com/h1arc/weaveline/internal/cache"
	"github.com/h1arc/weaveline/rules/contract"
)

type toggle struct {
	enabled bool
	expr    string
	program cel.Program
}

// Store is an explicit value, not a global: each engine owns its own, so
// independent engines in one process never share configuration state.
type Store struct {
	mu      sync.Mutex
	toggles map[string]toggle
	env     *cel.Env
	memo    *cache.VersionedCache

	version atomic.Uint32
}

func NewStore() (*Store, error) {
	env, err := cel.NewEnv(
		cel.Variable("role", cel.IntType),
		cel.Variable("level", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("config: build cel environment: %w", err)
	}
	s := &Store{
		toggles: make(map[string]toggle),
		env:     env,
		memo:    cache.NewVersionedCache(0, nil),
	}
	// Zero is reserved for "uninitialized".
	s.version.Store(1)
	return s, nil
}

// Version reports the current configuration version. It never decreases or
// repeats within a session except by uint32 wraparound, which skips zero.
func (s *Store) Version() uint32 { return s.version.Load() }

func (s *Store) bump() {
	if s.version.Add(1) == 0 {
		s.version.Add(1)
	}
}

// SetToggle records a user toggle and bumps the version, invalidating every
// configuration-tagged cache entry lazily.
func (s *Store) SetToggle(name string, enabled bool) {
	if name == "" {
		return
	}
	s.mu.Lock()
	t := s.toggles[name]
	t.enabled = enabled
	s.toggles[name] = t
	s.mu.Unlock()
	s.bump()
}

// SetGate attaches a CEL condition to a toggle. An empty expression clears
// the gate. Compilation failures leave the previous gate in place.
func (s *Store) SetGate(name, expr string) error {
	if name == "" {
		return fmt.Errorf("config: gate needs a toggle name")
	}
	var program cel.Program
	if expr != "" {
		ast, issues := s.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("config: compile gate %q: %w", name, issues.Err())
		}
		var err error
		program, err = s.env.Program(ast)
		if err != nil {
			return fmt.Errorf("config: program gate %q: %w", name, err)
		}
	}
	s.mu.Lock()
	t, ok := s.toggles[name]
	if !ok {
		t.enabled = true
	}
	t.expr = expr
	t.program = program
	s.toggles[name] = t
	s.mu.Unlock()
	s.bump()
	return nil
}

// Enabled reports whether the named toggle applies for the given role and
// level. Unknown names default to enabled, so rules without a toggle are
// always live. Gate evaluations are memoized per (name, role, level) in the
// version-tagged cache; bumping the version discards them.
func (s *Store) Enabled(name string, role contract.RoleID, level uint8) bool {
	if name == "" {
		return true
	}
	version := s.Version()
	key := memoKey(name, role, level)

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.memo.Lookup(key, version); ok {
		return v != 0
	}

	t, known := s.toggles[name]
	result := true
	switch {
	case known && !t.enabled:
		result = false
	case known && t.program != nil:
		out, _, err := t.program.Eval(map[string]any{
			"role":  int64(role),
			"level": int64(level),
		})
		if err != nil {
			// A broken gate fails closed: the rule stays off, which is
			// the safe degraded behavior in this domain.
			result = false
		} else {
			b, ok := out.Value().(bool)
			result = ok && b
		}
	}

	var encoded uint32
	if result {
		encoded = 1
	}
	s.memo.Insert(key, encoded, version)
	return result
}

// Toggles returns a copy of the current toggle states for the debug
// surface.
func (s *Store) Toggles() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.toggles))
	for name, t := range s.toggles {
		out[name] = t.enabled
	}
	return out
}

// memoKey mixes the toggle name with the static facts. FNV-1a over the
// name, then role and level folded into the high bits.
func memoKey(name string, role contract.RoleID, level uint8) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return h ^ uint32(role)<<24 ^ uint32(level)<<16
}
