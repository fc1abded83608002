package chain

import (
	"testing"

	"github.com/h1arc/weaveline/rules/contract"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(map[contract.ActionID][]contract.ChainStep{
		100: {
			{MinLevel: 1, ID: 100},
			{MinLevel: 30, ID: 101},
			{MinLevel: 60, ID: 102},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestResolvePicksHighestUnlockedTier(t *testing.T) {
	r := testResolver(t)
	cases := []struct {
		level uint8
		want  contract.ActionID
	}{
		{0, 100}, // below the first gate the base passes through
		{1, 100},
		{29, 100},
		{30, 101},
		{59, 101},
		{60, 102},
		{90, 102},
	}
	for _, tc := range cases {
		if got := r.Resolve(100, tc.level); got != tc.want {
			t.Fatalf("level %d: expected %d, got %d", tc.level, tc.want, got)
		}
	}
}

func TestResolveMonotonicInLevel(t *testing.T) {
	r := testResolver(t)
	indexOf := func(id contract.ActionID) int {
		order := []contract.ActionID{100, 101, 102}
		for i, candidate := range order {
			if candidate == id {
				return i
			}
		}
		t.Fatalf("resolved id %d not in chain", id)
		return -1
	}
	prev := -1
	for level := uint8(0); level < 100; level++ {
		idx := indexOf(r.Resolve(100, level))
		if idx < prev {
			t.Fatalf("resolution regressed at level %d", level)
		}
		prev = idx
	}
}

func TestResolveResultAlwaysInChain(t *testing.T) {
	r := testResolver(t)
	for level := uint8(0); level < 100; level++ {
		got := r.Resolve(100, level)
		if !r.ChainContains(got, 100) {
			t.Fatalf("level %d resolved to %d which is not a chain member", level, got)
		}
	}
}

func TestUnknownActionPassesThrough(t *testing.T) {
	r := testResolver(t)
	if got := r.Resolve(555, 80); got != 555 {
		t.Fatalf("expected pass-through for unknown action, got %d", got)
	}
}

func TestChainContains(t *testing.T) {
	r := testResolver(t)
	for _, id := range []contract.ActionID{100, 101, 102} {
		if !r.ChainContains(id, 100) {
			t.Fatalf("expected %d to be a chain member", id)
		}
	}
	if r.ChainContains(999, 100) {
		t.Fatalf("did not expect 999 in the chain")
	}
	// Unregistered bases still contain themselves.
	if !r.ChainContains(555, 555) {
		t.Fatalf("expected base to contain itself")
	}
}

func TestRegisterRejectsMalformedChains(t *testing.T) {
	if _, err := NewResolver(map[contract.ActionID][]contract.ChainStep{
		100: {{MinLevel: 30, ID: 101}, {MinLevel: 1, ID: 100}},
	}); err == nil {
		t.Fatalf("expected error for unsorted chain")
	}
	if _, err := NewResolver(map[contract.ActionID][]contract.ChainStep{
		100: {{MinLevel: 1, ID: 101}, {MinLevel: 30, ID: 101}},
	}); err == nil {
		t.Fatalf("expected error for duplicate ability id")
	}
	if _, err := NewResolver(map[contract.ActionID][]contract.ChainStep{
		100: {{MinLevel: 1, ID: 0}},
	}); err == nil {
		t.Fatalf("expected error for zero ability id")
	}
}
