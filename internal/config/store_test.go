package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore()
	require.NoError(t, err)
	return s
}

func TestUnknownToggleDefaultsEnabled(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, s.Enabled("never.registered", 1, 50))
	assert.True(t, s.Enabled("", 1, 50))
}

func TestSetToggleBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	before := s.Version()
	require.EqualValues(t, 1, before)

	s.SetToggle("mender.lucid", false)
	assert.Greater(t, s.Version(), before)
	assert.False(t, s.Enabled("mender.lucid", 1, 50))

	s.SetToggle("mender.lucid", true)
	assert.True(t, s.Enabled("mender.lucid", 1, 50))
}

func TestGateEvaluatesRoleAndLevel(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetGate("mender.lucid", "level >= 24 && role == 40"))

	assert.True(t, s.Enabled("mender.lucid", 40, 30))
	assert.False(t, s.Enabled("mender.lucid", 40, 20))
	assert.False(t, s.Enabled("mender.lucid", 7, 30))
}

func TestDisabledToggleWinsOverGate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetGate("mender.lucid", "level >= 1"))
	s.SetToggle("mender.lucid", false)
	assert.False(t, s.Enabled("mender.lucid", 40, 90))
}

func TestGateCompileFailureKeepsPreviousGate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetGate("mender.lucid", "level >= 24"))
	version := s.Version()

	err := s.SetGate("mender.lucid", "level >>> nonsense")
	require.Error(t, err)
	assert.Equal(t, version, s.Version(), "failed compile must not bump the version")
	assert.True(t, s.Enabled("mender.lucid", 40, 30))
	assert.False(t, s.Enabled("mender.lucid", 40, 10))
}

func TestClearingGateLeavesToggleState(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetGate("mender.lucid", "level >= 90"))
	assert.False(t, s.Enabled("mender.lucid", 40, 50))

	require.NoError(t, s.SetGate("mender.lucid", ""))
	assert.True(t, s.Enabled("mender.lucid", 40, 50))
}

func TestGateMemoizedUntilVersionBump(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetGate("mender.lucid", "level >= 24"))

	// Prime the memo, then mutate the toggle map behind the version's back.
	assert.True(t, s.Enabled("mender.lucid", 40, 30))
	s.mu.Lock()
	tg := s.toggles["mender.lucid"]
	tg.enabled = false
	s.toggles["mender.lucid"] = tg
	s.mu.Unlock()

	assert.True(t, s.Enabled("mender.lucid", 40, 30), "memo must serve the cached value")
	s.bump()
	assert.False(t, s.Enabled("mender.lucid", 40, 30), "bump must discard the memo")
}

func TestTogglesSnapshotCopies(t *testing.T) {
	s := newTestStore(t)
	s.SetToggle("a", true)
	s.SetToggle("b", false)

	snap := s.Toggles()
	assert.Equal(t, map[string]bool{"a": true, "b": false}, snap)

	snap["a"] = false
	assert.True(t, s.Enabled("a", 1, 1), "mutating the copy must not affect the store")
}

func TestVersionWrapSkipsZero(t *testing.T) {
	s := newTestStore(t)
	s.version.Store(^uint32(0))
	s.bump()
	assert.EqualValues(t, 1, s.Version())
}
