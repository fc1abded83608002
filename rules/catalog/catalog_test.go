package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h1arc/weaveline/rules/contract"
)

func testRegistry() contract.Registry {
	return contract.Registry{{
		Name: "mender",
		Role: 40,
		Weaves: []contract.WeaveRule{
			{Name: "lucid", Ready: func(contract.State) bool { return true }, Action: func(contract.State) contract.ActionID { return 200 }},
			{Name: "swift", Ready: func(contract.State) bool { return true }, Action: func(contract.State) contract.ActionID { return 201 }},
		},
	}}
}

func TestResolverLoadsEntries(t *testing.T) {
	doc := []byte(`[
		{"id": "mender.lucid", "provider": "mender", "rule": "lucid", "toggle": "mender.lucid", "when": "level >= 24", "title": "Lucid weave"},
		{"id": "mender.swift", "provider": "mender", "rule": "swift", "toggle": "mender.swift", "enabled": false}
	]`)

	r, err := NewResolver(testRegistry(), MemorySource("test", doc))
	require.NoError(t, err)

	entry, ok := r.Resolve("mender.lucid")
	require.True(t, ok)
	assert.Equal(t, "mender", entry.Provider)
	assert.Equal(t, "lucid", entry.Rule)
	assert.Equal(t, "mender.lucid", entry.Toggle)
	assert.True(t, entry.Enabled, "enabled defaults to true")
	assert.Equal(t, "level >= 24", entry.When)
	assert.Equal(t, "Lucid weave", entry.Title)

	entry, ok = r.Resolve("mender.swift")
	require.True(t, ok)
	assert.False(t, entry.Enabled)

	assert.Len(t, r.Entries(), 2)
}

func TestResolverRejectsUnknownProvider(t *testing.T) {
	doc := []byte(`[{"id": "x", "provider": "nobody", "toggle": "x"}]`)
	_, err := NewResolver(testRegistry(), MemorySource("test", doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestResolverRejectsUnknownWeaveRule(t *testing.T) {
	doc := []byte(`[{"id": "x", "provider": "mender", "rule": "missing", "toggle": "x"}]`)
	_, err := NewResolver(testRegistry(), MemorySource("test", doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown weave rule")
}

func TestResolverRejectsMissingFields(t *testing.T) {
	for name, doc := range map[string][]byte{
		"missing id":       []byte(`[{"provider": "mender", "toggle": "x"}]`),
		"missing provider": []byte(`[{"id": "x", "toggle": "x"}]`),
		"missing toggle":   []byte(`[{"id": "x", "provider": "mender"}]`),
	} {
		_, err := NewResolver(testRegistry(), MemorySource("test", doc))
		assert.Error(t, err, name)
	}
}

func TestResolverRejectsDuplicateIDsWithinSource(t *testing.T) {
	doc := []byte(`[
		{"id": "x", "provider": "mender", "toggle": "a"},
		{"id": "x", "provider": "mender", "toggle": "b"}
	]`)
	_, err := NewResolver(testRegistry(), MemorySource("test", doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestLaterSourcesOverrideEarlier(t *testing.T) {
	base := []byte(`[{"id": "mender.lucid", "provider": "mender", "toggle": "mender.lucid", "enabled": true}]`)
	overlay := []byte(`[{"id": "mender.lucid", "provider": "mender", "toggle": "mender.lucid", "enabled": false}]`)

	r, err := NewResolver(testRegistry(), MemorySource("base", base), MemorySource("overlay", overlay))
	require.NoError(t, err)

	entry, ok := r.Resolve("mender.lucid")
	require.True(t, ok)
	assert.False(t, entry.Enabled, "overlay must win")
}

func TestEmptyAndMissingSourcesAreSkipped(t *testing.T) {
	r, err := NewResolver(testRegistry(),
		MemorySource("empty", nil),
		fileSource{path: "testdata/does-not-exist.json"})
	require.NoError(t, err)
	assert.Empty(t, r.Entries())
}

func TestReloadPicksUpNewEntries(t *testing.T) {
	src := &swappableSource{data: []byte(`[]`)}
	r, err := NewResolver(testRegistry(), src)
	require.NoError(t, err)
	assert.Empty(t, r.Entries())

	src.data = []byte(`[{"id": "mender.lucid", "provider": "mender", "toggle": "mender.lucid"}]`)
	require.NoError(t, r.Reload())
	assert.Len(t, r.Entries(), 1)
}

func TestResolverRejectsInvalidRegistry(t *testing.T) {
	bad := contract.Registry{{Name: "mender"}} // missing role
	_, err := NewResolver(bad, MemorySource("test", []byte(`[]`)))
	require.Error(t, err)
}

type swappableSource struct {
	data []byte
}

func (s *swappableSource) Load() ([]byte, error) { return s.data, nil }
func (s *swappableSource) Path() string          { return "swappable" }
