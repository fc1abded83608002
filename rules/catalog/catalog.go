// Package catalog loads designer-tunable rule documents from JSON: which
// toggles exist, their default states, and optional CEL gates over static
// facts. Entries are validated against the provider registry so a document
// can never reference a rule that was not statically registered.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h1arc/weaveline/rules/contract"
)

// Source supplies one catalog document. Production uses files; tests use
// in-memory sources.
type Source interface {
	Load() ([]byte, error)
	Path() string
}

type fileSource struct {
	path string
}

func (f fileSource) Load() ([]byte, error) { return os.ReadFile(f.path) }
func (f fileSource) Path() string          { return f.path }

type memorySource struct {
	name string
	data []byte
}

func (m memorySource) Load() ([]byte, error) { return m.data, nil }
func (m memorySource) Path() string          { return m.name }

// MemorySource wraps raw JSON as a catalog source.
func MemorySource(name string, data []byte) Source {
	return memorySource{name: name, data: data}
}

// Entry is one resolved catalog row.
type Entry struct {
	ID       string
	Provider string
	Rule     string
	Toggle   string
	Enabled  bool
	When     string
	Title    string
}

// EntryDocument is the on-disk shape. Exported so the schema generator can
// reflect over the configuration contract shared with designers.
type EntryDocument struct {
	ID       string `json:"id" jsonschema:"title=Catalog Entry ID,pattern=^[a-z0-9.-]+$,minLength=1,required"`
	Provider string `json:"provider" jsonschema:"title=Provider Name,description=Registered rule provider this entry belongs to.,minLength=1,required"`
	Rule     string `json:"rule,omitempty" jsonschema:"title=Weave Rule Name,description=Optional weave rule the toggle controls."`
	Toggle   string `json:"toggle" jsonschema:"title=Toggle Key,description=Configuration key flipped by the user.,minLength=1,required"`
	Enabled  *bool  `json:"enabled,omitempty" jsonschema:"title=Default State,description=Initial toggle state; defaults to enabled."`
	When     string `json:"when,omitempty" jsonschema:"title=Gate Expression,description=CEL condition over role and level."`
	Title    string `json:"title,omitempty" jsonschema:"title=Display Title"`
}

// Resolver merges one or more catalog sources into a stable entry table.
// Reload picks up on-disk changes during development.
type Resolver struct {
	mu      sync.RWMutex
	sources []Source
	byName  map[string]contract.Provider
	entries map[string]Entry
}

// DefaultPath is the canonical catalog location relative to the module
// root.
func DefaultPath() string {
	return filepath.Join("config", "rules", "catalog.json")
}

// Load constructs a Resolver from the registry and file paths.
func Load(reg contract.Registry, paths ...string) (*Resolver, error) {
	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		sources = append(sources, fileSource{path: trimmed})
	}
	return NewResolver(reg, sources...)
}

// NewResolver constructs a Resolver from arbitrary sources.
func NewResolver(reg contract.Registry, sources ...Source) (*Resolver, error) {
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: invalid registry: %w", err)
	}
	byName := make(map[string]contract.Provider, len(reg))
	for _, p := range reg {
		byName[p.Name] = p
	}
	r := &Resolver{
		sources: append([]Source(nil), sources...),
		byName:  byName,
		entries: make(map[string]Entry),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses all sources. Later sources override earlier ones, which
// supports local overlays during development.
func (r *Resolver) Reload() error {
	if r == nil {
		return nil
	}
	entries := make(map[string]Entry)
	for _, src := range r.sources {
		data, err := src.Load()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("catalog: failed loading %s: %w", src.Path(), err)
		}
		documents, err := decodeEntries(data)
		if err != nil {
			return fmt.Errorf("catalog: failed parsing %s: %w", src.Path(), err)
		}
		seen := make(map[string]struct{}, len(documents))
		for _, doc := range documents {
			entry, err := r.resolveDocument(doc)
			if err != nil {
				return fmt.Errorf("catalog: %s: %w", src.Path(), err)
			}
			if _, dup := seen[entry.ID]; dup {
				return fmt.Errorf("catalog: duplicate id %q in %s", entry.ID, src.Path())
			}
			seen[entry.ID] = struct{}{}
			entries[entry.ID] = entry
		}
	}
	r.mu.Lock()
	r.entries = entries
	r.mu.Unlock()
	return nil
}

func (r *Resolver) resolveDocument(doc EntryDocument) (Entry, error) {
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		return Entry{}, fmt.Errorf("entry missing id")
	}
	providerName := strings.TrimSpace(doc.Provider)
	if providerName == "" {
		return Entry{}, fmt.Errorf("entry %q missing provider", id)
	}
	provider, ok := r.byName[providerName]
	if !ok {
		return Entry{}, fmt.Errorf("entry %q references unknown provider %q", id, providerName)
	}
	if rule := strings.TrimSpace(doc.Rule); rule != "" {
		if !providerHasWeave(provider, rule) {
			return Entry{}, fmt.Errorf("entry %q references unknown weave rule %q of provider %q", id, rule, providerName)
		}
	}
	toggle := strings.TrimSpace(doc.Toggle)
	if toggle == "" {
		return Entry{}, fmt.Errorf("entry %q missing toggle", id)
	}
	enabled := true
	if doc.Enabled != nil {
		enabled = *doc.Enabled
	}
	return Entry{
		ID:       id,
		Provider: providerName,
		Rule:     strings.TrimSpace(doc.Rule),
		Toggle:   toggle,
		Enabled:  enabled,
		When:     strings.TrimSpace(doc.When),
		Title:    doc.Title,
	}, nil
}

func providerHasWeave(p contract.Provider, name string) bool {
	for _, wr := range p.Weaves {
		if wr.Name == name {
			return true
		}
	}
	return false
}

// Resolve returns the catalog entry for the provided id.
func (r *Resolver) Resolve(id string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Entries returns a snapshot of all entries keyed by id.
func (r *Resolver) Entries() map[string]Entry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.entries))
	for id, entry := range r.entries {
		out[id] = entry
	}
	return out
}

func decodeEntries(data []byte) ([]EntryDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var entries []EntryDocument
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
