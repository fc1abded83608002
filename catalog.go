package weaveline

import (
	"fmt"

	"github.com/h1arc/weaveline/rules/catalog"
)

// LoadCatalog applies resolved catalog entries to the engine's toggle
// store: default states first, then gate expressions. Each application
// bumps the configuration version, so cached decisions from before the
// load cannot survive it.
func (e *Engine) LoadCatalog(entries map[string]catalog.Entry) error {
	for id, entry := range entries {
		e.store.SetToggle(entry.Toggle, entry.Enabled)
		if entry.When == "" {
			continue
		}
		if err := e.store.SetGate(entry.Toggle, entry.When); err != nil {
			return fmt.Errorf("weaveline: catalog entry %q: %w", id, err)
		}
	}
	return nil
}
