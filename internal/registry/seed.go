package registry

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/blockpress/internal/tree"
)

// SeedFile is the YAML document read by LoadSeedFile:
//
//	components:
//	  - key: hero
//	    name: Landing hero
//	    default_config:
//	      title: Hello
//	  - key: pricing
//	    name: Pricing
//	    code: |
//	      export default ({ plans = [] }) => h("ul", null, plans.map((p) => h("li", null, p)))
type SeedFile struct {
	Components []SeedComponent `yaml:"components"`
}

// SeedComponent is one entry of a seed file. Entries whose key matches a
// builtin override its metadata; other entries must carry code.
type SeedComponent struct {
	Key           string                 `yaml:"key"`
	Name          string                 `yaml:"name,omitempty"`
	Description   string                 `yaml:"description,omitempty"`
	Category      string                 `yaml:"category,omitempty"`
	Schema        map[string]FieldSchema `yaml:"schema,omitempty"`
	DefaultConfig map[string]any         `yaml:"default_config,omitempty"`
	Code          string                 `yaml:"code,omitempty"`
}

// LoadSeedFile applies the seed file at path.
func (r *Registry) LoadSeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	if err := r.LoadSeed(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadSeed applies a seed document. Nothing is applied when any entry is
// invalid.
func (r *Registry) LoadSeed(rd io.Reader) error {
	var seed SeedFile
	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	// Validate everything before mutating the registry.
	seen := make(map[string]bool, len(seed.Components))
	for i, c := range seed.Components {
		if c.Key == "" {
			return fmt.Errorf("component %d: key is required", i)
		}
		if seen[c.Key] {
			return fmt.Errorf("component %q appears more than once", c.Key)
		}
		seen[c.Key] = true

		existing, exists := r.Lookup(c.Key)
		switch {
		case exists && existing.Origin == OriginBuiltin:
			if c.Code != "" {
				return fmt.Errorf("component %q: builtin components cannot be given code", c.Key)
			}
		case c.Code == "":
			return fmt.Errorf("component %q: no code and no builtin with that key", c.Key)
		default:
			if err := r.check("registry.seed", CustomSource{Key: c.Key, Code: c.Code}); err != nil {
				return fmt.Errorf("component %q: %w", c.Key, err)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range seed.Components {
		if existing, ok := r.entries[c.Key]; ok && existing.Origin == OriginBuiltin {
			updated := existing.clone()
			if c.Name != "" {
				updated.Name = c.Name
			}
			if c.Description != "" {
				updated.Description = c.Description
			}
			if c.Category != "" {
				updated.Category = c.Category
			}
			if c.Schema != nil {
				updated.Schema = c.Schema
			}
			if c.DefaultConfig != nil {
				updated.DefaultConfig = tree.NormalizeProps(c.DefaultConfig)
			}
			updated.UpdatedAt = time.Now().UTC()
			r.entries[c.Key] = &updated
			r.notifyLocked(EventUpdated, &updated)
			continue
		}

		eventType := EventAdded
		if _, ok := r.entries[c.Key]; ok {
			eventType = EventUpdated
		}
		def := CustomSource{
			Key:           c.Key,
			Name:          c.Name,
			Description:   c.Description,
			Category:      c.Category,
			Code:          c.Code,
			Schema:        c.Schema,
			DefaultConfig: c.DefaultConfig,
		}.definition(OriginSeed)
		r.entries[c.Key] = def
		r.notifyLocked(eventType, def)
	}
	log.Printf("[Registry] Loaded %d seed components", len(seed.Components))
	return nil
}
