// Package registry maps component keys to definitions: the builtin seed,
// entries from an optional YAML seed file and custom components registered at
// runtime all share one lookup surface.
package registry

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/tree"
)

// Origin records where a definition came from.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginSeed    Origin = "seed"
	OriginCustom  Origin = "custom"
)

// FieldSchema describes one editable prop of a component.
type FieldSchema struct {
	Type     string   `json:"type" yaml:"type"` // string, text, number, boolean, url, list, select
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Default  any      `json:"default,omitempty" yaml:"default,omitempty"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
}

// Definition describes a component available to section nodes.
type Definition struct {
	Key           string                 `json:"key"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Category      string                 `json:"category,omitempty"`
	Schema        map[string]FieldSchema `json:"schema,omitempty"`
	DefaultConfig map[string]any         `json:"defaultConfig"`
	Origin        Origin                 `json:"origin"`
	Code          string                 `json:"code,omitempty"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// HasCode reports whether the component is rendered from source text rather
// than a Go implementation.
func (d Definition) HasCode() bool {
	return d.Code != ""
}

// Defaults returns a fresh copy of the default props: DefaultConfig, with
// schema defaults filling keys it does not set.
func (d Definition) Defaults() map[string]any {
	props := tree.CopyProps(d.DefaultConfig)
	for name, field := range d.Schema {
		if _, ok := props[name]; !ok && field.Default != nil {
			props[name] = tree.NormalizeValue(field.Default)
		}
	}
	return props
}

func (d Definition) clone() Definition {
	d.DefaultConfig = tree.CopyProps(d.DefaultConfig)
	if d.Schema != nil {
		schema := make(map[string]FieldSchema, len(d.Schema))
		for k, v := range d.Schema {
			schema[k] = v
		}
		d.Schema = schema
	}
	return d
}

// CustomSource is a user-supplied component.
type CustomSource struct {
	Key           string                 `json:"key"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Category      string                 `json:"category,omitempty"`
	Code          string                 `json:"code"`
	Schema        map[string]FieldSchema `json:"schema,omitempty"`
	DefaultConfig map[string]any         `json:"defaultConfig,omitempty"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

func (s CustomSource) definition(origin Origin) *Definition {
	name := s.Name
	if name == "" {
		name = s.Key
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return &Definition{
		Key:           s.Key,
		Name:          name,
		Description:   s.Description,
		Category:      s.Category,
		Schema:        s.Schema,
		DefaultConfig: tree.NormalizeProps(s.DefaultConfig),
		Origin:        origin,
		Code:          s.Code,
		UpdatedAt:     updated,
	}
}

// Source converts a code-backed definition back into its source form.
func (d Definition) Source() CustomSource {
	return CustomSource{
		Key:           d.Key,
		Name:          d.Name,
		Description:   d.Description,
		Category:      d.Category,
		Code:          d.Code,
		Schema:        d.Schema,
		DefaultConfig: tree.CopyProps(d.DefaultConfig),
		UpdatedAt:     d.UpdatedAt,
	}
}

// EventType represents the type of registry event
type EventType int

const (
	EventAdded EventType = iota
	EventUpdated
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	default:
		return "removed"
	}
}

// Event represents a change in the registry
type Event struct {
	Type       EventType
	Key        string
	Definition Definition
	Generation uint64
	Timestamp  time.Time
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Origin   Origin
	Category string
	Query    string // case-insensitive substring of key or name
}

func (f Filter) match(d *Definition) bool {
	if f.Origin != "" && d.Origin != f.Origin {
		return false
	}
	if f.Category != "" && !strings.EqualFold(d.Category, f.Category) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(d.Key), q) || strings.Contains(strings.ToLower(d.Name), q)
	}
	return true
}

// Validator checks component source before it is accepted.
type Validator func(code string) error

// Option configures a Registry.
type Option func(*Registry)

// WithValidator sets the check run on custom component code.
func WithValidator(v Validator) Option {
	return func(r *Registry) { r.validate = v }
}

// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*Definition
	generation uint64
	watchers   []chan Event
	validate   Validator
}

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// New creates a registry holding the builtin components.
func New(opts ...Option) *Registry {
	r := &Registry{entries: make(map[string]*Definition)}
	for _, d := range Builtins() {
		def := d
		r.entries[d.Key] = &def
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the definition for key.
func (r *Registry) Lookup(key string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[key]
	if !ok {
		return Definition{}, false
	}
	return d.clone(), true
}

// List returns the definitions matching filter, ordered by key.
func (r *Registry) List(filter Filter) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.entries))
	for _, d := range r.entries {
		if filter.match(d) {
			out = append(out, d.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Count returns the number of registered components
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Generation increases on every change and is used to key render caches.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Registry) check(op string, src CustomSource) error {
	if !keyPattern.MatchString(src.Key) {
		return blockpress.Errorf(blockpress.CodeInvalidInput, op,
			"invalid component key %q", src.Key).WithHint("keys are lowercase letters, digits, '-' and '_', starting with a letter")
	}
	if strings.TrimSpace(src.Code) == "" {
		return blockpress.Errorf(blockpress.CodeValidation, op, "component %q has no code", src.Key)
	}
	if r.validate == nil {
		return nil
	}
	if err := r.validate(src.Code); err != nil {
		code := blockpress.CodeValidation
		var coded interface{ Code() blockpress.Code }
		if errors.As(err, &coded) {
			code = coded.Code()
		}
		return blockpress.Wrap(code, op, err)
	}
	return nil
}

// RegisterCustom adds a custom component. A key already used by any
// definition is rejected with DUPLICATE_KEY.
func (r *Registry) RegisterCustom(src CustomSource) (Definition, error) {
	const op = "registry.register"
	if err := r.check(op, src); err != nil {
		return Definition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.entries[src.Key]; exists {
		return Definition{}, blockpress.Errorf(blockpress.CodeDuplicateKey, op,
			"component key %q is already used by a %s component", src.Key, existing.Origin)
	}
	def := src.definition(OriginCustom)
	r.entries[src.Key] = def
	r.notifyLocked(EventAdded, def)
	return def.clone(), nil
}

// UpdateCustom replaces the code and metadata of an existing custom
// component.
func (r *Registry) UpdateCustom(src CustomSource) (Definition, error) {
	const op = "registry.update"
	if err := r.check(op, src); err != nil {
		return Definition{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.entries[src.Key]
	if !exists {
		return Definition{}, blockpress.Errorf(blockpress.CodeNotFound, op, "component %q not found", src.Key)
	}
	if existing.Origin != OriginCustom {
		return Definition{}, blockpress.Errorf(blockpress.CodeInvalidInput, op,
			"component %q is a %s component and cannot be modified", src.Key, existing.Origin)
	}
	def := src.definition(OriginCustom)
	r.entries[src.Key] = def
	r.notifyLocked(EventUpdated, def)
	return def.clone(), nil
}

// PutCustom registers or updates a custom component. It is used when
// restoring persisted sources and by the directory watcher.
func (r *Registry) PutCustom(src CustomSource) (Definition, error) {
	r.mu.RLock()
	existing, exists := r.entries[src.Key]
	r.mu.RUnlock()

	if exists && existing.Origin == OriginCustom {
		if existing.Code == src.Code && existing.Name == src.definition(OriginCustom).Name {
			return existing.clone(), nil
		}
		return r.UpdateCustom(src)
	}
	return r.RegisterCustom(src)
}

// RemoveCustom deletes a custom component.
func (r *Registry) RemoveCustom(key string) error {
	const op = "registry.remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.entries[key]
	if !exists {
		return blockpress.Errorf(blockpress.CodeNotFound, op, "component %q not found", key)
	}
	if existing.Origin != OriginCustom {
		return blockpress.Errorf(blockpress.CodeInvalidInput, op,
			"component %q is a %s component and cannot be removed", key, existing.Origin)
	}
	delete(r.entries, key)
	r.notifyLocked(EventRemoved, existing)
	return nil
}

// notifyLocked bumps the generation and fans the event out to watchers.
// Slow watchers miss events rather than block writers.
func (r *Registry) notifyLocked(t EventType, def *Definition) {
	r.generation++
	event := Event{
		Type:       t,
		Key:        def.Key,
		Definition: def.clone(),
		Generation: r.generation,
		Timestamp:  time.Now(),
	}
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
		}
	}
}

// Watch returns a channel that receives registry events
func (r *Registry) Watch() <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// Unwatch removes a watcher channel and closes it
func (r *Registry) Unwatch(ch <-chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}
