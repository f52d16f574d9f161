package islands

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownComponent is returned for islands of unregistered components.
	ErrUnknownComponent = errors.New("islands: unknown component")

	// ErrMissingProp is returned when a required prop is absent.
	ErrMissingProp = errors.New("islands: missing required prop")
)

// Definition describes an island component the client knows how to paint.
type Definition struct {
	Name             string
	DefaultHydration HydrationStrategy
	DefaultPriority  LoadPriority

	// RequiredProps must be present on every island of this component.
	RequiredProps []string

	Scripts []string
	Styles  []string
}

// Registry holds island component definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition. Names must be unique.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return errors.New("islands: definition needs a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("islands: component %q already registered", def.Name)
	}
	if def.DefaultHydration == "" {
		def.DefaultHydration = HydrateOnLoad
	}
	if def.DefaultPriority == 0 {
		def.DefaultPriority = PriorityMedium
	}
	r.defs[def.Name] = def
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Create builds an island of a registered component, applying its
// defaults before opts and checking required props.
func (r *Registry) Create(name string, props map[string]any, opts ...Option) (*Island, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	for _, key := range def.RequiredProps {
		if _, ok := props[key]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrMissingProp, name, key)
		}
	}

	all := append([]Option{
		WithHydration(def.DefaultHydration),
		WithPriority(def.DefaultPriority),
	}, opts...)
	return New(name, props, all...), nil
}

// Resources returns the deduplicated scripts and styles for components.
func (r *Registry) Resources(names []string) (scripts, styles []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seenScript := make(map[string]bool)
	seenStyle := make(map[string]bool)
	for _, name := range names {
		def, ok := r.defs[name]
		if !ok {
			continue
		}
		for _, s := range def.Scripts {
			if !seenScript[s] {
				seenScript[s] = true
				scripts = append(scripts, s)
			}
		}
		for _, s := range def.Styles {
			if !seenStyle[s] {
				seenStyle[s] = true
				styles = append(styles, s)
			}
		}
	}
	return scripts, styles
}
