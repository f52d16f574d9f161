// Package islands renders server-computed state as hydratable page
// islands. The storefront uses it to ship the candle preview scene to the
// browser, which only paints what it receives.
package islands

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Island is one independently hydrated region of a page.
type Island struct {
	ID        string
	Component string
	Props     map[string]any
	Hydration HydrationStrategy
	Priority  LoadPriority
}

// HydrationStrategy determines when the browser hydrates an island.
type HydrationStrategy string

const (
	// HydrateOnLoad hydrates immediately when the page loads
	HydrateOnLoad HydrationStrategy = "load"

	// HydrateOnVisible hydrates when the island scrolls into view
	HydrateOnVisible HydrationStrategy = "visible"

	// HydrateOnIdle hydrates when the browser is idle
	HydrateOnIdle HydrationStrategy = "idle"

	// HydrateNever renders static markup without props
	HydrateNever HydrationStrategy = "none"
)

// LoadPriority orders island loading. Higher loads sooner.
type LoadPriority int

const (
	PriorityLow    LoadPriority = 1
	PriorityMedium LoadPriority = 2
	PriorityHigh   LoadPriority = 3
)

// Option configures an island.
type Option func(*Island)

// WithID pins the island ID. Without it a random one is generated.
func WithID(id string) Option {
	return func(i *Island) {
		i.ID = id
	}
}

// WithHydration sets the hydration strategy.
func WithHydration(strategy HydrationStrategy) Option {
	return func(i *Island) {
		i.Hydration = strategy
	}
}

// WithPriority sets the load priority.
func WithPriority(priority LoadPriority) Option {
	return func(i *Island) {
		i.Priority = priority
	}
}

// New creates an island for component.
func New(component string, props map[string]any, opts ...Option) *Island {
	if props == nil {
		props = make(map[string]any)
	}
	island := &Island{
		Component: component,
		Props:     props,
		Hydration: HydrateOnLoad,
		Priority:  PriorityMedium,
	}
	for _, opt := range opts {
		opt(island)
	}
	if island.ID == "" {
		island.ID = "island-" + uuid.NewString()
	}
	return island
}

// Page tracks the islands placed on one rendered page.
type Page struct {
	mu      sync.RWMutex
	islands map[string]*Island
	order   []string
}

// NewPage creates an empty page.
func NewPage() *Page {
	return &Page{islands: make(map[string]*Island)}
}

// Add places an island on the page. Re-adding an ID replaces it in place.
func (p *Page) Add(island *Island) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.islands[island.ID]; !ok {
		p.order = append(p.order, island.ID)
	}
	p.islands[island.ID] = island
}

// Get retrieves an island by ID.
func (p *Page) Get(id string) (*Island, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	island, ok := p.islands[id]
	return island, ok
}

// All returns islands in placement order.
func (p *Page) All() []*Island {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Island, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.islands[id])
	}
	return out
}

// ByPriority returns islands highest priority first, placement order
// breaking ties.
func (p *Page) ByPriority() []*Island {
	out := p.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Count returns the number of islands on the page.
func (p *Page) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.islands)
}

// Manifest describes a page's islands for the client loader.
type Manifest struct {
	Islands map[string]Config `json:"islands"`
	Scripts []string          `json:"scripts"`
	Styles  []string          `json:"styles"`
}

// Config is the client-side configuration for one island.
type Config struct {
	Component string            `json:"component"`
	Hydrate   HydrationStrategy `json:"hydrate"`
	Priority  LoadPriority      `json:"priority"`
}

// BuildManifest collects island configs and the resources their
// components need.
func BuildManifest(page *Page, reg *Registry) Manifest {
	m := Manifest{Islands: make(map[string]Config)}
	var names []string
	for _, island := range page.ByPriority() {
		m.Islands[island.ID] = Config{
			Component: island.Component,
			Hydrate:   island.Hydration,
			Priority:  island.Priority,
		}
		names = append(names, island.Component)
	}
	if reg != nil {
		m.Scripts, m.Styles = reg.Resources(names)
	}
	return m
}
