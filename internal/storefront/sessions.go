package storefront

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/preview"
	"github.com/gabrielmiguelok/candlekit/pkg/snapshot"
	"github.com/gabrielmiguelok/candlekit/pkg/wizard"
)

type entry struct {
	view     *WizardView
	lastSeen atomic.Int64
	mount    sync.Once
	mountErr error
}

func (e *entry) touch() {
	e.lastSeen.Store(time.Now().UnixNano())
}

func (e *entry) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastSeen.Load()))
}

// Sessions holds one mounted WizardView per customer session. Views that
// sit idle are terminated; their snapshot stays in storage and a later
// request mounts a fresh view from it.
type Sessions struct {
	opts   *Options
	render *pageRenderer

	// live reports whether a session has open live connections; those
	// sessions are never idle.
	live func(id string) bool

	mu      sync.Mutex
	entries map[string]*entry
}

func newSessions(opts *Options, render *pageRenderer) *Sessions {
	return &Sessions{
		opts:    opts,
		render:  render,
		entries: make(map[string]*entry),
	}
}

// Get returns the mounted view for id, creating and mounting it on first
// use.
func (s *Sessions) Get(ctx context.Context, id string) (*WizardView, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{view: s.newView(id)}
		s.entries[id] = e
		s.gauge()
	}
	s.mu.Unlock()

	e.touch()
	e.mount.Do(func() {
		e.mountErr = e.view.Mount(ctx, core.Params{}, core.Session{"id": id})
	})
	return e.view, e.mountErr
}

// Lookup returns a view only if it is already held.
func (s *Sessions) Lookup(id string) (*WizardView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if ok {
		e.touch()
		return e.view, true
	}
	return nil, false
}

// Count returns the number of views held.
func (s *Sessions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Remove terminates and drops the view for id.
func (s *Sessions) Remove(ctx context.Context, id string, reason core.TerminateReason) {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.gauge()
	s.mu.Unlock()

	if ok {
		_ = e.view.Terminate(ctx, reason)
	}
}

// EvictIdle terminates views idle longer than maxIdle and returns how many
// were evicted.
func (s *Sessions) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	now := time.Now()
	var stale []*entry

	s.mu.Lock()
	for id, e := range s.entries {
		if e.idleFor(now) > maxIdle && (s.live == nil || !s.live(id)) {
			stale = append(stale, e)
			delete(s.entries, id)
		}
	}
	s.gauge()
	s.mu.Unlock()

	for _, e := range stale {
		_ = e.view.Terminate(ctx, core.TerminateTimeout)
	}
	if len(stale) > 0 {
		s.opts.Logger.Info("evicted idle wizard sessions", logging.Int("count", len(stale)))
	}
	return len(stale)
}

// Shutdown terminates every view.
func (s *Sessions) Shutdown(ctx context.Context) {
	s.mu.Lock()
	all := s.entries
	s.entries = make(map[string]*entry)
	s.gauge()
	s.mu.Unlock()

	for _, e := range all {
		_ = e.view.Terminate(ctx, core.TerminateShutdown)
	}
}

func (s *Sessions) gauge() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.Sessions.Set(float64(len(s.entries)))
	}
}

// newView wires a wizard with its own snapshot key and a preview viewer.
func (s *Sessions) newView(id string) *WizardView {
	o := s.opts
	logger := o.Logger.With(logging.String("session", id))

	v := &WizardView{
		session:      id,
		catalog:      o.Catalog,
		defaultModel: o.DefaultModel,
		broadcaster:  o.Broadcaster,
		logger:       logger,
		render:       s.render,
	}
	// Hooks fire from loader goroutines; allocate assigns up front.
	v.Assigns()

	keyOpts := []snapshot.KeyedOption{snapshot.WithTTL(o.SnapshotTTL)}
	if o.Codec != nil {
		keyOpts = append(keyOpts, snapshot.WithCodec(o.Codec))
	}
	store := snapshot.NewKeyed[wizard.Snapshot](o.Store, "wizard:"+id, keyOpts...)

	v.wizard = wizard.New(
		wizard.WithStore(store),
		wizard.WithLogger(logger),
		wizard.WithLimits(o.Limits),
		wizard.WithHooks(wizard.Hooks{
			Changed: v.stateChanged,
			Degraded: func(field, level string) {
				if o.Metrics != nil {
					o.Metrics.Degradations.WithLabelValues(field, level).Inc()
				}
			},
			Cleared: func(error) {
				if o.Metrics != nil {
					o.Metrics.StorageClears.Inc()
				}
			},
		}),
	)

	v.viewer = preview.NewViewer(o.Loader,
		preview.WithViewerLogger(logger),
		preview.WithViewerHooks(preview.ViewerHooks{
			Changed: v.sceneChanged,
			AssetLoaded: func(kind, outcome string) {
				if o.Metrics != nil {
					o.Metrics.AssetLoads.WithLabelValues(kind, outcome).Inc()
				}
			},
			Tripped: func(error) {
				if o.Metrics != nil {
					o.Metrics.BoundaryTrips.Inc()
				}
			},
		}),
	)
	v.ready.Store(true)
	return v
}
