package wizard

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/snapshot"
)

// Hooks are optional callbacks fired by a Wizard on the calling goroutine.
// Changed and Cleared run after the wizard lock is released. Degraded runs
// while it is held and must not call back into the wizard.
type Hooks struct {
	// Changed receives a copy of the state after every mutation.
	Changed func(State)

	// Degraded reports a persistence degradation for a field.
	Degraded func(field, level string)

	// Cleared reports that a broken snapshot was wiped during hydration.
	Cleared func(err error)
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithStore sets the durable snapshot store. Without one the wizard only
// lives in memory.
func WithStore(store snapshot.SnapshotStore[Snapshot]) Option {
	return func(w *Wizard) {
		w.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Wizard) {
		w.logger = l
	}
}

// WithLimits overrides the persistence size limits.
func WithLimits(l Limits) Option {
	return func(w *Wizard) {
		w.limits = l
	}
}

// WithHooks installs callbacks.
func WithHooks(h Hooks) Option {
	return func(w *Wizard) {
		w.hooks = h
	}
}

// WithPrerender marks a wizard used only to render markup before the
// customer's session is attached. Its progress always reads 0.
func WithPrerender() Option {
	return func(w *Wizard) {
		w.prerender = true
	}
}

// Wizard is one customer's personalization in progress. It is safe for
// concurrent use; calls are serialized.
type Wizard struct {
	state State

	// Full payloads stripped from the persisted label and audio. They
	// survive only as long as this Wizard does.
	labelPreview string
	audioBlob    string

	store     snapshot.SnapshotStore[Snapshot]
	logger    logging.Logger
	limits    Limits
	hooks     Hooks
	prerender bool

	mu sync.Mutex
}

// New creates a wizard at step 1 with nothing selected. Call Hydrate to
// load the persisted snapshot.
func New(opts ...Option) *Wizard {
	w := &Wizard{
		state:  initialState(),
		logger: logging.NopLogger{},
		limits: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logging.String("component", "wizard"))
	return w
}

// update applies fn under the lock, persists, then notifies.
func (w *Wizard) update(ctx context.Context, field heavyField, fn func(s *State)) {
	w.mu.Lock()
	fn(&w.state)
	w.persist(ctx, snapshotOf(w.state), field)
	st := w.state.clone()
	w.mu.Unlock()

	if w.hooks.Changed != nil {
		w.hooks.Changed(st)
	}
}

// raise lifts the high-water mark. It never lowers it.
func (s *State) raise(step Step) {
	step = clampStep(step)
	if step > s.MaxStepReached {
		s.MaxStepReached = step
	}
}

// State returns a copy of the current state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Hydrate loads the persisted snapshot into memory. A snapshot that cannot
// be read is wiped so the failure does not repeat, and the wizard carries
// on from defaults. Hydrate runs once; later calls do nothing.
func (w *Wizard) Hydrate(ctx context.Context) {
	w.mu.Lock()
	if w.state.Hydrated {
		w.mu.Unlock()
		return
	}

	var cleared error
	if w.store != nil {
		snap, ok, err := w.store.Load(ctx)
		switch {
		case err != nil:
			cleared = err
			w.logger.Error("snapshot unreadable, clearing it", logging.Err(err))
			if cerr := w.store.Clear(ctx); cerr != nil {
				w.logger.Error("snapshot clear failed", logging.Err(cerr))
			}
			model := w.state.ModelFile
			w.state = initialState()
			w.state.ModelFile = model
		case ok:
			model := w.state.ModelFile
			w.state = snap.restore()
			w.state.ModelFile = model
		}
	}
	w.state.Hydrated = true
	st := w.state.clone()
	w.mu.Unlock()

	if cleared != nil && w.hooks.Cleared != nil {
		w.hooks.Cleared(cleared)
	}
	if w.hooks.Changed != nil {
		w.hooks.Changed(st)
	}
}

// Hydrated reports whether the persisted snapshot has been loaded.
func (w *Wizard) Hydrated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Hydrated
}

// CanGoToStep reports whether step has been unlocked.
func (w *Wizard) CanGoToStep(step Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return step.Valid() && step <= w.state.MaxStepReached
}

// GoToStep moves to step if it has been unlocked and reports whether it
// moved. Locked steps are ignored.
func (w *Wizard) GoToStep(ctx context.Context, step Step) bool {
	if !w.CanGoToStep(step) {
		return false
	}
	w.update(ctx, heavyNone, func(s *State) {
		if step <= s.MaxStepReached {
			s.CurrentStep = step
		}
	})
	return true
}

// NextStep advances one step, unlocking it. It does nothing on the last step.
func (w *Wizard) NextStep(ctx context.Context) {
	w.update(ctx, heavyNone, func(s *State) {
		if s.CurrentStep >= LastStep {
			return
		}
		s.CurrentStep++
		s.raise(s.CurrentStep)
	})
}

// PreviousStep goes back one step, stopping at the first.
func (w *Wizard) PreviousStep(ctx context.Context) {
	w.update(ctx, heavyNone, func(s *State) {
		if s.CurrentStep > FirstStep {
			s.CurrentStep--
		}
	})
}

// SetMainOption selects the main option and unlocks step 2.
func (w *Wizard) SetMainOption(ctx context.Context, opt *catalog.MainOption) {
	w.update(ctx, heavyNone, func(s *State) {
		s.MainOption = clonePtr(opt)
		if opt != nil {
			s.raise(StepIntendedImpact)
		}
	})
}

// SetPlace records where the candle will live. Selecting a place keeps
// step 2 open without completing it.
func (w *Wizard) SetPlace(ctx context.Context, place *catalog.Place) {
	w.update(ctx, heavyNone, func(s *State) {
		s.Place = clonePtr(place)
		if place != nil {
			s.raise(StepIntendedImpact)
		}
	})
}

// SetIntendedImpact selects the emotion and unlocks step 3.
func (w *Wizard) SetIntendedImpact(ctx context.Context, impact *catalog.IntendedImpact) {
	w.update(ctx, heavyNone, func(s *State) {
		s.IntendedImpact = clonePtr(impact)
		if impact != nil {
			s.raise(StepContainer)
		}
	})
}

// SetContainer selects the container and unlocks step 4.
func (w *Wizard) SetContainer(ctx context.Context, c *catalog.Container) {
	w.update(ctx, heavyNone, func(s *State) {
		s.Container = clonePtr(c)
		if c != nil {
			s.raise(StepFragrance)
		}
	})
}

// SetFragrance sets the fragrance and wax color together and unlocks step 5.
// An empty color falls back to the aroma's own color, then the default.
// Clearing the fragrance clears the color too.
func (w *Wizard) SetFragrance(ctx context.Context, fragrance *catalog.Aroma, waxColor string) {
	w.update(ctx, heavyNone, func(s *State) {
		if fragrance == nil {
			s.Fragrance = nil
			s.WaxColor = ""
			return
		}
		f := *fragrance
		s.Fragrance = &f
		switch {
		case waxColor != "":
			s.WaxColor = waxColor
		case fragrance.Color != "":
			s.WaxColor = fragrance.Color
		default:
			s.WaxColor = DefaultWaxColor
		}
		s.raise(StepLabel)
	})
}

// SetLabel selects the label and unlocks step 6. A local preview larger
// than the limit is kept for this session only: the stored label carries
// the placeholder image instead.
func (w *Wizard) SetLabel(ctx context.Context, label *catalog.Label) {
	w.update(ctx, heavyLabel, func(s *State) {
		w.labelPreview = ""
		if label == nil {
			s.Label = nil
			return
		}

		light, stripped := lightenLabel(label, w.limits.LabelPreview)
		if stripped {
			w.labelPreview = label.LocalPreview
			w.logger.Warn("label preview too large to persist, using placeholder",
				logging.String("label", label.ID),
				logging.Int("bytes", len(label.LocalPreview)),
				logging.Int("limit", w.limits.LabelPreview))
			w.degraded(heavyLabel, DegradeStripped)
		}
		s.Label = clonePtr(light)
		s.raise(StepMessage)
	})
}

// SetMessage sets the card message. Only text that is not blank unlocks step 7.
func (w *Wizard) SetMessage(ctx context.Context, message string) {
	w.update(ctx, heavyNone, func(s *State) {
		s.Message = message
		if strings.TrimSpace(message) != "" {
			s.raise(StepAudio)
		}
	})
}

// SetCustomPrompt stores the free-text prompt used for generated labels.
func (w *Wizard) SetCustomPrompt(ctx context.Context, prompt string) {
	w.update(ctx, heavyNone, func(s *State) {
		s.CustomPrompt = prompt
	})
}

// SetAudioSelection selects the song or recording and unlocks step 8.
// Recordings over the limit are kept for this session only.
func (w *Wizard) SetAudioSelection(ctx context.Context, audio *catalog.AudioSelection) {
	w.update(ctx, heavyAudio, func(s *State) {
		w.audioBlob = ""
		if audio == nil {
			s.AudioSelection = nil
			return
		}

		light, stripped := lightenAudio(audio, w.limits.AudioBlob)
		if stripped {
			w.audioBlob = audio.AudioBlob
			w.logger.Warn("audio recording too large to persist, keeping it for this session",
				logging.Int("bytes", len(audio.AudioBlob)),
				logging.Int("limit", w.limits.AudioBlob))
			w.degraded(heavyAudio, DegradeStripped)
		}
		s.AudioSelection = clonePtr(light)
		s.raise(StepName)
	})
}

// SetCandleName names the candle. Blank names do not count as completion.
func (w *Wizard) SetCandleName(ctx context.Context, name string) {
	w.update(ctx, heavyNone, func(s *State) {
		s.CandleName = name
		if strings.TrimSpace(name) != "" {
			s.raise(StepName)
		}
	})
}

// SetModelFile attaches a generated 3D model. It is never persisted.
func (w *Wizard) SetModelFile(ctx context.Context, file *catalog.ModelFile) {
	w.mu.Lock()
	w.state.ModelFile = nil
	if file != nil {
		m := *file
		m.Data = append([]byte(nil), file.Data...)
		w.state.ModelFile = &m
	}
	st := w.state.clone()
	w.mu.Unlock()

	if w.hooks.Changed != nil {
		w.hooks.Changed(st)
	}
}

// SetReturnToPreview sets whether the next "continue" goes back to the preview.
func (w *Wizard) SetReturnToPreview(ctx context.Context, v bool) {
	w.update(ctx, heavyNone, func(s *State) {
		s.ReturnToPreview = v
	})
}

// LabelPreview returns the full local label preview, including one that was
// too large to persist. Empty after a reload.
func (w *Wizard) LabelPreview() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.labelPreview != "" {
		return w.labelPreview
	}
	if w.state.Label != nil {
		return w.state.Label.LocalPreview
	}
	return ""
}

// AudioBlob returns the full recording, including one that was too large
// to persist. Empty after a reload.
func (w *Wizard) AudioBlob() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.audioBlob != "" {
		return w.audioBlob
	}
	if w.state.AudioSelection != nil {
		return w.state.AudioSelection.AudioBlob
	}
	return ""
}

// CanContinueFromStep reports whether step is complete. It is always false
// before hydration so defaults never pass for a finished step.
func (w *Wizard) CanContinueFromStep(step Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Hydrated && w.state.Completed(step)
}

// IsStepCompleted reports whether step is complete, hydrated or not.
func (w *Wizard) IsStepCompleted(step Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Completed(step)
}

// Progress returns the share of steps completed in order, 0..100. Steps
// after the first incomplete one do not count. Prerender wizards and
// wizards not yet hydrated report 0.
func (w *Wizard) Progress() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.prerender || !w.state.Hydrated {
		return 0
	}

	done := 0
	for step := FirstStep; step <= LastStep; step++ {
		if !w.state.Completed(step) {
			break
		}
		done++
	}
	return int(math.Round(float64(done) / float64(StepCount) * 100))
}

// Reset returns every selection to its initial value and persists the
// empty state. A hydrated wizard stays hydrated: the state it now holds is
// exactly what storage holds.
func (w *Wizard) Reset(ctx context.Context) {
	w.update(ctx, heavyNone, func(s *State) {
		hydrated := s.Hydrated
		*s = initialState()
		s.Hydrated = hydrated
		w.labelPreview = ""
		w.audioBlob = ""
	})
}
