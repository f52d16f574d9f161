package wizard

import (
	"context"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/snapshot"
)

// PlaceholderImage replaces label artwork that was too large to persist.
const PlaceholderImage = "/placeholder.svg"

// Default size limits for payloads kept in the persisted snapshot.
const (
	DefaultLabelPreviewLimit = 100 * 1024
	DefaultAudioBlobLimit    = 1024 * 1024
)

// Limits bounds the heavy payloads written to durable storage.
type Limits struct {
	LabelPreview int
	AudioBlob    int
}

// DefaultLimits returns the 100KB label / 1MB audio limits.
func DefaultLimits() Limits {
	return Limits{LabelPreview: DefaultLabelPreviewLimit, AudioBlob: DefaultAudioBlobLimit}
}

// Snapshot is the persisted subset of State. The model file is transient
// and the hydration flag is runtime-only, so neither is stored.
type Snapshot struct {
	Version        int                     `msgpack:"v" json:"version"`
	CurrentStep    int                     `msgpack:"currentStep" json:"currentStep"`
	MaxStepReached int                     `msgpack:"maxStepReached" json:"maxStepReached"`
	MainOption     *catalog.MainOption     `msgpack:"mainOption" json:"mainOption"`
	Place          *catalog.Place          `msgpack:"place" json:"place"`
	IntendedImpact *catalog.IntendedImpact `msgpack:"intendedImpact" json:"intendedImpact"`
	Container      *catalog.Container      `msgpack:"container" json:"container"`
	Fragrance      *catalog.Aroma          `msgpack:"fragrance" json:"fragrance"`
	WaxColor       string                  `msgpack:"waxColor" json:"waxColor"`
	Label          *catalog.Label          `msgpack:"label" json:"label"`
	Message        string                  `msgpack:"message" json:"message"`
	CustomPrompt   string                  `msgpack:"customPrompt" json:"customPrompt"`
	AudioSelection *catalog.AudioSelection `msgpack:"audioSelection" json:"audioSelection"`
	CandleName     string                  `msgpack:"candleName" json:"candleName"`

	ReturnToPreview bool `msgpack:"returnToPreview" json:"returnToPreview"`
}

const snapshotVersion = 1

func snapshotOf(s State) Snapshot {
	c := s.clone()
	return Snapshot{
		Version:         snapshotVersion,
		CurrentStep:     int(c.CurrentStep),
		MaxStepReached:  int(c.MaxStepReached),
		MainOption:      c.MainOption,
		Place:           c.Place,
		IntendedImpact:  c.IntendedImpact,
		Container:       c.Container,
		Fragrance:       c.Fragrance,
		WaxColor:        c.WaxColor,
		Label:           c.Label,
		Message:         c.Message,
		CustomPrompt:    c.CustomPrompt,
		AudioSelection:  c.AudioSelection,
		CandleName:      c.CandleName,
		ReturnToPreview: c.ReturnToPreview,
	}
}

// restore rebuilds a State, repairing step numbers a stale or hand-edited
// snapshot could carry.
func (snap Snapshot) restore() State {
	s := initialState()
	s.MainOption = snap.MainOption
	s.Place = snap.Place
	s.IntendedImpact = snap.IntendedImpact
	s.Container = snap.Container
	s.Fragrance = snap.Fragrance
	s.WaxColor = snap.WaxColor
	s.Label = snap.Label
	s.Message = snap.Message
	s.CustomPrompt = snap.CustomPrompt
	s.AudioSelection = snap.AudioSelection
	s.CandleName = snap.CandleName
	s.ReturnToPreview = snap.ReturnToPreview

	s.MaxStepReached = clampStep(Step(snap.MaxStepReached))
	s.CurrentStep = clampStep(Step(snap.CurrentStep))
	if s.CurrentStep > s.MaxStepReached {
		s.CurrentStep = s.MaxStepReached
	}
	return s
}

func clampStep(s Step) Step {
	switch {
	case s < FirstStep:
		return FirstStep
	case s > LastStep:
		return LastStep
	default:
		return s
	}
}

// heavyField names the setter payload that may need to be dropped.
type heavyField int

const (
	heavyNone heavyField = iota
	heavyLabel
	heavyAudio
)

func (f heavyField) String() string {
	switch f {
	case heavyLabel:
		return "label"
	case heavyAudio:
		return "audioSelection"
	default:
		return "none"
	}
}

// Degradation levels reported through Hooks.Degraded.
const (
	DegradeStripped = "stripped" // heavy payload replaced before saving
	DegradeMinimal  = "minimal"  // save failed; retried without any binary field
	DegradeDropped  = "dropped"  // retried with the setter's field nulled
	DegradeFailed   = "failed"   // nothing could be written
)

// encodedSize estimates how many bytes payload adds to a snapshot: its
// MessagePack encoding, header included.
func encodedSize(payload string) int {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return math.MaxInt
	}
	return len(b)
}

// lightenLabel returns the label as it may be persisted, and whether the
// preview had to be removed.
func lightenLabel(l *catalog.Label, limit int) (*catalog.Label, bool) {
	if l == nil || l.LocalPreview == "" || encodedSize(l.LocalPreview) <= limit {
		return l, false
	}
	light := *l
	light.LocalPreview = ""
	if light.ImageURL == "" {
		light.ImageURL = PlaceholderImage
	}
	return &light, true
}

func lightenAudio(a *catalog.AudioSelection, limit int) (*catalog.AudioSelection, bool) {
	if a == nil || a.AudioBlob == "" || encodedSize(a.AudioBlob) <= limit {
		return a, false
	}
	light := *a
	light.AudioBlob = ""
	return &light, true
}

func stripBinary(snap Snapshot) Snapshot {
	if snap.Label != nil && snap.Label.LocalPreview != "" {
		l := *snap.Label
		l.LocalPreview = ""
		if l.ImageURL == "" {
			l.ImageURL = PlaceholderImage
		}
		snap.Label = &l
	}
	if snap.AudioSelection != nil && snap.AudioSelection.AudioBlob != "" {
		a := *snap.AudioSelection
		a.AudioBlob = ""
		snap.AudioSelection = &a
	}
	return snap
}

// persist writes the snapshot, degrading progressively on failure. It never
// returns an error: storage trouble must not reach the setter's caller.
func (w *Wizard) persist(ctx context.Context, snap Snapshot, field heavyField) {
	if w.store == nil {
		return
	}

	err := w.store.Save(ctx, snap)
	if err == nil {
		return
	}
	w.logger.Warn("snapshot save failed, retrying without binary payloads",
		logging.String("field", field.String()), logging.Err(err))
	w.degraded(field, DegradeMinimal)

	minimal := stripBinary(snap)
	if err = w.store.Save(ctx, minimal); err == nil {
		return
	}

	if field != heavyNone {
		switch field {
		case heavyLabel:
			minimal.Label = nil
		case heavyAudio:
			minimal.AudioSelection = nil
		}
		w.logger.Warn("snapshot save failed again, dropping field from snapshot",
			logging.String("field", field.String()), logging.Err(err))
		w.degraded(field, DegradeDropped)
		if err = w.store.Save(ctx, minimal); err == nil {
			return
		}
	}

	w.logger.Error("snapshot could not be saved",
		logging.String("field", field.String()), logging.Err(err))
	w.degraded(field, DegradeFailed)
}

func (w *Wizard) degraded(field heavyField, level string) {
	if w.hooks.Degraded != nil {
		w.hooks.Degraded(field.String(), level)
	}
}

var _ snapshot.SnapshotStore[Snapshot] = (*snapshot.Keyed[Snapshot])(nil)
