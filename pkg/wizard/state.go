// Package wizard implements the eight-step candle personalization flow:
// ordered navigation gated by the highest step reached, one setter per
// selection, completion and progress queries, and size-bounded persistence
// of the in-progress selections.
package wizard

import (
	"strings"

	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
)

// Step is a 1-based wizard step number.
type Step int

// Wizard steps in order. Each step is complete once its selection is made.
const (
	StepMainOption     Step = 1 // main option
	StepIntendedImpact Step = 2 // place (optional) then intended impact
	StepContainer      Step = 3
	StepFragrance      Step = 4 // fragrance together with wax color
	StepLabel          Step = 5
	StepMessage        Step = 6
	StepAudio          Step = 7
	StepName           Step = 8

	FirstStep = StepMainOption
	LastStep  = StepName
	StepCount = int(LastStep)
)

// Valid reports whether s is one of the eight steps.
func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

func (s Step) String() string {
	switch s {
	case StepMainOption:
		return "main-option"
	case StepIntendedImpact:
		return "intended-impact"
	case StepContainer:
		return "container"
	case StepFragrance:
		return "fragrance"
	case StepLabel:
		return "label"
	case StepMessage:
		return "message"
	case StepAudio:
		return "audio"
	case StepName:
		return "name"
	default:
		return "unknown"
	}
}

// DefaultWaxColor is the neutral off-white used before a fragrance is chosen.
const DefaultWaxColor = "#F5F5F0"

// State is a point-in-time copy of the wizard. Mutating it has no effect on
// the wizard it came from.
type State struct {
	CurrentStep    Step
	MaxStepReached Step

	MainOption     *catalog.MainOption
	Place          *catalog.Place
	IntendedImpact *catalog.IntendedImpact
	Container      *catalog.Container
	Fragrance      *catalog.Aroma
	WaxColor       string
	Label          *catalog.Label
	Message        string
	CustomPrompt   string
	AudioSelection *catalog.AudioSelection
	CandleName     string
	ModelFile      *catalog.ModelFile

	ReturnToPreview bool
	Hydrated        bool
}

func initialState() State {
	return State{
		CurrentStep:    FirstStep,
		MaxStepReached: FirstStep,
	}
}

// Completed reports whether step's selection has been made in s.
func (s State) Completed(step Step) bool {
	switch step {
	case StepMainOption:
		return s.MainOption != nil
	case StepIntendedImpact:
		return s.IntendedImpact != nil
	case StepContainer:
		return s.Container != nil
	case StepFragrance:
		return s.Fragrance != nil && s.WaxColor != ""
	case StepLabel:
		return s.Label != nil
	case StepMessage:
		return strings.TrimSpace(s.Message) != ""
	case StepAudio:
		return s.AudioSelection != nil
	case StepName:
		return strings.TrimSpace(s.CandleName) != ""
	default:
		return false
	}
}

// clone copies every record so callers cannot reach the wizard's own values.
func (s State) clone() State {
	out := s
	out.MainOption = clonePtr(s.MainOption)
	out.Place = clonePtr(s.Place)
	out.IntendedImpact = clonePtr(s.IntendedImpact)
	out.Container = clonePtr(s.Container)
	if s.Fragrance != nil {
		f := *s.Fragrance
		f.OlfativePyramid = catalog.OlfactivePyramid{
			Salida:  append([]string(nil), s.Fragrance.OlfativePyramid.Salida...),
			Corazon: append([]string(nil), s.Fragrance.OlfativePyramid.Corazon...),
			Fondo:   append([]string(nil), s.Fragrance.OlfativePyramid.Fondo...),
		}
		out.Fragrance = &f
	}
	out.Label = clonePtr(s.Label)
	out.AudioSelection = clonePtr(s.AudioSelection)
	if s.ModelFile != nil {
		m := *s.ModelFile
		m.Data = append([]byte(nil), s.ModelFile.Data...)
		out.ModelFile = &m
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
