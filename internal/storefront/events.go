package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/wizard"
)

// Event errors.
var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("bad event payload")
	ErrStepLocked   = errors.New("step not unlocked yet")
)

// Result is what an event produced besides the state change.
type Result struct {
	// Route is where the page should navigate, for navigation events.
	Route string `json:"route,omitempty"`
}

type handler func(ctx context.Context, v *WizardView, p map[string]any) (Result, error)

var handlers = map[string]handler{
	"set_main_option": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		rec, err := record[catalog.MainOption](p, "mainOption")
		if err == nil {
			v.wizard.SetMainOption(ctx, rec)
		}
		return Result{}, err
	},
	"set_place": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		rec, err := record[catalog.Place](p, "place")
		if err == nil {
			v.wizard.SetPlace(ctx, rec)
		}
		return Result{}, err
	},
	"set_intended_impact": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		rec, err := record[catalog.IntendedImpact](p, "intendedImpact")
		if err == nil {
			v.wizard.SetIntendedImpact(ctx, rec)
		}
		return Result{}, err
	},
	"set_container": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		rec, err := record[catalog.Container](p, "container")
		if err == nil {
			v.wizard.SetContainer(ctx, rec)
		}
		return Result{}, err
	},
	"set_fragrance": setFragrance,
	"set_label": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		rec, err := record[catalog.Label](p, "label")
		if err == nil {
			v.wizard.SetLabel(ctx, rec)
		}
		return Result{}, err
	},
	"set_message": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		s, err := text(p, "message")
		if err == nil {
			v.wizard.SetMessage(ctx, s)
		}
		return Result{}, err
	},
	"set_custom_prompt": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		s, err := text(p, "prompt")
		if err == nil {
			v.wizard.SetCustomPrompt(ctx, s)
		}
		return Result{}, err
	},
	"set_audio_selection": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		rec, err := record[catalog.AudioSelection](p, "audioSelection")
		if err == nil {
			v.wizard.SetAudioSelection(ctx, rec)
		}
		return Result{}, err
	},
	"set_candle_name": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		s, err := text(p, "name")
		if err == nil {
			v.wizard.SetCandleName(ctx, s)
		}
		return Result{}, err
	},
	"set_model_file": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		rec, err := record[catalog.ModelFile](p, "modelFile")
		if err == nil {
			v.wizard.SetModelFile(ctx, rec)
		}
		return Result{}, err
	},
	"next_step": func(ctx context.Context, v *WizardView, _ map[string]any) (Result, error) {
		v.wizard.NextStep(ctx)
		return Result{Route: v.wizard.StepURL(v.wizard.State().CurrentStep)}, nil
	},
	"previous_step": func(ctx context.Context, v *WizardView, _ map[string]any) (Result, error) {
		v.wizard.PreviousStep(ctx)
		return Result{Route: v.wizard.StepURL(v.wizard.State().CurrentStep)}, nil
	},
	"continue": func(ctx context.Context, v *WizardView, _ map[string]any) (Result, error) {
		return Result{Route: v.wizard.Continue(ctx)}, nil
	},
	"go_to_step": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		raw, ok := p["step"]
		if !ok {
			return Result{}, fmt.Errorf("%w: step is required", ErrBadPayload)
		}
		step, err := parseStep(raw)
		if err != nil {
			return Result{}, err
		}
		if !v.wizard.GoToStep(ctx, step) {
			return Result{}, fmt.Errorf("%w: %d", ErrStepLocked, step)
		}
		return Result{Route: v.wizard.StepURL(step)}, nil
	},
	"edit_from_preview": func(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
		section, err := text(p, "section")
		if err != nil {
			return Result{}, err
		}
		return Result{Route: v.wizard.EditFromPreview(ctx, section)}, nil
	},
	"reset": func(ctx context.Context, v *WizardView, _ map[string]any) (Result, error) {
		v.wizard.Reset(ctx)
		return Result{Route: v.wizard.StepURL(wizard.FirstStep)}, nil
	},
}

// Events lists the event names Dispatch accepts.
func Events() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs one wizard operation named by event.
func (v *WizardView) Dispatch(ctx context.Context, event string, payload map[string]any) (Result, error) {
	h, ok := handlers[event]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return h(ctx, v, payload)
}

// setFragrance accepts either a full aroma record or an aromaId looked up
// in the catalog. waxColor is optional.
func setFragrance(ctx context.Context, v *WizardView, p map[string]any) (Result, error) {
	color, err := text(p, "waxColor")
	if err != nil {
		return Result{}, err
	}

	if id, _ := p["aromaId"].(string); id != "" {
		if v.catalog == nil {
			return Result{}, fmt.Errorf("%w: no catalog to resolve aromaId", ErrBadPayload)
		}
		aroma, err := catalog.FindAroma(ctx, v.catalog, id)
		if err != nil {
			return Result{}, err
		}
		v.wizard.SetFragrance(ctx, &aroma, color)
		return Result{}, nil
	}

	rec, err := record[catalog.Aroma](p, "fragrance")
	if err != nil {
		return Result{}, err
	}
	v.wizard.SetFragrance(ctx, rec, color)
	return Result{}, nil
}

// record decodes p[key] into a T. A missing or null key clears the
// selection and yields nil.
func record[T any](p map[string]any, key string) (*T, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, key, err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, key, err)
	}
	return &out, nil
}

func text(p map[string]any, key string) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrBadPayload, key)
	}
	return s, nil
}

func parseStep(raw any) (wizard.Step, error) {
	switch n := raw.(type) {
	case float64:
		if n == float64(int(n)) {
			return wizard.Step(n), nil
		}
	case int:
		return wizard.Step(n), nil
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return wizard.Step(i), nil
		}
	}
	return 0, fmt.Errorf("%w: step must be an integer", ErrBadPayload)
}
