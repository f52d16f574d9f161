package wizard

import (
	"context"
	"net/url"
	"strings"
)

// Route roots for the personalization screens.
const (
	RouteBase    = "/personalization"
	RoutePreview = RouteBase + "/preview"
)

var stepRoutes = map[Step]string{
	StepMainOption:     RouteBase + "/main-option",
	StepIntendedImpact: RouteBase + "/intended-impact",
	StepContainer:      RouteBase + "/container",
	StepFragrance:      RouteBase + "/fragrance",
	StepLabel:          RouteBase + "/label",
	StepMessage:        RouteBase + "/message",
	StepAudio:          RouteBase + "/audio",
	StepName:           RouteBase + "/name",
}

// previewSections maps the sections of the preview screen to the step that
// edits them. Both the camelCase and kebab-case spellings are accepted.
var previewSections = map[string]Step{
	"mainOption":     StepMainOption,
	"main-option":    StepMainOption,
	"place":          StepIntendedImpact,
	"emotion":        StepIntendedImpact,
	"intendedImpact": StepIntendedImpact,
	"container":      StepContainer,
	"fragrance":      StepFragrance,
	"aroma":          StepFragrance,
	"label":          StepLabel,
	"message":        StepMessage,
	"audio":          StepAudio,
	"music":          StepAudio,
	"name":           StepName,
	"candleName":     StepName,
}

// StepURL returns the route for step with the current selections appended
// as query parameters. Unknown steps get the first step's route.
func (w *Wizard) StepURL(step Step) string {
	route, ok := stepRoutes[step]
	if !ok {
		route = stepRoutes[FirstStep]
	}

	s := w.State()
	var params []string
	add := func(key, value string) {
		if value != "" {
			params = append(params, key+"="+url.QueryEscape(value))
		}
	}
	if s.MainOption != nil {
		add("mainOptionId", s.MainOption.ID)
	}
	if s.Place != nil {
		add("placeId", s.Place.ID)
	}
	if s.IntendedImpact != nil {
		add("emotion", s.IntendedImpact.ID)
	}
	if s.Container != nil {
		add("container", s.Container.ID)
	}
	if s.Fragrance != nil {
		add("fragrance", s.Fragrance.ID)
		add("waxColor", s.WaxColor)
	}
	if s.Label != nil {
		add("label", s.Label.ID)
	}
	add("message", s.Message)

	if len(params) == 0 {
		return route
	}
	return route + "?" + strings.Join(params, "&")
}

// EditFromPreview flags that the next continue should come back to the
// preview and returns the route that edits section. Unknown sections get
// the preview route itself.
func (w *Wizard) EditFromPreview(ctx context.Context, section string) string {
	w.SetReturnToPreview(ctx, true)

	step, ok := previewSections[section]
	if !ok {
		return RoutePreview
	}
	return stepRoutes[step] + "?from=preview"
}

// Continue performs the "next" action of a step screen and returns where to
// go. While returning to the preview it clears the flag and goes there;
// otherwise it advances one step.
func (w *Wizard) Continue(ctx context.Context) string {
	var route string
	w.update(ctx, heavyNone, func(s *State) {
		if s.ReturnToPreview {
			s.ReturnToPreview = false
			route = RoutePreview
			return
		}
		if s.CurrentStep < LastStep {
			s.CurrentStep++
			s.raise(s.CurrentStep)
			return
		}
		route = RoutePreview
	})
	if route != "" {
		return route
	}
	return w.StepURL(w.State().CurrentStep)
}
