// Package storefront serves the candle personalization wizard: one live
// WizardView per browser session, its HTTP API, and the live channel that
// pushes state and preview changes to the page.
package storefront

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/core"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/preview"
	"github.com/gabrielmiguelok/candlekit/pkg/pubsub"
	"github.com/gabrielmiguelok/candlekit/pkg/wizard"
)

// Assign keys pushed to live clients.
const (
	AssignState = "state"
	AssignScene = "scene"
)

// Live events.
const (
	EventDiff  = "diff"
	EventRoute = "route"
)

// StepView describes one step for the page's step list.
type StepView struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Completed bool   `json:"completed"`
	Unlocked  bool   `json:"unlocked"`
}

// Selections are the customer's choices so far.
type Selections struct {
	MainOption     *catalog.MainOption     `json:"mainOption,omitempty"`
	Place          *catalog.Place          `json:"place,omitempty"`
	IntendedImpact *catalog.IntendedImpact `json:"intendedImpact,omitempty"`
	Container      *catalog.Container      `json:"container,omitempty"`
	Fragrance      *catalog.Aroma          `json:"fragrance,omitempty"`
	WaxColor       string                  `json:"waxColor,omitempty"`
	Label          *catalog.Label          `json:"label,omitempty"`
	Message        string                  `json:"message,omitempty"`
	CustomPrompt   string                  `json:"customPrompt,omitempty"`
	AudioSelection *catalog.AudioSelection `json:"audioSelection,omitempty"`
	CandleName     string                  `json:"candleName,omitempty"`
	ModelFile      *catalog.ModelFile      `json:"modelFile,omitempty"`
}

// ViewState is the JSON view of a session's wizard.
type ViewState struct {
	Session         string     `json:"session"`
	Hydrated        bool       `json:"hydrated"`
	CurrentStep     int        `json:"currentStep"`
	MaxStepReached  int        `json:"maxStepReached"`
	Progress        int        `json:"progress"`
	CanContinue     bool       `json:"canContinue"`
	ReturnToPreview bool       `json:"returnToPreview"`
	Steps           []StepView `json:"steps"`
	Selections      Selections `json:"selections"`
}

// WizardView is the live component behind one customer's wizard page.
type WizardView struct {
	core.BaseComponent

	session      string
	wizard       *wizard.Wizard
	viewer       *preview.Viewer
	catalog      catalog.Reader
	defaultModel string
	broadcaster  *pubsub.Broadcaster
	logger       logging.Logger
	render       *pageRenderer

	// ready is set once viewer is assigned; the viewer's first load may
	// finish before that.
	ready atomic.Bool

	// refreshMu orders preview updates; each one reads the wizard's
	// latest state so an overtaken hook cannot apply older props.
	refreshMu sync.Mutex

	// pushMu keeps diffs in the order the changes happened.
	pushMu sync.Mutex
}

// Name implements core.Component.
func (v *WizardView) Name() string { return "wizard" }

// Session returns the session ID the view belongs to.
func (v *WizardView) Session() string { return v.session }

// Wizard returns the underlying wizard.
func (v *WizardView) Wizard() *wizard.Wizard { return v.wizard }

// Viewer returns the preview viewer.
func (v *WizardView) Viewer() *preview.Viewer { return v.viewer }

// Topic is the pub/sub topic live updates for this session go to.
func (v *WizardView) Topic() string { return Topic(v.session) }

// Topic returns the live topic for session.
func Topic(session string) string { return "wizard:" + session }

// Mount hydrates the wizard and publishes the first view. Deep links to a
// step are applied per request by the page handler, not here, since a view
// outlives the request that mounted it.
func (v *WizardView) Mount(ctx context.Context, _ core.Params, _ core.Session) error {
	v.wizard.Hydrate(ctx)
	v.refresh()
	return nil
}

// HandleEvent implements core.Component.
func (v *WizardView) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	res, err := v.Dispatch(ctx, event, payload)
	if err != nil {
		return err
	}
	if res.Route != "" {
		v.publish(ctx, EventRoute, res)
	}
	return nil
}

// HandleInfo implements core.Component. It understands "retry_preview".
func (v *WizardView) HandleInfo(ctx context.Context, msg any) error {
	if msg == "retry_preview" {
		v.viewer.Retry()
	}
	return nil
}

// Render implements core.Component.
func (v *WizardView) Render(ctx context.Context) core.Renderer {
	return v.render.page(v)
}

// Terminate stops background preview loads. The wizard's snapshot stays
// in storage for the customer's next visit.
func (v *WizardView) Terminate(ctx context.Context, reason core.TerminateReason) error {
	v.logger.Debug("wizard view terminated", logging.String("reason", reason.String()))
	v.viewer.Close()
	return nil
}

// View builds the JSON view of the wizard.
func (v *WizardView) View() ViewState {
	return v.viewOf(v.wizard.State())
}

func (v *WizardView) viewOf(s wizard.State) ViewState {
	vs := ViewState{
		Session:         v.session,
		Hydrated:        s.Hydrated,
		CurrentStep:     int(s.CurrentStep),
		MaxStepReached:  int(s.MaxStepReached),
		Progress:        v.wizard.Progress(),
		CanContinue:     v.wizard.CanContinueFromStep(s.CurrentStep),
		ReturnToPreview: s.ReturnToPreview,
		Selections: Selections{
			MainOption:     s.MainOption,
			Place:          s.Place,
			IntendedImpact: s.IntendedImpact,
			Container:      s.Container,
			Fragrance:      s.Fragrance,
			WaxColor:       s.WaxColor,
			Label:          s.Label,
			Message:        s.Message,
			CustomPrompt:   s.CustomPrompt,
			AudioSelection: s.AudioSelection,
			CandleName:     s.CandleName,
			ModelFile:      s.ModelFile,
		},
	}
	for step := wizard.FirstStep; step <= wizard.LastStep; step++ {
		vs.Steps = append(vs.Steps, StepView{
			Number:    int(step),
			Name:      step.String(),
			URL:       v.wizard.StepURL(step),
			Completed: s.Completed(step),
			Unlocked:  step <= s.MaxStepReached,
		})
	}
	return vs
}

// Scene returns the current preview scene.
func (v *WizardView) Scene() preview.Scene {
	return v.viewer.Scene()
}

// stateChanged is the wizard's Changed hook. Hooks from concurrent
// updates can run out of order, so the snapshot passed in is not used.
func (v *WizardView) stateChanged(wizard.State) {
	v.refresh()
}

// sceneChanged is the viewer's Changed hook.
func (v *WizardView) sceneChanged() {
	if !v.ready.Load() {
		return
	}
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	v.Assigns().Set(AssignScene, v.viewer.Scene())
	v.pushDiff()
}

func (v *WizardView) refresh() {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	s := v.wizard.State()
	v.viewer.SetProps(previewProps(s, v.wizard.LabelPreview(), v.defaultModel))
	v.Assigns().SetAll(map[string]any{
		AssignState: v.viewOf(s),
		AssignScene: v.viewer.Scene(),
	})
	v.pushDiff()
}

func (v *WizardView) pushDiff() {
	v.pushMu.Lock()
	defer v.pushMu.Unlock()

	diff := v.Assigns().Changed()
	if len(diff) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v.publish(ctx, EventDiff, diff)
}

func (v *WizardView) publish(ctx context.Context, event string, payload any) {
	if v.broadcaster == nil {
		return
	}
	if err := v.broadcaster.Broadcast(ctx, v.Topic(), event, payload); err != nil {
		v.logger.Warn("live update not published", logging.String("event", event), logging.Err(err))
	}
}
