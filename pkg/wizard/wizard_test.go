package wizard

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/snapshot"
)

func hydrated(t *testing.T, opts ...Option) *Wizard {
	t.Helper()
	w := New(opts...)
	w.Hydrate(context.Background())
	return w
}

func TestExampleScenario(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)

	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1", Name: "Regalo"})
	assert.Equal(t, Step(2), w.State().MaxStepReached)

	w.SetFragrance(ctx, &catalog.Aroma{ID: "a1", Color: "#ABCDEF"}, "#ABCDEF")
	s := w.State()
	assert.Equal(t, "#ABCDEF", s.WaxColor)
	assert.Equal(t, Step(5), s.MaxStepReached)

	w.SetLabel(ctx, nil)
	s = w.State()
	assert.Nil(t, s.Label)
	assert.Equal(t, Step(5), s.MaxStepReached)
}

func TestMonotonicityUnderRandomCalls(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)
	rng := rand.New(rand.NewSource(7))

	ops := []func(){
		func() { w.SetMainOption(ctx, &catalog.MainOption{ID: "m"}) },
		func() { w.SetMainOption(ctx, nil) },
		func() { w.SetIntendedImpact(ctx, &catalog.IntendedImpact{ID: "i"}) },
		func() { w.SetContainer(ctx, &catalog.Container{ID: "c"}) },
		func() { w.SetFragrance(ctx, &catalog.Aroma{ID: "a"}, "") },
		func() { w.SetFragrance(ctx, nil, "") },
		func() { w.SetLabel(ctx, &catalog.Label{ID: "l"}) },
		func() { w.SetMessage(ctx, "   ") },
		func() { w.SetMessage(ctx, "feliz dia") },
		func() { w.SetAudioSelection(ctx, &catalog.AudioSelection{Kind: catalog.AudioSpotify}) },
		func() { w.SetCandleName(ctx, "") },
		func() { w.NextStep(ctx) },
		func() { w.PreviousStep(ctx) },
		func() { w.GoToStep(ctx, Step(rng.Intn(10))) },
		func() { w.Reset(ctx) },
	}

	prevMax := w.State().MaxStepReached
	for i := 0; i < 2000; i++ {
		idx := rng.Intn(len(ops))
		ops[idx]()
		s := w.State()
		require.LessOrEqual(t, s.CurrentStep, s.MaxStepReached)
		require.GreaterOrEqual(t, s.CurrentStep, FirstStep)
		require.LessOrEqual(t, s.MaxStepReached, LastStep)
		if idx != len(ops)-1 {
			require.GreaterOrEqual(t, s.MaxStepReached, prevMax, "op %d lowered the high-water mark", idx)
		}
		prevMax = s.MaxStepReached
	}
}

func TestNavigationClamping(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)

	w.PreviousStep(ctx)
	assert.Equal(t, FirstStep, w.State().CurrentStep)

	for i := 0; i < 20; i++ {
		w.NextStep(ctx)
	}
	s := w.State()
	assert.Equal(t, LastStep, s.CurrentStep)
	assert.Equal(t, LastStep, s.MaxStepReached)
}

func TestGoToStepGuard(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)
	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})

	assert.False(t, w.CanGoToStep(3))
	assert.False(t, w.GoToStep(ctx, 3))
	assert.Equal(t, FirstStep, w.State().CurrentStep)

	assert.True(t, w.GoToStep(ctx, 2))
	assert.Equal(t, Step(2), w.State().CurrentStep)

	assert.False(t, w.GoToStep(ctx, 0))
	assert.False(t, w.CanGoToStep(9))
}

func TestClearingSelectionKeepsUnlockedSteps(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)
	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})
	w.SetIntendedImpact(ctx, &catalog.IntendedImpact{ID: "i1"})

	w.SetMainOption(ctx, nil)
	s := w.State()
	assert.Nil(t, s.MainOption)
	assert.Equal(t, Step(3), s.MaxStepReached)
	assert.False(t, w.IsStepCompleted(StepMainOption))
}

func TestProgressIsPrefixCount(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)
	assert.Equal(t, 0, w.Progress())

	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})
	w.SetIntendedImpact(ctx, &catalog.IntendedImpact{ID: "i1"})
	w.SetFragrance(ctx, &catalog.Aroma{ID: "a1"}, "#ABCDEF")
	assert.Equal(t, 25, w.Progress())

	w.SetContainer(ctx, &catalog.Container{ID: "c1"})
	assert.Equal(t, 50, w.Progress())

	w.SetMessage(ctx, "hola")
	assert.Equal(t, 50, w.Progress(), "label still missing")

	w.SetLabel(ctx, &catalog.Label{ID: "l1"})
	assert.Equal(t, 75, w.Progress())

	w.SetAudioSelection(ctx, &catalog.AudioSelection{Kind: catalog.AudioSpotify, TrackID: "t"})
	assert.Equal(t, 88, w.Progress())

	w.SetCandleName(ctx, "Luz de mama")
	assert.Equal(t, 100, w.Progress())
}

func TestProgressZeroBeforeHydrationAndWhenPrerendering(t *testing.T) {
	ctx := context.Background()

	w := New()
	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})
	assert.Equal(t, 0, w.Progress())
	assert.True(t, w.IsStepCompleted(StepMainOption))

	pre := New(WithPrerender())
	pre.Hydrate(ctx)
	pre.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})
	assert.Equal(t, 0, pre.Progress())
}

func TestHydrationGate(t *testing.T) {
	ctx := context.Background()
	w := New()
	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})

	assert.False(t, w.CanContinueFromStep(StepMainOption))
	w.Hydrate(ctx)
	assert.True(t, w.CanContinueFromStep(StepMainOption))
}

func TestTrimSemantics(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)

	w.SetCandleName(ctx, "   ")
	assert.Equal(t, FirstStep, w.State().MaxStepReached)
	assert.False(t, w.IsStepCompleted(StepName))

	w.SetMessage(ctx, "   ")
	assert.False(t, w.IsStepCompleted(StepMessage))
	assert.False(t, w.CanContinueFromStep(StepMessage))
	assert.Equal(t, FirstStep, w.State().MaxStepReached)

	w.SetMessage(ctx, " gracias ")
	assert.True(t, w.CanContinueFromStep(StepMessage))
	assert.Equal(t, StepAudio, w.State().MaxStepReached)
}

func TestFragranceAndWaxColorMoveTogether(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)

	w.SetFragrance(ctx, &catalog.Aroma{ID: "a1", Color: "#112233"}, "")
	assert.Equal(t, "#112233", w.State().WaxColor)

	w.SetFragrance(ctx, &catalog.Aroma{ID: "a2"}, "")
	assert.Equal(t, DefaultWaxColor, w.State().WaxColor)

	w.SetFragrance(ctx, nil, "#FFFFFF")
	s := w.State()
	assert.Nil(t, s.Fragrance)
	assert.Empty(t, s.WaxColor)
	assert.Equal(t, StepLabel, s.MaxStepReached)
}

func TestResetRestoresInitialValues(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)
	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})
	w.SetMessage(ctx, "hola")
	w.SetCustomPrompt(ctx, "bosque")
	w.SetCandleName(ctx, "Vela")
	w.SetModelFile(ctx, &catalog.ModelFile{Name: "x.glb"})
	w.EditFromPreview(ctx, "message")
	w.NextStep(ctx)

	w.Reset(ctx)
	s := w.State()

	want := initialState()
	want.Hydrated = true
	assert.Equal(t, want, s)
	assert.Equal(t, "", s.Message)
	assert.Nil(t, s.MainOption)
	assert.False(t, w.CanContinueFromStep(StepMainOption))
	assert.Equal(t, 0, w.Progress())
}

func TestStateIsACopy(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)
	w.SetLabel(ctx, &catalog.Label{ID: "l1", Text: "hola"})

	s := w.State()
	s.Label.Text = "changed"
	assert.Equal(t, "hola", w.State().Label.Text)
}

func TestHooksChanged(t *testing.T) {
	ctx := context.Background()
	var seen []Step
	w := hydrated(t, WithHooks(Hooks{Changed: func(s State) { seen = append(seen, s.MaxStepReached) }}))

	w.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})
	w.SetIntendedImpact(ctx, &catalog.IntendedImpact{ID: "i1"})
	assert.Equal(t, []Step{1, 2, 3}, seen)
}

func TestHydrateRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	ms := snapshot.NewMemoryStore()
	defer ms.Close()
	store := snapshot.NewKeyed[Snapshot](ms, "s1")

	first := hydrated(t, WithStore(store))
	first.SetMainOption(ctx, &catalog.MainOption{ID: "m1"})
	first.SetIntendedImpact(ctx, &catalog.IntendedImpact{ID: "i1"})
	first.SetModelFile(ctx, &catalog.ModelFile{Name: "gen.glb"})
	first.NextStep(ctx)

	second := New(WithStore(store))
	assert.False(t, second.Hydrated())
	second.Hydrate(ctx)

	s := second.State()
	assert.True(t, s.Hydrated)
	assert.Equal(t, "i1", s.IntendedImpact.ID)
	assert.Equal(t, Step(2), s.CurrentStep)
	assert.Equal(t, Step(3), s.MaxStepReached)
	assert.Nil(t, s.ModelFile, "model files are never persisted")
}

func TestRestoreRepairsSteps(t *testing.T) {
	s := Snapshot{CurrentStep: 7, MaxStepReached: 3}.restore()
	assert.Equal(t, Step(3), s.CurrentStep)

	s = Snapshot{CurrentStep: -1, MaxStepReached: 42}.restore()
	assert.Equal(t, FirstStep, s.CurrentStep)
	assert.Equal(t, LastStep, s.MaxStepReached)
}

func TestStepURL(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)
	assert.Equal(t, "/personalization/container", w.StepURL(StepContainer))

	w.SetMainOption(ctx, &catalog.MainOption{ID: "m 1"})
	w.SetPlace(ctx, &catalog.Place{ID: "p1"})
	w.SetIntendedImpact(ctx, &catalog.IntendedImpact{ID: "calma"})
	w.SetFragrance(ctx, &catalog.Aroma{ID: "a1"}, "#ABCDEF")
	w.SetMessage(ctx, "te quiero & más")

	got := w.StepURL(StepLabel)
	assert.Equal(t,
		"/personalization/label?mainOptionId=m+1&placeId=p1&emotion=calma&fragrance=a1&waxColor=%23ABCDEF&message=te+quiero+%26+m%C3%A1s",
		got)

	assert.True(t, strings.HasPrefix(w.StepURL(Step(42)), "/personalization/main-option?"))
}

func TestEditFromPreviewAndContinue(t *testing.T) {
	ctx := context.Background()
	w := hydrated(t)

	assert.Equal(t, "/personalization/message?from=preview", w.EditFromPreview(ctx, "message"))
	assert.True(t, w.State().ReturnToPreview)

	assert.Equal(t, RoutePreview, w.Continue(ctx))
	assert.False(t, w.State().ReturnToPreview)

	assert.Equal(t, RoutePreview, w.EditFromPreview(ctx, "nope"))
	assert.True(t, w.State().ReturnToPreview)
	w.SetReturnToPreview(ctx, false)

	assert.Equal(t, "/personalization/intended-impact", w.Continue(ctx))
	assert.Equal(t, Step(2), w.State().MaxStepReached)
}
