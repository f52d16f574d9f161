package preview

import (
	"context"
	"fmt"
	"sync"

	"github.com/gabrielmiguelok/candlekit/pkg/logging"
)

// Asset kinds reported to ViewerHooks.AssetLoaded.
const (
	AssetModel   = "model"
	AssetTexture = "texture"
)

// Load outcomes reported to ViewerHooks.AssetLoaded.
const (
	OutcomeReady = "ready"
	OutcomeError = "error"
	OutcomeStale = "stale"
)

// ViewerHooks are optional callbacks. They run without the viewer lock held.
type ViewerHooks struct {
	// Changed fires when an asset finishes loading and the scene changed.
	Changed func()

	// AssetLoaded reports each finished load.
	AssetLoaded func(kind, outcome string)

	// Tripped reports a render failure caught by the boundary.
	Tripped func(err error)
}

// ViewerOption configures a Viewer.
type ViewerOption func(*Viewer)

// WithViewerLogger sets the logger.
func WithViewerLogger(l logging.Logger) ViewerOption {
	return func(v *Viewer) {
		v.logger = l
	}
}

// WithViewerHooks installs callbacks.
func WithViewerHooks(h ViewerHooks) ViewerOption {
	return func(v *Viewer) {
		v.hooks = h
	}
}

// Viewer renders one customer's preview. Props changes start asset loads in
// the background; Scene reflects whatever has finished. Each asset moves
// from loading to ready or error on its own, and only the most recent
// request for an asset may update the scene.
type Viewer struct {
	loader AssetLoader
	logger logging.Logger
	hooks  ViewerHooks

	boundary Boundary

	mu           sync.Mutex
	props        Props
	model        *Model
	modelState   AssetState
	modelURL     string
	modelGen     uint64
	texture      *Texture
	textureState AssetState
	textureURL   string
	textureGen   uint64
	qr           QRCode
	qrURL        string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewViewer creates a viewer with default props and starts loading the
// default model.
func NewViewer(loader AssetLoader, opts ...ViewerOption) *Viewer {
	ctx, cancel := context.WithCancel(context.Background())
	v := &Viewer{
		loader: loader,
		logger: logging.NopLogger{},
		ctx:    ctx,
		cancel: cancel,
		qr:     PlaceholderQR(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With(logging.String("component", "preview"))
	v.boundary.OnTrip = v.tripped
	v.SetProps(Props{})
	return v
}

// SetProps replaces the props. Assets whose URL changed are reloaded.
func (v *Viewer) SetProps(p Props) {
	p = p.withDefaults()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.props = p
	if url := p.ModelURL(); url != v.modelURL {
		v.startModelLocked(url)
	}

	image := p.Label.ImageURL()
	if image != v.textureURL {
		v.startTextureLocked(image)
	}

	if p.QRURL != v.qrURL {
		v.qrURL = p.QRURL
		qr, err := EncodeQR(p.QRURL)
		if err != nil {
			v.logger.Warn("qr encoding failed, using placeholder", logging.Err(err))
		}
		v.qr = qr
	}
}

func (v *Viewer) startModelLocked(url string) {
	v.modelGen++
	v.modelURL = url
	v.model = nil
	v.modelState = AssetState{Status: StatusLoading}

	gen := v.modelGen
	v.wg.Add(1)
	go v.loadModel(url, gen)
}

func (v *Viewer) startTextureLocked(url string) {
	v.textureGen++
	v.textureURL = url
	v.texture = nil
	if url == "" {
		v.textureState = AssetState{}
		return
	}
	v.textureState = AssetState{Status: StatusLoading}

	gen := v.textureGen
	v.wg.Add(1)
	go v.loadTexture(url, gen)
}

func (v *Viewer) loadModel(url string, gen uint64) {
	defer v.wg.Done()

	m, err := guard(func() (*Model, error) { return v.loader.LoadModel(v.ctx, url) })

	v.mu.Lock()
	if gen != v.modelGen {
		v.mu.Unlock()
		v.loaded(AssetModel, OutcomeStale)
		return
	}
	outcome := OutcomeReady
	if err != nil {
		outcome = OutcomeError
		v.logger.Warn("model load failed, showing fallback cylinder",
			logging.String("url", url), logging.Err(err))
		v.model = FallbackModel(url)
		v.modelState = AssetState{Status: StatusError, Error: err.Error()}
	} else {
		v.model = m
		v.modelState = AssetState{Status: StatusReady}
	}
	v.mu.Unlock()

	v.loaded(AssetModel, outcome)
	v.changed()
}

func (v *Viewer) loadTexture(url string, gen uint64) {
	defer v.wg.Done()

	t, err := guard(func() (*Texture, error) { return v.loader.LoadTexture(v.ctx, url) })

	v.mu.Lock()
	if gen != v.textureGen {
		v.mu.Unlock()
		v.loaded(AssetTexture, OutcomeStale)
		return
	}
	outcome := OutcomeReady
	if err != nil {
		outcome = OutcomeError
		v.logger.Warn("label texture load failed", logging.String("url", shortURL(url)), logging.Err(err))
		v.textureState = AssetState{Status: StatusError, Error: err.Error()}
	} else {
		v.texture = t
		v.textureState = AssetState{Status: StatusReady}
	}
	v.mu.Unlock()

	v.loaded(AssetTexture, outcome)
	v.changed()
}

// guard turns a panic inside a loader into an asset error so one bad asset
// cannot take the process down.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("asset loader panic: %v", r)
		}
	}()
	return fn()
}

// Scene renders the current frame. After a render failure it returns the
// error scene until Retry is called.
func (v *Viewer) Scene() Scene {
	v.mu.Lock()
	f := frame{
		props:        v.props,
		model:        v.model,
		modelState:   v.modelState,
		texture:      v.texture,
		textureState: v.textureState,
		qr:           v.qr,
	}
	v.mu.Unlock()

	var s Scene
	if err := v.boundary.Run(func() { s = buildScene(f) }); err != nil {
		return errorScene(f.props, err)
	}
	return s
}

func (v *Viewer) tripped(re *RenderError) {
	v.logger.Error("preview render failed", logging.Err(re),
		logging.String("stack", string(re.Stack)))
	if v.hooks.Tripped != nil {
		v.hooks.Tripped(re)
	}
}

// Err returns the render failure holding the viewer in its error state.
func (v *Viewer) Err() error {
	return v.boundary.Err()
}

// Retry clears a render failure and reloads every asset from scratch.
func (v *Viewer) Retry() {
	v.boundary.Reset()

	v.mu.Lock()
	v.startModelLocked(v.props.ModelURL())
	v.startTextureLocked(v.props.Label.ImageURL())
	v.mu.Unlock()

	v.logger.Info("preview retry requested")
}

// Wait blocks until the loads started so far have finished.
func (v *Viewer) Wait() {
	v.wg.Wait()
}

// Close abandons in-flight loads and waits for them to return.
func (v *Viewer) Close() {
	v.cancel()
	v.wg.Wait()
}

func (v *Viewer) loaded(kind, outcome string) {
	if v.hooks.AssetLoaded != nil {
		v.hooks.AssetLoaded(kind, outcome)
	}
}

func (v *Viewer) changed() {
	if v.hooks.Changed != nil {
		v.hooks.Changed()
	}
}

// shortURL keeps data URIs out of logs.
func shortURL(url string) string {
	if len(url) > 64 {
		return url[:64] + "..."
	}
	return url
}
