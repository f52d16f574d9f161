package preview

// Status is the load or render state of the viewer or one of its assets.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// AssetState tracks one asynchronously loaded asset.
type AssetState struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PlaneKind identifies what a scene plane shows.
type PlaneKind string

const (
	PlaneLabelImage   PlaneKind = "label-image"
	PlaneLabelText    PlaneKind = "label-text"
	PlaneLabelLoading PlaneKind = "label-loading"
	PlaneLabelError   PlaneKind = "label-error"
	PlaneMessage      PlaneKind = "message"
	PlaneQR           PlaneKind = "qr"
)

// Plane is a flat quad attached to the candle body.
type Plane struct {
	Kind PlaneKind `json:"kind"`
	Transform

	Texture     *Texture `json:"texture,omitempty"`
	Text        string   `json:"text,omitempty"`
	QR          []string `json:"qr,omitempty"`
	Placeholder bool     `json:"placeholder,omitempty"`
}

// SceneMesh is a model part with its resolved material.
type SceneMesh struct {
	Name     string    `json:"name"`
	Material string    `json:"material,omitempty"`
	Color    string    `json:"color,omitempty"`
	Wax      bool      `json:"wax,omitempty"`
	Cylinder *Cylinder `json:"cylinder,omitempty"`
}

// SceneModel is the model as the browser should draw it.
type SceneModel struct {
	URL      string      `json:"url"`
	State    AssetState  `json:"state"`
	Fallback bool        `json:"fallback"`
	Offset   Vec3        `json:"offset"`
	Meshes   []SceneMesh `json:"meshes"`
}

// Scene is the complete render description of the preview.
type Scene struct {
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Model      SceneModel `json:"model"`
	Label      AssetState `json:"label"`
	Planes     []Plane    `json:"planes"`
	AutoRotate bool       `json:"autoRotate"`
	// RotationSpeed is zero unless AutoRotate is set.
	RotationSpeed float64 `json:"rotationSpeed"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	ClassName     string  `json:"className,omitempty"`
}

// Plane returns the first plane of kind k.
func (s Scene) Plane(k PlaneKind) (Plane, bool) {
	for _, p := range s.Planes {
		if p.Kind == k {
			return p, true
		}
	}
	return Plane{}, false
}

// frame is everything a scene is built from, captured under the viewer lock.
type frame struct {
	props        Props
	model        *Model
	modelState   AssetState
	texture      *Texture
	textureState AssetState
	qr           QRCode
}

// buildScene lays out the scene for f. It may panic on a malformed model;
// callers run it inside a Boundary.
func buildScene(f frame) Scene {
	p := f.props
	s := Scene{
		Status:     StatusReady,
		Model:      SceneModel{URL: p.ModelURL(), State: f.modelState},
		Label:      f.textureState,
		AutoRotate: p.AutoRotate,
		Width:      p.Width,
		Height:     p.Height,
		ClassName:  p.ClassName,
	}
	if p.AutoRotate {
		s.RotationSpeed = IdleRotationSpeed
	}
	if f.modelState.Status == StatusLoading {
		s.Status = StatusLoading
	}

	bounds := FallbackModel("").Bounds
	if f.model != nil {
		meshes, materials := tint(f.model, p.WaxColor)
		s.Model.Fallback = f.model.Fallback
		s.Model.Offset = f.model.Offset
		for i, mesh := range meshes {
			// tint repoints wax meshes at their clones; match on the original.
			sm := SceneMesh{Name: mesh.Name, Cylinder: mesh.Cylinder, Wax: isWax(f.model.Meshes[i], f.model.Materials)}
			if mesh.Material >= 0 {
				sm.Material = materials[mesh.Material].Name
				sm.Color = materials[mesh.Material].Color
			}
			s.Model.Meshes = append(s.Model.Meshes, sm)
		}
		bounds = f.model.Bounds
	}

	layout := computeLayout(bounds, f.texture.Aspect())

	switch p.Label.Kind() {
	case LabelImage:
		plane := Plane{Transform: layout.Label}
		switch f.textureState.Status {
		case StatusReady:
			plane.Kind = PlaneLabelImage
			plane.Texture = f.texture
		case StatusError:
			plane.Kind = PlaneLabelError
		default:
			plane.Kind = PlaneLabelLoading
		}
		s.Planes = append(s.Planes, plane)
	case LabelText:
		s.Planes = append(s.Planes, Plane{Kind: PlaneLabelText, Transform: layout.Label, Text: p.Label.Text()})
	}

	if p.MessageText != "" {
		s.Planes = append(s.Planes, Plane{Kind: PlaneMessage, Transform: layout.Message, Text: p.MessageText})
	}

	if p.ShowQR {
		s.Planes = append(s.Planes, Plane{
			Kind:        PlaneQR,
			Transform:   layout.QR,
			QR:          f.qr.Rows(),
			Placeholder: f.qr.Placeholder,
		})
	}
	return s
}

// errorScene is what the viewer shows after its boundary trips.
func errorScene(p Props, err error) Scene {
	return Scene{
		Status:    StatusError,
		Error:     err.Error(),
		Model:     SceneModel{URL: p.ModelURL(), State: AssetState{Status: StatusError}},
		Width:     p.Width,
		Height:    p.Height,
		ClassName: p.ClassName,
	}
}
