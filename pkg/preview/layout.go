package preview

import "math"

// Plane proportions relative to the model height.
const (
	labelHeightRatio   = 0.35
	messageHeightRatio = 0.12
	qrSizeRatio        = 0.25
	planeGap           = 0.02

	// Planes sit just outside the body so they do not z-fight with it.
	surfaceOffset = 0.005
)

// labelDirection is the side of the body the label is attached to, in the
// XZ plane. It faces the default camera position.
var labelDirection = Vec3{X: math.Sqrt2 / 2, Z: math.Sqrt2 / 2}

// Transform places a plane: its center and its rotation about the
// vertical axis.
type Transform struct {
	Position  Vec3    `json:"position"`
	RotationY float64 `json:"rotationY"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// Layout holds the plane transforms for a model.
type Layout struct {
	Label   Transform
	Message Transform
	QR      Transform
}

// facing returns the rotation about Y that turns a plane's normal to point
// radially outward through offset.
func facing(offset Vec3) float64 {
	return math.Atan2(offset.X, offset.Z)
}

// computeLayout places the label flush against the body, the message
// stacked below it and the QR code on the mirrored side. aspect is the
// label image width over height; non-positive means square.
func computeLayout(bounds Box3, aspect float64) Layout {
	size := bounds.Size()
	height := size.Y
	if height <= 0 {
		height = fallbackHeight
	}
	radius := math.Max(size.X, size.Z)/2 + surfaceOffset
	if aspect <= 0 {
		aspect = 1
	}

	labelH := height * labelHeightRatio
	labelW := math.Min(labelH*aspect, radius*2)
	labelY := bounds.Center().Y + height*0.05
	labelPos := Vec3{X: labelDirection.X * radius, Y: labelY, Z: labelDirection.Z * radius}

	msgH := height * messageHeightRatio
	msgPos := labelPos
	msgPos.Y = labelY - labelH/2 - planeGap - msgH/2

	qrSize := height * qrSizeRatio
	qrPos := Vec3{X: -labelPos.X, Y: bounds.Center().Y, Z: labelPos.Z}

	return Layout{
		Label:   Transform{Position: labelPos, RotationY: facing(labelPos), Width: labelW, Height: labelH},
		Message: Transform{Position: msgPos, RotationY: facing(msgPos), Width: labelW, Height: msgH},
		QR:      Transform{Position: qrPos, RotationY: facing(qrPos), Width: qrSize, Height: qrSize},
	}
}

// IdleRotationSpeed is the auto-rotation rate in radians per second. The
// painter turns the model by elapsed time times this rate.
const IdleRotationSpeed = 0.3
