// Package preview renders the 3D candle preview: it loads the base model,
// tints its wax, lays out the label, message and QR planes, and emits a
// scene description the browser paints. Asset failures degrade to
// placeholders; panics while building the scene trip a boundary that stays
// in its error state until retried.
package preview

import "strings"

// DefaultWaxColor is the neutral off-white used when no color is given.
const DefaultWaxColor = "#F5F5F0"

// DefaultModelURL is the base candle mesh.
const DefaultModelURL = "/models/candle.glb"

// LabelKind tells which presentation a label uses.
type LabelKind int

const (
	LabelNone LabelKind = iota
	LabelImage
	LabelText
)

func (k LabelKind) String() string {
	switch k {
	case LabelImage:
		return "image"
	case LabelText:
		return "text"
	default:
		return "none"
	}
}

// LabelContent is the label shown on the candle: an image, a text, or
// nothing. Callers pick exactly one; the renderer does not arbitrate.
type LabelContent struct {
	kind  LabelKind
	value string
}

// NoLabel is the empty label.
func NoLabel() LabelContent { return LabelContent{} }

// ImageLabel shows the image at url, which may be a data URI.
func ImageLabel(url string) LabelContent {
	if url == "" {
		return NoLabel()
	}
	return LabelContent{kind: LabelImage, value: url}
}

// TextLabel prints text on the label plane.
func TextLabel(text string) LabelContent {
	if strings.TrimSpace(text) == "" {
		return NoLabel()
	}
	return LabelContent{kind: LabelText, value: text}
}

// Kind returns the presentation.
func (l LabelContent) Kind() LabelKind { return l.kind }

// ImageURL returns the image URL, or "" for other kinds.
func (l LabelContent) ImageURL() string {
	if l.kind != LabelImage {
		return ""
	}
	return l.value
}

// Text returns the label text, or "" for other kinds.
func (l LabelContent) Text() string {
	if l.kind != LabelText {
		return ""
	}
	return l.value
}

// Props are the renderer inputs. The zero value renders the default candle.
type Props struct {
	WaxColor       string
	Label          LabelContent
	MessageText    string
	ShowQR         bool
	QRURL          string
	CustomModelURL string

	// Presentation only.
	AutoRotate bool
	Width      int
	Height     int
	ClassName  string
}

func (p Props) withDefaults() Props {
	if p.WaxColor == "" {
		p.WaxColor = DefaultWaxColor
	}
	if p.Width <= 0 {
		p.Width = 400
	}
	if p.Height <= 0 {
		p.Height = 400
	}
	return p
}

// ModelURL returns the mesh asset to load.
func (p Props) ModelURL() string {
	if p.CustomModelURL != "" {
		return p.CustomModelURL
	}
	return DefaultModelURL
}
