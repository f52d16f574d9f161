// Package catalog holds the read-only records the personalization wizard
// lets a customer pick from, and the clients that fetch them.
package catalog

// MainOption is the top-level reason for the candle (gift, self-care, event...).
type MainOption struct {
	ID          string `json:"id" yaml:"id" msgpack:"id"`
	Name        string `json:"name" yaml:"name" msgpack:"name"`
	Description string `json:"description,omitempty" yaml:"description" msgpack:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty" yaml:"imageUrl" msgpack:"imageUrl,omitempty"`
	// HasPlaces marks options whose flow asks for a place before the impact.
	HasPlaces bool `json:"hasPlaces,omitempty" yaml:"hasPlaces" msgpack:"hasPlaces,omitempty"`
}

// Place is where the candle will live, offered for some main options.
type Place struct {
	ID           string `json:"id" yaml:"id" msgpack:"id"`
	Name         string `json:"name" yaml:"name" msgpack:"name"`
	MainOptionID string `json:"mainOptionId,omitempty" yaml:"mainOptionId" msgpack:"mainOptionId,omitempty"`
	Icon         string `json:"icon,omitempty" yaml:"icon" msgpack:"icon,omitempty"`
}

// IntendedImpact is the emotion the candle should evoke.
type IntendedImpact struct {
	ID           string `json:"id" yaml:"id" msgpack:"id"`
	Name         string `json:"name" yaml:"name" msgpack:"name"`
	Description  string `json:"description,omitempty" yaml:"description" msgpack:"description,omitempty"`
	MainOptionID string `json:"mainOptionId,omitempty" yaml:"mainOptionId" msgpack:"mainOptionId,omitempty"`
	Icon         string `json:"icon,omitempty" yaml:"icon" msgpack:"icon,omitempty"`
}

// Container is the vessel the wax is poured into.
type Container struct {
	ID          string  `json:"id" yaml:"id" msgpack:"id"`
	Name        string  `json:"name" yaml:"name" msgpack:"name"`
	Description string  `json:"description,omitempty" yaml:"description" msgpack:"description,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty" yaml:"imageUrl" msgpack:"imageUrl,omitempty"`
	ModelURL    string  `json:"modelUrl,omitempty" yaml:"modelUrl" msgpack:"modelUrl,omitempty"`
	Price       float64 `json:"price,omitempty" yaml:"price" msgpack:"price,omitempty"`
}

// OlfactivePyramid lists top (salida), heart (corazon) and base (fondo) notes.
type OlfactivePyramid struct {
	Salida  []string `json:"salida" yaml:"salida" msgpack:"salida"`
	Corazon []string `json:"corazon" yaml:"corazon" msgpack:"corazon"`
	Fondo   []string `json:"fondo" yaml:"fondo" msgpack:"fondo"`
}

// Aroma is a fragrance. Its Color is the wax tint suggested for it.
type Aroma struct {
	ID               string           `json:"id" yaml:"id" msgpack:"id"`
	Name             string           `json:"name" yaml:"name" msgpack:"name"`
	Description      string           `json:"description,omitempty" yaml:"description" msgpack:"description,omitempty"`
	Color            string           `json:"color,omitempty" yaml:"color" msgpack:"color,omitempty"`
	ImageURL         string           `json:"imageUrl,omitempty" yaml:"imageUrl" msgpack:"imageUrl,omitempty"`
	OlfativePyramid  OlfactivePyramid `json:"olfativePyramid" yaml:"olfativePyramid" msgpack:"olfativePyramid"`
	IntendedImpactID string           `json:"intendedImpactId,omitempty" yaml:"intendedImpactId" msgpack:"intendedImpactId,omitempty"`
}

// LabelType distinguishes catalog label designs from customer artwork.
type LabelType string

const (
	LabelTemplate LabelType = "template"
	LabelCustom   LabelType = "custom"
	LabelAI       LabelType = "ai"
)

// Label is the artwork or text wrapped on the candle.
type Label struct {
	ID       string    `json:"id" yaml:"id" msgpack:"id"`
	Name     string    `json:"name" yaml:"name" msgpack:"name"`
	Type     LabelType `json:"type,omitempty" yaml:"type" msgpack:"type,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty" yaml:"imageUrl" msgpack:"imageUrl,omitempty"`
	Text     string    `json:"text,omitempty" yaml:"text" msgpack:"text,omitempty"`
	// LocalPreview holds a data URL of an image the customer uploaded but
	// that has not been hosted yet. It can be large.
	LocalPreview string `json:"localPreview,omitempty" yaml:"-" msgpack:"localPreview,omitempty"`
}

// AudioKind says where an audio selection came from.
type AudioKind string

const (
	AudioSpotify   AudioKind = "spotify"
	AudioRecording AudioKind = "recording"
)

// AudioSelection is the song or voice note linked to the candle's QR code.
type AudioSelection struct {
	Kind       AudioKind `json:"kind" msgpack:"kind"`
	TrackID    string    `json:"trackId,omitempty" msgpack:"trackId,omitempty"`
	Name       string    `json:"name,omitempty" msgpack:"name,omitempty"`
	Artist     string    `json:"artist,omitempty" msgpack:"artist,omitempty"`
	PreviewURL string    `json:"previewUrl,omitempty" msgpack:"previewUrl,omitempty"`
	ShareURL   string    `json:"shareUrl,omitempty" msgpack:"shareUrl,omitempty"`
	// AudioBlob is a base64 recording kept client-side until checkout.
	AudioBlob string `json:"audioBlob,omitempty" msgpack:"audioBlob,omitempty"`
}

// ModelFile is a 3D asset generated for this candle. It is never persisted.
type ModelFile struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}
