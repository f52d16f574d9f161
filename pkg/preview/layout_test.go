package preview

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPlacesPlanesOnOppositeSides(t *testing.T) {
	bounds := NewBox3(Vec3{-1, -2, -1}, Vec3{1, 2, 1})
	l := computeLayout(bounds, 0)

	assert.Greater(t, l.Label.Position.X, 0.0)
	assert.Less(t, l.QR.Position.X, 0.0)
	assert.InDelta(t, l.Label.Position.X, -l.QR.Position.X, 1e-9)
	assert.InDelta(t, l.Label.Position.Z, l.QR.Position.Z, 1e-9)

	assert.InDelta(t, math.Pi/4, l.Label.RotationY, 1e-9)
	assert.InDelta(t, -math.Pi/4, l.QR.RotationY, 1e-9)
	assert.InDelta(t, math.Atan2(l.Message.Position.X, l.Message.Position.Z), l.Message.RotationY, 1e-9)
}

func TestLayoutPlanesSitOutsideTheBody(t *testing.T) {
	bounds := NewBox3(Vec3{-1, -2, -1}, Vec3{1, 2, 1})
	l := computeLayout(bounds, 0)

	for name, tr := range map[string]Transform{"label": l.Label, "message": l.Message, "qr": l.QR} {
		r := math.Hypot(tr.Position.X, tr.Position.Z)
		assert.Greater(t, r, 1.0, name)
	}
}

func TestLayoutStacksMessageBelowLabel(t *testing.T) {
	l := computeLayout(NewBox3(Vec3{-1, -2, -1}, Vec3{1, 2, 1}), 0)

	labelBottom := l.Label.Position.Y - l.Label.Height/2
	messageTop := l.Message.Position.Y + l.Message.Height/2
	assert.Less(t, messageTop, labelBottom)
	assert.Equal(t, l.Label.Position.X, l.Message.Position.X)
	assert.Equal(t, l.Label.Width, l.Message.Width)
}

func TestLayoutKeepsImageAspect(t *testing.T) {
	l := computeLayout(NewBox3(Vec3{-2, -2, -2}, Vec3{2, 2, 2}), 2)
	assert.InDelta(t, 2*l.Label.Height, l.Label.Width, 1e-9)

	wide := computeLayout(NewBox3(Vec3{-0.1, -2, -0.1}, Vec3{0.1, 2, 0.1}), 10)
	assert.LessOrEqual(t, wide.Label.Width, 2*(0.1+surfaceOffset)+1e-9, "label never wider than the body")
}

func TestEncodeQR(t *testing.T) {
	qr, err := EncodeQR("https://open.spotify.com/track/123")
	require.NoError(t, err)
	assert.False(t, qr.Placeholder)

	n := len(qr.Modules)
	assert.GreaterOrEqual(t, n, 21)
	assert.Equal(t, 0, (n-17)%4, "qr sizes are 17+4v")
	for _, row := range qr.Modules {
		require.Len(t, row, n)
	}
	assert.True(t, qr.Modules[0][0], "finder pattern corner is dark")

	rows := qr.Rows()
	require.Len(t, rows, n)
	assert.True(t, strings.HasPrefix(rows[0], "1111111"))
}

func TestEncodeQRPlaceholder(t *testing.T) {
	qr, err := EncodeQR("")
	require.NoError(t, err)
	assert.True(t, qr.Placeholder)
	assert.Len(t, qr.Modules, 21)
	assert.Equal(t, PlaceholderQR().Rows(), qr.Rows())
	assert.Equal(t, "1111111", qr.Rows()[0][:7])
	assert.Equal(t, "1111111", qr.Rows()[0][14:])
}
