package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/candlekit/pkg/resilience"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

type assetServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newAssetServer(t *testing.T, mux *http.ServeMux) *assetServer {
	s := &assetServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestHTTPLoaderCachesModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/models/candle.glb", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "model/gltf-binary")
		w.Write(glb(candleGLTF))
	})
	srv := newAssetServer(t, mux)

	l, err := NewHTTPLoader(4, WithBaseURL(srv.URL), WithLoaderRetry(fastRetry()))
	require.NoError(t, err)

	m1, err := l.LoadModel(context.Background(), DefaultModelURL)
	require.NoError(t, err)
	m2, err := l.LoadModel(context.Background(), DefaultModelURL)
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.Equal(t, 1, l.CachedModels())
}

func TestHTTPLoaderDoesNotRetryClientErrors(t *testing.T) {
	srv := newAssetServer(t, http.NewServeMux())
	l, err := NewHTTPLoader(4, WithBaseURL(srv.URL), WithLoaderRetry(fastRetry()))
	require.NoError(t, err)

	_, err = l.LoadModel(context.Background(), "/missing.glb")
	require.Error(t, err)
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.Equal(t, 0, l.CachedModels())
}

func TestHTTPLoaderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/flaky.gltf", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(candleGLTF))
	})
	srv := newAssetServer(t, mux)
	l, err := NewHTTPLoader(4, WithBaseURL(srv.URL), WithLoaderRetry(fastRetry()))
	require.NoError(t, err)

	m, err := l.LoadModel(context.Background(), "/flaky.gltf")
	require.NoError(t, err)
	assert.Len(t, m.Meshes, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPLoaderEnforcesSizeLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/big.glb", func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
	})
	srv := newAssetServer(t, mux)
	l, err := NewHTTPLoader(4, WithBaseURL(srv.URL), WithMaxBytes(1024), WithLoaderRetry(fastRetry()))
	require.NoError(t, err)

	_, err = l.LoadModel(context.Background(), "/big.glb")
	assert.ErrorIs(t, err, ErrAssetTooLarge)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestHTTPLoaderRejectsRelativeURLWithoutBase(t *testing.T) {
	l, err := NewHTTPLoader(4)
	require.NoError(t, err)
	_, err = l.LoadModel(context.Background(), DefaultModelURL)
	assert.Error(t, err)
}

func TestHTTPLoaderTextures(t *testing.T) {
	img := pngBytes(t, 30, 20)
	mux := http.NewServeMux()
	mux.HandleFunc("/label.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	})
	mux.HandleFunc("/placeholder.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	})
	srv := newAssetServer(t, mux)
	l, err := NewHTTPLoader(4, WithBaseURL(srv.URL), WithLoaderRetry(fastRetry()))
	require.NoError(t, err)
	ctx := context.Background()

	tex, err := l.LoadTexture(ctx, "/label.png")
	require.NoError(t, err)
	assert.Equal(t, 30, tex.Width)
	assert.Equal(t, 20, tex.Height)
	assert.InDelta(t, 1.5, tex.Aspect(), 1e-9)
	assert.Equal(t, "/label.png", tex.URL)

	svg, err := l.LoadTexture(ctx, "/placeholder.svg")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", svg.ContentType)
	assert.Equal(t, 0.0, svg.Aspect())

	_, err = l.LoadTexture(ctx, "/page")
	assert.ErrorIs(t, err, ErrNotImage)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 4, 8))
	before := srv.hits.Load()
	inline, err := l.LoadTexture(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, 4, inline.Width)
	assert.Equal(t, before, srv.hits.Load(), "data uris are decoded locally")

	_, err = l.LoadTexture(ctx, "data:image/png;base64,"+strings.Repeat("!", 8))
	assert.ErrorIs(t, err, ErrNotImage)
}
