package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gabrielmiguelok/candlekit/pkg/resilience"
)

var (
	// ErrAssetTooLarge is returned for assets over the loader's byte limit.
	ErrAssetTooLarge = errors.New("asset too large")

	// ErrNotImage is returned when a label URL does not serve an image.
	ErrNotImage = errors.New("asset is not an image")

	errAssetClient = errors.New("asset request rejected")
)

// Texture is a label image the browser can map onto the label plane.
type Texture struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// Aspect is width over height, or 0 when the size is unknown.
func (t *Texture) Aspect() float64 {
	if t == nil || t.Width <= 0 || t.Height <= 0 {
		return 0
	}
	return float64(t.Width) / float64(t.Height)
}

// AssetLoader fetches the preview's model and label texture.
type AssetLoader interface {
	LoadModel(ctx context.Context, url string) (*Model, error)
	LoadTexture(ctx context.Context, url string) (*Texture, error)
}

// Default loader limits.
const (
	DefaultMaxAssetBytes  = 16 << 20
	DefaultModelCacheSize = 32
)

// HTTPLoader loads assets with unauthenticated GETs. Relative URLs are
// resolved against the base URL. Parsed models are cached by URL and
// shared between viewers.
type HTTPLoader struct {
	base     *url.URL
	http     *http.Client
	breaker  *resilience.Breaker
	retry    *resilience.RetryConfig
	maxBytes int64
	models   *lru.Cache[string, *Model]
}

// LoaderOption configures an HTTPLoader.
type LoaderOption func(*HTTPLoader)

// WithBaseURL sets the URL relative asset paths resolve against.
func WithBaseURL(base string) LoaderOption {
	return func(l *HTTPLoader) {
		if u, err := url.Parse(base); err == nil && u.IsAbs() {
			l.base = u
		}
	}
}

// WithMaxBytes caps the size of a fetched asset.
func WithMaxBytes(n int64) LoaderOption {
	return func(l *HTTPLoader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithLoaderHTTPClient overrides the underlying *http.Client.
func WithLoaderHTTPClient(c *http.Client) LoaderOption {
	return func(l *HTTPLoader) {
		l.http = c
	}
}

// WithLoaderRetry overrides the retry policy.
func WithLoaderRetry(cfg *resilience.RetryConfig) LoaderOption {
	return func(l *HTTPLoader) {
		l.retry = cfg
	}
}

// WithLoaderBreaker overrides the circuit breaker guarding the asset host.
func WithLoaderBreaker(b *resilience.Breaker) LoaderOption {
	return func(l *HTTPLoader) {
		l.breaker = b
	}
}

// NewHTTPLoader creates a loader caching up to cacheSize parsed models.
func NewHTTPLoader(cacheSize int, opts ...LoaderOption) (*HTTPLoader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultModelCacheSize
	}
	cache, err := lru.New[string, *Model](cacheSize)
	if err != nil {
		return nil, err
	}

	l := &HTTPLoader{
		http:     &http.Client{Timeout: 20 * time.Second},
		breaker:  resilience.NewBreaker(nil),
		retry:    resilience.DefaultRetryConfig(),
		maxBytes: DefaultMaxAssetBytes,
		models:   cache,
	}
	for _, opt := range opts {
		opt(l)
	}
	cfg := *l.retry
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool {
			return !errors.Is(err, errAssetClient) && !errors.Is(err, ErrAssetTooLarge)
		}
	}
	l.retry = &cfg
	return l, nil
}

// LoadModel returns the parsed model at rawURL, from cache when possible.
func (l *HTTPLoader) LoadModel(ctx context.Context, rawURL string) (*Model, error) {
	target, err := l.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	if m, ok := l.models.Get(target); ok {
		return m, nil
	}

	data, _, err := l.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	m, err := ParseModel(rawURL, data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", rawURL, err)
	}
	l.models.Add(target, m)
	return m, nil
}

// LoadTexture checks that rawURL serves an image and reads its size.
// Data URIs are decoded in place.
func (l *HTTPLoader) LoadTexture(ctx context.Context, rawURL string) (*Texture, error) {
	if strings.HasPrefix(rawURL, "data:") {
		contentType, data, err := decodeDataURI(rawURL)
		if err != nil {
			return nil, err
		}
		return textureFrom(rawURL, contentType, data)
	}

	target, err := l.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	data, contentType, err := l.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return textureFrom(rawURL, contentType, data)
}

// CachedModels returns the number of parsed models held.
func (l *HTTPLoader) CachedModels() int {
	return l.models.Len()
}

func (l *HTTPLoader) resolve(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("asset url %q: %w", rawURL, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if l.base == nil {
		return "", fmt.Errorf("asset url %q is relative and no base url is set", rawURL)
	}
	return l.base.ResolveReference(u).String(), nil
}

type fetched struct {
	body        []byte
	contentType string
}

func (l *HTTPLoader) fetch(ctx context.Context, target string) ([]byte, string, error) {
	res, err := resilience.Retry(ctx, l.retry, func(ctx context.Context) (fetched, error) {
		var f fetched
		err := l.breaker.Do(func() error {
			var err error
			f, err = l.get(ctx, target)
			return err
		})
		return f, err
	})
	if err != nil {
		return nil, "", fmt.Errorf("asset %s: %w", target, err)
	}
	return res.body, res.contentType, nil
}

func (l *HTTPLoader) get(ctx context.Context, target string) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetched{}, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fetched{}, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fetched{}, fmt.Errorf("%w: status %d", errAssetClient, resp.StatusCode)
	}
	if resp.ContentLength > l.maxBytes {
		return fetched{}, fmt.Errorf("%w: %d bytes", ErrAssetTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return fetched{}, err
	}
	if int64(len(body)) > l.maxBytes {
		return fetched{}, fmt.Errorf("%w: over %d bytes", ErrAssetTooLarge, l.maxBytes)
	}
	return fetched{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

func decodeDataURI(uri string) (string, []byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: malformed data uri", ErrNotImage)
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrNotImage, err)
		}
		return contentType, []byte(unescaped), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return contentType, data, nil
}

func textureFrom(src, contentType string, data []byte) (*Texture, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return &Texture{URL: src, ContentType: "image/" + format, Width: cfg.Width, Height: cfg.Height}, nil
	}
	// Formats the decoder does not know (SVG, WebP) are passed through when
	// the server says they are images.
	if strings.HasPrefix(contentType, "image/") {
		return &Texture{URL: src, ContentType: contentType}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotImage, contentType)
}
