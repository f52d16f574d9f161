package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gabrielmiguelok/candlekit/pkg/resilience"
)

// errClient marks 4xx responses, which are not worth retrying.
var errClient = errors.New("catalog client error")

// HTTPClient reads the catalog from the storefront REST API.
// Responses may be a bare array or wrapped as {"data": [...]}.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *resilience.Breaker
	retry   *resilience.RetryConfig
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(hc *HTTPClient) {
		hc.http = c
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg *resilience.RetryConfig) HTTPOption {
	return func(hc *HTTPClient) {
		hc.retry = cfg
	}
}

// WithBreaker overrides the circuit breaker.
func WithBreaker(b *resilience.Breaker) HTTPOption {
	return func(hc *HTTPClient) {
		hc.breaker = b
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	hc := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewBreaker(nil),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.retry.RetryIf == nil {
		cfg := *hc.retry
		cfg.RetryIf = func(err error) bool { return !errors.Is(err, errClient) }
		hc.retry = &cfg
	}
	return hc
}

func (c *HTTPClient) MainOptions(ctx context.Context) ([]MainOption, error) {
	return fetchList[MainOption](ctx, c, "/main-options", nil)
}

func (c *HTTPClient) Places(ctx context.Context, mainOptionID string) ([]Place, error) {
	return fetchList[Place](ctx, c, "/places", query("mainOptionId", mainOptionID))
}

func (c *HTTPClient) IntendedImpacts(ctx context.Context, mainOptionID string) ([]IntendedImpact, error) {
	return fetchList[IntendedImpact](ctx, c, "/intended-impacts", query("mainOptionId", mainOptionID))
}

func (c *HTTPClient) Containers(ctx context.Context) ([]Container, error) {
	return fetchList[Container](ctx, c, "/containers", nil)
}

func (c *HTTPClient) Aromas(ctx context.Context, intendedImpactID string) ([]Aroma, error) {
	return fetchList[Aroma](ctx, c, "/aromas", query("intendedImpactId", intendedImpactID))
}

func (c *HTTPClient) Labels(ctx context.Context) ([]Label, error) {
	return fetchList[Label](ctx, c, "/labels", nil)
}

func query(key, value string) url.Values {
	if value == "" {
		return nil
	}
	return url.Values{key: {value}}
}

func fetchList[T any](ctx context.Context, c *HTTPClient, path string, q url.Values) ([]T, error) {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	body, err := resilience.Retry(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		var data []byte
		err := c.breaker.Do(func() error {
			var err error
			data, err = c.get(ctx, target)
			return err
		})
		return data, err
	})
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("catalog %s: invalid json", path)
	}
	list := gjson.ParseBytes(body)
	if data := list.Get("data"); data.Exists() {
		list = data
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("catalog %s: expected array", path)
	}

	out := make([]T, 0, len(list.Array()))
	if err := json.Unmarshal([]byte(list.Raw), &out); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", errClient, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
