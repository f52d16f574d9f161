package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/candlekit/internal/metrics"
	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/core"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/preview"
	"github.com/gabrielmiguelok/candlekit/pkg/snapshot"
)

const seed = `
mainOptions:
  - id: m1
    name: Regalo
intendedImpacts:
  - id: i1
    name: Calma
containers:
  - id: c1
    name: Vaso ambar
aromas:
  - id: a1
    name: Lavanda
    color: "#ABCDEF"
    intendedImpactId: i1
  - id: a2
    name: Cedro
    intendedImpactId: i9
labels:
  - id: l1
    name: Floral
    imageUrl: /labels/floral.png
`

// offlineLoader fails every fetch, so views render the fallback candle.
type offlineLoader struct{}

func (offlineLoader) LoadModel(ctx context.Context, url string) (*preview.Model, error) {
	return nil, errors.New("offline")
}

func (offlineLoader) LoadTexture(ctx context.Context, url string) (*preview.Texture, error) {
	return nil, errors.New("offline")
}

type testServer struct {
	*Server
	http   *httptest.Server
	client *http.Client
	store  *snapshot.MemoryStore
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	cat, err := catalog.ParseStatic([]byte(seed))
	require.NoError(t, err)

	store := snapshot.NewMemoryStore()
	opts := Options{
		Store:   store,
		Loader:  offlineLoader{},
		Catalog: cat,
		Metrics: metrics.New(),
		Logger:  logging.NewMemoryLogger(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	srv, err := NewServer(opts)
	require.NoError(t, err)

	hs := httptest.NewServer(srv.Handler())
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		hs.Close()
		_ = srv.Shutdown(context.Background())
		_ = store.Close()
	})
	return &testServer{
		Server: srv,
		http:   hs,
		client: &http.Client{Jar: jar, Timeout: 5 * time.Second},
		store:  store,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (ts *testServer) event(t *testing.T, name, body string) (int, eventResponse) {
	t.Helper()
	resp, data := ts.do(t, http.MethodPost, "/wizard/events/"+name, body)
	var out eventResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func (ts *testServer) state(t *testing.T) ViewState {
	t.Helper()
	resp, data := ts.do(t, http.MethodGet, "/wizard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var vs ViewState
	require.NoError(t, json.Unmarshal(data, &vs))
	return vs
}

func (ts *testServer) sessionID(t *testing.T) string {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, ts.http.URL, nil)
	for _, c := range ts.client.Jar.Cookies(req.URL) {
		if c.Name == logging.SessionCookie {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

func TestServer_IssuesSessionCookie(t *testing.T) {
	ts := newTestServer(t)

	vs := ts.state(t)
	sid := ts.sessionID(t)
	_, err := uuid.Parse(sid)
	require.NoError(t, err)
	assert.Equal(t, sid, vs.Session)
	assert.True(t, vs.Hydrated)
	assert.Equal(t, 1, vs.CurrentStep)
	assert.Len(t, vs.Steps, 8)

	// Same cookie, same session.
	assert.Equal(t, sid, ts.state(t).Session)
}

func TestServer_ReplacesInvalidCookie(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/wizard", nil)
	req.AddCookie(&http.Cookie{Name: logging.SessionCookie, Value: "../../etc"})
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, logging.SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	_, err := uuid.Parse(cookies[0].Value)
	assert.NoError(t, err)
}

func TestServer_WizardFlow(t *testing.T) {
	ts := newTestServer(t)

	code, res := ts.event(t, "set_main_option", `{"mainOption":{"id":"m1","name":"Regalo"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, res.State.MaxStepReached)
	assert.Equal(t, "m1", res.State.Selections.MainOption.ID)

	code, res = ts.event(t, "set_fragrance", `{"aromaId":"a1","waxColor":"#ABCDEF"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, res.State.MaxStepReached)
	assert.Equal(t, "#ABCDEF", res.State.Selections.WaxColor)
	assert.Equal(t, "Lavanda", res.State.Selections.Fragrance.Name)

	code, res = ts.event(t, "set_label", `{"label":null}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, res.State.Selections.Label)
	assert.Equal(t, 5, res.State.MaxStepReached)

	code, res = ts.event(t, "next_step", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, res.State.CurrentStep)
	assert.True(t, strings.HasPrefix(res.Route, "/personalization/intended-impact"), res.Route)
	assert.Contains(t, res.Route, "mainOptionId=m1")

	code, res = ts.event(t, "go_to_step", `{"step":5}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, res.State.CurrentStep)

	code, res = ts.event(t, "reset", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, res.State.MaxStepReached)
	assert.Nil(t, res.State.Selections.MainOption)
	assert.True(t, res.State.Hydrated)
}

func TestServer_EventErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		event string
		body  string
		code  int
	}{
		{"unknown event", "set_everything", "", http.StatusNotFound},
		{"malformed json", "set_message", "{", http.StatusBadRequest},
		{"wrong record shape", "set_main_option", `{"mainOption":"m1"}`, http.StatusBadRequest},
		{"wrong text type", "set_message", `{"message":42}`, http.StatusBadRequest},
		{"locked step", "go_to_step", `{"step":7}`, http.StatusConflict},
		{"missing step", "go_to_step", `{}`, http.StatusBadRequest},
		{"unknown aroma", "set_fragrance", `{"aromaId":"nope"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := ts.do(t, http.MethodPost, "/wizard/events/"+tt.event, tt.body)
			assert.Equal(t, tt.code, resp.StatusCode, string(data))
			var body map[string]string
			require.NoError(t, json.Unmarshal(data, &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestServer_RejectsOversizedEvent(t *testing.T) {
	ts := newTestServer(t)

	big := `{"message":"` + strings.Repeat("a", maxEventBody) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/wizard/events/set_message", strings.NewReader(big))
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_EventList(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do(t, http.MethodGet, "/wizard/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Events []string `json:"events"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Contains(t, body.Events, "set_audio_selection")
	assert.Contains(t, body.Events, "edit_from_preview")
	assert.IsNonDecreasing(t, body.Events)
}

func TestServer_StepURL(t *testing.T) {
	ts := newTestServer(t)
	ts.event(t, "set_main_option", `{"mainOption":{"id":"m1","name":"Regalo"}}`)

	resp, data := ts.do(t, http.MethodGet, "/wizard/steps/3/url", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Step int    `json:"step"`
		URL  string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, 3, body.Step)
	assert.Equal(t, "/personalization/container?mainOptionId=m1", body.URL)

	resp, _ = ts.do(t, http.MethodGet, "/wizard/steps/9/url", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Catalog(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do(t, http.MethodGet, "/catalog/aromas?intendedImpactId=i1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data []catalog.Aroma `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "a1", body.Data[0].ID)

	resp, _ = ts.do(t, http.MethodGet, "/catalog/candles", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Preview(t *testing.T) {
	ts := newTestServer(t)
	ts.state(t)
	v, ok := ts.Sessions().Lookup(ts.sessionID(t))
	require.True(t, ok)
	v.Viewer().Wait()

	resp, data := ts.do(t, http.MethodGet, "/wizard/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scene preview.Scene
	require.NoError(t, json.Unmarshal(data, &scene))
	assert.True(t, scene.Model.Fallback, "offline model load falls back to a primitive")
	assert.NotEmpty(t, scene.Model.Meshes)

	resp, data = ts.do(t, http.MethodGet, "/wizard/preview.html", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `<candle-island id="preview-`+ts.sessionID(t)+`"`)
	assert.Contains(t, string(data), `component="candle-preview"`)

	resp, _ = ts.do(t, http.MethodPost, "/wizard/preview/retry", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestServer_Page(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.do(t, http.MethodGet, "/wizard/page", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	page := string(data)
	assert.Contains(t, page, "<!DOCTYPE html>")
	assert.Contains(t, page, `<progress class="wizard-progress"`)
	assert.Contains(t, page, "<candle-island")
	assert.Contains(t, page, `<script type="module" src="/static/candle-preview.js"></script>`)

	resp, data = ts.do(t, http.MethodGet, "/static/candle-preview.js", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "candle-island")
}

func TestServer_SnapshotOutlivesView(t *testing.T) {
	ts := newTestServer(t)
	ts.event(t, "set_main_option", `{"mainOption":{"id":"m1","name":"Regalo"}}`)
	ts.event(t, "set_message", `{"message":"Para ti"}`)

	ts.Sessions().Remove(context.Background(), ts.sessionID(t), core.TerminateNormal)
	assert.Equal(t, 0, ts.Sessions().Count())

	vs := ts.state(t)
	assert.Equal(t, 7, vs.MaxStepReached)
	assert.Equal(t, "m1", vs.Selections.MainOption.ID)
	assert.Equal(t, "Para ti", vs.Selections.Message)
	assert.Equal(t, 1, ts.Sessions().Count())
}

func TestServer_Probes(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := ts.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"catalog"`)

	ts.state(t)
	resp, data = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "candled_http_requests_total")
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, func(o *Options) {
		o.RateLimit = 0.001
		o.RateBurst = 2
	})

	ts.state(t)
	ts.state(t)
	resp, _ := ts.do(t, http.MethodGet, "/wizard", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Probes are not limited.
	resp, _ = ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewServer_RequiresStoreAndLoader(t *testing.T) {
	_, err := NewServer(Options{Loader: offlineLoader{}})
	assert.Error(t, err)
	_, err = NewServer(Options{Store: snapshot.NewMemoryStore()})
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(catalog.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(ErrStepLocked))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(&http.MaxBytesError{Limit: 1}))
}
