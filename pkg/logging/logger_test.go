package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestZerologLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(&buf, slog.LevelDebug).With(String("session", "s1"))
	l.Warn("label preview stripped", Int("bytes", 120000), Err(errors.New("too big")))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "s1", line["session"])
	assert.Equal(t, "too big", line["error"])
	assert.EqualValues(t, 120000, line["bytes"])
}

func TestZerologLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLogger(&buf, slog.LevelWarn)
	l.Info("ignored")
	assert.Zero(t, buf.Len())
}

func TestMemoryLogger_SharedBuffer(t *testing.T) {
	root := NewMemoryLogger()
	child := root.With(String("component", "wizard"))
	child.Warn("degraded")
	root.Info("hello")

	entries := root.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "wizard", entries[0].Fields["component"])
	assert.Equal(t, 1, root.Count("warn"))
}

func TestRequestLogger_AttachesLogger(t *testing.T) {
	mem := NewMemoryLogger()
	var seen Logger
	h := RequestLogger(mem)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LoggerFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/wizard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "abc"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, seen)
	entries := mem.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0].Fields["session"])
	assert.Equal(t, http.StatusTeapot, entries[0].Fields["status"])
}
