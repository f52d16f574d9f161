package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
)

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"same origin", nil, "https://shop.example", true},
		{"no origin", nil, "", true},
		{"explicit origin", []string{"https://cdn.example"}, "https://cdn.example", true},
		{"host match", []string{"http://cdn.example"}, "https://cdn.example", true},
		{"not listed", []string{"https://cdn.example"}, "https://attacker.example", false},
		{"wildcard", []string{"*"}, "https://any.example", true},
		{"cross origin by default", nil, "https://other.example", false},
		{"garbage", nil, "://", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OriginAllowed(tt.origin, "shop.example", tt.allowed); got != tt.want {
				t.Errorf("OriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestWebSocket_RejectsInvalidOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/wizard/live", nil)
	req.Header.Set("Origin", "https://attacker.example")
	req.Host = "shop.example"
	w := httptest.NewRecorder()

	_, err := Accept(w, req, DefaultConfig())
	if !errors.Is(err, ErrOriginNotAllowed) {
		t.Errorf("expected ErrOriginNotAllowed, got %v", err)
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
}

func liveServer(t *testing.T) (*httptest.Server, <-chan *WebSocket) {
	t.Helper()
	accepted := make(chan *WebSocket, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Accept(w, r, DefaultConfig())
		if err != nil {
			return
		}
		accepted <- ws
		<-ws.Done()
	}))
	t.Cleanup(srv.Close)
	return srv, accepted
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) core.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg core.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv, accepted := liveServer(t)
	conn := dial(t, srv)
	defer conn.CloseNow()

	var ws *WebSocket
	select {
	case ws = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted")
	}
	assert.True(t, ws.IsConnected())
	assert.Equal(t, TypeWebSocket, ws.Type())

	ctx := context.Background()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`not json`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"event":"set_message","payload":{"message":"hola"}}`)))

	select {
	case in := <-ws.Receive():
		assert.Equal(t, "set_message", in.Event)
		assert.Equal(t, "hola", in.Payload["message"])
	case <-time.After(5 * time.Second):
		t.Fatal("inbound event not received")
	}

	require.NoError(t, ws.Send(ctx, core.Message{Topic: "wizard:s1", Event: "scene", Payload: map[string]any{"progress": 50}}))
	msg := readMessage(t, conn)
	assert.Equal(t, "wizard:s1", msg.Topic)
	assert.Equal(t, "scene", msg.Event)
	assert.Equal(t, map[string]any{"progress": float64(50)}, msg.Payload)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"event":"ping"}`)))
	assert.Equal(t, "pong", readMessage(t, conn).Event)
}

func TestWebSocketPeerCloseStopsTransport(t *testing.T) {
	srv, accepted := liveServer(t)
	conn := dial(t, srv)
	ws := <-accepted

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	select {
	case <-ws.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not notice the peer closing")
	}
	assert.False(t, ws.IsConnected())

	err := ws.Send(context.Background(), core.Message{Event: "scene"})
	assert.Error(t, err)
	ws.Close()
}

func TestParseInbound(t *testing.T) {
	in, err := ParseInbound([]byte(`{"ref":"7","event":"next_step"}`))
	require.NoError(t, err)
	assert.Equal(t, "7", in.Ref)
	assert.Equal(t, "next_step", in.Event)

	_, err = ParseInbound([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
	_, err = ParseInbound([]byte(`[`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}
