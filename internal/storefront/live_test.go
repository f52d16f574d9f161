package storefront

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/transport"
)

func (ts *testServer) dialLive(t *testing.T) *websocket.Conn {
	t.Helper()
	ts.state(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/wizard/live"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Cookie": []string{logging.SessionCookie + "=" + ts.sessionID(t)}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readUntil reads live messages until one matches, failing after 5s.
func readUntil(t *testing.T, conn *websocket.Conn, match func(core.Message) bool) core.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg core.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func event(name string) func(core.Message) bool {
	return func(m core.Message) bool { return m.Event == name }
}

func send(t *testing.T, conn *websocket.Conn, in transport.Inbound) {
	t.Helper()
	data, err := json.Marshal(in)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestLive_MountThenDiffAndAck(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialLive(t)

	mount := readUntil(t, conn, event(EventMount))
	assert.Equal(t, Topic(ts.sessionID(t)), mount.Topic)
	payload := mount.Payload.(map[string]any)
	assert.Contains(t, payload, AssignState)
	assert.Contains(t, payload, AssignScene)

	send(t, conn, transport.Inbound{Ref: "1", Event: "set_message", Payload: map[string]any{"message": "Feliz cumple"}})

	var sawDiff, sawAck bool
	for !sawDiff || !sawAck {
		msg := readUntil(t, conn, func(m core.Message) bool {
			return m.Event == EventDiff || m.Event == EventAck
		})
		p := msg.Payload.(map[string]any)
		switch msg.Event {
		case EventAck:
			assert.Equal(t, "1", p["ref"])
			sawAck = true
		case EventDiff:
			if st, ok := p[AssignState].(map[string]any); ok {
				sel := st["selections"].(map[string]any)
				if sel["message"] == "Feliz cumple" {
					sawDiff = true
				}
			}
		}
	}
	assert.Equal(t, 1, ts.LiveConnections())
}

func TestLive_ErrorCarriesRef(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialLive(t)
	readUntil(t, conn, event(EventMount))

	send(t, conn, transport.Inbound{Ref: "7", Event: "go_to_step", Payload: map[string]any{"step": 8}})

	msg := readUntil(t, conn, event(EventError))
	p := msg.Payload.(map[string]any)
	assert.Equal(t, "7", p["ref"])
	assert.Equal(t, float64(http.StatusConflict), p["status"])
}

func TestLive_RouteEventsReachOtherTabs(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialLive(t)
	readUntil(t, conn, event(EventMount))

	ts.event(t, "set_main_option", `{"mainOption":{"id":"m1","name":"Regalo"}}`)
	ts.event(t, "next_step", "")

	msg := readUntil(t, conn, event(EventRoute))
	p := msg.Payload.(map[string]any)
	assert.True(t, strings.HasPrefix(p["route"].(string), "/personalization/intended-impact"))
}

func TestLive_KeepsSessionFromIdleEviction(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialLive(t)
	readUntil(t, conn, event(EventMount))

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 0, ts.Sessions().EvictIdle(context.Background(), time.Millisecond))
	assert.Equal(t, 1, ts.Sessions().Count())

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return ts.LiveConnections() == 0 }, 5*time.Second, 10*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, ts.Sessions().EvictIdle(context.Background(), time.Millisecond))
	assert.Equal(t, 0, ts.Sessions().Count())
}

func TestLive_SSEStreamsMount(t *testing.T) {
	ts := newTestServer(t)
	ts.state(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.http.URL+"/wizard/live/sse", nil)
	require.NoError(t, err)
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for sc.Scan() {
		if sc.Text() == "event: "+EventMount {
			require.True(t, sc.Scan())
			assert.True(t, strings.HasPrefix(sc.Text(), "data: "))
			return
		}
	}
	t.Fatalf("no mount event: %v", sc.Err())
}
