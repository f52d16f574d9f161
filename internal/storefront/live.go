package storefront

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/candlekit/pkg/core"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/pubsub"
	"github.com/gabrielmiguelok/candlekit/pkg/transport"
)

// Events pushed only on the live channel.
const (
	EventMount = "mount"
	EventAck   = "ack"
	EventError = "error"
)

// handleWebSocket serves a two-way live channel: pushes diffs and routes,
// and accepts wizard events as {ref, event, payload} frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	logger := logging.L(r.Context())

	ws, err := transport.Accept(w, r, s.opts.Transport)
	if err != nil {
		logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	// The request context ends when the handler returns; live work
	// outlives individual frames.
	ctx := logging.ContextWithLogger(context.Background(), logger)
	sock, detach, err := s.attach(ctx, v, ws)
	if err != nil {
		logger.Warn("live socket rejected", logging.Err(err))
		_ = ws.Close()
		return
	}
	defer detach()

	for {
		select {
		case in, ok := <-ws.Receive():
			if !ok {
				return
			}
			s.inbound(ctx, v, sock, in)
		case <-ws.Done():
			return
		}
	}
}

// handleSSE serves a push-only live channel for clients that cannot open
// a websocket. Events go through POST /wizard/events/{event}.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	logger := logging.L(r.Context())

	sse, err := transport.NewSSE(w, s.opts.Transport)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := logging.ContextWithLogger(context.Background(), logger)
	_, detach, err := s.attach(ctx, v, sse)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer detach()

	if err := sse.Serve(r.Context(), r); err != nil {
		logger.Debug("sse stream ended", logging.Err(err))
	}
}

// attach registers a socket for v's session, forwards the session's
// topic to it and pushes the current state. detach undoes all of it.
func (s *Server) attach(ctx context.Context, v *WizardView, t core.Transport) (*core.Socket, func(), error) {
	sock := core.NewSocket(uuid.NewString(), v.Session(), t)
	if err := s.sockets.Add(sock); err != nil {
		return nil, nil, err
	}

	sub, err := s.opts.Broadcaster.Subscribe(v.Topic(), func(env pubsub.Envelope) {
		pctx, cancel := context.WithTimeout(ctx, s.opts.Transport.WriteTimeout)
		defer cancel()
		if err := sock.Push(pctx, env.Event, env.Payload); err != nil && !errors.Is(err, core.ErrSocketClosed) {
			logging.L(ctx).Warn("live push dropped", logging.String("event", env.Event), logging.Err(err))
		}
	})
	if err != nil {
		s.sockets.Remove(sock.ID())
		return nil, nil, err
	}
	s.liveGauge()

	_ = sock.Push(ctx, EventMount, map[string]any{
		AssignState: v.View(),
		AssignScene: v.Scene(),
	})

	detach := func() {
		_ = sub.Unsubscribe()
		s.sockets.Remove(sock.ID())
		_ = sock.Close()
		s.liveGauge()
	}
	return sock, detach, nil
}

// inbound runs one browser event and answers with an ack or an error
// carrying the frame's ref.
func (s *Server) inbound(ctx context.Context, v *WizardView, sock *core.Socket, in transport.Inbound) {
	s.sessions.Lookup(v.Session())
	sock.UpdateActivity()

	if err := v.HandleEvent(ctx, in.Event, in.Payload); err != nil {
		_ = sock.Push(ctx, EventError, map[string]any{
			"ref":    in.Ref,
			"event":  in.Event,
			"error":  err.Error(),
			"status": statusOf(err),
		})
		return
	}
	_ = sock.Push(ctx, EventAck, map[string]any{"ref": in.Ref, "event": in.Event})
}

func (s *Server) liveGauge() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.LiveConnections.Set(float64(s.sockets.Count()))
	}
}
