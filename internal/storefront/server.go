package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gabrielmiguelok/candlekit/client"
	"github.com/gabrielmiguelok/candlekit/internal/metrics"
	"github.com/gabrielmiguelok/candlekit/pkg/catalog"
	"github.com/gabrielmiguelok/candlekit/pkg/core"
	"github.com/gabrielmiguelok/candlekit/pkg/health"
	"github.com/gabrielmiguelok/candlekit/pkg/limits"
	"github.com/gabrielmiguelok/candlekit/pkg/logging"
	"github.com/gabrielmiguelok/candlekit/pkg/preview"
	"github.com/gabrielmiguelok/candlekit/pkg/pubsub"
	"github.com/gabrielmiguelok/candlekit/pkg/snapshot"
	"github.com/gabrielmiguelok/candlekit/pkg/transport"
	"github.com/gabrielmiguelok/candlekit/pkg/wizard"
)

// maxEventBody bounds event payloads; label uploads arrive as data URLs.
const maxEventBody = 4 << 20

// Options configures a Server.
type Options struct {
	// Store holds wizard snapshots. Required.
	Store snapshot.Store
	// Codec encodes snapshots; nil uses the snapshot package default.
	Codec       snapshot.Codec
	SnapshotTTL time.Duration
	Limits      wizard.Limits

	// Loader fetches preview models and textures. Required.
	Loader       preview.AssetLoader
	DefaultModel string

	Catalog     catalog.Reader
	Broadcaster *pubsub.Broadcaster
	Metrics     *metrics.Metrics
	Logger      logging.Logger
	Health      *health.Checker

	IdleTimeout time.Duration
	// MaxSessions, when set, marks the service degraded once that many
	// views are mounted.
	MaxSessions int

	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64
	RateBurst int
	// MaxLiveConnections caps live connections per client.
	MaxLiveConnections int

	Transport *transport.Config
	Title     string
}

func (o *Options) defaults() error {
	if o.Store == nil {
		return errors.New("storefront: snapshot store is required")
	}
	if o.Loader == nil {
		return errors.New("storefront: asset loader is required")
	}
	if o.Logger == nil {
		o.Logger = logging.NopLogger{}
	}
	if o.Broadcaster == nil {
		o.Broadcaster = pubsub.NewBroadcaster(pubsub.NewMemoryPubSub())
	}
	if o.Limits == (wizard.Limits{}) {
		o.Limits = wizard.DefaultLimits()
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Minute
	}
	if o.MaxLiveConnections <= 0 {
		o.MaxLiveConnections = 8
	}
	if o.Transport == nil {
		o.Transport = transport.DefaultConfig()
	}
	if o.Title == "" {
		o.Title = "Personaliza tu vela"
	}
	return nil
}

// Server is the storefront's HTTP surface.
type Server struct {
	opts     Options
	sessions *Sessions
	sockets  *core.SocketManager
	render   *pageRenderer
	health   *health.Checker
	conns    *limits.ConnectionLimiter
	limiter  *limits.RateLimiter
	router   *mux.Router
}

// NewServer wires the session registry and routes.
func NewServer(opts Options) (*Server, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}

	s := &Server{
		opts:    opts,
		sockets: core.NewSocketManager(),
		render:  &pageRenderer{islands: NewIslandRegistry(), title: opts.Title},
		conns:   limits.NewConnectionLimiter(opts.MaxLiveConnections),
	}
	s.sessions = newSessions(&s.opts, s.render)
	s.sessions.live = func(id string) bool {
		return len(s.sockets.ForSession(id)) > 0
	}

	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		rl, err := limits.NewRateLimiter(opts.RateLimit, burst, limits.DefaultMaxClients)
		if err != nil {
			return nil, fmt.Errorf("storefront: %w", err)
		}
		s.limiter = rl
	}

	s.health = opts.Health
	if s.health == nil {
		s.health = health.NewChecker("")
	}
	if opts.Catalog != nil {
		s.health.Add("catalog", func(ctx context.Context) error {
			_, err := opts.Catalog.MainOptions(ctx)
			return err
		}, 2*time.Second)
	}
	if pinger, ok := opts.Store.(interface{ Ping(context.Context) error }); ok {
		s.health.AddCritical("snapshots", health.PingCheck(pinger.Ping), 2*time.Second)
	}

	if opts.MaxSessions > 0 {
		s.health.Add("sessions", health.CapacityCheck("sessions", s.sessions.Count, opts.MaxSessions), time.Second)
	}

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(logging.RequestLogger(s.opts.Logger))
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware)
		r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.Handle("/healthz", s.health.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/readyz", s.health.ReadinessHandler()).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", client.Handler())).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}
	api.HandleFunc("/wizard", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/wizard/page", s.handlePage).Methods(http.MethodGet)
	api.HandleFunc("/wizard/events", s.handleEventList).Methods(http.MethodGet)
	api.HandleFunc("/wizard/events/{event}", s.handleEvent).Methods(http.MethodPost)
	api.HandleFunc("/wizard/steps/{step:[0-9]+}/url", s.handleStepURL).Methods(http.MethodGet)
	api.HandleFunc("/wizard/preview", s.handleScene).Methods(http.MethodGet)
	api.HandleFunc("/wizard/preview.html", s.handleIsland).Methods(http.MethodGet)
	api.HandleFunc("/wizard/preview/retry", s.handleRetry).Methods(http.MethodPost)
	api.HandleFunc("/catalog/{kind}", s.handleCatalog).Methods(http.MethodGet)

	live := r.NewRoute().Subrouter()
	live.Use(s.conns.Middleware)
	live.HandleFunc("/wizard/live", s.handleWebSocket).Methods(http.MethodGet)
	live.HandleFunc("/wizard/live/sse", s.handleSSE).Methods(http.MethodGet)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the session registry.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// LiveConnections returns the number of open live sockets.
func (s *Server) LiveConnections() int {
	return s.sockets.Count()
}

// Run sweeps idle views and live sockets every interval until ctx ends.
// A view with an open live connection is not idle; a socket that has
// pushed nothing for the idle timeout is closed so its view can go.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.sockets.CleanupInactive(s.opts.IdleTimeout); n > 0 {
				s.opts.Logger.Info("closed inactive live sockets", logging.Int("count", n))
				s.liveGauge()
			}
			s.sessions.EvictIdle(ctx, s.opts.IdleTimeout)
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes live sockets and terminates every view.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.sockets.Shutdown(ctx)
	s.sessions.Shutdown(ctx)
	return err
}

// sessionID returns the caller's session, issuing a cookie when it has
// none or an invalid one.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(logging.SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     logging.SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) (*WizardView, bool) {
	v, err := s.sessions.Get(r.Context(), sessionID(w, r))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return v, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.View())
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	if step := r.URL.Query().Get("step"); step != "" {
		if n, err := parseStep(step); err == nil {
			v.wizard.GoToStep(r.Context(), n)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := v.Render(r.Context()).Render(r.Context(), w); err != nil {
		logging.L(r.Context()).Error("render wizard page", logging.Err(err))
	}
}

func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": Events()})
}

type eventResponse struct {
	Route string    `json:"route,omitempty"`
	State ViewState `json:"state"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	payload := map[string]any{}
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBody)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, fmt.Errorf("%w: %w", ErrBadPayload, err))
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}

	event := mux.Vars(r)["event"]
	res, err := v.Dispatch(r.Context(), event, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Route != "" {
		v.publish(r.Context(), EventRoute, res)
	}
	writeJSON(w, http.StatusOK, eventResponse{Route: res.Route, State: v.View()})
}

func (s *Server) handleStepURL(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(mux.Vars(r)["step"])
	step := wizard.Step(n)
	if !step.Valid() {
		writeError(w, r, fmt.Errorf("%w: step %d out of range", ErrBadPayload, n))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"step": n, "url": v.wizard.StepURL(step)})
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.Scene())
}

func (s *Server) handleIsland(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.render.island(v).Render(r.Context(), w); err != nil {
		logging.L(r.Context()).Error("render preview island", logging.Err(err))
	}
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	_ = v.HandleInfo(r.Context(), "retry_preview")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retrying"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.opts.Catalog == nil {
		writeError(w, r, fmt.Errorf("%w: no catalog configured", catalog.ErrNotFound))
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	c := s.opts.Catalog

	var (
		list any
		err  error
	)
	switch kind := mux.Vars(r)["kind"]; kind {
	case "main-options":
		list, err = c.MainOptions(ctx)
	case "places":
		list, err = c.Places(ctx, q.Get("mainOptionId"))
	case "intended-impacts":
		list, err = c.IntendedImpacts(ctx, q.Get("mainOptionId"))
	case "containers":
		list, err = c.Containers(ctx)
	case "aromas":
		list, err = c.Aromas(ctx, q.Get("intendedImpactId"))
	case "labels":
		list, err = c.Labels(ctx)
	default:
		err = fmt.Errorf("%w: kind %q", catalog.ErrNotFound, kind)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnknownEvent), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrStepLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		logging.L(r.Context()).Error("request failed", logging.Err(err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
