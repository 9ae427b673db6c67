package coordination

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdapp-net/auth-episode/internal/codec"
	"github.com/kdapp-net/auth-episode/internal/engine"
	"github.com/kdapp-net/auth-episode/internal/episode"
	"github.com/kdapp-net/auth-episode/internal/listener"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/internal/wallet"
)

// defaultConfirmTimeout bounds how long an HTTP handler suspends waiting
// for the engine to observe and apply the transaction it just submitted,
// per spec.md §5's "every outbound RPC has a configurable timeout".
const defaultConfirmTimeout = 20 * time.Second

// Server is the HTTP+WebSocket coordination layer for one peer. It never
// mutates engine state itself: every mutating handler submits a command
// as a real transaction through its LedgerSubmitter, then waits for the engine's event handler to confirm
// it before responding.
type Server struct {
	eng       *engine.Engine
	wallet    *wallet.Wallet
	submitter listener.LedgerSubmitter
	hub       *Hub
	wait      *waiter
	metrics   *metrics
	validate  *validator.Validate
	logger    telemetry.Logger

	confirmTimeout  time.Duration
	fallbackEnabled bool
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithConfirmTimeout overrides how long a handler waits for ledger
// confirmation before returning a Timeout error.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Server) { s.confirmTimeout = d }
}

// WithFallbackDisabled turns off the challenge field in GET /auth/status
// responses, forcing clients onto the WebSocket feed once the listener's
// reliability no longer needs the read-only fallback path.
func WithFallbackDisabled() Option {
	return func(s *Server) { s.fallbackEnabled = false }
}

// WithLogger overrides the server's logger.
func WithLogger(lg telemetry.Logger) Option {
	return func(s *Server) { s.logger = lg }
}

// WithMetricsRegisterer registers the server's Prometheus collectors on reg
// instead of the default registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) { s.metrics = newMetrics(reg, s.hub) }
}

// New constructs a Server wired to eng and submitting transactions funded
// by wal through submitter.
func New(eng *engine.Engine, wal *wallet.Wallet, submitter listener.LedgerSubmitter, opts ...Option) *Server {
	hub := NewHub()
	s := &Server{
		eng:             eng,
		wallet:          wal,
		submitter:       submitter,
		hub:             hub,
		wait:            newWaiter(),
		validate:        validator.New(),
		logger:          telemetry.NewLogger("coordination"),
		confirmTimeout:  defaultConfirmTimeout,
		fallbackEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newMetrics(prometheus.DefaultRegisterer, hub)
	}

	eng.OnEvent(s.onEngineEvent)
	eng.OnReorg(func(int) { s.metrics.reorgsObserved.Inc() })
	eng.OnEviction(func(uint32) { s.metrics.rollbackEvictions.Inc() })
	return s
}

func (s *Server) onEngineEvent(episodeID uint32, snap episode.Snapshot, tag codec.Tag, meta episode.Metadata) {
	switch tag {
	case codec.TagRequestChallenge:
		s.metrics.challengesIssued.Inc()
	case codec.TagSubmitResponse:
		s.metrics.authentications.Inc()
	case codec.TagRevokeSession:
		s.metrics.revocations.Inc()
	}
	s.hub.Publish(episodeID, marshalEvent(episodeID, snap, tag))
	s.wait.deliver(episodeID, snap, tag, meta)
}

// Handler returns the server's http.Handler, ready to be passed to
// http.Server or httptest.Server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/start", s.timed("start", s.handleStart))
	mux.HandleFunc("POST /auth/request-challenge", s.timed("request-challenge", s.handleRequestChallenge))
	mux.HandleFunc("POST /auth/verify", s.timed("verify", s.handleVerify))
	mux.HandleFunc("POST /auth/revoke-session", s.timed("revoke-session", s.handleRevokeSession))
	mux.HandleFunc("GET /auth/status/{episode_id}", s.timed("status", s.handleStatus))
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// timed wraps h so its latency, including any time spent suspended on
// ledger confirmation, is observed under the named route.
func (s *Server) timed(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
