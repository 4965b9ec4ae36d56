package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/dkurian/surtitle/internal/eventlog"
	"github.com/dkurian/surtitle/internal/notifications"
	"github.com/dkurian/surtitle/internal/pipeline"
	"github.com/dkurian/surtitle/internal/store"
	"github.com/dkurian/surtitle/internal/tts"
)

type RouterConfig struct {
	PublicBaseURL string

	// IngestKey guards the capture endpoints. Empty means open ingest
	// (LAN-only stage rigs).
	IngestKey string

	// Operator auth
	OperatorKey string
	JWTSecret   string
	JWTExpiry   time.Duration

	// Default caption languages, used when the capture client's start
	// message does not override them.
	SourceLang string
	TargetLang string
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog *eventlog.Logger
	pipe     *pipeline.Coordinator
	tts      tts.Client // nil when synthesis is not configured
	discord  *notifications.Discord
	sessions *SessionRegistry
	mux      *http.ServeMux
	handler  http.Handler

	// Active caption session. One speaker, one session at a time.
	sessionMu sync.Mutex
	sessionID string
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger,
	pipe *pipeline.Coordinator, ttsClient tts.Client, discord *notifications.Discord,
	sessions *SessionRegistry) *Router {
	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		pipe:     pipe,
		tts:      ttsClient,
		discord:  discord,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	r.routes()
	r.handler = withSentryRecovery(withCORS(r.mux))
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) routes() {
	// Health and readiness
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Capture side (guarded by ingest key)
	r.mux.HandleFunc("GET /ingest", r.handleIngestWS)
	r.mux.HandleFunc("POST /segments", r.handleIngestSegment)

	// Audience side (public)
	r.mux.HandleFunc("GET /captions", r.handleCaptionWS)
	r.mux.HandleFunc("GET /audio", r.handleAudioWS)

	// Operator auth
	r.mux.HandleFunc("POST /auth/login", r.handleLogin)

	// Operator API (JWT)
	r.mux.HandleFunc("GET /api/history", r.withAuth(r.handleHistory))
	r.mux.HandleFunc("GET /api/usage", r.withAuth(r.handleUsage))
	r.mux.HandleFunc("GET /api/metrics", r.withAuth(r.handleMetrics))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// setSession records the active caption session.
func (r *Router) setSession(id string) {
	r.sessionMu.Lock()
	r.sessionID = id
	r.sessionMu.Unlock()
}

// ActiveSession returns the active caption session ID, or "".
func (r *Router) ActiveSession() string {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()
	return r.sessionID
}

// ingestAuthorized checks the shared capture key. An unset key means open
// ingest.
func (r *Router) ingestAuthorized(req *http.Request) bool {
	if r.cfg.IngestKey == "" {
		return true
	}
	if k := req.Header.Get("X-Ingest-Key"); k == r.cfg.IngestKey {
		return true
	}
	return req.URL.Query().Get("key") == r.cfg.IngestKey
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Ingest-Key")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
