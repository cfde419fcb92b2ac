package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/capture"
)

type RouterConfig struct {
	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration
}

// SessionController is the part of capture.Controller the API drives.
type SessionController interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop(ctx context.Context) error
	Status() capture.Status
}

type Router struct {
	cfg     RouterConfig
	logger  *logrus.Logger
	ctrl    SessionController
	metrics http.Handler
	ops     *OpRegistry
	mux     *http.ServeMux
}

// NewRouter builds the control API. metrics may be nil.
func NewRouter(cfg RouterConfig, logger *logrus.Logger, ctrl SessionController, metrics http.Handler, ops *OpRegistry) http.Handler {
	if ops == nil {
		ops = NewOpRegistry()
	}
	r := &Router{
		cfg:     cfg,
		logger:  logger,
		ctrl:    ctrl,
		metrics: metrics,
		ops:     ops,
		mux:     http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics)
	}

	// Session control (protected)
	r.mux.HandleFunc("GET /api/session", r.withAuth(r.handleGetSession))
	r.mux.HandleFunc("POST /api/session/start", r.withAuth(r.withOp(r.handleStart)))
	r.mux.HandleFunc("POST /api/session/pause", r.withAuth(r.withOp(r.handlePause)))
	r.mux.HandleFunc("POST /api/session/resume", r.withAuth(r.withOp(r.handleResume)))
	r.mux.HandleFunc("POST /api/session/stop", r.withAuth(r.withOp(r.handleStop)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.ops.IsDraining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withOp registers the request with the drain gate.
func (r *Router) withOp(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.ops.Add() {
			http.Error(w, `{"error": "server is shutting down"}`, http.StatusServiceUnavailable)
			return
		}
		defer r.ops.Done()
		next(w, req)
	}
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
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
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
