// Package api provides the HTTP surface of the relay.
//
// Routes:
//
//	GET  /socket                  duplex channel (WebSocket upgrade)
//	POST /api/v1/message          confirmation from the delivery service
//	POST /api/v1/message/proxy    delivery-service simulator, when enabled
//	GET  /api/v1/stats            connection and pending counts
//	GET  /api/v1/pending/{uid}    submission awaiting confirmation
//	GET  /healthz                 store connectivity
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/xraph/chatrelay/confirm"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/pending"
	"github.com/xraph/chatrelay/registry"
	"github.com/xraph/chatrelay/session"
	"github.com/xraph/chatrelay/signature"
	"github.com/xraph/chatrelay/store"
	"github.com/xraph/chatrelay/transport/ws"
)

// maxBody caps request bodies read by the API.
const maxBody = 64 * 1024

// Config holds handler dependencies.
type Config struct {
	Store    store.Store
	Registry *registry.Registry
	Codec    *envelope.Codec
	Hub      *session.Hub
	Upgrader *ws.Upgrader
	Confirm  *confirm.Endpoint

	// Signer verifies confirmations. Nil accepts unsigned calls.
	Signer *signature.Signer

	// Tracker reports pending counts on the stats route. Optional.
	Tracker *pending.Tracker

	// Simulator is mounted on the proxy route when set.
	Simulator http.Handler
}

// Handler is the root HTTP handler.
type Handler struct {
	config Config
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		config: cfg,
		logger: logger.With("component", "api"),
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Duplex channel
	h.mux.HandleFunc("GET /socket", h.serveSocket)

	// Confirmations
	h.mux.HandleFunc("POST /api/v1/message", h.confirmMessage)
	if h.config.Simulator != nil {
		h.mux.Handle("POST /api/v1/message/proxy", h.config.Simulator)
	}

	// Stats and health
	h.mux.HandleFunc("GET /api/v1/stats", h.getStats)
	h.mux.HandleFunc("GET /api/v1/pending/{uid}", h.getPending)
	h.mux.HandleFunc("GET /healthz", h.health)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code. It
// passes hijacking through so the socket route can upgrade.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("chatrelay: response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
