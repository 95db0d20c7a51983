// Package server assembles the relay's HTTP surface: the WebSocket endpoint,
// health and metrics, song upload and the static client bundle all share one
// listener.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yourusername/sightread-relay/internal/hub"
	"github.com/yourusername/sightread-relay/internal/websocket"
)

// Route paths.
const (
	PathMIDI    = "/midi"
	PathHealth  = "/health"
	PathMetrics = "/metrics"
	PathUpload  = "/api/upload"
)

// Routes lists the handlers mounted on the router. Hub is required; nil
// handlers leave their route unmounted.
type Routes struct {
	Hub      *hub.Hub
	Static   http.Handler
	Upload   http.Handler
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter builds the chi router for rt.
func NewRouter(rt Routes) http.Handler {
	logger := rt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get(PathHealth, handleHealth)
	r.Get(PathMIDI, websocket.NewHandler(rt.Hub, logger.Named("ws")).ServeHTTP)

	if rt.Gatherer != nil {
		r.Handle(PathMetrics, promhttp.HandlerFor(rt.Gatherer, promhttp.HandlerOpts{}))
	}
	if rt.Upload != nil {
		r.Handle(PathUpload, rt.Upload)
	}
	if rt.Static != nil {
		r.Handle("/*", rt.Static)
	}

	return r
}

// handleHealth handles health check requests
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// RequestLogger logs one line per request through logger.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("Request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
