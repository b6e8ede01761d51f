package server

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/moby/internal/store"
)

// Backend is what the status routes read from.  *store.Store satisfies it.
type Backend interface {
	Ping(ctx context.Context) time.Duration
	AllGuilds(ctx context.Context) iter.Seq[store.GuildRecord]
	AllUsers(ctx context.Context) iter.Seq[store.UserRecord]
}

// NewRouter wires the status routes:
//
//	GET /healthz   200 with ping latency, 503 when the database is unreachable
//	GET /stats     guild and user counts
//	GET /metrics   Prometheus exposition
func NewRouter(b Backend, log *zap.SugaredLogger) http.Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", healthz(b))
	r.Get("/stats", stats(b))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

type health struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
}

func healthz(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := b.Ping(r.Context())
		if d == store.Unreachable {
			writeJSON(w, http.StatusServiceUnavailable, health{Status: "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, health{
			Status:    "ok",
			LatencyMS: float64(d.Microseconds()) / 1000,
		})
	}
}

type counts struct {
	Guilds int `json:"guilds"`
	Users  int `json:"users"`
}

func stats(b Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c counts
		for range b.AllGuilds(r.Context()) {
			c.Guilds++
		}
		for range b.AllUsers(r.Context()) {
			c.Users++
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs one debug line per request.
func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugw("status request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
