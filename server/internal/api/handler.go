package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sketchrelay/sketchrelay/server/internal/metrics"
	"github.com/sketchrelay/sketchrelay/server/internal/session"
)

// Relay is the view of the hub the API reads from.
type Relay interface {
	Count() int
	SyncMode() string
	Peers() []session.Info
}

// Handler serves the server's HTTP surface.
type Handler struct {
	relay   Relay
	rec     *metrics.Recorder
	started time.Time
	now     func() time.Time
}

// New builds the router: ws is mounted at /ws, rec serves /metrics and
// /api/v1/stats, and relay backs the health and peer endpoints. A non-empty
// uiDir serves a pre-built browser client for every other path.
func New(relay Relay, rec *metrics.Recorder, ws http.Handler, uiDir string) http.Handler {
	h := &Handler{relay: relay, rec: rec, started: time.Now(), now: time.Now}
	return h.routes(ws, uiDir)
}

func (h *Handler) routes(ws http.Handler, uiDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", h.rec)
	if ws != nil {
		r.Method(http.MethodGet, "/ws", ws)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/peers", h.peers)
		r.Get("/stats", h.stats)
	})

	if uiDir != "" {
		r.Get("/*", spa(uiDir))
	}
	return r
}

// --- route handlers ---------------------------------------------------------

// healthz is the liveness probe.
func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok")) //nolint:errcheck
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Peers:         h.relay.Count(),
		UptimeSeconds: h.now().Sub(h.started).Seconds(),
		SyncMode:      h.relay.SyncMode(),
	})
}

// peers returns GET /api/v1/peers, in join order.
func (h *Handler) peers(w http.ResponseWriter, _ *http.Request) {
	list := h.relay.Peers()
	if list == nil {
		list = []session.Info{}
	}
	jsonResp(w, http.StatusOK, PeersResponse{Count: len(list), Peers: list})
}

// stats returns GET /api/v1/stats.
func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.rec.Stats())
}

// spa serves static files from dir, falling back to index.html for paths
// that do not exist so client-side routing works.
func spa(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(name); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
