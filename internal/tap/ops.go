package tap

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codewiresh/wirestream/internal/capture"
)

type sessionView struct {
	ID           string     `json:"id"`
	ListenAddr   string     `json:"listen_addr"`
	UpstreamAddr string     `json:"upstream_addr"`
	Note         string     `json:"note,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

type frameView struct {
	Seq           int64     `json:"seq"`
	Direction     string    `json:"direction"`
	CorrelationID uint32    `json:"correlation_id"`
	Kind          string    `json:"kind,omitempty"`
	Size          int       `json:"size"`
	ObservedAt    time.Time `json:"observed_at"`
}

// NewOpsHandler returns the proxy's ops HTTP surface: /healthz,
// /metrics for reg, and capture browsing when st is non-nil.
func NewOpsHandler(st *capture.Store, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if st != nil {
		r.Get("/sessions", listSessions(st))
		r.Get("/sessions/{id}/frames", listFrames(st))
	}
	return r
}

func listSessions(st *capture.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := st.Sessions(r.Context())
		if err != nil {
			slog.Error("tap: listing sessions", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, sessionView{
				ID:           s.ID,
				ListenAddr:   s.ListenAddr,
				UpstreamAddr: s.UpstreamAddr,
				Note:         s.Note,
				StartedAt:    s.StartedAt,
				EndedAt:      s.EndedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	}
}

func listFrames(st *capture.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := st.SessionGet(r.Context(), id)
		if err != nil {
			slog.Error("tap: loading session", "id", id, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if sess == nil {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		frames, err := st.Frames(r.Context(), id)
		if err != nil {
			slog.Error("tap: listing frames", "id", id, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		views := make([]frameView, 0, len(frames))
		for _, f := range frames {
			views = append(views, frameView{
				Seq:           f.Seq,
				Direction:     f.Direction,
				CorrelationID: f.CorrelationID,
				Kind:          f.Kind,
				Size:          f.Size,
				ObservedAt:    f.ObservedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	}
}
