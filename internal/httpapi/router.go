// Package httpapi wires the relay's HTTP surface: frame upload,
// WebRTC offer/answer, inference polling, health, and stats. No
// router library was available to wire in for this concern, so it
// follows a flat http.HandleFunc/http.ServeMux routing idiom instead
// of introducing one — see DESIGN.md.
package httpapi

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/clashrelay/streamcore/internal/frame"
	"github.com/clashrelay/streamcore/internal/inference"
	"github.com/clashrelay/streamcore/internal/ratelimit"
	"github.com/clashrelay/streamcore/internal/rtcsignal"
	"github.com/clashrelay/streamcore/internal/session"
	"github.com/clashrelay/streamcore/internal/stats"
	"github.com/clashrelay/streamcore/internal/wsfanout"
)

// Server bundles every collaborator the HTTP handlers need.
type Server struct {
	registry *session.Registry
	frames   *frame.Store
	results  *inference.Store
	offers   *rtcsignal.Endpoint
	fanout   *wsfanout.Hub
	recorder *stats.Recorder

	ipCap     *ratelimit.IPCap
	msgWindow *ratelimit.Window

	dispatcher Dispatcher
	startedAt  time.Time
}

func NewServer(registry *session.Registry, frames *frame.Store, results *inference.Store, offers *rtcsignal.Endpoint, fanout *wsfanout.Hub, recorder *stats.Recorder, maxConnPerIP, maxMsgPerConn int, rateWindow time.Duration) *Server {
	return &Server{
		registry:  registry,
		frames:    frames,
		results:   results,
		offers:    offers,
		fanout:    fanout,
		recorder:  recorder,
		ipCap:     ratelimit.NewIPCap(maxConnPerIP),
		msgWindow: ratelimit.NewWindow(maxMsgPerConn, rateWindow),
		startedAt: time.Now(),
	}
}

// Mux builds the top-level route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/{code}", s.handleUpload)
	mux.Handle("POST /offer", s.offers)
	mux.HandleFunc("GET /inference/{code}", s.handleInferenceGet)
	mux.HandleFunc("GET /inference/active/sessions", s.handleActiveSessions)
	mux.HandleFunc("GET /inference/ws/{code}", s.handleInferenceWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stream-stats/{code}", s.handleStreamStats)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleInferenceWS(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, ok := session.ParseCode(code); !ok {
		http.Error(w, "invalid code", http.StatusBadRequest)
		return
	}
	s.fanout.ServeHTTP(code)(w, r)
}

func (s *Server) handleInferenceGet(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, ok := session.ParseCode(code); !ok {
		http.Error(w, "invalid code", http.StatusBadRequest)
		return
	}
	result, ok := s.results.Get(code)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "no_data"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"codes": s.results.ListActive()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime_s":  int(time.Since(s.startedAt).Seconds()),
		"sessions":  len(s.registry.Codes()),
		"goroutines": runtime.NumGoroutine(),
	})
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	c, ok := session.ParseCode(code)
	if !ok {
		http.Error(w, "invalid code", http.StatusBadRequest)
		return
	}
	sess, ok := s.registry.Get(c)
	if !ok {
		http.Error(w, "no active broadcast", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snaps := s.registry.Snapshots()
	var viewers, withBroadcaster int
	for _, snap := range snaps {
		viewers += snap.ViewerCount
		if snap.HasBroadcaster {
			withBroadcaster++
		}
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeMetric(w, "clashrelay_sessions_total", float64(len(snaps)))
	writeMetric(w, "clashrelay_sessions_with_broadcaster", float64(withBroadcaster))
	writeMetric(w, "clashrelay_viewers_total", float64(viewers))
	writeMetric(w, "clashrelay_active_inference_codes", float64(len(s.results.ListActive())))
	writeMetric(w, "clashrelay_goroutines", float64(runtime.NumGoroutine()))
}

func writeMetric(w http.ResponseWriter, name string, value float64) {
	_, _ = w.Write([]byte(name))
	_, _ = w.Write([]byte(" "))
	_, _ = w.Write([]byte(strconv.FormatFloat(value, 'f', -1, 64)))
	_, _ = w.Write([]byte("\n"))
}
