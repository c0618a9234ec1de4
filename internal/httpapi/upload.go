package httpapi

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/clashrelay/streamcore/internal/apperr"
	"github.com/clashrelay/streamcore/internal/frame"
	"github.com/clashrelay/streamcore/internal/session"
)

// Dispatcher is the subset of *inference.Dispatcher the upload
// handler needs, kept narrow so this file doesn't pull in the
// detector/timer wiring.
type Dispatcher interface {
	TriggerAsync(code string)
}

// SetUpload wires the upload handler's dispatcher, called once from
// cmd/server after the Server is constructed. Without it, uploads are
// stored but trigger no inference.
func (s *Server) SetUpload(dispatcher Dispatcher) {
	s.dispatcher = dispatcher
}

type uploadResponse struct {
	Status          string `json:"status"`
	ProcessedTimeMs int64  `json:"processed_time_ms"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code := r.PathValue("code")
	sessCode, ok := session.ParseCode(code)
	if !ok {
		http.Error(w, apperr.ErrInvalidPayload.Error(), http.StatusBadRequest)
		return
	}

	ip := clientIP(r)
	if !s.ipCap.Acquire(ip) {
		http.Error(w, apperr.ErrRateLimited.Error(), http.StatusTooManyRequests)
		return
	}
	defer s.ipCap.Release(ip)

	if !s.msgWindow.Allow(ip) {
		http.Error(w, apperr.ErrRateLimited.Error(), http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		// Client disconnected mid-upload: return without touching
		// FrameStore, not an error response.
		if errors.Is(err, io.ErrUnexpectedEOF) || isConnReset(err) {
			writeJSON(w, http.StatusOK, uploadResponse{Status: "client_disconnected"})
			return
		}
		http.Error(w, apperr.ErrInvalidPayload.Error(), http.StatusBadRequest)
		return
	}

	quality := frame.ParseQuality(r.Header.Get("X-Quality-Level"))
	if err := s.frames.Save(code, body, quality); err != nil {
		http.Error(w, apperr.ErrInvalidPayload.Error(), http.StatusBadRequest)
		return
	}

	sess := s.registry.GetOrCreate(sessCode)
	sess.TouchActivity()
	sess.IncMessageCount()
	if sess.Snapshot().MessageCount == 1 && s.recorder != nil {
		s.recorder.SessionCreated(code)
	}

	if s.dispatcher != nil {
		s.dispatcher.TriggerAsync(code)
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Status:          "ok",
		ProcessedTimeMs: time.Since(start).Milliseconds(),
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isConnReset(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
