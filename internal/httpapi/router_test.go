package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clashrelay/streamcore/internal/detect"
	"github.com/clashrelay/streamcore/internal/frame"
	"github.com/clashrelay/streamcore/internal/inference"
	"github.com/clashrelay/streamcore/internal/session"
)

func TestHandleInferenceGetNoData(t *testing.T) {
	srv, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/inference/1234", nil)
	req.SetPathValue("code", "1234")
	w := httptest.NewRecorder()

	srv.handleInferenceGet(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "no_data" {
		t.Errorf("expected no_data status, got %v", body)
	}
}

func TestHandleInferenceGetReturnsStoredResult(t *testing.T) {
	registry := session.NewRegistry(4)
	frames := frame.NewStore()
	results := inference.NewStore(time.Minute)
	srv := NewServer(registry, frames, results, nil, nil, nil, 8, 120, time.Second)

	results.Save("1234", inference.Result{Result: detect.Result{ImageWidth: 100}, Timestamp: time.Now()})

	req := httptest.NewRequest("GET", "/inference/1234", nil)
	req.SetPathValue("code", "1234")
	w := httptest.NewRecorder()

	srv.handleInferenceGet(w, req)

	var got inference.Result
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ImageWidth != 100 {
		t.Errorf("expected ImageWidth 100, got %d", got.ImageWidth)
	}
}

func TestHandleInferenceGetRejectsInvalidCode(t *testing.T) {
	srv, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/inference/abc", nil)
	req.SetPathValue("code", "abc")
	w := httptest.NewRecorder()

	srv.handleInferenceGet(w, req)
	if w.Code != 400 {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleHealthReportsSessionCount(t *testing.T) {
	srv, _, registry := newTestServer()
	registry.GetOrCreate(session.Code("1234"))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected ok status, got %v", body)
	}
	if int(body["sessions"].(float64)) != 1 {
		t.Errorf("expected 1 session, got %v", body["sessions"])
	}
}

func TestHandleStreamStatsNotFoundForUnknownCode(t *testing.T) {
	srv, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/api/stream-stats/1234", nil)
	req.SetPathValue("code", "1234")
	w := httptest.NewRecorder()

	srv.handleStreamStats(w, req)
	if w.Code != 404 {
		t.Errorf("expected 404 for a code with no active session, got %d", w.Code)
	}
}

func TestHandleMetricsEmitsPrometheusFormat(t *testing.T) {
	srv, _, registry := newTestServer()
	registry.GetOrCreate(session.Code("1234"))

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.handleMetrics(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "clashrelay_sessions_total 1") {
		t.Errorf("expected sessions_total metric line, got:\n%s", body)
	}
}
