package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/daanzu/speech-training-recorder/internal/audio"
	"github.com/daanzu/speech-training-recorder/internal/config"
	"github.com/daanzu/speech-training-recorder/internal/metrics"
	"github.com/daanzu/speech-training-recorder/internal/session"
	"github.com/daanzu/speech-training-recorder/internal/store"
)

type fakeSession struct {
	snap session.Snapshot
}

func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

type fakeMetadata struct {
	records []store.Metadata
	err     error
}

func (f *fakeMetadata) ReadMetadata() ([]store.Metadata, error) { return f.records, f.err }

func newTestServer(sess *fakeSession, meta *fakeMetadata) (*HTTPServer, *metrics.Metrics) {
	m := metrics.NewMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	h := NewHTTPServer(cfg.HTTP, logger, cfg, Deps{
		Session:     sess,
		Metadata:    meta,
		BufferStats: func() audio.BufferStats { return audio.BufferStats{Queued: 2, TotalChunks: 7} },
		Metrics:     m,
	})
	return h, m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSession(t *testing.T) {
	sess := &fakeSession{snap: session.Snapshot{
		ID:     "abc",
		State:  "armed",
		Index:  2,
		Total:  10,
		Prompt: "hello world",
	}}
	h, _ := newTestServer(sess, &fakeMetadata{})

	rec := get(t, h.Handler(), "/session")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}

	var got session.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.ID != "abc" || got.State != "armed" || got.Index != 2 || got.Prompt != "hello world" {
		t.Errorf("Unexpected snapshot: %+v", got)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name     string
		snap     session.Snapshot
		expected string
	}{
		{"healthy", session.Snapshot{State: "armed"}, "healthy"},
		{"degraded after error", session.Snapshot{State: "armed", LastError: "disk full"}, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(&fakeSession{snap: tt.snap}, &fakeMetadata{})

			rec := get(t, h.Handler(), "/health")
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", rec.Code)
			}

			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body["status"] != tt.expected {
				t.Errorf("Expected status %s, got %v", tt.expected, body["status"])
			}

			components := body["components"].(map[string]any)
			buffer := components["capture_buffer"].(map[string]any)
			if buffer["queued_chunks"] != float64(2) {
				t.Errorf("Expected 2 queued chunks, got %v", buffer["queued_chunks"])
			}
		})
	}
}

func TestHandleRecordings(t *testing.T) {
	meta := &fakeMetadata{records: []store.Metadata{
		store.NewMetadata("/data/recorder_a.wav", "arctic", "hello"),
		store.NewMetadata("/data/recorder_b.wav", "arctic", "world"),
	}}
	h, _ := newTestServer(&fakeSession{}, meta)

	rec := get(t, h.Handler(), "/recordings")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Total      int              `json:"total"`
		Recordings []store.Metadata `json:"recordings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Total != 2 || len(body.Recordings) != 2 {
		t.Fatalf("Expected 2 recordings, got %+v", body)
	}
	if body.Recordings[1].Text != "world" || body.Recordings[1].Flag != "0" {
		t.Errorf("Unexpected record: %+v", body.Recordings[1])
	}
}

func TestHandleRecordingsEmptyLog(t *testing.T) {
	h, _ := newTestServer(&fakeSession{}, &fakeMetadata{})

	rec := get(t, h.Handler(), "/recordings")
	if !strings.Contains(rec.Body.String(), `"recordings":[]`) {
		t.Errorf("Expected empty list, got %s", rec.Body.String())
	}
}

func TestHandleRecordingsReadError(t *testing.T) {
	h, _ := newTestServer(&fakeSession{}, &fakeMetadata{err: errors.New("permission denied")})

	rec := get(t, h.Handler(), "/recordings")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestHandleConfig(t *testing.T) {
	h, _ := newTestServer(&fakeSession{}, &fakeMetadata{})

	rec := get(t, h.Handler(), "/config")
	var body map[string]map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["recorder"]["prompts_count"] != float64(100) {
		t.Errorf("Expected prompts_count 100, got %v", body["recorder"]["prompts_count"])
	}
	if body["audio"]["sample_rate"] != float64(16000) {
		t.Errorf("Expected sample_rate 16000, got %v", body["audio"]["sample_rate"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestServer(&fakeSession{}, &fakeMetadata{})

	for _, path := range []string{"/", "/health", "/session", "/recordings", "/config"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		h.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: expected 405, got %d", path, rec.Code)
		}
	}
}

func TestUnknownPath(t *testing.T) {
	h, _ := newTestServer(&fakeSession{}, &fakeMetadata{})

	if rec := get(t, h.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(&fakeSession{}, &fakeMetadata{})

	get(t, h.Handler(), "/session")
	rec := get(t, h.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `recorder_http_requests_total{endpoint="/session",method="GET",status_code="200"} 1`) {
		t.Errorf("Expected instrumented /session request in metrics output")
	}
}
