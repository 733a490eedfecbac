package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loraworks/ttn-export/internal/history"
	"github.com/loraworks/ttn-export/internal/service"
)

// stubRecorder serves a fixed run list.
type stubRecorder struct {
	runs     []*history.Run
	gotLimit int
}

func (s *stubRecorder) RecordRun(ctx context.Context, run *history.Run) error { return nil }
func (s *stubRecorder) ListRuns(ctx context.Context, limit int) ([]*history.Run, error) {
	s.gotLimit = limit
	return s.runs, nil
}
func (s *stubRecorder) Close() {}

// mockFetcher returns canned storage API data.
type mockFetcher struct {
	data []byte
	err  error

	gotAppID string
	gotLast  time.Duration
}

func (m *mockFetcher) FetchUplinks(ctx context.Context, appID string, last time.Duration) ([]byte, error) {
	m.gotAppID = appID
	m.gotLast = last
	return m.data, m.err
}

// denyingLimiter rejects every request.
type denyingLimiter struct{}

func (denyingLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }
func (denyingLimiter) Close() error                                        { return nil }

func newTestHandler(fetcher Fetcher) *ExportHandler {
	svc := service.NewExportService(nil, nil, nil)
	return NewExportHandler(svc, fetcher, nil, nil, 1<<20)
}

const sampleBatch = `{"result":{"end_device_ids":{"device_id":"dev1"},"received_at":"2024-01-01T00:00:00Z","uplink_message":{"f_port":1,"f_cnt":5,"decoded_payload":{"temp":21.5}}}}
not json
{"result":{"end_device_ids":{"device_id":"dev1"},"received_at":"2024-01-01T00:01:00Z","uplink_message":{"f_port":1,"f_cnt":6,"decoded_payload":{"temp":22}}}}
`

func TestHandleProcess(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", strings.NewReader(sampleBatch))
	rr := httptest.NewRecorder()
	handler.HandleProcess(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var result service.BatchResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Records != 2 {
		t.Errorf("Records = %d, want 2", result.Records)
	}
	if len(result.Failures) != 1 {
		t.Errorf("Failures = %d, want 1", len(result.Failures))
	}
	if _, ok := result.Files["dev1_data.csv"]; !ok {
		t.Error("missing dev1_data.csv in response files")
	}
}

func TestHandleProcess_ZipFormat(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process?format=zip", strings.NewReader(sampleBatch))
	rr := httptest.NewRecorder()
	handler.HandleProcess(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q, want application/zip", ct)
	}

	body := rr.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("Failed to open zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "dev1_data.csv" {
		t.Errorf("unexpected archive contents: %+v", zr.File)
	}
}

func TestHandleProcess_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/process", nil)
	rr := httptest.NewRecorder()
	handler.HandleProcess(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rr.Code)
	}
}

func TestHandleProcess_RateLimited(t *testing.T) {
	svc := service.NewExportService(nil, nil, nil)
	handler := NewExportHandler(svc, nil, denyingLimiter{}, nil, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/process", strings.NewReader(sampleBatch))
	rr := httptest.NewRecorder()
	handler.HandleProcess(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rr.Code)
	}
}

func TestHandleDedup(t *testing.T) {
	handler := newTestHandler(nil)

	csvBody := "f_cnt,received_at,temp\n5,t1,21.5\n5,t1,99.9\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dedup?filename=sensor.csv", strings.NewReader(csvBody))
	rr := httptest.NewRecorder()
	handler.HandleDedup(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Original-Count"); got != "2" {
		t.Errorf("X-Original-Count = %q, want 2", got)
	}
	if got := rr.Header().Get("X-Unique-Count"); got != "1" {
		t.Errorf("X-Unique-Count = %q, want 1", got)
	}
	if got := rr.Header().Get("X-Duplicates-Removed"); got != "1" {
		t.Errorf("X-Duplicates-Removed = %q, want 1", got)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "deduplicated_sensor.csv") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if got := rr.Body.String(); got != "f_cnt,received_at,temp\n5,t1,21.5\n" {
		t.Errorf("body = %q", got)
	}
}

func TestHandleDedup_CustomFields(t *testing.T) {
	handler := newTestHandler(nil)

	csvBody := "device_id,f_cnt\ndev1,5\ndev2,5\n"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dedup?fields=device_id", strings.NewReader(csvBody))
	rr := httptest.NewRecorder()
	handler.HandleDedup(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Unique-Count"); got != "2" {
		t.Errorf("X-Unique-Count = %q, want 2", got)
	}
}

func TestHandleDedup_EmptyFields(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dedup?fields=", strings.NewReader("a\n1\n"))
	rr := httptest.NewRecorder()
	handler.HandleDedup(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHandleFetch(t *testing.T) {
	fetcher := &mockFetcher{data: []byte(sampleBatch)}
	handler := newTestHandler(fetcher)

	body := `{"application_id":"my-app","last":"24h"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.HandleFetch(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if fetcher.gotAppID != "my-app" {
		t.Errorf("appID = %q, want my-app", fetcher.gotAppID)
	}
	if fetcher.gotLast != 24*time.Hour {
		t.Errorf("last = %v, want 24h", fetcher.gotLast)
	}

	var result service.BatchResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Records != 2 {
		t.Errorf("Records = %d, want 2", result.Records)
	}
}

func TestHandleFetch_WindowOutOfRange(t *testing.T) {
	fetcher := &mockFetcher{}
	handler := newTestHandler(fetcher)

	body := `{"application_id":"my-app","last":"72h"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.HandleFetch(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
	if fetcher.gotAppID != "" {
		t.Error("fetcher called despite invalid window")
	}
}

func TestHandleFetch_NotConfigured(t *testing.T) {
	handler := newTestHandler(nil)

	body := `{"application_id":"my-app","last":"24h"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fetch", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.HandleFetch(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rr.Code)
	}
}

func TestHandleRuns(t *testing.T) {
	recorder := &stubRecorder{runs: []*history.Run{
		{ID: "r2", Kind: "dedup"},
		{ID: "r1", Kind: "process"},
	}}
	svc := service.NewExportService(nil, recorder, nil)
	handler := NewExportHandler(svc, nil, nil, nil, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=2", nil)
	rr := httptest.NewRecorder()
	handler.HandleRuns(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if recorder.gotLimit != 2 {
		t.Errorf("limit = %d, want 2", recorder.gotLimit)
	}

	var response struct {
		Runs []*history.Run `json:"runs"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Runs) != 2 || response.Runs[0].ID != "r2" {
		t.Errorf("unexpected runs: %+v", response.Runs)
	}
}

func TestHandleRuns_HistoryDisabled(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rr := httptest.NewRecorder()
	handler.HandleRuns(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"runs":[]}` {
		t.Errorf("body = %q, want empty runs list", got)
	}
}

func TestHandleRuns_InvalidLimit(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=nope", nil)
	rr := httptest.NewRecorder()
	handler.HandleRuns(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	handler := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Health(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", response["status"])
	}
}
