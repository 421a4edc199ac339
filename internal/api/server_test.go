package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/config"
	"github.com/atlas-desktop/validation-backend/internal/data"
	"github.com/atlas-desktop/validation-backend/internal/engine"
	"github.com/atlas-desktop/validation-backend/internal/telemetry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	cfg.Data.Dir = t.TempDir()
	// Small defaults keep handler tests fast.
	cfg.Defaults.MonteCarlo.Trials = 20
	cfg.Defaults.MonteCarlo.Seed = 7
	cfg.Defaults.Bootstrap.Samples = 20
	cfg.Defaults.Bootstrap.Seed = 7

	logger := zap.NewNop()
	store, err := data.NewStore(logger, cfg.Data.Dir)
	if err != nil {
		t.Fatalf("store create failed: %v", err)
	}
	tel := telemetry.New()
	return NewServer(logger, cfg, store, engine.New(logger, tel), tel)
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func getJob(t *testing.T, s *Server, id string) *Job {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+id, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("job lookup returned %d", rec.Code)
	}

	var job Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return &job
}

func waitForJob(t *testing.T, s *Server, id string) *Job {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		job := getJob(t, s, id)
		if job.Status != StatusRunning {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", id)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMonteCarloJobLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/validate/montecarlo", map[string]interface{}{
		"symbol": "BTC/USDT",
		"bars":   200,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var accepted struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.Status != StatusRunning {
		t.Errorf("expected running status, got %q", accepted.Status)
	}

	job := waitForJob(t, s, accepted.ID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed job, got %q (%s)", job.Status, job.Error)
	}
	if job.Result == nil {
		t.Error("completed job has no result")
	}
	if job.Operation != engine.OpMonteCarlo {
		t.Errorf("unexpected operation %q", job.Operation)
	}
}

func TestBootstrapJobUsesOverrides(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/validate/bootstrap", map[string]interface{}{
		"symbol": "ETH/USDT",
		"bars":   150,
		"bootstrap": map[string]interface{}{
			"samples": 10,
			"seed":    3,
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var accepted struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &accepted)

	job := waitForJob(t, s, accepted.ID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed job, got %q (%s)", job.Status, job.Error)
	}

	result, ok := job.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape %T", job.Result)
	}
	samples, ok := result["samples"].([]interface{})
	if !ok || len(samples) != 10 {
		t.Errorf("expected 10 samples from override, got %v", len(samples))
	}
}

func TestInvalidConfigFailsJob(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, "/api/v1/validate/montecarlo", map[string]interface{}{
		"symbol":     "BTC/USDT",
		"bars":       100,
		"monteCarlo": map[string]interface{}{"trials": -5},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var accepted struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &accepted)

	job := waitForJob(t, s, accepted.ID)
	if job.Status != StatusFailed {
		t.Fatalf("expected failed job, got %q", job.Status)
	}
	if job.Error == "" {
		t.Error("failed job carries no error message")
	}
}

func TestUnknownJobReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/no-such-job", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/data/history/BTC-USDT?bars=50", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 50 {
		t.Errorf("expected 50 bars, got %d", resp.Count)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
