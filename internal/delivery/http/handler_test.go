package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/feedsync/backend/config"
	"github.com/feedsync/backend/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// MockSyncRunner is a mock implementation of SyncRunner
type MockSyncRunner struct {
	startID   string
	startErr  error
	runs      []domain.RunReport
	runsErr   error
	outcomes  []domain.ProductOutcome
	lastLimit int
	lastRunID string
}

func (m *MockSyncRunner) Start(ctx context.Context) (string, error) {
	return m.startID, m.startErr
}

func (m *MockSyncRunner) LastRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	m.lastLimit = limit
	return m.runs, m.runsErr
}

func (m *MockSyncRunner) Outcomes(ctx context.Context, runID string) ([]domain.ProductOutcome, error) {
	m.lastRunID = runID
	if runID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return m.outcomes, nil
}

func setupTestRouter(runner SyncRunner) *gin.Engine {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"https://ops.example.com"},
		},
	}
	return SetupRouter(cfg, NewHandler(runner))
}

func perform(router *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := setupTestRouter(nil)

	w, body := perform(router, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "feedsync", body["service"])
	assert.NotEmpty(t, body["version"])

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		w, _ := perform(router, method, "/health")
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
}

func TestRunEndpoints_NotConfigured(t *testing.T) {
	router := setupTestRouter(nil)

	testCases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/runs"},
		{http.MethodPost, "/api/v1/runs"},
		{http.MethodGet, "/api/v1/runs/abc/outcomes"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w, body := perform(router, tc.method, tc.path)

			assert.Equal(t, http.StatusNotImplemented, w.Code)
			assert.Contains(t, body["error"], "not configured")
		})
	}
}

func TestStartRun(t *testing.T) {
	testCases := []struct {
		name       string
		runner     *MockSyncRunner
		wantStatus int
		wantRunID  string
	}{
		{
			name:       "started",
			runner:     &MockSyncRunner{startID: "0b6d3c52-8f0e-4a57-9a55-6f1f5b3e2c11"},
			wantStatus: http.StatusAccepted,
			wantRunID:  "0b6d3c52-8f0e-4a57-9a55-6f1f5b3e2c11",
		},
		{
			name:       "run in progress",
			runner:     &MockSyncRunner{startErr: domain.ErrRunInProgress},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unexpected error",
			runner:     &MockSyncRunner{startErr: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := perform(setupTestRouter(tc.runner), http.MethodPost, "/api/v1/runs")

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantRunID != "" {
				assert.Equal(t, tc.wantRunID, body["runId"])
				assert.Equal(t, "started", body["status"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	finished := time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC)
	runner := &MockSyncRunner{runs: []domain.RunReport{
		{ID: "run-2", StartedAt: finished.Add(-time.Minute), FinishedAt: &finished, Total: 3, Processed: 3, Created: 2, Skipped: 1},
	}}
	router := setupTestRouter(runner)

	testCases := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"default limit", "", http.StatusOK, 0},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"limit is capped", "?limit=5000", http.StatusOK, maxRunsLimit},
		{"zero limit", "?limit=0", http.StatusBadRequest, -1},
		{"garbage limit", "?limit=ten", http.StatusBadRequest, -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			runner.lastLimit = -1
			w, body := perform(router, http.MethodGet, "/api/v1/runs"+tc.query)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantLimit, runner.lastLimit)
			if tc.wantStatus != http.StatusOK {
				return
			}
			runs, ok := body["runs"].([]interface{})
			require.True(t, ok)
			require.Len(t, runs, 1)
			run := runs[0].(map[string]interface{})
			assert.Equal(t, "run-2", run["id"])
			assert.Equal(t, float64(2), run["created"])
			assert.Equal(t, "2024-05-01T09:05:00Z", run["finishedAt"])
		})
	}
}

func TestListRuns_StoreError(t *testing.T) {
	router := setupTestRouter(&MockSyncRunner{runsErr: errors.New("connection refused")})

	w, body := perform(router, http.MethodGet, "/api/v1/runs")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", body["error"])
}

func TestListOutcomes(t *testing.T) {
	runner := &MockSyncRunner{outcomes: []domain.ProductOutcome{
		{RunID: "run-1", FamilyKey: "ACME|MN002", ProductID: 632910392, Action: domain.ActionCreated},
		{RunID: "run-1", FamilyKey: "ACME|PA120", Action: domain.ActionFailed, Error: "failed to create product"},
	}}
	router := setupTestRouter(runner)

	w, body := perform(router, http.MethodGet, "/api/v1/runs/run-1/outcomes")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-1", runner.lastRunID)
	assert.Equal(t, "run-1", body["runId"])
	outcomes, ok := body["outcomes"].([]interface{})
	require.True(t, ok)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "ACME|PA120", outcomes[1].(map[string]interface{})["familyKey"])
}

func TestCORSIntegration(t *testing.T) {
	router := setupTestRouter(&MockSyncRunner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
