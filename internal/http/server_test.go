package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/basisrun/internal/backtest"
	"github.com/sawpanic/basisrun/internal/metrics"
	"github.com/sawpanic/basisrun/internal/persistence"
)

type memoryRuns struct {
	runs map[string]persistence.RunRecord
	days map[string][]persistence.DayRecord
	err  error
}

func (m *memoryRuns) SaveRun(ctx context.Context, res *backtest.Result) error {
	rec, err := persistence.NewRunRecord(res)
	if err != nil {
		return err
	}
	m.runs[rec.ID] = rec
	m.days[rec.ID] = persistence.NewDayRecords(rec.ID, res.Records)
	return nil
}

func (m *memoryRuns) GetRun(ctx context.Context, id string) (*persistence.RunRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryRuns) ListRuns(ctx context.Context, limit int) ([]persistence.RunRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []persistence.RunRecord{}
	for _, r := range m.runs {
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRuns) Days(ctx context.Context, id string) ([]persistence.DayRecord, error) {
	return m.days[id], nil
}

type staticHealth struct{ healthy bool }

func (h staticHealth) Health(ctx context.Context) persistence.HealthCheck {
	return persistence.HealthCheck{Healthy: h.healthy}
}

func (h staticHealth) Ping(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *memoryRuns, *metrics.Registry) {
	t.Helper()
	runs := &memoryRuns{runs: map[string]persistence.RunRecord{}, days: map[string][]persistence.DayRecord{}}
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, runs.SaveRun(context.Background(), &backtest.Result{
		RunID:   "run-1",
		Name:    "basis",
		KPI:     backtest.KPI{FinalEquity: 1.02},
		Quality: backtest.NewDataQuality(),
		Records: []backtest.DailyRecord{{Date: day, Regime: "BALANCED", Equity: 1}},
	}))

	reg := metrics.NewRegistry()
	return NewServer(DefaultServerConfig(), runs, staticHealth{healthy: true}, reg), runs, reg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Len(t, rr.Header().Get("X-Request-ID"), 8)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Store)
	assert.True(t, resp.Store.Healthy)
}

func TestServer_HealthDegraded(t *testing.T) {
	s := NewServer(DefaultServerConfig(), nil, staticHealth{healthy: false}, nil)

	rr := get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "degraded")
}

func TestServer_Runs(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := get(t, s, "/runs?limit=10")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Runs  []persistence.RunRecord `json:"runs"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "run-1", body.Runs[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/runs?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/runs?limit=0").Code)
}

func TestServer_Run(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := get(t, s, "/runs/run-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "run-1", doc["run_id"])

	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs/missing").Code)
}

func TestServer_Days(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := get(t, s, "/runs/run-1/days")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"regime":"BALANCED"`)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/runs/missing/days").Code)
}

func TestServer_StoreErrors(t *testing.T) {
	s, runs, _ := newTestServer(t)
	runs.err = errors.New("connection reset")

	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/runs").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/runs/run-1").Code)
}

func TestServer_NoStore(t *testing.T) {
	s := NewServer(DefaultServerConfig(), nil, nil, metrics.NewRegistry())

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/runs/run-1").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _, reg := newTestServer(t)
	reg.RecordFundingBatch(3)

	rr := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "basisrun_funding_snapshots_total 3"))
}

func TestServer_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := get(t, s, "/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
}
