package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/analyzer"
	"github.com/markus-lassfolk/hifiwifi/pkg/audit"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
	"github.com/markus-lassfolk/hifiwifi/pkg/metrics"
	"github.com/markus-lassfolk/hifiwifi/pkg/store"
)

type fakeDecisions struct {
	decisions []*pkg.Decision
}

func (f *fakeDecisions) LogDecision(_ context.Context, d *pkg.Decision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeDecisions) Recent(_ context.Context, limit int) ([]*pkg.Decision, error) {
	if len(f.decisions) > limit {
		return f.decisions[:limit], nil
	}
	return f.decisions, nil
}

func (f *fakeDecisions) ForRoom(_ context.Context, room string, limit int) ([]*pkg.Decision, error) {
	var out []*pkg.Decision
	for _, d := range f.decisions {
		if d.Room == room && len(out) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDecisions) Stats(_ context.Context, _ time.Time) (*audit.DecisionStats, error) {
	stats := &audit.DecisionStats{Actions: map[string]int{}}
	for _, d := range f.decisions {
		stats.Total++
		stats.Actions[d.Action]++
	}
	return stats, nil
}

type testEnv struct {
	handler   http.Handler
	decisions *fakeDecisions
}

func newTestEnv(t *testing.T, authKey string) *testEnv {
	t.Helper()
	logger := logx.NewLoggerWithOutput("error", "api", io.Discard)

	rs, err := store.Open(&store.Config{Path: filepath.Join(t.TempDir(), "results.db"), MaxPerRoom: 10}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	decisions := &fakeDecisions{}
	m := metrics.New("")
	a := analyzer.New(nil, nil, logger,
		analyzer.WithStore(rs),
		analyzer.WithDecisionLog(decisions),
		analyzer.WithMetrics(m),
	)

	cfg := DefaultConfig()
	cfg.AuthKey = authKey
	srv := NewServer(cfg, a, logger).
		WithHistory(rs).
		WithDecisions(decisions).
		WithMetrics(m.Handler()).
		WithVersion("test")

	return &testEnv{handler: srv.Router(), decisions: decisions}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const officeMeasurement = `{
	"room_id": "office",
	"room_name": "Office",
	"activity": "video_call",
	"sample": {"signal_strength": -45, "latency": 30, "bandwidth": 60, "jitter": 8, "packet_loss": 0.2},
	"frequency_mhz": 5180
}`

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "secret")
	rec := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestProfiles(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(http.MethodGet, "/api/v1/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "general", body["default"])
	profiles, ok := body["profiles"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, profiles)
	assert.Contains(t, rec.Body.String(), `"most_important":"latency"`)
}

func TestAnalyzeAndHistory(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/api/v1/analyze", officeMeasurement)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report pkg.RoomReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "office", report.Room())
	assert.Equal(t, "video_call", report.Classification.Activity)
	assert.NotEmpty(t, report.Classification.Reasoning)
	assert.NotEmpty(t, report.Recommendation.Action)
	require.Len(t, env.decisions.decisions, 1)

	rec = env.do(http.MethodGet, "/api/v1/rooms/office/results?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "office", body["room"])
	assert.Len(t, body["results"], 1)

	rec = env.do(http.MethodGet, "/api/v1/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["rooms"], 1)

	rec = env.do(http.MethodGet, "/api/v1/rooms/office/decisions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["decisions"], 1)

	rec = env.do(http.MethodGet, "/api/v1/decisions/stats?since=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["total"])
}

func TestAnalyzeBadRequests(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"room_id":`},
		{"unknown field", `{"room_id":"a","colour":"blue"}`},
		{"missing room", `{"activity":"gaming","sample":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, decode(t, rec)["success"])
		})
	}

	rec := env.do(http.MethodGet, "/api/v1/analyze", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSamples(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/api/v1/samples",
		`{"probes":[{"latency_ms":10},{"latency_ms":12},{"failed":true},{"latency_ms":14}],"window":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, 25.0, body["packet_loss"])
	assert.Equal(t, 4.0, body["total"])
	assert.InDelta(t, 1.633, body["jitter"].(float64), 0.001)

	rec = env.do(http.MethodPost, "/api/v1/samples", `{"probes":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	rec := env.do(http.MethodGet, "/api/v1/profiles", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/profiles", "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/profiles", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/profiles?auth=secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidLimit(t *testing.T) {
	env := newTestEnv(t, "")
	for _, path := range []string{"/api/v1/decisions?limit=0", "/api/v1/rooms/x/results?limit=abc"} {
		rec := env.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
	rec := env.do(http.MethodGet, "/api/v1/decisions/stats?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisabledSinks(t *testing.T) {
	logger := logx.NewLoggerWithOutput("error", "api", io.Discard)
	h := NewServer(nil, analyzer.New(nil, nil, logger), logger).Router()

	for _, path := range []string{"/api/v1/rooms", "/api/v1/decisions", "/api/v1/rooms/a/results"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(http.MethodPost, "/api/v1/analyze", officeMeasurement)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hifiwifi_classifications_total{activity="video_call"`)
}

func TestPerformance(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(http.MethodPost, "/api/v1/analyze", officeMeasurement)

	rec := env.do(http.MethodGet, "/api/v1/performance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"analyze"`)
}
