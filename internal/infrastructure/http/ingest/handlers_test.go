package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/application/engine"
	frictionapp "github.com/tablewise/insights/internal/application/friction"
	funnelapp "github.com/tablewise/insights/internal/application/funnel"
	frictiondomain "github.com/tablewise/insights/internal/domain/friction"
	"github.com/tablewise/insights/internal/infrastructure/config"
	"github.com/tablewise/insights/internal/infrastructure/persistence/memory"
	"github.com/tablewise/insights/pkg/healthcheck"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "insights-test"
	cfg.App.Version = "0.0.0"
	cfg.App.Environment = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.MaxBatchSize = 100
	return cfg
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testConfig()
	logger := zap.NewNop()

	registry := engine.NewRegistry(engine.Deps{
		StateStore:  memory.NewStateStore(),
		FrictionCfg: frictionapp.DefaultConfig(),
		Logger:      logger,
	})
	t.Cleanup(registry.Shutdown)

	hub := NewHub(logger, nil)
	t.Cleanup(hub.Close)

	handlers := NewHandlers(cfg, registry, funnelapp.NewAnalyzer(), nil, nil, hub, logger)
	server := NewServer(cfg, handlers, nil, nil, healthcheck.NewRegistry(), logger)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func clickEnvelope(elementID string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"kind": "click",
		"payload": map[string]interface{}{
			"element": map[string]interface{}{
				"id":       elementID,
				"tag_name": "button",
				"cursor":   "pointer",
			},
			"x": 10, "y": 20,
			"timestamp": at.Format(time.RFC3339Nano),
		},
	}
}

func TestAuthRequiredOnIngestRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/events", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestBatchClassifiesFriction(t *testing.T) {
	ts := newTestServer(t)
	base := time.Now()

	batch := map[string]interface{}{
		"session_id": "s1",
		"events": []interface{}{
			clickEnvelope("buy", base),
			clickEnvelope("buy", base.Add(100*time.Millisecond)),
			clickEnvelope("buy", base.Add(200*time.Millisecond)),
			map[string]interface{}{"kind": "hover", "payload": map[string]interface{}{}},
		},
	}
	resp := doJSON(t, ts, http.MethodPost, "/v1/events", batch)
	var result map[string]int
	decode(t, resp, &result)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 3, result["accepted"])
	assert.Equal(t, 1, result["rejected"])

	resp = doJSON(t, ts, http.MethodGet, "/v1/friction/events", nil)
	var events []frictiondomain.Event
	func() {
		defer resp.Body.Close()
		var raw []json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		require.Len(t, raw, 1)
		var partial struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw[0], &partial))
		events = append(events, frictiondomain.Event{Type: frictiondomain.Type(partial.Type)})
	}()
	assert.Equal(t, frictiondomain.TypeRageClick, events[0].Type)
}

func TestFrictionClassifiedAcrossRequests(t *testing.T) {
	ts := newTestServer(t)
	base := time.Now()

	// First request creates the tenant engine and ends; its context dies
	// with it. The burst arrives in a later request and must still classify.
	resp := doJSON(t, ts, http.MethodPost, "/v1/events", map[string]interface{}{
		"session_id": "s1",
		"events":     []interface{}{clickEnvelope("search", base)},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	later := base.Add(2 * time.Second)
	resp = doJSON(t, ts, http.MethodPost, "/v1/events", map[string]interface{}{
		"session_id": "s1",
		"events": []interface{}{
			clickEnvelope("buy", later),
			clickEnvelope("buy", later.Add(100*time.Millisecond)),
			clickEnvelope("buy", later.Add(200*time.Millisecond)),
		},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/v1/friction/events", nil)
	defer resp.Body.Close()
	var raw []json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.NotEmpty(t, raw)
	var partial struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(raw[len(raw)-1], &partial))
	assert.Equal(t, string(frictiondomain.TypeRageClick), partial.Type)
}

func TestJourneyLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/v1/journeys/start", map[string]string{
		"session_id": "s1", "user_id": "alice",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/v1/journeys/steps", map[string]interface{}{"path": "/home"})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/v1/journeys/end", map[string]interface{}{
		"completed": true, "exit_point": "/home",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/v1/journeys/current", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/v1/journeys/analysis", nil)
	var analysis struct {
		TotalJourneys     int `json:"total_journeys"`
		CompletedJourneys int `json:"completed_journeys"`
	}
	decode(t, resp, &analysis)
	assert.Equal(t, 1, analysis.TotalJourneys)
	assert.Equal(t, 1, analysis.CompletedJourneys)
}

func TestFunnelAnalyzeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/v1/funnels/analyze", map[string]interface{}{
		"stages": []map[string]interface{}{
			{"name": "menu_view", "count": 1000},
			{"name": "checkout", "count": 400},
		},
	})
	var analysis struct {
		OverallConversionRate float64 `json:"overall_conversion_rate"`
		CriticalDropOffs      []struct {
			DropOffRate float64 `json:"drop_off_rate"`
		} `json:"critical_drop_offs"`
	}
	decode(t, resp, &analysis)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 40.0, analysis.OverallConversionRate, 1e-9)
	require.Len(t, analysis.CriticalDropOffs, 1)
	assert.InDelta(t, 0.6, analysis.CriticalDropOffs[0].DropOffRate, 1e-9)
}

func TestFunnelRejectsSingleStage(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, ts, http.MethodPost, "/v1/funnels/analyze", map[string]interface{}{
		"stages": []map[string]interface{}{{"name": "only", "count": 10}},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestABTestAssignmentIsStable(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/v1/abtests/", map[string]interface{}{
		"id":   "cta",
		"name": "CTA copy",
		"variants": []map[string]interface{}{
			{"id": "control", "name": "Control"},
			{"id": "treatment", "name": "Treatment"},
		},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assign := func(user string) string {
		resp := doJSON(t, ts, http.MethodPost, "/v1/abtests/cta/assign", map[string]string{"user_id": user})
		var variant struct {
			ID string `json:"id"`
		}
		decode(t, resp, &variant)
		return variant.ID
	}
	for i := 0; i < 5; i++ {
		user := fmt.Sprintf("user-%d", i)
		assert.Equal(t, assign(user), assign(user))
	}
}

func TestVitalsRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/v1/vitals/", map[string]interface{}{
		"metric": "lcp", "value": 4500.0, "page": "/home",
	})
	var m struct {
		Rating string `json:"rating"`
	}
	decode(t, resp, &m)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "poor", m.Rating)

	resp = doJSON(t, ts, http.MethodGet, "/v1/vitals/summary", nil)
	var summaries []struct {
		Metric  string `json:"metric"`
		Samples int    `json:"samples"`
	}
	decode(t, resp, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, "lcp", summaries[0].Metric)
	assert.Equal(t, 1, summaries[0].Samples)
}

func TestCohortEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/v1/cohorts/", map[string]interface{}{
		"id":   "january",
		"name": "January signups",
		"criteria": map[string]interface{}{
			"type":  "signup_date",
			"start": "2026-01-01T00:00:00Z",
			"end":   "2026-02-01T00:00:00Z",
		},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate ID conflicts
	resp = doJSON(t, ts, http.MethodPost, "/v1/cohorts/", map[string]interface{}{
		"id": "january", "name": "Again",
		"criteria": map[string]interface{}{
			"type":  "signup_date",
			"start": "2026-01-01T00:00:00Z",
			"end":   "2026-02-01T00:00:00Z",
		},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodPost, "/v1/cohorts/january/users", map[string]string{"user_id": "alice"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, ts, http.MethodGet, "/v1/cohorts/january", nil)
	var view struct {
		Size int `json:"size"`
	}
	decode(t, resp, &view)
	assert.Equal(t, 1, view.Size)

	resp = doJSON(t, ts, http.MethodGet, "/v1/cohorts/missing", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTenantsAreIsolated(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/journeys/start",
		bytes.NewBufferString(`{"session_id":"s1","user_id":"u1"}`))
	require.NoError(t, err)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/v1/journeys/current", nil)
	require.NoError(t, err)
	req.Header.Set("X-Tenant-ID", "tenant-b")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
