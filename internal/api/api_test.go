package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/internal/dashboard"
	"github.com/jgoulah/meterwatch/internal/database"
	"github.com/jgoulah/meterwatch/internal/logging"
	"github.com/jgoulah/meterwatch/internal/metrics"
	"github.com/jgoulah/meterwatch/internal/resolver"
	"github.com/jgoulah/meterwatch/internal/usage"
	"github.com/jgoulah/meterwatch/pkg/models"
)

type fakeRefresher struct {
	reading *models.Reading
	err     error
}

func (f fakeRefresher) Collect(ctx context.Context) (*models.Reading, error) {
	return f.reading, f.err
}

type testEnv struct {
	srv  *Server
	http *httptest.Server
	db   *database.DB
	agg  *usage.Aggregator
	dir  string
}

func newEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	agg := usage.NewAggregator(db, logging.Discard())
	opts := Options{
		DB:           db,
		Aggregator:   agg,
		SnapshotFile: filepath.Join(dir, "meter_data.json"),
		Gatherer:     reg,
		Logger:       logging.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv := New(opts)
	hs := httptest.NewServer(srv.Router())
	t.Cleanup(hs.Close)
	return &testEnv{srv: srv, http: hs, db: db, agg: agg, dir: dir}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	env := newEnv(t, nil)
	resp, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMeterDataUnavailable(t *testing.T) {
	env := newEnv(t, nil)
	resp, body := env.get(t, "/api/meter-data")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "no data", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestMeterDataFallsBackToSnapshotFile(t *testing.T) {
	env := newEnv(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "meter_data.json"), []byte(`{"meter_name":"file","remaining_power":3}`), 0644))

	resp, body := env.get(t, "/api/meter-data")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "file", body["meter_name"])

	resp, body = env.get(t, "/meter_data.json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3.0, body["remaining_power"])
}

func TestMeterDataFileMissing(t *testing.T) {
	env := newEnv(t, nil)
	resp, _ := env.get(t, "/meter_data.json")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMeterDataPrefersLatestReading(t *testing.T) {
	env := newEnv(t, nil)
	_, err := env.agg.Record(&models.Reading{Name: "db", Number: "7", RemainingPower: 11}, time.Now())
	require.NoError(t, err)

	resp, body := env.get(t, "/api/meter-data")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "db", body["name"])
	assert.Equal(t, 11.0, body["remaining_power"])
}

func TestRefresh(t *testing.T) {
	env := newEnv(t, func(o *Options) {
		o.Refresher = fakeRefresher{reading: &models.Reading{Name: "fresh"}}
	})
	resp, body := env.get(t, "/api/refresh")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "fresh", body["data"].(map[string]any)["name"])
}

func TestRefreshFailure(t *testing.T) {
	env := newEnv(t, func(o *Options) {
		o.Refresher = fakeRefresher{err: errors.New("meter page returned status 502")}
	})
	resp, body := env.get(t, "/api/refresh")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "502")
}

func TestRefreshNotConfigured(t *testing.T) {
	env := newEnv(t, nil)
	resp, _ := env.get(t, "/api/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	env := newEnv(t, nil)

	_, body := env.get(t, "/api/status")
	assert.Equal(t, false, body["data_available"])
	assert.Equal(t, false, body["data_file_exists"])
	assert.NotContains(t, body, "meter_name")

	_, err := env.agg.Record(&models.Reading{Name: "m", RemainingPower: 5, UpdateTime: "t0"}, time.Now())
	require.NoError(t, err)

	_, body = env.get(t, "/api/status")
	assert.Equal(t, true, body["data_available"])
	assert.Equal(t, 1.0, body["historical_records"])
	assert.Equal(t, 1.0, body["hourly_records"])
	assert.Equal(t, "m", body["meter_name"])
	assert.Equal(t, "t0", body["last_update"])
}

func TestHistoricalDataOrderAndLimit(t *testing.T) {
	env := newEnv(t, nil)
	now := time.Now()
	for i := 0; i < 30; i++ {
		_, err := env.agg.Record(&models.Reading{Name: "m", RemainingPower: float64(100 - i)}, now)
		require.NoError(t, err)
	}

	_, body := env.get(t, "/api/historical-data")
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 24.0, body["count"])
	data := body["data"].([]any)
	require.Len(t, data, 24)
	assert.Equal(t, 94.0, data[0].(map[string]any)["remaining_power"])
	assert.Equal(t, 71.0, data[23].(map[string]any)["remaining_power"])
}

func TestHistoricalDataEmpty(t *testing.T) {
	env := newEnv(t, nil)
	_, body := env.get(t, "/api/historical-data")
	assert.Equal(t, 0.0, body["count"])
	assert.Equal(t, []any{}, body["data"])
}

func TestUsageEndpoints(t *testing.T) {
	env := newEnv(t, nil)
	now := time.Date(2025, 9, 17, 14, 5, 0, 0, time.Local)
	_, err := env.agg.Record(&models.Reading{Name: "m", RemainingPower: 20}, now)
	require.NoError(t, err)
	_, err = env.agg.Record(&models.Reading{Name: "m", RemainingPower: 19}, now.Add(time.Minute))
	require.NoError(t, err)

	for _, g := range models.StoredGranularities {
		t.Run(g.String(), func(t *testing.T) {
			resp, body := env.get(t, g.Endpoint())
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, true, body["success"])
			assert.Equal(t, 1.0, body["count"])

			data := body["data"].(map[string]any)
			bucket := data[usage.Key(g, now)].(map[string]any)
			assert.Equal(t, 1.0, bucket["usage"])
			assert.Equal(t, 2.0, bucket["count"])
			assert.Equal(t, 19.0, bucket["avg_power"])
			if g == models.Daily {
				assert.Equal(t, 20.0, bucket["peak_power"])
			} else {
				assert.NotContains(t, bucket, "peak_power")
			}
		})
	}
}

func TestUnknownUsageEndpoint(t *testing.T) {
	env := newEnv(t, nil)
	resp, _ := env.get(t, "/api/yearly-usage")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsageSummary(t *testing.T) {
	env := newEnv(t, nil)
	_, body := env.get(t, "/api/usage-summary")
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	for _, key := range []string{"today", "this_week", "this_month", "recent_24h", "current_power"} {
		assert.Contains(t, data, key)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t, nil)
	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, g models.Granularity) resolver.Resolution {
	return resolver.Resolution{Series: models.Series{Labels: []string{"a"}, Data: []float64{1}}, Tier: resolver.TierCache}
}

func TestDashboardEndpoints(t *testing.T) {
	board := dashboard.NewBoard(staticResolver{}, nil)
	env := newEnv(t, func(o *Options) { o.Board = board })

	resp, body := env.get(t, "/api/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hourly", body["granularity"])

	resp, err := http.Post(env.http.URL+"/api/dashboard/granularity/weekly", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.Weekly, board.Active())

	resp, err = http.Post(env.http.URL+"/api/dashboard/granularity/monthly", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardNotRunning(t *testing.T) {
	env := newEnv(t, nil)
	resp, _ := env.get(t, "/api/dashboard")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAlertSettings(t *testing.T) {
	env := newEnv(t, nil)
	settings := alert.NewSettingsStore(env.db, logging.Discard())
	env.srv.opts.Settings = settings

	_, body := env.get(t, "/api/alert-settings")
	assert.Equal(t, 10.0, body["balanceAlert"])

	req, err := http.NewRequest(http.MethodPut, env.http.URL+"/api/alert-settings", bytes.NewBufferString(`{"balanceAlert":15,"powerAlert":4}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, models.AlertThresholds{Balance: 15, Power: 4, DailyUsage: 20}, settings.Thresholds())
}

func (e *testEnv) put(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, e.http.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestAlertSettingsAcceptNumericStrings(t *testing.T) {
	env := newEnv(t, nil)
	settings := alert.NewSettingsStore(env.db, logging.Discard())
	env.srv.opts.Settings = settings

	resp, body := env.put(t, "/api/alert-settings", `{"balanceAlert":"12","powerAlert":"4","dailyAlert":"25"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, models.AlertThresholds{Balance: 12, Power: 4, DailyUsage: 25}, settings.Thresholds())

	// persisted as numbers and read back by a fresh store
	reloaded, err := alert.NewSettingsStore(env.db, logging.Discard()).Load()
	require.NoError(t, err)
	assert.Equal(t, settings.Thresholds(), reloaded)
}

func TestAlertSettingsKeepOmittedFields(t *testing.T) {
	env := newEnv(t, nil)
	settings := alert.NewSettingsStore(env.db, logging.Discard())
	require.NoError(t, settings.Save(models.AlertThresholds{Balance: 30, Power: 5, DailyUsage: 40}))
	env.srv.opts.Settings = settings

	resp, _ := env.put(t, "/api/alert-settings", `{"powerAlert":"2.5"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.AlertThresholds{Balance: 30, Power: 2.5, DailyUsage: 40}, settings.Thresholds())
}

func TestAlertSettingsRejectNonObject(t *testing.T) {
	env := newEnv(t, nil)
	settings := alert.NewSettingsStore(env.db, logging.Discard())
	env.srv.opts.Settings = settings

	resp, body := env.put(t, "/api/alert-settings", `[1,2,3]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, models.DefaultThresholds(), settings.Thresholds())
}

func TestLiveWebsocket(t *testing.T) {
	board := dashboard.NewBoard(staticResolver{}, nil)
	board.SetClock(time.Date(2025, 9, 17, 14, 0, 0, 0, time.UTC))
	env := newEnv(t, func(o *Options) {
		o.Board = board
		o.PushEvery = 10 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.srv.Broadcast(ctx)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var view dashboard.View
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, "2025/09/17 14:00:00", view.Clock)

	// a second frame arrives from the broadcast loop
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, 1, env.srv.ClientCount())
}
