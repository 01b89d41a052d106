package demoapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/mutker/smartinfra/internal/demoapi"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, app *fiber.App, method, path string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

// upstream serves a canned /api/metrics document.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/metrics" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(demoapi.Metrics{
			CPUUsage:    "45%",
			MemoryUsage: "67%",
			DiskSpace:   "23GB free",
			Uptime:      "5 days, 3 hours",
			Timestamp:   "2024-05-01T12:00:00Z",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStaticRoutes(t *testing.T) {
	app := demoapi.New(demoapi.Config{}, logger.Nop()).App()

	status, body := call(t, app, http.MethodGet, "/api/response")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])

	status, body = call(t, app, http.MethodGet, "/api/server_alert?name=rack-07")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Alert, rack-07!", body["message"])
	assert.Equal(t, "rack-07", body["name"])

	_, body = call(t, app, http.MethodGet, "/api/server_alert")
	assert.Equal(t, "operator", body["name"])

	status, body = call(t, app, http.MethodPost, "/api/hello")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "POST", body["method"])
}

func TestHelloRequiresPost(t *testing.T) {
	app := demoapi.New(demoapi.Config{}, logger.Nop()).App()
	status, _ := call(t, app, http.MethodGet, "/api/hello")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestMetrics(t *testing.T) {
	app := demoapi.New(demoapi.Config{}, logger.Nop()).App()

	status, body := call(t, app, http.MethodGet, "/api/metrics")
	assert.Equal(t, http.StatusOK, status)
	for _, key := range []string{"cpu_usage", "memory_usage", "disk_space", "uptime", "timestamp"} {
		assert.Contains(t, body, key)
	}
}

func TestRemoteMetrics(t *testing.T) {
	srv := upstream(t)
	app := demoapi.New(demoapi.Config{Upstream: srv.URL}, logger.Nop()).App()

	status, body := call(t, app, http.MethodGet, "/api/metrics/remote")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "HTTP Request", body["source"])
	assert.Equal(t, "GET /api/metrics", body["method"])
	assert.Equal(t, "success", body["status"])

	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "45%", data["cpu_usage"])
}

func TestRemoteMetricsConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	app := demoapi.New(demoapi.Config{Upstream: url}, logger.Nop()).App()

	status, body := call(t, app, http.MethodGet, "/api/metrics/remote")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Connection failed - make sure server is running", body["error"])
	assert.Equal(t, "Try accessing /api/metrics first", body["message"])
}

func TestRemoteMetricsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	app := demoapi.New(demoapi.Config{Upstream: srv.URL}, logger.Nop()).App()

	status, body := call(t, app, http.MethodGet, "/api/metrics/remote")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Failed to fetch metrics", body["error"])
	assert.EqualValues(t, http.StatusServiceUnavailable, body["status_code"])
}

func TestRemoteMetricsBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	app := demoapi.New(demoapi.Config{Upstream: srv.URL}, logger.Nop()).App()

	status, body := call(t, app, http.MethodGet, "/api/metrics/remote")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "decode metrics")
}
