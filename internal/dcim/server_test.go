package dcim_test

import (
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/smartinfra/internal/dcim"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"codeberg.org/mutker/smartinfra/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func newServer(t *testing.T, opts ...telemetry.GeneratorOption) (*dcim.Server, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	gen := telemetry.NewGenerator(rand.NewPCG(7, 8), opts...)
	cfg := dcim.Config{Port: 8080, RackCount: 3, CoolingCount: 3}
	return dcim.New(cfg, gen, pub, logger.Nop()), pub
}

func get(t *testing.T, s *dcim.Server, path string, out any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestRackPowerEndpoint(t *testing.T) {
	s, pub := newServer(t)

	var resp dcim.PowerResponse
	require.Equal(t, http.StatusOK, get(t, s, "/api/v2/racks/power", &resp))
	require.Len(t, resp.Racks, 3)
	for _, r := range resp.Racks {
		assert.Equal(t, "operational", r.PDUStatus)
		assert.GreaterOrEqual(t, r.PowerConsumptionWatts, 7500)
		assert.LessOrEqual(t, r.PowerConsumptionWatts, 8500)
	}

	assert.Eventually(t, func() bool {
		return len(pub.Topics()) == 1 && pub.Topics()[0] == "dcim/power"
	}, time.Second, 10*time.Millisecond)
}

func TestRackPowerWireFormat(t *testing.T) {
	s, _ := newServer(t)

	var raw map[string][]map[string]any
	require.Equal(t, http.StatusOK, get(t, s, "/api/v2/racks/power", &raw))
	require.Len(t, raw["racks"], 3)
	rack := raw["racks"][0]
	for _, key := range []string{"id", "location", "power_consumption_watts", "pdu_id", "pdu_status"} {
		assert.Contains(t, rack, key)
	}
	assert.Equal(t, "rack-01", rack["id"])
	assert.Equal(t, "Row-1", rack["location"])
}

func TestCountParameter(t *testing.T) {
	s, _ := newServer(t)

	var power dcim.PowerResponse
	require.Equal(t, http.StatusOK, get(t, s, "/api/v2/racks/power?count=5", &power))
	assert.Len(t, power.Racks, 5)

	var cooling dcim.CoolingResponse
	require.Equal(t, http.StatusOK, get(t, s, "/nlyte/api/v1/cooling/units?count=1", &cooling))
	assert.Len(t, cooling.CoolingUnits, 1)

	require.Equal(t, http.StatusOK, get(t, s, "/api/v2/racks/power?count="+strconv.Itoa(telemetry.MaxCount), &power))
	assert.Len(t, power.Racks, telemetry.MaxCount)

	for _, bad := range []string{"0", "-1", "abc", strconv.Itoa(telemetry.MaxCount + 1)} {
		var errResp map[string]string
		status := get(t, s, "/api/v2/racks/power?count="+bad, &errResp)
		assert.Equal(t, http.StatusBadRequest, status, bad)
		assert.Contains(t, errResp["error"], "dcim_invalid_count")
	}
}

func TestTemperatureEndpoint(t *testing.T) {
	s, _ := newServer(t)

	var resp dcim.TemperatureResponse
	require.Equal(t, http.StatusOK, get(t, s, "/nlyte/api/v1/sensors/temperature", &resp))
	require.Len(t, resp.Sensors, 3)
	for i, sensor := range resp.Sensors {
		assert.Equal(t, telemetry.SensorLocations[i], sensor.Location)
		assert.Equal(t, telemetry.SensorTypes[i], sensor.Type)
		assert.GreaterOrEqual(t, sensor.TemperatureCelsius, 20.0)
		assert.LessOrEqual(t, sensor.TemperatureCelsius, 30.0)
	}
}

func TestCoolingEndpointWarningRate(t *testing.T) {
	s, _ := newServer(t)

	warnings, total := 0, 0
	for range 334 {
		var resp dcim.CoolingResponse
		require.Equal(t, http.StatusOK, get(t, s, "/nlyte/api/v1/cooling/units", &resp))
		require.Len(t, resp.CoolingUnits, 3)
		for _, u := range resp.CoolingUnits {
			assert.Equal(t, 50, u.CapacityKW)
			assert.GreaterOrEqual(t, u.CurrentLoadPercent, 60)
			assert.LessOrEqual(t, u.CurrentLoadPercent, 85)
			if u.Status == telemetry.StatusWarning {
				warnings++
			}
			total++
		}
	}

	assert.InDelta(t, 0.25, float64(warnings)/float64(total), 0.05)
}

func TestHealthMonotonic(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute), base.Add(2 * time.Second)}
	var mu sync.Mutex
	i := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := ticks[i%len(ticks)]
		i++
		return now
	}

	s, _ := newServer(t, telemetry.WithClock(clock))

	var prev time.Time
	for range ticks {
		var resp dcim.HealthResponse
		require.Equal(t, http.StatusOK, get(t, s, "/health", &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, dcim.ServiceName, resp.Service)

		ts, err := time.Parse(time.RFC3339Nano, resp.Timestamp)
		require.NoError(t, err)
		assert.False(t, ts.Before(prev), "timestamp went backwards: %s < %s", ts, prev)
		prev = ts
	}
}

func TestHealthUsesGeneratorClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newServer(t, telemetry.WithClock(func() time.Time { return fixed }))

	var resp dcim.HealthResponse
	require.Equal(t, http.StatusOK, get(t, s, "/health", &resp))
	ts, err := time.Parse(time.RFC3339Nano, resp.Timestamp)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(ts), "got %s", ts)
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newServer(t)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/nothing", nil))
}
