package config_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"codeberg.org/mutker/smartinfra/internal/config"
	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartinfra.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SMARTINFRA_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, err := config.Load(nil)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.ModeTest, cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 3, cfg.RackCount)
	assert.Equal(t, 3, cfg.CoolingCount)
	assert.Equal(t, 9000, cfg.DemoPort)
	assert.Equal(t, 8501, cfg.MonitorPort)
	assert.Equal(t, 3*time.Second, cfg.MonitorInterval)
	assert.Equal(t, time.Second, cfg.CPUSample)
	assert.False(t, cfg.MetricsEnabled)
	assert.Empty(t, cfg.MQTTBroker)
	assert.Equal(t, "smartinfra", cfg.MQTTTopicPrefix)
}

func TestLoadFlags(t *testing.T) {
	t.Setenv("SMARTINFRA_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, err := config.Load([]string{"--mode", "mock-dcim", "--port", "9090", "--log-level", "debug", "--seed", "42"})
	require.NoError(t, err)

	assert.Equal(t, config.ModeMockDCIM, cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(42), cfg.Seed)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
mode = "monitor"
port = 8181
log_level = "warning"
rack_count = 5
monitor_interval = "5s"
metrics_enabled = true
metrics_db = "/tmp/metrics.db"
mqtt_broker = "tcp://localhost:1883"
`)
	t.Setenv("SMARTINFRA_CONFIG", path)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, config.ModeMonitor, cfg.Mode)
	assert.Equal(t, 8181, cfg.Port)
	assert.Equal(t, "warning", cfg.LogLevel)
	assert.Equal(t, 5, cfg.RackCount)
	assert.Equal(t, 5*time.Second, cfg.MonitorInterval)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "/tmp/metrics.db", cfg.MetricsDB)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestFlagsOverrideFileAndEnv(t *testing.T) {
	path := writeConfig(t, `port = 8181`)
	t.Setenv("SMARTINFRA_PORT", "8282")

	cfg, err := config.Load([]string{"--port", "8383"}, config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 8383, cfg.Port)

	cfg, err = config.Load(nil, config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 8282, cfg.Port, "environment beats config file")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, "This is not a valid TOML file\n")

	_, err := config.Load(nil, config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestValidation(t *testing.T) {
	t.Setenv("SMARTINFRA_CONFIG", "")
	t.Chdir(t.TempDir())

	cases := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"unknown mode", []string{"--mode", "serve"}, errors.ErrInvalidMode},
		{"port too high", []string{"--port", "70000"}, errors.ErrInvalidPort},
		{"port zero", []string{"--port", "0"}, errors.ErrInvalidPort},
		{"log level", []string{"--log-level", "loud"}, errors.ErrInvalidLogLevel},
		{"interval", []string{"--monitor-interval", "10ms"}, errors.ErrInvalidInterval},
		{"cpu sample", []string{"--cpu-sample", "5s"}, errors.ErrInvalidInterval},
		{"rack count", []string{"--rack-count", "0"}, errors.ErrInvalidArgument},
		{"metrics db", []string{"--metrics", "--metrics-db", ""}, errors.ErrInvalidConfig},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(tc.args)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestCountLimitMatchesRequestLimit(t *testing.T) {
	t.Setenv("SMARTINFRA_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, err := config.Load([]string{"--rack-count", strconv.Itoa(telemetry.MaxCount)})
	require.NoError(t, err)
	assert.Equal(t, telemetry.MaxCount, cfg.RackCount)

	_, err = config.Load([]string{"--cooling-count", strconv.Itoa(telemetry.MaxCount + 1)})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestUnknownFlag(t *testing.T) {
	_, err := config.Load([]string{"--bogus"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestModeLongRunning(t *testing.T) {
	assert.True(t, config.ModeMockDCIM.LongRunning())
	assert.True(t, config.ModeMonitor.LongRunning())
	assert.False(t, config.ModeTest.LongRunning())
	assert.False(t, config.Mode("nope").IsValid())
}
