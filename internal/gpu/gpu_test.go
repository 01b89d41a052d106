package gpu_test

import (
	"testing"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/gpu"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	uuid, name  string
	uuidRet     nvml.Return
	mem         nvml.Memory
	memRet      nvml.Return
	util        nvml.Utilization
	temperature uint32
	powerMW     uint32
	powerRet    nvml.Return
}

func (d *fakeDevice) GetUUID() (string, nvml.Return) { return d.uuid, d.uuidRet }
func (d *fakeDevice) GetName() (string, nvml.Return) { return d.name, nvml.SUCCESS }
func (d *fakeDevice) GetMemoryInfo() (nvml.Memory, nvml.Return) {
	return d.mem, d.memRet
}
func (d *fakeDevice) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return d.util, nvml.SUCCESS
}
func (d *fakeDevice) GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return) {
	return d.temperature, nvml.SUCCESS
}
func (d *fakeDevice) GetPowerUsage() (uint32, nvml.Return) { return d.powerMW, d.powerRet }

type fakeLibrary struct {
	initErr  error
	devices  []*fakeDevice
	shutdown bool
}

func (l *fakeLibrary) Initialize() error            { return l.initErr }
func (l *fakeLibrary) Shutdown() error              { l.shutdown = true; return nil }
func (l *fakeLibrary) GetDeviceCount() (int, error) { return len(l.devices), nil }
func (l *fakeLibrary) GetDevice(i int) (gpu.Device, error) {
	return l.devices[i], nil
}

const mib = 1024 * 1024

func TestStats(t *testing.T) {
	lib := &fakeLibrary{devices: []*fakeDevice{
		{
			uuid: "GPU-1", name: "RTX 4090",
			mem:         nvml.Memory{Total: 24000 * mib, Used: 6000 * mib, Free: 18000 * mib},
			util:        nvml.Utilization{Gpu: 87, Memory: 40},
			temperature: 72,
			powerMW:     315500,
		},
		{
			uuid: "GPU-2", name: "T4",
			memRet:      nvml.ERROR_NOT_SUPPORTED,
			temperature: 40,
			powerRet:    nvml.ERROR_NOT_SUPPORTED,
		},
	}}

	r, err := gpu.New(lib, logger.Nop())
	require.NoError(t, err)

	stats, err := r.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 2)

	first := stats[0]
	assert.Equal(t, "GPU-1", first.ID)
	assert.Equal(t, "RTX 4090", first.Name)
	assert.Equal(t, uint64(24000), first.MemoryTotal)
	assert.Equal(t, uint64(6000), first.MemoryUsed)
	assert.Equal(t, uint64(18000), first.MemoryFree)
	assert.InDelta(t, 25.0, first.MemoryUtilization, 1e-9)
	assert.Equal(t, 87, first.GPUUtilization)
	require.NotNil(t, first.PowerDraw)
	assert.InDelta(t, 315.5, *first.PowerDraw, 1e-9)
	assert.Equal(t, gpu.LevelElevated, first.TemperatureLevel())

	second := stats[1]
	assert.Equal(t, 1, second.Index)
	assert.Zero(t, second.MemoryTotal)
	assert.Zero(t, second.MemoryUtilization)
	assert.Nil(t, second.PowerDraw)
	assert.Equal(t, gpu.LevelNormal, second.TemperatureLevel())

	require.NoError(t, r.Shutdown())
	assert.True(t, lib.shutdown)
}

func TestStatsIdentityFailure(t *testing.T) {
	lib := &fakeLibrary{devices: []*fakeDevice{{uuidRet: nvml.ERROR_GPU_IS_LOST}}}

	r, err := gpu.New(lib, logger.Nop())
	require.NoError(t, err)

	_, err = r.Stats()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, gpu.ErrDeviceInfoFailed))
}

func TestNewUnavailable(t *testing.T) {
	lib := &fakeLibrary{initErr: errors.New().New(gpu.ErrNVMLUnavailable)}

	_, err := gpu.New(lib, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, gpu.ErrNVMLUnavailable))
}

func TestTemperatureLevel(t *testing.T) {
	assert.Equal(t, gpu.LevelNormal, gpu.Stats{Temperature: 69}.TemperatureLevel())
	assert.Equal(t, gpu.LevelElevated, gpu.Stats{Temperature: 70}.TemperatureLevel())
	assert.Equal(t, gpu.LevelElevated, gpu.Stats{Temperature: 84}.TemperatureLevel())
	assert.Equal(t, gpu.LevelCritical, gpu.Stats{Temperature: 85}.TemperatureLevel())
}
