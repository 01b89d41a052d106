package gpu

import (
	"math"
	"sync"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	bytesPerMiB       = 1024 * 1024
	milliWattsToWatts = 1000
)

type reader struct {
	lib    Library
	logger logger.Logger
	mu     sync.Mutex
}

// New initializes lib and returns a Reader over its devices. The returned
// error carries ErrNVMLUnavailable when the driver library is missing.
func New(lib Library, log logger.Logger) (Reader, error) {
	if err := lib.Initialize(); err != nil {
		return nil, err
	}
	return &reader{lib: lib, logger: log}, nil
}

func (r *reader) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lib.Shutdown()
}

func (r *reader) Stats() ([]Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, err := r.lib.GetDeviceCount()
	if err != nil {
		return nil, err
	}

	stats := make([]Stats, 0, count)
	for i := 0; i < count; i++ {
		device, err := r.lib.GetDevice(i)
		if err != nil {
			return nil, err
		}

		s, err := r.deviceStats(i, device)
		if err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	return stats, nil
}

// deviceStats requires identity; everything else degrades to zero values.
func (r *reader) deviceStats(index int, device Device) (Stats, error) {
	errFactory := errors.New()
	s := Stats{Index: index}

	var ret nvml.Return
	if s.ID, ret = device.GetUUID(); !IsNVMLSuccess(ret) {
		return Stats{}, errFactory.Wrap(ErrDeviceInfoFailed, newNVMLError(ret)).WithData(index)
	}
	if s.Name, ret = device.GetName(); !IsNVMLSuccess(ret) {
		return Stats{}, errFactory.Wrap(ErrDeviceInfoFailed, newNVMLError(ret)).WithData(index)
	}

	if mem, ret := device.GetMemoryInfo(); IsNVMLSuccess(ret) {
		s.MemoryTotal = mem.Total / bytesPerMiB
		s.MemoryUsed = mem.Used / bytesPerMiB
		s.MemoryFree = mem.Free / bytesPerMiB
		s.MemoryUtilization = memoryUtilization(mem.Used, mem.Total)
	} else {
		r.logger.Debug().Int("gpu", index).Msgf("Failed to get memory info: %s", nvml.ErrorString(ret))
	}

	if util, ret := device.GetUtilizationRates(); IsNVMLSuccess(ret) {
		s.GPUUtilization = int(util.Gpu)
	} else {
		r.logger.Debug().Int("gpu", index).Msgf("Failed to get utilization: %s", nvml.ErrorString(ret))
	}

	if temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU); IsNVMLSuccess(ret) {
		s.Temperature = int(temp)
	} else {
		r.logger.Debug().Int("gpu", index).Msgf("Failed to get temperature: %s", nvml.ErrorString(ret))
	}

	if mw, ret := device.GetPowerUsage(); IsNVMLSuccess(ret) {
		watts := float64(mw) / milliWattsToWatts
		s.PowerDraw = &watts
	}

	return s, nil
}

func memoryUtilization(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(used)/float64(total)*1000) / 10
}
