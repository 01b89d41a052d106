package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// Reader reports statistics for every visible GPU.
type Reader interface {
	Stats() ([]Stats, error)
	Shutdown() error
}

// Library is the subset of NVML lifecycle and discovery calls in use.
type Library interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (Device, error)
}

// Device is the subset of nvml.Device queried for statistics.
type Device interface {
	GetUUID() (string, nvml.Return)
	GetName() (string, nvml.Return)
	GetMemoryInfo() (nvml.Memory, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
}

// Stats is one device's state at query time. PowerDraw is nil when the
// board does not report it.
type Stats struct {
	Index             int      `json:"index"`
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	MemoryTotal       uint64   `json:"memory_total"`
	MemoryUsed        uint64   `json:"memory_used"`
	MemoryFree        uint64   `json:"memory_free"`
	MemoryUtilization float64  `json:"memory_utilization"`
	GPUUtilization    int      `json:"gpu_utilization"`
	Temperature       int      `json:"temperature"`
	PowerDraw         *float64 `json:"power_draw"`
}

// TemperatureLevel buckets a GPU temperature for display.
type TemperatureLevel string

const (
	LevelNormal   TemperatureLevel = "normal"
	LevelElevated TemperatureLevel = "elevated"
	LevelCritical TemperatureLevel = "critical"

	elevatedTemperature = 70
	criticalTemperature = 85
)

func (s Stats) TemperatureLevel() TemperatureLevel {
	switch {
	case s.Temperature < elevatedTemperature:
		return LevelNormal
	case s.Temperature < criticalTemperature:
		return LevelElevated
	default:
		return LevelCritical
	}
}
