package monitor

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/smartinfra/internal/gpu"
	"codeberg.org/mutker/smartinfra/internal/metrics"
)

const (
	DefaultInterval   = 3 * time.Second
	DefaultCPUSample  = time.Second
	snapshotTopic     = "monitor/snapshot"
	publishTimeout    = 5 * time.Second
	gpuUnavailableMsg = "GPU monitoring unavailable"
)

// HostSampler reports host CPU and memory utilisation as percentages.
type HostSampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent() (float64, error)
}

// Snapshot is one refresh of the dashboard. Source failures are listed in
// Errors and leave the corresponding fields zero.
type Snapshot struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	GPUs          []GPU     `json:"gpus"`
	Errors        []string  `json:"errors,omitempty"`
}

// GPU is a device entry with its temperature band resolved for display.
type GPU struct {
	gpu.Stats
	Level gpu.TemperatureLevel `json:"temperature_level"`
}

// Summary reduces the snapshot to the row kept in the history store.
func (s Snapshot) Summary() *metrics.Snapshot {
	out := &metrics.Snapshot{
		Timestamp:     s.Timestamp,
		CPUPercent:    s.CPUPercent,
		MemoryPercent: s.MemoryPercent,
		GPUCount:      len(s.GPUs),
	}
	if len(s.GPUs) == 0 {
		return out
	}

	var util, memUtil float64
	for _, g := range s.GPUs {
		util += float64(g.GPUUtilization)
		memUtil += g.MemoryUtilization
		out.GPUTempMax = math.Max(out.GPUTempMax, float64(g.Temperature))
	}
	n := float64(len(s.GPUs))
	out.GPUUtilAvg = round1(util / n)
	out.GPUMemUtilAvg = round1(memUtil / n)
	return out
}

// Message is the websocket envelope.
type Message struct {
	Type string   `json:"type"`
	Data Snapshot `json:"data"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
