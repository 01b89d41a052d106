package metrics

import (
	"context"
	"time"
)

// Collector records monitor snapshots and serves them back as history.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// Repository defines the interface for metrics data storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Recent(limit int) ([]Snapshot, error)
	Close() error
}

// Snapshot is the persisted summary of one monitor refresh.
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	GPUCount      int       `json:"gpu_count"`
	GPUUtilAvg    float64   `json:"gpu_util_avg"`
	GPUTempMax    float64   `json:"gpu_temp_max"`
	GPUMemUtilAvg float64   `json:"gpu_mem_util_avg"`
}
