package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/smartinfra/internal/gpu"
	"codeberg.org/mutker/smartinfra/internal/system"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Collector gathers one Snapshot from the host and GPU sources.
type Collector struct {
	host   HostSampler
	gpus   gpu.Reader
	gpuErr error
	now    func() time.Time
}

type CollectorOption func(*Collector)

// WithGPUUnavailable records why no GPU reader is present.
func WithGPUUnavailable(err error) CollectorOption {
	return func(c *Collector) { c.gpuErr = err }
}

// WithCollectorClock overrides the snapshot timestamp source.
func WithCollectorClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector returns a Collector. gpus may be nil when NVML is missing.
func NewCollector(host HostSampler, gpus gpu.Reader, opts ...CollectorOption) *Collector {
	c := &Collector{host: host, gpus: gpus, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect samples every source concurrently. Only cancellation of ctx
// fails the call; source errors are reported inside the snapshot.
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		ID:        uuid.NewString(),
		Timestamp: c.now().UTC(),
		GPUs:      []GPU{},
	}

	var (
		mu       sync.Mutex
		messages []string
	)
	report := func(format string, args ...any) {
		mu.Lock()
		messages = append(messages, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cpu, err := c.host.CPUPercent(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report("Error getting CPU stats: %v", err)
			return nil
		}
		snap.CPUPercent = round1(cpu)
		return nil
	})

	g.Go(func() error {
		mem, err := c.host.MemoryPercent()
		if err != nil {
			report("Error getting memory stats: %v", err)
			return nil
		}
		snap.MemoryPercent = round1(mem)
		return nil
	})

	g.Go(func() error {
		if c.gpus == nil {
			if c.gpuErr != nil {
				report("%s: %v", gpuUnavailableMsg, c.gpuErr)
			} else {
				report("%s", gpuUnavailableMsg)
			}
			return nil
		}
		stats, err := c.gpus.Stats()
		if err != nil {
			report("Error getting GPU stats: %v", err)
			return nil
		}
		gpus := make([]GPU, 0, len(stats))
		for _, s := range stats {
			gpus = append(gpus, GPU{Stats: s, Level: s.TemperatureLevel()})
		}
		snap.GPUs = gpus
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap.Errors = messages
	return snap, nil
}

// procSampler reads /proc through the system package.
type procSampler struct {
	sample time.Duration
}

// NewHostSampler samples CPU usage over the given window.
func NewHostSampler(sample time.Duration) HostSampler {
	if sample <= 0 {
		sample = DefaultCPUSample
	}
	return procSampler{sample: sample}
}

func (p procSampler) CPUPercent(ctx context.Context) (float64, error) {
	return system.CPUPercent(ctx, p.sample)
}

func (procSampler) MemoryPercent() (float64, error) {
	info, err := system.ReadMemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.UsedPercent(), nil
}
