package monitor

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/smartinfra/internal/logger"
	"codeberg.org/mutker/smartinfra/internal/metrics"
	"codeberg.org/mutker/smartinfra/internal/publish"
)

// Source produces snapshots. *Collector is the production implementation.
type Source interface {
	Collect(ctx context.Context) (Snapshot, error)
}

type PollerConfig struct {
	Interval    time.Duration
	AutoRefresh bool
}

// Poller refreshes snapshots on an interval while auto-refresh is on and
// fans each new snapshot out to history, MQTT and subscribers.
type Poller struct {
	source  Source
	history metrics.Collector
	pub     publish.Publisher
	cfg     PollerConfig
	logger  logger.Logger

	refreshMu sync.Mutex

	mu          sync.RWMutex
	latest      *Snapshot
	lastRefresh time.Time
	auto        bool
	subscribers map[chan Snapshot]struct{}
}

// NewPoller wires a Poller. Nil history or pub fall back to no-ops.
func NewPoller(cfg PollerConfig, source Source, history metrics.Collector, pub publish.Publisher, log logger.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if history == nil {
		history = metrics.Noop()
	}
	if pub == nil {
		pub, _ = publish.New(publish.Config{}, log)
	}
	return &Poller{
		source:      source,
		history:     history,
		pub:         pub,
		cfg:         cfg,
		logger:      log,
		auto:        cfg.AutoRefresh,
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Run takes an initial snapshot, then refreshes on every tick while
// auto-refresh is enabled. It returns when ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn().Err(err).Msg("Initial refresh failed")
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !p.AutoRefresh() {
				continue
			}
			if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn().Err(err).Msg("Scheduled refresh failed")
			}
		}
	}
}

// Refresh collects a snapshot immediately.
func (p *Poller) Refresh(ctx context.Context) (Snapshot, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	snap, err := p.source.Collect(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	p.mu.Lock()
	p.latest = &snap
	p.lastRefresh = snap.Timestamp
	p.mu.Unlock()

	for _, msg := range snap.Errors {
		p.logger.Warn().Str("snapshot", snap.ID).Msg(msg)
	}
	p.logger.Debug().
		Str("snapshot", snap.ID).
		Float64("cpu_percent", snap.CPUPercent).
		Float64("memory_percent", snap.MemoryPercent).
		Int("gpus", len(snap.GPUs)).
		Msg("Snapshot refreshed")

	if err := p.history.Record(ctx, snap.Summary()); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to record snapshot")
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	if err := p.pub.Publish(pubCtx, snapshotTopic, snap); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to publish snapshot")
	}
	cancel()

	p.notify(snap)
	return snap, nil
}

// Latest returns the most recent snapshot, if any.
func (p *Poller) Latest() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return Snapshot{}, false
	}
	return *p.latest, true
}

func (p *Poller) LastRefresh() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRefresh
}

func (p *Poller) AutoRefresh() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.auto
}

func (p *Poller) SetAutoRefresh(enabled bool) {
	p.mu.Lock()
	p.auto = enabled
	p.mu.Unlock()
	p.logger.Info().Bool("enabled", enabled).Msg("Auto-refresh toggled")
}

func (p *Poller) Interval() time.Duration {
	return p.cfg.Interval
}

// Subscribe returns a channel receiving every new snapshot. A slow reader
// only sees the newest one. The returned func unsubscribes.
func (p *Poller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, ch)
			p.mu.Unlock()
		})
	}
}

func (p *Poller) notify(snap Snapshot) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for ch := range p.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the stale value and retry once.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
