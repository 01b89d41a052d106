package system

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
)

const (
	procStat = "/proc/stat"

	// user, nice, system, idle, iowait, irq, softirq, steal. guest and
	// guest_nice are already included in user and nice.
	cpuTimeFields = 8
)

// CPUCounters holds the aggregate jiffy counters of the "cpu" line.
type CPUCounters struct {
	Idle  uint64
	Total uint64
}

// ParseCPUCounters reads the aggregate cpu line of a /proc/stat document.
func ParseCPUCounters(r io.Reader) (CPUCounters, error) {
	errFactory := errors.New()

	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}

		var c CPUCounters
		for i, f := range fields[1:min(len(fields), cpuTimeFields+1)] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return CPUCounters{}, errFactory.Wrap(ErrProcParse, err).WithData(procStat)
			}
			c.Total += v
			// idle and iowait
			if i == 3 || i == 4 {
				c.Idle += v
			}
		}
		return c, nil
	}
	if err := s.Err(); err != nil {
		return CPUCounters{}, errFactory.Wrap(ErrProcRead, err).WithData(procStat)
	}
	return CPUCounters{}, errFactory.WithMessage(ErrProcParse, "cpu aggregate line not found")
}

// ReadCPUCounters reads the host's current counters.
func ReadCPUCounters() (CPUCounters, error) {
	f, err := os.Open(procStat)
	if err != nil {
		return CPUCounters{}, errors.New().Wrap(ErrProcRead, err)
	}
	defer f.Close()
	return ParseCPUCounters(f)
}

// CPUUsage returns busy time between two samples as a percentage.
func CPUUsage(prev, cur CPUCounters) float64 {
	if cur.Total <= prev.Total {
		return 0
	}
	total := float64(cur.Total - prev.Total)
	idle := 0.0
	if cur.Idle > prev.Idle {
		idle = float64(cur.Idle - prev.Idle)
	}
	usage := (total - idle) / total * 100
	return min(max(usage, 0), 100)
}

// CPUPercent samples the counters over interval and returns utilisation.
func CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	prev, err := ReadCPUCounters()
	if err != nil {
		return 0, err
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	cur, err := ReadCPUCounters()
	if err != nil {
		return 0, err
	}
	return CPUUsage(prev, cur), nil
}
