package system

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/smartinfra/internal/errors"
)

const procMeminfo = "/proc/meminfo"

type MemoryInfo struct {
	TotalBytes     uint64
	AvailableBytes uint64
}

// UsedPercent mirrors what `free` reports as used, excluding reclaimable
// cache.
func (m MemoryInfo) UsedPercent() float64 {
	if m.TotalBytes == 0 {
		return 0
	}
	used := m.TotalBytes - min(m.AvailableBytes, m.TotalBytes)
	return float64(used) / float64(m.TotalBytes) * 100
}

// ParseMemoryInfo reads a /proc/meminfo document.
func ParseMemoryInfo(r io.Reader) (MemoryInfo, error) {
	errFactory := errors.New()

	vals := map[string]uint64{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		vals[strings.TrimSuffix(fields[0], ":")] = v * 1024
	}
	if err := s.Err(); err != nil {
		return MemoryInfo{}, errFactory.Wrap(ErrProcRead, err).WithData(procMeminfo)
	}

	total := vals["MemTotal"]
	if total == 0 {
		return MemoryInfo{}, errFactory.WithMessage(ErrProcParse, "MemTotal missing")
	}

	avail, ok := vals["MemAvailable"]
	if !ok {
		// kernels before 3.14
		avail = vals["MemFree"] + vals["Buffers"] + vals["Cached"]
	}

	return MemoryInfo{TotalBytes: total, AvailableBytes: avail}, nil
}

func ReadMemoryInfo() (MemoryInfo, error) {
	f, err := os.Open(procMeminfo)
	if err != nil {
		return MemoryInfo{}, errors.New().Wrap(ErrProcRead, err)
	}
	defer f.Close()
	return ParseMemoryInfo(f)
}
