package system

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strings"
)

// HostInfo describes the machine for the "system info" views.
type HostInfo struct {
	OS        string `json:"os"`
	Release   string `json:"release"`
	Arch      string `json:"arch"`
	Processor string `json:"processor"`
	GoVersion string `json:"go_version"`
	Hostname  string `json:"hostname"`
}

// ReadHostInfo collects what it can; missing pieces are left empty.
func ReadHostInfo() HostInfo {
	info := HostInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
	}

	info.Hostname, _ = os.Hostname()

	if b, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		info.Release = strings.TrimSpace(string(b))
	}

	if f, err := os.Open("/proc/cpuinfo"); err == nil {
		info.Processor = ParseCPUModel(f)
		f.Close()
	}

	return info
}

// ParseCPUModel returns the first "model name" in a /proc/cpuinfo document.
func ParseCPUModel(r io.Reader) string {
	s := bufio.NewScanner(r)
	for s.Scan() {
		key, value, ok := strings.Cut(s.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
