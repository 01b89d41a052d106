package config

// Option customises how Load resolves configuration.
type Option func(*options) error

type options struct {
	configPath string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// Mode selects what the binary does.
type Mode string

const (
	ModeTest      Mode = "test"
	ModeMockDCIM  Mode = "mock-dcim"
	ModeBenchmark Mode = "benchmark"
	ModeInfo      Mode = "info"
	ModeDemoAPI   Mode = "demo-api"
	ModeMonitor   Mode = "monitor"
)

// Modes lists every accepted mode in help order.
var Modes = []Mode{ModeTest, ModeMockDCIM, ModeBenchmark, ModeInfo, ModeDemoAPI, ModeMonitor}

// IsValid returns whether the mode is known
func (m Mode) IsValid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// LongRunning reports whether the mode serves until interrupted.
func (m Mode) LongRunning() bool {
	return m == ModeMockDCIM || m == ModeDemoAPI || m == ModeMonitor
}

func (m Mode) String() string {
	return string(m)
}
