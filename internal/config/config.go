package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"codeberg.org/mutker/smartinfra/internal/telemetry"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultMode            = ModeTest
	DefaultPort            = 8080
	DefaultLogLevel        = "info"
	DefaultReadingCount    = 3
	DefaultDemoPort        = 9000
	DefaultDemoUpstream    = "http://localhost:9000"
	DefaultMonitorPort     = 8501
	DefaultMonitorInterval = 3 * time.Second
	DefaultCPUSample       = time.Second
	DefaultDataDir         = "./data"
	DefaultMetricsDB       = "./data/metrics.db"
	DefaultTopicPrefix     = "smartinfra"

	defaultEnvPrefix  = "SMARTINFRA"
	configName        = "smartinfra"
	minMonitorTick    = 500 * time.Millisecond
	configEnvVariable = "_CONFIG"
)

type Config struct {
	Mode            Mode          `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	Seed            uint64        `mapstructure:"seed"`
	RackCount       int           `mapstructure:"rack_count"`
	CoolingCount    int           `mapstructure:"cooling_count"`
	DemoPort        int           `mapstructure:"demo_port"`
	DemoUpstream    string        `mapstructure:"demo_upstream"`
	MonitorPort     int           `mapstructure:"monitor_port"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	CPUSample       time.Duration `mapstructure:"cpu_sample"`
	DataDir         string        `mapstructure:"data_dir"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	MetricsDB       string        `mapstructure:"metrics_db"`
	MQTTBroker      string        `mapstructure:"mqtt_broker"`
	MQTTTopicPrefix string        `mapstructure:"mqtt_topic_prefix"`

	// ConfigFile is the file that was read, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

// flag name -> configuration key
var flagKeys = map[string]string{
	"mode":              "mode",
	"port":              "port",
	"log-level":         "log_level",
	"seed":              "seed",
	"rack-count":        "rack_count",
	"cooling-count":     "cooling_count",
	"demo-port":         "demo_port",
	"demo-upstream":     "demo_upstream",
	"monitor-port":      "monitor_port",
	"monitor-interval":  "monitor_interval",
	"cpu-sample":        "cpu_sample",
	"data-dir":          "data_dir",
	"metrics":           "metrics_enabled",
	"metrics-db":        "metrics_db",
	"mqtt-broker":       "mqtt_broker",
	"mqtt-topic-prefix": "mqtt_topic_prefix",
}

// NewFlagSet declares every command line flag.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("mode", string(DefaultMode), "Operation mode: "+modeList())
	fs.Int("port", DefaultPort, "Port for the mock DCIM server")
	fs.String("config", "", "Path to a TOML configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.Uint64("seed", 0, "Seed for mock readings (0 seeds from the clock)")
	fs.Int("rack-count", DefaultReadingCount, "Racks returned per power request")
	fs.Int("cooling-count", DefaultReadingCount, "Cooling units returned per request")
	fs.Int("demo-port", DefaultDemoPort, "Port for the demo REST API")
	fs.String("demo-upstream", DefaultDemoUpstream, "Base URL the demo API fetches remote metrics from")
	fs.Int("monitor-port", DefaultMonitorPort, "Port for the system monitor dashboard")
	fs.Duration("monitor-interval", DefaultMonitorInterval, "Auto-refresh interval of the system monitor")
	fs.Duration("cpu-sample", DefaultCPUSample, "CPU utilisation sampling window")
	fs.String("data-dir", DefaultDataDir, "Directory used by the self-test and local state")
	fs.Bool("metrics", false, "Record monitor snapshots to SQLite")
	fs.String("metrics-db", DefaultMetricsDB, "Path to the metrics database")
	fs.String("mqtt-broker", "", "MQTT broker URL; empty disables publishing")
	fs.String("mqtt-topic-prefix", DefaultTopicPrefix, "Prefix for published MQTT topics")
	return fs
}

// Load resolves configuration from flags, environment, config file and
// defaults, in that order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := NewFlagSet(configName)
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetEnvPrefix(defaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path := o.configPath
	if f := fs.Lookup("config"); f != nil && f.Changed {
		path = f.Value.String()
	}
	if path == "" {
		path = os.Getenv(defaultEnvPrefix + configEnvVariable)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.Mode.IsValid() {
		return errFactory.WithData(errors.ErrInvalidMode,
			fmt.Sprintf("%q (want one of %s)", c.Mode, modeList()))
	}

	for name, port := range map[string]int{"port": c.Port, "demo_port": c.DemoPort, "monitor_port": c.MonitorPort} {
		if port < 1 || port > 65535 {
			return errFactory.WithData(errors.ErrInvalidPort, fmt.Sprintf("%s=%d", name, port))
		}
	}

	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.MonitorInterval < minMonitorTick {
		return errFactory.WithData(errors.ErrInvalidInterval, "monitor_interval="+c.MonitorInterval.String())
	}
	if c.CPUSample <= 0 || c.CPUSample >= c.MonitorInterval {
		return errFactory.WithData(errors.ErrInvalidInterval, "cpu_sample="+c.CPUSample.String())
	}

	for name, n := range map[string]int{"rack_count": c.RackCount, "cooling_count": c.CoolingCount} {
		if n < 1 || n > telemetry.MaxCount {
			return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("%s=%d", name, n))
		}
	}

	if c.MetricsEnabled && c.MetricsDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "metrics_db is required when metrics are enabled")
	}

	return nil
}

func modeList() string {
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = string(m)
	}
	return strings.Join(names, "|")
}
