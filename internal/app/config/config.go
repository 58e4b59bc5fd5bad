package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaamb/gaia/internal/ports"
)

// Config is the static runtime configuration: file locations, telemetry
// policy, and adapter settings. The ecosystem definitions themselves
// live in their own file and are hot-reloaded by the Service.
type Config struct {
	Ecosystems string   `yaml:"ecosystems"` // path to the environment definition file
	Secrets    string   `yaml:"secrets"`    // path to the secrets file, optional
	Poll       Duration `yaml:"poll"`       // change-detection interval

	Policy    PolicyConfig    `yaml:"policy"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Journal   JournalConfig   `yaml:"journal"`
}

type PolicyConfig struct {
	MaxQueueLen        int      `yaml:"max_queue_len"`
	MaxJournalBytes    int64    `yaml:"max_journal_bytes"`
	MaxBatchSize       int      `yaml:"max_batch_size"`
	DriverFaultAfter   int      `yaml:"driver_fault_after"`
	DispatchBackoff    Duration `yaml:"dispatch_backoff"`
	DispatchBackoffMax Duration `yaml:"dispatch_backoff_max"`
	StopGracePeriod    Duration `yaml:"stop_grace_period"`
	SensorInterval     Duration `yaml:"sensor_interval"`   // default tick for sensing units
	ActuatorInterval   Duration `yaml:"actuator_interval"` // default tick for actuator units
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type TimescaleConfig struct {
	ConnString   string `yaml:"conn_string"`
	MeasureTable string `yaml:"measure_table"`
	StatusTable  string `yaml:"status_table"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the runtime configuration from disk.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: ErrIO, Path: path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &Error{Kind: ErrSyntax, Path: path, Err: err}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Poll == 0 {
		c.Poll = Duration(10 * time.Second)
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 4096
	}
	if c.Policy.MaxJournalBytes == 0 {
		c.Policy.MaxJournalBytes = 256 << 20
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 256
	}
	if c.Policy.DriverFaultAfter == 0 {
		c.Policy.DriverFaultAfter = 3
	}
	if c.Policy.DispatchBackoff == 0 {
		c.Policy.DispatchBackoff = Duration(time.Second)
	}
	if c.Policy.DispatchBackoffMax == 0 {
		c.Policy.DispatchBackoffMax = Duration(time.Minute)
	}
	if c.Policy.StopGracePeriod == 0 {
		c.Policy.StopGracePeriod = Duration(5 * time.Second)
	}
	if c.Policy.SensorInterval == 0 {
		c.Policy.SensorInterval = Duration(15 * time.Second)
	}
	if c.Policy.ActuatorInterval == 0 {
		c.Policy.ActuatorInterval = Duration(time.Second)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Timescale.MeasureTable == "" {
		c.Timescale.MeasureTable = "measurements"
	}
	if c.Timescale.StatusTable == "" {
		c.Timescale.StatusTable = "status_log"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
}

func (c *Config) validate() error {
	if c.Ecosystems == "" {
		return &Error{Kind: ErrSchema, Path: c.Ecosystems, Err: fmt.Errorf("ecosystems file path is required")}
	}
	return nil
}

// PortsPolicy converts the loaded policy values into the ports form
// consumed by the engine.
func (c *Config) PortsPolicy() ports.Policy {
	return ports.Policy{
		MaxQueueLen:        c.Policy.MaxQueueLen,
		MaxJournalBytes:    c.Policy.MaxJournalBytes,
		MaxBatchSize:       c.Policy.MaxBatchSize,
		DriverFaultAfter:   c.Policy.DriverFaultAfter,
		DispatchBackoff:    c.Policy.DispatchBackoff.Std(),
		DispatchBackoffMax: c.Policy.DispatchBackoffMax.Std(),
		StopGracePeriod:    c.Policy.StopGracePeriod.Std(),
		SensorInterval:     c.Policy.SensorInterval.Std(),
		ActuatorInterval:   c.Policy.ActuatorInterval.Std(),
	}
}
