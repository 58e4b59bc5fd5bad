package gaia

import (
	"github.com/vaamb/gaia/internal/adapters/hardware"
	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/ports"
)

// Config re-exports the root configuration struct so embedders can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy bounds the telemetry path and fault thresholds.
	Policy = ports.Policy
	// PolicyConfig is the YAML-facing policy section.
	PolicyConfig = config.PolicyConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// TimescaleConfig configures the measurement recorder.
	TimescaleConfig = config.TimescaleConfig
	// JournalConfig configures the on-disk telemetry buffer.
	JournalConfig = config.JournalConfig
	// Snapshot is one validated parse of the environment definition.
	Snapshot = config.Snapshot
	// EcosystemConfig defines one enclosure.
	EcosystemConfig = config.EcosystemConfig
	// UnitConfig is the per-subroutine slice of an ecosystem config.
	UnitConfig = config.UnitConfig
	// HardwareConfig is one hardware binding inside a unit.
	HardwareConfig = config.HardwareConfig
)

// LoadConfig loads the runtime YAML from disk.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ValidateEnvironment parses and validates the environment definition
// the config points at, without building a runtime. It catches bad
// addresses, unknown models and duplicate bindings.
func ValidateEnvironment(cfg *Config) (*Snapshot, error) {
	svc := config.NewService(cfg.Ecosystems, cfg.Secrets, cfg.Poll.Std(), hardware.KnownModel)
	return svc.Load()
}
