package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vaamb/gaia/internal/app/control"
	"github.com/vaamb/gaia/internal/domain"
)

// Snapshot is one immutable, versioned parse of the environment
// definition and secrets files. Consumers always read a whole
// snapshot; the Service swaps the current pointer atomically and never
// mutates a published snapshot.
type Snapshot struct {
	Version    uint64
	Checksum   uint64
	Ecosystems map[string]EcosystemConfig

	secrets map[string]string
}

// Secret returns a secrets-file value. Secrets stay out of snapshot
// serialization and logs; only components that need one receive it.
func (s *Snapshot) Secret(key string) (string, bool) {
	v, ok := s.secrets[key]
	return v, ok
}

// EcosystemConfig defines one enclosure.
type EcosystemConfig struct {
	Name      string                         `yaml:"name"`
	Enabled   bool                           `yaml:"enabled"`
	DayWindow control.DayWindow              `yaml:"day_window"`
	Units     map[domain.UnitKind]UnitConfig `yaml:"units"`
}

// UnitConfig is the subset of config one subroutine consumes.
type UnitConfig struct {
	Enabled  bool                               `yaml:"enabled"`
	Interval Duration                           `yaml:"interval"`
	Priority int                                `yaml:"priority"` // lower starts earlier; 0 means kind default
	Targets  map[domain.Quantity]control.Target `yaml:"targets"`
	Hardware []HardwareConfig                   `yaml:"hardware"`
}

// HardwareConfig is one hardware binding inside a unit.
type HardwareConfig struct {
	ID       string            `yaml:"id"`
	Address  string            `yaml:"address"`
	Model    string            `yaml:"model"`
	Measures []domain.Quantity `yaml:"measures"`
	// Regulates names the quantity an actuator drives; empty for
	// sensors.
	Regulates domain.Quantity `yaml:"regulates"`
	// Inverted marks decrease-direction actuators (cooler,
	// dehumidifier).
	Inverted bool              `yaml:"inverted"`
	Options  map[string]string `yaml:"options"`
}

type ecosystemsFile struct {
	Ecosystems map[string]EcosystemConfig `yaml:"ecosystems"`
}

// defaultDayWindow applies when an ecosystem declares no day window.
var defaultDayWindow = control.DayWindow{
	Start: control.TimeOfDay{Hour: 8},
	End:   control.TimeOfDay{Hour: 20},
}

// parseSnapshot turns raw file contents into a validated snapshot.
// knownModel lets the caller inject the registered hardware model set
// without this package importing the hardware adapters.
func parseSnapshot(ecoPath string, ecoRaw, secretsRaw []byte, knownModel func(string) bool) (*Snapshot, error) {
	var file ecosystemsFile
	if err := yaml.Unmarshal(ecoRaw, &file); err != nil {
		return nil, &Error{Kind: ErrSyntax, Path: ecoPath, Err: err}
	}

	for id, eco := range file.Ecosystems {
		// An omitted day window would be the empty 00:00-00:00 span,
		// making every schedule permanent night.
		if eco.DayWindow.Start == eco.DayWindow.End {
			eco.DayWindow = defaultDayWindow
			file.Ecosystems[id] = eco
		}
		if err := validateEcosystem(id, eco, knownModel); err != nil {
			return nil, &Error{Kind: ErrSchema, Path: ecoPath, Err: err}
		}
	}

	secrets := map[string]string{}
	if len(secretsRaw) > 0 {
		if err := yaml.Unmarshal(secretsRaw, &secrets); err != nil {
			return nil, &Error{Kind: ErrSyntax, Path: "secrets", Err: err}
		}
	}

	if file.Ecosystems == nil {
		file.Ecosystems = map[string]EcosystemConfig{}
	}
	return &Snapshot{
		Ecosystems: file.Ecosystems,
		secrets:    secrets,
	}, nil
}

func validateEcosystem(id string, eco EcosystemConfig, knownModel func(string) bool) error {
	if id == "" {
		return fmt.Errorf("ecosystem with empty id")
	}
	if eco.Name == "" {
		return fmt.Errorf("ecosystem %s: name is required", id)
	}

	seenHardware := map[string]string{}
	seenAddresses := map[string]string{}
	for kind, unit := range eco.Units {
		if !kind.Valid() {
			return fmt.Errorf("ecosystem %s: unknown unit kind %q", id, kind)
		}
		for _, hw := range unit.Hardware {
			if hw.ID == "" {
				return fmt.Errorf("ecosystem %s/%s: hardware entry without id", id, kind)
			}
			if prev, dup := seenHardware[hw.ID]; dup {
				return fmt.Errorf("ecosystem %s: hardware id %q used by both %s and %s", id, hw.ID, prev, kind)
			}
			seenHardware[hw.ID] = string(kind)

			addr, err := domain.ParseAddress(hw.Address)
			if err != nil {
				return fmt.Errorf("ecosystem %s/%s: %w", id, kind, err)
			}
			if prev, dup := seenAddresses[addr.String()]; dup {
				return fmt.Errorf("ecosystem %s: address %s claimed by both %s and %s", id, addr, prev, hw.ID)
			}
			seenAddresses[addr.String()] = hw.ID

			if knownModel != nil && !knownModel(hw.Model) {
				return fmt.Errorf("ecosystem %s/%s: unknown hardware model %q", id, kind, hw.Model)
			}
		}
	}
	return nil
}
