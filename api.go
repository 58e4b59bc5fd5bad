package gaia

import (
	"context"

	base "github.com/vaamb/gaia/pkg/gaia"
)

// Re-exported errors for convenience.
var (
	ErrChannelClosed = base.ErrChannelClosed
)

// Type aliases so consumers can import github.com/vaamb/gaia directly.
type (
	Config          = base.Config
	Policy          = base.Policy
	PolicyConfig    = base.PolicyConfig
	MetricsConfig   = base.MetricsConfig
	TimescaleConfig = base.TimescaleConfig
	JournalConfig   = base.JournalConfig
	Snapshot        = base.Snapshot
	EcosystemConfig = base.EcosystemConfig
	UnitConfig      = base.UnitConfig
	HardwareConfig  = base.HardwareConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Event           = base.Event
	Measurement     = base.Measurement
	ActuatorOutput  = base.ActuatorOutput
	Command         = base.Command
	Target          = base.Target
	Quantity        = base.Quantity
	UnitKind        = base.UnitKind
	Status          = base.Status
	Dispatcher      = base.Dispatcher
	CommandSource   = base.CommandSource
	CommandFeed     = base.CommandFeed
	EventFunc       = base.EventFunc
	Recorder        = base.Recorder
	EventQueue      = base.EventQueue
	Journal         = base.Journal
	JournalStats    = base.JournalStats
	JournalEntryID  = base.JournalEntryID
	Observability   = base.Observability
	Field           = base.Field
	Publisher       = base.Publisher
	PublisherConfig = base.PublisherConfig
	EventBatchSink  = base.EventBatchSink
)

// Re-exported enumeration values.
const (
	QuantityTemperature = base.QuantityTemperature
	QuantityHumidity    = base.QuantityHumidity
	QuantityLight       = base.QuantityLight
	QuantityMoisture    = base.QuantityMoisture

	UnitSensors  = base.UnitSensors
	UnitLight    = base.UnitLight
	UnitClimate  = base.UnitClimate
	UnitWatering = base.UnitWatering

	CommandSetTarget = base.CommandSetTarget
	CommandEnable    = base.CommandEnable
	CommandDisable   = base.CommandDisable
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ValidateEnvironment(cfg *Config) (*Snapshot, error) {
	return base.ValidateEnvironment(cfg)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithDispatcher(d Dispatcher) RuntimeOption {
	return base.WithDispatcher(d)
}

func WithCommandSource(c CommandSource) RuntimeOption {
	return base.WithCommandSource(c)
}

func WithRecorder(r Recorder) RuntimeOption {
	return base.WithRecorder(r)
}

func WithQueue(q EventQueue) RuntimeOption {
	return base.WithQueue(q)
}

func WithJournal(j Journal) RuntimeOption {
	return base.WithJournal(j)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Dispatcher adapters.
func NewCallbackDispatcher(name string, fn EventFunc) Dispatcher {
	return base.NewCallbackDispatcher(name, fn)
}

func NewChannelDispatcher(name string, buffer int) (Dispatcher, <-chan Event, func()) {
	return base.NewChannelDispatcher(name, buffer)
}

func NewCommandFeed(buffer int) *CommandFeed {
	return base.NewCommandFeed(buffer)
}

// Standalone publisher.
func NewPublisher(cfg *PublisherConfig, sink EventBatchSink) (*Publisher, error) {
	return base.NewPublisher(cfg, sink)
}

// Run is shorthand for Conf(path).Run(ctx) with default wiring.
func Run(ctx context.Context, path string, opts ...RuntimeOption) error {
	flow, err := base.Conf(path)
	if err != nil {
		return err
	}
	return flow.Options(opts...).Run(ctx)
}
