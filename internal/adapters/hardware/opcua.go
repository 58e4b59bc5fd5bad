package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

func init() {
	RegisterModel("opcuaSensor", newOPCUASensor)
}

// opcuaSensor reads one remote node per configured quantity over an
// OPC UA session. It performs a single attribute read per tick; retry
// and fault accounting stay with the owning subroutine like for any
// other driver.
type opcuaSensor struct {
	base
	client  *opcua.Client
	nodeID  *ua.NodeID
	measure domain.Quantity
}

func newOPCUASensor(cfg Config, release func()) (ports.Driver, error) {
	if cfg.Address.Bus != domain.BusNet {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "opcuaSensor requires a net address"}
	}
	endpoint := cfg.Options["endpoint"]
	if endpoint == "" {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "opcuaSensor needs an endpoint option"}
	}
	node := cfg.Options["node_id"]
	if node == "" {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "opcuaSensor needs a node_id option"}
	}
	nodeID, err := ua.ParseNodeID(node)
	if err != nil {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: fmt.Sprintf("parse node id %q: %v", node, err)}
	}

	measure := domain.QuantityTemperature
	if len(cfg.Measures) > 0 {
		measure = cfg.Measures[0]
	}

	opts := []opcua.Option{
		opcua.SecurityModeString("None"),
		opcua.SecurityPolicy("None"),
		opcua.ApplicationName("gaia"),
		opcua.AutoReconnect(true),
	}
	if user := cfg.Options["username"]; user != "" {
		opts = append(opts, opcua.AuthUsername(user, cfg.Options["password"]))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	client, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: fmt.Sprintf("opcua new client: %v", err)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: fmt.Sprintf("opcua connect: %v", err)}
	}

	return &opcuaSensor{
		base:    base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
		client:  client,
		nodeID:  nodeID,
		measure: measure,
	}, nil
}

func (s *opcuaSensor) Measures() []domain.Quantity {
	return []domain.Quantity{s.measure}
}

func (s *opcuaSensor) Read(ctx context.Context) ([]domain.Measurement, error) {
	req := &ua.ReadRequest{
		MaxAge:             0,
		TimestampsToReturn: ua.TimestampsToReturnServer,
		NodesToRead: []*ua.ReadValueID{
			{NodeID: s.nodeID, AttributeID: ua.AttributeIDValue},
		},
	}

	resp, err := s.client.Read(ctx, req)
	if err != nil {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: err}
	}
	if len(resp.Results) == 0 {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: fmt.Errorf("empty read response")}
	}
	result := resp.Results[0]
	if result.Status != ua.StatusOK {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: fmt.Errorf("status %s", result.Status)}
	}

	v, ok := variantToFloat(result.Value)
	if !ok {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: fmt.Errorf("unsupported value type %T", result.Value.Value())}
	}

	ts := result.ServerTimestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return []domain.Measurement{{
		DriverID:  s.id,
		Quantity:  s.measure,
		Value:     v,
		Timestamp: ts,
	}}, nil
}

func (s *opcuaSensor) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.client.Close(ctx)
	berr := s.base.Close()
	if err != nil {
		return err
	}
	return berr
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

var _ ports.Sensor = (*opcuaSensor)(nil)
