package hardware

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

func init() {
	RegisterModel("AHT20", newAHT20)
	RegisterModel("VEML7700", newVEML7700)
}

const i2cSlaveIoctl = 0x0703 // I2C_SLAVE from linux/i2c-dev.h

// i2cConn is the minimal bus access the sensor models need; it is a
// var hook so tests can substitute a fake device.
type i2cConn interface {
	Write(p []byte) error
	Read(p []byte) error
	Close() error
}

var openI2C = func(busID, devAddr int) (i2cConn, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/i2c-%d", busID), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlaveIoctl, devAddr); err != nil {
		f.Close()
		return nil, err
	}
	return &devI2C{f: f}, nil
}

type devI2C struct {
	f *os.File
}

func (d *devI2C) Write(p []byte) error {
	_, err := d.f.Write(p)
	return err
}

func (d *devI2C) Read(p []byte) error {
	_, err := d.f.Read(p)
	return err
}

func (d *devI2C) Close() error { return d.f.Close() }

// aht20 is a temperature + humidity combo sensor at i2c address 0x38.
type aht20 struct {
	base
	conn     i2cConn
	measures []domain.Quantity
}

func newAHT20(cfg Config, release func()) (ports.Driver, error) {
	if cfg.Address.Bus != domain.BusI2C {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "AHT20 requires an i2c address"}
	}
	conn, err := openI2C(cfg.Address.BusID, cfg.Address.Pin)
	if err != nil {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: fmt.Sprintf("open bus: %v", err)}
	}
	measures := cfg.Measures
	if len(measures) == 0 {
		measures = []domain.Quantity{domain.QuantityTemperature, domain.QuantityHumidity}
	}
	return &aht20{
		base:     base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
		conn:     conn,
		measures: measures,
	}, nil
}

func (s *aht20) Measures() []domain.Quantity { return s.measures }

func (s *aht20) Read(ctx context.Context) ([]domain.Measurement, error) {
	// Trigger a measurement cycle, then fetch status + 5 data bytes.
	if err := s.conn.Write([]byte{0xAC, 0x33, 0x00}); err != nil {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: err}
	}
	select {
	case <-ctx.Done():
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: ctx.Err()}
	case <-time.After(80 * time.Millisecond):
	}

	var buf [7]byte
	if err := s.conn.Read(buf[:]); err != nil {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: err}
	}
	if buf[0]&0x80 != 0 {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: fmt.Errorf("sensor busy")}
	}

	temp, hum := aht20Convert(buf)
	now := time.Now().UTC()

	out := make([]domain.Measurement, 0, len(s.measures))
	for _, q := range s.measures {
		switch q {
		case domain.QuantityTemperature:
			out = append(out, domain.Measurement{DriverID: s.id, Quantity: q, Value: temp, Timestamp: now})
		case domain.QuantityHumidity:
			out = append(out, domain.Measurement{DriverID: s.id, Quantity: q, Value: hum, Timestamp: now})
		}
	}
	return out, nil
}

func (s *aht20) Close() error {
	err := s.conn.Close()
	berr := s.base.Close()
	if err != nil {
		return err
	}
	return berr
}

// aht20Convert decodes the 20-bit humidity and temperature words from
// a raw status + data frame.
func aht20Convert(buf [7]byte) (temperature, humidity float64) {
	rawHum := uint32(buf[1])<<12 | uint32(buf[2])<<4 | uint32(buf[3])>>4
	rawTemp := uint32(buf[3]&0x0F)<<16 | uint32(buf[4])<<8 | uint32(buf[5])

	humidity = float64(rawHum) / (1 << 20) * 100
	temperature = float64(rawTemp)/(1<<20)*200 - 50
	return temperature, humidity
}

// veml7700 is an ambient light sensor at i2c address 0x10.
type veml7700 struct {
	base
	conn i2cConn
}

// Lux per count at gain 1 and 100 ms integration time.
const veml7700Resolution = 0.0576

func newVEML7700(cfg Config, release func()) (ports.Driver, error) {
	if cfg.Address.Bus != domain.BusI2C {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "VEML7700 requires an i2c address"}
	}
	conn, err := openI2C(cfg.Address.BusID, cfg.Address.Pin)
	if err != nil {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: fmt.Sprintf("open bus: %v", err)}
	}
	s := &veml7700{
		base: base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
		conn: conn,
	}
	// Power on with default gain and integration time.
	if err := conn.Write([]byte{0x00, 0x00, 0x00}); err != nil {
		conn.Close()
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: fmt.Sprintf("power on: %v", err)}
	}
	return s, nil
}

func (s *veml7700) Measures() []domain.Quantity {
	return []domain.Quantity{domain.QuantityLight}
}

func (s *veml7700) Read(_ context.Context) ([]domain.Measurement, error) {
	if err := s.conn.Write([]byte{0x04}); err != nil {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: err}
	}
	var buf [2]byte
	if err := s.conn.Read(buf[:]); err != nil {
		return nil, &domain.DriverError{DriverID: s.id, Op: "read", Err: err}
	}
	raw := uint16(buf[0]) | uint16(buf[1])<<8
	return []domain.Measurement{{
		DriverID:  s.id,
		Quantity:  domain.QuantityLight,
		Value:     float64(raw) * veml7700Resolution,
		Timestamp: time.Now().UTC(),
	}}, nil
}

func (s *veml7700) Close() error {
	err := s.conn.Close()
	berr := s.base.Close()
	if err != nil {
		return err
	}
	return berr
}

var (
	_ ports.Sensor = (*aht20)(nil)
	_ ports.Sensor = (*veml7700)(nil)
)
