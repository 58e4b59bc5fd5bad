package hardware

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

func init() {
	RegisterModel("gpioSwitch", newGPIOSwitch)
	RegisterModel("gpioDimmable", newGPIODimmable)
	RegisterModel("DHT22", newDHT22)
}

// sysfs roots, swappable in tests.
var (
	gpioRoot = "/sys/class/gpio"
	pwmRoot  = "/sys/class/pwm"
	iioRoot  = "/sys/bus/iio/devices"
)

// gpioSwitch drives one on/off line through the sysfs gpio interface.
// Any level > 0 closes the switch.
type gpioSwitch struct {
	base
	valuePath string
}

func newGPIOSwitch(cfg Config, release func()) (ports.Driver, error) {
	if cfg.Address.Bus != domain.BusGPIO {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "gpioSwitch requires a gpio address"}
	}
	valuePath, err := exportGPIO(cfg.Address.Pin, "out")
	if err != nil {
		return nil, err
	}
	return &gpioSwitch{
		base:      base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
		valuePath: valuePath,
	}, nil
}

func (s *gpioSwitch) Write(_ context.Context, level float64) error {
	v := "0"
	if level > 0 {
		v = "1"
	}
	if err := os.WriteFile(s.valuePath, []byte(v), 0o644); err != nil {
		return &domain.DriverError{DriverID: s.id, Op: "write", Err: err}
	}
	return nil
}

// gpioDimmable drives a PWM channel; the 0-100 setpoint maps linearly
// onto the duty cycle.
type gpioDimmable struct {
	base
	channelDir string
	periodNs   int64
}

const defaultPWMPeriodNs = 1_000_000 // 1 kHz

func newGPIODimmable(cfg Config, release func()) (ports.Driver, error) {
	if cfg.Address.Bus != domain.BusPWM && cfg.Address.Bus != domain.BusGPIO {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "gpioDimmable requires a pwm or gpio address"}
	}
	dir := filepath.Join(pwmRoot, fmt.Sprintf("pwmchip%d", cfg.Address.BusID), fmt.Sprintf("pwm%d", cfg.Address.Pin))
	d := &gpioDimmable{
		base:       base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
		channelDir: dir,
		periodNs:   defaultPWMPeriodNs,
	}
	if err := d.setup(cfg.Address); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *gpioDimmable) setup(addr domain.Address) error {
	if _, err := os.Stat(d.channelDir); err != nil {
		exportPath := filepath.Join(pwmRoot, fmt.Sprintf("pwmchip%d", addr.BusID), "export")
		if werr := os.WriteFile(exportPath, []byte(strconv.Itoa(addr.Pin)), 0o644); werr != nil {
			return &domain.AddressError{Address: addr.String(), Reason: fmt.Sprintf("pwm export: %v", werr)}
		}
	}
	if err := os.WriteFile(filepath.Join(d.channelDir, "period"), []byte(strconv.FormatInt(d.periodNs, 10)), 0o644); err != nil {
		return &domain.AddressError{Address: addr.String(), Reason: fmt.Sprintf("pwm period: %v", err)}
	}
	if err := os.WriteFile(filepath.Join(d.channelDir, "enable"), []byte("1"), 0o644); err != nil {
		return &domain.AddressError{Address: addr.String(), Reason: fmt.Sprintf("pwm enable: %v", err)}
	}
	return nil
}

func (d *gpioDimmable) Write(_ context.Context, level float64) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	duty := int64(level / 100 * float64(d.periodNs))
	err := os.WriteFile(filepath.Join(d.channelDir, "duty_cycle"), []byte(strconv.FormatInt(duty, 10)), 0o644)
	if err != nil {
		return &domain.DriverError{DriverID: d.id, Op: "write", Err: err}
	}
	return nil
}

// dht22 reads temperature and humidity through the kernel iio dht11
// driver bound to the configured gpio line.
type dht22 struct {
	base
	deviceDir string
	measures  []domain.Quantity
}

func newDHT22(cfg Config, release func()) (ports.Driver, error) {
	if cfg.Address.Bus != domain.BusGPIO {
		return nil, &domain.AddressError{Address: cfg.Address.String(), Reason: "DHT22 requires a gpio address"}
	}
	measures := cfg.Measures
	if len(measures) == 0 {
		measures = []domain.Quantity{domain.QuantityTemperature, domain.QuantityHumidity}
	}
	dev := cfg.Options["iio_device"]
	if dev == "" {
		dev = "iio:device0"
	}
	return &dht22{
		base:      base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
		deviceDir: filepath.Join(iioRoot, dev),
		measures:  measures,
	}, nil
}

func (d *dht22) Measures() []domain.Quantity { return d.measures }

func (d *dht22) Read(_ context.Context) ([]domain.Measurement, error) {
	now := time.Now().UTC()
	out := make([]domain.Measurement, 0, len(d.measures))
	for _, q := range d.measures {
		var file string
		switch q {
		case domain.QuantityTemperature:
			file = "in_temp_input"
		case domain.QuantityHumidity:
			file = "in_humidityrelative_input"
		default:
			continue
		}
		raw, err := os.ReadFile(filepath.Join(d.deviceDir, file))
		if err != nil {
			return nil, &domain.DriverError{DriverID: d.id, Op: "read", Err: err}
		}
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			return nil, &domain.DriverError{DriverID: d.id, Op: "read", Err: err}
		}
		out = append(out, domain.Measurement{
			DriverID:  d.id,
			Quantity:  q,
			Value:     milli / 1000, // iio reports millidegrees / milli-percent
			Timestamp: now,
		})
	}
	return out, nil
}

// exportGPIO makes a line available through sysfs and returns its
// value file path.
func exportGPIO(pin int, direction string) (string, error) {
	lineDir := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", pin))
	if _, err := os.Stat(lineDir); err != nil {
		exportPath := filepath.Join(gpioRoot, "export")
		if werr := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0o644); werr != nil {
			return "", &domain.AddressError{
				Address: fmt.Sprintf("gpio pin %d", pin),
				Reason:  fmt.Sprintf("export: %v", werr),
			}
		}
	}
	if err := os.WriteFile(filepath.Join(lineDir, "direction"), []byte(direction), 0o644); err != nil {
		return "", &domain.AddressError{
			Address: fmt.Sprintf("gpio pin %d", pin),
			Reason:  fmt.Sprintf("direction: %v", err),
		}
	}
	return filepath.Join(lineDir, "value"), nil
}

var (
	_ ports.Actuator = (*gpioSwitch)(nil)
	_ ports.Actuator = (*gpioDimmable)(nil)
	_ ports.Sensor   = (*dht22)(nil)
)
