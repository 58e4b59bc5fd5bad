package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// BusKind enumerates the physical transports a driver can bind to.
type BusKind string

const (
	BusGPIO BusKind = "gpio"
	BusI2C  BusKind = "i2c"
	BusPWM  BusKind = "pwm"
	// BusNet is the pseudo-bus for remote hardware (e.g. OPC UA
	// nodes). It exists so remote bindings share the same exclusive
	// address space as physical pins.
	BusNet BusKind = "net"
)

// Address identifies one physical pin or channel on one bus. An
// address has exactly one live driver owner at a time; claiming is
// enforced by the hardware registry.
type Address struct {
	Bus BusKind `json:"bus"`
	// BusID selects the controller (gpiochip number, i2c bus number,
	// pwmchip number).
	BusID int `json:"bus_id"`
	// Pin is the line, channel, or i2c device address.
	Pin int `json:"pin"`
}

func (a Address) String() string {
	if a.Bus == BusI2C {
		return fmt.Sprintf("%s:%d:%#x", a.Bus, a.BusID, a.Pin)
	}
	return fmt.Sprintf("%s:%d:%d", a.Bus, a.BusID, a.Pin)
}

// ParseAddress parses the textual form "bus:busID:pin", e.g.
// "gpio:0:17" or "i2c:1:0x38". The pin component accepts decimal or
// hex notation.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Address{}, &AddressError{Address: s, Reason: "want bus:busID:pin"}
	}

	var bus BusKind
	switch BusKind(strings.ToLower(parts[0])) {
	case BusGPIO:
		bus = BusGPIO
	case BusI2C:
		bus = BusI2C
	case BusPWM:
		bus = BusPWM
	case BusNet:
		bus = BusNet
	default:
		return Address{}, &AddressError{Address: s, Reason: fmt.Sprintf("unknown bus kind %q", parts[0])}
	}

	busID, err := strconv.Atoi(parts[1])
	if err != nil || busID < 0 {
		return Address{}, &AddressError{Address: s, Reason: fmt.Sprintf("invalid bus id %q", parts[1])}
	}

	pin, err := strconv.ParseInt(parts[2], 0, 32)
	if err != nil || pin < 0 {
		return Address{}, &AddressError{Address: s, Reason: fmt.Sprintf("invalid pin %q", parts[2])}
	}

	return Address{Bus: bus, BusID: busID, Pin: int(pin)}, nil
}

// AddressError reports a malformed or double-claimed hardware address.
// It fails the owning subroutine's start.
type AddressError struct {
	Address string
	Reason  string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("address %q: %s", e.Address, e.Reason)
}
