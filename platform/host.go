// Package platform opens real buses on a host through periph.io.
package platform

import (
	"strings"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"tinygo.org/x/drivers"
)

// periph's i2c.Bus has the same Tx shape as the tinygo bus.
var (
	_ drivers.I2C = (i2c.Bus)(nil)
	_ Bus         = (*Bridge)(nil)
)

// Bus is an opened host I²C bus.
type Bus interface {
	drivers.I2C
	Close() error
}

// Open opens "usb" or "usb:<serial>" through an MCP2221A bridge and any other
// name through periph.
func Open(name string) (Bus, error) {
	if rest, ok := strings.CutPrefix(name, "usb"); ok && (rest == "" || rest[0] == ':') {
		b, err := OpenBridge(strings.TrimPrefix(rest, ":"))
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	b, err := OpenI2C(name)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// OpenI2C initialises the host drivers and opens the named I²C bus ("" picks
// the first one registered). The caller closes the returned bus.
func OpenI2C(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", name)
	}
	return bus, nil
}

// Buses lists the I²C bus names periph knows about on this host.
func Buses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init")
	}
	var names []string
	for _, ref := range i2creg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}
