// Package mcp23008 provides constants for register addresses used in the
// operation of the MCP23008 8-bit I/O expander.
package mcp23008

// Register is one byte-wide register address on the chip.
// Every register carries one bit per pin.
type Register uint8

const (
	// 7-bit I2C address (0100_A2A1A0b).
	AddressDefault = 0x20

	// Number of GPIO pins on the chip.
	NumPins = 8

	// Transfer buffer length. Bytes 1..2 carry pin/operand between steps.
	BufferLen = 4

	// --- Register addresses (IOCON.BANK is irrelevant on the 8-bit part) ---
	RegIoDir   Register = 0x00 // R/W, 1=input 0=output
	RegIPol    Register = 0x01 // R/W, input polarity invert
	RegGpIntEn Register = 0x02 // R/W, interrupt-on-change enable
	RegDefVal  Register = 0x03 // R/W, default compare value
	RegIntCon  Register = 0x04 // R/W, interrupt control
	RegIoCon   Register = 0x05 // R/W, configuration
	RegGpPu    Register = 0x06 // R/W, pull-up enable
	RegIntF    Register = 0x07 // R, interrupt flags
	RegIntCap  Register = 0x08 // R, interrupt capture
	RegGpio    Register = 0x09 // R/W, port level
	RegOLat    Register = 0x0A // R/W, output latch

	NumRegisters = 11
)

// Direction is the IoDir encoding for one pin.
type Direction uint8

const (
	Output Direction = 0x00
	Input  Direction = 0x01
)

// PinState is a logic level written to the Gpio register.
type PinState uint8

const (
	Low  PinState = 0x00
	High PinState = 0x01
)

// Address returns the bus address for the given A2..A0 strap value.
func Address(straps uint8) uint16 { return AddressDefault | uint16(straps&0x07) }

var regNames = [NumRegisters]string{
	"IODIR", "IPOL", "GPINTEN", "DEFVAL", "INTCON", "IOCON",
	"GPPU", "INTF", "INTCAP", "GPIO", "OLAT",
}

func (r Register) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "REG?"
}
