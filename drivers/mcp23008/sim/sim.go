// Package sim models an MCP23008 behind a blocking tinygo drivers.I2C, for
// tests and for running the driver without hardware.
//
// The model keeps the chip's address pointer between transactions, so a
// register select and a following read may arrive as separate Tx calls:
//
//	c.Tx(addr, []byte{reg}, nil) // select
//	c.Tx(addr, nil, buf[:1])     // read
package sim

import (
	"errors"
	"sync"

	"ioexpander-go/drivers/mcp23008"

	"tinygo.org/x/drivers"
)

// Compile-time check.
var _ drivers.I2C = (*Chip)(nil)

// Errors returned by the model.
var (
	ErrNack = errors.New("sim: address not acknowledged")
)

const ioconSeqOp = 1 << 5 // 1 = address pointer does not increment

// Tx is one recorded bus transaction.
type Tx struct {
	Addr uint16
	W    []byte
	R    []byte
	Err  error
}

// Chip is a register-level MCP23008.
type Chip struct {
	mu   sync.Mutex
	addr uint16

	regs [mcp23008.NumRegisters]byte
	ptr  byte

	ext    byte // levels driven onto input pins from outside
	driven byte // which pins are driven from outside

	fail []error
	log  []Tx
}

// New returns a chip at addr in its power-on state.
func New(addr uint16) *Chip {
	c := &Chip{addr: addr}
	c.reset()
	return c
}

// Reset restores power-on register values and clears the log.
func (c *Chip) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.log = nil
}

func (c *Chip) reset() {
	c.regs = [mcp23008.NumRegisters]byte{}
	c.regs[mcp23008.RegIoDir] = 0xFF
	c.ptr = 0
}

// Tx implements drivers.I2C.
func (c *Chip) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := Tx{Addr: addr, W: append([]byte(nil), w...)}
	defer func() { c.log = append(c.log, rec) }()

	if len(c.fail) > 0 {
		rec.Err = c.fail[0]
		c.fail = c.fail[1:]
		return rec.Err
	}
	if addr != c.addr {
		rec.Err = ErrNack
		return ErrNack
	}

	if len(w) > 0 {
		c.ptr = w[0]
		for _, b := range w[1:] {
			c.write(c.ptr, b)
			c.advance()
		}
	}
	for i := range r {
		r[i] = c.read(c.ptr)
		c.advance()
	}
	rec.R = append([]byte(nil), r...)
	return nil
}

func (c *Chip) advance() {
	if c.regs[mcp23008.RegIoCon]&ioconSeqOp != 0 {
		return
	}
	c.ptr++
	if int(c.ptr) >= mcp23008.NumRegisters {
		c.ptr = 0
	}
}

// caller holds lock
func (c *Chip) write(reg, v byte) {
	switch mcp23008.Register(reg) {
	case mcp23008.RegIntF, mcp23008.RegIntCap:
		// read-only
	case mcp23008.RegGpio, mcp23008.RegOLat:
		c.regs[mcp23008.RegOLat] = v
	default:
		if int(reg) < mcp23008.NumRegisters {
			c.regs[reg] = v
		}
	}
}

// caller holds lock
func (c *Chip) read(reg byte) byte {
	if mcp23008.Register(reg) == mcp23008.RegGpio {
		return c.port()
	}
	if int(reg) < mcp23008.NumRegisters {
		return c.regs[reg]
	}
	return 0
}

// port resolves the GPIO register: outputs follow the latch, inputs follow
// the outside world, then pull-ups, and are inverted by IPOL.
func (c *Chip) port() byte {
	iodir := c.regs[mcp23008.RegIoDir]
	in := (c.ext & c.driven) | (c.regs[mcp23008.RegGpPu] &^ c.driven)
	in ^= c.regs[mcp23008.RegIPol]
	return (c.regs[mcp23008.RegOLat] &^ iodir) | (in & iodir)
}

// Drive forces an external level onto pin n.
func (c *Chip) Drive(n int, level bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bit := byte(1) << (n & 7)
	c.driven |= bit
	if level {
		c.ext |= bit
	} else {
		c.ext &^= bit
	}
}

// Float stops driving pin n from outside.
func (c *Chip) Float(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driven &^= byte(1) << (n & 7)
}

// Register returns the stored value of reg (GPIO is resolved as on a read).
func (c *Chip) Register(reg mcp23008.Register) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(byte(reg))
}

// SetRegister stores v as if written over the bus.
func (c *Chip) SetRegister(reg mcp23008.Register, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(byte(reg), v)
}

// Output reports the latched output level of pin n.
func (c *Chip) Output(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[mcp23008.RegOLat]&(1<<(n&7)) != 0
}

// FailNext makes the next len(errs) transactions fail with errs, in order.
func (c *Chip) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = append(c.fail, errs...)
}

// Log returns a copy of the recorded transactions.
func (c *Chip) Log() []Tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Tx(nil), c.log...)
}
