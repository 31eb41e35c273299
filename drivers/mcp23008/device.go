package mcp23008

import (
	"errors"

	"ioexpander-go/errcode"
	"ioexpander-go/hil"
)

// Ensure the driver satisfies the transport client contract at compile time.
var _ hil.I2CClient = (*Device)(nil)

// Device is the register protocol engine for one MCP23008.
//
// It is not safe for concurrent use. Every method, and every completion from
// the bus, must run on the same goroutine; nothing here blocks.
type Device struct {
	bus hil.I2CDevice
	buf transferBuffer

	state State
	op    Op
	pin   uint8

	pending  hil.Callback // resolves the in-flight operation
	callback hil.Callback // used when an operation is issued without one

	pins [NumPins]Pin
}

// New constructs a Device on an asynchronous bus and registers itself as the
// bus client. It does not touch the chip.
func New(bus hil.I2CDevice) *Device {
	d := &Device{
		bus: bus,
		buf: newTransferBuffer(BufferLen),
	}
	for i := range d.pins {
		d.pins[i] = Pin{dev: d, pin: uint8(i)}
	}
	bus.SetClient(d)
	return d
}

// SetCallback installs the default completion callback.
func (d *Device) SetCallback(cb hil.Callback) { d.callback = cb }

// Introspection.
func (d *Device) State() State { return d.state }
func (d *Device) Busy() bool   { return d.buf.checkedOut() }

// Pin returns the handle for pin n.
func (d *Device) Pin(n int) (*Pin, error) {
	if n < 0 || n >= NumPins {
		return nil, errcode.InvalidPin
	}
	return &d.pins[n], nil
}

// Pins returns all pin handles in index order.
func (d *Device) Pins() []*Pin {
	out := make([]*Pin, NumPins)
	for i := range d.pins {
		out[i] = &d.pins[i]
	}
	return out
}

// Logical operations. Each returns nil once the first bus step is under way;
// the outcome arrives through done (or the default callback).

func (d *Device) SetDirection(pin uint8, dir Direction, done hil.Callback) error {
	return d.issue(OpSetDirection, pin, uint8(dir), done)
}

func (d *Device) ConfigurePullup(pin uint8, enabled bool, done hil.Callback) error {
	var v uint8
	if enabled {
		v = 1
	}
	return d.issue(OpConfigurePullup, pin, v, done)
}

func (d *Device) SetPin(pin uint8, v PinState, done hil.Callback) error {
	return d.issue(OpSetPin, pin, uint8(v), done)
}

func (d *Device) TogglePin(pin uint8, done hil.Callback) error {
	return d.issue(OpTogglePin, pin, 0, done)
}

func (d *Device) ReadPin(pin uint8, done hil.Callback) error {
	return d.issue(OpReadPin, pin, 0, done)
}

// issue validates, takes the buffer and selects the operation's register.
func (d *Device) issue(op Op, pin, operand uint8, done hil.Callback) error {
	if pin >= NumPins {
		return &errcode.E{C: errcode.InvalidPin, Op: op.String()}
	}
	buf, ok := d.buf.acquire()
	if !ok {
		return errcode.Busy
	}
	reg, next := op.entry()

	d.bus.Enable()
	buf[0] = byte(reg)
	// Pin and operand ride along in the buffer to the read step.
	buf[1] = pin
	buf[2] = operand

	d.state, d.op, d.pin, d.pending = next, op, pin, done
	if err := d.bus.Write(buf, 1); err != nil {
		// No completion will come; undo everything.
		d.state, d.pending = Idle, nil
		d.bus.Disable()
		d.buf.release(buf)
		return errcode.Wrap(errcode.BusError, op.String(), err)
	}
	return nil
}

// CommandComplete advances the protocol. It is the only place state moves
// forward.
func (d *Device) CommandComplete(buf []byte, err error) {
	ev := evComplete
	if err != nil {
		ev = evError
	}
	next, act := transition(d.state, ev)
	if act != actIgnore && act != actAbort && len(buf) < 3 {
		act, err = actAbort, ErrShortBuffer
	}

	switch act {
	case actIgnore:
		return

	case actRead:
		d.state = next
		if err := d.bus.Read(buf, 1); err != nil {
			d.abort(buf, err)
		}

	case actSetBit, actFlipBit:
		old, pin, operand := buf[0], buf[1], buf[2]
		bit := byte(1) << pin
		var v byte
		switch {
		case act == actFlipBit:
			v = old ^ bit
		case operand == 1:
			v = old | bit
		default:
			v = old &^ bit
		}
		buf[0] = byte(d.state.register())
		buf[1] = v
		d.state = next
		if err := d.bus.Write(buf, 2); err != nil {
			d.abort(buf, err)
		}

	case actDecode:
		level := (buf[0]>>buf[1])&0x01 == 1
		d.finish(buf, hil.Result{Pin: d.pin, Value: level})

	case actFinish:
		d.finish(buf, hil.Result{Pin: d.pin})

	case actAbort:
		d.abort(buf, err)
	}
}

func (d *Device) abort(buf []byte, cause error) {
	d.finish(buf, hil.Result{Pin: d.pin, Err: errcode.Wrap(errcode.BusError, d.op.String(), cause)})
}

// finish returns to Idle before resolving, so the callback may issue the
// next operation.
func (d *Device) finish(buf []byte, res hil.Result) {
	d.buf.release(buf)
	d.bus.Disable()
	d.state = Idle

	cb := d.pending
	d.pending = nil
	if cb == nil {
		cb = d.callback
	}
	if cb != nil {
		cb(res)
	}
}

// ErrShortBuffer is reported when the bus hands back a truncated buffer.
var ErrShortBuffer = errors.New("mcp23008: short transfer buffer")
