package i2cio

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	pkgerrors "github.com/pkg/errors"

	"ioexpander-go/errcode"
	"ioexpander-go/hil"
)

// Ensure compile-time conformance with hil.I2CDevice.
var _ hil.I2CDevice = (*Device)(nil)

// Errors refused synchronously by Write/Read.
var (
	ErrDisabled    = errors.New("i2cio: device not enabled")
	ErrShortBuffer = errors.New("i2cio: length exceeds buffer")
)

// Device is one bus address seen through an Owner. Its methods, like the
// client's, must be called on the Loop goroutine.
type Device struct {
	owner   *Owner
	addr    uint16
	timeout time.Duration
	log     *log.Logger

	client  hil.I2CClient
	enabled bool

	// In-flight step.
	seq     uint32
	pending bool
	read    bool
	buf     []byte
	timer   *time.Timer
}

func (d *Device) SetClient(c hil.I2CClient) { d.client = c }
func (d *Device) Enable()                   { d.enabled = true }
func (d *Device) Disable()                  { d.enabled = false }
func (d *Device) Addr() uint16              { return d.addr }

// Write starts a write of buf[:n].
func (d *Device) Write(buf []byte, n int) error {
	return d.start(buf, n, false)
}

// Read starts a read into buf[:n].
func (d *Device) Read(buf []byte, n int) error {
	return d.start(buf, n, true)
}

func (d *Device) start(buf []byte, n int, read bool) error {
	switch {
	case !d.enabled:
		return ErrDisabled
	case d.pending:
		return errcode.Busy
	case n <= 0 || n > len(buf):
		return ErrShortBuffer
	}

	req := request{dev: d, seq: d.seq + 1}
	if read {
		req.n = n
	} else {
		req.w = append([]byte(nil), buf[:n]...)
	}
	select {
	case d.owner.reqs <- req:
	default:
		return errcode.Busy
	}

	d.seq = req.seq
	d.pending, d.read, d.buf = true, read, buf
	if d.timeout > 0 {
		seq := d.seq
		ctx := d.owner.context()
		d.timer = time.AfterFunc(d.timeout, func() {
			_ = d.owner.loop.Send(ctx, func() { d.expire(seq) })
		})
	}
	return nil
}

// complete runs on the loop with the worker's result.
func (d *Device) complete(seq uint32, r []byte, err error) {
	if !d.pending || seq != d.seq {
		d.log.Debug("late completion dropped", "seq", seq, "err", err)
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	buf := d.buf
	d.pending, d.buf = false, nil
	if err == nil && d.read {
		copy(buf, r)
	}
	if err != nil {
		err = pkgerrors.Wrapf(err, "i2c %s", HexAddr(d.addr))
	}
	d.deliver(buf, err)
}

// expire completes a step that outlived its timeout. The worker's eventual
// result is discarded by sequence number.
func (d *Device) expire(seq uint32) {
	if !d.pending || seq != d.seq {
		return
	}
	d.log.Warn("i2c step timed out", "after", d.timeout)
	buf := d.buf
	d.pending, d.buf, d.timer = false, nil, nil
	d.seq++
	d.deliver(buf, &errcode.E{C: errcode.Timeout, Op: "i2c", Msg: HexAddr(d.addr)})
}

func (d *Device) deliver(buf []byte, err error) {
	if d.client == nil {
		d.log.Debug("completion without client", "err", err)
		return
	}
	d.client.CommandComplete(buf, err)
}
