package mcp23008

import (
	"ioexpander-go/errcode"
	"ioexpander-go/hil"
)

// Ensure compile-time conformance with hil.Pin.
var _ hil.Pin = (*Pin)(nil)

// Pin is a handle on one expander pin. It holds no hardware state; every
// call forwards to the shared Device, so only one pin operation per chip can
// be in flight.
type Pin struct {
	dev *Device
	pin uint8
	cb  hil.Callback
}

func (p *Pin) Number() int { return int(p.pin) }

// SetClient installs the callback that receives this pin's results. With no
// client, results go to the device callback.
func (p *Pin) SetClient(cb hil.Callback) { p.cb = cb }

// Disable has no hardware meaning on this chip. It does nothing, schedules
// no callback and leaves the pin's configuration as it was.
func (p *Pin) Disable() error { return nil }

func (p *Pin) MakeOutput() error {
	return p.dev.SetDirection(p.pin, Output, p.cb)
}

// MakeInput sets the pin as input, then programs its pull-up. The client is
// called once, after the pull-up write or on the first failure.
func (p *Pin) MakeInput(mode hil.InputMode) error {
	if mode == hil.PullDown {
		return &errcode.E{C: errcode.Unsupported, Op: "make_input", Msg: "no pull-down resistor"}
	}
	pullup := mode == hil.PullUp
	return p.dev.SetDirection(p.pin, Input, func(r hil.Result) {
		if r.Err != nil {
			p.notify(r)
			return
		}
		if err := p.dev.ConfigurePullup(p.pin, pullup, p.notify); err != nil {
			p.notify(hil.Result{Pin: p.pin, Err: err})
		}
	})
}

// Read samples the pin; the level arrives as Result.Value.
func (p *Pin) Read() error { return p.dev.ReadPin(p.pin, p.cb) }

func (p *Pin) Toggle() error { return p.dev.TogglePin(p.pin, p.cb) }
func (p *Pin) Set() error    { return p.dev.SetPin(p.pin, High, p.cb) }
func (p *Pin) Clear() error  { return p.dev.SetPin(p.pin, Low, p.cb) }

// Interrupts are not wired on this board variant.

func (p *Pin) EnableInterrupt(int, hil.InterruptMode) error {
	return &errcode.E{C: errcode.Unsupported, Op: "enable_interrupt"}
}

func (p *Pin) DisableInterrupt() error {
	return &errcode.E{C: errcode.Unsupported, Op: "disable_interrupt"}
}

func (p *Pin) notify(r hil.Result) {
	cb := p.cb
	if cb == nil {
		cb = p.dev.callback
	}
	if cb != nil {
		cb(r)
	}
}
