// Package expander offers a blocking, context-aware view of expander pins for
// callers that live outside the completion loop.
package expander

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"ioexpander-go/config"
	"ioexpander-go/errcode"
	"ioexpander-go/hil"
	"ioexpander-go/services/i2cio"
)

// Service serialises callers onto the loop and waits for each pin result.
//
// A call whose context ends while its bus transaction is running returns
// early, but the transaction is not cancelled: the next call waits (or gives
// up with its own context) until the engine has finished it. With no bus
// timeout configured, a hung bus therefore blocks later calls.
type Service struct {
	pins []hil.Pin
	loop *i2cio.Loop
	log  *log.Logger

	slot chan struct{} // held from issue until the engine resolves
}

// New wraps pins whose driver runs on loop. pins[i] must be pin number i.
func New(pins []hil.Pin, loop *i2cio.Loop, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{pins: pins, loop: loop, log: logger, slot: make(chan struct{}, 1)}
}

func (s *Service) ConfigureOutput(ctx context.Context, pin int) error {
	_, err := s.do(ctx, "make_output", pin, hil.Pin.MakeOutput)
	return err
}

func (s *Service) ConfigureInput(ctx context.Context, pin int, mode hil.InputMode) error {
	_, err := s.do(ctx, "make_input", pin, func(p hil.Pin) error { return p.MakeInput(mode) })
	return err
}

func (s *Service) Set(ctx context.Context, pin int) error {
	_, err := s.do(ctx, "set", pin, hil.Pin.Set)
	return err
}

func (s *Service) Clear(ctx context.Context, pin int) error {
	_, err := s.do(ctx, "clear", pin, hil.Pin.Clear)
	return err
}

// Write drives pin to level.
func (s *Service) Write(ctx context.Context, pin int, level bool) error {
	if level {
		return s.Set(ctx, pin)
	}
	return s.Clear(ctx, pin)
}

func (s *Service) Toggle(ctx context.Context, pin int) error {
	_, err := s.do(ctx, "toggle", pin, hil.Pin.Toggle)
	return err
}

// Read returns the pin's current level.
func (s *Service) Read(ctx context.Context, pin int) (bool, error) {
	r, err := s.do(ctx, "read", pin, hil.Pin.Read)
	return r.Value, err
}

// Apply sets up pins from configuration, in order. Outputs get their initial
// level latched before the direction changes.
func (s *Service) Apply(ctx context.Context, pins []config.PinConfig) error {
	for _, pc := range pins {
		if err := pc.Validate(); err != nil {
			return err
		}
		var err error
		switch pc.Mode {
		case "output":
			if pc.Initial != nil {
				if err = s.Write(ctx, pc.Pin, *pc.Initial); err != nil {
					break
				}
			}
			err = s.ConfigureOutput(ctx, pc.Pin)
		case "input":
			err = s.ConfigureInput(ctx, pc.Pin, config.ParsePull(pc.Pull))
		}
		if err != nil {
			return errors.Wrapf(err, "apply pin %d", pc.Pin)
		}
	}
	return nil
}

// do issues call on the loop with a fresh client and waits for its result.
func (s *Service) do(ctx context.Context, op string, pin int, call func(hil.Pin) error) (hil.Result, error) {
	if pin < 0 || pin >= len(s.pins) {
		return hil.Result{}, &errcode.E{C: errcode.InvalidPin, Op: op}
	}
	if err := ctx.Err(); err != nil {
		return hil.Result{}, errors.Wrap(err, op)
	}
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return hil.Result{}, errors.Wrap(ctx.Err(), op)
	}

	p := s.pins[pin]
	done := make(chan hil.Result, 1)
	started := make(chan error, 1)
	err := s.loop.Send(ctx, func() {
		p.SetClient(func(r hil.Result) { done <- r })
		started <- call(p)
	})
	if err != nil {
		<-s.slot
		return hil.Result{}, errors.Wrap(err, op)
	}

	select {
	case ierr := <-started:
		if ierr != nil {
			<-s.slot
			s.log.Debug("pin op refused", "op", op, "pin", pin, "err", ierr)
			return hil.Result{}, ierr
		}
	case <-ctx.Done():
		go func() {
			if <-started == nil {
				<-done
			}
			<-s.slot
		}()
		return hil.Result{}, errors.Wrap(ctx.Err(), op)
	}

	select {
	case r := <-done:
		<-s.slot
		if r.Err != nil {
			s.log.Warn("pin op failed", "op", op, "pin", pin, "err", r.Err)
			return r, r.Err
		}
		s.log.Debug("pin op done", "op", op, "pin", pin, "value", r.Value)
		return r, nil
	case <-ctx.Done():
		s.log.Debug("pin op abandoned", "op", op, "pin", pin)
		go func() {
			<-done
			<-s.slot
		}()
		return hil.Result{}, errors.Wrap(ctx.Err(), op)
	}
}
