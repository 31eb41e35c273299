package expander

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"tinygo.org/x/drivers"

	"ioexpander-go/config"
	"ioexpander-go/drivers/mcp23008"
	"ioexpander-go/drivers/mcp23008/sim"
	"ioexpander-go/errcode"
	"ioexpander-go/hil"
	"ioexpander-go/services/i2cio"
)

func newService(t *testing.T) (*Service, *sim.Chip) {
	t.Helper()
	chip := sim.New(mcp23008.AddressDefault)
	return newServiceOn(t, chip, 100*time.Millisecond), chip
}

func newServiceOn(t *testing.T, bus drivers.I2C, timeout time.Duration) *Service {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	lg := log.New(io.Discard)
	loop := i2cio.NewLoop(8, lg)
	go loop.Run(ctx)
	own := i2cio.NewOwner(bus, loop, 4, lg)
	own.Start(ctx)

	var pins []hil.Pin
	err := loop.Do(ctx, func() {
		dev := mcp23008.New(own.Device(mcp23008.AddressDefault, timeout))
		for _, p := range dev.Pins() {
			pins = append(pins, p)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(pins, loop, lg)
}

// gatedI2C holds every transaction until open is closed.
type gatedI2C struct {
	chip *sim.Chip
	open chan struct{}
}

func (g *gatedI2C) Tx(addr uint16, w, r []byte) error {
	<-g.open
	return g.chip.Tx(addr, w, r)
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOutputRoundTrip(t *testing.T) {
	s, chip := newService(t)
	ctx := testCtx(t)

	if err := s.ConfigureOutput(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Read(ctx, 5); err != nil || !v {
		t.Fatalf("read after set: %v %v", v, err)
	}
	if err := s.Toggle(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if chip.Output(5) {
		t.Fatal("toggle should have cleared the latch")
	}
	if err := s.Write(ctx, 5, true); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Read(ctx, 5); v {
		t.Fatal("read after clear should be low")
	}
}

func TestInputFollowsOutsideWorld(t *testing.T) {
	s, chip := newService(t)
	ctx := testCtx(t)

	if err := s.ConfigureInput(ctx, 2, hil.PullUp); err != nil {
		t.Fatal(err)
	}
	if chip.Register(mcp23008.RegGpPu) != 0x04 {
		t.Fatalf("GPPU=%#02x", chip.Register(mcp23008.RegGpPu))
	}
	if v, _ := s.Read(ctx, 2); !v {
		t.Fatal("pulled-up input should read high")
	}
	chip.Drive(2, false)
	if v, _ := s.Read(ctx, 2); v {
		t.Fatal("driven-low input should read low")
	}

	if err := s.ConfigureInput(ctx, 2, hil.PullDown); !errors.Is(err, errcode.Unsupported) {
		t.Fatalf("pull-down: %v", err)
	}
	if _, err := s.Read(ctx, 8); !errors.Is(err, errcode.InvalidPin) {
		t.Fatalf("pin 8: %v", err)
	}
}

func TestBusErrorSurfaces(t *testing.T) {
	s, chip := newService(t)
	ctx := testCtx(t)

	chip.FailNext(errors.New("nack"))
	if err := s.Set(ctx, 0); !errors.Is(err, errcode.BusError) {
		t.Fatalf("want bus error, got %v", err)
	}
	// Next call is served normally.
	if err := s.Set(ctx, 0); err != nil {
		t.Fatalf("after error: %v", err)
	}
}

func TestApply(t *testing.T) {
	s, chip := newService(t)
	ctx := testCtx(t)
	high := true

	err := s.Apply(ctx, []config.PinConfig{
		{Pin: 0, Mode: "output", Initial: &high},
		{Pin: 1, Mode: "output"},
		{Pin: 6, Mode: "input", Pull: "up"},
		{Pin: 7, Mode: "input", Pull: "none"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := chip.Register(mcp23008.RegIoDir); got != 0xFC {
		t.Fatalf("IODIR=%#02x", got)
	}
	if got := chip.Register(mcp23008.RegGpPu); got != 0x40 {
		t.Fatalf("GPPU=%#02x", got)
	}
	if !chip.Output(0) || chip.Output(1) {
		t.Fatalf("OLAT=%#02x", chip.Register(mcp23008.RegOLat))
	}

	err = s.Apply(ctx, []config.PinConfig{{Pin: 3, Mode: "input", Pull: "down"}})
	if !errors.Is(err, errcode.Unsupported) {
		t.Fatalf("pull-down apply: %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	s, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Set(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
}

func TestAbandonedCallDoesNotLeaveEngineBusy(t *testing.T) {
	chip := sim.New(mcp23008.AddressDefault)
	gate := &gatedI2C{chip: chip, open: make(chan struct{})}
	s := newServiceOn(t, gate, 0)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Set(short, 2); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline, got %v", err)
	}

	// A caller that gives up while waiting for the slot does not disturb it.
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelWait()
	if err := s.Set(waitCtx, 4); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("queued caller: %v", err)
	}

	time.AfterFunc(20*time.Millisecond, func() { close(gate.open) })
	if err := s.Set(testCtx(t), 3); err != nil {
		t.Fatalf("next call after abandon: %v", err)
	}
	if !chip.Output(2) || !chip.Output(3) || chip.Output(4) {
		t.Fatalf("OLAT=%#02x", chip.Register(mcp23008.RegOLat))
	}
}
