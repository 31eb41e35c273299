// Command mcp23008ctl drives the pins of one MCP23008 from a host.
//
//	mcp23008ctl -bus /dev/i2c-1 -addr 0x20 out 3
//	mcp23008ctl -bus /dev/i2c-1 set 3
//	mcp23008ctl -bus usb in 5 up
//	mcp23008ctl -sim read 3
//	mcp23008ctl buses
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"ioexpander-go/bus"
	"ioexpander-go/config"
	"ioexpander-go/drivers/mcp23008"
	"ioexpander-go/drivers/mcp23008/sim"
	"ioexpander-go/errcode"
	"ioexpander-go/hil"
	"ioexpander-go/platform"
	"ioexpander-go/services/expander"
	"ioexpander-go/services/i2cio"
	"ioexpander-go/services/watch"

	"tinygo.org/x/drivers"
)

const usage = `usage: mcp23008ctl [flags] <command> [args]

commands:
  out <pin>               configure pin as output
  in <pin> [up|none]      configure pin as input (default pull: none)
  set <pin> | clear <pin> drive an output high / low
  toggle <pin>            invert an output
  read <pin>              print the pin level (0/1)
  watch [pin...]          print level changes until interrupted
                          (default: configured input pins)
  apply                   apply the pins section of -config only
  buses                   list host I2C buses

flags:
`

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "mcp23008ctl",
	})
	if err := run(os.Args[1:], logger); err != nil {
		logger.Error("failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string, logger *log.Logger) error {
	fs := flag.NewFlagSet("mcp23008ctl", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	var (
		cfgPath = fs.String("config", "", "JSON config file")
		busName = fs.String("bus", "", "I2C bus: periph name, \"usb\" or \"usb:<serial>\" for an MCP2221A; empty picks the first")
		addr    = fs.Uint("addr", mcp23008.AddressDefault, "7-bit device address")
		timeout = fs.Duration("timeout", 0, "per-step bus timeout (0 keeps config value)")
		level   = fs.String("log", "", "log level: debug, info, warn, error")
		useSim  = fs.Bool("sim", false, "use the in-memory chip model instead of hardware")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return &errcode.E{C: errcode.InvalidParams, Msg: "missing command"}
	}
	if fs.Arg(0) == "buses" {
		names, err := platform.Buses()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	cfg := config.Default()
	if *cfgPath != "" {
		c, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bus":
			cfg.Bus = *busName
		case "addr":
			cfg.Address = uint16(*addr)
		case "timeout":
			cfg.TimeoutMS = int(timeout.Milliseconds())
		case "log":
			cfg.LogLevel = *level
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, keeping info", "level", cfg.LogLevel)
	}

	var i2cBus drivers.I2C
	if *useSim {
		i2cBus = sim.New(cfg.Address)
	} else {
		b, err := platform.Open(cfg.Bus)
		if err != nil {
			return err
		}
		defer b.Close()
		i2cBus = b
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	svc, err := startService(ctx, i2cBus, cfg, logger)
	if err != nil {
		return err
	}
	if err := svc.Apply(ctx, cfg.Pins); err != nil {
		return err
	}
	if fs.Arg(0) == "watch" {
		return watchPins(ctx, svc, cfg, fs.Args()[1:], os.Stdout, logger)
	}
	out, err := execute(ctx, svc, fs.Args())
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Println(out)
	}
	return nil
}

// startService wires bus → owner → engine → service on a fresh loop.
func startService(ctx context.Context, bus drivers.I2C, cfg config.Config, logger *log.Logger) (*expander.Service, error) {
	loop := i2cio.NewLoop(0, logger)
	go loop.Run(ctx)
	own := i2cio.NewOwner(bus, loop, cfg.QueueLen, logger)
	own.Start(ctx)

	var pins []hil.Pin
	err := loop.Do(ctx, func() {
		dev := mcp23008.New(own.Device(cfg.Address, cfg.Timeout()))
		for _, p := range dev.Pins() {
			pins = append(pins, p)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "start driver")
	}
	logger.Debug("driver ready", "addr", cfg.Address, "timeout", cfg.Timeout())
	return expander.New(pins, loop, logger), nil
}

// execute runs one command and returns what should be printed.
func execute(ctx context.Context, svc *expander.Service, args []string) (string, error) {
	cmd := args[0]
	if cmd == "apply" {
		return "", nil
	}
	if len(args) < 2 {
		return "", &errcode.E{C: errcode.InvalidParams, Op: cmd, Msg: "missing pin"}
	}
	pin, err := strconv.Atoi(args[1])
	if err != nil {
		return "", &errcode.E{C: errcode.InvalidParams, Op: cmd, Msg: "pin must be a number", Err: err}
	}

	switch cmd {
	case "out":
		return "", svc.ConfigureOutput(ctx, pin)
	case "in":
		pull := "none"
		if len(args) > 2 {
			pull = args[2]
		}
		pc := config.PinConfig{Pin: pin, Mode: "input", Pull: pull}
		if err := pc.Validate(); err != nil {
			return "", err
		}
		return "", svc.ConfigureInput(ctx, pin, config.ParsePull(pull))
	case "set":
		return "", svc.Set(ctx, pin)
	case "clear":
		return "", svc.Clear(ctx, pin)
	case "toggle":
		return "", svc.Toggle(ctx, pin)
	case "read":
		v, err := svc.Read(ctx, pin)
		if err != nil {
			return "", err
		}
		if v {
			return "1", nil
		}
		return "0", nil
	default:
		return "", &errcode.E{C: errcode.InvalidParams, Op: cmd, Msg: "unknown command"}
	}
}

// watchPins prints "pin level" lines for every change until ctx ends.
func watchPins(ctx context.Context, svc *expander.Service, cfg config.Config, args []string, out io.Writer, logger *log.Logger) error {
	var pins []int
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 || n >= mcp23008.NumPins {
			return &errcode.E{C: errcode.InvalidPin, Op: "watch", Msg: a}
		}
		pins = append(pins, n)
	}
	if len(pins) == 0 {
		for _, pc := range cfg.Pins {
			if pc.Mode == "input" {
				pins = append(pins, pc.Pin)
			}
		}
	}
	if len(pins) == 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "watch", Msg: "no pins to watch"}
	}

	b := bus.NewBus(4 * len(pins))
	conn := b.NewConnection("mcp23008ctl")
	defer conn.Disconnect()
	sub := conn.Subscribe(watch.AllPins(cfg.Address))

	watch.New(svc, cfg.Address, pins, cfg.PollInterval(), logger).Start(ctx, b.NewConnection("watch"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-sub.Channel():
			e := m.Payload.(watch.Event)
			level := 0
			if e.Level {
				level = 1
			}
			fmt.Fprintf(out, "%d %d\n", e.Pin, level)
		}
	}
}
