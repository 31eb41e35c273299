package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"ioexpander-go/config"
	"ioexpander-go/drivers/mcp23008"
	"ioexpander-go/drivers/mcp23008/sim"
	"ioexpander-go/errcode"
)

func TestExecuteAgainstSimulator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := config.Default()
	chip := sim.New(cfg.Address)
	svc, err := startService(ctx, chip, cfg, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		args []string
		out  string
	}{
		{[]string{"out", "4"}, ""},
		{[]string{"set", "4"}, ""},
		{[]string{"read", "4"}, "1"},
		{[]string{"toggle", "4"}, ""},
		{[]string{"read", "4"}, "0"},
		{[]string{"in", "1", "up"}, ""},
		{[]string{"read", "1"}, "1"},
		{[]string{"clear", "4"}, ""},
		{[]string{"apply"}, ""},
	}
	for _, s := range steps {
		out, err := execute(ctx, svc, s.args)
		if err != nil {
			t.Fatalf("%v: %v", s.args, err)
		}
		if out != s.out {
			t.Fatalf("%v: printed %q want %q", s.args, out, s.out)
		}
	}
	if chip.Register(mcp23008.RegIoDir) != 0xEF || chip.Register(mcp23008.RegGpPu) != 0x02 {
		t.Fatalf("IODIR=%#02x GPPU=%#02x", chip.Register(mcp23008.RegIoDir), chip.Register(mcp23008.RegGpPu))
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cfg := config.Default()
	svc, err := startService(ctx, sim.New(cfg.Address), cfg, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		args []string
		code errcode.Code
	}{
		{[]string{"set"}, errcode.InvalidParams},
		{[]string{"set", "x"}, errcode.InvalidParams},
		{[]string{"blink", "1"}, errcode.InvalidParams},
		{[]string{"set", "9"}, errcode.InvalidPin},
		{[]string{"in", "2", "down"}, errcode.Unsupported},
	}
	for _, c := range cases {
		if _, err := execute(ctx, svc, c.args); !errors.Is(err, c.code) {
			t.Fatalf("%v: want %s, got %v", c.args, c.code, err)
		}
	}
}

func TestRunWithSimulator(t *testing.T) {
	if err := run([]string{"-sim", "-log", "error", "out", "0"}, log.New(io.Discard)); err != nil {
		t.Fatal(err)
	}
	if err := run([]string{"-sim"}, log.New(io.Discard)); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("missing command: %v", err)
	}
}

func TestWatchPrintsChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := config.Default()
	cfg.PollMS = 5
	chip := sim.New(cfg.Address)
	svc, err := startService(ctx, chip, cfg, log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	wctx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- watchPins(wctx, svc, cfg, []string{"6"}, pw, log.New(io.Discard))
		pw.Close()
	}()

	buf := make([]byte, 16)
	readLine := func() string {
		t.Helper()
		n, err := pr.Read(buf)
		if err != nil {
			t.Fatal(err)
		}
		return string(buf[:n])
	}
	if got := readLine(); got != "6 0\n" {
		t.Fatalf("first line %q", got)
	}
	chip.Drive(6, true)
	if got := readLine(); got != "6 1\n" {
		t.Fatalf("change line %q", got)
	}
	stop()
	go io.Copy(io.Discard, pr)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if err := watchPins(ctx, svc, cfg, []string{"8"}, io.Discard, log.New(io.Discard)); !errors.Is(err, errcode.InvalidPin) {
		t.Fatalf("pin 8: %v", err)
	}
	if err := watchPins(ctx, svc, cfg, nil, io.Discard, log.New(io.Discard)); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("no pins: %v", err)
	}
}
