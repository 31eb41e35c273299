package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ioexpander-go/errcode"
	"ioexpander-go/hil"
)

func TestDecodeSources(t *testing.T) {
	for name, in := range map[string]any{
		"bytes":  []byte(`{"bus":"/dev/i2c-1","address":33,"pins":[{"pin":2,"mode":"output"}]}`),
		"string": `{"bus":"/dev/i2c-1","address":33,"pins":[{"pin":2,"mode":"output"}]}`,
		"map": map[string]any{
			"bus":     "/dev/i2c-1",
			"address": 33,
			"pins":    []any{map[string]any{"pin": 2, "mode": "output"}},
		},
	} {
		cfg, err := Decode(in)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Bus != "/dev/i2c-1" || cfg.Address != 0x21 || len(cfg.Pins) != 1 {
			t.Fatalf("%s: %+v", name, cfg)
		}
		// Unset fields keep their defaults.
		if cfg.TimeoutMS != Default().TimeoutMS || cfg.LogLevel != "info" {
			t.Fatalf("%s: defaults lost: %+v", name, cfg)
		}
	}
	if _, err := Decode(`{"address":`); err == nil {
		t.Fatal("truncated JSON should fail")
	}
}

func TestValidate(t *testing.T) {
	ok := Default()
	ok.Pins = []PinConfig{{Pin: 0, Mode: "output"}, {Pin: 7, Mode: "input", Pull: "up"}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Config)
		code errcode.Code
	}{
		{"address_low", func(c *Config) { c.Address = 0x1F }, errcode.InvalidParams},
		{"address_high", func(c *Config) { c.Address = 0x28 }, errcode.InvalidParams},
		{"negative_timeout", func(c *Config) { c.TimeoutMS = -1 }, errcode.InvalidParams},
		{"negative_poll", func(c *Config) { c.PollMS = -1 }, errcode.InvalidParams},
		{"pin_range", func(c *Config) { c.Pins = []PinConfig{{Pin: 8, Mode: "output"}} }, errcode.InvalidPin},
		{"bad_mode", func(c *Config) { c.Pins = []PinConfig{{Pin: 1, Mode: "analog"}} }, errcode.InvalidParams},
		{"bad_pull", func(c *Config) { c.Pins = []PinConfig{{Pin: 1, Mode: "input", Pull: "sideways"}} }, errcode.InvalidParams},
		{"pull_down", func(c *Config) { c.Pins = []PinConfig{{Pin: 1, Mode: "input", Pull: "down"}} }, errcode.Unsupported},
		{"duplicate", func(c *Config) {
			c.Pins = []PinConfig{{Pin: 1, Mode: "output"}, {Pin: 1, Mode: "input"}}
		}, errcode.InvalidParams},
	}
	for _, c := range cases {
		cfg := Default()
		c.mut(&cfg)
		if err := cfg.Validate(); !errors.Is(err, c.code) {
			t.Fatalf("%s: want %s, got %v", c.name, c.code, err)
		}
	}
}

func TestParsePull(t *testing.T) {
	if ParsePull("up") != hil.PullUp || ParsePull("down") != hil.PullDown ||
		ParsePull("none") != hil.PullNone || ParsePull("") != hil.PullNone {
		t.Fatal("ParsePull mapping wrong")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	os.WriteFile(good, []byte(`{"address":39,"timeout_ms":10}`), 0o644)
	cfg, err := Load(good)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Address != 0x27 || cfg.Timeout().Milliseconds() != 10 {
		t.Fatalf("%+v", cfg)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"address":64}`), 0o644)
	if _, err := Load(bad); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("want invalid params, got %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want not-exist, got %v", err)
	}
}
