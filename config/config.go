// Package config describes one expander on one bus and how its pins start.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"ioexpander-go/drivers/mcp23008"
	"ioexpander-go/errcode"
	"ioexpander-go/hil"
)

// Config is the on-disk / flag-level configuration.
type Config struct {
	Bus       string      `json:"bus"`                  // periph bus name or "usb[:serial]"; "" => first bus
	Address   uint16      `json:"address"`              // 7-bit address, 0x20..0x27
	TimeoutMS int         `json:"timeout_ms,omitempty"` // per bus step; 0 => none
	QueueLen  int         `json:"queue_len,omitempty"`  // worker queue depth
	PollMS    int         `json:"poll_ms,omitempty"`    // watch interval
	LogLevel  string      `json:"log_level,omitempty"`  // "debug","info","warn","error"
	Pins      []PinConfig `json:"pins,omitempty"`
}

// PinConfig sets up one pin at start.
type PinConfig struct {
	Pin     int    `json:"pin"`
	Mode    string `json:"mode"`              // "input" | "output"
	Pull    string `json:"pull,omitempty"`    // "up" | "none" | "down"
	Initial *bool  `json:"initial,omitempty"` // for outputs
}

// Default provides a usable single-chip configuration.
func Default() Config {
	return Config{
		Address:   mcp23008.AddressDefault,
		TimeoutMS: 50,
		QueueLen:  16,
		PollMS:    100,
		LogLevel:  "info",
	}
}

// Timeout returns the per-step bus timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// PollInterval returns the watch polling period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollMS) * time.Millisecond
}

// Validate checks ranges and pin entries.
func (c Config) Validate() error {
	if c.Address < mcp23008.AddressDefault || c.Address > mcp23008.AddressDefault+7 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "address must be 0x20..0x27"}
	}
	if c.TimeoutMS < 0 || c.QueueLen < 0 || c.PollMS < 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "timeout_ms, queue_len and poll_ms must be >= 0"}
	}
	seen := map[int]bool{}
	for _, p := range c.Pins {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Pin] {
			return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "pin listed twice"}
		}
		seen[p.Pin] = true
	}
	return nil
}

// Validate checks one pin entry.
func (p PinConfig) Validate() error {
	if p.Pin < 0 || p.Pin >= mcp23008.NumPins {
		return &errcode.E{C: errcode.InvalidPin, Op: "config"}
	}
	switch p.Mode {
	case "output":
	case "input":
		switch p.Pull {
		case "", "up", "none":
		case "down":
			return &errcode.E{C: errcode.Unsupported, Op: "config", Msg: "pull-down not available"}
		default:
			return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "invalid pull " + p.Pull}
		}
	default:
		return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "invalid mode " + p.Mode}
	}
	return nil
}

// ParsePull maps a pull name to an input mode.
func ParsePull(s string) hil.InputMode {
	switch s {
	case "up":
		return hil.PullUp
	case "down":
		return hil.PullDown
	default:
		return hil.PullNone
	}
}

// Decode fills a Config from JSON bytes, a JSON string or a JSON-like map,
// starting from Default.
func Decode(src any) (Config, error) {
	cfg := Default()
	if err := decodeJSON(src, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Load reads and validates a JSON config file.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Decode(b)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
