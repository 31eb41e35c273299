// Package watch polls input pins and publishes their levels on the bus.
package watch

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"ioexpander-go/bus"
	"ioexpander-go/services/i2cio"
)

// TopicConfig carries {"interval_ms": n} updates for a running watcher.
var TopicConfig = bus.Topic{"config", "watch"}

// PinTopic is where levels of pin on the chip at addr are published.
func PinTopic(addr uint16, pin int) bus.Topic {
	return bus.Topic{"mcp23008", i2cio.HexAddr(addr), "pin", strconv.Itoa(pin)}
}

// AllPins matches every pin topic of the chip at addr.
func AllPins(addr uint16) bus.Topic {
	return bus.Topic{"mcp23008", i2cio.HexAddr(addr), "pin", bus.One}
}

// Reader is the part of expander.Service the watcher needs.
type Reader interface {
	Read(ctx context.Context, pin int) (bool, error)
}

// Event is the retained payload on a pin topic.
type Event struct {
	Pin   int
	Level bool
	At    time.Time
}

type Service struct {
	r        Reader
	addr     uint16
	pins     []int
	interval time.Duration
	log      *log.Logger

	last   map[int]bool
	failed map[int]bool
}

// New watches pins every interval (100ms when zero).
func New(r Reader, addr uint16, pins []int, interval time.Duration, logger *log.Logger) *Service {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		r:        r,
		addr:     addr,
		pins:     append([]int(nil), pins...),
		interval: interval,
		log:      logger.WithPrefix("watch"),
		last:     make(map[int]bool),
		failed:   make(map[int]bool),
	}
}

// Start runs the watcher until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.Run(ctx, conn)
}

// Run polls immediately, then on every tick, and returns when ctx ends.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(TopicConfig)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	s.poll(ctx, conn)
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("stopping")
			return
		case <-tick.C:
			s.poll(ctx, conn)
		case msg := <-cfgSub.Channel():
			if d, ok := intervalOf(msg.Payload); ok {
				s.interval = d
				tick.Reset(d)
				s.log.Info("interval changed", "interval", d)
			}
		}
	}
}

func intervalOf(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	var d time.Duration
	switch v := m["interval_ms"].(type) {
	case float64:
		d = time.Duration(v * float64(time.Millisecond))
	case int:
		d = time.Duration(v) * time.Millisecond
	}
	// Sub-nanosecond values truncate to zero; Ticker.Reset needs d > 0.
	return d, d > 0
}

// poll reads every pin and publishes those whose level changed. A read error
// is logged once until the pin reads again.
func (s *Service) poll(ctx context.Context, conn *bus.Connection) {
	for _, pin := range s.pins {
		level, err := s.r.Read(ctx, pin)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !s.failed[pin] {
				s.log.Warn("read failed", "pin", pin, "err", err)
				s.failed[pin] = true
			}
			continue
		}
		if s.failed[pin] {
			s.log.Info("read recovered", "pin", pin)
			delete(s.failed, pin)
		}
		if prev, seen := s.last[pin]; seen && prev == level {
			continue
		}
		s.last[pin] = level
		conn.Publish(&bus.Message{
			Topic:    PinTopic(s.addr, pin),
			Payload:  Event{Pin: pin, Level: level, At: time.Now()},
			Retained: true,
		})
	}
}
