// Package i2cio turns a blocking tinygo drivers.I2C into the split-phase
// hil.I2CDevice contract.
//
// A Loop is the completion context: driver calls and bus completions are all
// run on its goroutine, one at a time. An Owner hosts the single worker that
// performs transactions on one bus.
package i2cio

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

const defaultLoopDepth = 32

// Loop runs posted functions in order on one goroutine.
type Loop struct {
	q     chan func()
	drops uint32
	log   *log.Logger
}

func NewLoop(depth int, logger *log.Logger) *Loop {
	if depth <= 0 {
		depth = defaultLoopDepth
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{q: make(chan func(), depth), log: logger}
}

// Run executes posted functions until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.q:
			fn()
		}
	}
}

// Post enqueues fn without blocking. False means the queue was full and fn
// was dropped.
func (l *Loop) Post(fn func()) bool {
	select {
	case l.q <- fn:
		return true
	default:
		n := atomic.AddUint32(&l.drops, 1)
		l.log.Warn("loop queue full, dropped call", "drops", n)
		return false
	}
}

// Send enqueues fn, waiting for room until ctx is done.
func (l *Loop) Send(ctx context.Context, fn func()) error {
	select {
	case l.q <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Send(ctx, func() { fn(); close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Drops() uint32 { return atomic.LoadUint32(&l.drops) }
