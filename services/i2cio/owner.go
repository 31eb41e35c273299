package i2cio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"tinygo.org/x/drivers"
)

const defaultQueueLen = 16

// request posted to the per-bus worker
type request struct {
	dev *Device
	seq uint32
	w   []byte // private copy of the bytes to send
	n   int    // bytes to read
}

// Owner hosts a single worker goroutine for one bus. All transactions on the
// bus go through it, in order.
type Owner struct {
	bus  drivers.I2C
	loop *Loop
	log  *log.Logger
	reqs chan request

	mu  sync.Mutex
	ctx context.Context
}

// NewOwner binds a blocking bus to a completion loop. queueLen bounds the
// number of transactions waiting for the worker.
func NewOwner(bus drivers.I2C, loop *Loop, queueLen int, logger *log.Logger) *Owner {
	if queueLen <= 0 {
		queueLen = defaultQueueLen
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Owner{
		bus:  bus,
		loop: loop,
		log:  logger,
		reqs: make(chan request, queueLen),
		ctx:  context.Background(),
	}
}

// Start launches the worker. It stops when ctx is done.
func (o *Owner) Start(ctx context.Context) {
	o.mu.Lock()
	o.ctx = ctx
	o.mu.Unlock()
	go o.run(ctx)
}

func (o *Owner) context() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctx
}

func (o *Owner) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-o.reqs:
			var r []byte
			if req.n > 0 {
				// Worker-owned scratch; the lent buffer is only touched on the loop.
				r = make([]byte, req.n)
			}
			err := o.bus.Tx(req.dev.addr, req.w, r)
			if err != nil {
				o.log.Warn("i2c transaction failed", "addr", HexAddr(req.dev.addr), "err", err)
			}
			dev, seq := req.dev, req.seq
			if serr := o.loop.Send(ctx, func() { dev.complete(seq, r, err) }); serr != nil {
				return
			}
		}
	}
}

// Device returns a split-phase handle for the device at addr. timeout bounds
// each step; zero means wait forever.
func (o *Owner) Device(addr uint16, timeout time.Duration) *Device {
	return &Device{
		owner:   o,
		addr:    addr,
		timeout: timeout,
		log:     o.log.With("addr", HexAddr(addr)),
	}
}

// HexAddr formats a bus address for logs and topics, e.g. "0x20" or
// "0x3ff" for a 10-bit address.
func HexAddr(a uint16) string { return fmt.Sprintf("0x%02x", a) }
