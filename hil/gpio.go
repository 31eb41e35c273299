package hil

// InputMode selects input biasing.
type InputMode uint8

const (
	PullNone InputMode = iota
	PullUp
	PullDown
)

func (m InputMode) String() string {
	switch m {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// InterruptMode selects the edge an interrupt fires on.
type InterruptMode uint8

const (
	RisingEdge InterruptMode = iota
	FallingEdge
	EitherEdge
)

// Result is delivered once per accepted pin operation.
// Value is meaningful only for reads.
type Result struct {
	Pin   uint8
	Value bool
	Err   error
}

// Callback resolves an outstanding operation.
type Callback func(Result)

// Pin is the digital pin capability presented to callers.
//
// Every method that touches hardware is asynchronous: a nil error means the
// request was accepted and the pin client will be called with the outcome.
type Pin interface {
	Number() int
	SetClient(cb Callback)

	Disable() error
	MakeOutput() error
	MakeInput(mode InputMode) error
	Read() error
	Toggle() error
	Set() error
	Clear() error

	EnableInterrupt(data int, mode InterruptMode) error
	DisableInterrupt() error
}
