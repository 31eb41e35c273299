package mcp23008

// State of the I2C protocol with the MCP23008.
type State uint8

const (
	Idle State = iota

	SelectIoDir
	ReadIoDir
	SelectGpPu
	ReadGpPu
	SelectGpio
	ReadGpio
	SelectGpioToggle
	ReadGpioToggle
	SelectGpioRead
	ReadGpioRead

	// Write issued; release buffer and disable bus on completion.
	Done

	numStates
)

var stateNames = [numStates]string{
	"idle",
	"select_iodir", "read_iodir",
	"select_gppu", "read_gppu",
	"select_gpio", "read_gpio",
	"select_gpio_toggle", "read_gpio_toggle",
	"select_gpio_read", "read_gpio_read",
	"done",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return "invalid"
}

// Op is a logical pin operation.
type Op uint8

const (
	OpSetDirection Op = iota
	OpConfigurePullup
	OpSetPin
	OpTogglePin
	OpReadPin
)

func (o Op) String() string {
	switch o {
	case OpSetDirection:
		return "set_direction"
	case OpConfigurePullup:
		return "configure_pullup"
	case OpSetPin:
		return "set_pin"
	case OpTogglePin:
		return "toggle_pin"
	case OpReadPin:
		return "read_pin"
	default:
		return "unknown"
	}
}

// entry is the register and first state of an operation.
func (o Op) entry() (Register, State) {
	switch o {
	case OpSetDirection:
		return RegIoDir, SelectIoDir
	case OpConfigurePullup:
		return RegGpPu, SelectGpPu
	case OpSetPin:
		return RegGpio, SelectGpio
	case OpTogglePin:
		return RegGpio, SelectGpioToggle
	default:
		return RegGpio, SelectGpioRead
	}
}

// register returns the register a non-idle state is working on.
func (s State) register() Register {
	switch s {
	case SelectIoDir, ReadIoDir:
		return RegIoDir
	case SelectGpPu, ReadGpPu:
		return RegGpPu
	default:
		return RegGpio
	}
}

// event is what a bus completion reports.
type event uint8

const (
	evComplete event = iota
	evError
)

// action is the work the engine does when taking a transition.
type action uint8

const (
	actIgnore  action = iota // stray completion while idle
	actRead                  // 1-byte read of the selected register
	actSetBit                // old | bit or old &^ bit by operand, then write
	actFlipBit               // old ^ bit, then write
	actDecode                // extract pin bit, finish
	actFinish                // release, disable, resolve ok
	actAbort                 // release, disable, resolve bus error
)

// transition is the whole protocol table, keyed on (state, event).
func transition(s State, ev event) (State, action) {
	if s == Idle || s >= numStates {
		return Idle, actIgnore
	}
	if ev == evError {
		return Idle, actAbort
	}
	switch s {
	case SelectIoDir:
		return ReadIoDir, actRead
	case SelectGpPu:
		return ReadGpPu, actRead
	case SelectGpio:
		return ReadGpio, actRead
	case SelectGpioToggle:
		return ReadGpioToggle, actRead
	case SelectGpioRead:
		return ReadGpioRead, actRead
	case ReadIoDir, ReadGpPu, ReadGpio:
		return Done, actSetBit
	case ReadGpioToggle:
		return Done, actFlipBit
	case ReadGpioRead:
		return Idle, actDecode
	default: // Done
		return Idle, actFinish
	}
}
