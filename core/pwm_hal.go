package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// TimerID identifies a hardware timer instance (a slice on RP2040, TIMx on STM32)
type TimerID uint8

// TimerChannel is the output-compare channel of a timer
type TimerChannel uint8

// Timer channel numbers. Boards with two channels per timer use 1 and 2.
const (
	TimerChannel1 TimerChannel = 1
	TimerChannel2 TimerChannel = 2
	TimerChannel3 TimerChannel = 3
	TimerChannel4 TimerChannel = 4
)

// CompareRegister is an opaque handle to a channel's compare register.
// Core code never interprets it; only the TimerDriver that issued it does.
type CompareRegister uintptr

// TimerHardware is the static descriptor of one timer-capable output pin
type TimerHardware struct {
	Timer             TimerID
	Channel           TimerChannel
	Pin               GPIOPin
	AlternateFunction uint8
	OutputEnable      bool // start the channel output at allocation (false = keep stopped)
}

// TimerDriver is the abstract timer/GPIO interface that the PWM output core uses.
// Platform-specific implementations handle actual hardware control.
type TimerDriver interface {
	// ResolveTimer reports whether the timer instance maps to live hardware
	ResolveTimer(tim TimerID) bool

	// ConfigureTimeBase sets the counter clock to mhz and the period to period ticks
	ConfigureTimeBase(tim TimerID, period uint16, mhz uint8) error

	// ConfigurePin switches the descriptor's pin to its timer alternate function
	ConfigurePin(hw TimerHardware) error

	// ConfigureOutputCompare puts a channel in PWM output-compare mode with an initial value
	ConfigureOutputCompare(tim TimerID, ch TimerChannel, value uint16) error

	// StartChannel enables the channel output
	StartChannel(tim TimerID, ch TimerChannel) error

	// StopChannel disables the channel output
	StopChannel(tim TimerID, ch TimerChannel) error

	// StartTimer starts the timer's base counter
	StartTimer(tim TimerID) error

	// CompareRegister returns the handle of a channel's compare register
	CompareRegister(tim TimerID, ch TimerChannel) CompareRegister

	// WriteCompare replaces the value held by a compare register.
	// Called from the control loop: must not block or allocate.
	WriteCompare(reg CompareRegister, value uint32)

	// ForceOverflow ends the timer's current period immediately
	ForceOverflow(tim TimerID)
}
