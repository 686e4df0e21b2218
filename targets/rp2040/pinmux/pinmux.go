// Package pinmux maps RP2040 GPIOs onto PWM slices and their A/B outputs
package pinmux

import (
	"errors"

	"escpwm/core"
)

// NumSlices is the number of PWM slices; GPIOs wrap onto them every 16 pins
const NumSlices = 8

var (
	ErrSliceMismatch   = errors.New("pin is not on this PWM slice")
	ErrChannelMismatch = errors.New("pin drives the other output of its slice")
	ErrBadChannel      = errors.New("RP2040 slices have channels 1 (A) and 2 (B)")
)

// Slice returns the PWM slice a GPIO belongs to
func Slice(pin core.GPIOPin) core.TimerID {
	return core.TimerID((pin >> 1) & 0x7)
}

// Channel returns the slice output a GPIO drives: A on even pins, B on odd
func Channel(pin core.GPIOPin) core.TimerChannel {
	if pin&1 == 0 {
		return core.TimerChannel1
	}
	return core.TimerChannel2
}

// Check reports whether a descriptor's timer and channel are the ones its pin drives
func Check(hw core.TimerHardware) error {
	if hw.Channel != core.TimerChannel1 && hw.Channel != core.TimerChannel2 {
		return ErrBadChannel
	}
	if Slice(hw.Pin) != hw.Timer {
		return ErrSliceMismatch
	}
	if Channel(hw.Pin) != hw.Channel {
		return ErrChannelMismatch
	}
	return nil
}
