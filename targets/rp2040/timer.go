//go:build rp2040

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"

	"escpwm/core"
	"escpwm/targets/rp2040/pinmux"
	"escpwm/x/mathx"

	"tinygo.org/x/drivers/servo"
)

// RP2040 PWM block: 8 slices, 0x14 bytes apart
const (
	pwmBase        = 0x40050000
	pwmSliceStride = 0x14
	pwmCTROffset   = 0x08 // Slice counter
	numSlices      = pinmux.NumSlices
)

// sliceCounter returns the counter register of a PWM slice
func sliceCounter(slice core.TimerID) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(pwmBase + uint32(slice)*pwmSliceStride + pwmCTROffset)))
}

// sliceState tracks one PWM slice used as a timer
type sliceState struct {
	pwm    servo.PWM
	period uint16 // Port ticks per cycle
	top    uint32 // Hardware counter wrap
}

// channelState is the target of a compare register handle
type channelState struct {
	slice   core.TimerID
	channel uint8 // machine PWM channel
	running bool
	value   uint32 // Last compare in port ticks
}

// SliceTimerDriver implements core.TimerDriver on RP2040 PWM slices.
// Timer N is slice N. TimerChannel1 is output A, TimerChannel2 is output B.
// Compare values are in port ticks and scaled to the slice's Top().
type SliceTimerDriver struct {
	slices   [numSlices]sliceState
	channels [numSlices * 2]channelState
}

// NewSliceTimerDriver creates a driver over PWM0-PWM7
func NewSliceTimerDriver() *SliceTimerDriver {
	d := &SliceTimerDriver{}
	for i := range d.slices {
		d.slices[i].pwm = slicePeripheral(uint8(i))
	}
	return d
}

// slicePeripheral returns TinyGo's PWM group for a slice.
// servo.PWM abstracts over the unexported *pwmGroup type.
func slicePeripheral(slice uint8) servo.PWM {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

func (d *SliceTimerDriver) ResolveTimer(tim core.TimerID) bool {
	return tim < numSlices
}

// ConfigureTimeBase sets the slice period so one port tick lasts 1/mhz microseconds
func (d *SliceTimerDriver) ConfigureTimeBase(tim core.TimerID, period uint16, mhz uint8) error {
	if mhz == 0 {
		mhz = 1
	}
	s := &d.slices[tim]
	ns := uint64(period) * 1000 / uint64(mhz)
	if err := s.pwm.Configure(machine.PWMConfig{Period: ns}); err != nil {
		return err
	}
	s.period = period
	s.top = s.pwm.Top()
	return nil
}

func (d *SliceTimerDriver) channelIndex(tim core.TimerID, ch core.TimerChannel) (int, error) {
	if ch != core.TimerChannel1 && ch != core.TimerChannel2 {
		return 0, pinmux.ErrBadChannel
	}
	return int(tim)*2 + int(ch-core.TimerChannel1), nil
}

// ConfigurePin switches the GPIO to its PWM function.
// The descriptor's slice and A/B output must be the ones the pin drives.
func (d *SliceTimerDriver) ConfigurePin(hw core.TimerHardware) error {
	if err := pinmux.Check(hw); err != nil {
		return err
	}
	idx, err := d.channelIndex(hw.Timer, hw.Channel)
	if err != nil {
		return err
	}
	channel, err := d.slices[hw.Timer].pwm.Channel(machine.Pin(hw.Pin))
	if err != nil {
		return err
	}
	d.channels[idx] = channelState{slice: hw.Timer, channel: channel}
	return nil
}

func (d *SliceTimerDriver) ConfigureOutputCompare(tim core.TimerID, ch core.TimerChannel, value uint16) error {
	idx, err := d.channelIndex(tim, ch)
	if err != nil {
		return err
	}
	d.channels[idx].value = uint32(value)
	return nil
}

func (d *SliceTimerDriver) StartChannel(tim core.TimerID, ch core.TimerChannel) error {
	idx, err := d.channelIndex(tim, ch)
	if err != nil {
		return err
	}
	d.channels[idx].running = true
	d.apply(&d.channels[idx])
	return nil
}

// StopChannel holds the output low; compare writes are kept but not driven
func (d *SliceTimerDriver) StopChannel(tim core.TimerID, ch core.TimerChannel) error {
	idx, err := d.channelIndex(tim, ch)
	if err != nil {
		return err
	}
	c := &d.channels[idx]
	c.running = false
	d.slices[c.slice].pwm.Set(c.channel, 0)
	return nil
}

// StartTimer is a no-op: Configure enables the slice counter
func (d *SliceTimerDriver) StartTimer(tim core.TimerID) error {
	return nil
}

// CompareRegister returns the channel table index plus one
func (d *SliceTimerDriver) CompareRegister(tim core.TimerID, ch core.TimerChannel) core.CompareRegister {
	idx, err := d.channelIndex(tim, ch)
	if err != nil {
		return 0
	}
	return core.CompareRegister(idx + 1)
}

func (d *SliceTimerDriver) WriteCompare(reg core.CompareRegister, value uint32) {
	if reg == 0 || int(reg) > len(d.channels) {
		return
	}
	c := &d.channels[reg-1]
	c.value = value
	if c.running {
		d.apply(c)
	}
}

// apply scales a compare value from port ticks to hardware counts
func (d *SliceTimerDriver) apply(c *channelState) {
	s := &d.slices[c.slice]
	v := mathx.Min(c.value, uint32(s.period))
	s.pwm.Set(c.channel, mathx.ScaleU32(v, uint32(s.period), s.top))
}

// ForceOverflow restarts the slice's cycle by zeroing its counter
func (d *SliceTimerDriver) ForceOverflow(tim core.TimerID) {
	if tim >= numSlices {
		return
	}
	sliceCounter(tim).Set(0)
}
