// Package sim provides an in-memory timer driver for host builds and tests.
// It models enough of a timer peripheral to observe what the PWM output core
// does: time-base settings, channel state, compare registers and forced
// overflows.
package sim

import (
	"errors"
	"sort"

	"escpwm/core"
)

// MaxTimers is the number of timer instances the simulator resolves by default
const MaxTimers = 16

var (
	ErrUnknownTimer   = errors.New("unknown timer")
	ErrBadChannel     = errors.New("bad timer channel")
	ErrInjectedFailed = errors.New("injected failure")
)

// Channel is the simulated state of one output-compare channel
type Channel struct {
	Compare    uint32
	PWMMode    bool
	Running    bool
	Pin        core.GPIOPin
	AltFunc    uint8
	Configured bool
}

// Timer is the simulated state of one timer instance
type Timer struct {
	Period    uint16
	MHz       uint8
	Running   bool
	Overflows int
	Channels  [4]Channel
}

// TimerDriver implements core.TimerDriver in memory
type TimerDriver struct {
	timers      map[core.TimerID]*Timer
	unresolved  map[core.TimerID]bool
	failures    map[core.TimerID]bool
	overflowLog []core.TimerID
	writes      int
}

// NewTimerDriver creates a simulator resolving timers 0..MaxTimers-1
func NewTimerDriver() *TimerDriver {
	return &TimerDriver{
		timers:     make(map[core.TimerID]*Timer),
		unresolved: make(map[core.TimerID]bool),
		failures:   make(map[core.TimerID]bool),
	}
}

// SetUnresolved makes ResolveTimer fail for tim
func (d *TimerDriver) SetUnresolved(tim core.TimerID) {
	d.unresolved[tim] = true
}

// FailConfiguration makes the configuration steps for tim return an error
func (d *TimerDriver) FailConfiguration(tim core.TimerID) {
	d.failures[tim] = true
}

func (d *TimerDriver) timer(tim core.TimerID) *Timer {
	t, ok := d.timers[tim]
	if !ok {
		t = &Timer{}
		d.timers[tim] = t
	}
	return t
}

func (d *TimerDriver) channel(tim core.TimerID, ch core.TimerChannel) (*Channel, error) {
	if ch < core.TimerChannel1 || ch > core.TimerChannel4 {
		return nil, ErrBadChannel
	}
	return &d.timer(tim).Channels[ch-1], nil
}

func (d *TimerDriver) ResolveTimer(tim core.TimerID) bool {
	return int(tim) < MaxTimers && !d.unresolved[tim]
}

func (d *TimerDriver) ConfigureTimeBase(tim core.TimerID, period uint16, mhz uint8) error {
	if !d.ResolveTimer(tim) {
		return ErrUnknownTimer
	}
	if d.failures[tim] {
		return ErrInjectedFailed
	}
	t := d.timer(tim)
	t.Period = period
	t.MHz = mhz
	return nil
}

func (d *TimerDriver) ConfigurePin(hw core.TimerHardware) error {
	c, err := d.channel(hw.Timer, hw.Channel)
	if err != nil {
		return err
	}
	c.Pin = hw.Pin
	c.AltFunc = hw.AlternateFunction
	return nil
}

func (d *TimerDriver) ConfigureOutputCompare(tim core.TimerID, ch core.TimerChannel, value uint16) error {
	c, err := d.channel(tim, ch)
	if err != nil {
		return err
	}
	c.PWMMode = true
	c.Compare = uint32(value)
	c.Configured = true
	return nil
}

func (d *TimerDriver) StartChannel(tim core.TimerID, ch core.TimerChannel) error {
	c, err := d.channel(tim, ch)
	if err != nil {
		return err
	}
	c.Running = true
	return nil
}

func (d *TimerDriver) StopChannel(tim core.TimerID, ch core.TimerChannel) error {
	c, err := d.channel(tim, ch)
	if err != nil {
		return err
	}
	c.Running = false
	return nil
}

func (d *TimerDriver) StartTimer(tim core.TimerID) error {
	d.timer(tim).Running = true
	return nil
}

// CompareRegister encodes the timer in the high byte and the channel in the low byte.
// Zero is never issued, so a zero handle always means "no register".
func (d *TimerDriver) CompareRegister(tim core.TimerID, ch core.TimerChannel) core.CompareRegister {
	return core.CompareRegister(uintptr(tim)<<8 | uintptr(ch))
}

func (d *TimerDriver) decode(reg core.CompareRegister) (*Channel, bool) {
	tim := core.TimerID(reg >> 8)
	ch := core.TimerChannel(reg & 0xFF)
	c, err := d.channel(tim, ch)
	return c, err == nil
}

func (d *TimerDriver) WriteCompare(reg core.CompareRegister, value uint32) {
	c, ok := d.decode(reg)
	if !ok {
		return
	}
	c.Compare = value
	d.writes++
}

func (d *TimerDriver) ForceOverflow(tim core.TimerID) {
	d.timer(tim).Overflows++
	d.overflowLog = append(d.overflowLog, tim)
}

// Compare returns the compare value held by a register handle
func (d *TimerDriver) Compare(reg core.CompareRegister) uint32 {
	c, ok := d.decode(reg)
	if !ok {
		return 0
	}
	return c.Compare
}

// Timer returns a copy of a timer's state
func (d *TimerDriver) Timer(tim core.TimerID) Timer {
	if t, ok := d.timers[tim]; ok {
		return *t
	}
	return Timer{}
}

// Timers returns the IDs of all timers touched so far, ascending
func (d *TimerDriver) Timers() []core.TimerID {
	ids := make([]core.TimerID, 0, len(d.timers))
	for id := range d.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OverflowLog returns the timers forced to overflow, in order
func (d *TimerDriver) OverflowLog() []core.TimerID {
	return append([]core.TimerID(nil), d.overflowLog...)
}

// Writes returns the number of compare writes performed
func (d *TimerDriver) Writes() int {
	return d.writes
}

// ResetCounters clears the overflow log and the write counter
func (d *TimerDriver) ResetCounters() {
	d.overflowLog = nil
	d.writes = 0
	for _, t := range d.timers {
		t.Overflows = 0
	}
}
