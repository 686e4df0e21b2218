// PWM output ports for motor ESCs and servos
// Timer channels are allocated once at boot and written every control loop
package core

import (
	"escpwm/x/mathx"
)

// Output capacities. Static configuration must stay within these.
const (
	MaxMotors      = 12
	MaxServos      = 8
	MaxOutputPorts = max(MaxMotors, MaxServos)
)

// Clock divisors (timer MHz) per output protocol
const (
	PWMTimerMHz        = 1
	PWMBrushedTimerMHz = 24
	Oneshot125TimerMHz = 8
)

// Brushed/command range constants
const (
	PulseMin             = 1000
	PulseMax             = 2000
	BrushedRateThreshold = 500 // Hz; rates above this drive brushed motors
	oneshotPeriod        = 0xFFFF
)

// WriteStrategy selects how a commanded value becomes a compare value.
// It is bound once when the port is configured.
type WriteStrategy uint8

const (
	WriteStandard WriteStrategy = iota // compare = value (PWM, Oneshot125, servos)
	WriteBrushed                       // compare = (value-1000) * period / 1000
)

// String returns the strategy name used in debug output
func (s WriteStrategy) String() string {
	switch s {
	case WriteStandard:
		return "standard"
	case WriteBrushed:
		return "brushed"
	default:
		return "unknown"
	}
}

// Compare converts a commanded value into the compare value for a port with the given period
func (s WriteStrategy) Compare(value uint16, period uint16) uint32 {
	switch s {
	case WriteBrushed:
		v := mathx.Clamp(value, PulseMin, PulseMax)
		return uint32(v-PulseMin) * uint32(period) / (PulseMax - PulseMin)
	default:
		return uint32(value)
	}
}

// Port is one allocated timer channel
type Port struct {
	tim        TimerID
	ch         TimerChannel
	reg        CompareRegister
	period     uint16
	strategy   WriteStrategy
	configured bool
}

// Timer returns the owning timer
func (p *Port) Timer() TimerID { return p.tim }

// Channel returns the timer channel
func (p *Port) Channel() TimerChannel { return p.ch }

// Period returns the timer period in ticks
func (p *Port) Period() uint16 { return p.period }

// Strategy returns the bound write strategy
func (p *Port) Strategy() WriteStrategy { return p.strategy }

// Register returns the compare register handle (zero when unconfigured)
func (p *Port) Register() CompareRegister { return p.reg }

// Configured reports whether allocation completed hardware configuration.
// A port whose timer could not be resolved is returned unconfigured and
// every write to it is dropped.
func (p *Port) Configured() bool { return p.configured }

// Outputs owns the port table, the motor and servo tables and the enable gate.
// Create one with NewOutputs at boot and pass it to everything that writes outputs.
type Outputs struct {
	driver TimerDriver

	ports     [MaxOutputPorts]Port
	allocated uint8

	motors [MaxMotors]*Port
	servos [MaxServos]*Port

	motorsEnabled bool
}

// NewOutputs creates an empty output set driven by d. Motors start enabled.
func NewOutputs(d TimerDriver) *Outputs {
	if d == nil {
		panic("PWM timer driver not configured")
	}
	return &Outputs{
		driver:        d,
		motorsEnabled: true,
	}
}

// Allocate takes the next free port, configures its timer channel and returns it.
// If the timer cannot be resolved (or the driver rejects a configuration step)
// the port is still consumed but left unconfigured.
func (o *Outputs) Allocate(hw TimerHardware, mhz uint8, period uint16, value uint16) *Port {
	if int(o.allocated) >= MaxOutputPorts {
		panic("PWM output port capacity exceeded")
	}
	idx := o.allocated
	p := &o.ports[idx]
	o.allocated++

	d := o.driver
	if !d.ResolveTimer(hw.Timer) {
		DebugPrintln("[PWM] port " + utoa(uint32(idx)) + ": timer " + utoa(uint32(hw.Timer)) + " not resolved")
		RecordEvent(EvtPortDegraded, idx, uint32(hw.Timer), uint32(hw.Channel))
		return p
	}

	if err := o.configurePort(hw, mhz, period, value); err != nil {
		DebugPrintln("[PWM] port " + utoa(uint32(idx)) + ": " + err.Error())
		RecordEvent(EvtPortDegraded, idx, uint32(hw.Timer), uint32(hw.Channel))
		return p
	}

	p.tim = hw.Timer
	p.ch = hw.Channel
	p.reg = d.CompareRegister(hw.Timer, hw.Channel)
	p.period = period
	p.configured = true

	RecordEvent(EvtPortAllocated, idx, uint32(hw.Timer), uint32(period))
	return p
}

// configurePort runs the hardware side of allocation in peripheral order
func (o *Outputs) configurePort(hw TimerHardware, mhz uint8, period uint16, value uint16) error {
	d := o.driver
	if err := d.ConfigureTimeBase(hw.Timer, period, mhz); err != nil {
		return err
	}
	if err := d.ConfigurePin(hw); err != nil {
		return err
	}
	if err := d.ConfigureOutputCompare(hw.Timer, hw.Channel, value); err != nil {
		return err
	}
	var err error
	if hw.OutputEnable {
		err = d.StartChannel(hw.Timer, hw.Channel)
	} else {
		err = d.StopChannel(hw.Timer, hw.Channel)
	}
	if err != nil {
		return err
	}
	return d.StartTimer(hw.Timer)
}

// AllocatedPorts returns the number of consumed port slots
func (o *Outputs) AllocatedPorts() int {
	return int(o.allocated)
}

// PortAt returns the port in table slot i, or nil if the slot is free
func (o *Outputs) PortAt(i int) *Port {
	if i < 0 || i >= int(o.allocated) {
		return nil
	}
	return &o.ports[i]
}

// Motor returns the port bound to a motor index, or nil
func (o *Outputs) Motor(index uint8) *Port {
	if index >= MaxMotors {
		return nil
	}
	return o.motors[index]
}

// Servo returns the port bound to a servo index, or nil
func (o *Outputs) Servo(index uint8) *Port {
	if index >= MaxServos {
		return nil
	}
	return o.servos[index]
}

// write pushes a commanded value through the port's strategy
func (o *Outputs) write(p *Port, value uint16) {
	if !p.configured {
		return
	}
	o.driver.WriteCompare(p.reg, p.strategy.Compare(value, p.period))
}

// zero clears a port's compare register, bypassing its strategy
func (o *Outputs) zero(p *Port) {
	if p == nil || !p.configured {
		return
	}
	o.driver.WriteCompare(p.reg, 0)
}

// WriteMotor sets a motor output. Silently ignored when the index is out of
// range, nothing is bound to it, or motors are disabled.
func (o *Outputs) WriteMotor(index uint8, value uint16) {
	if index >= MaxMotors {
		return
	}
	p := o.motors[index]
	if p == nil || !o.motorsEnabled {
		return
	}
	o.write(p, value)
}

// WriteServo sets a servo output. Servos have no enable interlock.
func (o *Outputs) WriteServo(index uint8, value uint16) {
	if index >= MaxServos {
		return
	}
	p := o.servos[index]
	if p == nil || !p.configured {
		return
	}
	o.driver.WriteCompare(p.reg, WriteStandard.Compare(value, p.period))
}

// ShutdownPulsesForAllMotors zeroes the compare register of the first motorCount motors.
// A zero compare value stops the output pulsing once the timer overflows.
func (o *Outputs) ShutdownPulsesForAllMotors(motorCount uint8) {
	n := mathx.Min(motorCount, MaxMotors)
	for i := uint8(0); i < n; i++ {
		o.zero(o.motors[i])
	}
	RecordEvent(EvtMotorsShutdown, n, 0, 0)
}

// EnableMotors lets WriteMotor reach the hardware again
func (o *Outputs) EnableMotors() {
	if !o.motorsEnabled {
		RecordEvent(EvtMotorsEnabled, 0, 0, 0)
	}
	o.motorsEnabled = true
}

// DisableMotors makes every WriteMotor a no-op until EnableMotors
func (o *Outputs) DisableMotors() {
	if o.motorsEnabled {
		RecordEvent(EvtMotorsDisabled, 0, 0, 0)
	}
	o.motorsEnabled = false
}

// MotorsEnabled reports the enable gate state
func (o *Outputs) MotorsEnabled() bool {
	return o.motorsEnabled
}

// CompleteOneshotMotorUpdate ends the current Oneshot125 cycle on the first motorCount motors.
//
// Every timer driving those motors is forced to overflow so the next pulse
// starts now instead of when the free-running counter wraps. Motors sharing a
// timer are expected to be contiguous: the overflow is issued each time the
// timer changes from the previous motor's, so a timer that reappears later in
// the order is overflowed again. All compare registers are then zeroed so no
// stale pulse repeats if the next loop iteration is late.
func (o *Outputs) CompleteOneshotMotorUpdate(motorCount uint8) {
	n := mathx.Min(motorCount, MaxMotors)

	var last TimerID
	haveLast := false
	for i := uint8(0); i < n; i++ {
		p := o.motors[i]
		if p == nil || !p.configured {
			continue
		}
		if !haveLast || p.tim != last {
			last = p.tim
			haveLast = true
			o.driver.ForceOverflow(p.tim)
			RecordEvent(EvtForceOverflow, i, uint32(p.tim), 0)
		}
	}

	for i := uint8(0); i < n; i++ {
		o.zero(o.motors[i])
	}
}

// IsMotorBrushed reports whether a motor PWM rate implies brushed motors
func IsMotorBrushed(motorPWMRate uint16) bool {
	return motorPWMRate > BrushedRateThreshold
}
