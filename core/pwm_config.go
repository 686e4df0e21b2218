package core

// ConfigBrushedMotor binds a motor index to a brushed-ESC output.
// The period is derived from the brushed timer clock and the motor PWM rate.
func (o *Outputs) ConfigBrushedMotor(hw TimerHardware, motorIndex uint8, motorPWMRate uint16, idlePulse uint16) {
	hz := uint32(PWMBrushedTimerMHz) * 1000000
	o.bindMotor(motorIndex, o.Allocate(hw, PWMBrushedTimerMHz, periodFor(hz, motorPWMRate), idlePulse), WriteBrushed)
}

// ConfigBrushlessMotor binds a motor index to a standard PWM ESC output
func (o *Outputs) ConfigBrushlessMotor(hw TimerHardware, motorIndex uint8, motorPWMRate uint16, idlePulse uint16) {
	hz := uint32(PWMTimerMHz) * 1000000
	o.bindMotor(motorIndex, o.Allocate(hw, PWMTimerMHz, periodFor(hz, motorPWMRate), idlePulse), WriteStandard)
}

// ConfigOneshotMotor binds a motor index to a Oneshot125 output.
// The period is left at its maximum; pulses are ended by CompleteOneshotMotorUpdate.
func (o *Outputs) ConfigOneshotMotor(hw TimerHardware, motorIndex uint8) {
	o.bindMotor(motorIndex, o.Allocate(hw, Oneshot125TimerMHz, oneshotPeriod, 0), WriteStandard)
}

// ConfigServo binds a servo index to a standard PWM output
func (o *Outputs) ConfigServo(hw TimerHardware, servoIndex uint8, servoPWMRate uint16, servoCenterPulse uint16) {
	p := o.Allocate(hw, PWMTimerMHz, periodFor(PWMTimerMHz*1000000, servoPWMRate), servoCenterPulse)
	if servoIndex >= MaxServos {
		return
	}
	p.strategy = WriteStandard
	o.servos[servoIndex] = p
}

// bindMotor records a freshly allocated port in the motor table
func (o *Outputs) bindMotor(motorIndex uint8, p *Port, s WriteStrategy) {
	if motorIndex >= MaxMotors {
		return
	}
	p.strategy = s
	o.motors[motorIndex] = p
}

// periodFor returns the timer period in ticks for a clock of hz and an update rate.
// Periods that do not fit the 16-bit counter saturate at 0xFFFF.
func periodFor(hz uint32, rate uint16) uint16 {
	if rate == 0 {
		return oneshotPeriod
	}
	ticks := hz / uint32(rate)
	if ticks > 0xFFFF {
		return 0xFFFF
	}
	return uint16(ticks)
}
