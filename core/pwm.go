// PWM output commands
// Exposes the motor and servo outputs to host tooling over the protocol link
package core

import (
	"escpwm/protocol"
)

// pwmCommands binds the command handlers to one output set
type pwmCommands struct {
	outputs *Outputs
}

// InitPWMOutputCommands registers the PWM output commands and responses.
// Registration follows protocol.Messages so IDs match the host's table.
func InitPWMOutputCommands(o *Outputs) {
	c := &pwmCommands{outputs: o}

	handlers := map[uint16]CommandHandler{
		protocol.MsgEnableMotors:    c.handleEnableMotors,
		protocol.MsgDisableMotors:   c.handleDisableMotors,
		protocol.MsgWriteMotor:      c.handleWriteMotor,
		protocol.MsgWriteServo:      c.handleWriteServo,
		protocol.MsgShutdownMotors:  c.handleShutdownMotors,
		protocol.MsgCompleteOneshot: c.handleCompleteOneshot,
		protocol.MsgQueryBrushed:    c.handleQueryBrushed,
		protocol.MsgQueryOutputs:    c.handleQueryOutputs,
		protocol.MsgQueryPort:       c.handleQueryPort,
	}

	for i, m := range protocol.Messages {
		var id uint16
		if m.Response {
			id = RegisterResponse(m.Name, m.Format)
		} else {
			id = RegisterCommand(m.Name, m.Format, handlers[uint16(i)])
		}
		if id != uint16(i) {
			// Something registered before us; the host would address the wrong handler
			panic("PWM command " + m.Name + " registered as " + utoa(uint32(id)) + ", want " + itoa(i))
		}
	}
}

func (c *pwmCommands) handleEnableMotors(data *[]byte) error {
	c.outputs.EnableMotors()
	return nil
}

func (c *pwmCommands) handleDisableMotors(data *[]byte) error {
	c.outputs.DisableMotors()
	return nil
}

// handleWriteMotor: pwm_write_motor index=%c value=%hu
func (c *pwmCommands) handleWriteMotor(data *[]byte) error {
	var index, value uint32
	if err := protocol.DecodeArgs(data, &index, &value); err != nil {
		return err
	}
	if index > 0xFF || value > 0xFFFF {
		return nil
	}
	c.outputs.WriteMotor(uint8(index), uint16(value))
	return nil
}

// handleWriteServo: pwm_write_servo index=%c value=%hu
func (c *pwmCommands) handleWriteServo(data *[]byte) error {
	var index, value uint32
	if err := protocol.DecodeArgs(data, &index, &value); err != nil {
		return err
	}
	if index > 0xFF || value > 0xFFFF {
		return nil
	}
	c.outputs.WriteServo(uint8(index), uint16(value))
	return nil
}

func (c *pwmCommands) handleShutdownMotors(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	c.outputs.ShutdownPulsesForAllMotors(countArg(count))
	return nil
}

func (c *pwmCommands) handleCompleteOneshot(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	c.outputs.CompleteOneshotMotorUpdate(countArg(count))
	return nil
}

// handleQueryBrushed answers pwm_brushed rate=%hu brushed=%c
func (c *pwmCommands) handleQueryBrushed(data *[]byte) error {
	arg, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rate := rateArg(arg)
	brushed := IsMotorBrushed(rate)
	SendResponse("pwm_brushed", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(rate))
		protocol.EncodeVLQUint(output, boolArg(brushed))
	})
	return nil
}

// handleQueryOutputs answers pwm_outputs allocated=%c configured=%u enabled=%c.
// configured is a bitmask over port slots.
func (c *pwmCommands) handleQueryOutputs(data *[]byte) error {
	var mask uint32
	n := c.outputs.AllocatedPorts()
	for i := 0; i < n; i++ {
		if c.outputs.PortAt(i).Configured() {
			mask |= 1 << uint(i)
		}
	}
	SendResponse("pwm_outputs", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(n))
		protocol.EncodeVLQUint(output, mask)
		protocol.EncodeVLQUint(output, boolArg(c.outputs.MotorsEnabled()))
	})
	return nil
}

// handleQueryPort answers pwm_port for one slot. A free slot reports configured=0 and zeros.
func (c *pwmCommands) handleQueryPort(data *[]byte) error {
	idx, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	var p *Port
	if idx < MaxOutputPorts {
		p = c.outputs.PortAt(int(idx))
	}
	SendResponse("pwm_port", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, idx)
		if p == nil {
			for i := 0; i < 5; i++ {
				protocol.EncodeVLQUint(output, 0)
			}
			return
		}
		protocol.EncodeVLQUint(output, boolArg(p.Configured()))
		protocol.EncodeVLQUint(output, uint32(p.Timer()))
		protocol.EncodeVLQUint(output, uint32(p.Channel()))
		protocol.EncodeVLQUint(output, uint32(p.Period()))
		protocol.EncodeVLQUint(output, uint32(p.Strategy()))
	})
	return nil
}

// countArg saturates a motor count argument to the %c range
func countArg(v uint32) uint8 {
	if v > 0xFF {
		return 0xFF
	}
	return uint8(v)
}

// rateArg saturates a rate argument to the %hu range
func rateArg(v uint32) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
