// Package config holds the static motor and servo output configuration
// applied once at boot.
package config

import (
	"encoding/json"
	"strconv"

	"escpwm/core"
	"escpwm/errcode"
)

// Motor protocols
const (
	ProtocolPWM        = "pwm"
	ProtocolOneshot125 = "oneshot125"
)

// OutputConfig selects how board outputs are used.
// Motors and Servos list board descriptor indexes; list position is the
// motor/servo index.
type OutputConfig struct {
	MotorProtocol    string `json:"motor_protocol" yaml:"motor_protocol"`
	MotorPWMRate     uint16 `json:"motor_pwm_rate" yaml:"motor_pwm_rate"`
	IdlePulse        uint16 `json:"idle_pulse" yaml:"idle_pulse"`
	ServoPWMRate     uint16 `json:"servo_pwm_rate" yaml:"servo_pwm_rate"`
	ServoCenterPulse uint16 `json:"servo_center_pulse" yaml:"servo_center_pulse"`
	Motors           []int  `json:"motors" yaml:"motors"`
	Servos           []int  `json:"servos" yaml:"servos"`
}

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*OutputConfig, error) {
	var cfg OutputConfig

	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in missing values
func applyDefaults(cfg *OutputConfig) {
	if cfg.MotorProtocol == "" {
		cfg.MotorProtocol = ProtocolPWM
	}
	if cfg.MotorPWMRate == 0 {
		cfg.MotorPWMRate = 400
	}
	// Brushed ESCs idle at zero duty
	if cfg.IdlePulse == 0 && !cfg.Brushed() {
		cfg.IdlePulse = core.PulseMin
	}
	if cfg.ServoPWMRate == 0 {
		cfg.ServoPWMRate = 50
	}
	if cfg.ServoCenterPulse == 0 {
		cfg.ServoCenterPulse = 1500
	}
}

// DefaultQuadConfig returns a four-motor 400 Hz PWM configuration on descriptors 0-3
func DefaultQuadConfig() *OutputConfig {
	return &OutputConfig{
		MotorProtocol:    ProtocolPWM,
		MotorPWMRate:     400,
		IdlePulse:        1000,
		ServoPWMRate:     50,
		ServoCenterPulse: 1500,
		Motors:           []int{0, 1, 2, 3},
	}
}

// Brushed reports whether the motor outputs drive brushed motors
func (c *OutputConfig) Brushed() bool {
	return c.MotorProtocol == ProtocolPWM && core.IsMotorBrushed(c.MotorPWMRate)
}

func invalid(msg string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: msg}
}

// Validate checks the configuration against output capacity and the board's
// descriptor count, so Apply never overruns a table.
func (c *OutputConfig) Validate(descriptors int) error {
	switch c.MotorProtocol {
	case ProtocolPWM, ProtocolOneshot125:
	default:
		return invalid("unknown motor protocol " + strconv.Quote(c.MotorProtocol))
	}
	if len(c.Motors) > core.MaxMotors {
		return invalid(strconv.Itoa(len(c.Motors)) + " motors, max " + strconv.Itoa(core.MaxMotors))
	}
	if len(c.Servos) > core.MaxServos {
		return invalid(strconv.Itoa(len(c.Servos)) + " servos, max " + strconv.Itoa(core.MaxServos))
	}
	if n := len(c.Motors) + len(c.Servos); n > core.MaxOutputPorts {
		return invalid(strconv.Itoa(n) + " outputs, max " + strconv.Itoa(core.MaxOutputPorts))
	}

	used := make(map[int]bool)
	check := func(kind string, list []int) error {
		for i, d := range list {
			if d < 0 || d >= descriptors {
				return invalid(kind + " " + strconv.Itoa(i) + ": no output descriptor " + strconv.Itoa(d))
			}
			if used[d] {
				return invalid(kind + " " + strconv.Itoa(i) + ": output descriptor " + strconv.Itoa(d) + " already assigned")
			}
			used[d] = true
		}
		return nil
	}
	if err := check("motor", c.Motors); err != nil {
		return err
	}
	return check("servo", c.Servos)
}

// Apply validates the configuration and allocates every output on o.
// Motors are configured before servos.
func (c *OutputConfig) Apply(o *core.Outputs, board []core.TimerHardware) error {
	if err := c.Validate(len(board)); err != nil {
		return err
	}

	for i, d := range c.Motors {
		hw := board[d]
		idx := uint8(i)
		switch {
		case c.MotorProtocol == ProtocolOneshot125:
			o.ConfigOneshotMotor(hw, idx)
		case c.Brushed():
			o.ConfigBrushedMotor(hw, idx, c.MotorPWMRate, c.IdlePulse)
		default:
			o.ConfigBrushlessMotor(hw, idx, c.MotorPWMRate, c.IdlePulse)
		}
	}
	for i, d := range c.Servos {
		o.ConfigServo(board[d], uint8(i), c.ServoPWMRate, c.ServoCenterPulse)
	}
	return nil
}
