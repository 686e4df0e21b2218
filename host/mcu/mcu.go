// Package mcu is the host-side client for the PWM output firmware
package mcu

import (
	"fmt"
	"io"
	"time"

	"escpwm/errcode"
	"escpwm/host/serial"
	"escpwm/protocol"
)

// Status is the pwm_outputs report
type Status struct {
	Allocated  int
	Configured uint32 // Bitmask over port slots
	Enabled    bool
}

// PortInfo is the pwm_port report for one slot
type PortInfo struct {
	Index      int
	Configured bool
	Timer      uint8
	Channel    uint8
	Period     uint16
	Strategy   uint8
}

// MCU is a connection to the flight controller firmware
type MCU struct {
	transport *protocol.HostTransport
	timeout   time.Duration
	connected bool
}

// NewMCU creates an MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{timeout: protocol.DefaultTimeout}
}

// SetTimeout sets how long each command waits for its ACK or response
func (m *MCU) SetTimeout(d time.Duration) {
	m.timeout = d
}

// Connect opens device with the default serial settings
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens a serial port with a custom config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.ConnectPort(port)
	return nil
}

// ConnectPort attaches to an already open link
func (m *MCU) ConnectPort(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.connected = true
}

// Close closes the connection
func (m *MCU) Close() error {
	m.connected = false
	if m.transport == nil {
		return nil
	}
	return m.transport.Close()
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}

func (m *MCU) send(id uint16, args ...uint32) error {
	if !m.connected {
		return &errcode.E{C: errcode.NotConnected, Op: protocol.MessageName(id)}
	}
	return m.transport.SendCommand(id, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	}, m.timeout)
}

// query sends a command and decodes the response's arguments into dst.
// Responses for which match returns false are skipped; they answer an
// earlier query that timed out.
func (m *MCU) query(id, respID uint16, args []uint32, match func() bool, dst ...*uint32) error {
	if !m.connected {
		return &errcode.E{C: errcode.NotConnected, Op: protocol.MessageName(id)}
	}
	m.transport.DiscardResponses()
	if err := m.send(id, args...); err != nil {
		return err
	}
	deadline := time.Now().Add(m.timeout)
	for {
		resp, err := m.transport.WaitResponse(respID, time.Until(deadline))
		if err != nil {
			return err
		}
		if err := protocol.DecodeArgs(&resp.Args, dst...); err != nil {
			return fmt.Errorf("decode %s: %w", protocol.MessageName(respID), err)
		}
		if match == nil || match() {
			return nil
		}
	}
}

// EnableMotors lets motor writes reach the outputs
func (m *MCU) EnableMotors() error {
	return m.send(protocol.MsgEnableMotors)
}

// DisableMotors drops motor writes until EnableMotors
func (m *MCU) DisableMotors() error {
	return m.send(protocol.MsgDisableMotors)
}

// WriteMotor sets a motor output
func (m *MCU) WriteMotor(index uint8, value uint16) error {
	return m.send(protocol.MsgWriteMotor, uint32(index), uint32(value))
}

// WriteServo sets a servo output
func (m *MCU) WriteServo(index uint8, value uint16) error {
	return m.send(protocol.MsgWriteServo, uint32(index), uint32(value))
}

// ShutdownMotors zeroes the first count motor outputs
func (m *MCU) ShutdownMotors(count uint8) error {
	return m.send(protocol.MsgShutdownMotors, uint32(count))
}

// CompleteOneshot ends the current Oneshot125 cycle on the first count motors
func (m *MCU) CompleteOneshot(count uint8) error {
	return m.send(protocol.MsgCompleteOneshot, uint32(count))
}

// IsMotorBrushed asks the firmware whether rate selects brushed motors
func (m *MCU) IsMotorBrushed(rate uint16) (bool, error) {
	var gotRate, brushed uint32
	match := func() bool { return gotRate == uint32(rate) }
	if err := m.query(protocol.MsgQueryBrushed, protocol.MsgBrushed, []uint32{uint32(rate)}, match, &gotRate, &brushed); err != nil {
		return false, err
	}
	return brushed != 0, nil
}

// Status reads the allocation and enable state
func (m *MCU) Status() (Status, error) {
	var allocated, configured, enabled uint32
	if err := m.query(protocol.MsgQueryOutputs, protocol.MsgOutputs, nil, nil, &allocated, &configured, &enabled); err != nil {
		return Status{}, err
	}
	return Status{Allocated: int(allocated), Configured: configured, Enabled: enabled != 0}, nil
}

// Port reads one port slot
func (m *MCU) Port(index uint8) (PortInfo, error) {
	var idx, configured, timer, channel, period, strategy uint32
	match := func() bool { return idx == uint32(index) }
	err := m.query(protocol.MsgQueryPort, protocol.MsgPort, []uint32{uint32(index)}, match,
		&idx, &configured, &timer, &channel, &period, &strategy)
	if err != nil {
		return PortInfo{}, err
	}
	return PortInfo{
		Index:      int(idx),
		Configured: configured != 0,
		Timer:      uint8(timer),
		Channel:    uint8(channel),
		Period:     uint16(period),
		Strategy:   uint8(strategy),
	}, nil
}
