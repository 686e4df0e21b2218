package sim

import (
	"io"
	"testing"

	"escpwm/core"
	"escpwm/protocol"
)

// rawHost writes frames with chosen sequence bytes, so a test can restart the sequence
type rawHost struct {
	t    *testing.T
	link io.ReadWriteCloser
	buf  [256]byte
}

// send delivers one command and waits for the firmware's reply bytes
func (h *rawHost) send(seq uint8, id uint16, args ...uint32) {
	h.t.Helper()
	out := protocol.NewScratchOutput()
	protocol.EncodeFrame(out, seq, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(id))
		for _, a := range args {
			protocol.EncodeVLQUint(o, a)
		}
	})
	if _, err := h.link.Write(out.Result()); err != nil {
		h.t.Fatalf("write %s: %v", protocol.MessageName(id), err)
	}
	// The firmware answers every frame; reading the reply means it has run
	if _, err := h.link.Read(h.buf[:]); err != nil {
		h.t.Fatalf("read reply to %s: %v", protocol.MessageName(id), err)
	}
}

func TestFirmwareHostResetStopsMotors(t *testing.T) {
	fw := NewFirmware()
	o := fw.Outputs
	for i := uint8(0); i < 4; i++ {
		o.ConfigBrushlessMotor(core.TimerHardware{Timer: 1, Channel: core.TimerChannel(i + 1), OutputEnable: true}, i, 400, 1000)
	}
	o.ConfigServo(core.TimerHardware{Timer: 2, Channel: core.TimerChannel1, OutputEnable: true}, 0, 50, 1500)

	link := fw.Start()
	t.Cleanup(func() {
		link.Close()
		fw.Stop()
		core.ResetGlobalRegistry()
	})
	h := &rawHost{t: t, link: link}
	motor := func(i uint8) uint32 { return fw.Driver.Compare(o.Motor(i).Register()) }

	h.send(0x10, protocol.MsgWriteMotor, 0, 1600)
	h.send(0x11, protocol.MsgWriteMotor, 1, 1700)
	h.send(0x12, protocol.MsgWriteServo, 0, 1200)
	if motor(0) != 1600 || motor(1) != 1700 {
		t.Fatalf("motors = %d %d before reset", motor(0), motor(1))
	}

	// Sequence back at 0x10 while the firmware expects 0x13: the host restarted
	h.send(0x10, protocol.MsgWriteMotor, 2, 1800)

	if o.MotorsEnabled() {
		t.Error("motors still enabled after host reset")
	}
	for i := uint8(0); i < 4; i++ {
		if got := motor(i); got != 0 {
			t.Errorf("motor %d compare = %d after host reset", i, got)
		}
	}
	if got := fw.Driver.Compare(o.Servo(0).Register()); got != 1200 {
		t.Errorf("servo compare = %d, servos are not stopped", got)
	}

	h.send(0x11, protocol.MsgWriteMotor, 0, 1500)
	if got := motor(0); got != 0 {
		t.Errorf("write before re-arm reached motor 0: %d", got)
	}

	h.send(0x12, protocol.MsgEnableMotors)
	h.send(0x13, protocol.MsgWriteMotor, 0, 1500)
	if got := motor(0); got != 1500 {
		t.Errorf("motor 0 = %d after re-arm, want 1500", got)
	}
}
