package mcu

import (
	"io"
	"testing"
	"time"

	"escpwm/core"
	"escpwm/errcode"
	"escpwm/protocol"
	"escpwm/sim"
)

// startFirmware runs the command loop against a simulated board and returns a connected client
func startFirmware(t *testing.T) (*MCU, *core.Outputs, *sim.TimerDriver) {
	t.Helper()

	fw := sim.NewFirmware()
	o := fw.Outputs
	for i := uint8(0); i < 4; i++ {
		o.ConfigBrushlessMotor(core.TimerHardware{Timer: 1, Channel: core.TimerChannel(i + 1), OutputEnable: true}, i, 400, 1000)
	}
	o.ConfigServo(core.TimerHardware{Timer: 2, Channel: core.TimerChannel1, OutputEnable: true}, 0, 50, 1500)

	m := NewMCU()
	m.SetTimeout(time.Second)
	m.ConnectPort(fw.Start())
	t.Cleanup(func() {
		m.Close()
		fw.Stop()
		core.ResetGlobalRegistry()
	})
	return m, o, fw.Driver
}

func TestMCUWrites(t *testing.T) {
	m, o, d := startFirmware(t)

	if err := m.WriteMotor(2, 1600); err != nil {
		t.Fatalf("WriteMotor: %v", err)
	}
	if err := m.WriteServo(0, 1200); err != nil {
		t.Fatalf("WriteServo: %v", err)
	}
	if got := d.Compare(o.Motor(2).Register()); got != 1600 {
		t.Errorf("motor 2 compare = %d", got)
	}
	if got := d.Compare(o.Servo(0).Register()); got != 1200 {
		t.Errorf("servo 0 compare = %d", got)
	}

	if err := m.DisableMotors(); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteMotor(2, 1900); err != nil {
		t.Fatal(err)
	}
	if got := d.Compare(o.Motor(2).Register()); got != 1600 {
		t.Errorf("disabled write changed compare to %d", got)
	}

	if err := m.ShutdownMotors(4); err != nil {
		t.Fatal(err)
	}
	for i := uint8(0); i < 4; i++ {
		if got := d.Compare(o.Motor(i).Register()); got != 0 {
			t.Errorf("motor %d compare = %d after shutdown", i, got)
		}
	}

	if err := m.CompleteOneshot(4); err != nil {
		t.Fatal(err)
	}
	if log := d.OverflowLog(); len(log) != 1 || log[0] != 1 {
		t.Errorf("overflow log = %v", log)
	}
}

func TestMCUQueries(t *testing.T) {
	m, _, _ := startFirmware(t)

	brushed, err := m.IsMotorBrushed(8000)
	if err != nil || !brushed {
		t.Errorf("IsMotorBrushed(8000) = %v, %v", brushed, err)
	}
	brushed, err = m.IsMotorBrushed(400)
	if err != nil || brushed {
		t.Errorf("IsMotorBrushed(400) = %v, %v", brushed, err)
	}

	st, err := m.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Allocated != 5 || st.Configured != 0x1F || !st.Enabled {
		t.Errorf("status = %+v", st)
	}

	p, err := m.Port(4)
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if p.Index != 4 || !p.Configured || p.Timer != 2 || p.Period != 20000 || p.Strategy != uint8(core.WriteStandard) {
		t.Errorf("port 4 = %+v", p)
	}
}

func TestMCUNotConnected(t *testing.T) {
	m := NewMCU()
	if err := m.EnableMotors(); errcode.Of(err) != errcode.NotConnected {
		t.Errorf("EnableMotors on a closed client: %v", err)
	}
}

// hostEnd joins the host ends of two pipes
type hostEnd struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (h *hostEnd) Read(b []byte) (int, error)  { return h.r.Read(b) }
func (h *hostEnd) Write(b []byte) (int, error) { return h.w.Write(b) }
func (h *hostEnd) Close() error {
	h.w.Close()
	return h.r.Close()
}

// startEchoFirmware answers every query with a stale record first and then
// the one asked for, as if an earlier query's reply had arrived late
func startEchoFirmware(t *testing.T) *MCU {
	t.Helper()
	hostToFWr, hostToFWw := io.Pipe()
	fwToHostr, fwToHostw := io.Pipe()

	out := protocol.NewScratchOutput()
	var fw *protocol.Transport
	fw = protocol.NewTransport(out, func(cmdID uint16, data *[]byte) error {
		arg, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		switch cmdID {
		case protocol.MsgQueryPort:
			for _, idx := range []uint32{arg + 1, arg} {
				fw.SendCommand(protocol.MsgPort, func(o protocol.OutputBuffer) {
					for _, v := range []uint32{idx, 1, 3, 1, 2500, 0} {
						protocol.EncodeVLQUint(o, v)
					}
				})
			}
		case protocol.MsgQueryBrushed:
			fw.SendCommand(protocol.MsgBrushed, func(o protocol.OutputBuffer) {
				protocol.EncodeVLQUint(o, 8000)
				protocol.EncodeVLQUint(o, 1)
			})
			fw.SendCommand(protocol.MsgBrushed, func(o protocol.OutputBuffer) {
				protocol.EncodeVLQUint(o, arg)
				protocol.EncodeVLQUint(o, 0)
			})
		}
		return nil
	})

	go func() {
		defer fwToHostw.Close()
		fifo := protocol.NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			n, err := hostToFWr.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			fw.Receive(fifo)
			if res := out.Result(); len(res) > 0 {
				if _, err := fwToHostw.Write(append([]byte(nil), res...)); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()

	m := NewMCU()
	m.SetTimeout(time.Second)
	m.ConnectPort(&hostEnd{r: fwToHostr, w: hostToFWw})
	t.Cleanup(func() {
		m.Close()
		hostToFWr.Close()
	})
	return m
}

func TestMCUQueriesSkipStaleResponses(t *testing.T) {
	m := startEchoFirmware(t)

	p, err := m.Port(4)
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if p.Index != 4 {
		t.Errorf("Port(4) returned the record for port %d", p.Index)
	}

	brushed, err := m.IsMotorBrushed(400)
	if err != nil {
		t.Fatalf("IsMotorBrushed: %v", err)
	}
	if brushed {
		t.Error("IsMotorBrushed(400) took the answer for 8000")
	}

	if !m.IsConnected() {
		t.Error("client reports disconnected")
	}
}
