package protocol

import (
	"io"
	"sync"
	"testing"
	"time"

	"escpwm/errcode"
)

func hostFrame(seq uint8, cmdID uint16, args ...uint32) []byte {
	output := NewScratchOutput()
	EncodeFrame(output, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(cmdID))
		for _, a := range args {
			EncodeVLQUint(o, a)
		}
	})
	return append([]byte(nil), output.Result()...)
}

type received struct {
	id   uint16
	args []uint32
}

func newRecordingTransport(argc int) (*Transport, *ScratchOutput, *[]received) {
	var got []received
	out := NewScratchOutput()
	tr := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		r := received{id: cmdID}
		for i := 0; i < argc; i++ {
			v, err := DecodeVLQUint(data)
			if err != nil {
				return err
			}
			r.args = append(r.args, v)
		}
		got = append(got, r)
		return nil
	})
	return tr, out, &got
}

// ackSeqs returns the sequence bytes of all empty frames in data
func ackSeqs(data []byte) []uint8 {
	var seqs []uint8
	var s frameScanner
	s.scan(data, func(seq uint8, payload []byte) {
		if len(payload) == 0 {
			seqs = append(seqs, seq)
		}
	})
	return seqs
}

func TestTransportDispatchesAndAcks(t *testing.T) {
	tr, out, got := newRecordingTransport(2)

	in := NewSliceInputBuffer(hostFrame(MessageDest, MsgWriteMotor, 1, 1500))
	tr.Receive(in)

	if in.Available() != 0 {
		t.Errorf("Receive left %d bytes", in.Available())
	}
	if len(*got) != 1 || (*got)[0].id != MsgWriteMotor || (*got)[0].args[0] != 1 || (*got)[0].args[1] != 1500 {
		t.Fatalf("handler saw %+v", *got)
	}

	acks := ackSeqs(out.Result())
	if len(acks) != 1 || acks[0] != MessageDest+1 {
		t.Errorf("ACKs = %v, want [0x11]", acks)
	}
}

func TestTransportOutOfSequenceIsNaked(t *testing.T) {
	tr, out, got := newRecordingTransport(0)

	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, MsgEnableMotors)))
	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest+5, MsgDisableMotors)))

	if len(*got) != 1 {
		t.Fatalf("out-of-sequence frame was executed: %+v", *got)
	}
	acks := ackSeqs(out.Result())
	if len(acks) != 2 || acks[1] != MessageDest+1 {
		t.Errorf("ACKs = %v, NAK should repeat 0x11", acks)
	}
}

func TestTransportPartialFrameWaits(t *testing.T) {
	tr, _, got := newRecordingTransport(1)
	frame := hostFrame(MessageDest, MsgShutdownMotors, 4)

	fifo := NewFifoBuffer(128)
	fifo.Write(frame[:3])
	tr.Receive(fifo)
	if len(*got) != 0 || fifo.Available() != 3 {
		t.Fatalf("partial frame consumed: got=%v available=%d", *got, fifo.Available())
	}

	fifo.Write(frame[3:])
	tr.Receive(fifo)
	if len(*got) != 1 || (*got)[0].args[0] != 4 {
		t.Fatalf("completed frame not dispatched: %+v", *got)
	}
}

func TestTransportResyncsAfterCorruption(t *testing.T) {
	tr, _, got := newRecordingTransport(1)

	bad := hostFrame(MessageDest, MsgShutdownMotors, 4)
	bad[3] ^= 0xFF // break the CRC
	good := hostFrame(MessageDest, MsgCompleteOneshot, 4)

	stream := append(append([]byte{}, bad...), good...)
	tr.Receive(NewSliceInputBuffer(stream))

	if len(*got) != 1 || (*got)[0].id != MsgCompleteOneshot {
		t.Fatalf("expected only the good frame, got %+v", *got)
	}
}

func TestTransportHostReset(t *testing.T) {
	tr, _, _ := newRecordingTransport(0)
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, MsgEnableMotors)))
	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest+1, MsgEnableMotors)))
	tr.Receive(NewSliceInputBuffer(hostFrame(MessageDest, MsgEnableMotors)))

	if resets != 1 {
		t.Errorf("reset callback called %d times, want 1", resets)
	}
}

// pipePort joins the host end of two pipes into one ReadWriteCloser
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostToMCUr, hostToMCUw := io.Pipe()
	mcuToHostr, mcuToHostw := io.Pipe()

	var mcu *Transport
	handler := func(cmdID uint16, data *[]byte) error {
		if cmdID != MsgQueryBrushed {
			return nil
		}
		rate, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		mcu.SendCommand(MsgBrushed, func(o OutputBuffer) {
			EncodeVLQUint(o, rate)
			EncodeVLQUint(o, 1)
		})
		return nil
	}
	go func() {
		out := NewScratchOutput()
		mcu = NewTransport(out, handler)
		fifo := NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			n, err := hostToMCUr.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			mcu.Receive(fifo)
			if res := out.Result(); len(res) > 0 {
				if _, err := mcuToHostw.Write(append([]byte(nil), res...)); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()

	host := NewHostTransport(&pipePort{r: mcuToHostr, w: hostToMCUw})
	defer host.Close()

	for i := 0; i < 20; i++ { // wraps the 4-bit sequence
		if err := host.SendCommand(MsgEnableMotors, nil, time.Second); err != nil {
			t.Fatalf("SendCommand %d: %v", i, err)
		}
	}

	if err := host.SendCommand(MsgQueryBrushed, func(o OutputBuffer) { EncodeVLQUint(o, 16000) }, time.Second); err != nil {
		t.Fatalf("SendCommand query: %v", err)
	}
	resp, err := host.WaitResponse(MsgBrushed, time.Second)
	if err != nil {
		t.Fatalf("WaitResponse: %v", err)
	}
	var rate, brushed uint32
	if err := DecodeArgs(&resp.Args, &rate, &brushed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rate != 16000 || brushed != 1 {
		t.Errorf("response rate=%d brushed=%d", rate, brushed)
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostToMCUr, hostToMCUw := io.Pipe()
	mcuToHostr, _ := io.Pipe()

	// Drain writes but never answer
	go io.Copy(io.Discard, hostToMCUr)

	host := NewHostTransport(&pipePort{r: mcuToHostr, w: hostToMCUw})
	defer host.Close()

	if err := host.SendCommand(MsgEnableMotors, nil, 50*time.Millisecond); err == nil {
		t.Fatal("expected ACK timeout")
	}
}

// slowMCU is an MCU transport on pipes that can hold back its reply to one command
type slowMCU struct {
	mu       sync.Mutex
	executed []uint16
	resets   int
	holdID   uint16
	hold     time.Duration
}

func (m *slowMCU) ran() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint16(nil), m.executed...)
}

// start serves the MCU side and returns a host transport connected to it
func (m *slowMCU) start(t *testing.T) *HostTransport {
	t.Helper()
	hostToMCUr, hostToMCUw := io.Pipe()
	mcuToHostr, mcuToHostw := io.Pipe()

	out := NewScratchOutput()
	var delay time.Duration
	mcu := NewTransport(out, func(cmdID uint16, data *[]byte) error {
		*data = (*data)[:0]
		m.mu.Lock()
		m.executed = append(m.executed, cmdID)
		m.mu.Unlock()
		if cmdID == m.holdID && m.hold > 0 {
			delay, m.hold = m.hold, 0
		}
		return nil
	})
	mcu.SetResetCallback(func() {
		m.mu.Lock()
		m.resets++
		m.mu.Unlock()
	})

	go func() {
		defer mcuToHostw.Close()
		fifo := NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			n, err := hostToMCUr.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			mcu.Receive(fifo)
			if delay > 0 {
				time.Sleep(delay)
				delay = 0
			}
			if res := out.Result(); len(res) > 0 {
				if _, err := mcuToHostw.Write(append([]byte(nil), res...)); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()

	host := NewHostTransport(&pipePort{r: mcuToHostr, w: hostToMCUw})
	t.Cleanup(func() {
		host.Close()
		hostToMCUr.Close()
	})
	return host
}

func TestHostTransportLateAckDoesNotHideNextCommand(t *testing.T) {
	m := &slowMCU{holdID: MsgWriteMotor, hold: 150 * time.Millisecond}
	host := m.start(t)

	if err := host.SendCommand(MsgEnableMotors, nil, time.Second); err != nil {
		t.Fatalf("enable: %v", err)
	}
	err := host.SendCommand(MsgWriteMotor, nil, 50*time.Millisecond)
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("held write: err = %v, want timeout", err)
	}
	if err := host.SendCommand(MsgDisableMotors, nil, time.Second); err != nil {
		t.Fatalf("disable after timeout: %v", err)
	}

	got := m.ran()
	want := []uint16{MsgEnableMotors, MsgWriteMotor, MsgDisableMotors}
	if len(got) != len(want) {
		t.Fatalf("MCU ran %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MCU ran %v, want %v", got, want)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resets != 0 {
		t.Errorf("resync triggered %d host resets", m.resets)
	}
}

func TestHostTransportResyncAfterFirstFrameAvoidsReset(t *testing.T) {
	// The unanswered frame carries 0x10, the restart sequence
	m := &slowMCU{holdID: MsgEnableMotors, hold: 150 * time.Millisecond}
	host := m.start(t)

	if err := host.SendCommand(MsgEnableMotors, nil, 50*time.Millisecond); err == nil {
		t.Fatal("expected ACK timeout")
	}
	for i := 0; i < 3; i++ {
		if err := host.SendCommand(MsgShutdownMotors, nil, time.Second); err != nil {
			t.Fatalf("shutdown %d: %v", i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resets != 0 {
		t.Errorf("MCU saw %d host resets", m.resets)
	}
	if len(m.executed) != 4 {
		t.Errorf("MCU ran %v", m.executed)
	}
}

func TestHostTransportDiscardResponses(t *testing.T) {
	mcuToHostr, mcuToHostw := io.Pipe()
	_, hostToMCUw := io.Pipe()
	host := NewHostTransport(&pipePort{r: mcuToHostr, w: hostToMCUw})
	defer host.Close()

	frame := func(rate uint32) []byte {
		out := NewScratchOutput()
		EncodeFrame(out, MessageDest, func(o OutputBuffer) {
			EncodeVLQUint(o, uint32(MsgBrushed))
			EncodeVLQUint(o, rate)
			EncodeVLQUint(o, 1)
		})
		return append([]byte(nil), out.Result()...)
	}

	if _, err := mcuToHostw.Write(frame(8000)); err != nil {
		t.Fatal(err)
	}
	if _, err := host.WaitResponse(MsgBrushed, time.Second); err != nil {
		t.Fatalf("first response: %v", err)
	}

	if _, err := mcuToHostw.Write(frame(9000)); err != nil {
		t.Fatal(err)
	}
	// The pipe write returns once the reader has the bytes; give dispatch a moment
	time.Sleep(20 * time.Millisecond)
	host.DiscardResponses()

	if _, err := host.WaitResponse(MsgBrushed, 50*time.Millisecond); errcode.Of(err) != errcode.Timeout {
		t.Errorf("stale response survived discard: err = %v", err)
	}
}
