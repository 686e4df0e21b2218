package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"escpwm/errcode"
)

// DefaultTimeout is how long the host waits for an ACK or a response
const DefaultTimeout = 2 * time.Second

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrMessageTooLong  = errors.New("message too long")
)

// Response is a decoded MCU -> host message
type Response struct {
	ID   uint16
	Args []byte // VLQ-encoded arguments following the ID
}

// HostTransport is the host side of the link: it sends commands, waits for
// their ACKs and collects responses from a background reader.
type HostTransport struct {
	port io.ReadWriteCloser

	writeMu sync.Mutex
	seq     uint8 // next host sequence (0x10-0x1F)
	synced  bool  // false after an unanswered frame: the MCU may or may not have run it

	scanner   frameScanner
	input     *FifoBuffer
	acks      chan uint8
	responses chan Response

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewHostTransport starts a transport over port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		seq:       MessageDest,
		synced:    true,
		input:     NewFifoBuffer(1024),
		acks:      make(chan uint8, 16),
		responses: make(chan Response, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits for its ACK.
// A timeout leaves the link unsynced; the next send first learns the MCU's
// sequence so a new command never reuses one the MCU may already have passed.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if !t.synced {
		if err := t.resync(cmdID, deadline.C); err != nil {
			return err
		}
	}

	scratch := NewScratchOutput()
	EncodeFrame(scratch, t.seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
	msg := scratch.Result()
	if len(msg) > MessageLengthMax {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLong, len(msg), MessageLengthMax)
	}

	t.drainAcks()
	if _, err := t.port.Write(msg); err != nil {
		t.synced = false
		return fmt.Errorf("write %s: %w", MessageName(cmdID), err)
	}

	want := nextSeq(t.seq)
	for {
		select {
		case got := <-t.acks:
			if got != want {
				// NAK, or a duplicate from before this frame
				continue
			}
			t.seq = want
			return nil
		case <-deadline.C:
			t.synced = false
			return &errcode.E{C: errcode.Timeout, Op: MessageName(cmdID), Msg: "no ACK after " + timeout.String()}
		case <-t.stop:
			return ErrTransportClosed
		}
	}
}

// resync sends an empty frame and adopts the sequence the MCU answers with.
// The MCU runs an in-sequence empty frame as a no-op and NAKs any other, so
// either way its reply is the sequence it now expects. An ACK equal to the
// empty frame's own sequence predates it and is skipped.
func (t *HostTransport) resync(cmdID uint16, deadline <-chan time.Time) error {
	seq := t.seq
	if seq == MessageDest {
		// A repeated 0x10 reads as a host restart and would stop the motors
		seq = nextSeq(seq)
	}

	scratch := NewScratchOutput()
	EncodeFrame(scratch, seq, nil)

	t.drainAcks()
	if _, err := t.port.Write(scratch.Result()); err != nil {
		return fmt.Errorf("write %s: %w", MessageName(cmdID), err)
	}
	for {
		select {
		case got := <-t.acks:
			if got == seq {
				continue
			}
			t.seq = got
			t.synced = true
			return nil
		case <-deadline:
			return &errcode.E{C: errcode.Timeout, Op: MessageName(cmdID), Msg: "no reply to resync"}
		case <-t.stop:
			return ErrTransportClosed
		}
	}
}

// drainAcks drops ACKs received before the next frame is written
func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.acks:
		default:
			return
		}
	}
}

// DiscardResponses drops every buffered response. Call before a query so a
// late answer to an earlier one is not taken for the new one.
func (t *HostTransport) DiscardResponses() {
	for {
		select {
		case <-t.responses:
		default:
			return
		}
	}
}

// WaitResponse waits for a response with the given message ID.
// Responses with other IDs are discarded.
func (t *HostTransport) WaitResponse(id uint16, timeout time.Duration) (Response, error) {
	deadline := time.After(timeout)
	for {
		select {
		case r := <-t.responses:
			if r.ID == id {
				return r, nil
			}
		case <-deadline:
			return Response{}, &errcode.E{C: errcode.Timeout, Op: MessageName(id), Msg: "no response after " + timeout.String()}
		case <-t.stop:
			return Response{}, ErrTransportClosed
		}
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.input.Pop(t.scanner.scan(t.input.Data(), t.dispatch))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// dispatch routes a verified frame to the ACK or response channel
func (t *HostTransport) dispatch(seq uint8, payload []byte) {
	if len(payload) == 0 {
		select {
		case t.acks <- seq:
		default:
			// Drop oldest; the newest ACK is the MCU's current sequence
			select {
			case <-t.acks:
			default:
			}
			t.acks <- seq
		}
		return
	}

	data := append([]byte(nil), payload...)
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return
	}
	// One response per frame; arguments run to the end of the frame
	r := Response{ID: uint16(id), Args: data}
	select {
	case t.responses <- r:
	default:
		// Drop oldest
		select {
		case <-t.responses:
		default:
		}
		t.responses <- r
	}
}
