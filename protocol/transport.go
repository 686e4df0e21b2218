package protocol

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the link: it verifies host frames, dispatches
// the commands they carry and answers every frame with an ACK/NAK.
// All methods run on the firmware main loop.
type Transport struct {
	scanner      frameScanner
	nextSequence uint8 // expected host sequence (0x10-0x1F)
	output       OutputBuffer
	handler      CommandHandler

	resetCallback func() // host restarted its sequence
	flushCallback func() // push ACKs out immediately
	errorCallback func(cmdID uint16, err error)
}

// NewTransport creates a new Transport writing frames to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
	t.scanner.checkSeq = true
	t.scanner.onSync = t.encodeAckNak
	return t
}

// Receive processes incoming data and pops what was consumed
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.scanner.scan(input.Data(), t.receiveFrame)
	input.Pop(consumed)
}

func (t *Transport) receiveFrame(seq uint8, frame []byte) {
	if seq == MessageDest && t.nextSequence != MessageDest {
		// Host reset detected
		t.nextSequence = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	// Out-of-sequence frames are not executed; the ACK below doubles as a NAK
	if seq == t.nextSequence {
		t.nextSequence = nextSeq(seq)
		t.parseFrame(frame)
	}
	t.encodeAckNak()
}

// parseFrame dispatches every command in a frame
func (t *Transport) parseFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.desynced = true
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.desynced = true
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			// Remaining arguments cannot be trusted
			if t.errorCallback != nil {
				t.errorCallback(uint16(cmdID), err)
			}
			return
		}
	}
}

// encodeAckNak sends an empty frame carrying the next expected sequence
func (t *Transport) encodeAckNak() {
	EncodeFrame(t.output, t.nextSequence, nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand sends a response frame with a message ID and arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	EncodeFrame(t.output, t.nextSequence, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.scanner.desynced = false
	t.nextSequence = MessageDest
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback to immediately flush ACK messages
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback sets a callback for command handler errors
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}
