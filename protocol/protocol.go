// Package protocol implements the Klipper-style framing used between the
// flight controller firmware and host tooling
package protocol

// Version represents the escpwm firmware version
const Version = "0.1.0"

// Frame layout: [len][seq][payload...][crc hi][crc lo][0x7E]
const (
	MessageMax          = 512 // Output scratch buffer size (several frames)
	MessageHeaderSize   = 2
	MessageTrailerSize  = 3
	MessageLengthMin    = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax    = 64
	MessagePositionLen  = 0
	MessagePositionSeq  = 1
	MessageTrailerCRC   = 3
	MessageTrailerSync  = 1
	MessageValueSync    = 0x7E
	MessageDest         = 0x10
	MessageSeqMask      = 0x0F
	MessagePayloadLimit = MessageLengthMax - MessageLengthMin
)

// MessageFormat describes one command or response
type MessageFormat struct {
	Name     string
	Format   string
	Response bool // MCU -> host
}

// Message IDs. Firmware registers Messages in this order, so the host can
// address commands without downloading a dictionary.
const (
	MsgEnableMotors uint16 = iota
	MsgDisableMotors
	MsgWriteMotor
	MsgWriteServo
	MsgShutdownMotors
	MsgCompleteOneshot
	MsgQueryBrushed
	MsgQueryOutputs
	MsgQueryPort
	MsgBrushed
	MsgOutputs
	MsgPort
)

// Messages is the static command/response table indexed by message ID
var Messages = []MessageFormat{
	MsgEnableMotors:    {Name: "pwm_enable_motors"},
	MsgDisableMotors:   {Name: "pwm_disable_motors"},
	MsgWriteMotor:      {Name: "pwm_write_motor", Format: "index=%c value=%hu"},
	MsgWriteServo:      {Name: "pwm_write_servo", Format: "index=%c value=%hu"},
	MsgShutdownMotors:  {Name: "pwm_shutdown_motors", Format: "count=%c"},
	MsgCompleteOneshot: {Name: "pwm_complete_oneshot", Format: "count=%c"},
	MsgQueryBrushed:    {Name: "pwm_query_brushed", Format: "rate=%hu"},
	MsgQueryOutputs:    {Name: "pwm_query_outputs"},
	MsgQueryPort:       {Name: "pwm_query_port", Format: "port=%c"},
	MsgBrushed:         {Name: "pwm_brushed", Format: "rate=%hu brushed=%c", Response: true},
	MsgOutputs:         {Name: "pwm_outputs", Format: "allocated=%c configured=%u enabled=%c", Response: true},
	MsgPort:            {Name: "pwm_port", Format: "port=%c configured=%c timer=%c channel=%c period=%hu strategy=%c", Response: true},
}

// MessageName returns the name of a message ID, or "" if unknown
func MessageName(id uint16) string {
	if int(id) >= len(Messages) {
		return ""
	}
	return Messages[id].Name
}

// nextSeq returns the sequence byte following seq
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
