package protocol

import "bytes"

// EncodeFrame appends one frame whose payload is written by body
func EncodeFrame(output OutputBuffer, seq uint8, body func(output OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if body != nil {
		body(output)
	}
	output.Update(cursor+MessagePositionLen, uint8(len(output.DataSince(cursor))+MessageTrailerSize))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// frameScanner splits a byte stream into verified frames.
// After a bad length, sync or CRC it drops bytes up to the next sync byte.
type frameScanner struct {
	desynced bool
	checkSeq bool   // require the destination bits in the sequence byte
	onSync   func() // called when sync is regained
}

// scan calls onFrame for every complete frame in data and returns the
// number of bytes consumed. A trailing partial frame is left unconsumed.
func (s *frameScanner) scan(data []byte, onFrame func(seq uint8, payload []byte)) int {
	total := len(data)
	for len(data) > 0 {
		if s.desynced {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			s.desynced = false
			if s.onSync != nil {
				s.onSync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		n := int(data[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax {
			s.desynced = true
			continue
		}
		seq := data[MessagePositionSeq]
		if s.checkSeq && seq&^MessageSeqMask != MessageDest {
			s.desynced = true
			continue
		}
		if len(data) < n {
			break
		}
		if data[n-MessageTrailerSync] != MessageValueSync {
			s.desynced = true
			continue
		}
		crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
		if crc != CRC16(data[:n-MessageTrailerSize]) {
			s.desynced = true
			continue
		}

		onFrame(seq, data[MessageHeaderSize:n-MessageTrailerSize])
		data = data[n:]
	}
	return total - len(data)
}
