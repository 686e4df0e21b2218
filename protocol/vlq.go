package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// EncodeVLQInt encodes a signed integer, most significant group first.
// Values in [-32, 96) take a single byte.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var tmp [5]byte
	n := 0
	for _, shift := range [...]uint{28, 21, 14, 7} {
		lo := -(int32(1) << (shift - 2))
		hi := int32(3) << (shift - 2)
		if v < lo || v >= hi {
			tmp[n] = byte((v>>shift)&0x7F) | 0x80
			n++
		}
	}
	tmp[n] = byte(v & 0x7F)
	output.Output(tmp[:n+1])
}

// EncodeVLQUint encodes an unsigned integer
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt decodes a signed integer and advances data past it
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		// Sign extend
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if i > 4 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(buf[i])
		v = (v << 7) | (c & 0x7F)
		i++
	}

	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint decodes an unsigned integer and advances data past it
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// DecodeArgs decodes len(dst) consecutive unsigned arguments
func DecodeArgs(data *[]byte, dst ...*uint32) error {
	for _, d := range dst {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}
