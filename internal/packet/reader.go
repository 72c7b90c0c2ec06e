package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader is a cursor over a single packet's payload bytes. It has no
// knowledge of packet ids; callers decode fields in whatever order the
// packet's composite layout dictates.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential typed reads.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("packet: truncated frame: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	return v != 0, err
}

func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

// ReadULEB128 reads an unsigned LEB128-encoded integer, as used for osu!
// string lengths.
func (r *Reader) ReadULEB128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadU8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("packet: ULEB128 value overflows 64 bits")
		}
	}
	return result, nil
}

// ReadString reads an osu!-style string: a one-byte presence marker
// (0x00 empty, 0x0b present), then on presence a ULEB128 length and that
// many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	marker, err := r.ReadU8()
	if err != nil {
		return "", err
	}
	switch marker {
	case 0x00:
		return "", nil
	case 0x0b:
		n, err := r.ReadULEB128()
		if err != nil {
			return "", err
		}
		if n > uint64(r.Remaining()) {
			return "", fmt.Errorf("packet: string length %d exceeds remaining %d bytes", n, r.Remaining())
		}
		s := string(r.buf[r.pos : r.pos+int(n)])
		r.pos += int(n)
		return s, nil
	default:
		return "", fmt.Errorf("packet: invalid string presence marker 0x%02x", marker)
	}
}

// ReadRaw reads and returns the next n bytes verbatim, without interpreting
// them. Used for replay-frame bundles which must be retransmitted byte-exact.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadI32List16 reads a u16 count followed by that many i32 values.
func (r *Reader) ReadI32List16() ([]int32, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		v, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ReadI32List32 reads a u32 count followed by that many i32 values, an
// alternate encoding used by a handful of packets.
func (r *Reader) ReadI32List32() ([]int32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		v, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
