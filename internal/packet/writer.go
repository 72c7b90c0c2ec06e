package packet

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer accumulates a single packet's payload bytes.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) WriteU8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) WriteI8(v int8) {
	w.WriteU8(uint8(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI16(v int16) {
	w.WriteU16(uint16(v))
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI64(v int64) {
	w.WriteU64(uint64(v))
}

func (w *Writer) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

func (w *Writer) WriteF64(v float64) {
	w.WriteU64(math.Float64bits(v))
}

// WriteULEB128 writes an unsigned LEB128-encoded integer.
func (w *Writer) WriteULEB128(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteString writes an osu!-style string: presence marker, ULEB128 length
// (only if non-empty), then the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	if s == "" {
		w.WriteU8(0x00)
		return
	}
	w.WriteU8(0x0b)
	w.WriteULEB128(uint64(len(s)))
	w.buf.WriteString(s)
}

// WriteRaw appends bytes verbatim.
func (w *Writer) WriteRaw(b []byte) {
	w.buf.Write(b)
}

// WriteI32List16 writes a u16 count followed by the i32 values.
func (w *Writer) WriteI32List16(vals []int32) {
	w.WriteU16(uint16(len(vals)))
	for _, v := range vals {
		w.WriteI32(v)
	}
}

// WriteI32List32 writes a u32 count followed by the i32 values.
func (w *Writer) WriteI32List32(vals []int32) {
	w.WriteU32(uint32(len(vals)))
	for _, v := range vals {
		w.WriteI32(v)
	}
}

// Build wraps a payload with the 7-byte Bancho frame header: packet id
// (u16 LE), one reserved byte, payload length (u32 LE).
func Build(id uint16, payload []byte) []byte {
	out := make([]byte, 7+len(payload))
	binary.LittleEndian.PutUint16(out[0:2], id)
	out[2] = 0
	binary.LittleEndian.PutUint32(out[3:7], uint32(len(payload)))
	copy(out[7:], payload)
	return out
}
