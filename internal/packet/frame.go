package packet

import (
	"encoding/binary"
	"fmt"
)

// Frame is one decoded packet: its id and raw payload bytes.
type Frame struct {
	ID      uint16
	Payload []byte
}

// Decode splits body into frames, each a 7-byte header (id u16, reserved u8,
// length u32, all little-endian) followed by length bytes of payload.
// Decoding continues until the body is exhausted. Unknown packet ids are
// not an error here — interpretation happens per-id at the dispatch layer;
// Decode only needs to know where each frame ends.
func Decode(body []byte) ([]Frame, error) {
	var frames []Frame
	pos := 0
	for pos < len(body) {
		if len(body)-pos < 7 {
			return nil, fmt.Errorf("packet: truncated header at offset %d", pos)
		}
		id := binary.LittleEndian.Uint16(body[pos : pos+2])
		// body[pos+2] is the reserved byte, ignored.
		length := binary.LittleEndian.Uint32(body[pos+3 : pos+7])
		pos += 7

		if uint64(pos)+uint64(length) > uint64(len(body)) {
			return nil, fmt.Errorf("packet: truncated payload for id %d: need %d bytes, have %d", id, length, len(body)-pos)
		}

		payload := body[pos : pos+int(length)]
		frames = append(frames, Frame{ID: id, Payload: payload})
		pos += int(length)
	}
	return frames, nil
}
