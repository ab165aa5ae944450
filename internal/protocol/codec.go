package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/bytedance/sonic"
)

const (
	// HeaderSize is the length prefix size in bytes
	HeaderSize = 4
	// MaxFrameSize bounds a single payload. A larger declared length means the
	// stream is out of sync and cannot be recovered.
	MaxFrameSize = 16 << 20
)

// wire uses the std-compatible sonic config so map keys are sorted and the
// encoded bytes are deterministic.
var wire = sonic.ConfigStd

// Encode serializes m as a single frame: length prefix then {"<Kind>": m}.
func Encode(m Message) ([]byte, error) {
	out, err := frame(map[string]Message{m.Kind(): m})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return out, nil
}

func frame(v any) ([]byte, error) {
	payload, err := wire.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decoded is one complete frame taken off the stream. Exactly one of
// Response and Err is set; Err wraps ErrMalformedResponse or
// ErrUnrecognizedResponse and concerns only this frame.
type Decoded struct {
	Payload  []byte
	Response Response
	Err      error
}

// Decode extracts every complete frame from buf and returns them in order
// together with the undigested remainder, which must be prepended to the next
// read. A buffer of fewer than HeaderSize+1 bytes yields no frames. A frame
// whose declared length exceeds the available bytes is left in the remainder
// untouched, prefix included, and is not parsed.
//
// The returned error is non-nil only when the stream itself is unusable
// (a declared length above MaxFrameSize); the remainder is then nil.
func Decode(buf []byte) ([]Decoded, []byte, error) {
	var out []Decoded

	rest := buf
	for len(rest) > HeaderSize {
		size := binary.BigEndian.Uint32(rest[:HeaderSize])
		if size > MaxFrameSize {
			return out, nil, fmt.Errorf("%w: declared length %d: %w", ErrMalformedResponse, size, ErrFrameTooLarge)
		}
		end := HeaderSize + int(size)
		if len(rest) < end {
			break
		}

		payload := rest[HeaderSize:end]
		resp, err := Classify(payload)
		out = append(out, Decoded{Payload: payload, Response: resp, Err: err})
		rest = rest[end:]
	}

	return out, rest, nil
}

// Decoder buffers a byte stream across reads. It is not safe for concurrent
// use; each connection owns one and feeds it from a single reader.
type Decoder struct {
	pending []byte
}

// Feed appends chunk to the pending bytes and returns every frame completed by it.
func (d *Decoder) Feed(chunk []byte) ([]Decoded, error) {
	var buf []byte
	if len(d.pending) == 0 {
		buf = chunk
	} else {
		buf = append(d.pending, chunk...)
	}

	frames, rest, err := Decode(buf)
	if err != nil {
		d.pending = nil
		return frames, err
	}

	// copy so the caller may reuse chunk's backing array
	d.pending = append([]byte(nil), rest...)
	return frames, nil
}

// Pending returns the number of buffered bytes not yet forming a frame.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Reset drops any buffered bytes.
func (d *Decoder) Reset() {
	d.pending = nil
}
