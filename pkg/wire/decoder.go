package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decoder turns a byte stream into frames. It buffers incomplete frames
// across calls to Feed. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf          []byte
	maxFrameSize uint32
	skipped      uint64
}

// NewDecoder creates a decoder that rejects frame bodies larger than
// maxFrameSize. Zero selects DefaultMaxFrameSize.
func NewDecoder(maxFrameSize uint32) *Decoder {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{maxFrameSize: maxFrameSize}
}

// Feed appends data to the internal buffer and returns every complete
// frame in arrival order. Trailing partial frames are kept for the next
// call.
//
// A well-formed frame of an unknown kind is skipped by its length and
// decoding continues with the next frame. On a malformed frame Feed
// returns the frames decoded so far together with the error and discards
// the rest of the buffer, since the stream position can no longer be
// trusted.
func (d *Decoder) Feed(data []byte) ([]Frame, error) {
	d.buf = append(d.buf, data...)

	var frames []Frame
	for len(d.buf) >= LengthPrefixSize {
		n := binary.BigEndian.Uint32(d.buf)
		if n == 0 {
			d.buf = d.buf[:0]
			return frames, ErrFrameEmpty
		}
		if n > d.maxFrameSize {
			d.buf = d.buf[:0]
			return frames, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, d.maxFrameSize)
		}
		end := LengthPrefixSize + int(n)
		if len(d.buf) < end {
			break
		}

		f, err := DecodeBody(d.buf[LengthPrefixSize:end])
		if errors.Is(err, ErrUnknownKind) {
			d.skipped++
			d.buf = d.buf[end:]
			continue
		}
		if err != nil {
			d.buf = d.buf[:0]
			return frames, err
		}
		frames = append(frames, *f)
		d.buf = d.buf[end:]
	}

	// Compact so the backing array does not grow without bound.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 2*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}
	return frames, nil
}

// Skipped returns how many frames of unknown kind have been dropped.
func (d *Decoder) Skipped() uint64 {
	return d.skipped
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops any buffered bytes.
func (d *Decoder) Reset() {
	d.buf = nil
}
