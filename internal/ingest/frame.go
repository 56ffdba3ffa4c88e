// frame.go — the length-prefixed frame format:
//
//	[ 4 bytes, big-endian unsigned 32: payload_length ]
//	[ payload_length bytes: payload ]
package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a frame's declared length exceeds the
// reader's configured maximum.
var ErrFrameTooLarge = errors.New("ingest: frame exceeds maximum payload size")

// DefaultMaxFrameBytes bounds a single frame's payload absent an explicit
// override, guarding against a corrupt length prefix driving an unbounded
// allocation.
const DefaultMaxFrameBytes = 64 << 20 // 64 MiB

// FrameReader reads length-prefixed frames off a byte stream (typically one
// TCP connection).
type FrameReader struct {
	r            io.Reader
	maxFrameSize int
}

// NewFrameReader wraps r. maxFrameSize <= 0 selects DefaultMaxFrameBytes.
func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameBytes
	}
	return &FrameReader{r: r, maxFrameSize: maxFrameSize}
}

// ReadFrame blocks for one full frame and returns its payload. It returns
// io.EOF (unwrapped, via errors.Is) only when the stream ends cleanly
// between frames; a partial frame at EOF is reported as io.ErrUnexpectedEOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("ingest: read frame length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > fr.maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("ingest: read frame payload (%d bytes): %w", n, err)
	}
	return payload, nil
}
