package noise

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/paytrust/failure"
	"github.com/opd-ai/paytrust/interfaces"
)

const frameHeaderSize = 4

var (
	// ErrFrameTooLarge is returned when a frame header announces more than
	// the reader allows. Nothing is allocated for it.
	ErrFrameTooLarge = failure.New(failure.ErrProtocol, "frame too large")

	// ErrMalformedFrame is returned for zero-length frames.
	ErrMalformedFrame = failure.New(failure.ErrProtocol, "malformed frame")
)

// WriteFrame writes msg with a 4-byte big-endian length prefix.
func WriteFrame(t interfaces.ITransport, msg []byte) error {
	if len(msg) == 0 {
		return ErrMalformedFrame
	}
	buf := make([]byte, frameHeaderSize+len(msg))
	binary.BigEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[frameHeaderSize:], msg)
	return t.WriteAll(buf)
}

// ReadFrame reads one length-prefixed frame of at most max bytes.
func ReadFrame(t interfaces.ITransport, max int) ([]byte, error) {
	var hdr [frameHeaderSize]byte
	if err := t.ReadFull(hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: zero length", ErrMalformedFrame)
	}
	if uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, n, max)
	}
	body := make([]byte, n)
	if err := t.ReadFull(body); err != nil {
		return nil, err
	}
	return body, nil
}
