package transport

import (
	"errors"
	"io"
)

// MaxFrameSize is the largest accepted frame payload. Peers sending
// anything larger are disconnected.
const MaxFrameSize = 2 * 1024 * 1024

var (
	// ErrInvalidLength is returned when a frame length prefix runs past
	// five bytes.
	ErrInvalidLength = errors.New("invalid length")
	// ErrFrameTooLarge is returned when a frame length exceeds
	// MaxFrameSize.
	ErrFrameTooLarge = errors.New("data packet too large")
)

// appendFrameLength appends the ULEB128 encoding of n to buf.
func appendFrameLength(buf []byte, n uint32) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if n == 0 {
			return buf
		}
	}
}

// readFrameLength reads a ULEB128 frame length prefix of at most five
// bytes and enforces MaxFrameSize.
func readFrameLength(r io.ByteReader) (int, error) {
	var length uint64
	var pos uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		length |= uint64(b&0x7f) << pos
		pos += 7
		if b&0x80 == 0 {
			break
		}
		if pos > 32 {
			return 0, ErrInvalidLength
		}
	}
	if length > MaxFrameSize {
		return 0, ErrFrameTooLarge
	}
	return int(length), nil
}
