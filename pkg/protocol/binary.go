// Package protocol implements the binary wire format shared by the
// coordination server and its clients. Values are encoded little-endian
// with ULEB128 length prefixes for strings, sequences, and maps, and
// single-byte discriminants for tagged variants.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnexpectedEOF is returned when a decoder runs past the end of
	// the payload.
	ErrUnexpectedEOF = errors.New("unexpected EOF")
	// ErrULEBOverflow is returned when a ULEB128 value needs more than
	// 32 bits.
	ErrULEBOverflow = errors.New("uleb128 overflow")
	// ErrStringTooLong is returned when a length-limited string exceeds
	// its bound, on encode or on decode.
	ErrStringTooLong = errors.New("string too long")
)

// Reader decodes values from a byte slice, advancing an internal cursor.
// It never panics on malformed input; every method returns an error on
// a short or invalid read.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many bytes are left to consume.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

func (r *Reader) Byte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// Take returns the next n bytes without copying. The returned slice
// aliases the reader's underlying data.
func (r *Reader) Take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

func (r *Reader) Int8() (int8, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	return int8(b), nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ULEB reads a ULEB128-encoded unsigned integer. Values wider than 32
// bits are rejected.
func (r *Reader) ULEB() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 32 {
			return 0, ErrULEBOverflow
		}
	}
}

// String reads a ULEB128 byte length followed by UTF-8 data. Invalid
// UTF-8 sequences are replaced with U+FFFD rather than rejected.
func (r *Reader) String() (string, error) {
	n, err := r.ULEB()
	if err != nil {
		return "", fmt.Errorf("reading string length: %w", err)
	}
	b, err := r.Take(int(n))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

// Varchar reads a string whose encoded byte length must not exceed max.
func (r *Reader) Varchar(max int) (string, error) {
	n, err := r.ULEB()
	if err != nil {
		return "", fmt.Errorf("reading string length: %w", err)
	}
	if int(n) > max {
		return "", ErrStringTooLong
	}
	b, err := r.Take(int(n))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}

// UUID reads a uuid encoded as its low 64 bits then its high 64 bits,
// both little-endian.
func (r *Reader) UUID() (uuid.UUID, error) {
	b, err := r.Take(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	for i := range id {
		id[i] = b[15-i]
	}
	return id, nil
}

// Time reads a signed 64-bit millisecond epoch timestamp and rejects
// values outside the representable calendar range.
func (r *Reader) Time() (time.Time, error) {
	ms, err := r.Int64()
	if err != nil {
		return time.Time{}, err
	}
	if ms < minTimestampMillis || ms > maxTimestampMillis {
		return time.Time{}, fmt.Errorf("invalid timestamp %d", ms)
	}
	return time.UnixMilli(ms).UTC(), nil
}

var (
	minTimestampMillis = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxTimestampMillis = time.Date(9999, time.December, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC).UnixMilli()
)

// Writer accumulates an encoded payload. Writes cannot fail; callers
// validate length-limited values before writing them.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded payload. The slice aliases the writer's
// internal buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Byte(v byte) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func (w *Writer) Int8(v int8) {
	w.Byte(byte(v))
}

func (w *Writer) Uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) Int32(v int32) {
	w.Uint32(uint32(v))
}

func (w *Writer) Int64(v int64) {
	w.Uint64(uint64(v))
}

func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

func (w *Writer) ULEB(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.Byte(b)
		if v == 0 {
			return
		}
	}
}

func (w *Writer) String(s string) {
	w.ULEB(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) UUID(id uuid.UUID) {
	for i := 15; i >= 0; i-- {
		w.Byte(id[i])
	}
}

func (w *Writer) Time(t time.Time) {
	w.Int64(t.UnixMilli())
}
