// Package wire implements the framed binary protocol used to replicate
// catalogue and order state between an authoritative bazaar process and
// remote front-ends. Frames are big-endian `[u16 length][payload]`;
// message bodies hand-encode themselves with length-prefixed UTF-8
// strings, fixed-width integers/doubles and 16-byte UUIDs. There is no
// external schema language.
package wire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
)

// MaxPayload is the largest frame payload the protocol allows.
const MaxPayload = 32767

var (
	// ErrTruncated is returned when a payload ends before a field does.
	ErrTruncated = errors.New("wire: truncated payload")
	// ErrOversized is returned when an encoded message exceeds MaxPayload.
	ErrOversized = errors.New("wire: payload exceeds frame limit")
	// ErrStringTooLong is returned for strings beyond the u16 length prefix.
	ErrStringTooLong = errors.New("wire: string exceeds 65535 bytes")
)

// Writer accumulates a message payload.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *Writer) WriteFloat64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteString writes a u16 length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	if len(s) > math.MaxUint16 {
		panic(ErrStringTooLong)
	}
	w.WriteUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteUUID writes the UUID as two big-endian 64-bit halves.
func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// Reader consumes a message payload.
type Reader struct {
	buf []byte
	off int
}

func NewReader(payload []byte) *Reader {
	return &Reader{buf: payload}
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadUUID() (uuid.UUID, error) {
	b, err := r.take(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}
