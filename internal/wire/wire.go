// Package wire holds the length-prefixed framing used by stored session entries.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// ErrOverflow is returned when a varint does not fit in 64 bits.
var ErrOverflow = errors.New("wire: varint overflows 64 bits")

// Writer appends framed values to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with the given initial capacity.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *Writer) Uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *Writer) Varint(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

func (w *Writer) Float64(f float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(f))
}

// LenBytes writes a length-prefixed byte slice.
func (w *Writer) LenBytes(b []byte) {
	w.Uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) String(s string) {
	w.Uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw appends b without a length prefix.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Reader consumes framed values from a byte slice.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Rest returns the unread bytes and consumes them.
func (r *Reader) Rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

func (r *Reader) Byte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *Reader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrOverflow
	}
	r.off += n
	return v, nil
}

func (r *Reader) Varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.off:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrOverflow
	}
	r.off += n
	return v, nil
}

func (r *Reader) Float64() (float64, error) {
	if r.Len() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return math.Float64frombits(bits), nil
}

// Next consumes n bytes. The result aliases the reader's buffer.
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// LenBytes reads a length-prefixed byte slice. The result aliases the reader's buffer.
func (r *Reader) LenBytes() ([]byte, error) {
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if uint64(r.Len()) < n {
		return nil, io.ErrUnexpectedEOF
	}
	return r.Next(int(n))
}

func (r *Reader) String() (string, error) {
	b, err := r.LenBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
