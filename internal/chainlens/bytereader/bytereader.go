// Package bytereader implements a cursor over an immutable byte buffer
// with the little-endian primitive decoders the wire formats in this
// module are built from (spec.md §4.1).
package bytereader

import (
	"encoding/binary"

	"chainlens/internal/apierr"
)

// Reader is a monotonically advancing cursor over a read-only buffer.
// The zero value is not usable; construct with New.
type Reader struct {
	buf  []byte
	pos  int
	code apierr.Code
}

// New wraps buf for sequential decoding. code is the taxonomy code used
// for every truncation/non-canonical-encoding error this reader raises
// (apierr.CodeInvalidTx, apierr.CodeInvalidBlock or
// apierr.CodeInvalidUndo, per the calling context).
func New(buf []byte, code apierr.Code) *Reader {
	return &Reader{buf: buf, code: code}
}

// Pos returns the current cursor offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Buf returns the full underlying buffer (read-only).
func (r *Reader) Buf() []byte { return r.buf }

// Skip advances the cursor by n bytes without returning them, failing if
// fewer than n bytes remain.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// Peek returns the next n bytes without advancing the cursor. Returns an
// error if fewer than n bytes remain.
func (r *Reader) Peek(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, apierr.Newf(r.code, "unexpected end of data at offset %d, need %d bytes, have %d", r.pos, n, r.Remaining())
	}
	return r.buf[r.pos : r.pos+n], nil
}

// ReadBytes reads exactly n bytes and advances the cursor.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.pos += n
	return b, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16LE reads a little-endian uint16.
func (r *Reader) ReadUint16LE() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32LE reads a little-endian uint32.
func (r *Reader) ReadUint32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32LE reads a little-endian signed int32.
func (r *Reader) ReadInt32LE() (int32, error) {
	v, err := r.ReadUint32LE()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadUint64LE reads a little-endian uint64.
func (r *Reader) ReadUint64LE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadVarInt reads a Bitcoin CompactSize integer: 0x00-0xFC direct,
// 0xFD+u16, 0xFE+u32, 0xFF+u64. Non-canonical encodings (a multi-byte
// prefix used to encode a value that a shorter prefix could represent)
// are rejected.
func (r *Reader) ReadVarInt() (uint64, error) {
	first, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}

	switch {
	case first < 0xFD:
		return uint64(first), nil
	case first == 0xFD:
		v, err := r.ReadUint16LE()
		if err != nil {
			return 0, err
		}
		if v < 0xFD {
			return 0, apierr.Newf(r.code, "non-canonical varint: 0xFD prefix encodes value %d", v)
		}
		return uint64(v), nil
	case first == 0xFE:
		v, err := r.ReadUint32LE()
		if err != nil {
			return 0, err
		}
		if v <= 0xFFFF {
			return 0, apierr.Newf(r.code, "non-canonical varint: 0xFE prefix encodes value %d", v)
		}
		return uint64(v), nil
	default:
		v, err := r.ReadUint64LE()
		if err != nil {
			return 0, err
		}
		if v <= 0xFFFFFFFF {
			return 0, apierr.Newf(r.code, "non-canonical varint: 0xFF prefix encodes value %d", v)
		}
		return v, nil
	}
}
