package vm

import (
	"encoding/binary"
	"math"
)

// Reader is a positioned cursor over an immutable byte buffer. All reads are
// bounds-checked; a read that would run past the end of the buffer returns
// a TruncatedInput error instead of panicking, matching spec.md §4.1.
//
// Grounded on the teacher's uint32FromBytes/uint32ToBytes little-endian
// helpers (vm/vm.go), generalized into a cursor type the way the original
// C++ Reader (src/pvm/unpack/...) offers seek/clone/indirection.
type Reader struct {
	buf []byte
	pos uint32
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Tell() uint32 { return r.pos }

func (r *Reader) Len() uint32 { return uint32(len(r.buf)) }

// Seek repositions the cursor to an absolute offset within the buffer.
func (r *Reader) Seek(absolute uint32) error {
	if absolute > uint32(len(r.buf)) {
		return errTruncatedInput("seek")
	}
	r.pos = absolute
	return nil
}

// Clone snapshots the current position into an independent cursor over the
// same underlying buffer (used for following list-of-address indirection
// without disturbing the caller's position).
func (r *Reader) Clone() *Reader {
	return &Reader{buf: r.buf, pos: r.pos}
}

func (r *Reader) require(n uint32) error {
	if r.pos+n > uint32(len(r.buf)) || r.pos+n < r.pos {
		return errTruncatedInput("read")
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

func (r *Reader) ReadBytes(n uint32) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadTag() ([4]byte, error) {
	var tag [4]byte
	b, err := r.ReadBytes(4)
	if err != nil {
		return tag, err
	}
	copy(tag[:], b)
	return tag, nil
}

// ReadCString reads a NUL-terminated string starting at the current
// position.
func (r *Reader) ReadCString() (string, error) {
	start := r.pos
	for {
		b, err := r.ReadU8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(r.buf[start : r.pos-1]), nil
		}
	}
}

// ReadLString reads a 4-byte-length-prefixed string at the current position.
func (r *Reader) ReadLString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStringRefAt follows a pointer-indirected string: the given absolute
// address holds a NUL-terminated string (the layout STRG/name_ref chunks
// use). The reader's own position is left untouched.
func (r *Reader) ReadStringRefAt(address uint32) (string, error) {
	cursor := r.Clone()
	if err := cursor.Seek(address); err != nil {
		return "", err
	}
	return cursor.ReadCString()
}

// ReadAddressList reads the common `{count, count × address}` list header
// used throughout the container format (spec.md §4.2/§6) and returns the
// raw addresses; callers follow each one to decode an element.
func (r *Reader) ReadAddressList() ([]uint32, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	addrs := make([]uint32, count)
	for i := range addrs {
		addr, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	return addrs, nil
}
