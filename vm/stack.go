package vm

import (
	"encoding/binary"
	"math"
)

// MainStack is the VM's byte-addressable operand stack: a fixed-capacity
// buffer with a monotonically moving offset, no per-value type tag except
// for the padded stack-variable layout. Grounded on the teacher's fixed
// `[stackSize]byte` array + `offset`-style cursor (vm/vm.go's pushStack/
// popStackUint32 family), generalized to Go generics over the primitive
// kinds spec.md §3/§4.3 lists.
type MainStack struct {
	buf    []byte
	offset uint32
}

// NewMainStack allocates a stack with the given capacity (spec.md's
// `max_stack_depth`).
func NewMainStack(capacity uint32) *MainStack {
	return &MainStack{buf: make([]byte, capacity)}
}

func (s *MainStack) Offset() uint32 { return s.offset }

func (s *MainStack) Cap() uint32 { return uint32(len(s.buf)) }

// Skip advances (positive) or retracts (negative) the stack offset without
// touching memory; used to apply the pad-to-8 rule around stack variables
// and to discard values.
func (s *MainStack) Skip(delta int32) error {
	next := int64(s.offset) + int64(delta)
	if next < 0 {
		return errStackUnderflow("skip")
	}
	if next > int64(len(s.buf)) {
		return errStackOverflow("skip")
	}
	s.offset = uint32(next)
	return nil
}

// PushRaw copies n bytes from src onto the stack, advancing the offset.
func (s *MainStack) PushRaw(src []byte) error {
	n := uint32(len(src))
	if s.offset+n > uint32(len(s.buf)) {
		return errStackOverflow("push_raw")
	}
	copy(s.buf[s.offset:s.offset+n], src)
	s.offset += n
	return nil
}

// PopRaw retracts n bytes and returns a view onto them (top of stack is the
// last n bytes below the current offset).
func (s *MainStack) PopRaw(n uint32) ([]byte, error) {
	if n > s.offset {
		return nil, errStackUnderflow("pop_raw")
	}
	s.offset -= n
	return s.buf[s.offset : s.offset+n], nil
}

func widthOf[T StackPrimitive]() uint32 {
	var zero T
	switch any(zero).(type) {
	case int16:
		return 2
	case int32, StringReference:
		return 4
	case int64:
		return 8
	case float32:
		return 4
	case float64:
		return 8
	default:
		return 0
	}
}

func encode[T StackPrimitive](v T) []byte {
	switch val := any(v).(type) {
	case int16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(val))
		return b
	case int32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(val))
		return b
	case StringReference:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(val))
		return b
	case int64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(val))
		return b
	case float32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(val))
		return b
	case float64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(val))
		return b
	default:
		return nil
	}
}

func decode[T StackPrimitive](b []byte) T {
	var zero T
	switch any(zero).(type) {
	case int16:
		return any(int16(binary.LittleEndian.Uint16(b))).(T)
	case int32:
		return any(int32(binary.LittleEndian.Uint32(b))).(T)
	case StringReference:
		return any(StringReference(binary.LittleEndian.Uint32(b))).(T)
	case int64:
		return any(int64(binary.LittleEndian.Uint64(b))).(T)
	case float32:
		return any(math.Float32frombits(binary.LittleEndian.Uint32(b))).(T)
	case float64:
		return any(math.Float64frombits(binary.LittleEndian.Uint64(b))).(T)
	default:
		return zero
	}
}

// Push writes a typed primitive to the top of the stack.
func Push[T StackPrimitive](s *MainStack, v T) error {
	return s.PushRaw(encode(v))
}

// Pop removes and returns a typed primitive from the top of the stack. The
// caller must pop in the same type/width it was pushed with; the stack
// itself carries no tag.
func Pop[T StackPrimitive](s *MainStack) (T, error) {
	var zero T
	b, err := s.PopRaw(widthOf[T]())
	if err != nil {
		return zero, err
	}
	return decode[T](b), nil
}

// PushStackVariable writes a 16-byte tagged record: the payload, zero
// padding to 8 bytes, then the DataType tag (also padded to form the
// remaining 8 bytes), so StackVariableSize is constant regardless of the
// payload's concrete width. Grounded on original_source/vm.hpp's
// push_stack_variable (`reader.push(value); reader.skip(-padding); reader.
// push(tag)`), restated here as an explicit byte-layout builder.
func (s *MainStack) PushStackVariable(tag DataType, payload []byte) error {
	if s.offset+StackVariableSize > uint32(len(s.buf)) {
		return errStackOverflow("push_stack_variable")
	}
	block := make([]byte, StackVariableSize)
	copy(block[:len(payload)], payload)
	binary.LittleEndian.PutUint32(block[8:12], uint32(tag))
	copy(s.buf[s.offset:], block)
	s.offset += StackVariableSize
	return nil
}

// PopStackVariableTag pops the tag half of a stack-variable record (the top
// 8 bytes: the 4-byte DataType tag plus its own pad, relative [8:16) of the
// 16-byte block PushStackVariable writes), leaving the payload's 8 bytes
// beneath it in place so the caller can then pop the payload at the
// type-appropriate width via ReadVariableParameter.
func (s *MainStack) PopStackVariableTag() (DataType, error) {
	if s.offset < 8 {
		return 0, errStackUnderflow("pop_stack_variable_tag")
	}
	s.offset -= 8
	tag := DataType(binary.LittleEndian.Uint32(s.buf[s.offset : s.offset+4]))
	return tag, nil
}

// ReadVariableParameter pops the payload of a stack variable whose tag has
// already been consumed by PopStackVariableTag: it retracts the remaining
// pad bytes down to the payload's width, then pops the payload.
func ReadVariableParameter[T StackPrimitive](s *MainStack) (T, error) {
	var zero T
	width := widthOf[T]()
	pad := int32(8 - width)
	if err := s.Skip(-pad); err != nil {
		return zero, err
	}
	return Pop[T](s)
}

// PopStackVariable pops a complete 16-byte stack-variable record, returning
// its tag and raw 8-byte payload slot (a narrower payload sits in the low
// bytes, with zero padding above it).
func (s *MainStack) PopStackVariable() (DataType, []byte, error) {
	raw, err := s.PopRaw(StackVariableSize)
	if err != nil {
		return 0, nil, err
	}
	tag := DataType(binary.LittleEndian.Uint32(raw[8:12]))
	return tag, raw[:8], nil
}

// TemporaryReader returns a Reader over the stack's backing buffer rooted
// at an absolute offset, without disturbing the stack's own cursor — used
// to address local variables and call arguments relative to a frame base.
func (s *MainStack) TemporaryReader(at uint32) *Reader {
	return &Reader{buf: s.buf, pos: at}
}

// WriteAt overwrites StackVariableSize bytes at an absolute offset (used
// for local-variable writes and for relocating the return value in `ret`).
func (s *MainStack) WriteAt(at uint32, tag DataType, payload []byte) error {
	if at+StackVariableSize > uint32(len(s.buf)) {
		return errStackOverflow("write_at")
	}
	block := make([]byte, StackVariableSize)
	copy(block[:len(payload)], payload)
	binary.LittleEndian.PutUint32(block[8:12], uint32(tag))
	copy(s.buf[at:], block)
	return nil
}

// ReadAt reads a StackVariableSize-byte record at an absolute offset
// without touching the stack's cursor.
func (s *MainStack) ReadAt(at uint32) (DataType, []byte, error) {
	if at+StackVariableSize > uint32(len(s.buf)) {
		return 0, nil, errStackUnderflow("read_at")
	}
	block := s.buf[at : at+StackVariableSize]
	tag := DataType(binary.LittleEndian.Uint32(block[8:12]))
	return tag, block[:8], nil
}

// Truncate sets the stack offset directly, used by `ret` to discard
// everything above the frame base except the relocated return value.
func (s *MainStack) Truncate(offset uint32) error {
	if offset > uint32(len(s.buf)) {
		return errStackOverflow("truncate")
	}
	s.offset = offset
	return nil
}
