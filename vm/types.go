package vm

import "fmt"

// DataType tags every primitive value the VM ever pushes, pops, or stores.
// The numeric values match the encoding used by the source bytecode
// (bits 16..23 of a Block) so decoded opcodes can be cast directly.
type DataType uint8

const (
	TypeF64 DataType = 0
	TypeF32 DataType = 1
	TypeI64 DataType = 2
	TypeI32 DataType = 3
	TypeI16 DataType = 4
	TypeStr DataType = 5
	TypeVar DataType = 6
)

func (t DataType) String() string {
	switch t {
	case TypeF64:
		return "f64"
	case TypeF32:
		return "f32"
	case TypeI64:
		return "i64"
	case TypeI32:
		return "i32"
	case TypeI16:
		return "i16"
	case TypeStr:
		return "str"
	case TypeVar:
		return "var"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
}

// Width returns the number of bytes a value of this type occupies when
// pushed directly to the main stack (not wrapped as a stack variable).
func (t DataType) Width() uint32 {
	switch t {
	case TypeF64, TypeI64:
		return 8
	case TypeF32, TypeI32, TypeStr:
		return 4
	case TypeI16:
		return 2
	case TypeVar:
		return StackVariableSize
	default:
		return 0
	}
}

func (t DataType) IsFloat() bool {
	return t == TypeF64 || t == TypeF32
}

func (t DataType) IsIntegral() bool {
	return t == TypeI64 || t == TypeI32 || t == TypeI16
}

func (t DataType) IsNumeric() bool {
	return t.IsFloat() || t.IsIntegral()
}

// StackVariableSize is the fixed on-stack footprint of a tagged, late-bound
// "stack variable": an 8-byte payload slot (zero-padded for narrower
// primitives) followed by an 8-byte tag slot (DataType value in the low 4
// bytes, zero-padded above it). See MainStack.PushStackVariable.
const StackVariableSize uint32 = 16

// StringReference is a 32-bit handle into the form's decoded string table.
type StringReference uint32

// VarId identifies a named variable within an instance or the global scope.
type VarId uint32

// InstType selects where a `var`-typed operand's value actually lives.
type InstType uint8

const (
	InstStackTopOrGlobal InstType = 0
	InstGlobal           InstType = 1
	InstLocal            InstType = 2
	InstInstance         InstType = 3
)

func (t InstType) String() string {
	switch t {
	case InstStackTopOrGlobal:
		return "stack_top_or_global"
	case InstGlobal:
		return "global"
	case InstLocal:
		return "local"
	case InstInstance:
		return "instance"
	default:
		return fmt.Sprintf("InstType(%d)", uint8(t))
	}
}

// VarType further qualifies a variable access (e.g. plain vs. array-indexed).
// Only VarNormal is defined. ReadVariable and WriteVariable take no VarType
// and do not check one, so other VarType codes are not rejected anywhere.
type VarType uint8

const (
	VarNormal VarType = 0
)

// StackPrimitive constrains MainStack's generic push/pop helpers to the
// concrete Go types that back each DataType.
type StackPrimitive interface {
	~int16 | ~int32 | ~int64 | ~float32 | ~float64 | StringReference
}

// InstanceId identifies an instance in the InstanceManager. The zero value
// is reserved for the global instance.
type InstanceId uint32

const GlobalInstanceId InstanceId = 0
