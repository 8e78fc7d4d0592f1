package vm

import "fmt"

// Block is one 32-bit instruction word: [opcode:8][t2:4][t1:4][imm16:16],
// with the low 24 bits reinterpreted as a signed displacement for branches
// (spec.md §6). Grounded on the teacher's packed Instruction{code,register,
// arg} (vm/compile.go) and the original's single-word opcode+type+imm fetch
// (interpreter/vm.cpp's dispatcher loop).
type Block uint32

// Opcode is the 8-bit operation selector occupying a Block's top byte.
type Opcode uint8

const (
	OpConv Opcode = iota + 1
	OpMul
	OpDiv
	OpAdd
	OpSub
	OpShl
	OpShr
	OpCmp
	OpPopz
	OpB
	OpBt
	OpBf
	OpPushi16
	OpPushspc
	OpCall
	OpRet
	OpPushenv
	OpPopenv
)

func (o Opcode) String() string {
	switch o {
	case OpConv:
		return "conv"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpShl:
		return "shl"
	case OpShr:
		return "shr"
	case OpCmp:
		return "cmp"
	case OpPopz:
		return "popz"
	case OpB:
		return "b"
	case OpBt:
		return "bt"
	case OpBf:
		return "bf"
	case OpPushi16:
		return "pushi16"
	case OpPushspc:
		return "pushspc"
	case OpCall:
		return "call"
	case OpRet:
		return "ret"
	case OpPushenv:
		return "pushenv"
	case OpPopenv:
		return "popenv"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// CompFunc selects the comparison performed by `cmp`, packed into bits
// 8..15 of the instruction's imm16 (spec.md §6).
type CompFunc uint8

const (
	CompLt CompFunc = iota + 1
	CompLte
	CompEq
	CompNeq
	CompGte
	CompGt
)

func (c CompFunc) String() string {
	switch c {
	case CompLt:
		return "lt"
	case CompLte:
		return "lte"
	case CompEq:
		return "eq"
	case CompNeq:
		return "neq"
	case CompGte:
		return "gte"
	case CompGt:
		return "gt"
	default:
		return fmt.Sprintf("CompFunc(%d)", uint8(c))
	}
}

// SpecialVar enumerates the pseudo-variables `pushspc` can copy onto the
// stack. Argument codes 0..15 address the callee's n-th stack-variable
// argument at frame.stack_offset + n*StackVariableSize.
type SpecialVar uint32

const (
	SpecialArgument0 SpecialVar = iota
)

// IsArgument reports whether this code addresses one of the 16 argument
// slots, returning the argument index if so.
func (s SpecialVar) IsArgument() (index int, ok bool) {
	if s <= 15 {
		return int(s), true
	}
	return 0, false
}

// DecodedBlock is a Block split into its logical fields. Imm16 is the raw
// unsigned low 16 bits; callers reinterpret it (signed imm16, comp func,
// argument count) per opcode. Imm24 is the sign-extended low 24 bits used by
// branch instructions.
type DecodedBlock struct {
	Opcode Opcode
	T1     DataType
	T2     DataType
	Imm16  uint16
	Imm24  int32
}

// DecodeBlock splits a raw word per the bit layout in spec.md §6.
func DecodeBlock(b Block) DecodedBlock {
	raw := uint32(b)
	imm24 := int32(raw & 0x00FFFFFF)
	if imm24&0x00800000 != 0 {
		imm24 |= ^int32(0x00FFFFFF)
	}
	return DecodedBlock{
		Opcode: Opcode(raw >> 24),
		T2:     DataType((raw >> 20) & 0xF),
		T1:     DataType((raw >> 16) & 0xF),
		Imm16:  uint16(raw & 0xFFFF),
		Imm24:  imm24,
	}
}

// SignedImm16 sign-extends the low 16 bits, used by `pushi16`.
func (d DecodedBlock) SignedImm16() int32 {
	return int32(int16(d.Imm16))
}

// CompFunc extracts the comparison selector from bits 8..15 of Imm16.
func (d DecodedBlock) CompFunc() CompFunc {
	return CompFunc((d.Imm16 >> 8) & 0xFF)
}

// ArgCount extracts `call`'s argument count from the low 16 bits.
func (d DecodedBlock) ArgCount() int {
	return int(d.Imm16)
}

// Script is a named, immutable sequence of decoded blocks. Id is the SCPT
// chunk's id for this script, joined by name against the CODE entry during
// decode; scripts with no matching SCPT row keep the zero value.
type Script struct {
	Name string
	Id   uint32
	Code []Block
}

// FunctionDefinition resolves a `call` target: either a builtin (looked up
// by Name in a BuiltinRegistry) or the index of a Script in the owning
// Form.
type FunctionDefinition struct {
	Name        string
	IsBuiltin   bool
	ScriptIndex int
}
