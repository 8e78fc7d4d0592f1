package vm

// Operand is the type dispatcher's normalized runtime value: every
// primitive DataType's payload decoded into one of an integer or float
// slot, tagged with its original DataType so arithmetic results and
// write-back know the concrete width to re-encode. IsVar marks that the
// operand was unwrapped from a stack variable, so its result (per the
// arithmetic join rule) must be re-wrapped as one.
//
// This realizes spec.md §4.6/§9's type dispatcher as an explicit
// switch-nest over the 7 DataTypes (Design Notes option (a)) rather than
// the source's recursive C++ template expansion: each PopDispatch/
// arithmetic call is one finite switch, and the k^n coverage contract is
// satisfied because every DataType×DataType pair routes through joinType,
// which exhaustively lists the valid combinations and rejects the rest
// with InvalidTypeCombination.
type Operand struct {
	Tag   DataType
	IsVar bool
	I     int64
	F     float64
	S     StringReference
}

// AsFloat returns the operand's value widened to float64 regardless of
// whether it is natively integral or floating point.
func (o Operand) AsFloat() float64 {
	if o.Tag.IsFloat() {
		return o.F
	}
	return float64(o.I)
}

// AsInt returns the operand's value narrowed/truncated to int64, valid for
// integral operands (float operands truncate toward zero).
func (o Operand) AsInt() int64 {
	if o.Tag.IsIntegral() {
		return o.I
	}
	return int64(o.F)
}

func readPrimitiveOperand(s *MainStack, t DataType) (Operand, error) {
	switch t {
	case TypeF64:
		v, err := Pop[float64](s)
		return Operand{Tag: t, F: v}, err
	case TypeF32:
		v, err := Pop[float32](s)
		return Operand{Tag: t, F: float64(v)}, err
	case TypeI64:
		v, err := Pop[int64](s)
		return Operand{Tag: t, I: v}, err
	case TypeI32:
		v, err := Pop[int32](s)
		return Operand{Tag: t, I: int64(v)}, err
	case TypeI16:
		v, err := Pop[int16](s)
		return Operand{Tag: t, I: int64(v)}, err
	case TypeStr:
		v, err := Pop[StringReference](s)
		return Operand{Tag: t, S: v}, err
	default:
		return Operand{}, errInvalidTypeCombination("pop_dispatch")
	}
}

func readVariableParameterOperand(s *MainStack, tag DataType) (Operand, error) {
	switch tag {
	case TypeF64:
		v, err := ReadVariableParameter[float64](s)
		return Operand{Tag: tag, F: v, IsVar: true}, err
	case TypeF32:
		v, err := ReadVariableParameter[float32](s)
		return Operand{Tag: tag, F: float64(v), IsVar: true}, err
	case TypeI64:
		v, err := ReadVariableParameter[int64](s)
		return Operand{Tag: tag, I: v, IsVar: true}, err
	case TypeI32:
		v, err := ReadVariableParameter[int32](s)
		return Operand{Tag: tag, I: int64(v), IsVar: true}, err
	case TypeI16:
		v, err := ReadVariableParameter[int16](s)
		return Operand{Tag: tag, I: int64(v), IsVar: true}, err
	case TypeStr:
		v, err := ReadVariableParameter[StringReference](s)
		return Operand{Tag: tag, S: v, IsVar: true}, err
	default:
		return Operand{}, errInvalidVariableAccess("read_variable_parameter")
	}
}

// PopDispatch pops one operand of declared type t. If t is var, the tag is
// popped first and the payload is then read at the tag's width (spec.md
// §4.6).
func PopDispatch(s *MainStack, t DataType) (Operand, error) {
	if t == TypeVar {
		tag, err := s.PopStackVariableTag()
		if err != nil {
			return Operand{}, err
		}
		return readVariableParameterOperand(s, tag)
	}
	return readPrimitiveOperand(s, t)
}

// OpPop2 pops using t1 for the topmost value and t2 for the one beneath it,
// delivering (a, b) in logical operand order even though b is popped first
// (spec.md §4.6/§6).
func OpPop2(s *MainStack, t1, t2 DataType) (a, b Operand, err error) {
	b, err = PopDispatch(s, t1)
	if err != nil {
		return
	}
	a, err = PopDispatch(s, t2)
	return
}

func operandPayloadBytes(o Operand) []byte {
	switch o.Tag {
	case TypeF64:
		return encode(o.F)
	case TypeF32:
		return encode(float32(o.F))
	case TypeI64:
		return encode(o.I)
	case TypeI32:
		return encode(int32(o.I))
	case TypeI16:
		return encode(int16(o.I))
	case TypeStr:
		return encode(o.S)
	default:
		return nil
	}
}

// PushOperand pushes an Operand back onto the stack, wrapping it as a
// stack variable when IsVar is set.
func PushOperand(s *MainStack, o Operand) error {
	if o.IsVar {
		return s.PushStackVariable(o.Tag, operandPayloadBytes(o))
	}
	switch o.Tag {
	case TypeF64:
		return Push(s, o.F)
	case TypeF32:
		return Push(s, float32(o.F))
	case TypeI64:
		return Push(s, o.I)
	case TypeI32:
		return Push(s, int32(o.I))
	case TypeI16:
		return Push(s, int16(o.I))
	case TypeStr:
		return Push(s, o.S)
	default:
		return errInvalidTypeCombination("push_operand")
	}
}

// truncateToWidth re-narrows an int64 accumulator to the two's-complement
// width of t, so results always fit the join type exactly.
func truncateToWidth(t DataType, v int64) int64 {
	switch t {
	case TypeI16:
		return int64(int16(v))
	case TypeI32:
		return int64(int32(v))
	default:
		return v
	}
}

// joinType implements the arithmetic join rule (spec.md §4.7): both
// operands numeric, promoted to the widest type present, with any float
// operand forcing the float branch at width max(float widths present, 32).
func joinType(a, b DataType) (DataType, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return 0, errInvalidTypeCombination("join")
	}
	if a.IsFloat() || b.IsFloat() {
		widest := uint32(32)
		if a.IsFloat() && a.Width()*8 > widest {
			widest = a.Width() * 8
		}
		if b.IsFloat() && b.Width()*8 > widest {
			widest = b.Width() * 8
		}
		if widest >= 64 {
			return TypeF64, nil
		}
		return TypeF32, nil
	}
	wa, wb := a.Width()*8, b.Width()*8
	w := wa
	if wb > w {
		w = wb
	}
	switch w {
	case 16:
		return TypeI16, nil
	case 32:
		return TypeI32, nil
	case 64:
		return TypeI64, nil
	default:
		return 0, errInvalidTypeCombination("join")
	}
}

// Arithmetic evaluates add/sub/mul/div under the join rule, re-wrapping the
// result as a stack variable if either input was one.
func Arithmetic(op Opcode, a, b Operand) (Operand, error) {
	joined, err := joinType(a.Tag, b.Tag)
	if err != nil {
		return Operand{}, err
	}
	resultIsVar := a.IsVar || b.IsVar

	if joined.IsFloat() {
		x, y := a.AsFloat(), b.AsFloat()
		var r float64
		switch op {
		case OpAdd:
			r = x + y
		case OpSub:
			r = x - y
		case OpMul:
			r = x * y
		case OpDiv:
			r = x / y
		default:
			return Operand{}, errInvalidTypeCombination("arithmetic")
		}
		if joined == TypeF32 {
			r = float64(float32(r))
		}
		return Operand{Tag: joined, F: r, IsVar: resultIsVar}, nil
	}

	x, y := a.AsInt(), b.AsInt()
	var r int64
	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpDiv:
		if y == 0 {
			return Operand{}, errDivisionByZero("div")
		}
		r = x / y
	default:
		return Operand{}, errInvalidTypeCombination("arithmetic")
	}
	return Operand{Tag: joined, I: truncateToWidth(joined, r), IsVar: resultIsVar}, nil
}

// Shift evaluates shl/shr: both operands must be integral; the shift
// amount is masked to width(a)-1 bits, and shr is arithmetic (sign
// propagating) for signed types — which every integral DataType is.
func Shift(op Opcode, a, b Operand) (Operand, error) {
	if !a.Tag.IsIntegral() || !b.Tag.IsIntegral() {
		return Operand{}, errInvalidTypeCombination("shift")
	}
	mask := int64(a.Tag.Width()*8 - 1)
	amount := uint(b.AsInt() & mask)
	resultIsVar := a.IsVar || b.IsVar

	x := a.AsInt()
	var r int64
	switch op {
	case OpShl:
		r = x << amount
	case OpShr:
		r = x >> amount
	default:
		return Operand{}, errInvalidTypeCombination("shift")
	}
	return Operand{Tag: a.Tag, I: truncateToWidth(a.Tag, r), IsVar: resultIsVar}, nil
}

// Compare evaluates cmp under the join rule and returns a bool result
// represented as i32 0/1.
func Compare(fn CompFunc, a, b Operand) (Operand, error) {
	joined, err := joinType(a.Tag, b.Tag)
	if err != nil {
		return Operand{}, err
	}

	var result bool
	if joined.IsFloat() {
		x, y := a.AsFloat(), b.AsFloat()
		result, err = compareOrdered(fn, x, y)
	} else {
		x, y := a.AsInt(), b.AsInt()
		result, err = compareOrdered(fn, x, y)
	}
	if err != nil {
		return Operand{}, err
	}

	v := int64(0)
	if result {
		v = 1
	}
	return Operand{Tag: TypeI32, I: v, IsVar: a.IsVar || b.IsVar}, nil
}

func compareOrdered[T int64 | float64](fn CompFunc, x, y T) (bool, error) {
	switch fn {
	case CompLt:
		return x < y, nil
	case CompLte:
		return x <= y, nil
	case CompEq:
		return x == y, nil
	case CompNeq:
		return x != y, nil
	case CompGte:
		return x >= y, nil
	case CompGt:
		return x > y, nil
	default:
		return false, errInvalidTypeCombination("cmp")
	}
}

// Convert evaluates `conv t1→t2`. Converting to var wraps the source value
// (at its own tag) as a stack variable rather than changing its payload
// type.
func Convert(a Operand, t2 DataType) (Operand, error) {
	if t2 == TypeVar {
		return Operand{Tag: a.Tag, I: a.I, F: a.F, S: a.S, IsVar: true}, nil
	}
	if !a.Tag.IsNumeric() || !t2.IsNumeric() {
		return Operand{}, errInvalidTypeCombination("conv")
	}
	if t2.IsFloat() {
		f := a.AsFloat()
		if t2 == TypeF32 {
			f = float64(float32(f))
		}
		return Operand{Tag: t2, F: f}, nil
	}
	return Operand{Tag: t2, I: truncateToWidth(t2, a.AsInt())}, nil
}
