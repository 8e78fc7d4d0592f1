package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinTypeWidestWins(t *testing.T) {
	tests := []struct {
		a, b DataType
		want DataType
	}{
		{TypeI16, TypeI32, TypeI32},
		{TypeI32, TypeI64, TypeI64},
		{TypeI32, TypeF32, TypeF32},
		{TypeI32, TypeF64, TypeF64},
		{TypeF32, TypeF64, TypeF64},
		{TypeI16, TypeI16, TypeI16},
	}
	for _, tt := range tests {
		got, err := joinType(tt.a, tt.b)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "join(%s,%s)", tt.a, tt.b)
	}
}

func TestJoinTypeRejectsNonNumeric(t *testing.T) {
	_, err := joinType(TypeStr, TypeI32)
	require.Error(t, err)
	var verr *VMError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrInvalidTypeCombination, verr.Kind)
}

func TestArithmeticIntegerAdd(t *testing.T) {
	a := Operand{Tag: TypeI32, I: 3}
	b := Operand{Tag: TypeI64, I: 4}
	res, err := Arithmetic(OpAdd, a, b)
	require.NoError(t, err)
	require.Equal(t, TypeI64, res.Tag)
	require.EqualValues(t, 7, res.I)
}

func TestArithmeticMixedNumericJoin(t *testing.T) {
	// 3 (i64) * 2.0 (f64) == 6.0 (f64), matching the mul/conv scenario.
	a := Operand{Tag: TypeI64, I: 3}
	b := Operand{Tag: TypeF64, F: 2.0}
	res, err := Arithmetic(OpMul, a, b)
	require.NoError(t, err)
	require.Equal(t, TypeF64, res.Tag)
	require.Equal(t, 6.0, res.F)
}

func TestArithmeticDivisionByZeroInteger(t *testing.T) {
	a := Operand{Tag: TypeI32, I: 10}
	b := Operand{Tag: TypeI32, I: 0}
	_, err := Arithmetic(OpDiv, a, b)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDivisionByZeroErr)
}

func TestArithmeticFloatDivisionByZeroIsInf(t *testing.T) {
	a := Operand{Tag: TypeF64, F: 10}
	b := Operand{Tag: TypeF64, F: 0}
	res, err := Arithmetic(OpDiv, a, b)
	require.NoError(t, err)
	require.True(t, math.IsInf(res.F, 1))
}

func TestArithmeticVarPropagation(t *testing.T) {
	a := Operand{Tag: TypeI32, I: 5, IsVar: true}
	b := Operand{Tag: TypeI32, I: 2}
	res, err := Arithmetic(OpAdd, a, b)
	require.NoError(t, err)
	require.True(t, res.IsVar)
}

func TestShiftMasksToOperandWidth(t *testing.T) {
	a := Operand{Tag: TypeI32, I: 1}
	b := Operand{Tag: TypeI32, I: 33} // masked to 33 & 31 == 1
	res, err := Shift(OpShl, a, b)
	require.NoError(t, err)
	require.EqualValues(t, 2, res.I)
}

func TestShiftRejectsFloat(t *testing.T) {
	a := Operand{Tag: TypeF32, F: 1}
	b := Operand{Tag: TypeI32, I: 1}
	_, err := Shift(OpShl, a, b)
	require.Error(t, err)
}

func TestCompareEq(t *testing.T) {
	a := Operand{Tag: TypeI32, I: 5}
	b := Operand{Tag: TypeI32, I: 5}
	res, err := Compare(CompEq, a, b)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.I)
	require.Equal(t, TypeI32, res.Tag)
}

func TestConvertNarrowingTruncates(t *testing.T) {
	a := Operand{Tag: TypeI32, I: 0x1FFFF} // > int16 range
	res, err := Convert(a, TypeI16)
	require.NoError(t, err)
	require.EqualValues(t, -1, res.I) // low 16 bits 0xFFFF read as int16
}

func TestConvertToVarWrapsPayloadType(t *testing.T) {
	a := Operand{Tag: TypeI32, I: 7}
	res, err := Convert(a, TypeVar)
	require.NoError(t, err)
	require.True(t, res.IsVar)
	require.Equal(t, TypeI32, res.Tag)
	require.EqualValues(t, 7, res.I)
}

func TestDispatcherCoverageAllCombinationsResolveOrReject(t *testing.T) {
	allTypes := []DataType{TypeF64, TypeF32, TypeI64, TypeI32, TypeI16, TypeStr, TypeVar}
	for _, a := range allTypes {
		for _, b := range allTypes {
			// joinType only accepts numeric DataTypes (not str/var);
			// it must either produce a concrete result or a typed
			// InvalidTypeCombination error — never panic.
			require.NotPanics(t, func() {
				_, _ = joinType(a, b)
			})
		}
	}
}

func TestPopDispatchAndPushOperandRoundTripVar(t *testing.T) {
	s := NewMainStack(256)
	require.NoError(t, s.PushStackVariable(TypeI32, encode(int32(11))))

	op, err := PopDispatch(s, TypeVar)
	require.NoError(t, err)
	require.True(t, op.IsVar)
	require.Equal(t, TypeI32, op.Tag)
	require.EqualValues(t, 11, op.I)

	require.NoError(t, PushOperand(s, op))
	tag, payload, err := s.PopStackVariable()
	require.NoError(t, err)
	require.Equal(t, TypeI32, tag)
	require.EqualValues(t, 11, decode[int32](payload[:4]))
}
