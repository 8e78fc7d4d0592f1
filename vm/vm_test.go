package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// mkBlock packs a Block from its logical fields, mirroring DecodeBlock's
// inverse, so tests can write bytecode without hand-computing hex words.
func mkBlock(op Opcode, t1, t2 DataType, imm uint32) Block {
	return Block(uint32(op)<<24 | uint32(t2)<<20 | uint32(t1)<<16 | (imm & 0xFFFFFF))
}

func runScript(t *testing.T, code []Block) (*VM, error) {
	t.Helper()
	form := &Form{Scripts: []Script{{Name: "main", Code: code}}}
	machine := NewVM(form)
	err := machine.Run(context.Background(), &form.Scripts[0])
	return machine, err
}

// Scenario 1: push-pop round trip (spec.md §8.1), adapted with an explicit
// trailing conv-to-var since `ret` requires its operand already wrapped as
// a stack variable.
func TestScenarioPushPopRoundTrip(t *testing.T) {
	code := []Block{
		mkBlock(OpPushi16, 0, 0, 0xFFF9), // imm16 = -7 (two's complement)
		mkBlock(OpConv, TypeI32, TypeI64, 0),
		mkBlock(OpConv, TypeI64, TypeVar, 0),
		mkBlock(OpRet, 0, 0, 0),
	}
	vm, err := runScript(t, code)
	require.NoError(t, err)

	tag, payload, err := vm.stack.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, TypeI64, tag)
	require.EqualValues(t, -7, decode[int64](payload[:8]))
}

// Scenario 2: arithmetic join (spec.md §8.2).
func TestScenarioArithmeticJoin(t *testing.T) {
	code := []Block{
		mkBlock(OpPushi16, 0, 0, 3),
		mkBlock(OpConv, TypeI32, TypeF64, 0),
		mkBlock(OpPushi16, 0, 0, 2),
		mkBlock(OpConv, TypeI32, TypeI64, 0),
		mkBlock(OpMul, TypeI64, TypeF64, 0),
		mkBlock(OpConv, TypeF64, TypeVar, 0),
		mkBlock(OpRet, 0, 0, 0),
	}
	vm, err := runScript(t, code)
	require.NoError(t, err)

	tag, payload, err := vm.stack.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, TypeF64, tag)
	require.Equal(t, 6.0, decode[float64](payload[:8]))
}

// Scenario 3/4: comparison & branch, taken and not-taken (spec.md §8.3/8.4).
func comparisonBranchScript(fn CompFunc) []Block {
	return []Block{
		mkBlock(OpPushi16, 0, 0, 5),            // 0
		mkBlock(OpPushi16, 0, 0, 5),             // 1
		mkBlock(OpCmp, TypeI32, TypeI32, uint32(fn)<<8), // 2
		mkBlock(OpBf, 0, 0, uint32(int32(3))&0xFFFFFF),  // 3: bf +3 -> false lands on index 6
		mkBlock(OpPushi16, 0, 0, 1),             // 4
		mkBlock(OpB, 0, 0, uint32(int32(2))&0xFFFFFF),   // 5: b +2 -> skip index 6, land on index 7
		mkBlock(OpPushi16, 0, 0, 0),             // 6
		mkBlock(OpConv, TypeI32, TypeVar, 0),    // 7
		mkBlock(OpRet, 0, 0, 0),                 // 8
	}
}

func TestScenarioComparisonBranchTaken(t *testing.T) {
	vm, err := runScript(t, comparisonBranchScript(CompEq))
	require.NoError(t, err)
	tag, payload, err := vm.stack.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, TypeI32, tag)
	require.EqualValues(t, 1, decode[int32](payload[:4]))
}

func TestScenarioComparisonBranchNotTaken(t *testing.T) {
	vm, err := runScript(t, comparisonBranchScript(CompNeq))
	require.NoError(t, err)
	tag, payload, err := vm.stack.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, TypeI32, tag)
	require.EqualValues(t, 0, decode[int32](payload[:4]))
}

// Branch idempotence property (spec.md §8): `b +1` is a stack no-op that
// advances PC by exactly one block.
func TestBranchUnconditionalNoOp(t *testing.T) {
	code := []Block{
		mkBlock(OpB, 0, 0, 1), // +1, lands on the very next block
		mkBlock(OpPushi16, 0, 0, 0xFFF9), // imm16 = -7 (two's complement)
		mkBlock(OpConv, TypeI32, TypeVar, 0),
		mkBlock(OpRet, 0, 0, 0),
	}
	_, err := runScript(t, code)
	require.NoError(t, err)
}

// Branch idempotence property: `b +0` loops forever, caught by StepBudget.
func TestBranchInfiniteLoopCaughtByStepBudget(t *testing.T) {
	code := []Block{
		mkBlock(OpB, 0, 0, 0),
	}
	form := &Form{Scripts: []Script{{Name: "loop", Code: code}}}
	machine := NewVM(form)
	machine.StepBudget = 1000
	err := machine.Run(context.Background(), &form.Scripts[0])
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCancelledErr)
}

// Scenario 5: call/ret with arguments (spec.md §8.5).
func TestScenarioCallWithArguments(t *testing.T) {
	callee := Script{
		Name: "add_args",
		Code: []Block{
			mkBlock(OpPushspc, 0, 0, 0),
			Block(0), // SpecialVar argument[0]
			mkBlock(OpPushspc, 0, 0, 0),
			Block(1), // SpecialVar argument[1]
			mkBlock(OpAdd, TypeVar, TypeVar, 0),
			mkBlock(OpRet, 0, 0, 0),
		},
	}
	caller := Script{
		Name: "main",
		Code: []Block{
			mkBlock(OpPushi16, 0, 0, 3),
			mkBlock(OpConv, TypeI32, TypeVar, 0),
			mkBlock(OpPushi16, 0, 0, 4),
			mkBlock(OpConv, TypeI32, TypeVar, 0),
			mkBlock(OpCall, 0, 0, 2), // argc=2
			Block(0),                // function index 0
			mkBlock(OpRet, 0, 0, 0),
		},
	}
	form := &Form{
		Scripts:   []Script{caller, callee},
		Functions: []FunctionDefinition{{Name: "add_args", IsBuiltin: false, ScriptIndex: 1}},
	}
	machine := NewVM(form)
	err := machine.Run(context.Background(), &form.Scripts[0])
	require.NoError(t, err)

	tag, payload, err := machine.stack.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, TypeI32, tag)
	require.EqualValues(t, 7, decode[int32](payload[:4]))
	// Frame invariant: exactly one stack variable remains above base.
	require.EqualValues(t, StackVariableSize, machine.stack.Offset())
}

func TestCallUnregisteredBuiltinIsUnimplementedBuiltin(t *testing.T) {
	caller := Script{
		Name: "main",
		Code: []Block{
			mkBlock(OpCall, 0, 0, 0),
			Block(0),
		},
	}
	form := &Form{
		Scripts:   []Script{caller},
		Functions: []FunctionDefinition{{Name: "missing_builtin", IsBuiltin: true}},
	}
	machine := NewVM(form)
	err := machine.Run(context.Background(), &form.Scripts[0])
	require.Error(t, err)
	var verr *VMError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrUnimplementedBuiltin, verr.Kind)
}

func TestPushenvPopenvReservedButDoesNotFail(t *testing.T) {
	code := []Block{
		mkBlock(OpPushenv, 0, 0, 0),
		mkBlock(OpPopenv, 0, 0, 0),
		mkBlock(OpPushi16, 0, 0, 0),
		mkBlock(OpConv, TypeI32, TypeVar, 0),
		mkBlock(OpRet, 0, 0, 0),
	}
	_, err := runScript(t, code)
	require.NoError(t, err)
}

func TestUnknownOpcodeIsFatal(t *testing.T) {
	code := []Block{
		Block(0xFF << 24),
	}
	_, err := runScript(t, code)
	require.Error(t, err)
	var verr *VMError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrUnknownOpcode, verr.Kind)
}

func TestWriteVariableReadOnlyStackTopOrGlobal(t *testing.T) {
	form := &Form{Scripts: []Script{{Name: "main"}}}
	machine := NewVM(form)
	err := machine.WriteVariable(InstStackTopOrGlobal, 0, 0, TypeI32, encode(int32(1)))
	require.Error(t, err)
	var verr *VMError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, ErrInvalidVariableAccess, verr.Kind)
}

func TestWriteVariableGlobalRoundTrip(t *testing.T) {
	form := &Form{Scripts: []Script{{Name: "main"}}}
	machine := NewVM(form)
	require.NoError(t, machine.WriteVariable(InstGlobal, 5, 0, TypeI32, encode(int32(42))))

	tag, payload, err := machine.ReadVariable(InstGlobal, 5, 0)
	require.NoError(t, err)
	require.Equal(t, TypeI32, tag)
	require.EqualValues(t, 42, decode[int32](payload[:4]))
}
