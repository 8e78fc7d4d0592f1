package vm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// defaultMaxStackDepth is spec.md §3's `max_stack_depth`: the fixed
// capacity of the main stack's backing buffer.
const defaultMaxStackDepth uint32 = 1 << 20

// VM is the interpreter: one instance owns its stacks, frames, contexts,
// and instance manager, and is not safe to run concurrently with itself
// (spec.md §5). Grounded on the teacher's VM struct (vm/vm.go) — fixed
// stack array, registers, single-threaded execInstructions loop — with
// registers replaced by the frame/context/instance model spec.md requires.
type VM struct {
	form      *Form
	stack     *MainStack
	frames    *FrameStack
	contexts  *ContextStack
	instances *InstanceManager
	builtins  BuiltinRegistry
	logger    zerolog.Logger

	// Strict realizes debug.vm_safer (spec.md §7, §9 Open Question):
	// when true (the default), an InvalidTypeCombination on an unsupported
	// opcode/type pairing is a fatal error; an implementation running with
	// Strict=false would instead treat it as a silent no-op, which this VM
	// does not otherwise support (no undefined-behavior escape hatch).
	Strict bool

	// StepBudget, when non-zero, bounds the number of dispatched blocks
	// before Run returns Cancelled — a cooperative alternative to
	// ctx cancellation for callers that want a deterministic bound
	// (spec.md §5's "cooperative step budget").
	StepBudget uint64
	steps      uint64
}

// NewVM constructs a VM over a decoded Form with an empty builtin registry
// and strict mode enabled.
func NewVM(form *Form) *VM {
	return &VM{
		form:      form,
		stack:     NewMainStack(defaultMaxStackDepth),
		frames:    NewFrameStack(),
		contexts:  NewContextStack(),
		instances: NewInstanceManager(),
		builtins:  NewBuiltinRegistry(),
		Strict:    true,
	}
}

// SetLogger attaches a structured logger; the zero value disables tracing
// entirely (see log.go).
func (vm *VM) SetLogger(logger zerolog.Logger) { vm.logger = logger }

// Builtins returns the registry the host populates before Run.
func (vm *VM) Builtins() BuiltinRegistry { return vm.builtins }

// Form returns the decoded container this VM executes against.
func (vm *VM) Form() *Form { return vm.form }

// Stack exposes the main stack for builtins that need to read/push
// arguments and return values directly.
func (vm *VM) Stack() *MainStack { return vm.stack }

// Frames exposes the frame stack for builtins doing argument addressing.
func (vm *VM) Frames() *FrameStack { return vm.frames }

// PushStackVariable pushes a host-supplied initial argument as a tagged
// stack variable, per C10's `push_stack_variable<T>(v)`.
func PushStackVariable[T StackPrimitive](vm *VM, v T) error {
	var tag DataType
	switch any(v).(type) {
	case int16:
		tag = TypeI16
	case int32:
		tag = TypeI32
	case int64:
		tag = TypeI64
	case float32:
		tag = TypeF32
	case float64:
		tag = TypeF64
	case StringReference:
		tag = TypeStr
	}
	return vm.stack.PushStackVariable(tag, encode(v))
}

// Run executes the entry script to completion. Any arguments the host
// wants visible as argument[0..n] must already be pushed via
// PushStackVariable before calling Run.
func (vm *VM) Run(ctx context.Context, script *Script) error {
	if _, err := vm.frames.Push(Frame{StackOffset: vm.stack.Offset()}); err != nil {
		return err
	}
	defer vm.frames.Pop()
	return vm.execute(ctx, script)
}

// completeReturn implements `ret`'s stack relocation: the top
// StackVariableSize bytes (the return value) move down to frame's base,
// and everything above that is discarded.
func (vm *VM) completeReturn(frame Frame) error {
	tag, payload, err := vm.stack.PopStackVariable()
	if err != nil {
		return err
	}
	if err := vm.stack.WriteAt(frame.StackOffset, tag, payload); err != nil {
		return err
	}
	return vm.stack.Truncate(frame.StackOffset + StackVariableSize)
}

// checkBudget enforces both cooperative context cancellation and the
// optional fixed StepBudget (spec.md §5/§7 Cancelled).
func (vm *VM) checkBudget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errCancelled("run")
	}
	if vm.StepBudget != 0 {
		vm.steps++
		if vm.steps > vm.StepBudget {
			return errCancelled("run")
		}
	}
	return nil
}

// execute runs one script's block stream to its `ret`, recursing into
// callee scripts synchronously for `call` (spec.md §4.7/§5: suspension
// only ever happens at the cooperative cancellation check, never mid
// instruction).
func (vm *VM) execute(ctx context.Context, script *Script) error {
	var pc uint32

	for pc < uint32(len(script.Code)) {
		if err := vm.checkBudget(ctx); err != nil {
			return err
		}

		block := script.Code[pc]
		d := DecodeBlock(block)
		vm.traceBlock(pc, d)

		switch d.Opcode {
		case OpConv:
			a, err := PopDispatch(vm.stack, d.T1)
			if err != nil {
				return vmErr(err, d, pc)
			}
			res, err := Convert(a, d.T2)
			if err != nil {
				return vmErr(err, d, pc)
			}
			if err := PushOperand(vm.stack, res); err != nil {
				return vmErr(err, d, pc)
			}

		case OpMul, OpDiv, OpAdd, OpSub:
			a, b, err := OpPop2(vm.stack, d.T1, d.T2)
			if err != nil {
				return vmErr(err, d, pc)
			}
			res, err := Arithmetic(d.Opcode, a, b)
			if err != nil {
				return vmErr(err, d, pc)
			}
			if err := PushOperand(vm.stack, res); err != nil {
				return vmErr(err, d, pc)
			}

		case OpShl, OpShr:
			a, b, err := OpPop2(vm.stack, d.T1, d.T2)
			if err != nil {
				return vmErr(err, d, pc)
			}
			res, err := Shift(d.Opcode, a, b)
			if err != nil {
				return vmErr(err, d, pc)
			}
			if err := PushOperand(vm.stack, res); err != nil {
				return vmErr(err, d, pc)
			}

		case OpCmp:
			a, b, err := OpPop2(vm.stack, d.T1, d.T2)
			if err != nil {
				return vmErr(err, d, pc)
			}
			res, err := Compare(d.CompFunc(), a, b)
			if err != nil {
				return vmErr(err, d, pc)
			}
			if err := PushOperand(vm.stack, res); err != nil {
				return vmErr(err, d, pc)
			}

		case OpPopz:
			if _, err := PopDispatch(vm.stack, d.T1); err != nil {
				return vmErr(err, d, pc)
			}

		case OpB:
			pc = uint32(int64(pc) + int64(d.Imm24))
			continue

		case OpBt, OpBf:
			cond, err := Pop[int32](vm.stack)
			if err != nil {
				return vmErr(err, d, pc)
			}
			taken := (cond != 0) == (d.Opcode == OpBt)
			if taken {
				pc = uint32(int64(pc) + int64(d.Imm24))
				continue
			}

		case OpPushi16:
			if err := Push(vm.stack, d.SignedImm16()); err != nil {
				return vmErr(err, d, pc)
			}

		case OpPushspc:
			pc++
			if pc >= uint32(len(script.Code)) {
				return vmErr(errTruncatedInput("pushspc"), d, pc)
			}
			code := SpecialVar(uint32(script.Code[pc]) & 0x00FFFFFF)
			index, ok := code.IsArgument()
			if !ok {
				return vmErr(errUnimplemented("pushspc"), d, pc)
			}
			frame := vm.frames.Top()
			addr := frame.StackOffset + uint32(index)*StackVariableSize
			tag, payload, err := vm.stack.ReadAt(addr)
			if err != nil {
				return vmErr(err, d, pc)
			}
			if err := vm.stack.PushStackVariable(tag, payload); err != nil {
				return vmErr(err, d, pc)
			}

		case OpCall:
			argCount := d.ArgCount()
			pc++
			if pc >= uint32(len(script.Code)) {
				return vmErr(errTruncatedInput("call"), d, pc)
			}
			funcIndex := uint32(script.Code[pc])
			if int(funcIndex) >= len(vm.form.Functions) {
				return vmErr(errUnimplementedBuiltin("call"), d, pc)
			}
			fn := vm.form.Functions[funcIndex]

			frameOffset := vm.stack.Offset() - uint32(argCount)*StackVariableSize
			frame, err := vm.frames.Push(Frame{StackOffset: frameOffset})
			if err != nil {
				return vmErr(err, d, pc)
			}

			if fn.IsBuiltin {
				builtin, ok := vm.builtins[fn.Name]
				if !ok {
					vm.frames.Pop()
					return vmErr(errUnimplementedBuiltin(fn.Name), d, pc)
				}
				if err := builtin(vm, argCount); err != nil {
					vm.frames.Pop()
					return vmErr(err, d, pc)
				}
				if err := vm.completeReturn(*frame); err != nil {
					vm.frames.Pop()
					return vmErr(err, d, pc)
				}
			} else {
				if fn.ScriptIndex < 0 || fn.ScriptIndex >= len(vm.form.Scripts) {
					vm.frames.Pop()
					return vmErr(errUnknownOpcode("call"), d, pc)
				}
				callee := &vm.form.Scripts[fn.ScriptIndex]
				if err := vm.execute(ctx, callee); err != nil {
					vm.frames.Pop()
					if verr, ok := err.(*VMError); ok {
						return verr.WithScript(callee.Name)
					}
					return err
				}
			}
			vm.frames.Pop()

		case OpRet:
			frame := vm.frames.Top()
			if err := vm.completeReturn(*frame); err != nil {
				return vmErr(err, d, pc)
			}
			return nil

		case OpPushenv:
			vm.contexts.Push(Context{})

		case OpPopenv:
			vm.contexts.Pop()

		default:
			return vmErr(errUnknownOpcode(d.Opcode.String()), d, pc)
		}

		pc++
	}
	return nil
}

func vmErr(err error, d DecodedBlock, pc uint32) error {
	if verr, ok := err.(*VMError); ok {
		return verr.WithPC(pc)
	}
	return newVMError(ErrUnimplemented, d.Opcode.String()).WithPC(pc).Wrap(err)
}

// ReadVariable resolves a var-typed operand's actual storage through
// InstType: the stack-top-or-global and global cases both read from the
// global instance's variable table, local reads a stack variable relative
// to the current frame, and instance reads from the current context's
// self instance. Any other code is InvalidVariableAccess (spec.md §9 Open
// Question).
func (vm *VM) ReadVariable(instType InstType, id VarId, localOffset uint32) (DataType, []byte, error) {
	switch instType {
	case InstStackTopOrGlobal, InstGlobal:
		slot, ok := vm.instances.Global().Get(id)
		if !ok {
			return 0, nil, errInvalidVariableAccess("read_variable")
		}
		return slot.Tag, slot.Payload[:], nil
	case InstLocal:
		frame := vm.frames.Top()
		if frame == nil {
			return 0, nil, errInvalidVariableAccess("read_variable")
		}
		addr := frame.StackOffset + localOffset*StackVariableSize
		return vm.stack.ReadAt(addr)
	case InstInstance:
		ctx, ok := vm.contexts.Top()
		if !ok || !ctx.HasSelf {
			return 0, nil, errInvalidVariableAccess("read_variable")
		}
		slot, ok := vm.instances.Instance(ctx.InstanceId).Get(id)
		if !ok {
			return 0, nil, errInvalidVariableAccess("read_variable")
		}
		return slot.Tag, slot.Payload[:], nil
	default:
		return 0, nil, errInvalidVariableAccess("read_variable")
	}
}

// WriteVariable dispatches on InstType per spec.md §4.7: `global` stores
// into the global instance's slot, `local` writes a stack variable at
// frame.base+local_offset, `instance` writes the current context's self
// instance, and `stack_top_or_global` is read-only — a write there, or to
// any unhandled InstType, is InvalidVariableAccess.
func (vm *VM) WriteVariable(instType InstType, id VarId, localOffset uint32, tag DataType, payload []byte) error {
	switch instType {
	case InstStackTopOrGlobal:
		return errInvalidVariableAccess("write_variable")
	case InstGlobal:
		var slot VariableSlot
		slot.Tag = tag
		copy(slot.Payload[:], payload)
		vm.instances.Global().Set(id, slot)
		return nil
	case InstLocal:
		frame := vm.frames.Top()
		if frame == nil {
			return errInvalidVariableAccess("write_variable")
		}
		addr := frame.StackOffset + localOffset*StackVariableSize
		return vm.stack.WriteAt(addr, tag, payload)
	case InstInstance:
		ctx, ok := vm.contexts.Top()
		if !ok || !ctx.HasSelf {
			return errInvalidVariableAccess("write_variable")
		}
		var slot VariableSlot
		slot.Tag = tag
		copy(slot.Payload[:], payload)
		vm.instances.Instance(ctx.InstanceId).Set(id, slot)
		return nil
	default:
		return errInvalidVariableAccess("write_variable")
	}
}

// PrintStackFrame renders a debug snapshot of the top frame and current
// stack offset, per C10's `print_stack_frame()` debug inspection hook.
func (vm *VM) PrintStackFrame() string {
	frame := vm.frames.Top()
	if frame == nil {
		return "<no active frame>"
	}
	tag, payload, err := vm.stack.ReadAt(frame.StackOffset)
	if err != nil {
		return "<frame base unreadable>"
	}
	return fmt.Sprintf("frame_stack_offset=%d stack_offset=%d base_tag=%s base_payload=%x",
		frame.StackOffset, vm.stack.Offset(), tag, payload)
}
