package vm

import "github.com/rs/zerolog"

// traceBlock emits one debug-level event per dispatched block when a
// logger is configured, mirroring the original's compile-time
// `debug::vm_verbose_instructions` trace. With the zero-value logger
// (which has no writer), zerolog short-circuits before formatting, so
// there's no cost when tracing is off.
func (vm *VM) traceBlock(pc uint32, d DecodedBlock) {
	vm.logger.Debug().
		Uint32("pc", pc).
		Str("op", d.Opcode.String()).
		Str("t1", d.T1.String()).
		Str("t2", d.T2.String()).
		Uint32("stack_offset", vm.stack.Offset()).
		Msg("dispatch")
}

// traceUnknownChunk emits one warn-level event per non-fatal unknown chunk
// encountered while decoding a Form.
func traceUnknownChunk(logger zerolog.Logger, tag string, length uint32) {
	logger.Warn().Str("tag", tag).Uint32("length", length).Msg("unknown chunk, skipping")
}
