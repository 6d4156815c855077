package interp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/geeth24/codeflow/vm"
)

// How many instructions run between context deadline checks. Traced
// code only executes inside this loop, so polling here is enough.
const deadlineCheckInterval = 64

// ErrStepBudget is returned when a run exceeds its instruction budget.
var ErrStepBudget = fmt.Errorf("instruction budget exhausted")

// RunToEnd drives a program from its top frame until the outermost
// frame returns or falls off the end of its bytecode. Every statement
// boundary is reported to the host before the statement executes, and
// every load() goes through the host for an allow decision.
func RunToEnd(ctx context.Context, prog *vm.Program, host Host, globals *StackFrame, start *StackFrame, maxSteps int) (vm.Value, error) {
	frames := StackFrames{start}
	stepCount := 0
	for {
		stepCount++
		if maxSteps > 0 && stepCount > maxSteps {
			return nil, ErrStepBudget
		}
		if stepCount%deadlineCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		res, n, err := Step(prog, globals, frames)
		if err != nil {
			return nil, err
		}

		switch res {
		case ContinueStep:
			continue
		case ReturnStep:
			if len(frames) == 1 {
				val := start.Pop()
				start.Stack = nil
				return val, nil
			}
			f := frames.PopStack()
			val := f.Pop()
			// The caller's PC already moved past the CALL op when the
			// frame was pushed.
			caller := frames.CurrentStack()
			caller.Push(val)
			log.Trace().Int("stack_depth", len(frames)).Msg("RunToEnd: function returned")
		case EndStep:
			if len(frames) == 1 {
				start.Stack = nil
				return vm.None, nil
			}
			frames.PopStack()
			caller := frames.CurrentStack()
			caller.Push(vm.None)
			log.Trace().Int("stack_depth", len(frames)).Msg("RunToEnd: function ended without return")
		case CallStep:
			currentFrame := frames.CurrentStack()
			f, err := BuildCallFrame(prog, currentFrame, n, host)
			if err != nil {
				return nil, err
			}
			if f == nil {
				// Builtin ran inline, result is on the stack
				currentFrame.PC = currentFrame.PC.Inc()
				continue
			}
			currentFrame.PC = currentFrame.PC.Inc()
			frames.Append(f)
			log.Trace().Int("stack_depth", len(frames)).Msg("RunToEnd: pushed call frame")
		case MethodCallStep:
			currentFrame := frames.CurrentStack()
			if err := BuildMethodCallFrame(currentFrame, n); err != nil {
				return nil, err
			}
			currentFrame.PC = currentFrame.PC.Inc()
		case TraceStep:
			if host != nil {
				if err := host.TraceLine(n, frames); err != nil {
					return nil, err
				}
			}
		case ImportStep:
			currentFrame := frames.CurrentStack()
			inst, err := prog.GetInstruction(currentFrame.PC)
			if err != nil {
				return nil, err
			}
			name, ok := inst.Arg.(vm.StrValue)
			if !ok {
				return nil, fmt.Errorf("Compiler error: import without module name")
			}
			if host == nil {
				return nil, fmt.Errorf("cannot import '%s': no module loader", name)
			}
			mod, err := host.LoadModule(string(name))
			if err != nil {
				return nil, err
			}
			currentFrame.Push(mod)
			currentFrame.PC = currentFrame.PC.Inc()
			log.Trace().Str("module", string(name)).Msg("RunToEnd: module loaded")
		default:
			return nil, fmt.Errorf("unhandled step result %s", resultToString(res))
		}
	}
}

func resultToString(res StepResult) string {
	switch res {
	case ContinueStep:
		return "Continue"
	case ReturnStep:
		return "Return"
	case EndStep:
		return "End"
	case CallStep:
		return "Call"
	case MethodCallStep:
		return "MethodCall"
	case ErrorStep:
		return "Error"
	case TraceStep:
		return "Trace"
	case ImportStep:
		return "Import"
	default:
		return "Unknown"
	}
}
