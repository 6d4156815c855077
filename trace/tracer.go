package trace

import (
	"github.com/rs/zerolog/log"

	"github.com/geeth24/codeflow/interp"
	"github.com/geeth24/codeflow/vm"
)

// Tracer accumulates one Step per observed statement boundary. A
// tracer belongs to exactly one run; step numbers restart at 1 for
// each new tracer.
type Tracer struct {
	prog  *vm.Program
	steps []Step
	count int
}

func NewTracer(prog *vm.Program) *Tracer {
	return &Tracer{prog: prog}
}

// OnLine records a statement boundary. The innermost frame's bindings
// become the locals snapshot, in first-bound order, with reserved
// dunder names dropped. The stack reads outermost first.
func (t *Tracer) OnLine(line int, frames []*interp.StackFrame) error {
	t.count++

	locals := NewDict()
	if len(frames) > 0 {
		current := frames[len(frames)-1]
		for _, name := range current.Order {
			if isDunder(name) {
				continue
			}
			locals.Set(name, SerializeValue(current.Variables[name]))
		}
	}

	stack := make([]string, 0, len(frames))
	for _, f := range frames {
		name, ok := t.prog.FunctionName(f.PC)
		if !ok {
			name = "<unknown>"
		}
		stack = append(stack, name)
	}

	log.Trace().Int("step", t.count).Int("line", line).Int("stack_depth", len(stack)).Msg("Tracer: captured step")
	t.steps = append(t.steps, Step{
		Step:   t.count,
		Line:   line,
		Locals: locals,
		Stack:  stack,
	})
	return nil
}

// Steps returns the accumulated observations in execution order.
func (t *Tracer) Steps() []Step {
	return t.steps
}

func (t *Tracer) StepCount() int {
	return t.count
}
