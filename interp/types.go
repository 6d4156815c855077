package interp

import (
	"github.com/geeth24/codeflow/vm"
)

type StepResult int

const (
	ContinueStep StepResult = iota
	ReturnStep
	EndStep
	CallStep
	MethodCallStep // Method call encountered (e.g., arr.append(x))
	ErrorStep
	TraceStep  // Statement boundary reached; n carries the source line
	ImportStep // Module load requested; the IMPORT op is at frame.PC
)

type Program interface {
	GetInstruction(vm.ExecPtr) (vm.Op, error)
	Resolve(name string) (vm.ExecPtr, bool)
	FunctionName(vm.ExecPtr) (string, bool)
}

// Host supplies the run-scoped capabilities the interpreter needs. One
// Host belongs to exactly one run; nothing here is process-global.
type Host interface {
	// TraceLine is called before each statement executes. frames is the
	// live call stack, outermost first.
	TraceLine(line int, frames []*StackFrame) error
	// LoadModule resolves a load() target, or rejects it.
	LoadModule(name string) (vm.Value, error)
	// ReadLine serves the input() builtin.
	ReadLine() (string, error)
	// Print serves the print() builtin.
	Print(s string)
	// RandFloat64 and RandIntN serve the random module. SeedRand resets
	// the run's generator.
	RandFloat64() float64
	RandIntN(n int) int
	SeedRand(seed int64)
}

// StackFrame is one activation record. Variables keeps insertion order
// in Order so locals snapshots read in first-assignment order.
type StackFrame struct {
	Stack         []vm.Value
	PC            vm.ExecPtr
	Variables     map[string]vm.Value
	Order         []string
	IteratorStack []*IteratorState
}

type StackFrames []*StackFrame

func (s *StackFrames) PopStack() *StackFrame {
	f := s.CurrentStack()
	*s = (*s)[:len(*s)-1]
	return f
}

func (s *StackFrames) Append(f *StackFrame) {
	*s = append(*s, f)
}

func (s StackFrames) CurrentStack() *StackFrame {
	return s[len(s)-1]
}

type IteratorState struct {
	Start    vm.ExecPtr
	End      vm.ExecPtr
	Iter     Iterator
	VarNames []string // Loop variable names for updating in ITER_NEXT
}

type Iterator interface {
	Next() bool
	Var1() vm.Value
	Var2() vm.Value
}
