package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geeth24/codeflow/interp"
	"github.com/geeth24/codeflow/trace"
	"github.com/geeth24/codeflow/vm"
)

// TimeoutMessage is the error text carried by a synthetic timeout step.
const TimeoutMessage = "Execution timeout exceeded"

// Executor runs untrusted code and produces the ordered step trace.
// It is the run-scoped capability object: tracing, module loading,
// input, output, and randomness all flow through it, and nothing in a
// run touches process-wide state. A mutex serializes runs so one
// Executor hosts at most one run at a time; independent Executors run
// concurrently without interference.
type Executor struct {
	mu       sync.Mutex
	timeout  time.Duration
	maxSteps int
	gate     *Gatekeeper
	cache    *programCache

	// state owned by the active run
	tracer *trace.Tracer
	input  *bufio.Scanner
	output strings.Builder
	rng    *rand.Rand
}

type Option func(*Executor)

func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

func WithMaxSteps(n int) Option {
	return func(e *Executor) { e.maxSteps = n }
}

func WithAllowedModules(modules []string) Option {
	return func(e *Executor) { e.gate = NewGatekeeper(modules) }
}

func WithCacheSize(n int) Option {
	return func(e *Executor) { e.cache = newProgramCache(n) }
}

func New(opts ...Option) *Executor {
	e := &Executor{
		timeout:  DefaultTimeout,
		maxSteps: DefaultMaxSteps,
		gate:     NewGatekeeper(nil),
		cache:    newProgramCache(0),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs one submission in a fresh namespace and returns the
// steps observed before completion or failure. Each run sees only its
// own input text; the previous run's input never leaks forward.
func (e *Executor) Execute(ctx context.Context, code string, input string) (steps []trace.Step, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prog, err := e.compile(code)
	if err != nil {
		return nil, err
	}

	e.tracer = trace.NewTracer(prog)
	e.input = bufio.NewScanner(strings.NewReader(input))
	e.output.Reset()
	e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	defer func() {
		e.input = nil
		// A fault inside the interpreter must never cross the run
		// boundary; the caller gets the steps observed so far plus an
		// error.
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Executor: interpreter fault")
			steps = e.tracer.Steps()
			err = fmt.Errorf("internal execution fault: %v", r)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	globals := interp.NewGlobals()
	start := time.Now()
	_, err = interp.RunToEnd(runCtx, prog, e, globals, globals, e.maxSteps)
	log.Debug().
		Dur("elapsed", time.Since(start)).
		Int("steps", e.tracer.StepCount()).
		Err(err).
		Msg("Executor: run finished")

	return e.tracer.Steps(), err
}

// TraceExecution is the outer boundary: it never fails. Failures
// become data, appended as a final synthetic step, and an empty run
// yields exactly one padding step.
func (e *Executor) TraceExecution(ctx context.Context, code string, input string) []trace.Step {
	steps, err := e.Execute(ctx, code, input)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, interp.ErrStepBudget) {
			msg = TimeoutMessage
		}
		errStep := trace.NewErrorStep(msg)
		errStep.Step = len(steps) + 1
		return append(steps, errStep)
	}
	if len(steps) == 0 {
		return []trace.Step{trace.NewPaddingStep()}
	}
	return steps
}

// Output returns what the last run printed.
func (e *Executor) Output() string {
	return e.output.String()
}

func (e *Executor) compile(code string) (*vm.Program, error) {
	if prog, ok := e.cache.Get(code); ok {
		log.Trace().Msg("Executor: program cache hit")
		return prog, nil
	}
	prog, err := vm.CompileLiteral(code)
	if err != nil {
		return nil, err
	}
	e.cache.Put(code, prog)
	return prog, nil
}

// Host capabilities handed to the interpreter for the active run.

func (e *Executor) TraceLine(line int, frames []*interp.StackFrame) error {
	return e.tracer.OnLine(line, frames)
}

func (e *Executor) LoadModule(name string) (vm.Value, error) {
	return e.gate.Load(name)
}

func (e *Executor) ReadLine() (string, error) {
	if e.input == nil || !e.input.Scan() {
		return "", fmt.Errorf("EOF when reading a line")
	}
	return e.input.Text(), nil
}

func (e *Executor) Print(s string) {
	e.output.WriteString(s)
}

func (e *Executor) RandFloat64() float64 {
	return e.rng.Float64()
}

func (e *Executor) RandIntN(n int) int {
	return e.rng.Intn(n)
}

func (e *Executor) SeedRand(seed int64) {
	e.rng = rand.New(rand.NewSource(seed))
}
