package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/geeth24/codeflow/vm"
)

// Step executes exactly one instruction of the top stack frame and
// reports what the driver should do next. TraceStep and ImportStep are
// requests for the host; everything else is ordinary control flow.
func Step(program Program, globals *StackFrame, stack []*StackFrame) (StepResult, int, error) {
	if len(stack) == 0 {
		return ErrorStep, 0, errors.New("No stack frame")
	}
	frame := stack[len(stack)-1]
	inst, err := program.GetInstruction(frame.PC)
	if err != nil {
		if errors.Is(err, vm.ErrEndOfCode) {
			return EndStep, 0, nil
		}
		return ErrorStep, 0, err
	}

	log.Trace().
		Str("opcode", inst.Code.String()).
		Str("pc", frame.PC.String()).
		Int("stack_depth", len(frame.Stack)).
		Msg("Step: executing instruction")

	switch inst.Code {
	case vm.NOP:
	case vm.POP:
		frame.Pop()
	case vm.PUSH:
		frame.Push(inst.Arg.Clone())
	case vm.SETVAL:
		name := frame.Pop()
		val := frame.Pop()
		variable := mustString(name)
		storeVar(variable, val, globals, frame)
	case vm.GETVAL:
		name := frame.Pop()
		varName := mustString(name)
		v, err := resolveVar(varName, program, globals, stack)
		if err != nil {
			return ErrorStep, 0, err
		}
		frame.Push(v)
	case vm.SWAP:
		a := frame.Pop()
		b := frame.Pop()
		frame.Push(a)
		frame.Push(b)
	case vm.DUP:
		a := frame.Pop()
		frame.Push(a)
		frame.Push(a)
	case vm.GETATTR:
		// Stack: A B -> C where C = A[B]
		key := frame.Pop()
		obj := frame.Pop()
		val, err := getAttribute(obj, key)
		if err != nil {
			return ErrorStep, 0, err
		}
		frame.Push(val)
	case vm.SETATTR:
		// Stack: C A B -> nothing, sets A[B] = C
		key := frame.Pop()
		obj := frame.Pop()
		val := frame.Pop()
		err := setAttribute(obj, key, val)
		if err != nil {
			return ErrorStep, 0, err
		}
	case vm.NOT:
		a := frame.Pop()
		frame.Push(vm.BoolValue(!a.AsBool()))
	case vm.ADD:
		b := frame.Pop()
		a := frame.Pop()
		v, err := add(a, b)
		if err != nil {
			return ErrorStep, 0, err
		}
		frame.Push(v)
	case vm.MULTIPLY, vm.DIVIDE, vm.MODULO, vm.FLOOR_DIVIDE, vm.SUBTRACT:
		b := frame.Pop()
		a := frame.Pop()
		v, err := numericOp(inst.Code, a, b)
		if err != nil {
			return ErrorStep, 0, err
		}
		frame.Push(v)
	case vm.EQ:
		b := frame.Pop()
		a := frame.Pop()
		v, ok := vm.Cmp(a, b)
		if !ok {
			// Not comparable, therefore not equal
			frame.Push(vm.BoolFalse)
		} else {
			frame.Push(vm.BoolValue(v == 0))
		}
	case vm.LT:
		b := frame.Pop()
		a := frame.Pop()
		v, ok := vm.Cmp(a, b)
		if !ok {
			return ErrorStep, 0, fmt.Errorf("Can't compare %s to %s", vm.TypeName(a), vm.TypeName(b))
		}
		frame.Push(vm.BoolValue(v < 0))
	case vm.LTE:
		b := frame.Pop()
		a := frame.Pop()
		v, ok := vm.Cmp(a, b)
		if !ok {
			return ErrorStep, 0, fmt.Errorf("Can't compare %s to %s", vm.TypeName(a), vm.TypeName(b))
		}
		frame.Push(vm.BoolValue(v <= 0))
	case vm.IN:
		// Stack: item collection -> bool (item in collection)
		collection := frame.Pop()
		item := frame.Pop()
		result, err := contains(item, collection)
		if err != nil {
			return ErrorStep, 0, err
		}
		frame.Push(result)
	case vm.SLICE:
		// Stack: Sequence Start End -> Result
		// None for start means 0, None for end means len(sequence)
		endVal := frame.Pop()
		startVal := frame.Pop()
		seqVal := frame.Pop()
		result, err := sliceValue(seqVal, startVal, endVal)
		if err != nil {
			return ErrorStep, 0, err
		}
		frame.Push(result)
	case vm.JMP:
		if label, ok := inst.Arg.(vm.IntValue); ok {
			frame.PC = frame.PC.SetOffset(int(label))
			return ContinueStep, 0, nil
		}
		return ErrorStep, 0, fmt.Errorf("JMP requires integer label")
	case vm.JFALSE:
		cond := frame.Pop()
		if !cond.AsBool() {
			if label, ok := inst.Arg.(vm.IntValue); ok {
				frame.PC = frame.PC.SetOffset(int(label))
				return ContinueStep, 0, nil
			}
			return ErrorStep, 0, fmt.Errorf("JFALSE requires integer label")
		}
	case vm.RETURN:
		return ReturnStep, 0, nil
	case vm.BUILD_LIST:
		n, ok := inst.Arg.(vm.IntValue)
		if !ok {
			return ErrorStep, 0, fmt.Errorf("Error in compilation; BUILD_LIST should carry an int")
		}
		l := make([]vm.Value, int(n))
		for i := int(n) - 1; i >= 0; i-- {
			l[i] = frame.Pop()
		}
		frame.Push(vm.ArrayValue(l))
	case vm.BUILD_DICT:
		n, ok := inst.Arg.(vm.IntValue)
		if !ok {
			return ErrorStep, 0, fmt.Errorf("Error in compilation; BUILD_DICT should carry an int")
		}
		l := make(map[string]vm.Value)
		for i := 0; i < int(n); i++ {
			v := frame.Pop()
			pair, ok := v.(vm.ArrayValue)
			if !ok || len(pair) != 2 {
				return ErrorStep, 0, fmt.Errorf("Error in compilation; BUILD_DICT expects pairs")
			}
			l[keyString(pair[0])] = pair[1]
		}
		frame.Push(vm.StructValue(l))
	case vm.BUILD_ARG:
		name := frame.Pop()
		val := frame.Pop()
		if _, isNone := name.(vm.NoneValue); isNone {
			frame.Push(vm.ArgValue{Value: val})
		} else {
			frame.Push(vm.ArgValue{Key: mustString(name), Value: val})
		}
	case vm.CALL:
		if v, ok := inst.Arg.(vm.IntValue); ok {
			return CallStep, int(v), nil
		}
		return ErrorStep, 0, fmt.Errorf("Error in compilation; CALL should carry an int")
	case vm.CALL_METHOD:
		if v, ok := inst.Arg.(vm.IntValue); ok {
			// Stack: arg1, arg2, ..., argN, receiver, methodName
			return MethodCallStep, int(v), nil
		}
		return ErrorStep, 0, fmt.Errorf("Error in compilation; CALL_METHOD should carry an int")
	case vm.TRACE:
		line, ok := inst.Arg.(vm.IntValue)
		if !ok {
			return ErrorStep, 0, fmt.Errorf("Error in compilation; TRACE should carry an int")
		}
		frame.PC = frame.PC.Inc()
		log.Trace().Int("line", int(line)).Msg("Step: statement boundary")
		return TraceStep, int(line), nil
	case vm.IMPORT:
		// The driver reads the module name from the op at frame.PC and
		// advances past it once the host delivers the module.
		log.Trace().Str("pc", frame.PC.String()).Msg("Step: import request")
		return ImportStep, 0, nil
	case vm.ITER_START:
		iterable := frame.Pop()
		varName := frame.Pop()
		return startIteration(frame, inst, iterable, []string{mustString(varName)})
	case vm.ITER_START_2:
		iterable := frame.Pop()
		varName2 := frame.Pop()
		varName1 := frame.Pop()
		return startIteration(frame, inst, iterable, []string{mustString(varName1), mustString(varName2)})
	case vm.ITER_NEXT:
		if len(frame.IteratorStack) == 0 {
			return ErrorStep, 0, fmt.Errorf("ITER_NEXT with empty iterator stack")
		}
		iterState := frame.IteratorStack[len(frame.IteratorStack)-1]
		if !iterState.Iter.Next() {
			// Iterator exhausted, pop it and exit loop
			frame.IteratorStack = frame.IteratorStack[:len(frame.IteratorStack)-1]
			frame.PC = iterState.End
			return ContinueStep, 0, nil
		}
		bindIterVars(frame, iterState)
		frame.PC = iterState.Start
		return ContinueStep, 0, nil
	case vm.ITER_END:
		// break: pop the live iterator and jump past the loop
		if len(frame.IteratorStack) == 0 {
			return ErrorStep, 0, fmt.Errorf("ITER_END with empty iterator stack")
		}
		iterState := frame.IteratorStack[len(frame.IteratorStack)-1]
		frame.IteratorStack = frame.IteratorStack[:len(frame.IteratorStack)-1]
		frame.PC = iterState.End
		return ContinueStep, 0, nil
	default:
		return ErrorStep, 0, fmt.Errorf("Unhandled step instruction %s", inst.Code)
	}
	frame.PC = frame.PC.Inc()
	return ContinueStep, 0, nil
}

func startIteration(frame *StackFrame, inst vm.Op, iterable vm.Value, varNames []string) (StepResult, int, error) {
	var iter Iterator
	switch val := iterable.(type) {
	case vm.ArrayValue:
		iter = &SliceIterator{Values: val, Index: -1, VarCount: len(varNames)}
	case vm.SetValue:
		iter = &SliceIterator{Values: val, Index: -1, VarCount: len(varNames)}
	case vm.StructValue:
		// Sort keys for deterministic iteration
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		iter = &DictIterator{Dict: val, Keys: keys, Index: -1, VarCount: len(varNames)}
	default:
		return ErrorStep, 0, fmt.Errorf("Cannot iterate over %s", vm.TypeName(iterable))
	}

	endLabel := frame.PC.SetOffset(int(inst.Arg.(vm.IntValue)))
	iterState := &IteratorState{
		Start:    frame.PC.Inc(), // Resume point for loop body
		End:      endLabel,       // Exit point
		Iter:     iter,
		VarNames: varNames,
	}
	frame.IteratorStack = append(frame.IteratorStack, iterState)

	if !iter.Next() {
		// Empty iterable, jump to end immediately
		frame.IteratorStack = frame.IteratorStack[:len(frame.IteratorStack)-1]
		frame.PC = endLabel
		return ContinueStep, 0, nil
	}
	bindIterVars(frame, iterState)
	frame.PC = frame.PC.Inc()
	return ContinueStep, 0, nil
}

func bindIterVars(frame *StackFrame, iterState *IteratorState) {
	frame.StoreVar(iterState.VarNames[0], iterState.Iter.Var1())
	if len(iterState.VarNames) == 2 {
		frame.StoreVar(iterState.VarNames[1], iterState.Iter.Var2())
	}
}

func add(a, b vm.Value) (vm.Value, error) {
	switch a.(type) {
	case vm.IntValue, vm.FloatValue:
		return numericOp(vm.ADD, a, b)
	}
	if av, ok := a.(vm.StrValue); ok {
		if bv, ok := b.(vm.StrValue); ok {
			return vm.StrValue(string(av) + string(bv)), nil
		}
	}
	if av, ok := a.(vm.ArrayValue); ok {
		if bv, ok := b.(vm.ArrayValue); ok {
			out := make(vm.ArrayValue, 0, len(av)+len(bv))
			out = append(out, av...)
			out = append(out, bv...)
			return out, nil
		}
	}
	return nil, fmt.Errorf("unsupported operand types for +: %s and %s", vm.TypeName(a), vm.TypeName(b))
}

func numericOp(op vm.Opcode, a, b vm.Value) (vm.Value, error) {
	if av, ok := a.(vm.FloatValue); ok {
		if bv, ok := b.(vm.FloatValue); ok {
			return floatOp(op, float64(av), float64(bv))
		} else if bv, ok := b.(vm.IntValue); ok {
			return floatOp(op, float64(av), float64(bv))
		}
		return nil, fmt.Errorf("unsupported operand types: %s and %s", vm.TypeName(a), vm.TypeName(b))
	}
	if av, ok := a.(vm.IntValue); ok {
		if bv, ok := b.(vm.FloatValue); ok {
			return floatOp(op, float64(av), float64(bv))
		} else if bv, ok := b.(vm.IntValue); ok {
			return intOp(op, int(av), int(bv))
		}
		return nil, fmt.Errorf("unsupported operand types: %s and %s", vm.TypeName(a), vm.TypeName(b))
	}
	// String repetition: "ab" * 3
	if op == vm.MULTIPLY {
		if av, ok := a.(vm.StrValue); ok {
			if bv, ok := b.(vm.IntValue); ok && bv >= 0 {
				return vm.StrValue(strings.Repeat(string(av), int(bv))), nil
			}
		}
	}
	return nil, fmt.Errorf("unsupported operand types: %s and %s", vm.TypeName(a), vm.TypeName(b))
}

func floatOp(op vm.Opcode, a, b float64) (vm.Value, error) {
	switch op {
	case vm.ADD:
		return vm.FloatValue(a + b), nil
	case vm.SUBTRACT:
		return vm.FloatValue(a - b), nil
	case vm.MULTIPLY:
		return vm.FloatValue(a * b), nil
	case vm.DIVIDE:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return vm.FloatValue(a / b), nil
	case vm.MODULO:
		if b == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return vm.FloatValue(math.Mod(a, b)), nil
	case vm.FLOOR_DIVIDE:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return vm.FloatValue(math.Floor(a / b)), nil
	}
	return nil, fmt.Errorf("Unhandled float op %s", op)
}

func intOp(op vm.Opcode, a, b int) (vm.Value, error) {
	switch op {
	case vm.ADD:
		return vm.IntValue(a + b), nil
	case vm.SUBTRACT:
		return vm.IntValue(a - b), nil
	case vm.MULTIPLY:
		return vm.IntValue(a * b), nil
	case vm.DIVIDE:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		// True division always yields a float.
		return vm.FloatValue(float64(a) / float64(b)), nil
	case vm.MODULO:
		if b == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		m := a % b
		// Python-style sign: result takes the divisor's sign.
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return vm.IntValue(m), nil
	case vm.FLOOR_DIVIDE:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return vm.IntValue(q), nil
	}
	return nil, fmt.Errorf("Unhandled int op %s", op)
}

func contains(item, collection vm.Value) (vm.Value, error) {
	switch coll := collection.(type) {
	case vm.ArrayValue:
		for _, elem := range coll {
			if eq, ok := vm.Cmp(item, elem); ok && eq == 0 {
				return vm.BoolTrue, nil
			}
		}
		return vm.BoolFalse, nil
	case vm.SetValue:
		return vm.BoolValue(coll.Contains(item)), nil
	case vm.StrValue:
		itemStr, ok := item.(vm.StrValue)
		if !ok {
			return nil, fmt.Errorf("'in <string>' requires string as left operand, got %s", vm.TypeName(item))
		}
		return vm.BoolValue(strings.Contains(string(coll), string(itemStr))), nil
	case vm.StructValue:
		itemStr, ok := item.(vm.StrValue)
		if !ok {
			return nil, fmt.Errorf("dict membership requires a string key, got %s", vm.TypeName(item))
		}
		_, exists := coll[string(itemStr)]
		return vm.BoolValue(exists), nil
	default:
		return nil, fmt.Errorf("argument of type %s is not iterable", vm.TypeName(collection))
	}
}

func sliceValue(seq, startVal, endVal vm.Value) (vm.Value, error) {
	switch s := seq.(type) {
	case vm.ArrayValue:
		start, end, err := sliceBounds(len(s), startVal, endVal)
		if err != nil {
			return nil, err
		}
		result := make(vm.ArrayValue, end-start)
		copy(result, s[start:end])
		return result, nil
	case vm.StrValue:
		start, end, err := sliceBounds(len(s), startVal, endVal)
		if err != nil {
			return nil, err
		}
		return s[start:end], nil
	default:
		return nil, fmt.Errorf("cannot slice %s", vm.TypeName(seq))
	}
}

func sliceBounds(n int, startVal, endVal vm.Value) (int, int, error) {
	start := 0
	if _, isNone := startVal.(vm.NoneValue); !isNone {
		s, ok := startVal.(vm.IntValue)
		if !ok {
			return 0, 0, fmt.Errorf("slice start must be an integer or None, got %s", vm.TypeName(startVal))
		}
		start = clampIndex(int(s), n)
	}
	end := n
	if _, isNone := endVal.(vm.NoneValue); !isNone {
		e, ok := endVal.(vm.IntValue)
		if !ok {
			return 0, 0, fmt.Errorf("slice end must be an integer or None, got %s", vm.TypeName(endVal))
		}
		end = clampIndex(int(e), n)
	}
	if start > end {
		start = end
	}
	return start, end, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func mustString(v vm.Value) string {
	return string(v.(vm.StrValue))
}

// keyString stringifies any value used as a dict key.
func keyString(v vm.Value) string {
	if s, ok := v.(vm.StrValue); ok {
		return string(s)
	}
	return ToString(v)
}

// storeVar writes a binding. An existing binding in the current frame
// wins; otherwise an existing global is rebound; otherwise a new
// binding is created in the current frame.
func storeVar(name string, val vm.Value, globals *StackFrame, frame *StackFrame) {
	if frame.Has(name) || globals == nil || frame == globals {
		frame.StoreVar(name, val)
		return
	}
	if globals.Has(name) {
		globals.StoreVar(name, val)
		return
	}
	frame.StoreVar(name, val)
}

func resolveVar(name string, program Program, globals *StackFrame, stack []*StackFrame) (vm.Value, error) {
	if len(stack) > 0 {
		currentFrame := stack[len(stack)-1]
		if v, ok := currentFrame.Variables[name]; ok {
			return v, nil
		}
	}
	if globals != nil {
		if v, ok := globals.Variables[name]; ok {
			return v, nil
		}
	}
	if ptr, ok := program.Resolve(name); ok {
		return vm.FnPtrValue{Ptr: ptr, Name: name}, nil
	}
	if t, ok := vm.TypeRegistry[name]; ok {
		return t, nil
	}
	if _, ok := vm.BuiltinRegistry[name]; ok {
		return vm.BuiltinValue{Name: name}, nil
	}
	if isHostBuiltin(name) {
		return vm.BuiltinValue{Name: name}, nil
	}
	return nil, fmt.Errorf("name '%s' is not defined", name)
}

func getAttribute(obj, key vm.Value) (vm.Value, error) {
	switch o := obj.(type) {
	case vm.StructValue:
		// Dictionary access
		k := keyString(key)
		if val, ok := o[k]; ok {
			return val, nil
		}
		return nil, fmt.Errorf("KeyError: '%s'", k)
	case vm.ArrayValue:
		// List index access
		if idx, ok := key.(vm.IntValue); ok {
			i := int(idx)
			if i < 0 {
				i += len(o)
			}
			if i < 0 || i >= len(o) {
				return nil, fmt.Errorf("list index %d out of range for list of length %d", int(idx), len(o))
			}
			return o[i], nil
		}
		return nil, fmt.Errorf("list index must be an integer, got %s", vm.TypeName(key))
	case vm.StrValue:
		if idx, ok := key.(vm.IntValue); ok {
			i := int(idx)
			if i < 0 {
				i += len(o)
			}
			if i < 0 || i >= len(o) {
				return nil, fmt.Errorf("string index %d out of range", int(idx))
			}
			return o[i : i+1], nil
		}
		return nil, fmt.Errorf("string index must be an integer, got %s", vm.TypeName(key))
	case *vm.ObjectValue:
		k := keyString(key)
		if val, ok := o.Get(k); ok {
			return val, nil
		}
		return nil, fmt.Errorf("'%s' object has no attribute '%s'", o.Class, k)
	default:
		return nil, fmt.Errorf("cannot get attribute on %s", vm.TypeName(obj))
	}
}

func setAttribute(obj, key, val vm.Value) error {
	switch o := obj.(type) {
	case vm.StructValue:
		o[keyString(key)] = val
		return nil
	case vm.ArrayValue:
		if idx, ok := key.(vm.IntValue); ok {
			i := int(idx)
			if i < 0 {
				i += len(o)
			}
			if i < 0 || i >= len(o) {
				return fmt.Errorf("list index %d out of range for list of length %d", int(idx), len(o))
			}
			o[i] = val
			return nil
		}
		return fmt.Errorf("list index must be an integer, got %s", vm.TypeName(key))
	case *vm.ObjectValue:
		o.Set(keyString(key), val)
		return nil
	default:
		return fmt.Errorf("cannot set attribute on %s", vm.TypeName(obj))
	}
}
