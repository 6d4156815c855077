package interp

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/geeth24/codeflow/vm"
)

// Builtins that need host capabilities. Everything pure lives in
// vm.BuiltinRegistry instead.
var hostBuiltins = map[string]bool{
	"print":          true,
	"input":          true,
	"struct":         true,
	"random.random":  true,
	"random.randint": true,
	"random.uniform": true,
	"random.choice":  true,
	"random.seed":    true,
}

func isHostBuiltin(name string) bool {
	return hostBuiltins[name]
}

// BuildCallFrame resolves a CALL with n arguments. For a user-defined
// function it returns the new stack frame to push. For builtins and
// type constructors it evaluates immediately, pushes the result onto
// the caller's stack, and returns nil.
func BuildCallFrame(prog *vm.Program, frame *StackFrame, n int, host Host) (*StackFrame, error) {
	if len(frame.Stack) < n+1 {
		return nil, fmt.Errorf("Call stack is too short to buildCallFrame")
	}
	callee := frame.Pop()
	args := make([]vm.ArgValue, n)
	for i := n - 1; i >= 0; i-- {
		var ok bool
		args[i], ok = frame.Pop().(vm.ArgValue)
		if !ok {
			return nil, fmt.Errorf("Compiler error: stack contains non-call arguments")
		}
	}

	switch fn := callee.(type) {
	case vm.FnPtrValue:
		return bindFunctionFrame(prog, fn, args)
	case vm.BuiltinValue:
		ret, err := callBuiltin(fn.Name, args, host)
		if err != nil {
			return nil, err
		}
		frame.Push(ret)
		return nil, nil
	case vm.TypeValue:
		ret, err := construct(fn.Name, args)
		if err != nil {
			return nil, err
		}
		frame.Push(ret)
		return nil, nil
	default:
		return nil, fmt.Errorf("'%s' object is not callable", vm.TypeName(callee))
	}
}

func bindFunctionFrame(prog *vm.Program, fnPtr vm.FnPtrValue, args []vm.ArgValue) (*StackFrame, error) {
	ptr := fnPtr.Ptr
	newFrame := &StackFrame{
		PC:        ptr,
		Variables: make(map[string]vm.Value),
	}
	if ptr.CodeID() == 0 || ptr.CodeID() > len(prog.Code) {
		return nil, fmt.Errorf("function pointer for '%s' is out of range", fnPtr.Name)
	}
	fn := prog.Code[ptr.CodeID()-1]
	for _, p := range fn.Params {
		found := false
		for i, a := range args {
			if a.Key == p.Name {
				newFrame.StoreVar(p.Name, a.Value)
				args = slices.Delete(args, i, i+1)
				found = true
				break
			}
		}
		if found {
			continue
		}
		// Positional args fill remaining params in order
		if len(args) != 0 && args[0].Key == "" {
			a := args[0]
			args = args[1:]
			newFrame.StoreVar(p.Name, a.Value)
			continue
		}
		if p.Default != nil {
			newFrame.StoreVar(p.Name, p.Default)
		} else {
			return nil, fmt.Errorf("%s() missing required argument: '%s'", fn.Name, p.Name)
		}
	}
	if len(args) != 0 {
		return nil, fmt.Errorf("%s() got unexpected arguments", fn.Name)
	}
	return newFrame, nil
}

// BuildMethodCallFrame resolves a CALL_METHOD with n arguments.
// Stack on entry: arg1..argN, receiver, methodName. All methods run
// immediately; the possibly-replaced receiver is pushed first, then
// the return value.
func BuildMethodCallFrame(frame *StackFrame, n int) error {
	if len(frame.Stack) < n+2 {
		return fmt.Errorf("Call stack is too short to buildMethodCallFrame")
	}
	methodName, ok := frame.Pop().(vm.StrValue)
	if !ok {
		return fmt.Errorf("Compiler error: method name is not a string")
	}
	receiver := frame.Pop()
	args := make([]vm.Value, n)
	for i := n - 1; i >= 0; i-- {
		a, ok := frame.Pop().(vm.ArgValue)
		if !ok {
			return fmt.Errorf("Compiler error: stack contains non-call arguments")
		}
		if a.Key != "" {
			return fmt.Errorf("%s() takes no keyword arguments", methodName)
		}
		args[i] = a.Value
	}

	typeName := vm.TypeName(receiver)
	typeMethods, ok := vm.MethodRegistry[typeName]
	if !ok {
		return fmt.Errorf("'%s' object has no methods", typeName)
	}
	impl, ok := typeMethods[string(methodName)]
	if !ok {
		return fmt.Errorf("'%s' object has no attribute '%s'", typeName, methodName)
	}
	ret, newReceiver, err := impl(receiver, args)
	if err != nil {
		return err
	}
	if newReceiver == nil {
		newReceiver = receiver
	}
	frame.Push(newReceiver)
	frame.Push(ret)
	return nil
}

func callBuiltin(name string, args []vm.ArgValue, host Host) (vm.Value, error) {
	if name == "struct" {
		// struct(**kwargs) builds a record with named fields in
		// declaration order.
		obj := &vm.ObjectValue{Class: "struct"}
		for _, a := range args {
			if a.Key == "" {
				return nil, fmt.Errorf("struct() only accepts keyword arguments")
			}
			obj.Set(a.Key, a.Value)
		}
		return obj, nil
	}
	if isHostBuiltin(name) {
		return callHostBuiltin(name, args, host)
	}
	fn, ok := vm.BuiltinRegistry[name]
	if !ok {
		return nil, fmt.Errorf("name '%s' is not defined", name)
	}
	positional, err := positionalArgs(name, args)
	if err != nil {
		return nil, err
	}
	return fn(positional)
}

func callHostBuiltin(name string, args []vm.ArgValue, host Host) (vm.Value, error) {
	if host == nil {
		return nil, fmt.Errorf("%s() is not available", name)
	}
	positional, err := positionalArgs(name, args)
	if err != nil {
		return nil, err
	}
	switch name {
	case "print":
		parts := make([]string, len(positional))
		for i, v := range positional {
			parts[i] = ToString(v)
		}
		host.Print(strings.Join(parts, " ") + "\n")
		return vm.None, nil
	case "input":
		line, err := host.ReadLine()
		if err != nil {
			return nil, err
		}
		return vm.StrValue(line), nil
	case "random.random":
		if len(positional) != 0 {
			return nil, fmt.Errorf("random() takes no arguments")
		}
		return vm.FloatValue(host.RandFloat64()), nil
	case "random.randint":
		a, b, err := twoInts("randint", positional)
		if err != nil {
			return nil, err
		}
		if b < a {
			return nil, fmt.Errorf("randint() empty range %d..%d", a, b)
		}
		return vm.IntValue(a + host.RandIntN(b-a+1)), nil
	case "random.uniform":
		a, b, err := twoFloats("uniform", positional)
		if err != nil {
			return nil, err
		}
		return vm.FloatValue(a + host.RandFloat64()*(b-a)), nil
	case "random.choice":
		if len(positional) != 1 {
			return nil, fmt.Errorf("choice() takes exactly one argument")
		}
		seq, ok := positional[0].(vm.ArrayValue)
		if !ok {
			return nil, fmt.Errorf("choice() requires a list, got %s", vm.TypeName(positional[0]))
		}
		if len(seq) == 0 {
			return nil, fmt.Errorf("choice() from empty sequence")
		}
		return seq[host.RandIntN(len(seq))], nil
	case "random.seed":
		if len(positional) != 1 {
			return nil, fmt.Errorf("seed() takes exactly one argument")
		}
		seed, ok := positional[0].(vm.IntValue)
		if !ok {
			return nil, fmt.Errorf("seed() requires an integer, got %s", vm.TypeName(positional[0]))
		}
		host.SeedRand(int64(seed))
		return vm.None, nil
	}
	return nil, fmt.Errorf("name '%s' is not defined", name)
}

func construct(typeName string, args []vm.ArgValue) (vm.Value, error) {
	positional, err := positionalArgs(typeName, args)
	if err != nil {
		return nil, err
	}
	if len(positional) == 0 {
		switch typeName {
		case "int":
			return vm.IntValue(0), nil
		case "float":
			return vm.FloatValue(0), nil
		case "str":
			return vm.StrValue(""), nil
		case "bool":
			return vm.BoolFalse, nil
		case "list":
			return vm.ArrayValue{}, nil
		case "dict":
			return vm.StructValue{}, nil
		}
		return nil, fmt.Errorf("cannot construct %s", typeName)
	}
	if len(positional) != 1 {
		return nil, fmt.Errorf("%s() takes at most one argument", typeName)
	}
	v := positional[0]
	switch typeName {
	case "int":
		switch val := v.(type) {
		case vm.IntValue:
			return val, nil
		case vm.FloatValue:
			return vm.IntValue(int(val)), nil
		case vm.BoolValue:
			if val {
				return vm.IntValue(1), nil
			}
			return vm.IntValue(0), nil
		case vm.StrValue:
			i, err := strconv.Atoi(strings.TrimSpace(string(val)))
			if err != nil {
				return nil, fmt.Errorf("invalid literal for int(): '%s'", val)
			}
			return vm.IntValue(i), nil
		}
	case "float":
		switch val := v.(type) {
		case vm.FloatValue:
			return val, nil
		case vm.IntValue:
			return vm.FloatValue(float64(val)), nil
		case vm.BoolValue:
			if val {
				return vm.FloatValue(1), nil
			}
			return vm.FloatValue(0), nil
		case vm.StrValue:
			f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
			if err != nil {
				return nil, fmt.Errorf("could not convert string to float: '%s'", val)
			}
			return vm.FloatValue(f), nil
		}
	case "str":
		return vm.StrValue(ToString(v)), nil
	case "bool":
		return vm.BoolValue(v.AsBool()), nil
	case "list":
		switch val := v.(type) {
		case vm.ArrayValue:
			out := make(vm.ArrayValue, len(val))
			copy(out, val)
			return out, nil
		case vm.SetValue:
			out := make(vm.ArrayValue, len(val))
			copy(out, val)
			return out, nil
		case vm.StrValue:
			out := make(vm.ArrayValue, 0, len(val))
			for _, c := range string(val) {
				out = append(out, vm.StrValue(string(c)))
			}
			return out, nil
		case vm.StructValue:
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			out := make(vm.ArrayValue, 0, len(keys))
			for _, k := range keys {
				out = append(out, vm.StrValue(k))
			}
			return out, nil
		}
	case "dict":
		if val, ok := v.(vm.StructValue); ok {
			out := make(vm.StructValue, len(val))
			for k, elem := range val {
				out[k] = elem
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%s() argument must not be a %s", typeName, vm.TypeName(v))
}

func positionalArgs(name string, args []vm.ArgValue) ([]vm.Value, error) {
	out := make([]vm.Value, len(args))
	for i, a := range args {
		if a.Key != "" {
			return nil, fmt.Errorf("%s() takes no keyword arguments", name)
		}
		out[i] = a.Value
	}
	return out, nil
}

func twoInts(name string, args []vm.Value) (int, int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("%s() takes exactly two arguments", name)
	}
	a, aok := args[0].(vm.IntValue)
	b, bok := args[1].(vm.IntValue)
	if !aok || !bok {
		return 0, 0, fmt.Errorf("%s() requires integer arguments", name)
	}
	return int(a), int(b), nil
}

func twoFloats(name string, args []vm.Value) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("%s() takes exactly two arguments", name)
	}
	a, aok := asFloatArg(args[0])
	b, bok := asFloatArg(args[1])
	if !aok || !bok {
		return 0, 0, fmt.Errorf("%s() requires numeric arguments", name)
	}
	return a, b, nil
}

func asFloatArg(v vm.Value) (float64, bool) {
	switch val := v.(type) {
	case vm.IntValue:
		return float64(val), true
	case vm.FloatValue:
		return float64(val), true
	}
	return 0, false
}
