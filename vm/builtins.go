package vm

import (
	"fmt"
	"math"
)

// BuiltinRegistry maps builtin function names to their implementations.
// Everything here is pure; builtins that need run-scoped capabilities
// (print, input, random) are dispatched by the interpreter's host layer.
var BuiltinRegistry = map[string]func(args []Value) (Value, error){
	"range":  builtinRange,
	"len":    builtinLen,
	"abs":    builtinAbs,
	"min":    builtinMin,
	"max":    builtinMax,
	"sorted": builtinSorted,
	"set":    builtinSet,
	"type":   builtinType,

	"math.sqrt":  math1(math.Sqrt),
	"math.floor": math1(math.Floor),
	"math.ceil":  math1(math.Ceil),
	"math.fabs":  math1(math.Abs),
	"math.log":   math1(math.Log),
	"math.exp":   math1(math.Exp),
	"math.sin":   math1(math.Sin),
	"math.cos":   math1(math.Cos),
	"math.pow":   builtinMathPow,
}

// TypeRegistry holds the type objects callable as constructors.
var TypeRegistry = map[string]TypeValue{
	"int":   {Name: "int"},
	"float": {Name: "float"},
	"str":   {Name: "str"},
	"bool":  {Name: "bool"},
	"list":  {Name: "list"},
	"dict":  {Name: "dict"},
}

// ModuleMath builds the value bound by load("math", ...).
func ModuleMath() StructValue {
	out := StructValue{
		"pi": FloatValue(math.Pi),
		"e":  FloatValue(math.E),
	}
	for _, name := range []string{"sqrt", "floor", "ceil", "fabs", "log", "exp", "sin", "cos", "pow"} {
		out[name] = BuiltinValue{Name: "math." + name}
	}
	return out
}

// builtinRange implements Python-like range() function
// Supports 3 forms:
// - range(stop): returns [0, 1, ..., stop-1]
// - range(start, stop): returns [start, start+1, ..., stop-1]
// - range(start, stop, step): returns [start, start+step, ..., < stop]
func builtinRange(args []Value) (Value, error) {
	var start, stop, step int64

	switch len(args) {
	case 1:
		stopVal, ok := args[0].(IntValue)
		if !ok {
			return nil, fmt.Errorf("range() argument must be an integer, got %T", args[0])
		}
		start = 0
		stop = int64(stopVal)
		step = 1

	case 2:
		startVal, ok := args[0].(IntValue)
		if !ok {
			return nil, fmt.Errorf("range() start must be an integer, got %T", args[0])
		}
		stopVal, ok := args[1].(IntValue)
		if !ok {
			return nil, fmt.Errorf("range() stop must be an integer, got %T", args[1])
		}
		start = int64(startVal)
		stop = int64(stopVal)
		step = 1

	case 3:
		startVal, ok := args[0].(IntValue)
		if !ok {
			return nil, fmt.Errorf("range() start must be an integer, got %T", args[0])
		}
		stopVal, ok := args[1].(IntValue)
		if !ok {
			return nil, fmt.Errorf("range() stop must be an integer, got %T", args[1])
		}
		stepVal, ok := args[2].(IntValue)
		if !ok {
			return nil, fmt.Errorf("range() step must be an integer, got %T", args[2])
		}
		start = int64(startVal)
		stop = int64(stopVal)
		step = int64(stepVal)

		if step == 0 {
			return nil, fmt.Errorf("range() step argument must not be zero")
		}

	default:
		return nil, fmt.Errorf("range() takes 1 to 3 arguments, got %d", len(args))
	}

	var result ArrayValue
	if step > 0 {
		for i := start; i < stop; i += step {
			result = append(result, IntValue(i))
		}
	} else {
		for i := start; i > stop; i += step {
			result = append(result, IntValue(i))
		}
	}
	return result, nil
}

// builtinLen returns the length of lists, strings, dicts, and sets
func builtinLen(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len() takes exactly 1 argument, got %d", len(args))
	}

	switch val := args[0].(type) {
	case ArrayValue:
		return IntValue(len(val)), nil
	case StrValue:
		return IntValue(len(val)), nil
	case StructValue:
		return IntValue(len(val)), nil
	case SetValue:
		return IntValue(len(val)), nil
	default:
		return nil, fmt.Errorf("len() argument must be list, string, dict, or set, got %T", args[0])
	}
}

func builtinAbs(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs() takes exactly 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case IntValue:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case FloatValue:
		return FloatValue(math.Abs(float64(v))), nil
	default:
		return nil, fmt.Errorf("abs() argument must be a number, got %T", args[0])
	}
}

func builtinMin(args []Value) (Value, error) {
	return builtinExtreme("min", args, func(c int) bool { return c < 0 })
}

func builtinMax(args []Value) (Value, error) {
	return builtinExtreme("max", args, func(c int) bool { return c > 0 })
}

func builtinExtreme(name string, args []Value, better func(int) bool) (Value, error) {
	items := args
	if len(args) == 1 {
		arr, ok := args[0].(ArrayValue)
		if !ok {
			return nil, fmt.Errorf("%s() single argument must be a list, got %T", name, args[0])
		}
		items = arr
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s() of an empty sequence", name)
	}
	best := items[0]
	for _, v := range items[1:] {
		c, ok := Cmp(v, best)
		if !ok {
			return nil, fmt.Errorf("%s() arguments are not comparable", name)
		}
		if better(c) {
			best = v
		}
	}
	return best, nil
}

func builtinSorted(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sorted() takes exactly 1 argument, got %d", len(args))
	}
	arr, ok := args[0].(ArrayValue)
	if !ok {
		return nil, fmt.Errorf("sorted() argument must be a list, got %T", args[0])
	}
	out := make(ArrayValue, len(arr))
	copy(out, arr)
	// Insertion sort keeps this free of panics on incomparable pairs.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			c, ok := Cmp(out[j], out[j-1])
			if !ok {
				return nil, fmt.Errorf("sorted() elements are not comparable")
			}
			if c >= 0 {
				break
			}
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func builtinSet(args []Value) (Value, error) {
	var out SetValue
	switch len(args) {
	case 0:
		return out, nil
	case 1:
		arr, ok := args[0].(ArrayValue)
		if !ok {
			return nil, fmt.Errorf("set() argument must be a list, got %T", args[0])
		}
		for _, v := range arr {
			out = out.DedupAppend(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("set() takes at most 1 argument, got %d", len(args))
	}
}

func builtinType(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("type() takes exactly 1 argument, got %d", len(args))
	}
	return TypeValue{Name: TypeName(args[0])}, nil
}

func math1(f func(float64) float64) func(args []Value) (Value, error) {
	return func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("math function takes exactly 1 argument, got %d", len(args))
		}
		x, ok := asFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("math function argument must be a number, got %T", args[0])
		}
		return FloatValue(f(x)), nil
	}
}

func builtinMathPow(args []Value) (Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("math.pow() takes exactly 2 arguments, got %d", len(args))
	}
	x, ok1 := asFloat(args[0])
	y, ok2 := asFloat(args[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("math.pow() arguments must be numbers")
	}
	return FloatValue(math.Pow(x, y)), nil
}

func asFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case IntValue:
		return float64(n), true
	case FloatValue:
		return float64(n), true
	}
	return 0, false
}
