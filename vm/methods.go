package vm

import (
	"fmt"
	"strings"
)

// MethodImpl implements one method on a value. It returns the call's
// result and the receiver to continue with; mutating methods hand back a
// replacement receiver, everything else returns the receiver unchanged.
type MethodImpl func(receiver Value, args []Value) (Value, Value, error)

// MethodTable maps method names to their implementations for a specific type
type MethodTable map[string]MethodImpl

// MethodRegistry maps type names to their method tables
var MethodRegistry = map[string]MethodTable{
	"list": {
		"append": arrayAppend,
		"pop":    arrayPop,
		"extend": arrayExtend,
		"index":  arrayIndex,
		"remove": arrayRemove,
	},
	"str": {
		"upper":      stringUpper,
		"lower":      stringLower,
		"strip":      stringStrip,
		"split":      stringSplit,
		"replace":    stringReplace,
		"startswith": stringStartswith,
		"endswith":   stringEndswith,
		"join":       stringJoin,
	},
	"dict": {
		"get":    structGet,
		"keys":   structKeys,
		"values": structValues,
		"items":  structItems,
	},
	"set": {
		"add": setAdd,
	},
}

// TypeName returns the runtime type name for a value.
func TypeName(v Value) string {
	switch t := v.(type) {
	case ArrayValue:
		return "list"
	case StructValue:
		return "dict"
	case SetValue:
		return "set"
	case IntValue:
		return "int"
	case FloatValue:
		return "float"
	case StrValue:
		return "str"
	case BoolValue:
		return "bool"
	case NoneValue:
		return "NoneType"
	case *ObjectValue:
		return t.Class
	case FnPtrValue, BuiltinValue:
		return "function"
	case TypeValue:
		return "type"
	default:
		return "unknown"
	}
}

func arrayAppend(receiver Value, args []Value) (Value, Value, error) {
	arr, ok := receiver.(ArrayValue)
	if !ok {
		return nil, nil, fmt.Errorf("append called on non-list: %T", receiver)
	}
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("append expects 1 argument, got %d", len(args))
	}
	return None, append(arr, args[0]), nil
}

func arrayPop(receiver Value, args []Value) (Value, Value, error) {
	arr := receiver.(ArrayValue)
	if len(args) > 1 {
		return nil, nil, fmt.Errorf("pop expects at most 1 argument, got %d", len(args))
	}
	if len(arr) == 0 {
		return nil, nil, fmt.Errorf("pop from empty list")
	}
	idx := len(arr) - 1
	if len(args) == 1 {
		i, ok := args[0].(IntValue)
		if !ok {
			return nil, nil, fmt.Errorf("pop index must be an integer, got %T", args[0])
		}
		idx = int(i)
		if idx < 0 {
			idx += len(arr)
		}
		if idx < 0 || idx >= len(arr) {
			return nil, nil, fmt.Errorf("pop index %d out of range", int(i))
		}
	}
	elem := arr[idx]
	out := make(ArrayValue, 0, len(arr)-1)
	out = append(out, arr[:idx]...)
	out = append(out, arr[idx+1:]...)
	return elem, out, nil
}

func arrayExtend(receiver Value, args []Value) (Value, Value, error) {
	arr := receiver.(ArrayValue)
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("extend expects 1 argument, got %d", len(args))
	}
	more, ok := args[0].(ArrayValue)
	if !ok {
		return nil, nil, fmt.Errorf("extend expects a list, got %T", args[0])
	}
	return None, append(arr, more...), nil
}

func arrayIndex(receiver Value, args []Value) (Value, Value, error) {
	arr := receiver.(ArrayValue)
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("index expects 1 argument, got %d", len(args))
	}
	for i, e := range arr {
		if c, ok := Cmp(args[0], e); ok && c == 0 {
			return IntValue(i), arr, nil
		}
	}
	return nil, nil, fmt.Errorf("value not in list")
}

func arrayRemove(receiver Value, args []Value) (Value, Value, error) {
	arr := receiver.(ArrayValue)
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("remove expects 1 argument, got %d", len(args))
	}
	for i, e := range arr {
		if c, ok := Cmp(args[0], e); ok && c == 0 {
			out := make(ArrayValue, 0, len(arr)-1)
			out = append(out, arr[:i]...)
			out = append(out, arr[i+1:]...)
			return None, out, nil
		}
	}
	return nil, nil, fmt.Errorf("value not in list")
}

func stringUpper(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	return StrValue(strings.ToUpper(string(s))), s, nil
}

func stringLower(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	return StrValue(strings.ToLower(string(s))), s, nil
}

func stringStrip(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	return StrValue(strings.TrimSpace(string(s))), s, nil
}

func stringSplit(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	var parts []string
	switch len(args) {
	case 0:
		parts = strings.Fields(string(s))
	case 1:
		sep, ok := args[0].(StrValue)
		if !ok {
			return nil, nil, fmt.Errorf("split separator must be a string, got %T", args[0])
		}
		parts = strings.Split(string(s), string(sep))
	default:
		return nil, nil, fmt.Errorf("split expects at most 1 argument, got %d", len(args))
	}
	out := make(ArrayValue, len(parts))
	for i, p := range parts {
		out[i] = StrValue(p)
	}
	return out, s, nil
}

func stringReplace(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("replace expects 2 arguments, got %d", len(args))
	}
	old, ok1 := args[0].(StrValue)
	new, ok2 := args[1].(StrValue)
	if !ok1 || !ok2 {
		return nil, nil, fmt.Errorf("replace arguments must be strings")
	}
	return StrValue(strings.ReplaceAll(string(s), string(old), string(new))), s, nil
}

func stringStartswith(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("startswith expects 1 argument, got %d", len(args))
	}
	prefix, ok := args[0].(StrValue)
	if !ok {
		return nil, nil, fmt.Errorf("startswith argument must be a string, got %T", args[0])
	}
	return BoolValue(strings.HasPrefix(string(s), string(prefix))), s, nil
}

func stringEndswith(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("endswith expects 1 argument, got %d", len(args))
	}
	suffix, ok := args[0].(StrValue)
	if !ok {
		return nil, nil, fmt.Errorf("endswith argument must be a string, got %T", args[0])
	}
	return BoolValue(strings.HasSuffix(string(s), string(suffix))), s, nil
}

func stringJoin(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(StrValue)
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("join expects 1 argument, got %d", len(args))
	}
	arr, ok := args[0].(ArrayValue)
	if !ok {
		return nil, nil, fmt.Errorf("join expects a list, got %T", args[0])
	}
	parts := make([]string, len(arr))
	for i, e := range arr {
		es, ok := e.(StrValue)
		if !ok {
			return nil, nil, fmt.Errorf("join expects a list of strings, got %T", e)
		}
		parts[i] = string(es)
	}
	return StrValue(strings.Join(parts, string(s))), s, nil
}

func structGet(receiver Value, args []Value) (Value, Value, error) {
	st := receiver.(StructValue)
	if len(args) == 0 || len(args) > 2 {
		return nil, nil, fmt.Errorf("get expects 1 or 2 arguments, got %d", len(args))
	}
	key, ok := args[0].(StrValue)
	if !ok {
		return nil, nil, fmt.Errorf("get key must be a string, got %T", args[0])
	}
	if v, found := st[string(key)]; found {
		return v, st, nil
	}
	if len(args) == 2 {
		return args[1], st, nil
	}
	return None, st, nil
}

func sortedStructKeys(st StructValue) []string {
	return st.SortedKeys()
}

func structKeys(receiver Value, args []Value) (Value, Value, error) {
	st := receiver.(StructValue)
	var out ArrayValue
	for _, k := range sortedStructKeys(st) {
		out = append(out, StrValue(k))
	}
	return out, st, nil
}

func structValues(receiver Value, args []Value) (Value, Value, error) {
	st := receiver.(StructValue)
	var out ArrayValue
	for _, k := range sortedStructKeys(st) {
		out = append(out, st[k])
	}
	return out, st, nil
}

func structItems(receiver Value, args []Value) (Value, Value, error) {
	st := receiver.(StructValue)
	var out ArrayValue
	for _, k := range sortedStructKeys(st) {
		out = append(out, ArrayValue{StrValue(k), st[k]})
	}
	return out, st, nil
}

func setAdd(receiver Value, args []Value) (Value, Value, error) {
	s := receiver.(SetValue)
	if len(args) != 1 {
		return nil, nil, fmt.Errorf("add expects 1 argument, got %d", len(args))
	}
	return None, s.DedupAppend(args[0]), nil
}
