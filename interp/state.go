package interp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/geeth24/codeflow/vm"
)

func NewGlobals() *StackFrame {
	return &StackFrame{}
}

func (f *StackFrame) Pop() vm.Value {
	if len(f.Stack) == 0 {
		panic("Stack underrun")
	}
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return v
}

func (f *StackFrame) Push(v vm.Value) {
	f.Stack = append(f.Stack, v)
}

func (f *StackFrame) StoreVar(key string, value vm.Value) {
	if f.Variables == nil {
		f.Variables = make(map[string]vm.Value)
	}
	if _, exists := f.Variables[key]; !exists {
		f.Order = append(f.Order, key)
	}
	f.Variables[key] = value
}

func (f *StackFrame) Has(key string) bool {
	if f.Variables == nil {
		return false
	}
	_, ok := f.Variables[key]
	return ok
}

// FormatValue formats a vm.Value for display
func FormatValue(v vm.Value) string {
	return formatValue(v, 0)
}

func formatValue(v vm.Value, depth int) string {
	if depth > 5 {
		return "..."
	}
	switch val := v.(type) {
	case vm.IntValue:
		return fmt.Sprintf("%d", val)
	case vm.FloatValue:
		return fmt.Sprintf("%g", float64(val))
	case vm.BoolValue:
		if val {
			return "True"
		}
		return "False"
	case vm.StrValue:
		return fmt.Sprintf("%q", string(val))
	case vm.NoneValue:
		return "None"
	case vm.FnPtrValue:
		return fmt.Sprintf("<function %s>", val.Name)
	case vm.BuiltinValue:
		return fmt.Sprintf("<builtin:%s>", val.Name)
	case vm.TypeValue:
		return fmt.Sprintf("<class '%s'>", val.Name)
	case vm.ArrayValue:
		var b strings.Builder
		b.WriteString("[")
		for i, elem := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatValue(elem, depth+1))
		}
		b.WriteString("]")
		return b.String()
	case vm.SetValue:
		var b strings.Builder
		b.WriteString("{")
		for i, elem := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatValue(elem, depth+1))
		}
		b.WriteString("}")
		return b.String()
	case vm.StructValue:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q: %s", k, formatValue(val[k], depth+1))
		}
		b.WriteString("}")
		return b.String()
	case *vm.ObjectValue:
		var b strings.Builder
		b.WriteString(val.Class)
		b.WriteString("(")
		for i, f := range val.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", f.Name, formatValue(f.Value, depth+1))
		}
		b.WriteString(")")
		return b.String()
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// ToString renders a value the way str() and print() show it: strings
// bare, everything else as FormatValue.
func ToString(v vm.Value) string {
	if s, ok := v.(vm.StrValue); ok {
		return string(s)
	}
	return FormatValue(v)
}
