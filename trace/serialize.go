package trace

import (
	"fmt"
	"reflect"

	"github.com/geeth24/codeflow/vm"
)

const (
	// MaxDepth is how deep serialization descends before cutting off.
	MaxDepth = 5
	// MaxItems bounds how many elements of a container are rendered.
	MaxItems = 20
	// MaxStringLen bounds rendered strings; longer text is cut silently.
	MaxStringLen = 200
	// MaxKeyLen bounds rendered mapping keys.
	MaxKeyLen = 50
	// MaxAttrs bounds how many fields of an object are rendered.
	MaxAttrs = 15
)

// wellKnownFields are structural names surfaced on objects even when
// the attribute cap would otherwise drop them. They make linked
// structures (tree and list nodes) readable in a snapshot.
var wellKnownFields = []string{
	"val", "value", "data", "key", "left", "right",
	"next", "prev", "children", "root", "head",
}

// SerializeValue renders a runtime value as a bounded, cycle-safe,
// JSON-compatible structure. It never fails; any problem serializing
// a value degrades to a sentinel string for that value alone.
func SerializeValue(v vm.Value) any {
	return serialize(v, 0, map[uintptr]bool{})
}

func serialize(v vm.Value, depth int, seen map[uintptr]bool) (out any) {
	if depth > MaxDepth {
		return "<max depth reached>"
	}
	id, hasID := identityOf(v)
	if hasID {
		if seen[id] {
			return "<circular ref>"
		}
		seen[id] = true
		defer delete(seen, id)
	}
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("<error: %s>", truncate(fmt.Sprintf("%v", r), 50))
		}
	}()

	switch val := v.(type) {
	case nil, vm.NoneValue:
		return nil
	case vm.BoolValue:
		return bool(val)
	case vm.IntValue:
		return int(val)
	case vm.FloatValue:
		return float64(val)
	case vm.StrValue:
		return truncate(string(val), MaxStringLen)
	case vm.ArrayValue:
		return serializeSequence(val, depth, seen, true)
	case vm.StructValue:
		d := NewDict()
		for i, k := range val.SortedKeys() {
			if i >= MaxItems {
				break
			}
			d.Set(truncate(k, MaxKeyLen), serialize(val[k], depth+1, copySeen(seen)))
		}
		return d
	case vm.SetValue:
		return serializeSequence(val, depth, seen, false)
	case vm.TypeValue:
		return fmt.Sprintf("<class '%s'>", val.Name)
	case vm.FnPtrValue:
		name := val.Name
		if name == "" {
			name = "anonymous"
		}
		return fmt.Sprintf("<function %s>", name)
	case vm.BuiltinValue:
		return fmt.Sprintf("<function %s>", val.Name)
	case *vm.ObjectValue:
		return serializeObject(val, depth, seen)
	default:
		return fmt.Sprintf("<%s>", vm.TypeName(v))
	}
}

func serializeSequence(items []vm.Value, depth int, seen map[uintptr]bool, marker bool) any {
	n := len(items)
	limit := n
	if limit > MaxItems {
		limit = MaxItems
	}
	out := make([]any, 0, limit+1)
	for _, item := range items[:limit] {
		out = append(out, serialize(item, depth+1, copySeen(seen)))
	}
	if marker && n > MaxItems {
		out = append(out, fmt.Sprintf("... +%d more", n-MaxItems))
	}
	return out
}

func serializeObject(obj *vm.ObjectValue, depth int, seen map[uintptr]bool) any {
	d := NewDict()
	for _, f := range obj.Fields {
		if d.Len() >= MaxAttrs {
			break
		}
		if isDunder(f.Name) {
			continue
		}
		d.Set(f.Name, serialize(f.Value, depth+1, copySeen(seen)))
	}
	// Structural fields get surfaced even past the attribute cap.
	for _, name := range wellKnownFields {
		if _, ok := d.Get(name); ok {
			continue
		}
		if fv, ok := obj.Get(name); ok {
			d.Set(name, serialize(fv, depth+1, copySeen(seen)))
		}
	}
	return d
}

// truncate cuts s to at most max characters, never splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func isDunder(name string) bool {
	return len(name) >= 2 && name[0] == '_' && name[1] == '_'
}

func copySeen(seen map[uintptr]bool) map[uintptr]bool {
	out := make(map[uintptr]bool, len(seen))
	for k := range seen {
		out[k] = true
	}
	return out
}

// identityOf reports a stable identity for container values that can
// participate in reference cycles. Scalars have no identity.
func identityOf(v vm.Value) (uintptr, bool) {
	switch val := v.(type) {
	case vm.ArrayValue:
		if len(val) == 0 {
			return 0, false
		}
		return reflect.ValueOf(val).Pointer(), true
	case vm.SetValue:
		if len(val) == 0 {
			return 0, false
		}
		return reflect.ValueOf(val).Pointer(), true
	case vm.StructValue:
		if val == nil {
			return 0, false
		}
		return reflect.ValueOf(val).Pointer(), true
	case *vm.ObjectValue:
		if val == nil {
			return 0, false
		}
		return reflect.ValueOf(val).Pointer(), true
	}
	return 0, false
}
