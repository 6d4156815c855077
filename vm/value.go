package vm

import "sort"

type Value interface {
	isValue()
	AsBool() bool
	Clone() Value
}

type BoolValue bool

func (BoolValue) isValue() {}

var (
	BoolTrue  = BoolValue(true)
	BoolFalse = BoolValue(false)
)

func (b BoolValue) AsBool() bool {
	return bool(b)
}

func (b BoolValue) Clone() Value { return b }

type StrValue string

func (StrValue) isValue() {}
func (s StrValue) AsBool() bool {
	return s != ""
}
func (s StrValue) Clone() Value { return s }

type IntValue int

func (IntValue) isValue() {}
func (i IntValue) AsBool() bool {
	return i != 0
}
func (i IntValue) Clone() Value { return i }

type FloatValue float64

func (FloatValue) isValue() {}
func (f FloatValue) AsBool() bool {
	return f != 0
}
func (f FloatValue) Clone() Value { return f }

type NoneValue struct{}

func (NoneValue) isValue()       {}
func (NoneValue) AsBool() bool   { return false }
func (n NoneValue) Clone() Value { return n }

var None = NoneValue{}

// StructValue is the dict type.
type StructValue map[string]Value

func (StructValue) isValue() {}
func (s StructValue) AsBool() bool {
	return len(s) != 0
}

// SortedKeys returns the dict's keys in sorted order. Iteration over
// dicts is deterministic everywhere by sorting keys first.
func (s StructValue) SortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
func (s StructValue) Clone() Value {
	out := make(StructValue, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

type ArrayValue []Value

func (ArrayValue) isValue() {}
func (a ArrayValue) AsBool() bool {
	return len(a) != 0
}
func (a ArrayValue) Clone() Value {
	out := make(ArrayValue, len(a))
	for i, v := range a {
		out[i] = v.Clone()
	}
	return out
}

// SetValue keeps insertion order so traces stay deterministic.
type SetValue []Value

func (SetValue) isValue() {}
func (s SetValue) AsBool() bool {
	return len(s) != 0
}
func (s SetValue) Clone() Value {
	out := make(SetValue, len(s))
	for i, v := range s {
		out[i] = v.Clone()
	}
	return out
}

func (s SetValue) Contains(v Value) bool {
	for _, e := range s {
		if c, ok := Cmp(v, e); ok && c == 0 {
			return true
		}
	}
	return false
}

// DedupAppend adds v to the set unless an equal element is present.
func (s SetValue) DedupAppend(v Value) SetValue {
	if s.Contains(v) {
		return s
	}
	return append(s, v)
}

// ObjectField preserves the order fields were first assigned in.
type ObjectField struct {
	Name  string
	Value Value
}

// ObjectValue is a user record created with struct(**kwargs). It is a
// pointer type so that shared references and cycles survive mutation,
// the way linked-list and tree nodes need them to.
type ObjectValue struct {
	Class  string
	Fields []ObjectField
}

func (*ObjectValue) isValue()     {}
func (*ObjectValue) AsBool() bool { return true }
func (o *ObjectValue) Clone() Value {
	out := &ObjectValue{Class: o.Class, Fields: make([]ObjectField, len(o.Fields))}
	for i, f := range o.Fields {
		out.Fields[i] = ObjectField{Name: f.Name, Value: f.Value.Clone()}
	}
	return out
}

func (o *ObjectValue) Get(name string) (Value, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (o *ObjectValue) Set(name string, v Value) {
	for i, f := range o.Fields {
		if f.Name == name {
			o.Fields[i].Value = v
			return
		}
	}
	o.Fields = append(o.Fields, ObjectField{Name: name, Value: v})
}

// TypeValue is a type object itself (int, str, ...), not an instance.
type TypeValue struct {
	Name string
}

func (TypeValue) isValue()       {}
func (TypeValue) AsBool() bool   { return true }
func (t TypeValue) Clone() Value { return t }

// FnPtrValue points at a user-defined function. The name rides along so
// frames and serialized values can be labeled.
type FnPtrValue struct {
	Ptr  ExecPtr
	Name string
}

func (FnPtrValue) isValue()       {}
func (FnPtrValue) AsBool() bool   { return true }
func (f FnPtrValue) Clone() Value { return f }

type BuiltinValue struct {
	Name string
}

func (BuiltinValue) isValue()       {}
func (BuiltinValue) AsBool() bool   { return true }
func (b BuiltinValue) Clone() Value { return b }

// ArgValue wraps a call argument, keyed for kwargs.
type ArgValue struct {
	Key   string
	Value Value
}

func (ArgValue) isValue()     {}
func (ArgValue) AsBool() bool { return true }
func (a ArgValue) Clone() Value {
	return ArgValue{Key: a.Key, Value: a.Value.Clone()}
}

// Cmp compares two values, returning <0, 0, >0 and whether the pair is
// comparable at all.
func Cmp(a, b Value) (int, bool) {
	switch av := a.(type) {
	case NoneValue:
		if _, ok := b.(NoneValue); ok {
			return 0, true
		}
		return 0, false
	case BoolValue:
		if bv, ok := b.(BoolValue); ok {
			ai, bi := 0, 0
			if av {
				ai = 1
			}
			if bv {
				bi = 1
			}
			return ai - bi, true
		}
		return 0, false
	case IntValue:
		switch bv := b.(type) {
		case IntValue:
			return int(av) - int(bv), true
		case FloatValue:
			return cmpFloat(float64(av), float64(bv)), true
		}
		return 0, false
	case FloatValue:
		switch bv := b.(type) {
		case IntValue:
			return cmpFloat(float64(av), float64(bv)), true
		case FloatValue:
			return cmpFloat(float64(av), float64(bv)), true
		}
		return 0, false
	case StrValue:
		if bv, ok := b.(StrValue); ok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	case ArrayValue:
		if bv, ok := b.(ArrayValue); ok {
			n := len(av)
			if len(bv) < n {
				n = len(bv)
			}
			for i := 0; i < n; i++ {
				if c, ok := Cmp(av[i], bv[i]); !ok {
					return 0, false
				} else if c != 0 {
					return c, true
				}
			}
			return len(av) - len(bv), true
		}
		return 0, false
	case FnPtrValue:
		if bv, ok := b.(FnPtrValue); ok {
			return int(av.Ptr) - int(bv.Ptr), true
		}
		return 0, false
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
