package interp

import (
	"github.com/geeth24/codeflow/vm"
)

// SliceIterator iterates over list values
type SliceIterator struct {
	Values   []vm.Value // The list being iterated
	Index    int        // Current position (-1 = not started)
	VarCount int        // 1 or 2 variables
}

// Next advances the iterator to the next element
func (s *SliceIterator) Next() bool {
	s.Index++
	return s.Index < len(s.Values)
}

// Var1 returns the first loop variable value.
// For 1-var loops: the element. For 2-var loops: the index.
func (s *SliceIterator) Var1() vm.Value {
	if s.VarCount == 1 {
		return s.Values[s.Index]
	}
	return vm.IntValue(s.Index)
}

// Var2 returns the second loop variable value (the element), or None
// for 1-var loops.
func (s *SliceIterator) Var2() vm.Value {
	if s.VarCount == 2 {
		return s.Values[s.Index]
	}
	return vm.None
}

// DictIterator iterates over dict key-value pairs
type DictIterator struct {
	Dict     vm.StructValue // The dict being iterated
	Keys     []string       // Sorted keys for deterministic iteration
	Index    int            // Current position (-1 = not started)
	VarCount int            // 1 (key) or 2 (key, value)
}

// Next advances the iterator to the next key-value pair
func (d *DictIterator) Next() bool {
	d.Index++
	return d.Index < len(d.Keys)
}

// Var1 returns the key.
func (d *DictIterator) Var1() vm.Value {
	return vm.StrValue(d.Keys[d.Index])
}

// Var2 returns the value for the current key, or None for 1-var loops.
func (d *DictIterator) Var2() vm.Value {
	if d.VarCount == 2 {
		return d.Dict[d.Keys[d.Index]]
	}
	return vm.None
}
