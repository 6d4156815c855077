package trace

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/geeth24/codeflow/vm"
)

func TestSerializePrimitives(t *testing.T) {
	require.Nil(t, SerializeValue(vm.None))
	require.Equal(t, true, SerializeValue(vm.BoolTrue))
	require.Equal(t, 42, SerializeValue(vm.IntValue(42)))
	require.Equal(t, 2.5, SerializeValue(vm.FloatValue(2.5)))
	require.Equal(t, "hi", SerializeValue(vm.StrValue("hi")))
}

func TestSerializeBoolIsNotNumeric(t *testing.T) {
	v := SerializeValue(vm.BoolTrue)
	_, isBool := v.(bool)
	require.True(t, isBool, "booleans must not degrade to 0/1")
}

func TestSerializeLongStringTruncatedSilently(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := SerializeValue(vm.StrValue(long)).(string)
	require.Len(t, got, MaxStringLen)
	require.False(t, strings.Contains(got, "..."))
}

func TestSerializeTruncationKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", 250)
	got := SerializeValue(vm.StrValue(long)).(string)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("é", MaxStringLen), got)

	key := strings.Repeat("ü", 80)
	d := vm.StructValue{key: vm.IntValue(1)}
	keys := SerializeValue(d).(*Dict).Keys()
	require.Len(t, keys, 1)
	require.True(t, utf8.ValidString(keys[0]))
	require.Equal(t, strings.Repeat("ü", MaxKeyLen), keys[0])
}

func TestSerializeLongListGetsMarker(t *testing.T) {
	arr := make(vm.ArrayValue, 25)
	for i := range arr {
		arr[i] = vm.IntValue(i)
	}
	got := SerializeValue(arr).([]any)
	require.Len(t, got, 21)
	require.Equal(t, 0, got[0])
	require.Equal(t, 19, got[19])
	require.Equal(t, "... +5 more", got[20])
}

func TestSerializeLongSetHasNoMarker(t *testing.T) {
	s := make(vm.SetValue, 25)
	for i := range s {
		s[i] = vm.IntValue(i)
	}
	got := SerializeValue(s).([]any)
	require.Len(t, got, 20)
	for _, e := range got {
		_, isString := e.(string)
		require.False(t, isString)
	}
}

func TestSerializeDictCapsEntriesAndKeys(t *testing.T) {
	d := vm.StructValue{}
	for i := 0; i < 30; i++ {
		d[fmt.Sprintf("key%02d", i)] = vm.IntValue(i)
	}
	longKey := strings.Repeat("k", 80)
	d[longKey] = vm.IntValue(-1)

	got := SerializeValue(d).(*Dict)
	require.Equal(t, MaxItems, got.Len())

	small := vm.StructValue{longKey: vm.IntValue(7)}
	gotSmall := SerializeValue(small).(*Dict)
	keys := gotSmall.Keys()
	require.Len(t, keys, 1)
	require.Len(t, keys[0], MaxKeyLen)
}

func TestSerializeSelfReferentialList(t *testing.T) {
	arr := make(vm.ArrayValue, 1)
	arr[0] = arr
	got := SerializeValue(arr).([]any)
	require.Equal(t, []any{"<circular ref>"}, got)
}

func TestSerializeSelfReferentialDict(t *testing.T) {
	d := vm.StructValue{}
	d["self"] = d
	d["x"] = vm.IntValue(1)
	got := SerializeValue(d).(*Dict)
	self, _ := got.Get("self")
	require.Equal(t, "<circular ref>", self)
	x, _ := got.Get("x")
	require.Equal(t, 1, x)
}

func TestSerializeObjectCycle(t *testing.T) {
	node := &vm.ObjectValue{Class: "Node"}
	node.Set("val", vm.IntValue(1))
	node.Set("next", node)
	got := SerializeValue(node).(*Dict)
	next, _ := got.Get("next")
	require.Equal(t, "<circular ref>", next)
	val, _ := got.Get("val")
	require.Equal(t, 1, val)
}

func TestCycleDetectionIsPathScoped(t *testing.T) {
	shared := vm.StructValue{"n": vm.IntValue(1)}
	parent := vm.ArrayValue{
		vm.ArrayValue{shared},
		vm.ArrayValue{shared},
	}
	got := SerializeValue(parent).([]any)
	require.Len(t, got, 2)
	for i, branch := range got {
		inner := branch.([]any)
		d, ok := inner[0].(*Dict)
		require.True(t, ok, "branch %d should serialize normally, got %v", i, inner[0])
		n, _ := d.Get("n")
		require.Equal(t, 1, n)
	}
}

func TestSerializeDepthLimit(t *testing.T) {
	v := vm.Value(vm.IntValue(0))
	for i := 0; i < 10; i++ {
		v = vm.ArrayValue{v}
	}
	got := SerializeValue(v)
	for i := 0; i < MaxDepth+1; i++ {
		arr, ok := got.([]any)
		require.True(t, ok)
		require.Len(t, arr, 1)
		got = arr[0]
	}
	require.Equal(t, "<max depth reached>", got)
}

func TestSerializeTypeAndCallable(t *testing.T) {
	require.Equal(t, "<class 'int'>", SerializeValue(vm.TypeValue{Name: "int"}))
	require.Equal(t, "<function f>", SerializeValue(vm.FnPtrValue{Name: "f"}))
	require.Equal(t, "<function anonymous>", SerializeValue(vm.FnPtrValue{}))
	require.Equal(t, "<function len>", SerializeValue(vm.BuiltinValue{Name: "len"}))
}

func TestSerializeObjectAttrCapAndWellKnownFields(t *testing.T) {
	obj := &vm.ObjectValue{Class: "Big"}
	for i := 0; i < 20; i++ {
		obj.Set(fmt.Sprintf("attr%02d", i), vm.IntValue(i))
	}
	obj.Set("next", vm.StrValue("tail"))
	obj.Set("__hidden", vm.IntValue(-1))

	got := SerializeValue(obj).(*Dict)
	next, ok := got.Get("next")
	require.True(t, ok, "well-known field must survive the attribute cap")
	require.Equal(t, "tail", next)
	_, hidden := got.Get("__hidden")
	require.False(t, hidden)
	require.LessOrEqual(t, got.Len(), MaxAttrs+len(wellKnownFields))
}

func TestDictMarshalPreservesOrder(t *testing.T) {
	d := NewDict()
	d.Set("z", 1)
	d.Set("a", 2)
	d.Set("m", nil)
	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `{"z":1,"a":2,"m":null}`, string(b))
}

func TestStepMarshal(t *testing.T) {
	s := NewPaddingStep()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `{"step":1,"line":0,"locals":{},"stack":[]}`, string(b))

	e := NewErrorStep("boom")
	b, err = json.Marshal(e)
	require.NoError(t, err)
	require.JSONEq(t, `{"step":1,"line":0,"locals":{},"stack":[],"error":"boom"}`, string(b))
}
