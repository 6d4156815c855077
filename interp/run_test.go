package interp

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geeth24/codeflow/vm"
)

type testHost struct {
	lines  []int
	output strings.Builder
	inputs []string
	rng    *rand.Rand
}

func newTestHost() *testHost {
	return &testHost{rng: rand.New(rand.NewSource(1))}
}

func (h *testHost) TraceLine(line int, frames []*StackFrame) error {
	h.lines = append(h.lines, line)
	return nil
}

func (h *testHost) LoadModule(name string) (vm.Value, error) {
	if name == "math" {
		return vm.ModuleMath(), nil
	}
	return nil, fmt.Errorf("module '%s' is not available", name)
}

func (h *testHost) ReadLine() (string, error) {
	if len(h.inputs) == 0 {
		return "", fmt.Errorf("no input available")
	}
	line := h.inputs[0]
	h.inputs = h.inputs[1:]
	return line, nil
}

func (h *testHost) Print(s string)        { h.output.WriteString(s) }
func (h *testHost) RandFloat64() float64  { return h.rng.Float64() }
func (h *testHost) RandIntN(n int) int    { return h.rng.Intn(n) }
func (h *testHost) SeedRand(seed int64)   { h.rng = rand.New(rand.NewSource(seed)) }

func runSource(t *testing.T, src string) (*StackFrame, *testHost) {
	t.Helper()
	globals, host, err := tryRunSource(src)
	require.NoError(t, err)
	return globals, host
}

func tryRunSource(src string) (*StackFrame, *testHost, error) {
	prog, err := vm.CompileLiteral(src)
	if err != nil {
		return nil, nil, err
	}
	globals := NewGlobals()
	host := newTestHost()
	_, err = RunToEnd(context.Background(), prog, host, globals, globals, 0)
	return globals, host, err
}

func requireVar(t *testing.T, globals *StackFrame, name string, want vm.Value) {
	t.Helper()
	got, ok := globals.Variables[name]
	if !ok {
		t.Fatalf("variable %q was never bound", name)
	}
	require.Equal(t, want, got)
}

func TestArithmetic(t *testing.T) {
	globals, _ := runSource(t, `
a = 2 + 3 * 4
b = 7 % 3
c = -7 % 3
d = 7 // 2
e = -7 // 2
f = 7 / 2
`)
	requireVar(t, globals, "a", vm.IntValue(14))
	requireVar(t, globals, "b", vm.IntValue(1))
	requireVar(t, globals, "c", vm.IntValue(2))
	requireVar(t, globals, "d", vm.IntValue(3))
	requireVar(t, globals, "e", vm.IntValue(-4))
	requireVar(t, globals, "f", vm.FloatValue(3.5))
}

func TestComparisonAndLogic(t *testing.T) {
	globals, _ := runSource(t, `
a = 1 < 2
b = 2 <= 2
c = 3 > 4
d = "abc" == "abc"
e = 1 != 2
f = True and False
g = False or 5
h = not 0
`)
	requireVar(t, globals, "a", vm.BoolTrue)
	requireVar(t, globals, "b", vm.BoolTrue)
	requireVar(t, globals, "c", vm.BoolFalse)
	requireVar(t, globals, "d", vm.BoolTrue)
	requireVar(t, globals, "e", vm.BoolTrue)
	requireVar(t, globals, "f", vm.BoolFalse)
	requireVar(t, globals, "g", vm.IntValue(5))
	requireVar(t, globals, "h", vm.BoolTrue)
}

func TestFunctionCalls(t *testing.T) {
	globals, _ := runSource(t, `
def add(a, b):
    return a + b

def greet(name, greeting="hello"):
    return greeting + " " + name

x = add(1, 2)
y = add(b=10, a=5)
z = greet("world")
w = greet("world", greeting="hi")
`)
	requireVar(t, globals, "x", vm.IntValue(3))
	requireVar(t, globals, "y", vm.IntValue(15))
	requireVar(t, globals, "z", vm.StrValue("hello world"))
	requireVar(t, globals, "w", vm.StrValue("hi world"))
}

func TestExecutionContinuesAfterCallReturns(t *testing.T) {
	// The op following a CALL must run exactly once after the callee
	// returns, whether the result feeds a larger expression or the next
	// statement.
	globals, _ := runSource(t, `
def bump(n):
    return n + 1

def noop():
    pass

x = bump(1) * 10
noop()
y = x + bump(x)
`)
	requireVar(t, globals, "x", vm.IntValue(20))
	requireVar(t, globals, "y", vm.IntValue(41))
}

func TestRecursion(t *testing.T) {
	globals, _ := runSource(t, `
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

r = fib(10)
`)
	requireVar(t, globals, "r", vm.IntValue(55))
}

func TestLocalsDoNotLeak(t *testing.T) {
	globals, _ := runSource(t, `
def f():
    hidden = 42
    return hidden

r = f()
`)
	requireVar(t, globals, "r", vm.IntValue(42))
	if _, ok := globals.Variables["hidden"]; ok {
		t.Fatalf("function local leaked into globals")
	}
}

func TestGlobalRebindFromFunction(t *testing.T) {
	globals, _ := runSource(t, `
counter = 0

def bump():
    counter = counter + 1

bump()
bump()
`)
	requireVar(t, globals, "counter", vm.IntValue(2))
}

func TestForLoop(t *testing.T) {
	globals, _ := runSource(t, `
total = 0
for x in [1, 2, 3, 4]:
    total = total + x
`)
	requireVar(t, globals, "total", vm.IntValue(10))
}

func TestForLoopBreakContinue(t *testing.T) {
	globals, _ := runSource(t, `
total = 0
for x in [1, 2, 3, 4, 5]:
    if x == 2:
        continue
    if x == 4:
        break
    total = total + x
`)
	requireVar(t, globals, "total", vm.IntValue(4))
}

func TestWhileLoop(t *testing.T) {
	globals, _ := runSource(t, `
i = 0
total = 0
while i < 5:
    i = i + 1
    if i == 3:
        continue
    total = total + i
`)
	requireVar(t, globals, "total", vm.IntValue(12))
}

func TestDictIterationIsSorted(t *testing.T) {
	globals, _ := runSource(t, `
d = {"b": 2, "a": 1, "c": 3}
keys = []
for k in d:
    keys.append(k)
`)
	requireVar(t, globals, "keys", vm.ArrayValue{vm.StrValue("a"), vm.StrValue("b"), vm.StrValue("c")})
}

func TestListMethods(t *testing.T) {
	globals, _ := runSource(t, `
arr = [1, 2]
arr.append(3)
last = arr.pop()
arr.extend([7, 8])
idx = arr.index(7)
arr.remove(1)
`)
	requireVar(t, globals, "arr", vm.ArrayValue{vm.IntValue(2), vm.IntValue(7), vm.IntValue(8)})
	requireVar(t, globals, "last", vm.IntValue(3))
	requireVar(t, globals, "idx", vm.IntValue(2))
}

func TestStringMethods(t *testing.T) {
	globals, _ := runSource(t, `
s = "  Hello World  "
a = s.strip()
b = a.upper()
c = a.lower()
d = a.split(" ")
e = "-".join(d)
f = a.replace("World", "There")
g = a.startswith("Hello")
h = a.endswith("World")
`)
	requireVar(t, globals, "a", vm.StrValue("Hello World"))
	requireVar(t, globals, "b", vm.StrValue("HELLO WORLD"))
	requireVar(t, globals, "c", vm.StrValue("hello world"))
	requireVar(t, globals, "d", vm.ArrayValue{vm.StrValue("Hello"), vm.StrValue("World")})
	requireVar(t, globals, "e", vm.StrValue("Hello-World"))
	requireVar(t, globals, "f", vm.StrValue("Hello There"))
	requireVar(t, globals, "g", vm.BoolTrue)
	requireVar(t, globals, "h", vm.BoolTrue)
}

func TestDictMethods(t *testing.T) {
	globals, _ := runSource(t, `
d = {"a": 1, "b": 2}
v = d.get("a")
missing = d.get("zzz", -1)
ks = d.keys()
vs = d.values()
d["c"] = 3
has = "c" in d
`)
	requireVar(t, globals, "v", vm.IntValue(1))
	requireVar(t, globals, "missing", vm.IntValue(-1))
	requireVar(t, globals, "ks", vm.ArrayValue{vm.StrValue("a"), vm.StrValue("b")})
	requireVar(t, globals, "vs", vm.ArrayValue{vm.IntValue(1), vm.IntValue(2)})
	requireVar(t, globals, "has", vm.BoolTrue)
}

func TestIndexingAndSlicing(t *testing.T) {
	globals, _ := runSource(t, `
arr = [10, 20, 30, 40]
a = arr[0]
b = arr[-1]
c = arr[1:3]
s = "hello"
d = s[1]
e = s[1:4]
f = s[:2]
g = arr[2:]
`)
	requireVar(t, globals, "a", vm.IntValue(10))
	requireVar(t, globals, "b", vm.IntValue(40))
	requireVar(t, globals, "c", vm.ArrayValue{vm.IntValue(20), vm.IntValue(30)})
	requireVar(t, globals, "d", vm.StrValue("e"))
	requireVar(t, globals, "e", vm.StrValue("ell"))
	requireVar(t, globals, "f", vm.StrValue("he"))
	requireVar(t, globals, "g", vm.ArrayValue{vm.IntValue(30), vm.IntValue(40)})
}

func TestBuiltins(t *testing.T) {
	globals, _ := runSource(t, `
a = len([1, 2, 3])
b = abs(-5)
c = min(3, 1, 2)
d = max([4, 9, 2])
e = sorted([3, 1, 2])
f = range(3)
g = type(1.5)
`)
	requireVar(t, globals, "a", vm.IntValue(3))
	requireVar(t, globals, "b", vm.IntValue(5))
	requireVar(t, globals, "c", vm.IntValue(1))
	requireVar(t, globals, "d", vm.IntValue(9))
	requireVar(t, globals, "e", vm.ArrayValue{vm.IntValue(1), vm.IntValue(2), vm.IntValue(3)})
	requireVar(t, globals, "f", vm.ArrayValue{vm.IntValue(0), vm.IntValue(1), vm.IntValue(2)})
	requireVar(t, globals, "g", vm.TypeValue{Name: "float"})
}

func TestTypeConstructors(t *testing.T) {
	globals, _ := runSource(t, `
a = int("42")
b = float(3)
c = str(7)
d = bool(0)
e = list("ab")
f = int(3.9)
`)
	requireVar(t, globals, "a", vm.IntValue(42))
	requireVar(t, globals, "b", vm.FloatValue(3))
	requireVar(t, globals, "c", vm.StrValue("7"))
	requireVar(t, globals, "d", vm.BoolFalse)
	requireVar(t, globals, "e", vm.ArrayValue{vm.StrValue("a"), vm.StrValue("b")})
	requireVar(t, globals, "f", vm.IntValue(3))
}

func TestStructBuiltin(t *testing.T) {
	globals, _ := runSource(t, `
node = struct(val=1, next=None)
v = node.val
node.val = 2
w = node.val
`)
	requireVar(t, globals, "v", vm.IntValue(1))
	requireVar(t, globals, "w", vm.IntValue(2))
}

func TestSetOperations(t *testing.T) {
	globals, _ := runSource(t, `
s = set([1, 2, 2, 3])
n = len(s)
s.add(4)
s.add(1)
m = len(s)
has = 3 in s
`)
	requireVar(t, globals, "n", vm.IntValue(3))
	requireVar(t, globals, "m", vm.IntValue(4))
	requireVar(t, globals, "has", vm.BoolTrue)
}

func TestLoadMath(t *testing.T) {
	globals, _ := runSource(t, `
load("math", "sqrt", "pi")
r = sqrt(16)
`)
	requireVar(t, globals, "r", vm.FloatValue(4))
	pi, ok := globals.Variables["pi"]
	require.True(t, ok)
	require.InDelta(t, 3.14159, float64(pi.(vm.FloatValue)), 0.001)
}

func TestLoadUnknownModuleFails(t *testing.T) {
	_, _, err := tryRunSource("load(\"os\", \"getcwd\")\n")
	require.Error(t, err)
	require.Contains(t, err.Error(), "os")
}

func TestPrintAndInput(t *testing.T) {
	prog, err := vm.CompileLiteral(`
name = input()
print("hello", name)
print(1 + 1)
`)
	require.NoError(t, err)
	globals := NewGlobals()
	host := newTestHost()
	host.inputs = []string{"world"}
	_, err = RunToEnd(context.Background(), prog, host, globals, globals, 0)
	require.NoError(t, err)
	require.Equal(t, "hello world\n2\n", host.output.String())
}

func TestTraceLinesAreReported(t *testing.T) {
	_, host := runSource(t, `
x = 1
y = 2
for i in [1, 2]:
    x = x + i
`)
	// Last x = x + i is line 5, executed once per iteration
	require.Equal(t, []int{2, 3, 4, 5, 5}, host.lines)
}

func TestTraceLinesInsideFunctions(t *testing.T) {
	_, host := runSource(t, `
def f(n):
    a = n + 1
    return a

r = f(1)
`)
	require.Equal(t, []int{2, 6, 3, 4}, host.lines)
}

func TestStepBudget(t *testing.T) {
	prog, err := vm.CompileLiteral("while True:\n    x = 1\n")
	require.NoError(t, err)
	globals := NewGlobals()
	_, err = RunToEnd(context.Background(), prog, newTestHost(), globals, globals, 500)
	require.ErrorIs(t, err, ErrStepBudget)
}

func TestContextCancellation(t *testing.T) {
	prog, err := vm.CompileLiteral("while True:\n    x = 1\n")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	globals := NewGlobals()
	_, err = RunToEnd(ctx, prog, newTestHost(), globals, globals, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRuntimeErrors(t *testing.T) {
	cases := map[string]string{
		"undefined name":   "x = y + 1\n",
		"division by zero": "x = 1 / 0\n",
		"bad index":        "arr = [1]\nx = arr[5]\n",
		"missing key":      "d = {}\nx = d[\"nope\"]\n",
		"type mismatch":    "x = \"a\" + 1\n",
		"not callable":     "x = 5\ny = x()\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := tryRunSource(src)
			require.Error(t, err)
		})
	}
}

func TestSeededRandomIsDeterministic(t *testing.T) {
	host := newTestHost()
	host.SeedRand(7)
	a := host.RandIntN(100)
	host.SeedRand(7)
	b := host.RandIntN(100)
	require.Equal(t, a, b)
}

func TestAugmentedAssignment(t *testing.T) {
	globals, _ := runSource(t, `
x = 10
x += 5
x -= 3
x *= 2
x %= 7
arr = [1, 2]
arr += [3]
`)
	requireVar(t, globals, "x", vm.IntValue(3))
	requireVar(t, globals, "arr", vm.ArrayValue{vm.IntValue(1), vm.IntValue(2), vm.IntValue(3)})
}

func TestConditionalExpression(t *testing.T) {
	globals, _ := runSource(t, `
a = 1 if True else 2
b = 1 if False else 2
`)
	requireVar(t, globals, "a", vm.IntValue(1))
	requireVar(t, globals, "b", vm.IntValue(2))
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   vm.Value
		want string
	}{
		{vm.IntValue(3), "3"},
		{vm.StrValue("hi"), "\"hi\""},
		{vm.BoolTrue, "True"},
		{vm.None, "None"},
		{vm.ArrayValue{vm.IntValue(1), vm.StrValue("a")}, "[1, \"a\"]"},
		{vm.StructValue{"b": vm.IntValue(2), "a": vm.IntValue(1)}, "{\"a\": 1, \"b\": 2}"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, FormatValue(c.in))
	}
}
