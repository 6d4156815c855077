package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileAssignment(t *testing.T) {
	p, err := CompileLiteral("x = 1\ny = x + 2\n")
	require.NoError(t, err)
	require.NotNil(t, p.Main)
	require.NotEmpty(t, p.Main.Bytecode)
}

func TestCompileEmitsStatementBoundaries(t *testing.T) {
	p, err := CompileLiteral("a = 1\nb = 2\nc = a + b\n")
	require.NoError(t, err)
	var lines []int
	for _, op := range p.Main.Bytecode {
		if op.Code == TRACE {
			lines = append(lines, int(op.Arg.(IntValue)))
		}
	}
	require.Equal(t, []int{1, 2, 3}, lines)
}

func TestCompileFunctionDefinitions(t *testing.T) {
	p, err := CompileLiteral(`
def add(a, b):
    return a + b

def sub(a, b=1):
    return a - b

r = add(1, 2)
`)
	require.NoError(t, err)
	require.Len(t, p.Code, 2)
	_, ok := p.Resolve("add")
	require.True(t, ok)
	ptr, ok := p.Resolve("sub")
	require.True(t, ok)
	fn := p.Code[ptr.CodeID()-1]
	require.Equal(t, "sub", fn.Name)
	require.Len(t, fn.Params, 2)
	require.Equal(t, IntValue(1), fn.Params[1].Default)
}

func TestCompileNestedDefRejected(t *testing.T) {
	_, err := CompileLiteral(`
def outer():
    def inner():
        return 1
    return inner
`)
	require.Error(t, err)
}

func TestCompileLoops(t *testing.T) {
	cases := map[string]string{
		"for":          "for i in [1, 2, 3]:\n    x = i\n",
		"for_kv":       "for k, v in {\"a\": 1}:\n    x = v\n",
		"while":        "i = 0\nwhile i < 3:\n    i = i + 1\n",
		"for_break":    "for i in [1, 2]:\n    break\n",
		"for_continue": "for i in [1, 2]:\n    continue\n",
		"while_break":  "while True:\n    break\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := CompileLiteral(src)
			require.NoError(t, err)
			require.NotEmpty(t, p.Main.Bytecode)
		})
	}
}

func TestCompileBreakOutsideLoop(t *testing.T) {
	_, err := CompileLiteral("break\n")
	require.Error(t, err)
}

func TestCompileLoad(t *testing.T) {
	p, err := CompileLiteral("load(\"math\", \"sqrt\", pi2=\"pi\")\nx = sqrt(4)\n")
	require.NoError(t, err)
	var found bool
	for _, op := range p.Main.Bytecode {
		if op.Code == IMPORT {
			require.Equal(t, StrValue("math"), op.Arg)
			found = true
		}
	}
	require.True(t, found, "load() should compile to an IMPORT op")
}

func TestCompileMethodCallStoreBack(t *testing.T) {
	p, err := CompileLiteral("arr = [1]\narr.append(2)\n")
	require.NoError(t, err)
	var sawMethod, sawSwap bool
	for i, op := range p.Main.Bytecode {
		if op.Code == CALL_METHOD {
			sawMethod = true
			require.Greater(t, len(p.Main.Bytecode), i+1)
			require.Equal(t, SWAP, p.Main.Bytecode[i+1].Code)
			sawSwap = true
		}
	}
	require.True(t, sawMethod)
	require.True(t, sawSwap)
}

func TestCompileUnresolvedLabelsRemoved(t *testing.T) {
	p, err := CompileLiteral("if True:\n    x = 1\nelse:\n    x = 2\n")
	require.NoError(t, err)
	for _, op := range p.Main.Bytecode {
		require.NotEqual(t, LABEL, op.Code, "labels must be resolved into offsets")
		if op.Code == JMP || op.Code == JFALSE {
			_, ok := op.Arg.(IntValue)
			require.True(t, ok, "jump targets must be numeric after fixup")
		}
	}
}
