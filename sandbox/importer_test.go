package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geeth24/codeflow/vm"
)

func TestGatekeeperDefaults(t *testing.T) {
	g := NewGatekeeper(nil)
	require.True(t, g.Allowed("math"))
	require.True(t, g.Allowed("random"))
	require.False(t, g.Allowed("os"))
	require.False(t, g.Allowed("sys"))
}

func TestGatekeeperLoadMath(t *testing.T) {
	g := NewGatekeeper(nil)
	mod, err := g.Load("math")
	require.NoError(t, err)
	m, ok := mod.(vm.StructValue)
	require.True(t, ok)
	require.Contains(t, m, "sqrt")
	require.Contains(t, m, "pi")
}

func TestGatekeeperLoadRandom(t *testing.T) {
	g := NewGatekeeper(nil)
	mod, err := g.Load("random")
	require.NoError(t, err)
	m, ok := mod.(vm.StructValue)
	require.True(t, ok)
	for _, name := range []string{"random", "randint", "uniform", "choice", "seed"} {
		require.Contains(t, m, name)
	}
}

func TestGatekeeperRejectsWithTypedError(t *testing.T) {
	g := NewGatekeeper(nil)
	_, err := g.Load("subprocess")
	require.Error(t, err)
	var rejected *ImportRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "subprocess", rejected.Module)
	require.Contains(t, err.Error(), "'subprocess'")
	require.Contains(t, err.Error(), "not allowed")
}

func TestGatekeeperCustomAllowList(t *testing.T) {
	g := NewGatekeeper([]string{"math"})
	require.True(t, g.Allowed("math"))
	require.False(t, g.Allowed("random"))

	_, err := g.Load("random")
	var rejected *ImportRejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestGatekeeperAllowedButUnimplemented(t *testing.T) {
	g := NewGatekeeper([]string{"collections"})
	_, err := g.Load("collections")
	require.Error(t, err)
	var rejected *ImportRejectedError
	require.False(t, errors.As(err, &rejected))
	require.Contains(t, err.Error(), "no implementation")
}
