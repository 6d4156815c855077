package vm

import (
	"io"

	"go.starlark.net/syntax"
)

// LoadFile parses Starlark-flavored source and compiles it. The name is
// only used in parse error positions.
func LoadFile(name string, r io.Reader) (*Program, error) {
	opts := syntax.FileOptions{
		While: true,
	}
	f, err := opts.Parse(name, r, 0)
	if err != nil {
		return nil, err
	}
	return Compile(f)
}
