package vm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.starlark.net/syntax"
)

type Op struct {
	Code Opcode
	Arg  Value
}

func (o Op) String() string {
	if o.Arg == nil {
		return o.Code.String()
	}
	return fmt.Sprintf("%s %v", o.Code, o.Arg)
}

// loopLabels tracks the jump targets break and continue need inside the
// innermost enclosing loop. isFor marks loops whose break must also pop
// the iterator stack.
type loopLabels struct {
	continueLabel string
	breakLabel    string
	isFor         bool
}

type compileContext struct {
	ops        []Op
	topLevel   bool
	subContext map[string]*compileContext
	subOrder   []string
	params     []FunctionParam
	loops      []loopLabels
}

func (cc *compileContext) emit(op Opcode) {
	cc.ops = append(cc.ops, Op{Code: op, Arg: nil})
}

func (cc *compileContext) emitArg(op Opcode, val Value) {
	cc.ops = append(cc.ops, Op{Code: op, Arg: val})
}

func (cc *compileContext) newLabel() string {
	return uuid.NewString()
}

func (cc *compileContext) emitLabel(s string) {
	cc.ops = append(cc.ops, Op{Code: LABEL, Arg: StrValue(s)})
}

// emitTrace marks a statement boundary. The driver pauses here and hands
// the frame to the trace hook before the statement runs.
func (cc *compileContext) emitTrace(s syntax.Node) {
	start, _ := s.Span()
	cc.emitArg(TRACE, IntValue(int(start.Line)))
}

func newCompileContext() *compileContext {
	return &compileContext{
		subContext: make(map[string]*compileContext),
	}
}

func CompilePath(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFile(path, f)
}

func CompileLiteral(code string) (*Program, error) {
	return LoadFile("input.star", strings.NewReader(code))
}

func Compile(file *syntax.File) (*Program, error) {
	cc, err := buildCompileContextTree(file)
	if err != nil {
		return nil, err
	}
	return cc.intoProgram()
}

func (cc *compileContext) intoProgram() (*Program, error) {
	p := &Program{
		Definitions: make(map[string]int),
	}
	if !cc.topLevel {
		return nil, errors.New("Can't make a program out of a non-top-level context")
	}
	f, err := cc.intoFunction("<module>")
	if err != nil {
		return nil, err
	}
	p.Main = f
	for _, k := range cc.subOrder {
		f, err := cc.subContext[k].intoFunction(k)
		if err != nil {
			return nil, err
		}
		n := len(p.Code)
		p.Code = append(p.Code, f)
		p.Definitions[k] = n
	}
	return p, nil
}

func (cc *compileContext) intoFunction(name string) (*Function, error) {
	f := &Function{Name: name}
	f.Params = cc.params
	offsetmap := make(map[string]int)
	for _, b := range cc.ops {
		if b.Code == LABEL {
			offsetmap[string(b.Arg.(StrValue))] = len(f.Bytecode)
			continue
		}
		f.Bytecode = append(f.Bytecode, b)
	}
	for i, b := range f.Bytecode {
		switch b.Code {
		case JMP, JFALSE, ITER_START, ITER_START_2:
			if v, ok := b.Arg.(StrValue); ok {
				off, found := offsetmap[string(v)]
				if !found {
					return nil, fmt.Errorf("Unresolved label in %s", name)
				}
				b.Arg = IntValue(off)
			}
		}
		f.Bytecode[i] = b // Replace after changes
	}
	return f, nil
}

func buildCompileContextTree(file *syntax.File) (*compileContext, error) {
	cc := newCompileContext()
	cc.topLevel = true
	err := cc.buildFromStatements(file.Stmts)
	if err != nil {
		return nil, err
	}
	return cc, nil
}

func (cc *compileContext) buildFromStatements(stmts []syntax.Stmt) error {
	for _, s := range stmts {
		err := cc.statement(s)
		if err != nil {
			return err
		}
	}
	return nil
}

func (cc *compileContext) currentLoop() (loopLabels, bool) {
	if len(cc.loops) == 0 {
		return loopLabels{}, false
	}
	return cc.loops[len(cc.loops)-1], true
}
