package vm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shamaton/msgpack/v2"
)

type Program struct {
	Definitions map[string]int
	Code        []*Function
	Main        *Function
}

func (p *Program) DebugPrint() {
	fmt.Printf("Defs: %#v\n", p.Definitions)
	fmt.Println("*** Main")
	p.Main.DebugPrint()
	for i, f := range p.Code {
		fmt.Printf("*** %d (%s):\n", i, f.Name)
		f.DebugPrint()
	}
}

var ErrEndOfCode = errors.New("End of code block")

func (p *Program) GetInstruction(ptr ExecPtr) (Op, error) {
	var f *Function
	if ptr.CodeID() == 0 {
		f = p.Main
	} else {
		f = p.Code[ptr.CodeID()-1]
	}
	if len(f.Bytecode) <= ptr.Offset() {
		return Op{}, ErrEndOfCode
	}
	return f.Bytecode[ptr.Offset()], nil
}

func (p *Program) Resolve(name string) (ExecPtr, bool) {
	if v, ok := p.Definitions[name]; ok {
		return NewExecPtr(v + 1), true
	}
	return 0, false
}

// FunctionName reports the name of the function a pointer executes in.
// Code block zero is top-level code.
func (p *Program) FunctionName(ptr ExecPtr) (string, bool) {
	id := ptr.CodeID()
	if id == 0 {
		return "<module>", true
	}
	if id-1 >= len(p.Code) {
		return "", false
	}
	return p.Code[id-1].Name, true
}

// Wire form for serialization. Op arguments are always literals
// (ints, floats, strings, bools, None), so a small tagged record is
// enough to round-trip them through msgpack.
const (
	wireArgNone uint8 = iota
	wireArgInt
	wireArgFloat
	wireArgStr
	wireArgBool
	wireArgNoneValue
)

type wireValue struct {
	Kind  uint8
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

type wireOp struct {
	Code uint8
	Arg  wireValue
}

type wireParam struct {
	Name    string
	Default *wireValue
}

type wireFunction struct {
	Name     string
	Bytecode []wireOp
	Params   []wireParam
}

type wireProgram struct {
	Definitions map[string]int
	Code        []wireFunction
	Main        wireFunction
}

func toWireValue(v Value) (wireValue, error) {
	switch val := v.(type) {
	case nil:
		return wireValue{Kind: wireArgNone}, nil
	case IntValue:
		return wireValue{Kind: wireArgInt, Int: int64(val)}, nil
	case FloatValue:
		return wireValue{Kind: wireArgFloat, Float: float64(val)}, nil
	case StrValue:
		return wireValue{Kind: wireArgStr, Str: string(val)}, nil
	case BoolValue:
		return wireValue{Kind: wireArgBool, Bool: bool(val)}, nil
	case NoneValue:
		return wireValue{Kind: wireArgNoneValue}, nil
	}
	return wireValue{}, fmt.Errorf("cannot serialize op argument of type %T", v)
}

func fromWireValue(w wireValue) (Value, error) {
	switch w.Kind {
	case wireArgNone:
		return nil, nil
	case wireArgInt:
		return IntValue(w.Int), nil
	case wireArgFloat:
		return FloatValue(w.Float), nil
	case wireArgStr:
		return StrValue(w.Str), nil
	case wireArgBool:
		return BoolValue(w.Bool), nil
	case wireArgNoneValue:
		return None, nil
	}
	return nil, fmt.Errorf("unknown serialized argument kind %d", w.Kind)
}

func toWireFunction(f *Function) (wireFunction, error) {
	out := wireFunction{Name: f.Name}
	for _, op := range f.Bytecode {
		arg, err := toWireValue(op.Arg)
		if err != nil {
			return out, err
		}
		out.Bytecode = append(out.Bytecode, wireOp{Code: uint8(op.Code), Arg: arg})
	}
	for _, p := range f.Params {
		wp := wireParam{Name: p.Name}
		if p.Default != nil {
			arg, err := toWireValue(p.Default)
			if err != nil {
				return out, err
			}
			wp.Default = &arg
		}
		out.Params = append(out.Params, wp)
	}
	return out, nil
}

func fromWireFunction(w wireFunction) (*Function, error) {
	out := &Function{Name: w.Name}
	for _, op := range w.Bytecode {
		arg, err := fromWireValue(op.Arg)
		if err != nil {
			return nil, err
		}
		out.Bytecode = append(out.Bytecode, Op{Code: Opcode(op.Code), Arg: arg})
	}
	for _, p := range w.Params {
		fp := FunctionParam{Name: p.Name}
		if p.Default != nil {
			def, err := fromWireValue(*p.Default)
			if err != nil {
				return nil, err
			}
			fp.Default = def
		}
		out.Params = append(out.Params, fp)
	}
	return out, nil
}

// Serialize writes the compiled program in msgpack form, so compile
// results can be cached on disk or shipped between processes.
func (p *Program) Serialize(w io.Writer) error {
	main, err := toWireFunction(p.Main)
	if err != nil {
		return err
	}
	wp := wireProgram{Definitions: p.Definitions, Main: main}
	for _, f := range p.Code {
		wf, err := toWireFunction(f)
		if err != nil {
			return err
		}
		wp.Code = append(wp.Code, wf)
	}
	return msgpack.MarshalWrite(w, wp)
}

func (p *Program) Deserialize(r io.Reader) error {
	var wp wireProgram
	if err := msgpack.UnmarshalRead(r, &wp); err != nil {
		return err
	}
	main, err := fromWireFunction(wp.Main)
	if err != nil {
		return err
	}
	p.Definitions = wp.Definitions
	p.Main = main
	p.Code = nil
	for _, wf := range wp.Code {
		f, err := fromWireFunction(wf)
		if err != nil {
			return err
		}
		p.Code = append(p.Code, f)
	}
	return nil
}

type Function struct {
	Name     string
	Bytecode []Op
	Params   []FunctionParam
}

func (f *Function) DebugPrint() {
	fmt.Printf("Params: %#v\n", f.Params)
	for i, b := range f.Bytecode {
		fmt.Printf("  %03d: %s\n", i, b)
	}
}

type ExecPtr uint64

func (ptr ExecPtr) MarshalJSON() ([]byte, error) {
	out := make(map[string]int)
	out["offset"] = ptr.Offset()
	out["code_id"] = ptr.CodeID()
	return json.Marshal(out)
}

func (ptr ExecPtr) String() string {
	return fmt.Sprintf("%d:%d", ptr.CodeID(), ptr.Offset())
}

func (ptr ExecPtr) Offset() int {
	return int(0xFFFFFFFF & ptr)
}

func (ptr ExecPtr) CodeID() int {
	return int(ptr >> 32)
}

func (ptr ExecPtr) Inc() ExecPtr {
	return ptr + 1
}

func (ptr ExecPtr) SetOffset(off int) ExecPtr {
	return ExecPtr(ptr.CodeID()<<32 | int(0xFFFFFFFF&off))
}

func NewExecPtr(block int) ExecPtr {
	return ExecPtr(block) << 32
}

type FunctionParam struct {
	Name    string
	Default Value
}
