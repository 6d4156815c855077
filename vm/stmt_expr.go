package vm

import (
	"errors"
	"fmt"

	"go.starlark.net/syntax"
)

func (cc *compileContext) statement(s syntax.Stmt) error {
	// Every executable statement starts with an observation point.
	cc.emitTrace(s)

	switch v := s.(type) {
	case *syntax.AssignStmt:
		return cc.assign(v.Op, v.LHS, v.RHS)
	case *syntax.BranchStmt:
		switch v.Token {
		case syntax.BREAK:
			loop, ok := cc.currentLoop()
			if !ok {
				return fmt.Errorf("%s outside of a loop", v.Token)
			}
			if loop.isFor {
				// ITER_END pops the live iterator before jumping out.
				cc.emit(ITER_END)
			} else {
				cc.emitArg(JMP, StrValue(loop.breakLabel))
			}
		case syntax.CONTINUE:
			loop, ok := cc.currentLoop()
			if !ok {
				return fmt.Errorf("%s outside of a loop", v.Token)
			}
			cc.emitArg(JMP, StrValue(loop.continueLabel))
		case syntax.PASS:
			// No code, but the TRACE above still observes the line.
		default:
			return fmt.Errorf("Unhandled branch statement %s", v.Token)
		}
	case *syntax.DefStmt:
		if !cc.topLevel {
			return errors.New("Nested defs are unsupported")
		}
		sub := newCompileContext()
		name := v.Name.Name
		var err error
		sub.params, err = getFunctionParams(v.Params)
		if err != nil {
			return err
		}
		err = sub.buildFromStatements(v.Body)
		if err != nil {
			return err
		}
		// Implicit return at the end of every function.
		if len(sub.ops) == 0 || sub.ops[len(sub.ops)-1].Code != RETURN {
			sub.emitArg(PUSH, None)
			sub.emit(RETURN)
		}
		if _, exists := cc.subContext[name]; !exists {
			cc.subOrder = append(cc.subOrder, name)
		}
		cc.subContext[name] = sub
	case *syntax.ExprStmt:
		if _, ok := v.X.(*syntax.Literal); ok {
			// Opt: don't compile literals only to pop them.
			return nil
		}
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		// All expressions leave a value on the stack, so always POP it
		cc.emit(POP)
	case *syntax.ForStmt:
		idents := 0
		switch vars := v.Vars.(type) {
		case *syntax.Ident:
			cc.emitArg(PUSH, StrValue(vars.Name))
			idents = 1
		case *syntax.TupleExpr:
			if len(vars.List) > 2 {
				return errors.New("Too many variables in for list")
			}
			idents = len(vars.List)
			for _, id := range vars.List {
				if v, ok := id.(*syntax.Ident); ok {
					cc.emitArg(PUSH, StrValue(v.Name))
				} else {
					return errors.New("Non-identifier in for variable")
				}
			}
		default:
			return errors.New("Unsupported for variables")
		}
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		endLabel := cc.newLabel()
		continueLabel := cc.newLabel()
		if idents == 1 {
			cc.emitArg(ITER_START, StrValue(endLabel))
		} else {
			cc.emitArg(ITER_START_2, StrValue(endLabel))
		}
		cc.loops = append(cc.loops, loopLabels{
			continueLabel: continueLabel,
			breakLabel:    endLabel,
			isFor:         true,
		})
		err = cc.buildFromStatements(v.Body)
		cc.loops = cc.loops[:len(cc.loops)-1]
		if err != nil {
			return err
		}
		cc.emitLabel(continueLabel)
		cc.emit(ITER_NEXT)
		cc.emitLabel(endLabel)
	case *syntax.WhileStmt:
		// while condition:
		//   body
		// Compiles to:
		//   start_label:
		//     <condition>
		//     JFALSE end_label  ; JFALSE consumes the condition value
		//     <body>
		//     JMP start_label
		//   end_label:
		startLabel := cc.newLabel()
		endLabel := cc.newLabel()
		cc.emitLabel(startLabel)
		err := cc.expr(v.Cond)
		if err != nil {
			return err
		}
		cc.emitArg(JFALSE, StrValue(endLabel))
		cc.loops = append(cc.loops, loopLabels{
			continueLabel: startLabel,
			breakLabel:    endLabel,
		})
		err = cc.buildFromStatements(v.Body)
		cc.loops = cc.loops[:len(cc.loops)-1]
		if err != nil {
			return err
		}
		cc.emitArg(JMP, StrValue(startLabel))
		cc.emitLabel(endLabel)
	case *syntax.IfStmt:
		err := cc.expr(v.Cond)
		if err != nil {
			return err
		}
		label := cc.newLabel()
		cc.emitArg(JFALSE, StrValue(label))
		if err := cc.buildFromStatements(v.True); err != nil {
			return err
		}
		if len(v.False) == 0 {
			cc.emitLabel(label)
			return nil
		}
		endLabel := cc.newLabel()
		cc.emitArg(JMP, StrValue(endLabel))
		cc.emitLabel(label)
		if err := cc.buildFromStatements(v.False); err != nil {
			return err
		}
		cc.emitLabel(endLabel)
	case *syntax.LoadStmt:
		// load("math", "sqrt", pi="pi") asks the host for the module and
		// binds the requested members.
		cc.emitArg(IMPORT, StrValue(v.Module.Value.(string)))
		for i := range v.From {
			cc.emit(DUP)
			cc.emitArg(PUSH, StrValue(v.From[i].Name))
			cc.emit(GETATTR)
			cc.emitArg(PUSH, StrValue(v.To[i].Name))
			cc.emit(SETVAL)
		}
		cc.emit(POP)
	case *syntax.ReturnStmt:
		if v.Result == nil {
			cc.emitArg(PUSH, None)
		} else {
			err := cc.expr(v.Result)
			if err != nil {
				return err
			}
		}
		cc.emit(RETURN)
	default:
		return fmt.Errorf("Unhandled statment type %T", s)
	}
	return nil
}

func (cc *compileContext) expr(e syntax.Expr) error {
	switch v := e.(type) {
	case *syntax.BinaryExpr:
		// Handle short-circuit operators (AND, OR) specially
		if v.Op == syntax.AND || v.Op == syntax.OR {
			return cc.shortCircuitBinOp(v)
		}
		// Regular binary operators - evaluate both sides first
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		err = cc.expr(v.Y)
		if err != nil {
			return err
		}
		return cc.binOp(v.Op)
	case *syntax.CallExpr:
		// Check if this is a method call: obj.method(args)
		if dotExpr, ok := v.Fn.(*syntax.DotExpr); ok {
			// Stack layout: arg1, arg2, ..., argN, receiver, methodName.
			// CALL_METHOD pushes the (possibly replaced) receiver and then
			// the return value; mutation on a simple variable receiver is
			// compiled as a store-back, anything else drops the receiver.
			for _, a := range v.Args {
				err := cc.callArg(a)
				if err != nil {
					return err
				}
			}
			err := cc.expr(dotExpr.X)
			if err != nil {
				return err
			}
			cc.emitArg(PUSH, StrValue(dotExpr.Name.Name))
			cc.emitArg(CALL_METHOD, IntValue(len(v.Args)))
			cc.emit(SWAP)
			if ident, ok := dotExpr.X.(*syntax.Ident); ok {
				cc.emitArg(PUSH, StrValue(ident.Name))
				cc.emit(SETVAL)
			} else {
				cc.emit(POP)
			}
		} else {
			// Regular function call
			for _, a := range v.Args {
				err := cc.callArg(a)
				if err != nil {
					return err
				}
			}
			err := cc.expr(v.Fn)
			if err != nil {
				return err
			}
			cc.emitArg(CALL, IntValue(len(v.Args)))
		}
	case *syntax.Comprehension:
		return errors.New("Comprehensions are as yet unsupported")
	case *syntax.CondExpr:
		err := cc.expr(v.Cond)
		if err != nil {
			return err
		}
		label := cc.newLabel()
		cc.emitArg(JFALSE, StrValue(label))
		err = cc.expr(v.True)
		if err != nil {
			return err
		}
		endLabel := cc.newLabel()
		cc.emitArg(JMP, StrValue(endLabel))
		cc.emitLabel(label)
		err = cc.expr(v.False)
		if err != nil {
			return err
		}
		cc.emitLabel(endLabel)
	case *syntax.DictEntry:
		err := cc.expr(v.Key)
		if err != nil {
			return err
		}
		err = cc.expr(v.Value)
		if err != nil {
			return err
		}
		cc.emitArg(BUILD_LIST, IntValue(2))
	case *syntax.DictExpr:
		for _, expr := range v.List {
			err := cc.expr(expr)
			if err != nil {
				return err
			}
		}
		cc.emitArg(BUILD_DICT, IntValue(len(v.List)))
	case *syntax.DotExpr:
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		cc.emitArg(PUSH, StrValue(v.Name.Name))
		cc.emit(GETATTR)
	case *syntax.Ident:
		if v.Name == "True" {
			cc.emitArg(PUSH, BoolTrue)
			return nil
		}
		if v.Name == "False" {
			cc.emitArg(PUSH, BoolFalse)
			return nil
		}
		if v.Name == "None" {
			cc.emitArg(PUSH, None)
			return nil
		}
		cc.emitArg(PUSH, StrValue(v.Name))
		cc.emit(GETVAL)
	case *syntax.IndexExpr:
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		err = cc.expr(v.Y)
		if err != nil {
			return err
		}
		cc.emit(GETATTR)
	case *syntax.LambdaExpr:
		return errors.New("Lambda expressions are unsupported")
	case *syntax.ListExpr:
		for _, exp := range v.List {
			err := cc.expr(exp)
			if err != nil {
				return err
			}
		}
		cc.emitArg(BUILD_LIST, IntValue(len(v.List)))
	case *syntax.Literal:
		val, err := litToValue(v.Value)
		if err != nil {
			return err
		}
		cc.emitArg(PUSH, val)
	case *syntax.ParenExpr:
		return cc.expr(unparen(v))
	case *syntax.SliceExpr:
		// array[start:end:step] - step is not supported yet
		if v.Step != nil {
			return errors.New("Slice step is not supported")
		}
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		if v.Lo != nil {
			err = cc.expr(v.Lo)
			if err != nil {
				return err
			}
		} else {
			cc.emitArg(PUSH, None)
		}
		if v.Hi != nil {
			err = cc.expr(v.Hi)
			if err != nil {
				return err
			}
		} else {
			cc.emitArg(PUSH, None)
		}
		cc.emit(SLICE)
	case *syntax.TupleExpr:
		for _, exp := range v.List {
			err := cc.expr(exp)
			if err != nil {
				return err
			}
		}
		cc.emitArg(BUILD_LIST, IntValue(len(v.List)))
	case *syntax.UnaryExpr:
		return cc.unary(v)
	default:
		return fmt.Errorf("Unhandled expr type %T", e)
	}
	return nil
}

// shortCircuitBinOp handles AND and OR operators with short-circuit evaluation
func (cc *compileContext) shortCircuitBinOp(e *syntax.BinaryExpr) error {
	if e.Op == syntax.AND {
		// AND short-circuit: if left is false, skip right and return left
		err := cc.expr(e.X)
		if err != nil {
			return err
		}
		endLabel := cc.newLabel()
		cc.emit(DUP)
		cc.emitArg(JFALSE, StrValue(endLabel))
		cc.emit(POP) // Remove the duplicate left value (which was truthy)
		err = cc.expr(e.Y)
		if err != nil {
			return err
		}
		cc.emitLabel(endLabel)
		return nil
	}

	if e.Op == syntax.OR {
		// OR short-circuit: if left is true, skip right and return left
		err := cc.expr(e.X)
		if err != nil {
			return err
		}
		elseLabel := cc.newLabel()
		endLabel := cc.newLabel()
		cc.emit(DUP)
		cc.emitArg(JFALSE, StrValue(elseLabel))
		cc.emitArg(JMP, StrValue(endLabel))
		cc.emitLabel(elseLabel)
		cc.emit(POP) // Remove the duplicate false value
		err = cc.expr(e.Y)
		if err != nil {
			return err
		}
		cc.emitLabel(endLabel)
		return nil
	}

	return fmt.Errorf("shortCircuitBinOp: unexpected op %v", e.Op)
}

func (cc *compileContext) binOp(op syntax.Token) error {
	switch op {
	case syntax.PLUS: // +
		cc.emit(ADD)
	case syntax.MINUS: // -
		cc.emit(SUBTRACT)
	case syntax.STAR: // *
		cc.emit(MULTIPLY)
	case syntax.SLASH: // /
		cc.emit(DIVIDE)
	case syntax.SLASHSLASH: // //
		cc.emit(FLOOR_DIVIDE)
	case syntax.PERCENT: // %
		cc.emit(MODULO)
	case syntax.LT: // <
		cc.emit(LT)
	case syntax.GT: // >
		cc.emit(LTE)
		cc.emit(NOT)
	case syntax.GE: // >=
		cc.emit(LT)
		cc.emit(NOT)
	case syntax.LE: // <=
		cc.emit(LTE)
	case syntax.EQL: // ==
		cc.emit(EQ)
	case syntax.NEQ: // !=
		cc.emit(EQ)
		cc.emit(NOT)
	case syntax.IN:
		cc.emit(IN)
	case syntax.NOT_IN: // synthesized by parser from NOT IN
		cc.emit(IN)
		cc.emit(NOT)
	default:
		return fmt.Errorf("compileContext: Unhandled binary operation %#v", op)
	}
	return nil
}

func (cc *compileContext) unary(e *syntax.UnaryExpr) error {
	err := cc.expr(e.X)
	if err != nil {
		return err
	}
	switch e.Op {
	case syntax.NOT:
		cc.emit(NOT)
	case syntax.MINUS:
		// Unary minus: 0 - x
		cc.emitArg(PUSH, IntValue(0))
		cc.emit(SWAP)
		cc.emit(SUBTRACT)
	case syntax.PLUS:
		// Unary plus is a no-op
	default:
		return fmt.Errorf("compileContext: Unhandled unary operation %#v", e.Op.String())
	}
	return nil
}

func (cc *compileContext) callArg(arg syntax.Expr) error {
	switch v := arg.(type) {
	case *syntax.BinaryExpr:
		if v.Op == syntax.EQ {
			// Keyword argument: name=value
			if g, ok := v.X.(*syntax.Ident); ok {
				err := cc.expr(v.Y)
				if err != nil {
					return err
				}
				cc.emitArg(PUSH, StrValue(g.Name))
				cc.emit(BUILD_ARG)
			} else {
				return fmt.Errorf("Only identifiers are allowed on the left-hand side of a function call argument")
			}
			return nil
		}
		// For other binary expressions (like subtraction), fall through to regular expression handling
	case *syntax.UnaryExpr:
		if v.Op == syntax.STAR || v.Op == syntax.STARSTAR {
			return fmt.Errorf("Splats are currently unsupported")
		}
	}
	// fallthrough
	err := cc.expr(arg)
	if err != nil {
		return err
	}
	cc.emitArg(PUSH, None)
	cc.emit(BUILD_ARG)

	return nil
}

func (cc *compileContext) assign(op syntax.Token, lhs syntax.Expr, rhs syntax.Expr) error {
	err := cc.expr(rhs)
	if err != nil {
		return err
	}
	if op != syntax.EQ {
		err := cc.assignSelfReassign(op, lhs)
		if err != nil {
			return err
		}
	}
	switch v := lhs.(type) {
	case *syntax.Ident:
		if v.Name == "True" || v.Name == "False" {
			return fmt.Errorf("Reassigning `%s` is not allowed", v.Name)
		}
		cc.emitArg(PUSH, StrValue(v.Name))
		cc.emit(SETVAL)
	case *syntax.IndexExpr:
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		err = cc.expr(v.Y)
		if err != nil {
			return err
		}
		cc.emit(SETATTR)
	case *syntax.DotExpr:
		err := cc.expr(v.X)
		if err != nil {
			return err
		}
		cc.emitArg(PUSH, StrValue(v.Name.Name))
		cc.emit(SETATTR)
	default:
		return fmt.Errorf("assign: Unhandled LHS expr type %T", lhs)
	}
	return nil
}

func (cc *compileContext) assignSelfReassign(op syntax.Token, lhs syntax.Expr) error {
	// Stack holds the RHS; evaluate the LHS on top and combine so the
	// result is lhs OP rhs.
	err := cc.expr(lhs)
	if err != nil {
		return err
	}
	switch op {
	case syntax.PLUS_EQ:
		cc.emit(SWAP)
		cc.emit(ADD)
	case syntax.MINUS_EQ:
		cc.emit(SWAP)
		cc.emit(SUBTRACT)
	case syntax.STAR_EQ:
		cc.emit(SWAP)
		cc.emit(MULTIPLY)
	case syntax.SLASH_EQ:
		cc.emit(SWAP)
		cc.emit(DIVIDE)
	case syntax.PERCENT_EQ:
		cc.emit(SWAP)
		cc.emit(MODULO)
	default:
		return fmt.Errorf("%#v assignments unimplemented", op)
	}
	return nil
}

func getFunctionParams(e []syntax.Expr) ([]FunctionParam, error) {
	var out []FunctionParam
	for _, x := range e {
		switch v := x.(type) {
		case *syntax.Ident:
			out = append(out, FunctionParam{Name: v.Name})
		case *syntax.BinaryExpr:
			if v.Op != syntax.EQ {
				return nil, fmt.Errorf("Only assignments are allowed within a function parameter")
			}
			if arg, ok := v.X.(*syntax.Ident); ok {
				switch y := v.Y.(type) {
				case *syntax.Literal:
					val, err := litToValue(y.Value)
					if err != nil {
						return nil, err
					}
					out = append(out, FunctionParam{Name: arg.Name, Default: val})
				default:
					return nil, fmt.Errorf("Only literals are supported as default arguments to functions")
				}
			}
		default:
			return nil, fmt.Errorf("Unhandled function param expr type %T", x)
		}
	}
	return out, nil
}

func unparen(e syntax.Expr) syntax.Expr {
	if p, ok := e.(*syntax.ParenExpr); ok {
		return unparen(p.X)
	}
	return e
}

func litToValue(l any) (Value, error) {
	switch t := l.(type) {
	case int64:
		return IntValue(int(t)), nil
	case string:
		return StrValue(t), nil
	case float64:
		return FloatValue(t), nil
	}
	return nil, fmt.Errorf("litToValue: Unsupported literal value type %T", l)
}
