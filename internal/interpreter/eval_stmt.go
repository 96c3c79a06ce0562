package interpreter

import (
	"fmt"

	"aegis/internal/errors"
	"aegis/internal/parser"
	"aegis/internal/security"
)

func (in *Interpreter) exec(stmt parser.Stmt, env *Environment) (Value, error) {
	switch s := stmt.(type) {
	case *parser.ExpressionStmt:
		return in.eval(s.Expr, env)
	case *parser.SetStmt:
		return in.execSet(s, env)
	case *parser.Block:
		return in.execBlock(s, env)
	case *parser.FunctionDef:
		fn := &Function{Name: s.Name, Params: s.Params, Body: s.Body, Env: env, Async: s.Async}
		env.Declare(s.Name, fn)
		return nil, nil
	case *parser.ReturnStmt:
		var v Value
		if s.Value != nil {
			var err error
			if v, err = in.eval(s.Value, env); err != nil {
				return nil, err
			}
		}
		return nil, returnSignal{v}
	case *parser.IfStmt:
		return in.execIf(s, env)
	case *parser.WhileStmt:
		return in.execWhile(s, env)
	case *parser.ForStmt:
		return in.execFor(s, env)
	case *parser.BreakStmt:
		return nil, breakSignal{}
	case *parser.ContinueStmt:
		return nil, continueSignal{}
	case *parser.TryStmt:
		return in.execTry(s, env)
	case *parser.ThrowStmt:
		v, err := in.eval(s.Value, env)
		if err != nil {
			return nil, err
		}
		th := in.throw(errors.NewUserThrown(ToString(v), s.Line, s.Column))
		th.Value = v
		return nil, th
	case *parser.AssertStmt:
		return in.execAssert(s, env)
	case *parser.ClassDef:
		return in.execClass(s, env)
	case *parser.ModeSwitch:
		return in.execMode(s)
	case *parser.SecuritySentence:
		return in.execSentence(s, env)
	}
	return nil, fmt.Errorf("unknown statement %T", stmt)
}

// execBlock runs statements in env. Blocks do not open a scope; functions
// do.
func (in *Interpreter) execBlock(b *parser.Block, env *Environment) (Value, error) {
	var last Value
	for _, stmt := range b.Stmts {
		v, err := in.exec(stmt, env)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (in *Interpreter) execSet(s *parser.SetStmt, env *Environment) (Value, error) {
	v, err := in.eval(s.Value, env)
	if err != nil {
		return nil, err
	}
	switch t := s.Target.(type) {
	case *parser.Variable:
		env.Assign(t.Name, v)
	case *parser.Property:
		obj, err := in.eval(t.Object, env)
		if err != nil {
			return nil, err
		}
		if err := in.setProperty(obj, t.Name, v, t.Pos()); err != nil {
			return nil, err
		}
	case *parser.Index:
		obj, err := in.eval(t.Object, env)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(t.Index, env)
		if err != nil {
			return nil, err
		}
		if err := in.setIndex(obj, idx, v, t.Pos()); err != nil {
			return nil, err
		}
	default:
		return nil, in.typeError(s.Pos(), "cannot assign to %s", s.Target)
	}
	return v, nil
}

func (in *Interpreter) execIf(s *parser.IfStmt, env *Environment) (Value, error) {
	cond, err := in.eval(s.Cond, env)
	if err != nil {
		return nil, err
	}
	if IsTruthy(cond) != s.Unless {
		return in.execBlock(s.Then, env)
	}
	if s.Else != nil {
		return in.exec(s.Else, env)
	}
	return nil, nil
}

// loopBody runs one iteration and reports whether the loop should stop.
func (in *Interpreter) loopBody(body *parser.Block, env *Environment) (stop bool, err error) {
	if err := in.ctx.Err(); err != nil {
		return true, err
	}
	_, err = in.execBlock(body, env)
	switch err.(type) {
	case nil, continueSignal:
		return false, nil
	case breakSignal:
		return true, nil
	}
	return true, err
}

func (in *Interpreter) execWhile(s *parser.WhileStmt, env *Environment) (Value, error) {
	for {
		cond, err := in.eval(s.Cond, env)
		if err != nil {
			return nil, err
		}
		if IsTruthy(cond) == s.Until {
			return nil, nil
		}
		if stop, err := in.loopBody(s.Body, env); stop {
			return nil, err
		}
	}
}

// execFor iterates list elements, map keys or string characters. The loop
// variable is set like any other name.
func (in *Interpreter) execFor(s *parser.ForStmt, env *Environment) (Value, error) {
	iter, err := in.eval(s.Iterable, env)
	if err != nil {
		return nil, err
	}
	var items []Value
	switch x := iter.(type) {
	case *List:
		items = append(items, x.Elements...)
	case *Map:
		for _, k := range x.Keys() {
			items = append(items, k)
		}
	case string:
		for _, r := range x {
			items = append(items, string(r))
		}
	default:
		return nil, in.typeError(s.Iterable.Pos(), "cannot iterate over %s", TypeName(iter))
	}
	for _, item := range items {
		env.Assign(s.Var, item)
		if stop, err := in.loopBody(s.Body, env); stop {
			return nil, err
		}
	}
	return nil, nil
}

// execTry runs finally exactly once on every path out of the try. A signal
// raised by finally itself replaces whatever was in flight.
func (in *Interpreter) execTry(s *parser.TryStmt, env *Environment) (Value, error) {
	v, err := in.execBlock(s.Body, env)
	if th, ok := err.(*Thrown); ok && s.Catch != nil && th.Matches(s.CatchType) {
		scope := NewBindingScope(env, s.CatchName, th.CatchValue())
		v, err = in.execBlock(s.Catch, scope)
	}
	if s.Finally != nil {
		if _, ferr := in.execBlock(s.Finally, env); ferr != nil {
			return nil, ferr
		}
	}
	return v, err
}

func (in *Interpreter) execAssert(s *parser.AssertStmt, env *Environment) (Value, error) {
	cond, err := in.eval(s.Cond, env)
	if err != nil {
		return nil, err
	}
	if IsTruthy(cond) {
		return nil, nil
	}
	msg := "assertion failed"
	if s.Message != nil {
		m, err := in.eval(s.Message, env)
		if err != nil {
			return nil, err
		}
		msg = ToString(m)
	}
	return nil, in.throw(errors.NewAssertionError(msg, s.Line, s.Column))
}

func (in *Interpreter) execClass(s *parser.ClassDef, env *Environment) (Value, error) {
	class := &Class{
		Name:    s.Name,
		Methods: make(map[string]*Function),
		Static:  make(map[string]*Function),
	}
	if s.Parent != "" {
		pv, ok := env.Lookup(s.Parent)
		if !ok {
			return nil, in.nameError(s.Pos(), "undefined parent class '%s'", s.Parent)
		}
		parent, ok := pv.(*Class)
		if !ok {
			return nil, in.typeError(s.Pos(), "cannot extend %s '%s'", TypeName(pv), s.Parent)
		}
		class.Parent = parent
	}
	for _, m := range s.Methods {
		fn := &Function{Name: m.Name, Params: m.Params, Body: m.Body, Env: env, Async: m.Async, Class: class}
		if m.Static {
			class.Static[m.Name] = fn
		} else {
			class.Methods[m.Name] = fn
		}
	}
	env.Declare(s.Name, class)
	return nil, nil
}

func (in *Interpreter) execMode(s *parser.ModeSwitch) (Value, error) {
	modes := in.resolver.Modes()
	if s.Mode == "" {
		return string(modes.Get()), nil
	}
	m, err := security.ParseMode(s.Mode)
	if err == nil {
		err = modes.Set(m)
	}
	if err != nil {
		return nil, in.runtimeError(s.Pos(), "%s", err)
	}
	in.logger.Info("mode switched", "mode", m)
	return string(m), nil
}

// execSentence dispatches the chain through the resolver, then runs the
// then block on success or the else block on failure or a failed guard.
func (in *Interpreter) execSentence(s *parser.SecuritySentence, env *Environment) (Value, error) {
	res, err := in.resolver.Execute(in.ctx, s, sentenceEval{in: in, env: env})
	if err != nil {
		return nil, err
	}
	switch {
	case res.OK && s.Then != nil:
		if _, err := in.execBlock(s.Then, env); err != nil {
			return nil, err
		}
	case !res.OK && s.Else != nil:
		if _, err := in.execBlock(s.Else, env); err != nil {
			return nil, err
		}
	}
	return sentenceValue(res), nil
}

// sentenceEval lets the resolver evaluate guards and phrase arguments in
// the sentence's scope.
type sentenceEval struct {
	in  *Interpreter
	env *Environment
}

func (e sentenceEval) Condition(expr parser.Expr) (bool, error) {
	v, err := e.in.eval(expr, e.env)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}

func (e sentenceEval) Value(expr parser.Expr) (interface{}, error) {
	v, err := e.in.eval(expr, e.env)
	if err != nil {
		return nil, err
	}
	h, err := ToHost(v)
	if err != nil {
		return nil, e.in.runtimeError(expr.Pos(), "%s", err)
	}
	return h, nil
}

func sentenceValue(res *security.Result) Value {
	outcomes := NewList()
	add := func(r *security.Result) {
		for _, o := range r.Outcomes {
			m := NewMap()
			m.Set("phrase", o.Phrase)
			m.Set("ok", o.OK)
			m.Set("stub", o.Stub)
			m.Set("skipped", o.Skipped)
			m.Set("result", FromHost(o.Result))
			if o.Err != nil {
				m.Set("error", o.Err.Error())
			} else {
				m.Set("error", nil)
			}
			outcomes.Elements = append(outcomes.Elements, m)
		}
	}
	add(res)
	if res.Else != nil {
		add(res.Else)
	}
	v := NewMap()
	v.Set("ok", res.OK)
	v.Set("mode", string(res.Mode))
	v.Set("outcomes", outcomes)
	return v
}
