package interpreter

import (
	"fmt"
	"math"
	"strings"

	"aegis/internal/parser"
	"aegis/internal/scheduler"
)

func (in *Interpreter) eval(expr parser.Expr, env *Environment) (Value, error) {
	switch e := expr.(type) {
	case *parser.Literal:
		return e.Value, nil
	case *parser.Variable:
		v, ok := env.Lookup(e.Name)
		if !ok {
			return nil, in.nameError(e.Pos(), "undefined variable '%s'", e.Name)
		}
		return v, nil
	case *parser.This:
		v, ok := env.Lookup("this")
		if !ok {
			return nil, in.nameError(e.Pos(), "'this' used outside of a method")
		}
		return v, nil
	case *parser.Super:
		return in.evalSuper(e, env)
	case *parser.Assign:
		v, err := in.eval(e.Value, env)
		if err != nil {
			return nil, err
		}
		env.Assign(e.Name, v)
		return v, nil
	case *parser.SetProperty:
		obj, err := in.eval(e.Object, env)
		if err != nil {
			return nil, err
		}
		v, err := in.eval(e.Value, env)
		if err != nil {
			return nil, err
		}
		return v, in.setProperty(obj, e.Name, v, e.Pos())
	case *parser.SetIndex:
		obj, err := in.eval(e.Object, env)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(e.Index, env)
		if err != nil {
			return nil, err
		}
		v, err := in.eval(e.Value, env)
		if err != nil {
			return nil, err
		}
		return v, in.setIndex(obj, idx, v, e.Pos())
	case *parser.Unary:
		return in.evalUnary(e, env)
	case *parser.Binary:
		left, err := in.eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		return in.binary(e.Operator, left, right, e.Pos())
	case *parser.Logical:
		return in.evalLogical(e, env)
	case *parser.Call:
		return in.evalCall(e, env)
	case *parser.Property:
		obj, err := in.eval(e.Object, env)
		if err != nil {
			return nil, err
		}
		return in.getProperty(obj, e.Name, e.Pos())
	case *parser.Index:
		obj, err := in.eval(e.Object, env)
		if err != nil {
			return nil, err
		}
		idx, err := in.eval(e.Index, env)
		if err != nil {
			return nil, err
		}
		return in.index(obj, idx, e.Pos())
	case *parser.List:
		l := NewList()
		for _, el := range e.Elements {
			v, err := in.eval(el, env)
			if err != nil {
				return nil, err
			}
			l.Elements = append(l.Elements, v)
		}
		return l, nil
	case *parser.Map:
		m := NewMap()
		for i, k := range e.Keys {
			kv, err := in.eval(k, env)
			if err != nil {
				return nil, err
			}
			v, err := in.eval(e.Values[i], env)
			if err != nil {
				return nil, err
			}
			m.Set(ToString(kv), v)
		}
		return m, nil
	case *parser.Lambda:
		return &Function{Params: e.Params, Body: e.Body, Result: e.Result, Env: env, Async: e.Async}, nil
	case *parser.New:
		cv, err := in.eval(e.Class, env)
		if err != nil {
			return nil, err
		}
		class, ok := cv.(*Class)
		if !ok {
			return nil, in.typeError(e.Pos(), "cannot instantiate %s", TypeName(cv))
		}
		args, err := in.evalArgs(e.Args, env)
		if err != nil {
			return nil, err
		}
		return in.instantiate(class, args, e.Pos())
	case *parser.Await:
		v, err := in.eval(e.Value, env)
		if err != nil {
			return nil, err
		}
		return in.await(v, e.Pos())
	}
	return nil, fmt.Errorf("unknown expression %T", expr)
}

func (in *Interpreter) evalArgs(exprs []parser.Expr, env *Environment) ([]Value, error) {
	args := make([]Value, 0, len(exprs))
	for _, a := range exprs {
		v, err := in.eval(a, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func (in *Interpreter) evalUnary(e *parser.Unary, env *Environment) (Value, error) {
	v, err := in.eval(e.Operand, env)
	if err != nil {
		return nil, err
	}
	if e.Operator == "not" {
		return !IsTruthy(v), nil
	}
	n, ok := v.(float64)
	if !ok {
		return nil, in.typeError(e.Pos(), "bad operand type for unary -: %s", TypeName(v))
	}
	return -n, nil
}

// evalLogical short-circuits and returns the deciding operand; nor always
// yields a bool.
func (in *Interpreter) evalLogical(e *parser.Logical, env *Environment) (Value, error) {
	left, err := in.eval(e.Left, env)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case "and":
		if !IsTruthy(left) {
			return left, nil
		}
	case "or":
		if IsTruthy(left) {
			return left, nil
		}
	case "nor":
		if IsTruthy(left) {
			return false, nil
		}
		right, err := in.eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		return !IsTruthy(right), nil
	}
	return in.eval(e.Right, env)
}

func (in *Interpreter) binary(op string, left, right Value, pos parser.Position) (Value, error) {
	switch op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "in":
		return in.contains(right, left, pos)
	case "+":
		switch l := left.(type) {
		case float64:
			if r, ok := right.(float64); ok {
				return l + r, nil
			}
		case *List:
			if r, ok := right.(*List); ok {
				out := NewList(append(append([]Value{}, l.Elements...), r.Elements...)...)
				return out, nil
			}
		}
		_, ls := left.(string)
		_, rs := right.(string)
		if ls || rs {
			return ToString(left) + ToString(right), nil
		}
	case "<", ">", "<=", ">=":
		if l, ok := left.(string); ok {
			if r, ok := right.(string); ok {
				return compare(op, strings.Compare(l, r)), nil
			}
		}
	}

	l, lok := left.(float64)
	r, rok := right.(float64)
	if !lok || !rok {
		return nil, in.typeError(pos, "unsupported operand types for %s: %s and %s", op, TypeName(left), TypeName(right))
	}
	switch op {
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, in.runtimeError(pos, "division by zero")
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return nil, in.runtimeError(pos, "modulo by zero")
		}
		return math.Mod(l, r), nil
	case "<", ">", "<=", ">=":
		c := 0
		if l < r {
			c = -1
		} else if l > r {
			c = 1
		}
		return compare(op, c), nil
	}
	return nil, in.typeError(pos, "unknown operator %s", op)
}

func compare(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	default:
		return c >= 0
	}
}

func (in *Interpreter) contains(container, item Value, pos parser.Position) (Value, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return nil, in.typeError(pos, "'in <string>' requires a string, not %s", TypeName(item))
		}
		return strings.Contains(c, s), nil
	case *List:
		for _, e := range c.Elements {
			if Equal(e, item) {
				return true, nil
			}
		}
		return false, nil
	case *Map:
		_, ok := c.Get(ToString(item))
		return ok, nil
	}
	return nil, in.typeError(pos, "argument of type %s is not a container", TypeName(container))
}

func (in *Interpreter) index(obj, idx Value, pos parser.Position) (Value, error) {
	switch o := obj.(type) {
	case *List:
		i, err := in.position(idx, len(o.Elements), pos)
		if err != nil {
			return nil, err
		}
		return o.Elements[i], nil
	case string:
		runes := []rune(o)
		i, err := in.position(idx, len(runes), pos)
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	case *Map:
		v, _ := o.Get(ToString(idx))
		return v, nil
	case *Instance:
		v, _ := o.Fields.Get(ToString(idx))
		return v, nil
	}
	return nil, in.typeError(pos, "%s is not indexable", TypeName(obj))
}

// position validates a list index; negative indexes count from the end.
func (in *Interpreter) position(idx Value, n int, pos parser.Position) (int, error) {
	f, ok := idx.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, in.typeError(pos, "index must be an integer, not %s", Repr(idx))
	}
	i := int(f)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, in.runtimeError(pos, "index %d out of range (length %d)", int(f), n)
	}
	return i, nil
}

func (in *Interpreter) setIndex(obj, idx, v Value, pos parser.Position) error {
	switch o := obj.(type) {
	case *List:
		i, err := in.position(idx, len(o.Elements), pos)
		if err != nil {
			return err
		}
		o.Elements[i] = v
		return nil
	case *Map:
		o.Set(ToString(idx), v)
		return nil
	case *Instance:
		o.Fields.Set(ToString(idx), v)
		return nil
	}
	return in.typeError(pos, "%s does not support item assignment", TypeName(obj))
}

func (in *Interpreter) setProperty(obj Value, name string, v Value, pos parser.Position) error {
	switch o := obj.(type) {
	case *Instance:
		o.Fields.Set(name, v)
		return nil
	case *Map:
		o.Set(name, v)
		return nil
	}
	return in.typeError(pos, "cannot set property '%s' on %s", name, TypeName(obj))
}

func (in *Interpreter) getProperty(obj Value, name string, pos parser.Position) (Value, error) {
	switch o := obj.(type) {
	case *Instance:
		if v, ok := o.Fields.Get(name); ok {
			return v, nil
		}
		if m, ok := o.Class.FindMethod(name); ok {
			return &BoundMethod{Receiver: o, Method: m}, nil
		}
		return nil, in.nameError(pos, "'%s' has no property or method '%s'", o.Class.Name, name)
	case *Class:
		if m, ok := o.findStatic(name); ok {
			return m, nil
		}
		if name == "name" {
			return o.Name, nil
		}
		return nil, in.nameError(pos, "class '%s' has no static method '%s'", o.Name, name)
	case *Module:
		return in.moduleFunction(o, name), nil
	case *Map:
		if v, ok := o.Get(name); ok {
			return v, nil
		}
	case *scheduler.Promise:
		if m := in.promiseMethod(o, name, pos); m != nil {
			return m, nil
		}
	}
	if m := in.valueMethod(obj, name, pos); m != nil {
		if name == "length" {
			return m.Fn(nil)
		}
		return m, nil
	}
	if _, ok := obj.(*Map); ok {
		return nil, nil
	}
	return nil, in.nameError(pos, "%s has no property '%s'", TypeName(obj), name)
}

func (in *Interpreter) evalSuper(e *parser.Super, env *Environment) (Value, error) {
	cv, ok := env.Lookup("super")
	class, _ := cv.(*Class)
	if !ok || class == nil {
		return nil, in.nameError(e.Pos(), "'super' used outside of a method")
	}
	this, _ := env.Lookup("this")
	inst, ok := this.(*Instance)
	if !ok {
		return nil, in.nameError(e.Pos(), "'super' used outside of a method")
	}
	if class.Parent == nil {
		return nil, in.nameError(e.Pos(), "class '%s' has no parent", class.Name)
	}
	m, ok := class.Parent.FindMethod(e.Method)
	if !ok {
		return nil, in.nameError(e.Pos(), "no parent of '%s' defines '%s'", class.Name, e.Method)
	}
	return &BoundMethod{Receiver: inst, Method: m}, nil
}

func (in *Interpreter) await(v Value, pos parser.Position) (Value, error) {
	p, ok := v.(*scheduler.Promise)
	if !ok {
		return v, nil
	}
	p.MarkHandled()
	if !p.Settled() {
		if in.task == nil {
			// top level: pump the scheduler in place
			if err := in.sched.RunUntil(in.ctx, p); err != nil {
				return nil, in.runtimeError(pos, "await: %s", err)
			}
		} else {
			t, frames := in.task, in.frames
			r, rejected := t.Await(p)
			in.task, in.frames = t, frames
			if rejected {
				return nil, in.fromRejection(r, pos)
			}
			return r, nil
		}
	}
	if p.State() == scheduler.Rejected {
		return nil, in.fromRejection(p.Value(), pos)
	}
	return p.Value(), nil
}
