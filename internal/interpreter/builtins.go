package interpreter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"aegis/internal/errors"
	"aegis/internal/parser"
	"aegis/internal/scheduler"
	"aegis/internal/security"
)

func typeErrorf(format string, args ...interface{}) error {
	return errors.NewTypeError(fmt.Sprintf(format, args...), 0, 0)
}

func (in *Interpreter) define(name string, arity int, fn func(args []Value) (Value, error)) {
	in.globals.Define(name, &Builtin{Name: name, Arity: arity, Fn: fn})
}

func (in *Interpreter) defineBuiltins() {
	in.define("print", -1, func(args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = ToString(a)
		}
		_, err := fmt.Fprintln(in.out, strings.Join(parts, " "))
		return nil, err
	})
	in.define("len", 1, func(args []Value) (Value, error) {
		n, ok := length(args[0])
		if !ok {
			return nil, typeErrorf("%s has no length", TypeName(args[0]))
		}
		return float64(n), nil
	})
	in.define("type", 1, func(args []Value) (Value, error) {
		return TypeName(args[0]), nil
	})
	in.define("str", 1, func(args []Value) (Value, error) {
		return ToString(args[0]), nil
	})
	in.define("num", 1, func(args []Value) (Value, error) {
		switch v := args[0].(type) {
		case float64:
			return v, nil
		case bool:
			if v {
				return 1.0, nil
			}
			return 0.0, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, typeErrorf("cannot convert %s to number", parser.Quote(v))
			}
			return f, nil
		}
		return nil, typeErrorf("cannot convert %s to number", TypeName(args[0]))
	})
	in.define("int", 1, func(args []Value) (Value, error) {
		f, ok := args[0].(float64)
		if !ok {
			return nil, typeErrorf("int() expects a number, got %s", TypeName(args[0]))
		}
		return math.Trunc(f), nil
	})
	in.define("range", -1, func(args []Value) (Value, error) {
		nums := make([]float64, len(args))
		for i, a := range args {
			f, ok := a.(float64)
			if !ok {
				return nil, typeErrorf("range() expects numbers, got %s", TypeName(a))
			}
			nums[i] = f
		}
		start, stop, step := 0.0, 0.0, 1.0
		switch len(nums) {
		case 1:
			stop = nums[0]
		case 2:
			start, stop = nums[0], nums[1]
		case 3:
			start, stop, step = nums[0], nums[1], nums[2]
		default:
			return nil, typeErrorf("range() takes 1 to 3 arguments, got %d", len(nums))
		}
		if step == 0 {
			return nil, typeErrorf("range() step must not be zero")
		}
		l := NewList()
		for x := start; (step > 0 && x < stop) || (step < 0 && x > stop); x += step {
			l.Elements = append(l.Elements, x)
		}
		return l, nil
	})
	in.define("keys", 1, func(args []Value) (Value, error) {
		m, ok := args[0].(*Map)
		if !ok {
			return nil, typeErrorf("keys() expects a map, got %s", TypeName(args[0]))
		}
		return keyList(m), nil
	})
	in.define("push", 2, func(args []Value) (Value, error) {
		l, ok := args[0].(*List)
		if !ok {
			return nil, typeErrorf("push() expects a list, got %s", TypeName(args[0]))
		}
		l.Elements = append(l.Elements, args[1])
		return l, nil
	})
	in.define("is_instance", 2, func(args []Value) (Value, error) {
		inst, ok := args[0].(*Instance)
		if !ok {
			return false, nil
		}
		switch c := args[1].(type) {
		case string:
			return inst.Class.IsA(c), nil
		case *Class:
			for k := inst.Class; k != nil; k = k.Parent {
				if k == c {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, typeErrorf("is_instance() expects a class or class name")
	})

	// modes and handlers
	in.define("mode", 0, func([]Value) (Value, error) {
		return string(in.resolver.Modes().Get()), nil
	})
	in.define("on", 3, func(args []Value) (Value, error) {
		ms, ok := args[0].(string)
		if !ok {
			return nil, typeErrorf("on() expects a mode name, got %s", TypeName(args[0]))
		}
		mode, err := security.ParseMode(ms)
		if err != nil {
			return nil, typeErrorf("%s", err)
		}
		phrase, ok := args[1].(string)
		if !ok || strings.TrimSpace(phrase) == "" {
			return nil, typeErrorf("on() expects a phrase string")
		}
		switch args[2].(type) {
		case *Function, *Builtin, *BoundMethod:
		default:
			return nil, typeErrorf("on() expects a handler function, got %s", TypeName(args[2]))
		}
		in.resolver.Registry().Register(mode, phrase, &scriptHandler{in: in, fn: args[2]})
		return nil, nil
	})

	// async
	in.define("sleep", 1, func(args []Value) (Value, error) {
		d, err := seconds(args[0])
		if err != nil {
			return nil, err
		}
		return in.sched.Sleep(d), nil
	})
	in.define("timeout", 2, func(args []Value) (Value, error) {
		p, ok := args[0].(*scheduler.Promise)
		if !ok {
			return nil, typeErrorf("timeout() expects a promise, got %s", TypeName(args[0]))
		}
		d, err := seconds(args[1])
		if err != nil {
			return nil, err
		}
		reason := errors.NewRuntimeError(fmt.Sprintf("timed out after %s", ToString(args[1])+"s"), "", 0, 0)
		return in.sched.Timeout(p, d, in.throw(reason)), nil
	})
	in.define("all", 1, func(args []Value) (Value, error) {
		ps, err := in.promises(args[0])
		if err != nil {
			return nil, err
		}
		out := in.sched.NewPromise()
		all := in.sched.All(ps)
		all.OnSettle(func(p *scheduler.Promise) {
			if p.State() == scheduler.Rejected {
				in.sched.Reject(out, p.Value())
				return
			}
			values := p.Value().([]interface{})
			l := NewList()
			for _, v := range values {
				l.Elements = append(l.Elements, v)
			}
			in.sched.Resolve(out, l)
		})
		return out, nil
	})
	in.define("race", 1, func(args []Value) (Value, error) {
		ps, err := in.promises(args[0])
		if err != nil {
			return nil, err
		}
		return in.sched.Race(ps), nil
	})
	in.define("promise", 0, func([]Value) (Value, error) {
		return in.sched.NewPromise(), nil
	})

	if in.modules != nil {
		for _, name := range in.modules.Modules() {
			in.globals.Define(name, &Module{Name: name})
		}
	}
}

// promises accepts a list whose elements are promises or plain values;
// plain values count as already fulfilled.
func (in *Interpreter) promises(v Value) ([]*scheduler.Promise, error) {
	l, ok := v.(*List)
	if !ok {
		return nil, typeErrorf("expected a list of promises, got %s", TypeName(v))
	}
	ps := make([]*scheduler.Promise, len(l.Elements))
	for i, e := range l.Elements {
		if p, ok := e.(*scheduler.Promise); ok {
			ps[i] = p
		} else {
			ps[i] = in.sched.Resolved(e)
		}
	}
	return ps, nil
}

func seconds(v Value) (time.Duration, error) {
	f, ok := v.(float64)
	if !ok || f < 0 {
		return 0, typeErrorf("expected a non-negative number of seconds, got %s", Repr(v))
	}
	return time.Duration(f * float64(time.Second)), nil
}

func length(v Value) (int, bool) {
	switch x := v.(type) {
	case string:
		return len([]rune(x)), true
	case *List:
		return len(x.Elements), true
	case *Map:
		return x.Len(), true
	}
	return 0, false
}

func keyList(m *Map) *List {
	l := NewList()
	for _, k := range m.Keys() {
		l.Elements = append(l.Elements, k)
	}
	return l
}

// promiseMethod implements then, catch, resolve, reject, state and value.
func (in *Interpreter) promiseMethod(p *scheduler.Promise, name string, pos parser.Position) *Builtin {
	method := func(arity int, fn func(args []Value) (Value, error)) *Builtin {
		return &Builtin{Name: name, Arity: arity, Fn: fn}
	}
	switch name {
	case "then":
		return method(-1, func(args []Value) (Value, error) {
			if len(args) == 0 || len(args) > 2 {
				return nil, typeErrorf("then() takes 1 or 2 arguments, got %d", len(args))
			}
			var onRejected Value
			if len(args) == 2 {
				onRejected = args[1]
			}
			return in.chain(p, args[0], onRejected, pos), nil
		})
	case "catch":
		return method(1, func(args []Value) (Value, error) {
			return in.chain(p, nil, args[0], pos), nil
		})
	case "resolve":
		return method(-1, func(args []Value) (Value, error) {
			var v Value
			if len(args) > 0 {
				v = args[0]
			}
			in.sched.Resolve(p, v)
			return nil, nil
		})
	case "reject":
		return method(1, func(args []Value) (Value, error) {
			th := in.throw(errors.NewUserThrown(ToString(args[0]), pos.Line, pos.Column))
			th.Value = args[0]
			in.sched.Reject(p, th)
			return nil, nil
		})
	case "state":
		return method(0, func([]Value) (Value, error) { return p.State().String(), nil })
	case "value":
		return method(0, func([]Value) (Value, error) {
			if p.State() == scheduler.Rejected {
				return rejectionValue(p.Value()), nil
			}
			return p.Value(), nil
		})
	}
	return nil
}

// chain registers continuations on p and returns the promise of their
// result. A missing continuation passes the outcome through.
func (in *Interpreter) chain(p *scheduler.Promise, onFulfilled, onRejected Value, pos parser.Position) *scheduler.Promise {
	out := in.sched.NewPromise()
	p.OnSettle(func(p *scheduler.Promise) {
		cb, arg := onFulfilled, p.Value()
		if p.State() == scheduler.Rejected {
			cb, arg = onRejected, rejectionValue(p.Value())
			if cb == nil {
				in.sched.Reject(out, p.Value())
				return
			}
		}
		if cb == nil {
			in.sched.Resolve(out, p.Value())
			return
		}
		v, err := in.call(cb, []Value{arg}, pos)
		if err != nil {
			in.sched.Reject(out, err)
			return
		}
		in.sched.Resolve(out, v)
	})
	return out
}

// valueMethod implements methods on lists, strings and maps.
func (in *Interpreter) valueMethod(obj Value, name string, pos parser.Position) *Builtin {
	method := func(arity int, fn func(args []Value) (Value, error)) *Builtin {
		return &Builtin{Name: name, Arity: arity, Fn: fn}
	}
	if name == "length" {
		if n, ok := length(obj); ok {
			return method(-1, func([]Value) (Value, error) { return float64(n), nil })
		}
		return nil
	}
	switch o := obj.(type) {
	case *List:
		switch name {
		case "push":
			return method(1, func(args []Value) (Value, error) {
				o.Elements = append(o.Elements, args[0])
				return o, nil
			})
		case "pop":
			return method(0, func([]Value) (Value, error) {
				if len(o.Elements) == 0 {
					return nil, errors.NewRuntimeError("pop from empty list", "", 0, 0)
				}
				last := o.Elements[len(o.Elements)-1]
				o.Elements = o.Elements[:len(o.Elements)-1]
				return last, nil
			})
		case "contains":
			return method(1, func(args []Value) (Value, error) { return in.contains(o, args[0], pos) })
		case "join":
			return method(1, func(args []Value) (Value, error) {
				parts := make([]string, len(o.Elements))
				for i, e := range o.Elements {
					parts[i] = ToString(e)
				}
				return strings.Join(parts, ToString(args[0])), nil
			})
		case "map", "filter":
			return method(1, func(args []Value) (Value, error) {
				out := NewList()
				for _, e := range o.Elements {
					v, err := in.call(args[0], []Value{e}, pos)
					if err != nil {
						return nil, err
					}
					if name == "map" {
						out.Elements = append(out.Elements, v)
					} else if IsTruthy(v) {
						out.Elements = append(out.Elements, e)
					}
				}
				return out, nil
			})
		}
	case string:
		switch name {
		case "upper":
			return method(0, func([]Value) (Value, error) { return strings.ToUpper(o), nil })
		case "lower":
			return method(0, func([]Value) (Value, error) { return strings.ToLower(o), nil })
		case "trim":
			return method(0, func([]Value) (Value, error) { return strings.TrimSpace(o), nil })
		case "contains", "starts_with", "ends_with", "split":
			return method(1, func(args []Value) (Value, error) {
				s, ok := args[0].(string)
				if !ok {
					return nil, typeErrorf("%s() expects a string, got %s", name, TypeName(args[0]))
				}
				switch name {
				case "contains":
					return strings.Contains(o, s), nil
				case "starts_with":
					return strings.HasPrefix(o, s), nil
				case "ends_with":
					return strings.HasSuffix(o, s), nil
				}
				l := NewList()
				for _, part := range strings.Split(o, s) {
					l.Elements = append(l.Elements, part)
				}
				return l, nil
			})
		case "replace":
			return method(2, func(args []Value) (Value, error) {
				return strings.ReplaceAll(o, ToString(args[0]), ToString(args[1])), nil
			})
		}
	case *Map:
		switch name {
		case "keys":
			return method(0, func([]Value) (Value, error) { return keyList(o), nil })
		case "values":
			return method(0, func([]Value) (Value, error) {
				l := NewList()
				for _, k := range o.Keys() {
					v, _ := o.Get(k)
					l.Elements = append(l.Elements, v)
				}
				return l, nil
			})
		case "has":
			return method(1, func(args []Value) (Value, error) {
				_, ok := o.Get(ToString(args[0]))
				return ok, nil
			})
		case "get":
			return method(-1, func(args []Value) (Value, error) {
				if len(args) == 0 {
					return nil, typeErrorf("get() needs a key")
				}
				if v, ok := o.Get(ToString(args[0])); ok {
					return v, nil
				}
				if len(args) > 1 {
					return args[1], nil
				}
				return nil, nil
			})
		case "delete":
			return method(1, func(args []Value) (Value, error) { return o.Delete(ToString(args[0])), nil })
		}
	}
	return nil
}
