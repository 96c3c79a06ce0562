package interpreter

import (
	goerrors "errors"
	"fmt"

	"aegis/internal/errors"
	"aegis/internal/parser"
	"aegis/internal/scheduler"
)

// constructorNames are tried in order when instantiating a class.
var constructorNames = []string{"init", "__init__", "constructor"}

func (in *Interpreter) evalCall(e *parser.Call, env *Environment) (Value, error) {
	callee, err := in.eval(e.Callee, env)
	if err != nil {
		return nil, err
	}
	args, err := in.evalArgs(e.Args, env)
	if err != nil {
		return nil, err
	}
	return in.call(callee, args, e.Pos())
}

// call invokes any callable value.
func (in *Interpreter) call(callee Value, args []Value, pos parser.Position) (Value, error) {
	switch fn := callee.(type) {
	case *Function:
		return in.callFunction(fn, nil, args, pos)
	case *BoundMethod:
		return in.callFunction(fn.Method, fn.Receiver, args, pos)
	case *Class:
		return in.instantiate(fn, args, pos)
	case *Builtin:
		if fn.Arity >= 0 && len(args) != fn.Arity {
			return nil, in.typeError(pos, "%s() takes %d argument(s), got %d", fn.Name, fn.Arity, len(args))
		}
		v, err := callBuiltin(fn, args)
		if err != nil {
			return nil, in.builtinError(fn.Name, err, pos)
		}
		return v, nil
	}
	return nil, in.typeError(pos, "%s is not callable", TypeName(callee))
}

func callBuiltin(fn *Builtin, args []Value) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn.Fn(args)
}

// builtinError locates errors raised by Go code at the call site.
func (in *Interpreter) builtinError(name string, err error, pos parser.Position) error {
	var th *Thrown
	if goerrors.As(err, &th) {
		return th
	}
	var se *errors.ScriptError
	if goerrors.As(err, &se) {
		if se.Location.Line == 0 {
			se.Location.Line, se.Location.Column = pos.Line, pos.Column
		}
		return in.throw(se)
	}
	if in.ctx.Err() != nil {
		return err
	}
	return in.runtimeError(pos, "%s: %s", name, err)
}

func (in *Interpreter) callFunction(fn *Function, this *Instance, args []Value, pos parser.Position) (Value, error) {
	if fn.Async {
		return in.spawn(fn, this, args, pos), nil
	}
	return in.invoke(fn, this, args, pos)
}

// spawn starts an async call. It runs synchronously up to its first await
// on a pending promise.
func (in *Interpreter) spawn(fn *Function, this *Instance, args []Value, pos parser.Position) *scheduler.Promise {
	frames := append([]errors.StackFrame(nil), in.frames...)
	return in.sched.Spawn(func(t *scheduler.Task) (interface{}, error) {
		in.task, in.frames = t, frames
		return in.invoke(fn, this, args, pos)
	})
}

// invoke runs a function body in a fresh scope whose parent is the scope
// the function was defined in. Missing arguments are null; extra ones are
// ignored.
func (in *Interpreter) invoke(fn *Function, this *Instance, args []Value, pos parser.Position) (Value, error) {
	if len(in.frames) >= maxDepth {
		return nil, in.runtimeError(pos, "maximum call depth exceeded")
	}
	if err := in.ctx.Err(); err != nil {
		return nil, err
	}

	var env *Environment
	if fn.Result != nil {
		env = newParamScope(fn.Env, fn.Params, args)
	} else {
		env = NewEnvironment(fn.Env)
		for i, p := range fn.Params {
			var v Value
			if i < len(args) {
				v = args[i]
			}
			env.Define(p, v)
		}
	}
	if this != nil {
		env.Define("this", this)
	}
	if fn.Class != nil {
		env.Define("super", fn.Class)
	}

	name := fn.Name
	if name == "" {
		name = "<fn>"
	} else if fn.Class != nil {
		name = fn.Class.Name + "." + name
	}
	in.frames = append(in.frames, errors.StackFrame{Function: name, File: in.file, Line: pos.Line, Column: pos.Column})
	defer func() { in.frames = in.frames[:len(in.frames)-1] }()

	if fn.Result != nil {
		return in.eval(fn.Result, env)
	}
	_, err := in.execBlock(fn.Body, env)
	switch sig := err.(type) {
	case nil:
		return nil, nil
	case returnSignal:
		return sig.value, nil
	case breakSignal, continueSignal:
		return nil, in.runtimeError(pos, "%s", sig.Error())
	}
	return nil, err
}

// instantiate creates an instance and runs the first constructor found in
// the class chain.
func (in *Interpreter) instantiate(class *Class, args []Value, pos parser.Position) (Value, error) {
	inst := &Instance{Class: class, Fields: NewMap()}
	for _, name := range constructorNames {
		if ctor, ok := class.FindMethod(name); ok {
			if _, err := in.invoke(ctor, inst, args, pos); err != nil {
				return nil, err
			}
			break
		}
	}
	return inst, nil
}

// Call invokes a callable script value from Go, e.g. a handler registered
// with on().
func (in *Interpreter) Call(callee Value, args ...Value) (Value, error) {
	return in.call(callee, args, parser.Position{})
}

// InvokeBuiltin calls a host module function. Failures are RuntimeErrors.
func (in *Interpreter) InvokeBuiltin(module, function string, args []Value) (Value, error) {
	if in.modules == nil {
		return nil, fmt.Errorf("no host modules available")
	}
	host := make([]interface{}, len(args))
	for i, a := range args {
		h, err := ToHost(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		host[i] = h
	}
	v, err := in.modules.Invoke(in.ctx, module, function, host)
	if err != nil {
		return nil, err
	}
	return FromHost(v), nil
}

func (in *Interpreter) moduleFunction(m *Module, name string) *Builtin {
	full := m.Name + "." + name
	return &Builtin{Name: full, Arity: -1, Fn: func(args []Value) (Value, error) {
		return in.InvokeBuiltin(m.Name, name, args)
	}}
}
