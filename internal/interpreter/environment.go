package interpreter

import "sort"

// Environment is one scope in a chain of scopes.
type Environment struct {
	values map[string]Value
	parent *Environment
	// binding scopes hold only catch variables or lambda parameters and
	// never receive new declarations.
	binding bool
}

func NewEnvironment(parent *Environment) *Environment {
	return &Environment{values: make(map[string]Value), parent: parent}
}

// NewBindingScope returns a scope for name alone. set inside it declares
// new names in the nearest enclosing ordinary scope.
func NewBindingScope(parent *Environment, name string, v Value) *Environment {
	env := &Environment{values: map[string]Value{name: v}, parent: parent, binding: true}
	return env
}

// newParamScope returns a binding scope for the parameters of an
// expression lambda, so `x => set y = x` declares y where the lambda was
// written.
func newParamScope(parent *Environment, params []string, args []Value) *Environment {
	env := &Environment{values: make(map[string]Value, len(params)), parent: parent, binding: true}
	for i, p := range params {
		var v Value
		if i < len(args) {
			v = args[i]
		}
		env.values[p] = v
	}
	return env
}

func (e *Environment) Parent() *Environment { return e.parent }

// Define binds name in this exact scope, shadowing outer bindings.
func (e *Environment) Define(name string, v Value) {
	e.values[name] = v
}

// Declare binds name in the nearest scope that takes declarations.
func (e *Environment) Declare(name string, v Value) {
	e.declaring().values[name] = v
}

// Lookup walks the chain outward.
func (e *Environment) Lookup(name string) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign is declare-or-assign: it overwrites the nearest existing binding,
// or declares name when no scope in the chain has it.
func (e *Environment) Assign(name string, v Value) {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.values[name]; ok {
			env.values[name] = v
			return
		}
	}
	e.Declare(name, v)
}

// Names lists the names bound in this scope, sorted.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.values))
	for k := range e.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (e *Environment) declaring() *Environment {
	env := e
	for env.binding && env.parent != nil {
		env = env.parent
	}
	return env
}
