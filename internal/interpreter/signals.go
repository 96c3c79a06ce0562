package interpreter

import "aegis/internal/errors"

// Thrown is a script exception in flight. It is the only error a script
// try/catch intercepts.
type Thrown struct {
	// Value is the thrown value for throw statements, nil otherwise.
	Value Value
	Err   *errors.ScriptError
}

func (t *Thrown) Error() string { return t.Err.Error() }
func (t *Thrown) Unwrap() error { return t.Err }

// Escalate marks explicit throws inside action handlers as exceptions
// rather than failed actions.
func (t *Thrown) Escalate() bool { return t.Err.Type == errors.UserThrown }

// CatchValue is what catch binds: the thrown value itself for throw, or a
// {type, message, line, column} map for every other error.
func (t *Thrown) CatchValue() Value {
	if t.Err.Type == errors.UserThrown {
		return t.Value
	}
	m := NewMap()
	m.Set("type", string(t.Err.Type))
	m.Set("message", t.Err.Message)
	m.Set("line", float64(t.Err.Location.Line))
	m.Set("column", float64(t.Err.Location.Column))
	return m
}

// Matches reports whether a catch clause typed with name accepts t. The
// empty name accepts everything.
func (t *Thrown) Matches(name string) bool {
	if name == "" || name == string(t.Err.Type) || name == "Error" {
		return true
	}
	if inst, ok := t.Value.(*Instance); ok {
		return inst.Class.IsA(name)
	}
	if m, ok := t.Value.(*Map); ok {
		if typ, ok := m.Get("type"); ok {
			return typ == name
		}
	}
	return false
}

// Control flow travels outward as errors until the construct that owns it.

type returnSignal struct{ value Value }

func (returnSignal) Error() string { return "return outside function" }

type breakSignal struct{}

func (breakSignal) Error() string { return "break outside loop" }

type continueSignal struct{}

func (continueSignal) Error() string { return "continue outside loop" }
