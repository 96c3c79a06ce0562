package interpreter

import (
	goerrors "errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"aegis/internal/parser"
	"aegis/internal/scheduler"
)

// Value represents any runtime value: nil, bool, float64, string, *List,
// *Map, *Function, *Builtin, *Class, *Instance, *BoundMethod, *Module or
// *scheduler.Promise.
type Value interface{}

// List is an ordered, mutable sequence.
type List struct {
	Elements []Value
}

func NewList(elems ...Value) *List {
	if elems == nil {
		elems = []Value{}
	}
	return &List{Elements: elems}
}

// Map is a string-keyed map that remembers insertion order.
type Map struct {
	keys  []string
	items map[string]Value
}

func NewMap() *Map {
	return &Map{items: make(map[string]Value)}
}

func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *Map) Set(key string, v Value) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = v
}

func (m *Map) Delete(key string) bool {
	if _, ok := m.items[key]; !ok {
		return false
	}
	delete(m.items, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

func (m *Map) Len() int { return len(m.keys) }

// Function is a user-defined function or method closure.
type Function struct {
	Name   string
	Params []string
	Body   *parser.Block
	Result parser.Expr // arrow lambdas with an expression body
	Env    *Environment
	Async  bool
	// Class is the class a method was defined in; super resolves from its
	// parent.
	Class *Class
}

// Builtin is a function implemented in Go. Arity -1 accepts any count.
type Builtin struct {
	Name  string
	Arity int
	Fn    func(args []Value) (Value, error)
}

// Class holds a method table and an optional parent.
type Class struct {
	Name    string
	Parent  *Class
	Methods map[string]*Function
	Static  map[string]*Function
}

// FindMethod searches the class, then its ancestors.
func (c *Class) FindMethod(name string) (*Function, bool) {
	for k := c; k != nil; k = k.Parent {
		if m, ok := k.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

func (c *Class) findStatic(name string) (*Function, bool) {
	for k := c; k != nil; k = k.Parent {
		if m, ok := k.Static[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// IsA reports whether c is name or inherits from it.
func (c *Class) IsA(name string) bool {
	for k := c; k != nil; k = k.Parent {
		if k.Name == name {
			return true
		}
	}
	return false
}

// Instance is an object with its own field map.
type Instance struct {
	Class  *Class
	Fields *Map
}

// BoundMethod is a method paired with its receiver.
type BoundMethod struct {
	Receiver *Instance
	Method   *Function
}

// Module is a host module reachable through the builtin boundary.
type Module struct {
	Name string
}

// TypeName returns the name type() reports for a value.
func TypeName(val Value) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case *List:
		return "list"
	case *Map:
		return "map"
	case *Function, *Builtin, *BoundMethod:
		return "function"
	case *Class:
		return "class"
	case *Instance:
		return v.Class.Name
	case *Module:
		return "module"
	case *scheduler.Promise:
		return "promise"
	default:
		return "unknown"
	}
}

// IsTruthy returns whether a value is considered true. Only null and false
// are false.
func IsTruthy(val Value) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}

// ToString converts a value to the text print shows. A list or map that
// contains itself prints as [...] or {...} where it recurs.
func ToString(val Value) string {
	return toString(val, nil)
}

// seen tracks the containers on the current path through a value.
type seen map[interface{}]bool

func (s seen) enter(c interface{}) (seen, bool) {
	if s[c] {
		return s, false
	}
	if s == nil {
		s = make(seen)
	}
	s[c] = true
	return s, true
}

func toString(val Value, path seen) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(v)
	case string:
		return v
	case *List:
		path, ok := path.enter(v)
		if !ok {
			return "[...]"
		}
		defer delete(path, v)
		elems := make([]string, len(v.Elements))
		for i, elem := range v.Elements {
			elems[i] = repr(elem, path)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case *Map:
		path, ok := path.enter(v)
		if !ok {
			return "{...}"
		}
		defer delete(path, v)
		pairs := make([]string, 0, v.Len())
		for _, k := range v.keys {
			pairs = append(pairs, fmt.Sprintf("%s: %s", parser.Quote(k), repr(v.items[k], path)))
		}
		return "{" + strings.Join(pairs, ", ") + "}"
	case *Function:
		if v.Name == "" {
			return "<fn>"
		}
		return fmt.Sprintf("<fn %s>", v.Name)
	case *Builtin:
		return fmt.Sprintf("<builtin %s>", v.Name)
	case *BoundMethod:
		return fmt.Sprintf("<method %s.%s>", v.Receiver.Class.Name, v.Method.Name)
	case *Class:
		return fmt.Sprintf("<class %s>", v.Name)
	case *Instance:
		return fmt.Sprintf("<%s instance>", v.Class.Name)
	case *Module:
		return fmt.Sprintf("<module %s>", v.Name)
	case *scheduler.Promise:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Repr is ToString with strings quoted, used inside containers.
func Repr(val Value) string {
	return repr(val, nil)
}

func repr(val Value, path seen) string {
	if s, ok := val.(string); ok {
		return parser.Quote(s)
	}
	return toString(val, path)
}

func formatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return parser.FormatNumber(v)
}

// Equal is structural for lists and maps, identity for objects. A pair of
// containers met again while already being compared falls back to
// identity.
func Equal(a, b Value) bool {
	return equal(a, b, nil)
}

func equal(a, b Value, path seen) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool, float64, string:
		return a == b
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.Elements) != len(y.Elements) {
			return false
		}
		path, fresh := path.enter([2]interface{}{x, y})
		if !fresh {
			return x == y
		}
		defer delete(path, [2]interface{}{x, y})
		for i := range x.Elements {
			if !equal(x.Elements[i], y.Elements[i], path) {
				return false
			}
		}
		return true
	case *Map:
		y, ok := b.(*Map)
		if !ok || x.Len() != y.Len() {
			return false
		}
		path, fresh := path.enter([2]interface{}{x, y})
		if !fresh {
			return x == y
		}
		defer delete(path, [2]interface{}{x, y})
		for _, k := range x.keys {
			w, ok := y.items[k]
			if !ok || !equal(x.items[k], w, path) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// ErrCyclic is returned by ToHost for a list or map that contains itself.
var ErrCyclic = goerrors.New("value contains itself and cannot leave the script")

// ToHost converts a value to plain Go data for host modules and action
// handlers: lists become []interface{} and maps map[string]interface{}.
func ToHost(val Value) (interface{}, error) {
	return toHost(val, nil)
}

func toHost(val Value, path seen) (interface{}, error) {
	switch v := val.(type) {
	case *List:
		path, ok := path.enter(v)
		if !ok {
			return nil, ErrCyclic
		}
		defer delete(path, v)
		out := make([]interface{}, len(v.Elements))
		for i, e := range v.Elements {
			h, err := toHost(e, path)
			if err != nil {
				return nil, err
			}
			out[i] = h
		}
		return out, nil
	case *Map:
		path, ok := path.enter(v)
		if !ok {
			return nil, ErrCyclic
		}
		defer delete(path, v)
		out := make(map[string]interface{}, v.Len())
		for _, k := range v.keys {
			h, err := toHost(v.items[k], path)
			if err != nil {
				return nil, err
			}
			out[k] = h
		}
		return out, nil
	default:
		return v, nil
	}
}

// FromHost converts plain Go data back into script values. Map keys are
// sorted since Go maps carry no order.
func FromHost(v interface{}) Value {
	switch x := v.(type) {
	case nil, bool, float64, string:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case []string:
		l := NewList()
		for _, s := range x {
			l.Elements = append(l.Elements, s)
		}
		return l
	case []interface{}:
		l := NewList()
		for _, e := range x {
			l.Elements = append(l.Elements, FromHost(e))
		}
		return l
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, FromHost(x[k]))
		}
		return m
	case error:
		return x.Error()
	default:
		return v
	}
}
