// Package hostlib supplies the builtin modules scripts reach through the
// interpreter's module boundary. Functions take and return plain Go values:
// nil, bool, float64, string, []any and map[string]any.
package hostlib

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Func is one host function.
type Func func(ctx context.Context, args []any) (any, error)

// Module is a named set of functions.
type Module struct {
	Name  string
	Funcs map[string]Func
}

type Registry struct {
	modules map[string]*Module
	logger  *slog.Logger
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns a registry holding every standard module.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		modules: make(map[string]*Module),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, m := range []*Module{
		cryptoModule(),
		encodingModule(),
		jsonModule(),
		yamlModule(),
		regexModule(),
		timeModule(),
		mathModule(),
		randomModule(),
		uuidModule(),
		netModule(),
	} {
		r.Add(m)
	}
	return r
}

// Add registers m, replacing any module of the same name.
func (r *Registry) Add(m *Module) {
	r.modules[m.Name] = m
}

func (r *Registry) Modules() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Functions lists a module's function names.
func (r *Registry) Functions(module string) []string {
	m, ok := r.modules[module]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(m.Funcs))
	for name := range m.Funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke calls module.function. A panic inside the function comes back as
// an error.
func (r *Registry) Invoke(ctx context.Context, module, function string, args []any) (v any, err error) {
	m, ok := r.modules[module]
	if !ok {
		return nil, fmt.Errorf("unknown module '%s'", module)
	}
	fn, ok := m.Funcs[function]
	if !ok {
		return nil, fmt.Errorf("module '%s' has no function '%s'", module, function)
	}
	r.logger.Debug("builtin call", "module", module, "function", function, "args", len(args))
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("builtin panicked", "module", module, "function", function, "panic", p)
			v, err = nil, fmt.Errorf("%s.%s: internal error: %v", module, function, p)
		}
	}()
	v, err = fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", module, function, err)
	}
	return v, nil
}

// argument helpers

func arity(args []any, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		if min == max {
			return fmt.Errorf("expected %d argument(s), got %d", min, len(args))
		}
		return fmt.Errorf("expected %d to %d arguments, got %d", min, max, len(args))
	}
	return nil
}

func str(args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a string, got %T", i+1, args[i])
	}
	return s, nil
}

func num(args []any, i int) (float64, error) {
	f, ok := args[i].(float64)
	if !ok {
		return 0, fmt.Errorf("argument %d must be a number, got %T", i+1, args[i])
	}
	return f, nil
}

// stringFunc adapts a one-string function.
func stringFunc(fn func(string) (any, error)) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		s, err := str(args, 0)
		if err != nil {
			return nil, err
		}
		return fn(s)
	}
}

func numberFunc(fn func(float64) float64) Func {
	return func(_ context.Context, args []any) (any, error) {
		if err := arity(args, 1, 1); err != nil {
			return nil, err
		}
		f, err := num(args, 0)
		if err != nil {
			return nil, err
		}
		return fn(f), nil
	}
}
