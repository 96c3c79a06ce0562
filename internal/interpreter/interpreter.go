// Package interpreter evaluates parsed programs by walking the AST.
package interpreter

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"aegis/internal/errors"
	"aegis/internal/parser"
	"aegis/internal/scheduler"
	"aegis/internal/security"
)

// maxDepth bounds nested calls so runaway recursion fails as a script
// error instead of exhausting the Go stack.
const maxDepth = 2000

// ModuleRegistry is the builtin boundary: host modules called with plain Go
// values. See ToHost and FromHost.
type ModuleRegistry interface {
	Modules() []string
	Invoke(ctx context.Context, module, function string, args []interface{}) (interface{}, error)
}

// Interpreter runs programs against one global environment. It is not safe
// for concurrent use; run one interpreter per script.
type Interpreter struct {
	globals  *Environment
	sched    *scheduler.Scheduler
	resolver *security.Resolver
	modules  ModuleRegistry
	out      io.Writer
	logger   *slog.Logger

	vocabulary []string
	clock      scheduler.Clock

	ctx         context.Context
	file        string
	sourceLines []string

	// per-task state, swapped by the scheduler's handoff hook
	task   *scheduler.Task
	frames []errors.StackFrame
}

type Option func(*Interpreter)

func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) { in.out = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithResolver sets the security sentence resolver, which also owns the
// mode register.
func WithResolver(r *security.Resolver) Option {
	return func(in *Interpreter) { in.resolver = r }
}

func WithModules(m ModuleRegistry) Option {
	return func(in *Interpreter) { in.modules = m }
}

// WithClock sets the clock timers run on.
func WithClock(c scheduler.Clock) Option {
	return func(in *Interpreter) { in.clock = c }
}

// WithVocabulary adds words that open a security sentence on their own.
func WithVocabulary(words ...string) Option {
	return func(in *Interpreter) { in.vocabulary = append(in.vocabulary, words...) }
}

func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		globals: NewEnvironment(nil),
		out:     os.Stdout,
		logger:  slog.New(slog.DiscardHandler),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.resolver == nil {
		in.resolver = security.NewResolver(security.NewModeRegister(security.Blue), security.NewRegistry(),
			security.WithLogger(in.logger))
	}
	schedOpts := []scheduler.Option{
		scheduler.WithLogger(in.logger),
		scheduler.WithHandoffHook(in.handoff),
	}
	if in.clock != nil {
		schedOpts = append(schedOpts, scheduler.WithClock(in.clock))
	}
	in.sched = scheduler.New(schedOpts...)
	in.defineBuiltins()
	return in
}

func (in *Interpreter) handoff() func() {
	task, frames := in.task, in.frames
	return func() { in.task, in.frames = task, frames }
}

func (in *Interpreter) Globals() *Environment           { return in.globals }
func (in *Interpreter) Scheduler() *scheduler.Scheduler { return in.sched }
func (in *Interpreter) Resolver() *security.Resolver    { return in.resolver }
func (in *Interpreter) Mode() security.Mode             { return in.resolver.Modes().Get() }

// Get reads a global.
func (in *Interpreter) Get(name string) (Value, bool) { return in.globals.Lookup(name) }

// RunSource parses and runs source. Lex and parse failures are returned
// before anything executes.
func (in *Interpreter) RunSource(ctx context.Context, source, file string) (Value, error) {
	var opts []parser.Option
	if len(in.vocabulary) > 0 {
		opts = append(opts, parser.WithVocabulary(in.vocabulary...))
	}
	prog, err := parser.ParseSource(source, file, opts...)
	if err != nil {
		return nil, err
	}
	in.sourceLines = strings.Split(source, "\n")
	return in.Run(ctx, prog)
}

// Run executes prog statement by statement, draining ready continuations
// between statements, then drives the scheduler to quiescence. An uncaught
// exception stops the program and is returned as *Thrown.
func (in *Interpreter) Run(ctx context.Context, prog *parser.Program) (Value, error) {
	in.ctx = ctx
	in.file = prog.File
	defer func() { in.ctx = context.Background() }()

	var last Value
	for _, stmt := range prog.Stmts {
		v, err := in.exec(stmt, in.globals)
		if err != nil {
			return nil, in.topLevel(err, stmt.Pos())
		}
		last = v
		in.sched.RunReady()
	}
	if err := in.sched.Run(ctx); err != nil {
		return nil, fmt.Errorf("run scheduler: %w", err)
	}
	return last, nil
}

// Close aborts suspended async calls so their goroutines exit.
func (in *Interpreter) Close() {
	in.sched.Close()
}

func (in *Interpreter) topLevel(err error, pos parser.Position) error {
	var th *Thrown
	switch {
	case goerrors.As(err, &th):
	case goerrors.As(err, new(returnSignal)), goerrors.As(err, new(breakSignal)), goerrors.As(err, new(continueSignal)):
		th = in.throw(errors.NewRuntimeError(err.Error(), "", pos.Line, pos.Column))
	default:
		return err
	}
	if th.Err.Source == "" {
		th.Err.WithSource(errors.SourceLine(in.sourceLines, th.Err.Location.Line))
	}
	return th
}

// throw wraps a located error as an exception, stamping file and stack.
func (in *Interpreter) throw(err *errors.ScriptError) *Thrown {
	err.WithFile(in.file)
	if len(in.frames) > 0 && err.CallStack == nil {
		stack := make([]errors.StackFrame, len(in.frames))
		for i := range in.frames {
			stack[i] = in.frames[len(in.frames)-1-i]
		}
		err.WithStack(stack)
	}
	return &Thrown{Err: err}
}

func (in *Interpreter) nameError(pos parser.Position, format string, args ...interface{}) error {
	return in.throw(errors.NewNameError(fmt.Sprintf(format, args...), pos.Line, pos.Column))
}

func (in *Interpreter) typeError(pos parser.Position, format string, args ...interface{}) error {
	return in.throw(errors.NewTypeError(fmt.Sprintf(format, args...), pos.Line, pos.Column))
}

func (in *Interpreter) runtimeError(pos parser.Position, format string, args ...interface{}) error {
	return in.throw(errors.NewRuntimeError(fmt.Sprintf(format, args...), "", pos.Line, pos.Column))
}

// fromRejection turns a rejection reason into the exception await raises.
func (in *Interpreter) fromRejection(r interface{}, pos parser.Position) error {
	switch x := r.(type) {
	case *Thrown:
		return x
	case error:
		return in.runtimeError(pos, "%s", x.Error())
	default:
		th := in.throw(errors.NewUserThrown(ToString(x), pos.Line, pos.Column))
		th.Value = x
		return th
	}
}

// rejectionValue is what a rejection handler receives.
func rejectionValue(r interface{}) Value {
	switch x := r.(type) {
	case *Thrown:
		return x.CatchValue()
	case error:
		return x.Error()
	default:
		return x
	}
}
