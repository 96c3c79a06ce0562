package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"aegis/internal/parser"
)

// Outcome is the result of dispatching one clause.
type Outcome struct {
	Phrase  string
	OK      bool
	Stub    bool
	Skipped bool
	Result  any
	Err     error
}

// Result is the outcome of a whole sentence.
type Result struct {
	Mode Mode
	OK   bool
	// GuardFailed is set when an if/unless guard prevented any dispatch.
	GuardFailed bool
	Outcomes    []Outcome
	// Else holds the else-chain outcome when one ran.
	Else *Result
}

// Evaluator evaluates the expressions embedded in a sentence: guards and
// phrase arguments.
type Evaluator interface {
	Condition(expr parser.Expr) (bool, error)
	Value(expr parser.Expr) (any, error)
}

// AuditRecord is handed to the Auditor for every dispatched clause.
type AuditRecord struct {
	Mode   Mode
	Phrase string
	OK     bool
	Stub   bool
	Result string
	Error  string
	Line   int
	Column int
}

type Auditor interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// Resolver dispatches security sentences to registered handlers.
type Resolver struct {
	modes    *ModeRegister
	registry *Registry
	logger   *slog.Logger
	auditor  Auditor
}

type ResolverOption func(*Resolver)

func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

func WithAuditor(a Auditor) ResolverOption {
	return func(r *Resolver) { r.auditor = a }
}

func NewResolver(modes *ModeRegister, registry *Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		modes:    modes,
		registry: registry,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Modes() *ModeRegister { return r.modes }
func (r *Resolver) Registry() *Registry  { return r.registry }

// Execute runs a sentence. The mode is read once, before the guard, and
// used for every clause including the else chain. A returned error is an
// evaluation failure or an escalated handler error; failed actions are
// reported in the Result instead.
func (r *Resolver) Execute(ctx context.Context, s *parser.SecuritySentence, ev Evaluator) (*Result, error) {
	mode := r.modes.Get()
	res := &Result{Mode: mode}

	pass := true
	if s.Guard != nil {
		ok, err := ev.Condition(s.Guard.Cond)
		if err != nil {
			return nil, err
		}
		pass = ok != s.Guard.Unless
	}

	if pass {
		ok, outs, err := r.runChain(ctx, mode, s.Chain, ev)
		if err != nil {
			return nil, err
		}
		res.OK, res.Outcomes = ok, outs
	} else {
		res.GuardFailed = true
		res.Outcomes = skipAll(s.Chain.Clauses)
		r.logger.Debug("sentence guard failed", "mode", mode, "chain", s.Chain.String())
	}

	if !res.OK && s.ElseChain != nil {
		ok, outs, err := r.runChain(ctx, mode, s.ElseChain, ev)
		if err != nil {
			return nil, err
		}
		res.Else = &Result{Mode: mode, OK: ok, Outcomes: outs}
	}
	return res, nil
}

// runChain evaluates or-groups in order until one succeeds. Inside a group,
// the first failing clause short-circuits the rest.
func (r *Resolver) runChain(ctx context.Context, mode Mode, chain *parser.Chain, ev Evaluator) (bool, []Outcome, error) {
	var outs []Outcome
	satisfied := false
	for _, group := range chain.Groups() {
		if satisfied {
			outs = append(outs, skipAll(group)...)
			continue
		}
		groupOK := true
		for _, clause := range group {
			if !groupOK {
				outs = append(outs, Outcome{Phrase: clause.Text(), Skipped: true})
				continue
			}
			out, err := r.Resolve(ctx, mode, clause, ev)
			if err != nil {
				return false, nil, err
			}
			outs = append(outs, out)
			groupOK = out.OK
		}
		satisfied = groupOK
	}
	return satisfied, outs, nil
}

// Resolve dispatches one clause under mode. With no matching handler the
// clause succeeds with a descriptive stub result and performs nothing.
func (r *Resolver) Resolve(ctx context.Context, mode Mode, clause *parser.Phrase, ev Evaluator) (Outcome, error) {
	out := Outcome{Phrase: clause.Text()}
	head := clause.Head()
	h, phrase, n, found := r.registry.Lookup(mode, head)
	if !found {
		n = len(head)
		phrase = NormalizePhrase(strings.Join(head, " "))
	}

	args := make([]any, 0, len(clause.Words)-n)
	for _, w := range clause.Words[n:] {
		if !w.IsArg() {
			args = append(args, w.Word)
			continue
		}
		v, err := ev.Value(w.Arg)
		if err != nil {
			return out, err
		}
		args = append(args, v)
	}

	if !found {
		out.OK, out.Stub = true, true
		out.Result = fmt.Sprintf("[stub] %s (%s mode): no handler registered", phrase, mode)
		r.logger.Info("no handler registered, using stub", "mode", mode, "phrase", phrase)
		r.audit(ctx, mode, clause, out)
		return out, nil
	}

	v, err := h.Handle(ctx, Request{
		Mode:   mode,
		Phrase: phrase,
		Args:   args,
		Line:   clause.Line,
		Column: clause.Column,
	})
	if err != nil {
		var esc Escalator
		if errors.As(err, &esc) && esc.Escalate() {
			return out, err
		}
		out.Err = err
		r.logger.Warn("action failed", "mode", mode, "phrase", phrase, "error", err)
	} else {
		out.OK = true
		out.Result = v
	}
	r.audit(ctx, mode, clause, out)
	return out, nil
}

func (r *Resolver) audit(ctx context.Context, mode Mode, clause *parser.Phrase, out Outcome) {
	if r.auditor == nil {
		return
	}
	rec := AuditRecord{
		Mode:   mode,
		Phrase: out.Phrase,
		OK:     out.OK,
		Stub:   out.Stub,
		Line:   clause.Line,
		Column: clause.Column,
	}
	if out.Result != nil {
		rec.Result = fmt.Sprint(out.Result)
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	if err := r.auditor.Record(ctx, rec); err != nil {
		r.logger.Warn("audit write failed", "phrase", out.Phrase, "error", err)
	}
}

func skipAll(clauses []*parser.Phrase) []Outcome {
	outs := make([]Outcome, len(clauses))
	for i, c := range clauses {
		outs[i] = Outcome{Phrase: c.Text(), Skipped: true}
	}
	return outs
}
