package security

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"aegis/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// literalEval evaluates literals and variables from a fixed table.
type literalEval struct {
	vars  map[string]any
	evals int
}

func (e *literalEval) Value(expr parser.Expr) (any, error) {
	e.evals++
	switch x := expr.(type) {
	case *parser.Literal:
		return x.Value, nil
	case *parser.Variable:
		v, ok := e.vars[x.Name]
		if !ok {
			return nil, fmt.Errorf("undefined %s", x.Name)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported %T", expr)
}

func (e *literalEval) Condition(expr parser.Expr) (bool, error) {
	v, err := e.Value(expr)
	if err != nil {
		return false, err
	}
	return v != nil && v != false, nil
}

func sentence(t *testing.T, src string) *parser.SecuritySentence {
	t.Helper()
	prog, err := parser.ParseSource(src, "test.ae")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)
	s, ok := prog.Stmts[0].(*parser.SecuritySentence)
	require.True(t, ok, "got %T", prog.Stmts[0])
	return s
}

type escalating struct{ msg string }

func (e escalating) Error() string  { return e.msg }
func (e escalating) Escalate() bool { return true }

type memAuditor struct{ recs []AuditRecord }

func (m *memAuditor) Record(_ context.Context, rec AuditRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func newResolver(mode Mode) (*Resolver, *Registry, *memAuditor) {
	reg := NewRegistry()
	aud := &memAuditor{}
	return NewResolver(NewModeRegister(mode), reg, WithAuditor(aud)), reg, aud
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"red", Red, true},
		{"RedTeam", Red, true},
		{"blueteam", Blue, true},
		{"any", Any, true},
		{"green", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMode(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestModeRegister(t *testing.T) {
	r := NewModeRegister("")
	assert.Equal(t, Blue, r.Get())
	require.NoError(t, r.Set(Red))
	assert.Equal(t, Red, r.Get())
	assert.Error(t, r.Set(Any))
	assert.Equal(t, Red, r.Get())
}

func TestLookupLongestPrefixAndAny(t *testing.T) {
	reg := NewRegistry()
	noop := HandlerFunc(func(context.Context, Request) (any, error) { return nil, nil })
	reg.Register(Any, "block", noop)
	reg.Register(Blue, "Block  IP", noop)

	_, phrase, n, ok := reg.Lookup(Blue, []string{"block", "ip", "now"})
	require.True(t, ok)
	assert.Equal(t, "block ip", phrase)
	assert.Equal(t, 2, n)

	_, phrase, n, ok = reg.Lookup(Red, []string{"block", "ip"})
	require.True(t, ok)
	assert.Equal(t, "block", phrase)
	assert.Equal(t, 1, n)

	_, _, _, ok = reg.Lookup(Red, []string{"scan"})
	assert.False(t, ok)

	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "block", entries[0].Phrase)
	assert.Equal(t, "block ip", entries[1].Phrase)
}

func TestStubOutcome(t *testing.T) {
	r, _, aud := newResolver(Blue)
	res, err := r.Execute(context.Background(), sentence(t, "firewall enable"), &literalEval{})
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.Len(t, res.Outcomes, 1)
	out := res.Outcomes[0]
	assert.True(t, out.OK)
	assert.True(t, out.Stub)
	assert.Contains(t, out.Result, "firewall enable (blue mode)")
	require.Len(t, aud.recs, 1)
	assert.True(t, aud.recs[0].Stub)
}

func TestHandlerReceivesArgs(t *testing.T) {
	r, reg, _ := newResolver(Red)
	var got Request
	reg.RegisterFunc(Red, "block ip", func(_ context.Context, req Request) (any, error) {
		got = req
		return "blocked", nil
	})
	ev := &literalEval{vars: map[string]any{"port": 22.0}}
	res, err := r.Execute(context.Background(), sentence(t, `block ip "10.0.0.1" port (port)`), ev)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, Red, got.Mode)
	assert.Equal(t, "block ip", got.Phrase)
	assert.Equal(t, []any{"10.0.0.1", "port", 22.0}, got.Args)
	assert.Equal(t, "blocked", res.Outcomes[0].Result)
}

func TestGuardEvaluatedBeforeDispatch(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		bad      bool
		dispatch int
		ok       bool
	}{
		{"if true", "scan host if bad", true, 1, true},
		{"if false", "scan host if bad", false, 0, false},
		{"unless true", "scan host unless bad", true, 0, false},
		{"unless false", "scan host unless bad", false, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, reg, _ := newResolver(Blue)
			calls := 0
			reg.RegisterFunc(Blue, "scan", func(context.Context, Request) (any, error) {
				calls++
				return nil, nil
			})
			res, err := r.Execute(context.Background(), sentence(t, tt.src), &literalEval{vars: map[string]any{"bad": tt.bad}})
			require.NoError(t, err)
			assert.Equal(t, tt.dispatch, calls)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, !tt.ok, res.GuardFailed)
			if !tt.ok {
				assert.True(t, res.Outcomes[0].Skipped)
			}
		})
	}
}

func TestAndShortCircuits(t *testing.T) {
	r, reg, _ := newResolver(Blue)
	var trace []string
	reg.RegisterFunc(Blue, "monitor", func(context.Context, Request) (any, error) {
		trace = append(trace, "monitor")
		return nil, errors.New("sensor offline")
	})
	reg.RegisterFunc(Blue, "trace", func(context.Context, Request) (any, error) {
		trace = append(trace, "trace")
		return nil, nil
	})
	res, err := r.Execute(context.Background(), sentence(t, "monitor traffic and trace source and quarantine"), &literalEval{})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []string{"monitor"}, trace)
	require.Len(t, res.Outcomes, 3)
	assert.EqualError(t, res.Outcomes[0].Err, "sensor offline")
	assert.True(t, res.Outcomes[1].Skipped)
	assert.True(t, res.Outcomes[2].Skipped)
}

func TestOrFirstSuccessWins(t *testing.T) {
	r, reg, _ := newResolver(Blue)
	var trace []string
	fail := func(name string) HandlerFunc {
		return func(context.Context, Request) (any, error) {
			trace = append(trace, name)
			return nil, errors.New(name + " failed")
		}
	}
	reg.RegisterFunc(Blue, "isolate", fail("isolate"))
	reg.RegisterFunc(Blue, "block", func(context.Context, Request) (any, error) {
		trace = append(trace, "block")
		return "ok", nil
	})
	res, err := r.Execute(context.Background(), sentence(t, "isolate host or block ip or alert soc"), &literalEval{})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"isolate", "block"}, trace)
	assert.False(t, res.Outcomes[0].OK)
	assert.True(t, res.Outcomes[1].OK)
	assert.True(t, res.Outcomes[2].Skipped)
}

func TestModeCapturedAtChainStart(t *testing.T) {
	r, reg, _ := newResolver(Blue)
	var modes []Mode
	reg.RegisterFunc(Any, "harden", func(_ context.Context, req Request) (any, error) {
		modes = append(modes, req.Mode)
		return nil, r.Modes().Set(Red)
	})
	reg.RegisterFunc(Any, "patch", func(_ context.Context, req Request) (any, error) {
		modes = append(modes, req.Mode)
		return nil, nil
	})
	_, err := r.Execute(context.Background(), sentence(t, "harden host and patch host"), &literalEval{})
	require.NoError(t, err)
	assert.Equal(t, []Mode{Blue, Blue}, modes)
	assert.Equal(t, Red, r.Modes().Get())
}

func TestEscalatedErrorPropagates(t *testing.T) {
	r, reg, aud := newResolver(Blue)
	reg.RegisterFunc(Blue, "exploit", func(context.Context, Request) (any, error) {
		return nil, escalating{"thrown"}
	})
	_, err := r.Execute(context.Background(), sentence(t, "exploit target"), &literalEval{})
	assert.EqualError(t, err, "thrown")
	assert.Empty(t, aud.recs)
}

func TestElseChainRunsOnFailure(t *testing.T) {
	r, reg, _ := newResolver(Blue)
	reg.RegisterFunc(Blue, "alert", func(_ context.Context, req Request) (any, error) {
		return req.Args, nil
	})
	res, err := r.Execute(context.Background(), sentence(t, `if bad then scan host else alert "clean"`), &literalEval{vars: map[string]any{"bad": false}})
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.NotNil(t, res.Else)
	assert.True(t, res.Else.OK)
	assert.Equal(t, []any{"clean"}, res.Else.Outcomes[0].Result)
}

func TestArgumentErrorsPropagate(t *testing.T) {
	r, _, _ := newResolver(Blue)
	_, err := r.Execute(context.Background(), sentence(t, "block ip (missing)"), &literalEval{})
	assert.EqualError(t, err, "undefined missing")
}
