package interpreter

import (
	"context"
	"fmt"

	"aegis/internal/parser"
	"aegis/internal/security"
)

// scriptHandler adapts a script function registered with on() to the
// action registry. The function receives the clause arguments. Returning
// false, or a map whose ok is false, fails the clause.
type scriptHandler struct {
	in *Interpreter
	fn Value
}

func (h *scriptHandler) Handle(_ context.Context, req security.Request) (interface{}, error) {
	args := make([]Value, len(req.Args))
	for i, a := range req.Args {
		args[i] = FromHost(a)
	}
	v, err := h.in.call(h.fn, args, positionOf(req))
	if err != nil {
		return nil, err
	}
	switch r := v.(type) {
	case bool:
		if !r {
			return nil, fmt.Errorf("%s: handler reported failure", req.Phrase)
		}
	case *Map:
		if ok, found := r.Get("ok"); found && !IsTruthy(ok) {
			msg, _ := r.Get("error")
			if msg == nil {
				msg, _ = r.Get("message")
			}
			if msg == nil {
				msg = "handler reported failure"
			}
			return nil, fmt.Errorf("%s: %s", req.Phrase, ToString(msg))
		}
	}
	return ToHost(v)
}

var _ security.Escalator = (*Thrown)(nil)

func positionOf(req security.Request) parser.Position {
	return parser.Position{Line: req.Line, Column: req.Column}
}
