package parser

import (
	"strconv"
	"strings"
)

// Quote renders s as a string literal the scanner reads back unchanged.
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case 0:
			sb.WriteString(`\0`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// FormatNumber renders a number the way the language prints it: integral
// values without a fraction.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return FormatNumber(v)
	case string:
		return Quote(v)
	}
	return "null"
}

func (v *Variable) String() string { return v.Name }
func (t *This) String() string     { return "this" }
func (s *Super) String() string    { return "super." + s.Method }

func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Operator + " " + b.Right.String() + ")"
}

func (l *Logical) String() string {
	return "(" + l.Left.String() + " " + l.Operator + " " + l.Right.String() + ")"
}

func (u *Unary) String() string {
	if u.Operator == "not" {
		return "not " + u.Operand.String()
	}
	return u.Operator + u.Operand.String()
}

func (a *Assign) String() string { return a.Name + " = " + a.Value.String() }

func (s *SetProperty) String() string {
	return s.Object.String() + "." + s.Name + " = " + s.Value.String()
}

func (s *SetIndex) String() string {
	return s.Object.String() + "[" + s.Index.String() + "] = " + s.Value.String()
}

func (c *Call) String() string     { return c.Callee.String() + "(" + joinExprs(c.Args) + ")" }
func (p *Property) String() string { return p.Object.String() + "." + p.Name }
func (i *Index) String() string    { return i.Object.String() + "[" + i.Index.String() + "]" }
func (l *List) String() string     { return "[" + joinExprs(l.Elements) + "]" }

func (m *Map) String() string {
	parts := make([]string, len(m.Keys))
	for i := range m.Keys {
		parts[i] = m.Keys[i].String() + ": " + m.Values[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (l *Lambda) String() string {
	var sb strings.Builder
	if l.Async {
		sb.WriteString("async ")
	}
	if l.Arrow {
		if len(l.Params) == 1 {
			sb.WriteString(l.Params[0])
		} else {
			sb.WriteString("(" + strings.Join(l.Params, ", ") + ")")
		}
		sb.WriteString(" => ")
		if l.Result != nil {
			sb.WriteString(l.Result.String())
		} else {
			sb.WriteString(l.Body.String())
		}
		return sb.String()
	}
	sb.WriteString("fn (" + strings.Join(l.Params, ", ") + ") ")
	sb.WriteString(l.Body.String())
	return sb.String()
}

func (n *New) String() string   { return "new " + n.Class.String() + "(" + joinExprs(n.Args) + ")" }
func (a *Await) String() string { return "await " + a.Value.String() }

// Statements

func (p *Program) String() string {
	var sb strings.Builder
	for _, s := range p.Stmts {
		writeStmt(&sb, s, 0)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func stmtString(s Stmt) string {
	var sb strings.Builder
	writeStmt(&sb, s, 0)
	return sb.String()
}

func writeIndent(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("    ", depth))
}

func writeBlock(sb *strings.Builder, b *Block, depth int) {
	if len(b.Stmts) == 0 {
		sb.WriteString("{}")
		return
	}
	sb.WriteString("{\n")
	for _, s := range b.Stmts {
		writeIndent(sb, depth+1)
		writeStmt(sb, s, depth+1)
		sb.WriteByte('\n')
	}
	writeIndent(sb, depth)
	sb.WriteString("}")
}

func writeStmt(sb *strings.Builder, s Stmt, depth int) {
	switch n := s.(type) {
	case *Block:
		writeBlock(sb, n, depth)
	case *ExpressionStmt:
		if _, ok := n.Expr.(*Map); ok {
			sb.WriteString("(" + n.Expr.String() + ")")
		} else {
			sb.WriteString(n.Expr.String())
		}
	case *SetStmt:
		sb.WriteString("set " + n.Target.String() + " = " + n.Value.String())
	case *FunctionDef:
		if n.Static {
			sb.WriteString("static ")
		}
		if n.Async {
			sb.WriteString("async ")
		}
		sb.WriteString("def " + n.Name + "(" + strings.Join(n.Params, ", ") + ") ")
		writeBlock(sb, n.Body, depth)
	case *ReturnStmt:
		sb.WriteString("return")
		if n.Value != nil {
			sb.WriteString(" " + n.Value.String())
		}
	case *IfStmt:
		if n.Unless {
			sb.WriteString("unless ")
		} else {
			sb.WriteString("if ")
		}
		sb.WriteString(n.Cond.String() + " ")
		writeBlock(sb, n.Then, depth)
		if n.Else != nil {
			sb.WriteString(" else ")
			writeStmt(sb, n.Else, depth)
		}
	case *WhileStmt:
		if n.Until {
			sb.WriteString("until ")
		} else {
			sb.WriteString("while ")
		}
		sb.WriteString(n.Cond.String() + " ")
		writeBlock(sb, n.Body, depth)
	case *ForStmt:
		sb.WriteString("for " + n.Var + " in " + n.Iterable.String() + " ")
		writeBlock(sb, n.Body, depth)
	case *BreakStmt:
		sb.WriteString("break")
	case *ContinueStmt:
		sb.WriteString("continue")
	case *TryStmt:
		sb.WriteString("try ")
		writeBlock(sb, n.Body, depth)
		if n.Catch != nil {
			sb.WriteString(" catch (" + n.CatchName)
			if n.CatchType != "" {
				sb.WriteString(": " + n.CatchType)
			}
			sb.WriteString(") ")
			writeBlock(sb, n.Catch, depth)
		}
		if n.Finally != nil {
			sb.WriteString(" finally ")
			writeBlock(sb, n.Finally, depth)
		}
	case *ThrowStmt:
		sb.WriteString("throw " + n.Value.String())
	case *AssertStmt:
		sb.WriteString("assert " + n.Cond.String())
		if n.Message != nil {
			sb.WriteString(", " + n.Message.String())
		}
	case *ClassDef:
		sb.WriteString("class " + n.Name)
		if n.Parent != "" {
			sb.WriteString("(" + n.Parent + ")")
		}
		if len(n.Methods) == 0 {
			sb.WriteString(" {}")
			return
		}
		sb.WriteString(" {\n")
		for _, m := range n.Methods {
			writeIndent(sb, depth+1)
			writeStmt(sb, m, depth+1)
			sb.WriteByte('\n')
		}
		writeIndent(sb, depth)
		sb.WriteString("}")
	case *ModeSwitch:
		sb.WriteString(".mode")
		if n.Mode != "" {
			sb.WriteString(" " + n.Mode)
		}
	case *SecuritySentence:
		writeSentence(sb, n, depth)
	}
}

func phraseArg(e Expr) string {
	switch e.(type) {
	case *Literal, *Binary, *Logical:
		return e.String()
	}
	return "(" + e.String() + ")"
}

func (p *Phrase) String() string { return p.Text() }

func (c *Chain) String() string {
	var sb strings.Builder
	for i, clause := range c.Clauses {
		if i > 0 {
			sb.WriteString(" " + c.Ops[i-1] + " ")
		}
		sb.WriteString(clause.Text())
	}
	return sb.String()
}

func writeSentence(sb *strings.Builder, n *SecuritySentence, depth int) {
	if n.Leading {
		sb.WriteString("if " + n.Guard.Cond.String() + " then " + n.Chain.String())
	} else {
		sb.WriteString(n.Chain.String())
		if n.Guard != nil {
			if n.Guard.Unless {
				sb.WriteString(" unless ")
			} else {
				sb.WriteString(" if ")
			}
			sb.WriteString(n.Guard.Cond.String())
		}
		if n.Then != nil {
			sb.WriteString(" then ")
			writeBlock(sb, n.Then, depth)
		}
	}
	switch {
	case n.ElseChain != nil:
		sb.WriteString(" else " + n.ElseChain.String())
	case n.Else != nil:
		sb.WriteString(" else ")
		writeBlock(sb, n.Else, depth)
	}
}

func (b *Block) String() string            { return stmtString(b) }
func (e *ExpressionStmt) String() string   { return stmtString(e) }
func (s *SetStmt) String() string          { return stmtString(s) }
func (f *FunctionDef) String() string      { return stmtString(f) }
func (r *ReturnStmt) String() string       { return stmtString(r) }
func (i *IfStmt) String() string           { return stmtString(i) }
func (w *WhileStmt) String() string        { return stmtString(w) }
func (f *ForStmt) String() string          { return stmtString(f) }
func (b *BreakStmt) String() string        { return stmtString(b) }
func (c *ContinueStmt) String() string     { return stmtString(c) }
func (t *TryStmt) String() string          { return stmtString(t) }
func (t *ThrowStmt) String() string        { return stmtString(t) }
func (a *AssertStmt) String() string       { return stmtString(a) }
func (c *ClassDef) String() string         { return stmtString(c) }
func (m *ModeSwitch) String() string       { return stmtString(m) }
func (s *SecuritySentence) String() string { return stmtString(s) }
