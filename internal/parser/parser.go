package parser

import (
	"strings"

	"aegis/internal/errors"
	"aegis/internal/lexer"
)

var precedence = map[lexer.TokenType]int{
	// Logical operators (lowest precedence)
	lexer.TokenOr:  1,
	lexer.TokenNor: 1,
	lexer.TokenAnd: 2,
	// Equality
	lexer.TokenDoubleEqual: 3,
	lexer.TokenNotEqual:    3,
	// Comparison and membership
	lexer.TokenLT: 4,
	lexer.TokenGT: 4,
	lexer.TokenLE: 4,
	lexer.TokenGE: 4,
	lexer.TokenIn: 4,
	// Arithmetic operators
	lexer.TokenPlus:    5,
	lexer.TokenMinus:   5,
	lexer.TokenStar:    6,
	lexer.TokenSlash:   6,
	lexer.TokenPercent: 6,
}

var operatorText = map[lexer.TokenType]string{
	lexer.TokenOr:          "or",
	lexer.TokenNor:         "nor",
	lexer.TokenAnd:         "and",
	lexer.TokenDoubleEqual: "==",
	lexer.TokenNotEqual:    "!=",
	lexer.TokenIn:          "in",
}

// DefaultVocabulary lists the single words that open a security sentence on
// their own, e.g. a bare `monitor` line. Multi-word phrases need no entry.
var DefaultVocabulary = []string{
	"override", "firewall", "tunnel", "keylogger", "generate", "hash", "encrypt",
	"decrypt", "protect", "attack", "defend", "activate", "deactivate", "analyze",
	"contain", "payload", "load", "manipulate", "inject", "read", "write", "save",
	"corrupt", "pause", "enter", "exit", "table", "brute", "trace", "monitor",
	"quarantine", "alert", "scan", "block", "isolate", "patch", "harden", "exploit",
}

// Modes accepted by .mode, mapped to the register value.
var modeNames = map[string]string{
	"red":      "red",
	"redteam":  "red",
	"blue":     "blue",
	"blueteam": "blue",
}

// NormalizeMode maps a mode spelling to red or blue.
func NormalizeMode(name string) (string, bool) {
	m, ok := modeNames[strings.ToLower(name)]
	return m, ok
}

type Parser struct {
	tokens      []lexer.Token
	current     int
	file        string
	sourceLines []string
	vocabulary  map[string]bool
}

type Option func(*Parser)

// WithVocabulary adds words that open a security sentence on their own.
func WithVocabulary(words ...string) Option {
	return func(p *Parser) {
		for _, w := range words {
			p.vocabulary[w] = true
		}
	}
}

// WithSource attaches the source text and file name used in diagnostics.
func WithSource(source, file string) Option {
	return func(p *Parser) {
		p.file = file
		p.sourceLines = strings.Split(source, "\n")
	}
}

func NewParser(tokens []lexer.Token, opts ...Option) *Parser {
	p := &Parser{
		tokens:     tokens,
		vocabulary: make(map[string]bool, len(DefaultVocabulary)),
	}
	for _, w := range DefaultVocabulary {
		p.vocabulary[w] = true
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseSource lexes and parses one source unit.
func ParseSource(source, file string, opts ...Option) (*Program, error) {
	tokens, err := lexer.NewScanner(source).WithFile(file).ScanTokens()
	if err != nil {
		if se, ok := err.(*errors.ScriptError); ok {
			se.WithSource(errors.SourceLine(strings.Split(source, "\n"), se.Location.Line))
		}
		return nil, err
	}
	opts = append([]Option{WithSource(source, file)}, opts...)
	return NewParser(tokens, opts...).Parse()
}

// Parse parses the token stream into a Program. The first syntax error
// aborts parsing and is returned as a ParseError.
func (p *Parser) Parse() (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*errors.ScriptError)
			if !ok {
				panic(r)
			}
			prog, err = nil, se
		}
	}()

	prog = &Program{File: p.file}
	p.skipSemicolons()
	for !p.isAtEnd() {
		prog.Stmts = append(prog.Stmts, p.statement())
		p.skipSemicolons()
	}
	return prog, nil
}

func (p *Parser) statement() Stmt {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenDot:
		return p.modeSwitch()
	case lexer.TokenSet:
		p.advance()
		target, value := p.setParts(tok)
		return &SetStmt{Position: posOf(tok), Target: target, Value: value}
	case lexer.TokenDef:
		p.advance()
		return p.function(tok, false, false)
	case lexer.TokenAsync:
		if p.checkNext(lexer.TokenDef) && p.peekAt(2).Type == lexer.TokenIdent {
			p.advance()
			p.advance()
			return p.function(tok, true, false)
		}
	case lexer.TokenClass:
		p.advance()
		return p.classDef(tok)
	case lexer.TokenIf, lexer.TokenWhen:
		p.advance()
		return p.ifStatement(tok)
	case lexer.TokenUnless:
		p.advance()
		return p.unlessStatement(tok)
	case lexer.TokenWhile, lexer.TokenUntil:
		p.advance()
		cond := p.expression()
		return &WhileStmt{Position: posOf(tok), Cond: cond, Body: p.block(), Until: tok.Type == lexer.TokenUntil}
	case lexer.TokenFor:
		p.advance()
		return p.forStatement(tok)
	case lexer.TokenReturn:
		p.advance()
		ret := &ReturnStmt{Position: posOf(tok)}
		if p.startsValue(tok.Line) {
			ret.Value = p.expression()
		}
		return ret
	case lexer.TokenBreak:
		p.advance()
		return &BreakStmt{Position: posOf(tok)}
	case lexer.TokenContinue:
		p.advance()
		return &ContinueStmt{Position: posOf(tok)}
	case lexer.TokenTry:
		p.advance()
		return p.tryStatement(tok)
	case lexer.TokenThrow:
		p.advance()
		return &ThrowStmt{Position: posOf(tok), Value: p.expression()}
	case lexer.TokenAssert:
		p.advance()
		stmt := &AssertStmt{Position: posOf(tok), Cond: p.expression()}
		if p.match(lexer.TokenComma) {
			stmt.Message = p.expression()
		}
		return stmt
	case lexer.TokenLBrace:
		return p.block()
	case lexer.TokenIdent:
		if p.sentenceAt(0) {
			return p.sentence()
		}
	}

	expr := p.expression()
	return &ExpressionStmt{Position: expr.Pos(), Expr: expr}
}

// startsValue reports whether an optional trailing expression follows on
// the given line.
func (p *Parser) startsValue(line int) bool {
	tok := p.peek()
	if tok.Line != line {
		return false
	}
	switch tok.Type {
	case lexer.TokenEOF, lexer.TokenRBrace, lexer.TokenSemicolon:
		return false
	}
	return true
}

func (p *Parser) modeSwitch() Stmt {
	dot := p.advance()
	name := p.peek()
	if name.Type != lexer.TokenIdent || name.Lexeme != "mode" || name.Line != dot.Line {
		p.errorAt(name, "'mode' after '.'")
	}
	p.advance()
	stmt := &ModeSwitch{Position: posOf(dot)}
	if arg := p.peek(); arg.Type == lexer.TokenIdent && arg.Line == name.Line {
		mode, ok := NormalizeMode(arg.Lexeme)
		if !ok {
			p.errorAt(arg, "mode red or blue")
		}
		p.advance()
		stmt.Mode = mode
	}
	return stmt
}

// setParts parses `target = value` after set/let.
func (p *Parser) setParts(tok lexer.Token) (Expr, Expr) {
	target := p.call()
	switch target.(type) {
	case *Variable, *Property, *Index:
	default:
		p.errorAt(tok, "assignable name after '"+tok.Lexeme+"'")
	}
	p.consume(lexer.TokenEqual, "'=' after assignment target")
	return target, p.expression()
}

func (p *Parser) function(tok lexer.Token, async, static bool) *FunctionDef {
	name := p.consume(lexer.TokenIdent, "function name")
	params := p.params()
	fn := &FunctionDef{Position: posOf(tok), Name: name.Lexeme, Params: params, Async: async, Static: static}
	if arrow := p.peek(); p.match(lexer.TokenArrow) {
		value := p.expression()
		fn.Body = &Block{Position: posOf(arrow), Stmts: []Stmt{&ReturnStmt{Position: value.Pos(), Value: value}}}
		return fn
	}
	fn.Body = p.block()
	return fn
}

func (p *Parser) params() []string {
	p.consume(lexer.TokenLParen, "'(' before parameters")
	params := []string{}
	if !p.check(lexer.TokenRParen) {
		for {
			params = append(params, p.consume(lexer.TokenIdent, "parameter name").Lexeme)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "')' after parameters")
	return params
}

func (p *Parser) classDef(tok lexer.Token) Stmt {
	name := p.consume(lexer.TokenIdent, "class name")
	class := &ClassDef{Position: posOf(tok), Name: name.Lexeme}
	if p.match(lexer.TokenLParen) {
		class.Parent = p.consume(lexer.TokenIdent, "parent class name").Lexeme
		p.consume(lexer.TokenRParen, "')' after parent class")
	} else if p.match(lexer.TokenExtends) {
		class.Parent = p.consume(lexer.TokenIdent, "parent class name").Lexeme
	}

	p.consume(lexer.TokenLBrace, "'{' before class body")
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		if p.match(lexer.TokenSemicolon) {
			continue
		}
		start := p.peek()
		static := p.match(lexer.TokenStatic)
		async := p.match(lexer.TokenAsync)
		switch {
		case p.match(lexer.TokenDef):
			class.Methods = append(class.Methods, p.function(start, async, static))
		case p.check(lexer.TokenIdent) && p.checkNext(lexer.TokenLParen):
			class.Methods = append(class.Methods, p.function(start, async, static))
		default:
			p.errorAt(p.peek(), "method definition")
		}
	}
	p.consume(lexer.TokenRBrace, "'}' after class body")
	return class
}

func (p *Parser) ifStatement(tok lexer.Token) Stmt {
	cond := p.expression()

	if p.check(lexer.TokenThen) && p.chainAt(1) {
		p.advance()
		s := &SecuritySentence{
			Position: posOf(tok),
			Chain:    p.chain(),
			Guard:    &Guard{Position: posOf(tok), Cond: cond},
			Leading:  true,
		}
		p.sentenceElse(s)
		return s
	}

	p.match(lexer.TokenThen)
	stmt := &IfStmt{Position: posOf(tok), Cond: cond, Then: p.block()}
	switch {
	case p.match(lexer.TokenElse), p.match(lexer.TokenOtherwise), p.match(lexer.TokenYet):
		if next := p.peek(); p.match(lexer.TokenIf) {
			stmt.Else = p.ifStatement(next)
		} else {
			stmt.Else = p.block()
		}
	case p.check(lexer.TokenHowever):
		stmt.Else = p.ifStatement(p.advance())
	}
	return stmt
}

func (p *Parser) unlessStatement(tok lexer.Token) Stmt {
	cond := p.expression()
	stmt := &IfStmt{Position: posOf(tok), Cond: cond, Then: p.block(), Unless: true}
	if p.match(lexer.TokenElse) || p.match(lexer.TokenOtherwise) {
		stmt.Else = p.block()
	}
	return stmt
}

func (p *Parser) forStatement(tok lexer.Token) Stmt {
	paren := p.match(lexer.TokenLParen)
	name := p.consume(lexer.TokenIdent, "loop variable")
	p.consume(lexer.TokenIn, "'in' after loop variable")
	iter := p.expression()
	if paren {
		p.consume(lexer.TokenRParen, "')' after for clause")
	}
	return &ForStmt{Position: posOf(tok), Var: name.Lexeme, Iterable: iter, Body: p.block()}
}

func (p *Parser) tryStatement(tok lexer.Token) Stmt {
	stmt := &TryStmt{Position: posOf(tok), Body: p.block()}
	if p.match(lexer.TokenCatch) {
		if p.match(lexer.TokenLParen) {
			stmt.CatchName = p.consume(lexer.TokenIdent, "name after 'catch ('").Lexeme
			if p.match(lexer.TokenColon) {
				stmt.CatchType = p.consume(lexer.TokenIdent, "error type after ':'").Lexeme
			}
			p.consume(lexer.TokenRParen, "')' after catch binding")
		} else {
			stmt.CatchName = p.consume(lexer.TokenIdent, "name after 'catch'").Lexeme
		}
		stmt.Catch = p.block()
	}
	if p.match(lexer.TokenFinally) {
		stmt.Finally = p.block()
	}
	if stmt.Catch == nil && stmt.Finally == nil {
		p.errorAt(p.peek(), "'catch' or 'finally' after try block")
	}
	return stmt
}

func (p *Parser) block() *Block {
	open := p.consume(lexer.TokenLBrace, "'{'")
	b := &Block{Position: posOf(open)}
	p.skipSemicolons()
	for !p.check(lexer.TokenRBrace) && !p.isAtEnd() {
		b.Stmts = append(b.Stmts, p.statement())
		p.skipSemicolons()
	}
	p.consume(lexer.TokenRBrace, "'}' after block")
	return b
}

// --- Security sentences ---

// sentenceAt decides whether the identifier at offset opens a security
// sentence. Two identifiers (or an identifier and a literal) on one line
// never form a general statement, so that pair always does. A lone
// vocabulary word does too when nothing expression-like follows it.
func (p *Parser) sentenceAt(offset int) bool {
	tok := p.peekAt(offset)
	if tok.Type != lexer.TokenIdent {
		return false
	}
	next := p.peekAt(offset + 1)
	if next.Line == tok.Line {
		switch next.Type {
		case lexer.TokenIdent, lexer.TokenString, lexer.TokenNumber:
			return true
		}
	}
	if !p.vocabulary[tok.Lexeme] {
		return false
	}
	if next.Line != tok.Line {
		return true
	}
	switch next.Type {
	case lexer.TokenEOF, lexer.TokenSemicolon, lexer.TokenAnd, lexer.TokenOr, lexer.TokenIf,
		lexer.TokenUnless, lexer.TokenThen, lexer.TokenElse, lexer.TokenRBrace,
		lexer.TokenTrue, lexer.TokenFalse, lexer.TokenNull, lexer.TokenIn, lexer.TokenFor:
		return true
	case lexer.TokenLParen:
		// `alert (msg)` is a phrase argument, `alert(msg)` a call
		return !adjacent(tok, next)
	}
	return false
}

func adjacent(a, b lexer.Token) bool {
	return a.Line == b.Line && b.Column == a.Column+len(a.Lexeme)
}

// chainAt reports whether a clause chain (rather than a block or a call)
// starts at offset.
func (p *Parser) chainAt(offset int) bool {
	tok := p.peekAt(offset)
	if tok.Type != lexer.TokenIdent {
		return false
	}
	next := p.peekAt(offset + 1)
	if next.Line != tok.Line {
		return true
	}
	switch next.Type {
	case lexer.TokenLParen:
		return !adjacent(tok, next)
	case lexer.TokenDot, lexer.TokenLBracket, lexer.TokenEqual, lexer.TokenArrow:
		return false
	}
	return true
}

func (p *Parser) sentence() Stmt {
	start := p.peek()
	s := &SecuritySentence{Position: posOf(start), Chain: p.chain()}
	// a guard on a later line would be an if statement of its own
	if g := p.peek(); g.Line == p.previous().Line && (p.match(lexer.TokenIf) || p.match(lexer.TokenUnless)) {
		s.Guard = &Guard{Position: posOf(g), Cond: p.expression(), Unless: g.Type == lexer.TokenUnless}
	}
	if p.match(lexer.TokenThen) {
		s.Then = p.block()
	}
	p.sentenceElse(s)
	return s
}

func (p *Parser) sentenceElse(s *SecuritySentence) {
	if !p.match(lexer.TokenElse) {
		return
	}
	if p.check(lexer.TokenLBrace) {
		s.Else = p.block()
		return
	}
	s.ElseChain = p.chain()
}

func (p *Parser) chain() *Chain {
	c := &Chain{Clauses: []*Phrase{p.phrase()}}
	for {
		switch {
		case p.match(lexer.TokenAnd):
			c.Ops = append(c.Ops, "and")
		case p.match(lexer.TokenOr):
			c.Ops = append(c.Ops, "or")
		default:
			return c
		}
		c.Clauses = append(c.Clauses, p.phrase())
	}
}

// phrase reads keyword words and arguments up to the end of the line or the
// next combinator, guard or block keyword.
func (p *Parser) phrase() *Phrase {
	first := p.consume(lexer.TokenIdent, "security keyword")
	ph := &Phrase{Position: posOf(first), Words: []PhraseWord{{Word: first.Lexeme}}}
	line := first.Line
	for {
		tok := p.peek()
		if tok.Line != line {
			return ph
		}
		switch tok.Type {
		case lexer.TokenIdent, lexer.TokenIn, lexer.TokenFor:
			p.advance()
			ph.Words = append(ph.Words, PhraseWord{Word: tok.Lexeme})
		case lexer.TokenString, lexer.TokenNumber:
			p.advance()
			ph.Words = append(ph.Words, PhraseWord{Arg: &Literal{Position: posOf(tok), Value: tok.Literal}})
		case lexer.TokenTrue, lexer.TokenFalse, lexer.TokenNull:
			p.advance()
			ph.Words = append(ph.Words, PhraseWord{Arg: p.keywordLiteral(tok)})
		case lexer.TokenLParen:
			p.advance()
			arg := p.expression()
			line = p.consume(lexer.TokenRParen, "')' after phrase argument").Line
			ph.Words = append(ph.Words, PhraseWord{Arg: arg})
		default:
			return ph
		}
	}
}

// --- Expression Parsing with Precedence ---

func (p *Parser) expression() Expr {
	return p.assignment()
}

func (p *Parser) assignment() Expr {
	expr := p.parseBinary(1)
	if !p.check(lexer.TokenEqual) {
		return expr
	}
	eq := p.advance()
	value := p.assignment()
	switch t := expr.(type) {
	case *Variable:
		return &Assign{Position: t.Position, Name: t.Name, Value: value}
	case *Property:
		return &SetProperty{Position: t.Position, Object: t.Object, Name: t.Name, Value: value}
	case *Index:
		return &SetIndex{Position: t.Position, Object: t.Object, Index: t.Index, Value: value}
	}
	p.errorAt(eq, "assignable expression before '='")
	return nil
}

func (p *Parser) parseBinary(minPrec int) Expr {
	left := p.unary()
	for {
		tok := p.peek()
		prec, ok := precedence[tok.Type]
		if !ok || prec < minPrec {
			return left
		}
		p.advance()
		right := p.parseBinary(prec + 1)
		op, named := operatorText[tok.Type]
		if !named {
			op = string(tok.Type)
		}
		switch tok.Type {
		case lexer.TokenAnd, lexer.TokenOr, lexer.TokenNor:
			left = &Logical{Position: left.Pos(), Left: left, Operator: op, Right: right}
		default:
			left = &Binary{Position: left.Pos(), Left: left, Operator: op, Right: right}
		}
	}
}

func (p *Parser) unary() Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenNot:
		p.advance()
		return &Unary{Position: posOf(tok), Operator: "not", Operand: p.unary()}
	case lexer.TokenMinus:
		p.advance()
		return &Unary{Position: posOf(tok), Operator: "-", Operand: p.unary()}
	case lexer.TokenAwait:
		p.advance()
		return &Await{Position: posOf(tok), Value: p.unary()}
	}
	return p.call()
}

// call parses postfix forms. A '(', '[' or '.' on a later line starts a new
// statement instead of continuing this one.
func (p *Parser) call() Expr {
	expr := p.primary()
	for {
		prev := p.previous()
		tok := p.peek()
		switch {
		case tok.Type == lexer.TokenLParen && tok.Line == prev.Line:
			p.advance()
			expr = &Call{Position: expr.Pos(), Callee: expr, Args: p.arguments()}
		case tok.Type == lexer.TokenLBracket && tok.Line == prev.Line:
			p.advance()
			index := p.expression()
			p.consume(lexer.TokenRBracket, "']' after index")
			expr = &Index{Position: expr.Pos(), Object: expr, Index: index}
		case tok.Type == lexer.TokenDot && tok.Line == prev.Line:
			p.advance()
			expr = &Property{Position: expr.Pos(), Object: expr, Name: p.memberName()}
		default:
			return expr
		}
	}
}

// memberName accepts keywords after '.', so p.then and p.catch work.
func (p *Parser) memberName() string {
	tok := p.peek()
	if tok.Kind() == lexer.KindIdentifier || (tok.Kind() == lexer.KindKeyword && isWord(tok.Lexeme)) ||
		tok.Type == lexer.TokenTrue || tok.Type == lexer.TokenFalse || tok.Type == lexer.TokenNull {
		p.advance()
		return tok.Lexeme
	}
	p.errorAt(tok, "property name after '.'")
	return ""
}

func isWord(s string) bool {
	return s != "" && (s[0] == '_' || ('a' <= s[0] && s[0] <= 'z') || ('A' <= s[0] && s[0] <= 'Z'))
}

func (p *Parser) arguments() []Expr {
	args := []Expr{}
	if !p.check(lexer.TokenRParen) {
		for {
			args = append(args, p.expression())
			if !p.match(lexer.TokenComma) || p.check(lexer.TokenRParen) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "')' after arguments")
	return args
}

func (p *Parser) primary() Expr {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenString, lexer.TokenNumber:
		p.advance()
		return &Literal{Position: posOf(tok), Value: tok.Literal}
	case lexer.TokenTrue, lexer.TokenFalse, lexer.TokenNull:
		p.advance()
		return p.keywordLiteral(tok)
	case lexer.TokenIdent:
		if p.checkNext(lexer.TokenArrow) {
			p.advance()
			p.advance()
			return p.arrowBody(&Lambda{Position: posOf(tok), Params: []string{tok.Lexeme}, Arrow: true})
		}
		p.advance()
		return &Variable{Position: posOf(tok), Name: tok.Lexeme}
	case lexer.TokenThis:
		p.advance()
		return &This{Position: posOf(tok)}
	case lexer.TokenSuper:
		p.advance()
		p.consume(lexer.TokenDot, "'.' after 'super'")
		return &Super{Position: posOf(tok), Method: p.memberName()}
	case lexer.TokenLParen:
		if p.arrowParamsAhead() {
			params := p.params()
			p.consume(lexer.TokenArrow, "'=>' after parameters")
			return p.arrowBody(&Lambda{Position: posOf(tok), Params: params, Arrow: true})
		}
		p.advance()
		expr := p.expression()
		p.consume(lexer.TokenRParen, "')' after expression")
		return expr
	case lexer.TokenLBracket:
		p.advance()
		return p.listLiteral(tok)
	case lexer.TokenLBrace:
		p.advance()
		return p.mapLiteral(tok)
	case lexer.TokenDef:
		p.advance()
		params := p.params()
		return &Lambda{Position: posOf(tok), Params: params, Body: p.block()}
	case lexer.TokenAsync:
		p.advance()
		p.consume(lexer.TokenDef, "'fn' after 'async'")
		params := p.params()
		return &Lambda{Position: posOf(tok), Params: params, Body: p.block(), Async: true}
	case lexer.TokenNew:
		p.advance()
		name := p.consume(lexer.TokenIdent, "class name after 'new'")
		n := &New{Position: posOf(tok), Class: &Variable{Position: posOf(name), Name: name.Lexeme}, Args: []Expr{}}
		if p.check(lexer.TokenLParen) && p.peek().Line == name.Line {
			p.advance()
			n.Args = p.arguments()
		}
		return n
	}
	p.errorAt(tok, "expression")
	return nil
}

func (p *Parser) keywordLiteral(tok lexer.Token) *Literal {
	lit := &Literal{Position: posOf(tok)}
	switch tok.Type {
	case lexer.TokenTrue:
		lit.Value = true
	case lexer.TokenFalse:
		lit.Value = false
	}
	return lit
}

// arrowParamsAhead looks past a '(' for `(a, b) =>`.
func (p *Parser) arrowParamsAhead() bool {
	i := 1
	if p.peekAt(i).Type != lexer.TokenRParen {
		for {
			if p.peekAt(i).Type != lexer.TokenIdent {
				return false
			}
			i++
			if p.peekAt(i).Type == lexer.TokenComma {
				i++
				continue
			}
			break
		}
		if p.peekAt(i).Type != lexer.TokenRParen {
			return false
		}
	}
	return p.peekAt(i+1).Type == lexer.TokenArrow
}

func (p *Parser) arrowBody(l *Lambda) Expr {
	switch tok := p.peek(); tok.Type {
	case lexer.TokenLBrace:
		l.Body = p.block()
	case lexer.TokenSet:
		p.advance()
		target, value := p.setParts(tok)
		l.Result = assignTo(target, value)
	default:
		l.Result = p.expression()
	}
	return l
}

func assignTo(target, value Expr) Expr {
	switch t := target.(type) {
	case *Property:
		return &SetProperty{Position: t.Position, Object: t.Object, Name: t.Name, Value: value}
	case *Index:
		return &SetIndex{Position: t.Position, Object: t.Object, Index: t.Index, Value: value}
	}
	v := target.(*Variable)
	return &Assign{Position: v.Position, Name: v.Name, Value: value}
}

func (p *Parser) listLiteral(open lexer.Token) Expr {
	list := &List{Position: posOf(open), Elements: []Expr{}}
	for !p.check(lexer.TokenRBracket) {
		list.Elements = append(list.Elements, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBracket, "']' after list elements")
	return list
}

func (p *Parser) mapLiteral(open lexer.Token) Expr {
	m := &Map{Position: posOf(open)}
	for !p.check(lexer.TokenRBrace) {
		var key Expr
		if tok := p.peek(); tok.Type == lexer.TokenIdent && p.checkNext(lexer.TokenColon) {
			p.advance()
			key = &Literal{Position: posOf(tok), Value: tok.Lexeme}
		} else {
			key = p.expression()
		}
		p.consume(lexer.TokenColon, "':' after map key")
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, p.expression())
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBrace, "'}' after map entries")
	return m
}

// --- token helpers ---

func (p *Parser) skipSemicolons() {
	for p.match(lexer.TokenSemicolon) {
	}
}

func (p *Parser) match(t lexer.TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, expected string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorAt(p.peek(), expected)
	return lexer.Token{}
}

// errorAt aborts parsing with a ParseError located at tok.
func (p *Parser) errorAt(tok lexer.Token, expected string) {
	file := tok.File
	if file == "" {
		file = p.file
	}
	err := errors.NewParseError(expected, tok.Describe(), file, tok.Line, tok.Column)
	err.WithSource(errors.SourceLine(p.sourceLines, tok.Line))
	panic(err)
}

func (p *Parser) check(t lexer.TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) checkNext(t lexer.TokenType) bool {
	return p.peekAt(1).Type == t
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) previous() lexer.Token {
	if p.current == 0 {
		return p.peek()
	}
	return p.tokens[p.current-1]
}

func (p *Parser) peek() lexer.Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(offset int) lexer.Token {
	i := p.current + offset
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == lexer.TokenEOF
}
