package parser

import "aegis/internal/lexer"

// Position is the source location a node was parsed from.
type Position struct {
	Line   int
	Column int
}

func (p Position) Pos() Position { return p }

func posOf(tok lexer.Token) Position {
	return Position{Line: tok.Line, Column: tok.Column}
}

// Node is implemented by every AST node. String renders canonical source
// that parses back to an equivalent tree.
type Node interface {
	Pos() Position
	String() string
}

type Expr interface {
	Node
	exprNode()
}

// Literal: number, string, true, false or null
type Literal struct {
	Position
	Value interface{}
}

// Variable: x
type Variable struct {
	Position
	Name string
}

// This: this
type This struct {
	Position
}

// Super: super.method
type Super struct {
	Position
	Method string
}

// Binary: a + b, a < b, a in b
type Binary struct {
	Position
	Left     Expr
	Operator string
	Right    Expr
}

// Logical: a and b, a or b, a nor b
type Logical struct {
	Position
	Left     Expr
	Operator string
	Right    Expr
}

// Unary: -x, not x
type Unary struct {
	Position
	Operator string
	Operand  Expr
}

// Assign: x = v, also the body of x => set y = x
type Assign struct {
	Position
	Name  string
	Value Expr
}

// SetProperty: obj.name = v
type SetProperty struct {
	Position
	Object Expr
	Name   string
	Value  Expr
}

// SetIndex: obj[i] = v
type SetIndex struct {
	Position
	Object Expr
	Index  Expr
	Value  Expr
}

// Call: callee(args...)
type Call struct {
	Position
	Callee Expr
	Args   []Expr
}

// Property: obj.name
type Property struct {
	Position
	Object Expr
	Name   string
}

// Index: obj[i]
type Index struct {
	Position
	Object Expr
	Index  Expr
}

// List: [a, b]
type List struct {
	Position
	Elements []Expr
}

// Map: {key: value}. Keys keep source order.
type Map struct {
	Position
	Keys   []Expr
	Values []Expr
}

// Lambda is an anonymous function. Exactly one of Body and Result is set:
// fn (a) { ... } and a => { ... } have a Body, a => expr has a Result.
type Lambda struct {
	Position
	Params []string
	Body   *Block
	Result Expr
	Async  bool
	Arrow  bool
}

// New: new Name(args)
type New struct {
	Position
	Class Expr
	Args  []Expr
}

// Await: await expr
type Await struct {
	Position
	Value Expr
}

func (*Literal) exprNode()     {}
func (*Variable) exprNode()    {}
func (*This) exprNode()        {}
func (*Super) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Logical) exprNode()     {}
func (*Unary) exprNode()       {}
func (*Assign) exprNode()      {}
func (*SetProperty) exprNode() {}
func (*SetIndex) exprNode()    {}
func (*Call) exprNode()        {}
func (*Property) exprNode()    {}
func (*Index) exprNode()       {}
func (*List) exprNode()        {}
func (*Map) exprNode()         {}
func (*Lambda) exprNode()      {}
func (*New) exprNode()         {}
func (*Await) exprNode()       {}
