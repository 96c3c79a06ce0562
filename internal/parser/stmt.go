package parser

// Stmt represents a statement.
type Stmt interface {
	Node
	stmtNode()
}

// Program is one parsed source unit.
type Program struct {
	File  string
	Stmts []Stmt
}

// Block: { stmts... }
type Block struct {
	Position
	Stmts []Stmt
}

// ExpressionStmt wraps a raw expression as a statement.
type ExpressionStmt struct {
	Position
	Expr Expr
}

// SetStmt is set/let: declare-or-assign. Target is a *Variable, *Property
// or *Index.
type SetStmt struct {
	Position
	Target Expr
	Value  Expr
}

// FunctionDef: def name(params) { body }
type FunctionDef struct {
	Position
	Name   string
	Params []string
	Body   *Block
	Async  bool
	Static bool
}

// ReturnStmt: return [value]
type ReturnStmt struct {
	Position
	Value Expr
}

// IfStmt covers if and unless. Else is nil, a *Block or a nested *IfStmt.
type IfStmt struct {
	Position
	Cond   Expr
	Then   *Block
	Else   Stmt
	Unless bool
}

// WhileStmt covers while and until.
type WhileStmt struct {
	Position
	Cond  Expr
	Body  *Block
	Until bool
}

// ForStmt: for name in iterable { body }
type ForStmt struct {
	Position
	Var      string
	Iterable Expr
	Body     *Block
}

type BreakStmt struct {
	Position
}

type ContinueStmt struct {
	Position
}

// TryStmt: try {} catch (name[: Type]) {} finally {}. Catch and Finally
// may each be nil, not both.
type TryStmt struct {
	Position
	Body      *Block
	CatchName string
	CatchType string
	Catch     *Block
	Finally   *Block
}

// ThrowStmt: throw value
type ThrowStmt struct {
	Position
	Value Expr
}

// AssertStmt: assert cond[, message]
type AssertStmt struct {
	Position
	Cond    Expr
	Message Expr
}

// ClassDef: class Name(Parent) { methods }
type ClassDef struct {
	Position
	Name    string
	Parent  string
	Methods []*FunctionDef
}

// ModeSwitch: .mode red|blue. An empty Mode queries the register.
type ModeSwitch struct {
	Position
	Mode string
}

func (*Block) stmtNode()            {}
func (*ExpressionStmt) stmtNode()   {}
func (*SetStmt) stmtNode()          {}
func (*FunctionDef) stmtNode()      {}
func (*ReturnStmt) stmtNode()       {}
func (*IfStmt) stmtNode()           {}
func (*WhileStmt) stmtNode()        {}
func (*ForStmt) stmtNode()          {}
func (*BreakStmt) stmtNode()        {}
func (*ContinueStmt) stmtNode()     {}
func (*TryStmt) stmtNode()          {}
func (*ThrowStmt) stmtNode()        {}
func (*AssertStmt) stmtNode()       {}
func (*ClassDef) stmtNode()         {}
func (*ModeSwitch) stmtNode()       {}
func (*SecuritySentence) stmtNode() {}

