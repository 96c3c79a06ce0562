package lexer

import "fmt"

type TokenType string

const (
	// Keywords
	TokenSet       TokenType = "SET"
	TokenDef       TokenType = "DEF"
	TokenReturn    TokenType = "RETURN"
	TokenIf        TokenType = "IF"
	TokenElse      TokenType = "ELSE"
	TokenHowever   TokenType = "HOWEVER"
	TokenOtherwise TokenType = "OTHERWISE"
	TokenYet       TokenType = "YET"
	TokenUnless    TokenType = "UNLESS"
	TokenThen      TokenType = "THEN"
	TokenWhen      TokenType = "WHEN"
	TokenWhile     TokenType = "WHILE"
	TokenUntil     TokenType = "UNTIL"
	TokenFor       TokenType = "FOR"
	TokenIn        TokenType = "IN"
	TokenBreak     TokenType = "BREAK"
	TokenContinue  TokenType = "CONTINUE"
	TokenClass     TokenType = "CLASS"
	TokenExtends   TokenType = "EXTENDS"
	TokenNew       TokenType = "NEW"
	TokenSuper     TokenType = "SUPER"
	TokenThis      TokenType = "THIS"
	TokenStatic    TokenType = "STATIC"
	TokenTry       TokenType = "TRY"
	TokenCatch     TokenType = "CATCH"
	TokenFinally   TokenType = "FINALLY"
	TokenThrow     TokenType = "THROW"
	TokenAssert    TokenType = "ASSERT"
	TokenAsync     TokenType = "ASYNC"
	TokenAwait     TokenType = "AWAIT"
	TokenAnd       TokenType = "AND"
	TokenOr        TokenType = "OR"
	TokenNor       TokenType = "NOR"
	TokenNot       TokenType = "NOT"

	// Literals
	TokenTrue   TokenType = "TRUE"
	TokenFalse  TokenType = "FALSE"
	TokenNull   TokenType = "NULL"
	TokenIdent  TokenType = "IDENT"
	TokenString TokenType = "STRING"
	TokenNumber TokenType = "NUMBER"

	// Symbols
	TokenLParen      TokenType = "("
	TokenRParen      TokenType = ")"
	TokenLBrace      TokenType = "{"
	TokenRBrace      TokenType = "}"
	TokenLBracket    TokenType = "["
	TokenRBracket    TokenType = "]"
	TokenPlus        TokenType = "+"
	TokenMinus       TokenType = "-"
	TokenStar        TokenType = "*"
	TokenSlash       TokenType = "/"
	TokenPercent     TokenType = "%"
	TokenEqual       TokenType = "="
	TokenArrow       TokenType = "=>"
	TokenColon       TokenType = ":"
	TokenDoubleEqual TokenType = "=="
	TokenNotEqual    TokenType = "!="
	TokenLT          TokenType = "<"
	TokenGT          TokenType = ">"
	TokenLE          TokenType = "<="
	TokenGE          TokenType = ">="
	TokenComma       TokenType = ","
	TokenDot         TokenType = "."
	TokenSemicolon   TokenType = ";"
	TokenEOF         TokenType = "EOF"
)

// Kind groups token types into the broad classes diagnostics talk about.
type Kind int

const (
	KindEOF Kind = iota
	KindIdentifier
	KindKeyword
	KindOperator
	KindLiteral
	KindPunctuation
)

func (k Kind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindKeyword:
		return "keyword"
	case KindOperator:
		return "operator"
	case KindLiteral:
		return "literal"
	case KindPunctuation:
		return "punctuation"
	default:
		return "end of input"
	}
}

// keywords maps source spellings to token types. Several spellings share a
// type: let/set, fn/def, and/&&, or/||, not/!, is/==.
var keywords = map[string]TokenType{
	"set":       TokenSet,
	"let":       TokenSet,
	"def":       TokenDef,
	"fn":        TokenDef,
	"return":    TokenReturn,
	"if":        TokenIf,
	"else":      TokenElse,
	"however":   TokenHowever,
	"otherwise": TokenOtherwise,
	"yet":       TokenYet,
	"unless":    TokenUnless,
	"then":      TokenThen,
	"when":      TokenWhen,
	"while":     TokenWhile,
	"until":     TokenUntil,
	"for":       TokenFor,
	"in":        TokenIn,
	"break":     TokenBreak,
	"continue":  TokenContinue,
	"class":     TokenClass,
	"extends":   TokenExtends,
	"new":       TokenNew,
	"super":     TokenSuper,
	"this":      TokenThis,
	"static":    TokenStatic,
	"try":       TokenTry,
	"catch":     TokenCatch,
	"finally":   TokenFinally,
	"throw":     TokenThrow,
	"assert":    TokenAssert,
	"async":     TokenAsync,
	"await":     TokenAwait,
	"and":       TokenAnd,
	"or":        TokenOr,
	"nor":       TokenNor,
	"not":       TokenNot,
	"is":        TokenDoubleEqual,
	"true":      TokenTrue,
	"false":     TokenFalse,
	"null":      TokenNull,
}

// LookupKeyword reports the keyword type for word, if it is one.
func LookupKeyword(word string) (TokenType, bool) {
	t, ok := keywords[word]
	return t, ok
}

type Token struct {
	Type    TokenType
	Lexeme  string
	Literal interface{} // string or float64 for literal tokens
	File    string
	Line    int
	Column  int
}

func (t Token) String() string {
	return fmt.Sprintf("[%s] '%s' %d:%d", t.Type, t.Lexeme, t.Line, t.Column)
}

// Kind classifies the token.
func (t Token) Kind() Kind {
	switch t.Type {
	case TokenEOF:
		return KindEOF
	case TokenIdent:
		return KindIdentifier
	case TokenString, TokenNumber, TokenTrue, TokenFalse, TokenNull:
		return KindLiteral
	case TokenLParen, TokenRParen, TokenLBrace, TokenRBrace, TokenLBracket, TokenRBracket,
		TokenComma, TokenDot, TokenSemicolon, TokenColon:
		return KindPunctuation
	case TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenEqual, TokenArrow,
		TokenDoubleEqual, TokenNotEqual, TokenLT, TokenGT, TokenLE, TokenGE:
		return KindOperator
	}
	if t.Lexeme == "&&" || t.Lexeme == "||" || t.Lexeme == "!" {
		return KindOperator
	}
	return KindKeyword
}

// Describe renders the token for "expected X, found Y" diagnostics.
func (t Token) Describe() string {
	if t.Type == TokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%s '%s'", t.Kind(), t.Lexeme)
}
