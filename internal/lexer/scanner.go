package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"aegis/internal/errors"
)

type Scanner struct {
	source    string
	file      string
	tokens    []Token
	start     int
	current   int
	line      int
	lineStart int

	startLine   int
	startColumn int
}

func NewScanner(source string) *Scanner {
	return &Scanner{
		source: source,
		line:   1,
	}
}

// WithFile records the file name carried by every token and error.
func (s *Scanner) WithFile(file string) *Scanner {
	s.file = file
	return s
}

// Tokenize scans a whole source unit.
func Tokenize(source string) ([]Token, error) {
	return NewScanner(source).ScanTokens()
}

// ScanTokens returns the token stream terminated by an EOF token, or the
// first *errors.ScriptError of type LexError.
func (s *Scanner) ScanTokens() ([]Token, error) {
	// Handle shebang at the beginning of the file
	if s.current == 0 && strings.HasPrefix(s.source, "#!") {
		s.skipLine()
	}

	for {
		if err := s.skipTrivia(); err != nil {
			return nil, err
		}
		if s.isAtEnd() {
			break
		}
		s.start = s.current
		s.startLine = s.line
		s.startColumn = s.column()
		if err := s.scanToken(); err != nil {
			return nil, err
		}
	}
	s.tokens = append(s.tokens, Token{Type: TokenEOF, File: s.file, Line: s.line, Column: s.column()})
	return s.tokens, nil
}

func (s *Scanner) scanToken() error {
	c := s.advance()
	switch c {
	case '(':
		s.addToken(TokenLParen)
	case ')':
		s.addToken(TokenRParen)
	case '{':
		s.addToken(TokenLBrace)
	case '}':
		s.addToken(TokenRBrace)
	case '[':
		s.addToken(TokenLBracket)
	case ']':
		s.addToken(TokenRBracket)
	case '+':
		s.addToken(TokenPlus)
	case '-':
		s.addToken(TokenMinus)
	case '*':
		s.addToken(TokenStar)
	case '/':
		s.addToken(TokenSlash)
	case '%':
		s.addToken(TokenPercent)
	case ',':
		s.addToken(TokenComma)
	case '.':
		s.addToken(TokenDot)
	case ';':
		s.addToken(TokenSemicolon)
	case ':':
		s.addToken(TokenColon)
	case '=':
		switch {
		case s.match('='):
			s.addToken(TokenDoubleEqual)
		case s.match('>'):
			s.addToken(TokenArrow)
		default:
			s.addToken(TokenEqual)
		}
	case '!':
		if s.match('=') {
			s.addToken(TokenNotEqual)
		} else {
			s.addToken(TokenNot)
		}
	case '<':
		if s.match('=') {
			s.addToken(TokenLE)
		} else {
			s.addToken(TokenLT)
		}
	case '>':
		if s.match('=') {
			s.addToken(TokenGE)
		} else {
			s.addToken(TokenGT)
		}
	case '&':
		if !s.match('&') {
			return s.errorf("unexpected character '&' (did you mean '&&'?)")
		}
		s.addToken(TokenAnd)
	case '|':
		if !s.match('|') {
			return s.errorf("unexpected character '|' (did you mean '||'?)")
		}
		s.addToken(TokenOr)
	case '"':
		if strings.HasPrefix(s.source[s.current:], `""`) {
			s.current += 2
			return s.blockString()
		}
		return s.string()
	default:
		if isDigit(c) {
			s.number()
			return nil
		}
		s.current = s.start
		r, size := utf8.DecodeRuneInString(s.source[s.current:])
		if isAlpha(r) {
			s.current += size
			s.identifier()
			return nil
		}
		s.current += size
		return s.errorf("unexpected character %q", r)
	}
	return nil
}

// skipTrivia consumes whitespace and comments: '#', '//' and '~' run to the
// end of the line, '/* */' may span lines.
func (s *Scanner) skipTrivia() error {
	for !s.isAtEnd() {
		c := s.peek()
		switch {
		case c == '\n':
			s.advance()
			s.newline()
		case c == ' ' || c == '\t' || c == '\r':
			s.advance()
		case c == '#' || c == '~':
			s.skipLine()
		case c == '/' && s.peekNext() == '/':
			s.skipLine()
		case c == '/' && s.peekNext() == '*':
			line, col := s.line, s.column()
			s.current += 2
			closed := false
			for !s.isAtEnd() {
				if s.peek() == '*' && s.peekNext() == '/' {
					s.current += 2
					closed = true
					break
				}
				if s.advance() == '\n' {
					s.newline()
				}
			}
			if !closed {
				return errors.NewLexError("unterminated block comment", s.file, line, col)
			}
		default:
			return nil
		}
	}
	return nil
}

func (s *Scanner) match(expected byte) bool {
	if s.isAtEnd() || s.source[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) identifier() {
	for !s.isAtEnd() {
		r, size := utf8.DecodeRuneInString(s.source[s.current:])
		if !isAlphaNumeric(r) {
			break
		}
		s.current += size
	}
	text := s.source[s.start:s.current]
	if t, ok := LookupKeyword(text); ok {
		s.addToken(t)
		return
	}
	s.addToken(TokenIdent)
}

func (s *Scanner) number() {
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	text := s.source[s.start:s.current]
	val, _ := strconv.ParseFloat(text, 64)
	s.addLiteral(TokenNumber, val)
}

var escapes = map[byte]byte{
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'"':  '"',
	'\'': '\'',
	'\\': '\\',
	'0':  0,
}

func (s *Scanner) string() error {
	var sb strings.Builder
	for {
		if s.isAtEnd() {
			return errors.NewLexError("unterminated string", s.file, s.startLine, s.startColumn)
		}
		c := s.advance()
		switch c {
		case '"':
			s.addLiteral(TokenString, sb.String())
			return nil
		case '\n':
			s.newline()
			sb.WriteByte(c)
		case '\\':
			if s.isAtEnd() {
				return errors.NewLexError("unterminated string", s.file, s.startLine, s.startColumn)
			}
			e := s.advance()
			if r, ok := escapes[e]; ok {
				sb.WriteByte(r)
			} else {
				// unknown escapes keep the escaped character
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

// blockString scans """...""" literals; escapes behave as in ordinary strings.
func (s *Scanner) blockString() error {
	var sb strings.Builder
	for {
		if s.isAtEnd() {
			return errors.NewLexError("unterminated block string", s.file, s.startLine, s.startColumn)
		}
		if strings.HasPrefix(s.source[s.current:], `"""`) {
			s.current += 3
			s.addLiteral(TokenString, sb.String())
			return nil
		}
		c := s.advance()
		switch c {
		case '\n':
			s.newline()
			sb.WriteByte(c)
		case '\\':
			if s.isAtEnd() {
				return errors.NewLexError("unterminated block string", s.file, s.startLine, s.startColumn)
			}
			e := s.advance()
			if r, ok := escapes[e]; ok {
				sb.WriteByte(r)
			} else {
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

func (s *Scanner) addToken(t TokenType) {
	s.addLiteral(t, nil)
}

func (s *Scanner) addLiteral(t TokenType, literal interface{}) {
	s.tokens = append(s.tokens, Token{
		Type:    t,
		Lexeme:  s.source[s.start:s.current],
		Literal: literal,
		File:    s.file,
		Line:    s.startLine,
		Column:  s.startColumn,
	})
}

func (s *Scanner) errorf(format string, args ...interface{}) error {
	return errors.NewLexError(fmt.Sprintf(format, args...), s.file, s.startLine, s.startColumn)
}

func (s *Scanner) advance() byte {
	s.current++
	return s.source[s.current-1]
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return '\000'
	}
	return s.source[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.source) {
		return '\000'
	}
	return s.source[s.current+1]
}

func (s *Scanner) isAtEnd() bool {
	return s.current >= len(s.source)
}

func (s *Scanner) newline() {
	s.line++
	s.lineStart = s.current
}

func (s *Scanner) column() int {
	return s.current - s.lineStart + 1
}

// skipLine skips to the end of the current line, leaving the newline.
func (s *Scanner) skipLine() {
	for !s.isAtEnd() && s.peek() != '\n' {
		s.advance()
	}
}

func isAlpha(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isAlphaNumeric(r rune) bool {
	return isAlpha(r) || unicode.IsDigit(r)
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
