// internal/errors/errors.go
package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	LexError       ErrorType = "LexError"
	ParseError     ErrorType = "ParseError"
	NameError      ErrorType = "NameError"
	TypeError      ErrorType = "TypeError"
	AssertionError ErrorType = "AssertionError"
	UserThrown     ErrorType = "UserThrown"
	RuntimeError   ErrorType = "RuntimeError"
)

// SourceLocation represents a location in source code
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

func (l SourceLocation) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// ScriptError represents an error with source location information
type ScriptError struct {
	Type      ErrorType
	Message   string
	Location  SourceLocation
	CallStack []StackFrame
	Source    string // The source line where error occurred

	// Parse failures only.
	Expected string
	Found    string
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
	Column   int
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s", e.Type, e.Message))

	if e.Location.Line > 0 {
		sb.WriteString(fmt.Sprintf("\n  at %s", e.Location))

		if e.Source != "" {
			sb.WriteString(fmt.Sprintf("\n\n  %d | %s\n", e.Location.Line, e.Source))
			sb.WriteString(fmt.Sprintf("  %s", strings.Repeat(" ", len(fmt.Sprintf("%d | ", e.Location.Line)))))
			if e.Location.Column > 0 {
				sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			}
			sb.WriteString("^")
		}
	}

	if len(e.CallStack) > 0 {
		sb.WriteString("\n\nCall Stack:")
		for _, frame := range e.CallStack {
			sb.WriteString("\n  at ")
			if frame.Function != "" {
				sb.WriteString(frame.Function)
				sb.WriteString(" ")
			}
			sb.WriteString(fmt.Sprintf("(%s)", SourceLocation{File: frame.File, Line: frame.Line, Column: frame.Column}))
		}
	}

	return sb.String()
}

func newError(t ErrorType, message string, file string, line, column int) *ScriptError {
	return &ScriptError{
		Type:    t,
		Message: message,
		Location: SourceLocation{
			File:   file,
			Line:   line,
			Column: column,
		},
	}
}

// NewLexError creates a new lexical error
func NewLexError(message string, file string, line, column int) *ScriptError {
	return newError(LexError, message, file, line, column)
}

// NewParseError creates a parse error recording what the grammar expected
// and which token it found instead.
func NewParseError(expected, found string, file string, line, column int) *ScriptError {
	err := newError(ParseError, fmt.Sprintf("expected %s, found %s", expected, found), file, line, column)
	err.Expected = expected
	err.Found = found
	return err
}

// NewNameError creates an error for an unbound name or unresolved method
func NewNameError(message string, line, column int) *ScriptError {
	return newError(NameError, message, "", line, column)
}

// NewTypeError creates an operator or argument type mismatch error
func NewTypeError(message string, line, column int) *ScriptError {
	return newError(TypeError, message, "", line, column)
}

// NewAssertionError creates a failed assertion error
func NewAssertionError(message string, line, column int) *ScriptError {
	return newError(AssertionError, message, "", line, column)
}

// NewUserThrown creates the error describing a value raised with throw
func NewUserThrown(message string, line, column int) *ScriptError {
	return newError(UserThrown, message, "", line, column)
}

// NewRuntimeError creates a new runtime error
func NewRuntimeError(message string, file string, line, column int) *ScriptError {
	return newError(RuntimeError, message, file, line, column)
}

// WithSource adds source code context to the error
func (e *ScriptError) WithSource(source string) *ScriptError {
	e.Source = source
	return e
}

// WithFile sets the file name if it is not already known
func (e *ScriptError) WithFile(file string) *ScriptError {
	if e.Location.File == "" {
		e.Location.File = file
	}
	return e
}

// WithStack adds a call stack to the error
func (e *ScriptError) WithStack(stack []StackFrame) *ScriptError {
	e.CallStack = stack
	return e
}

// AddStackFrame adds a single stack frame
func (e *ScriptError) AddStackFrame(function, file string, line, column int) *ScriptError {
	e.CallStack = append(e.CallStack, StackFrame{
		Function: function,
		File:     file,
		Line:     line,
		Column:   column,
	})
	return e
}

// SourceLine returns the 1-based line of source, or "" when out of range.
func SourceLine(lines []string, line int) string {
	if line <= 0 || line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[line-1], "\r")
}
