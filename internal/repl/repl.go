// Package repl implements the interactive aegis prompt.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"aegis/internal/interpreter"

	"github.com/chzyer/readline"
)

const help = `Enter statements; input continues until braces balance.
  .mode [red|blue]  show or switch the mode
  .show NAME        print a global
  .globals          list globals
  .help             this text
  .quit             leave
`

// Session is the line-oriented core of the REPL, independent of the
// terminal.
type Session struct {
	in    *interpreter.Interpreter
	out   io.Writer
	buf   strings.Builder
	lines int
}

func NewSession(in *interpreter.Interpreter, out io.Writer) *Session {
	return &Session{in: in, out: out}
}

// Prompt shows the current mode, or a continuation marker mid-statement.
func (s *Session) Prompt() string {
	if s.buf.Len() > 0 {
		return "... "
	}
	return fmt.Sprintf("aegis[%s]> ", s.in.Mode())
}

// Pending reports whether a statement is still being accumulated.
func (s *Session) Pending() bool { return s.buf.Len() > 0 }

// Reset drops any partially entered statement.
func (s *Session) Reset() {
	s.buf.Reset()
}

// Feed handles one line of input. It returns true when the session should
// end.
func (s *Session) Feed(ctx context.Context, line string) bool {
	if s.buf.Len() == 0 {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return false
		}
		if quit, handled := s.command(ctx, trimmed); handled {
			return quit
		}
	}

	s.buf.WriteString(line)
	s.buf.WriteByte('\n')
	if depth(s.buf.String()) > 0 {
		return false
	}

	src := s.buf.String()
	s.buf.Reset()
	s.lines++
	v, err := s.in.RunSource(ctx, src, fmt.Sprintf("<repl:%d>", s.lines))
	if err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}
	if v != nil {
		fmt.Fprintln(s.out, interpreter.Repr(v))
	}
	return false
}

// command runs dot commands the language itself does not understand.
// `.mode red` is ordinary syntax and falls through to the interpreter.
func (s *Session) command(ctx context.Context, line string) (quit, handled bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".quit", ".exit", "exit":
		return true, true
	case ".help":
		fmt.Fprint(s.out, help)
		return false, true
	case ".mode":
		if len(fields) == 1 {
			fmt.Fprintln(s.out, s.in.Mode())
			return false, true
		}
		return false, false
	case ".show":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "usage: .show NAME")
			return false, true
		}
		v, ok := s.in.Get(fields[1])
		if !ok {
			fmt.Fprintf(s.out, "'%s' is not defined\n", fields[1])
			return false, true
		}
		fmt.Fprintf(s.out, "%s = %s (%s)\n", fields[1], interpreter.Repr(v), interpreter.TypeName(v))
		return false, true
	case ".globals":
		names := s.in.Globals().Names()
		sort.Strings(names)
		fmt.Fprintln(s.out, strings.Join(names, " "))
		return false, true
	}
	if strings.HasPrefix(fields[0], ".") && fields[0] != ".mode" {
		fmt.Fprintf(s.out, "unknown command %s (try .help)\n", fields[0])
		return false, true
	}
	return false, false
}

// depth counts unclosed brackets outside strings and comments.
func depth(src string) int {
	n := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '{', '(', '[':
			n++
		case '}', ')', ']':
			n--
		case '#', '~':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				for i < len(src) && src[i] != '\n' {
					i++
				}
			}
		case '"', '\'':
			if strings.HasPrefix(src[i:], `"""`) {
				end := strings.Index(src[i+3:], `"""`)
				if end < 0 {
					return n + 1
				}
				i += end + 5
				continue
			}
			for i++; i < len(src) && src[i] != c; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		}
	}
	return n
}

// Start runs the REPL on the terminal until .quit or EOF.
func Start(ctx context.Context, in *interpreter.Interpreter, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "aegis> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer rl.Close()

	s := NewSession(in, rl.Stdout())
	fmt.Fprintln(rl.Stdout(), "Aegis REPL | .help for commands, .quit to leave")
	for {
		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if !s.Pending() {
				return nil
			}
			s.Reset()
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
		if s.Feed(ctx, line) {
			return nil
		}
	}
}
