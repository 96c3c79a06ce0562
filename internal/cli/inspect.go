package cli

import (
	"fmt"
	"os"

	"aegis/internal/lexer"
	"aegis/internal/parser"

	"github.com/spf13/cobra"
)

func parseOptions(cmd *cobra.Command) []parser.Option {
	cfg := getConfig(cmd.Context())
	if len(cfg.Vocabulary) == 0 {
		return nil
	}
	return []parser.Option{parser.WithVocabulary(cfg.Vocabulary...)}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Lex and parse scripts without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed bool
			for _, file := range args {
				src, err := os.ReadFile(file)
				if err == nil {
					_, err = parser.ParseSource(string(src), file, parseOptions(cmd)...)
				}
				if err != nil {
					failed = true
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", file, err)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", file)
			}
			if failed {
				return errScriptFailed
			}
			return nil
		},
	}
}

func newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens FILE",
		Short: "Print the token stream of a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tokens, err := lexer.NewScanner(string(src)).WithFile(args[0]).ScanTokens()
			if err != nil {
				return err
			}
			for _, tok := range tokens {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok.String())
			}
			return nil
		},
	}
}

func newASTCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ast FILE",
		Short: "Print the parsed program in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, err := parser.ParseSource(string(src), args[0], parseOptions(cmd)...)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), prog.String())
			return nil
		},
	}
}
