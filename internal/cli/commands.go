package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"aegis/internal/audit"
	"aegis/internal/config"
	"aegis/internal/repl"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newREPLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := newEngine(ctx, getConfig(ctx))
			if err != nil {
				return err
			}
			defer eng.Close()
			in, err := eng.interpreter(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer in.Close()

			history := ""
			if home, err := os.UserHomeDir(); err == nil {
				history = filepath.Join(home, ".aegis_history")
			}
			return repl.Start(ctx, in, history)
		},
	}
}

func newHandlersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List the built-in security action handlers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng := &engine{cfg: getConfig(cmd.Context())}
			entries := eng.registry(cmd.Context()).Entries()

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Phrase", "Mode"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.Phrase, string(e.Mode)})
			}
			t.Render()
			return nil
		},
	}
}

func newAuditCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audited security outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			if _, err := os.Stat(cfg.Audit.Path); err != nil {
				return fmt.Errorf("no audit database at %s (run with --audit first)", cfg.Audit.Path)
			}
			store, err := audit.Open(ctx, cfg.Audit.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			config.GetLogger(ctx).Debug("audit entries loaded", "count", len(entries))
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "(no entries)")
				return nil
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"When", "Mode", "Phrase", "Status", "Detail", "Line"})
			for _, e := range entries {
				status, detail := "ok", e.Result
				switch {
				case e.Stub:
					status = "stub"
				case !e.OK:
					status, detail = "failed", e.Error
				}
				t.AppendRow(table.Row{humanize.Time(e.At), string(e.Mode), e.Phrase, status, detail, e.Line})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
