// Package cli provides the aegis command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"aegis/internal/config"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

type configKey struct{}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "aegis",
		Short: "Aegis - security scripting language",
		Long: `Aegis is a small scripting language for security automation.

Scripts mix ordinary code with security sentences such as
"block ip (addr) and alert high breach", dispatched to red or blue
handlers depending on the active mode.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(cmd.ErrOrStderr())
			if cfg.File != "" {
				logger.Debug("using config file", "path", cfg.File)
			}
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			cmd.SetContext(config.WithLogger(ctx, logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./aegis.yaml)")
	flags.StringP("mode", "m", "", "initial mode (red|blue)")
	flags.String("clock", "", "timer clock (real|virtual)")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (text|json)")
	flags.Bool("audit", false, "record security outcomes to the audit database")
	flags.String("audit-path", "", "audit database path")
	flags.String("alert-url", "", "websocket endpoint for alerts")

	_ = rootCmd.RegisterFlagCompletionFunc("mode", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"red", "blue"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newTokensCommand())
	rootCmd.AddCommand(newASTCommand())
	rootCmd.AddCommand(newREPLCommand())
	rootCmd.AddCommand(newHandlersCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// getConfig retrieves the config from the command context.
func getConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		Mode:  config.DefaultMode,
		Clock: config.DefaultClock,
		Log:   config.LogConfig{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat},
		Audit: config.AuditConfig{Path: config.DefaultAuditPath},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "aegis v%s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
