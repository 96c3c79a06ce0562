package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"aegis/internal/config"

	"github.com/dustin/go-humanize/english"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errScriptFailed is returned when at least one script failed; the failure
// itself has already been printed.
var errScriptFailed = errors.New("script failed")

func newRunCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Run one or more scripts",
		Long: `Run executes each script with its own interpreter. Several scripts run in
parallel; their output is printed in argument order once all have finished.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !watch {
				return runFiles(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
			}
			return watchFiles(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rerun when a script changes")
	return cmd
}

type result struct {
	out bytes.Buffer
	err error
}

func runFiles(ctx context.Context, stdout, stderr io.Writer, files []string) error {
	cfg := getConfig(ctx)
	logger := config.GetLogger(ctx)
	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	start := time.Now()
	if len(files) == 1 {
		err := runFile(ctx, eng, stdout, files[0])
		return report(stderr, files[0], err)
	}

	results := make([]result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			// a failing script does not cancel its siblings
			results[i].err = runFile(gctx, eng, &results[i].out, file)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for i, file := range files {
		_, _ = stdout.Write(results[i].out.Bytes())
		if report(stderr, file, results[i].err) != nil {
			failed++
		}
	}
	logger.Info("run finished",
		"scripts", english.Plural(len(files), "script", ""),
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond).String())
	if failed > 0 {
		return errScriptFailed
	}
	return nil
}

func runFile(ctx context.Context, eng *engine, out io.Writer, file string) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	in, err := eng.interpreter(ctx, out)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = in.RunSource(ctx, string(src), file)
	return err
}

func report(stderr io.Writer, file string, err error) error {
	if err == nil {
		return nil
	}
	_, _ = fmt.Fprintf(stderr, "%s: %v\n", file, err)
	return errScriptFailed
}

// watchFiles runs the scripts, then reruns them whenever one is written.
func watchFiles(ctx context.Context, stdout, stderr io.Writer, files []string) error {
	logger := config.GetLogger(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// editors replace files, so watch the directories
	watched := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", f, err)
		}
	}

	rerun := func() {
		if err := runFiles(ctx, stdout, stderr, files); err != nil && !errors.Is(err, errScriptFailed) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(stderr, "-- watching for changes --")
	}
	rerun()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !watched[filepath.Clean(event.Name)] {
				continue
			}
			logger.Debug("script changed", "file", event.Name)
			debounce = time.After(100 * time.Millisecond)
		case <-debounce:
			debounce = nil
			rerun()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
