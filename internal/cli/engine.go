package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"aegis/internal/actions"
	"aegis/internal/audit"
	"aegis/internal/config"
	"aegis/internal/hostlib"
	"aegis/internal/interpreter"
	"aegis/internal/scheduler"
	"aegis/internal/security"
)

// engine holds what every interpreter of one invocation shares.
type engine struct {
	cfg   *config.Config
	store *audit.Store
}

func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{cfg: cfg}
	if cfg.Audit.Enabled {
		if dir := filepath.Dir(cfg.Audit.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create audit directory: %w", err)
			}
		}
		store, err := audit.Open(ctx, cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		e.store = store
		config.GetLogger(ctx).Debug("auditing security outcomes", "path", cfg.Audit.Path, "run", store.RunID())
	}
	return e, nil
}

func (e *engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// registry builds a handler registry with the simulated defaults.
func (e *engine) registry(ctx context.Context) *security.Registry {
	logger := config.GetLogger(ctx)
	opts := []actions.Option{actions.WithLogger(logger)}
	if e.cfg.Alert.URL != "" {
		opts = append(opts, actions.WithAlertSink(actions.NewWebsocketSink(e.cfg.Alert.URL)))
	}
	reg := security.NewRegistry()
	actions.New(opts...).Register(reg)
	return reg
}

// interpreter builds a fresh interpreter writing to out.
func (e *engine) interpreter(ctx context.Context, out io.Writer) (*interpreter.Interpreter, error) {
	logger := config.GetLogger(ctx)
	mode, err := security.ParseMode(e.cfg.Mode)
	if err != nil {
		return nil, err
	}
	resOpts := []security.ResolverOption{security.WithLogger(logger)}
	if e.store != nil {
		resOpts = append(resOpts, security.WithAuditor(e.store))
	}
	resolver := security.NewResolver(security.NewModeRegister(mode), e.registry(ctx), resOpts...)

	opts := []interpreter.Option{
		interpreter.WithOutput(out),
		interpreter.WithLogger(logger),
		interpreter.WithResolver(resolver),
		interpreter.WithModules(hostlib.NewRegistry(hostlib.WithLogger(logger))),
	}
	if e.cfg.Clock == "virtual" {
		opts = append(opts, interpreter.WithClock(scheduler.NewVirtualClock(time.Now())))
	}
	if len(e.cfg.Vocabulary) > 0 {
		opts = append(opts, interpreter.WithVocabulary(e.cfg.Vocabulary...))
	}
	return interpreter.New(opts...), nil
}
