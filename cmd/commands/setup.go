package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/audit"
	"github.com/droidforge/forge/internal/config"
	"github.com/droidforge/forge/internal/engine"
	"github.com/droidforge/forge/internal/events"
	"github.com/droidforge/forge/internal/lockfile"
	"github.com/droidforge/forge/internal/router"
)

// setupLogging raises the default slog level when --debug is set.
func setupLogging(cmd *cli.Command) {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: slog.LevelDebug})))
	}
}

// loadConfig reads the config named by --config. A missing file falls back
// to defaults inside config.Load.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// runtime bundles the wired components a processing command needs.
type runtime struct {
	cfg     *config.Config
	bus     *events.Bus
	locks   *lockfile.Manager
	rules   *router.Table
	tracker *audit.Tracker
	logger  *audit.Logger
	engine  *engine.Engine
	runID   string
}

// newRuntime wires the bus, lock manager, rule table, audit logger, and
// engine from config. Close releases the audit log and drains the bus.
func newRuntime(cfg *config.Config) (*runtime, error) {
	runID := audit.GenerateRunID()
	bus := events.NewBus(cfg.Events.BufferSize)

	logger, err := audit.NewLogger(cfg.Audit, runID, bus)
	if err != nil {
		bus.Close()
		return nil, err
	}

	rules, err := router.LoadTable(cfg.Rules)
	if err != nil {
		logger.Close()
		bus.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}

	locks := lockfile.NewManager(lockfile.Config{
		Bus:          bus,
		RunID:        runID,
		Timeout:      cfg.Lock.Timeout.Duration(),
		StaleAfter:   cfg.Lock.StaleAfter.Duration(),
		PollInterval: cfg.Lock.PollInterval.Duration(),
	})

	tracker := audit.NewTracker()

	var handler engine.Handler
	if cfg.Handler.Command != "" {
		handler = &engine.ExecHandler{
			Command: cfg.Handler.Command,
			Args:    cfg.Handler.Args,
			WorkDir: cfg.Handler.WorkDir,
		}
	} else {
		handler = engine.HandlerFunc(noHandler)
	}

	eng := engine.New(engine.Config{
		Locks:          locks,
		Rules:          rules,
		Handler:        handler,
		Bus:            bus,
		Tracker:        tracker,
		RunID:          runID,
		HandlerTimeout: cfg.Handler.Timeout.Duration(),
	})

	slog.Info("runtime ready", "run_id", runID, "rules", rules.Len(),
		"documents", len(cfg.Documents))

	return &runtime{
		cfg:     cfg,
		bus:     bus,
		locks:   locks,
		rules:   rules,
		tracker: tracker,
		logger:  logger,
		engine:  eng,
		runID:   runID,
	}, nil
}

// reloadOnSignal re-reads the dotenv file and config on SIGHUP and reinstalls
// the delegation rules into the engine, until ctx ends. Lock and handler
// settings stay as loaded at startup.
func (r *runtime) reloadOnSignal(ctx context.Context, configPath string) {
	reloader := config.NewReloader(configPath, config.DotenvPath(), r.cfg)
	reloader.OnReload(func(cfg *config.Config) {
		rules, err := router.LoadTable(cfg.Rules)
		if err != nil {
			slog.Error("keeping previous rules", "path", cfg.Rules, "error", err)
			return
		}
		r.engine.SetRules(rules)
		slog.Info("delegation rules reinstalled", "rules", rules.Len())
	})

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				if err := reloader.Reload(); err != nil {
					slog.Error("config reload failed", "error", err)
				}
			}
		}
	}()
}

// Close flushes the audit log and shuts the bus down, letting queued events
// drain first.
func (r *runtime) Close() {
	r.bus.Close()
	r.logger.Close()
}

// noHandler rejects every task. Used when no handler command is configured
// so tasks land Blocked instead of silently vanishing.
func noHandler(_ context.Context, req engine.Request) (engine.Result, error) {
	return engine.Result{}, fmt.Errorf("no handler configured for capability %q", req.Capability)
}

// printStats writes a one-line cycle summary to stdout.
func printStats(document string, stats engine.CycleStats, elapsed time.Duration) {
	fmt.Printf("%s: %d processed, %d completed, %d failed, %d skipped (%s)\n",
		document, stats.Processed, stats.Completed, stats.Failed, stats.Skipped,
		elapsed.Truncate(time.Millisecond))
}
