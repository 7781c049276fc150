package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/config"
	"github.com/droidforge/forge/internal/heartbeat"
	"github.com/droidforge/forge/internal/scheduler"
)

// NewWatchCommand returns the watch subcommand: recover once, then keep
// processing documents on their configured schedules until interrupted.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Process documents continuously on a schedule",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "every",
				Usage: "Default interval for documents without an explicit schedule",
				Value: 30 * time.Second,
			},
		},
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Abandoned in-progress tasks from a crashed run are resolved before any
	// schedule fires.
	for _, doc := range cfg.Documents {
		n, err := rt.engine.Recover(ctx, doc)
		if err != nil {
			return fmt.Errorf("recover %s: %w", doc, err)
		}
		if n > 0 {
			slog.Info("recovered abandoned tasks", "document", doc, "count", n)
		}
	}

	schedules := make([]scheduler.DocumentSchedule, 0, len(cfg.Documents))
	scheduled := make(map[string]bool)
	for _, sc := range cfg.Schedules {
		schedules = append(schedules, scheduler.DocumentSchedule{
			Document: sc.Document,
			Cron:     sc.Cron,
			Every:    sc.Every.Duration(),
		})
		scheduled[sc.Document] = true
	}
	for _, doc := range cfg.Documents {
		if !scheduled[doc] {
			schedules = append(schedules, scheduler.DocumentSchedule{
				Document: doc,
				Every:    cmd.Duration("every"),
			})
		}
	}

	sched, err := scheduler.New(scheduler.Config{
		Bus: rt.bus,
		Trigger: func(tctx context.Context, doc string) {
			if _, err := rt.engine.RunCycle(tctx, doc); err != nil {
				slog.Error("cycle failed", "document", doc, "error", err)
			}
		},
		Schedules: schedules,
	})
	if err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	// SIGHUP re-reads .env, forge.jsonc, and the rule table without a restart.
	rt.reloadOnSignal(ctx, cmd.String("config"))

	hb := heartbeat.NewWriter(filepath.Join(config.ForgePath(), "heartbeat.json"), rt.runID)
	hb.Start()
	defer hb.Stop()

	fmt.Printf("watching %d document(s), run %s\n", len(cfg.Documents), rt.runID)
	<-ctx.Done()
	slog.Info("shutting down...")
	return nil
}
