package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/events"
	"github.com/droidforge/forge/internal/lockfile"
)

// NewLocksCommand returns the locks subcommand group.
func NewLocksCommand() *cli.Command {
	return &cli.Command{
		Name:  "locks",
		Usage: "Inspect and clear document locks",
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "Show lock state for the configured documents",
				ArgsUsage: "[document ...]",
				Action:    runLocksInspect,
			},
			{
				Name:      "clear",
				Usage:     "Remove stale lock markers",
				ArgsUsage: "[document ...]",
				Action:    runLocksClear,
			},
		},
	}
}

func locksManager(cmd *cli.Command) (*lockfile.Manager, []string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	documents := cfg.Documents
	if cmd.Args().Len() > 0 {
		documents = cmd.Args().Slice()
	}

	mgr := lockfile.NewManager(lockfile.Config{
		Bus:          events.NewBus(16),
		RunID:        "cli",
		Timeout:      cfg.Lock.Timeout.Duration(),
		StaleAfter:   cfg.Lock.StaleAfter.Duration(),
		PollInterval: cfg.Lock.PollInterval.Duration(),
	})
	return mgr, documents, nil
}

func runLocksInspect(_ context.Context, cmd *cli.Command) error {
	mgr, documents, err := locksManager(cmd)
	if err != nil {
		return err
	}

	for _, doc := range documents {
		info, err := mgr.Inspect(doc)
		if err != nil {
			fmt.Printf("%s: unreadable marker (%v)\n", doc, err)
			continue
		}
		if info == nil {
			fmt.Printf("%s: unlocked\n", doc)
			continue
		}
		age := time.Since(info.AcquiredAt).Truncate(time.Second)
		fmt.Printf("%s: held by %s for %s (pid %d)\n", doc, info.HolderID, age, info.PID)
	}
	return nil
}

func runLocksClear(_ context.Context, cmd *cli.Command) error {
	mgr, documents, err := locksManager(cmd)
	if err != nil {
		return err
	}

	for _, doc := range documents {
		reclaimed, err := mgr.ClearIfStale(doc)
		if err != nil {
			return fmt.Errorf("clear %s: %w", doc, err)
		}
		if reclaimed {
			fmt.Printf("%s: stale lock cleared\n", doc)
		} else {
			fmt.Printf("%s: nothing to clear\n", doc)
		}
	}
	return nil
}
