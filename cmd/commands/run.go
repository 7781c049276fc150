package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

// NewRunCommand returns the run subcommand: one processing cycle over the
// configured documents (or those named as arguments).
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Process pending tasks once and exit",
		ArgsUsage: "[document ...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-recover",
				Usage: "Skip the startup recovery scan for abandoned tasks",
			},
		},
		Action: runOnce,
	}
}

func runOnce(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	documents := cfg.Documents
	if cmd.Args().Len() > 0 {
		documents = cmd.Args().Slice()
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	for _, doc := range documents {
		if !cmd.Bool("no-recover") {
			n, err := rt.engine.Recover(ctx, doc)
			if err != nil {
				return fmt.Errorf("recover %s: %w", doc, err)
			}
			if n > 0 {
				fmt.Printf("%s: recovered %d abandoned task(s)\n", doc, n)
			}
		}

		start := time.Now()
		stats, err := rt.engine.RunCycle(ctx, doc)
		if err != nil {
			return fmt.Errorf("cycle %s: %w", doc, err)
		}
		printStats(doc, stats, time.Since(start))
	}
	return nil
}
