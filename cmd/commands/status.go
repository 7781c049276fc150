package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/config"
	"github.com/droidforge/forge/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether a watcher or gateway is running",
		Action: func(_ context.Context, _ *cli.Command) error {
			hbPath := filepath.Join(config.ForgePath(), "heartbeat.json")
			status, hb, err := heartbeat.Check(hbPath, 2*time.Minute)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Forge: ALIVE (PID %d, run %s, uptime %s)\n", hb.PID, hb.RunID, hb.Uptime)
			case heartbeat.StatusStale:
				fmt.Printf("Forge: STALE (PID %d, last heartbeat %s ago)\n",
					hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
			case heartbeat.StatusDead:
				fmt.Println("Forge: NOT RUNNING")
			}

			return nil
		},
	}
}
