package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "forge",
		Usage: "Task orchestration for droid crews",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewWatchCommand(),
			NewServeCommand(),
			NewStatusCommand(),
			NewTasksCommand(),
			NewRouteCommand(),
			NewAuditCommand(),
			NewLocksCommand(),
		},
	}
}
