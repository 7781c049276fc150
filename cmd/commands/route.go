package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/router"
)

// NewRouteCommand returns the route subcommand: resolve a description
// against the rule table without touching any document.
func NewRouteCommand() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "Show which capability a task description routes to",
		ArgsUsage: "<description>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "rules",
				Usage: "Path to the rule table (defaults to the configured one)",
			},
		},
		Action: runRoute,
	}
}

func runRoute(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("usage: forge route <description>")
	}
	description := strings.Join(cmd.Args().Slice(), " ")

	rulesPath := cmd.String("rules")
	if rulesPath == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rulesPath = cfg.Rules
	}

	table, err := router.LoadTable(rulesPath)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	capability, rule := table.Match(description)
	if rule == nil {
		fmt.Printf("%s (default, no rule matched)\n", capability)
		return nil
	}
	fmt.Printf("%s (rule %q, priority %d)\n", capability, rule.Pattern, rule.Priority)
	return nil
}
