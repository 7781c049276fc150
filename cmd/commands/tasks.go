package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/taskdoc"
)

// NewTasksCommand returns the tasks subcommand group.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect task documents",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List the tasks of a document",
				ArgsUsage: "<document>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show tasks with this status (pending, in_progress, completed, blocked)",
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show one task with its metadata",
				ArgsUsage: "<document> <task-id>",
				Action:    runTasksShow,
			},
		},
	}
}

func loadDocument(path string) (*taskdoc.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := taskdoc.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func runTasksList(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("usage: forge tasks list <document>")
	}

	doc, err := loadDocument(cmd.Args().First())
	if err != nil {
		return err
	}

	filter := cmd.String("status")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDESCRIPTION")
	for _, task := range doc.Tasks() {
		if filter != "" && task.Status().String() != filter {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", task.ID, task.Status(), task.Description)
	}
	return w.Flush()
}

func runTasksShow(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("usage: forge tasks show <document> <task-id>")
	}

	doc, err := loadDocument(cmd.Args().First())
	if err != nil {
		return err
	}

	id := cmd.Args().Get(1)
	task, ok := doc.Task(id)
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Status:      %s\n", task.Status())
	fmt.Printf("Description: %s\n", task.Description)
	for _, m := range task.MetaEntries() {
		fmt.Printf("%s: %s\n", m.Key, m.Value)
	}
	return nil
}
