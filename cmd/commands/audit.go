package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/droidforge/forge/internal/audit"
)

// NewAuditCommand returns the audit subcommand group.
func NewAuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Inspect the audit log",
		Commands: []*cli.Command{
			{
				Name:   "report",
				Usage:  "Summarize the audit log",
				Action: runAuditReport,
			},
			{
				Name:  "tail",
				Usage: "Print the most recent audit records",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "n",
						Usage: "Number of records",
						Value: 20,
					},
				},
				Action: runAuditTail,
			},
		},
	}
}

func runAuditReport(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	records, err := audit.ReadLog(cfg.Audit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("audit log is empty")
		return nil
	}

	report := audit.BuildReport(records)

	fmt.Printf("%d records (%s .. %s)\n\n", report.Total, report.First, report.Last)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCOUNT")
	for _, event := range sortedKeys(report.ByEvent) {
		fmt.Fprintf(w, "%s\t%d\n", event, report.ByEvent[event])
	}
	w.Flush()

	if len(report.Capabilities) > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CAPABILITY\tRUNS\tOK\tFAILED\tSUCCESS\tAVG")
		caps := make([]string, 0, len(report.Capabilities))
		for c := range report.Capabilities {
			caps = append(caps, c)
		}
		sort.Strings(caps)
		for _, c := range caps {
			s := report.Capabilities[c]
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f%%\t%s\n",
				c, s.Executions, s.Succeeded, s.Failed,
				s.SuccessRate()*100, s.AvgDuration().Truncate(time.Millisecond))
		}
		w.Flush()
	}

	if len(report.Failures) > 0 {
		fmt.Printf("\nrecent failures:\n")
		for _, f := range report.Failures {
			fmt.Printf("  %s %s %s: %s\n", f.Timestamp, f.Document, f.TaskID, f.Reason)
		}
	}
	return nil
}

func runAuditTail(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	records, err := audit.ReadLog(cfg.Audit)
	if err != nil {
		return err
	}

	n := int(cmd.Int("n"))
	if len(records) > n {
		records = records[len(records)-n:]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.Str("timestamp"), rec.Str("event"),
			rec.Str("task_id"), rec.Str("document"))
	}
	return w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
