package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// maxNotesLen caps the stdout tail kept as handler notes.
const maxNotesLen = 2000

// ExecHandler runs a configured command per task, passing the task context
// through the environment. Exit status zero means success.
type ExecHandler struct {
	Command string
	Args    []string
	WorkDir string
}

// Execute runs the command with DROID_TASK_ID, DROID_TASK_DESCRIPTION,
// DROID_CAPABILITY, and DROID_DOCUMENT set. Stdout becomes the result notes.
func (h *ExecHandler) Execute(ctx context.Context, req Request) (Result, error) {
	if h.Command == "" {
		return Result{}, fmt.Errorf("no handler command configured")
	}

	cmd := exec.CommandContext(ctx, h.Command, h.Args...)
	cmd.Dir = h.WorkDir
	cmd.Env = append(os.Environ(),
		"DROID_TASK_ID="+req.TaskID,
		"DROID_TASK_DESCRIPTION="+req.Description,
		"DROID_CAPABILITY="+req.Capability,
		"DROID_DOCUMENT="+req.Document,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	notes := tail(strings.TrimSpace(stdout.String()), maxNotesLen)

	if err != nil {
		reason := err.Error()
		if msg := tail(strings.TrimSpace(stderr.String()), maxNotesLen); msg != "" {
			reason = fmt.Sprintf("%s: %s", reason, msg)
		}
		return Result{Success: false, Notes: notes}, fmt.Errorf("handler command: %s", reason)
	}

	return Result{Success: true, Notes: notes}, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
