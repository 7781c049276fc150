package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/droidforge/forge/internal/events"
	"github.com/droidforge/forge/internal/taskdoc"
)

// Recover transitions every InProgress task of docPath to Blocked. Called at
// engine startup, before any cycle: with no handler sessions live, an
// InProgress task can only be the residue of a crash, and completion cannot
// be assumed. Each recovered task is logged as task.recovered_incomplete
// exactly once. Returns the number of recovered tasks.
func (e *Engine) Recover(ctx context.Context, docPath string) (int, error) {
	lock, err := e.locks.Acquire(ctx, docPath, e.holderID)
	if err != nil {
		return 0, err
	}
	defer e.release(lock)

	doc, err := e.readDocument(docPath)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var recovered []*taskdoc.Task
	for _, task := range doc.Tasks() {
		if task.Status() != taskdoc.StatusInProgress {
			continue
		}
		task.SetStatus(taskdoc.StatusBlocked)
		task.SetMeta("Blocked-at", now)
		task.SetMeta("Error", "abandoned: found in progress with no live handler session")
		recovered = append(recovered, task)
	}

	if len(recovered) == 0 {
		return 0, nil
	}

	if err := e.writeDocument(docPath, doc); err != nil {
		return 0, err
	}

	for _, task := range recovered {
		slog.Warn("recovered incomplete task", "document", docPath, "task_id", task.ID)
		e.publish(events.TaskRecoveredPayload{TaskID: task.ID, Document: docPath})
	}
	return len(recovered), nil
}
