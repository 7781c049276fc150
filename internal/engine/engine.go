// Package engine drives the orchestration cycle: read the task document,
// route each pending task, invoke its handler outside the document lock, and
// persist status transitions through the atomic writer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/droidforge/forge/internal/atomicfile"
	"github.com/droidforge/forge/internal/audit"
	"github.com/droidforge/forge/internal/events"
	"github.com/droidforge/forge/internal/lockfile"
	"github.com/droidforge/forge/internal/router"
	"github.com/droidforge/forge/internal/taskdoc"
)

// Config holds dependencies for creating an Engine.
type Config struct {
	Locks   *lockfile.Manager
	Rules   *router.Table
	Handler Handler
	Bus     *events.Bus
	Tracker *audit.Tracker // optional
	RunID   string
	// HolderID identifies this engine in lock markers. Defaults to the run
	// ID plus a random suffix.
	HolderID string
	// HandlerTimeout bounds a single handler invocation. Zero means no limit.
	HandlerTimeout time.Duration
}

// Engine processes the tasks of one or more documents, one document mutation
// in flight at a time.
type Engine struct {
	locks          *lockfile.Manager
	rules          atomic.Pointer[router.Table]
	handler        Handler
	bus            *events.Bus
	tracker        *audit.Tracker
	runID          string
	holderID       string
	handlerTimeout time.Duration
}

// CycleStats summarizes one orchestration cycle over a document.
type CycleStats struct {
	Processed int
	Completed int
	Failed    int
	Skipped   int
}

// New creates an Engine.
func New(cfg Config) *Engine {
	holderID := cfg.HolderID
	if holderID == "" {
		u := uuid.New().String()
		holderID = cfg.RunID + "-" + u[:8]
	}
	e := &Engine{
		locks:          cfg.Locks,
		handler:        cfg.Handler,
		bus:            cfg.Bus,
		tracker:        cfg.Tracker,
		runID:          cfg.RunID,
		holderID:       holderID,
		handlerTimeout: cfg.HandlerTimeout,
	}
	e.rules.Store(cfg.Rules)
	return e
}

// SetRules swaps the delegation table used for subsequent routing. Safe to
// call while cycles are running.
func (e *Engine) SetRules(t *router.Table) {
	e.rules.Store(t)
}

// RunCycle processes every pending task of docPath in ID order. A parse
// error of the document is fatal to the cycle; handler, lock, and write
// failures are contained per task.
func (e *Engine) RunCycle(ctx context.Context, docPath string) (CycleStats, error) {
	var stats CycleStats

	doc, err := e.readDocument(docPath)
	if err != nil {
		return stats, err
	}

	pending := doc.Pending()
	e.publish(events.CycleStartedPayload{Document: docPath, Pending: len(pending)})
	slog.Info("cycle started", "document", docPath, "pending", len(pending))

	for _, id := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := e.processTask(ctx, docPath, id, &stats); err != nil {
			// Structural failure that makes further progress on this
			// document meaningless (e.g. the document no longer parses).
			e.publish(events.CycleCompletedPayload{
				Document:  docPath,
				Processed: stats.Processed,
				Completed: stats.Completed,
				Failed:    stats.Failed,
				Skipped:   stats.Skipped,
			})
			return stats, err
		}
	}

	e.publish(events.CycleCompletedPayload{
		Document:  docPath,
		Processed: stats.Processed,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Skipped:   stats.Skipped,
	})
	slog.Info("cycle completed", "document", docPath,
		"processed", stats.Processed, "completed", stats.Completed,
		"failed", stats.Failed, "skipped", stats.Skipped)
	return stats, nil
}

// processTask runs one task through the full state machine. Returns an error
// only for failures that abort the whole cycle.
func (e *Engine) processTask(ctx context.Context, docPath, id string, stats *CycleStats) error {
	capability, started, err := e.markInProgress(ctx, docPath, id)
	if err != nil {
		return err
	}
	if !started {
		stats.Skipped++
		return nil
	}
	stats.Processed++

	result, handlerErr, elapsed := e.invokeHandler(ctx, docPath, id, capability)

	success := handlerErr == nil && result.Success
	if e.tracker != nil {
		e.tracker.RecordExecution(capability, elapsed, success)
	}

	if err := e.writeTerminal(ctx, docPath, id, capability, result, handlerErr, elapsed); err != nil {
		var perr *taskdoc.ParseError
		if errors.As(err, &perr) {
			return err
		}
		// Lock or write failure strands the task InProgress; recovery
		// resolves it on the next run. The cycle moves on.
		slog.Error("terminal write failed, leaving task in progress",
			"document", docPath, "task_id", id, "error", err)
		e.publish(events.TaskFailedPayload{
			TaskID:     id,
			Document:   docPath,
			Capability: capability,
			DurationMs: elapsed.Milliseconds(),
			Reason:     "terminal write failed: " + err.Error(),
		})
		stats.Failed++
		return nil
	}

	if success {
		stats.Completed++
	} else {
		stats.Failed++
	}
	return nil
}

// markInProgress durably records the InProgress transition before the
// handler is ever invoked, so a crash mid-handler leaves an accurate record.
// Returns the routed capability and whether the task was actually claimed.
func (e *Engine) markInProgress(ctx context.Context, docPath, id string) (string, bool, error) {
	lock, err := e.locks.Acquire(ctx, docPath, e.holderID)
	if err != nil {
		if errors.Is(err, lockfile.ErrLockTimeout) {
			slog.Warn("skipping task: document lock timeout", "document", docPath, "task_id", id, "error", err)
			return "", false, nil
		}
		return "", false, err
	}
	defer e.release(lock)

	doc, err := e.readDocument(docPath)
	if err != nil {
		return "", false, err
	}

	task, ok := doc.Task(id)
	if !ok || task.Status() != taskdoc.StatusPending {
		// Another writer got here first between cycles.
		return "", false, nil
	}

	capability, rule := e.rules.Load().Match(task.Description)
	pattern := ""
	if rule != nil {
		pattern = rule.Pattern
	}
	e.publish(events.TaskRoutedPayload{
		TaskID:     id,
		Document:   docPath,
		Capability: capability,
		Pattern:    pattern,
	})

	task.SetStatus(taskdoc.StatusInProgress)
	if err := e.writeDocument(docPath, doc); err != nil {
		slog.Error("skipping task: in-progress write failed", "document", docPath, "task_id", id, "error", err)
		return "", false, nil
	}

	e.publish(events.TaskStartedPayload{
		TaskID:      id,
		Document:    docPath,
		Capability:  capability,
		Description: task.Description,
	})
	return capability, true, nil
}

// invokeHandler runs the handler outside the lock, converting panics,
// timeouts, and cancellation into ordinary failures.
func (e *Engine) invokeHandler(ctx context.Context, docPath, id, capability string) (Result, error, time.Duration) {
	hctx := ctx
	if e.handlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, e.handlerTimeout)
		defer cancel()
	}

	doc, err := e.readDocument(docPath)
	description := ""
	if err == nil {
		if task, ok := doc.Task(id); ok {
			description = task.Description
		}
	}

	start := time.Now()
	result, handlerErr := e.safeExecute(hctx, Request{
		TaskID:      id,
		Description: description,
		Capability:  capability,
		Document:    docPath,
	})
	elapsed := time.Since(start)

	if handlerErr == nil && hctx.Err() != nil {
		handlerErr = hctx.Err()
	}
	return result, handlerErr, elapsed
}

// safeExecute shields the engine from handler panics.
func (e *Engine) safeExecute(ctx context.Context, req Request) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return e.handler.Execute(ctx, req)
}

// writeTerminal re-acquires the lock and records the task's terminal status.
// It runs even when the surrounding context was cancelled so the task never
// stays InProgress silently.
func (e *Engine) writeTerminal(ctx context.Context, docPath, id, capability string, result Result, handlerErr error, elapsed time.Duration) error {
	// The terminal write must land even if the cycle's context is gone.
	wctx := context.WithoutCancel(ctx)

	lock, err := e.locks.Acquire(wctx, docPath, e.holderID)
	if err != nil {
		return fmt.Errorf("terminal write for task %s: %w", id, err)
	}
	defer e.release(lock)

	doc, err := e.readDocument(docPath)
	if err != nil {
		return err
	}

	task, ok := doc.Task(id)
	if !ok {
		slog.Warn("task disappeared before terminal write", "document", docPath, "task_id", id)
		return nil
	}
	if task.Status() != taskdoc.StatusInProgress {
		slog.Warn("task no longer in progress, leaving as is",
			"document", docPath, "task_id", id, "status", task.Status().String())
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if handlerErr == nil && result.Success {
		task.SetStatus(taskdoc.StatusCompleted)
		task.SetMeta("Completed-at", now)
		if result.Notes != "" {
			task.SetMeta("Notes", result.Notes)
		}
	} else {
		reason := "handler reported failure"
		if handlerErr != nil {
			reason = handlerErr.Error()
		}
		task.SetStatus(taskdoc.StatusBlocked)
		task.SetMeta("Blocked-at", now)
		task.SetMeta("Error", reason)
	}
	applyMetadata(task, result.Metadata)

	if err := e.writeDocument(docPath, doc); err != nil {
		return fmt.Errorf("terminal write for task %s: %w", id, err)
	}

	if handlerErr == nil && result.Success {
		e.publish(events.TaskCompletedPayload{
			TaskID:     id,
			Document:   docPath,
			Capability: capability,
			DurationMs: elapsed.Milliseconds(),
			Notes:      result.Notes,
		})
	} else {
		reason := "handler reported failure"
		if handlerErr != nil {
			reason = handlerErr.Error()
		}
		slog.Warn("task blocked", "document", docPath, "task_id", id, "reason", reason)
		e.publish(events.TaskFailedPayload{
			TaskID:     id,
			Document:   docPath,
			Capability: capability,
			DurationMs: elapsed.Milliseconds(),
			Reason:     reason,
		})
	}
	return nil
}

// applyMetadata folds handler metadata into the task in sorted key order so
// repeated runs produce identical documents.
func applyMetadata(task *taskdoc.Task, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		task.SetMeta(k, metadata[k])
	}
}

func (e *Engine) readDocument(docPath string) (*taskdoc.Document, error) {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", docPath, err)
	}
	doc, err := taskdoc.Parse(string(data))
	if err != nil {
		e.publish(events.ParseFailedPayload{Document: docPath, Reason: err.Error()})
		return nil, fmt.Errorf("parse document %s: %w", docPath, err)
	}
	return doc, nil
}

func (e *Engine) writeDocument(docPath string, doc *taskdoc.Document) error {
	if err := atomicfile.Write(docPath, []byte(doc.Serialize())); err != nil {
		e.publish(events.WriteFailedPayload{Path: docPath, Reason: err.Error()})
		return err
	}
	return nil
}

func (e *Engine) release(lock *lockfile.Lock) {
	if err := e.locks.Release(lock); err != nil {
		slog.Error("release document lock", "resource", lock.Resource, "error", err)
	}
}

func (e *Engine) publish(payload events.EventPayload) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.NewTypedEventWithRun(events.SourceEngine, payload, e.runID))
}
