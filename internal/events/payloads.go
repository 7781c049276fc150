package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS
// =============================================================================

type TaskRoutedPayload struct {
	TaskID     string `json:"task_id"`
	Document   string `json:"document"`
	Capability string `json:"capability"`
	Pattern    string `json:"pattern,omitempty"`
}

func (TaskRoutedPayload) EventType() EventType { return EventTaskRouted }

type TaskStartedPayload struct {
	TaskID      string `json:"task_id"`
	Document    string `json:"document"`
	Capability  string `json:"capability"`
	Description string `json:"description,omitempty"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

type TaskCompletedPayload struct {
	TaskID     string `json:"task_id"`
	Document   string `json:"document"`
	Capability string `json:"capability"`
	DurationMs int64  `json:"duration_ms"`
	Notes      string `json:"notes,omitempty"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	TaskID     string `json:"task_id"`
	Document   string `json:"document"`
	Capability string `json:"capability"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

type TaskRecoveredPayload struct {
	TaskID   string `json:"task_id"`
	Document string `json:"document"`
}

func (TaskRecoveredPayload) EventType() EventType { return EventTaskRecovered }

// =============================================================================
// LOCK EVENTS
// =============================================================================

type LockAcquiredPayload struct {
	Resource string `json:"resource"`
	HolderID string `json:"holder_id"`
	WaitedMs int64  `json:"waited_ms"`
}

func (LockAcquiredPayload) EventType() EventType { return EventLockAcquired }

type LockReleasedPayload struct {
	Resource string `json:"resource"`
	HolderID string `json:"holder_id"`
}

func (LockReleasedPayload) EventType() EventType { return EventLockReleased }

type LockReleaseDeniedPayload struct {
	Resource      string `json:"resource"`
	HolderID      string `json:"holder_id"`
	CurrentHolder string `json:"current_holder,omitempty"`
}

func (LockReleaseDeniedPayload) EventType() EventType { return EventLockReleaseDenied }

type LockStaleReclaimedPayload struct {
	Resource       string `json:"resource"`
	PreviousHolder string `json:"previous_holder,omitempty"`
	AgeSeconds     int64  `json:"age_seconds"`
}

func (LockStaleReclaimedPayload) EventType() EventType { return EventLockStaleReclaimed }

type LockTimeoutPayload struct {
	Resource      string `json:"resource"`
	HolderID      string `json:"holder_id"`
	CurrentHolder string `json:"current_holder,omitempty"`
	WaitedMs      int64  `json:"waited_ms"`
}

func (LockTimeoutPayload) EventType() EventType { return EventLockTimeout }

// =============================================================================
// FAILURE EVENTS
// =============================================================================

type WriteFailedPayload struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (WriteFailedPayload) EventType() EventType { return EventWriteFailed }

type ParseFailedPayload struct {
	Document string `json:"document"`
	Reason   string `json:"reason"`
}

func (ParseFailedPayload) EventType() EventType { return EventParseFailed }

// =============================================================================
// CYCLE EVENTS
// =============================================================================

type CycleStartedPayload struct {
	Document string `json:"document"`
	Pending  int    `json:"pending"`
}

func (CycleStartedPayload) EventType() EventType { return EventCycleStarted }

type CycleCompletedPayload struct {
	Document  string `json:"document"`
	Processed int    `json:"processed"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

func (CycleCompletedPayload) EventType() EventType { return EventCycleCompleted }

type ScheduleTriggeredPayload struct {
	EntryID  string `json:"entry_id"`
	Document string `json:"document"`
	Trigger  string `json:"trigger"` // "cron" or "interval"
}

func (ScheduleTriggeredPayload) EventType() EventType { return EventScheduleTriggered }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithRun(source EventSource, payload EventPayload, runID string) Event {
	return Event{
		ID:        generateEventID(),
		RunID:     runID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes an event's payload map back into a typed payload.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	if result.EventType() != e.Type {
		return result, false
	}
	return result, true
}
