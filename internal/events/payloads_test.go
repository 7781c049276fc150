package events

import "testing"

func TestNewTypedEvent(t *testing.T) {
	evt := NewTypedEvent(SourceLock, LockStaleReclaimedPayload{
		Resource:       "docs/tasks.md",
		PreviousHolder: "r-20250101-0000-abc123",
		AgeSeconds:     420,
	})

	if evt.Type != EventLockStaleReclaimed {
		t.Errorf("expected %s, got %s", EventLockStaleReclaimed, evt.Type)
	}
	if evt.Payload["resource"] != "docs/tasks.md" {
		t.Errorf("payload resource = %v", evt.Payload["resource"])
	}
	if evt.ID == "" {
		t.Error("expected generated event ID")
	}
}

func TestNewTypedEventWithRun(t *testing.T) {
	evt := NewTypedEventWithRun(SourceEngine, TaskFailedPayload{
		TaskID: "2.1",
		Reason: "handler exited with status 1",
	}, "r-test")

	if evt.RunID != "r-test" {
		t.Errorf("expected run ID r-test, got %s", evt.RunID)
	}
}

func TestExtractPayload(t *testing.T) {
	orig := TaskCompletedPayload{
		TaskID:     "1.2",
		Document:   "tasks.md",
		Capability: "sec",
		DurationMs: 1500,
		Notes:      "done",
	}
	evt := NewTypedEvent(SourceEngine, orig)

	got, ok := ExtractPayload[TaskCompletedPayload](evt)
	if !ok {
		t.Fatal("extract failed")
	}
	if got != orig {
		t.Errorf("got %+v, want %+v", got, orig)
	}
}

func TestExtractPayloadTypeMismatch(t *testing.T) {
	evt := NewTypedEvent(SourceEngine, TaskStartedPayload{TaskID: "1.1"})

	if _, ok := ExtractPayload[TaskCompletedPayload](evt); ok {
		t.Error("expected type mismatch to fail extraction")
	}
}
