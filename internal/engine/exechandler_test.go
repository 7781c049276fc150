package engine

import (
	"context"
	"strings"
	"testing"
)

func TestExecHandlerSuccess(t *testing.T) {
	h := &ExecHandler{
		Command: "sh",
		Args:    []string{"-c", `echo "handled $DROID_TASK_ID via $DROID_CAPABILITY"`},
	}

	result, err := h.Execute(context.Background(), Request{
		TaskID:     "1.1",
		Capability: "sec",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if result.Notes != "handled 1.1 via sec" {
		t.Errorf("notes = %q", result.Notes)
	}
}

func TestExecHandlerFailureCarriesStderr(t *testing.T) {
	h := &ExecHandler{
		Command: "sh",
		Args:    []string{"-c", "echo partial; echo broken >&2; exit 3"},
	}

	result, err := h.Execute(context.Background(), Request{TaskID: "1.1"})
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}
	if result.Success {
		t.Error("result must not report success")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should carry stderr, got %v", err)
	}
	if result.Notes != "partial" {
		t.Errorf("notes = %q", result.Notes)
	}
}

func TestExecHandlerNoCommand(t *testing.T) {
	h := &ExecHandler{}
	if _, err := h.Execute(context.Background(), Request{}); err == nil {
		t.Fatal("expected error when no command configured")
	}
}
