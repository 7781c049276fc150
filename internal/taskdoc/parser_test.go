package taskdoc

import (
	"errors"
	"strings"
	"testing"
)

const sampleDoc = `# Sprint 12

Some preamble prose that must never change.

- [ ] 1.1 Fix login bug
  - **File**: auth/login.go
  - **Priority**: high
  - free-form note kept verbatim
- [~] 1.2 Add integration test
- [x] 2.1 Update changelog
  - **Completed-at**: 2025-01-02T10:00:00Z
- [!] 2.2 Migrate database

Trailing section.
`

func TestParseBasic(t *testing.T) {
	doc, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tasks := doc.Tasks()
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}

	want := []struct {
		id     string
		status Status
		desc   string
	}{
		{"1.1", StatusPending, "Fix login bug"},
		{"1.2", StatusInProgress, "Add integration test"},
		{"2.1", StatusCompleted, "Update changelog"},
		{"2.2", StatusBlocked, "Migrate database"},
	}
	for i, w := range want {
		if tasks[i].ID != w.id {
			t.Errorf("task %d: id = %q, want %q", i, tasks[i].ID, w.id)
		}
		if tasks[i].Status() != w.status {
			t.Errorf("task %d: status = %v, want %v", i, tasks[i].Status(), w.status)
		}
		if tasks[i].Description != w.desc {
			t.Errorf("task %d: description = %q, want %q", i, tasks[i].Description, w.desc)
		}
	}
}

func TestParseStructuredMetadata(t *testing.T) {
	doc, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	task, ok := doc.Task("1.1")
	if !ok {
		t.Fatal("task 1.1 not found")
	}

	if v, ok := task.Meta("File"); !ok || v != "auth/login.go" {
		t.Errorf("File = %q, %v", v, ok)
	}
	if v, ok := task.Meta("Priority"); !ok || v != "high" {
		t.Errorf("Priority = %q, %v", v, ok)
	}
	if _, ok := task.Meta("Missing"); ok {
		t.Error("unexpected Missing entry")
	}

	entries := task.MetaEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 structured entries, got %d", len(entries))
	}
	if entries[0].Key != "File" || entries[1].Key != "Priority" {
		t.Errorf("entry order = %v", entries)
	}
}

func TestRoundTrip(t *testing.T) {
	doc, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	out := doc.Serialize()
	if out != sampleDoc {
		t.Errorf("serialize is not the inverse of parse:\n--- got ---\n%s\n--- want ---\n%s", out, sampleDoc)
	}

	// Structural equality after a second pass.
	doc2, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if doc2.Serialize() != out {
		t.Error("second round trip diverged")
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"bad marker", "- [?] 1.1 Something\n"},
		{"malformed id", "- [ ] one.two Something\n"},
		{"duplicate id", "- [ ] 1.1 A\n- [ ] 1.1 B\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.text)
			if err == nil {
				t.Fatal("expected ParseError")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Line == 0 {
				t.Error("ParseError missing line number")
			}
		})
	}
}

func TestUnrecognizedLinesPreserved(t *testing.T) {
	text := "random prose\n- [an ordinary](markdown) link bullet\n- [ ] 1.1 Real task\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Tasks()) != 1 {
		t.Fatalf("expected 1 task, got %d", len(doc.Tasks()))
	}
	if doc.Serialize() != text {
		t.Error("non-task lines altered")
	}
}

func TestMutationIsolation(t *testing.T) {
	doc, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	task, _ := doc.Task("1.2")
	task.SetStatus(StatusCompleted)

	got := strings.Split(doc.Serialize(), "\n")
	want := strings.Split(sampleDoc, "\n")
	if len(got) != len(want) {
		t.Fatalf("line count changed: %d vs %d", len(got), len(want))
	}
	for i := range want {
		if i == task.Line()-1 {
			if got[i] != "- [x] 1.2 Add integration test" {
				t.Errorf("mutated line = %q", got[i])
			}
			continue
		}
		if got[i] != want[i] {
			t.Errorf("line %d changed: %q -> %q", i+1, want[i], got[i])
		}
	}
}

func TestSetMetaUpdateInPlace(t *testing.T) {
	doc, _ := Parse(sampleDoc)
	task, _ := doc.Task("1.1")

	task.SetMeta("Priority", "low")

	if !strings.Contains(doc.Serialize(), "  - **Priority**: low") {
		t.Error("Priority not updated in place")
	}
	entries := task.MetaEntries()
	if entries[1].Key != "Priority" || entries[1].Value != "low" {
		t.Errorf("entry order not preserved on update: %v", entries)
	}
}

func TestSetMetaAppendsNewEntry(t *testing.T) {
	doc, _ := Parse("- [ ] 1.1 Solo task\n")
	task, _ := doc.Task("1.1")

	task.SetMeta("Error", "handler exploded")

	want := "- [ ] 1.1 Solo task\n  - **Error**: handler exploded\n"
	if doc.Serialize() != want {
		t.Errorf("got:\n%s\nwant:\n%s", doc.Serialize(), want)
	}
}

func TestPendingSortedByID(t *testing.T) {
	text := "- [ ] 2.1 B\n- [ ] 1.10 C\n- [ ] 1.2 A\n- [x] 1.1 Done\n"
	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := doc.Pending()
	want := []string{"1.2", "1.10", "2.1"}
	if len(got) != len(want) {
		t.Fatalf("pending = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pending[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCompareIDs(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"1.2", "1.10", -1},
		{"1", "1.1", -1},
		{"2.1", "2.1", 0},
		{"10", "9", 1},
	}
	for _, tc := range cases {
		if got := CompareIDs(tc.a, tc.b); got != tc.want {
			t.Errorf("CompareIDs(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestStatusMarkerMapping(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInProgress, StatusCompleted, StatusBlocked} {
		back, ok := StatusForMarker(s.Marker())
		if !ok || back != s {
			t.Errorf("marker mapping not bidirectional for %v", s)
		}
	}
	if _, ok := StatusForMarker('?'); ok {
		t.Error("unknown marker should not map")
	}
}
