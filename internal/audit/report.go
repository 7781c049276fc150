package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Record is one decoded audit log line. Unknown fields are preserved so the
// reader stays forward compatible with newer writers.
type Record map[string]any

// Str returns a string field, empty when absent or of another type.
func (r Record) Str(key string) string {
	s, _ := r[key].(string)
	return s
}

// ReadLog reads every record from an NDJSON audit log. Corrupt lines are
// skipped; a missing file yields no records.
func ReadLog(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

// Failure is one task.failed record in a report.
type Failure struct {
	Timestamp string `json:"timestamp"`
	TaskID    string `json:"task_id"`
	Document  string `json:"document"`
	Reason    string `json:"reason"`
}

// Report summarizes an audit log.
type Report struct {
	Total        int                         `json:"total"`
	ByEvent      map[string]int              `json:"by_event"`
	Capabilities map[string]*CapabilityStats `json:"capabilities"`
	Failures     []Failure                   `json:"failures,omitempty"`
	First        string                      `json:"first,omitempty"` // timestamp of the first record
	Last         string                      `json:"last,omitempty"`  // timestamp of the last record
}

// maxReportFailures caps the failure list at the most recent entries.
const maxReportFailures = 20

// BuildReport aggregates records into event counts, per-capability stats,
// and the most recent failures.
func BuildReport(records []Record) *Report {
	r := &Report{
		ByEvent:      make(map[string]int),
		Capabilities: make(map[string]*CapabilityStats),
	}

	for _, rec := range records {
		event := rec.Str("event")
		if event == "" {
			continue
		}
		r.Total++
		r.ByEvent[event]++

		if ts := rec.Str("timestamp"); ts != "" {
			if r.First == "" {
				r.First = ts
			}
			r.Last = ts
		}

		switch event {
		case "task.completed", "task.failed":
			capability := rec.Str("capability")
			if capability == "" {
				capability = "unknown"
			}
			s, ok := r.Capabilities[capability]
			if !ok {
				s = &CapabilityStats{}
				r.Capabilities[capability] = s
			}
			s.Executions++
			if ms, ok := rec["duration_ms"].(float64); ok {
				s.TotalDuration += time.Duration(ms) * time.Millisecond
			}
			if event == "task.completed" {
				s.Succeeded++
			} else {
				s.Failed++
				r.Failures = append(r.Failures, Failure{
					Timestamp: rec.Str("timestamp"),
					TaskID:    rec.Str("task_id"),
					Document:  rec.Str("document"),
					Reason:    rec.Str("reason"),
				})
			}
		}
	}

	if len(r.Failures) > maxReportFailures {
		r.Failures = r.Failures[len(r.Failures)-maxReportFailures:]
	}
	return r
}
