// Package taskdoc parses and serializes checkbox-style task documents.
// Parsing and re-serializing an unmodified document reproduces it byte for
// byte; mutating one task never alters the serialized form of any other line.
package taskdoc

// Status is the lifecycle state of a task.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusCompleted
	StatusBlocked
)

// markerTable is the closed bidirectional mapping between statuses and the
// glyphs used inside checkbox brackets.
var markerTable = [...]byte{
	StatusPending:    ' ',
	StatusInProgress: '~',
	StatusCompleted:  'x',
	StatusBlocked:    '!',
}

// Marker returns the checkbox glyph for the status.
func (s Status) Marker() byte {
	if s < 0 || int(s) >= len(markerTable) {
		return '?'
	}
	return markerTable[s]
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// StatusForMarker maps a checkbox glyph back to its status.
func StatusForMarker(marker byte) (Status, bool) {
	for s, m := range markerTable {
		if m == marker {
			return Status(s), true
		}
	}
	return 0, false
}
