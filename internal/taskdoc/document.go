package taskdoc

import (
	"sort"
	"strconv"
	"strings"
)

// MetaEntry is one structured metadata key/value pair under a task.
type MetaEntry struct {
	Key   string
	Value string
}

// childLine is a sub-bullet beneath a task line. Structured children match
// `- **Key**: value` and can be updated programmatically; everything else is
// preserved verbatim.
type childLine struct {
	raw        string
	indent     string
	key        string
	value      string
	structured bool
}

func (c *childLine) render() {
	c.raw = c.indent + "- **" + c.key + "**: " + c.value
}

// Task is a single checkbox line plus its sub-bullets.
type Task struct {
	ID          string
	Description string

	status   Status
	raw      string // original task line, marker substituted in place on mutation
	line     int    // 1-based line number in the source document
	indent   string
	children []*childLine
}

// Status returns the task's current status.
func (t *Task) Status() Status { return t.status }

// Line returns the 1-based source line number of the task line.
func (t *Task) Line() int { return t.line }

// SetStatus replaces only the marker glyph inside the checkbox brackets,
// leaving every other byte of the line untouched.
func (t *Task) SetStatus(s Status) {
	i := strings.IndexByte(t.raw, '[')
	if i < 0 || i+1 >= len(t.raw) {
		return
	}
	t.raw = t.raw[:i+1] + string(s.Marker()) + t.raw[i+2:]
	t.status = s
}

// Meta returns the value of a structured metadata entry.
func (t *Task) Meta(key string) (string, bool) {
	for _, c := range t.children {
		if c.structured && c.key == key {
			return c.value, true
		}
	}
	return "", false
}

// SetMeta updates an existing structured entry in place or appends a new one
// after the task's last sub-bullet. Insertion order is preserved across
// serialization round-trips.
func (t *Task) SetMeta(key, value string) {
	for _, c := range t.children {
		if c.structured && c.key == key {
			c.value = value
			c.render()
			return
		}
	}

	indent := t.indent + "  "
	if len(t.children) > 0 {
		indent = t.children[len(t.children)-1].indent
	}
	c := &childLine{indent: indent, key: key, value: value, structured: true}
	c.render()
	t.children = append(t.children, c)
}

// MetaEntries returns all structured metadata entries in document order.
func (t *Task) MetaEntries() []MetaEntry {
	var entries []MetaEntry
	for _, c := range t.children {
		if c.structured {
			entries = append(entries, MetaEntry{Key: c.key, Value: c.value})
		}
	}
	return entries
}

// block is one source line: either an opaque raw line or a task line (whose
// children are rendered with it).
type block struct {
	raw  string
	task *Task
}

// Document is an ordered sequence of tasks interleaved with preamble and
// trailing prose that round-trips verbatim.
type Document struct {
	blocks []block
	tasks  []*Task
	index  map[string]*Task
}

// Tasks returns all tasks in document order.
func (d *Document) Tasks() []*Task { return d.tasks }

// Task looks up a task by ID.
func (d *Document) Task(id string) (*Task, bool) {
	t, ok := d.index[id]
	return t, ok
}

// Pending returns the IDs of all pending tasks sorted by CompareIDs.
func (d *Document) Pending() []string {
	var ids []string
	for _, t := range d.tasks {
		if t.status == StatusPending {
			ids = append(ids, t.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })
	return ids
}

// CountByStatus returns the number of tasks per status.
func (d *Document) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for _, t := range d.tasks {
		counts[t.status]++
	}
	return counts
}

// Serialize renders the document back to text. For an unmodified document
// this is the exact inverse of Parse.
func (d *Document) Serialize() string {
	var b strings.Builder
	for i, blk := range d.blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		if blk.task == nil {
			b.WriteString(blk.raw)
			continue
		}
		b.WriteString(blk.task.raw)
		for _, c := range blk.task.children {
			b.WriteByte('\n')
			b.WriteString(c.raw)
		}
	}
	return b.String()
}

// CompareIDs orders hierarchical dotted IDs numerically segment by segment,
// so "1.2" < "1.10" and "1" < "1.1".
func CompareIDs(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
			continue
		}
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}
