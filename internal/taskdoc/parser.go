package taskdoc

import (
	"fmt"
	"regexp"
	"strings"
)

// taskLineRe matches checkbox-style task lines: `- [<marker>] <id> <description>`.
// Marker and ID validity are checked separately so malformed variants produce
// a ParseError instead of silently becoming preamble.
var taskLineRe = regexp.MustCompile(`^(\s*)- \[(.)\] (\S+)(?: (.*))?$`)

// metaLineRe matches structured metadata sub-bullets: `- **Key**: value`.
var metaLineRe = regexp.MustCompile(`^(\s*)- \*\*([^*]+)\*\*: ?(.*)$`)

// taskIDRe validates hierarchical dotted-numeric IDs like "1" or "2.3.1".
var taskIDRe = regexp.MustCompile(`^\d+(\.\d+)*$`)

// ParseError reports a malformed task line. The parse is fatal: no partial
// document is returned.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Parse reads a task document. Checkbox-style lines with an unrecognized
// marker glyph, a malformed ID, or a duplicate ID fail with a ParseError;
// everything else is preserved as opaque preamble or trailing content.
func Parse(text string) (*Document, error) {
	doc := &Document{index: make(map[string]*Task)}

	var current *Task
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lineNo := i + 1

		if m := taskLineRe.FindStringSubmatch(line); m != nil {
			indent, marker, id, desc := m[1], m[2], m[3], m[4]

			status, ok := StatusForMarker(marker[0])
			if !ok {
				return nil, &ParseError{Line: lineNo, Text: line, Reason: fmt.Sprintf("unrecognized status marker %q", marker)}
			}
			if !taskIDRe.MatchString(id) {
				return nil, &ParseError{Line: lineNo, Text: line, Reason: fmt.Sprintf("malformed task id %q", id)}
			}
			if _, exists := doc.index[id]; exists {
				return nil, &ParseError{Line: lineNo, Text: line, Reason: fmt.Sprintf("duplicate task id %q", id)}
			}

			t := &Task{
				ID:          id,
				Description: desc,
				status:      status,
				raw:         line,
				line:        lineNo,
				indent:      indent,
			}
			doc.blocks = append(doc.blocks, block{task: t})
			doc.tasks = append(doc.tasks, t)
			doc.index[id] = t
			current = t
			continue
		}

		if current != nil {
			if indent, ok := childIndent(line, current.indent); ok {
				c := &childLine{raw: line, indent: indent}
				if m := metaLineRe.FindStringSubmatch(line); m != nil {
					c.key = m[2]
					c.value = m[3]
					c.structured = true
				}
				current.children = append(current.children, c)
				continue
			}
		}

		current = nil
		doc.blocks = append(doc.blocks, block{raw: line})
	}

	return doc, nil
}

// childIndent reports whether line is a sub-bullet belonging to a task with
// the given indent (a dash bullet indented strictly deeper), returning the
// sub-bullet's own indentation.
func childIndent(line, taskIndent string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "- ") && trimmed != "-" {
		return "", false
	}
	indent := line[:len(line)-len(trimmed)]
	if len(indent) <= len(taskIndent) {
		return "", false
	}
	return indent, true
}
