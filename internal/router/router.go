// Package router matches task descriptions against a static table of
// pattern rules to pick the capability that should handle them.
package router

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultCapability is returned when no rule matches. Absence of a match is
// the default-routing case, not an error.
const DefaultCapability = "generic"

// Rule is one delegation-table entry. Patterns are case-insensitive regular
// expressions matched anywhere in the description.
type Rule struct {
	Pattern    string `yaml:"pattern"`
	Capability string `yaml:"capability"`
	Priority   int    `yaml:"priority"`

	re *regexp.Regexp
}

// Table is an immutable, priority-ordered rule table.
type Table struct {
	rules []*Rule
}

// NewTable compiles rules and orders them by descending priority. Rules with
// equal priority keep their listed order, so the first listed wins ties.
func NewTable(rules []Rule) (*Table, error) {
	compiled := make([]*Rule, 0, len(rules))
	for i := range rules {
		r := rules[i]
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %d: empty pattern", i)
		}
		if r.Capability == "" {
			return nil, fmt.Errorf("rule %d (%q): empty capability", i, r.Pattern)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err)
		}
		r.re = re
		compiled = append(compiled, &r)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return &Table{rules: compiled}, nil
}

// Route returns the capability for a task description. Pure: same inputs,
// same answer, no side effects.
func (t *Table) Route(description string) string {
	capability, _ := t.Match(description)
	return capability
}

// Match is Route plus the winning rule (nil for the default case).
func (t *Table) Match(description string) (string, *Rule) {
	for _, r := range t.rules {
		if r.re.MatchString(description) {
			return r.Capability, r
		}
	}
	return DefaultCapability, nil
}

// Len returns the number of rules in the table.
func (t *Table) Len() int { return len(t.rules) }

// Rules returns the rules in evaluation order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = Rule{Pattern: r.Pattern, Capability: r.Capability, Priority: r.Priority}
	}
	return out
}
