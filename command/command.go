// Package command decides whether a transcript is a voice command or dictation.
//
// Matching is literal, case-sensitive substring matching against the raw
// transcript. There is no tokenization, so a keyword can over-match inside a
// longer word ("listen" matches "listener"). Tables are priority lists: the
// first command in registration order whose rule matches wins, so compound
// commands must be registered before the bare commands they contain.
package command

import "strings"

// Rule is a keyword rule: OR across alternatives, AND within an alternative.
type Rule struct {
	alternatives [][]string
}

// AllOf returns a rule that matches when every keyword is a substring of the transcript.
func AllOf(keywords ...string) Rule {
	return Rule{alternatives: [][]string{clone(keywords)}}
}

// AnyOf returns a rule that matches when at least one keyword set fully matches.
func AnyOf(sets ...[]string) Rule {
	alts := make([][]string, len(sets))
	for i, s := range sets {
		alts[i] = clone(s)
	}
	return Rule{alternatives: alts}
}

// Matches reports whether the transcript satisfies the rule.
// An alternative with no keywords matches any transcript.
func (r Rule) Matches(transcript string) bool {
	for _, alt := range r.alternatives {
		if containsAll(transcript, alt) {
			return true
		}
	}
	return false
}

func containsAll(transcript string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(transcript, k) {
			return false
		}
	}
	return true
}

func clone(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Action is a side-effecting procedure run with the raw transcript.
type Action func(transcript string)

// Command is one entry of a command table.
type Command struct {
	Name   string
	Rule   Rule
	Action Action
}

// Table is an immutable, ordered command table.
type Table struct {
	commands []Command
}

// NewTable builds a table. Registration order is match priority.
func NewTable(commands ...Command) *Table {
	t := &Table{commands: make([]Command, len(commands))}
	copy(t.commands, commands)
	return t
}

// Match returns the first command whose rule is satisfied by transcript.
func (t *Table) Match(transcript string) (Command, bool) {
	for _, c := range t.commands {
		if c.Rule.Matches(transcript) {
			return c, true
		}
	}
	return Command{}, false
}

// Names returns the command names in priority order.
func (t *Table) Names() []string {
	names := make([]string, len(t.commands))
	for i, c := range t.commands {
		names[i] = c.Name
	}
	return names
}
