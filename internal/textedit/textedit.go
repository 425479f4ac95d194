// Package textedit holds the buffer edits the editor applies: replacing a
// selection, appending an AI suggestion block and the single-line
// replacement behind mindmap node edits.
package textedit

import (
	"strings"
	"unicode/utf8"
)

// SuggestionHeader separates an appended AI suggestion from the document.
const SuggestionHeader = "\n\n---\n\n## AI 建議\n\n"

// Selection is a half-open rune range [Start, End) in a buffer.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether the selection covers no text.
func (s Selection) Empty() bool {
	return s.Start == s.End
}

// Clamp orders the bounds and limits them to a buffer of n runes.
func (s Selection) Clamp(n int) Selection {
	if s.Start > s.End {
		s.Start, s.End = s.End, s.Start
	}
	s.Start = min(max(s.Start, 0), n)
	s.End = min(max(s.End, 0), n)
	return s
}

// Document is a buffer and its current selection.
type Document struct {
	Text      string
	Selection Selection
}

// SelectedText returns the selected runes, or "" for an empty selection.
func (d Document) SelectedText() string {
	sel := d.Selection.Clamp(utf8.RuneCountInString(d.Text))
	if sel.Empty() {
		return ""
	}
	r := []rune(d.Text)
	return string(r[sel.Start:sel.End])
}

// ReplaceSelection replaces the runes covered by sel with repl.
func ReplaceSelection(text string, sel Selection, repl string) string {
	r := []rune(text)
	sel = sel.Clamp(len(r))
	var b strings.Builder
	b.Grow(len(text) + len(repl))
	b.WriteString(string(r[:sel.Start]))
	b.WriteString(repl)
	b.WriteString(string(r[sel.End:]))
	return b.String()
}

// AppendSuggestion appends suggestion to text under the AI suggestion header.
func AppendSuggestion(text, suggestion string) string {
	return text + SuggestionHeader + suggestion
}

// ApplySuggestion replaces sel when it is non-empty, otherwise appends a
// suggestion block.
func ApplySuggestion(text string, sel Selection, suggestion string) string {
	if sel.Clamp(utf8.RuneCountInString(text)).Empty() {
		return AppendSuggestion(text, suggestion)
	}
	return ReplaceSelection(text, sel, suggestion)
}

// ReplaceInFirstLine finds the first line containing old and replaces the
// first occurrence on that line only. line is 1-based; ok is false when no
// line contains old. Line endings are preserved as they were.
func ReplaceInFirstLine(content, old, repl string) (out string, line int, ok bool) {
	if old == "" {
		return content, 0, false
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		if strings.Contains(l, old) {
			lines[i] = strings.Replace(l, old, repl, 1)
			return strings.Join(lines, "\n"), i + 1, true
		}
	}
	return content, 0, false
}
