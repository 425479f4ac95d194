package mindmap

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Node is one mindmap node: a heading and the lines folded into it.
type Node struct {
	Depth    int      `json:"depth"`
	Title    string   `json:"title"`
	Lines    []string `json:"lines,omitempty"`
	Line     int      `json:"line"` // 1-based line of the heading in the source markdown
	Children []*Node  `json:"children,omitempty"`
}

// Text returns the node text as shown on the mindmap, lines separated by
// newlines. This is the text a click-to-edit starts from.
func (n *Node) Text() string {
	if len(n.Lines) == 0 {
		return n.Title
	}
	return n.Title + "\n" + strings.Join(n.Lines, "\n")
}

// Walk calls fn for n and every descendant, depth first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

var md = goldmark.New()

// Outline parses flattened markdown into its heading hierarchy. Headings nest
// under the closest preceding heading of a lower level; content outside
// headings is not part of the mindmap.
func Outline(markdown string) []*Node {
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	var roots []*Node
	var stack []*Node

	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		h, ok := child.(*ast.Heading)
		if !ok {
			continue
		}

		parts := headingLines(h, source)
		node := &Node{Depth: h.Level, Line: headingLine(h, source)}
		if len(parts) > 0 {
			node.Title = parts[0]
			node.Lines = parts[1:]
		}

		for len(stack) > 0 && stack[len(stack)-1].Depth >= node.Depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
	}

	return roots
}

// headingLines extracts the heading's inline text, splitting at <br>.
func headingLines(h *ast.Heading, source []byte) []string {
	var lines []string
	var cur strings.Builder

	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch v := c.(type) {
			case *ast.Text:
				cur.Write(v.Segment.Value(source))
				if v.SoftLineBreak() || v.HardLineBreak() {
					cur.WriteByte(' ')
				}
			case *ast.String:
				cur.Write(v.Value)
			case *ast.RawHTML:
				var raw bytes.Buffer
				for i := 0; i < v.Segments.Len(); i++ {
					seg := v.Segments.At(i)
					raw.Write(seg.Value(source))
				}
				if isLineBreakTag(raw.String()) {
					lines = append(lines, strings.TrimSpace(cur.String()))
					cur.Reset()
				} else {
					cur.Write(raw.Bytes())
				}
			case *ast.AutoLink:
				cur.Write(v.Label(source))
			default:
				walk(c)
			}
		}
	}
	walk(h)

	lines = append(lines, strings.TrimSpace(cur.String()))
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

func isLineBreakTag(tag string) bool {
	switch strings.ToLower(strings.ReplaceAll(tag, " ", "")) {
	case "<br>", "<br/>":
		return true
	}
	return false
}

func headingLine(h *ast.Heading, source []byte) int {
	if h.Lines().Len() == 0 {
		return 0
	}
	offset := h.Lines().At(0).Start
	return bytes.Count(source[:offset], []byte{'\n'}) + 1
}
