package main

import (
	"github.com/youruser/mmedit/internal/editor"
	"github.com/youruser/mmedit/internal/mindmap"
	"github.com/youruser/mmedit/internal/session"
)

// events turns controller, mindmap and session callbacks into unsolicited
// protocol events. The frontend draws the mindmap from "render" events.
type events struct {
	s *server
}

var (
	_ mindmap.Renderer   = (*events)(nil)
	_ editor.View        = (*events)(nil)
	_ session.AssistView = (*events)(nil)
	_ session.ChatView   = (*events)(nil)
)

func (e *events) emit(data map[string]any) {
	e.s.respond("", data)
}

// drawnNode is a mindmap node with its colour resolved for the theme.
type drawnNode struct {
	Title    string      `json:"title"`
	Lines    []string    `json:"lines,omitempty"`
	Line     int         `json:"line"`
	Color    string      `json:"color"`
	Children []drawnNode `json:"children,omitempty"`
}

func drawNodes(nodes []*mindmap.Node, theme mindmap.Theme, depth int) []drawnNode {
	out := make([]drawnNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, drawnNode{
			Title:    n.Title,
			Lines:    n.Lines,
			Line:     n.Line,
			Color:    mindmap.NodeColor(theme, depth),
			Children: drawNodes(n.Children, theme, depth+1),
		})
	}
	return out
}

func (e *events) Draw(nodes []*mindmap.Node, theme mindmap.Theme) {
	e.emit(map[string]any{"type": "render", "theme": string(theme), "nodes": drawNodes(nodes, theme, 0)})
}

func (e *events) Fit() {
	e.emit(map[string]any{"type": "fit"})
}

func (e *events) Files(groups []editor.Group) {
	e.emit(map[string]any{"type": "files", "groups": groups})
}

func (e *events) FileOpened(path, content string) {
	e.emit(map[string]any{"type": "file_opened", "path": path, "content": content})
}

func (e *events) Buffer(text string) {
	e.emit(map[string]any{"type": "buffer", "content": text})
}

func (e *events) Dirty(dirty bool) {
	e.emit(map[string]any{"type": "dirty", "dirty": dirty})
}

func (e *events) Alert(msg string) {
	e.emit(map[string]any{"type": "alert", "message": msg})
}

func (e *events) Theme(theme mindmap.Theme) {
	e.emit(map[string]any{"type": "theme", "theme": string(theme)})
}

func (e *events) AssistState(state session.AssistState, busy bool) {
	e.emit(map[string]any{"type": "assist_state", "state": state.String(), "busy": busy})
}

func (e *events) AssistText(text string) {
	e.emit(map[string]any{"type": "assist_text", "text": text})
}

func (e *events) AssistError(msg string) {
	e.emit(map[string]any{"type": "assist_error", "message": msg})
}

func (e *events) AssistPlaceholder(msg string) {
	e.emit(map[string]any{"type": "assist_text", "text": msg, "placeholder": true})
}

func (e *events) AssistEstimate(tokens int) {
	e.emit(map[string]any{"type": "assist_estimate", "tokens": tokens})
}

func (e *events) ChatEntry(i int, entry session.Entry) {
	e.emit(map[string]any{"type": "chat_entry", "index": i, "kind": string(entry.Kind), "content": entry.Content})
}

func (e *events) ChatEntryUpdate(i int, entry session.Entry) {
	e.emit(map[string]any{"type": "chat_entry_update", "index": i, "content": entry.Content})
}

func (e *events) ChatTyping(on bool) {
	e.emit(map[string]any{"type": "chat_typing", "typing": on})
}

func (e *events) ChatBusy(on bool) {
	e.emit(map[string]any{"type": "chat_busy", "busy": on})
}

func (e *events) ChatInputCleared() {
	e.emit(map[string]any{"type": "chat_input_cleared"})
}
