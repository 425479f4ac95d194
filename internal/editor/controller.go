// Package editor owns the open document: which file is current, whether it
// has unsaved edits, and how saves, node edits and push notifications flow
// back into the rendered mindmap.
package editor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/youruser/mmedit/internal/api"
	"github.com/youruser/mmedit/internal/config"
	"github.com/youruser/mmedit/internal/logging"
	"github.com/youruser/mmedit/internal/mindmap"
	"github.com/youruser/mmedit/internal/prefs"
	"github.com/youruser/mmedit/internal/push"
	"github.com/youruser/mmedit/internal/textedit"
)

var (
	ErrDiscardDeclined = errors.New("discard of unsaved changes declined")
	log                = logging.Get()
)

// DiscardPrompt is the question asked before dropping unsaved edits.
const DiscardPrompt = "You have unsaved changes. Discard?"

// RequirementsFile is the only file name node edits are written to.
const RequirementsFile = "requirements.md"

// Client is the subset of *api.Client the controller needs.
type Client interface {
	GetConfig(ctx context.Context) config.Mindmap
	ListFiles(ctx context.Context) ([]api.FileInfo, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	Tree(ctx context.Context) (*mindmap.Tree, error)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(msg string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(msg string) bool

func (f ConfirmFunc) Confirm(msg string) bool { return f(msg) }

// View receives editor presentation updates.
type View interface {
	Files(groups []Group)
	FileOpened(path, content string)
	// Buffer reports buffer text replaced from outside the editor widget.
	Buffer(text string)
	Dirty(dirty bool)
	Alert(msg string)
	Theme(theme mindmap.Theme)
}

// Cursor is the current file and whether the buffer differs from it.
type Cursor struct {
	CurrentPath string `json:"current_path"`
	Dirty       bool   `json:"dirty"`
}

// FileEntry is one file as shown in the file list.
type FileEntry struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
}

// Group is a module header and its files. The root group has an empty
// Module and no header.
type Group struct {
	Module string      `json:"module"`
	Files  []FileEntry `json:"files"`
}

// Controller coordinates the open document with the server and the mindmap.
type Controller struct {
	client  Client
	view    View
	mindmap *mindmap.View
	prefs   *prefs.Store

	mu     sync.Mutex
	files  []api.FileInfo
	cursor Cursor
	doc    textedit.Document

	// disconnected is set when the push channel drops and cleared by the
	// reload that follows the next connect.
	disconnected bool
}

// New creates a controller. store may be nil.
func New(client Client, view View, mv *mindmap.View, store *prefs.Store) *Controller {
	return &Controller{
		client:  client,
		view:    view,
		mindmap: mv,
		prefs:   store,
	}
}

// Init loads the display limits, the file list and the tree. The first
// render is fitted to the viewport; later redraws keep the user's zoom.
func (c *Controller) Init(ctx context.Context) error {
	c.mindmap.SetLimits(c.client.GetConfig(ctx))
	c.view.Theme(c.mindmap.Theme())

	if err := c.LoadFiles(ctx); err != nil {
		log.Error("Failed to load files: %v", err)
	}
	err := c.Reload(ctx, true)
	c.mindmap.DisableAutoFit()
	return err
}

// LoadFiles refreshes the known file list.
func (c *Controller) LoadFiles(ctx context.Context) error {
	files, err := c.client.ListFiles(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.files = files
	c.mu.Unlock()

	c.view.Files(GroupFiles(files))
	return nil
}

// Files returns the known files in server order.
func (c *Controller) Files() []api.FileInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.FileInfo(nil), c.files...)
}

// Groups returns the file list grouped by module.
func (c *Controller) Groups() []Group {
	return GroupFiles(c.Files())
}

// GroupFiles groups files by module in order of first appearance.
func GroupFiles(files []api.FileInfo) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, f := range files {
		i, ok := index[f.Module]
		if !ok {
			i = len(groups)
			index[f.Module] = i
			groups = append(groups, Group{Module: f.Module})
		}
		groups[i].Files = append(groups[i].Files, FileEntry{Path: f.Path, DisplayName: DisplayName(f)})
	}
	return groups
}

// DisplayName is the parent directory of a nested file, else its name.
func DisplayName(f api.FileInfo) string {
	parts := strings.Split(f.Path, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	if f.Name != "" {
		return f.Name
	}
	return path.Base(f.Path)
}

func (c *Controller) Cursor() Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Document returns the buffer and selection.
func (c *Controller) Document() textedit.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Text returns the buffer text.
func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Text
}

// SelectFile opens path. When the buffer is dirty confirm is asked first;
// a declined confirmation or a failed fetch leaves everything unchanged.
func (c *Controller) SelectFile(ctx context.Context, path string, confirm Confirmer) error {
	c.mu.Lock()
	dirty := c.cursor.Dirty
	c.mu.Unlock()

	if dirty && (confirm == nil || !confirm.Confirm(DiscardPrompt)) {
		return ErrDiscardDeclined
	}

	content, err := c.client.ReadFile(ctx, path)
	if err != nil {
		log.Error("Failed to load file %s: %v", path, err)
		return fmt.Errorf("failed to load file: %w", err)
	}
	c.mu.Lock()
	c.cursor = Cursor{CurrentPath: path}
	c.doc = textedit.Document{Text: content}
	c.mu.Unlock()

	c.view.FileOpened(path, content)
	c.view.Dirty(false)
	c.mindmap.Redraw()
	return nil
}

// Edit replaces the buffer with text typed by the user.
func (c *Controller) Edit(text string) {
	c.mu.Lock()
	c.doc.Text = text
	c.doc.Selection = c.doc.Selection.Clamp(len([]rune(text)))
	wasDirty := c.cursor.Dirty
	c.cursor.Dirty = true
	c.mu.Unlock()

	if !wasDirty {
		c.view.Dirty(true)
	}
}

func (c *Controller) SetSelection(sel textedit.Selection) {
	c.mu.Lock()
	c.doc.Selection = sel
	c.mu.Unlock()
}

// ReplaceText replaces the buffer on behalf of an AI suggestion. The buffer
// becomes dirty and the mindmap is redrawn.
func (c *Controller) ReplaceText(text string) {
	c.mu.Lock()
	c.doc.Text = text
	c.doc.Selection = textedit.Selection{}
	c.cursor.Dirty = true
	c.mu.Unlock()

	c.view.Buffer(text)
	c.view.Dirty(true)
	c.mindmap.Redraw()
}

// Save writes the buffer when a file is open and dirty, then reloads the
// whole tree. saved is false when there was nothing to save.
func (c *Controller) Save(ctx context.Context) (saved bool, err error) {
	c.mu.Lock()
	path := c.cursor.CurrentPath
	dirty := c.cursor.Dirty
	content := c.doc.Text
	c.mu.Unlock()

	if path == "" || !dirty {
		return false, nil
	}

	if err := c.client.WriteFile(ctx, path, content); err != nil {
		log.Error("Failed to save %s: %v", path, err)
		return false, fmt.Errorf("failed to save: %w", err)
	}
	c.mu.Lock()
	// An edit made while the write was in flight keeps the buffer dirty.
	if c.cursor.CurrentPath == path && c.doc.Text == content {
		c.cursor.Dirty = false
	}
	stillDirty := c.cursor.Dirty
	c.mu.Unlock()

	c.view.Dirty(stillDirty)
	log.Info("File saved: %s", path)

	if err := c.Reload(ctx, false); err != nil {
		log.Error("Reload after save failed: %v", err)
	}
	return true, nil
}

// Reload fetches the tree, flattens it and renders it. fit forces a fit to
// the viewport.
func (c *Controller) Reload(ctx context.Context, fit bool) error {
	tree, err := c.client.Tree(ctx)
	if err != nil {
		log.Error("Failed to load tree: %v", err)
		return err
	}
	c.mindmap.Render(mindmap.Flatten(tree), fit)
	return nil
}

// Refresh reloads the file list and the tree.
func (c *Controller) Refresh(ctx context.Context) error {
	if err := c.LoadFiles(ctx); err != nil {
		return err
	}
	return c.Reload(ctx, false)
}

// Fit fits the mindmap to the viewport.
func (c *Controller) Fit() {
	c.mindmap.Fit()
}

// EditNodeText rewrites a mindmap node's text in the first requirements
// file, by file-list order, that has a line containing oldText. Each file is
// read fresh from the server so changes made outside mmedit are kept. Only the
// first occurrence on that line changes. When nothing matches the edit is
// dropped and applied is false.
func (c *Controller) EditNodeText(ctx context.Context, oldText, newText string) (applied bool, err error) {
	newText = strings.TrimSpace(newText)
	if newText == "" || newText == oldText || oldText == "" {
		return false, nil
	}

	for _, f := range c.Files() {
		if f.Name != RequirementsFile {
			continue
		}

		content, err := c.client.ReadFile(ctx, f.Path)
		if err != nil {
			log.Error("Node edit: reading %s: %v", f.Path, err)
			continue
		}

		updated, line, ok := textedit.ReplaceInFirstLine(content, oldText, newText)
		if !ok {
			continue
		}

		if err := c.client.WriteFile(ctx, f.Path, updated); err != nil {
			log.Error("Node edit: writing %s: %v", f.Path, err)
			return false, err
		}
		log.Info("Updated %s line %d: %q -> %q", f.Path, line, oldText, newText)

		c.mu.Lock()
		current := c.cursor.CurrentPath == f.Path
		if current {
			c.doc.Text = updated
			c.doc.Selection = textedit.Selection{}
		}
		c.mu.Unlock()
		if current {
			c.view.Buffer(updated)
		}

		if err := c.Reload(ctx, false); err != nil {
			log.Error("Reload after node edit failed: %v", err)
		}
		return true, nil
	}

	log.Debug("Node edit dropped: no line contains %q", oldText)
	return false, nil
}

// HandlePush applies a notification from the push channel.
func (c *Controller) HandlePush(ctx context.Context, msg push.Message) {
	log.Push(msg.Type, msg.Path)

	switch msg.Type {
	case push.TypeFileUpdated:
		c.mu.Lock()
		refresh := msg.Path != "" && msg.Path == c.cursor.CurrentPath && !c.cursor.Dirty
		if refresh {
			c.doc.Text = msg.Content
			c.doc.Selection = c.doc.Selection.Clamp(len([]rune(msg.Content)))
		}
		c.mu.Unlock()

		if refresh {
			c.view.Buffer(msg.Content)
		}
		if err := c.Reload(ctx, false); err != nil {
			log.Error("Reload after push failed: %v", err)
		}
	case push.TypeSync:
		log.Debug("Received sync")
	case push.TypeUpdateSuccess:
		log.Debug("Update successful: %s", msg.Path)
	case push.TypeError:
		log.Error("Server error: %s", msg.Message)
		c.view.Alert("Error: " + msg.Message)
	default:
		log.Debug("Ignoring push message type %q", msg.Type)
	}
}

// HandleConnection reloads the tree when the push channel comes back after
// a drop, since file_updated messages sent meanwhile were missed.
func (c *Controller) HandleConnection(ctx context.Context, connected bool) {
	c.mu.Lock()
	reload := connected && c.disconnected
	c.disconnected = !connected
	c.mu.Unlock()

	if reload {
		if err := c.Reload(ctx, false); err != nil {
			log.Error("Reload after reconnect failed: %v", err)
		}
	}
}

// ToggleTheme flips the theme, stores the preference and redraws.
func (c *Controller) ToggleTheme() mindmap.Theme {
	theme := c.mindmap.ToggleTheme()
	if c.prefs != nil {
		if err := c.prefs.SetTheme(string(theme)); err != nil {
			log.Warn("Failed to save theme preference: %v", err)
		}
	}
	c.view.Theme(theme)
	return theme
}
