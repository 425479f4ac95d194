// Package session holds the AI assist and agent chat state machines. Each
// session is an explicit instance owned by the caller; both read their
// responses through the shared stream parser in package sse.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/youruser/mmedit/internal/api"
	"github.com/youruser/mmedit/internal/logging"
	"github.com/youruser/mmedit/internal/sse"
	"github.com/youruser/mmedit/internal/textedit"
	"github.com/youruser/mmedit/internal/tokens"
)

var (
	ErrEmptyContent   = errors.New("no content to analyse")
	ErrEmptyPrompt    = errors.New("custom prompt is empty")
	ErrUnavailable    = errors.New("AI is not available")
	ErrNothingToApply = errors.New("no completed AI response")
	log               = logging.Get()
)

// Placeholder shown when neither a selection nor a document is available.
const EmptyContentPlaceholder = "請先選取要分析的文字，或開啟一個檔案"

// ActionCustom is the assist action that sends a free-form prompt.
const ActionCustom = "custom"

type AssistState int

const (
	AssistIdle AssistState = iota
	AssistSending
	AssistStreaming
	AssistCompleted
	AssistFailed
)

func (s AssistState) String() string {
	switch s {
	case AssistIdle:
		return "idle"
	case AssistSending:
		return "sending"
	case AssistStreaming:
		return "streaming"
	case AssistCompleted:
		return "completed"
	case AssistFailed:
		return "failed"
	}
	return fmt.Sprintf("AssistState(%d)", int(s))
}

// AssistStreamer opens an assist stream. *api.Client implements it.
type AssistStreamer interface {
	AssistStream(ctx context.Context, req api.AssistRequest, fn func(api.AssistRecord) error) error
}

// AssistView receives presentation updates. Calls are made without the
// session lock held.
type AssistView interface {
	// AssistState reports a state change. busy is true while action
	// triggers must stay disabled.
	AssistState(state AssistState, busy bool)
	// AssistText carries the full response accumulated so far.
	AssistText(text string)
	AssistError(msg string)
	AssistPlaceholder(msg string)
	AssistEstimate(tokens int)
}

// Buffer is the document an assist response is applied to.
type Buffer interface {
	Text() string
	// ReplaceText swaps the whole document, marks it dirty and refreshes
	// the rendered view.
	ReplaceText(text string)
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard is the Clipboard backed by the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// AssistInput describes one assist invocation.
type AssistInput struct {
	Action       string
	CustomPrompt string
	// Context is passed through to the server, e.g. "File: 01_map/content.md".
	Context string
	Doc     textedit.Document
}

// Assist runs one-shot, history-less assist requests.
type Assist struct {
	client    AssistStreamer
	view      AssistView
	clipboard Clipboard

	mu         sync.Mutex
	state      AssistState
	generation uint64
	response   strings.Builder
	selection  textedit.Selection
	available  bool
	unavailMsg string
}

func NewAssist(client AssistStreamer, view AssistView, cb Clipboard) *Assist {
	if cb == nil {
		cb = SystemClipboard{}
	}
	return &Assist{client: client, view: view, clipboard: cb}
}

// SetAvailable records the result of the AI status check.
func (a *Assist) SetAvailable(available bool, msg string) {
	a.mu.Lock()
	a.available = available
	a.unavailMsg = msg
	a.mu.Unlock()
}

func (a *Assist) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available
}

func (a *Assist) State() AssistState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Response returns the text accumulated by the current session.
func (a *Assist) Response() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.response.String()
}

// Start validates the input, then streams the response until the server
// closes the stream. A later Start supersedes this one: records that arrive
// for an older invocation are ignored and its Start returns nil.
func (a *Assist) Start(ctx context.Context, in AssistInput) error {
	a.mu.Lock()
	if !a.available {
		msg := a.unavailMsg
		a.mu.Unlock()
		if msg != "" {
			return fmt.Errorf("%w: %s", ErrUnavailable, msg)
		}
		return ErrUnavailable
	}
	if in.Action == ActionCustom && strings.TrimSpace(in.CustomPrompt) == "" {
		a.mu.Unlock()
		return ErrEmptyPrompt
	}

	content := in.Doc.SelectedText()
	if content == "" {
		content = in.Doc.Text
	}
	if strings.TrimSpace(content) == "" {
		a.mu.Unlock()
		a.view.AssistPlaceholder(EmptyContentPlaceholder)
		return ErrEmptyContent
	}

	a.generation++
	gen := a.generation
	a.response.Reset()
	a.selection = in.Doc.Selection
	a.state = AssistSending
	a.mu.Unlock()

	a.view.AssistState(AssistSending, true)
	a.view.AssistText("")

	est := tokens.EstimateSimple(content)
	log.Debug("Assist start (gen %d, action: %s, ~%d tokens)", gen, in.Action, est)
	a.view.AssistEstimate(est)

	req := api.AssistRequest{
		Content: content,
		Action:  in.Action,
		Context: in.Context,
	}
	if in.Action == ActionCustom {
		req.CustomPrompt = strings.TrimSpace(in.CustomPrompt)
	}

	var streamErr string
	err := a.client.AssistStream(ctx, req, func(rec api.AssistRecord) error {
		return a.handleRecord(gen, rec, &streamErr)
	})

	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		log.Debug("Assist gen %d superseded, dropping result", gen)
		return nil
	}

	var msg string
	switch {
	case streamErr != "":
		msg = streamErr
	case err != nil:
		msg = err.Error()
	}
	if msg != "" {
		a.state = AssistFailed
		a.response.Reset()
	} else if a.response.Len() > 0 {
		a.state = AssistCompleted
	} else {
		a.state = AssistIdle
	}
	final := a.state
	a.mu.Unlock()

	if msg != "" {
		a.view.AssistError("Error: " + msg)
	}
	a.view.AssistState(final, false)

	if err != nil {
		return err
	}
	if streamErr != "" {
		return fmt.Errorf("assist: %s", streamErr)
	}
	return nil
}

func (a *Assist) handleRecord(gen uint64, rec api.AssistRecord, streamErr *string) error {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return sse.ErrStop
	}

	first := a.state == AssistSending
	if first {
		a.state = AssistStreaming
	}
	if rec.Text != "" {
		a.response.WriteString(rec.Text)
	}
	text := a.response.String()
	a.mu.Unlock()

	if first {
		a.view.AssistState(AssistStreaming, true)
	}
	if rec.Text != "" {
		a.view.AssistText(text)
	}
	if rec.Done {
		log.Stream("assist_done", "")
	}
	if rec.Error != "" {
		log.Stream("assist_error", rec.Error)
		*streamErr = rec.Error
		return sse.ErrStop
	}
	return nil
}

// Apply writes the completed response into buf. A selection captured when
// the assist started is replaced; otherwise a suggestion block is appended.
func (a *Assist) Apply(buf Buffer) error {
	a.mu.Lock()
	if a.state != AssistCompleted || a.response.Len() == 0 {
		a.mu.Unlock()
		return ErrNothingToApply
	}
	resp := a.response.String()
	sel := a.selection
	a.mu.Unlock()

	buf.ReplaceText(textedit.ApplySuggestion(buf.Text(), sel, resp))
	return nil
}

// Copy puts the completed response on the clipboard.
func (a *Assist) Copy() error {
	a.mu.Lock()
	if a.state != AssistCompleted || a.response.Len() == 0 {
		a.mu.Unlock()
		return ErrNothingToApply
	}
	resp := a.response.String()
	a.mu.Unlock()

	return a.clipboard.WriteAll(resp)
}
