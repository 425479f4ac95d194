package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/youruser/mmedit/internal/api"
	"github.com/youruser/mmedit/internal/sse"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrBusy             = errors.New("a message is already being sent")
	ErrAgentUnavailable = errors.New("agent is not available")
)

type ChatState int

const (
	ChatIdle ChatState = iota
	ChatAwaitingFirstToken
	ChatStreaming
)

func (s ChatState) String() string {
	switch s {
	case ChatIdle:
		return "idle"
	case ChatAwaitingFirstToken:
		return "awaiting_first_token"
	case ChatStreaming:
		return "streaming"
	}
	return fmt.Sprintf("ChatState(%d)", int(s))
}

type EntryKind string

const (
	EntryUser      EntryKind = "user"
	EntryAssistant EntryKind = "assistant"
	EntryTool      EntryKind = "tool"
	EntryError     EntryKind = "error"
)

// Entry is one transcript line.
type Entry struct {
	Kind    EntryKind `json:"kind"`
	Content string    `json:"content"`
}

// ChatStreamer opens an agent chat stream. *api.Client implements it.
type ChatStreamer interface {
	ChatStream(ctx context.Context, req api.ChatRequest, fn func(api.ChatRecord) error) error
}

// ChatView receives transcript and control updates. Calls are made without
// the session lock held, in transcript order.
type ChatView interface {
	// ChatEntry reports a new transcript entry at index.
	ChatEntry(index int, e Entry)
	// ChatEntryUpdate reports that the entry at index grew.
	ChatEntryUpdate(index int, e Entry)
	ChatTyping(visible bool)
	ChatBusy(busy bool)
	ChatInputCleared()
}

// Chat is a multi-turn agent conversation. The transcript lives in memory
// only; the server keeps the model side of the history under SessionID.
type Chat struct {
	client    ChatStreamer
	view      ChatView
	sessionID string

	mu         sync.Mutex
	state      ChatState
	transcript []Entry
	available  bool
	typing     bool
}

func NewChat(client ChatStreamer, view ChatView) *Chat {
	return &Chat{
		client:    client,
		view:      view,
		sessionID: uuid.NewString(),
	}
}

func (c *Chat) SessionID() string {
	return c.sessionID
}

// SetAvailable records the result of the agent status check.
func (c *Chat) SetAvailable(available bool) {
	c.mu.Lock()
	c.available = available
	c.mu.Unlock()
}

func (c *Chat) State() ChatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the transcript.
func (c *Chat) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Send posts message and reads the reply until the stream ends. It is
// rejected without touching the transcript when the message is blank, a
// previous send is still in flight, or the agent is unavailable.
func (c *Chat) Send(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)

	c.mu.Lock()
	switch {
	case message == "":
		c.mu.Unlock()
		return ErrEmptyMessage
	case c.state != ChatIdle:
		c.mu.Unlock()
		return ErrBusy
	case !c.available:
		c.mu.Unlock()
		return ErrAgentUnavailable
	}
	c.state = ChatAwaitingFirstToken
	c.typing = true
	userIdx := c.appendLocked(Entry{Kind: EntryUser, Content: message})
	c.mu.Unlock()

	c.view.ChatEntry(userIdx, Entry{Kind: EntryUser, Content: message})
	c.view.ChatInputCleared()
	c.view.ChatTyping(true)
	c.view.ChatBusy(true)

	assistantIdx := -1
	err := c.client.ChatStream(ctx, api.ChatRequest{Message: message, SessionID: c.sessionID}, func(rec api.ChatRecord) error {
		return c.handleRecord(rec, &assistantIdx)
	})
	if err != nil {
		log.Error("Chat stream failed: %v", err)
		c.hideTyping()
		c.addEntry(Entry{Kind: EntryError, Content: "Failed to send message: " + err.Error()})
	}

	c.hideTyping()
	c.mu.Lock()
	c.state = ChatIdle
	c.mu.Unlock()
	c.view.ChatBusy(false)

	return err
}

func (c *Chat) handleRecord(rec api.ChatRecord, assistantIdx *int) error {
	switch {
	case rec.Error != "":
		log.Stream("chat_error", rec.Error)
		c.addEntry(Entry{Kind: EntryError, Content: "Error: " + rec.Error})
	case rec.Type == api.ChatText:
		c.hideTyping()
		c.mu.Lock()
		c.state = ChatStreaming
		var e Entry
		created := *assistantIdx < 0
		if created {
			*assistantIdx = c.appendLocked(Entry{Kind: EntryAssistant, Content: rec.Content})
		} else {
			c.transcript[*assistantIdx].Content += rec.Content
		}
		e = c.transcript[*assistantIdx]
		c.mu.Unlock()

		if created {
			c.view.ChatEntry(*assistantIdx, e)
		} else {
			c.view.ChatEntryUpdate(*assistantIdx, e)
		}
	case rec.Type == api.ChatToolUse:
		log.Stream("chat_tool", rec.Tool)
		c.addEntry(Entry{Kind: EntryTool, Content: "Using tool: " + rec.Tool})
	case rec.Done:
		log.Stream("chat_done", "")
		return sse.ErrStop
	default:
		log.Stream("chat_"+rec.Type, rec.Content)
	}
	return nil
}

func (c *Chat) appendLocked(e Entry) int {
	c.transcript = append(c.transcript, e)
	return len(c.transcript) - 1
}

func (c *Chat) addEntry(e Entry) {
	c.mu.Lock()
	idx := c.appendLocked(e)
	c.mu.Unlock()
	c.view.ChatEntry(idx, e)
}

func (c *Chat) hideTyping() {
	c.mu.Lock()
	was := c.typing
	c.typing = false
	c.mu.Unlock()
	if was {
		c.view.ChatTyping(false)
	}
}
