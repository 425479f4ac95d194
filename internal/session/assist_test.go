package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youruser/mmedit/internal/textedit"
)

type assistEvent struct {
	state AssistState
	busy  bool
}

type recordingAssistView struct {
	mu          sync.Mutex
	states      []assistEvent
	texts       []string
	errs        []string
	placeholder string
	estimate    int
}

func (v *recordingAssistView) AssistState(s AssistState, busy bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = append(v.states, assistEvent{s, busy})
}

func (v *recordingAssistView) AssistText(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.texts = append(v.texts, text)
}

func (v *recordingAssistView) AssistError(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, msg)
}

func (v *recordingAssistView) AssistPlaceholder(msg string) { v.placeholder = msg }
func (v *recordingAssistView) AssistEstimate(n int) { v.estimate = n }

type memBuffer struct{ text string }

func (b *memBuffer) Text() string { return b.text }
func (b *memBuffer) ReplaceText(text string) { b.text = text }

type memClipboard struct{ text string }

func (c *memClipboard) WriteAll(text string) error {
	c.text = text
	return nil
}

func newAssist(f *fakeStreamer) (*Assist, *recordingAssistView, *memClipboard) {
	v := &recordingAssistView{}
	cb := &memClipboard{}
	a := NewAssist(f, v, cb)
	a.SetAvailable(true, "")
	return a, v, cb
}

func TestAssistStreamCompletes(t *testing.T) {
	f := &fakeStreamer{bodies: []string{sseBody(`{"text":"Hel"}`, `{"text":"lo"}`, `{"done":true}`)}}
	a, v, _ := newAssist(f)

	doc := textedit.Document{Text: "some document"}
	err := a.Start(context.Background(), AssistInput{Action: "improve", Context: "File: a.md", Doc: doc})
	require.NoError(t, err)

	assert.Equal(t, AssistCompleted, a.State())
	assert.Equal(t, "Hello", a.Response())
	assert.Equal(t, []string{"", "Hel", "Hello"}, v.texts, "each chunk is reflected immediately")
	assert.Equal(t, []assistEvent{
		{AssistSending, true},
		{AssistStreaming, true},
		{AssistCompleted, false},
	}, v.states)
	assert.Positive(t, v.estimate)

	require.Len(t, f.assistReqs, 1)
	assert.Equal(t, "some document", f.assistReqs[0].Content, "no selection sends the whole document")
	assert.Equal(t, "File: a.md", f.assistReqs[0].Context)
	assert.Empty(t, f.assistReqs[0].CustomPrompt)
}

func TestAssistSendsSelection(t *testing.T) {
	f := &fakeStreamer{bodies: []string{sseBody(`{"text":"x"}`)}}
	a, _, _ := newAssist(f)

	doc := textedit.Document{Text: "alpha beta", Selection: textedit.Selection{Start: 6, End: 10}}
	require.NoError(t, a.Start(context.Background(), AssistInput{Action: "expand", Doc: doc}))
	assert.Equal(t, "beta", f.assistReqs[0].Content)
}

func TestAssistValidation(t *testing.T) {
	t.Run("empty content", func(t *testing.T) {
		f := &fakeStreamer{}
		a, v, _ := newAssist(f)
		err := a.Start(context.Background(), AssistInput{Action: "improve", Doc: textedit.Document{Text: "  \n"}})
		assert.ErrorIs(t, err, ErrEmptyContent)
		assert.Equal(t, EmptyContentPlaceholder, v.placeholder)
		assert.Empty(t, f.assistReqs)
		assert.Equal(t, AssistIdle, a.State())
	})

	t.Run("custom without prompt", func(t *testing.T) {
		f := &fakeStreamer{}
		a, _, _ := newAssist(f)
		err := a.Start(context.Background(), AssistInput{Action: ActionCustom, CustomPrompt: " ", Doc: textedit.Document{Text: "x"}})
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.Empty(t, f.assistReqs)
	})

	t.Run("custom prompt forwarded", func(t *testing.T) {
		f := &fakeStreamer{bodies: []string{sseBody(`{"text":"ok"}`)}}
		a, _, _ := newAssist(f)
		require.NoError(t, a.Start(context.Background(), AssistInput{Action: ActionCustom, CustomPrompt: " translate ", Doc: textedit.Document{Text: "x"}}))
		assert.Equal(t, "translate", f.assistReqs[0].CustomPrompt)
	})

	t.Run("unavailable", func(t *testing.T) {
		f := &fakeStreamer{}
		a, _, _ := newAssist(f)
		a.SetAvailable(false, "set ANTHROPIC_API_KEY")
		err := a.Start(context.Background(), AssistInput{Action: "improve", Doc: textedit.Document{Text: "x"}})
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
		assert.Empty(t, f.assistReqs)
	})
}

func TestAssistErrorRecordFails(t *testing.T) {
	f := &fakeStreamer{bodies: []string{sseBody(`{"text":"partial"}`, `{"error":"rate limited"}`, `{"text":"never"}`)}}
	a, v, _ := newAssist(f)

	err := a.Start(context.Background(), AssistInput{Action: "improve", Doc: textedit.Document{Text: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	assert.Equal(t, AssistFailed, a.State())
	assert.Empty(t, a.Response())
	assert.Equal(t, []string{"Error: rate limited"}, v.errs)
	assert.NotContains(t, v.texts, "partialnever")
	assert.Equal(t, assistEvent{AssistFailed, false}, v.states[len(v.states)-1])
}

func TestAssistTransportFailure(t *testing.T) {
	f := &fakeStreamer{err: errTransport}
	a, v, _ := newAssist(f)

	err := a.Start(context.Background(), AssistInput{Action: "improve", Doc: textedit.Document{Text: "x"}})
	assert.True(t, errors.Is(err, errTransport))
	assert.Equal(t, AssistFailed, a.State())
	assert.Equal(t, []string{"Error: connection refused"}, v.errs)
	assert.Equal(t, []assistEvent{{AssistSending, true}, {AssistFailed, false}}, v.states, "no streaming before the failure")
}

func TestAssistEmptyStreamReturnsIdle(t *testing.T) {
	f := &fakeStreamer{bodies: []string{sseBody(`{"done":true}`)}}
	a, _, _ := newAssist(f)

	require.NoError(t, a.Start(context.Background(), AssistInput{Action: "improve", Doc: textedit.Document{Text: "x"}}))
	assert.Equal(t, AssistIdle, a.State())
	assert.ErrorIs(t, a.Apply(&memBuffer{}), ErrNothingToApply)
}

func TestAssistSupersede(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeStreamer{
		bodies:  []string{sseBody(`{"text":"old"}`), sseBody(`{"text":"new"}`)},
		gates:   []chan struct{}{gate},
		started: make(chan struct{}, 2),
	}
	a, _, _ := newAssist(f)
	doc := textedit.Document{Text: "x"}

	done := make(chan error, 1)
	go func() {
		done <- a.Start(context.Background(), AssistInput{Action: "improve", Doc: doc})
	}()
	<-f.started

	require.NoError(t, a.Start(context.Background(), AssistInput{Action: "expand", Doc: doc}))
	<-f.started
	assert.Equal(t, "new", a.Response())

	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, "new", a.Response(), "late records of the superseded stream are ignored")
	assert.Equal(t, AssistCompleted, a.State())
}

func TestAssistApply(t *testing.T) {
	t.Run("replaces selection captured at start", func(t *testing.T) {
		f := &fakeStreamer{bodies: []string{sseBody(`{"text":"X"}`)}}
		a, _, _ := newAssist(f)
		doc := textedit.Document{Text: "AB", Selection: textedit.Selection{Start: 0, End: 1}}
		require.NoError(t, a.Start(context.Background(), AssistInput{Action: "improve", Doc: doc}))

		buf := &memBuffer{text: "AB"}
		require.NoError(t, a.Apply(buf))
		assert.Equal(t, "XB", buf.text)
	})

	t.Run("appends suggestion without selection", func(t *testing.T) {
		f := &fakeStreamer{bodies: []string{sseBody(`{"text":"X"}`)}}
		a, _, _ := newAssist(f)
		require.NoError(t, a.Start(context.Background(), AssistInput{Action: "improve", Doc: textedit.Document{Text: "AB"}}))

		buf := &memBuffer{text: "AB"}
		require.NoError(t, a.Apply(buf))
		assert.Equal(t, "AB\n\n---\n\n## AI 建議\n\nX", buf.text)
	})

	t.Run("nothing before completion", func(t *testing.T) {
		a, _, _ := newAssist(&fakeStreamer{})
		assert.ErrorIs(t, a.Apply(&memBuffer{}), ErrNothingToApply)
	})
}

func TestAssistCopy(t *testing.T) {
	f := &fakeStreamer{bodies: []string{sseBody(`{"text":"copy me"}`)}}
	a, _, cb := newAssist(f)

	assert.ErrorIs(t, a.Copy(), ErrNothingToApply)

	require.NoError(t, a.Start(context.Background(), AssistInput{Action: "improve", Doc: textedit.Document{Text: "x"}}))
	require.NoError(t, a.Copy())
	assert.Equal(t, "copy me", cb.text)
}
