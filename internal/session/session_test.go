package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/youruser/mmedit/internal/api"
	"github.com/youruser/mmedit/internal/sse"
)

// sseBody renders records as a "data: " framed stream.
func sseBody(records ...string) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("data: ")
		b.WriteString(r)
		b.WriteString("\n\n")
	}
	return b.String()
}

// chunkReader returns at most n bytes per Read so records straddle chunks.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

// fakeStreamer serves canned bodies through the real stream parser. When
// gate is set, the stream waits for it to close before reading.
type fakeStreamer struct {
	mu      sync.Mutex
	bodies  []string
	err     error
	gates   []chan struct{}
	started chan struct{}

	assistReqs []api.AssistRequest
	chatReqs   []api.ChatRequest
}

func (f *fakeStreamer) next() (string, chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	if len(f.bodies) > 0 {
		body, f.bodies = f.bodies[0], f.bodies[1:]
	}
	var gate chan struct{}
	if len(f.gates) > 0 {
		gate, f.gates = f.gates[0], f.gates[1:]
	}
	return body, gate
}

// open returns the body for the next stream, blocking on its gate if any.
func (f *fakeStreamer) open() (io.Reader, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, gate := f.next()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return &chunkReader{r: strings.NewReader(body), n: 7}, nil
}

func (f *fakeStreamer) AssistStream(ctx context.Context, req api.AssistRequest, fn func(api.AssistRecord) error) error {
	f.mu.Lock()
	f.assistReqs = append(f.assistReqs, req)
	f.mu.Unlock()
	r, err := f.open()
	if err != nil {
		return err
	}
	return sse.Consume(ctx, r, fn)
}

func (f *fakeStreamer) ChatStream(ctx context.Context, req api.ChatRequest, fn func(api.ChatRecord) error) error {
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	f.mu.Unlock()
	r, err := f.open()
	if err != nil {
		return err
	}
	return sse.Consume(ctx, r, fn)
}

var errTransport = errors.New("connection refused")
