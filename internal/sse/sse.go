// Package sse decodes "data: <json>" line streams delivered in arbitrary
// network chunks.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/youruser/mmedit/internal/logging"
)

// DataPrefix starts every record line. Other lines are ignored.
const DataPrefix = "data: "

const readSize = 32 * 1024

// ErrStop can be returned from a Consume callback to stop reading without
// reporting an error.
var ErrStop = errors.New("stop reading stream")

var log = logging.Get()

// Parser splits chunks into record payloads. A chunk boundary may fall
// anywhere, including inside a record; the unterminated tail is carried over
// to the next Feed.
type Parser struct {
	buf []byte
}

// Feed appends chunk and returns the payloads of every data line completed by
// it, in order. Returned slices are owned by the caller.
func (p *Parser) Feed(chunk []byte) [][]byte {
	p.buf = append(p.buf, chunk...)

	var out [][]byte
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(p.buf[:i], []byte{'\r'})
		p.buf = p.buf[i+1:]

		if !bytes.HasPrefix(line, []byte(DataPrefix)) {
			continue
		}
		payload := make([]byte, len(line)-len(DataPrefix))
		copy(payload, line[len(DataPrefix):])
		out = append(out, payload)
	}

	// Keep the carry-over small once the consumed prefix is gone.
	if len(p.buf) == 0 {
		p.buf = p.buf[:0:0]
	}
	return out
}

// Pending returns the number of buffered bytes not yet terminated by a newline.
func (p *Parser) Pending() int {
	return len(p.buf)
}

// Decode unmarshals a payload into T. ok is false for payloads that are not
// valid JSON for T.
func Decode[T any](payload []byte) (v T, ok bool) {
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, false
	}
	return v, true
}

// Consume reads r until EOF and calls fn for every decoded record. Payloads
// that fail to decode are skipped. Returning ErrStop from fn ends the read
// with a nil error; any other error from fn is returned as is.
func Consume[T any](ctx context.Context, r io.Reader, fn func(T) error) error {
	var p Parser
	chunk := make([]byte, readSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			for _, payload := range p.Feed(chunk[:n]) {
				rec, ok := Decode[T](payload)
				if !ok {
					log.Debug("SSE: skipping undecodable record: %s", truncate(payload))
					continue
				}
				if err := fn(rec); err != nil {
					if errors.Is(err, ErrStop) {
						return nil
					}
					return err
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if p.Pending() > 0 {
					log.Debug("SSE: dropping %d unterminated bytes at end of stream", p.Pending())
				}
				return nil
			}
			// The body errors once the request context is cancelled.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return readErr
		}
	}
}

func truncate(b []byte) string {
	if len(b) > 120 {
		return string(b[:120]) + "..."
	}
	return string(b)
}
