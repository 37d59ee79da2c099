// Package sse implements the server-sent-events wire format used by the
// chat relay: JSON payloads under named events, one blank line between
// events, flushed as they are written.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Event names emitted by the relay.
const (
	EventMessage = "message"
	EventDone    = "done"
	EventError   = "error"
	EventPing    = "ping"
)

// Chunk is the payload carried by message events.
type Chunk struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// ErrPayload is the payload carried by error events.
type ErrPayload struct {
	Error string `json:"error"`
}

// Writer serializes events onto an HTTP response stream.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares w for event streaming and returns a Writer. It fails
// when the underlying connection cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, f: f}, nil
}

// Send writes one event with a JSON-encoded payload and flushes it.
func (s *Writer) Send(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// SendChunk emits a message event carrying one text fragment.
func (s *Writer) SendChunk(text string) error {
	return s.Send(EventMessage, Chunk{Text: text})
}

// SendDone terminates the stream: a final message with done set, then the
// done event.
func (s *Writer) SendDone() error {
	if err := s.Send(EventMessage, Chunk{Done: true}); err != nil {
		return err
	}
	return s.Send(EventDone, struct{}{})
}

// SendError emits an error event.
func (s *Writer) SendError(msg string) error {
	return s.Send(EventError, ErrPayload{Error: msg})
}

// SendPing emits a heartbeat event.
func (s *Writer) SendPing() error {
	return s.Send(EventPing, struct{}{})
}

// Event is one parsed server-sent event.
type Event struct {
	Name string
	Data string
}

// Reader parses an event stream from r. Comment lines and unknown fields
// are ignored per the format.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader wraps r for event parsing.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// Next returns the next complete event, or io.EOF when the stream ends.
func (r *Reader) Next() (Event, error) {
	var ev Event
	var data []string
	seen := false
	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "" {
			if seen {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "event":
			ev.Name = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}
	if err := r.sc.Err(); err != nil {
		return ev, err
	}
	if seen {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}
	return ev, io.EOF
}
