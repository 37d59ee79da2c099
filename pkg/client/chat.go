package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskdeck/pkg/models"
	"taskdeck/pkg/sse"
)

// Chat keeps the widget-side transcript and streams assistant replies
// from the relay. Incremental chunks grow the same assistant entry in
// place, so the transcript never shows a reply twice.
type Chat struct {
	mu         sync.Mutex
	transcript []models.ChatMessage
	lastSent   string
	streaming  bool

	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// OnUpdate, when set, fires after every transcript change.
	OnUpdate func()
}

// NewChat returns a chat client for the given server and session token.
func NewChat(baseURL, token string) *Chat {
	return &Chat{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Transcript returns a snapshot of the conversation.
func (c *Chat) Transcript() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Streaming reports whether a reply is currently arriving.
func (c *Chat) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

func (c *Chat) notify() {
	if c.OnUpdate != nil {
		c.OnUpdate()
	}
}

// LoadHistory replaces the transcript with the server-side conversation.
func (c *Chat) LoadHistory(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/chat/history", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("load history: status %d", res.StatusCode)
	}
	var out struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return err
	}
	c.mu.Lock()
	c.transcript = out.Messages
	c.mu.Unlock()
	c.notify()
	return nil
}

// Send posts a user message and streams the reply into the transcript.
// It blocks until the stream finishes, so callers usually run it in a
// goroutine and watch OnUpdate.
func (c *Chat) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("message is required")
	}

	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return fmt.Errorf("a reply is already streaming")
	}
	c.streaming = true
	c.lastSent = text
	c.transcript = append(c.transcript, models.ChatMessage{
		Role: models.RoleUser, Content: text, TS: time.Now().UTC().UnixNano(),
	})
	c.mu.Unlock()
	c.notify()

	err := c.stream(ctx, text)

	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
	c.notify()
	return err
}

// Retry resends the last user message verbatim after a failed reply. The
// failed assistant entry is dropped from the transcript first.
func (c *Chat) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return fmt.Errorf("a reply is already streaming")
	}
	last := c.lastSent
	if last == "" {
		c.mu.Unlock()
		return fmt.Errorf("nothing to retry")
	}
	n := len(c.transcript)
	if n > 0 && c.transcript[n-1].Role == models.RoleAssistant && c.transcript[n-1].Err {
		c.transcript = c.transcript[:n-1]
	}
	c.streaming = true
	c.mu.Unlock()
	c.notify()

	err := c.stream(ctx, last)

	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
	c.notify()
	return err
}

// stream opens the relay connection and folds events into the transcript.
func (c *Chat) stream(ctx context.Context, text string) error {
	payload, _ := json.Marshal(map[string]string{"message": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		c.appendError("could not reach the assistant")
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		c.appendError("could not reach the assistant")
		return fmt.Errorf("chat stream: status %d", res.StatusCode)
	}

	started := false
	rd := sse.NewReader(res.Body)
	for {
		ev, err := rd.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			c.appendError("connection lost")
			return err
		}
		switch ev.Name {
		case sse.EventPing:
			// keepalive only
		case sse.EventMessage:
			var chunk sse.Chunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				continue
			}
			if chunk.Text == "" {
				continue
			}
			c.appendChunk(chunk.Text, &started)
		case sse.EventDone:
			return nil
		case sse.EventError:
			var ep sse.ErrPayload
			_ = json.Unmarshal([]byte(ev.Data), &ep)
			if ep.Error == "" {
				ep.Error = "assistant is unavailable right now"
			}
			c.appendError(ep.Error)
			return fmt.Errorf("assistant error: %s", ep.Error)
		}
	}
}

// appendChunk grows the in-flight assistant message, creating it on the
// first chunk.
func (c *Chat) appendChunk(text string, started *bool) {
	c.mu.Lock()
	if !*started {
		c.transcript = append(c.transcript, models.ChatMessage{
			Role: models.RoleAssistant, TS: time.Now().UTC().UnixNano(),
		})
		*started = true
	}
	c.transcript[len(c.transcript)-1].Content += text
	c.mu.Unlock()
	c.notify()
}

// appendError records a failed assistant turn eligible for Retry. An
// in-flight assistant entry is replaced, partial content included, so
// the transcript ends with exactly one error entry.
func (c *Chat) appendError(msg string) {
	c.mu.Lock()
	failed := models.ChatMessage{
		Role: models.RoleAssistant, Content: msg, Err: true, TS: time.Now().UTC().UnixNano(),
	}
	n := len(c.transcript)
	if n > 0 && c.transcript[n-1].Role == models.RoleAssistant && !c.transcript[n-1].Err {
		c.transcript[n-1] = failed
	} else {
		c.transcript = append(c.transcript, failed)
	}
	c.mu.Unlock()
	c.notify()
}
