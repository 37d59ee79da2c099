// Package llm streams completions from the Gemini generateContent API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskdeck/pkg/logger"
	"taskdeck/pkg/models"
	"taskdeck/pkg/sse"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client issues streaming generation requests against a Gemini-compatible
// endpoint.
type Client interface {
	// Stream sends the conversation and invokes onChunk once per text
	// fragment, in arrival order. It returns once the upstream stream
	// ends or ctx is cancelled.
	Stream(ctx context.Context, history []models.ChatMessage, onChunk func(text string) error) error
}

// Config carries the settings a Gemini client needs.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	Persona         string
	MaxOutputTokens int
	HTTPClient      *http.Client
}

type geminiClient struct {
	cfg Config
}

// NewGemini returns a streaming Gemini client.
func NewGemini(cfg Config) Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &geminiClient{cfg: cfg}
}

// ErrNoAPIKey signals a missing upstream credential; the relay maps it to
// a configuration error for the caller.
var ErrNoAPIKey = errors.New("llm api key not configured")

// UpstreamError is a failure reported by the model provider itself, as
// opposed to a transport failure reaching it. Its message is safe to show
// to the end user.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	}
	return "upstream error: " + e.Message
}

type genPart struct {
	Text string `json:"text"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genRequest struct {
	Contents          []genContent `json:"contents"`
	SystemInstruction *genContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *genConfig   `json:"generationConfig,omitempty"`
}

type genConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type genResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *geminiClient) Stream(ctx context.Context, history []models.ChatMessage, onChunk func(text string) error) error {
	if c.cfg.APIKey == "" {
		return ErrNoAPIKey
	}

	body := genRequest{}
	if c.cfg.Persona != "" {
		body.SystemInstruction = &genContent{Parts: []genPart{{Text: c.cfg.Persona}}}
	}
	if c.cfg.MaxOutputTokens > 0 {
		body.GenerationConfig = &genConfig{MaxOutputTokens: c.cfg.MaxOutputTokens}
	}
	for _, m := range history {
		if m.Err || strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, genContent{Role: role, Parts: []genPart{{Text: m.Content}}})
	}
	if len(body.Contents) == 0 {
		return fmt.Errorf("empty conversation")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, url.QueryEscape(c.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		logger.Warn("llm_upstream_error", "status", res.StatusCode, "model", c.cfg.Model)
		return &UpstreamError{Status: res.StatusCode, Message: strings.TrimSpace(string(b))}
	}

	rd := sse.NewReader(res.Body)
	for {
		ev, err := rd.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Cancellation surfaces as a read error on the body
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read upstream stream: %w", err)
		}
		if ev.Data == "" || ev.Data == "[DONE]" {
			continue
		}
		var chunk genResponse
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			logger.Warn("llm_skip_bad_chunk", "error", err)
			continue
		}
		if chunk.Error != nil {
			return &UpstreamError{Message: chunk.Error.Message}
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				if err := onChunk(p.Text); err != nil {
					return err
				}
			}
		}
	}
}
