package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"taskdeck/pkg/models"
)

// HTTPBackend talks to a taskdeck server over its JSON API.
type HTTPBackend struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewHTTPBackend returns a backend for the given server and session token.
func NewHTTPBackend(baseURL, token string) *HTTPBackend {
	return &HTTPBackend{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: http.DefaultClient,
	}
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}
	c := b.HTTPClient
	if c == nil {
		c = http.DefaultClient
	}
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(res.Body, 4096)).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, res.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func (b *HTTPBackend) FetchTasks(ctx context.Context) ([]models.Task, error) {
	var out struct {
		Todos []models.Task `json:"todos"`
	}
	if err := b.do(ctx, http.MethodGet, "/todos", nil, &out); err != nil {
		return nil, err
	}
	return out.Todos, nil
}

func (b *HTTPBackend) CreateTask(ctx context.Context, t models.Task) error {
	return b.do(ctx, http.MethodPost, "/todos", t, nil)
}

func (b *HTTPBackend) UpdateTask(ctx context.Context, id string, p models.TaskPatch) error {
	return b.do(ctx, http.MethodPut, "/todos/"+id, p, nil)
}

func (b *HTTPBackend) DeleteTask(ctx context.Context, id string) error {
	return b.do(ctx, http.MethodDelete, "/todos/"+id, nil, nil)
}

func (b *HTTPBackend) DeleteCompleted(ctx context.Context) error {
	return b.do(ctx, http.MethodDelete, "/todos?completed=true", nil, nil)
}

func (b *HTTPBackend) SetAllCompleted(ctx context.Context, completed bool) error {
	return b.do(ctx, http.MethodPatch, "/todos", map[string]bool{"completed": completed}, nil)
}
