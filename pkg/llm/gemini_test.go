package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskdeck/pkg/models"
)

func fakeUpstream(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("expected alt=sse, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", c)
			f.Flush()
		}
	}))
}

func TestStreamDeliversChunksInOrder(t *testing.T) {
	srv := fakeUpstream(t, []string{"Hel", "lo", " there"})
	defer srv.Close()

	c := NewGemini(Config{APIKey: "k", BaseURL: srv.URL})
	var got []string
	err := c.Stream(context.Background(), []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
	}, func(text string) error {
		got = append(got, text)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if strings.Join(got, "") != "Hello there" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestStreamRequiresAPIKey(t *testing.T) {
	c := NewGemini(Config{})
	err := c.Stream(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}, func(string) error { return nil })
	if err != ErrNoAPIKey {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestStreamSkipsErroredTurns(t *testing.T) {
	c := NewGemini(Config{APIKey: "k"})
	err := c.Stream(context.Background(), []models.ChatMessage{
		{Role: models.RoleAssistant, Content: "assistant is unavailable right now", Err: true},
	}, func(string) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "empty conversation") {
		t.Fatalf("expected empty conversation error, got %v", err)
	}
}

func TestStreamSurfacesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGemini(Config{APIKey: "k", BaseURL: srv.URL})
	err := c.Stream(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}, func(string) error { return nil })
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusTooManyRequests || !strings.Contains(ue.Message, "quota") {
		t.Fatalf("unexpected upstream error: %+v", ue)
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"partial\"}]}}]}\n\n")
		f.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewGemini(Config{APIKey: "k", BaseURL: srv.URL})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Stream(ctx, []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}, func(text string) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not stop after cancel")
	}
}
