package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"taskdeck/pkg/auth"
	"taskdeck/pkg/models"
	"taskdeck/pkg/store"
)

const e2eSecret = "router-test-secret-456789"

type echoLLM struct{}

func (echoLLM) Stream(ctx context.Context, history []models.ChatMessage, onChunk func(string) error) error {
	return onChunk("echo: " + history[len(history)-1].Content)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := Handler(Deps{
		JWTSecret: e2eSecret,
		TokenTTL:  time.Hour,
		LLM:       echoLLM{},
		Heartbeat: time.Hour,
	})
	wrapped := auth.Gateway(auth.GatewayConfig{JWTSecret: e2eSecret, RPS: 1000, Burst: 1000})(h)
	srv := httptest.NewServer(wrapped)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return res
}

func TestEndToEndSessionFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	// tasks are locked down without a token
	res, err := client.Get(srv.URL + "/todos")
	if err != nil {
		t.Fatalf("GET /todos: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}

	// register, then use the issued token
	res = postJSON(t, client, srv.URL+"/users/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "username": "ada", "password": "longenough",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", res.StatusCode)
	}
	var session struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.NewDecoder(res.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	res.Body.Close()

	res = postJSON(t, client, srv.URL+"/todos", session.Token, models.Task{Title: "ship it"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d", res.StatusCode)
	}
	res.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/todos", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	res, err = client.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var out struct {
		Todos []models.Task `json:"todos"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	res.Body.Close()
	if len(out.Todos) != 1 || out.Todos[0].Title != "ship it" {
		t.Fatalf("unexpected list: %v", out.Todos)
	}

	// a fresh login works with the username too
	res = postJSON(t, client, srv.URL+"/users/login", "", map[string]string{
		"identifier": "ada", "password": "longenough",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", res.StatusCode)
	}
	res.Body.Close()

	// garbage tokens are rejected
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/todos", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	res, _ = client.Do(req)
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", res.StatusCode)
	}
}

func TestEndToEndChatStream(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res := postJSON(t, client, srv.URL+"/users/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "username": "ada", "password": "longenough",
	})
	var session struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(res.Body).Decode(&session)
	res.Body.Close()

	res = postJSON(t, client, srv.URL+"/chat/stream", session.Token, map[string]string{"message": "hello"})
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat: expected 200, got %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	body := buf.String()
	if !bytes.Contains(buf.Bytes(), []byte(`"text":"echo: hello"`)) {
		t.Fatalf("missing relayed chunk: %q", body)
	}
	if !bytes.Contains(buf.Bytes(), []byte("event: done")) {
		t.Fatalf("missing done event: %q", body)
	}
}
