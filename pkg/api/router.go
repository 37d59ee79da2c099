// Package api wires the HTTP surface: task CRUD, account management and
// the streaming chat relay.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"taskdeck/pkg/api/handlers"
	"taskdeck/pkg/llm"
)

// Deps carries everything the handlers need injected at startup.
type Deps struct {
	JWTSecret    string
	TokenTTL     time.Duration
	MaxBodyBytes int64
	LLM          llm.Client
	Heartbeat    time.Duration
	HistoryLimit int
}

// Handler returns the application router with all routes registered.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()
	handlers.RegisterTasks(r, handlers.TaskDeps{MaxBodyBytes: d.MaxBodyBytes})
	handlers.RegisterUsers(r, handlers.UserDeps{
		JWTSecret:    d.JWTSecret,
		TokenTTL:     d.TokenTTL,
		MaxBodyBytes: d.MaxBodyBytes,
	})
	handlers.RegisterChat(r, handlers.ChatDeps{
		LLM:          d.LLM,
		Heartbeat:    d.Heartbeat,
		HistoryLimit: d.HistoryLimit,
		MaxBodyBytes: d.MaxBodyBytes,
	})
	return r
}
