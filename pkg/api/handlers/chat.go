package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"taskdeck/pkg/auth"
	"taskdeck/pkg/llm"
	"taskdeck/pkg/logger"
	"taskdeck/pkg/models"
	"taskdeck/pkg/sse"
	"taskdeck/pkg/store"
	"taskdeck/pkg/utils"
)

// ChatDeps carries chat relay settings.
type ChatDeps struct {
	LLM          llm.Client
	Heartbeat    time.Duration
	HistoryLimit int
	MaxBodyBytes int64
}

// RegisterChat registers the chat relay routes on the provided router.
func RegisterChat(r *mux.Router, d ChatDeps) {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	if d.HistoryLimit <= 0 {
		d.HistoryLimit = 50
	}
	h := &chatHandlers{deps: d}
	r.HandleFunc("/chat/stream", h.stream).Methods(http.MethodPost)
	r.HandleFunc("/chat/history", h.history).Methods(http.MethodGet)
}

type chatHandlers struct {
	deps ChatDeps
}

const maxChatMessageLen = 4000

// stream handles POST /chat/stream. It persists the user's turn, relays
// the upstream completion chunk by chunk as server-sent events, keeps the
// connection alive with ping events, and persists the assistant's turn
// when the stream ends. Closing the client connection cancels the
// upstream call.
func (h *chatHandlers) stream(w http.ResponseWriter, r *http.Request) {
	own := auth.UserIDFromContext(r.Context())
	if own == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(w, r, &body, h.deps.MaxBodyBytes); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		utils.JSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(msg) > maxChatMessageLen {
		utils.JSONError(w, http.StatusBadRequest, "message too long")
		return
	}

	userTurn := models.ChatMessage{Role: models.RoleUser, Content: msg, TS: time.Now().UTC().UnixNano()}
	if err := store.AppendChatMessage(own, userTurn); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	history, err := store.ListChatMessages(own, h.deps.HistoryLimit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := sse.NewWriter(w)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The request context cancels the upstream call when the client goes
	// away; the ticker goroutine exits on the same signal.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var mu sync.Mutex
	var pingDone sync.WaitGroup
	ticker := time.NewTicker(h.deps.Heartbeat)
	defer ticker.Stop()
	pingDone.Add(1)
	go func() {
		defer pingDone.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				err := out.SendPing()
				mu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	var reply strings.Builder
	streamErr := h.deps.LLM.Stream(ctx, history, func(text string) error {
		reply.WriteString(text)
		mu.Lock()
		defer mu.Unlock()
		return out.SendChunk(text)
	})

	// Stop heartbeats before the terminal event so nothing interleaves
	// after done or error.
	cancel()
	pingDone.Wait()

	switch {
	case streamErr == nil:
		mu.Lock()
		_ = out.SendDone()
		mu.Unlock()
		assistant := models.ChatMessage{
			Role:    models.RoleAssistant,
			Content: reply.String(),
			TS:      time.Now().UTC().UnixNano(),
		}
		if err := store.AppendChatMessage(own, assistant); err != nil {
			logger.Error("chat_persist_failed", "owner", own, "error", err)
		}
		logger.Info("chat_completed", "owner", own, "reply_len", reply.Len())

	case errors.Is(streamErr, context.Canceled):
		// Client went away; nothing more to write. Keep whatever partial
		// reply arrived so history reflects what the user saw.
		if reply.Len() > 0 {
			partial := models.ChatMessage{
				Role:    models.RoleAssistant,
				Content: reply.String(),
				TS:      time.Now().UTC().UnixNano(),
			}
			if err := store.AppendChatMessage(own, partial); err != nil {
				logger.Error("chat_persist_failed", "owner", own, "error", err)
			}
		}
		logger.Info("chat_cancelled", "owner", own, "partial_len", reply.Len())

	default:
		logger.Warn("chat_upstream_failed", "owner", own, "error", streamErr)
		mu.Lock()
		_ = out.SendError(relayErrorMessage(streamErr))
		mu.Unlock()
		failed := models.ChatMessage{
			Role:    models.RoleAssistant,
			Content: relayErrorMessage(streamErr),
			Err:     true,
			TS:      time.Now().UTC().UnixNano(),
		}
		if err := store.AppendChatMessage(own, failed); err != nil {
			logger.Error("chat_persist_failed", "owner", own, "error", err)
		}
	}
}

// relayErrorMessage picks the user-facing text for a failed relay.
// Provider-reported failures pass through with their detail; transport
// errors stay generic because their messages embed the request URL.
func relayErrorMessage(err error) string {
	if errors.Is(err, llm.ErrNoAPIKey) {
		return "assistant is not configured"
	}
	var ue *llm.UpstreamError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	return "assistant is unavailable right now"
}

// history handles GET /chat/history, returning the owner's conversation
// in insertion order.
func (h *chatHandlers) history(w http.ResponseWriter, r *http.Request) {
	own := auth.UserIDFromContext(r.Context())
	if own == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	msgs, err := store.ListChatMessages(own, h.deps.HistoryLimit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"messages": msgs})
}
