package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"taskdeck/pkg/auth"
	"taskdeck/pkg/logger"
	"taskdeck/pkg/models"
	"taskdeck/pkg/store"
	"taskdeck/pkg/utils"
	"taskdeck/pkg/validation"
)

// TaskDeps carries task handler settings.
type TaskDeps struct {
	MaxBodyBytes int64
}

// RegisterTasks registers all task-related HTTP routes on the provided router.
func RegisterTasks(r *mux.Router, d TaskDeps) {
	h := &taskHandlers{deps: d}

	// Collection routes
	r.HandleFunc("/todos", h.list).Methods(http.MethodGet)
	r.HandleFunc("/todos", h.create).Methods(http.MethodPost)
	r.HandleFunc("/todos", h.setAllCompleted).Methods(http.MethodPatch)
	r.HandleFunc("/todos", h.clearCompleted).Methods(http.MethodDelete).Queries("completed", "true")

	// Single resource routes
	r.HandleFunc("/todos/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/todos/{id}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/todos/{id}", h.remove).Methods(http.MethodDelete)
}

type taskHandlers struct {
	deps TaskDeps
}

// owner resolves the authenticated user or writes a 401.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := auth.UserIDFromContext(r.Context())
	if id == "" {
		utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return id, true
}

// missedTask writes the right error for a task the owner's read did not
// find: 401 when the record exists under another owner, 404 otherwise.
func missedTask(w http.ResponseWriter, own, id string) {
	if other, err := store.FindTaskOwner(id); err == nil && other != own {
		utils.JSONError(w, http.StatusUnauthorized, "not your task")
		return
	}
	utils.JSONError(w, http.StatusNotFound, "task not found")
}

// list handles GET /todos. Tasks come back in client display order.
func (h *taskHandlers) list(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	tasks, err := store.ListTasks(own)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{"todos": tasks})
}

// create handles POST /todos. The client may supply its own id so the
// optimistic record and the stored record agree.
func (h *taskHandlers) create(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	var t models.Task
	if err := utils.DecodeJSON(w, r, &t, h.deps.MaxBodyBytes); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	t.Owner = own
	if t.ID == "" {
		t.ID = utils.GenTaskID()
	}
	if t.CreatedTS == 0 {
		t.CreatedTS = time.Now().UTC().UnixNano()
	}
	if t.Position == 0 {
		t.Position = t.CreatedTS
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if err := validation.NewTask(t); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if existing, err := store.GetTask(own, t.ID); err == nil {
		// Idempotent create retry: same id, keep stored record
		utils.JSONWrite(w, http.StatusOK, existing)
		return
	}
	if err := store.SaveTask(t); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("task_created", "owner", own, "id", t.ID)
	utils.JSONWrite(w, http.StatusCreated, t)
}

// get handles GET /todos/{id}.
func (h *taskHandlers) get(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	t, err := store.GetTask(own, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			missedTask(w, own, id)
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, t)
}

// update handles PUT /todos/{id}. The body carries only the fields that
// changed; everything else keeps its stored value.
func (h *taskHandlers) update(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var p models.TaskPatch
	if err := utils.DecodeJSON(w, r, &p, h.deps.MaxBodyBytes); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.TaskPatch(p); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := store.GetTask(own, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			missedTask(w, own, id)
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	p.Apply(&t)
	if err := store.SaveTask(t); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Debug("task_updated", "owner", own, "id", id)
	utils.JSONWrite(w, http.StatusOK, t)
}

// remove handles DELETE /todos/{id}.
func (h *taskHandlers) remove(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := store.DeleteTask(own, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			missedTask(w, own, id)
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("task_deleted", "owner", own, "id", id)
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// setAllCompleted handles PATCH /todos with body {"completed": bool},
// flipping every task for the owner to the same state.
func (h *taskHandlers) setAllCompleted(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	var body struct {
		Completed *bool `json:"completed"`
	}
	if err := utils.DecodeJSON(w, r, &body, h.deps.MaxBodyBytes); err != nil || body.Completed == nil {
		utils.JSONError(w, http.StatusBadRequest, "completed is required")
		return
	}
	tasks, err := store.ListTasks(own)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	changed := 0
	for _, t := range tasks {
		if t.Completed == *body.Completed {
			continue
		}
		t.Completed = *body.Completed
		if err := store.SaveTask(t); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		changed++
	}
	logger.Info("tasks_toggled_all", "owner", own, "completed", *body.Completed, "changed", changed)
	utils.JSONWrite(w, http.StatusOK, map[string]any{"status": "ok", "changed": changed})
}

// clearCompleted handles DELETE /todos?completed=true.
func (h *taskHandlers) clearCompleted(w http.ResponseWriter, r *http.Request) {
	own, ok := owner(w, r)
	if !ok {
		return
	}
	removed, err := store.DeleteCompletedTasks(own, 0)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if removed == nil {
		removed = []string{}
	}
	logger.Info("tasks_cleared_completed", "owner", own, "removed", len(removed))
	utils.JSONWrite(w, http.StatusOK, map[string]any{"status": "ok", "removed": removed})
}
