// Package client implements the task list state kept by a UI: an
// in-memory store that applies every mutation locally first and pushes
// the change to the backend in the background.
package client

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"taskdeck/pkg/logger"
	"taskdeck/pkg/models"
)

// Backend is the remote half of the store. The store never blocks UI
// mutations on it; sync failures are logged and the local state stands.
type Backend interface {
	FetchTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, t models.Task) error
	UpdateTask(ctx context.Context, id string, p models.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
	DeleteCompleted(ctx context.Context) error
	SetAllCompleted(ctx context.Context, completed bool) error
}

// Store holds the task list. All exported methods are safe for concurrent
// use.
type Store struct {
	mu       sync.Mutex
	tasks    []models.Task
	hydrated bool
	backend  Backend
	syncTO   time.Duration
	idSeq    uint64
	wg       sync.WaitGroup
}

// New returns a store backed by b. A nil backend keeps the store purely
// local, which tests use.
func New(b Backend) *Store {
	return &Store{backend: b, syncTO: 10 * time.Second}
}

// Hydrate loads the task list from the backend. Only the first call
// fetches; later calls return immediately so a remount never clobbers
// local edits. A failed fetch still counts as hydrated: the list stays
// empty and the failure is only logged, never refetched.
func (s *Store) Hydrate(ctx context.Context) {
	s.mu.Lock()
	if s.hydrated || s.backend == nil {
		s.mu.Unlock()
		return
	}
	s.hydrated = true
	s.mu.Unlock()

	tasks, err := s.backend.FetchTasks(ctx)
	if err != nil {
		logger.Warn("hydrate_failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = tasks
}

// Tasks returns a snapshot of the list in display order.
func (s *Store) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Len returns the number of tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Wait blocks until every background sync launched so far has finished.
// Tests use it; a UI never needs to.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) genID() string {
	n := time.Now().UTC().UnixNano()
	q := atomic.AddUint64(&s.idSeq, 1)
	return fmt.Sprintf("task-%d-%d", n, q)
}

// sync runs one backend call in the background and logs failures.
func (s *Store) sync(op string, fn func(ctx context.Context) error) {
	if s.backend == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTO)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Warn("task_sync_failed", "op", op, "error", err)
		}
	}()
}

// Add prepends a new task with the given priority and optional due date
// (YYYY-MM-DD; empty for none). An empty priority falls back to medium.
// Whitespace-only titles are rejected.
func (s *Store) Add(title string, priority models.Priority, dueDate string) (models.Task, error) {
	if strings.TrimSpace(title) == "" {
		return models.Task{}, fmt.Errorf("title is required")
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidPriority(priority) {
		return models.Task{}, fmt.Errorf("invalid priority %q", priority)
	}
	now := time.Now().UTC().UnixNano()
	t := models.Task{
		ID:        s.genID(),
		Title:     title,
		Priority:  priority,
		DueDate:   dueDate,
		CreatedTS: now,
		Position:  now,
	}
	s.mu.Lock()
	s.tasks = append([]models.Task{t}, s.tasks...)
	s.mu.Unlock()
	s.sync("create", func(ctx context.Context) error {
		return s.backend.CreateTask(ctx, t)
	})
	return t, nil
}

// patchLocal applies p to the task with the given id and queues the
// matching backend update. Unknown ids are a no-op.
func (s *Store) patchLocal(op, id string, p models.TaskPatch) bool {
	s.mu.Lock()
	found := false
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			p.Apply(&s.tasks[i])
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return false
	}
	s.sync(op, func(ctx context.Context) error {
		return s.backend.UpdateTask(ctx, id, p)
	})
	return true
}

// Toggle flips a task's completed state.
func (s *Store) Toggle(id string) {
	s.mu.Lock()
	var next bool
	found := false
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			next = !s.tasks[i].Completed
			s.tasks[i].Completed = next
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return
	}
	s.sync("toggle", func(ctx context.Context) error {
		return s.backend.UpdateTask(ctx, id, models.TaskPatch{Completed: &next})
	})
}

// Rename changes a task's title. Whitespace-only titles leave the task
// untouched.
func (s *Store) Rename(id, title string) {
	if strings.TrimSpace(title) == "" {
		return
	}
	s.patchLocal("rename", id, models.TaskPatch{Title: &title})
}

// SetPriority changes a task's priority.
func (s *Store) SetPriority(id string, p models.Priority) error {
	if !models.ValidPriority(p) {
		return fmt.Errorf("invalid priority %q", p)
	}
	s.patchLocal("set_priority", id, models.TaskPatch{Priority: &p})
	return nil
}

// SetDueDate changes a task's due date (YYYY-MM-DD; empty clears it).
func (s *Store) SetDueDate(id, date string) {
	s.patchLocal("set_due_date", id, models.TaskPatch{DueDate: &date})
}

// SetNotes replaces a task's notes.
func (s *Store) SetNotes(id, notes string) {
	s.patchLocal("set_notes", id, models.TaskPatch{Notes: &notes})
}

// Remove deletes a task.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	found := false
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return
	}
	s.sync("delete", func(ctx context.Context) error {
		return s.backend.DeleteTask(ctx, id)
	})
}

// ClearCompleted drops every completed task, preserving the relative
// order of the rest.
func (s *Store) ClearCompleted() {
	s.mu.Lock()
	kept := s.tasks[:0]
	removed := 0
	for _, t := range s.tasks {
		if t.Completed {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
	s.mu.Unlock()
	if removed == 0 {
		return
	}
	s.sync("clear_completed", func(ctx context.Context) error {
		return s.backend.DeleteCompleted(ctx)
	})
}

// ToggleAll sets every task's completed flag to the given value,
// regardless of each task's prior state.
func (s *Store) ToggleAll(completed bool) {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return
	}
	for i := range s.tasks {
		s.tasks[i].Completed = completed
	}
	s.mu.Unlock()
	s.sync("toggle_all", func(ctx context.Context) error {
		return s.backend.SetAllCompleted(ctx, completed)
	})
}

// Direction selects which neighbour Reorder swaps with.
type Direction int

const (
	MoveUp Direction = iota
	MoveDown
)

// Reorder swaps a task with its neighbour. Moving the first task up or
// the last task down is a no-op. The swap trades the two tasks'
// positions, so each side becomes one field update.
func (s *Store) Reorder(id string, dir Direction) {
	s.mu.Lock()
	idx := -1
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	j := idx - 1
	if dir == MoveDown {
		j = idx + 1
	}
	if j < 0 || j >= len(s.tasks) {
		s.mu.Unlock()
		return
	}
	a, b := &s.tasks[idx], &s.tasks[j]
	a.Position, b.Position = b.Position, a.Position
	aID, aPos := a.ID, a.Position
	bID, bPos := b.ID, b.Position
	s.tasks[idx], s.tasks[j] = s.tasks[j], s.tasks[idx]
	s.mu.Unlock()

	s.sync("reorder", func(ctx context.Context) error {
		if err := s.backend.UpdateTask(ctx, aID, models.TaskPatch{Position: &aPos}); err != nil {
			return err
		}
		return s.backend.UpdateTask(ctx, bID, models.TaskPatch{Position: &bPos})
	})
}

// SortByPosition re-sorts the list into display order. Useful after
// hydration from a backend that returns unsorted data.
func (s *Store) SortByPosition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.tasks, func(i, j int) bool {
		if s.tasks[i].Position != s.tasks[j].Position {
			return s.tasks[i].Position > s.tasks[j].Position
		}
		return s.tasks[i].CreatedTS > s.tasks[j].CreatedTS
	})
}
