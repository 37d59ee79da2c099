package models

// Priority is the task urgency level. New tasks default to PriorityMedium.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriority reports whether p is one of the known priority values.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a single todo record. Owner is the creating user's id and is
// required whenever the record is persisted server-side. Position carries
// the manually maintained list ordering: higher positions sort first, so
// newly created tasks (which take the current timestamp as their initial
// position) land at the top of the list.
type Task struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Completed bool     `json:"completed"`
	Priority  Priority `json:"priority"`
	// DueDate is a calendar date in YYYY-MM-DD form, no time component.
	DueDate string `json:"due_date,omitempty"`
	Notes   string `json:"notes,omitempty"`
	Owner   string `json:"owner,omitempty"`
	// CreatedTS is a UTC unix-nano timestamp, used as ordering tie-break.
	CreatedTS int64 `json:"created_ts"`
	Position  int64 `json:"position"`
}

// TaskPatch is a partial update to a task. Nil fields are left untouched;
// handlers merge non-nil fields into the stored record. Sending diffs
// instead of whole records keeps concurrent writers from clobbering fields
// they never touched.
type TaskPatch struct {
	Title     *string   `json:"title,omitempty"`
	Completed *bool     `json:"completed,omitempty"`
	Priority  *Priority `json:"priority,omitempty"`
	DueDate   *string   `json:"due_date,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Position  *int64    `json:"position,omitempty"`
}

// Apply merges the patch into t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
}
