package validation

import (
	"fmt"
	"strings"
	"time"

	"taskdeck/pkg/models"
)

const (
	MaxTitleLen = 500
	MaxNotesLen = 4000
)

// Title checks that a task title is present and not whitespace-only.
func Title(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("title is required")
	}
	if len(s) > MaxTitleLen {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLen)
	}
	return nil
}

// Notes bounds free-form note text.
func Notes(s string) error {
	if len(s) > MaxNotesLen {
		return fmt.Errorf("notes exceed %d characters", MaxNotesLen)
	}
	return nil
}

// Priority checks the priority enum.
func Priority(p models.Priority) error {
	if !models.ValidPriority(p) {
		return fmt.Errorf("priority must be one of low, medium, high")
	}
	return nil
}

// DueDate checks a calendar date in YYYY-MM-DD form. Empty clears the
// due date and is always valid.
func DueDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("due date must be YYYY-MM-DD")
	}
	return nil
}

// NewTask validates a complete task payload on create.
func NewTask(t models.Task) error {
	if err := Title(t.Title); err != nil {
		return err
	}
	if err := Notes(t.Notes); err != nil {
		return err
	}
	if t.Priority != "" {
		if err := Priority(t.Priority); err != nil {
			return err
		}
	}
	return DueDate(t.DueDate)
}

// TaskPatch validates only the fields a patch carries.
func TaskPatch(p models.TaskPatch) error {
	if p.Title != nil {
		if err := Title(*p.Title); err != nil {
			return err
		}
	}
	if p.Notes != nil {
		if err := Notes(*p.Notes); err != nil {
			return err
		}
	}
	if p.Priority != nil {
		if err := Priority(*p.Priority); err != nil {
			return err
		}
	}
	if p.DueDate != nil {
		if err := DueDate(*p.DueDate); err != nil {
			return err
		}
	}
	return nil
}

// Registration validates a signup payload.
func Registration(name, email, username, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if err := Email(email); err != nil {
		return err
	}
	if err := Username(username); err != nil {
		return err
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

// Email is a light shape check; real verification happens via the emailed
// token flow.
func Email(s string) error {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || !strings.Contains(s[at+1:], ".") {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// Username allows letters, digits, dashes and underscores.
func Username(s string) error {
	if len(s) < 3 || len(s) > 32 {
		return fmt.Errorf("username must be 3-32 characters")
	}
	for _, r := range s {
		ok := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("username may contain letters, digits, - and _")
		}
	}
	return nil
}
