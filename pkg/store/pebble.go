package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"taskdeck/pkg/logger"
	"taskdeck/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// seq reduces chat key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// Key namespaces. Tasks and chat turns are prefixed by owner so normal
// reads are owner-scoped prefix scans; FindTaskOwner is the one
// cross-owner walk, used only to classify a miss.
func taskKey(owner, id string) []byte {
	return []byte("task:" + owner + ":" + id)
}

func userKey(id string) []byte {
	return []byte("user:" + id + ":meta")
}

func userIdxKey(kind, value string) []byte {
	return []byte("useridx:" + kind + ":" + value)
}

func chatKey(owner string, ts int64, s uint64) []byte {
	return []byte(fmt.Sprintf("chat:%s:msg:%020d-%06d", owner, ts, s))
}

// SaveTask writes a task record under its owner's namespace.
func SaveTask(t models.Task) error {
	if db == nil {
		return notOpened()
	}
	if t.Owner == "" || t.ID == "" {
		return fmt.Errorf("task owner and id are required")
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := db.Set(taskKey(t.Owner, t.ID), b, pebble.Sync); err != nil {
		logger.Error("save_task_failed", "owner", t.Owner, "id", t.ID, "error", err)
		observeOp("save_task", err)
		return err
	}
	observeOp("save_task", nil)
	logger.Debug("task_saved", "owner", t.Owner, "id", t.ID)
	return nil
}

// GetTask returns a task by owner and id, or ErrNotFound.
func GetTask(owner, id string) (models.Task, error) {
	var t models.Task
	if db == nil {
		return t, notOpened()
	}
	v, closer, err := db.Get(taskKey(owner, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return t, ErrNotFound
		}
		return t, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &t); err != nil {
		return t, fmt.Errorf("invalid stored task: %w", err)
	}
	return t, nil
}

// FindTaskOwner walks the task namespace for a record with the given id
// and returns its owner, or ErrNotFound. Handlers use this to tell an
// owner mismatch apart from a record that does not exist anywhere.
func FindTaskOwner(id string) (string, error) {
	if db == nil {
		return "", notOpened()
	}
	prefix := []byte("task:")
	suffix := []byte(":" + id)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return "", err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if !bytes.HasSuffix(k, suffix) {
			continue
		}
		rest := k[len(prefix) : len(k)-len(suffix)]
		if len(rest) > 0 && bytes.IndexByte(rest, ':') < 0 {
			return string(rest), nil
		}
	}
	if err := iter.Error(); err != nil {
		return "", err
	}
	return "", ErrNotFound
}

// DeleteTask removes a task by owner and id. Deleting an absent record
// returns ErrNotFound so handlers can 404.
func DeleteTask(owner, id string) error {
	if db == nil {
		return notOpened()
	}
	if _, err := GetTask(owner, id); err != nil {
		return err
	}
	if err := db.Delete(taskKey(owner, id), pebble.Sync); err != nil {
		logger.Error("delete_task_failed", "owner", owner, "id", id, "error", err)
		observeOp("delete_task", err)
		return err
	}
	observeOp("delete_task", nil)
	logger.Debug("task_deleted", "owner", owner, "id", id)
	return nil
}

// ListTasks returns all tasks owned by owner in client list order:
// position descending, creation timestamp as tie-break.
func ListTasks(owner string) ([]models.Task, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("task:" + owner + ":")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Task
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var t models.Task
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			logger.Warn("skip_invalid_task", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, t)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position > out[j].Position
		}
		return out[i].CreatedTS > out[j].CreatedTS
	})
	observeOp("list_tasks", nil)
	return out, nil
}

// DeleteCompletedTasks removes owner's completed tasks, optionally only
// those created before the cutoff (unix nanos; zero means all). It returns
// the ids removed.
func DeleteCompletedTasks(owner string, cutoffTS int64) ([]string, error) {
	tasks, err := ListTasks(owner)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, t := range tasks {
		if !t.Completed {
			continue
		}
		if cutoffTS > 0 && t.CreatedTS >= cutoffTS {
			continue
		}
		if err := db.Delete(taskKey(owner, t.ID), pebble.Sync); err != nil {
			observeOp("delete_completed", err)
			return removed, err
		}
		removed = append(removed, t.ID)
	}
	observeOp("delete_completed", nil)
	return removed, nil
}

// ScanTaskOwners walks the whole task namespace and reports each distinct
// owner once. Used by the retention runner.
func ScanTaskOwners(fn func(owner string) error) error {
	if db == nil {
		return notOpened()
	}
	prefix := []byte("task:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	var last string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		rest := string(k[len(prefix):])
		i := bytes.IndexByte([]byte(rest), ':')
		if i < 0 {
			continue
		}
		owner := rest[:i]
		if owner == last {
			continue
		}
		last = owner
		if err := fn(owner); err != nil {
			return err
		}
	}
	return iter.Error()
}

// SaveUser writes a user record and its unique email/username indexes. The
// caller is responsible for checking uniqueness first (LookupUserID).
func SaveUser(u models.User) error {
	if db == nil {
		return notOpened()
	}
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := db.Set(userKey(u.ID), b, pebble.Sync); err != nil {
		observeOp("save_user", err)
		return err
	}
	if u.Email != "" {
		if err := db.Set(userIdxKey("email", u.Email), []byte(u.ID), pebble.Sync); err != nil {
			observeOp("save_user", err)
			return err
		}
	}
	if u.Username != "" {
		if err := db.Set(userIdxKey("name", u.Username), []byte(u.ID), pebble.Sync); err != nil {
			observeOp("save_user", err)
			return err
		}
	}
	observeOp("save_user", nil)
	logger.Debug("user_saved", "id", u.ID)
	return nil
}

// GetUser returns a user record by id, or ErrNotFound.
func GetUser(id string) (models.User, error) {
	var u models.User
	if db == nil {
		return u, notOpened()
	}
	v, closer, err := db.Get(userKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return u, ErrNotFound
		}
		return u, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &u); err != nil {
		return u, fmt.Errorf("invalid stored user: %w", err)
	}
	return u, nil
}

// LookupUserID resolves an email or username index entry to a user id.
// kind is "email" or "name".
func LookupUserID(kind, value string) (string, error) {
	if db == nil {
		return "", notOpened()
	}
	v, closer, err := db.Get(userIdxKey(kind, value))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}

// AppendChatMessage appends one conversation turn for owner in insertion
// order.
func AppendChatMessage(owner string, m models.ChatMessage) error {
	if db == nil {
		return notOpened()
	}
	ts := m.TS
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
		m.TS = ts
	}
	s := atomic.AddUint64(&seq, 1)
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	if err := db.Set(chatKey(owner, ts, s), b, pebble.Sync); err != nil {
		observeOp("append_chat", err)
		return err
	}
	observeOp("append_chat", nil)
	return nil
}

// ListChatMessages returns owner's conversation turns in insertion order.
// A positive limit keeps only the most recent messages.
func ListChatMessages(owner string, limit int) ([]models.ChatMessage, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("chat:" + owner + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.ChatMessage
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.ChatMessage
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	observeOp("list_chat", nil)
	return out, nil
}
