package context

import (
	"sync"

	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

// Persister durably backs a Store's history under a task ID, so a
// restarted process can resume a session's Context instead of starting
// from empty (spec.md §4.6 session_restart). Implementations must be
// safe for concurrent use by a single Store.
type Persister interface {
	Append(taskID string, message models.Message) error
	Load(taskID string) ([]models.Message, error)
	Clear(taskID string) error
}

// Store is the per-task Context Store (spec.md §4.2): an ordered,
// role-tagged conversation history with no deduplication and no implicit
// compression. Callers that want windowing apply it explicitly via Window
// or Truncator; Store itself never drops a message on its own.
//
// A Store created with New is purely in-memory. One created with
// NewPersisted additionally writes through to a Persister, so the
// history survives process restarts.
type Store struct {
	mu        sync.RWMutex
	messages  []models.Message
	taskID    string
	persister Persister
}

// New returns an empty, in-memory Store, one per active task/session per
// spec.md §4.2 ("stores are not shared across tasks").
func New() *Store {
	return &Store{}
}

// NewPersisted returns a Store backed by persister under taskID, preloaded
// with any history persister already holds for that task (the resume path
// for a restarted session). Every subsequent Add and Clear writes through.
func NewPersisted(taskID string, persister Persister) (*Store, error) {
	history, err := persister.Load(taskID)
	if err != nil {
		return nil, err
	}
	return &Store{messages: history, taskID: taskID, persister: persister}, nil
}

// Add appends message to the history, preserving call order.
func (s *Store) Add(message models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	if s.persister != nil {
		// Best-effort: a durability failure must not block the AI Loop,
		// which already holds the message in memory for this process's
		// lifetime. A failed Append is not retried, so the persisted
		// history then lacks that message.
		_ = s.persister.Append(s.taskID, message)
	}
}

// Clear resets the history to empty.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	if s.persister != nil {
		_ = s.persister.Clear(s.taskID)
	}
}

// History returns the full ordered sequence of messages. The returned
// slice is a copy; mutating it does not affect the store.
func (s *Store) History() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the current message count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recently added message, if any.
func (s *Store) Last() (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}
