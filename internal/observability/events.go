package observability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the AI Loop lifecycle notifications spec.md §4.3
// requires the loop to emit on its notification channel.
type EventType string

const (
	EventAILoopStarted         EventType = "ai_loop_started"
	EventAIRequestPrepared     EventType = "ai_request_prepared"
	EventAIResponseReceived    EventType = "ai_response_received"
	EventToolExecutionStart    EventType = "tool_execution_start"
	EventToolExecutionEnd      EventType = "tool_execution_end"
	EventAILoopErrorOccurred   EventType = "ai_loop_error_occurred"
	EventAILoopStopped         EventType = "ai_loop_stopped"
)

// Event is one entry in a session's bounded event log — what the Session
// Monitor (spec.md §4.5) polls to recompute metrics and classify
// anomalies.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id"`
	TaskID     string         `json:"task_id,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Duration   time.Duration  `json:"duration_ns,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// EventStore is the bounded per-session event log the Session Monitor
// reads from. Implementations must be safe for concurrent Record and Tail
// calls (the AI Loop writes, the Monitor reads, per spec.md §5's
// single-writer/event-interface rule).
type EventStore interface {
	// Record appends event to the log, assigning ID/Timestamp if unset.
	Record(event *Event) error

	// Tail returns up to n most recent events for sessionID, oldest first.
	Tail(sessionID string, n int) []*Event

	// Prune removes events older than olderThan, returning the count
	// removed.
	Prune(olderThan time.Duration) int
}

// MemoryEventStore is an in-process, bounded-per-session EventStore.
type MemoryEventStore struct {
	mu         sync.RWMutex
	bySession  map[string][]*Event
	maxPerSess int
}

// NewMemoryEventStore creates a store that retains at most maxPerSession
// events per session id (oldest evicted first). maxPerSession<=0 defaults
// to 500.
func NewMemoryEventStore(maxPerSession int) *MemoryEventStore {
	if maxPerSession <= 0 {
		maxPerSession = 500
	}
	return &MemoryEventStore{
		bySession:  make(map[string][]*Event),
		maxPerSess: maxPerSession,
	}
}

func (s *MemoryEventStore) Record(event *Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.SessionID == "" {
		return errors.New("event session_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.bySession[event.SessionID], event)
	if len(log) > s.maxPerSess {
		log = log[len(log)-s.maxPerSess:]
	}
	s.bySession[event.SessionID] = log
	return nil
}

func (s *MemoryEventStore) Tail(sessionID string, n int) []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.bySession[sessionID]
	if n <= 0 || n > len(log) {
		n = len(log)
	}
	out := make([]*Event, n)
	copy(out, log[len(log)-n:])
	return out
}

func (s *MemoryEventStore) Prune(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for sessionID, log := range s.bySession {
		kept := log[:0:0]
		for _, e := range log {
			if e.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.bySession, sessionID)
		} else {
			s.bySession[sessionID] = kept
		}
	}
	return removed
}

// EventRecorder is a convenience wrapper pairing an EventStore with a
// Logger so every recorded event is also traced at debug level.
type EventRecorder struct {
	store  EventStore
	logger *Logger
}

// NewEventRecorder builds an EventRecorder.
func NewEventRecorder(store EventStore, logger *Logger) *EventRecorder {
	return &EventRecorder{store: store, logger: logger}
}

// Record appends an event for sessionID, tagging it with the given type,
// tool correlation fields, and free-form data.
func (r *EventRecorder) Record(ctx context.Context, sessionID string, eventType EventType, data map[string]any) {
	event := &Event{
		Type:      eventType,
		SessionID: sessionID,
		TaskID:    GetTaskIDFromContext(ctx),
		Data:      data,
	}
	if err := r.store.Record(event); err != nil && r.logger != nil {
		r.logger.Warn(ctx, "event record failed", "error", err, "event_type", string(eventType))
		return
	}
	if r.logger != nil {
		r.logger.Debug(ctx, fmt.Sprintf("event: %s", eventType), "session_id", sessionID)
	}
}

// GetTaskIDFromContext is a small helper kept separate from SessionIDFromContext so
// callers without a task in flight (e.g. batch runtime) don't need one.
func GetTaskIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(TaskIDKey).(string); ok {
		return id
	}
	return ""
}

// sortByTimestamp orders events oldest first. Nothing in the module calls it.
func sortByTimestamp(events []*Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
}
