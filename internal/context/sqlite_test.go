package context

import (
	"testing"

	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

func openTestPersister(t *testing.T) *SQLitePersister {
	t.Helper()
	p, err := OpenSQLitePersister(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLitePersister: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSQLitePersisterAppendAndLoad(t *testing.T) {
	p := openTestPersister(t)

	if err := p.Append("task-1", models.Message{ID: "m1", Role: models.RoleUser, Content: "first"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := p.Append("task-1", models.Message{ID: "m2", Role: models.RoleAssistant, Content: "second"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	history, err := p.Load("task-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "first" || history[1].Content != "second" {
		t.Fatalf("expected append order preserved, got %+v", history)
	}
}

func TestSQLitePersisterScopesByTaskID(t *testing.T) {
	p := openTestPersister(t)

	if err := p.Append("task-a", models.Message{Role: models.RoleUser, Content: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := p.Append("task-b", models.Message{Role: models.RoleUser, Content: "b"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	historyA, err := p.Load("task-a")
	if err != nil {
		t.Fatalf("Load task-a: %v", err)
	}
	if len(historyA) != 1 || historyA[0].Content != "a" {
		t.Fatalf("expected task-a history isolated, got %+v", historyA)
	}
}

func TestSQLitePersisterClear(t *testing.T) {
	p := openTestPersister(t)

	if err := p.Append("task-1", models.Message{Role: models.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := p.Clear("task-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	history, err := p.Load("task-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history after Clear, got %d", len(history))
	}
}

func TestNewPersistedResumesHistory(t *testing.T) {
	p := openTestPersister(t)
	if err := p.Append("task-1", models.Message{Role: models.RoleUser, Content: "earlier"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	s, err := NewPersisted("task-1", p)
	if err != nil {
		t.Fatalf("NewPersisted: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected resumed store to preload 1 message, got %d", s.Len())
	}

	s.Add(models.Message{Role: models.RoleAssistant, Content: "new"})
	history, err := p.Load("task-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected persisted store to record new Add, got %d entries", len(history))
	}
}
