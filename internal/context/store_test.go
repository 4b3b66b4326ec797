package context

import (
	"testing"

	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

func TestStoreHistoryPreservesOrder(t *testing.T) {
	s := New()
	s.Add(models.Message{Role: models.RoleUser, Content: "first"})
	s.Add(models.Message{Role: models.RoleAssistant, Content: "second"})
	s.Add(models.Message{Role: models.RoleUser, Content: "third"})

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	if history[0].Content != "first" || history[2].Content != "third" {
		t.Fatalf("expected insertion order preserved, got %+v", history)
	}
}

func TestStoreClearResetsHistory(t *testing.T) {
	s := New()
	s.Add(models.Message{Role: models.RoleUser, Content: "x"})
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected 0 messages after Clear, got %d", s.Len())
	}
}

func TestStoreHistoryReturnsCopy(t *testing.T) {
	s := New()
	s.Add(models.Message{Role: models.RoleUser, Content: "x"})

	history := s.History()
	history[0].Content = "mutated"

	original, _ := s.Last()
	if original.Content != "x" {
		t.Fatalf("expected History() to return a copy, mutation leaked into store: %q", original.Content)
	}
}

func TestStoreDoesNotDeduplicate(t *testing.T) {
	s := New()
	s.Add(models.Message{Role: models.RoleUser, Content: "dup"})
	s.Add(models.Message{Role: models.RoleUser, Content: "dup"})
	if s.Len() != 2 {
		t.Fatalf("expected no implicit deduplication, got %d messages", s.Len())
	}
}

func TestStoreLastOnEmptyStore(t *testing.T) {
	s := New()
	if _, ok := s.Last(); ok {
		t.Fatalf("expected Last() to report false on an empty store")
	}
}
