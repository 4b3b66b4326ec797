package mailbox

import "testing"

func TestSendRequiresRecipient(t *testing.T) {
	mb := New()
	if _, err := mb.Send("alice", "", "subject", "body"); err == nil {
		t.Fatalf("expected error sending to an empty recipient")
	}
}

func TestCheckReturnsUnreadInOrder(t *testing.T) {
	mb := New()
	_, _ = mb.Send("alice", "patricia", "first", "hello")
	_, _ = mb.Send("alice", "patricia", "second", "world")

	unread := mb.Check("patricia")
	if len(unread) != 2 {
		t.Fatalf("expected 2 unread messages, got %d", len(unread))
	}
	if unread[0].Subject != "first" || unread[1].Subject != "second" {
		t.Fatalf("expected messages in delivery order, got %+v", unread)
	}
}

func TestCheckIsAtMostOnce(t *testing.T) {
	mb := New()
	_, _ = mb.Send("alice", "patricia", "subject", "body")

	first := mb.Check("patricia")
	if len(first) != 1 {
		t.Fatalf("expected 1 message on first check, got %d", len(first))
	}
	second := mb.Check("patricia")
	if len(second) != 0 {
		t.Fatalf("expected message to be consumed after first check, got %d", len(second))
	}
}

func TestReplyThreadsToSender(t *testing.T) {
	mb := New()
	original, _ := mb.Send("alice", "patricia", "question", "are you there?")

	reply, err := mb.Reply(original.ID, "yes")
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if reply.To != "alice" || reply.From != "patricia" {
		t.Fatalf("expected reply routed back to original sender, got from=%s to=%s", reply.From, reply.To)
	}
	if reply.InReplyTo != original.ID {
		t.Fatalf("expected InReplyTo to reference the original message")
	}

	unread := mb.Check("alice")
	if len(unread) != 1 || unread[0].ID != reply.ID {
		t.Fatalf("expected alice's inbox to contain the reply")
	}
}

func TestReplyToUnknownMessageErrors(t *testing.T) {
	mb := New()
	if _, err := mb.Reply("nonexistent", "body"); err == nil {
		t.Fatalf("expected error replying to an unknown message id")
	}
}

func TestHistoryIncludesReadMessages(t *testing.T) {
	mb := New()
	_, _ = mb.Send("alice", "patricia", "subject", "body")
	mb.Check("patricia")

	history := mb.History("patricia")
	if len(history) != 1 {
		t.Fatalf("expected history to retain read messages, got %d", len(history))
	}
}
