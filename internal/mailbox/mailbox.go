// Package mailbox implements the in-process Mailbox (spec.md §4.4): agents
// addressed by well-known name exchange messages synchronously, with no
// background delivery worker.
package mailbox

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

// Message is one mailbox entry.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	InReplyTo string    `json:"in_reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"-"`
}

// Mailbox is the process-wide message store. Delivery is synchronous and
// at-most-once: Send places the message directly into the recipient's
// ordered inbox under lock; there is no queue worker or retry.
type Mailbox struct {
	mu      sync.Mutex
	inboxes map[string][]*Message
	byID    map[string]*Message
}

// New returns an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{
		inboxes: make(map[string][]*Message),
		byID:    make(map[string]*Message),
	}
}

// Send delivers a message from one well-known agent name to another,
// appending it to the recipient's ordered inbox.
func (m *Mailbox) Send(from, to, subject, body string) (*Message, error) {
	if to == "" {
		return nil, errs.New(errs.KindInvalidArguments, "mailbox send requires a non-empty recipient")
	}
	msg := &Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inboxes[to] = append(m.inboxes[to], msg)
	m.byID[msg.ID] = msg
	return msg, nil
}

// Check returns the unread messages for agent, in delivery order, marking
// them read as they're returned — at-most-once per spec.md §4.4.
func (m *Mailbox) Check(agent string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	inbox := m.inboxes[agent]
	var unread []*Message
	for _, msg := range inbox {
		if !msg.Read {
			msg.Read = true
			unread = append(unread, msg)
		}
	}
	return unread
}

// Reply sends a response to the sender of messageID, threading it via
// InReplyTo.
func (m *Mailbox) Reply(messageID, body string) (*Message, error) {
	m.mu.Lock()
	original, ok := m.byID[messageID]
	m.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.KindInvalidArguments, fmt.Sprintf("no message with id %q", messageID))
	}

	reply, err := m.Send(original.To, original.From, "Re: "+original.Subject, body)
	if err != nil {
		return nil, err
	}
	reply.InReplyTo = original.ID
	return reply, nil
}

// History returns every message ever delivered to agent, read or unread,
// in delivery order.
func (m *Mailbox) History(agent string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	inbox := m.inboxes[agent]
	out := make([]*Message, len(inbox))
	copy(out, inbox)
	return out
}
