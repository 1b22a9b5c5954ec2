// Package notification sends transactional email: verification codes and
// diagnostic reports. Messages carry an HTML part, a plain-text part and
// optional attachments.
package notification

import (
	"context"
	"errors"
	"sync"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// EmailSender delivers a Message.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []Message
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockEmailSender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded messages.
func (m *MockEmailSender) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// Last returns the most recent message, if any.
func (m *MockEmailSender) Last() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Message{}, false
	}
	return m.calls[len(m.calls)-1], true
}
