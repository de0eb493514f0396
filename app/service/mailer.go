package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type MailMessage struct {
	From    string
	To      string
	Subject string
	Body    string
	Link    string
}

// Mailer delivers outbound mail. Delivery happens off the request path and
// failures never fail the operation that triggered the mail.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

type AsyncRunner func(task func())

// LogMailer writes mail to the log instead of delivering it. The body carries
// live tokens and is only logged at debug level; it is meant for development.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) Send(_ context.Context, msg MailMessage) error {
	entry := logrus.WithFields(logrus.Fields{
		"from":    msg.From,
		"to":      msg.To,
		"subject": msg.Subject,
	})
	entry.Info("Mail dispatched")
	entry.WithField("body", msg.Body).Debug("Mail body")
	return nil
}

// MemoryMailer keeps every message in memory.
type MemoryMailer struct {
	mu       sync.Mutex
	messages []MailMessage
	err      error
}

func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

// FailWith makes subsequent sends return err.
func (m *MemoryMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryMailer) Send(_ context.Context, msg MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MemoryMailer) Messages() []MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MailMessage(nil), m.messages...)
}

func (m *MemoryMailer) Last() (MailMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return MailMessage{}, false
	}
	return m.messages[len(m.messages)-1], true
}
