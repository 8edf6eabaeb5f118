// Package notification delivers user-facing messages. Delivery is
// fire-and-forget: failures are logged by callers, never propagated.
package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Notifier sends a message to a user
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, message string) error
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the message at info level
func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, message string) error {
	n.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"channel": "log",
	}).Info(message)
	return nil
}

// Message is a notification captured by Recorder
type Message struct {
	UserID uuid.UUID
	Text   string
}

// Recorder keeps notifications in memory
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Notify records the message
func (r *Recorder) Notify(ctx context.Context, userID uuid.UUID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{UserID: userID, Text: message})
	return nil
}

// Messages returns a copy of everything recorded so far
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
