// Package notify carries user-facing outcome messages from services to the
// browser. Services receive a Notifier; nothing here is global.
package notify

import (
	"context"
	"sync"
	"time"

	"rentaldesk/console/internal/logging"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, level Level, message string)
}

type recipientKey struct{}

// WithRecipient tags ctx with the session that should receive notices.
func WithRecipient(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, recipientKey{}, sessionID)
}

func RecipientFromContext(ctx context.Context) string {
	id, _ := ctx.Value(recipientKey{}).(string)
	return id
}

const defaultOutboxSize = 32

// Outbox queues notices per session until the browser drains them. Each queue
// keeps only the newest notices.
type Outbox struct {
	mu     sync.Mutex
	queues map[string][]Notice
	limit  int
	now    func() time.Time
}

func NewOutbox(limit int) *Outbox {
	if limit <= 0 {
		limit = defaultOutboxSize
	}
	return &Outbox{
		queues: make(map[string][]Notice),
		limit:  limit,
		now:    time.Now,
	}
}

// Notify queues for the recipient in ctx. Without one the notice is dropped.
func (o *Outbox) Notify(ctx context.Context, level Level, message string) {
	recipient := RecipientFromContext(ctx)
	if recipient == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	queue := append(o.queues[recipient], Notice{Level: level, Message: message, At: o.now().UTC()})
	if len(queue) > o.limit {
		queue = queue[len(queue)-o.limit:]
	}
	o.queues[recipient] = queue
}

// Drain returns and clears the session's queue, oldest first.
func (o *Outbox) Drain(sessionID string) []Notice {
	o.mu.Lock()
	defer o.mu.Unlock()

	queue := o.queues[sessionID]
	delete(o.queues, sessionID)
	if queue == nil {
		return []Notice{}
	}
	return queue
}

// Pending reports how many notices wait for the session.
func (o *Outbox) Pending(sessionID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queues[sessionID])
}

// Forget drops a session's queue once the session is over.
func (o *Outbox) Forget(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.queues, sessionID)
}

type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) LogNotifier {
	return LogNotifier{logger: logger.WithComponent("notify")}
}

func (n LogNotifier) Notify(ctx context.Context, level Level, message string) {
	fields := []any{"level", string(level), "session_id", RecipientFromContext(ctx)}
	switch level {
	case LevelError:
		n.logger.Warnw(message, fields...)
	default:
		n.logger.Infow(message, fields...)
	}
}

// Multi fans a notice out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, level Level, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, level, message)
		}
	}
}

type Discard struct{}

func (Discard) Notify(context.Context, Level, string) {}
