// Package notify delivers short user-visible status messages emitted by the
// pipeline stages.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Intent tells the presentation layer how to style a message.
type Intent string

const (
	IntentInfo    Intent = "info"
	IntentSuccess Intent = "success"
	IntentFailure Intent = "failure"
)

// Message is one status update.
type Message struct {
	SessionID string    `json:"sessionId"`
	Stage     string    `json:"stage"`
	Intent    Intent    `json:"intent"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Messenger receives messages. Implementations must be safe for concurrent use
// and must not block the caller for long.
type Messenger interface {
	Notify(ctx context.Context, msg Message)
}

// Logger writes messages to slog.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (l *Logger) Notify(ctx context.Context, msg Message) {
	level := slog.LevelInfo
	if msg.Intent == IntentFailure {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, msg.Text, "sessionId", msg.SessionID, "stage", msg.Stage, "intent", string(msg.Intent))
}

// Recorder keeps the most recent messages in memory.
type Recorder struct {
	mu    sync.Mutex
	limit int
	msgs  []Message
}

// NewRecorder keeps at most limit messages; limit <= 0 means unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	if r.limit > 0 && len(r.msgs) > r.limit {
		r.msgs = append([]Message(nil), r.msgs[len(r.msgs)-r.limit:]...)
	}
}

// Messages returns a copy of the recorded messages, oldest first.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Last returns the most recent message.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return Message{}, false
	}
	return r.msgs[len(r.msgs)-1], true
}

// Multi fans a message out to every messenger in order.
type Multi []Messenger

func (m Multi) Notify(ctx context.Context, msg Message) {
	for _, messenger := range m {
		if messenger != nil {
			messenger.Notify(ctx, msg)
		}
	}
}
