package chat

import (
	"errors"

	"github.com/RichardoC/ollamachat/internal/models"
	"github.com/RichardoC/ollamachat/internal/stream"
	"github.com/RichardoC/ollamachat/internal/transport"
)

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notice is a user-facing notification, the equivalent of a toast.
type Notice struct {
	Level       Level
	Title       string
	Description string
}

type Notifier interface {
	Notify(Notice)
}

type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type EventKind int

const (
	EventStarted EventKind = iota
	EventDelta
	EventDone
	EventStopped
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventStopped:
		return "stopped"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Event describes a change to the reply being generated. Message carries the
// reply as of the event; Fragment is set for deltas only.
type Event struct {
	Kind           EventKind
	ConversationID string
	Message        models.Message
	Fragment       string
	Err            error
}

// Observer is called synchronously from the goroutine running Send or
// Regenerate.
type Observer func(Event)

// errorDescription prefers the message the backend supplied.
func errorDescription(err error) string {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	var streamErr *stream.Error
	if errors.As(err, &streamErr) {
		return streamErr.Message
	}
	return err.Error()
}
