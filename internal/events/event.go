// Package events carries session progress to observers such as a UI.
//
// Producers call [Notifier.Notify], which never blocks. The [Dispatcher]
// queues events in a bounded buffer and delivers them in order, one at a
// time, to its [Sink]s; when the buffer is full the event is dropped and
// counted. Sinks include the websocket [Hub] and the [LogSink].
package events

import (
	"context"
	"time"

	"github.com/MrWong99/ioanna/pkg/types"
)

// Kind identifies the type of an [Event].
type Kind string

const (
	// KindFaceDetected is sent once a face is in front of the camera.
	KindFaceDetected Kind = "face_detected"

	// KindNewMessage is sent for every question asked and answer heard.
	KindNewMessage Kind = "new_message"

	// KindMemoriesUpdated is sent after a turn was stored. Its data is the
	// full conversation history.
	KindMemoriesUpdated Kind = "memories_updated"

	// KindSessionFinished is sent when the session ends.
	KindSessionFinished Kind = "session_finished"

	// KindStateChanged is sent on every session state transition.
	KindStateChanged Kind = "state_changed"
)

// Event is one notification. Data depends on Kind: a bool for
// face_detected and session_finished, a [types.Message] for new_message, a
// []types.Message for memories_updated and the state name for
// state_changed.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
	Data      any       `json:"data"`
}

// FaceDetected returns a face_detected event.
func FaceDetected(detected bool) Event {
	return Event{Kind: KindFaceDetected, At: time.Now(), Data: detected}
}

// NewMessage returns a new_message event.
func NewMessage(m types.Message) Event {
	return Event{Kind: KindNewMessage, At: time.Now(), Data: m}
}

// MemoriesUpdated returns a memories_updated event with a copy of history.
func MemoriesUpdated(history []types.Message) Event {
	return Event{Kind: KindMemoriesUpdated, At: time.Now(), Data: append([]types.Message(nil), history...)}
}

// SessionFinished returns a session_finished event.
func SessionFinished(ok bool) Event {
	return Event{Kind: KindSessionFinished, At: time.Now(), Data: ok}
}

// StateChanged returns a state_changed event.
func StateChanged(state string) Event {
	return Event{Kind: KindStateChanged, At: time.Now(), Data: state}
}

// Notifier accepts events without blocking.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Sink receives events from a [Dispatcher], one at a time and in order.
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, e Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Discard is a [Notifier] that drops every event.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Event) {}

// WithSession returns a Notifier that stamps every event with id before
// passing it on to n.
func WithSession(n Notifier, id string) Notifier {
	return sessionNotifier{next: n, id: id}
}

type sessionNotifier struct {
	next Notifier
	id   string
}

func (s sessionNotifier) Notify(ctx context.Context, e Event) {
	if e.SessionID == "" {
		e.SessionID = s.id
	}
	s.next.Notify(ctx, e)
}
