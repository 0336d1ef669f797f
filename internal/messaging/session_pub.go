package messaging

import (
	"encoding/json"
	"log/slog"

	"github.com/pixil98/go-town/internal/town"
)

// Publisher is the slice of the broker the session publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// EventFrame is the wire form of a broadcast event pushed to a client.
type EventFrame struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// SessionPublisher is the bus listener registered for one connected session.
// It serializes events and publishes them to the session's NATS subject,
// where the connection's writer goroutine picks them up. Publishing never
// blocks on the client's socket, which keeps bus delivery fast.
type SessionPublisher struct {
	token string
	pub   Publisher
}

func NewSessionPublisher(token string, pub Publisher) *SessionPublisher {
	return &SessionPublisher{token: token, pub: pub}
}

// ID implements town.Listener; the session token identifies the listener so
// transport teardown can remove it by token alone.
func (p *SessionPublisher) ID() string {
	return p.token
}

// Notify implements town.Listener.
func (p *SessionPublisher) Notify(ev town.Event) {
	frame := EventFrame{
		Type:    "event",
		Event:   string(ev.Kind),
		Payload: ev.Payload,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("encoding event frame", "event", ev.Kind, "error", err)
		return
	}
	if err := p.pub.Publish(SessionSubject(p.token), data); err != nil {
		slog.Warn("publishing event frame", "event", ev.Kind, "error", err)
	}
}
