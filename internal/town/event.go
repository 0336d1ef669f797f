package town

// EventKind names a broadcast event. The values double as the wire-level
// event names pushed to connected clients.
type EventKind string

const (
	EventPlayerJoined     EventKind = "newPlayer"
	EventPlayerMoved      EventKind = "playerMoved"
	EventPlayerDisconnect EventKind = "playerDisconnect"
	EventTownClosing      EventKind = "townClosing"
	EventAreaUpdated      EventKind = "conversationAreaUpdated"
	EventPostCreate       EventKind = "onPostCreate"
	EventPostUpdate       EventKind = "onPostUpdate"
	EventPostDelete       EventKind = "onPostDelete"
	EventCommentUpdate    EventKind = "commentUpdate"
)

// Event is a tagged variant delivered to every registered listener. Payload
// holds *Player, *ConversationArea, or the annotation layer's post/comment
// payloads depending on Kind.
type Event struct {
	Kind    EventKind
	Payload any
}

// Listener observes town or post state changes. Notify is called
// synchronously under the lock of the coordinator that produced the event,
// so implementations must not block; hand the event off to a channel or
// message broker instead.
type Listener interface {
	// ID uniquely identifies the listener within a bus.
	ID() string
	Notify(Event)
}
