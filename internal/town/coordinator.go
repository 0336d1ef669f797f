package town

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Coordinator is the authoritative in-memory state for one town: its live
// sessions, conversation areas, and the listener bus events fan out through.
// All mutations and the broadcasts they trigger run under one mutex, so a
// delivered event always reflects a state snapshot at least as new as the
// mutation that produced it.
type Coordinator struct {
	mu sync.Mutex

	id             string
	friendlyName   string
	public         bool
	updatePassword string
	capacity       int
	closed         bool

	sessions map[string]*Session
	areas    []*ConversationArea

	bus *ListenerBus
}

// NewCoordinator creates a town with a fresh identifier and update password.
func NewCoordinator(friendlyName string, public bool, capacity int) *Coordinator {
	return &Coordinator{
		id:             uuid.NewString(),
		friendlyName:   friendlyName,
		public:         public,
		updatePassword: uuid.NewString(),
		capacity:       capacity,
		sessions:       make(map[string]*Session),
		bus:            NewListenerBus(),
	}
}

func (c *Coordinator) ID() string           { return c.id }
func (c *Coordinator) FriendlyName() string { return c.friendlyName }
func (c *Coordinator) IsPublic() bool       { return c.public }

// UpdatePassword is the secret issued at creation that gates destructive
// town-level operations.
func (c *Coordinator) UpdatePassword() string { return c.updatePassword }

// Occupancy returns the number of live sessions.
func (c *Coordinator) Occupancy() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Capacity returns the maximum number of concurrent sessions, 0 = unlimited.
func (c *Coordinator) Capacity() int { return c.capacity }

// AddListener registers a town-scope listener.
func (c *Coordinator) AddListener(l Listener) {
	c.bus.Register(l)
}

// RemoveListener removes a town-scope listener by ID.
func (c *Coordinator) RemoveListener(id string) {
	c.bus.Remove(id)
}

// Broadcast delivers an event to every town-scope listener. The annotation
// layer uses this for post lifecycle events.
func (c *Coordinator) Broadcast(ev Event) {
	c.bus.Broadcast(ev)
}

// AddConversationArea stores a new area with an empty occupant set. It fails
// if the label is empty or already in use, leaving state untouched.
func (c *Coordinator) AddConversationArea(area *ConversationArea) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if area.Label == "" {
		return fmt.Errorf("%w: conversation area label must be set", ErrInvalidInput)
	}
	for _, a := range c.areas {
		if a.Label == area.Label {
			return ErrAreaExists
		}
	}

	area.OccupantIDs = nil
	c.areas = append(c.areas, area)
	c.bus.Broadcast(Event{Kind: EventAreaUpdated, Payload: area})
	return nil
}

// Areas returns the conversation areas in creation order.
func (c *Coordinator) Areas() []*ConversationArea {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*ConversationArea, len(c.areas))
	copy(out, c.areas)
	return out
}

// Players returns the players of all live sessions.
func (c *Coordinator) Players() []*Player {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Player, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Player)
	}
	return out
}

// UpdatePlayerLocation moves the player and resolves conversation area
// membership. An explicit area label on the location is trusted verbatim;
// otherwise the first area whose bounding box contains the new coordinate
// wins. Every call fires playerMoved; membership changes additionally fire
// conversationAreaUpdated for each affected area.
func (c *Coordinator) UpdatePlayerLocation(p *Player, loc PlayerLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.Location = loc

	var next *ConversationArea
	if loc.AreaLabel != "" {
		next = c.areaByLabel(loc.AreaLabel)
	} else {
		next = c.areaContaining(loc.Coordinate())
	}

	var changed []*ConversationArea
	if prev := p.activeArea; prev != next {
		if prev != nil {
			prev.removeOccupant(p.ID)
			changed = append(changed, prev)
		}
		if next != nil {
			next.addOccupant(p.ID)
			changed = append(changed, next)
		}
		p.activeArea = next
	}

	c.bus.Broadcast(Event{Kind: EventPlayerMoved, Payload: p})
	for _, a := range changed {
		c.bus.Broadcast(Event{Kind: EventAreaUpdated, Payload: a})
	}
}

func (c *Coordinator) areaByLabel(label string) *ConversationArea {
	for _, a := range c.areas {
		if a.Label == label {
			return a
		}
	}
	return nil
}

func (c *Coordinator) areaContaining(coord Coordinate) *ConversationArea {
	for _, a := range c.areas {
		if a.Box.Contains(coord) {
			return a
		}
	}
	return nil
}

func (c *Coordinator) logChannelClose(err error) {
	slog.Warn("closing transport channel", "town", c.id, "error", err)
}
