package town

import (
	"fmt"

	"github.com/google/uuid"
)

// TransportChannel is the server's handle on a connected client's socket.
// The core only ever closes it; event delivery flows through listeners.
type TransportChannel interface {
	Close() error
}

// Session binds one player to a session token and the transport channel used
// to reach them. The token is the bearer credential for every subsequent
// request: unguessable and unique within the town.
type Session struct {
	Token  string
	Player *Player

	channel TransportChannel
}

// NewSession pairs a player with a fresh token. The channel may be nil for
// sessions that have no transport attached yet.
func NewSession(p *Player, ch TransportChannel) *Session {
	return &Session{
		Token:   uuid.NewString(),
		Player:  p,
		channel: ch,
	}
}

// AddPlayer registers the player, creating a session with a fresh token.
// Town-scope listeners are notified of the join after registration, so a
// listener the new client registers afterwards never sees its own join.
func (c *Coordinator) AddPlayer(p *Player, ch TransportChannel) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrTownClosed
	}
	if c.capacity > 0 && len(c.sessions) >= c.capacity {
		return nil, fmt.Errorf("%w: town is full", ErrInvalidInput)
	}

	s := NewSession(p, ch)
	c.sessions[s.Token] = s
	c.bus.Broadcast(Event{Kind: EventPlayerJoined, Payload: p})
	return s, nil
}

// SessionByToken resolves a session token, authenticating the request that
// carried it.
func (c *Coordinator) SessionByToken(token string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return s, nil
}

// DestroySession removes the session and notifies listeners of the
// disconnect. Destroying an already-destroyed session is a no-op.
func (c *Coordinator) DestroySession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[s.Token]; !ok {
		return
	}
	delete(c.sessions, s.Token)

	if area := s.Player.activeArea; area != nil {
		area.removeOccupant(s.Player.ID)
		s.Player.activeArea = nil
		c.bus.Broadcast(Event{Kind: EventAreaUpdated, Payload: area})
	}
	c.bus.Broadcast(Event{Kind: EventPlayerDisconnect, Payload: s.Player})
}

// DisconnectAllPlayers destroys every session, fires a single townClosing
// event, then closes every transport channel. The coordinator is terminal
// afterwards: AddPlayer fails with ErrTownClosed.
func (c *Coordinator) DisconnectAllPlayers() {
	c.mu.Lock()
	c.closed = true
	channels := make([]TransportChannel, 0, len(c.sessions))
	for _, s := range c.sessions {
		if s.channel != nil {
			channels = append(channels, s.channel)
		}
	}
	c.sessions = make(map[string]*Session)
	c.bus.Broadcast(Event{Kind: EventTownClosing})
	c.mu.Unlock()

	// Closing sockets can block on the network; do it outside the lock.
	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			c.logChannelClose(err)
		}
	}
}

// HandleChannelClosed turns a transport disconnect into a game-state
// disconnect: it removes the session's listener from the bus and destroys
// the session if one is still live. Safe to call more than once.
func (c *Coordinator) HandleChannelClosed(token string) {
	c.bus.Remove(token)

	c.mu.Lock()
	s, ok := c.sessions[token]
	c.mu.Unlock()
	if ok {
		c.DestroySession(s)
	}
}
