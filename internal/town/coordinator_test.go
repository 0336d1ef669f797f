package town

import (
	"errors"
	"testing"

	"github.com/pixil98/go-testutil"
)

type fakeChannel struct {
	closed bool
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func eventsOfKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestCoordinator_AddPlayer(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	watcher := &recordingListener{id: "watcher"}
	c.AddListener(watcher)

	p := NewPlayer("alice")
	s, err := c.AddPlayer(p, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Token == "" {
		t.Error("expected a session token")
	}
	testutil.AssertEqual(t, "player", s.Player, p)
	testutil.AssertEqual(t, "occupancy", c.Occupancy(), 1)

	joins := eventsOfKind(watcher.events, EventPlayerJoined)
	testutil.AssertEqual(t, "join events", len(joins), 1)
	testutil.AssertEqual(t, "join payload", joins[0].Payload.(*Player), p)
}

func TestCoordinator_AddPlayer_JoinNotSeenBySelf(t *testing.T) {
	c := NewCoordinator("test town", true, 0)

	p := NewPlayer("alice")
	s, err := c.AddPlayer(p, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The client registers its listener after joining, as the transport does.
	self := &recordingListener{id: s.Token}
	c.AddListener(self)

	testutil.AssertEqual(t, "events seen by self", len(self.events), 0)
}

func TestCoordinator_AddPlayer_Capacity(t *testing.T) {
	c := NewCoordinator("small town", true, 1)

	if _, err := c.AddPlayer(NewPlayer("alice"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := c.AddPlayer(NewPlayer("bob"), nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCoordinator_SessionByToken(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	s, err := c.AddPlayer(NewPlayer("alice"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := c.SessionByToken(s.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "session", got, s)

	_, err = c.SessionByToken("bogus")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCoordinator_DestroySession_Idempotent(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	s, err := c.AddPlayer(NewPlayer("alice"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	watcher := &recordingListener{id: "watcher"}
	c.AddListener(watcher)

	c.DestroySession(s)
	c.DestroySession(s)

	disconnects := eventsOfKind(watcher.events, EventPlayerDisconnect)
	testutil.AssertEqual(t, "disconnect events", len(disconnects), 1)
	testutil.AssertEqual(t, "occupancy", c.Occupancy(), 0)
}

func TestCoordinator_DestroySession_LeavesArea(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	area := &ConversationArea{
		Label: "fountain",
		Box:   BoundingBox{X: 50, Y: 50, Width: 20, Height: 20},
	}
	if err := c.AddConversationArea(area); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := c.AddPlayer(NewPlayer("alice"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.UpdatePlayerLocation(s.Player, PlayerLocation{X: 50, Y: 50})
	testutil.AssertEqual(t, "occupants before", len(area.OccupantIDs), 1)

	c.DestroySession(s)
	testutil.AssertEqual(t, "occupants after", len(area.OccupantIDs), 0)
}

func TestCoordinator_DisconnectAllPlayers(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	chans := []*fakeChannel{{}, {}}
	if _, err := c.AddPlayer(NewPlayer("alice"), chans[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.AddPlayer(NewPlayer("bob"), chans[1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	watcher := &recordingListener{id: "watcher"}
	c.AddListener(watcher)

	c.DisconnectAllPlayers()

	closings := eventsOfKind(watcher.events, EventTownClosing)
	testutil.AssertEqual(t, "townClosing events", len(closings), 1)
	testutil.AssertEqual(t, "occupancy", c.Occupancy(), 0)
	for i, ch := range chans {
		if !ch.closed {
			t.Errorf("channel %d not closed", i)
		}
	}

	// The town is terminal afterwards.
	_, err := c.AddPlayer(NewPlayer("carol"), nil)
	if !errors.Is(err, ErrTownClosed) {
		t.Errorf("expected ErrTownClosed, got %v", err)
	}
}

func TestCoordinator_AddConversationArea(t *testing.T) {
	tests := map[string]struct {
		existing []string
		label    string
		expErr   error
	}{
		"new label": {
			label: "fountain",
		},
		"duplicate label": {
			existing: []string{"fountain"},
			label:    "fountain",
			expErr:   ErrAreaExists,
		},
		"empty label": {
			label:  "",
			expErr: ErrInvalidInput,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := NewCoordinator("test town", true, 0)
			for _, l := range tt.existing {
				if err := c.AddConversationArea(&ConversationArea{Label: l}); err != nil {
					t.Fatalf("seeding area: %v", err)
				}
			}

			err := c.AddConversationArea(&ConversationArea{Label: tt.label})
			if tt.expErr != nil {
				if !errors.Is(err, tt.expErr) {
					t.Errorf("expected %v, got %v", tt.expErr, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCoordinator_UpdatePlayerLocation_AreaTransitions(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	area := &ConversationArea{
		Label: "fountain",
		Topic: "the weather",
		Box:   BoundingBox{X: 100, Y: 100, Width: 40, Height: 40},
	}
	if err := c.AddConversationArea(area); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := c.AddPlayer(NewPlayer("alice"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := s.Player

	watcher := &recordingListener{id: "watcher"}
	c.AddListener(watcher)

	// Outside -> inside -> outside.
	c.UpdatePlayerLocation(p, PlayerLocation{X: 10, Y: 10})
	testutil.AssertEqual(t, "occupants outside", len(area.OccupantIDs), 0)

	c.UpdatePlayerLocation(p, PlayerLocation{X: 100, Y: 100})
	testutil.AssertEqual(t, "occupants inside", len(area.OccupantIDs), 1)
	testutil.AssertEqual(t, "occupant id", area.OccupantIDs[0], p.ID)
	testutil.AssertEqual(t, "active area", p.ActiveArea(), area)

	c.UpdatePlayerLocation(p, PlayerLocation{X: 10, Y: 10})
	testutil.AssertEqual(t, "occupants after leaving", len(area.OccupantIDs), 0)
	if p.ActiveArea() != nil {
		t.Error("expected no active area after leaving")
	}

	moves := eventsOfKind(watcher.events, EventPlayerMoved)
	updates := eventsOfKind(watcher.events, EventAreaUpdated)
	testutil.AssertEqual(t, "playerMoved events", len(moves), 3)
	testutil.AssertEqual(t, "areaUpdated events", len(updates), 2)
}

func TestCoordinator_UpdatePlayerLocation_ExplicitLabel(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	area := &ConversationArea{
		Label: "porch",
		Box:   BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
	}
	if err := c.AddConversationArea(area); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := c.AddPlayer(NewPlayer("alice"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The label is trusted even though the coordinate is far outside the box.
	c.UpdatePlayerLocation(s.Player, PlayerLocation{X: 500, Y: 500, AreaLabel: "porch"})
	testutil.AssertEqual(t, "active area", s.Player.ActiveArea(), area)
	testutil.AssertEqual(t, "occupants", len(area.OccupantIDs), 1)
}

func TestCoordinator_HandleChannelClosed(t *testing.T) {
	c := NewCoordinator("test town", true, 0)
	s, err := c.AddPlayer(NewPlayer("alice"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	self := &recordingListener{id: s.Token}
	c.AddListener(self)

	c.HandleChannelClosed(s.Token)

	testutil.AssertEqual(t, "occupancy", c.Occupancy(), 0)
	_, err = c.SessionByToken(s.Token)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	// The listener was removed before the disconnect broadcast.
	testutil.AssertEqual(t, "events after close", len(self.events), 0)
}
