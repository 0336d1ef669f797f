package town

import "github.com/google/uuid"

// Coordinate is a point in the town's 2D world space.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerLocation is a player's position plus movement state. AreaLabel, when
// set, names the conversation area the client believes it is inside; the
// server trusts it verbatim instead of recomputing from coordinates.
type PlayerLocation struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Rotation  string  `json:"rotation"`
	Moving    bool    `json:"moving"`
	AreaLabel string  `json:"conversationLabel,omitempty"`
}

// Coordinate returns the positional part of the location.
func (l PlayerLocation) Coordinate() Coordinate {
	return Coordinate{X: l.X, Y: l.Y}
}

// Player is one participant in a town. A player is owned by exactly one
// session: it is created on join and discarded on session teardown.
type Player struct {
	ID       string         `json:"id"`
	UserName string         `json:"userName"`
	Location PlayerLocation `json:"location"`

	// activeArea is the conversation area the player currently occupies,
	// nil when the player is not inside any area.
	activeArea *ConversationArea
}

// NewPlayer creates a player with a fresh identifier at the spawn location.
func NewPlayer(userName string) *Player {
	return &Player{
		ID:       uuid.NewString(),
		UserName: userName,
		Location: PlayerLocation{Rotation: "front"},
	}
}

// ActiveArea returns the conversation area the player occupies, or nil.
func (p *Player) ActiveArea() *ConversationArea {
	return p.activeArea
}
