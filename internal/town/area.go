package town

// BoundingBox is an axis-aligned rectangle centered on (X, Y).
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains reports whether the coordinate falls inside the box. Edges count
// as inside so a player standing exactly on the boundary is a member.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.X >= b.X-b.Width/2 && c.X <= b.X+b.Width/2 &&
		c.Y >= b.Y-b.Height/2 && c.Y <= b.Y+b.Height/2
}

// ConversationArea is a labeled spatial region. Players whose location falls
// inside the bounding box (or who claim the label explicitly) are occupants.
// The core never deletes areas; lifecycle is caller policy.
type ConversationArea struct {
	Label string      `json:"label"`
	Topic string      `json:"topic"`
	Box   BoundingBox `json:"boundingBox"`

	// OccupantIDs is ordered by join time.
	OccupantIDs []string `json:"occupantsByID"`
}

func (a *ConversationArea) addOccupant(playerID string) {
	for _, id := range a.OccupantIDs {
		if id == playerID {
			return
		}
	}
	a.OccupantIDs = append(a.OccupantIDs, playerID)
}

func (a *ConversationArea) removeOccupant(playerID string) {
	for i, id := range a.OccupantIDs {
		if id == playerID {
			a.OccupantIDs = append(a.OccupantIDs[:i], a.OccupantIDs[i+1:]...)
			return
		}
	}
}
