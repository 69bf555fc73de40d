package world

import (
	"fmt"

	"github.com/talgya/kingdoms/internal/social"
)

// Oracle answers proximity questions for diplomacy.
type Oracle interface {
	// InRange reports whether two kingdoms are within diplomatic range.
	InRange(a, b social.FactionID) bool
	// PlayerInRange reports whether a player can reach a kingdom by letter.
	PlayerInRange(p social.PlayerID, f social.FactionID) bool
	// CoLocated reports whether a player stands at a kingdom's seat.
	CoLocated(p social.PlayerID, f social.FactionID) bool
}

// Atlas holds kingdom seats and player positions.
type Atlas struct {
	Seats   map[social.FactionID]Position `json:"seats"`
	Players map[social.PlayerID]Position  `json:"players"`

	// Range is the diplomatic range in hexes. Zero means unlimited within
	// a dimension.
	Range int `json:"range"`

	// InPersonRadius is how close a player must stand to a seat to count
	// as negotiating in person.
	InPersonRadius int `json:"in_person_radius"`
}

// NewAtlas creates an empty atlas.
func NewAtlas(rangeHexes, inPersonRadius int) *Atlas {
	return &Atlas{
		Seats:          make(map[social.FactionID]Position),
		Players:        make(map[social.PlayerID]Position),
		Range:          rangeHexes,
		InPersonRadius: inPersonRadius,
	}
}

// SetSeat places a kingdom's seat.
func (a *Atlas) SetSeat(f social.FactionID, p Position) {
	a.Seats[f] = p
}

// MovePlayer records where a player currently stands.
func (a *Atlas) MovePlayer(pl social.PlayerID, p Position) {
	a.Players[pl] = p
}

// Forget drops a kingdom's seat.
func (a *Atlas) Forget(f social.FactionID) {
	delete(a.Seats, f)
}

func (a *Atlas) within(p, q Position) bool {
	d := p.DistanceTo(q)
	if d < 0 {
		return false
	}
	return a.Range <= 0 || d <= a.Range
}

// InRange implements Oracle. Unknown seats are out of range.
func (a *Atlas) InRange(x, y social.FactionID) bool {
	p, ok := a.Seats[x]
	if !ok {
		return false
	}
	q, ok := a.Seats[y]
	if !ok {
		return false
	}
	return a.within(p, q)
}

// PlayerInRange implements Oracle. A player with no recorded position is
// treated as being at their own kingdom's seat by the caller; here it is
// simply out of range.
func (a *Atlas) PlayerInRange(pl social.PlayerID, f social.FactionID) bool {
	p, ok := a.Players[pl]
	if !ok {
		return false
	}
	q, ok := a.Seats[f]
	if !ok {
		return false
	}
	return a.within(p, q)
}

// CoLocated implements Oracle.
func (a *Atlas) CoLocated(pl social.PlayerID, f social.FactionID) bool {
	p, ok := a.Players[pl]
	if !ok {
		return false
	}
	q, ok := a.Seats[f]
	if !ok {
		return false
	}
	d := p.DistanceTo(q)
	return d >= 0 && d <= a.InPersonRadius
}

// String returns a summary of the atlas.
func (a *Atlas) String() string {
	return fmt.Sprintf("Atlas(range=%d, seats=%d, players=%d)", a.Range, len(a.Seats), len(a.Players))
}
