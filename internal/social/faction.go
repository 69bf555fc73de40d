// Package social provides kingdoms, the players who own them, and the
// personalities that drive autonomous kingdoms.
package social

import "sort"

// FactionID is a unique identifier for a kingdom.
type FactionID string

// PlayerID is a unique identifier for a human player.
type PlayerID string

// Faction is a kingdom: either owned by a player or run autonomously.
type Faction struct {
	ID         FactionID `json:"id"`
	Name       string    `json:"name"`
	Autonomous bool      `json:"autonomous"`

	// Owner is set only for player-controlled kingdoms.
	Owner PlayerID `json:"owner,omitempty"`

	// Personality is present only for autonomous kingdoms.
	Personality *Personality `json:"personality,omitempty"`

	// RulerName is the display name letters are signed with.
	RulerName string `json:"ruler_name,omitempty"`
}

// DisplayName returns the name letters from this kingdom carry.
func (f *Faction) DisplayName() string {
	if f == nil {
		return ""
	}
	if f.RulerName != "" {
		return f.RulerName + " of " + f.Name
	}
	return f.Name
}

// View returns the kingdom's personality, or the neutral profile when absent.
func (f *Faction) View() PersonalityView {
	if f == nil || f.Personality == nil {
		return Neutral()
	}
	return f.Personality
}

// Roster indexes the kingdoms that currently exist.
type Roster struct {
	factions map[FactionID]*Faction
	byOwner  map[PlayerID]FactionID
}

// NewRoster creates a roster from a list of kingdoms.
func NewRoster(fs ...*Faction) *Roster {
	r := &Roster{
		factions: make(map[FactionID]*Faction),
		byOwner:  make(map[PlayerID]FactionID),
	}
	for _, f := range fs {
		r.Add(f)
	}
	return r
}

// Add registers or replaces a kingdom.
func (r *Roster) Add(f *Faction) {
	if f == nil || f.ID == "" {
		return
	}
	r.factions[f.ID] = f
	if !f.Autonomous && f.Owner != "" {
		r.byOwner[f.Owner] = f.ID
	}
}

// Remove drops a kingdom. Stale references elsewhere are cleaned lazily.
func (r *Roster) Remove(id FactionID) {
	f, ok := r.factions[id]
	if !ok {
		return
	}
	if f.Owner != "" && r.byOwner[f.Owner] == id {
		delete(r.byOwner, f.Owner)
	}
	delete(r.factions, id)
}

// Get returns a kingdom by ID.
func (r *Roster) Get(id FactionID) (*Faction, bool) {
	f, ok := r.factions[id]
	return f, ok
}

// Exists reports whether a kingdom is still in the world.
func (r *Roster) Exists(id FactionID) bool {
	_, ok := r.factions[id]
	return ok
}

// OwnedBy returns the kingdom a player controls.
func (r *Roster) OwnedBy(p PlayerID) (*Faction, bool) {
	id, ok := r.byOwner[p]
	if !ok {
		return nil, false
	}
	return r.Get(id)
}

// Players lists every player that owns a kingdom, sorted.
func (r *Roster) Players() []PlayerID {
	out := make([]PlayerID, 0, len(r.byOwner))
	for p := range r.byOwner {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Autonomous lists autonomous kingdoms in ID order.
func (r *Roster) Autonomous() []*Faction {
	var out []*Faction
	for _, f := range r.factions {
		if f.Autonomous {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All lists every kingdom in ID order.
func (r *Roster) All() []*Faction {
	out := make([]*Faction, 0, len(r.factions))
	for _, f := range r.factions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SeedKingdoms creates the autonomous kingdoms of a fresh world.
func SeedKingdoms(seed int64) []*Faction {
	seeds := []struct {
		id, name, ruler string
	}{
		{"ashvale", "Ashvale", "Queen Maren"},
		{"brightmoor", "Brightmoor", "King Oswin"},
		{"corvan", "Corvan Reach", "Warlord Tesk"},
		{"dunmere", "Dunmere", "Lady Ysolde"},
		{"elderfen", "Elderfen", "High Steward Bram"},
		{"frostholm", "Frostholm", "Jarl Hrodi"},
	}
	out := make([]*Faction, 0, len(seeds))
	for _, s := range seeds {
		id := FactionID(s.id)
		out = append(out, &Faction{
			ID:          id,
			Name:        s.name,
			RulerName:   s.ruler,
			Autonomous:  true,
			Personality: GeneratePersonality(seed, id),
		})
	}
	return out
}
