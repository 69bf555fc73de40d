package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/relations"
	"github.com/talgya/kingdoms/internal/social"
	"github.com/talgya/kingdoms/internal/war"
	"github.com/talgya/kingdoms/internal/world"
)

// Overworld is the dimension seats are placed in.
const Overworld = "overworld"

// Host is the in-memory stand-in for the game around the diplomacy engine:
// the kingdoms, their stockpiles and armies, and where everything sits.
type Host struct {
	Roster *social.Roster
	Ledger *economy.MemoryLedger
	War    *war.MemoryLedger
	Atlas  *world.Atlas
}

// Deps wires the host into a World.
func (h *Host) Deps(rng entropy.Source) Deps {
	return Deps{
		Roster: h.Roster,
		Ledger: h.Ledger,
		War:    h.War,
		Oracle: h.Atlas,
		Rand:   rng,
	}
}

// NewHost returns an empty host.
func NewHost(t config.WorldTuning) *Host {
	return &Host{
		Roster: social.NewRoster(),
		Ledger: economy.NewMemoryLedger(),
		War:    war.NewMemoryLedger(),
		Atlas:  world.NewAtlas(t.DiplomaticRange, t.InPersonRadius),
	}
}

// SeedHost generates a fresh realm of autonomous kingdoms: seats from the
// noise survey, stockpiles and armies scaled by the land they sit on.
func SeedHost(seed int64, t config.WorldTuning) *Host {
	h := NewHost(t)
	kingdoms := social.SeedKingdoms(seed)
	ids := make([]social.FactionID, len(kingdoms))
	for i, k := range kingdoms {
		ids[i] = k.ID
	}
	cfg := world.PlaceConfig{Radius: 24, Seed: seed, MinDist: 6, Dimension: Overworld}
	sites := world.PlaceSeats(cfg, ids)

	rng := entropy.NewSeeded(seed + 100)
	for _, k := range kingdoms {
		site, ok := sites[k.ID]
		if !ok {
			continue
		}
		h.Roster.Add(k)
		h.Atlas.SetSeat(k.ID, world.Position{Dimension: Overworld, Coord: site.Coord})
		h.Ledger.Set(k.ID, startingStock(site, rng))
		soldiers := 40 + int(math.Round(60*site.Richness+40*k.View().Aggression()))
		h.War.SetSoldiers(k.ID, soldiers, soldiers)
	}
	return h
}

// startingStock scales each target stock by the seat's land.
func startingStock(site world.Site, rng entropy.Source) economy.Stockpile {
	var s economy.Stockpile
	for _, r := range economy.AllResources {
		land := site.Fertility
		switch r {
		case economy.Metal, economy.Gems, economy.Armor, economy.Weapons:
			land = site.Richness
		case economy.Gold, economy.Potions, economy.Horses:
			land = (site.Fertility + site.Richness) / 2
		}
		f := 0.4 + 1.4*land + entropy.Uniform(rng, -0.2, 0.2)
		s[r] = max(0, int(math.Round(float64(economy.TargetStock(r))*f)))
	}
	return s
}

// SeedRelations sets starting kingdom relations from temperament: honorable
// pairs start warm and aggressive pairs start cold. Each starting score is
// also the pair's baseline.
func SeedRelations(g *relations.FactionGraph, kingdoms []*social.Faction) {
	for i, a := range kingdoms {
		for _, b := range kingdoms[i+1:] {
			if !a.Autonomous || !b.Autonomous {
				continue
			}
			pa, pb := a.View(), b.View()
			v := 30*(pa.Honor()+pb.Honor()-1) -
				40*(pa.Aggression()+pb.Aggression()-1) +
				20*(pa.TrustBias()+pb.TrustBias()-1)
			score := relations.ClampScore(int(math.Round(v)))
			g.SetBaseline(a.ID, b.ID, score)
			g.Set(a.ID, b.ID, score)
		}
	}
}

// AddPlayer founds a player kingdom at the given position with a modest
// stockpile and army.
func (h *Host) AddPlayer(p social.PlayerID, name string, at world.Position) (*social.Faction, error) {
	if p == "" || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("add player: player and kingdom name are required")
	}
	if _, ok := h.Roster.OwnedBy(p); ok {
		return nil, fmt.Errorf("add player %s: already rules a kingdom", p)
	}
	id := social.FactionID("player-" + string(p))
	if h.Roster.Exists(id) {
		return nil, fmt.Errorf("add player %s: kingdom %s exists", p, id)
	}
	f := &social.Faction{ID: id, Name: name, Owner: p, RulerName: string(p)}
	h.Roster.Add(f)
	h.Atlas.SetSeat(id, at)
	h.Atlas.MovePlayer(p, at)

	var s economy.Stockpile
	for _, r := range economy.AllResources {
		s[r] = economy.TargetStock(r)
	}
	h.Ledger.Set(id, s)
	h.War.SetSoldiers(id, 50, 50)
	return f, nil
}

// Destroy removes a kingdom from the host and from w.
func (h *Host) Destroy(w *World, f social.FactionID) {
	if k, ok := h.Roster.Get(f); ok && k.Owner != "" {
		w.Mailbox.Forget(k.Owner)
	}
	w.Forget(f)
	h.Ledger.Remove(f)
	h.War.Forget(f)
	h.Atlas.Forget(f)
}
