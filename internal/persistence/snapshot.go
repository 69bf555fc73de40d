package persistence

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/engine"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/relations"
	"github.com/talgya/kingdoms/internal/social"
	"github.com/talgya/kingdoms/internal/war"
	"github.com/talgya/kingdoms/internal/world"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is the whole persisted state of one world: the host's kingdoms,
// stockpiles and armies plus every piece of diplomatic state.
type Snapshot struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`

	Normalized   bool   `json:"normalized"`
	NormalizedAt uint64 `json:"normalized_at"`

	Kingdoms   []*social.Faction                      `json:"kingdoms"`
	Stockpiles map[social.FactionID]economy.Stockpile `json:"stockpiles"`
	Armies     map[social.FactionID]war.Strength      `json:"armies"`
	Wars       [][2]social.FactionID                  `json:"wars"`
	Seats      map[social.FactionID]world.Position    `json:"seats"`
	Positions  map[social.PlayerID]world.Position     `json:"positions"`

	PlayerRelations  []relations.Entry[social.FactionID, social.PlayerID]  `json:"player_relations"`
	FactionRelations []relations.Entry[social.FactionID, social.FactionID] `json:"faction_relations"`
	Alliances        [][2]social.FactionID                                 `json:"alliances"`

	Mail      map[social.PlayerID][]letters.Letter `json:"mail"`
	Cooldowns []letters.CooldownEntry              `json:"cooldowns"`
	Schedule  []engine.ScheduleEntry               `json:"schedule"`
	Responses []engine.Queued                      `json:"responses"`
	Events    []engine.Event                       `json:"events"`
}

// Capture copies the state of w and h. Callers hold the clock.
func Capture(w *engine.World, h *engine.Host) Snapshot {
	s := Snapshot{
		Version:          SnapshotVersion,
		Tick:             w.LastTick,
		Normalized:       w.Normalizer.Ran(),
		NormalizedAt:     w.Normalizer.LastRun(),
		Kingdoms:         h.Roster.All(),
		Stockpiles:       make(map[social.FactionID]economy.Stockpile),
		Armies:           h.War.Armies(),
		Wars:             h.War.Wars(),
		Seats:            make(map[social.FactionID]world.Position, len(h.Atlas.Seats)),
		Positions:        make(map[social.PlayerID]world.Position, len(h.Atlas.Players)),
		PlayerRelations:  w.Players.Entries(),
		FactionRelations: w.Factions.Entries(),
		Alliances:        w.Alliances.Pairs(),
		Mail:             w.Mailbox.Snapshot(),
		Cooldowns:        w.Cooldowns.Entries(),
		Schedule:         w.Schedule.Entries(),
		Responses:        w.Responses.Entries(),
		Events:           append([]engine.Event(nil), w.Events...),
	}
	for _, f := range h.Ledger.Factions() {
		s.Stockpiles[f] = economy.Snapshot(h.Ledger, f)
	}
	for f, p := range h.Atlas.Seats {
		s.Seats[f] = p
	}
	for p, pos := range h.Atlas.Players {
		s.Positions[p] = pos
	}
	return s
}

// Report counts what a restore had to drop, by section.
type Report map[string]int

func (r Report) add(section string, n int) {
	if n > 0 {
		r[section] += n
	}
}

// Total is the number of dropped entries across all sections.
func (r Report) Total() int {
	n := 0
	for _, v := range r {
		n += v
	}
	return n
}

func (r Report) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r[k]))
	}
	return strings.Join(parts, " ")
}

// Restore rebuilds a world and its host from a snapshot. Entries that
// reference missing kingdoms or players, or that fail validation, are
// dropped and counted rather than failing the load.
func Restore(s Snapshot, t config.Tuning, rng entropy.Source) (*engine.World, *engine.Host, Report, error) {
	rep := Report{}
	h := engine.NewHost(t.World)
	for _, k := range s.Kingdoms {
		if k == nil || k.ID == "" {
			rep.add("kingdoms", 1)
			continue
		}
		h.Roster.Add(k)
	}
	exists := h.Roster.Exists
	owned := func(p social.PlayerID) bool {
		_, ok := h.Roster.OwnedBy(p)
		return ok
	}

	for f, stock := range s.Stockpiles {
		if !exists(f) {
			rep.add("stockpiles", 1)
			continue
		}
		for i := range stock {
			stock[i] = max(0, stock[i])
		}
		h.Ledger.Set(f, stock)
	}
	for f, a := range s.Armies {
		if !exists(f) {
			rep.add("armies", 1)
			continue
		}
		h.War.SetSoldiers(f, a.Alive, a.Total)
	}
	for _, p := range s.Wars {
		if !exists(p[0]) || !exists(p[1]) || p[0] == p[1] {
			rep.add("wars", 1)
			continue
		}
		h.War.DeclareWar(p[0], p[1])
	}
	for f, pos := range s.Seats {
		if !exists(f) {
			rep.add("seats", 1)
			continue
		}
		h.Atlas.SetSeat(f, pos)
	}
	for p, pos := range s.Positions {
		h.Atlas.MovePlayer(p, pos)
	}

	w, err := engine.NewWorld(t, h.Deps(rng))
	if err != nil {
		return nil, nil, rep, fmt.Errorf("restore: %w", err)
	}
	w.LastTick = s.Tick
	if s.Normalized {
		w.Normalizer.Resume(s.NormalizedAt)
	}

	var prels []relations.Entry[social.FactionID, social.PlayerID]
	for _, e := range s.PlayerRelations {
		if !exists(e.Owner) || !owned(e.Counterpart) {
			rep.add("player_relations", 1)
			continue
		}
		prels = append(prels, e)
	}
	rep.add("player_relations", w.Players.Restore(prels))

	var frels []relations.Entry[social.FactionID, social.FactionID]
	for _, e := range s.FactionRelations {
		if !exists(e.Owner) || !exists(e.Counterpart) {
			rep.add("faction_relations", 1)
			continue
		}
		frels = append(frels, e)
	}
	rep.add("faction_relations", w.Factions.Restore(frels))

	var pairs [][2]social.FactionID
	for _, p := range s.Alliances {
		if !exists(p[0]) || !exists(p[1]) || h.War.IsAtWar(p[0], p[1]) {
			rep.add("alliances", 1)
			continue
		}
		pairs = append(pairs, p)
	}
	rep.add("alliances", w.Alliances.Restore(pairs))

	mail := make(map[social.PlayerID][]letters.Letter, len(s.Mail))
	for p, box := range s.Mail {
		if !owned(p) {
			rep.add("letters", len(box))
			continue
		}
		mail[p] = box
	}
	rep.add("letters", w.Mailbox.Restore(mail))

	rep.add("cooldowns", w.Cooldowns.Restore(s.Cooldowns))

	live := func(k engine.PairKey) bool {
		if !exists(social.FactionID(k.From)) {
			return false
		}
		if k.Player {
			return owned(social.PlayerID(k.To))
		}
		return exists(social.FactionID(k.To))
	}
	var sched []engine.ScheduleEntry
	for _, e := range s.Schedule {
		if !live(e.PairKey) {
			rep.add("schedule", 1)
			continue
		}
		sched = append(sched, e)
	}
	rep.add("schedule", w.Schedule.Restore(sched))

	var queued []engine.Queued
	for _, q := range s.Responses {
		if !exists(q.Letter.FromFaction) || !exists(q.Letter.ToFaction) {
			rep.add("responses", 1)
			continue
		}
		queued = append(queued, q)
	}
	rep.add("responses", w.Responses.Restore(queued))

	w.Events = append(w.Events, s.Events...)

	w.Players.ClearDirty()
	w.Factions.ClearDirty()
	w.Alliances.ClearDirty()
	w.Mailbox.ClearDirty()
	w.Cooldowns.ClearDirty()

	if rep.Total() > 0 {
		slog.Debug("snapshot sanitized", "dropped", rep.Total(), "sections", rep.String())
	}
	return w, h, rep, nil
}
