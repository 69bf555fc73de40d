package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/negotiation"
	"github.com/talgya/kingdoms/internal/policy"
	"github.com/talgya/kingdoms/internal/relations"
	"github.com/talgya/kingdoms/internal/social"
	"github.com/talgya/kingdoms/internal/war"
	"github.com/talgya/kingdoms/internal/world"
)

var (
	ErrUnknownFaction = errors.New("unknown kingdom")
	ErrUnknownPlayer  = errors.New("player has no kingdom")
	ErrPolicy         = errors.New("letter not allowed")
)

// PolicyError carries the gate's verdict for a rejected send.
type PolicyError struct {
	Decision policy.Decision
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPolicy, e.Decision.Reason)
}

func (e *PolicyError) Unwrap() error { return ErrPolicy }

// World holds all diplomatic state of one simulated world. It is not safe
// for concurrent use; callers serialize through Clock.Do.
type World struct {
	Roster *social.Roster
	Ledger economy.Ledger
	War    war.Ledger
	Oracle world.Oracle

	Players   *relations.PlayerGraph
	Factions  *relations.FactionGraph
	Alliances *relations.Alliances
	Mailbox   *letters.Mailbox
	Cooldowns *letters.Cooldowns

	Schedule   *Scheduler
	Responses  *ResponseQueue
	Normalizer *relations.Normalizer

	Tuning   config.Tuning
	Events   []Event
	LastTick uint64

	policy    *policy.Policy
	evaluator *negotiation.Evaluator
	budget    *Budget
	rng       entropy.Source
	notifier  Notifier
}

// Deps are the external collaborators a World consumes.
type Deps struct {
	Roster   *social.Roster
	Ledger   economy.Ledger
	War      war.Ledger
	Oracle   world.Oracle
	Rand     entropy.Source
	Notifier Notifier
}

// NewWorld wires an empty diplomatic state around the given collaborators.
func NewWorld(t config.Tuning, d Deps) (*World, error) {
	if d.Roster == nil || d.Ledger == nil || d.War == nil || d.Oracle == nil {
		return nil, errors.New("new world: roster, ledger, war and oracle are required")
	}
	if d.Rand == nil {
		d.Rand = entropy.Crypto{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	cooldowns := letters.NewCooldowns()
	pol, err := policy.New(t.Policy, cooldowns)
	if err != nil {
		return nil, fmt.Errorf("new world: %w", err)
	}
	players := relations.NewPlayerGraph()
	players.SetDamping(t.Relations.ScaleDamping)
	factions := relations.NewFactionGraph()
	factions.SetDamping(t.Relations.ScaleDamping)

	w := &World{
		Roster:     d.Roster,
		Ledger:     d.Ledger,
		War:        d.War,
		Oracle:     d.Oracle,
		Players:    players,
		Factions:   factions,
		Alliances:  relations.NewAlliances(t.Alliances.Capacity),
		Mailbox:    letters.NewMailbox(t.Letters.MaxInbox),
		Cooldowns:  cooldowns,
		Schedule:   NewScheduler(d.Rand, t.Schedule.Jitter),
		Responses:  NewResponseQueue(d.Rand, t.Schedule),
		Normalizer: relations.NewNormalizer(t.Relations.NormalizeEveryTicks, t.Relations.DecayStep, t.Relations.AttractorBand),
		Tuning:     t,
		policy:     pol,
		evaluator:  negotiation.NewEvaluator(t.Negotiation, d.Rand),
		budget:     NewBudget(t.Schedule.BudgetPerTick),
		rng:        d.Rand,
		notifier:   d.Notifier,
	}
	return w, nil
}

// SetNotifier replaces the outbound sync target.
func (w *World) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	w.notifier = n
}

// Evaluator exposes the negotiation core for inspection tools.
func (w *World) Evaluator() *negotiation.Evaluator { return w.evaluator }

// Tick runs one step of diplomacy: letters whose transit time has passed
// are answered, due pairs interact under the per-tick budget, expired
// mail is pruned, and relations drift toward equilibrium.
func (w *World) Tick(now uint64) {
	w.LastTick = now
	w.budget.Reset()

	w.processResponses(now)
	w.processKingdomPairs(now)
	w.processPlayerPairs(now)

	for _, p := range w.Mailbox.Prune(now, w.Tuning.Letters.RetainTicks) {
		w.pushInbox(p)
	}
	if w.Normalizer.Due(now) {
		moved := w.Normalizer.Run(now, w.Players, w.Factions)
		expired := w.Cooldowns.Expire(now, w.policy.Window(false))
		swept := w.Schedule.Sweep(w.liveKey)
		slog.Debug("relations normalized", "tick", now, "moved", moved, "cooldowns_expired", expired, "stale_pairs", swept)
	}
}

func (w *World) liveKey(k PairKey) bool {
	if !w.Roster.Exists(social.FactionID(k.From)) {
		return false
	}
	if k.Player {
		_, ok := w.Roster.OwnedBy(social.PlayerID(k.To))
		return ok
	}
	return w.Roster.Exists(social.FactionID(k.To))
}

// Forget removes a destroyed kingdom and every piece of diplomatic state
// that references it. Relation rows are kept.
func (w *World) Forget(f social.FactionID) {
	k, ok := w.Roster.Get(f)
	if ok && k.Owner != "" {
		w.Schedule.Forget(string(k.Owner))
		w.Responses.Forget(string(k.Owner))
	}
	w.Roster.Remove(f)
	w.Alliances.Forget(f)
	w.Schedule.Forget(string(f))
	w.Responses.Forget(string(f))
	w.Cooldowns.Forget(string(f))
	w.record("war", "%s has fallen", f)
}

// stateOf gathers what the negotiation core needs about decider d facing
// other.
func (w *World) stateOf(d, other social.FactionID) negotiation.State {
	alive, total := w.War.Soldiers(d)
	oAlive, oTotal := w.War.Soldiers(other)
	return negotiation.State{
		Stock:      economy.Snapshot(w.Ledger, d),
		AtWar:      w.War.IsAtWarWithAny(d),
		Enemies:    len(w.War.Enemies(d)),
		Alive:      alive,
		Total:      total,
		OtherAlive: oAlive,
		OtherTotal: oTotal,
	}
}

// kingdomOf resolves a player's kingdom.
func (w *World) kingdomOf(p social.PlayerID) (*social.Faction, error) {
	k, ok := w.Roster.OwnedBy(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, p)
	}
	return k, nil
}

// Relation returns the score between two kingdoms. When exactly one side
// is player-run the autonomous side's view of that player is used.
func (w *World) Relation(a, b *social.Faction) int {
	if a == nil || b == nil {
		return 0
	}
	if ai, p, ok := playerPair(a, b); ok {
		return w.Players.Get(ai, p)
	}
	return w.Factions.Get(a.ID, b.ID)
}

// adjustRelation applies a damped delta to the score between a and b.
func (w *World) adjustRelation(a, b *social.Faction, delta int) int {
	if a == nil || b == nil {
		return 0
	}
	if delta == 0 {
		return w.Relation(a, b)
	}
	if ai, p, ok := playerPair(a, b); ok {
		return w.Players.AddScaled(ai, p, delta)
	}
	return w.Factions.AddScaled(a.ID, b.ID, delta)
}

// playerPair orients a mixed pair as (autonomous kingdom, player).
func playerPair(a, b *social.Faction) (social.FactionID, social.PlayerID, bool) {
	switch {
	case a.Autonomous && !b.Autonomous && b.Owner != "":
		return a.ID, b.Owner, true
	case b.Autonomous && !a.Autonomous && a.Owner != "":
		return b.ID, a.Owner, true
	}
	return "", "", false
}
