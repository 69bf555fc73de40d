package engine

import (
	"log/slog"
	"math"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/negotiation"
	"github.com/talgya/kingdoms/internal/policy"
	"github.com/talgya/kingdoms/internal/social"
)

// idleWeight is the weight of doing nothing when a pair comes due.
const idleWeight = 0.5

var grievances = []string{
	"border disputes",
	"old grievances",
	"insults to the crown",
	"raids on our caravans",
	"the murder of our envoy",
}

// plan is one letter a kingdom intends to write.
type plan struct {
	kind       letters.Kind
	primary    letters.Payload
	secondary  *letters.Payload
	casusBelli string
}

type option struct {
	kind   letters.Kind
	weight float64
}

// processKingdomPairs lets every due ordered pair of autonomous kingdoms
// interact. The other kingdom answers at once.
func (w *World) processKingdomPairs(now uint64) {
	ais := w.Roster.Autonomous()
	period := w.Tuning.Schedule.FactionPeriodTicks
	for _, a := range ais {
		for _, b := range ais {
			if a.ID == b.ID {
				continue
			}
			key := PairKey{From: string(a.ID), To: string(b.ID)}
			if !w.Schedule.Due(key, now, period) || w.budget.Left() == 0 {
				continue
			}
			if w.interactKingdoms(a, b, now) {
				w.budget.Take()
			}
		}
	}
}

// processPlayerPairs lets autonomous kingdoms write to players when due.
func (w *World) processPlayerPairs(now uint64) {
	ais := w.Roster.Autonomous()
	players := w.Roster.Players()
	period := w.Tuning.Schedule.PlayerPeriodTicks
	for _, a := range ais {
		for _, p := range players {
			pk, ok := w.Roster.OwnedBy(p)
			if !ok {
				continue
			}
			key := PairKey{From: string(a.ID), To: string(p), Player: true}
			if !w.Schedule.Due(key, now, period) || w.budget.Left() == 0 {
				continue
			}
			if w.writeToPlayer(a, pk, now) {
				w.budget.Take()
			}
		}
	}
}

// gate runs the send policy for a kingdom-initiated letter.
func (w *World) gate(k letters.Kind, a, b *social.Faction, now uint64) policy.Decision {
	return w.policy.CanSend(policy.Request{
		Kind:                k,
		Sender:              string(a.ID),
		Recipient:           string(b.ID),
		Now:                 now,
		SenderExists:        w.Roster.Exists(a.ID),
		RecipientExists:     w.Roster.Exists(b.ID),
		FactionInitiated:    true,
		AutonomousRecipient: b.Autonomous,
		InRange:             w.Oracle.InRange(a.ID, b.ID),
		AtWar:               w.War.IsAtWar(a.ID, b.ID),
		Allied:              w.Alliances.IsAllied(a.ID, b.ID),
		Relation:            w.Relation(b, a),
	})
}

func (w *World) compose(pl plan, a, b *social.Faction, now uint64) (letters.Letter, error) {
	spec := letters.Spec{
		FromFaction:    a.ID,
		FromAutonomous: true,
		FromName:       a.DisplayName(),
		ToFaction:      b.ID,
		Kind:           pl.kind,
		CreatedAt:      now,
		Primary:        pl.primary,
		Secondary:      pl.secondary,
		CasusBelli:     pl.casusBelli,
	}
	if !b.Autonomous {
		spec.ToPlayer = b.Owner
		if actionable(pl.kind) {
			spec.ExpiresAt = now + w.Tuning.Letters.TTLTicks
		}
	}
	return letters.New(spec)
}

// interactKingdoms has a write to b and b answer immediately. Reports
// whether a letter was sent.
func (w *World) interactKingdoms(a, b *social.Faction, now uint64) bool {
	pl, ok := w.plan(a, b)
	if !ok {
		return false
	}
	if d := w.gate(pl.kind, a, b, now); !d.Allowed {
		slog.Debug("letter blocked", "from", a.ID, "to", b.ID, "kind", pl.kind, "reason", d.Reason)
		return false
	}
	l, err := w.compose(pl, a, b, now)
	if err != nil {
		slog.Debug("letter not composed", "from", a.ID, "to", b.ID, "kind", pl.kind, "error", err)
		return false
	}
	w.Cooldowns.Record(string(a.ID), string(b.ID), l.Kind, now)
	w.resolveBetweenKingdoms(l, b, a, now)
	return true
}

// resolveBetweenKingdoms has autonomous kingdom d answer s's letter and
// applies the outcome. A counter is weighed by s in turn.
func (w *World) resolveBetweenKingdoms(l letters.Letter, d, s *social.Faction, now uint64) {
	res := w.decide(l, d, s)
	switch res.Decision {
	case negotiation.Accept:
		if why, ok := w.settle(l, d, s); !ok {
			slog.Debug("accept not honored", "from", s.ID, "to", d.ID, "kind", l.Kind, "note", why)
			res.Decision = negotiation.Refuse
			res.RelationDelta = min(res.RelationDelta, 0)
		}
	case negotiation.Counter:
		w.weighCounter(l, d, s, res, now)
	}
	w.adjustRelation(d, s, res.RelationDelta)
	if l.Kind == letters.Ultimatum && res.Decision == negotiation.Refuse {
		w.retaliate(s, d, now)
	}
	slog.Debug("kingdoms interacted", "from", s.ID, "to", d.ID, "kind", l.Kind,
		"decision", res.Decision, "delta", res.RelationDelta, "reason", res.Reason)
}

// weighCounter lets the original sender s consider d's revised terms as
// a contract addressed to s. It reports whether the counter settled.
func (w *World) weighCounter(l letters.Letter, d, s *social.Faction, res negotiation.Result, now uint64) bool {
	if res.CounterGive == nil || res.CounterWant == nil {
		return false
	}
	give := *res.CounterGive
	counter, err := letters.New(letters.Spec{
		FromFaction:    d.ID,
		FromAutonomous: true,
		ToFaction:      s.ID,
		Kind:           letters.Contract,
		CreatedAt:      now,
		Primary:        *res.CounterWant,
		Secondary:      &give,
		ReplyTo:        l.ID,
	})
	if err != nil {
		return false
	}
	back := w.decide(counter, s, d)
	if back.Decision != negotiation.Accept {
		return false
	}
	if why, ok := w.settle(counter, s, d); !ok {
		slog.Debug("counter not honored", "from", d.ID, "to", s.ID, "kind", counter.Kind, "note", why)
		return false
	}
	return true
}

// writeToPlayer mails a letter from autonomous kingdom a to the player
// running kingdom pk.
func (w *World) writeToPlayer(a, pk *social.Faction, now uint64) bool {
	if pk.Owner == "" || pk.ID == a.ID {
		return false
	}
	pl, ok := w.plan(a, pk)
	if !ok {
		return false
	}
	if d := w.gate(pl.kind, a, pk, now); !d.Allowed {
		slog.Debug("letter blocked", "from", a.ID, "to", pk.Owner, "kind", pl.kind, "reason", d.Reason)
		return false
	}
	l, err := w.compose(pl, a, pk, now)
	if err != nil {
		slog.Debug("letter not composed", "from", a.ID, "to", pk.Owner, "kind", pl.kind, "error", err)
		return false
	}
	w.Cooldowns.Record(string(a.ID), string(pk.ID), l.Kind, now)
	if !actionable(l.Kind) {
		w.settle(l, pk, a)
		l, _ = l.WithStatus(letters.Accepted)
	}
	w.Mailbox.Post(pk.Owner, l)
	w.pushInbox(pk.Owner)
	w.record("letter", "%s wrote to %s: %s", a.Name, pk.Name, l.Subject)
	return true
}

// plan picks at most one letter for a to write to b, weighted by a's
// personality, their relation and the war between them.
func (w *World) plan(a, b *social.Faction) (plan, bool) {
	p := a.View()
	rel := w.Relation(a, b)
	if w.War.IsAtWar(a.ID, b.ID) {
		st := w.stateOf(a.ID, b.ID)
		if w.evaluator.ShouldOfferPeace(st) {
			if negotiation.StrengthRatio(st) < w.Tuning.Negotiation.PeaceLowRatio {
				return plan{kind: letters.Surrender}, true
			}
			return plan{kind: letters.WhitePeace}, true
		}
		winning := 0.3
		if negotiation.StrengthRatio(st) > 1 {
			winning = 1
		}
		return w.choose(a, b, []option{
			{letters.Insult, p.Aggression()},
			{letters.Warning, 0.5 * p.Honor()},
			{letters.Ultimatum, p.Aggression() * winning},
		})
	}

	allied := w.Alliances.IsAllied(a.ID, b.ID)
	r := float64(rel)
	var opts []option
	if allied && rel < 20 {
		opts = append(opts, option{letters.AllianceBreak, 0.5*(1-p.Honor()) + (20-r)/100})
	}
	if !allied && rel > 50 {
		opts = append(opts, option{letters.AllianceProposal, p.TrustBias() + 0.5*p.Pragmatism() + (r-50)/50})
	}
	if !allied && rel < -60 {
		opts = append(opts, option{letters.WarDeclaration, p.Aggression() * p.Aggression() * (-r - 60) / 40 * w.confidence(a, b)})
	}
	if rel < -30 {
		opts = append(opts, option{letters.Ultimatum, 0.6 * p.Aggression() * w.confidence(a, b)})
	}
	if rel < 0 {
		opts = append(opts, option{letters.Insult, 0.5*p.Aggression() - r/200})
	}
	if rel < 10 {
		opts = append(opts, option{letters.Warning, 0.3 * p.Honor()})
	}
	if rel > -5 {
		opts = append(opts, option{letters.Compliment, 0.4*p.Generosity() + 0.3*p.TrustBias()})
	}
	if rel > -40 {
		opts = append(opts,
			option{letters.Offer, 0.4 * p.Generosity()},
			option{letters.Request, 0.3*p.Greed() + 0.2},
			option{letters.Contract, 0.5 * p.Pragmatism()},
		)
	}
	return w.choose(a, b, opts)
}

// confidence is how much a's army outmatches b's, in [0.2, 1.5].
func (w *World) confidence(a, b *social.Faction) float64 {
	alive, _ := w.War.Soldiers(a.ID)
	other, _ := w.War.Soldiers(b.ID)
	return math.Max(0.2, math.Min(1.5, negotiation.MilRatio(alive, other)))
}

// choose rolls among weighted options and fills in payloads. An option
// whose payload cannot be built falls back to no letter.
func (w *World) choose(a, b *social.Faction, opts []option) (plan, bool) {
	total := idleWeight
	for _, o := range opts {
		total += math.Max(0, o.weight)
	}
	roll := w.rng.Float64() * total
	for _, o := range opts {
		wt := math.Max(0, o.weight)
		if roll < wt {
			return w.payloadFor(o.kind, a, b)
		}
		roll -= wt
	}
	return plan{}, false
}

func (w *World) payloadFor(k letters.Kind, a, b *social.Faction) (plan, bool) {
	pl := plan{kind: k}
	switch k {
	case letters.Offer:
		give, ok := w.surplus(a)
		if !ok {
			return plan{}, false
		}
		pl.primary = give
	case letters.Request:
		pl.primary = w.wants(a)
	case letters.Contract:
		give, ok := w.surplus(a)
		if !ok {
			return plan{}, false
		}
		want := w.wants(a)
		if want.Resource == give.Resource {
			return plan{}, false
		}
		factor := 0.9 + 0.3*a.View().Greed()
		want.Amount = max(1, int(math.Ceil(give.Gold()*factor/economy.UnitValue(want.Resource))))
		pl.primary = want
		pl.secondary = &give
	case letters.Ultimatum:
		pl.primary = letters.Payload{Resource: economy.Gold, Amount: 40 + int(80*a.View().Aggression())}
	case letters.WarDeclaration:
		pl.casusBelli = grievances[int(entropy.Between(w.rng, 0, uint64(len(grievances)-1)))]
	}
	return pl, true
}

// surplus is what a kingdom can best spare: the resource furthest above
// target, a quarter of what it would be willing to give.
func (w *World) surplus(f *social.Faction) (letters.Payload, bool) {
	in := negotiation.Input{Personality: f.View(), State: w.stateOf(f.ID, f.ID)}
	best, bestRatio := economy.Gold, -1.0
	for _, r := range economy.AllResources {
		ratio := float64(in.State.Stock[r]) / float64(max(1, w.evaluator.Target(r)))
		if ratio > bestRatio {
			best, bestRatio = r, ratio
		}
	}
	amount := w.evaluator.MaxGive(in, best) / 4
	if amount < 1 {
		return letters.Payload{}, false
	}
	return letters.Payload{Resource: best, Amount: amount}, true
}

// wants is the resource a kingdom most needs and how much of it to ask
// for.
func (w *World) wants(f *social.Faction) letters.Payload {
	stock := economy.Snapshot(w.Ledger, f.ID)
	best, bestNeed := economy.Gold, -1.0
	for _, r := range economy.AllResources {
		n := negotiation.Need(stock[r], w.evaluator.Target(r))
		if n > bestNeed {
			best, bestNeed = r, n
		}
	}
	target := w.evaluator.Target(best)
	amount := min(max(1, target-stock[best]), max(1, target/2))
	return letters.Payload{Resource: best, Amount: amount}
}
