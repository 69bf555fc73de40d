package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/negotiation"
	"github.com/talgya/kingdoms/internal/policy"
	"github.com/talgya/kingdoms/internal/social"
)

// SendCommand is a player's request to send a letter. Payloads follow
// letter semantics from the recipient's side: for Offer, Primary is what
// the player gives; for Request and Ultimatum, what the player demands;
// for Contract, Primary is demanded and Secondary given.
type SendCommand struct {
	Player     social.PlayerID
	To         social.FactionID
	Kind       letters.Kind
	Primary    letters.Payload
	Secondary  *letters.Payload
	Cap        int
	CasusBelli string
	Note       string
}

// Sent is the accepted outcome of SubmitLetter.
type Sent struct {
	Letter letters.Letter `json:"letter"`
	Due    uint64         `json:"due"`
}

// SubmitLetter gates a player's letter, records its cooldown and puts it
// in transit. A policy rejection is returned as a *PolicyError.
func (w *World) SubmitLetter(cmd SendCommand) (Sent, error) {
	now := w.LastTick
	from, err := w.kingdomOf(cmd.Player)
	if err != nil {
		return Sent{}, fmt.Errorf("submit letter: %w", err)
	}
	to, exists := w.Roster.Get(cmd.To)

	inPerson := exists && w.Oracle.CoLocated(cmd.Player, cmd.To)
	req := policy.Request{
		Kind:            cmd.Kind,
		Sender:          string(from.ID),
		Recipient:       string(cmd.To),
		Now:             now,
		SenderExists:    true,
		RecipientExists: exists,
		InPerson:        inPerson,
	}
	if exists {
		req.AutonomousRecipient = to.Autonomous
		req.InRange = w.Oracle.InRange(from.ID, to.ID)
		req.AtWar = w.War.IsAtWar(from.ID, to.ID)
		req.Allied = w.Alliances.IsAllied(from.ID, to.ID)
		req.Relation = w.Relation(to, from)
	}
	if d := w.policy.CanSend(req); !d.Allowed {
		return Sent{}, &PolicyError{Decision: d}
	}

	spec := letters.Spec{
		FromFaction: from.ID,
		FromPlayer:  cmd.Player,
		ToFaction:   to.ID,
		FromName:    from.DisplayName(),
		Kind:        cmd.Kind,
		CreatedAt:   now,
		Primary:     cmd.Primary,
		Secondary:   cmd.Secondary,
		Cap:         cmd.Cap,
		CasusBelli:  cmd.CasusBelli,
		Note:        cmd.Note,
		InPerson:    inPerson,
	}
	if !to.Autonomous {
		spec.ToPlayer = to.Owner
		if actionable(cmd.Kind) {
			spec.ExpiresAt = now + w.Tuning.Schedule.ResponseMaxTicks + w.Tuning.Letters.TTLTicks
		}
	}
	l, err := letters.New(spec)
	if err != nil {
		return Sent{}, fmt.Errorf("submit letter: %w", err)
	}

	w.Cooldowns.Record(req.Sender, req.Recipient, cmd.Kind, now)
	fast := inPerson && (cmd.Kind == letters.AllianceProposal || cmd.Kind == letters.Request)
	due := w.Responses.Enqueue(l, now, fast)
	slog.Debug("letter in transit", "from", from.ID, "to", to.ID, "kind", l.Kind, "due", due)
	return Sent{Letter: l, Due: due}, nil
}

// processResponses answers every player-authored letter whose transit
// time has passed.
func (w *World) processResponses(now uint64) {
	for _, q := range w.Responses.PopDue(now) {
		l := q.Letter
		s, ok := w.Roster.Get(l.FromFaction)
		if !ok {
			slog.Debug("dropping letter from fallen kingdom", "letter", l.ID, "from", l.FromFaction)
			continue
		}
		d, ok := w.Roster.Get(l.ToFaction)
		if !ok {
			slog.Debug("dropping letter to fallen kingdom", "letter", l.ID, "to", l.ToFaction)
			continue
		}
		if d.Autonomous {
			w.answerPlayer(l, d, s, now)
		} else {
			w.forwardToPlayer(l, d, s)
		}
	}
}

// decide runs the negotiation core for kingdom d answering l from s.
func (w *World) decide(l letters.Letter, d, s *social.Faction) negotiation.Result {
	return w.evaluator.Decide(negotiation.Input{
		Kind:        l.Kind,
		Personality: d.View(),
		State:       w.stateOf(d.ID, s.ID),
		Relation:    w.Relation(d, s),
		Allied:      w.Alliances.IsAllied(d.ID, s.ID),
		A:           l.Primary,
		B:           l.Secondary,
		Cap:         l.Cap,
		InPerson:    l.InPerson,
	})
}

// answerPlayer has autonomous kingdom d answer a player's letter and mails
// the verdict back.
func (w *World) answerPlayer(l letters.Letter, d, s *social.Faction, now uint64) {
	res := w.decide(l, d, s)
	status := letters.Refused
	note := ""
	switch res.Decision {
	case negotiation.Accept:
		if why, ok := w.settle(l, d, s); ok {
			status = letters.Accepted
		} else {
			note = why
			res.RelationDelta = min(res.RelationDelta, 0)
		}
	case negotiation.Counter:
		note = "A counter-proposal follows."
	}
	rel := w.adjustRelation(d, s, res.RelationDelta)

	reply, err := letters.New(letters.Spec{
		FromFaction:    d.ID,
		FromAutonomous: true,
		FromName:       d.DisplayName(),
		ToPlayer:       s.Owner,
		ToFaction:      s.ID,
		Kind:           l.Kind,
		CreatedAt:      now,
		Primary:        l.Primary,
		Secondary:      l.Secondary,
		Cap:            l.Cap,
		CasusBelli:     l.CasusBelli,
		Note:           note,
		InPerson:       l.InPerson,
		ReplyTo:        l.ID,
	})
	if err != nil {
		slog.Error("building reply", "letter", l.ID, "error", err)
		return
	}
	reply, _ = reply.WithStatus(status)
	w.Mailbox.Post(s.Owner, reply)

	if res.Decision == negotiation.Counter {
		w.deliverCounter(l, d, s, res, now)
	}
	w.pushInbox(s.Owner)
	w.record("letter", "%s answered %s's %s: %s (%s)", d.Name, s.Name, l.Kind, status, res.Reason)
	slog.Debug("letter answered", "from", s.ID, "to", d.ID, "kind", l.Kind,
		"decision", res.Decision, "delta", res.RelationDelta, "relation", rel)
}

// deliverCounter mails d's revised terms to s as a new contract.
func (w *World) deliverCounter(l letters.Letter, d, s *social.Faction, res negotiation.Result, now uint64) {
	if res.CounterGive == nil || res.CounterWant == nil {
		return
	}
	give := *res.CounterGive
	_, err := w.Mailbox.Deliver(letters.Spec{
		FromFaction:    d.ID,
		FromAutonomous: true,
		FromName:       d.DisplayName(),
		ToPlayer:       s.Owner,
		ToFaction:      s.ID,
		Kind:           letters.Contract,
		CreatedAt:      now,
		ExpiresAt:      now + w.Tuning.Letters.TTLTicks,
		Primary:        *res.CounterWant,
		Secondary:      &give,
		Note:           "In answer to your letter, we propose these terms instead.",
		ReplyTo:        l.ID,
	})
	if err != nil {
		slog.Error("building counter", "letter", l.ID, "error", err)
	}
}

// forwardToPlayer delivers a letter between two player kingdoms once its
// transit time has passed.
func (w *World) forwardToPlayer(l letters.Letter, d, s *social.Faction) {
	if d.Owner == "" {
		return
	}
	if !actionable(l.Kind) {
		w.settle(l, d, s)
		l, _ = l.WithStatus(letters.Accepted)
	}
	w.Mailbox.Post(d.Owner, l)
	w.pushInbox(d.Owner)
}

// Respond answers a pending letter in a player's inbox. Accepting a letter
// that can no longer be honored turns it into a refusal with a note.
func (w *World) Respond(p social.PlayerID, id string, accept bool) (letters.Letter, error) {
	now := w.LastTick
	k, err := w.kingdomOf(p)
	if err != nil {
		return letters.Letter{}, fmt.Errorf("respond: %w", err)
	}
	l, ok := w.Mailbox.Find(p, id)
	if !ok {
		return letters.Letter{}, fmt.Errorf("respond %s: %w", id, letters.ErrNotFound)
	}
	if l.Status.Terminal() || !actionable(l.Kind) {
		return l, fmt.Errorf("respond %s: %w", id, letters.ErrTerminal)
	}
	if l.IsExpired(now) {
		expired, _ := l.WithStatus(letters.Expired)
		w.Mailbox.Replace(p, expired)
		w.pushInbox(p)
		return expired, fmt.Errorf("respond %s: %w", id, letters.ErrTerminal)
	}
	s, ok := w.Roster.Get(l.FromFaction)
	if !ok {
		gone, _ := l.WithStatus(letters.Expired)
		gone = gone.WithNote("The sender's kingdom is no more.")
		w.Mailbox.Replace(p, gone)
		w.pushInbox(p)
		return gone, fmt.Errorf("respond %s: %w: %s", id, ErrUnknownFaction, l.FromFaction)
	}

	status := letters.Refused
	note := ""
	if accept {
		if why, ok := w.settle(l, k, s); ok {
			status = letters.Accepted
		} else {
			note = why
		}
	}
	if s.Autonomous {
		w.adjustRelation(s, k, replyDelta(l.Kind, status == letters.Accepted))
	}

	resolved, err := l.WithStatus(status)
	if err != nil {
		return l, fmt.Errorf("respond %s: %w", id, err)
	}
	if note != "" {
		resolved = resolved.WithNote(note)
	}
	w.Mailbox.Replace(p, resolved)
	w.pushInbox(p)

	if l.FromPlayer != "" && l.FromPlayer != p {
		w.Mailbox.Post(l.FromPlayer, resolved)
		w.pushInbox(l.FromPlayer)
	}
	if l.Kind == letters.Ultimatum && status == letters.Refused && s.Autonomous {
		w.retaliate(s, k, now)
	}
	w.record("letter", "%s answered %s's %s: %s", k.Name, s.Name, l.Kind, status)
	return resolved, nil
}

// retaliate lets an autonomous kingdom whose ultimatum was defied go to
// war, more readily the more aggressive it is.
func (w *World) retaliate(attacker, target *social.Faction, now uint64) {
	if w.Alliances.IsAllied(attacker.ID, target.ID) || w.War.IsAtWar(attacker.ID, target.ID) {
		return
	}
	if !entropy.Chance(w.rng, 0.3+0.6*attacker.View().Aggression()) {
		return
	}
	w.declareWar(attacker, target)
	w.adjustRelation(attacker, target, -100)
	if !target.Autonomous && target.Owner != "" {
		l, err := w.Mailbox.Deliver(letters.Spec{
			FromFaction:    attacker.ID,
			FromAutonomous: true,
			FromName:       attacker.DisplayName(),
			ToPlayer:       target.Owner,
			ToFaction:      target.ID,
			Kind:           letters.WarDeclaration,
			CreatedAt:      now,
			CasusBelli:     "defiance of our ultimatum",
		})
		if err == nil {
			done, _ := l.WithStatus(letters.Accepted)
			w.Mailbox.Replace(target.Owner, done)
			w.pushInbox(target.Owner)
		}
	}
}
