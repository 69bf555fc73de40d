package engine

import (
	"fmt"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/negotiation"
	"github.com/talgya/kingdoms/internal/social"
)

type transfer struct {
	from, to social.FactionID
	pay      letters.Payload
}

// transfers lists the resource movements an accepted letter implies, with
// d the kingdom that accepted and s the sender.
func transfers(l letters.Letter, d, s social.FactionID) []transfer {
	switch l.Kind {
	case letters.Offer:
		return []transfer{{from: s, to: d, pay: l.Primary}}
	case letters.Request, letters.Ultimatum:
		return []transfer{{from: d, to: s, pay: l.Primary}}
	case letters.Contract:
		if l.Secondary == nil {
			return nil
		}
		give, want := negotiation.ContractVolume(l.Primary, *l.Secondary, l.Cap)
		return []transfer{{from: d, to: s, pay: give}, {from: s, to: d, pay: want}}
	}
	return nil
}

// shortfall reports the first transfer the current stocks cannot cover.
func (w *World) shortfall(ts []transfer) (transfer, bool) {
	type slot struct {
		f social.FactionID
		r economy.ResourceType
	}
	owed := make(map[slot]int)
	for _, t := range ts {
		s := slot{t.from, t.pay.Resource}
		owed[s] += t.pay.Amount
		if owed[s] > w.Ledger.Get(t.from, t.pay.Resource) {
			return t, true
		}
	}
	return transfer{}, false
}

// settle applies an accepted letter, with d accepting and s the sender.
// Everything is checked before anything moves; when the accept cannot be
// honored it returns a note for the letter and false.
func (w *World) settle(l letters.Letter, d, s *social.Faction) (string, bool) {
	switch l.Kind {
	case letters.AllianceProposal:
		if w.Alliances.IsAllied(d.ID, s.ID) {
			return "", true
		}
		if w.War.IsAtWar(d.ID, s.ID) {
			return "The two crowns are at war.", false
		}
		if !w.Alliances.Add(d.ID, s.ID) {
			return "There is no room for another alliance.", false
		}
		w.record("alliance", "%s and %s swore an alliance", d.Name, s.Name)
		return "", true

	case letters.AllianceBreak:
		if w.Alliances.Break(d.ID, s.ID) {
			w.record("alliance", "%s ended its alliance with %s", s.Name, d.Name)
		}
		return "", true

	case letters.WarDeclaration:
		w.declareWar(s, d)
		return "", true

	case letters.WhitePeace, letters.Surrender:
		if !w.War.IsAtWar(d.ID, s.ID) {
			return "The war had already ended.", false
		}
		w.War.MakePeace(d.ID, s.ID)
		if l.Kind == letters.Surrender {
			w.record("peace", "%s accepted the surrender of %s", d.Name, s.Name)
		} else {
			w.record("peace", "%s and %s made peace", d.Name, s.Name)
		}
		return "", true
	}

	ts := transfers(l, d.ID, s.ID)
	if len(ts) == 0 {
		return "", true
	}
	if short, ok := w.shortfall(ts); ok {
		who := s.Name
		if short.from == d.ID {
			who = d.Name
		}
		return fmt.Sprintf("%s could not cover %s.", who, short.pay), false
	}
	for _, t := range ts {
		w.Ledger.Add(t.from, t.pay.Resource, -t.pay.Amount)
		w.Ledger.Add(t.to, t.pay.Resource, t.pay.Amount)
	}
	w.pushEconomy(d.ID)
	w.pushEconomy(s.ID)
	w.record("trade", "%s and %s settled a %s", d.Name, s.Name, l.Kind)
	return "", true
}

// declareWar starts a war of attacker on target, dissolving any alliance
// between them first.
func (w *World) declareWar(attacker, target *social.Faction) {
	if w.War.IsAtWar(attacker.ID, target.ID) {
		return
	}
	w.Alliances.Break(attacker.ID, target.ID)
	w.War.DeclareWar(attacker.ID, target.ID)
	w.record("war", "%s declared war on %s", attacker.Name, target.Name)
}

// actionable reports whether a letter of kind k awaits an answer.
// Other kinds take effect on delivery.
func actionable(k letters.Kind) bool {
	switch k {
	case letters.Request, letters.Offer, letters.Contract, letters.Ultimatum,
		letters.AllianceProposal, letters.WhitePeace, letters.Surrender:
		return true
	}
	return false
}

// replyDelta is how an autonomous sender's view of a player moves when the
// player answers its letter.
func replyDelta(k letters.Kind, accepted bool) int {
	if accepted {
		switch k {
		case letters.AllianceProposal:
			return 10
		case letters.Request, letters.WhitePeace, letters.Surrender:
			return 5
		case letters.Contract, letters.Ultimatum:
			return 3
		case letters.Offer:
			return 2
		}
		return 0
	}
	switch k {
	case letters.Ultimatum:
		return -10
	case letters.Offer, letters.AllianceProposal:
		return -3
	case letters.Request, letters.WhitePeace, letters.Surrender:
		return -2
	case letters.Contract:
		return -1
	}
	return 0
}
