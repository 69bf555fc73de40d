// Package policy decides whether a letter may legally be sent right now.
// The gate is side-effect free: callers record cooldowns after a send
// actually goes out.
package policy

import (
	"fmt"
	"math"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/letters"
)

// Rejection reasons surfaced to players.
const (
	ReasonUnknownSender    = "sender does not exist"
	ReasonUnknownRecipient = "recipient does not exist"
	ReasonSelf             = "cannot send a letter to yourself"
	ReasonOutOfRange       = "recipient is beyond diplomatic range"
	ReasonNotAtWar         = "there is no war to end"
	ReasonAtWar            = "diplomacy is suspended while at war"
	ReasonAlly             = "cannot declare war on an ally"
	ReasonNotAllied        = "there is no alliance to break"
	ReasonAllianceAtWar    = "cannot propose an alliance while at war"
	ReasonRelationsTooPoor = "relations are too poor"
	ReasonNotHostile       = "relations are not hostile enough for an ultimatum"
	ReasonAllianceDistrust = "relations are not warm enough for an alliance"
	ReasonCooldown         = "a letter of this kind was sent too recently"
)

// CooldownReader reports time left on a cooldown window.
type CooldownReader interface {
	Remaining(from, to string, k letters.Kind, now, window uint64) uint64
}

// Request is everything the gate needs about one attempted send.
type Request struct {
	Kind      letters.Kind
	Sender    string
	Recipient string
	Now       uint64

	SenderExists    bool
	RecipientExists bool

	// FactionInitiated selects the faction path (kingdom-authored
	// letters) over the player path.
	FactionInitiated    bool
	AutonomousRecipient bool
	InRange             bool
	InPerson            bool
	AtWar               bool
	Allied              bool
	Relation            int
}

// Decision is the gate's verdict. Remaining is set for cooldown blocks.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining uint64 `json:"remaining,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Policy holds the tunable gate thresholds.
type Policy struct {
	tuning    config.PolicyTuning
	warKinds  map[letters.Kind]bool
	cooldowns CooldownReader
}

// New builds a policy. cooldowns may be nil, which disables rule 9.
func New(t config.PolicyTuning, cooldowns CooldownReader) (*Policy, error) {
	p := &Policy{tuning: t, warKinds: make(map[letters.Kind]bool), cooldowns: cooldowns}
	for _, tag := range t.FactionWarKinds {
		k, ok := letters.ParseKind(tag)
		if !ok {
			return nil, fmt.Errorf("policy: unknown war kind %q", tag)
		}
		p.warKinds[k] = true
	}
	return p, nil
}

// Window returns the cooldown window in ticks, shortened when the parties
// meet in person.
func (p *Policy) Window(inPerson bool) uint64 {
	w := p.tuning.CooldownTicks
	if inPerson {
		w = uint64(math.Round(float64(w) * p.tuning.InPersonCooldownFactor))
	}
	return w
}

// CanSend applies the rules in order; the first failure wins.
func (p *Policy) CanSend(r Request) Decision {
	// 1. identity
	if !r.SenderExists {
		return deny(ReasonUnknownSender)
	}
	if !r.RecipientExists {
		return deny(ReasonUnknownRecipient)
	}
	if r.Sender == r.Recipient {
		return deny(ReasonSelf)
	}

	// 2. reachability
	if r.FactionInitiated && !r.InRange {
		return deny(ReasonOutOfRange)
	}

	// 3-4. war
	if r.Kind.IsPeace() {
		if !r.AtWar {
			return deny(ReasonNotAtWar)
		}
	} else if r.AtWar {
		if !r.FactionInitiated || !p.warKinds[r.Kind] {
			return deny(ReasonAtWar)
		}
	}

	// 5-7. alliance state
	switch r.Kind {
	case letters.WarDeclaration:
		if r.Allied {
			return deny(ReasonAlly)
		}
	case letters.AllianceBreak:
		if !r.Allied {
			return deny(ReasonNotAllied)
		}
	case letters.AllianceProposal:
		if r.AtWar {
			return deny(ReasonAllianceAtWar)
		}
	}

	// 8. relation bands
	if r.AutonomousRecipient {
		if d, blocked := p.band(r); blocked {
			return d
		}
	}

	// 9. cooldown
	if r.Kind.RateLimited() && p.cooldowns != nil {
		if left := p.cooldowns.Remaining(r.Sender, r.Recipient, r.Kind, r.Now, p.Window(r.InPerson)); left > 0 {
			return Decision{Reason: ReasonCooldown, Remaining: left}
		}
	}
	return allow()
}

func (p *Policy) band(r Request) (Decision, bool) {
	t := p.tuning
	switch {
	case r.Kind.IsDeal() && r.Relation <= t.DealMinRelation:
		return deny(ReasonRelationsTooPoor), true
	case r.Kind == letters.Ultimatum && r.Relation >= t.UltimatumMaxRelation:
		return deny(ReasonNotHostile), true
	case r.Kind == letters.Compliment && r.Relation <= t.ComplimentMinRelation:
		return deny(ReasonRelationsTooPoor), true
	case r.Kind == letters.AllianceProposal && r.Relation <= t.AllianceMinRelation:
		return deny(ReasonAllianceDistrust), true
	}
	return Decision{}, false
}
