package negotiation

import (
	"math"

	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
)

// surrenderBias is added to the accept chance when the other side
// surrenders rather than asking for white peace.
const surrenderBias = 0.25

// Fraction is alive/total; an army that never existed counts as whole.
func Fraction(alive, total int) float64 {
	if total <= 0 {
		return 1
	}
	return clamp01(float64(alive) / float64(total))
}

// StrengthRatio compares the decider's remaining fraction to the other
// side's. Below 1 the decider is losing.
func StrengthRatio(s State) float64 {
	return Fraction(s.Alive, s.Total) / math.Max(epsilon, Fraction(s.OtherAlive, s.OtherTotal))
}

// PeaceChance is the probability of accepting peace at a strength ratio.
func (e *Evaluator) PeaceChance(ratio float64) float64 {
	switch {
	case ratio < e.t.PeaceLowRatio:
		return 0.95
	case ratio > e.t.PeaceHighRatio:
		return 0.05
	}
	return clamp(0.5+1.2*(1-ratio), 0.05, 0.95)
}

// AcceptPeace rolls whether the decider takes peace.
func (e *Evaluator) AcceptPeace(s State, kind letters.Kind) bool {
	p := e.PeaceChance(StrengthRatio(s))
	if kind == letters.Surrender {
		p += surrenderBias
	}
	return entropy.Chance(e.rng, p)
}

// ShouldOfferPeace decides whether a kingdom at war sues for peace on its
// own initiative. It only does so when not clearly winning.
func (e *Evaluator) ShouldOfferPeace(s State) bool {
	ratio := StrengthRatio(s)
	if ratio > e.t.PeaceOfferMaxRatio {
		return false
	}
	return entropy.Chance(e.rng, e.PeaceChance(ratio))
}

func (e *Evaluator) peace(in Input) Result {
	if !in.State.AtWar {
		return refuse(0, "not at war")
	}
	if e.AcceptPeace(in.State, in.Kind) {
		return accept(5, "peace agreed")
	}
	return refuse(-2, "peace rejected")
}
