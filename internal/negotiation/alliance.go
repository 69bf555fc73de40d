package negotiation

import "github.com/talgya/kingdoms/internal/entropy"

// AllianceDesire is the probability a kingdom accepts an alliance once the
// hard relation and trust gates have passed.
func (e *Evaluator) AllianceDesire(in Input) float64 {
	tr := e.traits(in)
	return e.allianceDesire(in, tr)
}

func (e *Evaluator) allianceDesire(in Input, tr traits) float64 {
	warmth := float64(in.Relation-e.t.AllianceMinRelation) / float64(max(1, 100-e.t.AllianceMinRelation))
	return clamp01(0.25 + 0.35*tr.trustBias + 0.25*tr.pragmatism + 0.30*tr.warPressure -
		0.35*tr.aggression + 0.20*warmth)
}

func (e *Evaluator) alliance(in Input, tr traits) Result {
	if in.Allied {
		return accept(2, "already allied")
	}
	if in.Relation < e.t.AllianceMinRelation || tr.trust < e.t.AllianceMinTrust {
		return refuse(-1, "not trusted enough")
	}
	if entropy.Chance(e.rng, e.allianceDesire(in, tr)) {
		return accept(10, "alliance sworn")
	}
	return refuse(-3, "alliance declined")
}
