// Package negotiation decides how an autonomous kingdom answers a letter:
// accept, refuse, or counter with revised terms. Economic letters are
// priced in gold-equivalent from the deciding kingdom's point of view and
// weighed against its personality.
package negotiation

import (
	"math"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/social"
)

// Decision is the evaluator's verdict.
type Decision uint8

const (
	Refuse Decision = iota
	Accept
	Counter
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Counter:
		return "counter"
	}
	return "refuse"
}

func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Input is one letter as seen by the kingdom deciding on it.
type Input struct {
	Kind        letters.Kind
	Personality social.PersonalityView
	State       State
	Relation    int
	Allied      bool

	// A and B follow the letter's payload semantics: for Offer A is
	// received; for Request and Ultimatum A is given; for Contract A is
	// given and B received.
	A   letters.Payload
	B   *letters.Payload
	Cap int

	InPerson bool
}

// Result is the decision plus its side effects on relations and, for
// counters, the revised terms from the decider's side.
type Result struct {
	Decision      Decision
	RelationDelta int
	CounterGive   *letters.Payload
	CounterWant   *letters.Payload
	Reason        string
}

func accept(delta int, reason string) Result {
	return Result{Decision: Accept, RelationDelta: clampDelta(delta), Reason: reason}
}

func refuse(delta int, reason string) Result {
	return Result{Decision: Refuse, RelationDelta: clampDelta(delta), Reason: reason}
}

// Evaluator holds tuning and the random source every probabilistic branch
// draws from.
type Evaluator struct {
	t       config.NegotiationTuning
	rng     entropy.Source
	targets [economy.ResourceCount]int
}

// NewEvaluator builds an evaluator. Unknown target-stock tags are ignored.
func NewEvaluator(t config.NegotiationTuning, rng entropy.Source) *Evaluator {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	e := &Evaluator{t: t, rng: rng}
	for _, r := range economy.AllResources {
		e.targets[r] = economy.TargetStock(r)
	}
	for tag, v := range t.TargetStock {
		if r, ok := economy.ParseResource(tag); ok && v > 0 {
			e.targets[r] = v
		}
	}
	return e
}

// Target returns the stock level a kingdom aims to hold of r.
func (e *Evaluator) Target(r economy.ResourceType) int { return e.targets[r] }

// traits resolves a personality with in-person adjustments applied.
type traits struct {
	aggression, honor, greed, generosity, pragmatism, trustBias float64
	trust                                                       float64
	warPressure                                                 float64
}

func (e *Evaluator) traits(in Input) traits {
	p := in.Personality
	if p == nil {
		p = social.Neutral()
	}
	tr := traits{
		aggression:  p.Aggression(),
		honor:       p.Honor(),
		greed:       p.Greed(),
		generosity:  p.Generosity(),
		pragmatism:  p.Pragmatism(),
		trustBias:   p.TrustBias(),
		warPressure: WarPressure(in.State.AtWar, in.State.Enemies),
	}
	tr.trust = e.Trust(in.Relation, tr.trustBias, in.InPerson)
	if in.InPerson {
		tr.aggression *= e.t.InPersonAggressionFactor
	}
	return tr
}

// Trust maps a relation score and trust bias to [0,1]. Meeting in person
// adds a flat bonus.
func (e *Evaluator) Trust(relation int, trustBias float64, inPerson bool) float64 {
	trust := clamp01(0.10 + 0.75*(float64(relation+100)/200) + 0.30*trustBias)
	if inPerson {
		trust = clamp01(trust + e.t.InPersonTrustBonus)
	}
	return trust
}

func (e *Evaluator) valuer(in Input, tr traits) valuer {
	return valuer{
		targets:     e.targets,
		stock:       in.State.Stock,
		atWar:       in.State.AtWar,
		warPressure: tr.warPressure,
		warPain:     e.t.WarPainFactor,
		wpPain:      e.t.WarPressurePain,
	}
}

// Decide answers one letter.
func (e *Evaluator) Decide(in Input) Result {
	tr := e.traits(in)
	switch in.Kind {
	case letters.Compliment:
		d := max(1, round(2+4*tr.generosity+3*tr.trustBias-3*tr.aggression))
		return accept(d, "flattered")
	case letters.Insult:
		d := max(1, round(3+6*tr.aggression+4*tr.honor+6*math.Max(0, -float64(in.Relation))/100))
		return accept(-d, "insulted")
	case letters.Warning:
		d := max(1, round(1+4*tr.honor))
		return accept(-d, "warned")
	case letters.WarDeclaration:
		return accept(-100, "war declared")
	case letters.AllianceBreak:
		return accept(-round(10+10*tr.honor), "alliance broken")
	case letters.AllianceProposal:
		return e.alliance(in, tr)
	case letters.WhitePeace, letters.Surrender:
		return e.peace(in)
	case letters.Offer:
		return e.offer(in, tr)
	case letters.Request:
		return e.request(in, tr)
	case letters.Ultimatum:
		return e.ultimatum(in, tr)
	case letters.Contract:
		return e.contract(in, tr)
	}
	return refuse(0, "unreadable letter")
}

func (e *Evaluator) offer(in Input, tr traits) Result {
	if in.Relation <= e.t.OfferRefuseRelation && !in.Allied {
		return refuse(-1, "gift spurned")
	}
	v := e.valuer(in, tr)
	size := math.Min(1, v.valueIn(in.A)/150)
	warm := 0.7 + 0.3*tr.generosity + 0.3*tr.trust
	boost := 1.0
	if economy.IsWarMaterial(in.A.Resource) {
		boost += 0.5 * tr.warPressure
	}
	return accept(max(1, round((3+12*size)*warm*boost)), "gift received")
}

func (e *Evaluator) request(in Input, tr traits) Result {
	v := e.valuer(in, tr)
	res := in.A.Resource
	if in.State.AtWar && (economy.IsWarMaterial(res) || v.need(res) > 0.5) {
		return refuse(-1, "cannot spare it in wartime")
	}

	goodwill := 40 * tr.trust * (0.5 + tr.generosity)
	if in.Allied {
		goodwill += 30
	}
	fairness := goodwill / v.valueOut(in.A)
	considered := tr.trust > e.t.RequestTrustMin &&
		tr.generosity > e.t.RequestGenerosityMin &&
		v.spare(res) > e.t.RequestSpareMin
	maxGive := e.maxGive(in, tr, res)

	if considered && fairness >= e.t.RequestFairnessMin && in.A.Amount <= maxGive {
		return accept(2, "request granted")
	}
	if !entropy.Chance(e.rng, 0.15+0.35*tr.trust+0.30*tr.pragmatism) {
		return refuse(-1, "request denied")
	}
	return e.requestCounter(in, v, maxGive)
}

func (e *Evaluator) ultimatum(in Input, tr traits) Result {
	v := e.valuer(in, tr)
	mil := MilRatio(in.State.Alive, in.State.OtherAlive)
	threat := 80 * clamp(1/math.Max(epsilon, mil), 0.25, 4)
	fairness := threat / v.valueOut(in.A)

	weakness := 0.0
	if mil < 1 {
		weakness = 0.60 * (1 - mil)
	}
	threshold := 0.90 + 0.60*tr.honor + 0.50*tr.aggression + 0.40*tr.warPressure -
		0.40*tr.pragmatism - 0.30*tr.trust - weakness
	threshold = math.Max(0.20, threshold)

	if fairness >= threshold && in.A.Amount <= in.State.Stock[in.A.Resource] {
		return accept(-round(5+10*tr.honor), "tribute paid")
	}
	return refuse(-round(15+20*tr.honor+15*tr.aggression), "ultimatum defied")
}

func (e *Evaluator) contract(in Input, tr traits) Result {
	if in.B == nil || !in.B.Valid() {
		return refuse(0, "malformed contract")
	}
	give, want := ContractVolume(in.A, *in.B, in.Cap)
	v := e.valuer(in, tr)
	fairness := v.valueIn(want) / v.valueOut(give)

	bonus := 0.0
	if in.Allied {
		bonus = e.t.ContractAlliedBonus
	}
	unfair := e.t.ContractUnfair - bonus
	threshold := 1.00 + 0.35*tr.greed - 0.30*tr.trust - 0.20*tr.pragmatism - bonus
	affordable := give.Amount <= e.maxGive(in, tr, give.Resource)

	if fairness < unfair || !affordable {
		if !entropy.Chance(e.rng, 0.10+0.35*tr.trust+0.25*tr.pragmatism) {
			return refuse(-1, "unfair terms")
		}
		minFair := math.Max(unfair, threshold) * (1 + 0.25*tr.greed)
		return e.contractCounter(in, tr, v, give, want.Resource, minFair)
	}
	if fairness >= e.t.ContractGreat || fairness >= threshold {
		return accept(2, "trade agreed")
	}
	if !entropy.Chance(e.rng, 0.20+0.30*tr.pragmatism) {
		return refuse(-1, "terms not good enough")
	}
	u := e.rng.Float64()
	factor := 1.15 + 0.35*u
	return e.contractRaise(in, tr, give, want, factor)
}

// ContractVolume scales a contract's exchange so the given side never
// exceeds cap. A cap of zero means no bound.
func ContractVolume(give, want letters.Payload, cap int) (letters.Payload, letters.Payload) {
	if cap <= 0 || give.Amount <= cap {
		return give, want
	}
	ratio := float64(cap) / float64(give.Amount)
	scaledWant := want
	scaledWant.Amount = max(1, int(math.Round(float64(want.Amount)*ratio)))
	give.Amount = cap
	return give, scaledWant
}
