package negotiation

import (
	"math/rand"
	"testing"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/social"
)

func newEvaluator(src entropy.Source) *Evaluator {
	return NewEvaluator(config.DefaultTuning().Negotiation, src)
}

func randomPersonality(rng *rand.Rand) *social.Personality {
	return social.NewPersonality(social.Traits{
		Aggression: rng.Float64(),
		Honor:      rng.Float64(),
		Greed:      rng.Float64(),
		Generosity: rng.Float64(),
		Pragmatism: rng.Float64(),
		TrustBias:  rng.Float64(),
	})
}

func wellStocked(e *Evaluator, factor float64) economy.Stockpile {
	var s economy.Stockpile
	for _, r := range economy.AllResources {
		s[r] = int(float64(e.Target(r)) * factor)
	}
	return s
}

func TestTrust(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	if got := e.Trust(-100, 0, false); got < 0.099 || got > 0.101 {
		t.Fatalf("expected trust 0.10 at -100, got %v", got)
	}
	remote := e.Trust(0, 0.5, false)
	near := e.Trust(0, 0.5, true)
	if d := near - remote; d < 0.119 || d > 0.121 {
		t.Fatalf("in person should add 0.12, got %v", d)
	}
	if e.Trust(100, 1, true) != 1 {
		t.Fatal("trust must clamp at 1")
	}
}

func TestSimpleKinds(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	kind := social.NewPersonality(social.Traits{Generosity: 1, TrustBias: 1})
	if r := e.Decide(Input{Kind: letters.Compliment, Personality: kind}); r.Decision != Accept || r.RelationDelta != 9 {
		t.Fatalf("compliment: %+v", r)
	}
	cold := social.NewPersonality(social.Traits{Aggression: 1})
	if r := e.Decide(Input{Kind: letters.Compliment, Personality: cold}); r.RelationDelta != 1 {
		t.Fatalf("compliment delta floors at 1, got %d", r.RelationDelta)
	}

	mild := e.Decide(Input{Kind: letters.Insult, Relation: 0})
	bitter := e.Decide(Input{Kind: letters.Insult, Relation: -100})
	if mild.RelationDelta >= 0 || bitter.RelationDelta >= mild.RelationDelta {
		t.Fatalf("insults hurt more when relations are already bad: %d vs %d", mild.RelationDelta, bitter.RelationDelta)
	}
	if r := e.Decide(Input{Kind: letters.Warning}); r.Decision != Accept || r.RelationDelta != -3 {
		t.Fatalf("warning with neutral honor: %+v", r)
	}
	if r := e.Decide(Input{Kind: letters.WarDeclaration}); r.RelationDelta != -100 {
		t.Fatalf("war declaration: %+v", r)
	}
	if r := e.Decide(Input{Kind: letters.AllianceBreak}); r.RelationDelta != -15 {
		t.Fatalf("alliance break: %+v", r)
	}
}

func TestNilPersonalityReadsNeutral(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	var p *social.Personality
	a := e.Decide(Input{Kind: letters.Compliment, Personality: p})
	b := e.Decide(Input{Kind: letters.Compliment, Personality: social.Neutral()})
	if a != b {
		t.Fatalf("nil personality %+v differs from neutral %+v", a, b)
	}
}

func TestOfferRefusedOnlyByEnemies(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	gift := letters.Payload{Resource: economy.Grain, Amount: 100}
	if r := e.Decide(Input{Kind: letters.Offer, Relation: -85, A: gift}); r.Decision != Refuse {
		t.Fatalf("expected refusal at -85, got %s", r.Decision)
	}
	if r := e.Decide(Input{Kind: letters.Offer, Relation: -85, Allied: true, A: gift}); r.Decision != Accept {
		t.Fatal("allies always accept gifts")
	}
	small := e.Decide(Input{Kind: letters.Offer, A: letters.Payload{Resource: economy.Grain, Amount: 1}})
	large := e.Decide(Input{Kind: letters.Offer, A: letters.Payload{Resource: economy.Gems, Amount: 100}})
	if small.RelationDelta < 1 || large.RelationDelta <= small.RelationDelta {
		t.Fatalf("bigger gifts should please more: %d vs %d", small.RelationDelta, large.RelationDelta)
	}
}

func TestWarMaterialsPrizedAndHoarded(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	stock := wellStocked(e, 1)
	peace := e.valuer(Input{State: State{Stock: stock}}, traits{})
	war := e.valuer(Input{State: State{Stock: stock, AtWar: true}}, traits{warPressure: 0.5})
	if war.pain(economy.Weapons) <= peace.pain(economy.Weapons) {
		t.Fatal("weapons should hurt more to give in wartime")
	}
	if war.pain(economy.Grain) != peace.pain(economy.Grain) {
		t.Fatal("grain is not a war material")
	}

	rich := wellStocked(e, 4)
	r := e.Decide(Input{
		Kind:        letters.Request,
		Personality: social.NewPersonality(social.Traits{Generosity: 1, TrustBias: 1, Pragmatism: 1}),
		State:       State{Stock: rich, AtWar: true, Enemies: 1},
		Relation:    100,
		A:           letters.Payload{Resource: economy.Weapons, Amount: 1},
	})
	if r.Decision != Refuse {
		t.Fatalf("war materials are refused outright in wartime, got %s", r.Decision)
	}
}

func TestRequestGrantedWhenGenerousAndRich(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0.999))
	r := e.Decide(Input{
		Kind:        letters.Request,
		Personality: social.NewPersonality(social.Traits{Generosity: 1, TrustBias: 1}),
		State:       State{Stock: wellStocked(e, 4)},
		Relation:    90,
		A:           letters.Payload{Resource: economy.Grain, Amount: 20},
	})
	if r.Decision != Accept {
		t.Fatalf("expected a small request to be granted, got %s (%s)", r.Decision, r.Reason)
	}
}

func TestRequestFromScarceStockNeverOverCounters(t *testing.T) {
	tun := config.DefaultTuning().Negotiation
	tun.TargetStock = map[string]int{"grain": 200}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		e := NewEvaluator(tun, entropy.NewSeeded(int64(i)))
		var stock economy.Stockpile
		stock[economy.Grain] = 10
		in := Input{
			Kind:        letters.Request,
			Personality: randomPersonality(rng),
			State:       State{Stock: stock},
			Relation:    rng.Intn(201) - 100,
			Allied:      rng.Intn(2) == 0,
			A:           letters.Payload{Resource: economy.Grain, Amount: 50},
		}
		r := e.Decide(in)
		switch r.Decision {
		case Accept:
			t.Fatal("cannot grant 50 grain from a stock of 10")
		case Counter:
			if r.CounterGive.Amount >= 50 || r.CounterGive.Amount > 10 {
				t.Fatalf("counter gives %d", r.CounterGive.Amount)
			}
			if r.CounterGive.Amount > e.MaxGive(in, economy.Grain) {
				t.Fatalf("counter gives %d above maxGive %d", r.CounterGive.Amount, e.MaxGive(in, economy.Grain))
			}
		}
	}
}

func TestCounterGiveNeverExceedsMaxGive(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	e := newEvaluator(entropy.NewFixed(0))
	counters := 0
	for i := 0; i < 5000; i++ {
		var stock economy.Stockpile
		for _, r := range economy.AllResources {
			stock[r] = rng.Intn(2 * e.Target(r))
		}
		give := economy.AllResources[rng.Intn(economy.ResourceCount)]
		want := economy.AllResources[rng.Intn(economy.ResourceCount)]
		in := Input{
			Kind:        letters.Request,
			Personality: randomPersonality(rng),
			State:       State{Stock: stock, AtWar: rng.Intn(4) == 0, Enemies: rng.Intn(3)},
			Relation:    rng.Intn(201) - 100,
			A:           letters.Payload{Resource: give, Amount: 1 + rng.Intn(400)},
		}
		if rng.Intn(2) == 0 {
			in.Kind = letters.Contract
			in.B = &letters.Payload{Resource: want, Amount: 1 + rng.Intn(400)}
		}
		r := e.Decide(in)
		if r.Decision != Counter {
			continue
		}
		counters++
		g := r.CounterGive
		if g.Amount < 1 || g.Amount > e.MaxGive(in, g.Resource) {
			t.Fatalf("%s counter gives %d, maxGive %d", in.Kind, g.Amount, e.MaxGive(in, g.Resource))
		}
		if stock[g.Resource]-g.Amount < 0 {
			t.Fatal("counter would drive stock negative")
		}
		if r.CounterWant == nil || r.CounterWant.Amount < 1 {
			t.Fatal("counter must ask for something")
		}
	}
	if counters == 0 {
		t.Fatal("no counters generated; property not exercised")
	}
}

func TestMaxGiveBounds(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	var stock economy.Stockpile
	stock[economy.Wood] = 1000
	in := Input{State: State{Stock: stock}}
	got := e.MaxGive(in, economy.Wood)
	if got <= 0 || got >= 1000 {
		t.Fatalf("maxGive should keep a reserve, got %d", got)
	}
	in.State.AtWar = true
	if e.MaxGive(in, economy.Wood) >= got {
		t.Fatal("war should enlarge the reserve")
	}
	if e.MaxGive(in, economy.Gems) != 0 {
		t.Fatal("nothing to give from an empty stock")
	}
}

func TestContractFairnessMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 200; trial++ {
		// Refusing branches draw 0.999 so only thresholds decide.
		e := newEvaluator(entropy.NewFixed(0.999))
		base := Input{
			Kind:        letters.Contract,
			Personality: randomPersonality(rng),
			State:       State{Stock: wellStocked(e, 0.2+2*rng.Float64()), AtWar: rng.Intn(3) == 0},
			Relation:    rng.Intn(201) - 100,
			Allied:      rng.Intn(2) == 0,
			A:           letters.Payload{Resource: economy.Wood, Amount: 60},
		}

		accepted := false
		for n := 1; n <= 600; n += 7 {
			in := base
			in.B = &letters.Payload{Resource: economy.Metal, Amount: n}
			ok := e.Decide(in).Decision == Accept
			if accepted && !ok {
				t.Fatalf("trial %d: receiving %d metal refused after a smaller amount was accepted", trial, n)
			}
			accepted = accepted || ok
		}

		refused := false
		for n := 1; n <= 600; n += 7 {
			in := base
			in.A = letters.Payload{Resource: economy.Wood, Amount: n}
			in.B = &letters.Payload{Resource: economy.Metal, Amount: 40}
			ok := e.Decide(in).Decision == Accept
			if refused && ok {
				t.Fatalf("trial %d: giving %d wood accepted after a smaller give was refused", trial, n)
			}
			refused = refused || !ok
		}
	}
}

func TestUltimatumMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for trial := 0; trial < 200; trial++ {
		e := newEvaluator(entropy.NewFixed(0.999))
		base := Input{
			Kind:        letters.Ultimatum,
			Personality: randomPersonality(rng),
			State:       State{Stock: wellStocked(e, 2), Alive: rng.Intn(100), OtherAlive: rng.Intn(100)},
			Relation:    -50,
		}
		refused := false
		for n := 1; n <= 300; n += 3 {
			in := base
			in.A = letters.Payload{Resource: economy.Gold, Amount: n}
			ok := e.Decide(in).Decision == Accept
			if refused && ok {
				t.Fatalf("trial %d: larger tribute %d accepted after smaller refused", trial, n)
			}
			refused = refused || !ok
		}
	}
}

func TestProudKingdomDefiesUltimatum(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	proud := social.NewPersonality(social.Traits{Honor: 0.9, Aggression: 0.5, TrustBias: 0.2})
	r := e.Decide(Input{
		Kind:        letters.Ultimatum,
		Personality: proud,
		State:       State{Stock: wellStocked(e, 2), Alive: 50, OtherAlive: 50},
		Relation:    -60,
		A:           letters.Payload{Resource: economy.Weapons, Amount: 40},
	})
	if r.Decision != Refuse {
		t.Fatalf("expected defiance, got %s", r.Decision)
	}
	if r.RelationDelta > -30 {
		t.Fatalf("defiance should be strongly negative, got %d", r.RelationDelta)
	}
}

func TestWeakKingdomPaysTribute(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	meek := social.NewPersonality(social.Traits{Pragmatism: 1, TrustBias: 0.5})
	r := e.Decide(Input{
		Kind:        letters.Ultimatum,
		Personality: meek,
		State:       State{Stock: wellStocked(e, 2), Alive: 5, OtherAlive: 100},
		Relation:    -40,
		A:           letters.Payload{Resource: economy.Grain, Amount: 100},
	})
	if r.Decision != Accept {
		t.Fatalf("a badly outnumbered pragmatist should pay, got %s", r.Decision)
	}
	if r.RelationDelta >= 0 {
		t.Fatal("paying tribute still sours relations")
	}
}

func TestAllianceProposalWarmRelations(t *testing.T) {
	in := Input{Kind: letters.AllianceProposal, Relation: 80}
	e := newEvaluator(entropy.NewFixed(0))
	if e.AllianceDesire(in) <= 0 {
		t.Fatal("warm neutral kingdom should have nonzero desire")
	}
	r := e.Decide(in)
	if r.Decision != Accept || r.RelationDelta <= 0 {
		t.Fatalf("expected accept with a positive delta, got %+v", r)
	}

	refuser := newEvaluator(entropy.NewFixed(0.9999))
	if r := refuser.Decide(in); r.Decision != Refuse || r.RelationDelta != -3 {
		t.Fatalf("unlucky roll should refuse with -3, got %+v", r)
	}
	if r := e.Decide(Input{Kind: letters.AllianceProposal, Relation: 54}); r.Decision != Refuse {
		t.Fatal("below 55 is a hard refusal")
	}
	if r := refuser.Decide(Input{Kind: letters.AllianceProposal, Relation: 0, Allied: true}); r.Decision != Accept {
		t.Fatal("already allied is idempotent")
	}
}

func TestPeaceWhenLosing(t *testing.T) {
	e := newEvaluator(entropy.NewSeeded(99))
	losing := State{AtWar: true, Alive: 20, Total: 100, OtherAlive: 90, OtherTotal: 100}
	offers, accepts := 0, 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		if e.ShouldOfferPeace(losing) {
			offers++
		}
		if e.Decide(Input{Kind: letters.WhitePeace, State: losing}).Decision == Accept {
			accepts++
		}
	}
	if offers*100 <= trials*80 || accepts*100 <= trials*80 {
		t.Fatalf("expected >80%% peace, offers %d accepts %d of %d", offers, accepts, trials)
	}
}

func TestPeaceChanceShape(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0))
	if e.PeaceChance(0.2) != 0.95 || e.PeaceChance(2) != 0.05 {
		t.Fatal("extreme ratios should saturate")
	}
	prev := 1.0
	for ratio := 0.0; ratio <= 2; ratio += 0.05 {
		p := e.PeaceChance(ratio)
		if p > prev+1e-9 {
			t.Fatalf("peace chance rose at ratio %v", ratio)
		}
		prev = p
	}
	winning := State{AtWar: true, Alive: 100, Total: 100, OtherAlive: 90, OtherTotal: 100}
	if e.ShouldOfferPeace(winning) {
		t.Fatal("a winning kingdom never sues for peace")
	}
	if StrengthRatio(State{}) != 1 {
		t.Fatal("no armies reads as parity")
	}
}

func TestSurrenderIsEasierToAccept(t *testing.T) {
	e := newEvaluator(entropy.NewFixed(0.5))
	even := State{AtWar: true, Alive: 60, Total: 100, OtherAlive: 50, OtherTotal: 100}
	if e.AcceptPeace(even, letters.WhitePeace) {
		t.Fatal("white peace at a slight advantage should fail a 0.5 roll")
	}
	if !e.AcceptPeace(even, letters.Surrender) {
		t.Fatal("surrender bias should carry the same roll")
	}
}

func TestContractVolumeRespectsCap(t *testing.T) {
	give, want := ContractVolume(
		letters.Payload{Resource: economy.Wood, Amount: 100},
		letters.Payload{Resource: economy.Gold, Amount: 50}, 40)
	if give.Amount != 40 || want.Amount != 20 {
		t.Fatalf("expected 40 for 20, got %d for %d", give.Amount, want.Amount)
	}
}
