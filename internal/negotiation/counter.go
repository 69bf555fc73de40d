package negotiation

import (
	"math"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/letters"
)

// MaxGive is the most of r the deciding kingdom would part with: stock
// minus a personality and war scaled reserve, further cut by how badly it
// needs r. Never more than stock.
func (e *Evaluator) MaxGive(in Input, r economy.ResourceType) int {
	return e.maxGive(in, e.traits(in), r)
}

func (e *Evaluator) maxGive(in Input, tr traits, r economy.ResourceType) int {
	stock := in.State.Stock[r]
	if stock <= 0 {
		return 0
	}
	frac := 0.25 + 0.25*(1-tr.generosity) + 0.20*tr.greed
	if in.State.AtWar {
		frac += 0.20
	}
	reserve := float64(stock) * clamp(frac, 0.10, 0.90)
	need := Need(stock, e.targets[r])
	give := int(math.Floor((float64(stock) - reserve) * (1 - 0.8*need)))
	return clamp(give, 0, stock)
}

// requestCounter offers part of what was asked, capped by maxGive, in
// exchange for the resource the kingdom needs most.
func (e *Evaluator) requestCounter(in Input, v valuer, maxGive int) Result {
	give := min(in.A.Amount/2, maxGive)
	if give < 1 {
		return refuse(-1, "nothing to spare")
	}
	offered := letters.Payload{Resource: in.A.Resource, Amount: give}
	wantRes := v.neediest(in.A.Resource)
	wanted := letters.Payload{
		Resource: wantRes,
		Amount:   max(1, v.unitsFor(wantRes, e.t.CounterFairness*v.valueOut(offered))),
	}
	return Result{
		Decision:    Counter,
		CounterGive: &offered,
		CounterWant: &wanted,
		Reason:      "counter offered",
	}
}

// contractCounter clamps the give side to what can be spared and asks
// enough of want to reach minFair.
func (e *Evaluator) contractCounter(in Input, tr traits, v valuer, give letters.Payload, wantRes economy.ResourceType, minFair float64) Result {
	amount := min(give.Amount, e.maxGive(in, tr, give.Resource))
	if amount < 1 {
		return refuse(-1, "nothing to spare")
	}
	offered := letters.Payload{Resource: give.Resource, Amount: amount}
	wanted := letters.Payload{
		Resource: wantRes,
		Amount:   max(1, v.unitsFor(wantRes, minFair*v.valueOut(offered))),
	}
	return Result{
		Decision:    Counter,
		CounterGive: &offered,
		CounterWant: &wanted,
		Reason:      "counter offered",
	}
}

// contractRaise keeps the exchange but asks factor times as much in
// return.
func (e *Evaluator) contractRaise(in Input, tr traits, give, want letters.Payload, factor float64) Result {
	amount := min(give.Amount, e.maxGive(in, tr, give.Resource))
	if amount < 1 {
		return refuse(-1, "nothing to spare")
	}
	share := float64(amount) / float64(give.Amount)
	offered := letters.Payload{Resource: give.Resource, Amount: amount}
	wanted := letters.Payload{
		Resource: want.Resource,
		Amount:   max(1, int(math.Ceil(float64(want.Amount)*factor*share))),
	}
	return Result{
		Decision:    Counter,
		CounterGive: &offered,
		CounterWant: &wanted,
		Reason:      "asked for more",
	}
}
