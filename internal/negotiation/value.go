package negotiation

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/letters"
)

// epsilon floors every denominator.
const epsilon = 1e-6

// State is the deciding kingdom's situation at decision time.
type State struct {
	Stock   economy.Stockpile
	AtWar   bool
	Enemies int

	// Soldier counts for this kingdom and for the counterpart.
	Alive, Total           int
	OtherAlive, OtherTotal int
}

// WarPressure grows with being at war and with the number of enemies.
func WarPressure(atWar bool, enemies int) float64 {
	wp := 0.15 * float64(enemies)
	if atWar {
		wp += 0.5
	}
	return clamp01(wp)
}

// MilRatio compares alive soldiers. No soldiers on either side reads as
// parity.
func MilRatio(alive, otherAlive int) float64 {
	if alive <= 0 && otherAlive <= 0 {
		return 1
	}
	return float64(alive) / math.Max(epsilon, float64(otherAlive))
}

// Need is how far below target a stock sits, in [0,1].
func Need(stock, target int) float64 {
	if target <= 0 {
		return 0
	}
	return clamp01(float64(target-stock) / float64(target))
}

// valuer prices resources from one kingdom's point of view.
type valuer struct {
	targets     [economy.ResourceCount]int
	stock       economy.Stockpile
	atWar       bool
	warPressure float64
	warPain     float64
	wpPain      float64
}

func (v valuer) need(r economy.ResourceType) float64 {
	return Need(v.stock[r], v.targets[r])
}

// desirability is how much receiving a unit is worth relative to its
// base value.
func (v valuer) desirability(r economy.ResourceType) float64 {
	return 0.85 + 0.75*v.need(r)
}

// pain is how much giving a unit away hurts. War materials hurt more
// during a war.
func (v valuer) pain(r economy.ResourceType) float64 {
	p := 0.85 + 0.95*v.need(r)
	if v.atWar && economy.IsWarMaterial(r) {
		p *= v.warPain + v.wpPain*v.warPressure
	}
	return p
}

func (v valuer) valueIn(p letters.Payload) float64 {
	if p.Amount <= 0 {
		return 0
	}
	return p.Gold() * v.desirability(p.Resource)
}

func (v valuer) valueOut(p letters.Payload) float64 {
	return math.Max(1, p.Gold()*v.pain(p.Resource))
}

// spare is stock relative to twice the target.
func (v valuer) spare(r economy.ResourceType) float64 {
	t := v.targets[r]
	if t <= 0 {
		return 1
	}
	return float64(v.stock[r]) / float64(2*t)
}

// neediest returns the resource furthest below target, skipping except.
// Ties go to the more valuable resource.
func (v valuer) neediest(except economy.ResourceType) economy.ResourceType {
	best, bestNeed, found := economy.Gold, -1.0, false
	for _, r := range economy.AllResources {
		if r == except {
			continue
		}
		n := v.need(r)
		if !found || n > bestNeed || (n == bestNeed && economy.UnitValue(r) > economy.UnitValue(best)) {
			best, bestNeed, found = r, n, true
		}
	}
	return best
}

// unitsFor returns the units of r whose received value reaches target.
func (v valuer) unitsFor(r economy.ResourceType, target float64) int {
	per := economy.UnitValue(r) * v.desirability(r)
	return int(math.Ceil(target / math.Max(epsilon, per)))
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clampDelta(v int) int { return clamp(v, -100, 100) }

func round(v float64) int { return int(math.Round(v)) }
