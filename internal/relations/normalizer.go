package relations

// Normalizer periodically drifts scores back toward equilibrium. Player
// relations decay toward their baseline; kingdom relations settle into
// one of two attractor bands (+Band for friends, -Band for rivals) so the
// map keeps stable friendships and feuds instead of collapsing to neutral.
type Normalizer struct {
	Every uint64
	Step  int
	Band  int

	last uint64
	ran  bool
}

// NewNormalizer creates a normalizer firing every `every` ticks.
func NewNormalizer(every uint64, step, band int) *Normalizer {
	if every == 0 {
		every = 1
	}
	if step <= 0 {
		step = 1
	}
	return &Normalizer{Every: every, Step: step, Band: ClampScore(band)}
}

// Due reports whether a pass should run at now.
func (n *Normalizer) Due(now uint64) bool {
	return !n.ran || now >= n.last+n.Every
}

// Run performs a pass if due and returns how many rows moved.
func (n *Normalizer) Run(now uint64, players *PlayerGraph, factions *FactionGraph) int {
	if !n.Due(now) {
		return 0
	}
	n.last = now
	n.ran = true
	moved := 0
	if players != nil {
		moved += DecayTowardBaseline(players, n.Step)
	}
	if factions != nil {
		moved += SettleTowardBands(factions, n.Band, n.Step)
	}
	return moved
}

// LastRun returns the tick of the last pass.
func (n *Normalizer) LastRun() uint64 { return n.last }

// Ran reports whether any pass has run.
func (n *Normalizer) Ran() bool { return n.ran }

// DecayTowardBaseline moves each score one step toward its baseline.
func DecayTowardBaseline[O, C ~string](g *Graph[O, C], step int) int {
	moved := 0
	g.each(func(r *row) {
		if !r.hasBaseline {
			r.baseline = r.score
			r.hasBaseline = true
		}
		next := stepToward(r.score, r.baseline, step)
		if next != r.score {
			r.score = next
			moved++
		}
	})
	if moved > 0 {
		g.dirty = true
	}
	return moved
}

// SettleTowardBands moves each nonzero score one step toward +band or
// -band, whichever shares its sign. Zero scores stay put.
func SettleTowardBands[O, C ~string](g *Graph[O, C], band, step int) int {
	moved := 0
	g.each(func(r *row) {
		var target int
		switch {
		case r.score > 0:
			target = band
		case r.score < 0:
			target = -band
		default:
			return
		}
		next := stepToward(r.score, target, step)
		if next != r.score {
			r.score = next
			moved++
		}
	})
	if moved > 0 {
		g.dirty = true
	}
	return moved
}

func stepToward(v, target, step int) int {
	switch {
	case v < target:
		return min(v+step, target)
	case v > target:
		return max(v-step, target)
	}
	return v
}

// Resume restores the cadence after a load so the next pass lands one
// period after last.
func (n *Normalizer) Resume(last uint64) {
	n.last = last
	n.ran = true
}
