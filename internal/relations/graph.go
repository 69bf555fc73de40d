// Package relations holds the relationship scores between players and
// kingdoms and between kingdoms, the normalizer that drifts them toward
// equilibrium, and the alliance graph.
package relations

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"

	"github.com/talgya/kingdoms/internal/social"
)

const (
	MinScore = -100
	MaxScore = 100
)

// DefaultScaleDamping is how much of a delta is lost at |score| = 100.
const DefaultScaleDamping = 0.70

type key struct {
	owner, counterpart string
}

type row struct {
	score       int
	baseline    int
	hasBaseline bool
}

// Entry is the persisted form of one relation row.
type Entry[O, C ~string] struct {
	Owner       O    `json:"owner"`
	Counterpart C    `json:"counterpart"`
	Score       int  `json:"score"`
	Baseline    int  `json:"baseline"`
	HasBaseline bool `json:"has_baseline"`
}

// Graph maps (owner, counterpart) pairs to a score in [-100,100] and a
// baseline the normalizer drifts the score toward. Rows are created on
// first write and never removed.
type Graph[O, C ~string] struct {
	symmetric bool
	damping   float64
	rows      map[key]*row
	dirty     bool
}

// PlayerGraph scores how each kingdom regards each player (one score per
// pair, owner = kingdom).
type PlayerGraph = Graph[social.FactionID, social.PlayerID]

// FactionGraph scores kingdom pairs; (a,b) and (b,a) share one row.
type FactionGraph = Graph[social.FactionID, social.FactionID]

// NewPlayerGraph creates an asymmetric kingdom→player graph.
func NewPlayerGraph() *PlayerGraph {
	return &PlayerGraph{damping: DefaultScaleDamping, rows: make(map[key]*row)}
}

// NewFactionGraph creates a symmetric kingdom↔kingdom graph.
func NewFactionGraph() *FactionGraph {
	return &FactionGraph{symmetric: true, damping: DefaultScaleDamping, rows: make(map[key]*row)}
}

// SetDamping overrides the AddScaled damping factor.
func (g *Graph[O, C]) SetDamping(d float64) {
	g.damping = clamp(d, 0, 0.99)
}

func (g *Graph[O, C]) key(owner O, counterpart C) key {
	o, c := string(owner), string(counterpart)
	if g.symmetric && c < o {
		o, c = c, o
	}
	return key{o, c}
}

func (g *Graph[O, C]) row(owner O, counterpart C) *row {
	k := g.key(owner, counterpart)
	r, ok := g.rows[k]
	if !ok {
		// Baseline is the score at first observation.
		r = &row{hasBaseline: true}
		g.rows[k] = r
	}
	return r
}

// Get returns the score, 0 for pairs never observed.
func (g *Graph[O, C]) Get(owner O, counterpart C) int {
	if r, ok := g.rows[g.key(owner, counterpart)]; ok {
		return r.score
	}
	return 0
}

// Known reports whether a row exists for the pair.
func (g *Graph[O, C]) Known(owner O, counterpart C) bool {
	_, ok := g.rows[g.key(owner, counterpart)]
	return ok
}

// Add applies delta and returns the clamped new score.
func (g *Graph[O, C]) Add(owner O, counterpart C, delta int) int {
	r := g.row(owner, counterpart)
	r.score = ClampScore(r.score + delta)
	g.dirty = true
	return r.score
}

// AddScaled applies delta damped by how extreme the score already is:
// scale = 1 - damping*min(1, |score|/100). A nonzero delta always moves
// the score by at least one point in its direction (unless clamped).
func (g *Graph[O, C]) AddScaled(owner O, counterpart C, delta int) int {
	if delta == 0 {
		return g.Get(owner, counterpart)
	}
	r := g.row(owner, counterpart)
	applied := ScaledDelta(r.score, delta, g.damping)
	r.score = ClampScore(r.score + applied)
	g.dirty = true
	return r.score
}

// ScaledDelta computes the damped delta AddScaled would apply.
func ScaledDelta(score, delta int, damping float64) int {
	if delta == 0 {
		return 0
	}
	extremity := math.Min(1, math.Abs(float64(score))/100)
	scale := 1 - damping*extremity
	applied := int(math.Round(float64(delta) * scale))
	if applied == 0 {
		if delta > 0 {
			applied = 1
		} else {
			applied = -1
		}
	}
	return applied
}

// Set overwrites a score. Used for seeding worlds and admin fixes.
func (g *Graph[O, C]) Set(owner O, counterpart C, score int) {
	r := g.row(owner, counterpart)
	r.score = ClampScore(score)
	g.dirty = true
}

// Baseline returns the pair's equilibrium, backfilling it from the current
// score when absent.
func (g *Graph[O, C]) Baseline(owner O, counterpart C) int {
	r, ok := g.rows[g.key(owner, counterpart)]
	if !ok {
		return 0
	}
	if !r.hasBaseline {
		r.baseline = r.score
		r.hasBaseline = true
		g.dirty = true
	}
	return r.baseline
}

// SetBaseline moves the pair's equilibrium.
func (g *Graph[O, C]) SetBaseline(owner O, counterpart C, baseline int) {
	r := g.row(owner, counterpart)
	r.baseline = ClampScore(baseline)
	r.hasBaseline = true
	g.dirty = true
}

// Len returns the number of rows.
func (g *Graph[O, C]) Len() int { return len(g.rows) }

// Dirty reports whether the graph changed since the last ClearDirty.
func (g *Graph[O, C]) Dirty() bool { return g.dirty }

// ClearDirty marks the graph as saved.
func (g *Graph[O, C]) ClearDirty() { g.dirty = false }

// Entries returns every row in a stable order.
func (g *Graph[O, C]) Entries() []Entry[O, C] {
	out := make([]Entry[O, C], 0, len(g.rows))
	for k, r := range g.rows {
		out = append(out, Entry[O, C]{
			Owner:       O(k.owner),
			Counterpart: C(k.counterpart),
			Score:       r.score,
			Baseline:    r.baseline,
			HasBaseline: r.hasBaseline,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Counterpart < out[j].Counterpart
	})
	return out
}

// Restore replaces the graph contents from persisted rows. Rows with empty
// identities or self-pairs are dropped; scores are clamped; missing
// baselines are backfilled from the score. Returns the number dropped.
func (g *Graph[O, C]) Restore(entries []Entry[O, C]) int {
	g.rows = make(map[key]*row, len(entries))
	dropped := 0
	for _, e := range entries {
		if e.Owner == "" || e.Counterpart == "" || (g.symmetric && string(e.Owner) == string(e.Counterpart)) {
			dropped++
			continue
		}
		r := &row{score: ClampScore(e.Score)}
		if e.HasBaseline {
			r.baseline = ClampScore(e.Baseline)
		} else {
			r.baseline = r.score
		}
		r.hasBaseline = true
		g.rows[g.key(e.Owner, e.Counterpart)] = r
	}
	g.dirty = false
	return dropped
}

// each visits every row; fn may mutate the row.
func (g *Graph[O, C]) each(fn func(r *row)) {
	for _, r := range g.rows {
		fn(r)
	}
}

// ClampScore bounds a score to [-100,100].
func ClampScore(v int) int {
	return clamp(v, MinScore, MaxScore)
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
