package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/talgya/kingdoms/internal/entropy"
)

// PairKey identifies one scheduled (kingdom, counterpart) cadence.
// Counterpart is a kingdom ID for kingdom pairs and a player ID for
// kingdom-to-player pairs.
type PairKey struct {
	From   string `json:"from" db:"from_id"`
	To     string `json:"to" db:"to_id"`
	Player bool   `json:"player" db:"player"`
}

func (k PairKey) String() string {
	sep := ">"
	if k.Player {
		sep = ">@"
	}
	return k.From + sep + k.To
}

// ScheduleEntry is the persisted form of one due tick.
type ScheduleEntry struct {
	PairKey
	Due uint64 `json:"due" db:"due"`
}

// Scheduler owns the next due tick of every pair. New pairs are staggered
// across a full period; a due pair is rescheduled before anything is
// attempted so a blocked attempt never retries in a tight loop.
type Scheduler struct {
	due    map[PairKey]uint64
	rng    entropy.Source
	jitter float64
}

// NewScheduler creates an empty scheduler. jitter is the +/- fraction of a
// period applied on each reschedule.
func NewScheduler(rng entropy.Source, jitter float64) *Scheduler {
	return &Scheduler{
		due:    make(map[PairKey]uint64),
		rng:    rng,
		jitter: math.Max(0, math.Min(jitter, 0.95)),
	}
}

// Due reports whether k fires at now. An unseen key is given a first due
// tick uniformly within one period and does not fire.
func (s *Scheduler) Due(k PairKey, now, period uint64) bool {
	period = max(period, 1)
	next, seen := s.due[k]
	if !seen {
		s.due[k] = now + entropy.Between(s.rng, 1, period)
		return false
	}
	if now < next {
		return false
	}
	s.due[k] = now + s.interval(period)
	return true
}

func (s *Scheduler) interval(period uint64) uint64 {
	f := 1 + entropy.Uniform(s.rng, -s.jitter, s.jitter)
	return max(1, uint64(math.Round(float64(period)*f)))
}

// Next returns k's due tick.
func (s *Scheduler) Next(k PairKey) (uint64, bool) {
	at, ok := s.due[k]
	return at, ok
}

// Forget drops every key that mentions id.
func (s *Scheduler) Forget(id string) int {
	n := 0
	for k := range s.due {
		if k.From == id || k.To == id {
			delete(s.due, k)
			n++
		}
	}
	return n
}

// Sweep drops keys whose endpoints no longer exist.
func (s *Scheduler) Sweep(live func(k PairKey) bool) int {
	n := 0
	for k := range s.due {
		if !live(k) {
			delete(s.due, k)
			n++
		}
	}
	return n
}

func (s *Scheduler) Len() int { return len(s.due) }

// Entries lists every key in a stable order.
func (s *Scheduler) Entries() []ScheduleEntry {
	out := make([]ScheduleEntry, 0, len(s.due))
	for k, at := range s.due {
		out = append(out, ScheduleEntry{k, at})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})
	return out
}

// Restore replaces all due ticks. Entries with empty endpoints are
// dropped.
func (s *Scheduler) Restore(entries []ScheduleEntry) int {
	s.due = make(map[PairKey]uint64, len(entries))
	dropped := 0
	for _, e := range entries {
		if e.From == "" || e.To == "" || e.From == e.To {
			dropped++
			continue
		}
		s.due[e.PairKey] = e.Due
	}
	return dropped
}

// Budget caps successful interactions per tick.
type Budget struct {
	per  int
	left int
}

func NewBudget(per int) *Budget {
	return &Budget{per: per, left: per}
}

// Reset refills the budget at the start of a tick.
func (b *Budget) Reset() { b.left = b.per }

// Left returns the interactions still allowed this tick.
func (b *Budget) Left() int { return b.left }

// Take spends one interaction, reporting false when none are left.
func (b *Budget) Take() bool {
	if b.left <= 0 {
		return false
	}
	b.left--
	return true
}
