package engine

import (
	"sort"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
)

// Queued is a player-authored letter in transit.
type Queued struct {
	Letter letters.Letter `json:"letter"`
	Due    uint64         `json:"due"`
	Seq    uint64         `json:"seq"`
}

// ResponseQueue holds letters until their simulated transit time has
// passed.
type ResponseQueue struct {
	items []Queued
	seq   uint64
	rng   entropy.Source
	t     config.ScheduleTuning
}

func NewResponseQueue(rng entropy.Source, t config.ScheduleTuning) *ResponseQueue {
	return &ResponseQueue{rng: rng, t: t}
}

// Enqueue schedules l for resolution after a random delay. fast selects
// the short in-person delay. Returns the due tick.
func (q *ResponseQueue) Enqueue(l letters.Letter, now uint64, fast bool) uint64 {
	lo, hi := q.t.ResponseMinTicks, q.t.ResponseMaxTicks
	if fast {
		lo, hi = q.t.FastMinTicks, q.t.FastMaxTicks
	}
	due := now + entropy.Between(q.rng, lo, hi)
	q.seq++
	q.items = append(q.items, Queued{Letter: l, Due: due, Seq: q.seq})
	return due
}

// PopDue removes and returns every entry due at now, earliest first.
func (q *ResponseQueue) PopDue(now uint64) []Queued {
	var due []Queued
	kept := q.items[:0]
	for _, it := range q.items {
		if it.Due <= now {
			due = append(due, it)
		} else {
			kept = append(kept, it)
		}
	}
	q.items = kept
	sortQueued(due)
	return due
}

// Forget drops letters sent by or addressed to id.
func (q *ResponseQueue) Forget(id string) int {
	kept := q.items[:0]
	n := 0
	for _, it := range q.items {
		if it.Letter.Sender() == id || it.Letter.Recipient() == id ||
			string(it.Letter.FromFaction) == id {
			n++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	return n
}

func (q *ResponseQueue) Len() int { return len(q.items) }

// Entries copies the queue in due order.
func (q *ResponseQueue) Entries() []Queued {
	out := append([]Queued(nil), q.items...)
	sortQueued(out)
	return out
}

// Restore replaces the queue, dropping letters without an ID.
func (q *ResponseQueue) Restore(entries []Queued) int {
	q.items = q.items[:0]
	dropped := 0
	for _, e := range entries {
		if e.Letter.ID == "" || !e.Letter.Kind.Valid() {
			dropped++
			continue
		}
		q.items = append(q.items, e)
		q.seq = max(q.seq, e.Seq)
	}
	return dropped
}

func sortQueued(items []Queued) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Due != items[j].Due {
			return items[i].Due < items[j].Due
		}
		return items[i].Seq < items[j].Seq
	})
}
