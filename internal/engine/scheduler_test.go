package engine

import (
	"testing"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
)

func TestSchedulerStaggersThenReschedulesBeforeFiring(t *testing.T) {
	s := NewScheduler(entropy.NewFixed(0), 0.25)
	k := PairKey{From: "a", To: "b"}

	if s.Due(k, 10, 100) {
		t.Fatal("an unseen pair must not fire on first sight")
	}
	next, ok := s.Next(k)
	if !ok || next != 11 {
		t.Fatalf("first due = %d, want 11", next)
	}
	if s.Due(k, 10, 100) {
		t.Fatal("fired before its due tick")
	}
	if !s.Due(k, 11, 100) {
		t.Fatal("expected the pair to fire at its due tick")
	}
	next, _ = s.Next(k)
	if next != 86 {
		t.Fatalf("rescheduled to %d, want 11+75", next)
	}
	if s.Due(k, 11, 100) {
		t.Fatal("a pair fires at most once per due tick")
	}
}

func TestSchedulerStaggerSpread(t *testing.T) {
	s := NewScheduler(entropy.NewSeeded(5), 0.25)
	const period = 1000
	seen := make(map[uint64]bool)
	for i := 0; i < 200; i++ {
		k := PairKey{From: "a", To: string(rune('A' + i%26)), Player: i >= 26}
		k.To += string(rune('a' + i/26))
		s.Due(k, 0, period)
		at, _ := s.Next(k)
		if at < 1 || at > period {
			t.Fatalf("staggered due %d outside [1,%d]", at, period)
		}
		seen[at] = true
	}
	if len(seen) < 100 {
		t.Fatalf("only %d distinct due ticks for 200 pairs; staggering looks degenerate", len(seen))
	}
}

func TestSchedulerRescheduleJitterBounds(t *testing.T) {
	s := NewScheduler(entropy.NewSeeded(9), 0.25)
	k := PairKey{From: "a", To: "p", Player: true}
	s.Due(k, 0, 400)
	for i := 0; i < 500; i++ {
		at, _ := s.Next(k)
		if !s.Due(k, at, 400) {
			t.Fatalf("pair did not fire at its due tick %d", at)
		}
		next, _ := s.Next(k)
		if gap := next - at; gap < 300 || gap > 500 {
			t.Fatalf("gap %d outside period 400 +/- 25%%", gap)
		}
	}
}

func TestSchedulerForgetAndRestore(t *testing.T) {
	s := NewScheduler(entropy.NewFixed(0.5), 0)
	s.Restore([]ScheduleEntry{
		{PairKey: PairKey{From: "a", To: "b"}, Due: 5},
		{PairKey: PairKey{From: "b", To: "c"}, Due: 6},
		{PairKey: PairKey{From: "c", To: "p1", Player: true}, Due: 7},
	})
	if n := s.Forget("b"); n != 2 {
		t.Fatalf("Forget removed %d keys, want 2", n)
	}
	if dropped := s.Restore([]ScheduleEntry{{PairKey: PairKey{From: "a", To: "a"}}, {PairKey: PairKey{From: "", To: "b"}}}); dropped != 2 {
		t.Fatalf("Restore dropped %d, want 2", dropped)
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

// allDue builds a world of seeded kingdoms and one player with every
// pair cadence due at now.
func allDue(t *testing.T, seed int64, now uint64) *World {
	t.Helper()
	tuning := config.DefaultTuning()
	tuning.Schedule.BudgetPerTick = 1
	h := SeedHost(7, tuning.World)
	if _, err := h.AddPlayer("p1", "Realm of p1", h.Atlas.Seats[h.Roster.Autonomous()[0].ID]); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	w, err := NewWorld(tuning, h.Deps(entropy.NewSeeded(seed)))
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	SeedRelations(w.Factions, h.Roster.Autonomous())
	var entries []ScheduleEntry
	for _, a := range w.Roster.Autonomous() {
		for _, b := range w.Roster.Autonomous() {
			if a.ID != b.ID {
				entries = append(entries, ScheduleEntry{PairKey: PairKey{From: string(a.ID), To: string(b.ID)}, Due: now})
			}
		}
		entries = append(entries, ScheduleEntry{PairKey: PairKey{From: string(a.ID), To: "p1", Player: true}, Due: now})
	}
	w.Schedule.Restore(entries)
	return w
}

func TestBudgetExhaustedPairsWaitAFullCycle(t *testing.T) {
	const now = 1000
	var w *World
	for seed := int64(1); seed <= 20; seed++ {
		w = allDue(t, seed, now)
		w.Tick(now)
		if w.budget.Left() == 0 {
			break
		}
	}
	if w.budget.Left() != 0 {
		t.Fatal("no seed spent the budget; cannot observe the cutoff")
	}

	minNext := now + uint64(float64(w.Tuning.Schedule.FactionPeriodTicks)*(1-w.Tuning.Schedule.Jitter)) - 1
	before := w.Schedule.Entries()
	for _, e := range before {
		if e.Due <= now {
			t.Fatalf("%s still due at %d after the tick", e.PairKey, e.Due)
		}
		if e.Due < minNext {
			t.Fatalf("%s rescheduled to %d, sooner than a full cycle (%d)", e.PairKey, e.Due, minNext)
		}
	}

	w.Tick(now + 1)
	if w.budget.Left() != 1 {
		t.Fatal("the next tick spent budget on a catch-up burst")
	}
	after := w.Schedule.Entries()
	if len(after) != len(before) {
		t.Fatalf("schedule size %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("%s fired again on the next tick: %d -> %d", before[i].PairKey, before[i].Due, after[i].Due)
		}
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(2)
	if !b.Take() || !b.Take() {
		t.Fatal("budget of two should allow two interactions")
	}
	if b.Take() || b.Left() != 0 {
		t.Fatal("budget exhausted but still granting")
	}
	b.Reset()
	if b.Left() != 2 {
		t.Fatalf("Left after reset = %d, want 2", b.Left())
	}
}

func TestResponseQueueDelays(t *testing.T) {
	tn := config.DefaultTuning().Schedule
	q := NewResponseQueue(entropy.NewSeeded(3), tn)
	l, err := letters.New(letters.Spec{FromPlayer: "p1", FromFaction: "k", ToFaction: "ai", Kind: letters.Compliment})
	if err != nil {
		t.Fatalf("letters.New: %v", err)
	}
	for i := 0; i < 300; i++ {
		due := q.Enqueue(l, 1000, false)
		if due < 1000+tn.ResponseMinTicks || due > 1000+tn.ResponseMaxTicks {
			t.Fatalf("normal delay due %d out of range", due)
		}
		fast := q.Enqueue(l, 1000, true)
		if fast < 1000+tn.FastMinTicks || fast > 1000+tn.FastMaxTicks {
			t.Fatalf("fast delay due %d out of range", fast)
		}
	}
}

func TestResponseQueuePopDueOrder(t *testing.T) {
	tn := config.DefaultTuning().Schedule
	q := NewResponseQueue(entropy.NewFixed(0.9, 0.1, 0.5), tn)
	var ids []string
	for i := 0; i < 3; i++ {
		l, _ := letters.New(letters.Spec{FromFaction: "k", ToFaction: "ai", Kind: letters.Warning})
		ids = append(ids, l.ID)
		q.Enqueue(l, 0, false)
	}
	if got := q.PopDue(tn.ResponseMinTicks - 1); len(got) != 0 {
		t.Fatalf("popped %d entries before any was due", len(got))
	}
	got := q.PopDue(tn.ResponseMaxTicks)
	if len(got) != 3 {
		t.Fatalf("popped %d, want 3", len(got))
	}
	want := []string{ids[1], ids[2], ids[0]}
	for i := range want {
		if got[i].Letter.ID != want[i] {
			t.Fatalf("pop order %d = %s, want %s", i, got[i].Letter.ID, want[i])
		}
	}
	if q.Len() != 0 {
		t.Fatal("queue should be empty")
	}
}

func TestClockSerializesAndAutosaves(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0), "p1")
	c := NewClock(w, 0)
	var saved []uint64
	c.AutosaveEvery = 10
	c.OnAutosave = func(tick uint64) { saved = append(saved, tick) }

	c.Advance(25)
	if c.Tick() != 25 || w.LastTick != 25 {
		t.Fatalf("tick = %d, world at %d, want 25", c.Tick(), w.LastTick)
	}
	if len(saved) != 2 || saved[0] != 10 || saved[1] != 20 {
		t.Fatalf("autosaves at %v, want [10 20]", saved)
	}
	err := c.Do(func(w *World) error {
		_, err := w.SubmitLetter(SendCommand{Player: "p1", To: "ai", Kind: letters.Warning})
		return err
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestSimTime(t *testing.T) {
	if got := SimTime(config.Minutes(61) + config.Seconds(5)); got != "day 1, 01:01:05" {
		t.Fatalf("SimTime = %q", got)
	}
}

func TestSeedHost(t *testing.T) {
	tuning := config.DefaultTuning()
	h := SeedHost(11, tuning.World)
	all := h.Roster.All()
	if len(all) == 0 {
		t.Fatal("no kingdoms seeded")
	}
	for _, k := range all {
		if _, ok := h.Atlas.Seats[k.ID]; !ok {
			t.Fatalf("%s has no seat", k.ID)
		}
		for _, r := range economy.AllResources {
			if h.Ledger.Get(k.ID, r) < 0 {
				t.Fatalf("%s starts with negative %s", k.ID, r)
			}
		}
		if alive, _ := h.War.Soldiers(k.ID); alive <= 0 {
			t.Fatalf("%s has no army", k.ID)
		}
	}

	w, err := NewWorld(tuning, h.Deps(entropy.NewSeeded(11)))
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	SeedRelations(w.Factions, all)
	a, b := all[0], all[1]
	if w.Factions.Get(a.ID, b.ID) != w.Factions.Get(b.ID, a.ID) {
		t.Fatal("kingdom relations must be symmetric")
	}
	if w.Factions.Baseline(a.ID, b.ID) != w.Factions.Get(a.ID, b.ID) {
		t.Fatal("seeded score should be the pair's baseline")
	}

	if _, err := h.AddPlayer("p1", "Northreach", h.Atlas.Seats[a.ID]); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if _, err := h.AddPlayer("p1", "Again", h.Atlas.Seats[a.ID]); err == nil {
		t.Fatal("a player may rule only one kingdom")
	}
}
