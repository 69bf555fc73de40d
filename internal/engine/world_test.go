package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/policy"
	"github.com/talgya/kingdoms/internal/social"
	"github.com/talgya/kingdoms/internal/world"
)

const farFuture = 1 << 40

// testWorld builds one autonomous kingdom "ai" and a player kingdom for
// each given player, all seated a few hexes apart. Pair cadences are
// parked far in the future so only the letters a test sends move.
func testWorld(t *testing.T, rng entropy.Source, players ...social.PlayerID) (*World, *Host) {
	t.Helper()
	tuning := config.DefaultTuning()
	h := NewHost(tuning.World)
	ai := &social.Faction{
		ID:         "ai",
		Name:       "Ashvale",
		Autonomous: true,
		Personality: social.NewPersonality(social.Traits{
			Aggression: 0.2, Honor: 0.8, Greed: 0.3,
			Generosity: 0.6, Pragmatism: 0.5, TrustBias: 0.8,
		}),
	}
	h.Roster.Add(ai)
	h.Atlas.SetSeat(ai.ID, world.Position{Dimension: Overworld})
	var stock economy.Stockpile
	for _, r := range economy.AllResources {
		stock[r] = economy.TargetStock(r)
	}
	h.Ledger.Set(ai.ID, stock)
	h.War.SetSoldiers(ai.ID, 100, 100)

	for i, p := range players {
		at := world.Position{Dimension: Overworld, Coord: world.HexCoord{Q: 5 * (i + 1)}}
		if _, err := h.AddPlayer(p, "Realm of "+string(p), at); err != nil {
			t.Fatalf("AddPlayer(%s): %v", p, err)
		}
	}

	w, err := NewWorld(tuning, h.Deps(rng))
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	park(w)
	return w, h
}

func park(w *World) {
	var entries []ScheduleEntry
	for _, a := range w.Roster.Autonomous() {
		for _, b := range w.Roster.All() {
			if a.ID != b.ID {
				entries = append(entries, ScheduleEntry{PairKey: PairKey{From: string(a.ID), To: string(b.ID)}, Due: farFuture})
			}
		}
		for _, p := range w.Roster.Players() {
			entries = append(entries, ScheduleEntry{PairKey: PairKey{From: string(a.ID), To: string(p), Player: true}, Due: farFuture})
		}
	}
	w.Schedule.Restore(entries)
}

func TestSubmitLetterPolicyRejection(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0), "p1")

	_, err := w.SubmitLetter(SendCommand{
		Player:  "p1",
		To:      "ai",
		Kind:    letters.Ultimatum,
		Primary: letters.Payload{Resource: economy.Gold, Amount: 50},
	})
	if !errors.Is(err, ErrPolicy) {
		t.Fatalf("err = %v, want ErrPolicy", err)
	}
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.Decision.Reason != policy.ReasonNotHostile {
		t.Fatalf("err = %v, want reason %q", err, policy.ReasonNotHostile)
	}
	if w.Cooldowns.Len() != 0 || w.Responses.Len() != 0 {
		t.Fatal("a rejected letter must leave no cooldown or queue entry")
	}
}

func TestSubmitLetterUnknownPlayer(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0))
	_, err := w.SubmitLetter(SendCommand{Player: "ghost", To: "ai", Kind: letters.Compliment})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("err = %v, want ErrUnknownPlayer", err)
	}
}

func TestComplimentCooldown(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0), "p1")
	cmd := SendCommand{Player: "p1", To: "ai", Kind: letters.Compliment}

	if _, err := w.SubmitLetter(cmd); err != nil {
		t.Fatalf("first compliment: %v", err)
	}
	_, err := w.SubmitLetter(cmd)
	var pe *PolicyError
	if !errors.As(err, &pe) || pe.Decision.Reason != policy.ReasonCooldown {
		t.Fatalf("second compliment err = %v, want cooldown", err)
	}
	if pe.Decision.Remaining == 0 {
		t.Fatal("cooldown rejection should report remaining ticks")
	}
}

func TestAllianceProposalAccepted(t *testing.T) {
	w, h := testWorld(t, entropy.NewFixed(0), "p1")
	w.Players.Set("ai", "p1", 80)
	h.Atlas.MovePlayer("p1", world.Position{Dimension: Overworld})

	sent, err := w.SubmitLetter(SendCommand{Player: "p1", To: "ai", Kind: letters.AllianceProposal})
	if err != nil {
		t.Fatalf("SubmitLetter: %v", err)
	}
	if !sent.Letter.InPerson {
		t.Fatal("player standing at the seat should negotiate in person")
	}
	tn := w.Tuning.Schedule
	if sent.Due < tn.FastMinTicks || sent.Due > tn.FastMaxTicks {
		t.Fatalf("in-person proposal due at %d, want within [%d,%d]", sent.Due, tn.FastMinTicks, tn.FastMaxTicks)
	}

	w.Tick(sent.Due - 1)
	if w.Alliances.IsAllied("ai", "player-p1") {
		t.Fatal("alliance formed before the letter arrived")
	}
	w.Tick(sent.Due)
	if !w.Alliances.IsAllied("ai", "player-p1") {
		t.Fatal("expected the alliance to be sworn")
	}
	if got := w.Players.Get("ai", "p1"); got <= 80 {
		t.Fatalf("relation = %d, want above 80 after an accepted alliance", got)
	}

	inbox := w.Mailbox.Inbox("p1")
	if len(inbox) != 1 {
		t.Fatalf("inbox has %d letters, want the reply", len(inbox))
	}
	reply := inbox[0]
	if reply.Status != letters.Accepted || reply.ReplyTo != sent.Letter.ID || reply.FromFaction != "ai" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestStaleResponseIsSkipped(t *testing.T) {
	w, h := testWorld(t, entropy.NewFixed(0), "p1")
	sent, err := w.SubmitLetter(SendCommand{Player: "p1", To: "ai", Kind: letters.Compliment})
	if err != nil {
		t.Fatalf("SubmitLetter: %v", err)
	}
	h.Roster.Remove("ai")

	w.Tick(sent.Due)
	if w.Responses.Len() != 0 {
		t.Fatal("stale entry should have left the queue")
	}
	if n := len(w.Mailbox.Inbox("p1")); n != 0 {
		t.Fatalf("inbox has %d letters, want none from a fallen kingdom", n)
	}
}

func TestDestroyForgetsKingdom(t *testing.T) {
	w, h := testWorld(t, entropy.NewFixed(0), "p1")
	w.Players.Set("ai", "p1", 80)
	if _, err := w.SubmitLetter(SendCommand{Player: "p1", To: "ai", Kind: letters.Compliment}); err != nil {
		t.Fatalf("SubmitLetter: %v", err)
	}
	w.Alliances.Add("ai", "player-p1")

	h.Destroy(w, "ai")
	if w.Roster.Exists("ai") || w.Alliances.Count("player-p1") != 0 {
		t.Fatal("destroyed kingdom still referenced")
	}
	if w.Responses.Len() != 0 || w.Cooldowns.Len() != 0 {
		t.Fatal("queue and cooldowns should drop the fallen kingdom")
	}
	for _, e := range w.Schedule.Entries() {
		if e.From == "ai" || e.To == "ai" {
			t.Fatalf("schedule still holds %v", e.PairKey)
		}
	}
}

func TestPlayerToPlayerLetterIsForwarded(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0), "p1", "p2")
	sent, err := w.SubmitLetter(SendCommand{
		Player:  "p1",
		To:      "player-p2",
		Kind:    letters.Offer,
		Primary: letters.Payload{Resource: economy.Grain, Amount: 20},
	})
	if err != nil {
		t.Fatalf("SubmitLetter: %v", err)
	}
	w.Tick(sent.Due)

	inbox := w.Mailbox.Inbox("p2")
	if len(inbox) != 1 || inbox[0].Status != letters.Pending {
		t.Fatalf("p2 inbox = %+v, want one pending offer", inbox)
	}
	before := w.Ledger.Get("player-p2", economy.Grain)
	got, err := w.Respond("p2", inbox[0].ID, true)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Status != letters.Accepted {
		t.Fatalf("status = %s, want accepted", got.Status)
	}
	if after := w.Ledger.Get("player-p2", economy.Grain); after != before+20 {
		t.Fatalf("grain = %d, want %d", after, before+20)
	}
	if n := len(w.Mailbox.Inbox("p1")); n != 1 {
		t.Fatalf("sender inbox has %d letters, want the resolved copy", n)
	}
}

func deliverOffer(t *testing.T, w *World, amount int) letters.Letter {
	t.Helper()
	l, err := w.Mailbox.Deliver(letters.Spec{
		FromFaction:    "ai",
		FromAutonomous: true,
		ToPlayer:       "p1",
		ToFaction:      "player-p1",
		Kind:           letters.Offer,
		CreatedAt:      w.LastTick,
		ExpiresAt:      w.LastTick + 100,
		Primary:        letters.Payload{Resource: economy.Gems, Amount: amount},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	return l
}

func TestInfeasibleAcceptBecomesRefusal(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0), "p1")
	l := deliverOffer(t, w, 10_000)
	gems := w.Ledger.Get("ai", economy.Gems)

	got, err := w.Respond("p1", l.ID, true)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Status != letters.Refused {
		t.Fatalf("status = %s, want refused", got.Status)
	}
	if !strings.Contains(got.Note, "could not cover") {
		t.Fatalf("note = %q, want an explanation", got.Note)
	}
	if w.Ledger.Get("ai", economy.Gems) != gems || w.Ledger.Get("player-p1", economy.Gems) != economy.TargetStock(economy.Gems) {
		t.Fatal("no resources may move on an infeasible accept")
	}
}

func TestRespondErrors(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0), "p1")

	if _, err := w.Respond("p1", "missing", true); !errors.Is(err, letters.ErrNotFound) {
		t.Fatalf("missing letter err = %v", err)
	}

	l := deliverOffer(t, w, 1)
	if _, err := w.Respond("p1", l.ID, false); err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if _, err := w.Respond("p1", l.ID, true); !errors.Is(err, letters.ErrTerminal) {
		t.Fatalf("second answer err = %v, want ErrTerminal", err)
	}

	late := deliverOffer(t, w, 1)
	w.LastTick = late.ExpiresAt
	got, err := w.Respond("p1", late.ID, true)
	if !errors.Is(err, letters.ErrTerminal) {
		t.Fatalf("expired letter err = %v, want ErrTerminal", err)
	}
	if got.Status != letters.Expired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
}

func TestRefusedUltimatumProvokesWar(t *testing.T) {
	// A zero roll makes retaliation certain.
	w, _ := testWorld(t, entropy.NewFixed(0), "p1")
	l, err := w.Mailbox.Deliver(letters.Spec{
		FromFaction:    "ai",
		FromAutonomous: true,
		ToPlayer:       "p1",
		ToFaction:      "player-p1",
		Kind:           letters.Ultimatum,
		ExpiresAt:      100,
		Primary:        letters.Payload{Resource: economy.Gold, Amount: 50},
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if _, err := w.Respond("p1", l.ID, false); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !w.War.IsAtWar("ai", "player-p1") {
		t.Fatal("refused ultimatum should lead to war")
	}
	if got := w.Players.Get("ai", "p1"); got >= 0 {
		t.Fatalf("relation = %d, want hostile", got)
	}
	inbox := w.Mailbox.Inbox("p1")
	if len(inbox) != 2 || inbox[0].Kind != letters.WarDeclaration || inbox[0].Status != letters.Accepted {
		t.Fatalf("inbox = %+v, want a delivered war declaration on top", inbox)
	}
}

func TestTickNormalizesOnCadence(t *testing.T) {
	w, _ := testWorld(t, entropy.NewFixed(0), "p1")
	w.Players.SetBaseline("ai", "p1", 0)
	w.Players.Set("ai", "p1", 30)

	w.Tick(1)
	if got := w.Players.Get("ai", "p1"); got != 29 {
		t.Fatalf("after first pass relation = %d, want 29", got)
	}
	w.Tick(2)
	if got := w.Players.Get("ai", "p1"); got != 29 {
		t.Fatalf("relation moved between passes: %d", got)
	}
	w.Tick(1 + w.Tuning.Relations.NormalizeEveryTicks)
	if got := w.Players.Get("ai", "p1"); got != 28 {
		t.Fatalf("after second pass relation = %d, want 28", got)
	}
}
