package letters

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/social"
)

func offer(t *testing.T, created, expires uint64) Letter {
	t.Helper()
	l, err := New(Spec{
		FromFaction: "ashvale",
		ToPlayer:    "p1",
		Kind:        Offer,
		CreatedAt:   created,
		ExpiresAt:   expires,
		Primary:     Payload{Resource: economy.Grain, Amount: 1200},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestNewValidatesPayloadPresence(t *testing.T) {
	grain := Payload{Resource: economy.Grain, Amount: 10}
	cases := []struct {
		name string
		spec Spec
		ok   bool
	}{
		{"offer", Spec{FromFaction: "a", ToPlayer: "p", Kind: Offer, Primary: grain}, true},
		{"offer without payload", Spec{FromFaction: "a", ToPlayer: "p", Kind: Offer}, false},
		{"compliment with payload", Spec{FromFaction: "a", ToPlayer: "p", Kind: Compliment, Primary: grain}, false},
		{"contract", Spec{FromFaction: "a", ToPlayer: "p", Kind: Contract, Primary: grain, Secondary: &Payload{economy.Wood, 5}}, true},
		{"contract without return", Spec{FromFaction: "a", ToPlayer: "p", Kind: Contract, Primary: grain}, false},
		{"request with return", Spec{FromFaction: "a", ToPlayer: "p", Kind: Request, Primary: grain, Secondary: &Payload{economy.Wood, 5}}, false},
		{"war with casus belli", Spec{FromFaction: "a", ToFaction: "b", Kind: WarDeclaration, CasusBelli: "border"}, true},
		{"insult with casus belli", Spec{FromFaction: "a", ToFaction: "b", Kind: Insult, CasusBelli: "border"}, false},
		{"no recipient", Spec{FromFaction: "a", Kind: Warning}, false},
		{"expiry before creation", Spec{FromFaction: "a", ToPlayer: "p", Kind: Warning, CreatedAt: 10, ExpiresAt: 5}, false},
	}
	for _, tc := range cases {
		_, err := New(tc.spec)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err = %v, want ok=%v", tc.name, err, tc.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", tc.name, err)
		}
	}
}

func TestContractCapDefaultsToLargerSide(t *testing.T) {
	l, err := New(Spec{FromFaction: "a", ToPlayer: "p", Kind: Contract,
		Primary: Payload{economy.Metal, 20}, Secondary: &Payload{economy.Grain, 80}})
	if err != nil {
		t.Fatal(err)
	}
	if l.Cap != 80 {
		t.Fatalf("expected cap 80, got %d", l.Cap)
	}
}

func TestStatusIsOneWay(t *testing.T) {
	l := offer(t, 0, 0)
	for _, end := range []Status{Accepted, Refused, Expired} {
		done, err := l.WithStatus(end)
		if err != nil {
			t.Fatalf("pending -> %s: %v", end, err)
		}
		if l.Status != Pending {
			t.Fatal("WithStatus must not mutate the original")
		}
		for _, next := range []Status{Pending, Accepted, Refused, Expired} {
			got, err := done.WithStatus(next)
			if next == end {
				if err != nil {
					t.Fatalf("%s -> %s should be a no-op, got %v", end, next, err)
				}
				continue
			}
			if !errors.Is(err, ErrTerminal) {
				t.Fatalf("%s -> %s should fail, got %v", end, next, err)
			}
			if got.Status != end {
				t.Fatalf("%s changed to %s", end, got.Status)
			}
		}
	}
}

func TestExpiryBoundary(t *testing.T) {
	l := offer(t, 10, 100)
	for now := uint64(0); now < 300; now++ {
		if l.IsExpired(now) != (now >= 100) {
			t.Fatalf("IsExpired(%d) = %v", now, l.IsExpired(now))
		}
	}
	never := offer(t, 10, 0)
	if never.IsExpired(1 << 40) {
		t.Fatal("expiresAt 0 never expires")
	}
	if !l.IsTerminal(100) || l.IsTerminal(99) {
		t.Fatal("terminal should follow expiry")
	}
}

func TestWithNoteCopiesSecondary(t *testing.T) {
	l, err := New(Spec{FromFaction: "a", ToPlayer: "p", Kind: Contract,
		Primary: Payload{economy.Metal, 20}, Secondary: &Payload{economy.Grain, 80}})
	if err != nil {
		t.Fatal(err)
	}
	c := l.WithNote("Stocks ran short.")
	c.Secondary.Amount = 1
	if l.Secondary.Amount != 80 {
		t.Fatal("copies must not share the return payload")
	}
}

func TestMailboxOrderingAndSanitizing(t *testing.T) {
	m := NewMailbox(0)
	if got := m.Inbox("nobody"); got == nil || len(got) != 0 {
		t.Fatalf("empty inbox should be non-nil and empty, got %v", got)
	}
	m.Add("p1", nil)
	m.Add("p1", &Letter{})
	if len(m.Inbox("p1")) != 0 {
		t.Fatal("nil and zero letters must be ignored")
	}

	first, err := m.Deliver(Spec{FromFaction: "a", ToPlayer: "p1", Kind: Compliment})
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Deliver(Spec{FromFaction: "b", ToPlayer: "p1", Kind: Warning})
	if err != nil {
		t.Fatal(err)
	}
	inbox := m.Inbox("p1")
	if len(inbox) != 2 || inbox[0].ID != second.ID || inbox[1].ID != first.ID {
		t.Fatal("deliver should prepend")
	}
	if inbox[0].Subject != "A warning" {
		t.Fatalf("subject derived from kind, got %q", inbox[0].Subject)
	}

	accepted, _ := first.WithStatus(Accepted)
	if !m.Replace("p1", accepted) {
		t.Fatal("replace by id failed")
	}
	if got, _ := m.Find("p1", first.ID); got.Status != Accepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if !m.Remove("p1", second.ID) || m.Remove("p1", second.ID) {
		t.Fatal("remove should succeed once")
	}
	if _, ok := m.Find("p1", second.ID); ok {
		t.Fatal("removed letter still found")
	}
}

func TestMailboxLimitDropsResolvedFirst(t *testing.T) {
	m := NewMailbox(2)
	old, _ := m.Deliver(Spec{FromFaction: "a", ToPlayer: "p", Kind: Warning})
	done, _ := old.WithStatus(Refused)
	m.Replace("p", done)
	pending, _ := m.Deliver(Spec{FromFaction: "a", ToPlayer: "p", Kind: Insult})
	newest, _ := m.Deliver(Spec{FromFaction: "a", ToPlayer: "p", Kind: Compliment})
	inbox := m.Inbox("p")
	if len(inbox) != 2 || inbox[0].ID != newest.ID || inbox[1].ID != pending.ID {
		t.Fatalf("expected resolved letter trimmed, got %d letters", len(inbox))
	}
}

func TestMailboxLimitKeepsAddedLetter(t *testing.T) {
	m := NewMailbox(2)
	var added []Letter
	for i := 0; i < 3; i++ {
		l, err := New(Spec{FromFaction: "a", ToPlayer: "p", Kind: Compliment})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		m.Add("p", &l)
		added = append(added, l)
		if _, ok := m.Find("p", l.ID); !ok {
			t.Fatalf("letter %d missing right after Add", i)
		}
	}
	inbox := m.Inbox("p")
	if len(inbox) != 2 || inbox[0].ID != added[1].ID || inbox[1].ID != added[2].ID {
		t.Fatalf("expected the oldest pending letter evicted, got %v", inbox)
	}

	// A resolved letter goes before any pending one, even a newer one.
	done, _ := inbox[1].WithStatus(Accepted)
	m.Replace("p", done)
	late, _ := New(Spec{FromFaction: "a", ToPlayer: "p", Kind: Insult, CreatedAt: 5})
	m.Add("p", &late)
	inbox = m.Inbox("p")
	if len(inbox) != 2 || inbox[0].ID != added[1].ID || inbox[1].ID != late.ID {
		t.Fatalf("expected the resolved letter evicted, got %v", inbox)
	}
}

func TestMailboxPrune(t *testing.T) {
	m := NewMailbox(0)
	live, _ := m.Deliver(Spec{FromFaction: "a", ToPlayer: "p", Kind: Warning, CreatedAt: 0, ExpiresAt: 100})
	touched := m.Prune(50, 500)
	if len(touched) != 0 {
		t.Fatal("nothing should change before expiry")
	}
	touched = m.Prune(100, 500)
	if len(touched) != 1 || touched[0] != "p" {
		t.Fatalf("expected p touched, got %v", touched)
	}
	if got, _ := m.Find("p", live.ID); got.Status != Expired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	m.Prune(500, 500)
	if _, ok := m.Find("p", live.ID); ok {
		t.Fatal("expired letter past retention should be dropped")
	}
	if len(m.Players()) != 0 {
		t.Fatal("empty inbox should be removed")
	}
}

func TestMailboxRestoreDropsMalformed(t *testing.T) {
	l := offer(t, 0, 0)
	m := NewMailbox(0)
	dropped := m.Restore(map[social.PlayerID][]Letter{
		"p": {l, {}, l, {ID: "x", Kind: 99}},
	})
	if dropped != 3 {
		t.Fatalf("expected 3 dropped, got %d", dropped)
	}
	if len(m.Inbox("p")) != 1 {
		t.Fatal("valid letter lost")
	}
}

func TestCooldownBlocksSecondSend(t *testing.T) {
	c := NewCooldowns()
	const window = 9600
	if c.Remaining("p", "k", Compliment, 100, window) != 0 {
		t.Fatal("unseen pair should not be cooling down")
	}
	c.Record("p", "k", Compliment, 100)
	if got := c.Remaining("p", "k", Compliment, 101, window); got != window-1 {
		t.Fatalf("expected %d remaining, got %d", window-1, got)
	}
	if c.Remaining("k", "p", Compliment, 101, window) != 0 {
		t.Fatal("cooldown is per ordered pair")
	}
	if c.Remaining("p", "k", Insult, 101, window) != 0 {
		t.Fatal("cooldown is per kind")
	}
	if c.Remaining("p", "k", Compliment, 100+window, window) != 0 {
		t.Fatal("window should have elapsed")
	}
	c.Record("p", "k", Warning, 100)
	if _, ok := c.Last("p", "k", Warning); ok {
		t.Fatal("warnings carry no cooldown")
	}
}

func TestCooldownRestoreDropsOrphans(t *testing.T) {
	c := NewCooldowns()
	dropped := c.Restore([]CooldownEntry{
		{CooldownKey{"p", "k", Insult}, 5},
		{CooldownKey{"", "k", Insult}, 5},
		{CooldownKey{"p", "k", Offer}, 5},
	})
	if dropped != 2 || c.Len() != 1 {
		t.Fatalf("dropped %d, kept %d", dropped, c.Len())
	}
}

func TestWireKeepsSentinelsAtTheEdge(t *testing.T) {
	l, err := New(Spec{FromFaction: "a", ToPlayer: "p", Kind: Compliment})
	if err != nil {
		t.Fatal(err)
	}
	w := Encode(l)
	if w.Resource != NoResource || w.HasSecondary || w.HasCasusBelli {
		t.Fatalf("absent fields should encode as sentinels, got %+v", w)
	}
	back, err := Decode(w)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Primary.IsZero() || back.Secondary != nil {
		t.Fatal("sentinels leaked into the decoded letter")
	}

	bad := w
	bad.Kind = "flattery"
	if _, err := Decode(bad); err == nil {
		t.Fatal("unknown kind should not decode")
	}
	bad = w
	bad.HasSecondary = true
	bad.SecondaryResource = "grain"
	bad.SecondaryAmount = 3
	if _, err := Decode(bad); err == nil {
		t.Fatal("return payload on a compliment should not decode")
	}
}

func TestLetterJSON(t *testing.T) {
	l, err := New(Spec{FromFaction: "a", ToPlayer: "p", Kind: WarDeclaration, CasusBelli: "stolen horses"})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	var back Letter
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.CasusBelli != "stolen horses" || back.Kind != WarDeclaration || back.ID != l.ID {
		t.Fatalf("json lost fields: %+v", back)
	}
}
