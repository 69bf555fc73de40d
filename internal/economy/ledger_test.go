package economy

import "testing"

func TestMemoryLedgerClampsAtZero(t *testing.T) {
	l := NewMemoryLedger()
	l.Add("k1", Grain, 10)
	l.Add("k1", Grain, -25)
	if got := l.Get("k1", Grain); got != 0 {
		t.Fatalf("expected stock clamped to 0, got %d", got)
	}
	if got := l.Get("missing", Gold); got != 0 {
		t.Fatalf("unknown kingdom should read 0, got %d", got)
	}
}

func TestParseResourceRoundTrip(t *testing.T) {
	for _, r := range AllResources {
		got, ok := ParseResource(r.String())
		if !ok || got != r {
			t.Fatalf("ParseResource(%q) = %v, %v", r.String(), got, ok)
		}
	}
	if _, ok := ParseResource("none"); ok {
		t.Fatal("sentinel tag must not parse as a resource")
	}
}

func TestWarMaterials(t *testing.T) {
	war := map[ResourceType]bool{Metal: true, Weapons: true, Armor: true, Gold: true, Horses: true, Potions: true}
	for _, r := range AllResources {
		if IsWarMaterial(r) != war[r] {
			t.Fatalf("IsWarMaterial(%s) = %v", r, IsWarMaterial(r))
		}
	}
}

func TestSnapshotTotalGold(t *testing.T) {
	l := NewMemoryLedger()
	l.Add("k1", Gold, 100)
	l.Add("k1", Horses, 2)
	s := Snapshot(l, "k1")
	if s.TotalGold() != 140 {
		t.Fatalf("expected 140 gold-equivalent, got %v", s.TotalGold())
	}
	if s.Map()["horses"] != 2 {
		t.Fatalf("map missing horses: %v", s.Map())
	}
}
