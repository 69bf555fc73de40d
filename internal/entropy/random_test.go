package entropy

import "testing"

func TestSeededIsDeterministic(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("diverged at draw %d", i)
		}
	}
}

func TestFixedRepeatsLast(t *testing.T) {
	f := NewFixed(0.1, 0.9)
	if f.Float64() != 0.1 || f.Float64() != 0.9 || f.Float64() != 0.9 {
		t.Fatal("fixed source should replay then hold its last value")
	}
}

func TestBetweenStaysInBounds(t *testing.T) {
	src := NewSeeded(1)
	for i := 0; i < 1000; i++ {
		v := Between(src, 160, 240)
		if v < 160 || v > 240 {
			t.Fatalf("Between out of range: %d", v)
		}
	}
	if Between(NewFixed(0.999999), 5, 5) != 5 {
		t.Fatal("degenerate range should return lo")
	}
}

func TestChanceEdges(t *testing.T) {
	src := NewFixed(0.5)
	if Chance(src, 0) {
		t.Fatal("p=0 never fires")
	}
	if !Chance(src, 1) {
		t.Fatal("p=1 always fires")
	}
	if !Chance(NewFixed(0.2), 0.3) || Chance(NewFixed(0.4), 0.3) {
		t.Fatal("Chance should compare the draw against p")
	}
}

func TestCryptoInRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		v := Crypto{}.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("crypto float out of range: %v", v)
		}
	}
}
