package economy

import (
	"sort"
	"sync"

	"github.com/talgya/kingdoms/internal/social"
)

// Ledger is the per-kingdom stockpile. Implementations clamp at zero:
// Add with a negative delta never drives a stock below 0.
type Ledger interface {
	Get(faction social.FactionID, r ResourceType) int
	Add(faction social.FactionID, r ResourceType, delta int)
}

// Stockpile is a full resource vector.
type Stockpile [ResourceCount]int

// Snapshot reads every resource of a kingdom from a ledger.
func Snapshot(l Ledger, faction social.FactionID) Stockpile {
	var s Stockpile
	for _, r := range AllResources {
		s[r] = l.Get(faction, r)
	}
	return s
}

// Map returns the stockpile keyed by wire tag.
func (s Stockpile) Map() map[string]int {
	out := make(map[string]int, ResourceCount)
	for _, r := range AllResources {
		out[r.String()] = s[r]
	}
	return out
}

// TotalGold returns the gold-equivalent of the whole stockpile.
func (s Stockpile) TotalGold() float64 {
	total := 0.0
	for _, r := range AllResources {
		total += GoldValue(r, s[r])
	}
	return total
}

// MemoryLedger is an in-process Ledger used by the daemon and tests.
type MemoryLedger struct {
	mu     sync.Mutex
	stocks map[social.FactionID]*Stockpile
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stocks: make(map[social.FactionID]*Stockpile)}
}

// Get returns the current stock, 0 for unknown kingdoms.
func (m *MemoryLedger) Get(faction social.FactionID, r ResourceType) int {
	if !r.Valid() {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[faction]
	if !ok {
		return 0
	}
	return s[r]
}

// Add applies delta, clamping the result at zero.
func (m *MemoryLedger) Add(faction social.FactionID, r ResourceType, delta int) {
	if !r.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stocks[faction]
	if !ok {
		s = &Stockpile{}
		m.stocks[faction] = s
	}
	v := s[r] + delta
	if v < 0 {
		v = 0
	}
	s[r] = v
}

// Set overwrites a whole stockpile.
func (m *MemoryLedger) Set(faction social.FactionID, s Stockpile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	for i := range cp {
		if cp[i] < 0 {
			cp[i] = 0
		}
	}
	m.stocks[faction] = &cp
}

// Remove forgets a kingdom's stockpile.
func (m *MemoryLedger) Remove(faction social.FactionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stocks, faction)
}

// Factions lists kingdoms with a stockpile, sorted.
func (m *MemoryLedger) Factions() []social.FactionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]social.FactionID, 0, len(m.stocks))
	for id := range m.stocks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
