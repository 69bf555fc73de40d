// Package war exposes the host's war state to diplomacy: who is fighting
// whom, how strong each side still is, and where the fighting happens.
package war

import (
	"sort"
	"sync"

	"github.com/talgya/kingdoms/internal/social"
	"github.com/talgya/kingdoms/internal/world"
)

// Ledger is the narrow war interface the diplomacy engine consumes.
type Ledger interface {
	IsAtWar(a, b social.FactionID) bool
	IsAtWarWithAny(a social.FactionID) bool
	Enemies(a social.FactionID) []social.FactionID
	DeclareWar(a, b social.FactionID)
	MakePeace(a, b social.FactionID)

	// Soldiers returns alive and total soldier counts for a kingdom.
	Soldiers(f social.FactionID) (alive, total int)

	// Zone returns the center of the belligerent zone between two
	// kingdoms at war.
	Zone(a, b social.FactionID) (world.Position, bool)
}

type pair struct{ a, b social.FactionID }

func key(a, b social.FactionID) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a, b}
}

// Strength is a soldier count.
type Strength struct {
	Alive int `json:"alive"`
	Total int `json:"total"`
}

// MemoryLedger is an in-process Ledger for the daemon and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	wars     map[pair]world.Position
	soldiers map[social.FactionID]Strength
}

// NewMemoryLedger creates a ledger with no wars.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		wars:     make(map[pair]world.Position),
		soldiers: make(map[social.FactionID]Strength),
	}
}

func (m *MemoryLedger) IsAtWar(a, b social.FactionID) bool {
	if a == b {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wars[key(a, b)]
	return ok
}

func (m *MemoryLedger) IsAtWarWithAny(a social.FactionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := range m.wars {
		if p.a == a || p.b == a {
			return true
		}
	}
	return false
}

func (m *MemoryLedger) Enemies(a social.FactionID) []social.FactionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []social.FactionID
	for p := range m.wars {
		switch a {
		case p.a:
			out = append(out, p.b)
		case p.b:
			out = append(out, p.a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *MemoryLedger) DeclareWar(a, b social.FactionID) {
	if a == b {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wars[key(a, b)]; !ok {
		m.wars[key(a, b)] = world.Position{}
	}
}

// DeclareWarAt starts a war with a known front.
func (m *MemoryLedger) DeclareWarAt(a, b social.FactionID, zone world.Position) {
	if a == b {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wars[key(a, b)] = zone
}

func (m *MemoryLedger) MakePeace(a, b social.FactionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wars, key(a, b))
}

func (m *MemoryLedger) Soldiers(f social.FactionID) (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.soldiers[f]
	return s.Alive, s.Total
}

// SetSoldiers records a kingdom's army strength.
func (m *MemoryLedger) SetSoldiers(f social.FactionID, alive, total int) {
	if alive < 0 {
		alive = 0
	}
	if total < alive {
		total = alive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.soldiers[f] = Strength{Alive: alive, Total: total}
}

func (m *MemoryLedger) Zone(a, b social.FactionID) (world.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.wars[key(a, b)]
	return z, ok
}

// Forget ends every war a removed kingdom was part of.
func (m *MemoryLedger) Forget(f social.FactionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := range m.wars {
		if p.a == f || p.b == f {
			delete(m.wars, p)
		}
	}
	delete(m.soldiers, f)
}

// Wars lists active wars as ordered pairs (a < b).
func (m *MemoryLedger) Wars() [][2]social.FactionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]social.FactionID, 0, len(m.wars))
	for p := range m.wars {
		out = append(out, [2]social.FactionID{p.a, p.b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Armies copies every recorded army strength.
func (m *MemoryLedger) Armies() map[social.FactionID]Strength {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[social.FactionID]Strength, len(m.soldiers))
	for f, s := range m.soldiers {
		out[f] = s
	}
	return out
}
