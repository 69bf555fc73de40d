package relations

import (
	"sort"

	"github.com/talgya/kingdoms/internal/social"
)

// DefaultAllianceCapacity is the most allies a kingdom may hold.
const DefaultAllianceCapacity = 3

// Alliances is a symmetric, capacity-bounded adjacency set. All writes go
// through Add/Break so symmetry and capacity always hold.
type Alliances struct {
	capacity int
	adj      map[social.FactionID]map[social.FactionID]struct{}
	dirty    bool
}

// NewAlliances creates an empty graph. capacity < 1 uses the default.
func NewAlliances(capacity int) *Alliances {
	if capacity < 1 {
		capacity = DefaultAllianceCapacity
	}
	return &Alliances{
		capacity: capacity,
		adj:      make(map[social.FactionID]map[social.FactionID]struct{}),
	}
}

// Capacity returns the per-kingdom alliance limit.
func (a *Alliances) Capacity() int { return a.capacity }

// IsAllied reports whether a and b are allied.
func (a *Alliances) IsAllied(x, y social.FactionID) bool {
	_, ok := a.adj[x][y]
	return ok
}

// AlliesOf returns x's allies in ID order.
func (a *Alliances) AlliesOf(x social.FactionID) []social.FactionID {
	set := a.adj[x]
	out := make([]social.FactionID, 0, len(set))
	for y := range set {
		out = append(out, y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns how many allies x has.
func (a *Alliances) Count(x social.FactionID) int {
	return len(a.adj[x])
}

// CanAlly reports whether Add(x, y) would succeed. An existing alliance
// counts as satisfiable.
func (a *Alliances) CanAlly(x, y social.FactionID) bool {
	if x == y || x == "" || y == "" {
		return false
	}
	if a.IsAllied(x, y) {
		return true
	}
	return a.Count(x) < a.capacity && a.Count(y) < a.capacity
}

// Add allies x and y in both directions. Returns false when CanAlly is
// false.
func (a *Alliances) Add(x, y social.FactionID) bool {
	if !a.CanAlly(x, y) {
		return false
	}
	if a.IsAllied(x, y) {
		return true
	}
	a.link(x, y)
	a.link(y, x)
	a.dirty = true
	return true
}

func (a *Alliances) link(x, y social.FactionID) {
	set, ok := a.adj[x]
	if !ok {
		set = make(map[social.FactionID]struct{})
		a.adj[x] = set
	}
	set[y] = struct{}{}
}

// Break removes the alliance in both directions. No-op if not allied.
func (a *Alliances) Break(x, y social.FactionID) bool {
	if !a.IsAllied(x, y) {
		return false
	}
	a.unlink(x, y)
	a.unlink(y, x)
	a.dirty = true
	return true
}

func (a *Alliances) unlink(x, y social.FactionID) {
	set := a.adj[x]
	delete(set, y)
	if len(set) == 0 {
		delete(a.adj, x)
	}
}

// Forget dissolves every alliance of a removed kingdom.
func (a *Alliances) Forget(x social.FactionID) {
	for _, y := range a.AlliesOf(x) {
		a.Break(x, y)
	}
}

// Dirty reports whether the graph changed since the last ClearDirty.
func (a *Alliances) Dirty() bool { return a.dirty }

// ClearDirty marks the graph as saved.
func (a *Alliances) ClearDirty() { a.dirty = false }

// Pairs lists each alliance once with the lower ID first.
func (a *Alliances) Pairs() [][2]social.FactionID {
	var out [][2]social.FactionID
	for x, set := range a.adj {
		for y := range set {
			if x < y {
				out = append(out, [2]social.FactionID{x, y})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Restore rebuilds the graph from persisted pairs through Add, so a
// malformed save can never exceed capacity. Returns pairs dropped.
func (a *Alliances) Restore(pairs [][2]social.FactionID) int {
	a.adj = make(map[social.FactionID]map[social.FactionID]struct{})
	dropped := 0
	for _, p := range pairs {
		if a.IsAllied(p[0], p[1]) {
			continue
		}
		if !a.Add(p[0], p[1]) {
			dropped++
		}
	}
	a.dirty = false
	return dropped
}
