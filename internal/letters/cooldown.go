package letters

import "sort"

// CooldownKey identifies an ordered (sender, recipient, kind) triple.
// Sender and recipient may be player or kingdom IDs.
type CooldownKey struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind Kind   `json:"kind"`
}

// CooldownEntry is the persisted form of one cooldown row.
type CooldownEntry struct {
	CooldownKey
	At uint64 `json:"at"`
}

// Cooldowns records when each rate-limited kind was last sent between an
// ordered pair.
type Cooldowns struct {
	last  map[CooldownKey]uint64
	dirty bool
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{last: make(map[CooldownKey]uint64)}
}

// Last returns the tick of the last send, if any.
func (c *Cooldowns) Last(from, to string, k Kind) (uint64, bool) {
	at, ok := c.last[CooldownKey{from, to, k}]
	return at, ok
}

// Record stores a send. Kinds without a cooldown are ignored.
func (c *Cooldowns) Record(from, to string, k Kind, at uint64) {
	if !k.RateLimited() {
		return
	}
	c.last[CooldownKey{from, to, k}] = at
	c.dirty = true
}

// Remaining returns the ticks left before another send is allowed within
// window. Zero means the pair may send now.
func (c *Cooldowns) Remaining(from, to string, k Kind, now, window uint64) uint64 {
	at, ok := c.Last(from, to, k)
	if !ok || now < at {
		return 0
	}
	if elapsed := now - at; elapsed < window {
		return window - elapsed
	}
	return 0
}

// Forget drops every key involving id.
func (c *Cooldowns) Forget(id string) {
	for k := range c.last {
		if k.From == id || k.To == id {
			delete(c.last, k)
			c.dirty = true
		}
	}
}

// Expire drops keys whose window has fully elapsed.
func (c *Cooldowns) Expire(now, window uint64) int {
	n := 0
	for k, at := range c.last {
		if now >= at+window {
			delete(c.last, k)
			n++
		}
	}
	if n > 0 {
		c.dirty = true
	}
	return n
}

func (c *Cooldowns) Len() int { return len(c.last) }

func (c *Cooldowns) Dirty() bool { return c.dirty }
func (c *Cooldowns) ClearDirty() { c.dirty = false }

// Entries lists every row in a stable order.
func (c *Cooldowns) Entries() []CooldownEntry {
	out := make([]CooldownEntry, 0, len(c.last))
	for k, at := range c.last {
		out = append(out, CooldownEntry{k, at})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})
	return out
}

// Restore replaces the table. Rows with empty identities, self pairs, or
// kinds that carry no cooldown are dropped. Returns the number dropped.
func (c *Cooldowns) Restore(entries []CooldownEntry) int {
	c.last = make(map[CooldownKey]uint64, len(entries))
	dropped := 0
	for _, e := range entries {
		if e.From == "" || e.To == "" || e.From == e.To || !e.Kind.RateLimited() {
			dropped++
			continue
		}
		c.last[e.CooldownKey] = e.At
	}
	c.dirty = false
	return dropped
}
