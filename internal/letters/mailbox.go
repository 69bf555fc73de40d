package letters

import (
	"sort"

	"github.com/talgya/kingdoms/internal/social"
)

// Mailbox holds each player's letters, newest first. It is not safe for
// concurrent use; the engine serializes access.
type Mailbox struct {
	boxes map[social.PlayerID][]Letter
	limit int
	dirty bool
}

// NewMailbox creates an empty mailbox. limit caps each inbox; 0 means
// unbounded.
func NewMailbox(limit int) *Mailbox {
	return &Mailbox{boxes: make(map[social.PlayerID][]Letter), limit: limit}
}

// Inbox returns a copy of a player's letters. Never nil.
func (m *Mailbox) Inbox(p social.PlayerID) []Letter {
	box := m.boxes[p]
	out := make([]Letter, 0, len(box))
	for _, l := range box {
		if l.ID == "" {
			continue
		}
		out = append(out, l.clone())
	}
	return out
}

// Add appends a letter to the end of a player's inbox.
func (m *Mailbox) Add(p social.PlayerID, l *Letter) {
	if l == nil || l.ID == "" || p == "" {
		return
	}
	m.boxes[p] = append(m.boxes[p], l.clone())
	m.trim(p, l.ID)
	m.dirty = true
}

// Deliver builds a letter from s and prepends it to the recipient's
// inbox.
func (m *Mailbox) Deliver(s Spec) (Letter, error) {
	if s.ToPlayer == "" {
		return Letter{}, ErrInvalid
	}
	l, err := New(s)
	if err != nil {
		return Letter{}, err
	}
	m.prepend(s.ToPlayer, l)
	return l, nil
}

// Post prepends an already built letter.
func (m *Mailbox) Post(p social.PlayerID, l Letter) {
	if l.ID == "" || p == "" {
		return
	}
	m.prepend(p, l.clone())
}

func (m *Mailbox) prepend(p social.PlayerID, l Letter) {
	box := m.boxes[p]
	box = append(box, Letter{})
	copy(box[1:], box)
	box[0] = l
	m.boxes[p] = box
	m.trim(p, l.ID)
	m.dirty = true
}

// trim evicts letters until the inbox fits the limit: resolved before
// pending, older before newer. The letter keep is never evicted.
func (m *Mailbox) trim(p social.PlayerID, keep string) {
	if m.limit <= 0 {
		return
	}
	box := m.boxes[p]
	for len(box) > m.limit {
		at := -1
		for i, l := range box {
			if l.ID == keep {
				at = i
				break
			}
		}
		victim := -1
		for i, l := range box {
			if i == at {
				continue
			}
			if victim < 0 || evictBefore(l, box[victim], distance(i, at), distance(victim, at)) {
				victim = i
			}
		}
		if victim < 0 {
			break
		}
		box = append(box[:victim], box[victim+1:]...)
	}
	m.boxes[p] = box
}

// evictBefore orders eviction candidates. Between letters of the same
// tick, the one farther from the new arrival is older, whichever end of
// the inbox it was inserted at.
func evictBefore(a, b Letter, da, db int) bool {
	if ta, tb := a.Status.Terminal(), b.Status.Terminal(); ta != tb {
		return ta
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return da > db
}

func distance(i, j int) int {
	if i > j {
		return i - j
	}
	return j - i
}

// Find looks a letter up by ID.
func (m *Mailbox) Find(p social.PlayerID, id string) (Letter, bool) {
	for _, l := range m.boxes[p] {
		if l.ID == id {
			return l.clone(), true
		}
	}
	return Letter{}, false
}

// Remove deletes a letter by ID.
func (m *Mailbox) Remove(p social.PlayerID, id string) bool {
	box := m.boxes[p]
	for i, l := range box {
		if l.ID == id {
			m.boxes[p] = append(box[:i], box[i+1:]...)
			if len(m.boxes[p]) == 0 {
				delete(m.boxes, p)
			}
			m.dirty = true
			return true
		}
	}
	return false
}

// Replace swaps in a new version of a letter with the same ID, keeping
// its position.
func (m *Mailbox) Replace(p social.PlayerID, l Letter) bool {
	box := m.boxes[p]
	for i := range box {
		if box[i].ID == l.ID {
			box[i] = l.clone()
			m.dirty = true
			return true
		}
	}
	return false
}

// Prune marks Pending letters past their deadline Expired and drops
// resolved letters older than retain ticks. It returns the players whose
// inbox changed.
func (m *Mailbox) Prune(now, retain uint64) []social.PlayerID {
	var touched []social.PlayerID
	for p, box := range m.boxes {
		changed := false
		kept := box[:0]
		for _, l := range box {
			if l.Status == Pending && l.IsExpired(now) {
				l, _ = l.WithStatus(Expired)
				changed = true
			}
			if l.Status.Terminal() && now >= l.CreatedAt+retain {
				changed = true
				continue
			}
			kept = append(kept, l)
		}
		if !changed {
			continue
		}
		touched = append(touched, p)
		if len(kept) == 0 {
			delete(m.boxes, p)
		} else {
			m.boxes[p] = kept
		}
	}
	if len(touched) > 0 {
		m.dirty = true
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	return touched
}

// Forget drops a player's inbox.
func (m *Mailbox) Forget(p social.PlayerID) {
	if _, ok := m.boxes[p]; ok {
		delete(m.boxes, p)
		m.dirty = true
	}
}

// Players lists players with at least one letter.
func (m *Mailbox) Players() []social.PlayerID {
	out := make([]social.PlayerID, 0, len(m.boxes))
	for p := range m.boxes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of letters across all inboxes.
func (m *Mailbox) Len() int {
	n := 0
	for _, box := range m.boxes {
		n += len(box)
	}
	return n
}

func (m *Mailbox) Dirty() bool { return m.dirty }
func (m *Mailbox) ClearDirty() { m.dirty = false }

// Snapshot copies every inbox.
func (m *Mailbox) Snapshot() map[social.PlayerID][]Letter {
	out := make(map[social.PlayerID][]Letter, len(m.boxes))
	for p := range m.boxes {
		out[p] = m.Inbox(p)
	}
	return out
}

// Restore replaces all inboxes, dropping letters without an ID, with an
// unknown kind, or duplicated within an inbox. Returns the number dropped.
func (m *Mailbox) Restore(boxes map[social.PlayerID][]Letter) int {
	m.boxes = make(map[social.PlayerID][]Letter, len(boxes))
	dropped := 0
	for p, box := range boxes {
		if p == "" {
			dropped += len(box)
			continue
		}
		seen := make(map[string]bool, len(box))
		var kept []Letter
		for _, l := range box {
			if l.ID == "" || !l.Kind.Valid() || seen[l.ID] {
				dropped++
				continue
			}
			seen[l.ID] = true
			kept = append(kept, l.clone())
		}
		if len(kept) > 0 {
			m.boxes[p] = kept
		}
	}
	m.dirty = false
	return dropped
}
