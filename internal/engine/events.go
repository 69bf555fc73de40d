package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/social"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 500

// Event is a notable diplomatic occurrence.
type Event struct {
	Tick        uint64 `json:"tick" db:"tick"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "war", "peace", "alliance", "trade", "letter"
}

// Notifier receives outbound sync pushes. Implementations must not call
// back into the World.
type Notifier interface {
	// InboxChanged is called with the player's full inbox after any
	// change to it.
	InboxChanged(p social.PlayerID, inbox []letters.Letter)
	// EconomyChanged is called after a player's kingdom's stockpile moves.
	EconomyChanged(p social.PlayerID, f social.FactionID, stock economy.Stockpile)
}

type nopNotifier struct{}

func (nopNotifier) InboxChanged(social.PlayerID, []letters.Letter)                      {}
func (nopNotifier) EconomyChanged(social.PlayerID, social.FactionID, economy.Stockpile) {}

func (w *World) record(category, format string, args ...any) {
	e := Event{Tick: w.LastTick, Description: fmt.Sprintf(format, args...), Category: category}
	w.Events = append(w.Events, e)
	if len(w.Events) > maxEvents {
		w.Events = w.Events[len(w.Events)-maxEvents:]
	}
	switch category {
	case "war", "peace", "alliance":
		slog.Info(e.Description, "category", category, "tick", e.Tick)
	default:
		slog.Debug(e.Description, "category", category, "tick", e.Tick)
	}
}

// RecentEvents returns up to n of the latest events, newest last.
func (w *World) RecentEvents(n int) []Event {
	if n <= 0 || n > len(w.Events) {
		n = len(w.Events)
	}
	return append([]Event(nil), w.Events[len(w.Events)-n:]...)
}

func (w *World) pushInbox(p social.PlayerID) {
	w.notifier.InboxChanged(p, w.Mailbox.Inbox(p))
}

func (w *World) pushEconomy(f social.FactionID) {
	k, ok := w.Roster.Get(f)
	if !ok || k.Autonomous || k.Owner == "" {
		return
	}
	w.notifier.EconomyChanged(k.Owner, f, economy.Snapshot(w.Ledger, f))
}
