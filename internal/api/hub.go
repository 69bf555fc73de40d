package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/social"
)

const (
	pushQueue    = 32
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 45 * time.Second
	maxPerPlayer = 4
)

// Push is one outbound sync message.
type Push struct {
	Type    string           `json:"type"` // "inbox" or "economy"
	Player  social.PlayerID  `json:"player"`
	Kingdom social.FactionID `json:"kingdom,omitempty"`
	Inbox   []letters.Letter `json:"inbox,omitempty"`
	Stock   map[string]int   `json:"stock,omitempty"`
}

type client struct {
	player social.PlayerID
	out    chan []byte
}

// Hub fans inbox and economy changes out to the websocket connections of
// each player. It implements engine.Notifier and never blocks the caller:
// a client that falls behind loses pushes rather than stalling a tick.
type Hub struct {
	mu       sync.Mutex
	clients  map[social.PlayerID]map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[social.PlayerID]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// InboxChanged pushes the player's full inbox.
func (h *Hub) InboxChanged(p social.PlayerID, inbox []letters.Letter) {
	h.send(p, Push{Type: "inbox", Player: p, Inbox: inbox})
}

// EconomyChanged pushes the stockpile of the player's kingdom.
func (h *Hub) EconomyChanged(p social.PlayerID, f social.FactionID, stock economy.Stockpile) {
	h.send(p, Push{Type: "economy", Player: p, Kingdom: f, Stock: stock.Map()})
}

// Clients returns how many connections p has open.
func (h *Hub) Clients(p social.PlayerID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[p])
}

func (h *Hub) send(p social.PlayerID, msg Push) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[p]
	if len(set) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encode push failed", "player", p, "type", msg.Type, "error", err)
		return
	}
	for c := range set {
		select {
		case c.out <- b:
		default:
			slog.Debug("dropping push for slow client", "player", p, "type", msg.Type)
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.player]
	if len(set) >= maxPerPlayer {
		return false
	}
	if set == nil {
		set = make(map[*client]struct{})
		h.clients[c.player] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.player]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.player)
	}
}

// Serve upgrades the request and streams p's pushes until the client goes
// away. initial messages are sent before any live push.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, p social.PlayerID, initial []Push) {
	c := &client{player: p, out: make(chan []byte, pushQueue)}
	for _, m := range initial {
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		select {
		case c.out <- b:
		default:
		}
	}
	if !h.register(c) {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer h.unregister(c)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "player", p, "error", err)
		return
	}
	defer conn.Close()
	slog.Info("stream client connected", "player", p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		// Clients only listen; reading keeps control frames flowing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			slog.Info("stream client disconnected", "player", p)
			return
		case b := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
