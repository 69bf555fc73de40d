// Package api serves the diplomacy world over HTTP.
// GET endpoints are public read-only views. Letter commands are rate
// limited per player and validated against JSON schemas. Admin endpoints
// (founding player kingdoms, moving players, snapshots) require a bearer
// token.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/engine"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/persistence"
	"github.com/talgya/kingdoms/internal/policy"
	"github.com/talgya/kingdoms/internal/relations"
	"github.com/talgya/kingdoms/internal/social"
	"github.com/talgya/kingdoms/internal/world"
)

const maxBody = 16 * 1024

// Server serves one world over HTTP.
type Server struct {
	Clock       *engine.Clock
	Host        *engine.Host
	Hub         *Hub
	DB          *persistence.DB // optional; snapshot endpoint is disabled without it
	Port        int
	AdminKey    string // Bearer token for admin endpoints. Empty = admin disabled.
	SnapshotDir string // when set, snapshots are also written as zstd files
	CORSOrigins []string

	// Letters limits send/respond commands per player.
	Letters *RateLimiter

	schemas *commandSchemas
	httpSrv *http.Server
}

// Handler builds the routing table.
func (s *Server) Handler() (http.Handler, error) {
	if s.schemas == nil {
		sc, err := compileSchemas()
		if err != nil {
			return nil, err
		}
		s.schemas = sc
	}
	if s.Letters == nil {
		s.Letters = NewRateLimiter(30, 5)
	}
	if s.Hub == nil {
		s.Hub = NewHub()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/kingdoms", s.handleKingdoms)
	mux.HandleFunc("/api/v1/kingdom/", s.handleKingdomDetail)
	mux.HandleFunc("/api/v1/relations", s.handleRelations)
	mux.HandleFunc("/api/v1/alliances", s.handleAlliances)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/inbox", s.handleInbox)

	mux.HandleFunc("/api/v1/letters", s.handleSendLetter)
	mux.HandleFunc("/api/v1/letters/respond", s.handleRespond)

	mux.HandleFunc("/api/v1/stream", s.handleStream)

	mux.HandleFunc("/api/v1/players", s.adminOnly(s.handleAddPlayer))
	mux.HandleFunc("/api/v1/players/move", s.adminOnly(s.handleMovePlayer))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(s.CORSOrigins, mux), nil
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() error {
	handler, err := s.Handler()
	if err != nil {
		return fmt.Errorf("build api: %w", err)
	}
	addr := fmt.Sprintf(":%d", s.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		for range time.Tick(time.Hour) {
			s.Letters.Sweep(2 * time.Hour)
		}
	}()
	return nil
}

// Close stops accepting requests.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Close()
}

// corsMiddleware adds CORS headers for allowed frontend origins. Localhost
// dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no KINGDOMS_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.Clock.Do(func(wd *engine.World) error {
		status = map[string]any{
			"name":          "kingdoms",
			"tick":          wd.LastTick,
			"sim_time":      engine.SimTime(wd.LastTick),
			"kingdoms":      len(wd.Roster.All()),
			"players":       len(wd.Roster.Players()),
			"wars":          len(s.Host.War.Wars()),
			"alliances":     len(wd.Alliances.Pairs()),
			"in_transit":    wd.Responses.Len(),
			"letters":       wd.Mailbox.Len(),
			"tracked_pairs": wd.Schedule.Len(),
		}
		return nil
	})
	writeJSON(w, status)
}

type kingdomView struct {
	ID         social.FactionID   `json:"id"`
	Name       string             `json:"name"`
	Ruler      string             `json:"ruler,omitempty"`
	Autonomous bool               `json:"autonomous"`
	Owner      social.PlayerID    `json:"owner,omitempty"`
	Seat       *world.Position    `json:"seat,omitempty"`
	Soldiers   int                `json:"soldiers"`
	Wealth     float64            `json:"wealth"`
	Stock      map[string]int     `json:"stock"`
	Allies     []social.FactionID `json:"allies"`
	Enemies    []social.FactionID `json:"enemies"`
	Traits     *social.Traits     `json:"traits,omitempty"`
	Relations  map[string]int     `json:"relations,omitempty"`
}

func (s *Server) viewKingdom(wd *engine.World, f *social.Faction) kingdomView {
	stock := economy.Snapshot(wd.Ledger, f.ID)
	alive, _ := wd.War.Soldiers(f.ID)
	v := kingdomView{
		ID:         f.ID,
		Name:       f.Name,
		Ruler:      f.RulerName,
		Autonomous: f.Autonomous,
		Owner:      f.Owner,
		Soldiers:   alive,
		Wealth:     stock.TotalGold(),
		Stock:      stock.Map(),
		Allies:     wd.Alliances.AlliesOf(f.ID),
		Enemies:    wd.War.Enemies(f.ID),
	}
	if seat, ok := s.Host.Atlas.Seats[f.ID]; ok {
		v.Seat = &seat
	}
	if f.Personality != nil {
		t := f.Personality.Traits()
		v.Traits = &t
	}
	return v
}

func (s *Server) handleKingdoms(w http.ResponseWriter, r *http.Request) {
	var out []kingdomView
	s.Clock.Do(func(wd *engine.World) error {
		for _, f := range wd.Roster.All() {
			out = append(out, s.viewKingdom(wd, f))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, out)
}

// handleKingdomDetail serves /api/v1/kingdom/{id} with the kingdom's view
// of every other kingdom.
func (s *Server) handleKingdomDetail(w http.ResponseWriter, r *http.Request) {
	id := social.FactionID(strings.TrimPrefix(r.URL.Path, "/api/v1/kingdom/"))
	var (
		out   kingdomView
		found bool
	)
	s.Clock.Do(func(wd *engine.World) error {
		f, ok := wd.Roster.Get(id)
		if !ok {
			return nil
		}
		found = true
		out = s.viewKingdom(wd, f)
		out.Relations = make(map[string]int)
		for _, other := range wd.Roster.All() {
			if other.ID == f.ID {
				continue
			}
			out.Relations[string(other.ID)] = wd.Relation(f, other)
		}
		return nil
	})
	if !found {
		http.Error(w, "kingdom not found", http.StatusNotFound)
		return
	}
	writeJSON(w, out)
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	filter := social.FactionID(r.URL.Query().Get("kingdom"))
	out := map[string]any{}
	s.Clock.Do(func(wd *engine.World) error {
		players := []relations.Entry[social.FactionID, social.PlayerID]{}
		for _, e := range wd.Players.Entries() {
			if filter == "" || e.Owner == filter {
				players = append(players, e)
			}
		}
		factions := []relations.Entry[social.FactionID, social.FactionID]{}
		for _, e := range wd.Factions.Entries() {
			if filter == "" || e.Owner == filter || e.Counterpart == filter {
				factions = append(factions, e)
			}
		}
		out["players"] = players
		out["kingdoms"] = factions
		return nil
	})
	writeJSON(w, out)
}

func (s *Server) handleAlliances(w http.ResponseWriter, r *http.Request) {
	var pairs [][2]social.FactionID
	var wars [][2]social.FactionID
	s.Clock.Do(func(wd *engine.World) error {
		pairs = wd.Alliances.Pairs()
		wars = s.Host.War.Wars()
		return nil
	})
	writeJSON(w, map[string]any{"alliances": pairs, "wars": wars})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	category := r.URL.Query().Get("category")

	var events []engine.Event
	s.Clock.Do(func(wd *engine.World) error {
		for _, e := range wd.Events {
			if category == "" || e.Category == category {
				events = append(events, e)
			}
		}
		return nil
	})

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	p := social.PlayerID(r.URL.Query().Get("player"))
	var (
		inbox []letters.Letter
		known bool
	)
	s.Clock.Do(func(wd *engine.World) error {
		_, known = wd.Roster.OwnedBy(p)
		inbox = wd.Mailbox.Inbox(p)
		return nil
	})
	if !known {
		http.Error(w, "player has no kingdom", http.StatusNotFound)
		return
	}
	if inbox == nil {
		inbox = []letters.Letter{}
	}
	writeJSON(w, inbox)
}

type payloadBody struct {
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

func (p *payloadBody) payload() letters.Payload {
	if p == nil {
		return letters.Payload{}
	}
	r, _ := economy.ParseResource(p.Resource)
	return letters.Payload{Resource: r, Amount: p.Amount}
}

type sendBody struct {
	Player     string       `json:"player"`
	To         string       `json:"to"`
	Kind       string       `json:"kind"`
	Primary    *payloadBody `json:"primary"`
	Secondary  *payloadBody `json:"secondary"`
	Cap        int          `json:"cap"`
	CasusBelli string       `json:"casus_belli"`
	Note       string       `json:"note"`
}

func (b sendBody) command() engine.SendCommand {
	kind, _ := letters.ParseKind(b.Kind)
	cmd := engine.SendCommand{
		Player:     social.PlayerID(b.Player),
		To:         social.FactionID(b.To),
		Kind:       kind,
		Primary:    b.Primary.payload(),
		Cap:        b.Cap,
		CasusBelli: b.CasusBelli,
		Note:       b.Note,
	}
	if b.Secondary != nil {
		sec := b.Secondary.payload()
		cmd.Secondary = &sec
	}
	return cmd
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

// handleSendLetter queues a letter from the body's player. That field is
// trusted as sent; it identifies the sender and does not authenticate it.
func (s *Server) handleSendLetter(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req sendBody
	if err := decodeValidated(s.schemas.send, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if ok, wait := s.Letters.Allow("player:" + req.Player); !ok {
		tooMany(w, wait)
		return
	}

	var sent engine.Sent
	err := s.Clock.Do(func(wd *engine.World) error {
		var err error
		sent, err = wd.SubmitLetter(req.command())
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	slog.Debug("letter accepted for delivery", "player", req.Player, "to", req.To, "kind", req.Kind, "due", sent.Due)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	encodeJSON(w, sent)
}

type respondBody struct {
	Player   string `json:"player"`
	LetterID string `json:"letter_id"`
	Accept   bool   `json:"accept"`
}

// handleRespond answers a letter on behalf of the body's player, trusted
// as sent like handleSendLetter.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req respondBody
	if err := decodeValidated(s.schemas.respond, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if ok, wait := s.Letters.Allow("player:" + req.Player); !ok {
		tooMany(w, wait)
		return
	}

	var resolved letters.Letter
	err := s.Clock.Do(func(wd *engine.World) error {
		var err error
		resolved, err = wd.Respond(social.PlayerID(req.Player), req.LetterID, req.Accept)
		return err
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, resolved)
}

// handleStream upgrades to a websocket that carries the player's inbox and
// economy pushes, starting with their current state.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	p := social.PlayerID(r.URL.Query().Get("player"))
	var initial []Push
	s.Clock.Do(func(wd *engine.World) error {
		k, ok := wd.Roster.OwnedBy(p)
		if !ok {
			return nil
		}
		initial = append(initial,
			Push{Type: "inbox", Player: p, Inbox: wd.Mailbox.Inbox(p)},
			Push{Type: "economy", Player: p, Kingdom: k.ID, Stock: economy.Snapshot(wd.Ledger, k.ID).Map()},
		)
		return nil
	})
	if initial == nil {
		http.Error(w, "player has no kingdom", http.StatusNotFound)
		return
	}
	s.Hub.Serve(w, r, p, initial)
}

type addPlayerBody struct {
	Player  string `json:"player"`
	Kingdom string `json:"kingdom"`
	Q       int    `json:"q"`
	R       int    `json:"r"`
}

func (s *Server) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req addPlayerBody
	if err := decodeValidated(s.schemas.player, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var out kingdomView
	err := s.Clock.Do(func(wd *engine.World) error {
		at := world.Position{Dimension: engine.Overworld, Coord: world.HexCoord{Q: req.Q, R: req.R}}
		f, err := s.Host.AddPlayer(social.PlayerID(req.Player), req.Kingdom, at)
		if err != nil {
			return err
		}
		out = s.viewKingdom(wd, f)
		return nil
	})
	if err != nil {
		writeError(w, http.StatusConflict, err.Error(), nil)
		return
	}
	slog.Info("player kingdom founded", "player", req.Player, "kingdom", out.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	encodeJSON(w, out)
}

type moveBody struct {
	Player    string `json:"player"`
	Dimension string `json:"dimension"`
	Q         int    `json:"q"`
	R         int    `json:"r"`
}

// handleMovePlayer records where the host game says a player now stands.
func (s *Server) handleMovePlayer(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req moveBody
	if err := decodeValidated(s.schemas.move, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Dimension == "" {
		req.Dimension = engine.Overworld
	}
	pos := world.Position{Dimension: req.Dimension, Coord: world.HexCoord{Q: req.Q, R: req.R}}
	s.Clock.Do(func(wd *engine.World) error {
		s.Host.Atlas.MovePlayer(social.PlayerID(req.Player), pos)
		return nil
	})
	writeJSON(w, map[string]any{"player": req.Player, "position": pos})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil && s.SnapshotDir == "" {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	var snap persistence.Snapshot
	s.Clock.Do(func(wd *engine.World) error {
		snap = persistence.Capture(wd, s.Host)
		return nil
	})

	resp := map[string]any{"tick": snap.Tick, "message": "snapshot saved"}
	if s.DB != nil {
		if err := s.DB.SaveWorld(snap); err != nil {
			slog.Error("snapshot save failed", "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
	}
	if s.SnapshotDir != "" {
		path := filepath.Join(s.SnapshotDir, persistence.SnapshotName(snap.Tick))
		if err := persistence.WriteSnapshot(path, snap); err != nil {
			slog.Error("snapshot file write failed", "path", path, "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		resp["file"] = path
	}
	writeJSON(w, resp)
}

type errorBody struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Remaining uint64 `json:"remaining_ticks,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string, extra *errorBody) {
	body := errorBody{Error: msg}
	if extra != nil {
		body = *extra
		body.Error = msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	encodeJSON(w, body)
}

// writeEngineError maps engine failures onto HTTP statuses. Policy
// rejections are conflicts carrying the gate's reason.
func writeEngineError(w http.ResponseWriter, err error) {
	var pe *engine.PolicyError
	switch {
	case errors.As(err, &pe):
		extra := &errorBody{Reason: pe.Decision.Reason}
		if pe.Decision.Reason == policy.ReasonCooldown {
			extra.Remaining = pe.Decision.Remaining
		}
		writeError(w, http.StatusConflict, err.Error(), extra)
	case errors.Is(err, engine.ErrUnknownPlayer), errors.Is(err, engine.ErrUnknownFaction), errors.Is(err, letters.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, letters.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, letters.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		slog.Error("command failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	encodeJSON(w, data)
}
