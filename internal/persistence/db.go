// Package persistence stores diplomacy worlds in SQLite and exchanges them
// as compressed snapshot files.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/engine"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/relations"
	"github.com/talgya/kingdoms/internal/social"
	"github.com/talgya/kingdoms/internal/war"
	"github.com/talgya/kingdoms/internal/world"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path. ":memory:"
// opens a private in-memory database.
func Open(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = path
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kingdoms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ruler_name TEXT NOT NULL,
		autonomous INTEGER NOT NULL,
		owner TEXT NOT NULL,
		personality_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stockpiles (
		faction_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		amount INTEGER NOT NULL,
		PRIMARY KEY (faction_id, resource)
	);

	CREATE TABLE IF NOT EXISTS armies (
		faction_id TEXT PRIMARY KEY,
		alive INTEGER NOT NULL,
		total INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT NOT NULL,
		player INTEGER NOT NULL,
		dimension TEXT NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		PRIMARY KEY (id, player)
	);

	CREATE TABLE IF NOT EXISTS wars (
		a TEXT NOT NULL,
		b TEXT NOT NULL,
		PRIMARY KEY (a, b)
	);

	CREATE TABLE IF NOT EXISTS alliances (
		a TEXT NOT NULL,
		b TEXT NOT NULL,
		PRIMARY KEY (a, b)
	);

	CREATE TABLE IF NOT EXISTS relations (
		graph TEXT NOT NULL,
		owner TEXT NOT NULL,
		counterpart TEXT NOT NULL,
		score INTEGER NOT NULL,
		baseline INTEGER,
		PRIMARY KEY (graph, owner, counterpart)
	);

	CREATE TABLE IF NOT EXISTS letters (
		player TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		from_faction TEXT NOT NULL,
		from_player TEXT NOT NULL,
		to_player TEXT NOT NULL,
		to_faction TEXT NOT NULL,
		from_autonomous INTEGER NOT NULL,
		from_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		resource TEXT NOT NULL,
		amount INTEGER NOT NULL,
		has_secondary INTEGER NOT NULL,
		secondary_resource TEXT NOT NULL,
		secondary_amount INTEGER NOT NULL,
		cap INTEGER NOT NULL,
		has_casus_belli INTEGER NOT NULL,
		casus_belli TEXT NOT NULL,
		subject TEXT NOT NULL,
		note TEXT NOT NULL,
		in_person INTEGER NOT NULL,
		reply_to TEXT NOT NULL,
		PRIMARY KEY (player, id)
	);

	CREATE TABLE IF NOT EXISTS cooldowns (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		at INTEGER NOT NULL,
		PRIMARY KEY (from_id, to_id, kind)
	);

	CREATE TABLE IF NOT EXISTS schedule (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		player INTEGER NOT NULL,
		due INTEGER NOT NULL,
		PRIMARY KEY (from_id, to_id, player)
	);

	CREATE TABLE IF NOT EXISTS responses (
		seq INTEGER PRIMARY KEY,
		due INTEGER NOT NULL,
		letter_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_letters_player ON letters(player, position);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type kingdomRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	RulerName   string `db:"ruler_name"`
	Autonomous  bool   `db:"autonomous"`
	Owner       string `db:"owner"`
	Personality string `db:"personality_json"`
}

type stockRow struct {
	Faction  string `db:"faction_id"`
	Resource string `db:"resource"`
	Amount   int    `db:"amount"`
}

type armyRow struct {
	Faction string `db:"faction_id"`
	Alive   int    `db:"alive"`
	Total   int    `db:"total"`
}

type positionRow struct {
	ID        string `db:"id"`
	Player    bool   `db:"player"`
	Dimension string `db:"dimension"`
	Q         int    `db:"q"`
	R         int    `db:"r"`
}

type pairRow struct {
	A string `db:"a"`
	B string `db:"b"`
}

type relationRow struct {
	Graph       string        `db:"graph"`
	Owner       string        `db:"owner"`
	Counterpart string        `db:"counterpart"`
	Score       int           `db:"score"`
	Baseline    sql.NullInt64 `db:"baseline"`
}

type cooldownRow struct {
	From string `db:"from_id"`
	To   string `db:"to_id"`
	Kind string `db:"kind"`
	At   uint64 `db:"at"`
}

type responseRow struct {
	Seq    uint64 `db:"seq"`
	Due    uint64 `db:"due"`
	Letter string `db:"letter_json"`
}

const (
	graphPlayers  = "players"
	graphFactions = "factions"
)

var tables = []string{
	"kingdoms", "stockpiles", "armies", "positions", "wars", "alliances",
	"relations", "letters", "cooldowns", "schedule", "responses", "events",
}

// SaveWorld replaces the stored world with s in one transaction.
func (db *DB) SaveWorld(s Snapshot) error {
	slog.Info("saving world state", "tick", s.Tick, "kingdoms", len(s.Kingdoms), "letters", countLetters(s.Mail))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.Exec("DELETE FROM " + t); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}

	for _, k := range s.Kingdoms {
		pj, err := json.Marshal(k.Personality)
		if err != nil {
			return fmt.Errorf("encode personality %s: %w", k.ID, err)
		}
		if _, err := tx.NamedExec(`INSERT INTO kingdoms (id, name, ruler_name, autonomous, owner, personality_json)
			VALUES (:id, :name, :ruler_name, :autonomous, :owner, :personality_json)`, kingdomRow{
			ID: string(k.ID), Name: k.Name, RulerName: k.RulerName,
			Autonomous: k.Autonomous, Owner: string(k.Owner), Personality: string(pj),
		}); err != nil {
			return fmt.Errorf("insert kingdom %s: %w", k.ID, err)
		}
	}

	stmt, err := tx.Preparex("INSERT INTO stockpiles (faction_id, resource, amount) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for f, stock := range s.Stockpiles {
		for _, r := range economy.AllResources {
			if _, err := stmt.Exec(string(f), r.String(), stock[r]); err != nil {
				return fmt.Errorf("insert stockpile %s: %w", f, err)
			}
		}
	}

	for f, a := range s.Armies {
		if _, err := tx.Exec("INSERT INTO armies (faction_id, alive, total) VALUES (?, ?, ?)", string(f), a.Alive, a.Total); err != nil {
			return fmt.Errorf("insert army %s: %w", f, err)
		}
	}
	for f, p := range s.Seats {
		if err := insertPosition(tx, string(f), false, p); err != nil {
			return err
		}
	}
	for pl, p := range s.Positions {
		if err := insertPosition(tx, string(pl), true, p); err != nil {
			return err
		}
	}
	for _, p := range s.Wars {
		if _, err := tx.Exec("INSERT OR IGNORE INTO wars (a, b) VALUES (?, ?)", string(p[0]), string(p[1])); err != nil {
			return fmt.Errorf("insert war: %w", err)
		}
	}
	for _, p := range s.Alliances {
		if _, err := tx.Exec("INSERT OR IGNORE INTO alliances (a, b) VALUES (?, ?)", string(p[0]), string(p[1])); err != nil {
			return fmt.Errorf("insert alliance: %w", err)
		}
	}

	for _, e := range s.PlayerRelations {
		if err := insertRelation(tx, graphPlayers, string(e.Owner), string(e.Counterpart), e.Score, e.Baseline, e.HasBaseline); err != nil {
			return err
		}
	}
	for _, e := range s.FactionRelations {
		if err := insertRelation(tx, graphFactions, string(e.Owner), string(e.Counterpart), e.Score, e.Baseline, e.HasBaseline); err != nil {
			return err
		}
	}

	for p, box := range s.Mail {
		for i, l := range box {
			wire := letters.Encode(l)
			wire.Player = string(p)
			wire.Position = i
			if _, err := tx.NamedExec(insertLetter, wire); err != nil {
				return fmt.Errorf("insert letter %s: %w", l.ID, err)
			}
		}
	}

	for _, c := range s.Cooldowns {
		if _, err := tx.Exec("INSERT INTO cooldowns (from_id, to_id, kind, at) VALUES (?, ?, ?, ?)",
			c.From, c.To, c.Kind.String(), c.At); err != nil {
			return fmt.Errorf("insert cooldown: %w", err)
		}
	}
	for _, e := range s.Schedule {
		if _, err := tx.NamedExec("INSERT INTO schedule (from_id, to_id, player, due) VALUES (:from_id, :to_id, :player, :due)", e); err != nil {
			return fmt.Errorf("insert schedule %s: %w", e.PairKey, err)
		}
	}
	for _, q := range s.Responses {
		lj, err := json.Marshal(q.Letter)
		if err != nil {
			return fmt.Errorf("encode queued letter %s: %w", q.Letter.ID, err)
		}
		if _, err := tx.Exec("INSERT INTO responses (seq, due, letter_json) VALUES (?, ?, ?)", q.Seq, q.Due, string(lj)); err != nil {
			return fmt.Errorf("insert response: %w", err)
		}
	}
	for _, e := range s.Events {
		if _, err := tx.Exec("INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category); err != nil {
			return err
		}
	}

	meta := map[string]string{
		"version":       strconv.Itoa(s.Version),
		"last_tick":     strconv.FormatUint(s.Tick, 10),
		"normalized":    strconv.FormatBool(s.Normalized),
		"normalized_at": strconv.FormatUint(s.NormalizedAt, 10),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved", "tick", s.Tick)
	return nil
}

const insertLetter = `INSERT INTO letters
	(player, position, id, from_faction, from_player, to_player, to_faction,
	 from_autonomous, from_name, kind, status, created_at, expires_at,
	 resource, amount, has_secondary, secondary_resource, secondary_amount, cap,
	 has_casus_belli, casus_belli, subject, note, in_person, reply_to)
	VALUES
	(:player, :position, :id, :from_faction, :from_player, :to_player, :to_faction,
	 :from_autonomous, :from_name, :kind, :status, :created_at, :expires_at,
	 :resource, :amount, :has_secondary, :secondary_resource, :secondary_amount, :cap,
	 :has_casus_belli, :casus_belli, :subject, :note, :in_person, :reply_to)`

func insertPosition(tx *sqlx.Tx, id string, player bool, p world.Position) error {
	_, err := tx.Exec("INSERT OR REPLACE INTO positions (id, player, dimension, q, r) VALUES (?, ?, ?, ?, ?)",
		id, player, p.Dimension, p.Coord.Q, p.Coord.R)
	if err != nil {
		return fmt.Errorf("insert position %s: %w", id, err)
	}
	return nil
}

func insertRelation(tx *sqlx.Tx, graph, owner, counterpart string, score, baseline int, hasBaseline bool) error {
	b := sql.NullInt64{Int64: int64(baseline), Valid: hasBaseline}
	_, err := tx.Exec("INSERT OR REPLACE INTO relations (graph, owner, counterpart, score, baseline) VALUES (?, ?, ?, ?, ?)",
		graph, owner, counterpart, score, b)
	if err != nil {
		return fmt.Errorf("insert relation %s/%s: %w", owner, counterpart, err)
	}
	return nil
}

func countLetters(mail map[social.PlayerID][]letters.Letter) int {
	n := 0
	for _, box := range mail {
		n += len(box)
	}
	return n
}

// ErrNoWorld is returned by LoadWorld when nothing was ever saved.
var ErrNoWorld = errors.New("no saved world")

// LoadWorld reads the stored world. Rows that cannot be decoded are
// dropped and counted in the returned report instead of failing the load.
func (db *DB) LoadWorld() (Snapshot, Report, error) {
	rep := Report{}
	s := Snapshot{
		Stockpiles: make(map[social.FactionID]economy.Stockpile),
		Armies:     make(map[social.FactionID]war.Strength),
		Seats:      make(map[social.FactionID]world.Position),
		Positions:  make(map[social.PlayerID]world.Position),
		Mail:       make(map[social.PlayerID][]letters.Letter),
	}

	tick, err := db.GetMeta("last_tick")
	if errors.Is(err, sql.ErrNoRows) {
		return s, rep, ErrNoWorld
	}
	if err != nil {
		return s, rep, fmt.Errorf("load meta: %w", err)
	}
	s.Tick, _ = strconv.ParseUint(tick, 10, 64)
	if v, err := db.GetMeta("version"); err == nil {
		s.Version, _ = strconv.Atoi(v)
	}
	if v, err := db.GetMeta("normalized"); err == nil {
		s.Normalized, _ = strconv.ParseBool(v)
	}
	if v, err := db.GetMeta("normalized_at"); err == nil {
		s.NormalizedAt, _ = strconv.ParseUint(v, 10, 64)
	}

	var kingdoms []kingdomRow
	if err := db.conn.Select(&kingdoms, "SELECT * FROM kingdoms ORDER BY id"); err != nil {
		return s, rep, fmt.Errorf("load kingdoms: %w", err)
	}
	for _, k := range kingdoms {
		f := &social.Faction{
			ID: social.FactionID(k.ID), Name: k.Name, RulerName: k.RulerName,
			Autonomous: k.Autonomous, Owner: social.PlayerID(k.Owner),
		}
		if k.Personality != "" && k.Personality != "null" {
			var p social.Personality
			if err := json.Unmarshal([]byte(k.Personality), &p); err != nil {
				slog.Debug("dropping unreadable personality", "kingdom", k.ID, "error", err)
				rep.add("personalities", 1)
			} else {
				f.Personality = &p
			}
		}
		s.Kingdoms = append(s.Kingdoms, f)
	}

	var stocks []stockRow
	if err := db.conn.Select(&stocks, "SELECT * FROM stockpiles"); err != nil {
		return s, rep, fmt.Errorf("load stockpiles: %w", err)
	}
	for _, r := range stocks {
		res, ok := economy.ParseResource(r.Resource)
		if !ok {
			slog.Debug("dropping stockpile row", "kingdom", r.Faction, "resource", r.Resource)
			rep.add("stockpiles", 1)
			continue
		}
		st := s.Stockpiles[social.FactionID(r.Faction)]
		st[res] = r.Amount
		s.Stockpiles[social.FactionID(r.Faction)] = st
	}

	var armies []armyRow
	if err := db.conn.Select(&armies, "SELECT * FROM armies"); err != nil {
		return s, rep, fmt.Errorf("load armies: %w", err)
	}
	for _, a := range armies {
		s.Armies[social.FactionID(a.Faction)] = war.Strength{Alive: a.Alive, Total: a.Total}
	}

	var positions []positionRow
	if err := db.conn.Select(&positions, "SELECT * FROM positions"); err != nil {
		return s, rep, fmt.Errorf("load positions: %w", err)
	}
	for _, p := range positions {
		pos := world.Position{Dimension: p.Dimension, Coord: world.HexCoord{Q: p.Q, R: p.R}}
		if p.Player {
			s.Positions[social.PlayerID(p.ID)] = pos
		} else {
			s.Seats[social.FactionID(p.ID)] = pos
		}
	}

	if s.Wars, err = db.loadPairs("wars"); err != nil {
		return s, rep, err
	}
	if s.Alliances, err = db.loadPairs("alliances"); err != nil {
		return s, rep, err
	}

	var rels []relationRow
	if err := db.conn.Select(&rels, "SELECT * FROM relations ORDER BY graph, owner, counterpart"); err != nil {
		return s, rep, fmt.Errorf("load relations: %w", err)
	}
	for _, r := range rels {
		base, has := int(r.Baseline.Int64), r.Baseline.Valid
		switch r.Graph {
		case graphPlayers:
			s.PlayerRelations = append(s.PlayerRelations, relations.Entry[social.FactionID, social.PlayerID]{
				Owner: social.FactionID(r.Owner), Counterpart: social.PlayerID(r.Counterpart),
				Score: r.Score, Baseline: base, HasBaseline: has,
			})
		case graphFactions:
			s.FactionRelations = append(s.FactionRelations, relations.Entry[social.FactionID, social.FactionID]{
				Owner: social.FactionID(r.Owner), Counterpart: social.FactionID(r.Counterpart),
				Score: r.Score, Baseline: base, HasBaseline: has,
			})
		default:
			rep.add("relations", 1)
		}
	}

	var wires []letters.Wire
	if err := db.conn.Select(&wires, "SELECT * FROM letters ORDER BY player, position"); err != nil {
		return s, rep, fmt.Errorf("load letters: %w", err)
	}
	for _, w := range wires {
		l, err := letters.Decode(w)
		if err != nil {
			slog.Debug("dropping unreadable letter", "player", w.Player, "id", w.ID, "error", err)
			rep.add("letters", 1)
			continue
		}
		p := social.PlayerID(w.Player)
		s.Mail[p] = append(s.Mail[p], l)
	}

	var cools []cooldownRow
	if err := db.conn.Select(&cools, "SELECT * FROM cooldowns"); err != nil {
		return s, rep, fmt.Errorf("load cooldowns: %w", err)
	}
	for _, c := range cools {
		k, ok := letters.ParseKind(c.Kind)
		if !ok {
			slog.Debug("dropping cooldown with unknown kind", "kind", c.Kind)
			rep.add("cooldowns", 1)
			continue
		}
		s.Cooldowns = append(s.Cooldowns, letters.CooldownEntry{
			CooldownKey: letters.CooldownKey{From: c.From, To: c.To, Kind: k}, At: c.At,
		})
	}

	if err := db.conn.Select(&s.Schedule, "SELECT from_id, to_id, player, due FROM schedule"); err != nil {
		return s, rep, fmt.Errorf("load schedule: %w", err)
	}

	var queued []responseRow
	if err := db.conn.Select(&queued, "SELECT * FROM responses ORDER BY seq"); err != nil {
		return s, rep, fmt.Errorf("load responses: %w", err)
	}
	for _, q := range queued {
		var l letters.Letter
		if err := json.Unmarshal([]byte(q.Letter), &l); err != nil {
			slog.Debug("dropping unreadable queued letter", "seq", q.Seq, "error", err)
			rep.add("responses", 1)
			continue
		}
		s.Responses = append(s.Responses, engine.Queued{Letter: l, Due: q.Due, Seq: q.Seq})
	}

	if err := db.conn.Select(&s.Events, "SELECT tick, description, category FROM events ORDER BY id"); err != nil {
		return s, rep, fmt.Errorf("load events: %w", err)
	}

	slog.Info("world state loaded", "tick", s.Tick, "kingdoms", len(s.Kingdoms), "dropped", rep.Total())
	return s, rep, nil
}

func (db *DB) loadPairs(table string) ([][2]social.FactionID, error) {
	var rows []pairRow
	if err := db.conn.Select(&rows, "SELECT a, b FROM "+table+" ORDER BY a, b"); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	out := make([][2]social.FactionID, 0, len(rows))
	for _, r := range rows {
		out = append(out, [2]social.FactionID{social.FactionID(r.A), social.FactionID(r.B)})
	}
	return out, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// RecentEvents returns the most recent N events.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}
