// Package persistence provides SQLite-based game session storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/engine"
)

// ErrNotFound is returned when no saved game or snapshot matches.
var ErrNotFound = errors.New("not found")

// SnapshotEvery is the autosave cadence in game weeks. Prices are stored
// every week regardless.
const SnapshotEvery = 4

const schemaVersion = 2

// Meta keys.
const (
	MetaSchemaVersion  = "schema_version"
	MetaContentVersion = "content_version"
)

// DB wraps a SQLite connection for game persistence.
type DB struct {
	conn *sqlx.DB
}

// GameRecord is one row of the games table.
type GameRecord struct {
	ID         string `db:"id" json:"id"`
	Difficulty string `db:"difficulty" json:"difficulty"`
	MaxWeeks   int    `db:"max_weeks" json:"max_weeks"`
	Seed       int64  `db:"seed" json:"seed"`
	LastWeek   int    `db:"last_week" json:"last_week"`
	Outcome    string `db:"outcome" json:"outcome"`
	CreatedAt  string `db:"created_at" json:"created_at"`
}

// PriceRow is one product's canonical price for one week.
type PriceRow struct {
	Week              int     `db:"week" json:"week"`
	ProductID         string  `db:"product_id" json:"product_id"`
	Price             int     `db:"price" json:"price"`
	Trend             string  `db:"trend" json:"trend"`
	ChangePercent     float64 `db:"change_percent" json:"change_percent"` // vs base price
	WeekChangePercent float64 `db:"week_change_percent" json:"week_change_percent"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
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
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		difficulty TEXT NOT NULL,
		max_weeks INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		last_week INTEGER NOT NULL,
		outcome TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_seq INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL REFERENCES games(id),
		week INTEGER NOT NULL,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_history (
		game_id TEXT NOT NULL,
		week INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		price INTEGER NOT NULL,
		trend TEXT NOT NULL,
		change_percent REAL NOT NULL,
		week_change_percent REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (game_id, week, product_id)
	);

	CREATE TABLE IF NOT EXISTS game_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		week INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		UNIQUE (game_id, seq)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_game ON snapshots(game_id, id);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	return db.SaveMeta(MetaSchemaVersion, strconv.Itoa(schemaVersion))
}

// SaveSnapshot stores snap in one transaction: the game row, the snapshot,
// the week's canonical prices, and any log entries not yet stored. The
// stored log keeps entries the session has already dropped from memory.
func (db *DB) SaveSnapshot(snap engine.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO games (id, difficulty, max_weeks, seed, last_week, outcome, updated_seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(updated_seq), 0) + 1 FROM games))
		ON CONFLICT(id) DO UPDATE SET
			last_week = excluded.last_week,
			outcome = excluded.outcome,
			updated_seq = excluded.updated_seq`,
		snap.GameID, string(snap.Difficulty), snap.MaxWeeks, snap.Seed, snap.Week, string(snap.Outcome),
	)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", snap.GameID, err)
	}

	if _, err := tx.Exec("INSERT INTO snapshots (game_id, week, state_json) VALUES (?, ?, ?)",
		snap.GameID, snap.Week, string(state)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := insertPrices(tx, snap.GameID, snap.Week, snap.PriceHistory); err != nil {
		return err
	}

	logStmt, err := tx.Preparex(`INSERT OR IGNORE INTO game_log
		(game_id, seq, week, description, category) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer logStmt.Close()
	for _, e := range snap.Log {
		if _, err := logStmt.Exec(snap.GameID, e.Seq, e.Week, e.Description, e.Category); err != nil {
			return fmt.Errorf("insert log %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("snapshot saved", "game", snap.GameID, "week", snap.Week, "bytes", len(state))
	return nil
}

// SavePrices stores one week of canonical prices.
func (db *DB) SavePrices(gameID string, week int, records map[string]economy.PriceRecord) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertPrices(tx, gameID, week, records); err != nil {
		return err
	}
	return tx.Commit()
}

func insertPrices(tx *sqlx.Tx, gameID string, week int, records map[string]economy.PriceRecord) error {
	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO price_history
		(game_id, week, product_id, price, trend, change_percent, week_change_percent) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for id, rec := range records {
		if _, err := stmt.Exec(gameID, week, id, rec.Price, string(rec.Trend), rec.ChangePercent, rec.WeekChangePercent); err != nil {
			return fmt.Errorf("insert price %s: %w", id, err)
		}
	}
	return nil
}

// RecordWeek persists a committed week: its prices always, and a full
// snapshot every SnapshotEvery weeks and when the game ends.
func (db *DB) RecordWeek(sim *engine.Simulation, r engine.WeekReport) error {
	if err := db.SavePrices(sim.ID, r.Week, r.Prices); err != nil {
		return fmt.Errorf("save week %d prices: %w", r.Week, err)
	}
	if r.Week%SnapshotEvery == 0 || r.Outcome != engine.OutcomeNone {
		return db.SaveSnapshot(sim.Snapshot())
	}
	return nil
}

// SyncContentVersion records the session's content version and reports
// whether it differs from the one stored by a previous run. On a change the
// session's memoized prices are dropped.
func (db *DB) SyncContentVersion(sim *engine.Simulation) (changed bool, err error) {
	v := sim.ContentVersion()
	prev, err := db.GetMeta(MetaContentVersion)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return false, err
	case prev != v:
		changed = true
		sim.InvalidatePrices()
		slog.Warn("game content changed since last run", "previous", prev, "current", v)
	}
	return changed, db.SaveMeta(MetaContentVersion, v)
}

// LoadLatest returns the most recent snapshot of a game.
func (db *DB) LoadLatest(gameID string) (engine.Snapshot, error) {
	var state string
	err := db.conn.Get(&state, "SELECT state_json FROM snapshots WHERE game_id = ? ORDER BY id DESC LIMIT 1", gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Snapshot{}, fmt.Errorf("snapshot for game %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return engine.Snapshot{}, err
	}
	var snap engine.Snapshot
	if err := json.Unmarshal([]byte(state), &snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// LatestGame returns the most recently saved game.
func (db *DB) LatestGame() (GameRecord, error) {
	var g GameRecord
	err := db.conn.Get(&g, `SELECT id, difficulty, max_weeks, seed, last_week, outcome, created_at
		FROM games ORDER BY updated_seq DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return GameRecord{}, fmt.Errorf("latest game: %w", ErrNotFound)
	}
	return g, err
}

// PriceHistory returns a product's saved weekly prices, oldest first.
func (db *DB) PriceHistory(gameID, productID string) ([]PriceRow, error) {
	var rows []PriceRow
	err := db.conn.Select(&rows,
		`SELECT week, product_id, price, trend, change_percent, week_change_percent FROM price_history
		WHERE game_id = ? AND product_id = ? ORDER BY week`,
		gameID, productID,
	)
	return rows, err
}

// RecentLog returns up to limit stored log entries of a game with a
// sequence number below before (no bound when before ≤ 0), newest first.
func (db *DB) RecentLog(gameID string, before int64, limit int) ([]engine.Event, error) {
	if before <= 0 {
		before = math.MaxInt64
	}
	var log []engine.Event
	err := db.conn.Select(&log,
		`SELECT seq, week, description, category FROM game_log
		WHERE game_id = ? AND seq < ? ORDER BY seq DESC LIMIT ?`,
		gameID, before, limit,
	)
	return log, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	return value, err
}
