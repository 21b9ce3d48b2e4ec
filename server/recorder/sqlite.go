package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder appends game events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("RECORDER: sqlite ledger opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS surge_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			kind        TEXT NOT NULL,
			duration_ms INTEGER,
			target      INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS rush_rewards (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			score     INTEGER,
			target    INTEGER,
			earned    INTEGER,
			bonus     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_player ON rush_rewards(player_id)`,
		`CREATE TABLE IF NOT EXISTS meme_investments (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			player_id  TEXT NOT NULL,
			meme_id    TEXT NOT NULL,
			amount     INTEGER,
			meme_total INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS viral_cycles (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			meme_id       TEXT,
			score         REAL,
			beneficiaries TEXT,
			reward_each   INTEGER
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSurge(evt *SurgeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(
		`INSERT INTO surge_events (timestamp, kind, duration_ms, target) VALUES (?, ?, ?, ?)`,
		evt.At.Unix(), evt.Kind, evt.Duration.Milliseconds(), evt.Target,
	)
	return err
}

func (r *SQLiteRecorder) RecordReward(evt *RewardEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bonus := 0
	if evt.Bonus {
		bonus = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO rush_rewards (timestamp, player_id, score, target, earned, bonus) VALUES (?, ?, ?, ?, ?, ?)`,
		evt.At.Unix(), evt.PlayerID, evt.Score, evt.Target, evt.Earned, bonus,
	)
	return err
}

func (r *SQLiteRecorder) RecordInvestment(evt *InvestmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(
		`INSERT INTO meme_investments (timestamp, player_id, meme_id, amount, meme_total) VALUES (?, ?, ?, ?, ?)`,
		evt.At.Unix(), evt.PlayerID, evt.MemeID, evt.Amount, evt.MemeTotal,
	)
	return err
}

func (r *SQLiteRecorder) RecordViral(evt *ViralEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(
		`INSERT INTO viral_cycles (timestamp, meme_id, score, beneficiaries, reward_each) VALUES (?, ?, ?, ?, ?)`,
		evt.At.Unix(), evt.MemeID, evt.Score, strings.Join(evt.Beneficiaries, ","), evt.RewardEach,
	)
	return err
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
