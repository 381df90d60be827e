// Package history keeps a SQLite ledger of finished token sweeps.
package history

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is the terminal outcome of one token in one sweep run.
type Entry struct {
	ID        int64
	RunID     string
	ChainID   uint64
	Token     string
	Symbol    string
	Amount    string
	State     string
	Message   string
	TxHash    string
	CreatedAt time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sweeps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			token TEXT NOT NULL,
			symbol TEXT NOT NULL,
			amount TEXT NOT NULL,
			state TEXT NOT NULL,
			message TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sweeps_run ON sweeps(run_id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO sweeps (run_id, chain_id, token, symbol, amount, state, message, tx_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, int64(e.ChainID), e.Token, e.Symbol, e.Amount, e.State, e.Message, e.TxHash, e.CreatedAt.UnixMilli())
	return err
}

// List returns the newest entries first. limit <= 0 means 50.
func (r *Repository) List(ctx context.Context, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, run_id, chain_id, token, symbol, amount, state, message, tx_hash, created_at
		FROM sweeps ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			chainID int64
			created int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &chainID, &e.Token, &e.Symbol, &e.Amount, &e.State, &e.Message, &e.TxHash, &created); err != nil {
			return nil, err
		}
		e.ChainID = uint64(chainID)
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) Close() error {
	return r.db.Close()
}
