package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Ledger is a local SQLite log of completed export runs. It is bookkeeping
// only: not a checkpoint and not a dedup index. Deleting the file loses
// nothing but history.
type Ledger struct{ sql *sql.DB }

func Open(path string) (*Ledger, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	l := &Ledger{sql: d}
	if err := l.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.sql.Close() }

func (l *Ledger) migrate() error {
	_, err := l.sql.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
	  id TEXT PRIMARY KEY,
	  chat_id INTEGER NOT NULL,
	  chat_name TEXT NOT NULL,
	  format TEXT NOT NULL,
	  file TEXT NOT NULL,
	  messages INTEGER NOT NULL,
	  partial INTEGER NOT NULL DEFAULT 0,
	  started_at INTEGER NOT NULL,
	  finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
	`)
	return err
}

// Run is one recorded export.
type Run struct {
	ID         string
	ChatID     int64
	ChatName   string
	Format     string
	File       string
	Messages   int
	Partial    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Record appends one completed run and returns its id.
func (l *Ledger) Record(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	partial := 0
	if r.Partial {
		partial = 1
	}
	_, err := l.sql.ExecContext(ctx,
		`INSERT INTO runs(id, chat_id, chat_name, format, file, messages, partial, started_at, finished_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.ChatID, r.ChatName, r.Format, r.File, r.Messages, partial, r.StartedAt.Unix(), r.FinishedAt.Unix())
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// Recent returns up to n runs, most recently finished first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := l.sql.QueryContext(ctx,
		`SELECT id, chat_id, chat_name, format, file, messages, partial, started_at, finished_at
		 FROM runs ORDER BY finished_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var partial int
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.ChatID, &r.ChatName, &r.Format, &r.File, &r.Messages, &partial, &started, &finished); err != nil {
			return nil, err
		}
		r.Partial = partial != 0
		r.StartedAt = time.Unix(started, 0).UTC()
		r.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
