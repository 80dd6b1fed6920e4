// Package history keeps a local record of terminal block sessions so
// failures survive daemon restarts and can be inspected afterwards.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aroundtheclock/domain/executor"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS block_sessions(
	label TEXT,
	iface TEXT,
	gateway TEXT,
	started_at INTEGER,
	ended_at INTEGER,
	state TEXT,
	err TEXT
);
CREATE INDEX IF NOT EXISTS idx_block_sessions_started ON block_sessions(started_at);`

type Entry struct {
	Label     string
	Interface string
	Gateway   string
	StartedAt time.Time
	EndedAt   time.Time
	State     string
	Err       string
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history mkdir failed. Error: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history open failed. Error: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history ping failed. Error: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history init schema failed. Error: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, bs executor.BlockSession) error {
	errStr := ""
	if bs.Err != nil {
		errStr = bs.Err.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO block_sessions(label, iface, gateway, started_at, ended_at, state, err) VALUES(?,?,?,?,?,?,?)`,
		bs.Interval.Label, bs.Interface, bs.Gateway,
		bs.StartedAt.Unix(), bs.EndedAt.Unix(), string(bs.State), errStr)
	if err != nil {
		return fmt.Errorf("history insert failed. Error: %w", err)
	}
	return nil
}

// Recent returns up to n sessions, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, iface, gateway, started_at, ended_at, state, err
		 FROM block_sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history query failed. Error: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, ended int64
		if err := rows.Scan(&e.Label, &e.Interface, &e.Gateway, &started, &ended, &e.State, &e.Err); err != nil {
			return nil, fmt.Errorf("history scan failed. Error: %w", err)
		}
		e.StartedAt = time.Unix(started, 0)
		e.EndedAt = time.Unix(ended, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
