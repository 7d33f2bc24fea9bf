/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ajjensen13/pricehistory/internal/pipeline"
)

// Ledger keeps a local history of sync and upload runs next to the cache.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode on %s: %w", path, err)
	}

	l := &Ledger{db: db}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate run ledger %s: %w", path, err)
	}
	return l, nil
}

func (l *Ledger) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			command     TEXT NOT NULL,
			source      TEXT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			failed      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS run_results (
			run_id    TEXT NOT NULL REFERENCES runs(run_id),
			ticker    TEXT NOT NULL,
			kind      TEXT NOT NULL,
			mode      TEXT,
			status    TEXT NOT NULL,
			fetched   INTEGER,
			added     INTEGER,
			total     INTEGER,
			inserted  INTEGER,
			updated   INTEGER,
			error     TEXT,
			PRIMARY KEY (run_id, ticker, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_results_ticker ON run_results(ticker, kind)`,
	}
	for _, s := range stmts {
		if _, err := l.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Record stores report and its per-ticker results in one transaction.
func (l *Ledger) Record(ctx context.Context, report pipeline.Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (run_id, command, source, started_at, finished_at, failed) VALUES (?,?,?,?,?,?)`,
		report.RunID.String(), report.Command, report.Source, report.Started.UnixNano(), report.Finished.UnixNano(), report.Failed())
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}

	for _, r := range report.Results {
		var msg sql.NullString
		if err := r.Error(); err != nil {
			msg = sql.NullString{String: err.Error(), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO run_results (run_id, ticker, kind, mode, status, fetched, added, total, inserted, updated, error) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			report.RunID.String(), r.Ticker, string(r.Kind), string(r.Mode), r.Status(), r.Fetched, r.Added, r.Total, r.Inserted, r.Updated, msg)
		if err != nil {
			return fmt.Errorf("failed to record %s %s for run %s: %w", r.Ticker, r.Kind, report.RunID, err)
		}
	}
	return tx.Commit()
}

// Entry is one ticker's line in the ledger.
type Entry struct {
	RunID    string
	Command  string
	Started  time.Time
	Ticker   string
	Kind     string
	Mode     string
	Status   string
	Fetched  int
	Added    int
	Inserted int64
	Updated  int64
	Error    string
}

// History returns the most recent entries for ticker, newest first. An empty ticker
// matches every ticker.
func (l *Ledger) History(ctx context.Context, ticker string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `SELECT r.run_id, r.command, r.started_at, x.ticker, x.kind, x.mode, x.status, x.fetched, x.added, x.inserted, x.updated, coalesce(x.error, '')
		FROM run_results x JOIN runs r ON r.run_id = x.run_id
		WHERE ? = '' OR x.ticker = ?
		ORDER BY r.started_at DESC, x.kind, x.ticker LIMIT ?`, ticker, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var (
			e       Entry
			started int64
		)
		if err := rows.Scan(&e.RunID, &e.Command, &started, &e.Ticker, &e.Kind, &e.Mode, &e.Status, &e.Fetched, &e.Added, &e.Inserted, &e.Updated, &e.Error); err != nil {
			return nil, err
		}
		e.Started = time.Unix(0, started).UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
