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

// Package warehouse merges record batches into permanent PostgreSQL tables through
// per-operation staging tables.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/util"
)

var (
	// ErrSchemaConflict is returned when a populated table cannot be reconciled without
	// dropping data or narrowing a column.
	ErrSchemaConflict = errors.New("warehouse schema conflict")
	// ErrTableMissing is returned when a table does not exist and auto-create is off.
	ErrTableMissing = errors.New("warehouse table missing")
)

const (
	DefaultSchema     = "public"
	DefaultPriceTable = "stock_price_history"
	DefaultNewsTable  = "stock_news"

	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

type Options struct {
	Schema     string
	PriceTable string
	NewsTable  string
	// AutoCreate allows CREATE, DROP and ALTER on the permanent tables.
	AutoCreate bool
}

type Warehouse struct {
	pool *pgxpool.Pool
	opts Options
	now  func() time.Time

	ensured sync.Map // model.Kind -> struct{}
}

func New(pool *pgxpool.Pool, opts Options) *Warehouse {
	if opts.Schema == "" {
		opts.Schema = DefaultSchema
	}
	if opts.PriceTable == "" {
		opts.PriceTable = DefaultPriceTable
	}
	if opts.NewsTable == "" {
		opts.NewsTable = DefaultNewsTable
	}
	return &Warehouse{pool: pool, opts: opts, now: time.Now}
}

// Table returns the qualified permanent table for kind.
func (w *Warehouse) Table(kind model.Kind) pgx.Identifier {
	name := w.opts.PriceTable
	if kind == model.KindNews {
		name = w.opts.NewsTable
	}
	return pgx.Identifier{w.opts.Schema, strings.ToLower(name)}
}

// Ensure creates the permanent table for kind if needed and reconciles column drift:
// a drifted empty table is recreated, a populated one only gains missing columns.
func (w *Warehouse) Ensure(ctx context.Context, kind model.Kind) error {
	if _, ok := w.ensured.Load(kind); ok {
		return nil
	}

	ctx = util.WithLoggerValue(ctx, "action", "ensure")
	ctx, cancel := context.WithTimeout(ctx, util.MedReqTimeout)
	defer cancel()

	err := util.RunTx(ctx, w.pool, func(ctx context.Context, tx pgx.Tx) error {
		return w.ensure(ctx, tx, kind)
	})
	if err != nil {
		return err
	}
	w.ensured.Store(kind, struct{}{})
	return nil
}

func (w *Warehouse) ensure(ctx context.Context, tx pgx.Tx, kind model.Kind) error {
	cols, err := columnsFor(kind)
	if err != nil {
		return err
	}
	table := w.Table(kind)

	// concurrent first syncs would otherwise race on CREATE TABLE
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table.Sanitize()); err != nil {
		return fmt.Errorf("failed to lock %s for schema changes: %w", table.Sanitize(), err)
	}

	actual, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}

	if len(actual) == 0 {
		if !w.opts.AutoCreate {
			return fmt.Errorf("%s: %w", table.Sanitize(), ErrTableMissing)
		}
		if _, err := tx.Exec(ctx, createTableSQL(table, cols)); err != nil {
			return fmt.Errorf("failed to create %s: %w", table.Sanitize(), err)
		}
		util.Logf(ctx, logging.Info, "created table %s", table.Sanitize())
		return nil
	}

	d := diff(cols, actual)
	if d.empty() {
		return w.ensureKeyIndex(ctx, tx, table, cols)
	}
	if !w.opts.AutoCreate {
		return fmt.Errorf("%s has drifted (%s) and auto-create is off: %w", table.Sanitize(), d, ErrSchemaConflict)
	}

	var populated bool
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s)`, table.Sanitize())).Scan(&populated); err != nil {
		return fmt.Errorf("failed to count rows in %s: %w", table.Sanitize(), err)
	}

	if !populated {
		util.Logf(ctx, logging.Info, "recreating empty table %s (%s)", table.Sanitize(), d)
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE %s`, table.Sanitize())); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table.Sanitize(), err)
		}
		if _, err := tx.Exec(ctx, createTableSQL(table, cols)); err != nil {
			return fmt.Errorf("failed to create %s: %w", table.Sanitize(), err)
		}
		return nil
	}

	if len(d.conflicts) > 0 {
		return fmt.Errorf("%s: %s: %w", table.Sanitize(), strings.Join(d.conflicts, ", "), ErrSchemaConflict)
	}
	for _, c := range d.missing {
		if c.key {
			return fmt.Errorf("%s is missing key column %q: %w", table.Sanitize(), c.name, ErrSchemaConflict)
		}
	}
	for _, c := range d.missing {
		if _, err := tx.Exec(ctx, addColumnSQL(table, c)); err != nil {
			return fmt.Errorf("failed to add column %q to %s: %w", c.name, table.Sanitize(), err)
		}
		util.Logf(ctx, logging.Info, "added column %q to %s", c.name, table.Sanitize())
	}
	if len(d.extra) > 0 {
		util.Logf(ctx, logging.Debug, "leaving extra columns %v on %s", d.extra, table.Sanitize())
	}
	return w.ensureKeyIndex(ctx, tx, table, cols)
}

// ensureKeyIndex makes sure the merge's ON CONFLICT clause has a unique index on the
// natural key to infer.
func (w *Warehouse) ensureKeyIndex(ctx context.Context, tx pgx.Tx, table pgx.Identifier, cols []column) error {
	key := sortedKeyNames(cols)
	var ok bool
	if err := tx.QueryRow(ctx, hasKeyIndexSQL, table.Sanitize(), len(key), key).Scan(&ok); err != nil {
		return fmt.Errorf("failed to inspect indexes of %s: %w", table.Sanitize(), err)
	}
	if ok {
		return nil
	}
	if !w.opts.AutoCreate {
		return fmt.Errorf("%s has no unique index on %v and auto-create is off: %w", table.Sanitize(), key, ErrSchemaConflict)
	}

	err := util.WithSavePoint(ctx, tx, "key_index", func() error {
		_, err := tx.Exec(ctx, createKeyIndexSQL(table, cols))
		return err
	})
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return fmt.Errorf("%s holds duplicate %v rows, cannot index them: %w", table.Sanitize(), key, ErrSchemaConflict)
	case err != nil:
		return fmt.Errorf("failed to index %s on %v: %w", table.Sanitize(), key, err)
	}
	util.Logf(ctx, logging.Info, "created unique index on %v for %s", key, table.Sanitize())
	return nil
}

// tableColumns returns column name -> type as spelled by columnType, empty when the table
// does not exist.
func tableColumns(ctx context.Context, tx pgx.Tx, table pgx.Identifier) (map[string]string, error) {
	rows, err := tx.Query(ctx, `SELECT column_name::text, data_type::text, character_maximum_length::int, numeric_precision::int, numeric_scale::int FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`, table[0], table[1])
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table.Sanitize(), err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var (
			name, dataType           string
			length, precision, scale *int32
		)
		if err := rows.Scan(&name, &dataType, &length, &precision, &scale); err != nil {
			return nil, fmt.Errorf("failed to parse columns of %s: %w", table.Sanitize(), err)
		}
		result[name] = columnType(dataType, length, precision, scale)
	}
	return result, rows.Err()
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
