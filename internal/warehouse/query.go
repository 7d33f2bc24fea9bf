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

package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/normalize"
	"github.com/ajjensen13/pricehistory/internal/util"
)

// PriceQuery selects price history. Days counts back from today and is ignored when
// Start is set. Zero values leave that side open.
type PriceQuery struct {
	Days  int
	Start time.Time
	End   time.Time
	Limit int
}

// NewsQuery selects the newest headlines, optionally published within the last Days.
type NewsQuery struct {
	Limit int
	Days  int
}

const DefaultNewsLimit = 50

func (w *Warehouse) today() time.Time {
	return model.Day(w.now())
}

func priceQuerySQL(table pgx.Identifier, q PriceQuery, today time.Time) (string, []interface{}) {
	var (
		where = []string{`"ticker" = $1`}
		args  []interface{}
	)
	start := q.Start
	if start.IsZero() && q.Days > 0 {
		start = today.AddDate(0, 0, -q.Days)
	}
	if !start.IsZero() {
		args = append(args, date(start))
		where = append(where, fmt.Sprintf(`"date" >= $%d`, len(args)+1))
	}
	if !q.End.IsZero() {
		args = append(args, date(q.End))
		where = append(where, fmt.Sprintf(`"date" <= $%d`, len(args)+1))
	}

	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY "date"`, quoted(priceColumns, ""), table.Sanitize(), strings.Join(where, " AND "))
	if q.Limit > 0 {
		// the most recent rows, still returned in ascending order
		sql = fmt.Sprintf(`SELECT * FROM (SELECT %s FROM %s WHERE %s ORDER BY "date" DESC LIMIT %d) recent ORDER BY "date"`,
			quoted(priceColumns, ""), table.Sanitize(), strings.Join(where, " AND "), q.Limit)
	}
	return sql, args
}

func newsQuerySQL(table pgx.Identifier, q NewsQuery, today time.Time) (string, []interface{}) {
	var (
		where = []string{`"ticker" = $1`}
		args  []interface{}
	)
	if q.Days > 0 {
		args = append(args, timestamp(today.AddDate(0, 0, -q.Days)))
		where = append(where, fmt.Sprintf(`"publish_time" >= $%d`, len(args)+1))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultNewsLimit
	}
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY "publish_time" DESC LIMIT %d`, quoted(newsColumns, ""), table.Sanitize(), strings.Join(where, " AND "), limit), args
}

// QueryPrices reads a ticker's price history back from the warehouse, oldest first.
func (w *Warehouse) QueryPrices(ctx context.Context, ticker string, q PriceQuery) ([]model.PriceRecord, error) {
	sql, args := priceQuerySQL(w.Table(model.KindPrice), q, w.today())
	frame, err := w.frame(ctx, sql, append([]interface{}{model.NormalizeTicker(ticker)}, args...)...)
	if err != nil {
		return nil, err
	}
	n, err := normalize.Normalize(frame, model.KindPrice)
	if err != nil {
		return nil, err
	}
	return normalize.PriceRecords(n)
}

// QueryNews reads a ticker's headlines back from the warehouse, newest first.
func (w *Warehouse) QueryNews(ctx context.Context, ticker string, q NewsQuery) ([]model.NewsRecord, error) {
	sql, args := newsQuerySQL(w.Table(model.KindNews), q, w.today())
	frame, err := w.frame(ctx, sql, append([]interface{}{model.NormalizeTicker(ticker)}, args...)...)
	if err != nil {
		return nil, err
	}
	n, err := normalize.Normalize(frame, model.KindNews)
	if err != nil {
		return nil, err
	}
	return normalize.NewsRecords(n)
}

func (w *Warehouse) frame(ctx context.Context, sql string, args ...interface{}) (normalize.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, util.MedReqTimeout)
	defer cancel()

	rows, err := w.pool.Query(ctx, sql, args...)
	if err != nil {
		return normalize.Frame{}, fmt.Errorf("failed to query warehouse: %w", err)
	}
	defer rows.Close()

	var result normalize.Frame
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, string(fd.Name))
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return normalize.Frame{}, fmt.Errorf("failed to read warehouse row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return normalize.Frame{}, fmt.Errorf("failed to query warehouse: %w", err)
	}
	return result, nil
}

// Presence describes what the warehouse holds for one ticker and kind.
type Presence struct {
	TableExists bool
	Rows        int64
	Earliest    time.Time
	Latest      time.Time
}

// Presence counts a ticker's rows in the permanent table for kind.
func (w *Warehouse) Presence(ctx context.Context, ticker string, kind model.Kind) (Presence, error) {
	ctx, cancel := context.WithTimeout(ctx, util.ShortReqTimeout)
	defer cancel()

	col := pgx.Identifier{timeColumn(kind)}.Sanitize()
	sql := fmt.Sprintf(`SELECT count(*), min(%[1]s)::timestamp, max(%[1]s)::timestamp FROM %[2]s WHERE "ticker" = $1`, col, w.Table(kind).Sanitize())

	var (
		result           Presence
		earliest, latest *time.Time
	)
	err := w.pool.QueryRow(ctx, sql, model.NormalizeTicker(ticker)).Scan(&result.Rows, &earliest, &latest)
	switch {
	case isUndefinedTable(err):
		return result, nil
	case err != nil:
		return result, fmt.Errorf("failed to query %s presence of %s: %w", kind, ticker, err)
	}

	result.TableExists = true
	if earliest != nil {
		result.Earliest = *earliest
	}
	if latest != nil {
		result.Latest = *latest
	}
	return result, nil
}
