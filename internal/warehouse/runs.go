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
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/util"
)

// sync_runs is created by the migrations under /migrations.

func recordRun(ctx context.Context, tx pgx.Tx, info SyncInfo) error {
	_, err := tx.Exec(ctx, `INSERT INTO sync_runs (run_id, kind, table_name, tickers, staged, inserted, updated, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		info.RunID.String(), string(info.Kind), info.Table, info.Tickers, info.Staged, info.Inserted, info.Updated, timestamp(info.Started), timestamp(info.Finished))
	if err != nil {
		return fmt.Errorf("failed to record sync run %s: %w", info.RunID, err)
	}
	return nil
}

// RecentRuns returns the latest audited syncs touching ticker, newest first. An empty
// ticker matches every run.
func (w *Warehouse) RecentRuns(ctx context.Context, ticker string, limit int) ([]SyncInfo, error) {
	if limit <= 0 {
		limit = 10
	}
	ctx, cancel := context.WithTimeout(ctx, util.ShortReqTimeout)
	defer cancel()

	rows, err := w.pool.Query(ctx, `SELECT run_id::text, kind, table_name, tickers, staged, inserted, updated, started_at, finished_at FROM sync_runs WHERE $1 = '' OR $1 = ANY(tickers) ORDER BY started_at DESC LIMIT $2`,
		model.NormalizeTicker(ticker), limit)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var result []SyncInfo
	for rows.Next() {
		var (
			id, kind          string
			started, finished *time.Time
			info              SyncInfo
		)
		if err := rows.Scan(&id, &kind, &info.Table, &info.Tickers, &info.Staged, &info.Inserted, &info.Updated, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to parse sync run: %w", err)
		}
		if info.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse sync run id %q: %w", id, err)
		}
		info.Kind = model.Kind(kind)
		if started != nil {
			info.Started = *started
		}
		if finished != nil {
			info.Finished = *finished
		}
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	return result, nil
}
