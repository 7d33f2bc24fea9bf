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
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/logging"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/util"
)

// SyncInfo reports what one sync did. Staged counts rows bulk loaded into staging,
// Inserted and Updated count rows written to the permanent table.
type SyncInfo struct {
	RunID    uuid.UUID
	Kind     model.Kind
	Table    string
	Tickers  []string
	Staged   int64
	Inserted int64
	Updated  int64
	Started  time.Time
	Finished time.Time
}

func stageIdentifier(id uuid.UUID) pgx.Identifier {
	return pgx.Identifier{"stage_" + strings.ReplaceAll(id.String(), "-", "")}
}

// Sync merges records into the permanent table for kind: rows with a known natural key
// are updated, the rest inserted. Records are staged in a temporary table unique to this
// call, which is dropped whether or not the merge succeeds.
func (w *Warehouse) Sync(ctx context.Context, kind model.Kind, records []model.Record) (SyncInfo, error) {
	info := SyncInfo{RunID: uuid.New(), Kind: kind, Table: w.Table(kind).Sanitize(), Started: w.now().UTC()}
	if len(records) == 0 {
		info.Finished = info.Started
		return info, nil
	}

	cols, err := columnsFor(kind)
	if err != nil {
		return info, err
	}
	rows, tickers, err := copyRows(kind, records)
	if err != nil {
		return info, err
	}
	info.Tickers = tickers

	if err := w.Ensure(ctx, kind); err != nil {
		return info, err
	}

	ctx = util.WithLoggerValue(ctx, "action", "sync")
	ctx = util.WithLoggerValue(ctx, "sync_run_id", info.RunID.String())
	ctx, cancel := context.WithTimeout(ctx, util.LongReqTimeout)
	defer cancel()

	table := w.Table(kind)
	stage := stageIdentifier(info.RunID)
	err = util.RunTx(ctx, w.pool, func(ctx context.Context, tx pgx.Tx) error {
		// staged timestamps are UTC wall times; keep casts into timestamptz columns from shifting them
		if _, err := tx.Exec(ctx, `SET LOCAL TIME ZONE 'UTC'`); err != nil {
			return fmt.Errorf("failed to set session time zone: %w", err)
		}
		if _, err := tx.Exec(ctx, stageTableSQL(stage, cols)); err != nil {
			return fmt.Errorf("failed to create staging table for %s: %w", table.Sanitize(), err)
		}
		defer w.dropStage(ctx, tx, stage)

		err := util.WithSavePoint(ctx, tx, "merge_stage", func() error {
			staged, err := tx.CopyFrom(ctx, stage, names(cols), pgx.CopyFromRows(rows))
			if err != nil {
				return fmt.Errorf("failed to stage %d rows for %s: %w", len(rows), table.Sanitize(), err)
			}
			info.Staged = staged

			result, err := tx.Query(ctx, upsertSQL(table, stage, cols))
			if err != nil {
				return fmt.Errorf("failed to merge staged rows into %s: %w", table.Sanitize(), err)
			}
			defer result.Close()
			for result.Next() {
				var inserted bool
				if err := result.Scan(&inserted); err != nil {
					return fmt.Errorf("failed to parse merge result for %s: %w", table.Sanitize(), err)
				}
				if inserted {
					info.Inserted++
				} else {
					info.Updated++
				}
			}
			if err := result.Err(); err != nil {
				return fmt.Errorf("failed to merge staged rows into %s: %w", table.Sanitize(), err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		info.Finished = w.now().UTC()
		if err := util.WithSavePoint(ctx, tx, "record_sync_run", func() error {
			return recordRun(ctx, tx, info)
		}); err != nil {
			util.Logf(ctx, logging.Warning, "sync of %s succeeded but could not be audited: %v", table.Sanitize(), err)
		}
		return nil
	})
	if err != nil {
		return info, err
	}

	util.Logf(ctx, logging.Info, "synced %s: staged %d, inserted %d, updated %d", table.Sanitize(), info.Staged, info.Inserted, info.Updated)
	return info, nil
}

func (w *Warehouse) dropStage(ctx context.Context, tx pgx.Tx, stage pgx.Identifier) {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, stage.Sanitize())); err != nil {
		util.Logf(ctx, logging.Debug, "staging table %s left for rollback: %v", stage.Sanitize(), err)
	}
}

func date(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Status: pgtype.Null}
	}
	return pgtype.Date{Time: model.Day(t), Status: pgtype.Present}
}

func timestamp(t time.Time) pgtype.Timestamp {
	if t.IsZero() {
		return pgtype.Timestamp{Status: pgtype.Null}
	}
	return pgtype.Timestamp{Time: t.UTC(), Status: pgtype.Present}
}

// copyRows renders records in column order for COPY and lists their distinct tickers.
func copyRows(kind model.Kind, records []model.Record) ([][]interface{}, []string, error) {
	result := make([][]interface{}, len(records))
	seen := make(map[string]bool)
	for i, r := range records {
		switch x := r.(type) {
		case model.PriceRecord:
			if kind != model.KindPrice {
				return nil, nil, fmt.Errorf("record %d is a price record in a %s batch", i, kind)
			}
			result[i] = []interface{}{x.Ticker, date(x.Date), x.Open, x.High, x.Low, x.Close, x.AdjustedClose, x.Volume, x.Dividends, x.SplitRatio, timestamp(x.FetchedAt)}
		case model.NewsRecord:
			if kind != model.KindNews {
				return nil, nil, fmt.Errorf("record %d is a news record in a %s batch", i, kind)
			}
			result[i] = []interface{}{x.Ticker, x.ID, x.Title, x.Summary, x.Description, x.Publisher, x.Link, timestamp(x.PublishTime), timestamp(x.DisplayTime), x.ContentType, x.ThumbnailURL, x.IsPremium, x.IsHosted, timestamp(x.FetchedAt)}
		default:
			return nil, nil, fmt.Errorf("record %d has unsupported type %T", i, r)
		}
		seen[r.Key().Ticker] = true
	}

	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return result, tickers, nil
}
