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

package pipeline

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/logging"

	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/normalize"
	"github.com/ajjensen13/pricehistory/internal/util"
)

// Import merges a CSV export into ticker's snapshot. Legacy column spellings are accepted;
// a file without a ticker column is assumed to belong to ticker.
func (p *Pipeline) Import(ctx context.Context, ticker string, kind model.Kind, r io.Reader) (TickerResult, error) {
	ticker = model.NormalizeTicker(ticker)
	result := TickerResult{Ticker: ticker, Kind: kind}

	frame, err := normalize.ReadCSV(r)
	if err != nil {
		return result, err
	}
	frame = withTicker(frame, kind, ticker)

	records, err := normalize.Records(frame, kind)
	if err != nil {
		return result, fmt.Errorf("failed to import %s %s: %w", ticker, kind, err)
	}
	for _, rec := range records {
		if rec.Key().Ticker != ticker {
			return result, fmt.Errorf("failed to import %s %s: file contains records for %q", ticker, kind, rec.Key().Ticker)
		}
	}
	result.Fetched = len(records)

	unlock, err := p.store.Lock(ctx, ticker, kind)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := unlock(); err != nil {
			util.Logf(ctx, logging.Warning, "failed to unlock %s %s: %v", ticker, kind, err)
		}
	}()

	state, err := p.store.Load(ticker, kind)
	if err != nil {
		return result, err
	}
	merged, err := p.store.MergeAndSave(state, records)
	if err != nil {
		return result, err
	}
	result.Added = merged.Len() - state.Len()
	result.Total = merged.Len()
	return result, nil
}

func withTicker(f normalize.Frame, kind model.Kind, ticker string) normalize.Frame {
	for _, c := range f.Columns {
		if normalize.Canonical(kind, c) == "ticker" {
			return f
		}
	}
	out := normalize.Frame{Columns: append([]string{"ticker"}, f.Columns...), Rows: make([][]any, len(f.Rows))}
	for i, row := range f.Rows {
		out.Rows[i] = append([]any{ticker}, row...)
	}
	return out
}
