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
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/logging"
	"github.com/google/uuid"

	"github.com/ajjensen13/pricehistory/internal/cache"
	"github.com/ajjensen13/pricehistory/internal/download"
	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/plan"
	"github.com/ajjensen13/pricehistory/internal/util"
	"github.com/ajjensen13/pricehistory/internal/warehouse"
)

// Syncer merges records into the warehouse. *warehouse.Warehouse implements it.
type Syncer interface {
	Sync(ctx context.Context, kind model.Kind, records []model.Record) (warehouse.SyncInfo, error)
}

// Recorder keeps a history of finished runs.
type Recorder interface {
	Record(ctx context.Context, report Report) error
}

type Options struct {
	Period  plan.Period
	Plan    plan.Options
	Workers int
	// Upload pushes fetched records to the warehouse after each ticker is saved.
	Upload bool
}

type Pipeline struct {
	store      *cache.Store
	downloader *download.Downloader
	warehouse  Syncer
	recorder   Recorder
	opts       Options
}

// New creates a Pipeline. wh and rec may be nil; without a warehouse nothing is uploaded.
func New(store *cache.Store, downloader *download.Downloader, wh Syncer, rec Recorder, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Period == (plan.Period{}) {
		opts.Period = plan.Max
	}
	return &Pipeline{store: store, downloader: downloader, warehouse: wh, recorder: rec, opts: opts}
}

// TickerResult is the outcome for one ticker and kind.
type TickerResult struct {
	Ticker  string
	Kind    model.Kind
	Mode    plan.Mode
	Fetched int
	Added   int
	Total   int
	// Staged, Inserted and Updated are zero unless the records were uploaded.
	Staged   int64
	Inserted int64
	Updated  int64
	// Err is a fetch or cache failure; the snapshot is unchanged.
	Err error
	// UploadErr is a warehouse failure; the snapshot was still saved.
	UploadErr error
}

func (r TickerResult) Success() bool {
	return r.Err == nil && r.UploadErr == nil
}

// Status is a one-word summary for tables and the run ledger.
func (r TickerResult) Status() string {
	switch {
	case r.Err != nil:
		return "failed"
	case r.UploadErr != nil:
		return "saved"
	default:
		return "ok"
	}
}

// Error returns the first failure, if any.
func (r TickerResult) Error() error {
	if r.Err != nil {
		return r.Err
	}
	return r.UploadErr
}

// Report is the structured result of a Run or Upload.
type Report struct {
	RunID    uuid.UUID
	Command  string
	Source   string
	Started  time.Time
	Finished time.Time
	Results  []TickerResult
}

func (r Report) Failed() int {
	var n int
	for _, x := range r.Results {
		if !x.Success() {
			n++
		}
	}
	return n
}

// AllFailed reports whether no ticker got as far as a saved snapshot.
func (r Report) AllFailed() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, x := range r.Results {
		if x.Err == nil {
			return false
		}
	}
	return true
}

func (r Report) Added() int {
	var n int
	for _, x := range r.Results {
		n += x.Added
	}
	return n
}

func (r *Report) sort() {
	sort.Slice(r.Results, func(i, j int) bool {
		a, b := r.Results[i], r.Results[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Ticker < b.Ticker
	})
}

func (p *Pipeline) newReport(command string) Report {
	return Report{RunID: uuid.New(), Command: command, Source: p.downloader.Source().Name(), Started: time.Now().UTC()}
}

func (p *Pipeline) finish(ctx context.Context, report Report) Report {
	report.Finished = time.Now().UTC()
	report.sort()
	if p.recorder != nil {
		if err := p.recorder.Record(ctx, report); err != nil {
			util.Logf(ctx, logging.Warning, "failed to record run %s: %v", report.RunID, err)
		}
	}
	return report
}

// Run syncs every ticker for every kind with at most Workers tickers in flight.
// A failing ticker is reported and does not stop the others.
func (p *Pipeline) Run(ctx context.Context, tickers []string, kinds []model.Kind) Report {
	report := p.newReport("sync")
	ctx = util.WithLoggerValue(ctx, "run_id", report.RunID.String())
	tickers = dedupe(tickers)

	for _, kind := range kinds {
		results := download.FanOut(ctx, p.opts.Workers, tickers, func(ctx context.Context, ticker string) (TickerResult, error) {
			r := p.SyncTicker(ctx, ticker, kind)
			return r, r.Err
		})
		for _, ticker := range tickers {
			res := results[ticker]
			r := res.Value
			r.Ticker, r.Kind = ticker, kind
			if r.Err == nil {
				r.Err = res.Err
			}
			report.Results = append(report.Results, r)
		}
	}

	return p.finish(ctx, report)
}

// SyncTicker runs lock, load, plan, fetch, merge and save for one ticker, then uploads
// what was fetched when uploads are enabled.
func (p *Pipeline) SyncTicker(ctx context.Context, ticker string, kind model.Kind) (result TickerResult) {
	ticker = model.NormalizeTicker(ticker)
	ctx = util.WithLoggerValue(ctx, "ticker", ticker)
	result = TickerResult{Ticker: ticker, Kind: kind}

	unlock, err := p.store.Lock(ctx, ticker, kind)
	if err != nil {
		result.Err = err
		return
	}
	defer func() {
		if err := unlock(); err != nil {
			util.Logf(ctx, logging.Warning, "failed to unlock %s %s: %v", ticker, kind, err)
		}
	}()

	opts := p.opts.Plan
	if kind == model.KindNews {
		// headlines never reach back to a deep history date
		opts.DeepHistory = time.Time{}
	}
	state, err := p.store.Load(ticker, kind)
	switch {
	case errors.Is(err, cache.ErrCorruptCache):
		util.Logf(ctx, logging.Warning, "discarding unreadable snapshot, refetching: %v", err)
		state = cache.State{Ticker: ticker, Kind: kind}
		opts.Force = true
	case err != nil:
		result.Err = fmt.Errorf("failed to load %s %s: %w", ticker, kind, err)
		return
	}

	sp := plan.Plan(state, p.opts.Period, opts)
	result.Mode = sp.Mode
	util.Logf(ctx, logging.Debug, "plan %s", sp)

	records, err := download.Collect(p.downloader.FetchTicker(ctx, sp))
	if err != nil {
		result.Err = err
		return
	}
	result.Fetched = len(records)

	if opts.Force && len(records) == 0 && !state.Empty() {
		util.Logf(ctx, logging.Warning, "forced refetch returned nothing, keeping %d cached records", state.Len())
	}

	merged, err := p.store.MergeAndSave(state, records)
	if err != nil {
		result.Err = fmt.Errorf("failed to save %s %s: %w", ticker, kind, err)
		return
	}
	result.Added = merged.Len() - state.Len()
	result.Total = merged.Len()
	util.Logf(ctx, logging.Info, "%s %s: fetched %d, added %d, %d cached", ticker, kind, result.Fetched, result.Added, result.Total)

	if p.opts.Upload && p.warehouse != nil && len(records) > 0 {
		p.upload(ctx, &result, records)
	}
	return
}

func (p *Pipeline) upload(ctx context.Context, result *TickerResult, records []model.Record) {
	info, err := p.warehouse.Sync(ctx, result.Kind, records)
	if err != nil {
		if errors.Is(err, warehouse.ErrSchemaConflict) {
			util.Logf(ctx, logging.Error, "not uploading %s %s, local snapshot kept: %v", result.Ticker, result.Kind, err)
		}
		result.UploadErr = err
		return
	}
	result.Staged, result.Inserted, result.Updated = info.Staged, info.Inserted, info.Updated
}

// Upload pushes every cached record for the tickers to the warehouse. With no tickers,
// every cached ticker of each kind is uploaded.
func (p *Pipeline) Upload(ctx context.Context, tickers []string, kinds []model.Kind) Report {
	report := p.newReport("upload")
	ctx = util.WithLoggerValue(ctx, "run_id", report.RunID.String())

	for _, kind := range kinds {
		list := dedupe(tickers)
		if len(list) == 0 {
			var err error
			if list, err = p.store.Tickers(kind); err != nil {
				report.Results = append(report.Results, TickerResult{Kind: kind, Err: err})
				continue
			}
		}

		results := download.FanOut(ctx, p.opts.Workers, list, func(ctx context.Context, ticker string) (TickerResult, error) {
			r := TickerResult{Ticker: ticker, Kind: kind}
			if p.warehouse == nil {
				r.UploadErr = errors.New("no warehouse configured")
				return r, nil
			}
			state, err := p.store.Load(ticker, kind)
			if err != nil {
				r.Err = err
				return r, nil
			}
			r.Total = state.Len()
			if !state.Empty() {
				p.upload(ctx, &r, state.Records)
			}
			return r, nil
		})
		for _, ticker := range list {
			res := results[ticker]
			r := res.Value
			r.Ticker, r.Kind = ticker, kind
			if res.Err != nil {
				r.Err = res.Err
			}
			report.Results = append(report.Results, r)
		}
	}

	return p.finish(ctx, report)
}

func dedupe(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	result := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = model.NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		result = append(result, t)
	}
	return result
}
