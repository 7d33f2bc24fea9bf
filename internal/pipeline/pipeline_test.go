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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/pricehistory/internal/cache"
	"github.com/ajjensen13/pricehistory/internal/download"
	"github.com/ajjensen13/pricehistory/internal/extract"
	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/plan"
	"github.com/ajjensen13/pricehistory/internal/retry"
	"github.com/ajjensen13/pricehistory/internal/warehouse"
)

var (
	today   = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	fetched = time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)
)

type fakeSource struct {
	calls  atomic.Int32
	mu     sync.Mutex
	ranges []extract.Range
	prices func(ticker string, r extract.Range) ([]model.PriceRecord, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Prices(_ context.Context, ticker string, r extract.Range) ([]model.PriceRecord, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.ranges = append(f.ranges, r)
	f.mu.Unlock()
	return f.prices(ticker, r)
}

func (f *fakeSource) News(_ context.Context, ticker string, r extract.Range, _ int) ([]model.NewsRecord, error) {
	f.calls.Add(1)
	return []model.NewsRecord{{Ticker: ticker, ID: "n1", Title: "t", PublishTime: r.End.Add(-time.Hour), FetchedAt: fetched}}, nil
}

type fakeSyncer struct {
	mu      sync.Mutex
	batches map[model.Kind]int
	err     error
}

func (f *fakeSyncer) Sync(_ context.Context, kind model.Kind, records []model.Record) (warehouse.SyncInfo, error) {
	if f.err != nil {
		return warehouse.SyncInfo{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = map[model.Kind]int{}
	}
	f.batches[kind] += len(records)
	return warehouse.SyncInfo{Kind: kind, Staged: int64(len(records)), Inserted: int64(len(records))}, nil
}

type fakeRecorder struct {
	reports []Report
}

func (f *fakeRecorder) Record(_ context.Context, r Report) error {
	f.reports = append(f.reports, r)
	return nil
}

func bars(ticker string, start time.Time, n int) []model.PriceRecord {
	result := make([]model.PriceRecord, n)
	for i := range result {
		result[i] = model.PriceRecord{
			Ticker: ticker, Date: start.AddDate(0, 0, i),
			Open: 1, High: 2, Low: 0.5, Close: float64(i), AdjustedClose: float64(i), Volume: int64(100 + i),
			FetchedAt: fetched,
		}
	}
	return result
}

func newPipeline(t *testing.T, src extract.Source, wh Syncer, rec Recorder) (*Pipeline, *cache.Store) {
	t.Helper()
	store := cache.NewStore(t.TempDir())
	d := download.New(src, retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, 0)
	p := New(store, d, wh, rec, Options{
		Workers: 2,
		Upload:  wh != nil,
		Plan:    plan.Options{Now: func() time.Time { return today.Add(15 * time.Hour) }},
	})
	return p, store
}

func TestSyncTicker_FullThenReload(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		assert.True(t, r.IsMax())
		return bars(ticker, d1, 100), nil
	}}
	p, store := newPipeline(t, src, nil, nil)

	r := p.SyncTicker(context.Background(), "test", model.KindPrice)
	require.NoError(t, r.Err)
	assert.Equal(t, plan.Full, r.Mode)
	assert.Equal(t, 100, r.Fetched)
	assert.Equal(t, 100, r.Added)

	state, err := store.Load("TEST", model.KindPrice)
	require.NoError(t, err)
	require.Equal(t, 100, state.Len())
	for i, rec := range state.Records {
		assert.Equal(t, d1.AddDate(0, 0, i), rec.Time())
	}
}

func TestSyncTicker_IncrementalNoRows(t *testing.T) {
	yesterday := today.AddDate(0, 0, -1)
	src := &fakeSource{prices: func(string, extract.Range) ([]model.PriceRecord, error) { return nil, nil }}
	p, store := newPipeline(t, src, nil, nil)

	seed := cache.State{Ticker: "TEST", Kind: model.KindPrice}
	for _, b := range bars("TEST", yesterday.AddDate(0, 0, -9), 10) {
		seed.Records = append(seed.Records, b)
	}
	require.NoError(t, store.Save(seed))
	info, err := os.Stat(store.Path("TEST", model.KindPrice))
	require.NoError(t, err)

	r := p.SyncTicker(context.Background(), "TEST", model.KindPrice)
	require.NoError(t, r.Err)
	assert.True(t, r.Success())
	assert.Equal(t, plan.Incremental, r.Mode)
	assert.Zero(t, r.Fetched)
	assert.Zero(t, r.Added)
	assert.Equal(t, 10, r.Total)

	require.Len(t, src.ranges, 1)
	assert.Equal(t, today, src.ranges[0].Start)
	assert.Equal(t, today, src.ranges[0].End)

	after, err := os.Stat(store.Path("TEST", model.KindPrice))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
}

func TestSyncTicker_UpToDateMakesNoCalls(t *testing.T) {
	src := &fakeSource{prices: func(string, extract.Range) ([]model.PriceRecord, error) { return nil, nil }}
	p, store := newPipeline(t, src, nil, nil)

	seed := cache.State{Ticker: "TEST", Kind: model.KindPrice}
	for _, b := range bars("TEST", today.AddDate(0, 0, -4), 5) {
		seed.Records = append(seed.Records, b)
	}
	require.NoError(t, store.Save(seed))

	r := p.SyncTicker(context.Background(), "TEST", model.KindPrice)
	require.NoError(t, r.Err)
	assert.Equal(t, plan.None, r.Mode)
	assert.Zero(t, src.calls.Load())
}

func TestSyncTicker_CorruptCacheRefetches(t *testing.T) {
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		return bars(ticker, today.AddDate(0, 0, -2), 2), nil
	}}
	p, store := newPipeline(t, src, nil, nil)

	path := store.Path("BAD", model.KindPrice)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	r := p.SyncTicker(context.Background(), "BAD", model.KindPrice)
	require.NoError(t, r.Err)
	assert.Equal(t, plan.Full, r.Mode)

	state, err := store.Load("BAD", model.KindPrice)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Len())
}

func TestSyncTicker_UploadFailureKeepsSnapshot(t *testing.T) {
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		return bars(ticker, today.AddDate(0, 0, -2), 2), nil
	}}
	wh := &fakeSyncer{err: fmt.Errorf("stock_price_history: %w", warehouse.ErrSchemaConflict)}
	p, store := newPipeline(t, src, wh, nil)

	r := p.SyncTicker(context.Background(), "MSFT", model.KindPrice)
	assert.NoError(t, r.Err)
	assert.ErrorIs(t, r.UploadErr, warehouse.ErrSchemaConflict)
	assert.False(t, r.Success())
	assert.Equal(t, "saved", r.Status())

	state, err := store.Load("MSFT", model.KindPrice)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Len())
}

func TestRun_IsolatesFailures(t *testing.T) {
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		if ticker == "NOPE" {
			return nil, fmt.Errorf("no such symbol: %w", extract.ErrNotFound)
		}
		return bars(ticker, today.AddDate(0, 0, -3), 3), nil
	}}
	wh := &fakeSyncer{}
	rec := &fakeRecorder{}
	p, _ := newPipeline(t, src, wh, rec)

	report := p.Run(context.Background(), []string{"msft", "NOPE", "AAPL", "MSFT"}, []model.Kind{model.KindPrice, model.KindNews})
	require.Len(t, report.Results, 6)
	assert.Equal(t, 1, report.Failed())
	assert.False(t, report.AllFailed())
	assert.Equal(t, "fake", report.Source)
	assert.False(t, report.Finished.Before(report.Started))

	byKey := map[string]TickerResult{}
	for _, r := range report.Results {
		byKey[string(r.Kind)+"/"+r.Ticker] = r
	}
	assert.ErrorIs(t, byKey["price-history/NOPE"].Err, extract.ErrNotFound)
	assert.Equal(t, 3, byKey["price-history/MSFT"].Added)
	assert.Equal(t, int64(3), byKey["price-history/MSFT"].Inserted)
	assert.Equal(t, 1, byKey["news/NOPE"].Added)
	assert.Equal(t, 6, wh.batches[model.KindPrice])
	assert.Equal(t, 3, wh.batches[model.KindNews])

	require.Len(t, rec.reports, 1)
	assert.Equal(t, report.RunID, rec.reports[0].RunID)
}

func TestRun_AllFailed(t *testing.T) {
	src := &fakeSource{prices: func(string, extract.Range) ([]model.PriceRecord, error) {
		return nil, errors.New("boom")
	}}
	p, _ := newPipeline(t, src, nil, nil)

	report := p.Run(context.Background(), []string{"A", "B"}, []model.Kind{model.KindPrice})
	assert.True(t, report.AllFailed())
	assert.Equal(t, 2, report.Failed())
}

func TestUpload_AllCachedTickers(t *testing.T) {
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		return bars(ticker, today.AddDate(0, 0, -5), 5), nil
	}}
	p, _ := newPipeline(t, src, nil, nil)
	p.Run(context.Background(), []string{"AAPL", "MSFT"}, []model.Kind{model.KindPrice})

	wh := &fakeSyncer{}
	p.warehouse = wh
	report := p.Upload(context.Background(), nil, []model.Kind{model.KindPrice})
	require.Len(t, report.Results, 2)
	assert.Zero(t, report.Failed())
	assert.Equal(t, 10, wh.batches[model.KindPrice])
	assert.Equal(t, "AAPL", report.Results[0].Ticker)
}

func TestImport_LegacyCSV(t *testing.T) {
	p, store := newPipeline(t, &fakeSource{}, nil, nil)
	csv := strings.Join([]string{
		"Date,Open_Price,High_Price,Low_Price,Close_Price,Volume",
		"2024-01-02,1,2,0.5,1.5,100",
		"2024-01-03,1.5,2.5,1,2,200",
	}, "\n")

	r, err := p.Import(context.Background(), "msft", model.KindPrice, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Added)

	state, err := store.Load("MSFT", model.KindPrice)
	require.NoError(t, err)
	require.Equal(t, 2, state.Len())
	first := state.Records[0].(model.PriceRecord)
	assert.Equal(t, 1.5, first.Close)
	assert.Equal(t, 1.5, first.AdjustedClose)
	assert.Equal(t, int64(100), first.Volume)

	_, err = p.Import(context.Background(), "msft", model.KindPrice, strings.NewReader("Date,Close\n2024-01-02,1\n"))
	assert.Error(t, err)
}

func TestSyncTicker_NewsIgnoresDeepHistory(t *testing.T) {
	src := &fakeSource{}
	p, store := newPipeline(t, src, nil, nil)
	p.opts.Plan.DeepHistory = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	yesterday := today.AddDate(0, 0, -1)
	require.NoError(t, store.Save(cache.State{Ticker: "MSFT", Kind: model.KindNews, Records: []model.Record{
		model.NewsRecord{Ticker: "MSFT", ID: "old", Title: "t", PublishTime: yesterday.Add(9 * time.Hour), FetchedAt: fetched},
	}}))

	r := p.SyncTicker(context.Background(), "MSFT", model.KindNews)
	require.NoError(t, r.Err)
	assert.Equal(t, plan.Incremental, r.Mode)
	assert.Equal(t, 1, r.Added)
}

func TestSyncTicker_NewsKeepsHeadlinesPublishedAfterSync(t *testing.T) {
	var (
		mu        sync.Mutex
		headlines []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"news": [%s]}`, strings.Join(headlines, ","))
	}))
	t.Cleanup(srv.Close)
	publish := func(id string, at time.Time) {
		mu.Lock()
		defer mu.Unlock()
		headlines = append(headlines, fmt.Sprintf(`{"uuid": %q, "title": %q, "providerPublishTime": %d}`, id, id, at.Unix()))
	}

	y := extract.NewYahoo(srv.Client(), 0)
	y.SearchURL = srv.URL
	p, store := newPipeline(t, y, nil, nil)
	now := today.Add(9 * time.Hour)
	p.opts.Plan.Now = func() time.Time { return now }

	publish("a", today.Add(8*time.Hour))
	r := p.SyncTicker(context.Background(), "MSFT", model.KindNews)
	require.NoError(t, r.Err)
	assert.Equal(t, plan.Full, r.Mode)
	assert.Equal(t, 1, r.Added)

	// published later the same day as the newest cached headline
	publish("b", today.Add(15*time.Hour))
	now = today.Add(16 * time.Hour)
	r = p.SyncTicker(context.Background(), "MSFT", model.KindNews)
	require.NoError(t, r.Err)
	assert.Equal(t, plan.Incremental, r.Mode)
	assert.Equal(t, 1, r.Added)

	publish("c", today.Add(33*time.Hour))
	now = today.Add(34 * time.Hour)
	r = p.SyncTicker(context.Background(), "MSFT", model.KindNews)
	require.NoError(t, r.Err)
	assert.Equal(t, 1, r.Added)

	state, err := store.Load("MSFT", model.KindNews)
	require.NoError(t, err)
	var ids []string
	for _, rec := range state.Records {
		ids = append(ids, rec.(model.NewsRecord).ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
