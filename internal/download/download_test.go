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

package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/pricehistory/internal/extract"
	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/plan"
	"github.com/ajjensen13/pricehistory/internal/retry"
)

type fakeSource struct {
	calls  atomic.Int32
	prices func(ticker string, r extract.Range) ([]model.PriceRecord, error)
	news   func(ticker string, r extract.Range, maxItems int) ([]model.NewsRecord, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Prices(_ context.Context, ticker string, r extract.Range) ([]model.PriceRecord, error) {
	f.calls.Add(1)
	return f.prices(ticker, r)
}

func (f *fakeSource) News(_ context.Context, ticker string, r extract.Range, maxItems int) ([]model.NewsRecord, error) {
	f.calls.Add(1)
	return f.news(ticker, r, maxItems)
}

var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Retryable: extract.Retryable}

func bars(ticker string, start time.Time, n int) []model.PriceRecord {
	result := make([]model.PriceRecord, n)
	for i := range result {
		result[i] = model.PriceRecord{Ticker: ticker, Date: start.AddDate(0, 0, i), Close: float64(i)}
	}
	return result
}

func TestFetchTicker_NoneMakesNoCalls(t *testing.T) {
	src := &fakeSource{}
	d := New(src, fastPolicy, 0)

	got, err := Collect(d.FetchTicker(context.Background(), plan.SyncPlan{Ticker: "MSFT", Kind: model.KindPrice, Mode: plan.None}))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, src.calls.Load())
}

func TestFetchTicker_Lazy(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		assert.Equal(t, start, r.Start)
		return bars(ticker, start, 3), nil
	}}
	d := New(src, fastPolicy, 0)

	seq := d.FetchTicker(context.Background(), plan.SyncPlan{Ticker: "MSFT", Kind: model.KindPrice, Mode: plan.Incremental, Start: start, End: start.AddDate(0, 0, 2)})
	assert.Zero(t, src.calls.Load(), "nothing is fetched before iteration")

	got, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetchTicker_SingleUse(t *testing.T) {
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		return bars(ticker, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 2), nil
	}}
	d := New(src, fastPolicy, 0)
	seq := d.FetchTicker(context.Background(), plan.SyncPlan{Ticker: "MSFT", Kind: model.KindPrice, Mode: plan.Full})

	first, err := Collect(seq)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = Collect(seq)
	assert.ErrorIs(t, err, ErrConsumed)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetchTicker_EarlyStop(t *testing.T) {
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		return bars(ticker, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 10), nil
	}}
	d := New(src, fastPolicy, 0)

	n := 0
	for _, err := range d.FetchTicker(context.Background(), plan.SyncPlan{Ticker: "MSFT", Kind: model.KindPrice, Mode: plan.Full}) {
		require.NoError(t, err)
		n++
		if n == 4 {
			break
		}
	}
	assert.Equal(t, 4, n)
}

func TestFetchTicker_Retries(t *testing.T) {
	var attempts atomic.Int32
	src := &fakeSource{news: func(ticker string, r extract.Range, maxItems int) ([]model.NewsRecord, error) {
		assert.Equal(t, 7, maxItems)
		if attempts.Add(1) < 3 {
			return nil, fmt.Errorf("flaky: %w", extract.ErrTransientFetch)
		}
		return []model.NewsRecord{{Ticker: ticker, ID: "a"}}, nil
	}}
	d := New(src, fastPolicy, 7)

	got, err := Collect(d.FetchTicker(context.Background(), plan.SyncPlan{Ticker: "AAPL", Kind: model.KindNews, Mode: plan.Full}))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchTicker_PermanentNotRetried(t *testing.T) {
	src := &fakeSource{prices: func(ticker string, r extract.Range) ([]model.PriceRecord, error) {
		return nil, fmt.Errorf("nope: %w", extract.ErrNotFound)
	}}
	d := New(src, fastPolicy, 0)

	_, err := Collect(d.FetchTicker(context.Background(), plan.SyncPlan{Ticker: "ZZZZ", Kind: model.KindPrice, Mode: plan.Full}))
	assert.ErrorIs(t, err, extract.ErrNotFound)
	assert.False(t, retry.IsFailure(err))
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFanOut_IsolatesFailures(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	boom := errors.New("boom")

	results := FanOut(context.Background(), 2, []string{"A", "B", "C", "D", "E"}, func(ctx context.Context, ticker string) (int, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
		time.Sleep(5 * time.Millisecond)

		switch ticker {
		case "B":
			return 0, boom
		case "D":
			panic("kaboom")
		default:
			return len(ticker) * 10, nil
		}
	})

	require.Len(t, results, 5)
	assert.LessOrEqual(t, peak, 2)
	assert.True(t, results["A"].Success())
	assert.Equal(t, 10, results["A"].Value)
	assert.ErrorIs(t, results["B"].Err, boom)
	assert.False(t, results["D"].Success())
	assert.Contains(t, results["D"].Err.Error(), "kaboom")
	assert.True(t, results["C"].Success())
	assert.True(t, results["E"].Success())
}

func TestFanOut_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := FanOut(ctx, 4, []string{"A", "B"}, func(ctx context.Context, ticker string) (struct{}, error) {
		calls.Add(1)
		return struct{}{}, nil
	})
	assert.Zero(t, calls.Load())
	assert.ErrorIs(t, results["A"].Err, context.Canceled)
	assert.ErrorIs(t, results["B"].Err, context.Canceled)
}
