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

package extract

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Finnhub-Stock-API/finnhub-go"
	"github.com/antihax/optional"

	"github.com/ajjensen13/pricehistory/internal/model"
)

const (
	finnhubDateLayout = "2006-01-02"
	finnhubNoData     = "no_data"
)

// Finnhub reads daily candles and company news from finnhub.io.
type Finnhub struct {
	client   *finnhub.DefaultApiService
	apiKey   string
	throttle *throttle
	now      func() time.Time

	profiles sync.Map // symbol -> bool (exists)
}

// NewFinnhub creates a Finnhub source. basePath overrides the API endpoint when non-empty.
func NewFinnhub(apiKey, basePath string, rate time.Duration) *Finnhub {
	cfg := finnhub.NewConfiguration()
	if basePath != "" {
		cfg.BasePath = basePath
	}
	return &Finnhub{
		client:   finnhub.NewAPIClient(cfg).DefaultApi,
		apiKey:   apiKey,
		throttle: newThrottle(rate),
		now:      time.Now,
	}
}

func (f *Finnhub) Name() string { return "finnhub" }

func (f *Finnhub) authContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, finnhub.ContextAPIKey, finnhub.APIKey{Key: f.apiKey})
}

func (f *Finnhub) Prices(ctx context.Context, ticker string, r Range) ([]model.PriceRecord, error) {
	symbol := model.NormalizeTicker(ticker)
	if err := f.throttle.wait(ctx); err != nil {
		return nil, fmt.Errorf("aborting candles request: %w", err)
	}

	var from int64
	if !r.IsMax() {
		from = model.Day(r.Start).Unix()
	}
	end := r.End
	if end.IsZero() {
		end = f.now()
	}
	to := model.Day(end).AddDate(0, 0, 1).Unix() - 1

	in, resp, err := f.client.StockCandles(f.authContext(ctx), symbol, "D", from, to, nil)
	if err != nil {
		return nil, handleErr(fmt.Sprintf("error while requesting candle for stock %q", symbol), resp, err)
	}

	if in.S == finnhubNoData || len(in.T) == 0 {
		if err := f.validate(ctx, symbol); err != nil {
			return nil, err
		}
		return nil, nil
	}

	l := len(in.T)
	switch {
	case len(in.O) != l:
		return nil, fmt.Errorf("len(open) = %d, len(timestamp) = %d for stock %q: %w", len(in.O), l, symbol, ErrMalformedResponse)
	case len(in.H) != l:
		return nil, fmt.Errorf("len(high) = %d, len(timestamp) = %d for stock %q: %w", len(in.H), l, symbol, ErrMalformedResponse)
	case len(in.L) != l:
		return nil, fmt.Errorf("len(low) = %d, len(timestamp) = %d for stock %q: %w", len(in.L), l, symbol, ErrMalformedResponse)
	case len(in.C) != l:
		return nil, fmt.Errorf("len(close) = %d, len(timestamp) = %d for stock %q: %w", len(in.C), l, symbol, ErrMalformedResponse)
	case len(in.V) != l:
		return nil, fmt.Errorf("len(volume) = %d, len(timestamp) = %d for stock %q: %w", len(in.V), l, symbol, ErrMalformedResponse)
	}

	fetched := model.Naive(f.now())
	result := make([]model.PriceRecord, 0, l)
	for ndx, ts := range in.T {
		d := model.Day(time.Unix(ts, 0))
		if !r.IsMax() && d.Before(model.Day(r.Start)) {
			continue
		}
		result = append(result, model.PriceRecord{
			Ticker:        symbol,
			Date:          d,
			Open:          float64(in.O[ndx]),
			High:          float64(in.H[ndx]),
			Low:           float64(in.L[ndx]),
			Close:         float64(in.C[ndx]),
			AdjustedClose: float64(in.C[ndx]),
			Volume:        int64(in.V[ndx]),
			FetchedAt:     fetched,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// validate checks that symbol names a known company. Results are cached for the life of the source.
func (f *Finnhub) validate(ctx context.Context, symbol string) error {
	if ok, cached := f.profiles.Load(symbol); cached {
		if !ok.(bool) {
			return fmt.Errorf("company profile %q: %w", symbol, ErrNotFound)
		}
		return nil
	}

	if err := f.throttle.wait(ctx); err != nil {
		return fmt.Errorf("aborting company profile request: %w", err)
	}
	profile, resp, err := f.client.CompanyProfile2(f.authContext(ctx), &finnhub.CompanyProfile2Opts{Symbol: optional.NewString(symbol)})
	if err != nil {
		return handleErr(fmt.Sprintf("error while getting company profile %q", symbol), resp, err)
	}

	exists := profile.Ticker != ""
	f.profiles.Store(symbol, exists)
	if !exists {
		return fmt.Errorf("company profile %q: %w", symbol, ErrNotFound)
	}
	return nil
}

func (f *Finnhub) News(ctx context.Context, ticker string, r Range, maxItems int) ([]model.NewsRecord, error) {
	symbol := model.NormalizeTicker(ticker)
	if err := f.throttle.wait(ctx); err != nil {
		return nil, fmt.Errorf("aborting news request: %w", err)
	}

	now := f.now()
	start := r.Start
	if r.IsMax() {
		// company news only reaches back about a year
		start = now.AddDate(-1, 0, 0)
	}
	end := r.End
	if end.IsZero() {
		end = now
	}

	items, resp, err := f.client.CompanyNews(f.authContext(ctx), symbol, start.UTC().Format(finnhubDateLayout), end.UTC().Format(finnhubDateLayout))
	if err != nil {
		return nil, handleErr(fmt.Sprintf("error while requesting news for stock %q", symbol), resp, err)
	}

	// newest first, so truncation keeps the most recent headlines
	sort.Slice(items, func(i, j int) bool { return items[i].Datetime > items[j].Datetime })
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}

	fetched := model.Naive(now)
	result := make([]model.NewsRecord, 0, len(items))
	for _, item := range items {
		if item.Id == 0 {
			continue
		}
		result = append(result, model.NewsRecord{
			Ticker:       symbol,
			ID:           fmt.Sprintf("%d", item.Id),
			Title:        item.Headline,
			Summary:      item.Summary,
			Publisher:    item.Source,
			Link:         item.Url,
			PublishTime:  time.Unix(item.Datetime, 0).UTC(),
			ContentType:  item.Category,
			ThumbnailURL: item.Image,
			FetchedAt:    fetched,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].PublishTime.Before(result[j].PublishTime) })
	return result, nil
}
