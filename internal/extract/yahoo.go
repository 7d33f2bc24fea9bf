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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/ajjensen13/pricehistory/internal/model"
)

const (
	yahooChartURL  = "https://query1.finance.yahoo.com"
	yahooSearchURL = "https://query2.finance.yahoo.com"
)

// Yahoo reads daily bars from the Yahoo Finance chart API and headlines from its search API.
type Yahoo struct {
	ChartURL  string
	SearchURL string
	Client    *http.Client

	throttle *throttle
	now      func() time.Time
}

// NewYahoo creates a Yahoo source. A positive rate spaces requests at least that far apart.
func NewYahoo(client *http.Client, rate time.Duration) *Yahoo {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Yahoo{
		ChartURL:  yahooChartURL,
		SearchURL: yahooSearchURL,
		Client:    client,
		throttle:  newThrottle(rate),
		now:       time.Now,
	}
}

func (y *Yahoo) Name() string { return "yahoo" }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol    string `json:"symbol"`
				GMTOffset int64  `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
				Splits map[string]struct {
					Date        int64   `json:"date"`
					Numerator   float64 `json:"numerator"`
					Denominator float64 `json:"denominator"`
				} `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) chartURL(ticker string, r Range) string {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("events", "div,splits")
	q.Set("includeAdjustedClose", "true")
	if r.IsMax() {
		q.Set("range", "max")
	} else {
		end := r.End
		if end.IsZero() {
			end = y.now()
		}
		q.Set("period1", strconv.FormatInt(model.Day(r.Start).Unix(), 10))
		q.Set("period2", strconv.FormatInt(model.Day(end).AddDate(0, 0, 1).Unix(), 10))
	}
	return fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.ChartURL, url.PathEscape(ticker), q.Encode())
}

func (y *Yahoo) get(ctx context.Context, u, what string) ([]byte, error) {
	if err := y.throttle.wait(ctx); err != nil {
		return nil, fmt.Errorf("aborting %s request: %w", what, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %v: %w", what, err, ErrPermanentFetch)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.Client.Do(req)
	if err != nil {
		return nil, handleErr(fmt.Sprintf("error while requesting %s", what), nil, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, handleErr(fmt.Sprintf("error while requesting %s", what), resp, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %v: %w", what, err, ErrTransientFetch)
	}
	return body, nil
}

func (y *Yahoo) Prices(ctx context.Context, ticker string, r Range) ([]model.PriceRecord, error) {
	what := fmt.Sprintf("%q price history", ticker)
	body, err := y.get(ctx, y.chartURL(ticker, r), what)
	if err != nil {
		return nil, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v: %w", what, err, ErrMalformedResponse)
	}
	if e := chart.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %s: %w", what, e.Description, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %s: %s: %w", what, e.Code, e.Description, ErrPermanentFetch)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: empty result: %w", what, ErrMalformedResponse)
	}

	res := chart.Chart.Result[0]
	l := len(res.Timestamp)
	if l == 0 {
		return nil, nil
	}
	if len(res.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%s: missing quote indicators: %w", what, ErrMalformedResponse)
	}
	quote := res.Indicators.Quote[0]
	switch {
	case len(quote.Open) != l:
		return nil, fmt.Errorf("len(open) = %d, len(timestamp) = %d for stock %q: %w", len(quote.Open), l, ticker, ErrMalformedResponse)
	case len(quote.High) != l:
		return nil, fmt.Errorf("len(high) = %d, len(timestamp) = %d for stock %q: %w", len(quote.High), l, ticker, ErrMalformedResponse)
	case len(quote.Low) != l:
		return nil, fmt.Errorf("len(low) = %d, len(timestamp) = %d for stock %q: %w", len(quote.Low), l, ticker, ErrMalformedResponse)
	case len(quote.Close) != l:
		return nil, fmt.Errorf("len(close) = %d, len(timestamp) = %d for stock %q: %w", len(quote.Close), l, ticker, ErrMalformedResponse)
	case len(quote.Volume) != l:
		return nil, fmt.Errorf("len(volume) = %d, len(timestamp) = %d for stock %q: %w", len(quote.Volume), l, ticker, ErrMalformedResponse)
	}

	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 && len(res.Indicators.AdjClose[0].AdjClose) == l {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	day := func(ts int64) time.Time {
		return model.Day(time.Unix(ts+res.Meta.GMTOffset, 0))
	}
	dividends := make(map[time.Time]float64, len(res.Events.Dividends))
	for _, d := range res.Events.Dividends {
		dividends[day(d.Date)] += d.Amount
	}
	splits := make(map[time.Time]float64, len(res.Events.Splits))
	for _, s := range res.Events.Splits {
		if s.Denominator != 0 {
			splits[day(s.Date)] = s.Numerator / s.Denominator
		}
	}

	fetched := model.Naive(y.now())
	symbol := model.NormalizeTicker(ticker)
	result := make([]model.PriceRecord, 0, l)
	for i, ts := range res.Timestamp {
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue // null bars (holidays, halted sessions)
		}
		d := day(ts)
		if !r.IsMax() && d.Before(model.Day(r.Start)) {
			continue
		}
		if !r.End.IsZero() && d.After(model.Day(r.End)) {
			continue
		}
		rec := model.PriceRecord{
			Ticker:     symbol,
			Date:       d,
			Open:       *quote.Open[i],
			High:       *quote.High[i],
			Low:        *quote.Low[i],
			Close:      *quote.Close[i],
			Dividends:  dividends[d],
			SplitRatio: splits[d],
			FetchedAt:  fetched,
		}
		rec.AdjustedClose = rec.Close
		if adj != nil && adj[i] != nil {
			rec.AdjustedClose = *adj[i]
		}
		if quote.Volume[i] != nil {
			rec.Volume = int64(*quote.Volume[i])
		}
		result = append(result, rec)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

type yahooSearch struct {
	News []struct {
		UUID                string `json:"uuid"`
		Title               string `json:"title"`
		Summary             string `json:"summary"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
		DisplayTime         int64  `json:"displayTime"`
		Type                string `json:"type"`
		IsPremium           bool   `json:"isPremium"`
		IsHosted            bool   `json:"isHosted"`
		Thumbnail           *struct {
			Resolutions []struct {
				URL string `json:"url"`
			} `json:"resolutions"`
		} `json:"thumbnail"`
	} `json:"news"`
}

func (y *Yahoo) News(ctx context.Context, ticker string, r Range, maxItems int) ([]model.NewsRecord, error) {
	what := fmt.Sprintf("%q news", ticker)
	q := url.Values{}
	q.Set("q", ticker)
	q.Set("quotesCount", "0")
	q.Set("newsCount", strconv.Itoa(maxItems))
	body, err := y.get(ctx, fmt.Sprintf("%s/v1/finance/search?%s", y.SearchURL, q.Encode()), what)
	if err != nil {
		return nil, err
	}

	var search yahooSearch
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %v: %w", what, err, ErrMalformedResponse)
	}

	fetched := model.Naive(y.now())
	symbol := model.NormalizeTicker(ticker)
	result := make([]model.NewsRecord, 0, len(search.News))
	for _, item := range search.News {
		if item.UUID == "" {
			continue
		}
		published := time.Unix(item.ProviderPublishTime, 0).UTC()
		if !r.IsMax() && published.Before(r.Start) {
			continue
		}
		rec := model.NewsRecord{
			Ticker:      symbol,
			ID:          item.UUID,
			Title:       item.Title,
			Summary:     item.Summary,
			Publisher:   item.Publisher,
			Link:        item.Link,
			PublishTime: published,
			ContentType: item.Type,
			IsPremium:   item.IsPremium,
			IsHosted:    item.IsHosted,
			FetchedAt:   fetched,
		}
		if item.DisplayTime != 0 {
			rec.DisplayTime = time.Unix(item.DisplayTime, 0).UTC()
		}
		if item.Thumbnail != nil && len(item.Thumbnail.Resolutions) > 0 {
			rec.ThumbnailURL = item.Thumbnail.Resolutions[len(item.Thumbnail.Resolutions)-1].URL
		}
		result = append(result, rec)
		if maxItems > 0 && len(result) == maxItems {
			break
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].PublishTime.Before(result[j].PublishTime) })
	return result, nil
}
