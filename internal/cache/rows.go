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

package cache

import (
	"fmt"
	"time"

	"github.com/ajjensen13/pricehistory/internal/model"
)

// Timestamps are stored as int64 UTC unix nanoseconds and flagged as such in the file
// metadata. Optional times are null when zero.
const (
	timeUnitKey   = "pricehistory.time_unit"
	timeUnitNanos = "ns"
)

var timeColumns = map[string]bool{
	"date":         true,
	"publish_time": true,
	"display_time": true,
	"fetched_at":   true,
}

type priceRow struct {
	Ticker        string  `parquet:"ticker"`
	Date          int64   `parquet:"date"`
	Open          float64 `parquet:"open"`
	High          float64 `parquet:"high"`
	Low           float64 `parquet:"low"`
	Close         float64 `parquet:"close"`
	AdjustedClose float64 `parquet:"adjusted_close"`
	Volume        int64   `parquet:"volume"`
	Dividends     float64 `parquet:"dividends"`
	SplitRatio    float64 `parquet:"split_ratio"`
	FetchedAt     *int64  `parquet:"fetched_at,optional"`
}

type newsRow struct {
	Ticker       string `parquet:"ticker"`
	ID           string `parquet:"id"`
	Title        string `parquet:"title"`
	Summary      string `parquet:"summary"`
	Description  string `parquet:"description"`
	Publisher    string `parquet:"publisher"`
	Link         string `parquet:"link"`
	PublishTime  *int64 `parquet:"publish_time,optional"`
	DisplayTime  *int64 `parquet:"display_time,optional"`
	ContentType  string `parquet:"content_type"`
	ThumbnailURL string `parquet:"thumbnail_url"`
	IsPremium    bool   `parquet:"is_premium"`
	IsHosted     bool   `parquet:"is_hosted"`
	FetchedAt    *int64 `parquet:"fetched_at,optional"`
}

func nanos(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	n := t.UTC().UnixNano()
	return &n
}

func priceRows(rs []model.Record) ([]priceRow, error) {
	result := make([]priceRow, len(rs))
	for i, r := range rs {
		p, ok := r.(model.PriceRecord)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, not a price record", i, r)
		}
		result[i] = priceRow{
			Ticker:        p.Ticker,
			Date:          model.Day(p.Date).UnixNano(),
			Open:          p.Open,
			High:          p.High,
			Low:           p.Low,
			Close:         p.Close,
			AdjustedClose: p.AdjustedClose,
			Volume:        p.Volume,
			Dividends:     p.Dividends,
			SplitRatio:    p.SplitRatio,
			FetchedAt:     nanos(p.FetchedAt),
		}
	}
	return result, nil
}

func newsRows(rs []model.Record) ([]newsRow, error) {
	result := make([]newsRow, len(rs))
	for i, r := range rs {
		n, ok := r.(model.NewsRecord)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, not a news record", i, r)
		}
		result[i] = newsRow{
			Ticker:       n.Ticker,
			ID:           n.ID,
			Title:        n.Title,
			Summary:      n.Summary,
			Description:  n.Description,
			Publisher:    n.Publisher,
			Link:         n.Link,
			PublishTime:  nanos(n.PublishTime),
			DisplayTime:  nanos(n.DisplayTime),
			ContentType:  n.ContentType,
			ThumbnailURL: n.ThumbnailURL,
			IsPremium:    n.IsPremium,
			IsHosted:     n.IsHosted,
			FetchedAt:    nanos(n.FetchedAt),
		}
	}
	return result, nil
}
