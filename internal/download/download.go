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

// Package download turns sync plans into record sequences and runs tickers in parallel.
package download

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"cloud.google.com/go/logging"

	"github.com/ajjensen13/pricehistory/internal/extract"
	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/plan"
	"github.com/ajjensen13/pricehistory/internal/retry"
	"github.com/ajjensen13/pricehistory/internal/util"
)

// ErrConsumed is yielded when a fetch sequence is iterated a second time.
var ErrConsumed = errors.New("fetch sequence already consumed")

// DefaultMaxNews bounds a news fetch when no limit is configured.
const DefaultMaxNews = 100

type Downloader struct {
	source  extract.Source
	policy  retry.Policy
	maxNews int
}

// New creates a Downloader. Every source call runs under policy.
func New(source extract.Source, policy retry.Policy, maxNews int) *Downloader {
	if policy.Retryable == nil {
		policy.Retryable = extract.Retryable
	}
	if maxNews <= 0 {
		maxNews = DefaultMaxNews
	}
	return &Downloader{source: source, policy: policy, maxNews: maxNews}
}

func (d *Downloader) Source() extract.Source {
	return d.source
}

// FetchTicker returns the records p calls for, ordered by time. Nothing is requested until
// the sequence is iterated, a NONE plan never touches the network, and the sequence may
// be iterated only once.
func (d *Downloader) FetchTicker(ctx context.Context, p plan.SyncPlan) iter.Seq2[model.Record, error] {
	var used atomic.Bool
	return func(yield func(model.Record, error) bool) {
		if used.Swap(true) {
			yield(nil, fmt.Errorf("%s %s: %w", p.Ticker, p.Kind, ErrConsumed))
			return
		}
		if p.Mode == plan.None {
			return
		}

		records, err := d.fetch(ctx, p)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (d *Downloader) fetch(ctx context.Context, p plan.SyncPlan) ([]model.Record, error) {
	ctx = util.WithLoggerValue(ctx, "ticker", p.Ticker)
	r := extract.Range{Start: p.Start, End: p.End}
	util.Logf(ctx, logging.Debug, "requesting %s from %s", p, d.source.Name())

	switch p.Kind {
	case model.KindPrice:
		ps, err := retry.Do(ctx, d.policy, func(ctx context.Context) ([]model.PriceRecord, error) {
			return d.source.Prices(ctx, p.Ticker, r)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s prices: %w", p.Ticker, err)
		}
		result := make([]model.Record, len(ps))
		for i, x := range ps {
			result[i] = x
		}
		return result, nil
	case model.KindNews:
		ns, err := retry.Do(ctx, d.policy, func(ctx context.Context) ([]model.NewsRecord, error) {
			return d.source.News(ctx, p.Ticker, r, d.maxNews)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s news: %w", p.Ticker, err)
		}
		result := make([]model.Record, len(ns))
		for i, x := range ns {
			result[i] = x
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", p.Kind)
	}
}

// Collect drains seq, stopping at the first error.
func Collect(seq iter.Seq2[model.Record, error]) ([]model.Record, error) {
	var result []model.Record
	for r, err := range seq {
		if err != nil {
			return result, err
		}
		result = append(result, r)
	}
	return result, nil
}
