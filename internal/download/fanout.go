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
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one ticker's unit of work.
type Result[T any] struct {
	Ticker string
	Value  T
	Err    error
}

func (r Result[T]) Success() bool {
	return r.Err == nil
}

// FanOut runs fn for every ticker with at most workers in flight and collects the results
// by ticker. A failing or panicking ticker does not stop the others. Tickers not started
// before ctx is done report ctx's error.
func FanOut[T any](ctx context.Context, workers int, tickers []string, fn func(ctx context.Context, ticker string) (T, error)) map[string]Result[T] {
	if workers <= 0 {
		workers = 1
	}

	var mu sync.Mutex
	results := make(map[string]Result[T], len(tickers))
	record := func(r Result[T]) {
		mu.Lock()
		defer mu.Unlock()
		results[r.Ticker] = r
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, ticker := range tickers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(Result[T]{Ticker: ticker, Err: err})
				return nil
			}

			defer func() {
				if p := recover(); p != nil {
					record(Result[T]{Ticker: ticker, Err: fmt.Errorf("panic while processing %q: %v", ticker, p)})
				}
			}()

			v, err := fn(ctx, ticker)
			record(Result[T]{Ticker: ticker, Value: v, Err: err})
			return nil
		})
	}
	_ = g.Wait()

	return results
}
