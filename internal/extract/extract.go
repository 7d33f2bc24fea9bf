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
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ajjensen13/pricehistory/internal/model"
)

var (
	// ErrTransientFetch marks failures worth retrying.
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrPermanentFetch marks failures that will not go away by retrying.
	ErrPermanentFetch = errors.New("permanent fetch error")

	ErrToManyRequests    = fmt.Errorf("too many requests: %w", ErrTransientFetch)
	ErrNotFound          = fmt.Errorf("ticker not found: %w", ErrPermanentFetch)
	ErrMalformedResponse = fmt.Errorf("malformed response: %w", ErrPermanentFetch)
)

// Range bounds a fetch. A zero Start means the maximum available history; a zero End means today.
// Prices use the calendar day of Start; news keeps items published at or after Start itself.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) IsMax() bool {
	return r.Start.IsZero()
}

// Source is an upstream price and news provider.
type Source interface {
	Name() string
	Prices(ctx context.Context, ticker string, r Range) ([]model.PriceRecord, error)
	News(ctx context.Context, ticker string, r Range, maxItems int) ([]model.NewsRecord, error)
}

// Retryable reports whether err is worth another attempt. Network and unclassified
// errors count as transient; permanent fetch errors and context errors do not.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPermanentFetch):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func handleErr(msg string, resp *http.Response, err error) error {
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}

	switch {
	case resp == nil:
		if err == nil {
			return fmt.Errorf("%s: %w", msg, ErrTransientFetch)
		}
		return fmt.Errorf("%s: %v: %w", msg, err, ErrTransientFetch)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, ErrToManyRequests)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}

	var body []byte
	if resp.Body != nil {
		b, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if readErr != nil {
			msg = fmt.Sprintf("error while to parsing error response %v. %s", readErr, msg)
		}
		body = b
	}

	kind := ErrPermanentFetch
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusRequestTimeout {
		kind = ErrTransientFetch
	}
	if err == nil {
		return fmt.Errorf("%s: status %d (%s): %w", msg, resp.StatusCode, body, kind)
	}
	return fmt.Errorf("%s: %v (%s): %w", msg, err, body, kind)
}
