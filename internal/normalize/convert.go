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

package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajjensen13/pricehistory/internal/model"
)

// ErrInvalidValue is returned when a cell cannot be converted to its column's type.
var ErrInvalidValue = errors.New("invalid value")

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02",
	"01/02/2006",
}

// assigner matches pgtype values such as pgtype.Numeric.
type assigner interface {
	AssignTo(dst interface{}) error
}

type cursor struct {
	frame Frame
	row   int
	idx   map[string]int
}

func newCursor(f Frame) *cursor {
	idx := make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		idx[c] = i
	}
	return &cursor{frame: f, idx: idx}
}

func (c *cursor) value(column string) any {
	i, ok := c.idx[column]
	if !ok {
		return nil
	}
	row := c.frame.Rows[c.row]
	if i >= len(row) {
		return nil
	}
	return row[i]
}

func (c *cursor) fail(column string, v any, err error) error {
	return fmt.Errorf("row %d column %q value %v (%T): %v: %w", c.row, column, v, v, err, ErrInvalidValue)
}

func (c *cursor) floatAt(column string) (float64, error) {
	v := c.value(column)
	f, err := toFloat(v)
	if err != nil {
		return 0, c.fail(column, v, err)
	}
	return f, nil
}

func (c *cursor) intAt(column string) (int64, error) {
	v := c.value(column)
	n, err := toInt(v)
	if err != nil {
		return 0, c.fail(column, v, err)
	}
	return n, nil
}

func (c *cursor) stringAt(column string) (string, error) {
	v := c.value(column)
	s, err := toString(v)
	if err != nil {
		return "", c.fail(column, v, err)
	}
	return s, nil
}

func (c *cursor) boolAt(column string) (bool, error) {
	v := c.value(column)
	b, err := toBool(v)
	if err != nil {
		return false, c.fail(column, v, err)
	}
	return b, nil
}

func (c *cursor) timeAt(column string) (time.Time, error) {
	v := c.value(column)
	t, err := toTime(v)
	if err != nil {
		return time.Time{}, c.fail(column, v, err)
	}
	return t, nil
}

// PriceRecords converts a normalized frame into price records.
func PriceRecords(f Frame) ([]model.PriceRecord, error) {
	for _, r := range priceRequired {
		if f.Index(r) < 0 {
			return nil, fmt.Errorf("price frame is missing %q: %w", r, ErrUnmappableSchema)
		}
	}

	c := newCursor(f)
	result := make([]model.PriceRecord, 0, len(f.Rows))
	for c.row = 0; c.row < len(f.Rows); c.row++ {
		var p model.PriceRecord
		ticker, err := c.stringAt("ticker")
		if err != nil {
			return nil, err
		}
		p.Ticker = model.NormalizeTicker(ticker)
		date, err := c.timeAt("date")
		if err != nil {
			return nil, err
		}
		if date.IsZero() {
			return nil, c.fail("date", c.value("date"), errors.New("missing date"))
		}
		p.Date = model.Day(date)
		if p.Open, err = c.floatAt("open"); err != nil {
			return nil, err
		}
		if p.High, err = c.floatAt("high"); err != nil {
			return nil, err
		}
		if p.Low, err = c.floatAt("low"); err != nil {
			return nil, err
		}
		if p.Close, err = c.floatAt("close"); err != nil {
			return nil, err
		}
		if p.AdjustedClose, err = c.floatAt("adjusted_close"); err != nil {
			return nil, err
		}
		if f.Index("adjusted_close") < 0 {
			p.AdjustedClose = p.Close
		}
		if p.Volume, err = c.intAt("volume"); err != nil {
			return nil, err
		}
		if p.Dividends, err = c.floatAt("dividends"); err != nil {
			return nil, err
		}
		if p.SplitRatio, err = c.floatAt("split_ratio"); err != nil {
			return nil, err
		}
		fetched, err := c.timeAt("fetched_at")
		if err != nil {
			return nil, err
		}
		p.FetchedAt = model.Naive(fetched)
		result = append(result, p)
	}
	return result, nil
}

// NewsRecords converts a normalized frame into news records.
func NewsRecords(f Frame) ([]model.NewsRecord, error) {
	for _, r := range newsRequired {
		if f.Index(r) < 0 {
			return nil, fmt.Errorf("news frame is missing %q: %w", r, ErrUnmappableSchema)
		}
	}

	c := newCursor(f)
	result := make([]model.NewsRecord, 0, len(f.Rows))
	for c.row = 0; c.row < len(f.Rows); c.row++ {
		var n model.NewsRecord
		ticker, err := c.stringAt("ticker")
		if err != nil {
			return nil, err
		}
		n.Ticker = model.NormalizeTicker(ticker)
		if n.ID, err = c.stringAt("id"); err != nil {
			return nil, err
		}
		if n.ID == "" {
			return nil, c.fail("id", c.value("id"), errors.New("missing id"))
		}
		if n.Title, err = c.stringAt("title"); err != nil {
			return nil, err
		}
		if n.Summary, err = c.stringAt("summary"); err != nil {
			return nil, err
		}
		if n.Description, err = c.stringAt("description"); err != nil {
			return nil, err
		}
		if n.Publisher, err = c.stringAt("publisher"); err != nil {
			return nil, err
		}
		if n.Link, err = c.stringAt("link"); err != nil {
			return nil, err
		}
		if n.ContentType, err = c.stringAt("content_type"); err != nil {
			return nil, err
		}
		if n.ThumbnailURL, err = c.stringAt("thumbnail_url"); err != nil {
			return nil, err
		}
		if n.IsPremium, err = c.boolAt("is_premium"); err != nil {
			return nil, err
		}
		if n.IsHosted, err = c.boolAt("is_hosted"); err != nil {
			return nil, err
		}
		published, err := c.timeAt("publish_time")
		if err != nil {
			return nil, err
		}
		n.PublishTime = model.Naive(published)
		display, err := c.timeAt("display_time")
		if err != nil {
			return nil, err
		}
		n.DisplayTime = model.Naive(display)
		fetched, err := c.timeAt("fetched_at")
		if err != nil {
			return nil, err
		}
		n.FetchedAt = model.Naive(fetched)
		result = append(result, n)
	}
	return result, nil
}

// toInt keeps integers exact; only fractional or float-typed values go through float64.
func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("out of range")
		}
		return int64(x), nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, nil
		}
	case []byte:
		return toInt(string(x))
	case assigner:
		var n int64
		if err := x.AssignTo(&n); err == nil {
			return n, nil
		}
	}

	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) {
		return 0, nil
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	case []byte:
		return toFloat(string(x))
	case assigner:
		var f float64
		if err := x.AssignTo(&f); err != nil {
			return 0, err
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number")
	}
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int:
		return strconv.Itoa(x), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return "", fmt.Errorf("not a string")
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int32:
		return x != 0, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("not a boolean")
	}
}

// fromEpoch guesses the unit of an integer epoch by magnitude.
func fromEpoch(n int64) time.Time {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs < 1e11:
		return time.Unix(n, 0).UTC()
	case abs < 1e14:
		return time.UnixMilli(n).UTC()
	case abs < 1e17:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(0, n).UTC()
	}
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return model.Naive(x), nil
	case int64:
		return fromEpoch(x), nil
	case int32:
		// parquet DATE: days since the epoch
		return time.Unix(int64(x)*24*60*60, 0).UTC(), nil
	case int:
		return fromEpoch(int64(x)), nil
	case float64:
		return fromEpoch(int64(x)), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return model.Naive(t), nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(n), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized time format")
	case []byte:
		return toTime(string(x))
	default:
		return time.Time{}, fmt.Errorf("not a time")
	}
}
