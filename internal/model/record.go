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

package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind names a record stream. The value doubles as the on-disk directory and file prefix.
type Kind string

const (
	KindPrice Kind = "price-history"
	KindNews  Kind = "news"
)

// Kinds expands a CLI type selector (price, news, all) into record kinds.
func Kinds(selector string) ([]Kind, error) {
	switch strings.ToLower(selector) {
	case "price", string(KindPrice):
		return []Kind{KindPrice}, nil
	case "news":
		return []Kind{KindNews}, nil
	case "", "all":
		return []Kind{KindPrice, KindNews}, nil
	default:
		return nil, fmt.Errorf("unknown record type %q (want price, news or all)", selector)
	}
}

// Key is a record's natural key. For prices ID is the formatted date.
type Key struct {
	Ticker string
	ID     string
}

// Record is implemented by PriceRecord and NewsRecord.
type Record interface {
	Key() Key
	// Time is the record's temporal component, used for ordering and planning.
	Time() time.Time
	Fetched() time.Time
	Kind() Kind
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Naive strips the location from t, keeping the UTC instant.
func Naive(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
