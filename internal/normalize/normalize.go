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

// Package normalize maps alternate column spellings onto the canonical record schema
// and converts untyped frames into typed records.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ajjensen13/pricehistory/internal/model"
)

// ErrUnmappableSchema is returned when a frame lacks a required column under any known spelling.
var ErrUnmappableSchema = errors.New("unmappable schema")

// Frame is an untyped table. Rows are aligned with Columns.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Index returns the position of column, or -1.
func (f Frame) Index(column string) int {
	for i, c := range f.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Len returns the number of rows.
func (f Frame) Len() int {
	return len(f.Rows)
}

var (
	priceColumns = []string{"ticker", "date", "open", "high", "low", "close", "adjusted_close", "volume", "dividends", "split_ratio", "fetched_at"}
	newsColumns  = []string{"ticker", "id", "title", "summary", "description", "publisher", "link", "publish_time", "display_time", "content_type", "thumbnail_url", "is_premium", "is_hosted", "fetched_at"}

	priceRequired = []string{"ticker", "date", "open", "high", "low", "close", "volume"}
	newsRequired  = []string{"ticker", "id", "title", "publish_time"}
)

// aliases are keyed by squashed spelling (lowercase, letters and digits only).
var (
	commonAliases = map[string]string{
		"symbol":            "ticker",
		"downloadtimestamp": "fetched_at",
		"downloadedat":      "fetched_at",
		"downloadtime":      "fetched_at",
		"fetchtime":         "fetched_at",
		"fetchedtime":       "fetched_at",
	}
	priceAliases = map[string]string{
		"openprice":     "open",
		"highprice":     "high",
		"lowprice":      "low",
		"closeprice":    "close",
		"adjclose":      "adjusted_close",
		"adjustedprice": "adjusted_close",
		"vol":           "volume",
		"dividend":      "dividends",
		"divcash":       "dividends",
		"stocksplits":   "split_ratio",
		"split":         "split_ratio",
		"splitfactor":   "split_ratio",
		"timestamp":     "date",
		"datetime":      "date",
		"tradedate":     "date",
	}
	newsAliases = map[string]string{
		"uuid":                "id",
		"headline":            "title",
		"source":              "publisher",
		"url":                 "link",
		"providerpublishtime": "publish_time",
		"datetime":            "publish_time",
		"published":           "publish_time",
		"publishedat":         "publish_time",
		"type":                "content_type",
		"category":            "content_type",
		"image":               "thumbnail_url",
		"thumbnail":           "thumbnail_url",
		"premium":             "is_premium",
		"hosted":              "is_hosted",
	}
)

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func schema(kind model.Kind) (canonical, required []string, aliases map[string]string, err error) {
	switch kind {
	case model.KindPrice:
		canonical, required, aliases = priceColumns, priceRequired, priceAliases
	case model.KindNews:
		canonical, required, aliases = newsColumns, newsRequired, newsAliases
	default:
		return nil, nil, nil, fmt.Errorf("unknown record kind %q", kind)
	}
	return
}

// Canonical returns the canonical column name for column, or "" if it is not recognized.
func Canonical(kind model.Kind, column string) string {
	canonical, _, aliases, err := schema(kind)
	if err != nil {
		return ""
	}
	sq := squash(column)
	for _, c := range canonical {
		if squash(c) == sq {
			return c
		}
	}
	if c, ok := aliases[sq]; ok {
		return c
	}
	return commonAliases[sq]
}

// Columns returns the canonical column order for kind.
func Columns(kind model.Kind) []string {
	canonical, _, _, _ := schema(kind)
	return append([]string(nil), canonical...)
}

// Normalize renames recognized columns to their canonical names. Values are untouched.
// Unrecognized columns are kept under their original name. When two columns map to the
// same canonical name the exact spelling wins, otherwise the first one does.
func Normalize(f Frame, kind model.Kind) (Frame, error) {
	_, required, _, err := schema(kind)
	if err != nil {
		return Frame{}, err
	}

	mapped := make([]string, len(f.Columns))
	taken := make(map[string]bool, len(f.Columns))
	// exact spellings first so they win over aliases
	for i, c := range f.Columns {
		if canon := Canonical(kind, c); canon != "" && squash(canon) == squash(c) && !taken[canon] {
			mapped[i] = canon
			taken[canon] = true
		}
	}
	for i, c := range f.Columns {
		if mapped[i] != "" {
			continue
		}
		if canon := Canonical(kind, c); canon != "" && !taken[canon] {
			mapped[i] = canon
			taken[canon] = true
		}
	}

	result := Frame{Rows: f.Rows}
	keep := make([]int, 0, len(f.Columns))
	for i, c := range f.Columns {
		switch {
		case mapped[i] != "":
			result.Columns = append(result.Columns, mapped[i])
		case Canonical(kind, c) != "":
			continue // duplicate spelling of a column already mapped
		default:
			result.Columns = append(result.Columns, c)
		}
		keep = append(keep, i)
	}

	var missing []string
	for _, r := range required {
		if !taken[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return Frame{}, fmt.Errorf("%s frame with columns %v is missing %v: %w", kind, f.Columns, missing, ErrUnmappableSchema)
	}

	if len(keep) != len(f.Columns) {
		result.Rows = make([][]any, len(f.Rows))
		for r, row := range f.Rows {
			out := make([]any, len(keep))
			for j, i := range keep {
				if i < len(row) {
					out[j] = row[i]
				}
			}
			result.Rows[r] = out
		}
	}
	return result, nil
}

// Records normalizes f and converts it into typed records of kind.
func Records(f Frame, kind model.Kind) ([]model.Record, error) {
	n, err := Normalize(f, kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case model.KindPrice:
		ps, err := PriceRecords(n)
		if err != nil {
			return nil, err
		}
		result := make([]model.Record, len(ps))
		for i, p := range ps {
			result[i] = p
		}
		return result, nil
	default:
		ns, err := NewsRecords(n)
		if err != nil {
			return nil, err
		}
		result := make([]model.Record, len(ns))
		for i, n := range ns {
			result[i] = n
		}
		return result, nil
	}
}
