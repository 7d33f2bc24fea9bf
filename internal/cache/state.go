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
	"sort"
	"time"

	"github.com/ajjensen13/pricehistory/internal/model"
)

// State is the cached record set for one ticker and kind: unique keys, ascending by time.
type State struct {
	Ticker  string
	Kind    model.Kind
	Records []model.Record
}

func (s State) Empty() bool {
	return len(s.Records) == 0
}

func (s State) Len() int {
	return len(s.Records)
}

// Earliest returns the temporal component of the first record, or the zero time.
func (s State) Earliest() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Records[0].Time()
}

// Latest returns the temporal component of the last record, or the zero time.
func (s State) Latest() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Records[len(s.Records)-1].Time()
}

// Merge concatenates existing and incoming, keeps one record per natural key and sorts
// the result by time. The most recently fetched version of a key wins; on a tie the
// incoming record wins.
func Merge(existing, incoming []model.Record) []model.Record {
	byKey := make(map[model.Key]model.Record, len(existing)+len(incoming))
	for _, r := range existing {
		if cur, ok := byKey[r.Key()]; ok && cur.Fetched().After(r.Fetched()) {
			continue
		}
		byKey[r.Key()] = r
	}
	for _, r := range incoming {
		if cur, ok := byKey[r.Key()]; ok && cur.Fetched().After(r.Fetched()) {
			continue
		}
		byKey[r.Key()] = r
	}

	result := make([]model.Record, 0, len(byKey))
	for _, r := range byKey {
		result = append(result, r)
	}
	sortRecords(result)
	return result
}

func sortRecords(rs []model.Record) {
	sort.Slice(rs, func(i, j int) bool {
		ti, tj := rs[i].Time(), rs[j].Time()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		ki, kj := rs[i].Key(), rs[j].Key()
		if ki.Ticker != kj.Ticker {
			return ki.Ticker < kj.Ticker
		}
		return ki.ID < kj.ID
	})
}
