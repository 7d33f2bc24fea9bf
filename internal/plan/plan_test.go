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

package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/pricehistory/internal/cache"
	"github.com/ajjensen13/pricehistory/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func stateWith(dates ...time.Time) cache.State {
	s := cache.State{Ticker: "TEST", Kind: model.KindPrice}
	for _, d := range dates {
		s.Records = append(s.Records, model.PriceRecord{Ticker: "TEST", Date: d})
	}
	return s
}

var opts = Options{
	DeepHistory: DefaultDeepHistory,
	Now:         func() time.Time { return time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC) },
}

func TestPlan_EmptyIsFull(t *testing.T) {
	p := Plan(stateWith(), Max, opts)
	assert.Equal(t, Full, p.Mode)
	assert.True(t, p.Start.IsZero())
	assert.Equal(t, day(2024, 3, 15), p.End)

	oneYear, err := ParsePeriod("1y")
	require.NoError(t, err)
	p = Plan(stateWith(), oneYear, opts)
	assert.Equal(t, Full, p.Mode)
	assert.Equal(t, day(2023, 3, 15), p.Start)
}

func TestPlan_IncrementalStartsAfterLatest(t *testing.T) {
	for _, latest := range []time.Time{day(2024, 3, 14), day(2024, 2, 29), day(2023, 12, 31), day(2010, 1, 1)} {
		p := Plan(stateWith(day(1999, 1, 4), latest), Max, opts)
		assert.Equal(t, Incremental, p.Mode, "latest %v", latest)
		assert.Equal(t, latest.AddDate(0, 0, 1), p.Start, "latest %v", latest)
		assert.Equal(t, day(2024, 3, 15), p.End)
	}
}

func TestPlan_UpToDateIsNone(t *testing.T) {
	for _, latest := range []time.Time{day(2024, 3, 15), day(2024, 3, 16)} {
		p := Plan(stateWith(day(1999, 1, 4), latest), Max, opts)
		assert.Equal(t, None, p.Mode, "latest %v", latest)
	}
}

func TestPlan_ShallowHistoryIsFull(t *testing.T) {
	p := Plan(stateWith(day(2020, 1, 2), day(2024, 3, 14)), Max, opts)
	assert.Equal(t, Full, p.Mode)

	noCheck := opts
	noCheck.DeepHistory = time.Time{}
	p = Plan(stateWith(day(2020, 1, 2), day(2024, 3, 14)), Max, noCheck)
	assert.Equal(t, Incremental, p.Mode)
	assert.Equal(t, day(2024, 3, 15), p.Start)
}

func TestPlan_ShallowHistoryFetchesEverything(t *testing.T) {
	oneYear, err := ParsePeriod("1y")
	require.NoError(t, err)

	p := Plan(stateWith(day(2023, 3, 15), day(2024, 3, 14)), oneYear, opts)
	assert.Equal(t, Full, p.Mode)
	assert.True(t, p.Start.IsZero())
	assert.True(t, p.Period.IsMax())

	// once the refetch reaches the threshold the next run is incremental
	p = Plan(stateWith(day(1999, 1, 4), day(2024, 3, 14)), oneYear, opts)
	assert.Equal(t, Incremental, p.Mode)
	assert.Equal(t, oneYear, p.Period)
}

func TestPlan_Force(t *testing.T) {
	forced := opts
	forced.Force = true
	p := Plan(stateWith(day(1999, 1, 4), day(2024, 3, 15)), Max, forced)
	assert.Equal(t, Full, p.Mode)
}

func TestPlan_Location(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	local := opts
	local.Location = tokyo
	// 18:00 UTC on the 15th is already the 16th in Tokyo
	p := Plan(stateWith(day(1999, 1, 4), day(2024, 3, 15)), Max, local)
	assert.Equal(t, Incremental, p.Mode)
	assert.Equal(t, day(2024, 3, 16), p.Start)
	assert.Equal(t, day(2024, 3, 16), p.End)
}

func TestPlan_NewsUsesPublishTime(t *testing.T) {
	s := cache.State{Ticker: "TEST", Kind: model.KindNews, Records: []model.Record{
		model.NewsRecord{Ticker: "TEST", ID: "a", PublishTime: time.Date(2024, 3, 10, 13, 45, 0, 0, time.UTC)},
	}}
	news := opts
	news.DeepHistory = time.Time{}
	p := Plan(s, Max, news)
	assert.Equal(t, Incremental, p.Mode)
	assert.Equal(t, time.Date(2024, 3, 10, 13, 45, 0, 0, time.UTC), p.Start)
	assert.Equal(t, day(2024, 3, 15), p.End)
}

func TestPlan_NewsFromTodayIsNotNone(t *testing.T) {
	published := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	s := cache.State{Ticker: "TEST", Kind: model.KindNews, Records: []model.Record{
		model.NewsRecord{Ticker: "TEST", ID: "a", PublishTime: published},
	}}
	news := opts
	news.DeepHistory = time.Time{}
	p := Plan(s, Max, news)
	assert.Equal(t, Incremental, p.Mode)
	assert.Equal(t, published, p.Start)
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		start time.Time
	}{
		{"", "max", time.Time{}},
		{"MAX", "max", time.Time{}},
		{"ytd", "ytd", day(2024, 1, 1)},
		{"5d", "5d", day(2024, 3, 10)},
		{"2wk", "2wk", day(2024, 3, 1)},
		{"6mo", "6mo", day(2023, 9, 15)},
		{"10y", "10y", day(2014, 3, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePeriod(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
			assert.Equal(t, tt.start, p.Start(day(2024, 3, 15)))
		})
	}

	for _, bad := range []string{"0d", "1h", "forever", "-1y"} {
		_, err := ParsePeriod(bad)
		assert.Error(t, err, bad)
	}
}
