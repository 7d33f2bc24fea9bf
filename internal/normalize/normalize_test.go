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
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/pricehistory/internal/model"
)

func TestNormalize_LegacyPriceColumns(t *testing.T) {
	in := Frame{
		Columns: []string{"TICKER", "DATE", "OPEN_PRICE", "HIGH_PRICE", "LOW_PRICE", "CLOSE_PRICE", "Adj Close", "VOLUME", "DOWNLOAD_TIMESTAMP", "extra"},
		Rows: [][]any{
			{"msft", "2024-01-02", 370.1, 373.2, 369.1, 370.8, 368.9, int64(25258600), "2024-01-03 01:02:03", "x"},
		},
	}

	out, err := Normalize(in, model.KindPrice)
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker", "date", "open", "high", "low", "close", "adjusted_close", "volume", "fetched_at", "extra"}, out.Columns)
	assert.Equal(t, in.Rows, out.Rows, "values are unchanged")

	ps, err := PriceRecords(out)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, model.PriceRecord{
		Ticker:        "MSFT",
		Date:          time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:          370.1,
		High:          373.2,
		Low:           369.1,
		Close:         370.8,
		AdjustedClose: 368.9,
		Volume:        25258600,
		FetchedAt:     time.Date(2024, 1, 3, 1, 2, 3, 0, time.UTC),
	}, ps[0])
}

func TestNormalize_Idempotent(t *testing.T) {
	in := Frame{Columns: []string{"Symbol", "Date", "Open", "High", "Low", "Close", "Volume"}}
	once, err := Normalize(in, model.KindPrice)
	require.NoError(t, err)
	twice, err := Normalize(once, model.KindPrice)
	require.NoError(t, err)
	assert.Equal(t, once.Columns, twice.Columns)
}

func TestNormalize_ExactSpellingWins(t *testing.T) {
	in := Frame{
		Columns: []string{"ticker", "date", "open_price", "open", "high", "low", "close", "volume"},
		Rows:    [][]any{{"A", "2024-01-02", 1.0, 2.0, 3.0, 0.5, 2.5, int64(10)}},
	}
	out, err := Normalize(in, model.KindPrice)
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker", "date", "open", "high", "low", "close", "volume"}, out.Columns)
	assert.Equal(t, []any{"A", "2024-01-02", 2.0, 3.0, 0.5, 2.5, int64(10)}, out.Rows[0])
}

func TestNormalize_Unmappable(t *testing.T) {
	_, err := Normalize(Frame{Columns: []string{"ticker", "date", "open"}}, model.KindPrice)
	assert.ErrorIs(t, err, ErrUnmappableSchema)

	_, err = Normalize(Frame{Columns: []string{"ticker", "title"}}, model.KindNews)
	assert.ErrorIs(t, err, ErrUnmappableSchema)
}

func TestNormalize_NewsAliases(t *testing.T) {
	in := Frame{
		Columns: []string{"Symbol", "uuid", "headline", "source", "url", "providerPublishTime", "type", "thumbnail", "isPremium"},
		Rows: [][]any{
			{"aapl", "abc-123", "Apple ships", "Wire", "https://example.com", int64(1704326400), "STORY", "https://example.com/t.jpg", true},
		},
	}
	out, err := Normalize(in, model.KindNews)
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker", "id", "title", "publisher", "link", "publish_time", "content_type", "thumbnail_url", "is_premium"}, out.Columns)

	ns, err := NewsRecords(out)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "AAPL", ns[0].Ticker)
	assert.Equal(t, "abc-123", ns[0].ID)
	assert.Equal(t, time.Unix(1704326400, 0).UTC(), ns[0].PublishTime)
	assert.True(t, ns[0].IsPremium)
}

func TestPriceRecords_InvalidValue(t *testing.T) {
	in := Frame{
		Columns: []string{"ticker", "date", "open", "high", "low", "close", "volume"},
		Rows:    [][]any{{"A", "2024-01-02", "not-a-number", 1.0, 1.0, 1.0, int64(1)}},
	}
	_, err := PriceRecords(in)
	assert.ErrorIs(t, err, ErrInvalidValue)

	in.Rows = [][]any{{"A", nil, 1.0, 1.0, 1.0, 1.0, int64(1)}}
	_, err = PriceRecords(in)
	assert.ErrorIs(t, err, ErrInvalidValue, "a missing date is rejected")
}

func TestPriceRecords_AdjustedCloseDefaultsToClose(t *testing.T) {
	in := Frame{
		Columns: []string{"ticker", "date", "open", "high", "low", "close", "volume"},
		Rows:    [][]any{{"A", time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), 1.0, 2.0, 0.5, 1.5, int64(7)}},
	}
	ps, err := PriceRecords(in)
	require.NoError(t, err)
	assert.Equal(t, 1.5, ps[0].AdjustedClose)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), ps[0].Date)
}

func TestToInt(t *testing.T) {
	const big = int64(1)<<53 + 1
	tests := []struct {
		in   any
		want int64
	}{
		{big, big},
		{uint64(big), big},
		{"9007199254740993", big},
		{[]byte(" 42 "), 42},
		{int32(7), 7},
		{"1.5e3", 1500},
		{12.9, 12},
		{nil, 0},
		{"", 0},
	}
	for _, tt := range tests {
		got, err := toInt(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}

	_, err := toInt("lots")
	assert.Error(t, err)
	_, err = toInt(uint64(math.MaxUint64))
	assert.Error(t, err)
}

func TestPriceRecords_VolumeAbove2To53(t *testing.T) {
	const volume = int64(1)<<53 + 1
	in := Frame{
		Columns: []string{"ticker", "date", "open", "high", "low", "close", "volume"},
		Rows:    [][]any{{"A", "2024-01-02", 1.0, 1.0, 1.0, 1.0, volume}},
	}
	ps, err := PriceRecords(in)
	require.NoError(t, err)
	assert.Equal(t, volume, ps[0].Volume)
}

func TestToTime(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		in   any
	}{
		{"time", want.In(time.FixedZone("X", 3600))},
		{"unix seconds", want.Unix()},
		{"unix millis", want.UnixMilli()},
		{"unix nanos", want.UnixNano()},
		{"rfc3339", "2024-01-02T03:04:05Z"},
		{"offset", "2024-01-02T04:04:05+01:00"},
		{"naive", "2024-01-02 03:04:05"},
		{"naive T", "2024-01-02T03:04:05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := toTime(tt.in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %v", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	d, err := toTime(int32(19724))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d)

	_, err = toTime("yesterday")
	assert.Error(t, err)
}

func TestRecords(t *testing.T) {
	csv := "\ufeffDate,Open,High,Low,Close,Adj Close,Volume,Symbol\n" +
		"2024-01-02,10,11,9,10.5,10.4,100,abc\n" +
		"2024-01-03,10.5,12,10,11.5,,200,abc\n"
	f, err := ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())

	rs, err := Records(f, model.KindPrice)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	p := rs[1].(model.PriceRecord)
	assert.Equal(t, "ABC", p.Ticker)
	assert.Equal(t, 11.5, p.Close)
	assert.Zero(t, p.AdjustedClose, "an empty cell in a present column stays empty")
	assert.Equal(t, int64(200), p.Volume)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnmappableSchema)
}
