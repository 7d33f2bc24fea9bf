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
	"time"
)

const dateLayout = "2006-01-02"

// PriceRecord is one daily bar for a ticker. Date is midnight UTC of the trading day.
type PriceRecord struct {
	Ticker        string    `yaml:"ticker,omitempty" json:"ticker,omitempty"`
	Date          time.Time `yaml:"date,omitempty" json:"date,omitempty"`
	Open          float64   `yaml:"open,omitempty" json:"open,omitempty"`
	High          float64   `yaml:"high,omitempty" json:"high,omitempty"`
	Low           float64   `yaml:"low,omitempty" json:"low,omitempty"`
	Close         float64   `yaml:"close,omitempty" json:"close,omitempty"`
	AdjustedClose float64   `yaml:"adjusted_close,omitempty" json:"adjusted_close,omitempty"`
	Volume        int64     `yaml:"volume,omitempty" json:"volume,omitempty"`
	Dividends     float64   `yaml:"dividends,omitempty" json:"dividends,omitempty"`
	SplitRatio    float64   `yaml:"split_ratio,omitempty" json:"split_ratio,omitempty"`
	FetchedAt     time.Time `yaml:"fetched_at,omitempty" json:"fetched_at,omitempty"`
}

func (p PriceRecord) Key() Key {
	return Key{Ticker: p.Ticker, ID: p.Date.Format(dateLayout)}
}

func (p PriceRecord) Time() time.Time {
	return p.Date
}

func (p PriceRecord) Fetched() time.Time {
	return p.FetchedAt
}

func (PriceRecord) Kind() Kind {
	return KindPrice
}
