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

// NewsRecord is one article attached to a ticker. ID is the source's opaque identifier.
type NewsRecord struct {
	Ticker       string    `yaml:"ticker,omitempty" json:"ticker,omitempty"`
	ID           string    `yaml:"id,omitempty" json:"id,omitempty"`
	Title        string    `yaml:"title,omitempty" json:"title,omitempty"`
	Summary      string    `yaml:"summary,omitempty" json:"summary,omitempty"`
	Description  string    `yaml:"description,omitempty" json:"description,omitempty"`
	Publisher    string    `yaml:"publisher,omitempty" json:"publisher,omitempty"`
	Link         string    `yaml:"link,omitempty" json:"link,omitempty"`
	PublishTime  time.Time `yaml:"publish_time,omitempty" json:"publish_time,omitempty"`
	DisplayTime  time.Time `yaml:"display_time,omitempty" json:"display_time,omitempty"`
	ContentType  string    `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	ThumbnailURL string    `yaml:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	IsPremium    bool      `yaml:"is_premium,omitempty" json:"is_premium,omitempty"`
	IsHosted     bool      `yaml:"is_hosted,omitempty" json:"is_hosted,omitempty"`
	FetchedAt    time.Time `yaml:"fetched_at,omitempty" json:"fetched_at,omitempty"`
}

func (n NewsRecord) Key() Key {
	return Key{Ticker: n.Ticker, ID: n.ID}
}

func (n NewsRecord) Time() time.Time {
	return n.PublishTime
}

func (n NewsRecord) Fetched() time.Time {
	return n.FetchedAt
}

func (NewsRecord) Kind() Kind {
	return KindNews
}
