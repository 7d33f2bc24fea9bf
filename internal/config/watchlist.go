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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajjensen13/pricehistory/internal/model"
)

// Watchlist is a YAML list of tickers to sync, either
//
//	tickers: [MSFT, AAPL]
//
// or a bare sequence.
type Watchlist struct {
	Tickers []string `yaml:"tickers"`
	// Type optionally restricts the record kinds: price, news or all.
	Type string `yaml:"type"`
}

func ReadWatchlist(path string) (Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Watchlist{}, fmt.Errorf("failed to read watchlist: %w", err)
	}

	var w Watchlist
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return Watchlist{}, fmt.Errorf("failed to parse watchlist %s: %w", path, err)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		err = node.Content[0].Decode(&w.Tickers)
	} else {
		err = node.Decode(&w)
	}
	if err != nil {
		return Watchlist{}, fmt.Errorf("failed to parse watchlist %s: %w", path, err)
	}

	seen := make(map[string]bool, len(w.Tickers))
	tickers := w.Tickers[:0]
	for _, t := range w.Tickers {
		t = model.NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	w.Tickers = tickers
	return w, nil
}
