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

// Package plan decides what range of history a ticker needs next.
package plan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ajjensen13/pricehistory/internal/cache"
	"github.com/ajjensen13/pricehistory/internal/model"
)

type Mode string

const (
	Full        Mode = "FULL"
	Incremental Mode = "INCREMENTAL"
	None        Mode = "NONE"
)

// DefaultDeepHistory is the date a complete price history is expected to reach back to.
var DefaultDeepHistory = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// SyncPlan is computed fresh for every sync and never persisted. Start and End are
// inclusive dates; a zero Start on a FULL plan means all available history.
type SyncPlan struct {
	Ticker string
	Kind   model.Kind
	Mode   Mode
	Start  time.Time
	End    time.Time
	Period Period
}

func (p SyncPlan) String() string {
	switch p.Mode {
	case None:
		return fmt.Sprintf("%s %s: up to date", p.Ticker, p.Kind)
	case Full:
		return fmt.Sprintf("%s %s: full (%s)", p.Ticker, p.Kind, p.Period)
	default:
		return fmt.Sprintf("%s %s: %s..%s", p.Ticker, p.Kind, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
	}
}

// Options tune the planner. The zero value plans in UTC against the wall clock
// with the deep history check disabled.
type Options struct {
	// DeepHistory is the threshold the earliest cached record must reach for the cache to
	// count as complete. Zero disables the check.
	DeepHistory time.Time
	Location    *time.Location
	Now         func() time.Time
	// Force plans a FULL fetch regardless of the cache.
	Force bool
}

// Today returns the current calendar date in the configured location, as midnight UTC.
func (o Options) Today() time.Time {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	loc := o.Location
	if loc == nil {
		loc = time.UTC
	}
	t := now().In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Plan decides the fetch for state. A FULL plan for an empty cache fetches the requested
// period; a FULL plan for a cache short of DeepHistory fetches all history. News is never
// NONE: it is refetched from the publish time of the newest cached headline.
func Plan(state cache.State, period Period, opts Options) SyncPlan {
	today := opts.Today()
	result := SyncPlan{Ticker: state.Ticker, Kind: state.Kind, End: today, Period: period}

	full := func() SyncPlan {
		result.Mode = Full
		result.Start = period.Start(today)
		return result
	}

	if opts.Force || state.Empty() {
		return full()
	}

	earliest := model.Day(state.Earliest())
	latest := model.Day(state.Latest())
	if !opts.DeepHistory.IsZero() && earliest.After(model.Day(opts.DeepHistory)) {
		// a shallow cache can only be completed by refetching everything
		period = Max
		result.Period = Max
		return full()
	}
	if state.Kind == model.KindNews {
		// headlines keep arriving after a sync, so start at the newest cached instant
		// and let the merge drop the ones already held
		result.Mode = Incremental
		result.Start = state.Latest()
		return result
	}
	if !latest.Before(today) {
		result.Mode = None
		result.Start = time.Time{}
		result.End = time.Time{}
		return result
	}

	result.Mode = Incremental
	result.Start = latest.AddDate(0, 0, 1)
	return result
}

// Period is a lookback for FULL fetches: max, ytd, or a count of days, weeks, months or years.
type Period struct {
	n    int
	unit string
}

var (
	Max = Period{unit: "max"}
	YTD = Period{unit: "ytd"}

	periodPattern = regexp.MustCompile(`^(\d+)(d|wk|mo|y)$`)
)

// ParsePeriod parses max, ytd, 5d, 2wk, 6mo or 10y. The empty string is max.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "max":
		return Max, nil
	case "ytd":
		return YTD, nil
	}

	m := periodPattern.FindStringSubmatch(s)
	if m == nil {
		return Period{}, fmt.Errorf("invalid period %q (want max, ytd or e.g. 5d, 2wk, 6mo, 1y)", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Period{}, fmt.Errorf("invalid period %q", s)
	}
	return Period{n: n, unit: m[2]}, nil
}

func (p Period) IsMax() bool {
	return p.unit == "" || p.unit == "max"
}

// Start returns the first date covered by p when counting back from today. Zero means all history.
func (p Period) Start(today time.Time) time.Time {
	switch p.unit {
	case "d":
		return today.AddDate(0, 0, -p.n)
	case "wk":
		return today.AddDate(0, 0, -7*p.n)
	case "mo":
		return today.AddDate(0, -p.n, 0)
	case "y":
		return today.AddDate(-p.n, 0, 0)
	case "ytd":
		return time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

func (p Period) String() string {
	switch p.unit {
	case "", "max":
		return "max"
	case "ytd":
		return "ytd"
	default:
		return fmt.Sprintf("%d%s", p.n, p.unit)
	}
}
