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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ajjensen13/gke"
	"github.com/spf13/cobra"

	"github.com/ajjensen13/pricehistory/internal/config"
	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/pipeline"
	"github.com/ajjensen13/pricehistory/internal/util"
)

// commandContext returns a context carrying lg that is canceled on SIGINT or SIGTERM.
func commandContext(lg gke.Logger) (context.Context, func()) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return util.WithLogger(ctx, lg), stop
}

// tickerFlags selects tickers by --ticker, --tickers or --watchlist.
type tickerFlags struct {
	ticker    string
	tickers   []string
	watchlist string
	kind      string
}

func (f *tickerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ticker, "ticker", "", "ticker symbol")
	cmd.Flags().StringSliceVar(&f.tickers, "tickers", nil, "comma separated ticker symbols")
	cmd.Flags().StringVar(&f.watchlist, "watchlist", "", "YAML file listing tickers")
	cmd.Flags().StringVar(&f.kind, "type", "all", "record type: price, news or all")
}

// resolve returns the selected tickers and record kinds. A watchlist type applies unless
// --type was given explicitly.
func (f *tickerFlags) resolve(cmd *cobra.Command) ([]string, []model.Kind, error) {
	var tickers []string
	if f.ticker != "" {
		tickers = append(tickers, f.ticker)
	}
	tickers = append(tickers, f.tickers...)

	kind := f.kind
	if f.watchlist != "" {
		w, err := config.ReadWatchlist(f.watchlist)
		if err != nil {
			return nil, nil, err
		}
		tickers = append(tickers, w.Tickers...)
		if w.Type != "" && !cmd.Flags().Changed("type") {
			kind = w.Type
		}
	}

	kinds, err := model.Kinds(kind)
	if err != nil {
		return nil, nil, err
	}
	return tickers, kinds, nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}

func printReport(w io.Writer, r pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tTYPE\tSTATUS\tMODE\tFETCHED\tADDED\tCACHED\tINSERTED\tUPDATED\tERROR")
	for _, x := range r.Results {
		var msg string
		if err := x.Error(); err != nil {
			msg = err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			x.Ticker, x.Kind, x.Status(), x.Mode, x.Fetched, x.Added, x.Total, x.Inserted, x.Updated, msg)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%s run %s: %d results, %d failed, %d records added in %v\n",
		r.Command, r.RunID, len(r.Results), r.Failed(), r.Added(), r.Finished.Sub(r.Started).Round(time.Millisecond))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
