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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/pricehistory/internal/cache"
	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/recorder"
	"github.com/ajjensen13/pricehistory/internal/warehouse"
)

var (
	summaryKind    string
	summaryHistory int
)

var summaryCmd = &cobra.Command{
	Use:   "summary TICKER...",
	Short: "Describe what is cached and uploaded for tickers",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		kinds, err := model.Kinds(summaryKind)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		store := provideStore(cfg)

		var wh *warehouse.Warehouse
		if cfg.Warehouse.Enabled() {
			w, cleanup, err := openWarehouse(ctx, cfg)
			if err != nil {
				lg.Warningf("warehouse unavailable, showing local snapshots only: %v", err)
			} else {
				defer cleanup()
				wh = w
			}
		}

		rec, cleanup, err := openRecorder(ctx, cfg)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		for _, ticker := range args {
			if err := printSummary(ctx, out, store, wh, rec, model.NormalizeTicker(ticker), kinds); err != nil {
				panic(lg.ErrorErr(err))
			}
		}
	},
}

func printSummary(ctx context.Context, out io.Writer, store *cache.Store, wh *warehouse.Warehouse, rec recorder.Recorder, ticker string, kinds []model.Kind) error {
	fmt.Fprintf(out, "%s\n", ticker)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  TYPE\tSNAPSHOT\tRECORDS\tEARLIEST\tLATEST\tMODIFIED\tWAREHOUSE ROWS\tWAREHOUSE LATEST")
	for _, kind := range kinds {
		s, err := store.Summarize(ticker, kind)
		if err != nil {
			fmt.Fprintf(tw, "  %s\t%s\t%v\t\t\t\t\t\n", kind, s.Path, err)
			continue
		}
		snapshot := "-"
		if s.Exists {
			snapshot = fmt.Sprintf("%d KiB", (s.Size+1023)/1024)
		}

		rows, latest := "-", "-"
		if wh != nil {
			p, err := wh.Presence(ctx, ticker, kind)
			switch {
			case err != nil:
				rows = err.Error()
			case p.TableExists:
				rows, latest = fmt.Sprint(p.Rows), formatDate(p.Latest)
			default:
				rows = "no table"
			}
		}
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			kind, snapshot, s.Records, formatDate(s.Earliest), formatDate(s.Latest), formatTime(s.Modified), rows, latest)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if summaryHistory <= 0 {
		return nil
	}
	history, err := rec.History(ctx, ticker, summaryHistory)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		fmt.Fprintln(out, "  recent runs")
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range history {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t+%d\t%s\n", formatTime(e.Started), e.Command, e.Kind, e.Mode, e.Status, e.Added, truncate(e.Error, 60))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if wh == nil {
		return nil
	}
	syncs, err := wh.RecentRuns(ctx, ticker, summaryHistory)
	if err != nil {
		return err
	}
	return printSyncs(out, syncs)
}

func printSyncs(out io.Writer, syncs []warehouse.SyncInfo) error {
	if len(syncs) == 0 {
		return nil
	}
	fmt.Fprintln(out, "  warehouse syncs")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range syncs {
		fmt.Fprintf(tw, "  %s\t%s\t%s\tstaged %d\tinserted %d\tupdated %d\t%s\n",
			formatTime(s.Started), s.Kind, s.Table, s.Staged, s.Inserted, s.Updated, s.Finished.Sub(s.Started).Round(time.Millisecond))
	}
	return tw.Flush()
}

func init() {
	summaryCmd.Flags().StringVar(&summaryKind, "type", "all", "record type: price, news or all")
	summaryCmd.Flags().IntVar(&summaryHistory, "history", 5, "recent runs to show from the run ledger")
	rootCmd.AddCommand(summaryCmd)
}
