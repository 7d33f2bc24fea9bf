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
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/pricehistory/internal/warehouse"
)

var (
	queryPrice warehouse.PriceQuery
	queryNews  warehouse.NewsQuery
	queryStart string
	queryEnd   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Read records back from the warehouse",
}

var queryPriceCmd = &cobra.Command{
	Use:   "price TICKER",
	Short: "Print a ticker's daily prices, oldest first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		q := queryPrice
		var err error
		if q.Start, err = parseDateFlag(queryStart); err != nil {
			panic(lg.ErrorErr(err))
		}
		if q.End, err = parseDateFlag(queryEnd); err != nil {
			panic(lg.ErrorErr(err))
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		wh, cleanup, err := openWarehouse(ctx, cfg)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		defer cleanup()

		prices, err := wh.QueryPrices(ctx, args[0], q)
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "DATE\tOPEN\tHIGH\tLOW\tCLOSE\tADJ CLOSE\tVOLUME\tDIVIDENDS\tSPLIT\t")
		for _, p := range prices {
			fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%.4f\t%g\t\n",
				formatDate(p.Date), p.Open, p.High, p.Low, p.Close, p.AdjustedClose, p.Volume, p.Dividends, p.SplitRatio)
		}
		_ = tw.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "%d rows\n", len(prices))
	},
}

var queryNewsCmd = &cobra.Command{
	Use:   "news TICKER",
	Short: "Print a ticker's newest headlines",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		wh, cleanup, err := openWarehouse(ctx, cfg)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		defer cleanup()

		news, err := wh.QueryNews(ctx, args[0], queryNews)
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PUBLISHED\tPUBLISHER\tTITLE\tLINK")
		for _, n := range news {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", formatTime(n.PublishTime), truncate(n.Publisher, 24), truncate(n.Title, 80), n.Link)
		}
		_ = tw.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "%d headlines\n", len(news))
	},
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

func init() {
	queryPriceCmd.Flags().IntVar(&queryPrice.Days, "days", 0, "only the last N days")
	queryPriceCmd.Flags().StringVar(&queryStart, "start", "", "first date, YYYY-MM-DD")
	queryPriceCmd.Flags().StringVar(&queryEnd, "end", "", "last date, YYYY-MM-DD")
	queryPriceCmd.Flags().IntVar(&queryPrice.Limit, "limit", 0, "only the most recent N rows")

	queryNewsCmd.Flags().IntVar(&queryNews.Limit, "limit", warehouse.DefaultNewsLimit, "maximum headlines")
	queryNewsCmd.Flags().IntVar(&queryNews.Days, "days", 0, "only headlines from the last N days")

	queryCmd.AddCommand(queryPriceCmd)
	queryCmd.AddCommand(queryNewsCmd)
	rootCmd.AddCommand(queryCmd)
}
