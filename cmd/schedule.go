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
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	scheduleOpts syncFlags
	scheduleSpec string
	scheduleNow  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sync on a cron schedule until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		if scheduleOpts.maxItems > 0 {
			cfg.Sync.MaxNews = scheduleOpts.maxItems
		}
		if scheduleSpec != "" {
			cfg.Sync.Schedule = scheduleSpec
		}

		tickers, kinds, err := scheduleOpts.resolve(cmd)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		tickers = append(tickers, args...)
		if len(tickers) == 0 && scheduleOpts.watchlist == "" {
			panic(lg.ErrorErr(errors.New("no tickers given: use --ticker, --tickers or --watchlist")))
		}

		opts, err := pipelineOptions(cfg, scheduleOpts)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		loc, err := cfg.Sync.Location()
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		run := func() {
			// the watchlist is reread so edits apply to the next run
			tickers, kinds := tickers, kinds
			if scheduleOpts.watchlist != "" {
				t, k, err := scheduleOpts.resolve(cmd)
				if err != nil {
					lg.Warningf("keeping previous watchlist: %v", err)
				} else {
					tickers, kinds = append(t, args...), k
				}
			}
			report, err := runSync(ctx, lg, cfg, opts, tickers, kinds)
			if err != nil {
				_ = lg.ErrorErr(err)
				return
			}
			printReport(cmd.OutOrStdout(), report)
		}

		c := cron.New(cron.WithLocation(loc))
		if _, err := c.AddFunc(cfg.Sync.Schedule, run); err != nil {
			panic(lg.ErrorErr(err))
		}
		c.Start()
		lg.Defaultf("scheduled sync %q (%s)", cfg.Sync.Schedule, loc)

		if scheduleNow {
			run()
		}

		<-ctx.Done()
		lg.Defaultf("stopping scheduler")
		<-c.Stop().Done()
	},
}

func init() {
	scheduleOpts.register(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "cron expression, overrides PRICEHISTORY_SYNC_SCHEDULE")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "also sync once at startup")
	rootCmd.AddCommand(scheduleCmd)
}
