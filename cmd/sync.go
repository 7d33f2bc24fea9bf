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
	"errors"
	"fmt"

	"github.com/ajjensen13/gke"
	"github.com/spf13/cobra"

	"github.com/ajjensen13/pricehistory/internal/config"
	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/pipeline"
	"github.com/ajjensen13/pricehistory/internal/plan"
)

type syncFlags struct {
	tickerFlags
	period   string
	maxItems int
	noUpload bool
	force    bool
	workers  int
}

var syncOpts syncFlags

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch what is missing from each ticker's snapshot and upload it",
	Long: `sync plans each ticker against its local snapshot: an empty or shallow snapshot is
fetched in full, a stale one from the day after its latest record, and an up to date one
not at all. New records are merged into the snapshot and, unless --no-upload is given or
uploads are disabled, merged into the warehouse.

A ticker that fails is reported and does not stop the others.`,
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		if syncOpts.maxItems > 0 {
			cfg.Sync.MaxNews = syncOpts.maxItems
		}

		tickers, kinds, err := syncOpts.resolve(cmd)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		tickers = append(tickers, args...)
		if len(tickers) == 0 {
			panic(lg.ErrorErr(errors.New("no tickers given: use --ticker, --tickers or --watchlist")))
		}

		opts, err := pipelineOptions(cfg, syncOpts)
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		report, err := runSync(ctx, lg, cfg, opts, tickers, kinds)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		printReport(cmd.OutOrStdout(), report)
		if report.AllFailed() {
			panic(lg.ErrorErr(fmt.Errorf("sync failed for all %d tickers", len(report.Results))))
		}
	},
}

// pipelineOptions combines configuration with command line overrides.
func pipelineOptions(cfg config.Config, f syncFlags) (pipeline.Options, error) {
	periodName := cfg.Sync.Period
	if f.period != "" {
		periodName = f.period
	}
	period, err := plan.ParsePeriod(periodName)
	if err != nil {
		return pipeline.Options{}, err
	}
	loc, err := cfg.Sync.Location()
	if err != nil {
		return pipeline.Options{}, err
	}
	deep, err := cfg.Sync.DeepHistoryDate()
	if err != nil {
		return pipeline.Options{}, err
	}
	workers := cfg.Sync.Workers
	if f.workers > 0 {
		workers = f.workers
	}

	return pipeline.Options{
		Period:  period,
		Workers: workers,
		Upload:  cfg.Warehouse.AutoUpload && cfg.Warehouse.Enabled() && !f.noUpload,
		Plan: plan.Options{
			DeepHistory: deep,
			Location:    loc,
			Force:       f.force,
		},
	}, nil
}

func runSync(ctx context.Context, lg gke.Logger, cfg config.Config, opts pipeline.Options, tickers []string, kinds []model.Kind) (pipeline.Report, error) {
	build := localPipeline
	if opts.Upload {
		build = warehousePipeline
	}
	p, cleanup, err := build(ctx, lg, cfg, opts)
	if err != nil {
		return pipeline.Report{}, err
	}
	defer cleanup()

	lg.Defaultf("syncing %d tickers (%v), upload=%v", len(tickers), kinds, opts.Upload)
	return p.Run(ctx, tickers, kinds), nil
}

func (f *syncFlags) register(cmd *cobra.Command) {
	f.tickerFlags.register(cmd)
	cmd.Flags().StringVar(&f.period, "period", "", "history to fetch when a snapshot is empty: max, ytd, 30d, 6mo, 5y, ...")
	cmd.Flags().IntVar(&f.maxItems, "max-items", 0, "maximum news items per ticker")
	cmd.Flags().BoolVar(&f.noUpload, "no-upload", false, "only update local snapshots")
	cmd.Flags().BoolVar(&f.force, "force", false, "fetch the full period regardless of the snapshot")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "tickers fetched in parallel")
}

func init() {
	syncOpts.register(syncCmd)
	rootCmd.AddCommand(syncCmd)
}
