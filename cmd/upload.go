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

	"github.com/spf13/cobra"
)

var (
	uploadOpts    tickerFlags
	uploadWorkers int
)

var uploadCmd = &cobra.Command{
	Use:   "upload [TICKER...]",
	Short: "Merge local snapshots into the warehouse",
	Long:  `upload merges every record of each selected snapshot into the warehouse. Without tickers every cached ticker is uploaded.`,
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		tickers, kinds, err := uploadOpts.resolve(cmd)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		tickers = append(tickers, args...)

		opts, err := pipelineOptions(cfg, syncFlags{workers: uploadWorkers})
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		p, cleanup, err := warehousePipeline(ctx, lg, cfg, opts)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		defer cleanup()

		report := p.Upload(ctx, tickers, kinds)
		printReport(cmd.OutOrStdout(), report)
		if len(report.Results) > 0 && report.Failed() == len(report.Results) {
			panic(lg.ErrorErr(fmt.Errorf("upload failed for all %d snapshots", len(report.Results))))
		}
	},
}

func init() {
	uploadOpts.register(uploadCmd)
	uploadCmd.Flags().IntVar(&uploadWorkers, "workers", 0, "snapshots uploaded in parallel")
	rootCmd.AddCommand(uploadCmd)
}
