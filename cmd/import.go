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
	"os"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/pricehistory/internal/model"
)

var (
	importTicker string
	importKind   string
)

var importCmd = &cobra.Command{
	Use:   "import FILE.csv",
	Short: "Merge a CSV export into a ticker's snapshot",
	Long: `import reads a CSV file of price or news records, maps legacy column names onto the
snapshot schema and merges the records into the ticker's snapshot.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		kinds, err := model.Kinds(importKind)
		if err == nil && len(kinds) != 1 {
			err = fmt.Errorf("--type must be price or news, got %q", importKind)
		}
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		opts, err := pipelineOptions(cfg, syncFlags{})
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		p, cleanup, err := localPipeline(ctx, lg, cfg, opts)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		defer cleanup()

		f, err := os.Open(args[0])
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		defer f.Close()

		r, err := p.Import(ctx, importTicker, kinds[0], f)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: imported %d records, %d new, %d cached\n", r.Ticker, r.Kind, r.Fetched, r.Added, r.Total)
	},
}

func init() {
	importCmd.Flags().StringVar(&importTicker, "ticker", "", "ticker the records belong to")
	importCmd.Flags().StringVar(&importKind, "type", "price", "record type: price or news")
	_ = importCmd.MarkFlagRequired("ticker")
	rootCmd.AddCommand(importCmd)
}
