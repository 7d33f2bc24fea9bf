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

	"github.com/ajjensen13/pricehistory/internal/model"
)

var listKind string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickers with a local snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, stop := commandContext(lg)
		defer stop()

		cfg, err := loadConfig(ctx)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		kinds, err := model.Kinds(listKind)
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		store := provideStore(cfg)
		fmt.Fprintf(cmd.OutOrStdout(), "cache %s\n", store.Root())
		for _, kind := range kinds {
			tickers, err := store.Tickers(kind)
			if err != nil {
				panic(lg.ErrorErr(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", kind, len(tickers))
			for _, t := range tickers {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", t)
			}
		}
	},
}

func init() {
	listCmd.Flags().StringVar(&listKind, "type", "all", "record type: price, news or all")
	rootCmd.AddCommand(listCmd)
}
