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

// Package recorder keeps a local ledger of pipeline runs.
package recorder

import (
	"context"

	"github.com/ajjensen13/pricehistory/internal/pipeline"
)

type Recorder interface {
	pipeline.Recorder
	History(ctx context.Context, ticker string, limit int) ([]Entry, error)
	Close() error
}

var (
	_ Recorder = (*Ledger)(nil)
	_ Recorder = Noop{}
)
