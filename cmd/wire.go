//go:build wireinject
// +build wireinject

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

	"github.com/ajjensen13/gke"
	"github.com/golang-migrate/migrate/v4"
	"github.com/google/wire"

	"github.com/ajjensen13/pricehistory/internal/config"
	"github.com/ajjensen13/pricehistory/internal/pipeline"
	"github.com/ajjensen13/pricehistory/internal/recorder"
	"github.com/ajjensen13/pricehistory/internal/warehouse"
)

var localSet = wire.NewSet(provideStore, provideSource, provideBackoffNotifier, provideRetryPolicy, provideDownloader, provideRecorder, providePipelineRecorder, providePipeline)

var warehouseSet = wire.NewSet(provideDbConnPool, provideWarehouse)

func logger() (lg gke.Logger, cleanup func()) {
	panic(wire.Build(provideLogger))
}

func loadConfig(ctx context.Context) (cfg config.Config, err error) {
	panic(wire.Build(provideConfig))
}

func localPipeline(ctx context.Context, lg gke.Logger, cfg config.Config, opts pipeline.Options) (p *pipeline.Pipeline, cleanup func(), err error) {
	panic(wire.Build(localSet, provideNoWarehouse))
}

func warehousePipeline(ctx context.Context, lg gke.Logger, cfg config.Config, opts pipeline.Options) (p *pipeline.Pipeline, cleanup func(), err error) {
	panic(wire.Build(localSet, warehouseSet, wire.Bind(new(pipeline.Syncer), new(*warehouse.Warehouse))))
}

func openWarehouse(ctx context.Context, cfg config.Config) (w *warehouse.Warehouse, cleanup func(), err error) {
	panic(wire.Build(warehouseSet))
}

func openRecorder(ctx context.Context, cfg config.Config) (r recorder.Recorder, cleanup func(), err error) {
	panic(wire.Build(provideRecorder))
}

func migrator(lg gke.Logger, cfg config.Config) (m *migrate.Migrate, err error) {
	panic(wire.Build(provideMigrator))
}
