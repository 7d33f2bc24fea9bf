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
	"strings"
	"time"

	"github.com/ajjensen13/gke"
	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ajjensen13/pricehistory/internal/cache"
	"github.com/ajjensen13/pricehistory/internal/config"
	"github.com/ajjensen13/pricehistory/internal/download"
	"github.com/ajjensen13/pricehistory/internal/extract"
	"github.com/ajjensen13/pricehistory/internal/pipeline"
	"github.com/ajjensen13/pricehistory/internal/recorder"
	"github.com/ajjensen13/pricehistory/internal/retry"
	"github.com/ajjensen13/pricehistory/internal/warehouse"
)

var errNoWarehouse = errors.New("no warehouse configured: set " + config.Prefix + "WAREHOUSE_URL or " + config.Prefix + "WAREHOUSE_ACCOUNT")

func provideConfig(ctx context.Context) (config.Config, error) {
	if err := config.LoadDotenv(); err != nil {
		return config.Config{}, err
	}
	return config.Load(ctx)
}

func provideStore(cfg config.Config) *cache.Store {
	return cache.NewStore(cfg.Cache.Dir)
}

func provideSource(cfg config.Config) (extract.Source, error) {
	switch strings.ToLower(cfg.Source.Name) {
	case "finnhub":
		return extract.NewFinnhub(cfg.Source.APIKey, cfg.Source.BaseURL, cfg.Source.Delay), nil
	case "yahoo":
		y := extract.NewYahoo(nil, cfg.Source.Delay)
		if cfg.Source.BaseURL != "" {
			y.ChartURL, y.SearchURL = cfg.Source.BaseURL, cfg.Source.BaseURL
		}
		return y, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source.Name)
	}
}

func provideBackoffNotifier(lg gke.Logger) backoff.Notify {
	return func(err error, duration time.Duration) {
		if errors.Is(err, extract.ErrToManyRequests) {
			lg.Info(gke.NewFmtMsgData("request exceeded rate limit, waiting %v before retrying: %v", duration, err))
			return
		}
		lg.Warning(gke.NewFmtMsgData("request failed, waiting %v before retrying: %v", duration, err))
	}
}

func provideRetryPolicy(cfg config.Config, notify backoff.Notify) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Sync.RetryAttempts,
		BaseDelay:   cfg.Sync.RetryDelay,
		Retryable:   extract.Retryable,
		Notify:      notify,
	}
}

func provideDownloader(source extract.Source, policy retry.Policy, cfg config.Config) *download.Downloader {
	return download.New(source, policy, cfg.Sync.MaxNews)
}

func provideDbConnPool(ctx context.Context, cfg config.Config) (ret *pgxpool.Pool, cleanup func(), err error) {
	if !cfg.Warehouse.Enabled() {
		return nil, func() {}, errNoWarehouse
	}

	pc, err := pgxpool.ParseConfig(cfg.Warehouse.DSN())
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to parse data source name: %w", err)
	}
	if cfg.Warehouse.Name != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.Warehouse.Name
	}
	if role := cfg.Warehouse.Role; role != "" {
		pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET ROLE "+pgx.Identifier{role}.Sanitize())
			return err
		}
	}

	pool, err := pgxpool.ConnectConfig(ctx, pc)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to open database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, pool.Close, nil
}

func provideWarehouse(pool *pgxpool.Pool, cfg config.Config) *warehouse.Warehouse {
	return warehouse.New(pool, warehouse.Options{
		Schema:     cfg.Warehouse.Schema,
		PriceTable: cfg.Warehouse.PriceTable,
		NewsTable:  cfg.Warehouse.NewsTable,
		AutoCreate: cfg.Warehouse.AutoCreate,
	})
}

// provideNoWarehouse stands in for the warehouse when nothing is uploaded.
func provideNoWarehouse() pipeline.Syncer {
	return nil
}

func provideRecorder(ctx context.Context, cfg config.Config) (recorder.Recorder, func(), error) {
	path := cfg.Cache.LedgerPath()
	if path == "" {
		return recorder.Noop{}, func() {}, nil
	}
	if err := ensureDir(path); err != nil {
		return nil, func() {}, err
	}

	l, err := recorder.Open(ctx, path)
	if err != nil {
		return nil, func() {}, err
	}
	return l, func() { _ = l.Close() }, nil
}

func providePipelineRecorder(r recorder.Recorder) pipeline.Recorder {
	return r
}

func providePipeline(store *cache.Store, d *download.Downloader, wh pipeline.Syncer, rec pipeline.Recorder, opts pipeline.Options) *pipeline.Pipeline {
	return pipeline.New(store, d, wh, rec, opts)
}

func provideLogger() (lg gke.Logger, cleanup func()) {
	lg, cleanup, err := gke.NewLogger(context.Background())
	if err != nil {
		panic(err)
	}

	gke.LogEnv(lg)
	gke.LogMetadata(lg)

	return lg, cleanup
}

func provideMigrator(lg gke.Logger, cfg config.Config) (m *migrate.Migrate, err error) {
	if !cfg.Warehouse.Enabled() {
		return nil, errNoWarehouse
	}
	m, err = migrate.New(cfg.Warehouse.Migrations, cfg.Warehouse.DSN())
	if err != nil {
		return nil, err
	}
	m.Log = migrationLogger{lg}
	return m, err
}

type migrationLogger struct {
	gke.Logger
}

func (m migrationLogger) Printf(format string, v ...interface{}) {
	m.Defaultf(format, v...)
}

func (m migrationLogger) Verbose() bool {
	return false
}
