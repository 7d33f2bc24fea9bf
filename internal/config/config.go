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

// Package config reads pricehistory settings from the environment.
package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/ajjensen13/pricehistory/internal/model"
)

// Prefix is prepended to every variable name.
const Prefix = "PRICEHISTORY_"

type Config struct {
	Warehouse Warehouse `env:", prefix=WAREHOUSE_"`
	Cache     Cache     `env:", prefix=CACHE_"`
	Source    Source    `env:", prefix=SOURCE_"`
	Sync      Sync      `env:", prefix=SYNC_"`
}

// Warehouse holds the connection parameters for the Postgres warehouse. Either URL or
// Account must be set for uploads to happen.
type Warehouse struct {
	URL        string `env:"URL"`
	Account    string `env:"ACCOUNT"`
	User       string `env:"USER"`
	Password   string `env:"PASSWORD"`
	Name       string `env:"NAME, default=pricehistory"`
	Database   string `env:"DATABASE"`
	Schema     string `env:"SCHEMA, default=public"`
	Role       string `env:"ROLE"`
	PriceTable string `env:"PRICE_TABLE, default=stock_price_history"`
	NewsTable  string `env:"NEWS_TABLE, default=stock_news"`
	AutoCreate bool   `env:"AUTO_CREATE_TABLES, default=true"`
	AutoUpload bool   `env:"AUTO_UPLOAD, default=true"`
	Migrations string `env:"MIGRATIONS, default=file://migrations"`
}

type Cache struct {
	Dir string `env:"DIR, default=data"`
	// Ledger is the run ledger database, relative to Dir. Empty disables it.
	Ledger string `env:"LEDGER, default=runs.db"`
}

type Source struct {
	Name    string        `env:"NAME, default=yahoo"`
	APIKey  string        `env:"API_KEY"`
	BaseURL string        `env:"BASE_URL"`
	Delay   time.Duration `env:"DELAY, default=500ms"`
}

type Sync struct {
	Workers       int           `env:"WORKERS, default=4"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS, default=3"`
	RetryDelay    time.Duration `env:"RETRY_DELAY, default=2s"`
	DeepHistory   string        `env:"DEEP_HISTORY, default=2000-01-01"`
	Timezone      string        `env:"TIMEZONE, default=UTC"`
	MaxNews       int           `env:"MAX_NEWS, default=100"`
	Period        string        `env:"PERIOD, default=max"`
	Schedule      string        `env:"SCHEDULE, default=0 18 * * 1-5"`
}

// LoadDotenv loads .env files into the environment without overriding variables that are
// already set. ENV_FILE names a single file to load instead of ./.env; NO_DOTENV=1 skips
// loading entirely.
func LoadDotenv() error {
	if os.Getenv("NO_DOTENV") == "1" {
		return nil
	}
	if f := os.Getenv("ENV_FILE"); f != "" {
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration from l.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(Prefix, l),
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Source.Name) {
	case "yahoo":
	case "finnhub":
		if c.Source.APIKey == "" {
			return fmt.Errorf("invalid configuration: %sSOURCE_API_KEY is required for finnhub", Prefix)
		}
	default:
		return fmt.Errorf("invalid configuration: unknown source %q", c.Source.Name)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("invalid configuration: %sSYNC_WORKERS must be positive", Prefix)
	}
	if _, err := c.Sync.Location(); err != nil {
		return err
	}
	if _, err := c.Sync.DeepHistoryDate(); err != nil {
		return err
	}
	return nil
}

// Enabled reports whether warehouse connection parameters were supplied.
func (w Warehouse) Enabled() bool {
	return w.URL != "" || w.Account != ""
}

// DSN returns a pgx connection string. URL wins when set; otherwise one is built from the
// individual parameters.
func (w Warehouse) DSN() string {
	if w.URL != "" {
		return w.URL
	}
	u := url.URL{Scheme: "postgres", Host: w.Account, Path: "/" + w.Database}
	switch {
	case w.User != "" && w.Password != "":
		u.User = url.UserPassword(w.User, w.Password)
	case w.User != "":
		u.User = url.User(w.User)
	}
	q := url.Values{}
	if w.Name != "" {
		q.Set("application_name", w.Name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// LedgerPath returns the run ledger path, or "" when the ledger is disabled.
func (c Cache) LedgerPath() string {
	if c.Ledger == "" || filepath.IsAbs(c.Ledger) {
		return c.Ledger
	}
	return filepath.Join(c.Dir, c.Ledger)
}

func (s Sync) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// DeepHistoryDate parses DeepHistory. An empty value or "none" disables the check.
func (s Sync) DeepHistoryDate() (time.Time, error) {
	switch strings.ToLower(s.DeepHistory) {
	case "", "none":
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s.DeepHistory)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid configuration: deep history %q: %w", s.DeepHistory, err)
	}
	return model.Day(t), nil
}
