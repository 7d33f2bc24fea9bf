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

// Package cache keeps one columnar snapshot file per ticker and record kind.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/ajjensen13/pricehistory/internal/model"
	"github.com/ajjensen13/pricehistory/internal/normalize"
)

// ErrCorruptCache is returned when a snapshot file exists but cannot be read.
var ErrCorruptCache = errors.New("corrupt cache file")

const (
	fileExt       = ".parquet"
	lockExt       = ".lock"
	lockRetry     = 50 * time.Millisecond
	readBatchSize = 256
)

// Store reads and writes snapshots under <root>/<kind>/<TICKER>/<kind>-<TICKER>.parquet.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

// Path returns the snapshot path for ticker and kind.
func (s *Store) Path(ticker string, kind model.Kind) string {
	ticker = model.NormalizeTicker(ticker)
	return filepath.Join(s.root, string(kind), ticker, fmt.Sprintf("%s-%s%s", kind, ticker, fileExt))
}

// Lock takes the single-writer lock for a snapshot, waiting until ctx is done.
// The returned func releases it.
func (s *Store) Lock(ctx context.Context, ticker string, kind model.Kind) (func() error, error) {
	path := s.Path(ticker, kind)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory for %q: %w", ticker, err)
	}

	fl := flock.New(path + lockExt)
	ok, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock %s: lock is held", path)
	}
	return fl.Unlock, nil
}

// Load reads the snapshot for ticker and kind. A missing file yields an empty state.
func (s *Store) Load(ticker string, kind model.Kind) (State, error) {
	ticker = model.NormalizeTicker(ticker)
	state := State{Ticker: ticker, Kind: kind}

	path := s.Path(ticker, kind)
	frame, err := readFrame(path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, err
	}

	records, err := normalize.Records(frame, kind)
	if err != nil {
		return state, fmt.Errorf("%s: %v: %w", path, err, ErrCorruptCache)
	}

	// snapshots are written sorted and unique; older writers may not have been so careful
	state.Records = Merge(nil, records)
	return state, nil
}

// MergeAndSave merges incoming into existing and persists the result. When incoming is
// empty the snapshot is left untouched.
func (s *Store) MergeAndSave(existing State, incoming []model.Record) (State, error) {
	if len(incoming) == 0 {
		return existing, nil
	}

	merged := State{
		Ticker:  existing.Ticker,
		Kind:    existing.Kind,
		Records: Merge(existing.Records, incoming),
	}
	if err := s.Save(merged); err != nil {
		return existing, err
	}
	return merged, nil
}

// Save atomically replaces the snapshot for state's ticker and kind.
func (s *Store) Save(state State) error {
	path := s.Path(state.Ticker, state.Kind)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := writeRecords(tmp, state); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func writeRecords(w io.Writer, state State) error {
	opts := []parquet.WriterOption{
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(timeUnitKey, timeUnitNanos),
	}

	switch state.Kind {
	case model.KindPrice:
		rows, err := priceRows(state.Records)
		if err != nil {
			return err
		}
		pw := parquet.NewGenericWriter[priceRow](w, opts...)
		if _, err := pw.Write(rows); err != nil {
			return err
		}
		return pw.Close()
	case model.KindNews:
		rows, err := newsRows(state.Records)
		if err != nil {
			return err
		}
		pw := parquet.NewGenericWriter[newsRow](w, opts...)
		if _, err := pw.Write(rows); err != nil {
			return err
		}
		return pw.Close()
	default:
		return fmt.Errorf("unknown record kind %q", state.Kind)
	}
}

// readFrame reads any flat parquet file into an untyped frame.
func readFrame(path string) (normalize.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return normalize.Frame{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return normalize.Frame{}, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return normalize.Frame{}, fmt.Errorf("%s: %v: %w", path, err, ErrCorruptCache)
	}

	fields := pf.Schema().Fields()
	if len(pf.Schema().Columns()) != len(fields) {
		return normalize.Frame{}, fmt.Errorf("%s: nested schema: %w", path, ErrCorruptCache)
	}

	unit, _ := pf.Lookup(timeUnitKey)
	frame := normalize.Frame{Columns: make([]string, len(fields))}
	scale := make([]time.Duration, len(fields))
	for i, field := range fields {
		frame.Columns[i] = field.Name()
		switch {
		case unit == timeUnitNanos && timeColumns[field.Name()]:
			scale[i] = time.Nanosecond
		default:
			scale[i] = timestampUnit(field.Type().LogicalType())
		}
	}

	buf := make([]parquet.Row, readBatchSize)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(rg, buf, scale, &frame); err != nil {
			return normalize.Frame{}, fmt.Errorf("%s: %v: %w", path, err, ErrCorruptCache)
		}
	}
	return frame, nil
}

func readRowGroup(rg parquet.RowGroup, buf []parquet.Row, scale []time.Duration, frame *normalize.Frame) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			out := make([]any, len(frame.Columns))
			for _, v := range row {
				if c := v.Column(); c >= 0 && c < len(out) {
					out[c] = value(v, scale[c])
				}
			}
			frame.Rows = append(frame.Rows, out)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func timestampUnit(lt *format.LogicalType) time.Duration {
	if lt == nil || lt.Timestamp == nil {
		return 0
	}
	switch {
	case lt.Timestamp.Unit.Nanos != nil:
		return time.Nanosecond
	case lt.Timestamp.Unit.Micros != nil:
		return time.Microsecond
	default:
		return time.Millisecond
	}
}

func value(v parquet.Value, scale time.Duration) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		if scale > 0 {
			return time.Unix(0, v.Int64()*int64(scale)).UTC()
		}
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return nil
	}
}

// Tickers lists the tickers with a snapshot of kind, sorted.
func (s *Store) Tickers(kind model.Kind) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, string(kind)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s cache: %w", kind, err)
	}

	var result []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.Path(e.Name(), kind)); err == nil {
			result = append(result, e.Name())
		}
	}
	sort.Strings(result)
	return result, nil
}

// Summary describes one snapshot.
type Summary struct {
	Ticker   string
	Kind     model.Kind
	Path     string
	Exists   bool
	Records  int
	Earliest time.Time
	Latest   time.Time
	Size     int64
	Modified time.Time
}

// Summarize loads the snapshot for ticker and kind and describes it.
func (s *Store) Summarize(ticker string, kind model.Kind) (Summary, error) {
	ticker = model.NormalizeTicker(ticker)
	result := Summary{Ticker: ticker, Kind: kind, Path: s.Path(ticker, kind)}

	info, err := os.Stat(result.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return result, err
	}
	result.Exists = true
	result.Size = info.Size()
	result.Modified = info.ModTime()

	state, err := s.Load(ticker, kind)
	if err != nil {
		return result, err
	}
	result.Records = state.Len()
	result.Earliest = state.Earliest()
	result.Latest = state.Latest()
	return result, nil
}
