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

package util

import (
	"context"
	"fmt"

	"cloud.google.com/go/logging"
	"github.com/ajjensen13/gke"
)

type contextKey int

const (
	loggerKey contextKey = iota
	fieldsKey
)

// fields are the structured values attached to every entry logged under a context,
// e.g. the ticker or the sync run id.
type fields map[string]interface{}

func (f fields) with(key string, val interface{}) fields {
	result := make(fields, len(f)+1)
	for k, v := range f {
		result[k] = v
	}
	result[key] = val
	return result
}

// WithLoggerValue returns a context whose log entries also carry key=val.
// The parent context's values are not modified.
func WithLoggerValue(ctx context.Context, key string, val interface{}) context.Context {
	f, _ := ctx.Value(fieldsKey).(fields)
	return context.WithValue(ctx, fieldsKey, f.with(key, val))
}

// LoggerValues returns a copy of the values attached with WithLoggerValue.
func LoggerValues(ctx context.Context) map[string]interface{} {
	f, _ := ctx.Value(fieldsKey).(fields)
	result := make(map[string]interface{}, len(f))
	for k, v := range f {
		result[k] = v
	}
	return result
}

func WithLogger(ctx context.Context, lg gke.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, lg)
}

type logPayload struct {
	Message string
	Values  map[string]interface{} `json:",omitempty"`
}

func (l logPayload) String() string {
	return l.Message
}

// Logf writes to the logger attached with WithLogger. Without one it does nothing.
func Logf(ctx context.Context, severity logging.Severity, format string, argv ...interface{}) {
	lg, ok := ctx.Value(loggerKey).(gke.Logger)
	if !ok {
		return
	}

	f, _ := ctx.Value(fieldsKey).(fields)
	entry := logging.Entry{Severity: severity, Payload: logPayload{Message: fmt.Sprintf(format, argv...), Values: f}}
	gke.SetupSourceLocation(&entry, 1)
	lg.Log(entry)
}
