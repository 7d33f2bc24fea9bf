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

package warehouse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v4"

	"github.com/ajjensen13/pricehistory/internal/model"
)

type column struct {
	name     string
	dataType string
	key      bool
}

var (
	priceColumns = []column{
		{name: "ticker", dataType: "text", key: true},
		{name: "date", dataType: "date", key: true},
		{name: "open", dataType: "double precision"},
		{name: "high", dataType: "double precision"},
		{name: "low", dataType: "double precision"},
		{name: "close", dataType: "double precision"},
		{name: "adjusted_close", dataType: "double precision"},
		{name: "volume", dataType: "bigint"},
		{name: "dividends", dataType: "double precision"},
		{name: "split_ratio", dataType: "double precision"},
		{name: "fetched_at", dataType: "timestamp without time zone"},
	}
	newsColumns = []column{
		{name: "ticker", dataType: "text", key: true},
		{name: "id", dataType: "text", key: true},
		{name: "title", dataType: "text"},
		{name: "summary", dataType: "text"},
		{name: "description", dataType: "text"},
		{name: "publisher", dataType: "text"},
		{name: "link", dataType: "text"},
		{name: "publish_time", dataType: "timestamp without time zone"},
		{name: "display_time", dataType: "timestamp without time zone"},
		{name: "content_type", dataType: "text"},
		{name: "thumbnail_url", dataType: "text"},
		{name: "is_premium", dataType: "boolean"},
		{name: "is_hosted", dataType: "boolean"},
		{name: "fetched_at", dataType: "timestamp without time zone"},
	}
)

func columnsFor(kind model.Kind) ([]column, error) {
	switch kind {
	case model.KindPrice:
		return priceColumns, nil
	case model.KindNews:
		return newsColumns, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
}

// timeColumn is the column queries order by.
func timeColumn(kind model.Kind) string {
	if kind == model.KindNews {
		return "publish_time"
	}
	return "date"
}

func names(cols []column) []string {
	result := make([]string, len(cols))
	for i, c := range cols {
		result[i] = c.name
	}
	return result
}

func quoted(cols []column, prefix string) string {
	result := make([]string, len(cols))
	for i, c := range cols {
		result[i] = prefix + pgx.Identifier{c.name}.Sanitize()
	}
	return strings.Join(result, ", ")
}

func keys(cols []column) []column {
	var result []column
	for _, c := range cols {
		if c.key {
			result = append(result, c)
		}
	}
	return result
}

func nonKeys(cols []column) []column {
	var result []column
	for _, c := range cols {
		if !c.key {
			result = append(result, c)
		}
	}
	return result
}

func createTableSQL(table pgx.Identifier, cols []column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", table.Sanitize())
	for _, c := range cols {
		fmt.Fprintf(&b, "%s %s", pgx.Identifier{c.name}.Sanitize(), c.dataType)
		if c.key {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(", ")
	}
	fmt.Fprintf(&b, "PRIMARY KEY (%s))", quoted(keys(cols), ""))
	return b.String()
}

// stageTableSQL creates a temporary staging table with the canonical column types, so COPY
// always matches the encoded values. The merge casts them to the permanent column types.
func stageTableSQL(stage pgx.Identifier, cols []column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = pgx.Identifier{c.name}.Sanitize() + " " + c.dataType
	}
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s) ON COMMIT DROP", stage.Sanitize(), strings.Join(defs, ", "))
}

func keyIndexName(table pgx.Identifier) pgx.Identifier {
	return pgx.Identifier{table[len(table)-1] + "_natural_key"}
}

func createKeyIndexSQL(table pgx.Identifier, cols []column) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", keyIndexName(table).Sanitize(), table.Sanitize(), quoted(keys(cols), ""))
}

// hasKeyIndexSQL reports whether a table has a unique index ON CONFLICT can infer from
// exactly the given columns: immediate, not partial and not on expressions.
const hasKeyIndexSQL = `SELECT EXISTS (
	SELECT 1 FROM pg_index i
	WHERE i.indrelid = to_regclass($1) AND i.indisunique AND i.indimmediate
		AND i.indpred IS NULL AND i.indexprs IS NULL AND i.indnatts = $2
		AND (SELECT array_agg(a.attname::text ORDER BY a.attname::text) FROM pg_attribute a
			WHERE a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)) = $3::text[]
)`

func sortedKeyNames(cols []column) []string {
	result := names(keys(cols))
	sort.Strings(result)
	return result
}

// columnType spells an information_schema column the way compatible expects: the data_type,
// followed by the length or numeric precision when the column is constrained.
func columnType(dataType string, length, precision, scale *int32) string {
	switch {
	case length != nil:
		return fmt.Sprintf("%s(%d)", dataType, *length)
	case dataType == "numeric" && precision != nil:
		s := int32(0)
		if scale != nil {
			s = *scale
		}
		return fmt.Sprintf("numeric(%d,%d)", *precision, s)
	}
	return dataType
}

func addColumnSQL(table pgx.Identifier, c column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", table.Sanitize(), pgx.Identifier{c.name}.Sanitize(), c.dataType)
}

// upsertSQL merges stage into table. Duplicate keys in stage collapse to the most recently
// fetched row. Each returned row reports whether it was an insert.
func upsertSQL(table, stage pgx.Identifier, cols []column) string {
	keyList := quoted(keys(cols), "")
	set := make([]string, 0, len(cols))
	for _, c := range nonKeys(cols) {
		id := pgx.Identifier{c.name}.Sanitize()
		set = append(set, fmt.Sprintf("%s = excluded.%s", id, id))
	}

	return fmt.Sprintf(`INSERT INTO %[1]s (%[3]s) SELECT DISTINCT ON (%[4]s) %[3]s FROM %[2]s ORDER BY %[4]s, "fetched_at" DESC NULLS LAST ON CONFLICT (%[4]s) DO UPDATE SET %[5]s RETURNING (xmax = 0) AS inserted`,
		table.Sanitize(), stage.Sanitize(), quoted(cols, ""), keyList, strings.Join(set, ", "))
}

// drift is the difference between the expected columns and a table's actual columns.
type drift struct {
	missing   []column
	extra     []string
	conflicts []string
}

func (d drift) empty() bool {
	return len(d.missing) == 0 && len(d.extra) == 0 && len(d.conflicts) == 0
}

func (d drift) String() string {
	var parts []string
	if len(d.missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %v", names(d.missing)))
	}
	if len(d.extra) > 0 {
		parts = append(parts, fmt.Sprintf("extra %v", d.extra))
	}
	if len(d.conflicts) > 0 {
		parts = append(parts, fmt.Sprintf("incompatible %v", d.conflicts))
	}
	return strings.Join(parts, "; ")
}

func diff(expected []column, actual map[string]string) drift {
	var result drift
	seen := make(map[string]bool, len(expected))
	for _, c := range expected {
		seen[c.name] = true
		have, ok := actual[c.name]
		switch {
		case !ok:
			result.missing = append(result.missing, c)
		case !compatible(have, c.dataType):
			result.conflicts = append(result.conflicts, fmt.Sprintf("%s is %s, want %s", c.name, have, c.dataType))
		}
	}
	for name := range actual {
		if !seen[name] {
			result.extra = append(result.extra, name)
		}
	}
	sort.Strings(result.extra)
	return result
}

// compatible reports whether a column of type have can hold every value of type want
// without narrowing. Types are information_schema data_type spellings.
func compatible(have, want string) bool {
	have, want = strings.ToLower(strings.TrimSpace(have)), strings.ToLower(strings.TrimSpace(want))
	if have == want {
		return true
	}
	if strings.Contains(have, "(") {
		// a length or precision limit narrows every wider value
		return false
	}

	family := func(t string) string {
		switch {
		case t == "text", t == "character varying", t == "varchar":
			return "text"
		case strings.HasPrefix(t, "timestamp"):
			return "timestamp"
		}
		return t
	}
	hf, wf := family(have), family(want)
	switch {
	case hf == wf:
		return true
	case want == "double precision":
		return have == "numeric"
	case want == "bigint":
		return have == "numeric"
	case want == "date":
		return hf == "timestamp"
	}
	return false
}
