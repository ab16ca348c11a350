package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/umputun/jtab/pkg/hash"
	"github.com/umputun/jtab/pkg/table"
)

// Dialect selects the sql flavor for generated statements.
type Dialect string

// supported dialects
const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// quote wraps a physical identifier in dialect-specific quotes. Identifiers
// are schema-derived, never user-supplied values.
func (d Dialect) quote(ident string) string {
	if d == MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}

// placeholder returns the n-th (1-based) parameter placeholder.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// columnType maps a logical column type to the dialect's storage type.
func (d Dialect) columnType(ct table.ColumnType) (string, error) {
	switch ct {
	case table.String, table.JSON, table.JSONArray:
		return "TEXT", nil
	case table.Number:
		switch d {
		case Postgres:
			return "DOUBLE PRECISION", nil
		case MySQL:
			return "DOUBLE", nil
		default:
			return "REAL", nil
		}
	case table.Boolean:
		if d == MySQL {
			return "TINYINT", nil
		}
		return "INTEGER", nil
	default:
		return "", fmt.Errorf("column type %q: %w", ct, table.ErrUnsupportedColumnType)
	}
}

// hashColumnType is the storage type of the reserved hash column. MySQL can't
// have a TEXT primary key without a length, the hex sha256 digest is 64 chars.
func (d Dialect) hashColumnType() string {
	if d == MySQL {
		return "VARCHAR(64)"
	}
	return "TEXT"
}

// CreateTable builds the create statement for a config: one physical column
// per declared column in order, plus the reserved hash column as primary key.
// The hash primary key is what makes inserts content-addressed and idempotent.
func CreateTable(d Dialect, cfg table.Config) (string, error) {
	cols := make([]string, 0, len(cfg.Columns)+1)
	for _, col := range cfg.Columns {
		typ, err := d.columnType(col.Type)
		if err != nil {
			return "", fmt.Errorf("table %q column %q: %w", cfg.Key, col.Key, err)
		}
		cols = append(cols, d.quote(PhysicalColumn(col.Key))+" "+typ)
	}
	cols = append(cols, d.quote(PhysicalColumn(hash.Field))+" "+d.hashColumnType()+" PRIMARY KEY")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.quote(PhysicalTable(cfg.Key)), strings.Join(cols, ", ")), nil
}

// AlterTable builds one add-column statement per added column, in order.
// Statements are retryable: postgres uses IF NOT EXISTS, for the others the
// caller swallows duplicate-column failures on retry.
func AlterTable(d Dialect, tableKey string, added []table.Column) ([]string, error) {
	stmts := make([]string, 0, len(added))
	for _, col := range added {
		typ, err := d.columnType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("table %q column %q: %w", tableKey, col.Key, err)
		}
		add := "ADD COLUMN"
		if d == Postgres {
			add = "ADD COLUMN IF NOT EXISTS"
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s %s %s %s",
			d.quote(PhysicalTable(tableKey)), add, d.quote(PhysicalColumn(col.Key)), typ))
	}
	return stmts, nil
}

// InsertRow builds an idempotent insert for the given logical columns. A
// primary-key collision on the hash column is silently ignored, so writing
// the same content twice is a no-op.
func InsertRow(d Dialect, tableKey string, columnKeys []string) string {
	cols := make([]string, len(columnKeys))
	vals := make([]string, len(columnKeys))
	for i, key := range columnKeys {
		cols[i] = d.quote(PhysicalColumn(key))
		vals[i] = d.placeholder(i + 1)
	}

	tbl := d.quote(PhysicalTable(tableKey))
	list := strings.Join(cols, ", ")
	args := strings.Join(vals, ", ")

	switch d {
	case Postgres:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", tbl, list, args)
	case MySQL:
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", tbl, list, args)
	default:
		return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", tbl, list, args)
	}
}

// SelectAll builds a select over the given logical columns.
func SelectAll(d Dialect, tableKey string, columnKeys []string) string {
	cols := make([]string, len(columnKeys))
	for i, key := range columnKeys {
		cols[i] = d.quote(PhysicalColumn(key))
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), d.quote(PhysicalTable(tableKey)))
}

// SelectWhere builds an equality-filtered select. Predicate values are
// type-branched: nil becomes IS NULL, json objects and arrays are compared
// against their serialized text, scalars are passed as parameters. Predicate
// keys are sorted so the statement is deterministic for a given filter.
func SelectWhere(d Dialect, tableKey string, columnKeys []string, filter table.Row) (string, []any, error) {
	stmt := SelectAll(d, tableKey, columnKeys)
	if len(filter) == 0 {
		return stmt, nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	params := []any{}
	for _, key := range keys {
		col := d.quote(PhysicalColumn(key))
		switch v := filter[key].(type) {
		case nil:
			conds = append(conds, col+" IS NULL")
		case string:
			conds = append(conds, col+" = "+d.placeholder(len(params)+1))
			params = append(params, v)
		case bool:
			n := 0
			if v {
				n = 1
			}
			conds = append(conds, col+" = "+d.placeholder(len(params)+1))
			params = append(params, n)
		case int, int32, int64, float32, float64:
			conds = append(conds, col+" = "+d.placeholder(len(params)+1))
			params = append(params, v)
		case map[string]any, []any:
			data, err := json.Marshal(v)
			if err != nil {
				return "", nil, fmt.Errorf("predicate %q: %w", key, table.ErrUnsupportedPredicate)
			}
			conds = append(conds, col+" = "+d.placeholder(len(params)+1))
			params = append(params, string(data))
		default:
			return "", nil, fmt.Errorf("predicate %q has type %T: %w", key, v, table.ErrUnsupportedPredicate)
		}
	}

	return stmt + " WHERE " + strings.Join(conds, " AND "), params, nil
}

// CountRows builds a row-count statement.
func CountRows(d Dialect, tableKey string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", d.quote(PhysicalTable(tableKey)))
}

// TableExists builds an introspection statement returning a count of matching
// physical tables (0 or 1).
func TableExists(d Dialect, tableKey string) (string, []any) {
	name := PhysicalTable(tableKey)
	switch d {
	case Postgres:
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1", []any{name}
	case MySQL:
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", []any{name}
	default:
		return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", []any{name}
	}
}
