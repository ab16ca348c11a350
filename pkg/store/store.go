// Package store is the top-level facade mapping typed json tables onto a
// relational database. It owns the single connection and the schema registry,
// stamps content hashes on write and read, and keeps writes idempotent by
// treating primary-key collisions as success.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	_ "modernc.org/sqlite"             // sqlite driver loaded here

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/jtab/pkg/hash"
	"github.com/umputun/jtab/pkg/query"
	"github.com/umputun/jtab/pkg/schema"
	"github.com/umputun/jtab/pkg/table"
)

// Store provides write, read, dump and count operations over registered
// tables. A store is made with New, becomes usable after Init and is not safe
// for concurrent use; all statements run strictly sequentially.
type Store struct {
	conn     string
	dialect  query.Dialect
	db       *sql.DB
	registry *schema.Registry
	ready    bool
}

// New makes a store for the given connection string. The database kind is
// detected from the string: postgres urls, mysql tcp addresses, sqlite file
// paths. The connection is not opened until Init.
func New(conn string) (*Store, error) {
	dialect, err := dialectFor(conn)
	if err != nil {
		return nil, fmt.Errorf("can't determine database type: %w", err)
	}
	return &Store{conn: conn, dialect: dialect}, nil
}

// dialectFor sniffs the database kind from a connection string.
func dialectFor(conn string) (query.Dialect, error) {
	if strings.HasPrefix(conn, "postgres://") {
		return query.Postgres, nil
	}
	if strings.Contains(conn, "@tcp(") {
		return query.MySQL, nil
	}
	if strings.HasPrefix(conn, "file:") || strings.HasSuffix(conn, ".sqlite") || strings.HasSuffix(conn, ".db") {
		return query.SQLite, nil
	}
	return "", fmt.Errorf("unsupported database type in connection string")
}

// Init opens the connection and bootstraps the schema registry. Must be
// called exactly once before any data operation; a second call fails.
func (s *Store) Init(ctx context.Context) error {
	if s.ready {
		return table.ErrAlreadyOpen
	}

	db, err := sql.Open(string(s.dialect), s.conn)
	if err != nil {
		return fmt.Errorf("can't open database: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("can't connect to database: %w", err)
	}

	registry := schema.New(db, s.dialect)
	if err = registry.Bootstrap(ctx); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.registry = registry
	s.ready = true
	log.Printf("[INFO] store ready, type: %s", s.dialect)
	return nil
}

// Close shuts the connection down. The store can't be used afterwards.
func (s *Store) Close() error {
	if !s.ready {
		return table.ErrNotOpen
	}
	s.ready = false
	return s.db.Close()
}

// CreateTable registers a new table or extends an existing one with appended
// columns. Idempotent for an unchanged config.
func (s *Store) CreateTable(ctx context.Context, cfg table.Config) error {
	if !s.ready {
		return table.ErrNotReady
	}
	return s.registry.RegisterOrExtend(ctx, cfg)
}

// Write stores all rows of all given tables. Missing row and table hashes are
// stamped first. Rows whose content hash is already stored are silently
// skipped, which makes writes idempotent under retry. Other per-row failures
// don't stop the batch: all rows are attempted and the collected failures
// returned as one aggregate error, with earlier successful inserts left in
// place.
func (s *Store) Write(ctx context.Context, tables map[string]*table.Table) error {
	if !s.ready {
		return table.ErrNotReady
	}

	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	errs := new(multierror.Error)
	for _, key := range keys {
		tbl := tables[key]

		cfg, err := s.registry.Active(ctx, key)
		if err != nil {
			return err
		}
		if err = s.checkRowColumns(cfg, tbl.Data); err != nil {
			return err
		}
		if tbl.ConfigHash == "" {
			tbl.ConfigHash = cfg.Hash
		}
		if err = tbl.StampHash(); err != nil {
			return err
		}

		for i, row := range tbl.Data {
			if err := s.insertRow(ctx, cfg, row); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("table %q row %d: %w", key, i, err))
			}
		}
		log.Printf("[DEBUG] wrote %d rows to table %q", len(tbl.Data), key)
	}

	return errs.ErrorOrNil()
}

// checkRowColumns verifies every row's keys are a subset of the schema.
func (s *Store) checkRowColumns(cfg table.Config, rows []table.Row) error {
	allowed := append(cfg.ColumnKeys(), hash.Field)
	for i, row := range rows {
		rowKeys := make([]string, 0, len(row))
		for k := range row {
			rowKeys = append(rowKeys, k)
		}
		if unknown := stringutils.Difference(rowKeys, allowed); len(unknown) > 0 {
			sort.Strings(unknown)
			return fmt.Errorf("table %q row %d has columns %v: %w", cfg.Key, i, unknown, table.ErrColumnNotFound)
		}
	}
	return nil
}

// insertRow encodes and inserts a single row with its present columns only.
// Encoding failures surface immediately, the insert itself is idempotent.
func (s *Store) insertRow(ctx context.Context, cfg table.Config, row table.Row) error {
	cols := make([]string, 0, len(row))
	params := make([]any, 0, len(row))
	for _, col := range cfg.Columns {
		v, ok := row[col.Key]
		if !ok {
			continue // sparse row, absent values not stored
		}
		encoded, err := query.Encode(v, col.Type)
		if err != nil {
			return fmt.Errorf("column %q: %w", col.Key, err)
		}
		cols = append(cols, col.Key)
		params = append(params, encoded)
	}
	cols = append(cols, hash.Field)
	params = append(params, row[hash.Field])

	stmt := query.InsertRow(s.dialect, cfg.Key, cols)
	if _, err := s.db.ExecContext(ctx, stmt, params...); err != nil {
		return fmt.Errorf("can't insert: %w", err)
	}
	return nil
}

// ReadRows returns the table's rows matching the equality filter. An empty
// filter matches everything, no matches make a valid empty table. Filtering
// on a column the schema doesn't have fails.
func (s *Store) ReadRows(ctx context.Context, tableKey string, filter table.Row) (*table.Table, error) {
	if !s.ready {
		return nil, table.ErrNotReady
	}

	cfg, err := s.registry.Active(ctx, tableKey)
	if err != nil {
		return nil, err
	}

	allowed := append(cfg.ColumnKeys(), hash.Field)
	for key := range filter {
		if !stringutils.Contains(key, allowed) {
			return nil, fmt.Errorf("filter column %q in table %q: %w", key, tableKey, table.ErrColumnNotFound)
		}
	}

	stmt, params, err := query.SelectWhere(s.dialect, tableKey, allowed, filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("can't read table %q: %w", tableKey, err)
	}
	defer rows.Close()

	data := []table.Row{}
	for rows.Next() {
		values := make([]any, len(allowed))
		ptrs := make([]any, len(allowed))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("can't scan row from table %q: %w", tableKey, err)
		}

		row := table.Row{}
		for i, key := range allowed {
			ct := table.String // reserved hash column holds the digest text
			if col, ok := cfg.Column(key); ok {
				ct = col.Type
			}
			decoded, err := query.Decode(values[i], ct)
			if err != nil {
				return nil, fmt.Errorf("column %q in table %q: %w", key, tableKey, err)
			}
			if decoded == nil {
				continue // sparse row, NULL decodes to an absent key
			}
			row[key] = decoded
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read rows from table %q: %w", tableKey, err)
	}

	res := &table.Table{Type: cfg.Type, Data: data, ConfigHash: cfg.Hash}
	if err := res.StampHash(); err != nil {
		return nil, err
	}
	return res, nil
}

// DumpTable reconstructs the full table with decoded rows and stamped hashes.
func (s *Store) DumpTable(ctx context.Context, tableKey string) (*table.Table, error) {
	return s.ReadRows(ctx, tableKey, nil)
}

// DumpAll reconstructs every registered user table keyed by its logical key.
// Each table is the unit of integrity: its content hash is stamped as the
// table is collected, the enclosing map is a plain carrier with no hash of
// its own.
func (s *Store) DumpAll(ctx context.Context) (map[string]*table.Table, error) {
	if !s.ready {
		return nil, table.ErrNotReady
	}

	keys, err := s.registry.Keys(ctx)
	if err != nil {
		return nil, err
	}

	res := make(map[string]*table.Table, len(keys))
	for _, key := range keys {
		tbl, err := s.DumpTable(ctx, key)
		if err != nil {
			return nil, err
		}
		res[key] = tbl
	}
	return res, nil
}

// RowCount returns the number of stored rows for a registered table.
func (s *Store) RowCount(ctx context.Context, tableKey string) (int, error) {
	if !s.ready {
		return 0, table.ErrNotReady
	}

	if _, err := s.registry.Active(ctx, tableKey); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query.CountRows(s.dialect, tableKey)).Scan(&count); err != nil {
		return 0, fmt.Errorf("can't count rows in table %q: %w", tableKey, err)
	}
	return count, nil
}

// Registry exposes the schema registry for config introspection.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}
