// Package schema keeps the versioned table configs in a reserved registry
// table and enforces additive-only evolution: a table's columns may only grow
// at the end, never shrink, reorder or change type.
package schema

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/jtab/pkg/hash"
	"github.com/umputun/jtab/pkg/query"
	"github.com/umputun/jtab/pkg/table"
)

// Registry persists and retrieves table config versions. Every version is an
// immutable snapshot, the active one is the version with the most columns.
type Registry struct {
	db      *sql.DB
	dialect query.Dialect
}

// New makes a registry on top of an open connection.
func New(db *sql.DB, dialect query.Dialect) *Registry {
	return &Registry{db: db, dialect: dialect}
}

// ownConfig describes the registry's own storage table. Stored version rows
// are the config's json fields themselves, so a row's content hash equals the
// config's content hash.
func ownConfig() table.Config {
	return table.Config{
		Key:  query.RegistryKey,
		Type: "registry",
		Columns: []table.Column{
			{Key: "key", Type: table.String},
			{Key: "type", Type: table.String},
			{Key: "columns", Type: table.JSONArray},
		},
	}
}

// Bootstrap creates the registry table if needed and registers the registry's
// own config as the first entry. Safe to call on an already bootstrapped
// database.
func (r *Registry) Bootstrap(ctx context.Context) error {
	cfg := ownConfig()

	existsStmt, params := query.TableExists(r.dialect, cfg.Key)
	var count int
	if err := r.db.QueryRowContext(ctx, existsStmt, params...).Scan(&count); err != nil {
		return fmt.Errorf("can't check registry table: %w", err)
	}
	if count == 0 {
		log.Printf("[INFO] creating registry table %q", query.PhysicalTable(cfg.Key))
	}

	create, err := query.CreateTable(r.dialect, cfg)
	if err != nil {
		return fmt.Errorf("can't build registry ddl: %w", err)
	}
	if _, err = r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("can't create registry table: %w", err)
	}

	if err := cfg.StampHash(); err != nil {
		return err
	}
	if err := r.insertVersion(ctx, cfg); err != nil {
		return fmt.Errorf("can't register registry config: %w", err)
	}
	return nil
}

// RegisterOrExtend registers a new table or extends an existing one. For a new
// key the physical table is created and the config stored as version one. For
// a known key the stored columns must be a prefix of the new ones; extra
// columns are added physically and the new config stored as the next version.
// An identical config is a no-op for the registry but still re-applies the
// physical alterations: the registry row is inserted before the alterations,
// so a crash mid-migration leaves an active version whose trailing columns may
// not exist yet, and the next call with the same config completes them.
func (r *Registry) RegisterOrExtend(ctx context.Context, cfg table.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Key == query.RegistryKey {
		return fmt.Errorf("table key %q is reserved", cfg.Key)
	}
	if err := cfg.StampHash(); err != nil {
		return err
	}

	versions, err := r.Versions(ctx, cfg.Key)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		create, cErr := query.CreateTable(r.dialect, cfg)
		if cErr != nil {
			return cErr
		}
		if _, err = r.db.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("can't create table %q: %w", cfg.Key, err)
		}
		if err = r.insertVersion(ctx, cfg); err != nil {
			return err
		}
		log.Printf("[INFO] registered table %q with %d columns", cfg.Key, len(cfg.Columns))
		return nil
	}
	active := versions[len(versions)-1]

	if cfg.Type != active.Type {
		return fmt.Errorf("table %q kind changed from %q to %q: %w", cfg.Key, active.Type, cfg.Type, table.ErrSchemaIncompatible)
	}
	if !active.PrefixOf(cfg) {
		return fmt.Errorf("table %q columns removed, reordered or retyped: %w", cfg.Key, table.ErrSchemaIncompatible)
	}
	if len(cfg.Columns) == len(active.Columns) {
		// the active version may describe columns a crashed migration never
		// created, re-apply the alterations past the created base
		if err = r.addColumns(ctx, cfg.Key, cfg.Columns[len(versions[0].Columns):]); err != nil {
			return err
		}
		log.Printf("[DEBUG] table %q unchanged, %d columns", cfg.Key, len(cfg.Columns))
		return nil
	}

	// registry update goes first, see the contract above
	if err = r.insertVersion(ctx, cfg); err != nil {
		return err
	}
	if err = r.addColumns(ctx, cfg.Key, cfg.Columns[len(versions[0].Columns):]); err != nil {
		return err
	}
	log.Printf("[INFO] extended table %q with %d columns", cfg.Key, len(cfg.Columns)-len(active.Columns))
	return nil
}

// addColumns applies add-column statements for the columns past the base the
// table was created with. Columns added by an earlier run are reported as
// duplicates and skipped, which makes migrations retryable at any point.
func (r *Registry) addColumns(ctx context.Context, tableKey string, added []table.Column) error {
	if len(added) == 0 {
		return nil
	}
	alters, err := query.AlterTable(r.dialect, tableKey, added)
	if err != nil {
		return err
	}
	for i, stmt := range alters {
		if _, err = r.db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("can't add column %q to table %q: %w", added[i].Key, tableKey, err)
		}
	}
	return nil
}

// Active returns the latest config version for the key.
func (r *Registry) Active(ctx context.Context, tableKey string) (table.Config, error) {
	versions, err := r.Versions(ctx, tableKey)
	if err != nil {
		return table.Config{}, err
	}
	if len(versions) == 0 {
		return table.Config{}, fmt.Errorf("table %q: %w", tableKey, table.ErrTableNotFound)
	}
	return versions[len(versions)-1], nil
}

// Versions returns all stored config versions for the key, oldest first.
// Columns only ever grow, so the column count orders versions.
func (r *Registry) Versions(ctx context.Context, tableKey string) ([]table.Config, error) {
	own := ownConfig()
	cols := append(own.ColumnKeys(), hash.Field)
	stmt, params, err := query.SelectWhere(r.dialect, own.Key, cols, table.Row{"key": tableKey})
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("can't read registry: %w", err)
	}
	defer rows.Close()

	var versions []table.Config
	for rows.Next() {
		var key, kind, columns, sum sql.NullString
		if err := rows.Scan(&key, &kind, &columns, &sum); err != nil {
			return nil, fmt.Errorf("can't scan registry row: %w", err)
		}
		var cc []table.Column
		if err := json.Unmarshal([]byte(columns.String), &cc); err != nil {
			return nil, fmt.Errorf("corrupted columns for table %q: %w", tableKey, err)
		}
		versions = append(versions, table.Config{Key: key.String, Type: kind.String, Columns: cc, Hash: sum.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read registry rows: %w", err)
	}

	sort.Slice(versions, func(i, j int) bool { return len(versions[i].Columns) < len(versions[j].Columns) })
	return versions, nil
}

// Keys returns the logical keys of all registered user tables, sorted. The
// registry's own entry is not included.
func (r *Registry) Keys(ctx context.Context) ([]string, error) {
	own := ownConfig()
	stmt := query.SelectAll(r.dialect, own.Key, []string{"key"})

	rows, err := r.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("can't list registry keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("can't scan registry key: %w", err)
		}
		if key == query.RegistryKey {
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read registry keys: %w", err)
	}

	keys = stringutils.DeDup(keys) // one key per config version stored
	sort.Strings(keys)
	return keys, nil
}

// insertVersion stores a config as a registry row. The row is the config's
// own json fields, inserted idempotently keyed by the config hash.
func (r *Registry) insertVersion(ctx context.Context, cfg table.Config) error {
	own := ownConfig()

	row := table.Row{"key": cfg.Key, "type": cfg.Type, "columns": cfg.Columns}
	keys := own.ColumnKeys()
	params := make([]any, 0, len(keys)+1)
	for _, key := range keys {
		col, _ := own.Column(key)
		v, err := query.Encode(row[key], col.Type)
		if err != nil {
			return fmt.Errorf("can't encode registry field %q: %w", key, err)
		}
		params = append(params, v)
	}
	params = append(params, cfg.Hash)

	stmt := query.InsertRow(r.dialect, own.Key, append(keys, hash.Field))
	if _, err := r.db.ExecContext(ctx, stmt, params...); err != nil {
		return fmt.Errorf("can't store config for table %q: %w", cfg.Key, err)
	}
	return nil
}

// isDuplicateColumn detects an add-column failure caused by the column being
// there already, which happens when a crashed migration is retried. sqlite
// reports "duplicate column name", mysql "Duplicate column name", postgres
// uses IF NOT EXISTS and never gets here.
func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}
