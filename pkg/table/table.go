// Package table defines the typed json table model: table configs with ordered,
// typed columns, tables with sparse rows, and the content-hash stamping rules
// shared by the registry and the store.
package table

import (
	"errors"
	"fmt"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/jtab/pkg/hash"
)

// errors returned by the table model and by components operating on it
var (
	ErrTableNotFound         = errors.New("table not found")
	ErrColumnNotFound        = errors.New("column not found")
	ErrSchemaIncompatible    = errors.New("schema incompatible")
	ErrUnsupportedColumnType = errors.New("unsupported column type")
	ErrUnsupportedValue      = errors.New("unsupported value")
	ErrUnsupportedPredicate  = errors.New("unsupported predicate type")
	ErrHashMismatch          = errors.New("hash mismatch")
	ErrNotReady              = errors.New("store not initialized")
	ErrAlreadyOpen           = errors.New("store already open")
	ErrNotOpen               = errors.New("store not open")
)

// ColumnType is the closed set of logical value types a column can hold.
type ColumnType string

// supported column types
const (
	String    ColumnType = "string"
	Number    ColumnType = "number"
	Boolean   ColumnType = "boolean"
	JSON      ColumnType = "json"
	JSONArray ColumnType = "jsonArray"
)

// Valid reports whether the type is one of the supported column types.
func (ct ColumnType) Valid() bool {
	switch ct {
	case String, Number, Boolean, JSON, JSONArray:
		return true
	}
	return false
}

// Column is a single typed column definition, immutable once persisted.
type Column struct {
	Key  string     `json:"key" yaml:"key" toml:"key"`    // logical column key, unique within table
	Type ColumnType `json:"type" yaml:"type" toml:"type"` // logical value type
}

// Config describes the schema of a single table. Column order is append-only
// history: a later config for the same key must have the earlier one as a
// strict prefix of its columns.
type Config struct {
	Key     string   `json:"key"`            // table identity
	Type    string   `json:"type"`           // semantic table kind
	Columns []Column `json:"columns"`        // ordered column definitions
	Hash    string   `json:"hash,omitempty"` // content hash over all other fields
}

// Row maps logical column keys to json values. Absent keys mean "no value",
// explicit nulls are never materialized.
type Row map[string]any

// Table carries typed rows together with their content hashes.
type Table struct {
	Type       string `json:"type"`                      // semantic table kind, matches Config.Type
	Data       []Row  `json:"data"`                      // rows, sparse representation
	ConfigHash string `json:"tableConfigHash,omitempty"` // reference to the config the rows were written under
	Hash       string `json:"hash,omitempty"`            // content hash over all other fields
}

// Validate checks the config for empty or duplicated column keys and unknown
// column types. The reserved hash field name can't be used as a column key.
func (c Config) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("table key can't be empty")
	}
	keys := c.ColumnKeys()
	if len(stringutils.DeDup(keys)) != len(keys) {
		return fmt.Errorf("duplicate column keys in table %q", c.Key)
	}
	for _, col := range c.Columns {
		if col.Key == "" {
			return fmt.Errorf("empty column key in table %q", c.Key)
		}
		if col.Key == hash.Field {
			return fmt.Errorf("column key %q is reserved in table %q", hash.Field, c.Key)
		}
		if !col.Type.Valid() {
			return fmt.Errorf("column %q in table %q: type %q: %w", col.Key, c.Key, col.Type, ErrUnsupportedColumnType)
		}
	}
	return nil
}

// Column returns the column definition for the given key.
func (c Config) Column(key string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Key == key {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnKeys returns the logical column keys in declared order.
func (c Config) ColumnKeys() []string {
	keys := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		keys[i] = col.Key
	}
	return keys
}

// PrefixOf reports whether the config's columns are a strict or exact prefix
// of the other config's columns, comparing both keys and types.
func (c Config) PrefixOf(other Config) bool {
	if len(c.Columns) > len(other.Columns) {
		return false
	}
	for i, col := range c.Columns {
		if other.Columns[i] != col {
			return false
		}
	}
	return true
}

// StampHash fills the config hash if it is not set yet. An existing hash is
// left alone, so stamping is idempotent.
func (c *Config) StampHash() error {
	if c.Hash != "" {
		return nil
	}
	sum, err := hash.Sum(c)
	if err != nil {
		return fmt.Errorf("can't hash config for table %q: %w", c.Key, err)
	}
	c.Hash = sum
	return nil
}

// VerifyHash recomputes the config hash and compares it with the stored one.
func (c *Config) VerifyHash() error {
	sum, err := hash.Sum(c)
	if err != nil {
		return fmt.Errorf("can't hash config for table %q: %w", c.Key, err)
	}
	if c.Hash != "" && c.Hash != sum {
		return fmt.Errorf("config for table %q: %w", c.Key, ErrHashMismatch)
	}
	return nil
}

// StampHash fills the row's hash field if absent.
func (r Row) StampHash() error {
	if _, ok := r[hash.Field]; ok {
		return nil
	}
	sum, err := hash.Sum(map[string]any(r))
	if err != nil {
		return fmt.Errorf("can't hash row: %w", err)
	}
	r[hash.Field] = sum
	return nil
}

// VerifyHash recomputes the row hash and compares it with the stored one.
func (r Row) VerifyHash() error {
	sum, err := hash.Sum(map[string]any(r))
	if err != nil {
		return fmt.Errorf("can't hash row: %w", err)
	}
	if stored, ok := r[hash.Field].(string); ok && stored != sum {
		return fmt.Errorf("row: %w", ErrHashMismatch)
	}
	return nil
}

// StampHash stamps every row first and then the table-level hash. Already
// stamped rows and tables are left unchanged, hashing twice is a no-op.
func (t *Table) StampHash() error {
	for i, row := range t.Data {
		if err := row.StampHash(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if t.Hash != "" {
		return nil
	}
	sum, err := hash.Sum(t)
	if err != nil {
		return fmt.Errorf("can't hash table: %w", err)
	}
	t.Hash = sum
	return nil
}

// VerifyHash recomputes row and table hashes and compares them with the
// stored ones. Used in strict verification mode only.
func (t *Table) VerifyHash() error {
	for i, row := range t.Data {
		if err := row.VerifyHash(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	sum, err := hash.Sum(t)
	if err != nil {
		return fmt.Errorf("can't hash table: %w", err)
	}
	if t.Hash != "" && t.Hash != sum {
		return ErrHashMismatch
	}
	return nil
}
