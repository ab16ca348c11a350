// Package seed loads declarative table definitions and initial rows from yaml
// or toml files, to be registered and written through the store.
package seed

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/jtab/pkg/table"
)

// Data is the top-level seed file shape.
type Data struct {
	Tables []Def `yaml:"tables" toml:"tables"`
}

// Def defines a single table: its schema and optional initial rows.
type Def struct {
	Key     string         `yaml:"key" toml:"key"`         // logical table key
	Type    string         `yaml:"type" toml:"type"`       // semantic table kind
	Columns []table.Column `yaml:"columns" toml:"columns"` // ordered column definitions
	Rows    []table.Row    `yaml:"rows" toml:"rows"`       // initial rows, may be empty
}

// Load reads and parses a seed file. The format is picked by extension, yaml
// for .yml/.yaml or extension-less names and toml for .toml.
func Load(fname string) (*Data, error) {
	data, err := os.ReadFile(fname) // nolint gosec // the seed file location comes from the caller
	if err != nil {
		return nil, fmt.Errorf("can't read seed file %s: %w", fname, err)
	}

	res := &Data{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
		yamlDecoder.KnownFields(true) // strict mode, fail on unknown fields
		if err = yamlDecoder.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal yaml seed file %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err = toml.Unmarshal(data, res); err != nil {
			return nil, fmt.Errorf("can't unmarshal toml seed file %s: %w", fname, err)
		}
	default:
		return nil, fmt.Errorf("unknown seed file format %s", fname)
	}

	if len(res.Tables) == 0 {
		return nil, fmt.Errorf("seed file %s defines no tables", fname)
	}
	for _, def := range res.Tables {
		if err := def.config().Validate(); err != nil {
			return nil, fmt.Errorf("seed file %s: %w", fname, err)
		}
	}
	return res, nil
}

// Configs returns the table configs in file order.
func (d *Data) Configs() []table.Config {
	res := make([]table.Config, len(d.Tables))
	for i, def := range d.Tables {
		res[i] = def.config()
	}
	return res
}

// TableData returns the initial rows grouped by table key, skipping tables
// without rows.
func (d *Data) TableData() map[string]*table.Table {
	res := map[string]*table.Table{}
	for _, def := range d.Tables {
		if len(def.Rows) == 0 {
			continue
		}
		res[def.Key] = &table.Table{Type: def.Type, Data: def.Rows}
	}
	return res
}

func (d Def) config() table.Config {
	return table.Config{Key: d.Key, Type: d.Type, Columns: d.Columns}
}
