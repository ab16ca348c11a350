// Package query turns table configs and rows into parameterized sql. It maps
// logical keys to physical identifiers, converts logical json values to and
// from storage primitives, and builds ddl/dml statements for the supported
// dialects (sqlite, postgres, mysql).
package query

import (
	"github.com/go-pkgz/stringutils"
)

// RegistryKey is the reserved logical key of the table holding all registered
// table config versions. It maps to itself physically, while every user table
// gets a suffix, so the registry can never collide with a user table.
const RegistryKey = "jtab_registry"

// suffixes keep physical names away from sql reserved words and separate the
// user-table namespace from the registry's own table
const (
	tableSuffix  = "_tbl"
	columnSuffix = "_col"
)

// PhysicalTable maps a logical table key to its physical table name.
func PhysicalTable(key string) string {
	if key == RegistryKey {
		return RegistryKey
	}
	return key + tableSuffix
}

// LogicalTable is the inverse of PhysicalTable.
func LogicalTable(name string) string {
	if name == RegistryKey {
		return RegistryKey
	}
	return stringutils.RemoveSuffix(name, tableSuffix)
}

// PhysicalColumn maps a logical column key to its physical column name.
func PhysicalColumn(key string) string {
	return key + columnSuffix
}

// LogicalColumn is the inverse of PhysicalColumn.
func LogicalColumn(name string) string {
	return stringutils.RemoveSuffix(name, columnSuffix)
}
