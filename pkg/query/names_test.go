package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhysicalNames_RoundTrip(t *testing.T) {
	tbl := []struct {
		logical  string
		physical string
	}{
		{"users", "users_tbl"},
		{"order", "order_tbl"}, // reserved sql word stays safe with the suffix
		{"select", "select_tbl"},
		{RegistryKey, RegistryKey}, // registry maps to itself, outside the user namespace
	}

	for _, tc := range tbl {
		t.Run(tc.logical, func(t *testing.T) {
			assert.Equal(t, tc.physical, PhysicalTable(tc.logical))
			assert.Equal(t, tc.logical, LogicalTable(tc.physical))
		})
	}
}

func TestPhysicalColumns_RoundTrip(t *testing.T) {
	for _, key := range []string{"id", "name", "hash", "group", "order"} {
		t.Run(key, func(t *testing.T) {
			phys := PhysicalColumn(key)
			assert.Equal(t, key+"_col", phys)
			assert.Equal(t, key, LogicalColumn(phys))
		})
	}
}
