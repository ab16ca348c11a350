package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/jtab/pkg/table"
)

func TestEncode(t *testing.T) {
	tbl := []struct {
		name    string
		value   any
		ct      table.ColumnType
		want    any
		wantErr error
	}{
		{name: "string passthrough", value: "Alice", ct: table.String, want: "Alice"},
		{name: "number passthrough", value: 42.5, ct: table.Number, want: 42.5},
		{name: "int number passthrough", value: 7, ct: table.Number, want: 7},
		{name: "true to one", value: true, ct: table.Boolean, want: 1},
		{name: "false to zero", value: false, ct: table.Boolean, want: 0},
		{name: "nil to null", value: nil, ct: table.String, want: nil},
		{name: "json object to text", value: map[string]any{"b": 2.0, "a": 1.0}, ct: table.JSON, want: `{"a":1,"b":2}`},
		{name: "json array to text", value: []any{"x", 1.0}, ct: table.JSONArray, want: `["x",1]`},
		{name: "non-bool in boolean column", value: "yes", ct: table.Boolean, wantErr: table.ErrUnsupportedValue},
		{name: "unserializable json value", value: func() {}, ct: table.JSON, wantErr: table.ErrUnsupportedValue},
		{name: "unknown column type", value: "x", ct: "uuid", wantErr: table.ErrUnsupportedColumnType},
	}

	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.value, tc.ct)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	tbl := []struct {
		name    string
		value   any
		ct      table.ColumnType
		want    any
		wantErr error
	}{
		{name: "null to absent", value: nil, ct: table.String, want: nil},
		{name: "string passthrough", value: "Alice", ct: table.String, want: "Alice"},
		{name: "bytes to string", value: []byte("Alice"), ct: table.String, want: "Alice"},
		{name: "int64 to float", value: int64(42), ct: table.Number, want: 42.0},
		{name: "float passthrough", value: 42.5, ct: table.Number, want: 42.5},
		{name: "number bytes to float", value: []byte("42.5"), ct: table.Number, want: 42.5}, // mysql text protocol
		{name: "garbage number bytes", value: []byte("nope"), ct: table.Number, wantErr: table.ErrUnsupportedValue},
		{name: "one to true", value: int64(1), ct: table.Boolean, want: true},
		{name: "zero to false", value: int64(0), ct: table.Boolean, want: false},
		{name: "one byte to true", value: []byte("1"), ct: table.Boolean, want: true},
		{name: "zero byte to false", value: []byte("0"), ct: table.Boolean, want: false},
		{name: "garbage boolean bytes", value: []byte("maybe"), ct: table.Boolean, wantErr: table.ErrUnsupportedValue},
		{name: "text to json object", value: `{"a":1}`, ct: table.JSON, want: map[string]any{"a": 1.0}},
		{name: "bytes to json array", value: []byte(`["x",1]`), ct: table.JSONArray, want: []any{"x", 1.0}},
		{name: "garbage json text", value: "{broken", ct: table.JSON, wantErr: table.ErrUnsupportedValue},
		{name: "bool stored as text", value: "yes", ct: table.Boolean, wantErr: table.ErrUnsupportedValue},
		{name: "unknown column type", value: "x", ct: "uuid", wantErr: table.ErrUnsupportedColumnType},
	}

	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.value, tc.ct)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tbl := []struct {
		name  string
		value any
		ct    table.ColumnType
	}{
		{name: "string", value: "hello", ct: table.String},
		{name: "number", value: 3.14, ct: table.Number},
		{name: "nested json", value: map[string]any{"a": []any{1.0, 2.0}, "b": map[string]any{"c": "d"}}, ct: table.JSON},
		{name: "json array", value: []any{"x", 1.0, true}, ct: table.JSONArray},
	}

	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.value, tc.ct)
			require.NoError(t, err)
			decoded, err := Decode(encoded, tc.ct)
			require.NoError(t, err)
			assert.Equal(t, tc.value, decoded)
		})
	}
}

func TestEncodeDecode_Boolean(t *testing.T) {
	for _, v := range []bool{true, false} {
		encoded, err := Encode(v, table.Boolean)
		require.NoError(t, err)
		// drivers return integers as int64
		decoded, err := Decode(int64(encoded.(int)), table.Boolean)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}
