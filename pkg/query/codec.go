package query

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/umputun/jtab/pkg/table"
)

// Encode converts a logical json value to a storage primitive according to the
// declared column type. Booleans become 0/1 integers, json and jsonArray
// values are serialized to text, strings and numbers pass through untouched.
// A nil value encodes as sql NULL.
func Encode(v any, ct table.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch ct {
	case table.String, table.Number:
		return v, nil
	case table.Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("boolean column got %T: %w", v, table.ErrUnsupportedValue)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case table.JSON, table.JSONArray:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("can't serialize %s value: %w", ct, table.ErrUnsupportedValue)
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("column type %q: %w", ct, table.ErrUnsupportedColumnType)
	}
}

// Decode converts a storage primitive back to a logical json value. A NULL
// primitive decodes to nil, which callers treat as an absent key; explicit
// null markers are never materialized in decoded rows.
func Decode(v any, ct table.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch ct {
	case table.String:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return v, nil
	case table.Number:
		switch n := v.(type) {
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		case []byte: // mysql text protocol returns numeric columns as raw bytes
			f, err := strconv.ParseFloat(string(n), 64)
			if err != nil {
				return nil, fmt.Errorf("number column stored as %q: %w", n, table.ErrUnsupportedValue)
			}
			return f, nil
		}
		return v, nil
	case table.Boolean:
		switch n := v.(type) {
		case int64:
			return n != 0, nil
		case float64:
			return n != 0, nil
		case bool:
			return n, nil
		case []byte: // mysql text protocol returns tinyint columns as raw bytes
			b, err := strconv.ParseBool(string(n))
			if err != nil {
				return nil, fmt.Errorf("boolean column stored as %q: %w", n, table.ErrUnsupportedValue)
			}
			return b, nil
		}
		return nil, fmt.Errorf("boolean column stored as %T: %w", v, table.ErrUnsupportedValue)
	case table.JSON, table.JSONArray:
		var data []byte
		switch s := v.(type) {
		case string:
			data = []byte(s)
		case []byte:
			data = s
		default:
			return nil, fmt.Errorf("%s column stored as %T: %w", ct, v, table.ErrUnsupportedValue)
		}
		var res any
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, fmt.Errorf("can't parse stored %s value: %w", ct, table.ErrUnsupportedValue)
		}
		return res, nil
	default:
		return nil, fmt.Errorf("column type %q: %w", ct, table.ErrUnsupportedColumnType)
	}
}
