package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_Deterministic(t *testing.T) {
	v := map[string]any{"name": "Alice", "age": 30, "tags": []any{"a", "b"}}

	s1, err := Sum(v)
	require.NoError(t, err)
	s2, err := Sum(v)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 64, "hex sha256")
}

func TestSum_KeyOrderIndependent(t *testing.T) {
	v1 := map[string]any{"a": 1, "b": 2, "c": map[string]any{"x": 1, "y": 2}}
	v2 := map[string]any{"c": map[string]any{"y": 2, "x": 1}, "b": 2, "a": 1}

	s1, err := Sum(v1)
	require.NoError(t, err)
	s2, err := Sum(v2)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestSum_ExcludesHashField(t *testing.T) {
	plain := map[string]any{"name": "Alice"}
	stamped := map[string]any{"name": "Alice", "hash": "deadbeef"}

	s1, err := Sum(plain)
	require.NoError(t, err)
	s2, err := Sum(stamped)
	require.NoError(t, err)
	assert.Equal(t, s1, s2, "hash field must not affect the digest")
	assert.Equal(t, "deadbeef", stamped["hash"], "input value not mutated")
}

func TestSum_StructAndMapAgree(t *testing.T) {
	type cfg struct {
		Key  string `json:"key"`
		Type string `json:"type"`
		Hash string `json:"hash,omitempty"`
	}

	s1, err := Sum(cfg{Key: "users", Type: "people", Hash: "deadbeef"})
	require.NoError(t, err)
	s2, err := Sum(map[string]any{"key": "users", "type": "people"})
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestSum_NumericNormalization(t *testing.T) {
	s1, err := Sum(map[string]any{"n": 1})
	require.NoError(t, err)
	s2, err := Sum(map[string]any{"n": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, s1, s2, "int and whole float hash the same")
}

func TestSum_Unserializable(t *testing.T) {
	_, err := Sum(map[string]any{"f": func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't serialize")
}
