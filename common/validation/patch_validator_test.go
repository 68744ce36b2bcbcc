package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchValidator_AcceptsEditableFields(t *testing.T) {
	v := NewPatchValidator()

	err := v.ValidateOperations([]map[string]interface{}{
		{"op": "replace", "path": "/is_readonly", "value": true},
		{"op": "replace", "path": "/secret_key", "value": "rotated"},
		{"op": "test", "path": "/endpoint", "value": "minio:9000"},
		{"op": "remove", "path": "/priority"},
	})
	require.NoError(t, err)
}

func TestPatchValidator_Rejects(t *testing.T) {
	v := NewPatchValidator()

	cases := []struct {
		name string
		ops  []map[string]interface{}
		want string
	}{
		{
			name: "empty patch",
			ops:  []map[string]interface{}{},
			want: "no operations",
		},
		{
			name: "missing op",
			ops:  []map[string]interface{}{{"path": "/region"}},
			want: "'op' field",
		},
		{
			name: "missing path",
			ops:  []map[string]interface{}{{"op": "replace", "value": 1}},
			want: "'path' field",
		},
		{
			name: "counter path",
			ops:  []map[string]interface{}{{"op": "replace", "path": "/used_bytes", "value": 0}},
			want: "not an editable box field",
		},
		{
			name: "id path",
			ops:  []map[string]interface{}{{"op": "replace", "path": "/id", "value": "other"}},
			want: "not an editable box field",
		},
		{
			name: "replace without value",
			ops:  []map[string]interface{}{{"op": "replace", "path": "/region"}},
			want: "'value' required",
		},
		{
			name: "unsupported op",
			ops:  []map[string]interface{}{{"op": "move", "path": "/region", "from": "/bucket"}},
			want: "unsupported operation",
		},
		{
			name: "second op invalid",
			ops: []map[string]interface{}{
				{"op": "replace", "path": "/region", "value": "eu"},
				{"op": "replace", "path": "/reserved_bytes", "value": 9},
			},
			want: "operation 1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateOperations(tc.ops)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
