package yaml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/k8r/pkg/yaml"
)

const testSchema = `{
	"type": "object",
	"properties": {
		"kind": {"const": "Configuration"},
		"run": {
			"type": "object",
			"properties": {
				"baseImage": {"type": "string"},
				"collisionPolicy": {"enum": ["fail", "increment"]}
			},
			"additionalProperties": false
		},
		"monitor": {
			"type": "object",
			"properties": {
				"maxConsecutiveErrors": {"type": "integer", "minimum": 1}
			}
		},
		"secrets": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {"name": {"type": "string"}},
				"required": ["name"]
			}
		}
	},
	"required": ["kind"]
}`

func TestNewValidator(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		errMsg string
		schema string
	}{
		"valid schema": {
			schema: testSchema,
		},
		"empty schema": {
			schema: `{}`,
		},
		"invalid json": {
			schema: `{"type": json}`,
			errMsg: "unmarshal schema",
		},
		"invalid schema": {
			schema: `{"type": "invalid_type"}`,
			errMsg: "compile schema",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v, err := yaml.NewValidator("test.json", []byte(tc.schema))
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				assert.Nil(t, v)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	v, err := yaml.NewValidator("test.json", []byte(testSchema))
	require.NoError(t, err)

	tcs := map[string]struct {
		data     any
		wantPath string
	}{
		"valid": {
			data: map[string]any{
				"kind": "Configuration",
				"run":  map[string]any{"baseImage": "alpine:latest"},
			},
		},
		"missing kind": {
			data:     map[string]any{},
			wantPath: "$",
		},
		"wrong kind": {
			data:     map[string]any{"kind": "Job"},
			wantPath: "$.kind",
		},
		"unknown policy": {
			data: map[string]any{
				"kind": "Configuration",
				"run":  map[string]any{"collisionPolicy": "overwrite"},
			},
			wantPath: "$.run.collisionPolicy",
		},
		"extra field": {
			data: map[string]any{
				"kind": "Configuration",
				"run":  map[string]any{"image": "alpine"},
			},
			wantPath: "$.run",
		},
		"below minimum": {
			data: map[string]any{
				"kind":    "Configuration",
				"monitor": map[string]any{"maxConsecutiveErrors": 0},
			},
			wantPath: "$.monitor.maxConsecutiveErrors",
		},
		"array item": {
			data: map[string]any{
				"kind": "Configuration",
				"secrets": []any{
					map[string]any{"name": "a"},
					map[string]any{"name": 5},
				},
			},
			wantPath: "$.secrets[1].name",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := v.Validate(tc.data)
			if tc.wantPath == "" {
				require.NoError(t, err)

				return
			}

			var yerr *yaml.Error
			require.ErrorAs(t, err, &yerr)
			require.NotNil(t, yerr.Path)
			assert.Equal(t, tc.wantPath, yerr.Path.String())
		})
	}
}
