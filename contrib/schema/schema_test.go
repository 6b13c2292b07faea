package schema_test

import (
	"testing"

	"github.com/drewfead/clikit/cliargs"
	"github.com/drewfead/clikit/contrib/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const targetSchema = `{
	"type": "object",
	"required": ["region"],
	"properties": {
		"region": {"type": "string", "enum": ["us", "eu"]},
		"weight": {"type": "integer", "minimum": 1}
	}
}`

func TestUnit_Compile(t *testing.T) {
	_, err := schema.Compile(`{"type": 12}`)
	require.Error(t, err)

	_, err = schema.Compile(`not json`)
	require.Error(t, err)

	require.Panics(t, func() { schema.MustCompile(`{"type": 12}`) })
}

func TestUnit_Parse(t *testing.T) {
	s := schema.MustCompile(targetSchema)

	tests := []struct {
		name    string
		value   any
		wantErr string
	}{
		{name: "valid", value: map[string]any{"region": "us", "weight": 2}},
		{name: "missing required", value: map[string]any{"weight": 2}, wantErr: "region"},
		{name: "bad enum", value: map[string]any{"region": "apac"}, wantErr: "region"},
		{name: "below minimum", value: map[string]any{"region": "eu", "weight": 0}, wantErr: "weight"},
		{name: "wrong type", value: "us", wantErr: "does not match schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Parse(tt.value)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.value, got)
				return
			}
			require.ErrorIs(t, err, schema.ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnit_FromValue(t *testing.T) {
	s, err := schema.FromValue(map[string]any{"type": "string", "minLength": 3})
	require.NoError(t, err)

	_, err = s.Parse("ok")
	require.ErrorIs(t, err, schema.ErrInvalid)

	v, err := s.Parse("okay")
	require.NoError(t, err)
	assert.Equal(t, "okay", v)
}

func TestIntegration_SchemaInParser(t *testing.T) {
	parser := cliargs.NewParser(nil, []cliargs.OptionDefinition{
		{Name: "target", Type: cliargs.TypeJSON, Required: true, Schema: schema.MustCompile(targetSchema)},
	}, cliargs.Config{})

	result := parser.Parse([]string{"--target", `{"region":"eu","weight":3}`})
	require.True(t, result.Validation.Success, result.Validation.Summary())
	assert.Equal(t, map[string]any{"region": "eu", "weight": float64(3)}, result.Options["target"])

	result = parser.Parse([]string{"--target", `{"weight":3}`})
	require.False(t, result.Validation.Success)
	errs := result.Validation.ErrorsFor("options.target")
	require.Len(t, errs, 1)
	assert.Equal(t, cliargs.CodeSchema, errs[0].Code)
	assert.Contains(t, errs[0].Message, "region")
}
