package clikit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"text/template"

	"github.com/drewfead/clikit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

type deployment struct {
	Service  string   `json:"service"`
	Replicas int      `json:"replicas"`
	Tags     []string `json:"tags,omitempty"`
}

// formatCommand runs format inside a command that defines flags, so that
// cmd.Bool and friends resolve the way they do under RootCommand.
func formatCommand(t *testing.T, format clikit.OutputFormat, result *clikit.CommandResult, args ...string) string {
	t.Helper()
	var flags []cli.Flag
	if fc, ok := format.(clikit.FlagConfiguredOutputFormat); ok {
		flags = fc.Flags()
	}

	var buf bytes.Buffer
	cmd := &cli.Command{
		Name:  "deploy",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return format.Format(ctx, cmd, &buf, result)
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"deploy"}, args...)))
	return buf.String()
}

func TestUnit_JSONFormat(t *testing.T) {
	result := clikit.Succeed(deployment{Service: "api", Replicas: 3, Tags: []string{"blue"}})

	for _, args := range [][]string{nil, {"--pretty"}} {
		out := formatCommand(t, clikit.JSON(), result, args...)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded), out)
		assert.Equal(t, true, decoded["success"])
		assert.InDelta(t, 0, decoded["exitCode"], 0)
		assert.Equal(t, map[string]any{"service": "api", "replicas": float64(3), "tags": []any{"blue"}}, decoded["data"])
		assert.NotContains(t, decoded, "message", "empty message is omitted")
	}

	pretty := formatCommand(t, clikit.JSON(), result, "--pretty")
	assert.Contains(t, pretty, "\n")
}

func TestUnit_JSONFormat_ErrorNotSerialized(t *testing.T) {
	result := clikit.FailWithError(errors.New("disk full"))
	out := formatCommand(t, clikit.JSON(), result)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "disk full", decoded["message"])
	assert.NotContains(t, decoded, "error")
}

func TestUnit_YAMLFormat(t *testing.T) {
	result := clikit.Succeed(deployment{Service: "api", Replicas: 2})
	out := formatCommand(t, clikit.YAML(), result)

	assert.False(t, strings.HasSuffix(out, "\n"))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, map[string]any{"service": "api", "replicas": 2}, decoded["data"])
}

func TestUnit_GoFormat(t *testing.T) {
	tests := []struct {
		name   string
		result *clikit.CommandResult
		want   string
	}{
		{name: "data", result: clikit.Succeed(deployment{Service: "api", Replicas: 1}), want: "{Service:api Replicas:1 Tags:[]}"},
		{name: "message", result: clikit.SucceedWithMessage("deployed %s", "api"), want: "deployed api"},
		{
			name:   "both",
			result: &clikit.CommandResult{Success: true, Message: "done", Data: []int{1, 2}},
			want:   "done\n[1 2]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCommand(t, clikit.Go(), tt.result))
		})
	}
}

func TestUnit_TemplateFormat_BasicRendering(t *testing.T) {
	funcMap := template.FuncMap{"upper": strings.ToUpper}
	format, err := clikit.TemplateFormat("summary", map[string]string{
		"deploy": `{{upper .data.service}} x{{.data.replicas}}{{if .success}} ok{{end}}`,
	}, funcMap)
	require.NoError(t, err)
	require.Equal(t, "summary", format.Name())

	out := formatCommand(t, format, clikit.Succeed(deployment{Service: "api", Replicas: 4}))
	assert.Equal(t, "API x4 ok", out)
}

func TestUnit_TemplateFormat_Fallback(t *testing.T) {
	format := clikit.MustTemplateFormat("any", map[string]string{"*": `{{.message}}`})

	out := formatCommand(t, format, clikit.SucceedWithMessage("hello"))
	assert.Equal(t, "hello", out)
}

func TestUnit_TemplateFormat_MissingCommand(t *testing.T) {
	format, err := clikit.TemplateFormat("test", map[string]string{"rollback": `{{.message}}`})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = format.Format(context.Background(), &cli.Command{Name: "deploy"}, &buf, clikit.Succeed(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no template registered for command deploy")
	assert.Contains(t, err.Error(), "rollback")
}

func TestUnit_TemplateFormat_InvalidTemplate(t *testing.T) {
	_, err := clikit.TemplateFormat("test", map[string]string{"deploy": `{{.unclosed`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")

	require.Panics(t, func() {
		_ = clikit.MustTemplateFormat("test", map[string]string{"deploy": `{{.unclosed`})
	})
}

func TestUnit_ResultStruct(t *testing.T) {
	s, err := clikit.ResultStruct(clikit.FailWithCode(7, "quota exceeded"))
	require.NoError(t, err)

	fields := s.GetFields()
	assert.False(t, fields["success"].GetBoolValue())
	assert.InDelta(t, 7, fields["exitCode"].GetNumberValue(), 0)
	assert.Equal(t, "quota exceeded", fields["message"].GetStringValue())

	_, err = clikit.ResultStruct(clikit.Succeed(func() {}))
	require.Error(t, err, "unencodable data is reported")
}
