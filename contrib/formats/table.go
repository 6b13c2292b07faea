// Package formats provides additional output formats for clikit.
package formats

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/drewfead/clikit"
	"github.com/urfave/cli/v3"
	"google.golang.org/protobuf/types/known/structpb"
)

// tableFormat renders result data as tab-separated columns.
type tableFormat struct{}

func (f *tableFormat) Name() string {
	return "table"
}

func (f *tableFormat) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-header",
			Usage: "Suppress the header row in table output",
		},
	}
}

func (f *tableFormat) Format(_ context.Context, cmd *cli.Command, w io.Writer, result *clikit.CommandResult) error {
	s, err := clikit.ResultStruct(result)
	if err != nil {
		return err
	}

	rows := rowsOf(s.GetFields()["data"], result.Message)
	keys := columns(rows)

	var lines []string
	if !cmd.Bool("no-header") {
		lines = append(lines, strings.Join(keys, "\t"))
	}
	for _, row := range rows {
		vals := make([]string, 0, len(keys))
		for _, k := range keys {
			vals = append(vals, formatValue(row[k]))
		}
		lines = append(lines, strings.Join(vals, "\t"))
	}

	_, err = io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// Table returns an OutputFormat that renders result data as tab-separated columns.
//
// Features:
//   - A list of objects renders one row per item; any other data is one row
//   - Flattens nested objects with dot notation (e.g. "user.name")
//   - Renders lists inside a row as comma-separated values
//   - Scalar data renders under a "value" column; results without data show
//     their message under "message"
//   - Sorted column keys for deterministic output
//   - Supports --no-header flag to suppress the header row
//   - Tab-separated output is composable with `column -t`
func Table() clikit.OutputFormat {
	return &tableFormat{}
}

func rowsOf(data *structpb.Value, message string) []map[string]*structpb.Value {
	switch kind := data.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return []map[string]*structpb.Value{{"message": structpb.NewStringValue(message)}}
	case *structpb.Value_ListValue:
		items := kind.ListValue.GetValues()
		if len(items) > 0 && allStructs(items) {
			rows := make([]map[string]*structpb.Value, 0, len(items))
			for _, item := range items {
				row := make(map[string]*structpb.Value)
				flatten("", item.GetStructValue(), row)
				rows = append(rows, row)
			}
			return rows
		}
	case *structpb.Value_StructValue:
		row := make(map[string]*structpb.Value)
		flatten("", kind.StructValue, row)
		return []map[string]*structpb.Value{row}
	}
	return []map[string]*structpb.Value{{"value": data}}
}

func allStructs(values []*structpb.Value) bool {
	for _, v := range values {
		if v.GetStructValue() == nil {
			return false
		}
	}
	return true
}

// flatten recursively flattens nested structs using dot-separated keys.
func flatten(prefix string, data *structpb.Struct, out map[string]*structpb.Value) {
	for k, v := range data.GetFields() {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested := v.GetStructValue(); nested != nil {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// columns returns the union of row keys in sorted order.
func columns(rows []map[string]*structpb.Value) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	sort.Strings(keys)

	return keys
}

// formatValue converts a value to its string representation for table output.
// Lists are rendered as comma-separated values, null and missing as empty string.
func formatValue(v *structpb.Value) string {
	switch kind := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return ""
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	case *structpb.Value_ListValue:
		parts := make([]string, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%v", v.AsInterface())
}
