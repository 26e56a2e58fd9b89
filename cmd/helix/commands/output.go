package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// renderOutput writes value as JSON or YAML, or hands a table to fill for
// the table format.
func renderOutput(w io.Writer, format string, value interface{}, fill func(*tablewriter.Table) error) error {
	switch format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", strings.Repeat(" ", constants.JSONIndentSize))

		return encoder.Encode(value)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(w)
		defer func() { _ = encoder.Close() }()

		return encoder.Encode(value)
	case constants.FormatTable, "":
		table := tablewriter.NewWriter(w)

		err := fill(table)
		if err != nil {
			return err
		}

		err = table.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnsupportedFormat, format)
	}
}

// renderItems prints raw API items. JSON and YAML keep the structure; the
// table has one column per top-level field.
func renderItems(w io.Writer, format string, items []json.RawMessage) error {
	decoded := make([]interface{}, 0, len(items))

	for _, item := range items {
		var value interface{}

		err := json.Unmarshal(item, &value)
		if err != nil {
			return fmt.Errorf("failed to decode item: %w", err)
		}

		decoded = append(decoded, value)
	}

	return renderOutput(w, format, decoded, func(table *tablewriter.Table) error {
		return itemsTable(table, decoded)
	})
}

func itemsTable(table *tablewriter.Table, items []interface{}) error {
	columns := itemColumns(items)
	if len(columns) == 0 {
		table.Header("Value")

		for _, item := range items {
			err := table.Append(cellValue(item))
			if err != nil {
				return fmt.Errorf("failed to append table row: %w", err)
			}
		}

		return nil
	}

	header := make([]any, len(columns))
	for i, column := range columns {
		header[i] = column
	}

	table.Header(header...)

	for _, item := range items {
		object, _ := item.(map[string]interface{})

		row := make([]string, len(columns))
		for i, column := range columns {
			row[i] = cellValue(object[column])
		}

		err := table.Append(row)
		if err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}

	return nil
}

// itemColumns returns the sorted union of top-level keys of object items.
func itemColumns(items []interface{}) []string {
	seen := map[string]bool{}

	for _, item := range items {
		object, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		for key := range object {
			seen[key] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}

	sort.Strings(columns)

	return columns
}

func cellValue(value interface{}) string {
	var text string

	switch v := value.(type) {
	case nil:
		return ""
	case string:
		text = v
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		text = strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return constants.NotAvailable
		}

		text = string(data)
	}

	if len(text) > constants.StringTruncationLength {
		return text[:constants.StringTruncationLength-3] + "..."
	}

	return text
}
