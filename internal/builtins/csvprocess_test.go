// ABOUTME: Tests for the csv_process tool
// ABOUTME: Parsing, type inference, filtering, column statistics, and error paths

package builtins

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-runtime/internal/apierr"
)

const peopleCSV = `name,age,city,joined
Alice,30,New York,2021-03-04
Bob,25,Boston,2020-01-02
"Carol, Jr.",35,New York,
Dan,,Chicago,2022-07-08
`

func csvArgsFor(t *testing.T, data string, extra map[string]any) string {
	t.Helper()
	args := map[string]any{"csv_data": data}
	for k, v := range extra {
		args[k] = v
	}
	b, err := json.Marshal(args)
	require.NoError(t, err)
	return string(b)
}

func TestCSVProcess_Basics(t *testing.T) {
	h := newHandlers(testConfig())

	got := call(t, h.CSVProcess, csvArgsFor(t, peopleCSV, nil))
	assert.Equal(t, true, got["success"])
	assert.Equal(t, []any{"name", "age", "city", "joined"}, got["headers"])

	meta := got["metadata"].(map[string]any)
	assert.EqualValues(t, 4, meta["total_rows"])
	assert.EqualValues(t, 4, meta["total_columns"])
	assert.Equal(t, true, meta["has_header"])
	assert.Equal(t, ",", meta["delimiter"])
	assert.Equal(t, "2024-01-15T12:00:00.000Z", meta["processed_at"])

	sample := got["sample_data"].([]any)
	require.Len(t, sample, 4)
	assert.Equal(t, []any{"Carol, Jr.", "35", "New York", ""}, sample[2])

	stats := got["statistics"].(map[string]any)
	assert.EqualValues(t, 2, stats["empty_cells"])

	types := stats["data_types"].(map[string]any)
	assert.Equal(t, "string", types["name"].(map[string]any)["type"])
	assert.Equal(t, "date", types["joined"].(map[string]any)["type"])

	age := types["age"].(map[string]any)
	assert.Equal(t, "number", age["type"])
	assert.EqualValues(t, 3, age["total_count"])
	assert.EqualValues(t, 3, age["unique_count"])
	assert.Equal(t, []any{"30", "25", "35"}, age["sample_values"])

	assert.NotContains(t, got, "filtered")
	assert.NotContains(t, got, "analysis")
}

func TestCSVProcess_Filter(t *testing.T) {
	h := newHandlers(testConfig())

	for _, column := range []string{"city", "2"} {
		t.Run(column, func(t *testing.T) {
			got := call(t, h.CSVProcess, csvArgsFor(t, peopleCSV, map[string]any{
				"filter_column": column,
				"filter_value":  "new york",
			}))
			filtered := got["filtered"].(map[string]any)
			assert.EqualValues(t, 2, filtered["matching_rows"])
			rows := filtered["data"].([]any)
			require.Len(t, rows, 2)
			assert.Equal(t, "Alice", rows[0].([]any)[0])
			assert.Equal(t, "Carol, Jr.", rows[1].([]any)[0])
		})
	}
}

func TestCSVProcess_Analyze(t *testing.T) {
	h := newHandlers(testConfig())

	got := call(t, h.CSVProcess, csvArgsFor(t, peopleCSV, map[string]any{
		"analyze_columns": []string{"age", "city", "9", "nope"},
	}))
	analysis := got["analysis"].(map[string]any)

	assert.Equal(t, map[string]any{
		"type":          "numeric",
		"count":         3.0,
		"min":           25.0,
		"max":           35.0,
		"mean":          30.0,
		"median":        30.0,
		"unique_values": 3.0,
	}, analysis["age"])

	city := analysis["city"].(map[string]any)
	assert.Equal(t, "text", city["type"])
	assert.EqualValues(t, 4, city["count"])
	assert.EqualValues(t, 3, city["unique_values"])
	assert.Equal(t, map[string]any{"value": "New York", "count": 2.0}, city["most_common"])
	assert.InDelta(t, 7.25, city["avg_length"], 1e-9)

	assert.Equal(t, map[string]any{"error": "Column index 9 out of range"}, analysis["9"])
	assert.Equal(t, map[string]any{"error": `Column "nope" not found`}, analysis["nope"])
}

func TestCSVProcess_NoHeaderAndDelimiter(t *testing.T) {
	h := newHandlers(testConfig())

	got := call(t, h.CSVProcess, csvArgsFor(t, "1;yes\n2;no\n", map[string]any{
		"has_header": false,
		"delimiter":  ";",
	}))
	assert.Equal(t, []any{"Column_1", "Column_2"}, got["headers"])
	assert.EqualValues(t, 2, got["metadata"].(map[string]any)["total_rows"])

	types := got["statistics"].(map[string]any)["data_types"].(map[string]any)
	assert.Equal(t, "number", types["Column_1"].(map[string]any)["type"])
	assert.Equal(t, "boolean", types["Column_2"].(map[string]any)["type"])
}

func TestCSVProcess_RaggedRowsAndMaxRows(t *testing.T) {
	h := newHandlers(testConfig())

	got := call(t, h.CSVProcess, csvArgsFor(t, "a,b,c\n1\n1,2,3,4\n\n5,6,7\n", nil))
	assert.Equal(t, []any{
		[]any{"1", "", ""},
		[]any{"1", "2", "3"},
		[]any{"5", "6", "7"},
	}, got["sample_data"])

	got = call(t, h.CSVProcess, csvArgsFor(t, "a,b,c\n1\n1,2,3,4\n\n5,6,7\n", map[string]any{"max_rows": 2}))
	assert.EqualValues(t, 2, got["metadata"].(map[string]any)["total_rows"])
}

func TestCSVProcess_EmptyColumnType(t *testing.T) {
	h := newHandlers(testConfig())

	got := call(t, h.CSVProcess, csvArgsFor(t, "a,b\n1,\n2,\n", nil))
	types := got["statistics"].(map[string]any)["data_types"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "empty", "sample_values": []any{}}, types["b"])
}

func TestCSVProcess_Errors(t *testing.T) {
	h := newHandlers(testConfig())

	tests := []struct {
		name string
		args string
		msg  string
	}{
		{"blank data", csvArgsFor(t, "   \n  ", nil), "CSV processing failed: CSV data is empty"},
		{"unknown filter column", csvArgsFor(t, peopleCSV, map[string]any{"filter_column": "zzz", "filter_value": "x"}), `CSV processing failed: Column "zzz" not found`},
		{"filter index out of range", csvArgsFor(t, peopleCSV, map[string]any{"filter_column": "7", "filter_value": "x"}), "CSV processing failed: Column index 7 out of range"},
		{"long delimiter", csvArgsFor(t, peopleCSV, map[string]any{"delimiter": "||"}), "Delimiter must be a single character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.CSVProcess(context.Background(), json.RawMessage(tt.args))
			ae, ok := apierr.As(err)
			require.True(t, ok)
			assert.Equal(t, apierr.CodeInvalidParams, ae.Code)
			assert.Equal(t, tt.msg, ae.Message)
		})
	}
}
