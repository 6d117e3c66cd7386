// ABOUTME: csv_process tool: parses delimited text, infers column types, filters and summarizes
// ABOUTME: Row count is capped by max_rows; all failures surface as INVALID_PARAMS

package builtins

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/tools"
)

const (
	maxCSVInput      = 50000
	defaultCSVRows   = 100
	maxCSVRows       = 1000
	csvSampleRows    = 5
	csvFilteredRows  = 10
	csvSampleValues  = 3
	maxAnalyzeColumn = 10
)

// dateLayouts are the date shapes recognised during type inference.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123,
}

func (h *handlers) csvProcessTool() tools.Tool {
	return tools.Tool{
		Name:        "csv_process",
		Description: "Parse and analyze CSV data with filtering and statistics",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"csv_data": {
				Type:        "string",
				Description: "CSV data as a string",
				MinLength:   ptr(1),
				MaxLength:   ptr(maxCSVInput),
			},
			"delimiter": {
				Type:        "string",
				Description: "CSV delimiter character",
				Default:     defaultValue(","),
				MaxLength:   ptr(1),
			},
			"has_header": {
				Type:        "boolean",
				Description: "Whether the first row contains column headers",
				Default:     defaultValue(true),
			},
			"filter_column": {
				Type:        "string",
				Description: "Column name or index to filter by",
				MaxLength:   ptr(50),
			},
			"filter_value": {
				Type:        "string",
				Description: "Value to filter for in the specified column",
				MaxLength:   ptr(100),
			},
			"analyze_columns": {
				Type:        "array",
				Description: "Column names or indices to analyze statistically",
				Items:       &jsonschema.Schema{Type: "string", MaxLength: ptr(50)},
				MaxItems:    ptr(maxAnalyzeColumn),
			},
			"max_rows": {
				Type:        "number",
				Description: "Maximum number of rows to process",
				Minimum:     ptr(1.0),
				Maximum:     ptr(float64(maxCSVRows)),
				Default:     defaultValue(defaultCSVRows),
			},
		}, "csv_data"),
		Handler: h.CSVProcess,
	}
}

type csvArgs struct {
	CSVData        string   `json:"csv_data"`
	Delimiter      *string  `json:"delimiter"`
	HasHeader      *bool    `json:"has_header"`
	FilterColumn   string   `json:"filter_column"`
	FilterValue    *string  `json:"filter_value"`
	AnalyzeColumns []string `json:"analyze_columns"`
	MaxRows        float64  `json:"max_rows"`
}

type csvTable struct {
	Headers []string
	Rows    [][]string
}

// CSVProcess parses CSV text and reports structure, filters, and statistics.
func (h *handlers) CSVProcess(_ context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[csvArgs](args)
	if err != nil {
		return nil, err
	}
	if in.CSVData == "" {
		return nil, apierr.InvalidParams("csv_data is required and must be a string")
	}
	if utf8.RuneCountInString(in.CSVData) > maxCSVInput {
		return nil, apierr.InvalidParams("CSV data too large (max 50,000 characters)")
	}

	delimiter := ","
	if in.Delimiter != nil {
		delimiter = *in.Delimiter
	}
	if utf8.RuneCountInString(delimiter) != 1 {
		return nil, apierr.InvalidParams("Delimiter must be a single character")
	}
	hasHeader := in.HasHeader == nil || *in.HasHeader
	maxRows := defaultCSVRows
	if in.MaxRows > 0 {
		maxRows = min(int(in.MaxRows), maxCSVRows)
	}

	table, err := parseCSV(in.CSVData, []rune(delimiter)[0], hasHeader, maxRows)
	if err != nil {
		return nil, csvFailure(err)
	}

	sample := table.Rows[:min(csvSampleRows, len(table.Rows))]
	result := map[string]any{
		"success": true,
		"metadata": map[string]any{
			"total_rows":    len(table.Rows),
			"total_columns": len(table.Headers),
			"has_header":    hasHeader,
			"delimiter":     delimiter,
			"processed_at":  h.timestamp(),
		},
		"headers":     table.Headers,
		"sample_data": sample,
		"statistics": map[string]any{
			"row_count":    len(table.Rows),
			"column_count": len(table.Headers),
			"empty_cells":  countEmptyCells(table.Rows),
			"data_types":   inferColumnTypes(table),
		},
	}

	if in.FilterColumn != "" && in.FilterValue != nil {
		matches, err := filterRows(table, in.FilterColumn, *in.FilterValue)
		if err != nil {
			return nil, csvFailure(err)
		}
		result["filtered"] = map[string]any{
			"filter":        map[string]string{"column": in.FilterColumn, "value": *in.FilterValue},
			"matching_rows": len(matches),
			"data":          matches[:min(csvFilteredRows, len(matches))],
		}
	}

	if len(in.AnalyzeColumns) > 0 {
		result["analysis"] = analyzeColumns(table, in.AnalyzeColumns)
	}

	return result, nil
}

func csvFailure(err error) error {
	return apierr.InvalidParamsf("CSV processing failed: %v", err)
}

func parseCSV(data string, delimiter rune, hasHeader bool, maxRows int) (*csvTable, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, errors.New("CSV data is empty")
	}

	r := csv.NewReader(strings.NewReader(data))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	limit := maxRows
	if hasHeader {
		limit++
	}

	var records [][]string
	for len(records) < limit {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, errors.New("CSV data is empty")
	}

	table := &csvTable{Rows: [][]string{}}
	start := 0
	if hasHeader {
		table.Headers = records[0]
		start = 1
	} else {
		table.Headers = make([]string, len(records[0]))
		for i := range table.Headers {
			table.Headers[i] = fmt.Sprintf("Column_%d", i+1)
		}
	}

	width := len(table.Headers)
	for _, rec := range records[start:] {
		row := make([]string, width)
		copy(row, rec)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func countEmptyCells(rows [][]string) int {
	n := 0
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) == "" {
				n++
			}
		}
	}
	return n
}

// columnValues returns the non-empty cells of column i.
func columnValues(t *csvTable, i int) []string {
	var values []string
	for _, row := range t.Rows {
		if v := row[i]; strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}
	return values
}

func inferColumnTypes(t *csvTable) map[string]any {
	out := make(map[string]any, len(t.Headers))
	for i, header := range t.Headers {
		values := columnValues(t, i)
		if len(values) == 0 {
			out[header] = map[string]any{"type": "empty", "sample_values": []string{}}
			continue
		}

		dist := map[string]int{"number": 0, "date": 0, "boolean": 0, "string": 0}
		for _, v := range values {
			switch {
			case isNumeric(v):
				dist["number"]++
			case isDate(v):
				dist["date"]++
			case isBoolean(v):
				dist["boolean"]++
			default:
				dist["string"]++
			}
		}

		// Later kinds win ties.
		dominant := "number"
		for _, kind := range []string{"date", "boolean", "string"} {
			if dist[kind] >= dist[dominant] {
				dominant = kind
			}
		}

		out[header] = map[string]any{
			"type":              dominant,
			"type_distribution": dist,
			"sample_values":     values[:min(csvSampleValues, len(values))],
			"unique_count":      countUnique(values),
			"total_count":       len(values),
		}
	}
	return out
}

// resolveColumn maps a header name or a decimal index to a column position.
func resolveColumn(t *csvTable, column string) (int, error) {
	if idx, err := strconv.Atoi(column); err == nil && !strings.HasPrefix(column, "-") && !strings.HasPrefix(column, "+") {
		if idx < 0 || idx >= len(t.Headers) {
			return 0, fmt.Errorf("Column index %d out of range", idx)
		}
		return idx, nil
	}
	idx := slices.Index(t.Headers, column)
	if idx < 0 {
		return 0, fmt.Errorf("Column %q not found", column)
	}
	return idx, nil
}

func filterRows(t *csvTable, column, value string) ([][]string, error) {
	idx, err := resolveColumn(t, column)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(value)
	matches := [][]string{}
	for _, row := range t.Rows {
		if cell := row[idx]; cell != "" && strings.Contains(strings.ToLower(cell), needle) {
			matches = append(matches, row)
		}
	}
	return matches, nil
}

func analyzeColumns(t *csvTable, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, column := range columns {
		idx, err := resolveColumn(t, column)
		if err != nil {
			out[column] = map[string]string{"error": err.Error()}
			continue
		}

		header := t.Headers[idx]
		values := columnValues(t, idx)
		if len(values) == 0 {
			out[header] = map[string]string{"error": "No non-empty values found"}
			continue
		}

		var nums []float64
		for _, v := range values {
			if f, ok := parseNumber(v); ok {
				nums = append(nums, f)
			}
		}

		if len(nums) > 0 {
			out[header] = numericSummary(nums)
		} else {
			out[header] = textSummary(values)
		}
	}
	return out
}

func numericSummary(nums []float64) map[string]any {
	sorted := slices.Clone(nums)
	slices.Sort(sorted)

	sum := 0.0
	unique := make(map[float64]struct{}, len(nums))
	for _, n := range nums {
		sum += n
		unique[n] = struct{}{}
	}

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return map[string]any{
		"type":          "numeric",
		"count":         len(nums),
		"min":           sorted[0],
		"max":           sorted[len(sorted)-1],
		"mean":          sum / float64(len(nums)),
		"median":        median,
		"unique_values": len(unique),
	}
}

func textSummary(values []string) map[string]any {
	counts := make(map[string]int, len(values))
	var order []string
	totalLen := 0
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
		totalLen += utf8.RuneCountInString(v)
	}

	// Later first-seen values win ties.
	best := order[0]
	for _, v := range order[1:] {
		if counts[v] >= counts[best] {
			best = v
		}
	}

	return map[string]any{
		"type":          "text",
		"count":         len(values),
		"unique_values": len(counts),
		"most_common":   map[string]any{"value": best, "count": counts[best]},
		"avg_length":    float64(totalLen) / float64(len(values)),
	}
}

func countUnique(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func parseNumber(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func isNumeric(v string) bool {
	_, ok := parseNumber(v)
	return ok
}

func isDate(v string) bool {
	if len(v) <= 4 {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func isBoolean(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false", "yes", "no", "1", "0":
		return true
	}
	return false
}
