// ABOUTME: json_parse tool: validates JSON, reports its structure, and extracts paths
// ABOUTME: Walks documents with gjson so key order is preserved in every report

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/2389/mcp-runtime/internal/apierr"
	"github.com/2389/mcp-runtime/internal/tools"
)

const (
	maxJSONInput     = 10000
	deepNestingLimit = 10
	largeArrayLimit  = 1000
)

func (h *handlers) jsonParseTool() tools.Tool {
	return tools.Tool{
		Name:        "json_parse",
		Description: "Parse and validate JSON data with optional transformation",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"json_string": {
				Type:        "string",
				Description: "JSON string to parse and validate",
				MinLength:   ptr(1),
				MaxLength:   ptr(maxJSONInput),
			},
			"validate_schema": {
				Type:        "boolean",
				Description: "Perform basic schema validation",
				Default:     defaultValue(false),
			},
			"extract_path": {
				Type:        "string",
				Description: `Dot-separated path to extract specific data (e.g., "user.name" or "items.0.id")`,
				MaxLength:   ptr(100),
			},
			"pretty_print": {
				Type:        "boolean",
				Description: "Return formatted JSON",
				Default:     defaultValue(true),
			},
		}, "json_string"),
		Handler: h.JSONParse,
	}
}

type jsonParseArgs struct {
	JSONString     string `json:"json_string"`
	ValidateSchema bool   `json:"validate_schema"`
	ExtractPath    string `json:"extract_path"`
	PrettyPrint    *bool  `json:"pretty_print"`
}

// JSONParse parses a JSON document and describes it.
func (h *handlers) JSONParse(_ context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[jsonParseArgs](args)
	if err != nil {
		return nil, err
	}
	if in.JSONString == "" {
		return nil, apierr.InvalidParams("json_string is required and must be a string")
	}
	if utf8.RuneCountInString(in.JSONString) > maxJSONInput {
		return nil, apierr.InvalidParams("JSON string too large (max 10,000 characters)")
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(in.JSONString), &raw); err != nil {
		return nil, apierr.InvalidParamsf("Invalid JSON: %v", err)
	}
	doc := gjson.ParseBytes(raw)

	result := map[string]any{
		"valid":     true,
		"data":      raw,
		"analysis":  analyzeJSON(doc),
		"timestamp": h.timestamp(),
	}

	if in.ExtractPath != "" {
		found := doc.Get(in.ExtractPath)
		extracted := map[string]any{
			"path":  in.ExtractPath,
			"found": found.Exists(),
		}
		if found.Exists() {
			extracted["value"] = json.RawMessage(found.Raw)
		}
		result["extracted"] = extracted
	}

	if in.ValidateSchema {
		result["schema"] = checkStructure(doc)
	}

	prettyPrint := in.PrettyPrint == nil || *in.PrettyPrint
	if prettyPrint && (doc.IsObject() || doc.IsArray()) {
		result["formatted"] = strings.TrimSuffix(string(pretty.PrettyOptions(raw, &pretty.Options{
			Width:  80,
			Indent: "  ",
		})), "\n")
	}

	return result, nil
}

func jsonType(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return "null"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	default:
		if r.IsArray() {
			return "array"
		}
		return "object"
	}
}

func analyzeJSON(doc gjson.Result) map[string]any {
	analysis := map[string]any{
		"type":  jsonType(doc),
		"size":  0,
		"keys":  []string{},
		"depth": 0,
	}

	switch {
	case doc.IsArray():
		items := doc.Array()
		analysis["size"] = len(items)
		analysis["item_types"] = childTypes(doc)
		analysis["depth"] = jsonDepth(doc)
	case doc.IsObject():
		keys := objectKeys(doc)
		analysis["keys"] = keys
		analysis["size"] = len(keys)
		analysis["key_types"] = childTypes(doc)
		analysis["depth"] = jsonDepth(doc)
	case doc.Type == gjson.String:
		n := utf8.RuneCountInString(doc.Str)
		analysis["length"] = n
		analysis["size"] = n
	}
	return analysis
}

func objectKeys(doc gjson.Result) []string {
	keys := []string{}
	doc.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

func childTypes(doc gjson.Result) map[string]int {
	types := map[string]int{}
	doc.ForEach(func(_, value gjson.Result) bool {
		types[jsonType(value)]++
		return true
	})
	return types
}

// jsonDepth counts container levels below r; scalars and empty containers are 0.
func jsonDepth(r gjson.Result) int {
	if !r.IsObject() && !r.IsArray() {
		return 0
	}
	depth := 0
	r.ForEach(func(_, value gjson.Result) bool {
		depth = max(depth, 1+jsonDepth(value))
		return true
	})
	return depth
}

func checkStructure(doc gjson.Result) map[string]any {
	issues := []string{}
	recommendations := []string{}

	if doc.IsObject() || doc.IsArray() {
		if depth := jsonDepth(doc); depth > deepNestingLimit {
			issues = append(issues, fmt.Sprintf("Very deep nesting (%d levels) may cause performance issues", depth))
		}
	}

	if doc.IsArray() {
		if n := len(doc.Array()); n > largeArrayLimit {
			issues = append(issues, fmt.Sprintf("Large array (%d items) may be slow to process", n))
		}
		if len(childTypes(doc)) > 2 {
			recommendations = append(recommendations, "Consider using consistent types in arrays")
		}
	}

	if doc.IsObject() {
		var empty []string
		doc.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.Null || (value.Type == gjson.String && value.Str == "") {
				empty = append(empty, key.String())
			}
			return true
		})
		if len(empty) > 0 {
			recommendations = append(recommendations, "Consider handling empty values: "+strings.Join(empty, ", "))
		}
	}

	return map[string]any{
		"is_valid":        len(issues) == 0,
		"issues":          issues,
		"recommendations": recommendations,
	}
}
