package blueprint

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const blueprintSchema = "blueprint"

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	schemas = make(map[string]*gojsonschema.Schema)
	names := []string{blueprintSchema}
	for _, s := range Sections {
		names = append(names, string(s))
	}
	for _, name := range names {
		data, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			schemasErr = fmt.Errorf("failed to read schema %s: %w", name, err)
			return
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			schemasErr = fmt.Errorf("failed to compile schema %s: %w", name, err)
			return
		}
		schemas[name] = schema
	}
}

func schemaFor(name string) (*gojsonschema.Schema, error) {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return nil, schemasErr
	}
	schema, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("no schema for %q", name)
	}
	return schema, nil
}

// ExtractJSON strips markdown code fences and any prose around the outermost
// JSON object in a model reply.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)

	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	if !strings.HasPrefix(s, "{") {
		start := strings.IndexByte(s, '{')
		end := strings.LastIndexByte(s, '}')
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// ParseSection extracts and schema-checks the JSON for one section. Any
// failure is a PARSE_ERROR.
func ParseSection(name SectionName, text string) (json.RawMessage, error) {
	return parseAgainst(string(name), text)
}

// DecodeSection parses text and decodes it into out.
func DecodeSection(name SectionName, text string, out interface{}) (json.RawMessage, error) {
	raw, err := ParseSection(name, text)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, types.NewParseError(fmt.Sprintf("%s does not match the expected shape", name), err)
	}
	return raw, nil
}

// ParseBlueprint parses a whole blueprint reply. Only the presence of the
// five sections is checked.
func ParseBlueprint(text string) (*Blueprint, error) {
	raw, err := parseAgainst(blueprintSchema, text)
	if err != nil {
		return nil, err
	}
	var bp Blueprint
	if err := json.Unmarshal(raw, &bp); err != nil {
		return nil, types.NewParseError("blueprint does not match the expected shape", err)
	}
	return &bp, nil
}

func parseAgainst(schemaName, text string) (json.RawMessage, error) {
	candidate := ExtractJSON(text)
	if candidate == "" {
		return nil, types.NewParseError(fmt.Sprintf("empty %s response", schemaName), nil)
	}
	if !json.Valid([]byte(candidate)) {
		return nil, types.NewParseError(fmt.Sprintf("%s response is not valid JSON", schemaName), nil)
	}

	schema, err := schemaFor(schemaName)
	if err != nil {
		return nil, types.NewParseError(err.Error(), err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(candidate))
	if err != nil {
		return nil, types.NewParseError(fmt.Sprintf("%s validation error", schemaName), err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, types.NewParseError(fmt.Sprintf("%s failed schema check: %s", schemaName, strings.Join(errs, "; ")), nil)
	}
	return json.RawMessage(candidate), nil
}
