package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const schemaRefPrefix = "#/components/schemas/"

type openAPIDoc struct {
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
	// raw keeps the whole document for reference resolution.
	raw map[string]any
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Enum       []string          `yaml:"enum"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type namedDoc struct {
	name string
	doc  openAPIDoc
}

type schemaShape struct {
	Type       string
	Required   []string
	Properties map[string]string
}

func loadDoc(path string) (openAPIDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openAPIDoc{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc.raw); err != nil {
		return doc, fmt.Errorf("parse: %w", err)
	}
	return doc, nil
}

// Every service answers these; the remaining SYSTEM_* codes depend on which
// middleware the service mounts.
var (
	requiredSystemCodes = []string{"SYSTEM_INTERNAL_ERROR", "SYSTEM_METHOD_NOT_ALLOWED", "SYSTEM_NOT_FOUND"}
	optionalSystemCodes = []string{"SYSTEM_RATE_LIMITED"}
)

// checkDocs validates every document on its own and then requires that all
// of them describe the same error envelope and only known SYSTEM_* codes.
func checkDocs(docs []namedDoc) error {
	if len(docs) == 0 {
		return errors.New("no documents")
	}
	var firstShape schemaShape
	for i, d := range docs {
		errSchema, err := getSchema(d.doc, "ErrorResponse")
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if err := validateErrorResponse(d.name, errSchema); err != nil {
			return err
		}
		if err := checkRefs(d.name, d.doc); err != nil {
			return err
		}
		if err := checkSystemCodes(d.name, errSchema.Properties["code"].Enum); err != nil {
			return err
		}
		shape := shapeFromSchema(errSchema)
		if i == 0 {
			firstShape = shape
			continue
		}
		if err := ensureSameShape("ErrorResponse", firstShape, shape); err != nil {
			return fmt.Errorf("%s vs %s: %w", docs[0].name, d.name, err)
		}
	}
	return nil
}

func checkSystemCodes(scope string, codes []string) error {
	present := makeSet(systemCodes(codes))
	for _, code := range requiredSystemCodes {
		if !present[code] {
			return fmt.Errorf("%s ErrorResponse.code missing %s", scope, code)
		}
	}
	known := makeSet(append(append([]string(nil), requiredSystemCodes...), optionalSystemCodes...))
	for code := range present {
		if !known[code] {
			return fmt.Errorf("%s ErrorResponse.code has unknown system code %s", scope, code)
		}
	}
	return nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(scope string, s schema) error {
	if s.Type != "object" {
		return fmt.Errorf("%s ErrorResponse must be object", scope)
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("%s ErrorResponse.required must include %q", scope, field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("%s ErrorResponse.%s must be string", scope, field)
		}
	}
	codes := s.Properties["code"].Enum
	if len(codes) == 0 {
		return fmt.Errorf("%s ErrorResponse.code must list its values", scope)
	}
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if code != strings.ToUpper(code) || strings.ContainsAny(code, " -") {
			return fmt.Errorf("%s ErrorResponse.code %q must be UPPER_SNAKE_CASE", scope, code)
		}
		if seen[code] {
			return fmt.Errorf("%s ErrorResponse.code %q listed twice", scope, code)
		}
		seen[code] = true
	}
	return nil
}

// checkRefs walks the raw document and fails on schema references that do
// not resolve.
func checkRefs(scope string, doc openAPIDoc) error {
	var missing []string
	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			for key, child := range node {
				if ref, ok := child.(string); ok && key == "$ref" && strings.HasPrefix(ref, schemaRefPrefix) {
					if _, ok := doc.Components.Schemas[strings.TrimPrefix(ref, schemaRefPrefix)]; !ok {
						missing = append(missing, ref)
					}
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(doc.raw)
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s: unresolved refs %v", scope, missing)
	}
	return nil
}

func systemCodes(codes []string) []string {
	var out []string
	for _, code := range codes {
		if strings.HasPrefix(code, "SYSTEM_") {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}

func shapeFromSchema(s schema) schemaShape {
	out := schemaShape{
		Type:       s.Type,
		Required:   append([]string(nil), s.Required...),
		Properties: make(map[string]string, len(s.Properties)),
	}
	sort.Strings(out.Required)
	for name, prop := range s.Properties {
		out.Properties[name] = prop.Type
	}
	return out
}

func ensureSameShape(name string, left, right schemaShape) error {
	if left.Type != right.Type {
		return fmt.Errorf("%s type mismatch: %q vs %q", name, left.Type, right.Type)
	}
	if strings.Join(left.Required, ",") != strings.Join(right.Required, ",") {
		return fmt.Errorf("%s required mismatch: %v vs %v", name, left.Required, right.Required)
	}
	if len(left.Properties) != len(right.Properties) {
		return fmt.Errorf("%s property count mismatch: %d vs %d", name, len(left.Properties), len(right.Properties))
	}
	for key, leftType := range left.Properties {
		rightType, ok := right.Properties[key]
		if !ok {
			return fmt.Errorf("%s missing property %q", name, key)
		}
		if leftType != rightType {
			return fmt.Errorf("%s property %q mismatch: %q vs %q", name, key, leftType, rightType)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}
