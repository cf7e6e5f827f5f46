package toolgen

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/bobmcallan/persona-mcp/internal/inflect"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
)

// validator checks one field value. The JSON Schema is resolved once when
// the tool is generated.
type validator struct {
	node     *openapi.SchemaNode
	conv     inflect.Converter
	resolved *jsonschema.Resolved
}

func newValidator(node *openapi.SchemaNode, conv inflect.Converter) (*validator, error) {
	// API descriptions use ECMA regex syntax that RE2 may reject.
	rs, err := translateNode(node, conv, patternsCompile(node)).Resolve(nil)
	if err != nil {
		rs, err = translateNode(node, conv, false).Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve schema: %w", err)
		}
	}
	return &validator{node: node, conv: conv, resolved: rs}, nil
}

func patternsCompile(n *openapi.SchemaNode) bool {
	if n == nil {
		return true
	}
	if n.Pattern != "" {
		if _, err := regexp.Compile(n.Pattern); err != nil {
			return false
		}
	}
	for _, prop := range n.Properties {
		if !patternsCompile(prop) {
			return false
		}
	}
	return patternsCompile(n.Items)
}

func (v *validator) validate(value any) error {
	if v == nil {
		return nil
	}
	if err := v.resolved.Validate(value); err != nil {
		return err
	}
	return checkFormats(v.node, v.conv, value)
}

// translate renders a SchemaNode as a JSON Schema. Nested properties are
// keyed by their caller names. Unknown and circular nodes become the empty
// schema, which accepts anything.
func translate(n *openapi.SchemaNode, conv inflect.Converter) *jsonschema.Schema {
	return translateNode(n, conv, true)
}

func translateNode(n *openapi.SchemaNode, conv inflect.Converter, patterns bool) *jsonschema.Schema {
	if n == nil {
		return &jsonschema.Schema{}
	}
	s := &jsonschema.Schema{Description: n.Description}
	switch n.Kind {
	case openapi.KindUnknown, openapi.KindCircular:
		return s
	}

	if n.Nullable {
		s.Types = []string{string(n.Kind), "null"}
	} else {
		s.Type = string(n.Kind)
	}
	if len(n.Enum) > 0 {
		s.Enum = append([]any(nil), n.Enum...)
		if n.Nullable {
			s.Enum = append(s.Enum, nil)
		}
	}

	switch n.Kind {
	case openapi.KindString:
		s.Format = n.Format
		if patterns {
			s.Pattern = n.Pattern
		}
		s.MinLength = intPtr(n.MinLength)
		s.MaxLength = intPtr(n.MaxLength)
	case openapi.KindInteger, openapi.KindNumber:
		s.Minimum = n.Minimum
		s.Maximum = n.Maximum
	case openapi.KindArray:
		s.Items = translateNode(n.Items, conv, patterns)
	case openapi.KindObject:
		if len(n.Properties) > 0 {
			s.Properties = make(map[string]*jsonschema.Schema, len(n.Properties))
			for name, prop := range n.Properties {
				s.Properties[conv.ToCaller(name)] = translateNode(prop, conv, patterns)
			}
		}
		for _, name := range n.Required {
			s.Required = append(s.Required, conv.ToCaller(name))
		}
	}
	return s
}

func intPtr(v *uint64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

// checkFormats applies the string formats JSON Schema treats as annotations.
func checkFormats(n *openapi.SchemaNode, conv inflect.Converter, value any) error {
	if n == nil || value == nil {
		return nil
	}
	switch n.Kind {
	case openapi.KindString:
		s, ok := value.(string)
		if !ok {
			return nil
		}
		return checkFormat(n.Format, s)
	case openapi.KindArray:
		items, ok := value.([]any)
		if !ok {
			return nil
		}
		for i, item := range items {
			if err := checkFormats(n.Items, conv, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	case openapi.KindObject:
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		for name, prop := range n.Properties {
			key := conv.ToCaller(name)
			if err := checkFormats(prop, conv, m[key]); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

func checkFormat(format, s string) error {
	switch format {
	case "email":
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Errorf("%q is not a valid email address", s)
		}
	case "uri", "url":
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%q is not an absolute URL", s)
		}
	case "date-time":
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("%q is not an RFC 3339 timestamp", s)
		}
	case "date":
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return fmt.Errorf("%q is not a YYYY-MM-DD date", s)
		}
	case "uuid":
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Errorf("%q is not a UUID", s)
		}
	}
	return nil
}
