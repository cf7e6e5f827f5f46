package toolgen

import (
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/inflect"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
)

// Options controls shape synthesis.
type Options struct {
	// IncludeOptionalQuery exposes optional query parameters as fields.
	IncludeOptionalQuery bool
	Converter            inflect.Converter
}

// Field is one caller-facing input of a tool.
type Field struct {
	Name        string // caller-facing, camelCase
	WireName    string // as declared by the API
	In          openapi.Location
	// Envelope is the body wrapper the field travels in; empty outside the body.
	Envelope    openapi.Envelope
	Required    bool
	Description string
	Schema      *openapi.SchemaNode

	check *validator
}

// InputShape is the ordered input contract of a tool: path fields, then
// query fields, then body fields.
type InputShape struct {
	Fields []Field
	// Envelope is the body wrapper declared by the request schema.
	Envelope openapi.Envelope

	index map[string]int
	conv  inflect.Converter
}

// Field returns the named field, or nil.
func (s *InputShape) Field(name string) *Field {
	if s == nil {
		return nil
	}
	i, ok := s.index[name]
	if !ok {
		return nil
	}
	return &s.Fields[i]
}

// Required returns the caller names of the required fields in shape order.
func (s *InputShape) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// BuildShape derives the input shape of an operation.
func BuildShape(op *openapi.Operation, opts Options) (*InputShape, error) {
	conv := opts.Converter
	shape := &InputShape{index: map[string]int{}, conv: conv}

	add := func(f Field) error {
		if _, dup := shape.index[f.Name]; dup {
			return apierr.New(apierr.KindToolGeneration,
				"%s: field %q is declared in more than one location", op.ID, f.Name)
		}
		check, err := newValidator(f.Schema, conv)
		if err != nil {
			return apierr.Wrap(apierr.KindToolGeneration, err, "%s: field %q", op.ID, f.Name)
		}
		f.check = check
		shape.index[f.Name] = len(shape.Fields)
		shape.Fields = append(shape.Fields, f)
		return nil
	}

	// Path fields: declared parameters first, then template variables
	// the document forgot to declare. Both are always required.
	declared := map[string]bool{}
	for _, p := range op.ParametersIn(openapi.InPath) {
		declared[p.Name] = true
		if err := add(Field{
			Name:        conv.ToCaller(p.Name),
			WireName:    p.Name,
			In:          openapi.InPath,
			Required:    true,
			Description: p.Description,
			Schema:      p.Schema,
		}); err != nil {
			return nil, err
		}
	}
	for _, name := range openapi.Placeholders(op.Path) {
		if declared[name] {
			continue
		}
		declared[name] = true
		if err := add(Field{
			Name:     conv.ToCaller(name),
			WireName: name,
			In:       openapi.InPath,
			Required: true,
			Schema:   &openapi.SchemaNode{Kind: openapi.KindString},
		}); err != nil {
			return nil, err
		}
	}

	for _, p := range op.ParametersIn(openapi.InQuery) {
		if !p.Required && !opts.IncludeOptionalQuery {
			continue
		}
		if err := add(Field{
			Name:        conv.ToCaller(p.Name),
			WireName:    p.Name,
			In:          openapi.InQuery,
			Required:    p.Required,
			Description: p.Description,
			Schema:      p.Schema,
		}); err != nil {
			return nil, err
		}
	}

	parts := openapi.BodyParts(op.RequestBody)
	if len(parts) > 0 {
		shape.Envelope = parts[0].Envelope
	}
	for _, part := range parts {
		if part.Node.Kind != openapi.KindObject {
			continue
		}
		for _, name := range part.Node.PropertyNames() {
			prop := part.Node.Property(name)
			if err := add(Field{
				Name:        conv.ToCaller(name),
				WireName:    name,
				In:          openapi.InBody,
				Envelope:    part.Envelope,
				Required:    part.Node.IsRequired(name),
				Description: prop.Description,
				Schema:      prop,
			}); err != nil {
				return nil, err
			}
		}
	}
	return shape, nil
}

// JSONSchema renders the shape as the object schema advertised to callers.
func (s *InputShape) JSONSchema() *jsonschema.Schema {
	out := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s.Fields)),
		Required:   s.Required(),
	}
	for _, f := range s.Fields {
		prop := translate(f.Schema, s.conv)
		if f.Description != "" {
			prop.Description = f.Description
		}
		out.Properties[f.Name] = prop
	}
	return out
}

// Validate checks caller arguments against the shape. Arguments the shape
// does not declare are rejected. The first offending field is reported;
// missing required fields are reported in shape order.
func (s *InputShape) Validate(args map[string]any) error {
	if unknown := s.unknown(args); unknown != "" {
		return apierr.InvalidArgument(unknown, "unknown argument %s", unknown)
	}
	for _, f := range s.Fields {
		v, ok := args[f.Name]
		if !ok || v == nil {
			if f.Required {
				return apierr.InvalidArgument(f.Name, "%s is required", f.Name)
			}
			continue
		}
		if f.In == openapi.InPath {
			if str, isStr := v.(string); isStr && str == "" {
				return apierr.InvalidArgument(f.Name, "%s must not be empty", f.Name)
			}
		}
		if err := f.check.validate(v); err != nil {
			return apierr.InvalidArgument(f.Name, "invalid %s: %v", f.Name, err)
		}
	}
	return nil
}

// unknown returns the first undeclared argument name in sorted order.
func (s *InputShape) unknown(args map[string]any) string {
	var names []string
	for name := range args {
		if _, ok := s.index[name]; !ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}
