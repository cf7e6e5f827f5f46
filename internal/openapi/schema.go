package openapi

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// Kind is the primitive shape of a SchemaNode.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	// KindUnknown marks an unresolved reference or an unsupported shape.
	KindUnknown Kind = "unknown"
	// KindCircular marks a node that refers back to one of its ancestors.
	KindCircular Kind = "circular"
)

// SchemaNode is the normalized, acyclic description of a value's shape.
type SchemaNode struct {
	Kind        Kind
	Description string
	Format      string
	Pattern     string
	Enum        []interface{}
	MinLength   *uint64
	MaxLength   *uint64
	Minimum     *float64
	Maximum     *float64
	Nullable    bool
	Properties  map[string]*SchemaNode
	Required    []string
	Items       *SchemaNode
	Ref         string // source $ref, kept for circular and unknown markers
}

// IsRequired reports whether name is in the node's required set.
func (n *SchemaNode) IsRequired(name string) bool {
	if n == nil {
		return false
	}
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Property returns a named property, or nil.
func (n *SchemaNode) Property(name string) *SchemaNode {
	if n == nil || n.Properties == nil {
		return nil
	}
	return n.Properties[name]
}

// PropertyNames returns the property names in sorted order.
func (n *SchemaNode) PropertyNames() []string {
	if n == nil {
		return nil
	}
	names := make([]string, 0, len(n.Properties))
	for name := range n.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSchema converts a resolved schema reference into a SchemaNode.
// Each call owns its own visited-set so parses never share state.
func ParseSchema(ref *openapi3.SchemaRef) *SchemaNode {
	return parseSchema(ref, make(map[*openapi3.Schema]bool))
}

// parseSchema descends with an explicit set of ancestor schemas. A schema
// met again below itself becomes a KindCircular node instead of recursing.
func parseSchema(ref *openapi3.SchemaRef, visiting map[*openapi3.Schema]bool) *SchemaNode {
	if ref == nil {
		return &SchemaNode{Kind: KindUnknown}
	}
	s := ref.Value
	if s == nil {
		return &SchemaNode{Kind: KindUnknown, Ref: ref.Ref}
	}
	if visiting[s] {
		return &SchemaNode{Kind: KindCircular, Ref: ref.Ref, Description: s.Description}
	}
	visiting[s] = true
	defer delete(visiting, s)

	if len(s.AllOf) > 0 {
		return mergeAllOf(s, visiting)
	}
	if union := unionMembers(s); len(union) > 0 {
		if len(union) == 1 {
			return parseSchema(union[0], visiting)
		}
		return &SchemaNode{Kind: KindUnknown, Description: s.Description, Nullable: s.Nullable}
	}

	node := &SchemaNode{
		Kind:        schemaKind(s),
		Description: s.Description,
		Format:      s.Format,
		Pattern:     s.Pattern,
		Enum:        s.Enum,
		MaxLength:   s.MaxLength,
		Minimum:     s.Min,
		Maximum:     s.Max,
		Nullable:    s.Nullable,
		Ref:         ref.Ref,
	}
	if s.MinLength > 0 {
		minLen := s.MinLength
		node.MinLength = &minLen
	}

	switch node.Kind {
	case KindObject:
		node.Required = append([]string(nil), s.Required...)
		if len(s.Properties) > 0 {
			node.Properties = make(map[string]*SchemaNode, len(s.Properties))
			for name, prop := range s.Properties {
				node.Properties[name] = parseSchema(prop, visiting)
			}
		}
	case KindArray:
		node.Items = parseSchema(s.Items, visiting)
	}
	return node
}

// mergeAllOf flattens allOf members into a single object node.
func mergeAllOf(s *openapi3.Schema, visiting map[*openapi3.Schema]bool) *SchemaNode {
	merged := &SchemaNode{
		Kind:        KindObject,
		Description: s.Description,
		Nullable:    s.Nullable,
		Properties:  map[string]*SchemaNode{},
		Required:    append([]string(nil), s.Required...),
	}
	for name, prop := range s.Properties {
		merged.Properties[name] = parseSchema(prop, visiting)
	}
	var scalar *SchemaNode
	for _, member := range s.AllOf {
		part := parseSchema(member, visiting)
		if part.Kind != KindObject {
			if scalar == nil {
				scalar = part
			}
			continue
		}
		for name, prop := range part.Properties {
			merged.Properties[name] = prop
		}
		merged.Required = appendUnique(merged.Required, part.Required...)
		if merged.Description == "" {
			merged.Description = part.Description
		}
	}
	if len(merged.Properties) == 0 && scalar != nil {
		if scalar.Description == "" {
			scalar.Description = merged.Description
		}
		return scalar
	}
	return merged
}

func unionMembers(s *openapi3.Schema) openapi3.SchemaRefs {
	if len(s.OneOf) > 0 {
		return s.OneOf
	}
	return s.AnyOf
}

// schemaKind resolves the primitive kind, inferring object/array from
// properties/items when the type keyword is absent.
func schemaKind(s *openapi3.Schema) Kind {
	if s.Type != nil {
		for _, t := range s.Type.Slice() {
			switch t {
			case openapi3.TypeString:
				return KindString
			case openapi3.TypeInteger:
				return KindInteger
			case openapi3.TypeNumber:
				return KindNumber
			case openapi3.TypeBoolean:
				return KindBoolean
			case openapi3.TypeArray:
				return KindArray
			case openapi3.TypeObject:
				return KindObject
			}
		}
	}
	switch {
	case len(s.Properties) > 0:
		return KindObject
	case s.Items != nil:
		return KindArray
	default:
		return KindUnknown
	}
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
