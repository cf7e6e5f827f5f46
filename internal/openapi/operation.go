// Package openapi loads a dereferenced API description and flattens it into
// the operation model the tool catalog is generated from.
package openapi

import (
	"net/http"
	"strings"
)

// Location is where a parameter travels on the wire.
type Location string

const (
	InPath  Location = "path"
	InQuery Location = "query"
	InBody  Location = "body"
)

// Parameter is one path or query parameter of an operation.
type Parameter struct {
	Name        string
	In          Location
	Required    bool
	Description string
	Schema      *SchemaNode
}

// Operation is one verb+path entry of the API description. Operations are
// immutable once Normalize returns them.
type Operation struct {
	ID                  string
	Method              string
	Path                string
	Tags                []string
	Summary             string
	Description         string
	Parameters          []Parameter
	RequestBody         *SchemaNode
	RequestBodyRequired bool
	Responses           map[string]*SchemaNode
}

// IsRead reports whether the operation uses the safe retrieval verb.
func (o *Operation) IsRead() bool {
	return o.Method == http.MethodGet
}

// ParametersIn returns the parameters declared at the given location.
func (o *Operation) ParametersIn(loc Location) []Parameter {
	var out []Parameter
	for _, p := range o.Parameters {
		if p.In == loc {
			out = append(out, p)
		}
	}
	return out
}

// Segments returns the non-empty path segments.
func (o *Operation) Segments() []string {
	return SplitPath(o.Path)
}

// Family returns the first literal path segment, which groups operations
// acting on the same resource collection.
func (o *Operation) Family() string {
	for _, seg := range o.Segments() {
		if !IsPlaceholder(seg) {
			return seg
		}
	}
	return ""
}

// SplitPath splits a path template into its non-empty segments.
func SplitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// IsPlaceholder reports whether a segment is a "{name}" template variable.
func IsPlaceholder(seg string) bool {
	return len(seg) > 2 && strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

// Placeholders returns the template variable names of a path in order.
func Placeholders(path string) []string {
	var names []string
	for {
		start := strings.Index(path, "{")
		if start < 0 {
			return names
		}
		end := strings.Index(path[start:], "}")
		if end < 0 {
			return names
		}
		names = append(names, path[start+1:start+end])
		path = path[start+end+1:]
	}
}
