// Package request turns a validated argument map into a concrete API request
// using only the operation's path, verb and schema.
package request

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/inflect"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
)

// Mode selects how request bodies are wrapped.
type Mode string

const (
	// ModeJSONAPI wraps bodies in data.attributes or meta.
	ModeJSONAPI Mode = "jsonapi"
	// ModeNone sends converted fields as a flat object.
	ModeNone Mode = "none"
)

// APIRequest is one fully resolved call against the remote API.
type APIRequest struct {
	OperationID string
	Method      string
	Path        string
	Query       url.Values
	Body        any
}

// Builder maps caller arguments onto an operation.
type Builder struct {
	Converter inflect.Converter
	Mode      Mode
}

// NewBuilder creates a builder; an empty mode means ModeJSONAPI.
func NewBuilder(conv inflect.Converter, mode Mode) *Builder {
	if mode == "" {
		mode = ModeJSONAPI
	}
	return &Builder{Converter: conv, Mode: mode}
}

// Build produces the request for op. The envelope is the one declared by the
// body schema; openapi.EnvelopeNone lets the path decide.
func (b *Builder) Build(op *openapi.Operation, args map[string]any, envelope openapi.Envelope) (*APIRequest, error) {
	claimed := map[string]bool{}

	path, err := b.substitutePath(op.Path, args, claimed)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for _, p := range op.ParametersIn(openapi.InQuery) {
		key, v, ok := b.lookup(args, p.Name)
		if !ok {
			continue
		}
		claimed[key] = true
		addQuery(query, p.Name, v)
	}

	req := &APIRequest{
		OperationID: op.ID,
		Method:      strings.ToUpper(op.Method),
		Path:        path,
		Query:       query,
	}
	if req.Method == http.MethodGet {
		return req, nil
	}

	rest := make(map[string]any)
	for k, v := range args {
		if !claimed[k] {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		return req, nil
	}
	req.Body = b.body(op, rest, envelope)
	return req, nil
}

// body converts the remaining arguments to wire form and wraps them. Each
// key travels in the envelope of the schema part declaring it; undeclared
// keys use the default envelope.
func (b *Builder) body(op *openapi.Operation, rest map[string]any, envelope openapi.Envelope) any {
	parts := openapi.BodyParts(op.RequestBody)
	if b.Mode == ModeNone {
		var node *openapi.SchemaNode
		if len(parts) == 1 {
			node = parts[0].Node
		}
		return b.wireValue(node, rest)
	}

	if envelope == openapi.EnvelopeNone {
		envelope = openapi.EnvelopeAttributes
		if IsActionPath(op.Path) {
			envelope = openapi.EnvelopeMeta
		}
	}

	groups := map[openapi.Envelope]map[string]any{}
	for key, v := range rest {
		env, wire, node := envelope, b.Converter.ToWire(key), (*openapi.SchemaNode)(nil)
		for _, part := range parts {
			if name, prop, ok := b.property(part.Node, key); ok {
				wire, node = name, prop
				if part.Envelope != openapi.EnvelopeNone {
					env = part.Envelope
				}
				break
			}
		}
		if groups[env] == nil {
			groups[env] = map[string]any{}
		}
		groups[env][wire] = b.wireValue(node, v)
	}

	out := map[string]any{}
	if attrs, ok := groups[openapi.EnvelopeAttributes]; ok {
		data := map[string]any{"attributes": attrs}
		if openapi.DeclaresResourceType(op.RequestBody) {
			data["type"] = inflect.Singularize(op.Family())
		}
		out["data"] = data
	}
	if meta, ok := groups[openapi.EnvelopeMeta]; ok {
		out["meta"] = meta
	}
	return out
}

// property finds the schema property a caller key refers to, by its wire
// name or by the caller form of that name.
func (b *Builder) property(node *openapi.SchemaNode, key string) (string, *openapi.SchemaNode, bool) {
	if node == nil {
		return "", nil, false
	}
	if prop := node.Property(key); prop != nil {
		return key, prop, true
	}
	for name, prop := range node.Properties {
		if b.Converter.ToCaller(name) == key {
			return name, prop, true
		}
	}
	return "", nil, false
}

// wireValue converts map keys to their declared wire names, falling back
// to the converter where the schema is silent.
func (b *Builder) wireValue(node *openapi.SchemaNode, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if name, prop, ok := b.property(node, k); ok {
				out[name] = b.wireValue(prop, inner)
				continue
			}
			out[b.Converter.ToWire(k)] = b.wireValue(nil, inner)
		}
		return out
	case []any:
		var items *openapi.SchemaNode
		if node != nil {
			items = node.Items
		}
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = b.wireValue(items, inner)
		}
		return out
	default:
		return v
	}
}

// substitutePath fills every template placeholder from args. A placeholder
// left without a value is a MissingPathParameter failure.
func (b *Builder) substitutePath(template string, args map[string]any, claimed map[string]bool) (string, error) {
	path := template
	for _, name := range openapi.Placeholders(template) {
		key, v, ok := b.lookup(args, name)
		s := ""
		if ok {
			s = scalarString(v)
		}
		if s == "" {
			return "", apierr.InvalidArgument(b.Converter.ToCaller(name),
				"missing path parameter %s", b.Converter.ToCaller(name))
		}
		claimed[key] = true
		path = strings.Replace(path, "{"+name+"}", url.PathEscape(s), 1)
	}
	return path, nil
}

// lookup finds a wire-named value by its caller name, then by the wire name.
func (b *Builder) lookup(args map[string]any, wireName string) (string, any, bool) {
	for _, key := range []string{b.Converter.ToCaller(wireName), wireName} {
		if v, ok := args[key]; ok && v != nil {
			return key, v, true
		}
	}
	return "", nil, false
}

// IsActionPath reports whether a path ends in a verb acting on one resource:
// a singular literal segment directly after a placeholder.
func IsActionPath(path string) bool {
	segs := openapi.SplitPath(path)
	if len(segs) < 2 {
		return false
	}
	last, prev := segs[len(segs)-1], segs[len(segs)-2]
	return !openapi.IsPlaceholder(last) && openapi.IsPlaceholder(prev) && !inflect.IsPlural(last)
}

func addQuery(q url.Values, key string, v any) {
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			q.Add(key, scalarString(item))
		}
	case []string:
		for _, item := range val {
			q.Add(key, item)
		}
	case map[string]any:
		subs := make([]string, 0, len(val))
		for sub := range val {
			subs = append(subs, sub)
		}
		sort.Strings(subs)
		for _, sub := range subs {
			addQuery(q, key+"["+sub+"]", val[sub])
		}
	default:
		q.Add(key, scalarString(v))
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
