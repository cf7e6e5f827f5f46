package openapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/common"
)

// methodOrder fixes the order verbs are emitted within a path.
var methodOrder = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// Options controls which operations Normalize emits.
type Options struct {
	// TagFilter keeps only operations carrying at least one of these tags.
	TagFilter []string
}

// Load reads and reference-resolves the API description at location, which
// is a file path or an http(s) URL. Every failure is a specification load
// failure: no catalog can be built without the document.
func Load(ctx context.Context, location string) (*openapi3.T, error) {
	if strings.TrimSpace(location) == "" {
		return nil, apierr.New(apierr.KindSpecificationLoad, "no specification location configured")
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var (
		doc *openapi3.T
		err error
	)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		u, perr := url.Parse(location)
		if perr != nil {
			return nil, apierr.Wrap(apierr.KindSpecificationLoad, perr, "invalid specification URL %q", location)
		}
		doc, err = loader.LoadFromURI(u)
	} else {
		if _, serr := os.Stat(location); serr != nil {
			return nil, apierr.Wrap(apierr.KindSpecificationLoad, serr, "specification file %s", location)
		}
		doc, err = loader.LoadFromFile(location)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.KindSpecificationLoad, err, "failed to load specification %s", location)
	}
	return doc, nil
}

// LoadData parses an in-memory API description.
func LoadData(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindSpecificationLoad, err, "failed to parse specification")
	}
	return doc, nil
}

// Normalize flattens the document into operations, ordered by path and then
// by verb. Verbs without an operationId are skipped with a warning so that
// partial coverage never blocks start-up.
func Normalize(doc *openapi3.T, opts Options, logger *common.Logger) []Operation {
	if doc == nil || doc.Paths == nil {
		return nil
	}
	items := doc.Paths.Map()
	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var ops []Operation
	skipped := 0
	for _, path := range paths {
		item := items[path]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			if strings.TrimSpace(op.OperationID) == "" {
				skipped++
				logger.Warn().
					Str("method", method).
					Str("path", path).
					Msg("skipping operation without operationId")
				continue
			}
			if !matchesTags(op.Tags, opts.TagFilter) {
				continue
			}
			ops = append(ops, normalizeOperation(path, method, item, op))
		}
	}

	logger.Info().
		Int("operations", len(ops)).
		Int("skipped", skipped).
		Int("paths", len(paths)).
		Msg("specification normalized")
	return ops
}

func normalizeOperation(path, method string, item *openapi3.PathItem, op *openapi3.Operation) Operation {
	out := Operation{
		ID:          op.OperationID,
		Method:      method,
		Path:        path,
		Tags:        append([]string(nil), op.Tags...),
		Summary:     op.Summary,
		Description: op.Description,
		Parameters:  mergeParameters(item.Parameters, op.Parameters),
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body := op.RequestBody.Value
		out.RequestBodyRequired = body.Required
		if mt := jsonMediaType(body.Content); mt != nil {
			out.RequestBody = ParseSchema(mt.Schema)
		}
	}

	if op.Responses != nil {
		responses := op.Responses.Map()
		out.Responses = make(map[string]*SchemaNode, len(responses))
		for status, ref := range responses {
			if ref == nil || ref.Value == nil {
				out.Responses[status] = &SchemaNode{Kind: KindUnknown}
				continue
			}
			node := &SchemaNode{Kind: KindUnknown}
			if mt := jsonMediaType(ref.Value.Content); mt != nil {
				node = ParseSchema(mt.Schema)
			}
			if node.Description == "" && ref.Value.Description != nil {
				node.Description = *ref.Value.Description
			}
			out.Responses[status] = node
		}
	}
	return out
}

// mergeParameters combines path-item and operation parameters; the
// operation's declaration wins for the same (name, in). Only path and query
// parameters are kept: headers are configured once on the client.
func mergeParameters(itemParams, opParams openapi3.Parameters) []Parameter {
	type key struct{ name, in string }
	var ordered []key
	byKey := map[key]Parameter{}

	add := func(params openapi3.Parameters) {
		for _, ref := range params {
			if ref == nil {
				continue
			}
			p := ref.Value
			if p == nil {
				continue
			}
			if p.In != openapi3.ParameterInPath && p.In != openapi3.ParameterInQuery {
				continue
			}
			k := key{p.Name, p.In}
			if _, exists := byKey[k]; !exists {
				ordered = append(ordered, k)
			}
			param := Parameter{
				Name:        p.Name,
				In:          Location(p.In),
				Required:    p.Required,
				Description: p.Description,
				Schema:      &SchemaNode{Kind: KindUnknown},
			}
			if p.Schema != nil {
				param.Schema = ParseSchema(p.Schema)
			}
			byKey[k] = param
		}
	}
	add(itemParams)
	add(opParams)

	out := make([]Parameter, 0, len(ordered))
	for _, k := range ordered {
		out = append(out, byKey[k])
	}
	return out
}

// jsonMediaType picks the JSON media type of a content map, preferring
// application/json, then any +json or json type.
func jsonMediaType(content openapi3.Content) *openapi3.MediaType {
	if len(content) == 0 {
		return nil
	}
	if mt := content.Get("application/json"); mt != nil {
		return mt
	}
	types := make([]string, 0, len(content))
	for t := range content {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		if strings.Contains(t, "json") {
			return content[t]
		}
	}
	return nil
}

func matchesTags(tags, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range tags {
		for _, f := range filter {
			if strings.EqualFold(t, f) {
				return true
			}
		}
	}
	return false
}

// Describe returns a one-line label for log output.
func (o *Operation) Describe() string {
	return fmt.Sprintf("%s %s (%s)", o.Method, o.Path, o.ID)
}
