package mcp

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/cache"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
	"github.com/bobmcallan/persona-mcp/internal/toolgen"
)

// Resource exposes one read operation under a URI or URI template.
type Resource struct {
	Name        string
	URI         string
	Description string
	Operation   *openapi.Operation
	// Params are the caller names of the URI template variables.
	Params []string
}

// IsTemplate reports whether the URI has template variables.
func (r *Resource) IsTemplate() bool {
	return len(r.Params) > 0
}

func newResource(op *openapi.Operation, deps Deps) (*Resource, error) {
	name := toolgen.ToolName(op.ID)
	if name == "" {
		return nil, apierr.New(apierr.KindToolGeneration, "%s %s: empty resource name", op.Method, op.Path)
	}
	conv := deps.Options.Converter
	segs := openapi.SplitPath(op.Path)
	var params []string
	for i, seg := range segs {
		if openapi.IsPlaceholder(seg) {
			caller := conv.ToCaller(seg[1 : len(seg)-1])
			params = append(params, caller)
			segs[i] = "{" + caller + "}"
		}
	}
	return &Resource{
		Name:        name,
		URI:         deps.ResourceScheme + "://" + strings.Join(segs, "/"),
		Description: toolgen.Describe(op),
		Operation:   op,
		Params:      params,
	}, nil
}

// match extracts the template variables of uri. It reports false when uri
// does not address this resource.
func (r *Resource) match(uri string) (map[string]any, bool) {
	tmplScheme, tmplPath, _ := strings.Cut(r.URI, "://")
	scheme, path, ok := strings.Cut(uri, "://")
	if !ok || scheme != tmplScheme {
		return nil, false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	want := strings.Split(tmplPath, "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return nil, false
	}
	args := make(map[string]any, len(r.Params))
	for i, seg := range want {
		if openapi.IsPlaceholder(seg) {
			v, err := url.PathUnescape(got[i])
			if err != nil || v == "" {
				return nil, false
			}
			args[seg[1:len(seg)-1]] = v
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return args, true
}

// ReadURI reads the resource addressed by uri.
func (c *Catalog) ReadURI(ctx context.Context, uri string) (json.RawMessage, error) {
	for _, r := range c.resources {
		if args, ok := r.match(uri); ok {
			return c.Read(ctx, r, args)
		}
	}
	return nil, apierr.New(apierr.KindNotFound, "no resource matches %s", uri)
}

// Read performs a read operation through the shared cache. Concurrent
// misses on one key may each fetch; the last write wins.
func (c *Catalog) Read(ctx context.Context, r *Resource, args map[string]any) (json.RawMessage, error) {
	start := time.Now()
	key := cache.MakeKey(r.Operation.ID, args)
	if c.deps.Cache != nil {
		if v, ok := c.deps.Cache.Get(key); ok {
			c.deps.Metrics.RecordCacheHit()
			c.deps.Metrics.RecordToolCall(r.Name, "ok")
			return v, nil
		}
		c.deps.Metrics.RecordCacheMiss()
	}

	payload, err := c.fetch(ctx, r, args)
	if err != nil {
		e := apierr.As(err)
		if e.Duration == 0 {
			e.Duration = time.Since(start)
		}
		c.deps.Metrics.RecordToolCall(r.Name, string(e.Kind))
		c.invocationLogger(ctx).Warn().
			Str("resource", r.Name).
			Str("kind", string(e.Kind)).
			Int64("duration_ms", e.Duration.Milliseconds()).
			Msg(e.Message)
		return nil, e
	}
	if c.deps.Cache != nil {
		c.deps.Cache.Set(key, payload)
	}
	c.deps.Metrics.RecordToolCall(r.Name, "ok")
	return payload, nil
}

func (c *Catalog) fetch(ctx context.Context, r *Resource, args map[string]any) (json.RawMessage, error) {
	req, err := c.deps.Builder.Build(r.Operation, args, openapi.EnvelopeNone)
	if err != nil {
		return nil, err
	}
	resp, err := c.deps.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.JSON(), nil
}
