package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/cache"
	"github.com/bobmcallan/persona-mcp/internal/client"
	"github.com/bobmcallan/persona-mcp/internal/common"
	"github.com/bobmcallan/persona-mcp/internal/metrics"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
	"github.com/bobmcallan/persona-mcp/internal/request"
	"github.com/bobmcallan/persona-mcp/internal/toolgen"
)

// Dispatcher executes built requests against the remote API.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *request.APIRequest) (*client.APIResponse, error)
}

// Deps are the collaborators shared by every tool and resource handler.
type Deps struct {
	Builder    *request.Builder
	Dispatcher Dispatcher
	// Cache is optional; reads go straight to the API without it.
	Cache          *cache.Cache[json.RawMessage]
	Metrics        *metrics.Collector
	Logger         *common.Logger
	Options        toolgen.Options
	ResourceScheme string
}

// invokeFunc is the handler bound to one tool at catalog construction.
type invokeFunc func(ctx context.Context, args map[string]any) (json.RawMessage, error)

// Tool is a generated tool with its advertised schema and bound handler.
type Tool struct {
	*toolgen.GeneratedTool
	InputSchema json.RawMessage

	invoke invokeFunc
}

// Catalog is the tool and resource set built once at start-up. It is never
// mutated afterwards, so it is safe to share between concurrent invocations.
type Catalog struct {
	tools     []*Tool
	byName    map[string]*Tool
	resources []*Resource
	// familyReads maps a resource family to its read operation IDs.
	familyReads map[string][]string
	deps        Deps
	skipped     int
}

// BuildCatalog generates tools for state-changing operations and resources
// for read operations. Per-operation failures are logged and skipped.
func BuildCatalog(ops []openapi.Operation, deps Deps) *Catalog {
	if deps.Logger == nil {
		deps.Logger = common.NewSilentLogger()
	}
	if deps.ResourceScheme == "" {
		deps.ResourceScheme = "persona"
	}
	if deps.Builder == nil {
		deps.Builder = request.NewBuilder(deps.Options.Converter, request.ModeJSONAPI)
	}

	c := &Catalog{
		byName:      make(map[string]*Tool),
		familyReads: make(map[string][]string),
		deps:        deps,
	}
	logger := deps.Logger
	resourceURIs := make(map[string]bool)

	for i := range ops {
		op := &ops[i]

		if op.IsRead() {
			res, err := newResource(op, deps)
			if err != nil {
				c.skipped++
				logger.Warn().Str("operation", op.ID).Str("error", err.Error()).Msg("skipping resource")
				continue
			}
			if resourceURIs[res.URI] {
				c.skipped++
				logger.Warn().Str("operation", op.ID).Str("uri", res.URI).Msg("skipping duplicate resource")
				continue
			}
			resourceURIs[res.URI] = true
			c.resources = append(c.resources, res)
			c.familyReads[op.Family()] = append(c.familyReads[op.Family()], op.ID)
			continue
		}

		gen, err := toolgen.Generate(op, deps.Options)
		if err == nil && gen != nil {
			var schema json.RawMessage
			schema, err = gen.InputSchema()
			if err == nil {
				if existing, dup := c.byName[gen.Name]; dup {
					c.skipped++
					logger.Warn().
						Str("name", gen.Name).
						Str("operation", op.ID).
						Str("kept", existing.Operation.ID).
						Msg("skipping tool with colliding name")
					continue
				}
				t := &Tool{GeneratedTool: gen, InputSchema: schema}
				t.invoke = c.bind(t)
				c.tools = append(c.tools, t)
				c.byName[t.Name] = t
				continue
			}
		}
		if errors.Is(err, toolgen.ErrReadOnlyOperation) {
			continue
		}
		c.skipped++
		logger.Warn().
			Str("operation", op.ID).
			Str("kind", string(apierr.KindOf(err))).
			Str("error", err.Error()).
			Msg("skipping operation")
	}

	logger.Info().
		Int("tools", len(c.tools)).
		Int("resources", len(c.resources)).
		Int("skipped", c.skipped).
		Msg("catalog built")
	return c
}

// Tools returns the tools in operation order.
func (c *Catalog) Tools() []*Tool {
	return append([]*Tool(nil), c.tools...)
}

// Resources returns the read resources in operation order.
func (c *Catalog) Resources() []*Resource {
	return append([]*Resource(nil), c.resources...)
}

// Lookup returns the named tool.
func (c *Catalog) Lookup(name string) (*Tool, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Skipped returns how many operations could not be exposed.
func (c *Catalog) Skipped() int {
	return c.skipped
}

// Invoke runs the named tool: validate, build, dispatch, invalidate.
// Every failure is an *apierr.Error carrying the elapsed duration.
func (c *Catalog) Invoke(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	start := time.Now()
	t, ok := c.byName[name]
	if !ok {
		e := apierr.InvalidArgument("name", "unknown tool %q", name)
		e.Duration = time.Since(start)
		return nil, e
	}
	if args == nil {
		args = map[string]any{}
	}

	logger := c.invocationLogger(ctx)
	payload, err := t.invoke(ctx, args)
	if err != nil {
		e := apierr.As(err)
		if e.Duration == 0 {
			e.Duration = time.Since(start)
		}
		c.deps.Metrics.RecordToolCall(name, string(e.Kind))
		logger.Warn().
			Str("tool", name).
			Str("kind", string(e.Kind)).
			Str("field", e.Field).
			Int64("duration_ms", e.Duration.Milliseconds()).
			Msg(e.Message)
		return nil, e
	}

	c.deps.Metrics.RecordToolCall(name, "ok")
	logger.Info().
		Str("tool", name).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("tool call completed")
	return payload, nil
}

// bind builds the handler for one tool.
func (c *Catalog) bind(t *Tool) invokeFunc {
	op := t.Operation
	shape := t.Shape
	return func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
		if err := shape.Validate(args); err != nil {
			return nil, err
		}
		req, err := c.deps.Builder.Build(op, args, shape.Envelope)
		if err != nil {
			return nil, err
		}
		resp, err := c.deps.Dispatcher.Dispatch(ctx, req)
		if err != nil {
			return nil, err
		}
		c.invalidateFamily(op)
		return resp.JSON(), nil
	}
}

// invalidateFamily drops cached reads of the resource family op changed.
func (c *Catalog) invalidateFamily(op *openapi.Operation) {
	if c.deps.Cache == nil {
		return
	}
	removed := 0
	for _, id := range c.familyReads[op.Family()] {
		removed += c.deps.Cache.InvalidatePrefix(id + ":")
	}
	if removed > 0 {
		c.deps.Logger.Debug().
			Str("family", op.Family()).
			Int("entries", removed).
			Msg("invalidated cached reads")
	}
}

func (c *Catalog) invocationLogger(ctx context.Context) *common.Logger {
	id := CorrelationID(ctx)
	if id == "" {
		id = uuid.New().String()
	}
	return c.deps.Logger.WithCorrelationId(id)
}

// describeFailure renders a failure as the JSON object sent to callers.
func describeFailure(err error) string {
	data, mErr := json.Marshal(apierr.As(err))
	if mErr != nil {
		return strings.TrimSpace(err.Error())
	}
	return string(data)
}
