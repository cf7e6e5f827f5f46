// Package toolgen synthesizes tool names, input shapes and behavior hints
// from normalized operations.
package toolgen

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
)

// ErrReadOnlyOperation is returned by Generate for GET operations, which
// are exposed as resources instead of tools.
var ErrReadOnlyOperation = errors.New("read operations are exposed as resources")

// GeneratedTool is a tool definition without its handler.
type GeneratedTool struct {
	Name        string
	Description string
	Operation   *openapi.Operation
	Shape       *InputShape
	Annotations Annotations
}

// InputSchema returns the advertised input schema as raw JSON.
func (t *GeneratedTool) InputSchema() (json.RawMessage, error) {
	data, err := json.Marshal(t.Shape.JSONSchema())
	if err != nil {
		return nil, apierr.Wrap(apierr.KindToolGeneration, err, "%s: marshal input schema", t.Name)
	}
	return data, nil
}

// Generate builds the tool definition for a state-changing operation.
func Generate(op *openapi.Operation, opts Options) (*GeneratedTool, error) {
	if op.IsRead() {
		return nil, ErrReadOnlyOperation
	}
	name := ToolName(op.ID)
	if name == "" {
		return nil, apierr.New(apierr.KindToolGeneration, "%s %s: empty tool name", op.Method, op.Path)
	}
	shape, err := BuildShape(op, opts)
	if err != nil {
		return nil, err
	}
	return &GeneratedTool{
		Name:        name,
		Description: Describe(op),
		Operation:   op,
		Shape:       shape,
		Annotations: Annotate(op.Method),
	}, nil
}

// Describe returns the caller-facing description of an operation.
func Describe(op *openapi.Operation) string {
	summary := strings.TrimSpace(op.Summary)
	desc := strings.TrimSpace(op.Description)
	switch {
	case summary != "" && desc != "" && summary != desc:
		return summary + "\n\n" + desc
	case summary != "":
		return summary
	case desc != "":
		return desc
	}
	return fmt.Sprintf("%s %s", op.Method, op.Path)
}
