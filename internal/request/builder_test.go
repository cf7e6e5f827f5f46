package request

import (
	"encoding/json"
	"testing"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/inflect"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
	"github.com/bobmcallan/persona-mcp/internal/toolgen"
)

func newKebab() *Builder {
	return NewBuilder(inflect.Converter{Case: inflect.Kebab}, "")
}

func bodyJSON(t *testing.T, body any) string {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return string(data)
}

func TestBuild_PathSubstitution(t *testing.T) {
	op := &openapi.Operation{ID: "retrieve-a-widget", Method: "GET", Path: "/widgets/{widgetId}"}

	req, err := newKebab().Build(op, map[string]any{"widgetId": "abc"}, openapi.EnvelopeNone)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if req.Path != "/widgets/abc" {
		t.Errorf("expected /widgets/abc, got %s", req.Path)
	}
	if req.Body != nil {
		t.Errorf("expected no body, got %v", req.Body)
	}

	_, err = newKebab().Build(op, map[string]any{}, openapi.EnvelopeNone)
	e := apierr.As(err)
	if e == nil || e.Kind != apierr.KindInvalidArgument || e.Field != "widgetId" {
		t.Errorf("expected missing path parameter for widgetId, got %v", err)
	}
}

func TestBuild_PathUsesCallerNameAndEscapes(t *testing.T) {
	op := &openapi.Operation{ID: "x", Method: "GET", Path: "/accounts/{account-id}/files/{file-name}"}
	req, err := newKebab().Build(op, map[string]any{"accountId": "act_1", "fileName": "a b/c"}, openapi.EnvelopeNone)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if req.Path != "/accounts/act_1/files/a%20b%2Fc" {
		t.Errorf("unexpected path %s", req.Path)
	}
}

func TestBuild_EmptyPathValueIsMissing(t *testing.T) {
	op := &openapi.Operation{ID: "x", Method: "GET", Path: "/accounts/{account-id}"}
	_, err := newKebab().Build(op, map[string]any{"accountId": ""}, openapi.EnvelopeNone)
	if e := apierr.As(err); e == nil || e.Field != "accountId" {
		t.Errorf("expected missing accountId, got %v", err)
	}
}

func TestBuild_Query(t *testing.T) {
	op := &openapi.Operation{
		ID:     "list-all-accounts",
		Method: "GET",
		Path:   "/accounts",
		Parameters: []openapi.Parameter{
			{Name: "page[size]", In: openapi.InQuery},
			{Name: "filter", In: openapi.InQuery},
			{Name: "include-archived", In: openapi.InQuery},
			{Name: "fields", In: openapi.InQuery},
		},
	}
	args := map[string]any{
		"page[size]":      25.0,
		"filter":          map[string]any{"status": "active", "reference-id": "r1"},
		"includeArchived": true,
		"fields":          []any{"id", "name"},
	}
	req, err := newKebab().Build(op, args, openapi.EnvelopeNone)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := "fields=id&fields=name&filter%5Breference-id%5D=r1&filter%5Bstatus%5D=active&include-archived=true&page%5Bsize%5D=25"
	if got := req.Query.Encode(); got != want {
		t.Errorf("query = %s, want %s", got, want)
	}
}

func TestBuild_AbsentOptionalQuerySkipped(t *testing.T) {
	op := &openapi.Operation{
		ID: "x", Method: "GET", Path: "/accounts",
		Parameters: []openapi.Parameter{{Name: "page[after]", In: openapi.InQuery}},
	}
	req, err := newKebab().Build(op, nil, openapi.EnvelopeNone)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(req.Query) != 0 {
		t.Errorf("expected empty query, got %v", req.Query)
	}
}

func TestBuild_ResourceBody(t *testing.T) {
	op := &openapi.Operation{
		ID:     "create-a-widget",
		Method: "post",
		Path:   "/widgets",
		RequestBody: &openapi.SchemaNode{
			Kind:       openapi.KindObject,
			Required:   []string{"name"},
			Properties: map[string]*openapi.SchemaNode{"name": {Kind: openapi.KindString}},
		},
	}
	req, err := newKebab().Build(op, map[string]any{"name": "x"}, openapi.EnvelopeNone)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("expected upper-case method, got %s", req.Method)
	}
	if got := bodyJSON(t, req.Body); got != `{"data":{"attributes":{"name":"x"}}}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestBuild_NestedKeysConverted(t *testing.T) {
	op := &openapi.Operation{ID: "update-an-account", Method: "PATCH", Path: "/accounts/{account-id}"}
	args := map[string]any{
		"accountId":   "act_1",
		"nameFirst":   "Ada",
		"addressInfo": map[string]any{"postalCode": "123", "lines": []any{map[string]any{"streetName": "Main"}}},
	}
	req, err := newKebab().Build(op, args, openapi.EnvelopeAttributes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := `{"data":{"attributes":{"address-info":{"lines":[{"street-name":"Main"}],"postal-code":"123"},"name-first":"Ada"}}}`
	if got := bodyJSON(t, req.Body); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestBuild_AttributesAndMeta(t *testing.T) {
	op := &openapi.Operation{
		ID:     "create-an-inquiry",
		Method: "POST",
		Path:   "/inquiries",
		RequestBody: &openapi.SchemaNode{
			Kind: openapi.KindObject,
			Properties: map[string]*openapi.SchemaNode{
				"data": {
					Kind: openapi.KindObject,
					Properties: map[string]*openapi.SchemaNode{
						"attributes": {
							Kind: openapi.KindObject,
							Properties: map[string]*openapi.SchemaNode{
								"inquiry-template-id": {Kind: openapi.KindString},
							},
						},
					},
				},
				"meta": {
					Kind: openapi.KindObject,
					Properties: map[string]*openapi.SchemaNode{
						"auto-create-account": {Kind: openapi.KindBoolean},
					},
				},
			},
		},
	}
	args := map[string]any{"inquiryTemplateId": "itmpl_1", "autoCreateAccount": true}
	req, err := newKebab().Build(op, args, openapi.BodyEnvelope(op.RequestBody))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := `{"data":{"attributes":{"inquiry-template-id":"itmpl_1"}},"meta":{"auto-create-account":true}}`
	if got := bodyJSON(t, req.Body); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}

	req, err = newKebab().Build(op, map[string]any{"autoCreateAccount": false}, openapi.EnvelopeAttributes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := bodyJSON(t, req.Body); got != `{"meta":{"auto-create-account":false}}` {
		t.Errorf("expected meta-only body, got %s", got)
	}
}

func TestBuild_NestedKeysFollowSchema(t *testing.T) {
	op := &openapi.Operation{
		ID:     "create-an-account",
		Method: "POST",
		Path:   "/accounts",
		RequestBody: &openapi.SchemaNode{
			Kind: openapi.KindObject,
			Properties: map[string]*openapi.SchemaNode{
				"address-1": {
					Kind:     openapi.KindObject,
					Required: []string{"street-1"},
					Properties: map[string]*openapi.SchemaNode{
						"street-1":    {Kind: openapi.KindString},
						"postal-code": {Kind: openapi.KindString},
					},
				},
			},
		},
	}
	opts := toolgen.Options{Converter: inflect.Converter{Case: inflect.Kebab}}
	shape, err := toolgen.BuildShape(op, opts)
	if err != nil {
		t.Fatalf("BuildShape failed: %v", err)
	}

	args := map[string]any{"address1": map[string]any{"street1": "Main", "postalCode": "123"}}
	if err := shape.Validate(args); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	req, err := newKebab().Build(op, args, shape.Envelope)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := `{"data":{"attributes":{"address-1":{"postal-code":"123","street-1":"Main"}}}}`
	if got := bodyJSON(t, req.Body); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestBuild_ActionBody(t *testing.T) {
	op := &openapi.Operation{ID: "accounts-add-tag", Method: "POST", Path: "/accounts/{account-id}/add-tag"}
	req, err := newKebab().Build(op, map[string]any{"accountId": "act_1", "tagName": "vip"}, openapi.EnvelopeNone)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if req.Path != "/accounts/act_1/add-tag" {
		t.Errorf("unexpected path %s", req.Path)
	}
	if got := bodyJSON(t, req.Body); got != `{"meta":{"tag-name":"vip"}}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestBuild_DeclaredEnvelopeWins(t *testing.T) {
	op := &openapi.Operation{ID: "x", Method: "POST", Path: "/accounts/{account-id}/consolidate"}
	req, err := newKebab().Build(op, map[string]any{"accountId": "a", "sourceIds": []any{"b"}}, openapi.EnvelopeAttributes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := bodyJSON(t, req.Body); got != `{"data":{"attributes":{"source-ids":["b"]}}}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestBuild_ResourceTypeFromSchema(t *testing.T) {
	op := &openapi.Operation{
		ID:     "create-an-inquiry",
		Method: "POST",
		Path:   "/inquiries",
		RequestBody: &openapi.SchemaNode{
			Kind: openapi.KindObject,
			Properties: map[string]*openapi.SchemaNode{
				"data": {
					Kind: openapi.KindObject,
					Properties: map[string]*openapi.SchemaNode{
						"type":       {Kind: openapi.KindString},
						"attributes": {Kind: openapi.KindObject},
					},
				},
			},
		},
	}
	req, err := newKebab().Build(op, map[string]any{"templateId": "itmpl_1"}, openapi.EnvelopeAttributes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := `{"data":{"attributes":{"template-id":"itmpl_1"},"type":"inquiry"}}`
	if got := bodyJSON(t, req.Body); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestBuild_FlatMode(t *testing.T) {
	b := NewBuilder(inflect.Converter{Case: inflect.Snake}, ModeNone)
	op := &openapi.Operation{ID: "x", Method: "POST", Path: "/widgets"}
	req, err := b.Build(op, map[string]any{"displayName": "x"}, openapi.EnvelopeAttributes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := bodyJSON(t, req.Body); got != `{"display_name":"x"}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestBuild_EmptyBodyOmitted(t *testing.T) {
	op := &openapi.Operation{ID: "x", Method: "DELETE", Path: "/accounts/{account-id}"}
	req, err := newKebab().Build(op, map[string]any{"accountId": "a"}, openapi.EnvelopeNone)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if req.Body != nil {
		t.Errorf("expected no body, got %v", req.Body)
	}
}

func TestIsActionPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/accounts/{account-id}/add-tag", true},
		{"/inquiries/{inquiry-id}/approve", true},
		{"/accounts/{account-id}/tags", false},
		{"/accounts/{account-id}", false},
		{"/accounts", false},
		{"/reports/run", false},
	}
	for _, tt := range tests {
		if got := IsActionPath(tt.path); got != tt.want {
			t.Errorf("IsActionPath(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
