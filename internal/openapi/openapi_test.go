package openapi

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/common"
)

func loadFixture(t *testing.T) []Operation {
	t.Helper()
	doc, err := Load(context.Background(), filepath.Join("testdata", "api.yaml"))
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	return Normalize(doc, Options{}, common.NewSilentLogger())
}

func findOp(t *testing.T, ops []Operation, id string) Operation {
	t.Helper()
	for _, op := range ops {
		if op.ID == id {
			return op
		}
	}
	t.Fatalf("operation %q not found", id)
	return Operation{}
}

func TestNormalize_OrderAndSkip(t *testing.T) {
	ops := loadFixture(t)

	want := []string{
		"list-all-accounts",
		"create-an-account",
		"retrieve-an-account",
		"accounts-add-tag",
		"create-a-node",
	}
	if len(ops) != len(want) {
		t.Fatalf("expected %d operations, got %d", len(want), len(ops))
	}
	for i, id := range want {
		if ops[i].ID != id {
			t.Errorf("operation %d: expected %s, got %s", i, id, ops[i].ID)
		}
	}
}

func TestNormalize_MergesPathItemParameters(t *testing.T) {
	op := findOp(t, loadFixture(t), "retrieve-an-account")
	params := op.ParametersIn(InPath)
	if len(params) != 1 || params[0].Name != "account-id" {
		t.Fatalf("expected account-id path parameter, got %+v", params)
	}
	if !params[0].Required {
		t.Error("expected path parameter to be required")
	}
}

func TestNormalize_DropsHeaderParameters(t *testing.T) {
	op := findOp(t, loadFixture(t), "accounts-add-tag")
	for _, p := range op.Parameters {
		if p.Name == "Key-Inflection" {
			t.Error("header parameter should not be part of the operation model")
		}
	}
	if p := op.ParametersIn(InPath); len(p) != 1 || p[0].Description != "Account to tag" {
		t.Errorf("expected operation-level path parameter to win, got %+v", p)
	}
}

func TestNormalize_QueryParameterSchema(t *testing.T) {
	op := findOp(t, loadFixture(t), "list-all-accounts")
	q := op.ParametersIn(InQuery)
	if len(q) != 1 || q[0].Name != "page[size]" {
		t.Fatalf("expected page[size] query parameter, got %+v", q)
	}
	s := q[0].Schema
	if s.Kind != KindInteger {
		t.Errorf("expected integer kind, got %s", s.Kind)
	}
	if s.Minimum == nil || *s.Minimum != 1 || s.Maximum == nil || *s.Maximum != 100 {
		t.Errorf("expected bounds 1..100, got %v..%v", s.Minimum, s.Maximum)
	}
}

func TestNormalize_RequestBodyAndResponses(t *testing.T) {
	op := findOp(t, loadFixture(t), "create-an-account")
	if !op.RequestBodyRequired {
		t.Error("expected request body to be required")
	}
	attrs := op.RequestBody.Property("data").Property("attributes")
	if attrs == nil {
		t.Fatal("expected data.attributes in request body")
	}
	if !attrs.IsRequired("reference-id") {
		t.Error("expected reference-id to be required")
	}
	if got := attrs.Property("email-address").Format; got != "email" {
		t.Errorf("expected email format, got %q", got)
	}
	resp, ok := op.Responses["201"]
	if !ok {
		t.Fatal("expected 201 response schema")
	}
	if resp.Kind != KindObject || resp.Description != "Created" {
		t.Errorf("unexpected response node %+v", resp)
	}
}

func TestParseSchema_CycleTerminates(t *testing.T) {
	op := findOp(t, loadFixture(t), "create-a-node")
	body := op.RequestBody
	if body.Kind != KindObject {
		t.Fatalf("expected object, got %s", body.Kind)
	}
	if got := body.Property("parent").Kind; got != KindCircular {
		t.Errorf("expected circular marker for parent, got %s", got)
	}
	children := body.Property("children")
	if children.Kind != KindArray || children.Items.Kind != KindCircular {
		t.Errorf("expected array of circular items, got %+v", children)
	}
	if body.Property("name").Kind != KindString {
		t.Error("expected name to stay a string")
	}
}

func TestParseSchema_SelfReferenceInMemory(t *testing.T) {
	node := &openapi3.Schema{
		Type:       &openapi3.Types{openapi3.TypeObject},
		Properties: openapi3.Schemas{},
	}
	node.Properties["self"] = &openapi3.SchemaRef{Ref: "#/components/schemas/A", Value: node}

	parsed := ParseSchema(&openapi3.SchemaRef{Value: node})
	if parsed.Property("self").Kind != KindCircular {
		t.Errorf("expected circular marker, got %s", parsed.Property("self").Kind)
	}
	if parsed.Property("self").Ref != "#/components/schemas/A" {
		t.Errorf("expected ref to be kept on the marker, got %q", parsed.Property("self").Ref)
	}
}

func TestParseSchema_SharedSiblingIsNotCircular(t *testing.T) {
	shared := &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeString}}
	parent := &openapi3.Schema{
		Type: &openapi3.Types{openapi3.TypeObject},
		Properties: openapi3.Schemas{
			"a": &openapi3.SchemaRef{Value: shared},
			"b": &openapi3.SchemaRef{Value: shared},
		},
	}
	parsed := ParseSchema(&openapi3.SchemaRef{Value: parent})
	if parsed.Property("a").Kind != KindString || parsed.Property("b").Kind != KindString {
		t.Error("expected schema reused by siblings to parse normally")
	}
}

func TestParseSchema_UnresolvedReference(t *testing.T) {
	parsed := ParseSchema(&openapi3.SchemaRef{Ref: "#/components/schemas/Missing"})
	if parsed.Kind != KindUnknown {
		t.Errorf("expected unknown placeholder, got %s", parsed.Kind)
	}
	if ParseSchema(nil).Kind != KindUnknown {
		t.Error("expected unknown placeholder for nil ref")
	}
}

func TestParseSchema_AllOfMerge(t *testing.T) {
	a := &openapi3.Schema{
		Type:       &openapi3.Types{openapi3.TypeObject},
		Required:   []string{"name"},
		Properties: openapi3.Schemas{"name": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeString}}}},
	}
	b := &openapi3.Schema{
		Properties: openapi3.Schemas{"age": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeInteger}}}},
	}
	parsed := ParseSchema(&openapi3.SchemaRef{Value: &openapi3.Schema{
		AllOf: openapi3.SchemaRefs{{Value: a}, {Value: b}},
	}})
	if parsed.Kind != KindObject {
		t.Fatalf("expected object, got %s", parsed.Kind)
	}
	if parsed.Property("name") == nil || parsed.Property("age") == nil {
		t.Error("expected properties from both members")
	}
	if !parsed.IsRequired("name") {
		t.Error("expected required set to be merged")
	}
}

func TestParseSchema_InfersKind(t *testing.T) {
	parsed := ParseSchema(&openapi3.SchemaRef{Value: &openapi3.Schema{
		Items: &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeString}}},
	}})
	if parsed.Kind != KindArray || parsed.Items.Kind != KindString {
		t.Errorf("expected inferred array of strings, got %+v", parsed)
	}
}

func TestNormalize_TagFilter(t *testing.T) {
	doc, err := Load(context.Background(), filepath.Join("testdata", "api.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	ops := Normalize(doc, Options{TagFilter: []string{"graph"}}, common.NewSilentLogger())
	if len(ops) != 1 || ops[0].ID != "create-a-node" {
		t.Errorf("expected only create-a-node, got %d ops", len(ops))
	}
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join("testdata", "missing.yaml"))
	if apierr.KindOf(err) != apierr.KindSpecificationLoad {
		t.Errorf("expected specification load failure, got %v", err)
	}
	_, err = Load(context.Background(), "")
	if apierr.KindOf(err) != apierr.KindSpecificationLoad {
		t.Errorf("expected specification load failure for empty location, got %v", err)
	}
}

func TestLoadData_Malformed(t *testing.T) {
	_, err := LoadData(context.Background(), []byte("openapi: [unterminated"))
	if apierr.KindOf(err) != apierr.KindSpecificationLoad {
		t.Errorf("expected specification load failure, got %v", err)
	}
}

func TestPathHelpers(t *testing.T) {
	if got := Placeholders("/accounts/{account-id}/tags/{tag}"); len(got) != 2 || got[0] != "account-id" || got[1] != "tag" {
		t.Errorf("unexpected placeholders %v", got)
	}
	op := Operation{Path: "/accounts/{account-id}/add-tag"}
	if op.Family() != "accounts" {
		t.Errorf("unexpected family %q", op.Family())
	}
	if !IsPlaceholder("{id}") || IsPlaceholder("id") {
		t.Error("unexpected IsPlaceholder result")
	}
}

func TestBodyParts(t *testing.T) {
	attrs := &SchemaNode{Kind: KindObject}
	meta := &SchemaNode{Kind: KindObject}
	data := &SchemaNode{Kind: KindObject, Properties: map[string]*SchemaNode{"attributes": attrs}}

	tests := []struct {
		name string
		body *SchemaNode
		want []Envelope
	}{
		{"nil", nil, nil},
		{"flat", &SchemaNode{Kind: KindObject, Properties: map[string]*SchemaNode{"name": {Kind: KindString}}}, []Envelope{EnvelopeNone}},
		{"attributes", &SchemaNode{Kind: KindObject, Properties: map[string]*SchemaNode{"data": data}}, []Envelope{EnvelopeAttributes}},
		{"meta", &SchemaNode{Kind: KindObject, Properties: map[string]*SchemaNode{"meta": meta}}, []Envelope{EnvelopeMeta}},
		{"both", &SchemaNode{Kind: KindObject, Properties: map[string]*SchemaNode{"data": data, "meta": meta}}, []Envelope{EnvelopeAttributes, EnvelopeMeta}},
		{"meta beside flat fields", &SchemaNode{Kind: KindObject, Properties: map[string]*SchemaNode{"meta": meta, "name": {Kind: KindString}}}, []Envelope{EnvelopeNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := BodyParts(tt.body)
			if len(parts) != len(tt.want) {
				t.Fatalf("expected %d parts, got %d", len(tt.want), len(parts))
			}
			for i, p := range parts {
				if p.Envelope != tt.want[i] {
					t.Errorf("part %d: expected %q, got %q", i, tt.want[i], p.Envelope)
				}
			}
		})
	}
}
