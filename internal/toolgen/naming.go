package toolgen

import (
	"strings"

	"github.com/bobmcallan/persona-mcp/internal/inflect"
)

// crudPatterns rewrite "verb-article-resource" identifiers to
// "{resource}_{verb}". Matching is by substring, first pattern wins.
var crudPatterns = []struct {
	marker string
	verb   string
}{
	{"list-all-", "list"},
	{"create-an-", "create"},
	{"create-a-", "create"},
	{"retrieve-an-", "retrieve"},
	{"retrieve-a-", "retrieve"},
	{"update-an-", "update"},
	{"update-a-", "update"},
	{"redact-an-", "redact"},
	{"redact-a-", "redact"},
}

// ToolName derives a stable tool identifier from an operation identifier.
//
//	accounts-add-tag  -> account_add_tag
//	list-all-accounts -> account_list
//	create-an-inquiry -> inquiry_create
//	get.version       -> get_version
//
// The result is a fixed point: ToolName(ToolName(id)) == ToolName(id).
func ToolName(operationID string) string {
	id := strings.TrimSpace(operationID)
	if name, ok := resourceActionName(id); ok {
		return name
	}
	if name, ok := crudName(id); ok {
		return name
	}
	return literalName(id)
}

// resourceActionName handles "<plural resource>-<action>" identifiers.
func resourceActionName(id string) (string, bool) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	resource := parts[0]
	if !isWord(resource) || !inflect.IsPlural(resource) {
		return "", false
	}
	return inflect.Singularize(resource) + "_" + literalName(parts[1]), true
}

func crudName(id string) (string, bool) {
	for _, p := range crudPatterns {
		i := strings.Index(id, p.marker)
		if i < 0 {
			continue
		}
		resource := strings.Trim(id[i+len(p.marker):], "-")
		if resource == "" {
			continue
		}
		return literalName(inflect.SingularizeLast(resource, "-")) + "_" + p.verb, true
	}
	return "", false
}

// literalName converts separators to underscores and leaves everything else.
func literalName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', ' ', '/':
			return '_'
		}
		return r
	}, id)
}

func isWord(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return s != ""
}
