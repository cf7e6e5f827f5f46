// Package inflect holds the naming rules shared by tool synthesis and
// request building: singularization and caller/wire case conversion.
package inflect

import (
	"strings"
	"unicode"
)

// irregular maps plurals the suffix rules get wrong.
var irregular = map[string]string{
	"people":   "person",
	"children": "child",
	"statuses": "status",
	"aliases":  "alias",
	"analyses": "analysis",
	"indices":  "index",
	"matrices": "matrix",
	"criteria": "criterion",
	"series":   "series",
	"species":  "species",
	"data":     "data",
	"media":    "media",
}

// suffixRules are applied in order; the first matching suffix wins.
var suffixRules = []struct {
	suffix      string
	replacement string
}{
	{"ies", "y"},
	{"sses", "ss"},
	{"xes", "x"},
	{"ches", "ch"},
	{"shes", "sh"},
	{"uses", "us"},
}

// Singularize returns the singular form of a lowercase English plural.
// Words that are already singular are returned unchanged.
func Singularize(word string) string {
	if word == "" {
		return word
	}
	lower := strings.ToLower(word)
	if s, ok := irregular[lower]; ok {
		return s
	}
	for _, r := range suffixRules {
		if len(lower) > len(r.suffix) && strings.HasSuffix(lower, r.suffix) {
			return word[:len(word)-len(r.suffix)] + r.replacement
		}
	}
	if len(lower) > 1 && strings.HasSuffix(lower, "s") &&
		!strings.HasSuffix(lower, "ss") &&
		!strings.HasSuffix(lower, "us") &&
		!strings.HasSuffix(lower, "is") {
		return word[:len(word)-1]
	}
	return word
}

// IsPlural reports whether Singularize would change the word.
func IsPlural(word string) bool {
	if s, ok := irregular[strings.ToLower(word)]; ok {
		return s != strings.ToLower(word)
	}
	return Singularize(word) != word
}

// SingularizeLast singularizes only the final sep-delimited word of a
// compound name, e.g. "account-tags" -> "account-tag".
func SingularizeLast(name string, sep string) string {
	i := strings.LastIndex(name, sep)
	if i < 0 {
		return Singularize(name)
	}
	return name[:i+len(sep)] + Singularize(name[i+len(sep):])
}

// Case names a field naming convention.
type Case string

const (
	Kebab Case = "kebab"
	Snake Case = "snake"
	Camel Case = "camel"
)

// ParseCase maps a config string to a Case, defaulting to Kebab.
func ParseCase(s string) Case {
	switch Case(strings.ToLower(strings.TrimSpace(s))) {
	case Snake:
		return Snake
	case Camel:
		return Camel
	default:
		return Kebab
	}
}

// Converter translates between the caller's camelCase field names and the
// remote API's wire convention.
type Converter struct {
	Case Case
}

func (c Converter) separator() rune {
	switch c.Case {
	case Snake:
		return '_'
	case Camel:
		return 0
	default:
		return '-'
	}
}

// ToWire converts a camelCase caller name to the wire convention by
// inserting the separator at lower-to-upper word boundaries.
func (c Converter) ToWire(name string) string {
	sep := c.separator()
	if sep == 0 {
		return name
	}
	var b strings.Builder
	b.Grow(len(name) + 4)
	var prev rune
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteRune(sep)
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

// ToCaller converts a wire name to camelCase by dropping separators and
// upper-casing the letter that follows each one.
func (c Converter) ToCaller(name string) string {
	sep := c.separator()
	if sep == 0 {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	upper := false
	for i, r := range name {
		if r == sep && i > 0 {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WireKeys returns a copy of v with every map key converted by ToWire,
// descending into nested maps and slices.
func (c Converter) WireKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[c.ToWire(k)] = c.WireKeys(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = c.WireKeys(inner)
		}
		return out
	default:
		return v
	}
}
