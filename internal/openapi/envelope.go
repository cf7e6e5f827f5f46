package openapi

// Envelope names the wrapper a request body travels in.
type Envelope string

const (
	// EnvelopeNone means the body schema declares no wrapper.
	EnvelopeNone       Envelope = ""
	EnvelopeAttributes Envelope = "attributes"
	EnvelopeMeta       Envelope = "meta"
)

// BodyPart is one group of caller-facing body fields and the wrapper the
// group travels in.
type BodyPart struct {
	Envelope Envelope
	Node     *SchemaNode
}

// BodyParts splits a request body schema into its caller-facing groups.
// data.attributes comes first, then a sibling meta object. A body with
// neither wrapper is a single EnvelopeNone part.
func BodyParts(body *SchemaNode) []BodyPart {
	if body == nil {
		return nil
	}
	if body.Kind != KindObject {
		return []BodyPart{{Envelope: EnvelopeNone, Node: body}}
	}

	var parts []BodyPart
	if attrs := body.Property("data").Property("attributes"); attrs != nil && attrs.Kind == KindObject {
		parts = append(parts, BodyPart{Envelope: EnvelopeAttributes, Node: attrs})
	}
	if meta := body.Property("meta"); meta != nil && meta.Kind == KindObject {
		if len(parts) > 0 || len(body.Properties) == 1 {
			parts = append(parts, BodyPart{Envelope: EnvelopeMeta, Node: meta})
		}
	}
	if len(parts) == 0 {
		return []BodyPart{{Envelope: EnvelopeNone, Node: body}}
	}
	return parts
}

// BodyEnvelope reports the primary wrapper declared by a request body
// schema: the envelope of its first part.
func BodyEnvelope(body *SchemaNode) Envelope {
	parts := BodyParts(body)
	if len(parts) == 0 {
		return EnvelopeNone
	}
	return parts[0].Envelope
}

// DeclaresResourceType reports whether the body schema has a data.type member.
func DeclaresResourceType(body *SchemaNode) bool {
	return body.Property("data").Property("type") != nil
}
