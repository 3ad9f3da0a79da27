package rdf

import (
	"fmt"
	"strings"
)

// SerializeQuads serializes quads to canonical N-Quads, one per line.
// Input order is preserved.
func SerializeQuads(quads []*Quad) string {
	var builder strings.Builder
	for _, quad := range quads {
		builder.WriteString(SerializeQuad(quad))
		builder.WriteString("\n")
	}
	return builder.String()
}

// SerializeQuad serializes a quad as one canonical N-Quads statement. The
// graph is omitted for the default graph.
func SerializeQuad(quad *Quad) string {
	var builder strings.Builder
	builder.WriteString(SerializeTerm(quad.Subject))
	builder.WriteString(" ")
	builder.WriteString(SerializeTerm(quad.Predicate))
	builder.WriteString(" ")
	builder.WriteString(SerializeTerm(quad.Object))

	if quad.Graph != nil {
		if _, isDefault := quad.Graph.(*DefaultGraph); !isDefault {
			builder.WriteString(" ")
			builder.WriteString(SerializeTerm(quad.Graph))
		}
	}

	builder.WriteString(" .")
	return builder.String()
}

// SerializeTerm serializes a single RDF term in canonical N-Quads form.
// ParseTerm reverses it.
func SerializeTerm(term Term) string {
	switch t := term.(type) {
	case *NamedNode:
		return "<" + t.IRI + ">"
	case *BlankNode:
		return "_:" + t.ID
	case *Literal:
		return serializeLiteral(t)
	case *DefaultGraph:
		return t.String()
	default:
		return ""
	}
}

func serializeLiteral(lit *Literal) string {
	escaped := escapeString(lit.Value)

	if lit.Language != "" {
		return fmt.Sprintf(`"%s"@%s`, escaped, strings.ToLower(lit.Language))
	}

	// xsd:string is implicit in canonical form
	if lit.Datatype != nil && lit.Datatype.IRI != XSDString.IRI {
		return fmt.Sprintf(`"%s"^^<%s>`, escaped, lit.Datatype.IRI)
	}

	return `"` + escaped + `"`
}

// escapeString escapes a string value following the canonical N-Quads
// rules: named escapes for \t \b \n \r \f \" \\ and \uXXXX for other
// control characters.
func escapeString(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\t':
			builder.WriteString(`\t`)
		case '\b':
			builder.WriteString(`\b`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\f':
			builder.WriteString(`\f`)
		case '"':
			builder.WriteString(`\"`)
		case '\\':
			builder.WriteString(`\\`)
		default:
			if r < 0x20 || r == 0x7F || r == 0xFFFE || r == 0xFFFF {
				fmt.Fprintf(&builder, `\u%04X`, r)
			} else {
				builder.WriteRune(r)
			}
		}
	}

	return builder.String()
}
