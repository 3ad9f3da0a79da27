package rdf

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseTerm_RoundTrip(t *testing.T) {
	terms := []Term{
		NewNamedNode("http://example.org/alice"),
		NewBlankNode("b42"),
		NewLiteral("Alice"),
		NewLiteral(""),
		NewLiteral("tab\there \"quoted\" back\\slash\nnewline"),
		NewLiteral("\x01\x7f"),
		NewLiteralWithLanguage("Bonjour", "fr"),
		NewLiteralWithLanguage("colour", "en-gb"),
		NewIntegerLiteral(30),
		NewLiteralWithDatatype("2025-01-01", XSDDate),
	}

	for _, term := range terms {
		parsed, err := ParseTerm(term.String())
		if err != nil {
			t.Fatalf("failed to parse %s: %v", term, err)
		}
		if !parsed.Equals(term) {
			t.Errorf("round trip mismatch: %s became %s", term, parsed)
		}
	}
}

func TestParseTerm_Escapes(t *testing.T) {
	parsed, err := ParseTerm(`"café \U0001F600"`)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	lit, ok := parsed.(*Literal)
	if !ok {
		t.Fatalf("expected literal, got %T", parsed)
	}
	if lit.Value != "café 😀" {
		t.Errorf("unexpected value %q", lit.Value)
	}

	parsed, err = ParseTerm(`"x"^^<http://www.w3.org/2001/XMLSchema#string>`)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if parsed.(*Literal).Datatype != nil {
		t.Error("xsd:string datatype should be normalized away")
	}
}

func TestParseTerm_Errors(t *testing.T) {
	inputs := []string{
		"",
		"<http://example.org/unclosed",
		`"unclosed`,
		`"bad escape \q"`,
		`"x"@`,
		"_:",
		"plain",
		"<http://example.org/a> trailing",
		"<http://example.org/with space>",
	}

	for _, input := range inputs {
		if _, err := ParseTerm(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestParseQuad(t *testing.T) {
	quad, err := ParseQuad(`<http://example.org/s> <http://example.org/p> "o"@en <http://example.org/g> .`)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if !quad.Graph.Equals(NewNamedNode("http://example.org/g")) {
		t.Errorf("unexpected graph %s", quad.Graph)
	}
	if !quad.Object.Equals(NewLiteralWithLanguage("o", "en")) {
		t.Errorf("unexpected object %s", quad.Object)
	}

	quad, err = ParseQuad(`_:b1 <http://example.org/p> _:b2.`)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if quad.Graph.Type() != TermTypeDefaultGraph {
		t.Errorf("expected default graph, got %s", quad.Graph)
	}
	if !quad.Object.Equals(NewBlankNode("b2")) {
		t.Errorf("unexpected object %s", quad.Object)
	}

	invalid := []string{
		`<http://example.org/s> <http://example.org/p> "o"`,
		`"s" <http://example.org/p> "o" .`,
		`<http://example.org/s> "p" "o" .`,
		`<http://example.org/s> <http://example.org/p> "o" "g" .`,
		`<http://example.org/s> <http://example.org/p> .`,
		`<a:s> <a:p> <a:o> <a:g> <a:x> .`,
	}
	for _, line := range invalid {
		if _, err := ParseQuad(line); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
}

func TestNQuadsReader(t *testing.T) {
	input := `# people
<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .

<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob" <http://example.org/graph1> . # trailing comment
`
	reader := NewNQuadsReader(strings.NewReader(input))
	quads, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if len(quads) != 2 {
		t.Fatalf("expected 2 quads, got %d", len(quads))
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}

	out := SerializeQuads(quads)
	again, err := NewNQuadsReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("failed to re-read serialized quads: %v", err)
	}
	for i := range quads {
		if again[i].String() != quads[i].String() {
			t.Errorf("quad %d changed: %s vs %s", i, quads[i], again[i])
		}
	}

	_, err = NewNQuadsReader(strings.NewReader("# header\n<a:s> <a:p>\n")).ReadAll()
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if parseErr.Line != 2 {
		t.Errorf("expected line 2, got %d", parseErr.Line)
	}
	if !strings.HasPrefix(err.Error(), "nquads:2: ") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
