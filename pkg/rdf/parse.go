package rdf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseTerm parses a single term in canonical N-Quads form: <iri>, _:label
// or a quoted literal with an optional @lang or ^^<datatype> suffix.
func ParseTerm(input string) (Term, error) {
	p := &termParser{input: input}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected trailing input at position %d: %q", p.pos, p.input[p.pos:])
	}
	return term, nil
}

// ParseQuad parses one N-Quads statement. A statement without a graph term
// belongs to the default graph.
func ParseQuad(line string) (*Quad, error) {
	p := &termParser{input: line}

	terms := make([]Term, 0, 4)
	for {
		p.skipWhitespace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("missing '.' at end of statement")
		}
		if p.input[p.pos] == '.' {
			p.pos++
			break
		}
		if len(terms) == 4 {
			return nil, fmt.Errorf("too many terms in statement")
		}

		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}

	p.skipWhitespace()
	if p.pos < len(p.input) && p.input[p.pos] != '#' {
		return nil, fmt.Errorf("unexpected input after '.': %q", p.input[p.pos:])
	}

	if len(terms) < 3 {
		return nil, fmt.Errorf("expected at least 3 terms, got %d", len(terms))
	}

	quad := NewQuad(terms[0], terms[1], terms[2], NewDefaultGraph())
	if len(terms) == 4 {
		quad.Graph = terms[3]
	}

	if quad.Subject.Type() == TermTypeLiteral {
		return nil, fmt.Errorf("literal not allowed as subject")
	}
	if quad.Predicate.Type() != TermTypeNamedNode {
		return nil, fmt.Errorf("predicate must be an IRI")
	}
	if quad.Graph.Type() == TermTypeLiteral {
		return nil, fmt.Errorf("literal not allowed as graph")
	}
	return quad, nil
}

// NQuadsReader reads quads from an N-Quads stream, one statement per line.
// Empty lines and comment lines are skipped.
type NQuadsReader struct {
	scanner *bufio.Scanner
	line    int
}

func NewNQuadsReader(r io.Reader) *NQuadsReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &NQuadsReader{scanner: scanner}
}

// Read returns the next quad, or io.EOF when the stream is exhausted
func (r *NQuadsReader) Read() (*Quad, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		quad, err := ParseQuad(line)
		if err != nil {
			return nil, &ParseError{Line: r.line, Statement: line, Err: err}
		}
		return quad, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// ReadAll reads every remaining quad
func (r *NQuadsReader) ReadAll() ([]*Quad, error) {
	var quads []*Quad
	for {
		quad, err := r.Read()
		if err == io.EOF {
			return quads, nil
		}
		if err != nil {
			return nil, err
		}
		quads = append(quads, quad)
	}
}

type termParser struct {
	input string
	pos   int
}

func (p *termParser) skipWhitespace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *termParser) parseTerm() (Term, error) {
	p.skipWhitespace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of input")
	}

	switch p.input[p.pos] {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	case '"':
		return p.parseLiteral()
	default:
		return nil, fmt.Errorf("unexpected character at position %d: %c", p.pos, p.input[p.pos])
	}
}

// parseIRI parses an IRI enclosed in < >
func (p *termParser) parseIRI() (string, error) {
	if p.pos >= len(p.input) || p.input[p.pos] != '<' {
		return "", fmt.Errorf("expected '<' at start of IRI")
	}
	p.pos++

	var result strings.Builder
	for p.pos < len(p.input) && p.input[p.pos] != '>' {
		ch := p.input[p.pos]

		if ch == '\\' {
			escaped, err := p.parseUnicodeEscape()
			if err != nil {
				return "", err
			}
			result.WriteString(escaped)
			continue
		}

		// IRIs cannot contain space, <, ", {, }, |, ^, ` or control characters
		if ch == ' ' || ch == '<' || ch == '"' || ch == '{' || ch == '}' ||
			ch == '|' || ch == '^' || ch == '`' || ch <= 0x1F {
			return "", fmt.Errorf("invalid character in IRI: %q at position %d", ch, p.pos)
		}

		result.WriteByte(ch)
		p.pos++
	}

	if p.pos >= len(p.input) {
		return "", fmt.Errorf("unclosed IRI")
	}
	p.pos++

	return result.String(), nil
}

func (p *termParser) parseBlankNode() (Term, error) {
	if !strings.HasPrefix(p.input[p.pos:], "_:") {
		return nil, fmt.Errorf("expected '_:' at start of blank node")
	}
	p.pos += 2

	start := p.pos
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '<' || ch == '"' {
			break
		}
		// a trailing '.' ends the statement, not the label
		if ch == '.' && (p.pos+1 == len(p.input) || p.input[p.pos+1] == ' ' || p.input[p.pos+1] == '\t') {
			break
		}
		p.pos++
	}

	if p.pos == start {
		return nil, fmt.Errorf("empty blank node label")
	}
	return NewBlankNode(p.input[start:p.pos]), nil
}

func (p *termParser) parseLiteral() (Term, error) {
	p.pos++ // skip opening '"'

	var value strings.Builder
	for p.pos < len(p.input) && p.input[p.pos] != '"' {
		ch := p.input[p.pos]
		if ch != '\\' {
			value.WriteByte(ch)
			p.pos++
			continue
		}

		if p.pos+1 >= len(p.input) {
			return nil, fmt.Errorf("unexpected end of input in escape sequence")
		}
		switch esc := p.input[p.pos+1]; esc {
		case 'n':
			value.WriteByte('\n')
		case 't':
			value.WriteByte('\t')
		case 'r':
			value.WriteByte('\r')
		case 'b':
			value.WriteByte('\b')
		case 'f':
			value.WriteByte('\f')
		case '"':
			value.WriteByte('"')
		case '\'':
			value.WriteByte('\'')
		case '\\':
			value.WriteByte('\\')
		case 'u', 'U':
			escaped, err := p.parseUnicodeEscape()
			if err != nil {
				return nil, err
			}
			value.WriteString(escaped)
			continue
		default:
			return nil, fmt.Errorf("invalid escape sequence \\%c at position %d", esc, p.pos)
		}
		p.pos += 2
	}

	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unclosed string literal")
	}
	p.pos++ // skip closing '"'

	if p.pos < len(p.input) && p.input[p.pos] == '@' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && isLangChar(p.input[p.pos]) {
			p.pos++
		}
		lang := p.input[start:p.pos]
		if lang == "" || !isLetter(lang[0]) {
			return nil, fmt.Errorf("invalid language tag %q", lang)
		}
		return NewLiteralWithLanguage(value.String(), lang), nil
	}

	if strings.HasPrefix(p.input[p.pos:], "^^") {
		p.pos += 2
		datatype, err := p.parseIRI()
		if err != nil {
			return nil, fmt.Errorf("error parsing datatype: %w", err)
		}
		if datatype == XSDString.IRI {
			return NewLiteral(value.String()), nil
		}
		return NewLiteralWithDatatype(value.String(), NewNamedNode(datatype)), nil
	}

	return NewLiteral(value.String()), nil
}

// parseUnicodeEscape decodes a \uXXXX or \UXXXXXXXX escape at the current
// position
func (p *termParser) parseUnicodeEscape() (string, error) {
	if p.pos+1 >= len(p.input) {
		return "", fmt.Errorf("invalid escape at position %d", p.pos)
	}

	var digits int
	switch p.input[p.pos+1] {
	case 'u':
		digits = 4
	case 'U':
		digits = 8
	default:
		return "", fmt.Errorf("invalid escape sequence at position %d", p.pos)
	}

	start := p.pos + 2
	if start+digits > len(p.input) {
		return "", fmt.Errorf("truncated unicode escape at position %d", p.pos)
	}

	code, err := strconv.ParseUint(p.input[start:start+digits], 16, 32)
	if err != nil {
		return "", fmt.Errorf("invalid unicode escape at position %d: %w", p.pos, err)
	}

	p.pos = start + digits
	return string(rune(code)), nil
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isLangChar(ch byte) bool {
	return isLetter(ch) || (ch >= '0' && ch <= '9') || ch == '-'
}
