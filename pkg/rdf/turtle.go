package rdf

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const rdfNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

var (
	rdfType  = NewNamedNode(rdfNS + "type")
	rdfFirst = NewNamedNode(rdfNS + "first")
	rdfRest  = NewNamedNode(rdfNS + "rest")
	rdfNil   = NewNamedNode(rdfNS + "nil")
)

// TurtleParser parses Turtle documents into quads of the default graph.
// Blank node property lists and collections are expanded into extra quads
// with generated blank nodes.
type TurtleParser struct {
	termParser
	format   string
	prefixes map[string]string
	base     string
	labels   map[string]string // document label -> emitted label
	used     map[string]bool   // emitted labels
	counter  int
	graph    Term
	quads    []*Quad
}

// NewTurtleParser creates a new Turtle parser
func NewTurtleParser(input string) *TurtleParser {
	return &TurtleParser{
		termParser: termParser{input: input},
		format:     "turtle",
		prefixes:   make(map[string]string),
		labels:     make(map[string]string),
		used:       make(map[string]bool),
		graph:      NewDefaultGraph(),
	}
}

// SetBaseURI sets the base URI for resolving relative IRIs
func (p *TurtleParser) SetBaseURI(baseURI string) {
	p.base = baseURI
}

// Parse parses the Turtle document and returns its quads
func (p *TurtleParser) Parse() ([]*Quad, error) {
	return p.parse(p.parseStatement)
}

// parse runs statement until the input is exhausted, handling directives
// in between
func (p *TurtleParser) parse(statement func() error) ([]*Quad, error) {
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= len(p.input) {
			return p.quads, nil
		}

		handled, err := p.parseDirective()
		if err == nil && !handled {
			err = statement()
		}
		if err != nil {
			return nil, &ParseError{Format: p.format, Line: p.line(), Err: err}
		}
	}
}

func (p *TurtleParser) parseStatement() error {
	if err := p.parseTriples(); err != nil {
		return err
	}
	return p.expect('.')
}

func (p *TurtleParser) line() int {
	return strings.Count(p.input[:p.pos], "\n") + 1
}

// peek returns the current byte, 0 at the end of input
func (p *TurtleParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *TurtleParser) expect(ch byte) error {
	p.skipWhitespaceAndComments()
	if p.peek() != ch {
		return fmt.Errorf("expected '%c' at position %d", ch, p.pos)
	}
	p.pos++
	return nil
}

func (p *TurtleParser) skipWhitespaceAndComments() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		case '#':
			for p.pos < len(p.input) && p.input[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

// matchKeyword consumes keyword if it is a whole word at the current
// position. Keywords from SPARQL are case-insensitive, the @ forms are not.
func (p *TurtleParser) matchKeyword(keyword string, exact bool) bool {
	end := p.pos + len(keyword)
	if end > len(p.input) {
		return false
	}
	word := p.input[p.pos:end]
	if exact && word != keyword || !exact && !strings.EqualFold(word, keyword) {
		return false
	}
	if end < len(p.input) && isNameByte(p.input[end]) {
		return false
	}
	p.pos = end
	return true
}

func (p *TurtleParser) parseDirective() (bool, error) {
	switch {
	case p.matchKeyword("@prefix", true):
		return true, p.parsePrefix(true)
	case p.matchKeyword("PREFIX", false):
		return true, p.parsePrefix(false)
	case p.matchKeyword("@base", true):
		return true, p.parseBase(true)
	case p.matchKeyword("BASE", false):
		return true, p.parseBase(false)
	}
	return false, nil
}

func (p *TurtleParser) parsePrefix(dotted bool) error {
	p.skipWhitespaceAndComments()

	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != ':' && (isNameByte(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.peek() != ':' {
		return fmt.Errorf("expected ':' after prefix name at position %d", p.pos)
	}
	prefix := p.input[start:p.pos]
	p.pos++

	p.skipWhitespaceAndComments()
	iri, err := p.parseIRIRef()
	if err != nil {
		return fmt.Errorf("failed to parse prefix IRI: %w", err)
	}
	p.prefixes[prefix] = iri

	if dotted {
		return p.expect('.')
	}
	return nil
}

func (p *TurtleParser) parseBase(dotted bool) error {
	p.skipWhitespaceAndComments()
	iri, err := p.parseIRIRef()
	if err != nil {
		return fmt.Errorf("failed to parse base IRI: %w", err)
	}
	p.base = iri

	if dotted {
		return p.expect('.')
	}
	return nil
}

// parseTriples parses a subject with its predicate-object list. A blank
// node property list may stand on its own.
func (p *TurtleParser) parseTriples() error {
	p.skipWhitespaceAndComments()
	if p.peek() == '[' {
		subject, err := p.parseBlankNodePropertyList()
		if err != nil {
			return err
		}
		p.skipWhitespaceAndComments()
		if c := p.peek(); c == '.' || c == '}' {
			return nil
		}
		return p.parsePredicateObjectList(subject)
	}

	subject, err := p.parseObject()
	if err != nil {
		return fmt.Errorf("failed to parse subject: %w", err)
	}
	if _, ok := subject.(*Literal); ok {
		return fmt.Errorf("literal not allowed as subject")
	}
	return p.parsePredicateObjectList(subject)
}

func (p *TurtleParser) parsePredicateObjectList(subject Term) error {
	for {
		predicate, err := p.parsePredicate()
		if err != nil {
			return fmt.Errorf("failed to parse predicate: %w", err)
		}

		for {
			object, err := p.parseObject()
			if err != nil {
				return fmt.Errorf("failed to parse object: %w", err)
			}
			p.emit(subject, predicate, object)

			p.skipWhitespaceAndComments()
			if p.peek() != ',' {
				break
			}
			p.pos++
		}

		if p.peek() != ';' {
			return nil
		}
		// repeated semicolons are allowed
		for p.peek() == ';' {
			p.pos++
			p.skipWhitespaceAndComments()
		}
		if c := p.peek(); c == '.' || c == ']' || c == '}' || c == 0 {
			return nil
		}
	}
}

func (p *TurtleParser) emit(subject, predicate, object Term) {
	p.quads = append(p.quads, NewQuad(subject, predicate, object, p.graph))
}

func (p *TurtleParser) parsePredicate() (*NamedNode, error) {
	p.skipWhitespaceAndComments()
	if p.peek() == 'a' {
		next, _ := utf8.DecodeRuneInString(p.input[p.pos+1:])
		if p.pos+1 == len(p.input) || !isPNChars(next) && next != ':' {
			p.pos++
			return rdfType, nil
		}
	}
	return p.parseIRITerm()
}

// parseObject parses any term allowed in subject or object position
func (p *TurtleParser) parseObject() (Term, error) {
	p.skipWhitespaceAndComments()

	switch c := p.peek(); {
	case c == 0:
		return nil, fmt.Errorf("unexpected end of input")
	case c == '<':
		return p.parseIRITerm()
	case strings.HasPrefix(p.input[p.pos:], "_:"):
		return p.parseBlankNodeLabel()
	case c == '[':
		return p.parseBlankNodePropertyList()
	case c == '(':
		return p.parseCollection()
	case c == '"' || c == '\'':
		return p.parseTurtleLiteral()
	case p.isNumberStart():
		return p.parseNumber()
	case p.matchKeyword("true", true):
		return NewBooleanLiteral(true), nil
	case p.matchKeyword("false", true):
		return NewBooleanLiteral(false), nil
	default:
		return p.parsePrefixedName()
	}
}

// parseIRITerm parses an IRI reference or a prefixed name
func (p *TurtleParser) parseIRITerm() (*NamedNode, error) {
	if p.peek() != '<' {
		return p.parsePrefixedName()
	}
	iri, err := p.parseIRIRef()
	if err != nil {
		return nil, err
	}
	return NewNamedNode(iri), nil
}

func (p *TurtleParser) parseIRIRef() (string, error) {
	iri, err := p.parseIRI()
	if err != nil {
		return "", err
	}
	if hasScheme(iri) {
		return iri, nil
	}
	if p.base == "" {
		return "", fmt.Errorf("relative IRI %q without base", iri)
	}

	base, err := url.Parse(p.base)
	if err != nil {
		return "", fmt.Errorf("invalid base IRI %q: %w", p.base, err)
	}
	ref, err := url.Parse(iri)
	if err != nil {
		return "", fmt.Errorf("invalid relative IRI %q: %w", iri, err)
	}
	resolved := base.ResolveReference(ref).String()
	// url drops an empty fragment
	if strings.HasSuffix(iri, "#") && !strings.HasSuffix(resolved, "#") {
		resolved += "#"
	}
	return resolved, nil
}

func (p *TurtleParser) parseBlankNodeLabel() (*BlankNode, error) {
	p.pos += 2 // skip '_:'

	start := p.pos
	r, size := utf8.DecodeRuneInString(p.input[p.pos:])
	if size == 0 || !isPNCharsU(r) && (r < '0' || r > '9') {
		return nil, fmt.Errorf("invalid blank node label at position %d", p.pos)
	}
	p.pos += size
	for p.pos < len(p.input) {
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if !isPNChars(r) && r != '.' {
			break
		}
		p.pos += size
	}
	// a label cannot end with '.'
	for p.input[p.pos-1] == '.' {
		p.pos--
	}

	label := p.input[start:p.pos]
	if id, ok := p.labels[label]; ok {
		return NewBlankNode(id), nil
	}
	id := label
	if p.used[id] {
		id = p.newBlankNode().ID
	}
	p.used[id] = true
	p.labels[label] = id
	return NewBlankNode(id), nil
}

// newBlankNode generates a blank node whose label does not clash with a
// label of the document
func (p *TurtleParser) newBlankNode() *BlankNode {
	for {
		p.counter++
		id := fmt.Sprintf("genid%d", p.counter)
		if !p.used[id] {
			p.used[id] = true
			return NewBlankNode(id)
		}
	}
}

func (p *TurtleParser) parseBlankNodePropertyList() (*BlankNode, error) {
	p.pos++ // skip '['
	node := p.newBlankNode()

	p.skipWhitespaceAndComments()
	if p.peek() == ']' {
		p.pos++
		return node, nil
	}
	if err := p.parsePredicateObjectList(node); err != nil {
		return nil, err
	}
	if err := p.expect(']'); err != nil {
		return nil, err
	}
	return node, nil
}

// parseCollection expands ( item ... ) into an rdf:first/rdf:rest list
func (p *TurtleParser) parseCollection() (Term, error) {
	p.pos++ // skip '('

	var items []Term
	for {
		p.skipWhitespaceAndComments()
		if p.peek() == ')' {
			p.pos++
			break
		}
		if p.peek() == 0 {
			return nil, fmt.Errorf("unclosed collection")
		}
		item, err := p.parseObject()
		if err != nil {
			return nil, fmt.Errorf("failed to parse collection item: %w", err)
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return rdfNil, nil
	}
	head := p.newBlankNode()
	node := head
	for i, item := range items {
		p.emit(node, rdfFirst, item)
		if i == len(items)-1 {
			p.emit(node, rdfRest, rdfNil)
			break
		}
		next := p.newBlankNode()
		p.emit(node, rdfRest, next)
		node = next
	}
	return head, nil
}

func (p *TurtleParser) parseTurtleLiteral() (*Literal, error) {
	value, err := p.parseString()
	if err != nil {
		return nil, err
	}

	if p.peek() == '@' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) && isLangChar(p.input[p.pos]) {
			p.pos++
		}
		lang := p.input[start:p.pos]
		if lang == "" || !isLetter(lang[0]) {
			return nil, fmt.Errorf("invalid language tag %q", lang)
		}
		return NewLiteralWithLanguage(value, lang), nil
	}

	if strings.HasPrefix(p.input[p.pos:], "^^") {
		p.pos += 2
		datatype, err := p.parseIRITerm()
		if err != nil {
			return nil, fmt.Errorf("failed to parse datatype: %w", err)
		}
		if datatype.IRI == XSDString.IRI {
			return NewLiteral(value), nil
		}
		return NewLiteralWithDatatype(value, datatype), nil
	}

	return NewLiteral(value), nil
}

// parseString parses a short or long string in single or double quotes
func (p *TurtleParser) parseString() (string, error) {
	delim := p.input[p.pos : p.pos+1]
	if long := strings.Repeat(delim, 3); strings.HasPrefix(p.input[p.pos:], long) {
		delim = long
	}
	start := p.pos
	p.pos += len(delim)

	var value strings.Builder
	for {
		if p.pos >= len(p.input) {
			return "", fmt.Errorf("unclosed string literal at position %d", start)
		}
		if strings.HasPrefix(p.input[p.pos:], delim) {
			p.pos += len(delim)
			return value.String(), nil
		}

		ch := p.input[p.pos]
		switch {
		case ch == '\\':
			escaped, err := p.parseEscape()
			if err != nil {
				return "", err
			}
			value.WriteString(escaped)
		case len(delim) == 1 && (ch == '\n' || ch == '\r'):
			return "", fmt.Errorf("line break in string literal at position %d", p.pos)
		default:
			value.WriteByte(ch)
			p.pos++
		}
	}
}

func (p *TurtleParser) parseEscape() (string, error) {
	if p.pos+1 >= len(p.input) {
		return "", fmt.Errorf("unexpected end of input in escape sequence")
	}

	var out string
	switch esc := p.input[p.pos+1]; esc {
	case 'u', 'U':
		return p.parseUnicodeEscape()
	case 'n':
		out = "\n"
	case 't':
		out = "\t"
	case 'r':
		out = "\r"
	case 'b':
		out = "\b"
	case 'f':
		out = "\f"
	case '"', '\'', '\\':
		out = string(esc)
	default:
		return "", fmt.Errorf("invalid escape sequence \\%c at position %d", esc, p.pos)
	}
	p.pos += 2
	return out, nil
}

func (p *TurtleParser) isNumberStart() bool {
	rest := p.input[p.pos:]
	if rest[0] == '+' || rest[0] == '-' {
		rest = rest[1:]
	}
	if rest == "" {
		return false
	}
	return isDigit(rest[0]) || rest[0] == '.' && len(rest) > 1 && isDigit(rest[1])
}

// parseNumber parses an integer, decimal or double keeping its lexical form
func (p *TurtleParser) parseNumber() (*Literal, error) {
	start := p.pos
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}

	datatype := XSDInteger
	digits := p.skipDigits()
	if p.peek() == '.' && p.pos+1 < len(p.input) {
		// otherwise the dot ends the statement
		if next := p.input[p.pos+1]; isDigit(next) || digits > 0 && (next == 'e' || next == 'E') {
			p.pos++
			digits += p.skipDigits()
			datatype = XSDDecimal
		}
	}
	if digits == 0 {
		return nil, fmt.Errorf("expected digits at position %d", start)
	}

	if c := p.peek(); c == 'e' || c == 'E' {
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		if p.skipDigits() == 0 {
			return nil, fmt.Errorf("expected exponent digits at position %d", p.pos)
		}
		datatype = XSDDouble
	}

	return NewLiteralWithDatatype(p.input[start:p.pos], datatype), nil
}

func (p *TurtleParser) skipDigits() int {
	start := p.pos
	for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
		p.pos++
	}
	return p.pos - start
}

// parsePrefixedName parses prefix:local and expands it against the
// declared prefixes
func (p *TurtleParser) parsePrefixedName() (*NamedNode, error) {
	start := p.pos
	if p.peek() != ':' {
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if !isPNCharsBase(r) {
			return nil, fmt.Errorf("unexpected character %q at position %d", r, p.pos)
		}
		p.pos += size
		for p.pos < len(p.input) && p.input[p.pos] != ':' {
			r, size := utf8.DecodeRuneInString(p.input[p.pos:])
			if !isPNChars(r) && r != '.' {
				break
			}
			p.pos += size
		}
	}
	if p.peek() != ':' {
		return nil, fmt.Errorf("expected ':' in prefixed name at position %d", p.pos)
	}
	prefix := p.input[start:p.pos]
	p.pos++

	namespace, ok := p.prefixes[prefix]
	if !ok {
		return nil, fmt.Errorf("undefined prefix %q", prefix)
	}

	var local strings.Builder
	for p.pos < len(p.input) {
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		switch {
		case r == '%':
			if p.pos+2 >= len(p.input) || !isHexDigit(p.input[p.pos+1]) || !isHexDigit(p.input[p.pos+2]) {
				return nil, fmt.Errorf("invalid percent encoding at position %d", p.pos)
			}
			local.WriteString(p.input[p.pos : p.pos+3])
			p.pos += 3
		case r == '\\':
			if p.pos+1 >= len(p.input) || !strings.ContainsRune(localEscapes, rune(p.input[p.pos+1])) {
				return nil, fmt.Errorf("invalid escape in prefixed name at position %d", p.pos)
			}
			local.WriteByte(p.input[p.pos+1])
			p.pos += 2
		case isPNChars(r) || r == ':' || r == '.':
			if local.Len() == 0 && (r == '-' || r == '.') {
				return nil, fmt.Errorf("local name cannot start with %q at position %d", r, p.pos)
			}
			local.WriteRune(r)
			p.pos += size
		default:
			return NewNamedNode(namespace + p.trimLocal(&local)), nil
		}
	}
	return NewNamedNode(namespace + p.trimLocal(&local)), nil
}

// trimLocal drops trailing dots from a local name, leaving them to end
// the statement
func (p *TurtleParser) trimLocal(local *strings.Builder) string {
	s := local.String()
	trimmed := strings.TrimRight(s, ".")
	p.pos -= len(s) - len(trimmed)
	return trimmed
}

const localEscapes = "_~.-!$&'()*+,;=/?#@%"

func hasScheme(iri string) bool {
	for i := 0; i < len(iri); i++ {
		ch := iri[i]
		switch {
		case isLetter(ch):
		case i > 0 && (isDigit(ch) || ch == '+' || ch == '-' || ch == '.'):
		case i > 0 && ch == ':':
			return true
		default:
			return false
		}
	}
	return false
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isNameByte(ch byte) bool {
	return isLangChar(ch) || ch == '_' || ch == ':' || ch >= utf8.RuneSelf
}

func isPNCharsBase(r rune) bool {
	return (r >= 'A' && r <= 'Z') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 0x00C0 && r <= 0x00D6) ||
		(r >= 0x00D8 && r <= 0x00F6) ||
		(r >= 0x00F8 && r <= 0x02FF) ||
		(r >= 0x0370 && r <= 0x037D) ||
		(r >= 0x037F && r <= 0x1FFF) ||
		(r >= 0x200C && r <= 0x200D) ||
		(r >= 0x2070 && r <= 0x218F) ||
		(r >= 0x2C00 && r <= 0x2FEF) ||
		(r >= 0x3001 && r <= 0xD7FF) ||
		(r >= 0xF900 && r <= 0xFDCF) ||
		(r >= 0xFDF0 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0xEFFFF)
}

func isPNCharsU(r rune) bool {
	return isPNCharsBase(r) || r == '_'
}

func isPNChars(r rune) bool {
	return isPNCharsU(r) ||
		r == '-' ||
		(r >= '0' && r <= '9') ||
		r == 0x00B7 ||
		(r >= 0x0300 && r <= 0x036F) ||
		(r >= 0x203F && r <= 0x2040)
}
