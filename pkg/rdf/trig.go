package rdf

import "fmt"

// TriGParser parses TriG format (Turtle + named graphs). Triples outside a
// graph block and inside an unlabeled { } block belong to the default graph.
type TriGParser struct {
	*TurtleParser
}

// NewTriGParser creates a new TriG parser
func NewTriGParser(input string) *TriGParser {
	p := NewTurtleParser(input)
	p.format = "trig"
	return &TriGParser{TurtleParser: p}
}

// Parse parses the TriG document and returns quads
func (p *TriGParser) Parse() ([]*Quad, error) {
	return p.parse(p.parseBlock)
}

// parseBlock parses one graph block, or one statement of default graph
// triples
func (p *TriGParser) parseBlock() error {
	if p.matchKeyword("GRAPH", false) {
		p.skipWhitespaceAndComments()
		label, err := p.parseGraphLabel()
		if err != nil {
			return fmt.Errorf("expected graph name after GRAPH: %w", err)
		}
		return p.parseWrappedGraph(label)
	}
	if p.peek() == '{' {
		return p.parseWrappedGraph(NewDefaultGraph())
	}

	// a term followed by '{' names the graph of the block, anything else
	// starts a statement
	start, emitted := p.pos, len(p.quads)
	if label, err := p.parseGraphLabel(); err == nil {
		p.skipWhitespaceAndComments()
		if p.peek() == '{' {
			return p.parseWrappedGraph(label)
		}
	}
	p.pos = start
	p.quads = p.quads[:emitted]

	return p.parseStatement()
}

func (p *TriGParser) parseGraphLabel() (Term, error) {
	label, err := p.parseObject()
	if err != nil {
		return nil, err
	}
	switch label.(type) {
	case *NamedNode, *BlankNode:
		return label, nil
	default:
		return nil, fmt.Errorf("graph name must be an IRI or blank node, got %s", label)
	}
}

func (p *TriGParser) parseWrappedGraph(label Term) error {
	if err := p.expect('{'); err != nil {
		return err
	}
	p.graph = label
	defer func() { p.graph = NewDefaultGraph() }()

	for {
		p.skipWhitespaceAndComments()
		if p.peek() == '}' {
			p.pos++
			return nil
		}
		if err := p.parseTriples(); err != nil {
			return err
		}

		// the last statement of a block may omit its '.'
		p.skipWhitespaceAndComments()
		switch p.peek() {
		case '.':
			p.pos++
		case '}':
		default:
			return fmt.Errorf("expected '.' or '}' at position %d", p.pos)
		}
	}
}
