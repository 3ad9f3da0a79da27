package rdfio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aleksaelezovic/quadstore/pkg/rdf"
)

const (
	ContentTypeNQuads   = "application/n-quads"
	ContentTypeNTriples = "application/n-triples"
	ContentTypeJSONLD   = "application/ld+json"
	ContentTypeTurtle   = "text/turtle"
	ContentTypeTriG     = "application/trig"
)

// Parser reads quads in one serialization format
type Parser interface {
	// Parse parses RDF data from a reader and returns quads
	Parse(reader io.Reader) ([]*rdf.Quad, error)

	// ContentType returns the MIME type this parser handles
	ContentType() string
}

// Serializer writes quads in one serialization format
type Serializer interface {
	Serialize(w io.Writer, quads []*rdf.Quad) error
	ContentType() string
}

// NewParser creates a parser for a content type or short format name
func NewParser(contentType string) (Parser, error) {
	switch normalize(contentType) {
	case ContentTypeNQuads:
		return &NQuadsParser{}, nil
	case ContentTypeNTriples:
		return &NTriplesParser{}, nil
	case ContentTypeJSONLD:
		return &JSONLDParser{}, nil
	case ContentTypeTurtle:
		return &TurtleParser{}, nil
	case ContentTypeTriG:
		return &TriGParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// NewSerializer creates a serializer for a content type or short format name
func NewSerializer(contentType string) (Serializer, error) {
	switch normalize(contentType) {
	case ContentTypeNQuads, ContentTypeNTriples:
		return &NQuadsSerializer{}, nil
	case ContentTypeJSONLD:
		return &JSONLDSerializer{}, nil
	default:
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}
}

// ContentTypeOf guesses the content type of a file from its extension.
// Unknown extensions are read as N-Quads.
func ContentTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonld", ".json":
		return ContentTypeJSONLD
	case ".nt":
		return ContentTypeNTriples
	case ".ttl":
		return ContentTypeTurtle
	case ".trig":
		return ContentTypeTriG
	default:
		return ContentTypeNQuads
	}
}

// normalize lowercases, strips parameters like charset and maps short
// format names to their content type
func normalize(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = strings.TrimSpace(ct[:idx])
	}

	switch ct {
	case "nquads", "nq", "text/x-nquads":
		return ContentTypeNQuads
	case "ntriples", "nt", "text/plain":
		return ContentTypeNTriples
	case "jsonld", "json-ld", "application/json":
		return ContentTypeJSONLD
	case "turtle", "ttl", "application/x-turtle":
		return ContentTypeTurtle
	case "trig", "application/x-trig":
		return ContentTypeTriG
	default:
		return ct
	}
}

// NQuadsParser parses N-Quads format (quads with optional graph)
type NQuadsParser struct{}

func (p *NQuadsParser) ContentType() string {
	return ContentTypeNQuads
}

func (p *NQuadsParser) Parse(reader io.Reader) ([]*rdf.Quad, error) {
	return rdf.NewNQuadsReader(reader).ReadAll()
}

// NTriplesParser parses N-Triples format (triples only, default graph)
type NTriplesParser struct{}

func (p *NTriplesParser) ContentType() string {
	return ContentTypeNTriples
}

func (p *NTriplesParser) Parse(reader io.Reader) ([]*rdf.Quad, error) {
	quads, err := rdf.NewNQuadsReader(reader).ReadAll()
	if err != nil {
		return nil, err
	}
	for _, q := range quads {
		if q.Graph.Type() != rdf.TermTypeDefaultGraph {
			return nil, fmt.Errorf("graph term not allowed in N-Triples: %s", q)
		}
	}
	return quads, nil
}

// JSONLDParser parses JSON-LD documents through their RDF dataset
type JSONLDParser struct{}

func (p *JSONLDParser) ContentType() string {
	return ContentTypeJSONLD
}

func (p *JSONLDParser) Parse(reader io.Reader) ([]*rdf.Quad, error) {
	return rdf.DecodeJSONLD(reader)
}

// TurtleParser parses Turtle documents into the default graph
type TurtleParser struct {
	// BaseURI resolves relative IRIs until the document sets its own base
	BaseURI string
}

func (p *TurtleParser) ContentType() string {
	return ContentTypeTurtle
}

func (p *TurtleParser) Parse(reader io.Reader) ([]*rdf.Quad, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	parser := rdf.NewTurtleParser(string(data))
	parser.SetBaseURI(p.BaseURI)
	return parser.Parse()
}

// TriGParser parses TriG documents with their named graphs
type TriGParser struct {
	BaseURI string
}

func (p *TriGParser) ContentType() string {
	return ContentTypeTriG
}

func (p *TriGParser) Parse(reader io.Reader) ([]*rdf.Quad, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	parser := rdf.NewTriGParser(string(data))
	parser.SetBaseURI(p.BaseURI)
	return parser.Parse()
}

// NQuadsSerializer writes canonical N-Quads
type NQuadsSerializer struct{}

func (s *NQuadsSerializer) ContentType() string {
	return ContentTypeNQuads
}

func (s *NQuadsSerializer) Serialize(w io.Writer, quads []*rdf.Quad) error {
	_, err := io.WriteString(w, rdf.SerializeQuads(quads))
	return err
}

// JSONLDSerializer writes an expanded JSON-LD document
type JSONLDSerializer struct{}

func (s *JSONLDSerializer) ContentType() string {
	return ContentTypeJSONLD
}

func (s *JSONLDSerializer) Serialize(w io.Writer, quads []*rdf.Quad) error {
	out, err := rdf.EncodeJSONLD(quads)
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}
