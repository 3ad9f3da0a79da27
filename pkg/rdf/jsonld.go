package rdf

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	ld "github.com/piprate/json-gold/ld"
)

const nquadsFormat = "application/n-quads"

// EncodeJSONLD converts quads to an expanded JSON-LD document
func EncodeJSONLD(quads []*Quad) ([]byte, error) {
	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Format = nquadsFormat

	doc, err := proc.FromRDF(SerializeQuads(quads), opts)
	if err != nil {
		return nil, fmt.Errorf("jsonld: failed to convert quads: %w", err)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("jsonld: failed to marshal document: %w", err)
	}
	return out, nil
}

// DecodeJSONLD reads a JSON-LD document and returns its quads. Remote
// contexts are fetched with the default document loader.
func DecodeJSONLD(r io.Reader) ([]*Quad, error) {
	var doc any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("jsonld: invalid JSON: %w", err)
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions("")
	opts.Format = nquadsFormat

	out, err := proc.ToRDF(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("jsonld: failed to convert document: %w", err)
	}

	nquads, ok := out.(string)
	if !ok {
		return nil, fmt.Errorf("jsonld: unexpected ToRDF result %T", out)
	}
	return NewNQuadsReader(strings.NewReader(nquads)).ReadAll()
}
