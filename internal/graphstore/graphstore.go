// Package graphstore is the term-level quad store: it translates RDF quads
// to OID quads through the lexicon and keeps them in the quad index.
//
// The lexicon is always opened with a shared OID space, so an OID taken
// from the index decodes to exactly one term.
package graphstore

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aleksaelezovic/quadstore/internal/docstore"
	"github.com/aleksaelezovic/quadstore/internal/lexicon"
	"github.com/aleksaelezovic/quadstore/internal/metrics"
	"github.com/aleksaelezovic/quadstore/internal/quadindex"
	"github.com/aleksaelezovic/quadstore/pkg/rdf"
	"github.com/aleksaelezovic/quadstore/pkg/store"
	"github.com/sirupsen/logrus"
)

// ErrDanglingTerm is returned when an indexed OID has no lexicon entry
var ErrDanglingTerm = errors.New("dangling term reference")

// Config configures a Store
type Config struct {
	// Name prefixes every database the store opens
	Name string

	// DefaultGraphURI is the URI standing for the default graph
	DefaultGraphURI string

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Stats summarizes the store contents
type Stats struct {
	Quads  int
	Graphs int
}

// Store manages RDF quads on top of a lexicon and a quad index
type Store struct {
	storage store.Storage
	lexicon *lexicon.Lexicon
	index   *quadindex.Index
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// serializes writers so term counters follow the index contents
	mu sync.Mutex
}

// Open creates a store on storage. Closing the store closes storage.
func Open(storage store.Storage, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	lexCfg := lexicon.Config{
		Name:           cfg.Name,
		SharedOIDSpace: true,
		Logger:         logger,
		Metrics:        cfg.Metrics,
	}
	if cfg.DefaultGraphURI != "" {
		lexCfg.DefaultGraph = &lexicon.DefaultGraph{OID: 0, URI: cfg.DefaultGraphURI}
	}
	lex, err := lexicon.New(storage, lexCfg)
	if err != nil {
		return nil, err
	}

	index, err := quadindex.New(storage, quadindex.Config{
		Name:    cfg.Name,
		Logger:  logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Store{
		storage: storage,
		lexicon: lex,
		index:   index,
		log:     logger.WithField("component", "graphstore"),
		metrics: cfg.Metrics,
	}, nil
}

// Close closes the underlying storage
func (s *Store) Close() error {
	return s.storage.Close()
}

// Insert stores quads and returns how many were new. Blank node labels are
// scoped to the call: every occurrence of a label maps to one fresh blank
// node.
func (s *Store) Insert(quads []*rdf.Quad) (int, error) {
	defer s.metrics.ObserveSince("insert", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	blanks := make(map[string]int64)
	inserted := 0
	for i, quad := range quads {
		if err := validate(quad); err != nil {
			return inserted, fmt.Errorf("invalid quad %d: %w", i, err)
		}
		ok, err := s.insert(quad, blanks)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert %s: %w", quad, err)
		}
		if ok {
			inserted++
		}
	}

	s.log.WithFields(logrus.Fields{"quads": len(quads), "inserted": inserted}).Debug("insert")
	return inserted, nil
}

// InsertQuad stores a single quad
func (s *Store) InsertQuad(quad *rdf.Quad) (bool, error) {
	n, err := s.Insert([]*rdf.Quad{quad})
	return n == 1, err
}

func (s *Store) insert(quad *rdf.Quad, blanks map[string]int64) (bool, error) {
	terms := [4]rdf.Term{quad.Subject, quad.Predicate, quad.Object, quad.Graph}
	var (
		refs  [4]lexicon.TermRef
		fresh []string // blank labels first allocated for this quad
	)
	fail := func(err error) (bool, error) {
		s.releaseAll(refs[:])
		s.dropBlanks(fresh, blanks)
		return false, err
	}

	for i, term := range terms {
		if b, ok := term.(*rdf.BlankNode); ok {
			if _, seen := blanks[b.ID]; !seen {
				fresh = append(fresh, b.ID)
			}
		}
		ref, err := s.register(term, blanks)
		if err != nil {
			return fail(err)
		}
		refs[i] = ref
	}

	if graph, ok := quad.Graph.(*rdf.NamedNode); ok {
		err := s.lexicon.RegisterGraph(refs[3].OID, graph.IRI)
		if err != nil && !errors.Is(err, docstore.ErrDuplicateKey) {
			return fail(err)
		}
	}

	err := s.index.Index(quadOf(refs))
	if errors.Is(err, docstore.ErrDuplicateKey) {
		s.log.WithField("quad", quad.String()).Debug("duplicate quad ignored")
		return false, s.releaseAll(refs[:])
	}
	if err != nil {
		return fail(err)
	}
	return true, nil
}

// register returns the reference of term, registering one more use of it
func (s *Store) register(term rdf.Term, blanks map[string]int64) (lexicon.TermRef, error) {
	switch t := term.(type) {
	case *rdf.DefaultGraph:
		return lexicon.URI(s.lexicon.DefaultGraph().OID), nil
	case *rdf.NamedNode:
		oid, err := s.lexicon.RegisterURI(t.IRI)
		return lexicon.URI(oid), err
	case *rdf.Literal:
		oid, err := s.lexicon.RegisterLiteral(rdf.SerializeTerm(t))
		return lexicon.Literal(oid), err
	case *rdf.BlankNode:
		if oid, ok := blanks[t.ID]; ok {
			return lexicon.Blank(oid), nil
		}
		oid, err := s.lexicon.RegisterBlank()
		if err != nil {
			return lexicon.TermRef{}, err
		}
		blanks[t.ID] = oid
		return lexicon.Blank(oid), nil
	default:
		return lexicon.TermRef{}, fmt.Errorf("unsupported term %v", term)
	}
}

// releaseAll drops one use of every URI and literal in refs. Blank nodes
// are not counted; they are collected once no quad mentions them.
func (s *Store) releaseAll(refs []lexicon.TermRef) error {
	for _, ref := range refs {
		if ref.Kind == lexicon.KindBlank || ref.Kind == 0 {
			continue
		}
		if _, err := s.lexicon.Release(ref); err != nil {
			return err
		}
	}
	return nil
}

// dropBlanks frees the blank nodes allocated for a quad that could not be
// stored and forgets their labels
func (s *Store) dropBlanks(labels []string, blanks map[string]int64) {
	for _, label := range labels {
		oid, ok := blanks[label]
		if !ok {
			continue
		}
		delete(blanks, label)
		if _, err := s.lexicon.Release(lexicon.Blank(oid)); err != nil {
			s.log.WithError(err).WithField("oid", oid).Debug("failed to free blank node")
		}
	}
}

// Delete removes quad and releases its terms. Returns false when the quad
// was not stored.
func (s *Store) Delete(quad *rdf.Quad) (bool, error) {
	defer s.metrics.ObserveSince("delete", time.Now())

	if err := validate(quad); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	refs, found, err := s.resolveQuad(quad)
	if err != nil || !found {
		return false, err
	}
	q := quadOf(refs)

	stored, err := s.index.Search(q)
	if err != nil || !stored {
		return false, err
	}
	if err := s.index.Delete(q); err != nil {
		return false, err
	}

	if err := s.releaseAll(refs[:]); err != nil {
		return true, err
	}
	if _, ok := quad.Graph.(*rdf.NamedNode); ok {
		if err := s.dropEmptyGraph(refs[3].OID); err != nil {
			return true, err
		}
	}

	seen := make(map[int64]bool)
	for _, ref := range refs {
		if ref.Kind != lexicon.KindBlank || seen[ref.OID] {
			continue
		}
		seen[ref.OID] = true
		if err := s.collectBlank(ref.OID); err != nil {
			return true, err
		}
	}

	s.log.WithField("quad", quad.String()).Debug("quad deleted")
	return true, nil
}

// dropEmptyGraph unregisters a named graph no stored quad belongs to. The
// URI stays while other quads mention it.
func (s *Store) dropEmptyGraph(oid int64) error {
	quads, err := s.index.Range(quadindex.Pattern{Graph: quadindex.Bind(oid)})
	if err != nil || len(quads) > 0 {
		return err
	}
	_, err = s.lexicon.UnregisterGraph(oid)
	return err
}

// collectBlank deletes a blank node no stored quad mentions any more
func (s *Store) collectBlank(oid int64) error {
	for _, pattern := range []quadindex.Pattern{
		{Subject: quadindex.Bind(oid)},
		{Object: quadindex.Bind(oid)},
		{Graph: quadindex.Bind(oid)},
	} {
		quads, err := s.index.Range(pattern)
		if err != nil {
			return err
		}
		if len(quads) > 0 {
			return nil
		}
	}
	_, err := s.lexicon.Release(lexicon.Blank(oid))
	return err
}

// Contains reports whether quad is stored
func (s *Store) Contains(quad *rdf.Quad) (bool, error) {
	if err := validate(quad); err != nil {
		return false, err
	}
	refs, found, err := s.resolveQuad(quad)
	if err != nil || !found {
		return false, err
	}
	return s.index.Search(quadOf(refs))
}

// Match returns the stored quads matching the given terms. A nil term
// matches anything.
func (s *Store) Match(subject, predicate, object, graph rdf.Term) ([]*rdf.Quad, error) {
	defer s.metrics.ObserveSince("match", time.Now())

	var pattern quadindex.Pattern
	bindings := []*quadindex.Binding{&pattern.Subject, &pattern.Predicate, &pattern.Object, &pattern.Graph}
	for i, term := range []rdf.Term{subject, predicate, object, graph} {
		if term == nil {
			continue
		}
		ref, err := s.resolve(term)
		if err != nil {
			return nil, err
		}
		if ref.OID == lexicon.NotFound {
			return nil, nil
		}
		*bindings[i] = quadindex.Bind(ref.OID)
	}

	quads, err := s.index.Range(pattern)
	if err != nil {
		return nil, err
	}

	terms := make(map[int64]rdf.Term)
	result := make([]*rdf.Quad, 0, len(quads))
	for _, q := range quads {
		decoded, err := s.decode(q, terms)
		if err != nil {
			return nil, err
		}
		result = append(result, decoded)
	}
	return result, nil
}

func (s *Store) decode(q quadindex.Quad, cache map[int64]rdf.Term) (*rdf.Quad, error) {
	oids := [4]int64{q.Subject, q.Predicate, q.Object, q.Graph}
	var terms [4]rdf.Term
	for i, oid := range oids {
		if term, ok := cache[oid]; ok {
			terms[i] = term
			continue
		}
		term, err := s.lexicon.Retrieve(oid)
		if err != nil {
			return nil, err
		}
		if term == nil {
			return nil, fmt.Errorf("%w: %d", ErrDanglingTerm, oid)
		}
		cache[oid] = term
		terms[i] = term
	}
	return rdf.NewQuad(terms[0], terms[1], terms[2], terms[3]), nil
}

// resolve returns the reference of term without registering it. The OID is
// lexicon.NotFound for unknown terms.
func (s *Store) resolve(term rdf.Term) (lexicon.TermRef, error) {
	switch t := term.(type) {
	case *rdf.DefaultGraph:
		return lexicon.URI(s.lexicon.DefaultGraph().OID), nil
	case *rdf.NamedNode:
		oid, err := s.lexicon.ResolveURI(t.IRI)
		return lexicon.URI(oid), err
	case *rdf.Literal:
		oid, err := s.lexicon.ResolveLiteral(rdf.SerializeTerm(t))
		return lexicon.Literal(oid), err
	case *rdf.BlankNode:
		oid, err := s.lexicon.ResolveBlank(t.ID)
		return lexicon.Blank(oid), err
	default:
		return lexicon.TermRef{}, fmt.Errorf("unsupported term %v", term)
	}
}

func (s *Store) resolveQuad(quad *rdf.Quad) ([4]lexicon.TermRef, bool, error) {
	var refs [4]lexicon.TermRef
	for i, term := range []rdf.Term{quad.Subject, quad.Predicate, quad.Object, quad.Graph} {
		ref, err := s.resolve(term)
		if err != nil {
			return refs, false, err
		}
		if ref.OID == lexicon.NotFound {
			return refs, false, nil
		}
		refs[i] = ref
	}
	return refs, true, nil
}

// Cost returns how many times term was registered beyond the first, or
// lexicon.NotFound for an unknown term
func (s *Store) Cost(term rdf.Term) (int64, error) {
	switch t := term.(type) {
	case *rdf.DefaultGraph:
		return 0, nil
	case *rdf.NamedNode:
		return s.lexicon.ResolveURICost(t.IRI)
	case *rdf.Literal:
		return s.lexicon.ResolveLiteralCost(rdf.SerializeTerm(t))
	case *rdf.BlankNode:
		oid, err := s.lexicon.ResolveBlank(t.ID)
		if err != nil || oid == lexicon.NotFound {
			return lexicon.NotFound, err
		}
		return s.lexicon.ResolveBlankCost(t.ID), nil
	default:
		return lexicon.NotFound, fmt.Errorf("unsupported term %v", term)
	}
}

// Graphs returns the named graphs in registration order
func (s *Store) Graphs() ([]*rdf.NamedNode, error) {
	uris, err := s.lexicon.RegisteredGraphURIs()
	if err != nil {
		return nil, err
	}
	graphs := make([]*rdf.NamedNode, len(uris))
	for i, uri := range uris {
		graphs[i] = rdf.NewNamedNode(uri)
	}
	return graphs, nil
}

// Count returns the number of stored quads
func (s *Store) Count() (int, error) {
	return s.index.Count()
}

// Stats returns the quad and named graph counts
func (s *Store) Stats() (Stats, error) {
	quads, err := s.index.Count()
	if err != nil {
		return Stats{}, err
	}
	graphs, err := s.lexicon.RegisteredGraphs()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Quads: quads, Graphs: len(graphs)}, nil
}

// Clear removes every quad, term and graph registration
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Clear(); err != nil {
		return err
	}
	if err := s.lexicon.Clear(); err != nil {
		return err
	}
	if err := s.lexicon.ClearGraphs(); err != nil {
		return err
	}
	s.log.Info("store cleared")
	return nil
}

func quadOf(refs [4]lexicon.TermRef) quadindex.Quad {
	return quadindex.Quad{
		Subject:   refs[0].OID,
		Predicate: refs[1].OID,
		Object:    refs[2].OID,
		Graph:     refs[3].OID,
	}
}

func validate(quad *rdf.Quad) error {
	if quad == nil || quad.Subject == nil || quad.Predicate == nil || quad.Object == nil || quad.Graph == nil {
		return fmt.Errorf("incomplete quad")
	}
	if quad.Predicate.Type() != rdf.TermTypeNamedNode {
		return fmt.Errorf("predicate must be an IRI")
	}
	for _, term := range []rdf.Term{quad.Subject, quad.Predicate, quad.Object, quad.Graph} {
		if !validUTF8(term) {
			return fmt.Errorf("%s term is not valid UTF-8", term.Type())
		}
	}
	return nil
}

func validUTF8(term rdf.Term) bool {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return utf8.ValidString(t.IRI)
	case *rdf.BlankNode:
		return utf8.ValidString(t.ID)
	case *rdf.Literal:
		return utf8.ValidString(t.Value) && utf8.ValidString(t.Language) &&
			(t.Datatype == nil || utf8.ValidString(t.Datatype.IRI))
	}
	return true
}
