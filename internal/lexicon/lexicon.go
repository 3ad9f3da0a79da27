// Package lexicon implements the term dictionary: a per-kind mapping
// between RDF term values (URIs, canonical literals and blank node labels)
// and integer OIDs, with a usage counter per term.
//
// OID 0 always denotes the default graph and is never allocated. By default
// every kind draws OIDs from its own sequence, so the same number may name
// a URI, a literal and a blank node at once; Retrieve then resolves an OID
// by probing URIs, literals and blank nodes in that order. With
// SharedOIDSpace all kinds share one sequence and OIDs are globally unique.
package lexicon

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/quadstore/internal/docstore"
	"github.com/aleksaelezovic/quadstore/internal/metrics"
	"github.com/aleksaelezovic/quadstore/pkg/rdf"
	"github.com/aleksaelezovic/quadstore/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultName     = "quadstore"
	DefaultGraphURI = "urn:x-quadstore:default-graph"
)

// DefaultGraph is the immutable OID/URI pair standing for the default graph
type DefaultGraph struct {
	OID int64
	URI string
}

// Config configures a Lexicon
type Config struct {
	// Name of the database; collections are stored under <Name>_lexicon
	Name string

	// DefaultGraph defaults to OID 0 and DefaultGraphURI
	DefaultGraph *DefaultGraph

	// SharedOIDSpace allocates every kind from one sequence
	SharedOIDSpace bool

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Lexicon is the term dictionary
type Lexicon struct {
	db       *docstore.DB
	graphs   *docstore.Collection[graphRecord, *graphRecord]
	uris     *docstore.Collection[uriRecord, *uriRecord]
	literals *docstore.Collection[literalRecord, *literalRecord]
	blanks   *docstore.Collection[blankRecord, *blankRecord]

	defaultGraph DefaultGraph
	shared       bool
	log          logrus.FieldLogger
	metrics      *metrics.Metrics
}

// New opens the dictionary collections on storage
func New(storage store.Storage, cfg Config) (*Lexicon, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	defaultGraph := DefaultGraph{OID: 0, URI: DefaultGraphURI}
	if cfg.DefaultGraph != nil {
		defaultGraph = *cfg.DefaultGraph
	}

	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	logger = logger.WithField("component", "lexicon")

	db, err := docstore.Open(storage, docstore.Config{
		Name:   cfg.Name + "_lexicon",
		Specs:  collectionSpecs(cfg.SharedOIDSpace),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open lexicon: %w", err)
	}

	l := &Lexicon{
		db:           db,
		defaultGraph: defaultGraph,
		shared:       cfg.SharedOIDSpace,
		log:          logger,
		metrics:      cfg.Metrics,
	}
	if l.graphs, err = docstore.Use[graphRecord](db, graphsCollection); err != nil {
		return nil, err
	}
	if l.uris, err = docstore.Use[uriRecord](db, urisCollection); err != nil {
		return nil, err
	}
	if l.literals, err = docstore.Use[literalRecord](db, literalsCollection); err != nil {
		return nil, err
	}
	if l.blanks, err = docstore.Use[blankRecord](db, blanksCollection); err != nil {
		return nil, err
	}
	return l, nil
}

// DefaultGraph returns the default graph OID/URI pair
func (l *Lexicon) DefaultGraph() DefaultGraph {
	return l.defaultGraph
}

// RegisterGraph records oid as a named graph. Registering the default
// graph is a no-op; registering an oid twice fails with
// docstore.ErrDuplicateKey.
func (l *Lexicon) RegisterGraph(oid int64, uri string) error {
	if oid == l.defaultGraph.OID {
		return nil
	}
	if _, err := l.graphs.Insert(&graphRecord{OID: oid, URI: uri}); err != nil {
		return fmt.Errorf("failed to register graph %d: %w", oid, err)
	}
	l.log.WithFields(logrus.Fields{"oid": oid, "uri": uri}).Debug("graph registered")
	return nil
}

// UnregisterGraph drops the named graph registration of oid, keeping the
// URI itself. Returns whether a registration was dropped.
func (l *Lexicon) UnregisterGraph(oid int64) (bool, error) {
	n, err := l.graphs.Remove(docstore.Match{"oid": docstore.Int(oid)})
	if err != nil {
		return false, fmt.Errorf("failed to unregister graph %d: %w", oid, err)
	}
	if n > 0 {
		l.log.WithField("oid", oid).Debug("graph unregistered")
	}
	return n > 0, nil
}

// RegisteredGraphs returns the registered graph OIDs in registration order
func (l *Lexicon) RegisteredGraphs() ([]int64, error) {
	records, err := l.graphs.Find(docstore.Match{})
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	oids := make([]int64, len(records))
	for i, r := range records {
		oids[i] = r.OID
	}
	return oids, nil
}

// RegisteredGraphURIs returns the registered graph URIs in registration order
func (l *Lexicon) RegisteredGraphURIs() ([]string, error) {
	records, err := l.graphs.Find(docstore.Match{})
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	uris := make([]string, len(records))
	for i, r := range records {
		uris[i] = r.URI
	}
	return uris, nil
}

// RegisterURI returns the OID of uri, allocating one on first registration.
// Registering a known URI increments its counter.
func (l *Lexicon) RegisterURI(uri string) (int64, error) {
	if uri == l.defaultGraph.URI {
		return l.defaultGraph.OID, nil
	}
	defer l.metrics.ObserveSince("register_uri", time.Now())

	oid, err := findOrCreate(l, KindURI, l.uris, docstore.Match{"uri": docstore.String(uri)},
		func() *uriRecord { return &uriRecord{URI: uri} })
	if err != nil {
		return NotFound, fmt.Errorf("failed to register uri %q: %w", uri, err)
	}
	return oid, nil
}

// ResolveURI returns the OID of uri, or NotFound
func (l *Lexicon) ResolveURI(uri string) (int64, error) {
	if uri == l.defaultGraph.URI {
		return l.defaultGraph.OID, nil
	}
	r, err := lookup(l.uris, docstore.Match{"uri": docstore.String(uri)})
	if err != nil || r == nil {
		return NotFound, wrap("resolve uri", err)
	}
	return r.ID, nil
}

// ResolveURICost returns the usage counter of uri, or NotFound. The default
// graph costs nothing.
func (l *Lexicon) ResolveURICost(uri string) (int64, error) {
	if uri == l.defaultGraph.URI {
		return 0, nil
	}
	r, err := lookup(l.uris, docstore.Match{"uri": docstore.String(uri)})
	if err != nil || r == nil {
		return NotFound, wrap("resolve uri cost", err)
	}
	return r.Counter, nil
}

// RegisterLiteral returns the OID of a literal in canonical N-Quads form,
// allocating one on first registration.
func (l *Lexicon) RegisterLiteral(literal string) (int64, error) {
	defer l.metrics.ObserveSince("register_literal", time.Now())

	oid, err := findOrCreate(l, KindLiteral, l.literals, docstore.Match{"literal": docstore.String(literal)},
		func() *literalRecord { return &literalRecord{Literal: literal} })
	if err != nil {
		return NotFound, fmt.Errorf("failed to register literal: %w", err)
	}
	return oid, nil
}

// ResolveLiteral returns the OID of literal, or NotFound
func (l *Lexicon) ResolveLiteral(literal string) (int64, error) {
	r, err := lookup(l.literals, docstore.Match{"literal": docstore.String(literal)})
	if err != nil || r == nil {
		return NotFound, wrap("resolve literal", err)
	}
	return r.ID, nil
}

// ResolveLiteralCost returns the usage counter of literal, or NotFound
func (l *Lexicon) ResolveLiteralCost(literal string) (int64, error) {
	r, err := lookup(l.literals, docstore.Match{"literal": docstore.String(literal)})
	if err != nil || r == nil {
		return NotFound, wrap("resolve literal cost", err)
	}
	return r.Counter, nil
}

// RegisterBlank allocates a fresh blank node on every call
func (l *Lexicon) RegisterBlank() (int64, error) {
	defer l.metrics.ObserveSince("register_blank", time.Now())

	r := &blankRecord{Label: uuid.NewString()}
	oid, err := l.blanks.Insert(r)
	if err != nil {
		return NotFound, fmt.Errorf("failed to register blank node: %w", err)
	}
	l.metrics.TermRegistered(KindBlank.String(), true)
	l.log.WithFields(logrus.Fields{"kind": KindBlank, "oid": oid}).Debug("term allocated")
	return oid, nil
}

// ResolveBlank returns the OID of a blank node label produced by Retrieve
// (b<oid>), or NotFound. Only the exact label Retrieve produces resolves.
func (l *Lexicon) ResolveBlank(label string) (int64, error) {
	oid, err := strconv.ParseInt(strings.TrimPrefix(label, "b"), 10, 64)
	if err != nil || label != "b"+strconv.FormatInt(oid, 10) {
		return NotFound, nil
	}
	r, err := lookup(l.blanks, docstore.Match{docstore.IDField: docstore.Int(oid)})
	if err != nil || r == nil {
		return NotFound, wrap("resolve blank", err)
	}
	return r.ID, nil
}

// ResolveBlankCost returns the cost of a blank node, which is always zero
func (l *Lexicon) ResolveBlankCost(string) int64 {
	return 0
}

// Retrieve returns the term stored under oid, or nil when no kind holds it.
// URIs are probed first, then literals, then blank nodes.
func (l *Lexicon) Retrieve(oid int64) (rdf.Term, error) {
	if oid == l.defaultGraph.OID {
		return rdf.NewDefaultGraph(), nil
	}
	for _, kind := range []Kind{KindURI, KindLiteral, KindBlank} {
		term, err := l.RetrieveRef(TermRef{Kind: kind, OID: oid})
		if err != nil || term != nil {
			return term, err
		}
	}
	return nil, nil
}

// RetrieveRef returns the term a kind-tagged reference points to, or nil
func (l *Lexicon) RetrieveRef(ref TermRef) (rdf.Term, error) {
	byID := docstore.Match{docstore.IDField: docstore.Int(ref.OID)}

	switch ref.Kind {
	case KindURI:
		if ref.OID == l.defaultGraph.OID {
			return rdf.NewDefaultGraph(), nil
		}
		r, err := lookup(l.uris, byID)
		if err != nil || r == nil {
			return nil, wrap("retrieve uri", err)
		}
		return rdf.NewNamedNode(r.URI), nil
	case KindLiteral:
		r, err := lookup(l.literals, byID)
		if err != nil || r == nil {
			return nil, wrap("retrieve literal", err)
		}
		term, err := rdf.ParseTerm(r.Literal)
		if err != nil {
			return nil, fmt.Errorf("corrupt literal %d: %w", ref.OID, err)
		}
		return term, nil
	case KindBlank:
		r, err := lookup(l.blanks, byID)
		if err != nil || r == nil {
			return nil, wrap("retrieve blank", err)
		}
		return rdf.NewBlankNode("b" + strconv.FormatInt(r.ID, 10)), nil
	default:
		return nil, fmt.Errorf("unknown term kind %d", ref.Kind)
	}
}

// Unregister deletes the term records of every position of q without
// checking whether other quads still reference them. Deleting a URI also
// drops its graph registration. The default graph and absent positions are
// skipped.
func (l *Lexicon) Unregister(q QuadTerms) error {
	for _, ref := range q.refs() {
		if ref.Kind == 0 {
			continue
		}
		if err := l.remove(ref); err != nil {
			return fmt.Errorf("failed to unregister %s %d: %w", ref.Kind, ref.OID, err)
		}
	}
	return nil
}

// Release drops one reference to a term: a term registered n times is
// deleted by the n-th Release. Returns whether the term was deleted.
func (l *Lexicon) Release(ref TermRef) (bool, error) {
	byID := docstore.Match{docstore.IDField: docstore.Int(ref.OID)}

	var (
		removed bool
		err     error
	)
	switch ref.Kind {
	case KindURI:
		if ref.OID == l.defaultGraph.OID {
			return false, nil
		}
		removed, err = release(l.uris, byID)
		if err == nil && removed {
			_, err = l.graphs.Remove(docstore.Match{"oid": docstore.Int(ref.OID)})
		}
	case KindLiteral:
		removed, err = release(l.literals, byID)
	case KindBlank:
		removed, err = release(l.blanks, byID)
	default:
		return false, fmt.Errorf("unknown term kind %d", ref.Kind)
	}
	if err != nil {
		return false, fmt.Errorf("failed to release %s %d: %w", ref.Kind, ref.OID, err)
	}

	if removed {
		l.metrics.TermRemoved(ref.Kind.String())
		l.log.WithFields(logrus.Fields{"kind": ref.Kind, "oid": ref.OID}).Debug("term released")
	}
	return removed, nil
}

// Clear empties the URI, literal and blank node collections and restarts
// OID allocation at 1. Graph registrations are kept.
func (l *Lexicon) Clear() error {
	if err := l.uris.Clear(); err != nil {
		return err
	}
	if err := l.literals.Clear(); err != nil {
		return err
	}
	if err := l.blanks.Clear(); err != nil {
		return err
	}
	if l.shared {
		if err := l.db.ResetSequence(sharedSequence); err != nil {
			return fmt.Errorf("failed to reset oid sequence: %w", err)
		}
	}
	l.log.Debug("lexicon cleared")
	return nil
}

// ClearGraphs drops every graph registration
func (l *Lexicon) ClearGraphs() error {
	if err := l.graphs.Clear(); err != nil {
		return fmt.Errorf("failed to clear graphs: %w", err)
	}
	return nil
}

func (l *Lexicon) remove(ref TermRef) error {
	byID := docstore.Match{docstore.IDField: docstore.Int(ref.OID)}

	var (
		n   int
		err error
	)
	switch ref.Kind {
	case KindURI:
		if ref.OID == l.defaultGraph.OID {
			return nil
		}
		if n, err = l.uris.Remove(byID); err != nil {
			return err
		}
		if _, err = l.graphs.Remove(docstore.Match{"oid": docstore.Int(ref.OID)}); err != nil {
			return err
		}
	case KindLiteral:
		n, err = l.literals.Remove(byID)
	case KindBlank:
		n, err = l.blanks.Remove(byID)
	default:
		return fmt.Errorf("unknown term kind %d", ref.Kind)
	}
	if err != nil {
		return err
	}
	if n > 0 {
		l.metrics.TermRemoved(ref.Kind.String())
	}
	return nil
}

// termRecord is satisfied by the pointer types of the counted records
type termRecord[T any] interface {
	docstore.Record[T]
	base() *counted
}

func (c *counted) base() *counted {
	return c
}

func findOrCreate[T any, PT termRecord[T]](l *Lexicon, kind Kind, coll *docstore.Collection[T, PT], m docstore.Match, create func() PT) (int64, error) {
	doc, created, err := coll.FindOrInsert(m, create, func(doc PT) bool {
		doc.base().Counter++
		return true
	})
	if err != nil {
		return NotFound, err
	}

	oid := doc.base().ID
	l.metrics.TermRegistered(kind.String(), created)
	if created {
		l.log.WithFields(logrus.Fields{"kind": kind, "oid": oid}).Debug("term allocated")
	}
	return oid, nil
}

// lookup returns the first record matching m, or nil
func lookup[T any, PT docstore.Record[T]](coll *docstore.Collection[T, PT], m docstore.Match) (PT, error) {
	doc, err := coll.FindOne(m)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

func release[T any, PT termRecord[T]](coll *docstore.Collection[T, PT], m docstore.Match) (bool, error) {
	var removed bool
	_, _, err := coll.FindAndModify(m, func(doc PT) bool {
		if doc.base().Counter == 0 {
			removed = true
			return true
		}
		doc.base().Counter--
		return false
	})
	return removed, err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
