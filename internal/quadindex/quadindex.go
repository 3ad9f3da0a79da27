// Package quadindex stores OID quads under six composite orderings and
// answers bound-pattern range queries by picking the ordering whose leading
// components are the bound ones.
package quadindex

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aleksaelezovic/quadstore/internal/docstore"
	"github.com/aleksaelezovic/quadstore/internal/encoding"
	"github.com/aleksaelezovic/quadstore/internal/metrics"
	"github.com/aleksaelezovic/quadstore/pkg/store"
	"github.com/sirupsen/logrus"
)

const DefaultName = "quadstore"

// Config configures an Index
type Config struct {
	// Name of the database; quads are stored under <Name>_db
	Name string

	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// record is the persisted quad. Every permutation key is attached so the
// document store can maintain one ordered index per permutation.
type record struct {
	Subject   int64  `msgpack:"s"`
	Predicate int64  `msgpack:"p"`
	Object    int64  `msgpack:"o"`
	Graph     int64  `msgpack:"g"`
	SPOG      []byte `msgpack:"spog"`
	GP        []byte `msgpack:"gp"`
	OGS       []byte `msgpack:"ogs"`
	POG       []byte `msgpack:"pog"`
	GSP       []byte `msgpack:"gsp"`
	OS        []byte `msgpack:"os"`
}

func newRecord(q Quad) *record {
	return &record{
		Subject:   q.Subject,
		Predicate: q.Predicate,
		Object:    q.Object,
		Graph:     q.Graph,
		SPOG:      SPOG.Key(q),
		GP:        GP.Key(q),
		OGS:       OGS.Key(q),
		POG:       POG.Key(q),
		GSP:       GSP.Key(q),
		OS:        OS.Key(q),
	}
}

func (r *record) quad() Quad {
	return Quad{Subject: r.Subject, Predicate: r.Predicate, Object: r.Object, Graph: r.Graph}
}

func (r *record) Fields() docstore.Fields {
	return docstore.Fields{
		SPOG.Name: docstore.Bytes(r.SPOG),
		GP.Name:   docstore.Bytes(r.GP),
		OGS.Name:  docstore.Bytes(r.OGS),
		POG.Name:  docstore.Bytes(r.POG),
		GSP.Name:  docstore.Bytes(r.GSP),
		OS.Name:   docstore.Bytes(r.OS),
	}
}

// Index is the quad index engine
type Index struct {
	quads   *docstore.Collection[record, *record]
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// New opens the quad collection on storage
func New(storage store.Storage, cfg Config) (*Index, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	logger = logger.WithField("component", "quadindex")

	var secondary []string
	for _, p := range Permutations[1:] {
		secondary = append(secondary, p.Name)
	}

	db, err := docstore.Open(storage, docstore.Config{
		Name:   cfg.Name + "_db",
		Specs:  []docstore.Spec{{Name: cfg.Name, UniqueKey: SPOG.Name, Indexes: secondary}},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open quad index: %w", err)
	}

	quads, err := docstore.Use[record](db, cfg.Name)
	if err != nil {
		return nil, err
	}

	return &Index{quads: quads, log: logger, metrics: cfg.Metrics}, nil
}

// Index stores q. Fails with docstore.ErrDuplicateKey when q is already
// stored.
func (x *Index) Index(q Quad) error {
	_, err := x.quads.Insert(newRecord(q))
	x.metrics.QuadOperation("index", err)
	if err != nil {
		return fmt.Errorf("failed to index quad %v: %w", q, err)
	}
	return nil
}

// Search reports whether q is stored
func (x *Index) Search(q Quad) (bool, error) {
	_, err := x.quads.FindOne(docstore.Match{SPOG.Name: docstore.Bytes(SPOG.Key(q))})
	if errors.Is(err, docstore.ErrNotFound) {
		x.metrics.QuadOperation("search", nil)
		return false, nil
	}
	x.metrics.QuadOperation("search", err)
	if err != nil {
		return false, fmt.Errorf("failed to search quad %v: %w", q, err)
	}
	return true, nil
}

// Delete removes q. Deleting a quad that is not stored is not an error.
func (x *Index) Delete(q Quad) error {
	_, err := x.quads.Remove(docstore.Match{SPOG.Name: docstore.Bytes(SPOG.Key(q))})
	x.metrics.QuadOperation("delete", err)
	if err != nil {
		return fmt.Errorf("failed to delete quad %v: %w", q, err)
	}
	return nil
}

// Range returns every stored quad matching pattern, ordered by the
// composite key of the selected permutation.
func (x *Index) Range(pattern Pattern) ([]Quad, error) {
	defer x.metrics.ObserveSince("range", time.Now())

	perm := SelectPermutation(pattern)
	lower, upper := Bounds(perm, pattern)

	x.log.WithFields(logrus.Fields{
		"permutation": perm.Name,
		"lower":       lower,
		"upper":       upper,
	}).Debug("range scan")

	records, err := x.quads.Range(perm.Name,
		docstore.Bytes(encoding.EncodeQuadKey(lower...)),
		docstore.Bytes(encoding.EncodeQuadKey(upper...)))
	x.metrics.QuadOperation("range", err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", perm.Name, err)
	}

	quads := make([]Quad, 0, len(records))
	for _, r := range records {
		if q := r.quad(); pattern.Matches(q) {
			quads = append(quads, q)
		}
	}
	x.metrics.RangeServed(perm.Name, len(quads))
	return quads, nil
}

// Count returns the number of stored quads
func (x *Index) Count() (int, error) {
	n, err := x.quads.Count()
	if err != nil {
		return 0, fmt.Errorf("failed to count quads: %w", err)
	}
	return n, nil
}

// Clear removes every stored quad
func (x *Index) Clear() error {
	err := x.quads.Clear()
	x.metrics.QuadOperation("clear", err)
	if err != nil {
		return fmt.Errorf("failed to clear quad index: %w", err)
	}
	return nil
}
