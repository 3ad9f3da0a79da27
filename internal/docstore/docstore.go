// Package docstore implements a small document store on top of the
// key-value Storage interface: named collections of msgpack records with a
// declared unique key, optional autoincrement ids, exact-match lookups on
// indexed fields and inclusive ordered range scans over fixed-width fields.
//
// Every collection operation runs in a single storage transaction.
// Mutating operations are additionally serialized per sequence (collections
// sharing a sequence share a lock), which makes compound operations such as
// FindOrInsert atomic for a single process.
package docstore

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aleksaelezovic/quadstore/internal/encoding"
	"github.com/aleksaelezovic/quadstore/pkg/store"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrHashCollision     = errors.New("unique key hash collision")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotIndexed        = errors.New("field is not indexed")
	ErrNotSequenced      = errors.New("autoincrement record does not implement Sequenced")
)

// IDField is the reserved field name matching a record's row id.
const IDField = "id"

// Spec declares a collection.
type Spec struct {
	Name string

	// UniqueKey names the field whose value must be unique within the
	// collection. Empty means no unique constraint.
	UniqueKey string

	// AutoIncrement hands the row id to the record (via Sequenced) on insert.
	AutoIncrement bool

	// Indexes lists additional fields with secondary indexes. Range scans
	// require the field to be indexed (or be the unique key).
	Indexes []string

	// Sequence names the row id counter. Collections naming the same
	// sequence draw ids from one counter. Empty means a private sequence.
	Sequence string
}

func (s Spec) sequence() string {
	if s.Sequence == "" {
		return s.Name
	}
	return s.Sequence
}

func (s Spec) indexed(field string) bool {
	for _, f := range s.Indexes {
		if f == field {
			return true
		}
	}
	return false
}

// Config configures a DB.
type Config struct {
	// Name namespaces every collection key, so several stores can share
	// one Storage.
	Name   string
	Specs  []Spec
	Logger logrus.FieldLogger
}

// DB is a set of collections provisioned over one Storage.
type DB struct {
	storage store.Storage
	name    string
	specs   map[string]Spec
	locks   map[string]*sync.Mutex
	log     logrus.FieldLogger
}

// Open provisions the collections described by cfg.Specs. Collections are
// created lazily by the first write, so opening an existing store is cheap.
func Open(storage store.Storage, cfg Config) (*DB, error) {
	if cfg.Name == "" || strings.ContainsRune(cfg.Name, 0) {
		return nil, fmt.Errorf("invalid store name %q", cfg.Name)
	}

	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	db := &DB{
		storage: storage,
		name:    cfg.Name,
		specs:   make(map[string]Spec, len(cfg.Specs)),
		locks:   make(map[string]*sync.Mutex),
		log:     logger.WithField("store", cfg.Name),
	}

	for _, spec := range cfg.Specs {
		if spec.Name == "" || strings.ContainsRune(spec.Name, 0) {
			return nil, fmt.Errorf("invalid collection name %q", spec.Name)
		}
		if _, ok := db.specs[spec.Name]; ok {
			return nil, fmt.Errorf("collection %q declared twice", spec.Name)
		}
		db.specs[spec.Name] = spec
		if _, ok := db.locks[spec.sequence()]; !ok {
			db.locks[spec.sequence()] = &sync.Mutex{}
		}
	}

	return db, nil
}

// Name returns the store name
func (db *DB) Name() string {
	return db.name
}

// Storage returns the underlying key-value storage
func (db *DB) Storage() store.Storage {
	return db.storage
}

// ResetSequence sets a sequence back to zero, so the next allocated row id
// is 1. Collections with a private sequence reset it on Clear; shared
// sequences must be reset explicitly once every sharing collection is empty.
func (db *DB) ResetSequence(name string) error {
	mu, ok := db.locks[name]
	if !ok {
		return fmt.Errorf("%w: sequence %q", ErrUnknownCollection, name)
	}
	mu.Lock()
	defer mu.Unlock()

	txn, err := db.storage.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	if err := txn.Delete(store.TableSequences, db.sequenceKey(name)); err != nil {
		return fmt.Errorf("failed to reset sequence %q: %w", name, err)
	}
	return txn.Commit()
}

// nextID allocates the next value of a sequence inside txn
func (db *DB) nextID(txn store.Transaction, name string) (int64, error) {
	key := db.sequenceKey(name)

	var last int64
	raw, err := txn.Get(store.TableSequences, key)
	switch {
	case err == nil:
		if last, err = encoding.DecodeInt(raw); err != nil {
			return 0, fmt.Errorf("corrupt sequence %q: %w", name, err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return 0, err
	}

	next := last + 1
	encoded := encoding.EncodeInt(next)
	if err := txn.Set(store.TableSequences, key, encoded[:]); err != nil {
		return 0, err
	}
	return next, nil
}

func (db *DB) sequenceKey(name string) []byte {
	return []byte(db.name + "\x00" + name)
}
