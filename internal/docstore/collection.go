package docstore

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aleksaelezovic/quadstore/internal/encoding"
	"github.com/aleksaelezovic/quadstore/pkg/store"
)

// Document is implemented by every record stored in a collection. Fields
// returns the values of the unique key and the indexed fields; records are
// persisted as a whole with msgpack.
type Document interface {
	Fields() Fields
}

// Sequenced records receive their row id on insert when the collection is
// declared with AutoIncrement.
type Sequenced interface {
	SetID(id int64)
}

// Record constrains the pointer type of a record type T.
type Record[T any] interface {
	*T
	Document
}

type collection struct {
	db   *DB
	spec Spec
	mu   *sync.Mutex
}

// Collection gives typed access to one collection of a DB.
type Collection[T any, PT Record[T]] struct {
	collection
}

type entry[PT any] struct {
	id  int64
	doc PT
}

// Use returns the typed collection declared under name
func Use[T any, PT Record[T]](db *DB, name string) (*Collection[T, PT], error) {
	spec, ok := db.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	if spec.UniqueKey == IDField {
		return nil, fmt.Errorf("collection %q: %q is reserved for row ids", name, IDField)
	}
	if spec.AutoIncrement {
		if _, ok := any(PT(new(T))).(Sequenced); !ok {
			return nil, fmt.Errorf("collection %q: %w", name, ErrNotSequenced)
		}
	}

	return &Collection[T, PT]{collection{
		db:   db,
		spec: spec,
		mu:   db.locks[spec.sequence()],
	}}, nil
}

// Name returns the collection name
func (c *Collection[T, PT]) Name() string {
	return c.spec.Name
}

// Insert stores a new record and returns its row id. Fails with
// ErrDuplicateKey when another record holds the same unique key value.
func (c *Collection[T, PT]) Insert(doc PT) (int64, error) {
	var id int64
	err := c.update(func(txn store.Transaction) error {
		var err error
		id, err = c.insert(txn, doc)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update replaces every record matching m with doc. When nothing matches
// and upsert is set, doc is inserted instead. Returns the number of records
// written.
func (c *Collection[T, PT]) Update(m Match, doc PT, upsert bool) (int, error) {
	written := 0
	err := c.update(func(txn store.Transaction) error {
		matches, err := c.find(txn, m)
		if err != nil {
			return err
		}

		if len(matches) == 0 {
			if !upsert {
				return nil
			}
			if _, err := c.insert(txn, doc); err != nil {
				return err
			}
			written = 1
			return nil
		}

		for _, e := range matches {
			c.assignID(doc, e.id)
			if err := c.put(txn, e.id, doc, e.doc); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// FindOrInsert atomically looks up the first record matching m. When one
// exists, update (if not nil) may modify it and returns whether it should be
// written back. Otherwise create builds a record that is inserted. The
// boolean result reports whether a record was created.
func (c *Collection[T, PT]) FindOrInsert(m Match, create func() PT, update func(PT) bool) (PT, bool, error) {
	var (
		doc     PT
		created bool
	)
	err := c.update(func(txn store.Transaction) error {
		matches, err := c.find(txn, m)
		if err != nil {
			return err
		}

		if len(matches) > 0 {
			id := matches[0].id
			doc = matches[0].doc
			if update == nil || !update(doc) {
				return nil
			}
			prev, err := c.load(txn, id)
			if err != nil {
				return err
			}
			return c.put(txn, id, doc, prev)
		}

		doc = create()
		created = true
		_, err = c.insert(txn, doc)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return doc, created, nil
}

// FindAndModify atomically applies fn to the first record matching m. fn
// edits the record in place and returns true to remove it instead of
// writing it back. The boolean result reports whether a record matched.
func (c *Collection[T, PT]) FindAndModify(m Match, fn func(PT) (remove bool)) (PT, bool, error) {
	var (
		doc   PT
		found bool
	)
	err := c.update(func(txn store.Transaction) error {
		matches, err := c.find(txn, m)
		if err != nil || len(matches) == 0 {
			return err
		}

		id := matches[0].id
		doc, found = matches[0].doc, true
		if fn(doc) {
			prev, err := c.load(txn, id)
			if err != nil {
				return err
			}
			return c.remove(txn, id, prev)
		}

		prev, err := c.load(txn, id)
		if err != nil {
			return err
		}
		return c.put(txn, id, doc, prev)
	})
	if err != nil {
		return nil, false, err
	}
	return doc, found, nil
}

// FindOne returns the first record (in row id order) matching m, or
// ErrNotFound.
func (c *Collection[T, PT]) FindOne(m Match) (PT, error) {
	var doc PT
	err := c.view(func(txn store.Transaction) error {
		matches, err := c.find(txn, m)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return ErrNotFound
		}
		doc = matches[0].doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Find returns every record matching m in row id (insertion) order
func (c *Collection[T, PT]) Find(m Match) ([]PT, error) {
	var docs []PT
	err := c.view(func(txn store.Transaction) error {
		matches, err := c.find(txn, m)
		if err != nil {
			return err
		}
		docs = make([]PT, len(matches))
		for i, e := range matches {
			docs[i] = e.doc
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Remove deletes every record matching m and returns how many were removed
func (c *Collection[T, PT]) Remove(m Match) (int, error) {
	removed := 0
	err := c.update(func(txn store.Transaction) error {
		matches, err := c.find(txn, m)
		if err != nil {
			return err
		}
		for _, e := range matches {
			if err := c.remove(txn, e.id, e.doc); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Range returns the records whose value of field lies within the inclusive
// bounds [lower, upper], ordered by that value. The field must be indexed or
// be the unique key, and its values must be fixed width and at most 32
// bytes long for the value order to be meaningful.
func (c *Collection[T, PT]) Range(field string, lower, upper Value) ([]PT, error) {
	var (
		table  store.Table
		prefix []byte
	)
	switch {
	case field != "" && field == c.spec.UniqueKey:
		table, prefix = store.TableUnique, c.collectionPrefix()
	case c.spec.indexed(field):
		table, prefix = store.TableIndex, c.indexPrefix(field)
	default:
		return nil, fmt.Errorf("%w: %s.%s", ErrNotIndexed, c.spec.Name, field)
	}

	if len(lower) > maxRawValue || len(upper) > maxRawValue {
		return nil, fmt.Errorf("range bounds on %s.%s exceed %d bytes", c.spec.Name, field, maxRawValue)
	}
	if bytes.Compare(lower, upper) > 0 {
		return nil, nil
	}

	start := append(append([]byte{}, prefix...), valueKey(lower)...)
	end := prefixEnd(append(append([]byte{}, prefix...), valueKey(upper)...))

	var docs []PT
	err := c.view(func(txn store.Transaction) error {
		ids, err := c.scanIDs(txn, table, start, end)
		if err != nil {
			return err
		}

		for _, id := range ids {
			doc, err := c.load(txn, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v := doc.Fields()[field]
			if bytes.Compare(v, lower) < 0 || bytes.Compare(v, upper) > 0 {
				continue
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Count returns the number of records in the collection
func (c *Collection[T, PT]) Count() (int, error) {
	count := 0
	err := c.view(func(txn store.Transaction) error {
		prefix := c.collectionPrefix()
		it, err := txn.Scan(store.TableDocs, prefix, prefixEnd(prefix))
		if err != nil {
			return err
		}
		defer it.Close()

		for it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Clear empties the collection. A private sequence is reset as well, so the
// collection is immediately reusable with row ids starting at 1.
func (c *Collection[T, PT]) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := c.collectionPrefix()
	for _, table := range []store.Table{store.TableDocs, store.TableUnique, store.TableIndex} {
		if err := c.db.storage.DropPrefix(table, prefix); err != nil {
			return fmt.Errorf("failed to clear %s: %w", c.spec.Name, err)
		}
	}

	if c.spec.Sequence == "" {
		txn, err := c.db.storage.Begin(true)
		if err != nil {
			return err
		}
		defer txn.Rollback()

		if err := txn.Delete(store.TableSequences, c.db.sequenceKey(c.spec.sequence())); err != nil {
			return fmt.Errorf("failed to reset sequence of %s: %w", c.spec.Name, err)
		}
		if err := txn.Commit(); err != nil {
			return err
		}
	}

	c.db.log.WithField("collection", c.spec.Name).Debug("collection cleared")
	return nil
}

func (c *collection) update(fn func(txn store.Transaction) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	txn, err := c.db.storage.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

func (c *collection) view(fn func(txn store.Transaction) error) error {
	txn, err := c.db.storage.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	return fn(txn)
}

func (c *Collection[T, PT]) insert(txn store.Transaction, doc PT) (int64, error) {
	id, err := c.db.nextID(txn, c.spec.sequence())
	if err != nil {
		return 0, err
	}
	c.assignID(doc, id)
	if err := c.put(txn, id, doc, nil); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Collection[T, PT]) assignID(doc PT, id int64) {
	if !c.spec.AutoIncrement {
		return
	}
	if s, ok := any(doc).(Sequenced); ok {
		s.SetID(id)
	}
}

func (c *Collection[T, PT]) load(txn store.Transaction, id int64) (PT, error) {
	raw, err := txn.Get(store.TableDocs, c.docKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc := PT(new(T))
	if err := decodeRecord(raw, doc); err != nil {
		return nil, fmt.Errorf("%s row %d: %w", c.spec.Name, id, err)
	}
	c.assignID(doc, id)
	return doc, nil
}

// put writes doc under id, maintaining the unique key and the secondary
// indexes. old is the record previously stored under id, if any.
func (c *Collection[T, PT]) put(txn store.Transaction, id int64, doc, old PT) error {
	fields := doc.Fields()
	var oldFields Fields
	if old != nil {
		oldFields = old.Fields()
	}

	if uk := c.spec.UniqueKey; uk != "" {
		v, ok := fields[uk]
		if !ok {
			return fmt.Errorf("%s record misses unique key field %q", c.spec.Name, uk)
		}

		if old == nil || !bytes.Equal(oldFields[uk], v) {
			if err := c.claimUnique(txn, id, v); err != nil {
				return err
			}
			if old != nil {
				if err := txn.Delete(store.TableUnique, c.uniqueKey(oldFields[uk])); err != nil {
					return err
				}
			}
		}
	}

	for _, field := range c.spec.Indexes {
		v, ok := fields[field]
		if old != nil {
			if ov, had := oldFields[field]; had {
				if ok && bytes.Equal(ov, v) {
					continue
				}
				if err := txn.Delete(store.TableIndex, c.indexKey(field, ov, id)); err != nil {
					return err
				}
			}
		}
		if ok {
			if err := txn.Set(store.TableIndex, c.indexKey(field, v, id), []byte{}); err != nil {
				return err
			}
		}
	}

	raw, err := encodeRecord(doc)
	if err != nil {
		return err
	}
	return txn.Set(store.TableDocs, c.docKey(id), raw)
}

func (c *Collection[T, PT]) claimUnique(txn store.Transaction, id int64, v Value) error {
	key := c.uniqueKey(v)

	raw, err := txn.Get(store.TableUnique, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		holder, err := encoding.DecodeInt(raw)
		if err != nil {
			return fmt.Errorf("corrupt unique entry in %s: %w", c.spec.Name, err)
		}
		if holder != id {
			other, err := c.load(txn, holder)
			if err == nil && !bytes.Equal(other.Fields()[c.spec.UniqueKey], v) {
				return fmt.Errorf("%w: %s.%s", ErrHashCollision, c.spec.Name, c.spec.UniqueKey)
			}
			return fmt.Errorf("%w: %s.%s", ErrDuplicateKey, c.spec.Name, c.spec.UniqueKey)
		}
	}

	encoded := encoding.EncodeInt(id)
	return txn.Set(store.TableUnique, key, encoded[:])
}

func (c *Collection[T, PT]) remove(txn store.Transaction, id int64, doc PT) error {
	fields := doc.Fields()

	if uk := c.spec.UniqueKey; uk != "" {
		if v, ok := fields[uk]; ok {
			key := c.uniqueKey(v)
			raw, err := txn.Get(store.TableUnique, key)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if holder, derr := encoding.DecodeInt(raw); err == nil && derr == nil && holder == id {
				if err := txn.Delete(store.TableUnique, key); err != nil {
					return err
				}
			}
		}
	}

	for _, field := range c.spec.Indexes {
		if v, ok := fields[field]; ok {
			if err := txn.Delete(store.TableIndex, c.indexKey(field, v, id)); err != nil {
				return err
			}
		}
	}

	return txn.Delete(store.TableDocs, c.docKey(id))
}

// find resolves m to matching records, using the row id, the unique key or
// a secondary index when m names one and a full scan otherwise.
func (c *Collection[T, PT]) find(txn store.Transaction, m Match) ([]entry[PT], error) {
	ids, err := c.candidates(txn, m)
	if err != nil {
		return nil, err
	}

	var matches []entry[PT]
	for _, id := range ids {
		doc, err := c.load(txn, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if matchesRecord(doc.Fields(), id, m) {
			matches = append(matches, entry[PT]{id: id, doc: doc})
		}
	}

	slices.SortFunc(matches, func(a, b entry[PT]) int {
		return cmp.Compare(a.id, b.id)
	})
	return matches, nil
}

func (c *Collection[T, PT]) candidates(txn store.Transaction, m Match) ([]int64, error) {
	if v, ok := m[IDField]; ok {
		id, err := encoding.DecodeInt(v)
		if err != nil {
			return nil, nil
		}
		return []int64{id}, nil
	}

	if uk := c.spec.UniqueKey; uk != "" {
		if v, ok := m[uk]; ok {
			raw, err := txn.Get(store.TableUnique, c.uniqueKey(v))
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			id, err := encoding.DecodeInt(raw)
			if err != nil {
				return nil, fmt.Errorf("corrupt unique entry in %s: %w", c.spec.Name, err)
			}
			return []int64{id}, nil
		}
	}

	for _, field := range c.spec.Indexes {
		if v, ok := m[field]; ok {
			prefix := append(c.indexPrefix(field), valueKey(v)...)
			return c.scanIDs(txn, store.TableIndex, prefix, prefixEnd(prefix))
		}
	}

	prefix := c.collectionPrefix()
	return c.scanIDs(txn, store.TableDocs, prefix, prefixEnd(prefix))
}

// scanIDs collects row ids from a key range. Doc and index keys end with
// the row id; unique entries hold it as their value.
func (c *Collection[T, PT]) scanIDs(txn store.Transaction, table store.Table, start, end []byte) ([]int64, error) {
	it, err := txn.Scan(table, start, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []int64
	for it.Next() {
		var raw []byte
		if table == store.TableUnique {
			if raw, err = it.Value(); err != nil {
				return nil, err
			}
		} else {
			key := it.Key()
			if len(key) < encoding.IntSize {
				return nil, fmt.Errorf("invalid key in %s table of %s", table, c.spec.Name)
			}
			raw = key[len(key)-encoding.IntSize:]
		}

		id, err := encoding.DecodeInt(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func matchesRecord(fields Fields, id int64, m Match) bool {
	for field, want := range m {
		if field == IDField {
			if !bytes.Equal(want, Int(id)) {
				return false
			}
			continue
		}
		got, ok := fields[field]
		if !ok || !bytes.Equal(got, want) {
			return false
		}
	}
	return true
}
