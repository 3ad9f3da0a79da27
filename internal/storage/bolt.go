package storage

import (
	"bytes"
	"fmt"

	"github.com/aleksaelezovic/quadstore/pkg/store"
	bolt "go.etcd.io/bbolt"
)

// BoltStorage implements Storage using bbolt. Every table lives in its own
// bucket, so keys are stored without the table prefix.
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens (or creates) a bbolt file at path
func NewBoltStorage(path string) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, table := range store.Tables {
			if _, err := tx.CreateBucketIfNotExists(bucketName(table)); err != nil {
				return fmt.Errorf("create bucket %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db}, nil
}

func bucketName(table store.Table) []byte {
	return []byte(table.String())
}

// Begin starts a new transaction
func (s *BoltStorage) Begin(writable bool) (store.Transaction, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("failed to begin bolt transaction: %w", err)
	}
	return &BoltTransaction{tx: tx, writable: writable}, nil
}

// DropPrefix deletes all keys of a table that start with prefix
func (s *BoltStorage) DropPrefix(table store.Table, prefix []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName(table)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return fmt.Errorf("failed to drop prefix in %s: %w", table, err)
			}
		}
		return nil
	})
}

// Close closes the storage
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk
func (s *BoltStorage) Sync() error {
	return s.db.Sync()
}

// BoltTransaction implements Transaction using a bbolt transaction
type BoltTransaction struct {
	tx       *bolt.Tx
	writable bool
	done     bool
}

// Get retrieves a value by key
func (t *BoltTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	value := t.tx.Bucket(bucketName(table)).Get(key)
	if value == nil {
		return nil, store.ErrNotFound
	}
	return append([]byte{}, value...), nil
}

// Set stores a key-value pair
func (t *BoltTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.tx.Bucket(bucketName(table)).Put(key, value)
}

// Delete removes a key
func (t *BoltTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.tx.Bucket(bucketName(table)).Delete(key)
}

// Scan iterates over a key range [start, end)
func (t *BoltTransaction) Scan(table store.Table, start, end []byte) (store.Iterator, error) {
	return &BoltIterator{
		cursor: t.tx.Bucket(bucketName(table)).Cursor(),
		start:  start,
		end:    end,
	}, nil
}

// Commit commits the transaction
func (t *BoltTransaction) Commit() error {
	t.done = true
	if !t.writable {
		return t.tx.Rollback()
	}
	return t.tx.Commit()
}

// Rollback rolls back the transaction
func (t *BoltTransaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// BoltIterator implements Iterator over a bucket cursor
type BoltIterator struct {
	cursor  *bolt.Cursor
	start   []byte
	end     []byte
	key     []byte
	value   []byte
	started bool
}

// Next advances to the next item
func (i *BoltIterator) Next() bool {
	var k, v []byte
	switch {
	case i.started:
		k, v = i.cursor.Next()
	case i.start == nil:
		k, v = i.cursor.First()
	default:
		k, v = i.cursor.Seek(i.start)
	}
	i.started = true

	if k == nil || (i.end != nil && bytes.Compare(k, i.end) >= 0) {
		i.key, i.value = nil, nil
		return false
	}

	i.key, i.value = k, v
	return true
}

// Key returns the current key
func (i *BoltIterator) Key() []byte {
	if i.key == nil {
		return nil
	}
	return append([]byte{}, i.key...)
}

// Value returns the current value
func (i *BoltIterator) Value() ([]byte, error) {
	if i.key == nil {
		return nil, store.ErrNotFound
	}
	return append([]byte{}, i.value...), nil
}

// Close closes the iterator
func (i *BoltIterator) Close() error {
	return nil
}
