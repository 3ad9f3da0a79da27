package store

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")
)

// Storage is the interface for the underlying key-value store
type Storage interface {
	// Begin starts a new transaction
	Begin(writable bool) (Transaction, error)

	// DropPrefix deletes every key of table that starts with prefix
	DropPrefix(table Table, prefix []byte) error

	// Close closes the storage
	Close() error

	// Sync flushes writes to disk
	Sync() error
}

// Transaction represents a database transaction with snapshot isolation
type Transaction interface {
	// Get retrieves a value by key
	Get(table Table, key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// Delete removes a key
	Delete(table Table, key []byte) error

	// Scan iterates over a key range [start, end)
	// If start is nil, begins from the first key
	// If end is nil, scans until the last key of the table
	Scan(table Table, start, end []byte) (Iterator, error)

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction. Calling it after Commit is a no-op.
	Rollback() error
}

// Iterator iterates over key-value pairs
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Key returns the current key (without the table prefix)
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// Close closes the iterator
	Close() error
}

// Table represents a logical keyspace in the storage. The document store
// keeps records, unique keys, secondary index entries and sequences in
// separate tables.
type Table byte

const (
	// Records: collection | row id -> encoded document
	TableDocs Table = iota + 1

	// Unique keys: collection | field value key -> row id
	TableUnique

	// Secondary indexes: collection | field | value key | row id -> empty
	TableIndex

	// Sequences: sequence name -> last allocated value
	TableSequences

	// Total number of tables (plus one, tables start at 1)
	TableCount
)

// Tables lists every table, in prefix order.
var Tables = []Table{TableDocs, TableUnique, TableIndex, TableSequences}

func (t Table) String() string {
	switch t {
	case TableDocs:
		return "docs"
	case TableUnique:
		return "unique"
	case TableIndex:
		return "index"
	case TableSequences:
		return "sequences"
	default:
		return "unknown"
	}
}

// TablePrefix returns a byte prefix for a table to namespace keys
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	prefix := TablePrefix(table)
	result := make([]byte, len(prefix)+len(key))
	copy(result, prefix)
	copy(result[len(prefix):], key)
	return result
}

// TableEnd returns the first key past every key of table.
func TableEnd(table Table) []byte {
	return []byte{byte(table) + 1}
}
