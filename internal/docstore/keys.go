package docstore

import (
	"github.com/aleksaelezovic/quadstore/internal/encoding"
)

// Key layout (every key is further prefixed with its table byte):
//
//	docs:      [ store ][ 0 ][ collection ][ 0 ][ row id ]            -> msgpack record
//	unique:    [ store ][ 0 ][ collection ][ 0 ][ value key ]         -> row id
//	index:     [ store ][ 0 ][ collection ][ 0 ][ field ][ 0 ][ value key ][ row id ]
//	sequences: [ store ][ 0 ][ sequence ]                             -> last row id
//
// A value key is the raw value behind a 0x00 tag when the value is at most
// maxRawValue bytes long, and a 0x01 tag followed by its xxhash3-128 digest
// otherwise. Raw value keys keep the value order, which range scans rely on.

const (
	maxRawValue = encoding.QuadKeySize

	tagRaw    byte = 0x00
	tagHashed byte = 0x01
)

// Value is the byte encoding of a field value. Integer values use an
// order-preserving encoding, so comparing Values byte-wise compares the
// numbers.
type Value []byte

// Int encodes a signed integer field value
func Int(v int64) Value {
	encoded := encoding.EncodeInt(v)
	return encoded[:]
}

// String encodes a string field value
func String(s string) Value {
	return Value(s)
}

// Bytes encodes a raw byte field value
func Bytes(b []byte) Value {
	return Value(b)
}

// Fields maps field names to their values
type Fields map[string]Value

// Match is an exact-field-match query. An empty Match selects every record.
type Match map[string]Value

func valueKey(v Value) []byte {
	if len(v) <= maxRawValue {
		key := make([]byte, 0, 1+len(v))
		key = append(key, tagRaw)
		return append(key, v...)
	}
	hash := encoding.Hash128(v)
	key := make([]byte, 0, 1+len(hash))
	key = append(key, tagHashed)
	return append(key, hash[:]...)
}

func (c *collection) collectionPrefix() []byte {
	return []byte(c.db.name + "\x00" + c.spec.Name + "\x00")
}

func (c *collection) docKey(id int64) []byte {
	encoded := encoding.EncodeInt(id)
	return append(c.collectionPrefix(), encoded[:]...)
}

func (c *collection) uniqueKey(v Value) []byte {
	return append(c.collectionPrefix(), valueKey(v)...)
}

func (c *collection) indexPrefix(field string) []byte {
	return append(c.collectionPrefix(), []byte(field+"\x00")...)
}

func (c *collection) indexKey(field string, v Value, id int64) []byte {
	encoded := encoding.EncodeInt(id)
	key := append(c.indexPrefix(field), valueKey(v)...)
	return append(key, encoded[:]...)
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
