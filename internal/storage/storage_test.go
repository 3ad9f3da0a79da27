package storage

import (
	"path/filepath"
	"testing"

	"github.com/aleksaelezovic/quadstore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) store.Storage {
	return map[string]func(t *testing.T) store.Storage{
		"badger": func(t *testing.T) store.Storage {
			s, err := NewBadgerStorage(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"badger-memory": func(t *testing.T) store.Storage {
			s, err := NewInMemoryBadgerStorage()
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"bolt": func(t *testing.T) store.Storage {
			s, err := NewBoltStorage(filepath.Join(t.TempDir(), "quads.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func write(t *testing.T, s store.Storage, table store.Table, pairs ...string) {
	txn, err := s.Begin(true)
	require.NoError(t, err)
	defer txn.Rollback()

	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, txn.Set(table, []byte(pairs[i]), []byte(pairs[i+1])))
	}
	require.NoError(t, txn.Commit())
}

func scanKeys(t *testing.T, s store.Storage, table store.Table, start, end []byte) []string {
	txn, err := s.Begin(false)
	require.NoError(t, err)
	defer txn.Rollback()

	it, err := txn.Scan(table, start, end)
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	return keys
}

func TestStorage_GetSetDelete(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			write(t, s, store.TableDocs, "a", "1", "b", "2")

			txn, err := s.Begin(true)
			require.NoError(t, err)
			defer txn.Rollback()

			v, err := txn.Get(store.TableDocs, []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v)

			_, err = txn.Get(store.TableUnique, []byte("a"))
			assert.ErrorIs(t, err, store.ErrNotFound)

			require.NoError(t, txn.Delete(store.TableDocs, []byte("a")))
			_, err = txn.Get(store.TableDocs, []byte("a"))
			assert.ErrorIs(t, err, store.ErrNotFound)
			require.NoError(t, txn.Commit())

			assert.Equal(t, []string{"b"}, scanKeys(t, s, store.TableDocs, nil, nil))
		})
	}
}

func TestStorage_ReadOnlyTransaction(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			txn, err := s.Begin(false)
			require.NoError(t, err)
			defer txn.Rollback()

			assert.ErrorIs(t, txn.Set(store.TableDocs, []byte("a"), []byte("1")), store.ErrTransactionRO)
			assert.ErrorIs(t, txn.Delete(store.TableDocs, []byte("a")), store.ErrTransactionRO)
		})
	}
}

func TestStorage_RollbackDiscardsWrites(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			txn, err := s.Begin(true)
			require.NoError(t, err)
			require.NoError(t, txn.Set(store.TableDocs, []byte("a"), []byte("1")))
			require.NoError(t, txn.Rollback())

			assert.Empty(t, scanKeys(t, s, store.TableDocs, nil, nil))
		})
	}
}

func TestStorage_ScanRangeStaysInTable(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			write(t, s, store.TableDocs, "k1", "", "k2", "", "k3", "", "k4", "")
			write(t, s, store.TableUnique, "k0", "", "k5", "")

			assert.Equal(t, []string{"k1", "k2", "k3", "k4"}, scanKeys(t, s, store.TableDocs, nil, nil))
			assert.Equal(t, []string{"k2", "k3"}, scanKeys(t, s, store.TableDocs, []byte("k2"), []byte("k4")))
			assert.Equal(t, []string{"k3", "k4"}, scanKeys(t, s, store.TableDocs, []byte("k3"), nil))
			assert.Empty(t, scanKeys(t, s, store.TableDocs, []byte("k5"), nil))
		})
	}
}

func TestStorage_DropPrefix(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			write(t, s, store.TableIndex, "x/1", "", "x/2", "", "y/1", "")
			write(t, s, store.TableDocs, "x/1", "")

			require.NoError(t, s.DropPrefix(store.TableIndex, []byte("x/")))

			assert.Equal(t, []string{"y/1"}, scanKeys(t, s, store.TableIndex, nil, nil))
			assert.Equal(t, []string{"x/1"}, scanKeys(t, s, store.TableDocs, nil, nil))
		})
	}
}

func TestStorage_Persistence(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBadgerStorage(dir)
	require.NoError(t, err)
	write(t, s, store.TableSequences, "seq", "7")
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close())

	s, err = NewBadgerStorage(dir)
	require.NoError(t, err)
	defer s.Close()

	txn, err := s.Begin(false)
	require.NoError(t, err)
	defer txn.Rollback()

	v, err := txn.Get(store.TableSequences, []byte("seq"))
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), v)
}

func TestOpen(t *testing.T) {
	s, err := Open("badger", "", true)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open("bolt", filepath.Join(t.TempDir(), "open.db"), false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open("bolt", "", true)
	assert.Error(t, err)

	_, err = Open("leveldb", t.TempDir(), false)
	assert.Error(t, err)
}
