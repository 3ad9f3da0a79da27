package storage

import (
	"fmt"

	"github.com/aleksaelezovic/quadstore/pkg/store"
)

// Open opens the named backend ("badger" or "bolt") at path
func Open(backend, path string, inMemory bool) (store.Storage, error) {
	var (
		s   store.Storage
		err error
	)
	switch backend {
	case "badger", "":
		if inMemory {
			s, err = NewInMemoryBadgerStorage()
		} else {
			s, err = NewBadgerStorage(path)
		}
	case "bolt":
		if inMemory {
			return nil, fmt.Errorf("bolt storage has no in-memory mode")
		}
		s, err = NewBoltStorage(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
