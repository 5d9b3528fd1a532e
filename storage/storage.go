package storage

import (
	"errors"

	"github.com/ipld/go-ipld-prime/storage"
)

var ErrNotFound = errors.New("key not found")

// Storage is a key value store used to persist objects and references.
//
// Put overwrites existing values. Content addressed writes are made
// idempotent one layer up by link.Store.
type Storage interface {
	storage.ReadableStorage
	storage.WritableStorage
}
