package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nasdf/geocapy/schema"
	"github.com/nasdf/geocapy/storage"
)

var (
	ErrNotFound                = storage.ErrNotFound
	ErrSchemaNotFound          = fmt.Errorf("schema %w", storage.ErrNotFound)
	ErrAlreadyExists           = errors.New("already exists")
	ErrConflictingPathKind     = errors.New("path resolves to a blob where a tree is required")
	ErrStaleVersion            = errors.New("stale feature version")
	ErrUnsupportedInAutoCommit = errors.New("writes require a transaction")
	ErrNothingToCommit         = errors.New("nothing to commit")
	ErrConcurrentModification  = errors.New("repository head changed since the transaction began")
	ErrTransactionClosed       = errors.New("transaction is closed")
)

// StaleVersionError is returned when features pinned to a version have been modified.
type StaleVersionError struct {
	Type schema.Name
	IDs  []string
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("%s: %s features %s", ErrStaleVersion, e.Type, strings.Join(e.IDs, ", "))
}

func (e *StaleVersionError) Is(target error) bool {
	return target == ErrStaleVersion
}
