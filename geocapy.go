// Package geocapy is a versioned geospatial feature store.
//
// Feature types are declared in GraphQL SDL, features are written in
// transactions and every commit produces a new immutable snapshot of the
// repository.
package geocapy

import (
	"context"

	"github.com/nasdf/geocapy/core"
	"github.com/nasdf/geocapy/storage"
)

// New creates a repository in the given storage with the feature types declared in sdl.
//
// Types without a @namespace directive are registered in the given namespace.
func New(ctx context.Context, s storage.Storage, namespace, sdl string, opts core.Options) (*core.Repository, error) {
	repo, err := core.Init(ctx, s, opts)
	if err != nil {
		return nil, err
	}
	if sdl == "" {
		return repo, nil
	}
	_, err = repo.CreateSchemaSDL(ctx, namespace, sdl)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Execute runs fn in a new transaction and commits its changes.
//
// The transaction is rolled back if fn or the commit fails.
func Execute(ctx context.Context, repo *core.Repository, meta core.Metadata, fn func(tx *core.Transaction) error) (*core.CommitResult, error) {
	tx, err := repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return nil, err
	}
	res, err := tx.Commit(ctx, meta)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return res, nil
}
