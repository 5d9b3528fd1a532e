package core

import (
	"context"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/filter"
	"github.com/nasdf/geocapy/schema"

	"github.com/paulmach/orb"
)

// Scope selects whether an operation runs against the published head or inside a transaction.
type Scope struct {
	tx *Transaction
}

// AutoCommit returns a scope reading from the published head.
//
// Writes are not supported in this scope.
func AutoCommit() Scope {
	return Scope{}
}

// InTransaction returns a scope bound to the given transaction.
func InTransaction(tx *Transaction) Scope {
	return Scope{tx: tx}
}

// Transaction returns the transaction of the scope if there is one.
func (s Scope) Transaction() (*Transaction, bool) {
	return s.tx, s.tx != nil
}

func (s Scope) writable() (*Transaction, error) {
	if s.tx == nil {
		return nil, ErrUnsupportedInAutoCommit
	}
	return s.tx, nil
}

// Query returns a feature source for the given type and query within the given scope.
func (r *Repository) Query(ctx context.Context, name schema.Name, query Query, scope Scope) (*FeatureSource, error) {
	if tx, ok := scope.Transaction(); ok {
		return tx.Source(ctx, name, query)
	}
	return r.Source(ctx, name, query)
}

// Count returns the number of features matching the query within the given scope.
func (r *Repository) Count(ctx context.Context, name schema.Name, query Query, scope Scope) (int64, error) {
	source, err := r.Query(ctx, name, query, scope)
	if err != nil {
		return 0, err
	}
	return source.Count(ctx)
}

// Bounds returns the envelope of the features matching the query within the given scope.
func (r *Repository) Bounds(ctx context.Context, name schema.Name, query Query, scope Scope) (orb.Bound, bool, error) {
	source, err := r.Query(ctx, name, query, scope)
	if err != nil {
		return orb.Bound{}, false, err
	}
	return source.Bounds(ctx)
}

// Insert adds features within the given scope. See Transaction.Insert.
func (r *Repository) Insert(ctx context.Context, scope Scope, name schema.Name, features []*feature.Feature, forceIDs bool) ([]string, error) {
	tx, err := scope.writable()
	if err != nil {
		return nil, err
	}
	return tx.Insert(ctx, name, features, forceIDs)
}

// Update sets attribute values within the given scope. See Transaction.Update.
func (r *Repository) Update(ctx context.Context, scope Scope, name schema.Name, attributes []string, values []any, f filter.Filter) ([]string, error) {
	tx, err := scope.writable()
	if err != nil {
		return nil, err
	}
	return tx.Update(ctx, name, attributes, values, f)
}

// Delete removes features within the given scope. See Transaction.Delete.
func (r *Repository) Delete(ctx context.Context, scope Scope, name schema.Name, f filter.Filter) ([]string, error) {
	tx, err := scope.writable()
	if err != nil {
		return nil, err
	}
	return tx.Delete(ctx, name, f)
}
