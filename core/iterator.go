package core

import (
	"context"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/object"

	"github.com/ipld/go-ipld-prime/datamodel"
)

// CommitIterator walks the first parent chain of a commit.
type CommitIterator struct {
	repo *Repository
	next datamodel.Link
}

// CommitIterator returns a new iterator that starts at the given commit.
func (r *Repository) CommitIterator(lnk datamodel.Link) *CommitIterator {
	return &CommitIterator{
		repo: r,
		next: lnk,
	}
}

// Log returns a new iterator over the history of the current head.
func (r *Repository) Log(ctx context.Context) *CommitIterator {
	return r.CommitIterator(r.Head())
}

// Done returns true if the iterator has no items left.
func (i *CommitIterator) Done() bool {
	return i.next == nil
}

// Next returns the next commit from the iterator.
func (i *CommitIterator) Next(ctx context.Context) (datamodel.Link, *object.Commit, error) {
	lnk := i.next
	commit, err := i.repo.Commit(ctx, lnk)
	if err != nil {
		return nil, nil, err
	}
	i.next = nil
	if len(commit.Parents) > 0 {
		i.next = commit.Parents[0]
	}
	return lnk, commit, nil
}

// FeatureIterator is a one shot iterator over the features of a source.
//
//	iter := source.Features(ctx)
//	for iter.Next(ctx) {
//		f := iter.Feature()
//	}
//	if err := iter.Err(); err != nil {
//		...
//	}
type FeatureIterator struct {
	source   *FeatureSource
	decode   bool
	started  bool
	pending  []object.Ref
	seen     map[string]struct{}
	ref      object.Ref
	feature  *feature.Feature
	returned int
	err      error
}

func newFeatureIterator(s *FeatureSource, decode bool) *FeatureIterator {
	return &FeatureIterator{
		source: s,
		decode: decode,
	}
}

// Feature returns the current feature.
//
// The feature is owned by the caller.
func (i *FeatureIterator) Feature() *feature.Feature {
	return i.feature
}

// Ref returns the ref of the current feature.
func (i *FeatureIterator) Ref() object.Ref {
	return i.ref
}

// Err returns the error that stopped the iteration if any.
func (i *FeatureIterator) Err() error {
	return i.err
}

func (i *FeatureIterator) start(ctx context.Context) error {
	i.started = true
	p := i.source.plan
	if p.kind == planEmpty {
		return nil
	}
	tree, err := i.source.loadTree(ctx)
	if err != nil {
		return err
	}
	if p.kind != planIDs {
		i.pending = append(i.pending, tree.Entries()...)
		return nil
	}
	i.seen = make(map[string]struct{}, len(p.ids))
	for _, id := range p.ids {
		if _, ok := i.seen[id]; ok {
			continue
		}
		i.seen[id] = struct{}{}
		if ref, ok := tree.Get(id); ok {
			i.pending = append(i.pending, ref)
		}
	}
	return nil
}

// skip returns true if the ref can be excluded using its envelope alone.
func (i *FeatureIterator) skip(ref object.Ref) bool {
	env := i.source.plan.envelope
	if env == nil {
		return false
	}
	return ref.Bounds == nil || !ref.Bounds.Intersects(*env)
}

// Next advances the iterator and returns true if a feature is available.
func (i *FeatureIterator) Next(ctx context.Context) bool {
	if i.err != nil {
		return false
	}
	if max := i.source.query.MaxFeatures; max > 0 && i.returned >= max {
		return false
	}
	if !i.started {
		if i.err = i.start(ctx); i.err != nil {
			return false
		}
	}
	p := i.source.plan
	for len(i.pending) > 0 {
		if i.err = ctx.Err(); i.err != nil {
			return false
		}
		ref := i.pending[0]
		i.pending = i.pending[1:]
		if i.skip(ref) {
			continue
		}
		if ref.Kind == object.KindTree {
			tree, err := LoadTree(ctx, i.source.store, ref.Link)
			if err != nil {
				i.err = err
				return false
			}
			i.pending = append(tree.Entries()[:len(tree.Entries()):len(tree.Entries())], i.pending...)
			continue
		}
		var f *feature.Feature
		if i.decode || !p.exact() {
			f, i.err = i.source.loadFeature(ctx, ref)
			if i.err != nil {
				return false
			}
		}
		if !p.exact() {
			match, err := i.source.query.Filter.Evaluate(f)
			if err != nil {
				i.err = err
				return false
			}
			if !match {
				continue
			}
		}
		if f != nil {
			if i.err = i.source.reproject(f); i.err != nil {
				return false
			}
		}
		i.ref = ref
		i.feature = f
		i.returned++
		return true
	}
	i.ref = object.Ref{}
	i.feature = nil
	return false
}

// All returns all remaining features from the iterator.
func (i *FeatureIterator) All(ctx context.Context) ([]*feature.Feature, error) {
	var out []*feature.Feature
	for i.Next(ctx) {
		out = append(out, i.Feature())
	}
	return out, i.Err()
}
