package core

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/filter"
	"github.com/nasdf/geocapy/object"
	"github.com/nasdf/geocapy/schema"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// staging contains the pending changes of a single feature type.
type staging struct {
	ft   *schema.FeatureType
	base *object.Tree
	// changes maps feature ids to their new ref. A nil ref is a deletion.
	changes map[string]*object.Ref
	// order contains feature ids in the order they were first changed.
	order []string
	// versions maps changed feature ids to the version they had in the base tree
	// when first changed. An empty version means the feature did not exist.
	versions map[string]string
}

func newStaging(ft *schema.FeatureType, base *object.Tree) *staging {
	return &staging{
		ft:       ft,
		base:     base,
		changes:  make(map[string]*object.Ref),
		versions: make(map[string]string),
	}
}

func (s *staging) touch(id string) {
	if _, ok := s.changes[id]; !ok {
		s.order = append(s.order, id)
		s.versions[id] = versionOf(s.base, id)
	}
}

// versionOf returns the link of the feature with the given id or an empty string.
func versionOf(tree *object.Tree, id string) string {
	if ref, ok := tree.Get(id); ok {
		return ref.Link.String()
	}
	return ""
}

// conflicts checks that every changed feature still has the version its change
// was based on in the given tree.
//
// A feature created by the staging area that now exists in the tree is reported
// as ErrAlreadyExists. Any other difference is a StaleVersionError.
func (s *staging) conflicts(name schema.Name, tree *object.Tree) error {
	var stale []string
	for _, id := range s.order {
		expect := s.versions[id]
		current := versionOf(tree, id)
		switch {
		case current == expect:
		case expect == "":
			return fmt.Errorf("feature %s %w", id, ErrAlreadyExists)
		default:
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		return &StaleVersionError{Type: name, IDs: stale}
	}
	return nil
}

func (s *staging) put(ref object.Ref) {
	s.touch(ref.Name)
	s.changes[ref.Name] = &ref
}

func (s *staging) remove(id string) {
	s.touch(id)
	s.changes[id] = nil
}

// get returns the current ref of the feature with the given id.
func (s *staging) get(id string) (object.Ref, bool) {
	if ref, ok := s.changes[id]; ok {
		if ref == nil {
			return object.Ref{}, false
		}
		return *ref, true
	}
	return s.base.Get(id)
}

// apply writes the pending changes into the given tree.
func (s *staging) apply(tree *object.Tree) {
	for _, id := range s.order {
		if ref := s.changes[id]; ref != nil {
			tree.Put(*ref)
		} else {
			tree.Remove(id)
		}
	}
}

// view returns the base tree with all pending changes applied.
func (s *staging) view() *object.Tree {
	tree := s.base.Clone()
	s.apply(tree)
	return tree
}

// Transaction is a staging area for feature changes.
//
// A Transaction reads from the head it was created from plus its own pending changes.
// It is not safe for concurrent use.
type Transaction struct {
	repo   *Repository
	id     ulid.ULID
	base   *head
	root   *object.Tree
	staged map[schema.Name]*staging
	closed bool
}

// Begin returns a new transaction based on the current head.
func (r *Repository) Begin(ctx context.Context) (*Transaction, error) {
	base, root, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	id, err := ulid.New(ulid.Timestamp(r.now()), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		repo:   r,
		id:     id,
		base:   base,
		root:   root,
		staged: make(map[schema.Name]*staging),
	}, nil
}

// ID returns the unique id of the transaction.
func (t *Transaction) ID() string {
	return t.id.String()
}

// Base returns the link of the commit the transaction is based on.
func (t *Transaction) Base() string {
	return t.base.commit.String()
}

// Schema returns the feature type with the given name as seen by the transaction.
func (t *Transaction) Schema(ctx context.Context, name schema.Name) (*schema.FeatureType, error) {
	if s, ok := t.staged[name]; ok {
		return s.ft, nil
	}
	return t.repo.schemaAt(ctx, t.root, name)
}

// stage returns the staging area of the given feature type, creating it on first use.
func (t *Transaction) stage(ctx context.Context, name schema.Name) (*staging, error) {
	if t.closed {
		return nil, ErrTransactionClosed
	}
	if s, ok := t.staged[name]; ok {
		return s, nil
	}
	ft, err := t.repo.schemaAt(ctx, t.root, name)
	if err != nil {
		return nil, err
	}
	base, err := GetOrCreateSubTree(ctx, t.repo.store, t.root, featuresPath(name))
	if err != nil {
		return nil, err
	}
	s := newStaging(ft, base)
	t.staged[name] = s
	return s, nil
}

// storeFeature normalizes and writes the given feature and returns its ref.
func (t *Transaction) storeFeature(ctx context.Context, ft *schema.FeatureType, f *feature.Feature) (object.Ref, error) {
	in := f.Clone()
	in.Type = ft
	norm, err := feature.Normalize(in)
	if err != nil {
		return object.Ref{}, fmt.Errorf("feature %s: %w", f.ID, err)
	}
	node, err := norm.Node()
	if err != nil {
		return object.Ref{}, err
	}
	lnk, err := t.repo.store.Store(ctx, node)
	if err != nil {
		return object.Ref{}, err
	}
	ref := object.Ref{
		Name: f.ID,
		Kind: object.KindBlob,
		Link: lnk,
	}
	bounds, ok, err := norm.Bounds()
	if err != nil {
		return object.Ref{}, err
	}
	if ok {
		ref.Bounds = &bounds
	}
	return ref, nil
}

// Insert adds the given features to the feature type with the given name and returns their ids.
//
// New ids of the form <Local>.<uuid> are generated unless forceIDs is set, in which case the
// id of each feature is used and must not already exist.
func (t *Transaction) Insert(ctx context.Context, name schema.Name, features []*feature.Feature, forceIDs bool) ([]string, error) {
	s, err := t.stage(ctx, name)
	if err != nil {
		return nil, err
	}
	refs := make([]object.Ref, len(features))
	seen := make(map[string]struct{}, len(features))
	for i, f := range features {
		in := f.Clone()
		if forceIDs && in.ID != "" {
			if _, ok := seen[in.ID]; ok {
				return nil, fmt.Errorf("feature %s %w", in.ID, ErrAlreadyExists)
			}
			if _, ok := s.get(in.ID); ok {
				return nil, fmt.Errorf("feature %s %w", in.ID, ErrAlreadyExists)
			}
		} else {
			in.ID = name.Local + "." + uuid.NewString()
		}
		seen[in.ID] = struct{}{}
		refs[i], err = t.storeFeature(ctx, s.ft, in)
		if err != nil {
			return nil, err
		}
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		s.put(ref)
		ids[i] = ref.Name
	}
	return ids, nil
}

// UpdateFeatures replaces the content of existing features with the given features.
//
// Features with a version set are checked against the current version of the feature.
func (t *Transaction) UpdateFeatures(ctx context.Context, name schema.Name, features []*feature.Feature) error {
	s, err := t.stage(ctx, name)
	if err != nil {
		return err
	}
	pinned := filter.ResourceID{}
	for _, f := range features {
		if f.Version != "" {
			pinned.IDs = append(pinned.IDs, filter.FeatureID{ID: f.ID, Version: f.Version})
		}
	}
	if err := t.checkVersions(ctx, name, s, pinned); err != nil {
		return err
	}
	refs := make([]object.Ref, len(features))
	for i, f := range features {
		if _, ok := s.get(f.ID); !ok {
			return fmt.Errorf("feature %s %w", f.ID, ErrNotFound)
		}
		refs[i], err = t.storeFeature(ctx, s.ft, f)
		if err != nil {
			return err
		}
	}
	for _, ref := range refs {
		s.put(ref)
	}
	return nil
}

// Update sets the given attributes to the given values on every feature matching the filter
// and returns the ids of the updated features.
func (t *Transaction) Update(ctx context.Context, name schema.Name, attributes []string, values []any, f filter.Filter) ([]string, error) {
	if len(attributes) != len(values) {
		return nil, errors.New("attributes and values must have the same length")
	}
	s, err := t.stage(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, attr := range attributes {
		if _, ok := s.ft.Attribute(attr); !ok {
			return nil, fmt.Errorf("%w: unknown attribute %s", feature.ErrInvalidValue, attr)
		}
	}
	if err := t.checkVersions(ctx, name, s, f); err != nil {
		return nil, err
	}
	matches, err := t.selectFeatures(ctx, name, f)
	if err != nil {
		return nil, err
	}
	refs := make([]object.Ref, len(matches))
	for i, match := range matches {
		for j, attr := range attributes {
			match.Set(attr, values[j])
			delete(match.CRS, attr)
		}
		refs[i], err = t.storeFeature(ctx, s.ft, match)
		if err != nil {
			return nil, err
		}
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		s.put(ref)
		ids[i] = ref.Name
	}
	return ids, nil
}

// Delete removes every feature matching the filter and returns the ids of the removed features.
func (t *Transaction) Delete(ctx context.Context, name schema.Name, f filter.Filter) ([]string, error) {
	s, err := t.stage(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := t.checkVersions(ctx, name, s, f); err != nil {
		return nil, err
	}
	matches, err := t.selectFeatures(ctx, name, f)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, match := range matches {
		s.remove(match.ID)
		ids[i] = match.ID
	}
	return ids, nil
}

// Rename changes the id of a feature without changing its content.
func (t *Transaction) Rename(ctx context.Context, name schema.Name, oldID, newID string) error {
	s, err := t.stage(ctx, name)
	if err != nil {
		return err
	}
	ref, ok := s.get(oldID)
	if !ok {
		return fmt.Errorf("feature %s %w", oldID, ErrNotFound)
	}
	if _, ok := s.get(newID); ok {
		return fmt.Errorf("feature %s %w", newID, ErrAlreadyExists)
	}
	s.remove(oldID)
	ref.Name = newID
	s.put(ref)
	return nil
}

// selectFeatures returns all features matching the filter as seen by the transaction.
func (t *Transaction) selectFeatures(ctx context.Context, name schema.Name, f filter.Filter) ([]*feature.Feature, error) {
	source, err := t.Source(ctx, name, Query{Filter: f})
	if err != nil {
		return nil, err
	}
	return source.Features(ctx).All(ctx)
}

// checkVersions returns a StaleVersionError if any version pinned by the filter differs
// from the current version of its feature.
//
// The current version is the staged ref of this transaction if there is one, otherwise
// the version in the published head.
func (t *Transaction) checkVersions(ctx context.Context, name schema.Name, s *staging, f filter.Filter) error {
	pinned := pinnedVersions(f)
	if len(pinned) == 0 {
		return nil
	}
	var published *object.Tree
	var stale []string
	for _, id := range pinned {
		ref, ok := s.changes[id.ID]
		if !ok {
			if published == nil {
				_, root, err := t.repo.snapshot(ctx)
				if err != nil {
					return err
				}
				published, err = GetOrCreateSubTree(ctx, t.repo.store, root, featuresPath(name))
				if err != nil {
					return err
				}
			}
			if current, exists := published.Get(id.ID); exists {
				ref = &current
			}
		}
		if ref == nil || ref.Link.String() != id.Version {
			stale = append(stale, id.ID)
		}
	}
	if len(stale) > 0 {
		return &StaleVersionError{Type: name, IDs: stale}
	}
	return nil
}

// pinnedVersions returns every feature id with a version referenced by the filter.
func pinnedVersions(f filter.Filter) []filter.FeatureID {
	var out []filter.FeatureID
	switch v := f.(type) {
	case filter.ResourceID:
		for _, id := range v.IDs {
			if id.Version != "" {
				out = append(out, id)
			}
		}
	case filter.And:
		for _, sub := range v {
			out = append(out, pinnedVersions(sub)...)
		}
	case filter.Or:
		for _, sub := range v {
			out = append(out, pinnedVersions(sub)...)
		}
	case filter.Not:
		out = append(out, pinnedVersions(v.Filter)...)
	}
	return out
}

// Rebase moves the transaction onto the current head while keeping its pending changes.
//
// Every changed feature must still have the version its change was based on.
// Otherwise Rebase returns a StaleVersionError, or ErrAlreadyExists for a new
// feature whose id was taken in the meantime, and the transaction is left as it was.
func (t *Transaction) Rebase(ctx context.Context) error {
	if t.closed {
		return ErrTransactionClosed
	}
	base, root, err := t.repo.snapshot(ctx)
	if err != nil {
		return err
	}
	names := make([]schema.Name, 0, len(t.staged))
	for name := range t.staged {
		names = append(names, name)
	}
	slices.SortFunc(names, compareNames)

	staged := make(map[schema.Name]*staging, len(t.staged))
	for _, name := range names {
		s := t.staged[name]
		ft, err := t.repo.schemaAt(ctx, root, name)
		if err != nil {
			return err
		}
		tree, err := GetOrCreateSubTree(ctx, t.repo.store, root, featuresPath(name))
		if err != nil {
			return err
		}
		if err := s.conflicts(name, tree); err != nil {
			t.repo.log.WithField("tx", t.ID()).WithField("commit", base.commit.String()).WithError(err).Debug("rebase conflict")
			return err
		}
		staged[name] = &staging{
			ft:       ft,
			base:     tree,
			changes:  s.changes,
			order:    s.order,
			versions: s.versions,
		}
	}
	t.base = base
	t.root = root
	t.staged = staged
	t.repo.log.WithField("tx", t.ID()).WithField("commit", base.commit.String()).Debug("rebased transaction")
	return nil
}

// Rollback discards all pending changes and closes the transaction.
func (t *Transaction) Rollback() error {
	if t.closed {
		return ErrTransactionClosed
	}
	t.closed = true
	t.staged = nil
	t.repo.log.WithField("tx", t.ID()).Debug("rolled back transaction")
	return nil
}

// dirtyTypes returns the names of all feature types with pending changes sorted by name.
func (t *Transaction) dirtyTypes() []schema.Name {
	var names []schema.Name
	for name, s := range t.staged {
		if len(s.order) > 0 {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, compareNames)
	return names
}
