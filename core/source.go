package core

import (
	"context"
	"sync"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/filter"
	"github.com/nasdf/geocapy/geom"
	"github.com/nasdf/geocapy/link"
	"github.com/nasdf/geocapy/object"
	"github.com/nasdf/geocapy/schema"

	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/paulmach/orb"
)

// Query selects features from a feature source.
type Query struct {
	// Filter selects matching features. A nil filter matches every feature.
	Filter filter.Filter
	// MaxFeatures limits the number of features returned. Zero means no limit.
	MaxFeatures int
	// CRS is the reference system of returned geometries and bounds. A zero CRS
	// returns geometries in their declared reference system.
	CRS geom.CRS
}

type planKind int

const (
	planUnfiltered planKind = iota
	planEmpty
	planBBox
	planSpatial
	planIDs
	planGeneral
)

// plan describes how a filter is evaluated against the feature tree.
type plan struct {
	kind planKind
	// envelope is the prefilter envelope in the declared reference system.
	envelope *orb.Bound
	// ids contains the feature ids to look up directly.
	ids []string
}

// exact returns true if refs can be matched without loading feature blobs.
func (p plan) exact() bool {
	return p.kind == planUnfiltered || p.kind == planBBox || p.kind == planEmpty
}

// planFor returns the evaluation plan of the given filter.
func planFor(ft *schema.FeatureType, f filter.Filter) (plan, error) {
	switch v := f.(type) {
	case nil:
		return plan{kind: planUnfiltered}, nil
	case filter.ResourceID:
		ids := make([]string, len(v.IDs))
		for i, id := range v.IDs {
			ids[i] = id.ID
		}
		return plan{kind: planIDs, ids: ids}, nil
	case filter.And:
		for _, sub := range v {
			p, err := planFor(ft, sub)
			if err != nil {
				return plan{}, err
			}
			if p.envelope != nil {
				return plan{kind: planSpatial, envelope: p.envelope}, nil
			}
		}
		return plan{kind: planGeneral}, nil
	}
	if f == filter.Include {
		return plan{kind: planUnfiltered}, nil
	}
	if f == filter.Exclude {
		return plan{kind: planEmpty}, nil
	}
	attr := ft.DefaultGeometry()
	if attr == nil {
		return plan{kind: planGeneral}, nil
	}
	switch v := f.(type) {
	case filter.BBox:
		if v.Attribute != "" && v.Attribute != attr.Name {
			break
		}
		env, err := geom.TransformBound(v.Bound, v.CRS, feature.DeclaredCRS(attr))
		if err != nil {
			return plan{}, err
		}
		return plan{kind: planBBox, envelope: &env}, nil
	case filter.Intersects:
		if v.Attribute != "" && v.Attribute != attr.Name || v.Geometry == nil {
			break
		}
		g, err := geom.Transform(v.Geometry, v.CRS, feature.DeclaredCRS(attr))
		if err != nil {
			return plan{}, err
		}
		env := g.Bound()
		return plan{kind: planSpatial, envelope: &env}, nil
	}
	return plan{kind: planGeneral}, nil
}

// FeatureSource is a read view of one feature type bound to a snapshot and a query.
type FeatureSource struct {
	store *link.Store
	ft    *schema.FeatureType
	// ref is the ref of the feature tree carrying size and bounds metadata.
	ref object.Ref
	// tree is the feature tree, loaded on first use when nil.
	tree     *object.Tree
	treeLock sync.Mutex
	query    Query
	plan     plan

	lock      sync.Mutex
	count     *int64
	bounds    *orb.Bound
	hasBounds bool
}

func newFeatureSource(store *link.Store, ft *schema.FeatureType, ref object.Ref, tree *object.Tree, query Query) (*FeatureSource, error) {
	p, err := planFor(ft, query.Filter)
	if err != nil {
		return nil, err
	}
	if query.Filter == nil {
		query.Filter = filter.Include
	}
	return &FeatureSource{
		store: store,
		ft:    ft,
		ref:   ref,
		tree:  tree,
		query: query,
		plan:  p,
	}, nil
}

// Source returns a feature source reading the given type from the current head.
func (r *Repository) Source(ctx context.Context, name schema.Name, query Query) (*FeatureSource, error) {
	_, root, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ft, err := r.schemaAt(ctx, root, name)
	if err != nil {
		return nil, err
	}
	ref, ok, err := GetTreeChild(ctx, r.store, root, featuresPath(name))
	if err != nil {
		return nil, err
	}
	var tree *object.Tree
	if !ok {
		tree = object.NewTree()
		ref = tree.Ref(name.Local, nil)
	}
	return newFeatureSource(r.store, ft, ref, tree, query)
}

// Source returns a feature source reading the given type as seen by the transaction.
func (t *Transaction) Source(ctx context.Context, name schema.Name, query Query) (*FeatureSource, error) {
	if t.closed {
		return nil, ErrTransactionClosed
	}
	s, ok := t.staged[name]
	if !ok || len(s.order) == 0 {
		ft, err := t.repo.schemaAt(ctx, t.root, name)
		if err != nil {
			return nil, err
		}
		ref, ok, err := GetTreeChild(ctx, t.repo.store, t.root, featuresPath(name))
		if err != nil {
			return nil, err
		}
		var tree *object.Tree
		if !ok {
			tree = object.NewTree()
			ref = tree.Ref(name.Local, nil)
		}
		return newFeatureSource(t.repo.store, ft, ref, tree, query)
	}
	tree := s.view()
	return newFeatureSource(t.repo.store, s.ft, tree.Ref(name.Local, nil), tree, query)
}

// Schema returns the feature type of the source.
func (s *FeatureSource) Schema() *schema.FeatureType {
	return s.ft
}

// Query returns the query the source is bound to.
func (s *FeatureSource) Query() Query {
	return s.query
}

// Features returns a new iterator over the matching features.
func (s *FeatureSource) Features(ctx context.Context) *FeatureIterator {
	return newFeatureIterator(s, true)
}

// Count returns the number of matching features.
//
// The result is computed once and cached for the lifetime of the source.
func (s *FeatureSource) Count(ctx context.Context) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.count != nil {
		return *s.count, nil
	}
	var count int64
	if s.plan.kind == planUnfiltered {
		count = s.ref.Size
		if s.ref.Kind == object.KindBlob {
			count = 1
		}
		if s.query.MaxFeatures > 0 {
			count = min(count, int64(s.query.MaxFeatures))
		}
	} else {
		iter := newFeatureIterator(s, false)
		for iter.Next(ctx) {
			count++
		}
		if err := iter.Err(); err != nil {
			return 0, err
		}
	}
	s.count = &count
	return count, nil
}

// Bounds returns the envelope of all matching features in the query reference system.
//
// The second return value is false if no matching feature has a geometry.
// The result is computed once and cached for the lifetime of the source.
func (s *FeatureSource) Bounds(ctx context.Context) (orb.Bound, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.bounds != nil {
		return *s.bounds, s.hasBounds, nil
	}
	var bound orb.Bound
	var ok bool
	var err error
	if s.plan.kind == planUnfiltered && s.query.MaxFeatures == 0 && s.separable() {
		// the stored envelope is the union of every feature envelope
		if s.ref.Bounds != nil {
			bound, err = s.targetBound(*s.ref.Bounds)
			ok = err == nil
		}
	} else {
		iter := newFeatureIterator(s, false)
		for iter.Next(ctx) {
			ref := iter.Ref()
			if ref.Bounds == nil {
				continue
			}
			env, err := s.targetBound(*ref.Bounds)
			if err != nil {
				return orb.Bound{}, false, err
			}
			if !ok {
				bound, ok = env, true
			} else {
				bound = bound.Union(env)
			}
		}
		err = iter.Err()
	}
	if err != nil {
		return orb.Bound{}, false, err
	}
	s.bounds = &bound
	s.hasBounds = ok
	return bound, ok, nil
}

// targetBound transforms an envelope in the declared reference system into the query reference system.
func (s *FeatureSource) targetBound(b orb.Bound) (orb.Bound, error) {
	attr := s.ft.DefaultGeometry()
	if attr == nil {
		return b, nil
	}
	return geom.TransformBound(b, feature.DeclaredCRS(attr), s.query.CRS)
}

// separable returns true if the stored envelope of the type may be reprojected
// as a whole instead of feature by feature.
func (s *FeatureSource) separable() bool {
	attr := s.ft.DefaultGeometry()
	return attr == nil || geom.Separable(feature.DeclaredCRS(attr), s.query.CRS)
}

// loadTree returns the feature tree of the source.
func (s *FeatureSource) loadTree(ctx context.Context) (*object.Tree, error) {
	s.treeLock.Lock()
	defer s.treeLock.Unlock()

	if s.tree != nil {
		return s.tree, nil
	}
	tree, err := LoadTree(ctx, s.store, s.ref.Link)
	if err != nil {
		return nil, err
	}
	s.tree = tree
	return tree, nil
}

// loadFeature returns the decoded feature of the given blob ref reprojected for the query.
func (s *FeatureSource) loadFeature(ctx context.Context, ref object.Ref) (*feature.Feature, error) {
	node, err := s.store.Load(ctx, ref.Link, basicnode.Prototype.Any)
	if err != nil {
		return nil, err
	}
	f, err := feature.Decode(s.ft, ref.Name, ref.Link.String(), node)
	if err != nil {
		return nil, err
	}
	for i := range s.ft.Attributes {
		attr := &s.ft.Attributes[i]
		g := f.Geometry(attr.Name)
		if g == nil {
			continue
		}
		declared := feature.DeclaredCRS(attr)
		g, err = geom.Transform(g, f.AttributeCRS(attr.Name), declared)
		if err != nil {
			return nil, err
		}
		f.SetGeometry(attr.Name, g, declared)
	}
	return f, nil
}

// reproject transforms every geometry of the feature into the query reference system.
func (s *FeatureSource) reproject(f *feature.Feature) error {
	if s.query.CRS.IsZero() {
		return nil
	}
	for i := range s.ft.Attributes {
		attr := &s.ft.Attributes[i]
		g := f.Geometry(attr.Name)
		if g == nil {
			continue
		}
		out, err := geom.Transform(g, f.AttributeCRS(attr.Name), s.query.CRS)
		if err != nil {
			return err
		}
		f.SetGeometry(attr.Name, out, s.query.CRS)
	}
	return nil
}
