// Package filter contains predicates used to select features.
package filter

import (
	"cmp"
	"fmt"
	"time"

	"github.com/nasdf/geocapy/feature"
	"github.com/nasdf/geocapy/geom"

	"github.com/paulmach/orb"
)

// Filter is a predicate over features.
type Filter interface {
	// Evaluate returns true if the feature matches the filter.
	Evaluate(f *feature.Feature) (bool, error)
}

type include struct{}

func (include) Evaluate(*feature.Feature) (bool, error) { return true, nil }

type exclude struct{}

func (exclude) Evaluate(*feature.Feature) (bool, error) { return false, nil }

var (
	// Include matches every feature.
	Include Filter = include{}
	// Exclude matches no feature.
	Exclude Filter = exclude{}
)

// Operator is a comparison operator.
type Operator string

const (
	Equal          Operator = "eq"
	NotEqual       Operator = "neq"
	Greater        Operator = "gt"
	GreaterOrEqual Operator = "gte"
	Less           Operator = "lt"
	LessOrEqual    Operator = "lte"
)

// Compare matches features whose attribute compares to a value.
type Compare struct {
	Attribute string
	Op        Operator
	Value     any
}

func (c Compare) Evaluate(f *feature.Feature) (bool, error) {
	value := f.Get(c.Attribute)
	if value == nil || c.Value == nil {
		match := value == nil && c.Value == nil
		if c.Op == NotEqual {
			return !match, nil
		}
		return match && (c.Op == Equal || c.Op == GreaterOrEqual || c.Op == LessOrEqual), nil
	}
	if c.Op == Equal || c.Op == NotEqual {
		eq, err := equal(value, c.Value)
		if err != nil {
			return false, err
		}
		return eq == (c.Op == Equal), nil
	}
	res, err := compare(value, c.Value)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case Greater:
		return res > 0, nil
	case GreaterOrEqual:
		return res >= 0, nil
	case Less:
		return res < 0, nil
	case LessOrEqual:
		return res <= 0, nil
	default:
		return false, fmt.Errorf("invalid filter operator %s", c.Op)
	}
}

// In matches features whose attribute equals one of the values.
type In struct {
	Attribute string
	Values    []any
}

func (in In) Evaluate(f *feature.Feature) (bool, error) {
	value := f.Get(in.Attribute)
	if value == nil {
		return false, nil
	}
	for _, v := range in.Values {
		if v == nil {
			continue
		}
		eq, err := equal(value, v)
		if err != nil || eq {
			return eq, err
		}
	}
	return false, nil
}

// And matches features matching all of its filters.
type And []Filter

func (a And) Evaluate(f *feature.Feature) (bool, error) {
	for _, sub := range a {
		match, err := sub.Evaluate(f)
		if err != nil || !match {
			return false, err
		}
	}
	return true, nil
}

// Or matches features matching any of its filters.
type Or []Filter

func (o Or) Evaluate(f *feature.Feature) (bool, error) {
	for _, sub := range o {
		match, err := sub.Evaluate(f)
		if err != nil || match {
			return match, err
		}
	}
	return false, nil
}

// Not matches features not matching its filter.
type Not struct {
	Filter Filter
}

func (n Not) Evaluate(f *feature.Feature) (bool, error) {
	match, err := n.Filter.Evaluate(f)
	if err != nil {
		return false, err
	}
	return !match, nil
}

// BBox matches features whose geometry envelope intersects a bounding box.
//
// An empty Attribute refers to the default geometry. A zero CRS means the
// bounding box is in the declared reference system of the attribute.
type BBox struct {
	Attribute string
	Bound     orb.Bound
	CRS       geom.CRS
}

func (b BBox) Evaluate(f *feature.Feature) (bool, error) {
	name := geometryAttribute(f, b.Attribute)
	g := f.Geometry(name)
	if g == nil {
		return false, nil
	}
	bound, err := geom.TransformBound(b.Bound, b.CRS, f.AttributeCRS(name))
	if err != nil {
		return false, err
	}
	env := g.Bound()
	return !env.IsEmpty() && env.Intersects(bound), nil
}

// Intersects matches features whose geometry intersects a geometry.
//
// An empty Attribute refers to the default geometry.
type Intersects struct {
	Attribute string
	Geometry  orb.Geometry
	CRS       geom.CRS
}

func (i Intersects) Evaluate(f *feature.Feature) (bool, error) {
	name := geometryAttribute(f, i.Attribute)
	g := f.Geometry(name)
	if g == nil {
		return false, nil
	}
	other, err := geom.Transform(i.Geometry, i.CRS, f.AttributeCRS(name))
	if err != nil {
		return false, err
	}
	return geom.Intersects(g, other), nil
}

// FeatureID identifies a feature and optionally the version it is expected to have.
type FeatureID struct {
	ID      string
	Version string
}

// ResourceID matches features by id.
type ResourceID struct {
	IDs []FeatureID
}

// IDs returns a ResourceID filter matching the given unversioned ids.
func IDs(ids ...string) ResourceID {
	out := ResourceID{IDs: make([]FeatureID, len(ids))}
	for i, id := range ids {
		out.IDs[i] = FeatureID{ID: id}
	}
	return out
}

func (r ResourceID) Evaluate(f *feature.Feature) (bool, error) {
	for _, id := range r.IDs {
		if id.ID == f.ID {
			return true, nil
		}
	}
	return false, nil
}

func geometryAttribute(f *feature.Feature, name string) string {
	if name != "" || f.Type == nil {
		return name
	}
	if attr := f.Type.DefaultGeometry(); attr != nil {
		return attr.Name
	}
	return ""
}

func equal(a, b any) (bool, error) {
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return false, fmt.Errorf("cannot compare %T to %T", a, b)
		}
		return ab == bb, nil
	}
	res, err := compare(a, b)
	if err != nil {
		return false, err
	}
	return res == 0, nil
}

func compare(a, b any) (int, error) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T to %T", a, b)
		}
		return cmp.Compare(av, bv), nil
	case time.Time:
		bv, err := asTime(b)
		if err != nil {
			return 0, err
		}
		return av.Compare(bv), nil
	}
	if ai, ok := a.(int64); ok {
		if bi, ok := asInt(b); ok {
			return cmp.Compare(ai, bi), nil
		}
	}
	af, ok := asFloat(a)
	if !ok {
		return 0, fmt.Errorf("cannot compare %T", a)
	}
	bf, ok := asFloat(b)
	if !ok {
		return 0, fmt.Errorf("cannot compare %T to %T", a, b)
	}
	return cmp.Compare(af, bf), nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	i, ok := asInt(v)
	return float64(i), ok
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	default:
		return time.Time{}, fmt.Errorf("cannot compare time.Time to %T", v)
	}
}
