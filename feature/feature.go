// Package feature contains feature records and their blob encoding.
package feature

import (
	"maps"

	"github.com/nasdf/geocapy/geom"
	"github.com/nasdf/geocapy/schema"

	"github.com/paulmach/orb"
)

// Feature is a single record of a feature type.
type Feature struct {
	// ID is the stable identifier of the feature within its type.
	ID string
	// Version is the content id of the feature blob. It is empty for features
	// that have not been stored yet.
	Version string
	// Type is the feature type describing the values.
	Type *schema.FeatureType
	// Values contains attribute values by attribute name.
	Values map[string]any
	// CRS contains the reference system attached to geometry values. Attributes
	// without an entry are in the declared reference system of their attribute.
	CRS map[string]geom.CRS
}

// New returns an empty feature of the given type.
func New(ft *schema.FeatureType) *Feature {
	return &Feature{
		Type:   ft,
		Values: make(map[string]any),
		CRS:    make(map[string]geom.CRS),
	}
}

// Get returns the value of the attribute with the given name.
func (f *Feature) Get(name string) any {
	return f.Values[name]
}

// Set sets the value of the attribute with the given name.
func (f *Feature) Set(name string, value any) {
	if f.Values == nil {
		f.Values = make(map[string]any)
	}
	f.Values[name] = value
}

// SetGeometry sets a geometry value together with the reference system it is expressed in.
func (f *Feature) SetGeometry(name string, g orb.Geometry, crs geom.CRS) {
	f.Set(name, g)
	if f.CRS == nil {
		f.CRS = make(map[string]geom.CRS)
	}
	f.CRS[name] = crs
}

// AttributeCRS returns the reference system of the geometry stored in the given attribute.
func (f *Feature) AttributeCRS(name string) geom.CRS {
	if crs, ok := f.CRS[name]; ok && !crs.IsZero() {
		return crs
	}
	if f.Type == nil {
		return geom.CRS{}
	}
	attr, ok := f.Type.Attribute(name)
	if !ok {
		return geom.CRS{}
	}
	return DeclaredCRS(attr)
}

// DeclaredCRS returns the reference system declared by a geometry attribute.
func DeclaredCRS(attr *schema.Attribute) geom.CRS {
	if attr == nil {
		return geom.CRS{}
	}
	return geom.CRS{Code: attr.Type.CRS, WKT: attr.Type.WKT}
}

// Geometry returns the geometry of the given attribute or nil if it is not set.
func (f *Feature) Geometry(name string) orb.Geometry {
	g, _ := f.Values[name].(orb.Geometry)
	return g
}

// DefaultGeometry returns the value of the default geometry attribute.
func (f *Feature) DefaultGeometry() orb.Geometry {
	if f.Type == nil {
		return nil
	}
	attr := f.Type.DefaultGeometry()
	if attr == nil {
		return nil
	}
	return f.Geometry(attr.Name)
}

// Bounds returns the envelope of the default geometry in the declared reference system
// of the default geometry attribute.
func (f *Feature) Bounds() (orb.Bound, bool, error) {
	g := f.DefaultGeometry()
	if g == nil {
		return orb.Bound{}, false, nil
	}
	attr := f.Type.DefaultGeometry()
	b := g.Bound()
	if b.IsEmpty() {
		return orb.Bound{}, false, nil
	}
	b, err := geom.TransformBound(b, f.AttributeCRS(attr.Name), DeclaredCRS(attr))
	if err != nil {
		return orb.Bound{}, false, err
	}
	return b, true, nil
}

// Clone returns a copy of the feature that can be modified independently.
//
// Geometries are deep copied.
func (f *Feature) Clone() *Feature {
	out := &Feature{
		ID:      f.ID,
		Version: f.Version,
		Type:    f.Type,
		Values:  make(map[string]any, len(f.Values)),
		CRS:     maps.Clone(f.CRS),
	}
	if out.CRS == nil {
		out.CRS = make(map[string]geom.CRS)
	}
	for k, v := range f.Values {
		if g, ok := v.(orb.Geometry); ok && g != nil {
			v = orb.Clone(g)
		}
		out.Values[k] = v
	}
	return out
}
