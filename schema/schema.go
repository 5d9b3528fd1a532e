// Package schema describes the feature types stored in a repository.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultNamespace is the namespace used for names without a prefix.
const DefaultNamespace = "default"

const (
	// XSDNamespace is the namespace of scalar attribute types.
	XSDNamespace = "http://www.w3.org/2001/XMLSchema"
	// GMLNamespace is the namespace of geometry attribute types.
	GMLNamespace = "http://www.opengis.net/gml"
)

// Unbounded is the MaxOccurs value for attributes without an upper limit.
const Unbounded = -1

// Binding is the Go value type an attribute is bound to.
type Binding string

const (
	BindingString          Binding = "string"
	BindingInt             Binding = "int64"
	BindingFloat           Binding = "float64"
	BindingBool            Binding = "bool"
	BindingTime            Binding = "time.Time"
	BindingGeometry        Binding = "orb.Geometry"
	BindingPoint           Binding = "orb.Point"
	BindingMultiPoint      Binding = "orb.MultiPoint"
	BindingLineString      Binding = "orb.LineString"
	BindingMultiLineString Binding = "orb.MultiLineString"
	BindingPolygon         Binding = "orb.Polygon"
	BindingMultiPolygon    Binding = "orb.MultiPolygon"
)

// typeNames contains the qualified type name of every known binding.
var typeNames = map[Binding]Name{
	BindingString:          {XSDNamespace, "string"},
	BindingInt:             {XSDNamespace, "long"},
	BindingFloat:           {XSDNamespace, "double"},
	BindingBool:            {XSDNamespace, "boolean"},
	BindingTime:            {XSDNamespace, "dateTime"},
	BindingGeometry:        {GMLNamespace, "GeometryPropertyType"},
	BindingPoint:           {GMLNamespace, "PointPropertyType"},
	BindingMultiPoint:      {GMLNamespace, "MultiPointPropertyType"},
	BindingLineString:      {GMLNamespace, "LineStringPropertyType"},
	BindingMultiLineString: {GMLNamespace, "MultiLineStringPropertyType"},
	BindingPolygon:         {GMLNamespace, "PolygonPropertyType"},
	BindingMultiPolygon:    {GMLNamespace, "MultiPolygonPropertyType"},
}

// IsGeometry returns true if the binding is a geometry type.
func (b Binding) IsGeometry() bool {
	return strings.HasPrefix(string(b), "orb.")
}

// Valid returns true if the binding is known.
func (b Binding) Valid() bool {
	_, ok := typeNames[b]
	return ok
}

// Name is a namespace qualified name.
type Name struct {
	Namespace string
	Local     string
}

// ParseName returns the name for a string of the form namespace:Local.
//
// The namespace is everything before the last colon so URI namespaces are allowed.
func ParseName(s string) Name {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return Name{Namespace: DefaultNamespace, Local: s}
	}
	return Name{Namespace: s[:i], Local: s[i+1:]}
}

func (n Name) String() string {
	return n.Namespace + ":" + n.Local
}

// AttributeType describes the value type of an attribute.
type AttributeType struct {
	Namespace string
	Name      string
	Binding   Binding
	// CRS is the reference system code of geometry values.
	CRS string
	// WKT is the reference system definition used when no code is known.
	WKT string
}

// TypeOf returns the default attribute type for the given binding.
func TypeOf(b Binding) AttributeType {
	name := typeNames[b]
	return AttributeType{
		Namespace: name.Namespace,
		Name:      name.Local,
		Binding:   b,
	}
}

// Attribute describes a single property of a feature type.
type Attribute struct {
	Namespace string
	Name      string
	Type      AttributeType
	Nillable  bool
	MinOccurs int64
	MaxOccurs int64
}

// IsGeometry returns true if the attribute holds geometries.
func (a *Attribute) IsGeometry() bool {
	return a.Type.Binding.IsGeometry()
}

// FeatureType describes the attributes of a kind of feature.
type FeatureType struct {
	Name       Name
	Attributes []Attribute
}

// Attribute returns the attribute with the given name.
func (ft *FeatureType) Attribute(name string) (*Attribute, bool) {
	for i := range ft.Attributes {
		if ft.Attributes[i].Name == name {
			return &ft.Attributes[i], true
		}
	}
	return nil, false
}

// DefaultGeometry returns the first geometry attribute or nil if there is none.
func (ft *FeatureType) DefaultGeometry() *Attribute {
	for i := range ft.Attributes {
		if ft.Attributes[i].IsGeometry() {
			return &ft.Attributes[i]
		}
	}
	return nil
}

// Validate returns an error if the feature type is not well formed.
func (ft *FeatureType) Validate() error {
	if ft.Name.Local == "" || ft.Name.Namespace == "" {
		return fmt.Errorf("invalid feature type name %q", ft.Name)
	}
	if strings.Contains(ft.Name.Local, ":") {
		return fmt.Errorf("invalid feature type name %q", ft.Name)
	}
	seen := make(map[string]struct{}, len(ft.Attributes))
	var errs []error
	for _, a := range ft.Attributes {
		if a.Name == "" {
			errs = append(errs, errors.New("attribute name is required"))
			continue
		}
		if _, ok := seen[a.Name]; ok {
			errs = append(errs, fmt.Errorf("duplicate attribute %s", a.Name))
		}
		seen[a.Name] = struct{}{}
		if !a.Type.Binding.Valid() {
			errs = append(errs, fmt.Errorf("attribute %s has unsupported binding %q", a.Name, a.Type.Binding))
		}
		if a.MaxOccurs != Unbounded && a.MaxOccurs < a.MinOccurs {
			errs = append(errs, fmt.Errorf("attribute %s has maxOccurs lower than minOccurs", a.Name))
		}
	}
	return errors.Join(errs...)
}
