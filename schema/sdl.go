package schema

import (
	"fmt"
	"slices"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// prelude declares the geometry scalars and directives available to feature type definitions.
var prelude = &ast.Source{
	Name:    "prelude.graphql",
	BuiltIn: true,
	Input: `
scalar DateTime
scalar Geometry
scalar Point
scalar MultiPoint
scalar LineString
scalar MultiLineString
scalar Polygon
scalar MultiPolygon

"Sets the coordinate reference system of a geometry attribute."
directive @crs(code: String, wkt: String) on FIELD_DEFINITION

"Sets the namespace of a feature type."
directive @namespace(uri: String!) on OBJECT
`,
}

// scalarBindings maps GraphQL scalar names to attribute bindings.
var scalarBindings = map[string]Binding{
	"ID":              BindingString,
	"String":          BindingString,
	"Int":             BindingInt,
	"Float":           BindingFloat,
	"Boolean":         BindingBool,
	"DateTime":        BindingTime,
	"Geometry":        BindingGeometry,
	"Point":           BindingPoint,
	"MultiPoint":      BindingMultiPoint,
	"LineString":      BindingLineString,
	"MultiLineString": BindingMultiLineString,
	"Polygon":         BindingPolygon,
	"MultiPolygon":    BindingMultiPolygon,
}

// DefaultCRS is assigned to geometry attributes declared without a @crs directive.
const DefaultCRS = "EPSG:4326"

// ParseSDL returns the feature types declared as object types in the given GraphQL source.
//
// Types without a @namespace directive are placed in the given namespace.
// Types are returned in declaration order.
func ParseSDL(namespace, source string) ([]*FeatureType, error) {
	s, err := gqlparser.LoadSchema(prelude, &ast.Source{
		Name:  "schema.graphql",
		Input: source,
	})
	if err != nil {
		return nil, err
	}
	var defs []*ast.Definition
	for _, d := range s.Types {
		if !d.BuiltIn && d.Kind == ast.Object {
			defs = append(defs, d)
		}
	}
	slices.SortFunc(defs, func(a, b *ast.Definition) int {
		return comparePosition(a.Position, b.Position)
	})
	types := make([]*FeatureType, 0, len(defs))
	for _, d := range defs {
		ft, err := featureTypeFromDefinition(namespace, d)
		if err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	return types, nil
}

func comparePosition(a, b *ast.Position) int {
	if a == nil || b == nil {
		return 0
	}
	if a.Line != b.Line {
		return a.Line - b.Line
	}
	return a.Column - b.Column
}

func featureTypeFromDefinition(namespace string, d *ast.Definition) (*FeatureType, error) {
	if dir := d.Directives.ForName("namespace"); dir != nil {
		namespace = directiveArgument(dir, "uri")
	}
	ft := &FeatureType{
		Name: Name{Namespace: namespace, Local: d.Name},
	}
	for _, field := range d.Fields {
		if field.Type.Elem != nil {
			return nil, fmt.Errorf("%s.%s: list attributes are not supported", d.Name, field.Name)
		}
		binding, ok := scalarBindings[field.Type.NamedType]
		if !ok {
			return nil, fmt.Errorf("%s.%s: unsupported attribute type %s", d.Name, field.Name, field.Type.NamedType)
		}
		attr := Attribute{
			Namespace: namespace,
			Name:      field.Name,
			Type:      TypeOf(binding),
			Nillable:  !field.Type.NonNull,
			MaxOccurs: 1,
		}
		if field.Type.NonNull {
			attr.MinOccurs = 1
		}
		if binding.IsGeometry() {
			attr.Type.CRS = DefaultCRS
		}
		if dir := field.Directives.ForName("crs"); dir != nil {
			attr.Type.CRS = directiveArgument(dir, "code")
			attr.Type.WKT = directiveArgument(dir, "wkt")
		}
		ft.Attributes = append(ft.Attributes, attr)
	}
	return ft, ft.Validate()
}

func directiveArgument(d *ast.Directive, name string) string {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return ""
	}
	return arg.Value.Raw
}
