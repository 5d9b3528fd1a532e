package feature

import (
	"fmt"
	"time"

	"github.com/nasdf/geocapy/geom"
	"github.com/nasdf/geocapy/schema"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

const (
	geometryWKBField = "wkb"
	geometryCRSField = "crs"
)

// Node returns the blob representation of the feature.
//
// The feature id is not part of the blob so renaming a feature keeps its content id.
// Values must already be normalized.
func (f *Feature) Node() (datamodel.Node, error) {
	assemblers := make(map[string]qp.Assemble, len(f.Type.Attributes))
	for i := range f.Type.Attributes {
		attr := &f.Type.Attributes[i]
		value, err := f.assembleValue(attr)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", attr.Name, err)
		}
		assemblers[attr.Name] = value
	}
	return qp.BuildMap(basicnode.Prototype.Map, int64(len(assemblers)), func(ma datamodel.MapAssembler) {
		for _, attr := range f.Type.Attributes {
			qp.MapEntry(ma, attr.Name, assemblers[attr.Name])
		}
	})
}

func (f *Feature) assembleValue(attr *schema.Attribute) (qp.Assemble, error) {
	value := f.Values[attr.Name]
	if value == nil {
		return qp.Null(), nil
	}
	switch v := value.(type) {
	case string:
		return qp.String(v), nil
	case int64:
		return qp.Int(v), nil
	case float64:
		return qp.Float(v), nil
	case bool:
		return qp.Bool(v), nil
	case time.Time:
		return qp.String(v.UTC().Format(time.RFC3339Nano)), nil
	case orb.Geometry:
		data, err := wkb.Marshal(v)
		if err != nil {
			return nil, err
		}
		crs := f.AttributeCRS(attr.Name)
		return qp.Map(2, func(ma datamodel.MapAssembler) {
			qp.MapEntry(ma, geometryWKBField, qp.Bytes(data))
			qp.MapEntry(ma, geometryCRSField, qp.String(crs.String()))
		}), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

// Decode returns the feature of the given type represented by the given blob node.
func Decode(ft *schema.FeatureType, id, version string, n datamodel.Node) (*Feature, error) {
	f := New(ft)
	f.ID = id
	f.Version = version
	for i := range ft.Attributes {
		attr := &ft.Attributes[i]
		v, err := n.LookupByString(attr.Name)
		if _, ok := err.(datamodel.ErrNotExists); ok {
			f.Values[attr.Name] = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		value, err := decodeValue(f, attr, v)
		if err != nil {
			return nil, fmt.Errorf("feature %s attribute %s: %w", id, attr.Name, err)
		}
		f.Values[attr.Name] = value
	}
	return f, nil
}

func decodeValue(f *Feature, attr *schema.Attribute, n datamodel.Node) (any, error) {
	if n.IsNull() {
		return nil, nil
	}
	switch attr.Type.Binding {
	case schema.BindingString:
		return n.AsString()
	case schema.BindingInt:
		return n.AsInt()
	case schema.BindingFloat:
		if n.Kind() == datamodel.Kind_Int {
			i, err := n.AsInt()
			return float64(i), err
		}
		return n.AsFloat()
	case schema.BindingBool:
		return n.AsBool()
	case schema.BindingTime:
		s, err := n.AsString()
		if err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	if !attr.IsGeometry() {
		return nil, fmt.Errorf("unsupported binding %s", attr.Type.Binding)
	}
	wkbNode, err := n.LookupByString(geometryWKBField)
	if err != nil {
		return nil, err
	}
	data, err := wkbNode.AsBytes()
	if err != nil {
		return nil, err
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if crsNode, err := n.LookupByString(geometryCRSField); err == nil {
		code, err := crsNode.AsString()
		if err != nil {
			return nil, err
		}
		if code != "" {
			f.CRS[attr.Name] = geom.Parse(code)
		}
	}
	return g, nil
}
