package schema

import (
	"errors"
	"fmt"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

// ClassField is the document key holding the class tag.
const ClassField = "type/class"

// FeatureTypeClass is the class tag of encoded feature types.
const FeatureTypeClass = "FeatureType"

const (
	namespaceField  = "namespace"
	nameField       = "name"
	attributesField = "attributes"
	nillableField   = "nillable"
	minOccursField  = "minOccurs"
	maxOccursField  = "maxOccurs"
	typeField       = "type"
	bindingField    = "binding"
	crsField        = "crs"
	wktField        = "wkt"
)

var ErrInvalidDocument = errors.New("invalid feature type document")

// Node returns the tagged document representation of the feature type.
func (ft *FeatureType) Node() (datamodel.Node, error) {
	return qp.BuildMap(basicnode.Prototype.Map, 4, func(ma datamodel.MapAssembler) {
		qp.MapEntry(ma, ClassField, qp.String(FeatureTypeClass))
		qp.MapEntry(ma, namespaceField, qp.String(ft.Name.Namespace))
		qp.MapEntry(ma, nameField, qp.String(ft.Name.Local))
		qp.MapEntry(ma, attributesField, qp.List(int64(len(ft.Attributes)), func(la datamodel.ListAssembler) {
			for _, a := range ft.Attributes {
				qp.ListEntry(la, assembleAttribute(a))
			}
		}))
	})
}

func assembleAttribute(a Attribute) qp.Assemble {
	return qp.Map(6, func(ma datamodel.MapAssembler) {
		qp.MapEntry(ma, nillableField, qp.Bool(a.Nillable))
		qp.MapEntry(ma, namespaceField, qp.String(a.Namespace))
		qp.MapEntry(ma, nameField, qp.String(a.Name))
		qp.MapEntry(ma, maxOccursField, qp.Int(a.MaxOccurs))
		qp.MapEntry(ma, minOccursField, qp.Int(a.MinOccurs))
		qp.MapEntry(ma, typeField, qp.Map(4, func(ma datamodel.MapAssembler) {
			qp.MapEntry(ma, namespaceField, qp.String(a.Type.Namespace))
			qp.MapEntry(ma, nameField, qp.String(a.Type.Name))
			qp.MapEntry(ma, bindingField, qp.String(string(a.Type.Binding)))
			switch {
			case a.Type.CRS != "":
				qp.MapEntry(ma, crsField, qp.String(a.Type.CRS))
			case a.Type.WKT != "":
				qp.MapEntry(ma, wktField, qp.String(a.Type.WKT))
			}
		}))
	})
}

// Decode returns the feature type represented by the given tagged document.
func Decode(n datamodel.Node) (*FeatureType, error) {
	class, err := lookupString(n, ClassField)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if class != FeatureTypeClass {
		return nil, fmt.Errorf("%w: unexpected class %s", ErrInvalidDocument, class)
	}
	var ft FeatureType
	ft.Name.Namespace, err = lookupString(n, namespaceField)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	ft.Name.Local, err = lookupString(n, nameField)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	attributes, err := n.LookupByString(attributesField)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	iter := attributes.ListIterator()
	for iter != nil && !iter.Done() {
		_, v, err := iter.Next()
		if err != nil {
			return nil, err
		}
		a, err := decodeAttribute(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		ft.Attributes = append(ft.Attributes, a)
	}
	return &ft, nil
}

func decodeAttribute(n datamodel.Node) (Attribute, error) {
	var a Attribute
	var err error

	nillable, err := n.LookupByString(nillableField)
	if err != nil {
		return a, err
	}
	a.Nillable, err = nillable.AsBool()
	if err != nil {
		return a, err
	}
	a.Namespace, err = lookupString(n, namespaceField)
	if err != nil {
		return a, err
	}
	a.Name, err = lookupString(n, nameField)
	if err != nil {
		return a, err
	}
	a.MinOccurs, err = lookupInt(n, minOccursField)
	if err != nil {
		return a, err
	}
	a.MaxOccurs, err = lookupInt(n, maxOccursField)
	if err != nil {
		return a, err
	}
	t, err := n.LookupByString(typeField)
	if err != nil {
		return a, err
	}
	a.Type.Namespace, err = lookupString(t, namespaceField)
	if err != nil {
		return a, err
	}
	a.Type.Name, err = lookupString(t, nameField)
	if err != nil {
		return a, err
	}
	binding, err := lookupString(t, bindingField)
	if err != nil {
		return a, err
	}
	a.Type.Binding = Binding(binding)
	if crs, err := t.LookupByString(crsField); err == nil {
		a.Type.CRS, err = crs.AsString()
		if err != nil {
			return a, err
		}
	}
	if wkt, err := t.LookupByString(wktField); err == nil {
		a.Type.WKT, err = wkt.AsString()
		if err != nil {
			return a, err
		}
	}
	return a, nil
}

// MarshalJSON returns the tagged document encoded as dag-json.
func (ft *FeatureType) MarshalJSON() ([]byte, error) {
	n, err := ft.Node()
	if err != nil {
		return nil, err
	}
	return ipld.Encode(n, dagjson.Encode)
}

// UnmarshalJSON decodes a dag-json tagged document into the feature type.
func (ft *FeatureType) UnmarshalJSON(data []byte) error {
	n, err := ipld.Decode(data, dagjson.Decode)
	if err != nil {
		return err
	}
	out, err := Decode(n)
	if err != nil {
		return err
	}
	*ft = *out
	return nil
}

func lookupString(n datamodel.Node, key string) (string, error) {
	v, err := n.LookupByString(key)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func lookupInt(n datamodel.Node, key string) (int64, error) {
	v, err := n.LookupByString(key)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}
