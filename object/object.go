package object

import (
	"errors"
	"fmt"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	"github.com/paulmach/orb"
)

// Kind is the kind of object a Ref points to.
type Kind int

const (
	// KindTree is a directory like object containing other refs.
	KindTree Kind = iota
	// KindBlob is a leaf object such as a feature or schema.
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind returns the Kind matching the given name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "tree":
		return KindTree, nil
	case "blob":
		return KindBlob, nil
	default:
		return 0, fmt.Errorf("invalid object kind %s", s)
	}
}

// Ref is a named pointer to an object.
//
// A Ref with Bounds set is a spatial ref. The bounds of a blob ref is the
// envelope of the feature it points to and the bounds of a tree ref is the
// union of the bounds of its entries.
type Ref struct {
	// Name is the path segment of the ref within its parent tree.
	Name string
	// Kind is the kind of object the ref points to.
	Kind Kind
	// Link is the content id of the object.
	Link datamodel.Link
	// Size is the number of blobs reachable from a tree ref.
	Size int64
	// Bounds is the optional precomputed envelope.
	Bounds *orb.Bound
}

// IsSpatial returns true if the ref carries a precomputed envelope.
func (r Ref) IsSpatial() bool {
	return r.Bounds != nil
}

// count returns the number of blobs the ref accounts for.
func (r Ref) count() int64 {
	if r.Kind == KindBlob {
		return 1
	}
	return r.Size
}

func assembleBounds(b orb.Bound) qp.Assemble {
	return qp.List(4, func(la datamodel.ListAssembler) {
		qp.ListEntry(la, qp.Float(b.Min[0]))
		qp.ListEntry(la, qp.Float(b.Min[1]))
		qp.ListEntry(la, qp.Float(b.Max[0]))
		qp.ListEntry(la, qp.Float(b.Max[1]))
	})
}

func decodeBounds(n datamodel.Node) (*orb.Bound, error) {
	if n.Length() != 4 {
		return nil, errors.New("bounds must contain exactly four values")
	}
	var values [4]float64
	for i := range values {
		v, err := n.LookupByIndex(int64(i))
		if err != nil {
			return nil, err
		}
		values[i], err = v.AsFloat()
		if err != nil {
			return nil, err
		}
	}
	return &orb.Bound{
		Min: orb.Point{values[0], values[1]},
		Max: orb.Point{values[2], values[3]},
	}, nil
}

// lookupOptional returns the value for the given key or nil if it does not exist.
func lookupOptional(n datamodel.Node, key string) (datamodel.Node, error) {
	v, err := n.LookupByString(key)
	var notExists datamodel.ErrNotExists
	if errors.As(err, &notExists) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	return v, nil
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

func lookupLink(n datamodel.Node, key string) (datamodel.Link, error) {
	v, err := n.LookupByString(key)
	if err != nil {
		return nil, err
	}
	return v.AsLink()
}
