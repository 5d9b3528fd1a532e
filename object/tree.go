package object

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/paulmach/orb"
)

const (
	treeEntriesField = "entries"
	treeSizeField    = "size"
	treeBoundsField  = "bounds"
	refNameField     = "name"
	refKindField     = "kind"
	refLinkField     = "link"
	refSizeField     = "size"
	refBoundsField   = "bounds"
)

// Tree is a directory snapshot mapping names to refs.
//
// Entries are kept sorted by name so equal trees always encode to the same bytes.
// A decoded Tree is owned by the caller and can be modified freely.
type Tree struct {
	entries []Ref
}

// NewTree returns a new empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Len returns the number of entries in the tree.
func (t *Tree) Len() int {
	return len(t.entries)
}

// Entries returns the entries of the tree sorted by name.
//
// The returned slice must not be modified.
func (t *Tree) Entries() []Ref {
	return t.entries
}

func (t *Tree) search(name string) (int, bool) {
	return slices.BinarySearchFunc(t.entries, name, func(r Ref, name string) int {
		return strings.Compare(r.Name, name)
	})
}

// Get returns the entry with the given name.
func (t *Tree) Get(name string) (Ref, bool) {
	i, ok := t.search(name)
	if !ok {
		return Ref{}, false
	}
	return t.entries[i], true
}

// Put inserts or replaces the entry with the same name as the given ref.
func (t *Tree) Put(ref Ref) {
	i, ok := t.search(ref.Name)
	if ok {
		t.entries[i] = ref
		return
	}
	t.entries = slices.Insert(t.entries, i, ref)
}

// Remove deletes the entry with the given name and returns true if it existed.
func (t *Tree) Remove(name string) bool {
	i, ok := t.search(name)
	if !ok {
		return false
	}
	t.entries = slices.Delete(t.entries, i, i+1)
	return true
}

// Clone returns a copy of the tree that can be modified independently.
func (t *Tree) Clone() *Tree {
	return &Tree{entries: slices.Clone(t.entries)}
}

// Size returns the number of blobs reachable from this tree.
func (t *Tree) Size() int64 {
	var size int64
	for _, e := range t.entries {
		size += e.count()
	}
	return size
}

// Bounds returns the union of all entry bounds.
func (t *Tree) Bounds() (orb.Bound, bool) {
	var bound orb.Bound
	var ok bool
	for _, e := range t.entries {
		if e.Bounds == nil {
			continue
		}
		if !ok {
			bound, ok = *e.Bounds, true
		} else {
			bound = bound.Union(*e.Bounds)
		}
	}
	return bound, ok
}

// Ref returns a tree ref with the given name pointing to this tree at the given link.
func (t *Tree) Ref(name string, lnk datamodel.Link) Ref {
	ref := Ref{
		Name: name,
		Kind: KindTree,
		Link: lnk,
		Size: t.Size(),
	}
	if b, ok := t.Bounds(); ok {
		ref.Bounds = &b
	}
	return ref
}

// Node returns the IPLD node representation of the tree.
func (t *Tree) Node() (datamodel.Node, error) {
	bounds, hasBounds := t.Bounds()
	return qp.BuildMap(basicnode.Prototype.Map, 3, func(ma datamodel.MapAssembler) {
		qp.MapEntry(ma, treeSizeField, qp.Int(t.Size()))
		if hasBounds {
			qp.MapEntry(ma, treeBoundsField, assembleBounds(bounds))
		}
		qp.MapEntry(ma, treeEntriesField, qp.List(int64(len(t.entries)), func(la datamodel.ListAssembler) {
			for _, e := range t.entries {
				qp.ListEntry(la, assembleRef(e))
			}
		}))
	})
}

func assembleRef(r Ref) qp.Assemble {
	return qp.Map(5, func(ma datamodel.MapAssembler) {
		qp.MapEntry(ma, refNameField, qp.String(r.Name))
		qp.MapEntry(ma, refKindField, qp.String(r.Kind.String()))
		qp.MapEntry(ma, refLinkField, qp.Link(r.Link))
		if r.Kind == KindTree {
			qp.MapEntry(ma, refSizeField, qp.Int(r.Size))
		}
		if r.Bounds != nil {
			qp.MapEntry(ma, refBoundsField, assembleBounds(*r.Bounds))
		}
	})
}

// DecodeTree returns the tree represented by the given node.
func DecodeTree(n datamodel.Node) (*Tree, error) {
	entriesNode, err := n.LookupByString(treeEntriesField)
	if err != nil {
		return nil, fmt.Errorf("invalid tree: %w", err)
	}
	tree := &Tree{
		entries: make([]Ref, 0, entriesNode.Length()),
	}
	iter := entriesNode.ListIterator()
	for iter != nil && !iter.Done() {
		_, v, err := iter.Next()
		if err != nil {
			return nil, err
		}
		ref, err := decodeRef(v)
		if err != nil {
			return nil, fmt.Errorf("invalid tree entry: %w", err)
		}
		tree.entries = append(tree.entries, ref)
	}
	return tree, nil
}

func decodeRef(n datamodel.Node) (Ref, error) {
	name, err := lookupString(n, refNameField)
	if err != nil {
		return Ref{}, err
	}
	kindName, err := lookupString(n, refKindField)
	if err != nil {
		return Ref{}, err
	}
	kind, err := ParseKind(kindName)
	if err != nil {
		return Ref{}, err
	}
	lnk, err := lookupLink(n, refLinkField)
	if err != nil {
		return Ref{}, err
	}
	ref := Ref{
		Name: name,
		Kind: kind,
		Link: lnk,
	}
	if kind == KindTree {
		ref.Size, err = lookupInt(n, refSizeField)
		if err != nil {
			return Ref{}, err
		}
	}
	boundsNode, err := lookupOptional(n, refBoundsField)
	if err != nil {
		return Ref{}, err
	}
	if boundsNode != nil {
		ref.Bounds, err = decodeBounds(boundsNode)
		if err != nil {
			return Ref{}, err
		}
	}
	return ref, nil
}
