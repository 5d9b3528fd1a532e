package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/nasdf/geocapy/link"
	"github.com/nasdf/geocapy/object"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

const (
	// TypesTreeName is the name of the root entry containing feature type schemas.
	TypesTreeName = "types"
	// FeaturesTreeName is the name of the root entry containing feature trees.
	FeaturesTreeName = "features"
)

// LoadTree returns the tree with the given link.
func LoadTree(ctx context.Context, store *link.Store, lnk datamodel.Link) (*object.Tree, error) {
	node, err := store.Load(ctx, lnk, basicnode.Prototype.Any)
	if err != nil {
		return nil, err
	}
	return object.DecodeTree(node)
}

// StoreTree writes the given tree and returns its link.
func StoreTree(ctx context.Context, store *link.Store, tree *object.Tree) (datamodel.Link, error) {
	node, err := tree.Node()
	if err != nil {
		return nil, err
	}
	return store.Store(ctx, node)
}

// GetTreeChild returns the ref at the given path starting from the given tree.
//
// The second return value is false if any segment of the path does not exist.
func GetTreeChild(ctx context.Context, store *link.Store, tree *object.Tree, path []string) (object.Ref, bool, error) {
	current := tree
	for i, segment := range path {
		ref, ok := current.Get(segment)
		if !ok {
			return object.Ref{}, false, nil
		}
		if i == len(path)-1 {
			return ref, true, nil
		}
		if ref.Kind != object.KindTree {
			return object.Ref{}, false, conflictingPathKind(path[:i+1])
		}
		next, err := LoadTree(ctx, store, ref.Link)
		if err != nil {
			return object.Ref{}, false, err
		}
		current = next
	}
	return object.Ref{}, false, nil
}

// GetOrCreateSubTree returns the tree at the given path starting from the given tree.
//
// Missing trees along the path are created empty. The returned tree is owned by the
// caller and must be written back for changes to become visible.
func GetOrCreateSubTree(ctx context.Context, store *link.Store, tree *object.Tree, path []string) (*object.Tree, error) {
	current := tree.Clone()
	for i, segment := range path {
		ref, ok := current.Get(segment)
		if !ok {
			current = object.NewTree()
			continue
		}
		if ref.Kind != object.KindTree {
			return nil, conflictingPathKind(path[:i+1])
		}
		next, err := LoadTree(ctx, store, ref.Link)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// WriteBack stores the given subtree at the given path and rewrites every ancestor up to the root.
//
// Each ancestor is replaced by a new tree referencing the new child link. Entries that are
// not on the path keep their links. The original root is not modified.
func WriteBack(ctx context.Context, store *link.Store, root, subtree *object.Tree, path []string) (*object.Tree, datamodel.Link, error) {
	ancestors := make([]*object.Tree, len(path))
	current := root
	for i, segment := range path {
		ancestors[i] = current.Clone()
		if i == len(path)-1 {
			break
		}
		ref, ok := current.Get(segment)
		switch {
		case !ok:
			current = object.NewTree()
		case ref.Kind != object.KindTree:
			return nil, nil, conflictingPathKind(path[:i+1])
		default:
			next, err := LoadTree(ctx, store, ref.Link)
			if err != nil {
				return nil, nil, err
			}
			current = next
		}
	}
	child := subtree
	childLink, err := StoreTree(ctx, store, child)
	if err != nil {
		return nil, nil, err
	}
	for i := len(path) - 1; i >= 0; i-- {
		ancestors[i].Put(child.Ref(path[i], childLink))
		child = ancestors[i]
		childLink, err = StoreTree(ctx, store, child)
		if err != nil {
			return nil, nil, err
		}
	}
	return child, childLink, nil
}

func conflictingPathKind(path []string) error {
	return fmt.Errorf("%w: %s", ErrConflictingPathKind, strings.Join(path, "/"))
}
