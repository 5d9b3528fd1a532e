package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nasdf/geocapy/object"
	"github.com/nasdf/geocapy/schema"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

// CreateSchema registers the given feature type and provisions its empty feature tree.
func (r *Repository) CreateSchema(ctx context.Context, ft *schema.FeatureType) error {
	return r.createSchemas(ctx, ft)
}

// CreateSchemaSDL registers every feature type declared in the given GraphQL source.
//
// All types are created in a single commit.
func (r *Repository) CreateSchemaSDL(ctx context.Context, namespace, source string) ([]*schema.FeatureType, error) {
	types, err := schema.ParseSDL(namespace, source)
	if err != nil {
		return nil, err
	}
	if err := r.createSchemas(ctx, types...); err != nil {
		return nil, err
	}
	return types, nil
}

func (r *Repository) createSchemas(ctx context.Context, types ...*schema.FeatureType) error {
	if len(types) == 0 {
		return errors.New("no feature types to create")
	}
	names := make([]string, len(types))
	for i, ft := range types {
		if err := ft.Validate(); err != nil {
			return err
		}
		names[i] = ft.Name.String()
	}
	meta := Metadata{Message: "create schema " + strings.Join(names, ", ")}
	commitLink, err := r.update(ctx, meta, func(root *object.Tree) (*object.Tree, datamodel.Link, error) {
		var rootLink datamodel.Link
		for _, ft := range types {
			_, exists, err := GetTreeChild(ctx, r.store, root, typePath(ft.Name))
			if err != nil {
				return nil, nil, err
			}
			if exists {
				return nil, nil, fmt.Errorf("schema %s %w", ft.Name, ErrAlreadyExists)
			}
			node, err := ft.Node()
			if err != nil {
				return nil, nil, err
			}
			schemaLink, err := r.store.Store(ctx, node)
			if err != nil {
				return nil, nil, err
			}
			namespacePath := []string{TypesTreeName, ft.Name.Namespace}
			namespaceTree, err := GetOrCreateSubTree(ctx, r.store, root, namespacePath)
			if err != nil {
				return nil, nil, err
			}
			namespaceTree.Put(object.Ref{Name: ft.Name.Local, Kind: object.KindBlob, Link: schemaLink})
			root, _, err = WriteBack(ctx, r.store, root, namespaceTree, namespacePath)
			if err != nil {
				return nil, nil, err
			}
			features, err := GetOrCreateSubTree(ctx, r.store, root, featuresPath(ft.Name))
			if err != nil {
				return nil, nil, err
			}
			root, rootLink, err = WriteBack(ctx, r.store, root, features, featuresPath(ft.Name))
			if err != nil {
				return nil, nil, err
			}
		}
		return root, rootLink, nil
	})
	if err != nil {
		return err
	}
	r.log.WithField("schema", names).WithField("commit", commitLink.String()).Info("created schema")
	return nil
}

// DropSchema removes the feature type with the given name and all of its features.
func (r *Repository) DropSchema(ctx context.Context, name schema.Name) error {
	meta := Metadata{Message: "drop schema " + name.String()}
	commitLink, err := r.update(ctx, meta, func(root *object.Tree) (*object.Tree, datamodel.Link, error) {
		_, exists, err := GetTreeChild(ctx, r.store, root, typePath(name))
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			return nil, nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
		}
		var rootLink datamodel.Link
		for _, path := range [][]string{typePath(name), featuresPath(name)} {
			parentPath := path[:len(path)-1]
			parent, err := GetOrCreateSubTree(ctx, r.store, root, parentPath)
			if err != nil {
				return nil, nil, err
			}
			parent.Remove(path[len(path)-1])
			root, rootLink, err = WriteBack(ctx, r.store, root, parent, parentPath)
			if err != nil {
				return nil, nil, err
			}
		}
		return root, rootLink, nil
	})
	if err != nil {
		return err
	}
	r.log.WithField("schema", name.String()).WithField("commit", commitLink.String()).Info("dropped schema")
	return nil
}

// Schema returns the feature type with the given name from the current head.
func (r *Repository) Schema(ctx context.Context, name schema.Name) (*schema.FeatureType, error) {
	_, root, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return r.schemaAt(ctx, root, name)
}

// schemaAt returns the feature type with the given name from the given root tree.
func (r *Repository) schemaAt(ctx context.Context, root *object.Tree, name schema.Name) (*schema.FeatureType, error) {
	ref, ok, err := GetTreeChild(ctx, r.store, root, typePath(name))
	if err != nil {
		return nil, err
	}
	if !ok || ref.Kind != object.KindBlob {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	node, err := r.store.Load(ctx, ref.Link, basicnode.Prototype.Any)
	if err != nil {
		return nil, err
	}
	return schema.Decode(node)
}

// ListSchemas returns the names of all feature types in the current head.
func (r *Repository) ListSchemas(ctx context.Context) ([]schema.Name, error) {
	_, root, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	types, err := GetOrCreateSubTree(ctx, r.store, root, []string{TypesTreeName})
	if err != nil {
		return nil, err
	}
	var names []schema.Name
	for _, ns := range types.Entries() {
		if ns.Kind != object.KindTree {
			continue
		}
		namespace, err := LoadTree(ctx, r.store, ns.Link)
		if err != nil {
			return nil, err
		}
		for _, e := range namespace.Entries() {
			names = append(names, schema.Name{Namespace: ns.Name, Local: e.Name})
		}
	}
	slices.SortFunc(names, compareNames)
	return names, nil
}

func compareNames(a, b schema.Name) int {
	return cmp.Or(cmp.Compare(a.Namespace, b.Namespace), cmp.Compare(a.Local, b.Local))
}
