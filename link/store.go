package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/nasdf/geocapy/storage"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/linking"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/ipld/go-ipld-prime/traversal"

	// codecs need to be initialized and registered
	_ "github.com/ipld/go-ipld-prime/codec/dagcbor"
	_ "github.com/ipld/go-ipld-prime/codec/dagjson"
)

var linkPrototype = cidlink.LinkPrototype{Prefix: cid.Prefix{
	Version:  1,    // Usually '1'.
	Codec:    0x71, // dag-cbor -- See the multicodecs table: https://github.com/multiformats/multicodec/
	MhType:   0x12, // sha2-256 -- See the multicodecs table: https://github.com/multiformats/multicodec/
	MhLength: 32,   // sha2-256 hash has a 32-byte sum.
}}

var prototypeChooser = traversal.LinkTargetNodePrototypeChooser(func(l datamodel.Link, lc linking.LinkContext) (datamodel.NodePrototype, error) {
	return basicnode.Prototype.Any, nil
})

// contentStorage skips writes for keys that already exist.
//
// Keys are derived from the content so an existing key always holds the same bytes.
type contentStorage struct {
	storage.Storage
}

func (s contentStorage) Put(ctx context.Context, key string, content []byte) error {
	ok, err := s.Storage.Has(ctx, key)
	if err != nil || ok {
		return err
	}
	return s.Storage.Put(ctx, key, content)
}

// Store is a content addressable data store.
type Store struct {
	lsys linking.LinkSystem
}

// NewStore returns a new Store that uses the given storage to read and write content addressable data.
func NewStore(store storage.Storage) *Store {
	lsys := cidlink.DefaultLinkSystem()
	lsys.SetReadStorage(store)
	lsys.SetWriteStorage(contentStorage{store})

	return &Store{
		lsys: lsys,
	}
}

// Load returns the node matching the given link and built using the given prototype.
func (s *Store) Load(ctx context.Context, lnk datamodel.Link, np datamodel.NodePrototype) (datamodel.Node, error) {
	if lnk == nil {
		return nil, fmt.Errorf("%w: nil link", storage.ErrNotFound)
	}
	node, err := s.lsys.Load(linking.LinkContext{Ctx: ctx}, lnk, np)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: object %s", storage.ErrNotFound, lnk)
	}
	return node, err
}

// Store writes the given node to the store and returns its link.
//
// Storing a node that already exists returns the same link without writing.
func (s *Store) Store(ctx context.Context, node datamodel.Node) (datamodel.Link, error) {
	return s.lsys.Store(linking.LinkContext{Ctx: ctx}, linkPrototype, node)
}

// ComputeLink returns the link the given node would be stored under.
func (s *Store) ComputeLink(node datamodel.Node) (datamodel.Link, error) {
	return s.lsys.ComputeLink(linkPrototype, node)
}

// Traversal returns a traversal.Progress over this store that loads each linked object once.
func (s *Store) Traversal(ctx context.Context) traversal.Progress {
	return traversal.Progress{Cfg: &traversal.Config{
		Ctx:                            ctx,
		LinkSystem:                     s.lsys,
		LinkTargetNodePrototypeChooser: prototypeChooser,
		LinkVisitOnlyOnce:              true,
	}}
}

// ParseLink parses the string form of a link.
func ParseLink(s string) (datamodel.Link, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return nil, err
	}
	return cidlink.Link{Cid: id}, nil
}

// Equal returns true if both links are nil or both point to the same content.
func Equal(a, b datamodel.Link) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}
