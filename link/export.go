package link

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ipld/go-car/v2"
	"github.com/ipld/go-ipld-prime/datamodel"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/ipld/go-ipld-prime/traversal"
	"github.com/ipld/go-ipld-prime/traversal/selector"
	"github.com/ipld/go-ipld-prime/traversal/selector/builder"
)

// ErrUnsupportedLink is returned when a link is not a CID link.
var ErrUnsupportedLink = errors.New("unsupported link")

// exploreAll matches every node reachable from the root, following links.
var exploreAll = func() builder.SelectorSpec {
	ssb := builder.NewSelectorSpecBuilder(basicnode.Prototype.Any)
	return ssb.ExploreRecursive(selector.RecursionLimitNone(), ssb.ExploreAll(ssb.ExploreRecursiveEdge()))
}()

// Walk calls fn once for every object reachable from root, root included.
func (s *Store) Walk(ctx context.Context, root datamodel.Link, fn func(datamodel.Link) error) error {
	node, err := s.Load(ctx, root, basicnode.Prototype.Any)
	if err != nil {
		return err
	}
	sel, err := exploreAll.Selector()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{})
	return s.Traversal(ctx).WalkAdv(node, sel, func(p traversal.Progress, _ datamodel.Node, _ traversal.VisitReason) error {
		lnk := p.LastBlock.Link
		if lnk == nil {
			lnk = root
		}
		if _, ok := seen[lnk.String()]; ok {
			return nil
		}
		seen[lnk.String()] = struct{}{}
		return fn(lnk)
	})
}

// Export writes a CAR archive rooted at the given commit containing every
// object reachable from it: parent commits, root trees and their blobs.
//
// The DAG is walked before anything is written so a missing object fails the
// export without leaving a partial archive. Export returns the number of
// objects written.
func (s *Store) Export(ctx context.Context, commit datamodel.Link, out io.Writer) (int, error) {
	lnk, ok := commit.(cidlink.Link)
	if !ok {
		return 0, fmt.Errorf("%w: commit %v", ErrUnsupportedLink, commit)
	}
	var count int
	err := s.Walk(ctx, lnk, func(datamodel.Link) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("export commit %s: %w", lnk, err)
	}
	w, err := car.NewSelectiveWriter(ctx, &s.lsys, lnk.Cid, exploreAll.Node(), car.WithTraversalPrototypeChooser(prototypeChooser))
	if err != nil {
		return 0, err
	}
	if _, err := w.WriteTo(out); err != nil {
		return 0, err
	}
	return count, nil
}
