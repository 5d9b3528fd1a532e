package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nasdf/geocapy/link"
	"github.com/nasdf/geocapy/object"
	"github.com/nasdf/geocapy/schema"
	"github.com/nasdf/geocapy/storage"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/sirupsen/logrus"
)

// HeadKey is the storage key of the current head commit link.
const HeadKey = "head"

// head is the published state of the repository.
type head struct {
	commit  datamodel.Link
	root    datamodel.Link
	version uint64
}

// Options contains optional repository settings.
type Options struct {
	// Logger receives structured log entries. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
	// Now returns the commit timestamp. Defaults to time.Now.
	Now func() time.Time
	// Author is the default commit author.
	Author string
	// Committer is the default commit committer.
	Committer string
}

// Repository is a versioned feature store.
type Repository struct {
	storage    storage.Storage
	store      *link.Store
	head       atomic.Pointer[head]
	commitLock sync.Mutex
	log        logrus.FieldLogger
	now        func() time.Time
	defaults   Metadata
}

func newRepository(s storage.Storage, opts Options) *Repository {
	r := &Repository{
		storage: s,
		store:   link.NewStore(s),
		log:     opts.Logger,
		now:     opts.Now,
		defaults: Metadata{
			Author:    opts.Author,
			Committer: opts.Committer,
		},
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Init creates a new repository with an empty root tree in the given storage.
func Init(ctx context.Context, s storage.Storage, opts Options) (*Repository, error) {
	ok, err := s.Has(ctx, HeadKey)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("repository %w", ErrAlreadyExists)
	}
	r := newRepository(s, opts)

	// create initial root tree
	root := object.NewTree()
	for _, name := range []string{FeaturesTreeName, TypesTreeName} {
		empty := object.NewTree()
		emptyLink, err := StoreTree(ctx, r.store, empty)
		if err != nil {
			return nil, err
		}
		root.Put(empty.Ref(name, emptyLink))
	}
	rootLink, err := StoreTree(ctx, r.store, root)
	if err != nil {
		return nil, err
	}

	// create initial commit
	meta := Metadata{Message: "initial commit"}.withDefaults(r, "")
	commit := &object.Commit{
		Root:      rootLink,
		Author:    meta.Author,
		Committer: meta.Committer,
		Message:   meta.Message,
		Timestamp: meta.Timestamp,
	}
	commitLink, err := r.storeCommit(ctx, commit)
	if err != nil {
		return nil, err
	}
	err = s.Put(ctx, HeadKey, []byte(commitLink.String()))
	if err != nil {
		return nil, err
	}
	r.head.Store(&head{commit: commitLink, root: rootLink})
	r.log.WithField("commit", commitLink.String()).Info("initialized repository")
	return r, nil
}

// Open returns an existing repository from the given storage or initializes a new one.
func Open(ctx context.Context, s storage.Storage, opts Options) (*Repository, error) {
	data, err := s.Get(ctx, HeadKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Init(ctx, s, opts)
	}
	if err != nil {
		return nil, err
	}
	commitLink, err := link.ParseLink(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid head: %w", err)
	}
	r := newRepository(s, opts)
	commit, err := r.Commit(ctx, commitLink)
	if err != nil {
		return nil, err
	}
	r.head.Store(&head{commit: commitLink, root: commit.Root})
	return r, nil
}

// Head returns the link of the current head commit.
func (r *Repository) Head() datamodel.Link {
	return r.head.Load().commit
}

// Version returns the number of commits published since the repository was opened.
func (r *Repository) Version() uint64 {
	return r.head.Load().version
}

// Store returns the object store backing the repository.
func (r *Repository) Store() *link.Store {
	return r.store
}

// Commit returns the commit with the given link.
func (r *Repository) Commit(ctx context.Context, lnk datamodel.Link) (*object.Commit, error) {
	node, err := r.store.Load(ctx, lnk, basicnode.Prototype.Any)
	if err != nil {
		return nil, err
	}
	return object.DecodeCommit(node)
}

// Export writes the DAG reachable from the head commit as a CAR archive and
// returns the number of objects written.
func (r *Repository) Export(ctx context.Context, out io.Writer) (int, error) {
	return r.store.Export(ctx, r.Head(), out)
}

// snapshot returns the current head and its root tree.
func (r *Repository) snapshot(ctx context.Context) (*head, *object.Tree, error) {
	h := r.head.Load()
	root, err := LoadTree(ctx, r.store, h.root)
	if err != nil {
		return nil, nil, err
	}
	return h, root, nil
}

func (r *Repository) storeCommit(ctx context.Context, commit *object.Commit) (datamodel.Link, error) {
	node, err := commit.Node()
	if err != nil {
		return nil, err
	}
	return r.store.Store(ctx, node)
}

// advance publishes a new head if the current head is still the given base.
//
// The caller must hold the commit lock.
func (r *Repository) advance(ctx context.Context, base *head, commitLink, rootLink datamodel.Link) error {
	current := r.head.Load()
	if !link.Equal(current.commit, base.commit) {
		return ErrConcurrentModification
	}
	err := r.storage.Put(ctx, HeadKey, []byte(commitLink.String()))
	if err != nil {
		return err
	}
	next := &head{
		commit:  commitLink,
		root:    rootLink,
		version: current.version + 1,
	}
	if !r.head.CompareAndSwap(current, next) {
		return ErrConcurrentModification
	}
	return nil
}

// update applies the given function to the current root tree and publishes the result
// as a new commit while holding the commit lock.
func (r *Repository) update(ctx context.Context, meta Metadata, fn func(root *object.Tree) (*object.Tree, datamodel.Link, error)) (datamodel.Link, error) {
	r.commitLock.Lock()
	defer r.commitLock.Unlock()

	base, root, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	_, rootLink, err := fn(root)
	if err != nil {
		return nil, err
	}
	meta = meta.withDefaults(r, "")
	commitLink, err := r.storeCommit(ctx, &object.Commit{
		Parents:   []datamodel.Link{base.commit},
		Root:      rootLink,
		Author:    meta.Author,
		Committer: meta.Committer,
		Message:   meta.Message,
		Timestamp: meta.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	err = r.advance(ctx, base, commitLink, rootLink)
	if err != nil {
		return nil, err
	}
	return commitLink, nil
}

func featuresPath(name schema.Name) []string {
	return []string{FeaturesTreeName, name.Namespace, name.Local}
}

func typePath(name schema.Name) []string {
	return []string{TypesTreeName, name.Namespace, name.Local}
}
