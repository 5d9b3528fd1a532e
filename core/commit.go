package core

import (
	"context"
	"time"

	"github.com/nasdf/geocapy/link"
	"github.com/nasdf/geocapy/object"
	"github.com/nasdf/geocapy/schema"

	"github.com/ipld/go-ipld-prime/datamodel"
)

// DefaultAuthor is the commit author used when none is configured.
const DefaultAuthor = "anonymous"

// Metadata describes a commit.
type Metadata struct {
	Author    string
	Committer string
	Message   string
	Timestamp time.Time
}

// withDefaults returns the metadata with missing values filled in.
func (m Metadata) withDefaults(r *Repository, txID string) Metadata {
	if m.Author == "" {
		m.Author = r.defaults.Author
	}
	if m.Author == "" {
		m.Author = DefaultAuthor
	}
	if m.Committer == "" {
		m.Committer = r.defaults.Committer
	}
	if m.Committer == "" {
		m.Committer = m.Author
	}
	if m.Message == "" && txID != "" {
		m.Message = "Commit from transaction " + txID
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	m.Timestamp = m.Timestamp.UTC()
	return m
}

// CommitStatus is the outcome of a commit.
type CommitStatus int

const (
	// Committed means a new commit was published.
	Committed CommitStatus = iota
	// NothingToCommit means the transaction had no changes and no commit was written.
	NothingToCommit
)

func (s CommitStatus) String() string {
	if s == NothingToCommit {
		return "nothing to commit"
	}
	return "committed"
}

// Err returns ErrNothingToCommit for empty commits and nil otherwise.
func (s CommitStatus) Err() error {
	if s == NothingToCommit {
		return ErrNothingToCommit
	}
	return nil
}

// CommitResult is returned from a successful commit.
type CommitResult struct {
	Status CommitStatus
	// Commit is the link of the new commit.
	Commit datamodel.Link
	// Root is the link of the new root tree.
	Root datamodel.Link
	// Types contains the names of the feature types that changed.
	Types []schema.Name
}

// Commit publishes all pending changes as a new commit and closes the transaction.
//
// If the head has moved since the transaction began ErrConcurrentModification is returned
// and the transaction stays open with its changes intact so it can be rebased and retried.
func (t *Transaction) Commit(ctx context.Context, meta Metadata) (*CommitResult, error) {
	if t.closed {
		return nil, ErrTransactionClosed
	}
	log := t.repo.log.WithField("tx", t.ID())

	names := t.dirtyTypes()
	root := t.root
	rootLink := t.base.root
	for _, name := range names {
		path := featuresPath(name)
		tree, err := GetOrCreateSubTree(ctx, t.repo.store, root, path)
		if err != nil {
			return nil, err
		}
		t.staged[name].apply(tree)
		root, rootLink, err = WriteBack(ctx, t.repo.store, root, tree, path)
		if err != nil {
			return nil, err
		}
	}
	if link.Equal(rootLink, t.base.root) {
		t.closed = true
		t.staged = nil
		log.Info("nothing to commit")
		return &CommitResult{Status: NothingToCommit}, nil
	}

	meta = meta.withDefaults(t.repo, t.ID())
	commitLink, err := t.repo.storeCommit(ctx, &object.Commit{
		Parents:   []datamodel.Link{t.base.commit},
		Root:      rootLink,
		Author:    meta.Author,
		Committer: meta.Committer,
		Message:   meta.Message,
		Timestamp: meta.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	t.repo.commitLock.Lock()
	err = t.repo.advance(ctx, t.base, commitLink, rootLink)
	t.repo.commitLock.Unlock()
	if err != nil {
		log.WithError(err).Warn("commit rejected")
		return nil, err
	}

	t.closed = true
	t.staged = nil
	typeNames := make([]string, len(names))
	for i, n := range names {
		typeNames[i] = n.String()
	}
	log.WithField("commit", commitLink.String()).WithField("types", typeNames).Info("committed transaction")
	return &CommitResult{
		Status: Committed,
		Commit: commitLink,
		Root:   rootLink,
		Types:  names,
	}, nil
}
