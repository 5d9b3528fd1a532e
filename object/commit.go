package object

import (
	"fmt"
	"time"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	"github.com/ipld/go-ipld-prime/node/basicnode"
)

const (
	commitParentsField   = "parents"
	commitRootField      = "root"
	commitAuthorField    = "author"
	commitCommitterField = "committer"
	commitMessageField   = "message"
	commitTimestampField = "timestamp"
)

// Commit contains the state of the repository at a point in time.
type Commit struct {
	// Parents is the list of parent commits this commit was created from.
	Parents []datamodel.Link
	// Root is the link of the repository root tree.
	Root datamodel.Link
	// Author is the name of the user that made the changes.
	Author string
	// Committer is the name of the user that created the commit.
	Committer string
	// Message describes the changes.
	Message string
	// Timestamp is the time the commit was created.
	Timestamp time.Time
}

// Node returns the IPLD node representation of the commit.
func (c *Commit) Node() (datamodel.Node, error) {
	return qp.BuildMap(basicnode.Prototype.Map, 6, func(ma datamodel.MapAssembler) {
		qp.MapEntry(ma, commitParentsField, qp.List(int64(len(c.Parents)), func(la datamodel.ListAssembler) {
			for _, p := range c.Parents {
				qp.ListEntry(la, qp.Link(p))
			}
		}))
		qp.MapEntry(ma, commitRootField, qp.Link(c.Root))
		qp.MapEntry(ma, commitAuthorField, qp.String(c.Author))
		qp.MapEntry(ma, commitCommitterField, qp.String(c.Committer))
		qp.MapEntry(ma, commitMessageField, qp.String(c.Message))
		qp.MapEntry(ma, commitTimestampField, qp.Int(c.Timestamp.UnixNano()))
	})
}

// DecodeCommit returns the commit represented by the given node.
func DecodeCommit(n datamodel.Node) (*Commit, error) {
	var commit Commit
	var err error

	parentsNode, err := n.LookupByString(commitParentsField)
	if err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}
	iter := parentsNode.ListIterator()
	for iter != nil && !iter.Done() {
		_, v, err := iter.Next()
		if err != nil {
			return nil, err
		}
		lnk, err := v.AsLink()
		if err != nil {
			return nil, err
		}
		commit.Parents = append(commit.Parents, lnk)
	}
	commit.Root, err = lookupLink(n, commitRootField)
	if err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}
	commit.Author, err = lookupString(n, commitAuthorField)
	if err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}
	commit.Committer, err = lookupString(n, commitCommitterField)
	if err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}
	commit.Message, err = lookupString(n, commitMessageField)
	if err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}
	timestamp, err := lookupInt(n, commitTimestampField)
	if err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}
	commit.Timestamp = time.Unix(0, timestamp).UTC()
	return &commit, nil
}
